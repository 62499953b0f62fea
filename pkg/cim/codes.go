package cim

import (
	"fmt"
	"sort"
	"sync"
)

// Code is a numeric return code together with its name in a CodeTable.
type Code struct {
	Value int
	Name  string
}

func (c Code) String() string {
	return fmt.Sprintf("%s(%d)", c.Name, c.Value)
}

// CodeRange names an inclusive span of codes, such as the reserved or
// vendor-specific blocks most return-code enumerations carry.
type CodeRange struct {
	From, To int
	Name     string
}

// CodeTable maps the return codes of one remote method to names.
type CodeTable struct {
	name   string
	codes  map[int]string
	ranges []CodeRange
}

// NewCodeTable builds a table. Exact codes take precedence over ranges.
func NewCodeTable(name string, codes map[int]string, ranges ...CodeRange) *CodeTable {
	t := &CodeTable{
		name:   name,
		codes:  make(map[int]string, len(codes)),
		ranges: append([]CodeRange(nil), ranges...),
	}
	for k, v := range codes {
		t.codes[k] = v
	}
	return t
}

// Name returns the table name.
func (t *CodeTable) Name() string {
	return t.name
}

// Lookup returns the code for value. Values the table does not know are
// named "Unknown".
func (t *CodeTable) Lookup(value int) Code {
	if t == nil {
		return Code{Value: value, Name: "Unknown"}
	}
	if name, ok := t.codes[value]; ok {
		return Code{Value: value, Name: name}
	}
	for _, r := range t.ranges {
		if value >= r.From && value <= r.To {
			return Code{Value: value, Name: r.Name}
		}
	}
	return Code{Value: value, Name: "Unknown"}
}

// Code returns the code with the given name. It panics if the table has
// no such code; tables are static and a miss is a programming error.
func (t *CodeTable) Code(name string) Code {
	c, ok := t.Find(name)
	if !ok {
		panic(fmt.Sprintf("cim: code table %s has no code %q", t.name, name))
	}
	return c
}

// Find returns the exact code called name. A nil table finds nothing.
func (t *CodeTable) Find(name string) (Code, bool) {
	if t == nil {
		return Code{}, false
	}
	for v, n := range t.codes {
		if n == name {
			return Code{Value: v, Name: n}, true
		}
	}
	return Code{}, false
}

// Codes returns the exact codes of the table in ascending order.
func (t *CodeTable) Codes() []Code {
	out := make([]Code, 0, len(t.codes))
	for v, n := range t.codes {
		out = append(out, Code{Value: v, Name: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Value < out[j].Value })
	return out
}

var (
	tables     = make(map[string]*CodeTable)
	tablesLock sync.RWMutex
)

// RegisterCodes associates a code table with a method, keyed as
// "Class.Method". It is meant to be called from init functions.
func RegisterCodes(class, method string, t *CodeTable) {
	tablesLock.Lock()
	defer tablesLock.Unlock()
	tables[class+"."+method] = t
}

// LookupCodes returns the table registered for class.method.
func LookupCodes(class, method string) (*CodeTable, bool) {
	tablesLock.RLock()
	defer tablesLock.RUnlock()
	t, ok := tables[class+"."+method]
	return t, ok
}

// RegisteredMethods lists every registered "Class.Method" key, sorted.
func RegisteredMethods() []string {
	tablesLock.RLock()
	defer tablesLock.RUnlock()
	keys := make([]string, 0, len(tables))
	for k := range tables {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
