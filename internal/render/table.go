package render

import (
	"fmt"
	"io"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/javanstorm/hvctl/pkg/cim"
)

// Table collects rows and renders them with a light box style.
type Table struct {
	writer table.Writer
}

// NewTable returns a table with the given header.
func NewTable(header ...string) *Table {
	w := table.NewWriter()
	w.SetStyle(table.StyleLight)
	row := make(table.Row, len(header))
	for i, h := range header {
		row[i] = h
	}
	w.AppendHeader(row)
	return &Table{writer: w}
}

// Row appends a row. Values are rendered with Text.
func (t *Table) Row(vals ...any) {
	row := make(table.Row, len(vals))
	for i, v := range vals {
		row[i] = Text(v)
	}
	t.writer.AppendRow(row)
}

// AlignRight right-aligns the 1-based columns.
func (t *Table) AlignRight(cols ...int) {
	cfgs := make([]table.ColumnConfig, len(cols))
	for i, c := range cols {
		cfgs[i] = table.ColumnConfig{Number: c, Align: text.AlignRight}
	}
	t.writer.SetColumnConfigs(cfgs)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return t.writer.Length()
}

func (t *Table) String() string {
	return t.writer.Render()
}

// Write renders the table to w.
func (t *Table) Write(w io.Writer) error {
	_, err := fmt.Fprintln(w, t.String())
	return err
}

// Properties renders every property of obj, sorted by name. Nil values
// are left out.
func Properties(w io.Writer, obj cim.ManagedObject) error {
	props := append([]cim.Property(nil), obj.Properties()...)
	sort.Slice(props, func(i, j int) bool { return props[i].Name < props[j].Name })
	t := NewTable("Property", "Value")
	for _, p := range props {
		if p.Value == nil {
			continue
		}
		t.Row(p.Name, p.Value)
	}
	return t.Write(w)
}

// Objects renders one row per object with the given properties as
// columns. The class is always the first column.
func Objects(w io.Writer, objs []cim.ManagedObject, props ...string) error {
	header := append([]string{"Class"}, props...)
	t := NewTable(header...)
	for _, obj := range objs {
		row := make([]any, 0, len(header))
		row = append(row, obj.ClassName())
		for _, name := range props {
			v, _ := cim.Get(obj, name)
			row = append(row, v)
		}
		t.Row(row...)
	}
	return t.Write(w)
}

// Trails renders traversal results, one row per complete path, one
// column per node.
func Trails(w io.Writer, path cim.Path, results [][]cim.ManagedObject) error {
	header := make([]string, len(path))
	for i, n := range path {
		header[i] = n.String()
	}
	t := NewTable(header...)
	for _, trail := range results {
		row := make([]any, len(trail))
		for i, obj := range trail {
			row[i] = fmt.Sprintf("%s (%s)", Label(obj), obj.ClassName())
		}
		t.Row(row...)
	}
	return t.Write(w)
}
