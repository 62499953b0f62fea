package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/awalterschulze/gographviz"

	"github.com/javanstorm/hvctl/pkg/cim"
)

const graphName = "traversal"

// Graph builds a DOT graph of traversal results. Objects are nodes, merged
// by path, and each step of a result is an edge labelled with the path
// node that produced it.
func Graph(root cim.ManagedObject, path cim.Path, results [][]cim.ManagedObject) (*gographviz.Graph, error) {
	g := gographviz.NewGraph()
	if err := g.SetName(graphName); err != nil {
		return nil, err
	}
	if err := g.SetDir(true); err != nil {
		return nil, err
	}
	if err := g.AddAttr(graphName, "rankdir", "LR"); err != nil {
		return nil, err
	}

	ids := make(map[string]string)
	node := func(obj cim.ManagedObject, shape string) (string, error) {
		if id, ok := ids[obj.Path()]; ok {
			return id, nil
		}
		id := fmt.Sprintf("n%d", len(ids))
		ids[obj.Path()] = id
		return id, g.AddNode(graphName, id, map[string]string{
			"label": quote(obj.ClassName(), Label(obj)),
			"shape": shape,
		})
	}

	rootID, err := node(root, "doubleoctagon")
	if err != nil {
		return nil, err
	}
	edges := make(map[[2]string]bool)
	for _, trail := range results {
		prev := rootID
		for i, obj := range trail {
			id, err := node(obj, "box")
			if err != nil {
				return nil, err
			}
			if !edges[[2]string{prev, id}] {
				edges[[2]string{prev, id}] = true
				attrs := map[string]string{}
				if i < len(path) {
					attrs["label"] = quote(path[i].String())
				}
				if err := g.AddEdge(prev, id, true, attrs); err != nil {
					return nil, err
				}
			}
			prev = id
		}
	}
	return g, nil
}

// DOT writes traversal results as a Graphviz digraph.
func DOT(w io.Writer, root cim.ManagedObject, path cim.Path, results [][]cim.ManagedObject) error {
	g, err := Graph(root, path, results)
	if err != nil {
		return fmt.Errorf("build graph: %w", err)
	}
	_, err = io.WriteString(w, g.String())
	return err
}

// quote makes a DOT string literal of lines.
func quote(lines ...string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)
	for i, l := range lines {
		lines[i] = r.Replace(l)
	}
	return `"` + strings.Join(lines, `\n`) + `"`
}
