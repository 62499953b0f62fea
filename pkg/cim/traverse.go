package cim

import (
	"context"
	"fmt"
	"strings"
)

// Path is an ordered sequence of nodes leading from a root object to the
// objects of interest.
type Path []Node

func (p Path) String() string {
	parts := make([]string, len(p))
	for i, n := range p {
		parts[i] = n.String()
	}
	return strings.Join(parts, "/")
}

// Traverse expands path from root and returns every complete path found.
// Each result has one object per node; the last one is the leaf. Results
// are ordered depth-first, following the order in which nodes report their
// candidates.
//
// The walk uses an explicit stack, so its depth does not grow the call
// stack. It terminates because every step consumes one node of path.
func (e *Engine) Traverse(ctx context.Context, root ManagedObject, path Path) ([][]ManagedObject, error) {
	results, err := e.traverse(ctx, root, path)
	e.observer().TraversalFinished(len(path), len(results), err)
	return results, err
}

type frame struct {
	trail   []ManagedObject
	pending []ManagedObject
}

func (e *Engine) traverse(ctx context.Context, root ManagedObject, path Path) ([][]ManagedObject, error) {
	if len(path) == 0 {
		return nil, ErrEmptyPath
	}

	first, err := path[0].Expand(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("step 1 (%s): %w", path[0], err)
	}

	var results [][]ManagedObject
	stack := []frame{{pending: first}}
	for len(stack) > 0 {
		top := len(stack) - 1
		if len(stack[top].pending) == 0 {
			stack = stack[:top]
			continue
		}
		obj := stack[top].pending[0]
		stack[top].pending = stack[top].pending[1:]

		trail := make([]ManagedObject, len(stack[top].trail)+1)
		copy(trail, stack[top].trail)
		trail[len(trail)-1] = obj

		depth := len(trail)
		if depth == len(path) {
			results = append(results, trail)
			continue
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}
		next, err := path[depth].Expand(ctx, obj)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", depth+1, path[depth], err)
		}
		stack = append(stack, frame{trail: trail, pending: next})
	}
	return results, nil
}

// GetChild traverses path and returns the leaf of the single path found.
// It returns (nil, nil) when nothing is found and ErrAmbiguousResult when
// more than one path is.
func (e *Engine) GetChild(ctx context.Context, root ManagedObject, path Path) (ManagedObject, error) {
	results, err := e.Traverse(ctx, root, path)
	if err != nil {
		return nil, err
	}
	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return Leaf(results[0]), nil
	}
	return nil, fmt.Errorf("%w: %d paths for %s", ErrAmbiguousResult, len(results), path)
}

// Children returns the direct neighbours of root through a single node.
func (e *Engine) Children(ctx context.Context, root ManagedObject, node Node) ([]ManagedObject, error) {
	results, err := e.Traverse(ctx, root, Path{node})
	if err != nil {
		return nil, err
	}
	return Leaves(results), nil
}

// Children returns the direct neighbours of root with the Default engine.
func Children(ctx context.Context, root ManagedObject, node Node) ([]ManagedObject, error) {
	return Default.Children(ctx, root, node)
}

// Leaf returns the last object of a traversal result.
func Leaf(trail []ManagedObject) ManagedObject {
	if len(trail) == 0 {
		return nil
	}
	return trail[len(trail)-1]
}

// Leaves returns the leaf of every traversal result.
func Leaves(results [][]ManagedObject) []ManagedObject {
	out := make([]ManagedObject, 0, len(results))
	for _, r := range results {
		out = append(out, Leaf(r))
	}
	return out
}
