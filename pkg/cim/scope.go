package cim

import (
	"context"
	"fmt"
)

// QueryOne runs query and returns its only match. It returns (nil, nil)
// when nothing matches and ErrAmbiguousResult when more than one object
// does.
func QueryOne(ctx context.Context, scope Scope, query string) (ManagedObject, error) {
	objs, err := scope.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	switch len(objs) {
	case 0:
		return nil, nil
	case 1:
		return objs[0], nil
	}
	return nil, fmt.Errorf("%w: %d objects for %q", ErrAmbiguousResult, len(objs), query)
}
