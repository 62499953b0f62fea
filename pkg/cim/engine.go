package cim

import (
	"context"
	"log/slog"
	"time"
)

// DefaultPollInterval is how long the job wait loop sleeps between polls.
const DefaultPollInterval = 100 * time.Millisecond

// Engine runs traversals and invocations. The zero value is usable and
// behaves like Default. An Engine holds no mutable state and may be shared.
type Engine struct {
	// PollInterval is the sleep between job polls. Zero means
	// DefaultPollInterval.
	PollInterval time.Duration

	// JobTimeout bounds a single job wait. Zero waits until the job reaches
	// a terminal state or the context ends.
	JobTimeout time.Duration

	Observer Observer
	Logger   *slog.Logger
}

// Default is the engine behind the package-level functions.
var Default = &Engine{PollInterval: DefaultPollInterval}

func (e *Engine) pollInterval() time.Duration {
	if e.PollInterval <= 0 {
		return DefaultPollInterval
	}
	return e.PollInterval
}

func (e *Engine) observer() Observer {
	if e.Observer == nil {
		return NopObserver{}
	}
	return e.Observer
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

// Traverse runs path from root with the Default engine.
func Traverse(ctx context.Context, root ManagedObject, path Path) ([][]ManagedObject, error) {
	return Default.Traverse(ctx, root, path)
}

// GetChild resolves path to at most one leaf with the Default engine.
func GetChild(ctx context.Context, root ManagedObject, path Path) (ManagedObject, error) {
	return Default.GetChild(ctx, root, path)
}

// Invoke calls method on obj with the Default engine.
func Invoke(ctx context.Context, obj ManagedObject, method string, args Args) (Result, error) {
	return Default.Invoke(ctx, obj, method, args)
}

// EvaluateInvocationResult interprets a result with the Default engine.
func EvaluateInvocationResult(ctx context.Context, result Result, codes *CodeTable, ok, jobStarted Code) (Result, error) {
	return Default.Evaluate(ctx, result, codes, ok, jobStarted)
}

// Call invokes and evaluates with the Default engine.
func Call(ctx context.Context, obj ManagedObject, method string, args Args, codes *CodeTable, ok, jobStarted Code) (Result, error) {
	return Default.Call(ctx, obj, method, args, codes, ok, jobStarted)
}
