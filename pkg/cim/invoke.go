package cim

import (
	"context"
	"fmt"
	"time"
)

// Args are the named arguments of an invocation. Every formal parameter of
// the method must have an entry; a nil entry passes no value.
type Args map[string]any

// Result maps the output parameter names of an invocation to caller-facing
// values. It always holds ReturnValue, and Job when the method started one.
type Result map[string]any

// ReturnValue returns the numeric return code.
func (r Result) ReturnValue() (int, error) {
	v, ok := r["ReturnValue"]
	if !ok || v == nil {
		return 0, fmt.Errorf("%w: result has no ReturnValue", ErrInvocationFailure)
	}
	n, err := toInt(v)
	if err != nil {
		return 0, fmt.Errorf("%w: ReturnValue: %v", ErrInvocationFailure, err)
	}
	return n, nil
}

// Object returns the output parameter name as an object handle, or nil.
func (r Result) Object(name string) ManagedObject {
	obj, _ := r[name].(ManagedObject)
	return obj
}

// Objects returns an array output parameter as object handles, skipping
// elements that are not handles.
func (r Result) Objects(name string) []ManagedObject {
	items, _ := r[name].([]any)
	out := make([]ManagedObject, 0, len(items))
	for _, item := range items {
		if obj, ok := item.(ManagedObject); ok {
			out = append(out, obj)
		}
	}
	return out
}

// Invoke calls a remote method. It fetches the method's formal parameters,
// checks that args covers all of them, converts each argument to the
// declared type and only then submits the call, so a bad argument never
// produces a partial call. Output parameters are converted back before
// being returned. Arguments that match no formal parameter are ignored.
func (e *Engine) Invoke(ctx context.Context, obj ManagedObject, method string, args Args) (Result, error) {
	start := time.Now()
	result, err := e.invoke(ctx, obj, method, args)
	e.observer().InvocationFinished(method, time.Since(start), err)
	return result, err
}

func (e *Engine) invoke(ctx context.Context, obj ManagedObject, method string, args Args) (Result, error) {
	params, err := obj.MethodParameters(ctx, method)
	if err != nil {
		return nil, fmt.Errorf("parameters of %s.%s: %w", obj.ClassName(), method, err)
	}

	for _, p := range params {
		if _, ok := args[p.Name]; !ok {
			return nil, &MissingParameterError{Method: obj.ClassName() + "." + method, Parameter: p.Name}
		}
	}

	in := make(map[string]any, len(params))
	for _, p := range params {
		var (
			value any
			err   error
		)
		if p.IsArray {
			var items []any
			items, err = ToRemoteArray(ctx, obj.Scope(), args[p.Name], p.Type)
			if len(items) > 0 {
				value = items
			}
		} else {
			value, err = ToRemote(ctx, obj.Scope(), args[p.Name], p.Type)
		}
		if err != nil {
			return nil, fmt.Errorf("%s.%s parameter %s: %w", obj.ClassName(), method, p.Name, err)
		}
		in[p.Name] = value
	}

	e.logger().Debug("invoking method",
		"class", obj.ClassName(),
		"method", method,
		"object", obj.Path())

	out, err := obj.InvokeMethod(ctx, method, in)
	if err != nil {
		return nil, fmt.Errorf("invoke %s.%s: %w", obj.ClassName(), method, err)
	}

	result := make(Result, len(out))
	for _, p := range out {
		var (
			value any
			err   error
		)
		if p.IsArray {
			var items []any
			items, err = FromRemoteArray(ctx, obj.Scope(), p.Value, p.Type)
			if len(items) > 0 {
				value = items
			}
		} else {
			value, err = FromRemote(ctx, obj.Scope(), p.Value, p.Type)
		}
		if err != nil {
			return nil, fmt.Errorf("%s.%s output %s: %w", obj.ClassName(), method, p.Name, err)
		}
		result[p.Name] = value
	}
	return result, nil
}

// Evaluate interprets result's return code against codes. The ok code
// returns result unchanged. The jobStarted code waits for the referenced
// job: a job that completes returns result unchanged, any other terminal
// state fails with a *JobError. Every other code fails with an
// *InvocationError.
func (e *Engine) Evaluate(ctx context.Context, result Result, codes *CodeTable, ok, jobStarted Code) (Result, error) {
	return e.evaluate(ctx, "", result, codes, ok, jobStarted)
}

// Call invokes method and evaluates its result.
func (e *Engine) Call(ctx context.Context, obj ManagedObject, method string, args Args, codes *CodeTable, ok, jobStarted Code) (Result, error) {
	result, err := e.Invoke(ctx, obj, method, args)
	if err != nil {
		return nil, err
	}
	return e.evaluate(ctx, obj.ClassName()+"."+method, result, codes, ok, jobStarted)
}

func (e *Engine) evaluate(ctx context.Context, method string, result Result, codes *CodeTable, ok, jobStarted Code) (Result, error) {
	raw, err := result.ReturnValue()
	if err != nil {
		e.observer().ResultEvaluated(Code{Name: "Missing"}, CheckedFailed)
		return nil, err
	}
	code := codes.Lookup(raw)

	switch code.Value {
	case jobStarted.Value:
		e.observer().ResultEvaluated(code, CheckedJobStarted)
		ref := result.Object("Job")
		if ref == nil {
			return nil, fmt.Errorf("%w: %s returned %s without a job reference", ErrInvocationFailure, method, code)
		}
		job, err := AsJob(ref)
		if err != nil {
			return nil, err
		}
		if err := e.WaitJob(ctx, job); err != nil {
			return nil, err
		}
		return result, nil
	case ok.Value:
		e.observer().ResultEvaluated(code, CheckedOK)
		return result, nil
	}

	e.observer().ResultEvaluated(code, CheckedFailed)
	return nil, &InvocationError{Method: method, Code: code}
}
