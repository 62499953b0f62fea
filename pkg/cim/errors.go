package cim

import (
	"errors"
	"fmt"
	"strings"
)

// Invocation errors
var (
	ErrMissingParameter      = errors.New("cim: required parameter not provided")
	ErrUnsupportedConversion = errors.New("cim: unsupported conversion")
	ErrInvocationFailure     = errors.New("cim: invocation failed")
	ErrJobFailure            = errors.New("cim: job failed")
	ErrTimeout               = errors.New("cim: timed out waiting for job")
)

// Traversal errors
var (
	ErrAmbiguousResult = errors.New("cim: more than one result")
	ErrEmptyPath       = errors.New("cim: traversal path is empty")
)

// Object errors
var (
	ErrNoSuchProperty     = errors.New("cim: no such property")
	ErrReadOnlyProperty   = errors.New("cim: property is read-only")
	ErrWrongConcreteType  = errors.New("cim: wrong concrete type")
	ErrNotFound           = errors.New("cim: object not found")
	ErrMethodNotSupported = errors.New("cim: method not supported")
)

// MissingParameterError is returned by Invoke when a formal parameter has no
// argument.
type MissingParameterError struct {
	Method    string
	Parameter string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("cim: %s: parameter %q not provided", e.Method, e.Parameter)
}

func (e *MissingParameterError) Unwrap() error { return ErrMissingParameter }

// ConversionError is returned when a value cannot be converted to the
// representation a type tag requires.
type ConversionError struct {
	Value  any
	Target CIMType
	Reason string
}

func (e *ConversionError) Error() string {
	msg := fmt.Sprintf("cim: cannot convert %T to %s", e.Value, e.Target)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *ConversionError) Unwrap() error { return ErrUnsupportedConversion }

// InvocationError is returned when a return code is neither the success
// value nor the job-started value.
type InvocationError struct {
	Method string
	Code   Code
}

func (e *InvocationError) Error() string {
	if e.Method == "" {
		return fmt.Sprintf("cim: invocation failed with return value %s", e.Code)
	}
	return fmt.Sprintf("cim: %s failed with return value %s", e.Method, e.Code)
}

func (e *InvocationError) Unwrap() error { return ErrInvocationFailure }

// JobError carries the error fields of a job that reached a terminal state
// other than Completed.
type JobError struct {
	Job              string
	State            JobState
	ErrorCode        int
	JobStatus        string
	ErrorDescription string
}

func (e *JobError) Error() string {
	return fmt.Sprintf("cim: job %s: code:'%d' status:'%s' description:'%s'",
		e.State, e.ErrorCode, e.JobStatus, e.ErrorDescription)
}

func (e *JobError) Unwrap() error { return ErrJobFailure }

// WrongTypeError is returned by class-checking factories.
type WrongTypeError struct {
	Got  string
	Want []string
}

func (e *WrongTypeError) Error() string {
	return fmt.Sprintf("cim: object of class %s is not %s", e.Got, strings.Join(e.Want, " or "))
}

func (e *WrongTypeError) Unwrap() error { return ErrWrongConcreteType }
