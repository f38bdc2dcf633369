package errors

import (
	"errors"
	"fmt"
)

// Kind identifies one of the dataflow engine's error categories, layered on
// top of the transient/invalid/fatal classification above. Kind drives how
// the engine responds (log-and-continue vs. abort-the-graph); ErrorClass
// drives whether pkg/retry should retry the underlying operation.
type Kind int

const (
	KindUnknown Kind = iota
	// KindInvalidGraph: submission failed validation (cycle, dangling
	// edge). Surfaced to the caller of submit/execute.
	KindInvalidGraph
	// KindNotConfigured: an operator's function slot was empty when
	// process was invoked, or a builder chain attempted a non-source
	// operation before from_source.
	KindNotConfigured
	// KindFunctionError: execute inside a function signalled a problem.
	// Local to one record; never promoted to graph-level failure.
	KindFunctionError
	// KindFatalEngineError: unrecoverable condition in the engine itself.
	KindFatalEngineError
	// KindResourceError: init/close failed on an operator during
	// start-up or shutdown.
	KindResourceError
)

func (k Kind) String() string {
	switch k {
	case KindInvalidGraph:
		return "invalid_graph"
	case KindNotConfigured:
		return "not_configured"
	case KindFunctionError:
		return "function_error"
	case KindFatalEngineError:
		return "fatal_engine_error"
	case KindResourceError:
		return "resource_error"
	default:
		return "unknown"
	}
}

// EngineError attaches an error Kind and the operator/function context it
// occurred in. It is a type of its own, not a ClassifiedError. errors.As
// unwraps through it to any underlying cause.
type EngineError struct {
	Kind     Kind
	Operator string
	Function string
	Err      error
}

func (e *EngineError) Error() string {
	switch {
	case e.Operator != "" && e.Function != "":
		return fmt.Sprintf("%s[%s]: %s: %v", e.Operator, e.Function, e.Kind, e.Err)
	case e.Operator != "":
		return fmt.Sprintf("%s: %s: %v", e.Operator, e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
}

func (e *EngineError) Unwrap() error { return e.Err }

// Class maps an engine error Kind onto the transient/invalid/fatal
// classification. IsTransient, IsFatal and IsInvalid look only for a
// ClassifiedError and do not consult Class; pkg/retry does not either.
func (e *EngineError) Class() ErrorClass {
	switch e.Kind {
	case KindResourceError:
		return ErrorTransient
	case KindFatalEngineError:
		return ErrorFatal
	default:
		return ErrorInvalid
	}
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *EngineError; otherwise returns KindUnknown.
func KindOf(err error) Kind {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return KindUnknown
}

// NewInvalidGraph reports a graph that failed topological validation.
func NewInvalidGraph(err error) error {
	return &EngineError{Kind: KindInvalidGraph, Err: err}
}

// NewNotConfigured reports an operator invoked with no function attached,
// or a builder chain missing its from_source call.
func NewNotConfigured(operator string, err error) error {
	if err == nil {
		err = errors.New("function slot is empty")
	}
	return &EngineError{Kind: KindNotConfigured, Operator: operator, Err: err}
}

// NewFunctionError wraps a business-logic failure local to one record.
func NewFunctionError(operator, function string, err error) error {
	return &EngineError{Kind: KindFunctionError, Operator: operator, Function: function, Err: err}
}

// NewFatalEngineError reports a structural failure inside the engine
// itself, e.g. corrupted adjacency.
func NewFatalEngineError(operator string, err error) error {
	return &EngineError{Kind: KindFatalEngineError, Operator: operator, Err: err}
}

// NewResourceError reports an init/close failure during operator startup
// or shutdown.
func NewResourceError(operator, function string, err error) error {
	return &EngineError{Kind: KindResourceError, Operator: operator, Function: function, Err: err}
}
