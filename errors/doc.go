// Package errors provides structured error types for the script bridge.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type includes rich context: property path, native/script type names,
// script location and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseMarshal, errors.KindMarshal).
//		Path("host", "value").
//		ScriptType("symbol").
//		Detail("symbols cannot cross the boundary").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.WrongThread("RegisterObject", owner, caller)
//	err := errors.Execution("main.js", 12, cause)
//
// Kind-only sentinels match across phases:
//
//	if errors.Is(err, scripterrors.ErrWrongThread) { ... }
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
