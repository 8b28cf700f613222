package errors

import (
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"
)

// Phase indicates where in the bridge the error occurred
type Phase string

const (
	PhaseThread    Phase = "thread"    // goroutine affinity checks
	PhaseRegister  Phase = "register"  // class and global registration
	PhaseMarshal   Phase = "marshal"   // Variant to script value
	PhaseUnmarshal Phase = "unmarshal" // script value to Variant
	PhaseCompile   Phase = "compile"   // script compilation
	PhaseExecute   Phase = "execute"   // script evaluation and calls
	PhaseInit      Phase = "init"      // engine and context creation
	PhaseCollect   Phase = "collect"   // collection passes
	PhaseDebug     Phase = "debug"     // debug protocol
	PhaseNative    Phase = "native"    // native object adapters
)

// Kind categorizes the error
type Kind string

const (
	KindWrongThread       Kind = "wrong_thread"
	KindClassRegistration Kind = "class_registration"
	KindMarshal           Kind = "marshal"
	KindCompilation       Kind = "compilation"
	KindExecution         Kind = "execution"
	KindInitialization    Kind = "initialization"
	KindNotFound          Kind = "not_found"
	KindInvalidInput      Kind = "invalid_input"
	KindClosed            Kind = "closed"
	KindTypeMismatch      Kind = "type_mismatch"
	KindOverflow          Kind = "overflow"
	KindUnsupported       Kind = "unsupported"
)

// Sentinels match any error of the same kind regardless of phase.
var (
	ErrWrongThread       = &Error{Kind: KindWrongThread}
	ErrClassRegistration = &Error{Kind: KindClassRegistration}
	ErrMarshal           = &Error{Kind: KindMarshal}
	ErrCompilation       = &Error{Kind: KindCompilation}
	ErrExecution         = &Error{Kind: KindExecution}
	ErrInitialization    = &Error{Kind: KindInitialization}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrClosed            = &Error{Kind: KindClosed}
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value      any
	Cause      error
	Phase      Phase
	Kind       Kind
	NativeType string
	ScriptType string
	Detail     string
	File       string
	Path       []string
	Line       int
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.File != "" {
		b.WriteString(" in ")
		b.WriteString(e.File)
		if e.Line > 0 {
			b.WriteByte(':')
			b.WriteString(strconv.Itoa(e.Line))
		}
	}

	if e.NativeType != "" || e.ScriptType != "" {
		b.WriteString(": ")
		if e.NativeType != "" && e.ScriptType != "" {
			b.WriteString("native type ")
			b.WriteString(e.NativeType)
			b.WriteString(", script type ")
			b.WriteString(e.ScriptType)
		} else if e.NativeType != "" {
			b.WriteString("native type ")
			b.WriteString(e.NativeType)
		} else {
			b.WriteString("script type ")
			b.WriteString(e.ScriptType)
		}
	}

	if e.Detail != "" {
		if e.NativeType != "" || e.ScriptType != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// A target without a phase matches on kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase == "" {
		return e.Kind == t.Kind
	}
	return e.Phase == t.Phase && e.Kind == t.Kind
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the property path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// NativeType sets the native type name
func (b *Builder) NativeType(t string) *Builder {
	b.err.NativeType = t
	return b
}

// ScriptType sets the script-side type name
func (b *Builder) ScriptType(t string) *Builder {
	b.err.ScriptType = t
	return b
}

// Location sets the script file and line
func (b *Builder) Location(file string, line int) *Builder {
	b.err.File = file
	b.err.Line = line
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// WrongThread reports an operation attempted off the owning goroutine
func WrongThread(op string, owner, caller int64) *Error {
	return &Error{
		Phase:  PhaseThread,
		Kind:   KindWrongThread,
		Detail: fmt.Sprintf("%s called from goroutine %d, context owned by goroutine %d", op, caller, owner),
	}
}

// ClassRegistration reports a class that could not be registered
func ClassRegistration(typeName, module, detail string) *Error {
	return &Error{
		Phase:      PhaseRegister,
		Kind:       KindClassRegistration,
		NativeType: typeName,
		Path:       []string{module},
		Detail:     detail,
	}
}

// MarshalFailure reports a value with no representation on the other side
func MarshalFailure(phase Phase, path []string, value any, scriptType string) *Error {
	return &Error{
		Phase:      phase,
		Kind:       KindMarshal,
		Path:       path,
		ScriptType: scriptType,
		Value:      value,
		Detail:     fmt.Sprintf("value %v has no representable type", value),
	}
}

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, path []string, nativeType, scriptType string) *Error {
	return &Error{
		Phase:      phase,
		Kind:       KindTypeMismatch,
		Path:       path,
		NativeType: nativeType,
		ScriptType: scriptType,
	}
}

// Overflow creates an overflow error
func Overflow(phase Phase, path []string, value any, target string) *Error {
	return &Error{
		Phase:      phase,
		Kind:       KindOverflow,
		Path:       path,
		NativeType: target,
		Detail:     fmt.Sprintf("value %v overflows %s", value, target),
		Value:      value,
	}
}

// Compilation wraps a script compile error
func Compilation(file string, line int, cause error) *Error {
	return &Error{
		Phase:  PhaseCompile,
		Kind:   KindCompilation,
		File:   file,
		Line:   line,
		Detail: "compile script",
		Cause:  cause,
	}
}

// Execution wraps an exception raised while evaluating or calling script code
func Execution(file string, line int, cause error) *Error {
	return &Error{
		Phase:  PhaseExecute,
		Kind:   KindExecution,
		File:   file,
		Line:   line,
		Detail: "script raised an exception",
		Cause:  cause,
	}
}

// Initialization reports a failure to create an execution unit
func Initialization(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseInit,
		Kind:   KindInitialization,
		Detail: detail,
		Cause:  cause,
	}
}

// Closed reports use of a destroyed component
func Closed(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Detail: fmt.Sprintf("%s is closed", component),
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target any) bool {
	return stderrors.As(err, target)
}
