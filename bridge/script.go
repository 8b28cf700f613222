package bridge

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	scriptbridge "github.com/wippyai/script-bridge"
	"github.com/wippyai/script-bridge/errors"
	"github.com/wippyai/script-bridge/variant"
)

// Severity of a script error report.
type Severity uint8

const (
	SeverityError Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}
	return "error"
}

// Report describes an uncaught script error.
type Report struct {
	Err      error
	Message  string
	FileName string
	Line     int
	Severity Severity
}

// Reporter receives uncaught script errors of a Context.
type Reporter interface {
	Report(Report)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(Report)

func (f ReporterFunc) Report(r Report) { f(r) }

// Interceptor sees every report before the Context's Reporter. It decides
// whether and how to forward to next, which is never nil.
type Interceptor func(r Report, next Reporter)

type nopReporter struct{}

func (nopReporter) Report(Report) {}

var (
	syntaxLocation = regexp.MustCompile(`Line (\d+):(\d+)`)
	stackLocation  = regexp.MustCompile(`([^\s()]+):(\d+):(\d+)\(\d+\)`)
	position       = regexp.MustCompile(`:(\d+):(\d+)$`)
)

// compileEntry counts compilations of one source and holds the program
// once the warmup count is passed.
type compileEntry struct {
	prog *goja.Program
	uses int
}

// CompiledScript is a script compiled for one Context.
type CompiledScript struct {
	ctx    *Context
	script scriptbridge.Script
	prog   *goja.Program
}

// Script returns the source the program was compiled from.
func (s *CompiledScript) Script() scriptbridge.Script {
	return s.script
}

// Run evaluates the program in the context's main realm.
func (s *CompiledScript) Run() (variant.Variant, error) {
	scope := s.ctx.enter("CompiledScript.Run")
	defer scope.Exit()
	if !scope.IsValid() {
		return variant.Null(), scope.Err()
	}
	return s.ctx.run(s.script, s.prog)
}

// ExecuteScript compiles and evaluates s in the main realm and returns the
// completion value.
func (c *Context) ExecuteScript(s scriptbridge.Script) (variant.Variant, error) {
	scope := c.enter("ExecuteScript")
	defer scope.Exit()
	if !scope.IsValid() {
		return variant.Null(), scope.Err()
	}
	prog, err := c.compileScript(s)
	if err != nil {
		return variant.Null(), err
	}
	return c.run(s, prog)
}

// CompileScript compiles s without running it.
func (c *Context) CompileScript(s scriptbridge.Script) (*CompiledScript, error) {
	scope := c.enter("CompileScript")
	defer scope.Exit()
	if !scope.IsValid() {
		return nil, scope.Err()
	}
	prog, err := c.compileScript(s)
	if err != nil {
		return nil, err
	}
	return &CompiledScript{ctx: c, script: s, prog: prog}, nil
}

func (c *Context) compileScript(s scriptbridge.Script) (*goja.Program, error) {
	if s == nil {
		return nil, errors.InvalidInput(errors.PhaseCompile, "nil script")
	}
	code, err := s.Code()
	if err != nil {
		return nil, errors.Compilation(s.Path(), 0, err)
	}
	prog, err := c.compile(code, s.Path())
	if err != nil {
		return nil, c.scriptError(err, s.Path())
	}
	return prog, nil
}

// compile turns code into a program, padding the source so reported lines
// match code.Line.
func (c *Context) compile(code scriptbridge.Code, path string) (*goja.Program, error) {
	name := code.FileName
	if name == "" {
		name = path
	}
	text := code.Text
	if code.Line > 1 {
		text = strings.Repeat("\n", code.Line-1) + text
	}

	key := name + "\x00" + text
	entry := c.programs[key]
	if entry != nil && entry.prog != nil {
		return entry.prog, nil
	}

	prog, err := goja.Compile(name, text, false)
	if err != nil {
		return nil, err
	}
	if c.opts.CompileWarmup < 0 {
		return prog, nil
	}
	if entry == nil {
		entry = &compileEntry{}
		c.programs[key] = entry
	}
	entry.uses++
	if entry.uses > c.opts.CompileWarmup {
		entry.prog = prog
		c.log.Debug("program cached", zap.String("file", name), zap.Int("uses", entry.uses))
	}
	return prog, nil
}

func (c *Context) run(s scriptbridge.Script, prog *goja.Program) (variant.Variant, error) {
	c.pushFrame(s)
	defer c.popFrame()
	c.activate()

	v, err := c.main.rt.RunProgram(prog)
	if err != nil {
		return variant.Null(), c.scriptError(err, s.Path())
	}
	return c.main.unmarshal(v)
}

func (c *Context) pushFrame(s scriptbridge.Script) {
	c.frames = append(c.frames, s)
}

func (c *Context) popFrame() {
	c.frames = c.frames[:len(c.frames)-1]
}

// topFrame returns the innermost running script, or nil.
func (c *Context) topFrame() scriptbridge.Script {
	if len(c.frames) == 0 {
		return nil
	}
	return c.frames[len(c.frames)-1]
}

func (c *Context) topFrameName() string {
	if s := c.topFrame(); s != nil {
		return s.Path()
	}
	return ""
}

// Frames returns the paths of the running scripts, outermost first.
func (c *Context) Frames() []string {
	out := make([]string, len(c.frames))
	for i, s := range c.frames {
		out[i] = s.Path()
	}
	return out
}

// include is the script-visible include(name). It resolves name relative
// to the innermost running script and evaluates it in the same realm.
func (c *Context) include(call goja.FunctionCall) goja.Value {
	r := c.main
	if !onOwner(c, "include") {
		return goja.Undefined()
	}
	if c.opts.Includes == nil {
		panic(r.rt.NewGoError(errors.Unsupported(errors.PhaseExecute, "include: no resolver configured")))
	}

	name := call.Argument(0).String()
	s, err := c.opts.Includes.ResolveIncludeFile(name, c.topFrame())
	if err != nil {
		panic(r.rt.NewGoError(err))
	}
	for _, f := range c.frames {
		if f.Path() == s.Path() {
			panic(r.rt.NewTypeError("include cycle: %s", strings.Join(append(c.Frames(), s.Path()), " -> ")))
		}
	}

	code, err := s.Code()
	if err != nil {
		panic(r.rt.NewGoError(err))
	}
	prog, err := c.compile(code, s.Path())
	if err != nil {
		panic(r.rt.NewGoError(err))
	}

	c.pushFrame(s)
	defer c.popFrame()
	v, err := r.rt.RunProgram(prog)
	if err != nil {
		if ex, ok := err.(*goja.Exception); ok {
			panic(ex.Value())
		}
		panic(r.rt.NewGoError(err))
	}
	return v
}

// scriptError converts a goja error to a bridge error and reports it.
// Interrupts are reported as warnings.
func (c *Context) scriptError(err error, file string) error {
	var se *goja.CompilerSyntaxError
	var ie *goja.InterruptedError
	var ex *goja.Exception

	rep := Report{Err: err, FileName: file, Severity: SeverityError}
	var out error
	switch {
	case errors.As(err, &se):
		rep.Line = submatchInt(syntaxLocation, se.Error(), 1)
		if rep.Line == 0 {
			rep.Line = submatchInt(position, se.Error(), 1)
		}
		rep.Message = se.Message
		out = errors.Compilation(file, rep.Line, err)
	case errors.As(err, &ie):
		c.main.rt.ClearInterrupt()
		rep.Severity = SeverityWarning
		rep.Message = ie.Error()
		out = errors.Wrap(errors.PhaseExecute, errors.KindExecution, err, "script interrupted")
	case errors.As(err, &ex):
		if m := stackLocation.FindStringSubmatch(ex.String()); m != nil {
			rep.FileName = m[1]
			rep.Line, _ = strconv.Atoi(m[2])
		}
		rep.Message = exceptionMessage(ex)
		out = errors.Execution(rep.FileName, rep.Line, err)
	default:
		if _, ok := err.(*errors.Error); ok {
			return err
		}
		rep.Message = err.Error()
		out = errors.Execution(file, 0, err)
	}
	rep.Err = out
	c.report(rep)
	return out
}

func exceptionMessage(ex *goja.Exception) string {
	if v := ex.Value(); v != nil {
		return v.String()
	}
	return ex.Error()
}

func submatchInt(re *regexp.Regexp, s string, group int) int {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[group])
	return n
}

// report routes r through the interceptor to the Reporter.
func (c *Context) report(r Report) {
	c.log.Warn("script error",
		zap.String("severity", r.Severity.String()),
		zap.String("file", r.FileName),
		zap.Int("line", r.Line),
		zap.String("message", r.Message))

	var next Reporter = nopReporter{}
	if c.opts.Reporter != nil {
		next = c.opts.Reporter
	}
	if c.opts.Interceptor != nil {
		c.opts.Interceptor(r, next)
		return
	}
	next.Report(r)
}
