package scriptbridge

import (
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/wippyai/script-bridge/errors"
)

// Script is a unit of source code handed to a Context.
type Script interface {
	// Path identifies the script, and anchors relative includes
	Path() string
	PackageID() string
	Code() (Code, error)
}

// Code is the source text plus its reported origin. Line is the 1-based
// line the text starts at in FileName; 0 means 1.
type Code struct {
	Text     string
	FileName string
	Line     int
}

// IncludeResolver resolves include(name) calls made while from is running.
type IncludeResolver interface {
	ResolveIncludeFile(name string, from Script) (Script, error)
}

// Source is an in-memory Script.
type Source struct {
	Name    string
	Package string
	Text    string
	Line    int
}

func (s Source) Path() string      { return s.Name }
func (s Source) PackageID() string { return s.Package }

func (s Source) Code() (Code, error) {
	return Code{Text: s.Text, FileName: s.Name, Line: s.Line}, nil
}

// DirResolver loads includes from files under Root. Names are resolved
// relative to the including script's directory; names starting with "/"
// are resolved from Root.
type DirResolver struct {
	Root    string
	Package string
}

func (r DirResolver) ResolveIncludeFile(name string, from Script) (Script, error) {
	if name == "" {
		return nil, errors.InvalidInput(errors.PhaseExecute, "empty include name")
	}

	var rel string
	if strings.HasPrefix(name, "/") || from == nil {
		rel = path.Clean("/" + name)
	} else {
		rel = path.Join("/", path.Dir(from.Path()), name)
	}
	rel = strings.TrimPrefix(rel, "/")

	data, err := os.ReadFile(filepath.Join(r.Root, filepath.FromSlash(rel)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFound(errors.PhaseExecute, "include", name)
		}
		return nil, errors.Wrap(errors.PhaseExecute, errors.KindExecution, err, "read include "+name)
	}

	pkg := r.Package
	if pkg == "" && from != nil {
		pkg = from.PackageID()
	}
	return Source{Name: rel, Package: pkg, Text: string(data)}, nil
}

// LoadFile reads a script from disk.
func LoadFile(name string) (Source, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		if os.IsNotExist(err) {
			return Source{}, errors.NotFound(errors.PhaseCompile, "script", name)
		}
		return Source{}, errors.Wrap(errors.PhaseCompile, errors.KindCompilation, err, "read "+name)
	}
	return Source{Name: filepath.ToSlash(name), Text: string(data)}, nil
}
