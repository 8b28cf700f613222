package scriptbridge

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/wippyai/script-bridge/errors"
)

func TestSource(t *testing.T) {
	s := Source{Name: "a/main.js", Package: "app", Text: "1+1", Line: 10}
	code, err := s.Code()
	if err != nil {
		t.Fatal(err)
	}
	if code.FileName != "a/main.js" || code.Line != 10 || code.Text != "1+1" {
		t.Errorf("Code() = %+v", code)
	}
	if s.PackageID() != "app" {
		t.Errorf("PackageID() = %q", s.PackageID())
	}
}

func TestDirResolver(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "lib"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "lib", "util.js"), []byte("var util = 1"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "top.js"), []byte("var top = 1"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := DirResolver{Root: root}
	from := Source{Name: "lib/main.js", Package: "pkg"}

	tests := []struct {
		name string
		want string
	}{
		{"util.js", "lib/util.js"},
		{"../top.js", "top.js"},
		{"/top.js", "top.js"},
		{"/lib/util.js", "lib/util.js"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := r.ResolveIncludeFile(tt.name, from)
			if err != nil {
				t.Fatalf("ResolveIncludeFile: %v", err)
			}
			if s.Path() != tt.want {
				t.Errorf("Path() = %q, want %q", s.Path(), tt.want)
			}
			if s.PackageID() != "pkg" {
				t.Errorf("PackageID() = %q, want inherited pkg", s.PackageID())
			}
		})
	}

	if _, err := r.ResolveIncludeFile("missing.js", from); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if _, err := r.ResolveIncludeFile("../../../etc/passwd", from); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("escaping root should stay under root, got %v", err)
	}
}

func TestTypeInfo(t *testing.T) {
	mod := &Module{Name: "ui"}
	base := &TypeInfo{Name: "Base", Methods: []string{"show"}, Properties: []string{"id"}, Module: mod}
	child := &TypeInfo{Name: "Child", Parent: base, Methods: []string{"click"}}

	if !child.HasMethod("show") || !child.HasMethod("click") {
		t.Error("HasMethod should walk parents")
	}
	if child.HasMethod("id") || !child.HasProperty("id") {
		t.Error("HasProperty mismatch")
	}
	if base.ModuleName() != "ui" || child.ModuleName() != "" {
		t.Error("ModuleName mismatch")
	}
}
