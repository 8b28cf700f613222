package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wippyai/script-bridge/errors"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.toml")
	text := `
debug_protocol = "v8-inspector"
script_root = "scripts"
max_contexts = 4
compile_warmup = -1

[policy]
precedence = "properties"
hide_script_objects = true
`
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	want := &Config{
		DebugProtocol: "v8-inspector",
		ScriptRoot:    "scripts",
		Policy:        PolicyConfig{Precedence: "properties", HideScriptObjects: true},
		MaxContexts:   4,
		GCThreshold:   DefaultConfig().GCThreshold,
		CompileWarmup: -1,
		TaskQueueSize: DefaultConfig().TaskQueueSize,
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigMissing(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	if !errors.Is(err, errors.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestParseConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"syntax", "max_contexts = "},
		{"unknown key", "max_context = 1"},
		{"unknown nested key", "[policy]\norder = 1"},
		{"negative max", "max_contexts = -1"},
		{"negative threshold", "gc_threshold = -5"},
		{"warmup", "compile_warmup = -2"},
		{"precedence", "[policy]\nprecedence = \"fields\""},
		{"wrong type", "max_contexts = \"four\""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig(tt.text)
			if !errors.Is(err, &errors.Error{Kind: errors.KindInvalidInput}) {
				t.Fatalf("err = %v, want invalid_input", err)
			}
		})
	}
}

func TestParseConfigEmpty(t *testing.T) {
	cfg, err := ParseConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Errorf("empty config differs from defaults:\n%s", diff)
	}
}
