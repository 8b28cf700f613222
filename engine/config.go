package engine

import (
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/wippyai/script-bridge/bridge"
	"github.com/wippyai/script-bridge/errors"
)

// Config holds engine-wide settings. It is usually loaded from a TOML
// file with LoadConfig.
type Config struct {
	// DebugProtocol selects the handler registered with
	// RegisterDebugHandler that CreateDebugContext loads.
	DebugProtocol string `toml:"debug_protocol"`

	// ScriptRoot is the directory include() resolves against. Empty
	// disables include for contexts created without a resolver option.
	ScriptRoot string `toml:"script_root"`

	Policy PolicyConfig `toml:"policy"`

	// MaxContexts caps live contexts. 0 means unlimited.
	MaxContexts int `toml:"max_contexts"`

	// GCThreshold is the number of new bindings after which a context
	// runs a collection pass on its own. 0 disables automatic passes.
	GCThreshold int `toml:"gc_threshold"`

	// CompileWarmup is how many times a source compiles before its
	// program is cached. -1 disables caching.
	CompileWarmup int `toml:"compile_warmup"`

	TaskQueueSize int `toml:"task_queue_size"`
}

// PolicyConfig is the marshaling policy applied to every context.
type PolicyConfig struct {
	// Precedence is "methods" (default) or "properties".
	Precedence        string `toml:"precedence"`
	HideScriptObjects bool   `toml:"hide_script_objects"`
}

// DefaultConfig returns the settings used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		GCThreshold:   1024,
		CompileWarmup: 2,
		TaskQueueSize: 64,
	}
}

// LoadConfig reads a TOML config file over DefaultConfig. Unknown keys are
// rejected.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFound(errors.PhaseInit, "config", path)
		}
		return nil, errors.Wrap(errors.PhaseInit, errors.KindInvalidInput, err, "read config "+path)
	}
	return ParseConfig(string(data))
}

// ParseConfig decodes TOML text over DefaultConfig.
func ParseConfig(text string) (*Config, error) {
	cfg := DefaultConfig()
	md, err := toml.Decode(text, cfg)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseInit, errors.KindInvalidInput, err, "parse config")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, errors.InvalidInput(errors.PhaseInit, "unknown config keys: "+strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch {
	case c.MaxContexts < 0:
		return errors.InvalidInput(errors.PhaseInit, "max_contexts must not be negative")
	case c.GCThreshold < 0:
		return errors.InvalidInput(errors.PhaseInit, "gc_threshold must not be negative")
	case c.CompileWarmup < -1:
		return errors.InvalidInput(errors.PhaseInit, "compile_warmup must be -1 or more")
	case c.TaskQueueSize < 0:
		return errors.InvalidInput(errors.PhaseInit, "task_queue_size must not be negative")
	}
	if _, err := c.Policy.precedence(); err != nil {
		return err
	}
	return nil
}

func (p PolicyConfig) precedence() (bridge.Precedence, error) {
	switch p.Precedence {
	case "", "methods":
		return bridge.PrecedenceMethods, nil
	case "properties":
		return bridge.PrecedenceProperties, nil
	}
	return 0, errors.InvalidInput(errors.PhaseInit, "policy.precedence must be \"methods\" or \"properties\", got "+p.Precedence)
}
