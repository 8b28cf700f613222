package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/wippyai/script-bridge/bridge"
	"github.com/wippyai/script-bridge/native"
	"github.com/wippyai/script-bridge/variant"
	"github.com/wippyai/script-bridge/wasmobject"
)

type wasmModule struct {
	name    string
	globals []string
	data    []byte
}

// parseWasmFlags reads name=file.wasm[#global,...] specs. The name
// defaults to the file's base name.
func parseWasmFlags(specs []string) ([]wasmModule, error) {
	mods := make([]wasmModule, 0, len(specs))
	for _, spec := range specs {
		var m wasmModule
		path, globals, ok := strings.Cut(spec, "#")
		if ok && globals != "" {
			m.globals = strings.Split(globals, ",")
		}
		if name, file, ok := strings.Cut(path, "="); ok {
			m.name, path = name, file
		} else {
			m.name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read wasm %s: %w", path, err)
		}
		m.data = data
		mods = append(mods, m)
	}
	return mods, nil
}

// setup installs the CLI globals into each new context.
type setup struct {
	mu   sync.Mutex
	out  io.Writer
	mods []wasmModule
}

func newSetup(out io.Writer, mods []wasmModule) *setup {
	return &setup{out: out, mods: mods}
}

// redirect swaps the destination of print().
func (s *setup) redirect(w io.Writer) {
	s.mu.Lock()
	s.out = w
	s.mu.Unlock()
}

func (s *setup) print(args []variant.Variant) (variant.Variant, error) {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.String()
	}
	s.mu.Lock()
	fmt.Fprintln(s.out, strings.Join(parts, " "))
	s.mu.Unlock()
	return variant.Null(), nil
}

func (s *setup) install(c *bridge.Context) error {
	if err := c.RegisterGlobalFunction("print", native.NewFunc("print", s.print)); err != nil {
		return err
	}
	// each context gets its own instances; wasm modules are not shared
	// across goroutines
	for _, m := range s.mods {
		inst, err := wasmobject.Instantiate(context.Background(), m.data, wasmobject.Config{Name: m.name, Globals: m.globals})
		if err != nil {
			return fmt.Errorf("instantiate %s: %w", m.name, err)
		}
		if err := c.RegisterObject(m.name, inst); err != nil {
			_ = inst.Close()
			return err
		}
		go func() {
			<-c.Done()
			_ = inst.Close()
		}()
	}
	return nil
}
