package main

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	scriptbridge "github.com/wippyai/script-bridge"
	"github.com/wippyai/script-bridge/bridge"
	"github.com/wippyai/script-bridge/engine"
	"github.com/wippyai/script-bridge/variant"
)

const maxHistory = 200

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	outputStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#AAAAAA"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// printBuffer collects print() output between evaluations.
type printBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *printBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *printBuffer) take() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.buf.String()
	b.buf.Reset()
	return s
}

type lineKind int

const (
	lineInput lineKind = iota
	lineOutput
	lineResult
	lineError
)

type line struct {
	kind lineKind
	text string
}

type replModel struct {
	worker  *engine.Worker
	printed *printBuffer
	input   textinput.Model
	lines   []line
	count   int
	running bool
}

type evalMsg struct {
	err    error
	result string
	output string
}

func newReplModel(w *engine.Worker, printed *printBuffer) *replModel {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.PromptStyle = promptStyle
	ti.Placeholder = "script, .snapshot, .gc or .exit"
	ti.Width = 80
	ti.Focus()
	return &replModel{worker: w, printed: printed, input: ti}
}

func (m *replModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *replModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			if m.running {
				m.worker.Interrupt("interrupted")
				return m, nil
			}
			return m, tea.Quit

		case "enter":
			if m.running {
				return m, nil
			}
			text := strings.TrimSpace(m.input.Value())
			m.input.SetValue("")
			if text == "" {
				return m, nil
			}
			if text == ".exit" || text == ".quit" {
				return m, tea.Quit
			}
			m.push(line{lineInput, text})
			m.running = true
			return m, m.eval(text)
		}

	case evalMsg:
		m.running = false
		if msg.output != "" {
			for _, l := range strings.Split(strings.TrimRight(msg.output, "\n"), "\n") {
				m.push(line{lineOutput, l})
			}
		}
		if msg.err != nil {
			m.push(line{lineError, msg.err.Error()})
		} else if msg.result != "" {
			m.push(line{lineResult, msg.result})
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *replModel) push(l line) {
	m.lines = append(m.lines, l)
	if len(m.lines) > maxHistory {
		m.lines = m.lines[len(m.lines)-maxHistory:]
	}
}

// eval runs one REPL entry on the worker.
func (m *replModel) eval(text string) tea.Cmd {
	m.count++
	name := fmt.Sprintf("repl:%d", m.count)
	return func() tea.Msg {
		var v variant.Variant
		var err error
		switch text {
		case ".snapshot":
			var snap bridge.Snapshot
			_, err = m.worker.Do(func(c *bridge.Context) (variant.Variant, error) {
				var err error
				snap, err = c.Snapshot()
				return variant.Null(), err
			})
			if err == nil {
				return evalMsg{output: m.printed.take(), result: formatSnapshot(snap)}
			}
		case ".gc":
			_, err = m.worker.Do(func(c *bridge.Context) (variant.Variant, error) {
				return variant.Null(), c.GarbageCollect(true)
			})
		default:
			v, err = m.worker.Execute(scriptbridge.Source{Name: name, Text: text})
		}
		res := evalMsg{err: err, output: m.printed.take()}
		if err == nil && !v.IsNull() {
			res.result = v.String()
		}
		return res
	}
}

func formatSnapshot(s bridge.Snapshot) string {
	return fmt.Sprintf("state=%s bindings=%d proxies=%d script_objects=%d classes=%d accessors=%d programs=%d collections=%d pending=%d",
		s.State, s.Bindings, s.Proxies, s.ScriptObjects, s.Classes, s.Accessors, s.CachedPrograms, s.Collections, s.PendingReleases+s.PendingFinalizers)
}

func (m *replModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Script Bridge"))
	b.WriteString(" ")
	b.WriteString(m.worker.Context().ID())
	b.WriteString("\n\n")

	for _, l := range m.lines {
		switch l.kind {
		case lineInput:
			b.WriteString(promptStyle.Render("> " + l.text))
		case lineOutput:
			b.WriteString(outputStyle.Render(l.text))
		case lineResult:
			b.WriteString(resultStyle.Render(l.text))
		case lineError:
			b.WriteString(errorStyle.Render(l.text))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.running {
		b.WriteString(helpStyle.Render("running… ctrl+c interrupt"))
	} else {
		b.WriteString(m.input.View())
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter run • ctrl+c quit"))
	}
	return b.String()
}

func runInteractive(w *engine.Worker, s *setup) error {
	printed := &printBuffer{}
	s.redirect(printed)
	p := tea.NewProgram(newReplModel(w, printed), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
