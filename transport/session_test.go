package transport

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	scriptbridge "github.com/wippyai/script-bridge"
	"github.com/wippyai/script-bridge/engine"
)

const echoHandler = `
function receiveMessage(payload, threadId) {
	sendDebugMessage("ack:" + payload);
}
function onDisconnected() {
	println("debugger gone");
}
`

// recorder is a receiver that records what reaches it.
type recorder struct {
	mu           sync.Mutex
	messages     []string
	disconnected chan struct{}
}

func (r *recorder) ReceiveMessage(msg scriptbridge.DebugMessage) {
	r.mu.Lock()
	r.messages = append(r.messages, string(msg.Payload))
	r.mu.Unlock()
}

func (r *recorder) OnDisconnected() {
	close(r.disconnected)
}

func startServer(t *testing.T, s *Session) string {
	t.Helper()
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSessionRoundTrip(t *testing.T) {
	cfg := engine.DefaultConfig()
	cfg.DebugProtocol = "echo"
	eng, err := engine.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer eng.Close()
	if err := eng.RegisterDebugHandler("echo", scriptbridge.Source{Name: "echo.js", Text: echoHandler}); err != nil {
		t.Fatal(err)
	}

	s := NewSession(nil)
	w, err := eng.SpawnDebug(s, nil)
	if err != nil {
		t.Fatal(err)
	}
	s.Attach(w.Debug())

	c := dial(t, startServer(t, s))
	defer c.CloseNow()
	waitFor(t, s.Connected)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Write(ctx, websocket.MessageText, []byte("ping")); err != nil {
		t.Fatal(err)
	}
	_, data, err := c.Read(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "ack:ping" {
		t.Fatalf("reply = %q", data)
	}

	if err := c.Close(websocket.StatusNormalClosure, ""); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return !s.Connected() })
	if s.SendMessage(s.CreateMessage([]byte("late"))) {
		t.Error("SendMessage succeeded without a client")
	}
}

func TestSessionDeliversAndDisconnects(t *testing.T) {
	s := NewSession(nil)
	rec := &recorder{disconnected: make(chan struct{})}
	s.Attach(rec)
	c := dial(t, startServer(t, s))
	defer c.CloseNow()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, m := range []string{"a", "b"} {
		if err := c.Write(ctx, websocket.MessageText, []byte(m)); err != nil {
			t.Fatal(err)
		}
	}
	waitFor(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.messages) == 2
	})
	if rec.messages[0] != "a" || rec.messages[1] != "b" {
		t.Errorf("messages = %v", rec.messages)
	}

	_ = c.Close(websocket.StatusNormalClosure, "")
	select {
	case <-rec.disconnected:
	case <-time.After(5 * time.Second):
		t.Fatal("OnDisconnected not called")
	}
}

func TestSessionSingleClient(t *testing.T) {
	s := NewSession(nil)
	s.Attach(&recorder{disconnected: make(chan struct{})})
	url := startServer(t, s)

	first := dial(t, url)
	defer first.CloseNow()
	waitFor(t, s.Connected)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	second, _, err := websocket.Dial(ctx, url, nil)
	if err == nil {
		second.CloseNow()
		t.Fatal("second debugger accepted")
	}
}
