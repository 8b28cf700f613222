package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/petermattis/goid"
	"go.uber.org/zap"

	scriptbridge "github.com/wippyai/script-bridge"
)

const defaultWriteTimeout = 5 * time.Second

// Session carries debug messages between one websocket client and a
// debug receiver. It serves HTTP: each request is upgraded to a websocket
// and becomes the session's connection until it closes. A session holds
// at most one connection.
type Session struct {
	log          *zap.Logger
	writeTimeout time.Duration

	mu       sync.Mutex
	conn     *websocket.Conn
	receiver scriptbridge.DebugMessageReceiver
}

var (
	_ scriptbridge.DebugMessageSender = (*Session)(nil)
	_ http.Handler                    = (*Session)(nil)
)

// NewSession creates a Session. A nil logger uses the package logger.
func NewSession(log *zap.Logger) *Session {
	if log == nil {
		log = Logger()
	}
	return &Session{log: log.Named("debug-transport"), writeTimeout: defaultWriteTimeout}
}

// Attach sets the receiver for incoming messages. Messages that arrive
// before a receiver is attached are dropped.
func (s *Session) Attach(r scriptbridge.DebugMessageReceiver) {
	s.mu.Lock()
	s.receiver = r
	s.mu.Unlock()
}

// Connected reports whether a client is connected.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// SendMessage writes msg to the connected client. It returns false when no
// client is connected or the write fails.
func (s *Session) SendMessage(msg scriptbridge.DebugMessage) bool {
	s.mu.Lock()
	c := s.conn
	s.mu.Unlock()
	if c == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
	defer cancel()
	if err := c.Write(ctx, websocket.MessageText, msg.Payload); err != nil {
		s.log.Warn("debug message write failed", zap.Error(err))
		return false
	}
	return true
}

// CreateMessage wraps raw bytes with the calling goroutine's id.
func (s *Session) CreateMessage(raw []byte) scriptbridge.DebugMessage {
	return scriptbridge.DebugMessage{Payload: raw, ThreadID: goid.Get()}
}

func (s *Session) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.Connected() {
		http.Error(w, "debugger already connected", http.StatusConflict)
		return
	}
	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("websocket accept failed", zap.Error(err))
		return
	}

	s.mu.Lock()
	if s.conn != nil {
		s.mu.Unlock()
		_ = c.Close(websocket.StatusPolicyViolation, "debugger already connected")
		return
	}
	s.conn = c
	s.mu.Unlock()
	s.log.Debug("debugger connected", zap.String("remote", r.RemoteAddr))

	err = s.readLoop(r.Context(), c)

	s.mu.Lock()
	s.conn = nil
	recv := s.receiver
	s.mu.Unlock()
	if recv != nil {
		recv.OnDisconnected()
	}
	s.log.Debug("debugger disconnected", zap.Error(err))
	_ = c.Close(websocket.StatusNormalClosure, "")
}

func (s *Session) readLoop(ctx context.Context, c *websocket.Conn) error {
	for {
		_, data, err := c.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			return err
		}
		s.mu.Lock()
		recv := s.receiver
		s.mu.Unlock()
		if recv == nil {
			s.log.Warn("debug message dropped: no receiver", zap.Int("bytes", len(data)))
			continue
		}
		recv.ReceiveMessage(s.CreateMessage(data))
	}
}
