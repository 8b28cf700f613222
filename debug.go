package scriptbridge

// DebugMessage is an opaque protocol payload tagged with the goroutine it
// originated on.
type DebugMessage struct {
	Payload  []byte
	ThreadID int64
}

// DebugMessageSender carries handler output to an external debugger.
type DebugMessageSender interface {
	// SendMessage reports false when the message could not be delivered
	SendMessage(msg DebugMessage) bool
	CreateMessage(raw []byte) DebugMessage
}

// DebugMessageReceiver accepts inbound debugger traffic.
type DebugMessageReceiver interface {
	ReceiveMessage(msg DebugMessage)
	OnDisconnected()
}
