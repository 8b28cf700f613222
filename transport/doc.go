// Package transport connects a debug context to a remote debugger over a
// websocket.
//
// A Session is both the DebugMessageSender given to the debug context and
// the http.Handler the debugger connects to:
//
//	s := transport.NewSession(log)
//	w, err := eng.SpawnDebug(s, nil)
//	s.Attach(w.Debug())
//	http.ListenAndServe(addr, s)
//
// Incoming text or binary frames are delivered to the receiver as debug
// messages; handler output is written back as text frames. Closing the
// connection calls the receiver's OnDisconnected.
package transport
