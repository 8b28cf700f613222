package bridge

import (
	"fmt"
	"sync"

	"github.com/petermattis/goid"

	"github.com/wippyai/script-bridge/errors"
)

// currentContexts maps goroutine id to the Context made current on it by
// EnterThread. It is the only structure shared across goroutines.
var currentContexts sync.Map

// Current returns the Context current on the calling goroutine, or nil.
func Current() *Context {
	v, ok := currentContexts.Load(goid.Get())
	if !ok {
		return nil
	}
	return v.(*Context)
}

// ThreadScope makes a Context current on the calling goroutine until Exit,
// which restores exactly the previous value.
type ThreadScope struct {
	prev *Context
	gid  int64
	had  bool
	done bool
}

// EnterThread pushes c as current for the calling goroutine.
func EnterThread(c *Context) *ThreadScope {
	gid := goid.Get()
	s := &ThreadScope{gid: gid}
	if v, ok := currentContexts.Load(gid); ok {
		s.prev, s.had = v.(*Context), true
	}
	currentContexts.Store(gid, c)
	return s
}

// Exit restores the previous current Context. Extra calls do nothing.
func (s *ThreadScope) Exit() {
	if s == nil || s.done {
		return
	}
	s.done = true
	if s.had {
		currentContexts.Store(s.gid, s.prev)
	} else {
		currentContexts.Delete(s.gid)
	}
}

// RealmScope enters a realm of a Context for the duration of one bridge
// operation. An invalid scope changes nothing; the operation must fail
// with Err.
type RealmScope struct {
	ctx    *Context
	thread *ThreadScope
	prev   *Realm
	err    error
	valid  bool
}

// EnterRealm validates that the calling goroutine owns c and that realm
// belongs to c, then makes c current and realm its active realm.
func EnterRealm(c *Context, realm *Realm) *RealmScope {
	return enterRealm(c, realm, "EnterRealm")
}

func enterRealm(c *Context, realm *Realm, op string) *RealmScope {
	s := &RealmScope{ctx: c}
	switch {
	case c == nil:
		s.err = errors.InvalidInput(errors.PhaseThread, op+": no context")
	case c.state == StateDestroyed:
		s.err = errors.Closed(errors.PhaseThread, "context")
	default:
		if caller := goid.Get(); caller != c.owner {
			s.err = errors.WrongThread(op, c.owner, caller)
		} else if realm == nil || realm.ctx != c {
			s.err = errors.InvalidInput(errors.PhaseThread, op+": realm belongs to another context")
		}
	}
	if s.err != nil {
		if c == nil && debugAsserts {
			panic(s.err)
		}
		return s
	}

	s.valid = true
	s.thread = EnterThread(c)
	s.prev = c.current
	c.current = realm
	return s
}

func (s *RealmScope) IsValid() bool {
	return s.valid
}

// Err returns why the scope is invalid, or nil.
func (s *RealmScope) Err() error {
	return s.err
}

// Exit restores the previous realm and current Context.
func (s *RealmScope) Exit() {
	if !s.valid {
		return
	}
	s.valid = false
	s.ctx.current = s.prev
	s.thread.Exit()
}

// onOwner reports whether the caller may touch c's runtime state. Used by
// trap and wrapper callbacks that cannot return an error.
func onOwner(c *Context, op string) bool {
	ok := c != nil && c.state != StateDestroyed && goid.Get() == c.owner
	if !ok && debugAsserts {
		panic(fmt.Sprintf("bridge: %s without a valid bound context", op))
	}
	return ok
}
