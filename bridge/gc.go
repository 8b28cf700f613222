package bridge

import (
	"runtime"
	"sync/atomic"

	"go.uber.org/zap"

	scriptbridge "github.com/wippyai/script-bridge"
	"github.com/wippyai/script-bridge/binding"
)

// finalizeQueue is a lock-free stack of bindings whose script side was
// collected. Go runtime cleanups push from their own goroutine; the owning
// goroutine drains during a collection pass.
type finalizeQueue struct {
	head atomic.Pointer[finalizeNode]
	n    atomic.Int64
}

type finalizeNode struct {
	next   *finalizeNode
	handle binding.Handle
}

func (q *finalizeQueue) push(h binding.Handle) {
	node := &finalizeNode{handle: h}
	for {
		old := q.head.Load()
		node.next = old
		if q.head.CompareAndSwap(old, node) {
			q.n.Add(1)
			return
		}
	}
}

// drain takes every queued handle, oldest first.
func (q *finalizeQueue) drain() []binding.Handle {
	node := q.head.Swap(nil)
	var out []binding.Handle
	for ; node != nil; node = node.next {
		out = append(out, node.handle)
	}
	q.n.Add(-int64(len(out)))
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func (q *finalizeQueue) pending() int {
	return int(q.n.Load())
}

// GarbageCollect runs a collection pass. With force the Go collector runs
// first so unreachable proxies get queued. Calls made while a pass is
// already running do nothing.
//
// During the pass bindings of collected script values are unregistered,
// but native releases and explicit unbinds are queued; they are applied
// exactly once when the pass finishes.
func (c *Context) GarbageCollect(force bool) error {
	scope := c.enter("GarbageCollect")
	defer scope.Exit()
	if !scope.IsValid() {
		return scope.Err()
	}
	c.collect(force)
	return nil
}

func (c *Context) collect(force bool) {
	if c.collecting {
		return
	}
	c.collecting = true

	if force {
		runtime.GC()
	}

	finalized, roots := 0, 0
	for _, r := range c.realms {
		for _, h := range r.queue.drain() {
			if r.finalize(h) {
				finalized++
			}
		}
		// cleanups run on their own goroutines after the cycle; weak
		// pointers are already cleared when runtime.GC returns
		for _, h := range r.collected() {
			if r.finalize(h) {
				finalized++
			}
		}
		roots += r.traceAccessors()
	}

	c.collecting = false
	c.sinceCollect = 0
	c.collections++
	c.onCollectFinished()

	c.log.Debug("collection pass",
		zap.Bool("force", force),
		zap.Int("finalized", finalized),
		zap.Int("roots", roots),
		zap.Int("bindings", c.main.table.Len()))
}

// collected returns the bindings whose script side the Go collector has
// reclaimed but whose cleanup has not been queued yet.
func (r *Realm) collected() []binding.Handle {
	var dead []binding.Handle
	r.table.Each(func(h binding.Handle, _ binding.Kind, v any) bool {
		switch b := v.(type) {
		case *proxyBinding:
			if b.proxy.Value() == nil {
				dead = append(dead, h)
			}
		case *scriptBinding:
			if b.wrapper.Value() == nil {
				dead = append(dead, h)
			}
		}
		return true
	})
	return dead
}

// onCollectFinished applies the teardown queued during the pass.
func (c *Context) onCollectFinished() {
	unbinds := c.pendingUnbinds
	c.pendingUnbinds = nil
	for _, h := range unbinds {
		c.main.unbind(h)
	}

	releases := c.pendingReleases
	c.pendingReleases = nil
	for _, obj := range releases {
		obj.Release()
	}
}

// releaseNative drops the bridge's reference to obj, deferring it while a
// pass is running.
func (c *Context) releaseNative(obj scriptbridge.Object) {
	if c.collecting {
		c.pendingReleases = append(c.pendingReleases, obj)
		return
	}
	obj.Release()
}

// noteBinding counts a new binding toward the automatic collection
// threshold.
func (c *Context) noteBinding() {
	c.sinceCollect++
	if c.opts.GCThreshold > 0 && c.sinceCollect >= c.opts.GCThreshold {
		c.collect(false)
	}
}
