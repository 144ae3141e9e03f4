package ftpclient

import (
	"context"
	"sync"
	"time"
)

// aLongTimeAgo is a non-zero time in the past, used to unblock pending I/O.
var aLongTimeAgo = time.Unix(1, 0)

type deadliner interface {
	SetDeadline(t time.Time) error
}

// watchdog applies the deadline of an operation's context to every socket
// the operation touches, and pulls the deadline in when the context is
// cancelled so blocked reads and writes return promptly.
type watchdog struct {
	mu       sync.Mutex
	deadline time.Time
	targets  []deadliner
	fired    bool
	stop     func() bool
}

func newWatchdog(ctx context.Context) *watchdog {
	w := &watchdog{}
	if d, ok := ctx.Deadline(); ok {
		w.deadline = d
	}
	w.stop = context.AfterFunc(ctx, w.fire)
	return w
}

// watch puts t under the operation's deadline.
func (w *watchdog) watch(t deadliner) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.targets = append(w.targets, t)
	if w.fired {
		_ = t.SetDeadline(aLongTimeAgo)
		return
	}
	_ = t.SetDeadline(w.deadline)
}

func (w *watchdog) fire() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.fired = true
	for _, t := range w.targets {
		_ = t.SetDeadline(aLongTimeAgo)
	}
}

// release detaches the watchdog from the context. Deadlines already set
// stay in place until the next operation replaces them.
func (w *watchdog) release() {
	w.stop()
	w.mu.Lock()
	w.targets = nil
	w.mu.Unlock()
}
