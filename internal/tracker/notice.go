package tracker

import (
	"sync"
	"time"
)

// Notice is a transient confirmation message that hides itself after a
// delay. Dismissal never blocks the caller.
type Notice struct {
	Message string

	mu      sync.Mutex
	visible bool
	timer   *time.Timer
	done    chan struct{}
}

func newNotice(msg string, delay time.Duration) *Notice {
	n := &Notice{Message: msg, visible: true, done: make(chan struct{})}
	n.timer = time.AfterFunc(delay, n.Dismiss)
	return n
}

// Visible reports whether the notice is still showing.
func (n *Notice) Visible() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.visible
}

// Dismiss hides the notice early. Safe to call more than once.
func (n *Notice) Dismiss() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.visible {
		return
	}
	n.visible = false
	n.timer.Stop()
	close(n.done)
}

// Done is closed once the notice is hidden.
func (n *Notice) Done() <-chan struct{} {
	return n.done
}
