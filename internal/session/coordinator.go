package session

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Coordinator keeps at most one send active for a view. Starting a new send
// cancels the previous one and waits for it to finish rolling back.
type Coordinator struct {
	transport Transport
	history   *History
	observer  Observer
	log       *zap.Logger

	mu     sync.Mutex
	active *activeSend
	seq    uint64
}

type activeSend struct {
	seq    uint64
	cancel context.CancelFunc
	done   chan struct{}
}

func NewCoordinator(t Transport, h *History, obs Observer, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{transport: t, history: h, observer: obs, log: log}
}

// Send runs question to completion. It returns PhaseCancelled if ctx is
// cancelled, Cancel is called, or another Send supersedes it.
func (c *Coordinator) Send(ctx context.Context, question string) Outcome {
	c.mu.Lock()
	for c.active != nil {
		prev := c.active
		prev.cancel()
		c.mu.Unlock()
		<-prev.done
		c.mu.Lock()
	}
	sendCtx, cancel := context.WithCancel(ctx)
	c.seq++
	cur := &activeSend{seq: c.seq, cancel: cancel, done: make(chan struct{})}
	c.active = cur
	c.mu.Unlock()

	defer func() {
		cancel()
		c.mu.Lock()
		if c.active == cur {
			c.active = nil
		}
		c.mu.Unlock()
		close(cur.done)
	}()

	log := c.log.With(zap.Uint64("send_seq", cur.seq))
	return NewReconciler(c.transport, c.history, c.observer, log).Run(sendCtx, question)
}

// Cancel stops the active send, if any, and reports whether there was one.
func (c *Coordinator) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return false
	}
	c.active.cancel()
	return true
}

// Active reports whether a send is in flight.
func (c *Coordinator) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}

// Wait blocks until the active send, if any, has finished.
func (c *Coordinator) Wait() {
	c.mu.Lock()
	cur := c.active
	c.mu.Unlock()
	if cur != nil {
		<-cur.done
	}
}
