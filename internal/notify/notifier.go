// Package notify delivers engine callbacks from a single goroutine.
//
// Producers enqueue without blocking; a dedicated goroutine drains the queue
// in FIFO order, so events of one task are never reordered and a consumer is
// never re-entered concurrently.
package notify

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/tanq16/rangefetch/internal/utils"
)

type delivery struct {
	cb Callback
	ev Event
}

type Notifier struct {
	mu     sync.Mutex
	queue  []delivery
	wake   chan struct{}
	closed bool
	done   chan struct{}
	idle   *sync.Cond
	busy   bool
	log    zerolog.Logger
}

func New() *Notifier {
	n := &Notifier{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
		log:  utils.GetLogger("notifier"),
	}
	n.idle = sync.NewCond(&n.mu)
	go n.loop()
	return n
}

// Notify enqueues ev for cb. It returns false once the notifier is closed.
func (n *Notifier) Notify(cb Callback, ev Event) bool {
	if cb == nil {
		return false
	}
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return false
	}
	n.queue = append(n.queue, delivery{cb: cb, ev: ev})
	n.mu.Unlock()
	select {
	case n.wake <- struct{}{}:
	default:
	}
	return true
}

func (n *Notifier) loop() {
	defer close(n.done)
	for {
		n.mu.Lock()
		for len(n.queue) == 0 {
			n.busy = false
			n.idle.Broadcast()
			if n.closed {
				n.mu.Unlock()
				return
			}
			n.mu.Unlock()
			<-n.wake
			n.mu.Lock()
		}
		batch := n.queue
		n.queue = nil
		n.busy = true
		n.mu.Unlock()
		for _, d := range batch {
			n.deliver(d)
		}
	}
}

func (n *Notifier) deliver(d delivery) {
	defer func() {
		if r := recover(); r != nil {
			n.log.Error().Str("op", "notify/deliver").Str("task", d.ev.TaskID).Str("event", d.ev.Type.String()).Interface("panic", r).Msg("Callback panicked")
		}
	}()
	dispatch(d.cb, d.ev)
}

// Flush blocks until every event enqueued so far has been delivered or ctx
// ends. The waiting goroutine exits with it in both cases.
func (n *Notifier) Flush(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		n.mu.Lock()
		n.idle.Broadcast()
		n.mu.Unlock()
	})
	defer stop()
	n.mu.Lock()
	defer n.mu.Unlock()
	for len(n.queue) > 0 || n.busy {
		if err := ctx.Err(); err != nil {
			return err
		}
		n.idle.Wait()
	}
	return nil
}

// Close stops accepting events and waits until the queue is drained.
func (n *Notifier) Close(ctx context.Context) error {
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()
	select {
	case n.wake <- struct{}{}:
	default:
	}
	select {
	case <-n.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
