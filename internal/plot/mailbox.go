package plot

import (
	"context"
	"sync"
)

// renderResult is what the worker deposits: image bytes or the render error.
type renderResult struct {
	image []byte
	err   error
}

// Mailbox is a single-slot rendezvous between the render worker and one
// waiting caller. Exactly one WaitForImage returns per deposit; a second
// concurrent waiter blocks until the next deposit.
type Mailbox struct {
	slot chan renderResult
}

func newMailbox() *Mailbox {
	return &Mailbox{slot: make(chan renderResult, 1)}
}

// WaitForImage blocks until the worker deposits a result, clears the slot,
// and returns the image bytes.
func (m *Mailbox) WaitForImage(ctx context.Context) ([]byte, error) {
	select {
	case r := <-m.slot:
		return r.image, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ForceEmpty discards a stale result left behind by a caller that gave up.
func (m *Mailbox) ForceEmpty() {
	select {
	case <-m.slot:
	default:
	}
}

// deposit places r in the slot. A stale result is replaced rather than
// blocking the worker.
func (m *Mailbox) deposit(r renderResult) {
	for {
		select {
		case m.slot <- r:
			return
		default:
			m.ForceEmpty()
		}
	}
}

// mailboxes hands out one mailbox per caller-chosen id, growing on demand.
type mailboxes struct {
	mu    sync.Mutex
	slots map[int]*Mailbox
}

func (b *mailboxes) at(id int) *Mailbox {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.slots == nil {
		b.slots = make(map[int]*Mailbox)
	}
	mb := b.slots[id]
	if mb == nil {
		mb = newMailbox()
		b.slots[id] = mb
	}
	return mb
}
