package server

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/nymquest/nymquest/internal/transport"
)

// outboundMsg is one already-encoded envelope waiting to reach its
// transport tag.
type outboundMsg struct {
	tag     string
	payload []byte
}

// outboxCapacity is the bounded depth of each session's outbound queue,
// spec.md §4.8 ("bounded, drop-oldest on overflow with log").
const outboxCapacity = 64

// outbox is the per-session bounded FIFO queue feeding the transport
// send worker. It is the "SPSC channel (loop producer, I/O worker
// consumer)" spec.md §5 describes, implemented as a slice-backed queue
// since a Go channel can't drop its oldest element on overflow.
type outbox struct {
	log *log.Logger

	mu     sync.Mutex
	queues map[string][]outboundMsg
	notify chan struct{}
}

func newOutbox(logger *log.Logger) *outbox {
	return &outbox{
		log:    logger,
		queues: make(map[string][]outboundMsg),
		notify: make(chan struct{}, 1),
	}
}

// enqueue appends payload to tag's queue, dropping the oldest entry if
// the queue is already at capacity.
func (o *outbox) enqueue(tag string, payload []byte) {
	o.mu.Lock()
	q := o.queues[tag]
	if len(q) >= outboxCapacity {
		q = q[1:]
		if o.log != nil {
			o.log.Warn("dropping oldest outbound message, queue full", "tag", tag)
		}
	}
	q = append(q, outboundMsg{tag: tag, payload: payload})
	o.queues[tag] = q
	o.mu.Unlock()

	select {
	case o.notify <- struct{}{}:
	default:
	}
}

// drain removes and returns every currently queued message, FIFO within
// each session, across all sessions.
func (o *outbox) drain() []outboundMsg {
	o.mu.Lock()
	defer o.mu.Unlock()

	var all []outboundMsg
	for tag, q := range o.queues {
		all = append(all, q...)
		delete(o.queues, tag)
	}
	return all
}

// dropSession discards any queued messages for tag, e.g. on session
// teardown.
func (o *outbox) dropSession(tag string) {
	o.mu.Lock()
	delete(o.queues, tag)
	o.mu.Unlock()
}

// runSender drains newly enqueued messages and hands them to transport
// until ctx is canceled. It runs on its own goroutine so a slow or
// blocked transport send never stalls the event loop.
func runSender(ctx context.Context, o *outbox, t transport.Transport, logger *log.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-o.notify:
		}
		for _, msg := range o.drain() {
			if err := t.Send(ctx, msg.tag, msg.payload); err != nil && logger != nil {
				logger.Debug("outbound send failed", "tag", msg.tag, "err", err)
			}
		}
	}
}
