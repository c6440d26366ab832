package task

import (
	"sync"

	"doctrans/internal/domain"
)

// subscriberBuffer is the per-observer channel capacity. An observer that
// falls this far behind the publisher is detached rather than allowed to
// stall delivery to everyone else.
const subscriberBuffer = 64

// Bus fans progress events out to per-task observers. Each task owns one
// multicast channel; new observers first receive a replay of the latest
// known event, then everything published afterwards in order.
type Bus struct {
	mu       sync.Mutex
	channels map[string]*taskChannel
}

type taskChannel struct {
	last     *domain.ProgressEvent
	terminal bool
	subs     map[chan domain.ProgressEvent]struct{}
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{channels: make(map[string]*taskChannel)}
}

// Open allocates the channel for a newly created task. Idempotent.
func (b *Bus) Open(taskID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.channels[taskID]; !ok {
		b.channels[taskID] = &taskChannel{subs: make(map[chan domain.ProgressEvent]struct{})}
	}
}

// Publish delivers the event to every attached observer and retains it as
// the channel's latest known event. A terminal event closes the channel
// after delivery; later publishes for the task are dropped.
func (b *Bus) Publish(event domain.ProgressEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.channels[event.TaskID]
	if !ok || ch.terminal {
		return
	}

	ev := event
	ch.last = &ev
	for sub := range ch.subs {
		select {
		case sub <- event:
		default:
			// Slow observer: detach it instead of blocking the publisher.
			delete(ch.subs, sub)
			close(sub)
		}
	}

	if event.Kind.Terminal() {
		ch.terminal = true
		for sub := range ch.subs {
			close(sub)
		}
		ch.subs = make(map[chan domain.ProgressEvent]struct{})
	}
}

// Subscribe attaches an observer to a task's channel. The returned stream
// starts with a replay of the latest known event, if any. For a task that
// already reached a terminal state the stream carries the stored terminal
// event and is immediately closed. The cancel function detaches the
// observer; it never affects the task itself.
func (b *Bus) Subscribe(taskID string) (<-chan domain.ProgressEvent, func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.channels[taskID]
	if !ok {
		return nil, nil, domain.ErrNotFound
	}

	if ch.terminal {
		stream := make(chan domain.ProgressEvent, 1)
		if ch.last != nil {
			stream <- *ch.last
		}
		close(stream)
		return stream, func() {}, nil
	}

	stream := make(chan domain.ProgressEvent, subscriberBuffer)
	if ch.last != nil {
		stream <- *ch.last
	}
	ch.subs[stream] = struct{}{}

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if ch, ok := b.channels[taskID]; ok {
			if _, attached := ch.subs[stream]; attached {
				delete(ch.subs, stream)
				close(stream)
			}
		}
	}
	return stream, cancel, nil
}

// Latest returns the last published event for a task, if any.
func (b *Bus) Latest(taskID string) (domain.ProgressEvent, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.channels[taskID]
	if !ok || ch.last == nil {
		return domain.ProgressEvent{}, false
	}
	return *ch.last, true
}
