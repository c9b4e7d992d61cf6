// Package events carries the host's command notifications ("pick control
// point", "apply transform") to whoever subscribed to them.
package events

import (
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Topic names a host command.
type Topic string

const (
	TopicPickControlPoint Topic = "pick-control-point"
	TopicApplyTransform   Topic = "apply-transform"
)

// Subscription identifies one registered handler. The zero value is never
// issued.
type Subscription struct {
	topic Topic
	id    uint64
}

// Valid reports whether s was returned by Subscribe.
func (s Subscription) Valid() bool { return s.id != 0 }

// Bus is a synchronous publish/subscribe hub. Safe for concurrent use.
type Bus struct {
	mu       sync.Mutex
	next     uint64
	handlers map[Topic]map[uint64]func()
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[Topic]map[uint64]func())}
}

// Subscribe registers fn for topic.
func (b *Bus) Subscribe(topic Topic, fn func()) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	if b.handlers[topic] == nil {
		b.handlers[topic] = make(map[uint64]func())
	}
	b.handlers[topic][b.next] = fn
	return Subscription{topic: topic, id: b.next}
}

// Unsubscribe removes the handler behind s. Unknown or zero handles are
// ignored.
func (b *Bus) Unsubscribe(s Subscription) {
	if !s.Valid() {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers[s.topic], s.id)
}

// Publish calls every handler of topic in subscription order and returns
// how many ran. Handlers run outside the bus lock so they may subscribe or
// unsubscribe.
func (b *Bus) Publish(topic Topic) int {
	b.mu.Lock()
	ids := make([]uint64, 0, len(b.handlers[topic]))
	for id := range b.handlers[topic] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(), len(ids))
	for i, id := range ids {
		fns[i] = b.handlers[topic][id]
	}
	b.mu.Unlock()

	log.WithFields(log.Fields{"topic": topic, "handlers": len(fns)}).Debug("publishing command")
	for _, fn := range fns {
		fn()
	}
	return len(fns)
}

// Subscribers is the number of handlers registered for topic.
func (b *Bus) Subscribers(topic Topic) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers[topic])
}
