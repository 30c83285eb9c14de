package bus

import (
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/feedwatch/feedwatch/pkg/log"
	"github.com/feedwatch/feedwatch/pkg/record"
)

// Topic name building blocks. A message topic always has exactly three
// segments: {direction}/{actor}/{entity}.
const (
	PrefixIn  = "inputs"
	PrefixOut = "output"
	Separator = "/"
)

// Callback receives the topic it was registered against and the published
// record. It runs synchronously on the publisher's goroutine.
type Callback func(topic string, rec record.Record)

// Bus is a topic → subscribers routing table with synchronous fan-out.
// Subscriptions happen during actor construction; Publish may then be called
// concurrently from monitor goroutines.
type Bus struct {
	mu            sync.RWMutex
	subscriptions map[string][]Callback
	logger        zerolog.Logger
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{
		subscriptions: make(map[string][]Callback),
		logger:        log.WithComponent("bus"),
	}
}

// Subscribe appends the callback to the topic's subscriber list. Subscribing
// the same callback twice means it runs twice per publish.
func (b *Bus) Subscribe(topic string, cb Callback) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger.Debug().Str("topic", topic).Msg("subscription added")
	b.subscriptions[topic] = append(b.subscriptions[topic], cb)
}

// Publish synchronously invokes every subscriber of the topic in
// subscription order. A topic with no subscribers is a no-op. Subscriber
// panics are not caught here; failure boundaries belong to actor dispatch.
func (b *Bus) Publish(topic string, rec record.Record) {
	b.mu.RLock()
	subscribers := b.subscriptions[topic]
	snapshot := make([]Callback, len(subscribers))
	copy(snapshot, subscribers)
	b.mu.RUnlock()

	if len(snapshot) > 0 {
		b.logger.Debug().Str("topic", topic).Str("record", rec.Debug()).Msg("publishing")
	}
	for _, cb := range snapshot {
		cb(topic, rec)
	}
}

// MakeTopic joins segments with the topic separator.
func MakeTopic(parts ...string) string {
	return strings.Join(parts, Separator)
}

// IncomingTopicFor returns the topic an actor's entity consumes from.
func IncomingTopicFor(actor, entity string) string {
	return MakeTopic(PrefixIn, actor, entity)
}

// OutgoingTopicFor returns the topic an actor's entity produces to.
func OutgoingTopicFor(actor, entity string) string {
	return MakeTopic(PrefixOut, actor, entity)
}

// SplitMessageTopic splits a three-segment message topic into its actor and
// entity names.
func SplitMessageTopic(topic string) (actor, entity string, err error) {
	parts := strings.Split(topic, Separator)
	if len(parts) != 3 {
		return "", "", fmt.Errorf("failed to split message topic %q", topic)
	}
	return parts[1], parts[2], nil
}

var (
	defaultBus  *Bus
	defaultOnce sync.Once
)

// Default returns the process-wide bus. Actors receive the bus at
// construction, so tests can substitute a fresh one; Default exists for the
// production wiring convenience only.
func Default() *Bus {
	defaultOnce.Do(func() {
		defaultBus = New()
	})
	return defaultBus
}
