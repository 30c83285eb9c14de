package actor

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/feedwatch/feedwatch/pkg/bus"
	"github.com/feedwatch/feedwatch/pkg/log"
	"github.com/feedwatch/feedwatch/pkg/metrics"
	"github.com/feedwatch/feedwatch/pkg/plugin"
	"github.com/feedwatch/feedwatch/pkg/record"
)

// Handler is the plugin-implemented part of an actor: the side effect or
// transform applied to each record delivered to one of its entities.
type Handler interface {
	Handle(entity plugin.Entity, rec record.Record) error
}

// Base implements the shared dispatch contract. Construction subscribes the
// dispatcher to every entity's incoming topic; incoming records are routed to
// the handler inside a failure boundary, and records of kinds the actor does
// not support are forwarded down the chain untouched.
type Base struct {
	name     string
	bus      *bus.Bus
	entities map[string]plugin.Entity
	handler  Handler

	// supported is the set of record kind or ancestor names the handler
	// accepts; "Record" accepts everything
	supported map[string]bool

	Logger zerolog.Logger
}

// NewBase wires the dispatcher. Entity names must be unique within the
// actor; a duplicate is a construction error.
func NewBase(name string, b *bus.Bus, entities []plugin.Entity, handler Handler, supportedKinds []string) (*Base, error) {
	if len(supportedKinds) == 0 {
		supportedKinds = []string{"Record"}
	}
	supported := make(map[string]bool, len(supportedKinds))
	for _, kind := range supportedKinds {
		supported[kind] = true
	}

	base := &Base{
		name:      name,
		bus:       b,
		entities:  make(map[string]plugin.Entity, len(entities)),
		handler:   handler,
		supported: supported,
		Logger:    log.WithActor(name),
	}
	for _, entity := range entities {
		if _, dup := base.entities[entity.EntityName()]; dup {
			return nil, fmt.Errorf("actor %q: duplicate entity name %q", name, entity.EntityName())
		}
		base.entities[entity.EntityName()] = entity
		b.Subscribe(bus.IncomingTopicFor(name, entity.EntityName()), base.dispatch)
	}
	return base, nil
}

// Name returns the actor's configured name.
func (b *Base) Name() string { return b.name }

// Run is the long-running driver; the base is passive and returns at once.
func (b *Base) Run(ctx context.Context) error { return nil }

// Bus returns the bus the actor was constructed with.
func (b *Base) Bus() *bus.Bus { return b.bus }

// Entities returns the actor's entities keyed by name.
func (b *Base) Entities() map[string]plugin.Entity { return b.entities }

// Emit publishes a record on the actor's outgoing topic for the entity.
// Implementations call it for every record they produce.
func (b *Base) Emit(entity plugin.Entity, rec record.Record) {
	b.bus.Publish(bus.OutgoingTopicFor(b.name, entity.EntityName()), rec)
}

func (b *Base) supports(rec record.Record) bool {
	for _, kind := range rec.Ancestors() {
		if b.supported[kind] {
			return true
		}
	}
	return false
}

// dispatch is the single subscription callback held per entity.
func (b *Base) dispatch(topic string, rec record.Record) {
	_, entityName, err := bus.SplitMessageTopic(topic)
	if err != nil {
		b.Logger.Error().Str("topic", topic).Msg("failed to split message topic")
		return
	}
	entity, ok := b.entities[entityName]
	if !ok {
		b.Logger.Warn().Str("topic", topic).Str("record", rec.Debug()).
			Msgf("received record for unknown entity %q, dropping", entityName)
		return
	}
	if !b.supports(rec) {
		// unsupported kinds stay visible to the rest of the chain
		b.Logger.Debug().Str("record", rec.Debug()).
			Msgf("forwarding record with unsupported kind %q down the chain", rec.Kind())
		b.Emit(entity, rec)
	}
	b.safeHandle(entity, rec)
}

// safeHandle is the failure boundary: handler errors and panics are logged
// with record identity and never reach the bus.
func (b *Base) safeHandle(entity plugin.Entity, rec record.Record) {
	defer func() {
		if r := recover(); r != nil {
			metrics.HandlerErrorsTotal.WithLabelValues(b.name).Inc()
			b.Logger.Error().Str("entity", entity.EntityName()).Str("record", rec.Debug()).
				Msgf("panic while processing record: %v", r)
		}
	}()
	if err := b.handler.Handle(entity, rec); err != nil {
		metrics.HandlerErrorsTotal.WithLabelValues(b.name).Inc()
		b.Logger.Error().Err(err).Str("entity", entity.EntityName()).Str("record", rec.Debug()).
			Msg("error while processing record")
	}
}
