package chain

import (
	"github.com/rs/zerolog"

	"github.com/feedwatch/feedwatch/pkg/bus"
	"github.com/feedwatch/feedwatch/pkg/log"
	"github.com/feedwatch/feedwatch/pkg/record"
)

// Stage is one step of a chain: an actor and the entities of it taking part.
type Stage struct {
	Actor    string
	Entities []string
}

// Chain wires the stages' topics together: records published on a stage's
// outgoing topics are republished on the next stage's incoming topics.
type Chain struct {
	Name   string
	logger zerolog.Logger
}

// forwarder bridges one producer topic to one destination topic. The
// destination is part of the forwarder's identity rather than captured in an
// anonymous closure, so a cascade through N stages is N-1 forwarders each
// knowing where it delivers.
type forwarder struct {
	chain       string
	destination string
	bus         *bus.Bus
	logger      zerolog.Logger
}

func (f *forwarder) forward(producerTopic string, rec record.Record) {
	f.logger.Debug().
		Str("from", producerTopic).
		Str("to", f.destination).
		Str("record", rec.Debug()).
		Msg("forwarding record")
	f.bus.Publish(f.destination, rec)
}

// New resolves a chain definition into bus subscriptions. Chains shorter
// than two stages carry nothing and are rejected with a warning.
func New(name string, stages []Stage, b *bus.Bus) *Chain {
	c := &Chain{
		Name:   name,
		logger: log.WithComponent("chain").With().Str("chain", name).Logger(),
	}

	if len(stages) < 2 {
		c.logger.Warn().Msg("need at least two actors to create a chain")
		return c
	}

	producer := stages[0]
	for _, consumer := range stages[1:] {
		for _, producerEntity := range producer.Entities {
			for _, consumerEntity := range consumer.Entities {
				f := &forwarder{
					chain:       name,
					destination: bus.IncomingTopicFor(consumer.Actor, consumerEntity),
					bus:         b,
					logger:      c.logger,
				}
				b.Subscribe(bus.OutgoingTopicFor(producer.Actor, producerEntity), f.forward)
			}
		}
		producer = consumer
	}
	return c
}
