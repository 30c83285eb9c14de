package engine

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/feedwatch/feedwatch/pkg/bus"
	"github.com/feedwatch/feedwatch/pkg/chain"
	"github.com/feedwatch/feedwatch/pkg/config"
	"github.com/feedwatch/feedwatch/pkg/log"
	"github.com/feedwatch/feedwatch/pkg/plugin"
	"github.com/feedwatch/feedwatch/pkg/store"
)

// Engine owns the runtime graph: the bus, the shared record store pool, the
// actor instances built from config and the chains wiring their topics.
type Engine struct {
	bus    *bus.Bus
	stores *store.Pool
	actors map[string]plugin.Actor
	order  []string
	chains map[string]*chain.Chain
	logger zerolog.Logger
}

// New constructs every actor and resolves every chain from a validated
// configuration. Chains are resolved after all actors exist, so every
// incoming-topic subscription is in place before any forwarder is.
func New(result *config.Result, b *bus.Bus) (*Engine, error) {
	e := &Engine{
		bus:    b,
		stores: store.NewPool(),
		actors: make(map[string]plugin.Actor, len(result.Actors)),
		order:  result.ActorOrder,
		chains: make(map[string]*chain.Chain, len(result.Chains)),
		logger: log.WithComponent("engine"),
	}

	deps := plugin.Deps{Bus: b, Stores: e.stores}
	for _, name := range result.ActorOrder {
		parsed, ok := result.Actors[name]
		if !ok {
			continue
		}
		a, err := parsed.Factory.NewActor(parsed.Config, parsed.Entities, deps)
		if err != nil {
			e.stores.Close()
			return nil, err
		}
		e.actors[name] = a
		e.logger.Debug().Str("actor", name).Int("entities", len(parsed.Entities)).
			Msg("actor created")
	}

	for name, stages := range result.Chains {
		e.chains[name] = chain.New(name, stages, b)
	}
	return e, nil
}

// Actors returns the constructed actors by name.
func (e *Engine) Actors() map[string]plugin.Actor { return e.actors }

// Run starts every actor's driver and blocks until all drivers returned:
// looping drivers (monitors, the webhook sender) run until the context is
// cancelled, passive ones return at once, so with only passive actors Run
// returns without waiting for the context. A driver failing terminates that actor only;
// its subscriptions stay in place but it stops producing.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info().Int("actors", len(e.actors)).Int("chains", len(e.chains)).
		Msg("starting")

	g := new(errgroup.Group)
	for _, name := range e.order {
		a, ok := e.actors[name]
		if !ok {
			continue
		}
		actorName := name
		driver := a
		g.Go(func() error {
			if err := driver.Run(ctx); err != nil && ctx.Err() == nil {
				e.logger.Error().Err(err).Str("actor", actorName).
					Msg("actor driver terminated")
			}
			// one actor failing must not take the others down
			return nil
		})
	}
	g.Wait()

	e.logger.Info().Msg("all actors stopped")
	return e.stores.Close()
}
