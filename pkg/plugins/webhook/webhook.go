// Package webhook implements the webhook action: records are batched and
// delivered to an HTTP endpoint as JSON, obeying the endpoint's rate-limit
// hints.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/feedwatch/feedwatch/pkg/actor"
	"github.com/feedwatch/feedwatch/pkg/plugin"
	"github.com/feedwatch/feedwatch/pkg/record"
)

const (
	// RecordsPerMessage caps how many records one delivery carries.
	RecordsPerMessage = 10

	// gatherTimeout bounds the total wait for filling one batch: a full
	// minute spread over a full batch.
	gatherTimeout = 60 / RecordsPerMessage * time.Second

	// defaultRetryDelay is used when the server's suggested delay cannot
	// be parsed.
	defaultRetryDelay = 6 * time.Second

	queueCapacity = 1000
)

// Entity is one webhook destination.
type Entity struct {
	plugin.BaseEntity `yaml:",inline"`

	// URL receives the POSTed batches
	URL string `yaml:"url"`

	// Timeout bounds each delivery request, in seconds
	TimeoutSeconds float64 `yaml:"timeout"`
}

func (e *Entity) Validate() error {
	if err := e.BaseEntity.Validate(); err != nil {
		return err
	}
	if e.URL == "" {
		return fmt.Errorf("entity %q: url is required", e.Name)
	}
	if e.TimeoutSeconds <= 0 {
		e.TimeoutSeconds = 60
	}
	return nil
}

// Action queues records per entity and ships them in batches.
type Action struct {
	*actor.Base

	client *http.Client
	queues map[string]chan record.Record
}

// Handle implements the actor handler: enqueue for the entity's sender.
func (a *Action) Handle(entity plugin.Entity, rec record.Record) error {
	queue := a.queues[entity.EntityName()]
	select {
	case queue <- rec:
		return nil
	default:
		return fmt.Errorf("entity %q: delivery queue full, dropping record", entity.EntityName())
	}
}

// Run drives one sender loop per entity until shutdown.
func (a *Action) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, entity := range a.Entities() {
		wg.Add(1)
		go func(e *Entity) {
			defer wg.Done()
			a.sendLoop(ctx, e)
		}(entity.(*Entity))
	}
	wg.Wait()
	return nil
}

// sendLoop gathers batches and posts them. A failed delivery keeps its
// batch and retries after the server-suggested delay.
func (a *Action) sendLoop(ctx context.Context, e *Entity) {
	queue := a.queues[e.Name]
	var batch []record.Record
	for {
		batch = a.gather(ctx, queue, batch)
		if ctx.Err() != nil {
			return
		}
		if len(batch) == 0 {
			continue
		}
		ok, delay := a.send(ctx, e, batch)
		if ok {
			batch = nil
		}
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return
			}
		}
	}
}

// gather tops the batch up to RecordsPerMessage, waiting at most
// gatherTimeout in total; it returns early once the batch is full.
func (a *Action) gather(ctx context.Context, queue chan record.Record, batch []record.Record) []record.Record {
	timer := time.NewTimer(gatherTimeout)
	defer timer.Stop()
	for len(batch) < RecordsPerMessage {
		select {
		case rec := <-queue:
			batch = append(batch, rec)
		case <-timer.C:
			return batch
		case <-ctx.Done():
			return batch
		}
	}
	return batch
}

// message is the delivery payload.
type message struct {
	Records []json.RawMessage `json:"records"`
}

func (a *Action) send(ctx context.Context, e *Entity, batch []record.Record) (bool, time.Duration) {
	payload := message{Records: make([]json.RawMessage, 0, len(batch))}
	for _, rec := range batch {
		payload.Records = append(payload.Records, json.RawMessage(record.CanonicalJSON(rec.Fields())))
	}
	body, err := json.Marshal(payload)
	if err != nil {
		a.Logger.Error().Err(err).Str("entity", e.Name).Msg("failed to encode batch")
		return true, 0
	}

	reqCtx, cancel := context.WithTimeout(ctx, time.Duration(e.TimeoutSeconds*float64(time.Second)))
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, e.URL, bytes.NewReader(body))
	if err != nil {
		a.Logger.Error().Err(err).Str("entity", e.Name).Msg("failed to create request")
		return true, 0
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		a.Logger.Warn().Err(err).Str("entity", e.Name).Str("url", e.URL).
			Msg("delivery failed")
		return false, defaultRetryDelay
	}
	defer resp.Body.Close()

	success := resp.StatusCode >= 200 && resp.StatusCode <= 299
	if !success {
		a.Logger.Warn().Int("status", resp.StatusCode).Str("entity", e.Name).
			Msg("delivery rejected")
	}
	return success, retryDelay(resp.Header)
}

// retryDelay reads the server's pacing hints: Retry-After wins, an
// exhausted X-RateLimit-Remaining falls back to X-RateLimit-Reset-After.
// An unparseable value means the default delay.
func retryDelay(header http.Header) time.Duration {
	value := header.Get("Retry-After")
	if value == "" {
		if header.Get("X-RateLimit-Remaining") != "0" {
			return 0
		}
		value = header.Get("X-RateLimit-Reset-After")
	}
	seconds, err := strconv.Atoi(value)
	if err != nil {
		return defaultRetryDelay
	}
	return time.Duration(seconds) * time.Second
}

func init() {
	plugin.Register("webhook", plugin.Factory{
		NewConfig: func() plugin.Config { return &plugin.BaseConfig{} },
		NewEntity: func() plugin.Entity { return &Entity{} },
		NewActor: func(cfg plugin.Config, entities []plugin.Entity, deps plugin.Deps) (plugin.Actor, error) {
			a := &Action{
				client: &http.Client{},
				queues: make(map[string]chan record.Record, len(entities)),
			}
			base, err := actor.NewBase(cfg.ActorName(), deps.Bus, entities, a, nil)
			if err != nil {
				return nil, err
			}
			a.Base = base
			for _, entity := range entities {
				a.queues[entity.EntityName()] = make(chan record.Record, queueCapacity)
			}
			return a, nil
		},
	})
}
