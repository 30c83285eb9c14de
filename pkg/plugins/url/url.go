// Package url implements the get_url monitor: it downloads a web page and
// emits its content as a text record whenever it changes.
package url

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/feedwatch/feedwatch/pkg/monitor"
	"github.com/feedwatch/feedwatch/pkg/plugin"
	"github.com/feedwatch/feedwatch/pkg/record"
)

// Entity is one monitored URL.
type Entity struct {
	monitor.HTTPEntity `yaml:",inline"`

	URL string `yaml:"url"`
}

func (e *Entity) Validate() error {
	if err := e.HTTPEntity.Validate(); err != nil {
		return err
	}
	if e.URL == "" {
		return fmt.Errorf("entity %q: url is required", e.Name)
	}
	return nil
}

// Monitor polls URLs and tracks the content hash of the previous fetch per
// entity, so only changes are emitted.
type Monitor struct {
	*monitor.TaskMonitor
	sessions *monitor.SessionPool
}

func (m *Monitor) poll(ctx context.Context, entity plugin.Entity, state *monitor.EntityState) error {
	e := entity.(*Entity)
	client := m.sessions.Get(e.CookiesFile)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request for %q: %w", e.URL, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		m.Logger.Warn().Err(err).Str("entity", e.Name).Str("url", e.URL).
			Msg("error while fetching")
		state.Backoff()
		return nil
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil || resp.StatusCode < 200 || resp.StatusCode > 299 {
		m.Logger.Warn().Err(err).Int("status", resp.StatusCode).Str("entity", e.Name).
			Str("url", e.URL).Msg("fetch failed")
		state.Backoff()
		return nil
	}
	state.Restore()

	rec := &record.TextRecord{Text: string(body)}
	hash := record.Hash(rec)
	if hash == state.LastRecordHash {
		return nil
	}
	state.LastRecordHash = hash
	m.EmitRecord(entity, rec)
	return nil
}

func init() {
	plugin.Register("get_url", plugin.Factory{
		NewConfig: func() plugin.Config { return &plugin.BaseConfig{} },
		NewEntity: func() plugin.Entity { return &Entity{} },
		NewActor: func(cfg plugin.Config, entities []plugin.Entity, deps plugin.Deps) (plugin.Actor, error) {
			m := &Monitor{sessions: monitor.NewSessionPool(0)}
			tm, err := monitor.NewTaskMonitor(cfg.ActorName(), deps.Bus, entities, m.poll)
			if err != nil {
				return nil, err
			}
			m.TaskMonitor = tm
			return m, nil
		},
	})
}
