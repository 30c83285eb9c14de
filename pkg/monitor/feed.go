package monitor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pquerna/cachecontrol/cacheobject"

	"github.com/feedwatch/feedwatch/pkg/bus"
	"github.com/feedwatch/feedwatch/pkg/metrics"
	"github.com/feedwatch/feedwatch/pkg/plugin"
	"github.com/feedwatch/feedwatch/pkg/record"
	"github.com/feedwatch/feedwatch/pkg/store"
)

// MaxBackoffInterval caps failure-driven interval growth.
const MaxBackoffInterval = 4 * time.Hour

// FeedConfig is the shared configuration of store-backed HTTP monitors.
type FeedConfig struct {
	plugin.BaseConfig `yaml:",inline"`

	// DBPath is the record database location; ":memory:" selects the
	// ephemeral backing
	DBPath string `yaml:"db_path"`
}

func (c *FeedConfig) Validate() error {
	if c.DBPath == "" {
		c.DBPath = store.MemoryPath
	}
	return nil
}

// FeedEntity is one polled feed URL.
type FeedEntity struct {
	HTTPEntity `yaml:",inline"`

	URL string `yaml:"url"`

	// AdjustUpdateInterval enables cache-TTL-driven interval adaptation;
	// on by default
	AdjustUpdateInterval *bool `yaml:"adjust_update_interval"`
}

func (e *FeedEntity) Validate() error {
	if err := e.HTTPEntity.Validate(); err != nil {
		return err
	}
	if e.URL == "" {
		return fmt.Errorf("entity %q: url is required", e.Name)
	}
	return nil
}

func (e *FeedEntity) Adaptive() bool {
	return e.AdjustUpdateInterval == nil || *e.AdjustUpdateInterval
}

func (e *FeedEntity) TargetURL() string  { return e.URL }
func (e *FeedEntity) SessionKey() string { return e.CookiesFile }

// FeedTarget is what the feed monitor core needs from an entity; FeedEntity
// implements it, plugin entities embed FeedEntity.
type FeedTarget interface {
	plugin.Entity
	TargetURL() string
	SessionKey() string
	Adaptive() bool
}

// Response is a fully drained HTTP response handed to the parser, so parsing
// never triggers network activity.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// FeedSource is the plugin-specific part of a feed monitor: parsing a
// response into records and identifying them.
type FeedSource interface {
	// Parse turns a response into records, both old and new
	Parse(entity plugin.Entity, resp *Response) ([]record.Record, error)

	// RecordID returns a string identifying a record even if its content
	// has changed
	RecordID(rec record.Record) string

	// EmitUpdates reports whether a changed version of a known record
	// should be emitted again
	EmitUpdates() bool
}

// FeedMonitor polls HTTP feeds with conditional requests, adapts the poll
// interval from cache headers, backs off on failures and deduplicates parsed
// records against the record store.
type FeedMonitor struct {
	*TaskMonitor

	conf     *FeedConfig
	source   FeedSource
	db       store.Store
	sessions *SessionPool
}

// NewFeedMonitor builds a feed monitor for the source.
func NewFeedMonitor(b *bus.Bus, conf *FeedConfig, entities []plugin.Entity, source FeedSource, deps plugin.Deps) (*FeedMonitor, error) {
	db, err := deps.Stores.Get(conf.DBPath)
	if err != nil {
		return nil, fmt.Errorf("actor %q: %w", conf.ActorName(), err)
	}
	m := &FeedMonitor{
		conf:     conf,
		source:   source,
		db:       db,
		sessions: NewSessionPool(0),
	}
	tm, err := NewTaskMonitor(conf.ActorName(), b, entities, m.poll)
	if err != nil {
		return nil, err
	}
	m.TaskMonitor = tm
	return m, nil
}

// Run primes empty feed partitions before the polling tasks start, so a
// freshly configured entity does not flood the chain with its whole backlog.
func (m *FeedMonitor) Run(ctx context.Context) error {
	for _, entity := range m.order {
		if err := m.primeDB(ctx, entity); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			m.Logger.Warn().Err(err).Str("entity", entity.EntityName()).
				Msg("priming fetch failed")
		}
	}
	return m.TaskMonitor.Run(ctx)
}

func (m *FeedMonitor) primeDB(ctx context.Context, entity plugin.Entity) error {
	name := entity.EntityName()
	size, err := m.db.Size(name)
	if err != nil {
		return err
	}
	if size > 0 {
		m.Logger.Info().Str("entity", name).Int("records", size).
			Msg("records stored in database")
		return nil
	}
	m.Logger.Info().Str("entity", name).Str("db", m.conf.DBPath).
		Msg("database has no records for entity, assuming first run")
	_, err = m.fetchNew(ctx, entity, m.states[name])
	return err
}

// poll is the per-entity task body: fetch, dedup, emit.
func (m *FeedMonitor) poll(ctx context.Context, entity plugin.Entity, state *EntityState) error {
	records, err := m.fetchNew(ctx, entity, state)
	if err != nil {
		return err
	}
	for _, rec := range records {
		m.EmitRecord(entity, rec)
	}
	return nil
}

// fetchNew runs one fetch-parse-dedup cycle and returns the records that
// were not seen before.
func (m *FeedMonitor) fetchNew(ctx context.Context, entity plugin.Entity, state *EntityState) ([]record.Record, error) {
	target := entity.(FeedTarget)
	resp := m.request(ctx, entity.EntityName(), target.TargetURL(), target.SessionKey(), target.Adaptive(), state)
	if resp == nil {
		return nil, ctx.Err()
	}

	records, err := m.source.Parse(entity, resp)
	if err != nil {
		snippet := record.Shorten(string(resp.Body), 200)
		m.Logger.Warn().Err(err).Str("entity", entity.EntityName()).Str("payload", snippet).
			Msg("failed to parse response, dropping")
		return nil, nil
	}
	return m.filterNew(records, entity), nil
}

// request performs one conditional HTTP request. It never retries; failures
// adjust the entity's live interval instead.
func (m *FeedMonitor) request(ctx context.Context, entityName, url, cookiesFile string, adaptive bool, state *EntityState) *Response {
	logger := m.Logger.With().Str("entity", entityName).Logger()
	client := m.sessions.Get(cookiesFile)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		logger.Error().Err(err).Str("url", url).Msg("failed to create request")
		return nil
	}
	if state.LastModified != "" {
		req.Header.Set("If-Modified-Since", state.LastModified)
	}
	if state.ETag != "" {
		req.Header.Set("If-None-Match", state.ETag)
	}

	resp, err := client.Do(req)
	if err != nil {
		logger.Warn().Err(err).Str("url", url).Msg("error while fetching")
		m.backOff(entityName, state)
		metrics.FetchesTotal.WithLabelValues(m.Name(), "error").Inc()
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		// some servers omit cache headers on 304, so they only update on 200
		logger.Debug().Str("url", url).Msg("got 304 Not Modified")
		metrics.FetchesTotal.WithLabelValues(m.Name(), "not_modified").Inc()
		return nil
	}

	// drain the body regardless of status so the connection can be reused
	body, readErr := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logger.Warn().Int("status", resp.StatusCode).Str("url", url).
			Msg("got error status while fetching")
		m.backOff(entityName, state)
		metrics.FetchesTotal.WithLabelValues(m.Name(), "error").Inc()
		return nil
	}
	if readErr != nil {
		logger.Warn().Err(readErr).Str("url", url).Msg("error reading response body")
		m.backOff(entityName, state)
		metrics.FetchesTotal.WithLabelValues(m.Name(), "error").Inc()
		return nil
	}

	state.LastModified = resp.Header.Get("Last-Modified")
	state.ETag = resp.Header.Get("Etag")
	metrics.FetchesTotal.WithLabelValues(m.Name(), "ok").Inc()

	m.adaptOrRestore(entityName, resp.Header, adaptive, state)

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header.Clone(), Body: body}
}

// backOff raises the live interval after a failure. Backoff is per entity.
func (m *FeedMonitor) backOff(entityName string, state *EntityState) {
	if state.Backoff() {
		m.Logger.Warn().Str("entity", entityName).Dur("interval", state.Interval).
			Msg("update interval raised after failure")
	}
}

func (m *FeedMonitor) adaptOrRestore(entityName string, header http.Header, adaptive bool, state *EntityState) {
	if adaptive {
		if header == nil {
			return
		}
		next := state.BaseInterval
		if ttl, ok := cacheTTL(header); ok && ttl > next {
			next = ttl
		}
		if state.Interval != next {
			state.Interval = next
			m.Logger.Info().Str("entity", entityName).Dur("interval", next).
				Msg("next update interval set from cache headers")
		}
		return
	}
	if state.Restore() {
		m.Logger.Info().Str("entity", entityName).Dur("interval", state.Interval).
			Msg("restoring configured update interval")
	}
}

// cacheTTL extracts a freshness lifetime from response headers:
// Cache-Control max-age wins, a future Expires (relative to the response
// Date, falling back to now) is the fallback.
func cacheTTL(header http.Header) (time.Duration, bool) {
	if cc := header.Get("Cache-Control"); cc != "" {
		directives, err := cacheobject.ParseResponseCacheControl(cc)
		if err == nil && directives.MaxAge >= 0 {
			return time.Duration(directives.MaxAge) * time.Second, true
		}
	}
	expiresValue := header.Get("Expires")
	if expiresValue == "" {
		return 0, false
	}
	expires, err := http.ParseTime(expiresValue)
	if err != nil {
		return 0, false
	}
	base := time.Now()
	if dateValue := header.Get("Date"); dateValue != "" {
		if date, err := http.ParseTime(dateValue); err == nil {
			base = date
		}
	}
	ttl := expires.Sub(base)
	if ttl <= 0 {
		return 0, false
	}
	return ttl, true
}

// filterNew persists records and keeps the ones not stored before. A known
// uid with a changed hash is stored as a new version; whether it is emitted
// again is the source's call.
func (m *FeedMonitor) filterNew(records []record.Record, entity plugin.Entity) []record.Record {
	var fresh []record.Record
	name := entity.EntityName()
	for _, rec := range records {
		uid := fmt.Sprintf("%s:%s", name, m.source.RecordID(rec))
		hashsum := record.Hash(rec)

		known, err := m.db.Exists(uid)
		if err != nil {
			m.Logger.Error().Err(err).Str("uid", uid).Msg("record store lookup failed")
			continue
		}
		if !known {
			m.storeRecord(rec, name, uid, hashsum)
			m.Logger.Debug().Str("uid", uid).Str("hash", hashsum[:5]).
				Msg("fetched record is new")
			fresh = append(fresh, rec)
			continue
		}
		sameVersion, err := m.db.Exists(uid, hashsum)
		if err != nil {
			m.Logger.Error().Err(err).Str("uid", uid).Msg("record store lookup failed")
			continue
		}
		if !sameVersion {
			m.storeRecord(rec, name, uid, hashsum)
			m.Logger.Debug().Str("uid", uid).Str("hash", hashsum[:5]).
				Msg("storing new version of known record")
			if m.source.EmitUpdates() {
				fresh = append(fresh, rec)
			}
		}
	}
	return fresh
}

func (m *FeedMonitor) storeRecord(rec record.Record, feedName, uid, hashsum string) {
	row := store.Row{
		ParsedAt:  time.Now().UTC(),
		FeedName:  feedName,
		UID:       uid,
		Hashsum:   hashsum,
		ClassName: rec.Kind(),
		AsJSON:    record.CanonicalJSON(rec.Fields()),
	}
	if err := m.db.Store(row); err != nil {
		m.Logger.Error().Err(err).Str("uid", uid).Msg("failed to store record")
		return
	}
	metrics.RecordsStoredTotal.WithLabelValues(feedName).Inc()
}
