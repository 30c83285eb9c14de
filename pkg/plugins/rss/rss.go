// Package rss implements the generic_rss monitor: a store-backed HTTP feed
// monitor parsing RSS and Atom documents into feed records.
package rss

import (
	"bytes"
	"fmt"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/feedwatch/feedwatch/pkg/monitor"
	"github.com/feedwatch/feedwatch/pkg/plugin"
	"github.com/feedwatch/feedwatch/pkg/record"
)

// Config extends the feed monitor configuration with the update re-emit
// switch.
type Config struct {
	monitor.FeedConfig `yaml:",inline"`

	// EmitUpdates re-emits a known record whose content changed, for
	// feeds that mutate entries meaningfully (rescheduled streams and
	// the like). Off by default: an edit is not news.
	EmitUpdates bool `yaml:"emit_updates"`
}

// source parses feed documents for the monitor core.
type source struct {
	parser      *gofeed.Parser
	emitUpdates bool
}

func (s *source) Parse(entity plugin.Entity, resp *monitor.Response) ([]record.Record, error) {
	feed, err := s.parser.Parse(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}
	records := make([]record.Record, 0, len(feed.Items))
	for _, item := range feed.Items {
		records = append(records, itemRecord(item))
	}
	return records, nil
}

func (s *source) RecordID(rec record.Record) string {
	return rec.(*record.FeedRecord).UID
}

func (s *source) EmitUpdates() bool { return s.emitUpdates }

// itemRecord maps one feed entry to a FeedRecord. The entry GUID identifies
// the record across content changes, with the link as fallback.
func itemRecord(item *gofeed.Item) *record.FeedRecord {
	uid := item.GUID
	if uid == "" {
		uid = item.Link
	}
	var published time.Time
	if item.PublishedParsed != nil {
		published = *item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		published = *item.UpdatedParsed
	}
	summary := item.Description
	if summary == "" {
		summary = item.Content
	}
	author := ""
	if item.Author != nil {
		author = item.Author.Name
	}
	return &record.FeedRecord{
		UID:       uid,
		URL:       item.Link,
		Title:     item.Title,
		Summary:   summary,
		Author:    author,
		Published: published,
	}
}

func init() {
	plugin.Register("generic_rss", plugin.Factory{
		NewConfig: func() plugin.Config { return &Config{} },
		NewEntity: func() plugin.Entity { return &monitor.FeedEntity{} },
		NewActor: func(cfg plugin.Config, entities []plugin.Entity, deps plugin.Deps) (plugin.Actor, error) {
			conf := cfg.(*Config)
			src := &source{parser: gofeed.NewParser(), emitUpdates: conf.EmitUpdates}
			return monitor.NewFeedMonitor(deps.Bus, &conf.FeedConfig, entities, src, deps)
		},
	})
}
