package record

import (
	"fmt"
	"time"
)

// Event type values carried by Event records.
const (
	EventGeneric  = "generic"
	EventError    = "error"
	EventStarted  = "started"
	EventFinished = "finished"
)

// TextRecord carries a plain block of text.
type TextRecord struct {
	Text string
}

func (r *TextRecord) Kind() string        { return "TextRecord" }
func (r *TextRecord) Ancestors() []string { return []string{"TextRecord", "Record"} }
func (r *TextRecord) Display() string     { return r.Text }

func (r *TextRecord) Debug() string {
	return fmt.Sprintf("TextRecord(%q)", Shorten(r.Text, MaxDebugLen))
}

func (r *TextRecord) Fields() map[string]any {
	return map[string]any{"text": r.Text}
}

// Event signals something happening inside the pipeline rather than content
// fetched from a source.
type Event struct {
	EventType string
	Text      string
}

func (r *Event) Kind() string        { return "Event" }
func (r *Event) Ancestors() []string { return []string{"Event", "Record"} }
func (r *Event) Display() string     { return r.Text }

func (r *Event) Debug() string {
	return fmt.Sprintf("Event(event_type=%q, text=%q)", r.EventType, Shorten(r.Text, MaxDebugLen))
}

func (r *Event) Fields() map[string]any {
	return map[string]any{"event_type": r.EventType, "text": r.Text}
}

// FeedRecord is a single entry of a syndication feed. It always carries a
// URL, which also makes it usable wherever a downloadable record is expected.
// Plugin-specific fields survive persistence through Extra.
type FeedRecord struct {
	UID       string
	URL       string
	Title     string
	Summary   string
	Author    string
	Published time.Time
	Extra     map[string]any
}

func (r *FeedRecord) Kind() string { return "FeedRecord" }

func (r *FeedRecord) Ancestors() []string {
	return []string{"FeedRecord", "LivestreamRecord", "Record"}
}

func (r *FeedRecord) Display() string {
	secondLine := ""
	if r.Author != "" && r.Title != "" {
		secondLine = fmt.Sprintf("%s: %s\n", r.Author, r.Title)
	}
	summary := Shorten(r.Summary, MaxDebugLen*2)
	return fmt.Sprintf("[%s] %s\n%s%s", r.Published.Format(TimeLayout), r.URL, secondLine, summary)
}

func (r *FeedRecord) Debug() string {
	return fmt.Sprintf("FeedRecord(uid=%q, url=%q, title=%q)", r.UID, r.URL, Shorten(r.Title, MaxDebugLen))
}

func (r *FeedRecord) Fields() map[string]any {
	fields := map[string]any{
		"uid":       r.UID,
		"url":       r.URL,
		"title":     r.Title,
		"summary":   r.Summary,
		"author":    r.Author,
		"published": r.Published,
	}
	for k, v := range r.Extra {
		if _, taken := fields[k]; !taken {
			fields[k] = v
		}
	}
	return fields
}

func init() {
	MustRegister("TextRecord", func(fields map[string]any) (Record, error) {
		return &TextRecord{Text: stringField(fields, "text")}, nil
	})
	MustRegister("Event", func(fields map[string]any) (Record, error) {
		eventType := stringField(fields, "event_type")
		if eventType == "" {
			eventType = EventGeneric
		}
		return &Event{EventType: eventType, Text: stringField(fields, "text")}, nil
	})
	MustRegister("FeedRecord", func(fields map[string]any) (Record, error) {
		published, err := timeField(fields, "published")
		if err != nil {
			return nil, err
		}
		rec := &FeedRecord{
			UID:       stringField(fields, "uid"),
			URL:       stringField(fields, "url"),
			Title:     stringField(fields, "title"),
			Summary:   stringField(fields, "summary"),
			Author:    stringField(fields, "author"),
			Published: published,
		}
		known := map[string]bool{
			"uid": true, "url": true, "title": true, "summary": true,
			"author": true, "published": true,
		}
		for k, v := range fields {
			if known[k] {
				continue
			}
			if rec.Extra == nil {
				rec.Extra = make(map[string]any)
			}
			rec.Extra[k] = v
		}
		return rec, nil
	})
}

func stringField(fields map[string]any, name string) string {
	if v, ok := fields[name].(string); ok {
		return v
	}
	return ""
}

func timeField(fields map[string]any, name string) (time.Time, error) {
	switch v := fields[name].(type) {
	case time.Time:
		return v, nil
	case string:
		t, err := time.Parse(TimeLayout, v)
		if err != nil {
			return time.Time{}, fmt.Errorf("field %q: %w", name, err)
		}
		return t, nil
	case nil:
		return time.Time{}, nil
	default:
		return time.Time{}, fmt.Errorf("field %q: unexpected type %T", name, v)
	}
}
