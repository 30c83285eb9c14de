package store

import (
	"time"
)

// Row is the persisted form of one record version. Rows are append-only:
// re-storing the same (uid, hashsum) pair is idempotent, a new hashsum for a
// known uid records an update of the same logical record.
type Row struct {
	ParsedAt  time.Time `json:"parsed_at"`
	FeedName  string    `json:"feed_name"`
	UID       string    `json:"uid"`
	Hashsum   string    `json:"hashsum"`
	ClassName string    `json:"class_name"`
	AsJSON    string    `json:"as_json"`
}

// Store defines the interface for the record database shared by monitors.
// Implementations serialize concurrent writers.
type Store interface {
	// Store upserts a row under primary key (uid, hashsum)
	Store(row Row) error

	// Fetch returns the latest row for uid by parsed_at, optionally
	// constrained to an exact hashsum. Returns nil when nothing matches.
	Fetch(uid string, hashsum ...string) (*Row, error)

	// Exists reports whether any row for uid exists, optionally with an
	// exact hashsum
	Exists(uid string, hashsum ...string) (bool, error)

	// Size returns the row count, total or for one feed partition
	Size(feedName ...string) (int, error)

	// Close releases the backing resources
	Close() error
}

// MemoryPath selects the ephemeral in-process backing instead of a file.
const MemoryPath = ":memory:"

// Open returns a store for the given path: MemoryPath yields an in-process
// store, anything else a bbolt file.
func Open(path string) (Store, error) {
	if path == MemoryPath {
		return NewMemoryStore(), nil
	}
	return NewBoltStore(path)
}
