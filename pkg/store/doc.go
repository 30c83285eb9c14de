/*
Package store implements the persistent record database used for
deduplication across restarts.

The schema is a single logical table:

	parsed_at  TIMESTAMP
	feed_name  TEXT
	uid        TEXT
	hashsum    TEXT
	class_name TEXT
	as_json    TEXT
	PRIMARY KEY (uid, hashsum)

uid is "{entity_name}:{plugin-defined record id}"; hashsum is the record's
content hash. Two rows with equal uid and different hashsum denote an update
of the same logical record. Rows are append-only and storing the same content
twice is idempotent.

Two backings implement the Store interface: a bbolt file (rows survive
restart, writers serialize through bbolt's update transaction) and an
in-process map selected by the ":memory:" path. The Pool shares file handles
by path so every database file has a single owner regardless of how many
monitor actors point at it.
*/
package store
