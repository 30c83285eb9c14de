/*
Package monitor implements the polling side of the system: the per-entity
task scheduler and the HTTP feed monitor built on top of it.

# Scheduler

TaskMonitor starts one long-lived task per entity. Entities sharing an
update interval form a group; within a group task launches are staggered by
interval/len(group) so N entities polling every 60 seconds fire at 0, 60/N,
2*60/N seconds and so on. Groups with different intervals launch in
parallel. A task that fails terminates alone; siblings keep polling. The
live update interval is mutable per-entity state re-read before every sleep,
which is the mechanism both cache-driven adaptation and failure backoff act
through.

# HTTP feed monitor

FeedMonitor layers on the scheduler:

  - sessions shared by cookie-jar file path (Netscape format; a missing
    file yields an empty jar, not an error)
  - conditional requests from stored Last-Modified/ETag; 304 means nothing
    new and leaves the cached headers alone
  - on success the poll interval follows the response's cache lifetime
    (Cache-Control max-age, falling back to a future Expires) but never
    drops below the configured base; with adaptation disabled the base is
    restored after backoff
  - on failure the live interval doubles, capped at ten times the base and
    at four hours
  - parsed records are deduplicated against the record store by
    (uid, content hash); a fresh entity's first fetch stores its whole
    backlog without emitting

The plugin-specific parser is a FeedSource: it turns a drained response
into records and names the per-record id the uid is derived from.
*/
package monitor
