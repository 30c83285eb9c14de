/*
Package actor implements the shared lifecycle and dispatch contract of
monitors, filters and actions.

Base subscribes one dispatcher per entity to inputs/{actor}/{entity} at
construction. On an incoming record the dispatcher extracts the entity from
the topic (unknown entities are logged and dropped), forwards records of
unsupported kinds untouched onto the outgoing topic so chains stay
transparent to them, and invokes the plugin handler inside a failure
boundary: a handler error or panic is logged with the record's debug identity
and never propagates back to the bus.

FilterBase layers the filter sub-contract on top: a Match that returns a
record emits it downstream, a miss drops silently.
*/
package actor
