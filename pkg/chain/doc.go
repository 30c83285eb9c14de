/*
Package chain wires actor topics together from the configuration's chain
definitions.

A chain is an ordered list of stages, each naming an actor and the entities
of it taking part. For every consecutive stage pair the resolver subscribes
one forwarder per (producer entity, consumer entity) combination: it listens
on the producer's outgoing topic and republishes on the consumer's incoming
topic. Chains are linear; a record cascading through N stages passes N-1
forwarders, each carrying its destination topic in its own identity.
*/
package chain
