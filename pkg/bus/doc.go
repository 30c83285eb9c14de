/*
Package bus implements the in-process topic routing table.

Topics are strings of the form {direction}/{actor}/{entity} with direction
being "inputs" or "output". Topic membership is the sole addressing
primitive: a monitor publishes to its outgoing topic, chain forwarders bridge
outgoing topics to the next stage's incoming topics, and every actor holds
exactly one subscription per entity on its incoming topic.

Delivery is synchronous: Publish invokes every subscriber in subscription
order on the caller's goroutine before returning. There is no queue and no
copying, so within one chain records flow to the next stage in the order they
were emitted. Publishing to a topic nobody subscribed to does nothing.

The subscriber table is guarded so monitors running on separate goroutines
can publish concurrently; the subscriber list is snapshotted before the
callbacks run, which keeps a forwarder's nested Publish from re-entering the
lock.
*/
package bus
