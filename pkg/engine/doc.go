/*
Package engine turns a validated configuration into a running process.

Actors are constructed first, in document order, each subscribing its
dispatcher to its entities' incoming topics; chains are resolved afterwards
so forwarders always point at existing subscriptions. Record stores are
pooled by database path, giving every file a single writer no matter how
many monitor actors share it.

Run supervises the actor drivers under one group: passive actors return at
once, monitors poll until the context is cancelled, and a driver failure
terminates only that actor. Shutdown closes the pooled stores after every
driver has returned.
*/
package engine
