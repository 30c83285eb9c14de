/*
Package record defines the value type carried through the bus.

A Record is one of a closed-by-registration set of kinds. Every kind exposes a
long display form for sinks, a short debug form for logs (truncated at 60
runes), a flat field view, and through it a stable SHA-1 content hash over a
canonical JSON serialization: keys sorted, non-ASCII preserved, timestamps
rendered with a fixed layout. The hash identifies record content across
process restarts and across field ordering in the source document.

Plugins register additional kinds with RegisterKind; the decoder is what lets
the record store rebuild typed records from persisted rows, with unknown
fields preserved.
*/
package record
