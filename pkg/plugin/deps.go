package plugin

import (
	"github.com/feedwatch/feedwatch/pkg/bus"
	"github.com/feedwatch/feedwatch/pkg/store"
)

// Deps is what the engine hands every actor constructor: the bus instance to
// subscribe and publish on, and the record store pool shared between monitors
// so databases at the same path go through a single writer.
type Deps struct {
	Bus    *bus.Bus
	Stores *store.Pool
}
