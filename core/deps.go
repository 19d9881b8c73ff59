package core

import (
	"pkt.systems/pslog"
	"pkt.systems/shellsync/internal/eventbus"
)

// StoreDeps captures optional dependencies for the state store.
type StoreDeps struct {
	Bus    *eventbus.Bus
	Logger pslog.Logger
}
