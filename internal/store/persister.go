package store

import (
	"github.com/charmbracelet/log"

	"github.com/moonhollow/werewolf-server/internal/game"
)

// Persister writes every published snapshot to a SnapshotStore. It
// subscribes to a session's event bus; persistence failures are logged and
// never fed back into the engine.
type Persister struct {
	store  SnapshotStore
	logger *log.Logger
}

// NewPersister creates a persister over a store.
func NewPersister(store SnapshotStore, logger *log.Logger) *Persister {
	if logger == nil {
		logger = log.Default()
	}
	return &Persister{store: store, logger: logger.WithPrefix("persister")}
}

// OnEvent implements game.EventSubscriber.
func (p *Persister) OnEvent(e game.Event) {
	snap, ok := e.(game.SnapshotEvent)
	if !ok {
		return
	}
	if err := p.store.Save(snap.State); err != nil {
		p.logger.Error("Failed to persist snapshot",
			"game", snap.State.GameID, "version", snap.State.Version, "error", err)
	}
}
