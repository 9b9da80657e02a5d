package store

import (
	"errors"

	"github.com/moonhollow/werewolf-server/internal/game"
)

// ErrNotFound is returned when no snapshot exists for a game id.
var ErrNotFound = errors.New("snapshot not found")

// SnapshotStore persists game snapshots. The engine never touches storage
// itself; snapshots flow out through the event bus and whole states come
// back in on load.
type SnapshotStore interface {
	Save(state game.GameState) error
	Load(id string) (game.GameState, error)
	List() ([]string, error)
	Delete(id string) error
}
