package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/moonhollow/werewolf-server/internal/game"
)

// FileStore keeps one JSON file per game under a directory. Writes go
// through a temp file and rename so a reader never sees a partial
// snapshot: either the old file, or the new one.
type FileStore struct {
	dir    string
	logger *log.Logger
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string, logger *log.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot dir: %w", err)
	}
	if logger == nil {
		logger = log.Default()
	}
	return &FileStore{dir: dir, logger: logger.WithPrefix("store")}, nil
}

func (fs *FileStore) path(id string) string {
	return filepath.Join(fs.dir, id+".json")
}

// Save writes the snapshot atomically. Newer versions simply replace older
// files; the version inside the state says which write won.
func (fs *FileStore) Save(state game.GameState) error {
	if state.GameID == "" {
		return fmt.Errorf("refusing to save a snapshot with no game id")
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	final := fs.path(state.GameID)
	tmp, err := os.CreateTemp(fs.dir, state.GameID+".tmp.*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if tmp != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	tmp = nil

	// Rename within one directory is atomic on POSIX filesystems.
	if err := os.Rename(tmpPath, final); err != nil {
		return fmt.Errorf("failed to rename snapshot: %w", err)
	}
	return nil
}

// Load reads a game's last saved snapshot.
func (fs *FileStore) Load(id string) (game.GameState, error) {
	data, err := os.ReadFile(fs.path(id))
	if os.IsNotExist(err) {
		return game.GameState{}, ErrNotFound
	}
	if err != nil {
		return game.GameState{}, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var state game.GameState
	if err := json.Unmarshal(data, &state); err != nil {
		return game.GameState{}, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return state, nil
}

// List returns the ids of every stored game.
func (fs *FileStore) List() ([]string, error) {
	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot dir: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	return ids, nil
}

// Delete removes a game's snapshot. Deleting a missing snapshot is not an
// error.
func (fs *FileStore) Delete(id string) error {
	err := os.Remove(fs.path(id))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}
