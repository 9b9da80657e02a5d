package store

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonhollow/werewolf-server/internal/game"
)

func testStore(t *testing.T) *FileStore {
	t.Helper()
	fs, err := NewFileStore(t.TempDir(), log.NewWithOptions(io.Discard, log.Options{}))
	require.NoError(t, err)
	return fs
}

func sampleState(id string, version uint64) game.GameState {
	return game.GameState{
		GameID: id,
		Day:    2,
		Phase:  game.PhaseDayVote,
		Seats: []game.Seat{
			{ID: 1, Name: "player-1", Role: game.RoleWerewolf, Alive: true},
			{ID: 2, Name: "player-2", Role: game.RoleSeer, Alive: false, DeathCause: game.DeathWerewolf, DeathDay: 1},
			{ID: 3, Name: "player-3", Role: game.RoleVillager, Alive: true},
		},
		Version:    version,
		HealUsed:   true,
		SpeechTurn: 3,
		SeerResults: map[int][]game.SeerResult{
			2: {{Day: 1, Target: 1, Faction: game.FactionWerewolf}},
		},
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	fs := testStore(t)

	require.NoError(t, fs.Save(sampleState("round-trip", 12)))

	loaded, err := fs.Load("round-trip")
	require.NoError(t, err)
	assert.Equal(t, uint64(12), loaded.Version)
	assert.Equal(t, 2, loaded.Day)
	assert.Equal(t, game.PhaseDayVote, loaded.Phase)
	require.Len(t, loaded.Seats, 3)
	assert.Equal(t, game.DeathWerewolf, loaded.Seats[1].DeathCause)
	require.Contains(t, loaded.SeerResults, 2)
	assert.Equal(t, game.FactionWerewolf, loaded.SeerResults[2][0].Faction)
}

func TestFileStoreLoadMissing(t *testing.T) {
	fs := testStore(t)

	_, err := fs.Load("absent")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFileStoreOverwriteKeepsLatest(t *testing.T) {
	fs := testStore(t)

	require.NoError(t, fs.Save(sampleState("game", 3)))
	require.NoError(t, fs.Save(sampleState("game", 7)))

	loaded, err := fs.Load("game")
	require.NoError(t, err)
	assert.Equal(t, uint64(7), loaded.Version)
}

func TestFileStoreRejectsEmptyID(t *testing.T) {
	fs := testStore(t)
	require.Error(t, fs.Save(game.GameState{}))
}

func TestFileStoreList(t *testing.T) {
	fs := testStore(t)

	require.NoError(t, fs.Save(sampleState("alpha", 1)))
	require.NoError(t, fs.Save(sampleState("beta", 1)))

	ids, err := fs.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alpha", "beta"}, ids)
}

func TestFileStoreDelete(t *testing.T) {
	fs := testStore(t)

	require.NoError(t, fs.Save(sampleState("gone", 1)))
	require.NoError(t, fs.Delete("gone"))
	_, err := fs.Load("gone")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, fs.Delete("never-existed"))
}

func TestFileStoreLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir, log.NewWithOptions(io.Discard, log.Options{}))
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, fs.Save(sampleState("busy", uint64(i+1))))
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*.tmp.*"))
	require.NoError(t, err)
	assert.Empty(t, matches)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestPersisterSavesSnapshots(t *testing.T) {
	fs := testStore(t)
	p := NewPersister(fs, log.NewWithOptions(io.Discard, log.Options{}))

	p.OnEvent(game.NewSnapshotEvent(sampleState("pushed", 4)))
	p.OnEvent(game.PhaseChangeEvent{GameID: "pushed", Day: 2, From: game.PhaseDayVote, To: game.PhaseDayVoteResult})

	loaded, err := fs.Load("pushed")
	require.NoError(t, err)
	assert.Equal(t, uint64(4), loaded.Version)
}
