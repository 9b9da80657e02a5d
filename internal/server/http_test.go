package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonhollow/werewolf-server/internal/game"
)

// testHarness is a server over a registry with one all-human game, so
// nothing moves unless a test pushes it.
type testHarness struct {
	server   *Server
	registry *Registry
	ts       *httptest.Server
	entry    *GameEntry
	wolfSeat int
}

func newTestHarness(t *testing.T, roles ...game.Role) *testHarness {
	t.Helper()
	if len(roles) == 0 {
		roles = []game.Role{game.RoleWerewolf, game.RoleVillager, game.RoleVillager, game.RoleSeer}
	}

	logger := log.NewWithOptions(io.Discard, log.Options{})
	broadcaster := NewBroadcaster(logger)
	ctx, cancel := context.WithCancel(context.Background())
	registry := NewRegistry(ctx, broadcaster, RegistryConfig{
		DecideTimeout: time.Second,
		MaxFailures:   3,
		PollInterval:  time.Hour, // the driver stays out of the way
		Logger:        logger,
	})

	specs := make([]game.SeatSpec, len(roles))
	for i := range specs {
		specs[i] = game.SeatSpec{Name: fmt.Sprintf("player-%d", i+1), Kind: game.SeatHuman}
	}
	entry, err := registry.CreateGame(CreateGameParams{
		Name:  "table",
		Seats: specs,
		Roles: roles,
		Seed:  1,
	})
	require.NoError(t, err)

	s := NewServer("localhost:0", registry, broadcaster, logger)
	ts := httptest.NewServer(s.Handler())

	t.Cleanup(func() {
		ts.Close()
		_ = s.Stop()
		cancel()
		_ = registry.Stop()
	})

	h := &testHarness{server: s, registry: registry, ts: ts, entry: entry}
	for _, seat := range entry.Session.Snapshot().Seats {
		if seat.Role.Werewolf() {
			h.wolfSeat = seat.ID
			break
		}
	}
	require.NotZero(t, h.wolfSeat)
	return h
}

func (h *testHarness) get(t *testing.T, path string, out interface{}) int {
	t.Helper()
	resp, err := http.Get(h.ts.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (h *testHarness) post(t *testing.T, path string, body, out interface{}) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	resp, err := http.Post(h.ts.URL+path, "application/json", &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealthEndpoint(t *testing.T) {
	h := newTestHarness(t)

	resp, err := http.Get(h.ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))
}

func TestListGamesEndpoint(t *testing.T) {
	h := newTestHarness(t)

	var list GameListData
	status := h.get(t, "/games", &list)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, list.Games, 1)
	assert.Equal(t, h.entry.ID, list.Games[0].ID)
	assert.Equal(t, "table", list.Games[0].Name)
	assert.Equal(t, 4, list.Games[0].Seats)
}

func TestSnapshotEndpointFiltersBySeat(t *testing.T) {
	h := newTestHarness(t)

	villagerSeat := 0
	for _, seat := range h.entry.Session.Snapshot().Seats {
		if seat.Role == game.RoleVillager {
			villagerSeat = seat.ID
			break
		}
	}
	require.NotZero(t, villagerSeat)

	var update UpdateData
	status := h.get(t, fmt.Sprintf("/games/%s/snapshot?seat=%d", h.entry.ID, villagerSeat), &update)
	require.Equal(t, http.StatusOK, status)
	for _, seat := range update.State.Seats {
		if seat.ID == h.wolfSeat {
			assert.Equal(t, game.Role(""), seat.Role, "villager view must hide the wolf")
		}
	}

	// The operator view sees everything.
	status = h.get(t, fmt.Sprintf("/games/%s/snapshot", h.entry.ID), &update)
	require.Equal(t, http.StatusOK, status)
	for _, seat := range update.State.Seats {
		assert.NotEmpty(t, seat.Role)
	}
}

func TestSnapshotEndpointUnknownGame(t *testing.T) {
	h := newTestHarness(t)

	var errData ErrorData
	status := h.get(t, "/games/missing/snapshot", &errData)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "unknown_game", errData.Code)
}

func TestActionEndpoint(t *testing.T) {
	h := newTestHarness(t)

	var update UpdateData
	status := h.post(t, "/games/"+h.entry.ID+"/actions",
		game.Action{Seat: h.wolfSeat, Type: game.ActionSpeak, Content: "all quiet"}, &update)
	require.Equal(t, http.StatusOK, status)
	assert.GreaterOrEqual(t, update.Version, uint64(2))

	// The lone wolf has spoken, the chat phase resolves.
	assert.Equal(t, game.PhaseNightWerewolf, update.State.Phase)
}

func TestActionEndpointRejection(t *testing.T) {
	h := newTestHarness(t)

	villagerSeat := 0
	for _, seat := range h.entry.Session.Snapshot().Seats {
		if seat.Role == game.RoleVillager {
			villagerSeat = seat.ID
			break
		}
	}

	var errData ErrorData
	status := h.post(t, "/games/"+h.entry.ID+"/actions",
		game.Action{Seat: villagerSeat, Type: game.ActionSpeak, Content: "hi"}, &errData)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, string(game.RejectWrongPhase), errData.Code)

	status = h.post(t, "/games/"+h.entry.ID+"/actions",
		game.Action{Seat: 99, Type: game.ActionVote, Target: 1}, &errData)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, string(game.RejectUnknownSeat), errData.Code)
}

func TestStepEndpointIsIdempotentWhileWaiting(t *testing.T) {
	h := newTestHarness(t)

	before := h.entry.Session.Snapshot()

	var res StepResultData
	status := h.post(t, "/games/"+h.entry.ID+"/step", nil, &res)
	require.Equal(t, http.StatusOK, status)
	assert.False(t, res.Changed)
	assert.Equal(t, before.Version, res.Version)
	assert.Equal(t, before.Phase, res.State.Phase)
}

func TestResumeEndpoint(t *testing.T) {
	h := newTestHarness(t)

	var ack AckData
	status := h.post(t, "/games/"+h.entry.ID+"/resume", nil, &ack)
	assert.Equal(t, http.StatusOK, status)

	var errData ErrorData
	status = h.post(t, "/games/missing/resume", nil, &errData)
	assert.Equal(t, http.StatusNotFound, status)
}
