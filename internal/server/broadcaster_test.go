package server

import (
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonhollow/werewolf-server/internal/game"
)

// fakeSink records delivered messages in order.
type fakeSink struct {
	mu       sync.Mutex
	messages []*Message
	closed   bool
	failSend bool
}

func (f *fakeSink) SendMessage(msg *Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSend {
		return errors.New("sink gone")
	}
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakeSink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSink) all() []*Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Message(nil), f.messages...)
}

func testBroadcaster() *Broadcaster {
	return NewBroadcaster(log.NewWithOptions(io.Discard, log.Options{}))
}

func broadcastState(version uint64) game.GameState {
	return game.GameState{
		GameID: "bcast-test",
		Day:    1,
		Phase:  game.PhaseNightWerewolf,
		Seats: []game.Seat{
			{ID: 1, Name: "player-1", Role: game.RoleVillager, Alive: true},
			{ID: 2, Name: "player-2", Role: game.RoleWerewolf, Alive: true},
			{ID: 3, Name: "player-3", Role: game.RoleSeer, Alive: true},
		},
		Version: version,
	}
}

func decodeUpdate(t *testing.T, msg *Message) UpdateData {
	t.Helper()
	require.Equal(t, MessageTypeUpdate, msg.Type)
	var data UpdateData
	require.NoError(t, json.Unmarshal(msg.Data, &data))
	return data
}

func TestBroadcasterDeliversFilteredSnapshots(t *testing.T) {
	b := testBroadcaster()
	villager := &fakeSink{}
	wolf := &fakeSink{}
	b.Subscribe("bcast-test", 1, villager)
	b.Subscribe("bcast-test", 2, wolf)

	b.OnEvent(game.NewSnapshotEvent(broadcastState(5)))

	require.Len(t, villager.all(), 1)
	update := decodeUpdate(t, villager.all()[0])
	assert.Equal(t, uint64(5), update.Version)
	assert.Equal(t, game.Role(""), update.State.Seats[1].Role, "villager should not see the wolf's role")

	require.Len(t, wolf.all(), 1)
	update = decodeUpdate(t, wolf.all()[0])
	assert.Equal(t, game.RoleWerewolf, update.State.Seats[1].Role, "wolf sees itself")
}

func TestBroadcasterDropsStaleVersions(t *testing.T) {
	b := testBroadcaster()
	sink := &fakeSink{}
	b.Subscribe("bcast-test", 1, sink)

	b.OnEvent(game.NewSnapshotEvent(broadcastState(5)))
	b.OnEvent(game.NewSnapshotEvent(broadcastState(3)))
	b.OnEvent(game.NewSnapshotEvent(broadcastState(5)))
	b.OnEvent(game.NewSnapshotEvent(broadcastState(6)))

	msgs := sink.all()
	require.Len(t, msgs, 2)
	assert.Equal(t, uint64(5), decodeUpdate(t, msgs[0]).Version)
	assert.Equal(t, uint64(6), decodeUpdate(t, msgs[1]).Version)
}

func TestBroadcasterAllowsVersionGaps(t *testing.T) {
	b := testBroadcaster()
	sink := &fakeSink{}
	b.Subscribe("bcast-test", 1, sink)

	b.OnEvent(game.NewSnapshotEvent(broadcastState(2)))
	b.OnEvent(game.NewSnapshotEvent(broadcastState(9)))

	msgs := sink.all()
	require.Len(t, msgs, 2)
	assert.Equal(t, uint64(9), decodeUpdate(t, msgs[1]).Version)
}

func TestBroadcasterClosesChannelsOnFinish(t *testing.T) {
	b := testBroadcaster()
	sink := &fakeSink{}
	b.Subscribe("bcast-test", 1, sink)

	final := broadcastState(7)
	final.Phase = game.PhaseFinished
	final.Result = game.ResultVillageWin
	b.OnEvent(game.NewSnapshotEvent(final))

	msgs := sink.all()
	require.Len(t, msgs, 2)
	assert.Equal(t, MessageTypeUpdate, msgs[0].Type)
	require.Equal(t, MessageTypeGameFinished, msgs[1].Type)

	var data GameFinishedData
	require.NoError(t, json.Unmarshal(msgs[1].Data, &data))
	assert.Equal(t, "village_win", data.Result)
	assert.True(t, sink.closed)

	// The subscription is gone, later events go nowhere.
	b.OnEvent(game.NewSnapshotEvent(broadcastState(8)))
	assert.Len(t, sink.all(), 2)
}

func TestBroadcasterForwardsAutomationPause(t *testing.T) {
	b := testBroadcaster()
	sink := &fakeSink{}
	b.Subscribe("bcast-test", 1, sink)

	b.OnEvent(game.NewAutomationPauseEvent("bcast-test", "3 consecutive AI failures", 3))

	msgs := sink.all()
	require.Len(t, msgs, 1)
	require.Equal(t, MessageTypePaused, msgs[0].Type)

	var data PausedData
	require.NoError(t, json.Unmarshal(msgs[0].Data, &data))
	assert.Equal(t, 3, data.Failures)
}

func TestBroadcasterDropsDeadSinks(t *testing.T) {
	b := testBroadcaster()
	dead := &fakeSink{failSend: true}
	live := &fakeSink{}
	b.Subscribe("bcast-test", 1, dead)
	b.Subscribe("bcast-test", 2, live)

	b.OnEvent(game.NewSnapshotEvent(broadcastState(1)))
	b.OnEvent(game.NewSnapshotEvent(broadcastState(2)))

	assert.Len(t, live.all(), 2)
	assert.Empty(t, dead.all())
}

// reentrantSink unsubscribes itself on Close, the way a live websocket
// connection does. Send failures also close, mirroring the backpressure
// path.
type reentrantSink struct {
	fakeSink
	b    *Broadcaster
	id   string
	full bool
}

func (r *reentrantSink) SendMessage(msg *Message) error {
	if r.full {
		_ = r.Close()
		return errors.New("send buffer full")
	}
	return r.fakeSink.SendMessage(msg)
}

func (r *reentrantSink) Close() error {
	r.b.Unsubscribe("bcast-test", r.id)
	return r.fakeSink.Close()
}

func TestBroadcasterSurvivesReentrantClose(t *testing.T) {
	b := testBroadcaster()
	sink := &reentrantSink{b: b}
	sink.id = b.Subscribe("bcast-test", 1, sink)

	final := broadcastState(7)
	final.Phase = game.PhaseFinished
	final.Result = game.ResultVillageWin

	done := make(chan struct{})
	go func() {
		b.OnEvent(game.NewSnapshotEvent(final))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("OnEvent did not return: sink callback deadlocked the broadcaster")
	}

	msgs := sink.all()
	require.Len(t, msgs, 2)
	assert.Equal(t, MessageTypeGameFinished, msgs[1].Type)
	assert.True(t, sink.closed)
}

func TestBroadcasterSurvivesReentrantSendFailure(t *testing.T) {
	b := testBroadcaster()
	stuck := &reentrantSink{b: b, full: true}
	stuck.id = b.Subscribe("bcast-test", 1, stuck)
	live := &fakeSink{}
	b.Subscribe("bcast-test", 2, live)

	done := make(chan struct{})
	go func() {
		b.OnEvent(game.NewSnapshotEvent(broadcastState(1)))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("OnEvent did not return after a failed send closed its own sink")
	}

	assert.True(t, stuck.closed)
	assert.Len(t, live.all(), 1)

	b.OnEvent(game.NewSnapshotEvent(broadcastState(2)))
	assert.Empty(t, stuck.all())
	assert.Len(t, live.all(), 2)
}

func TestBroadcasterUnsubscribeStopsDelivery(t *testing.T) {
	b := testBroadcaster()
	sink := &fakeSink{}
	id := b.Subscribe("bcast-test", 1, sink)

	b.OnEvent(game.NewSnapshotEvent(broadcastState(1)))
	b.Unsubscribe("bcast-test", id)
	b.OnEvent(game.NewSnapshotEvent(broadcastState(2)))

	assert.Len(t, sink.all(), 1)
}
