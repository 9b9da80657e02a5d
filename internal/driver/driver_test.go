package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonhollow/werewolf-server/internal/bot"
	"github.com/moonhollow/werewolf-server/internal/game"
)

func testLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{})
}

func aiSession(roles ...game.Role) *game.Session {
	seats := make([]game.Seat, len(roles))
	for i, role := range roles {
		seats[i] = game.Seat{
			ID:    i + 1,
			Name:  fmt.Sprintf("bot-%d", i+1),
			Kind:  game.SeatAI,
			Role:  role,
			Alive: true,
		}
	}
	return game.NewSession(game.NewState("driver-test", seats), game.SessionConfig{
		PhaseTimeout: 50 * time.Millisecond,
		Logger:       testLogger(),
	})
}

func TestDriverPlaysAFullGame(t *testing.T) {
	session := aiSession(game.RoleWerewolf, game.RoleWerewolf, game.RoleSeer, game.RoleWitch, game.RoleVillager, game.RoleVillager)

	rng := rand.New(rand.NewSource(42))
	deciders := make(map[int]game.Decider)
	for seat := 1; seat <= 6; seat++ {
		deciders[seat] = bot.NewRandBot(rng, testLogger())
	}

	d := New(session, deciders, Config{
		PollInterval: 10 * time.Millisecond,
		Logger:       testLogger(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	err := d.Run(ctx)
	require.NoError(t, err, "the game must finish before the test deadline")

	snap := session.Snapshot()
	assert.True(t, snap.Finished())
	assert.NotEmpty(t, snap.Result)
	assert.False(t, snap.Errored)
}

// failingDecider always errors, optionally after a controllable switch.
type failingDecider struct {
	ok    atomic.Bool
	inner game.Decider
}

func (f *failingDecider) Decide(ctx context.Context, snapshot game.GameState, seat int, legal []game.LegalAction) (game.Decision, error) {
	if f.ok.Load() {
		return f.inner.Decide(ctx, snapshot, seat, legal)
	}
	return game.Decision{}, errors.New("model unavailable")
}

func TestDriverPausesAfterRepeatedFailures(t *testing.T) {
	session := aiSession(game.RoleWerewolf, game.RoleWerewolf, game.RoleVillager, game.RoleVillager, game.RoleVillager)

	flaky := &failingDecider{inner: bot.NewRandBot(rand.New(rand.NewSource(1)), testLogger())}
	deciders := map[int]game.Decider{1: flaky, 2: flaky}

	var mu sync.Mutex
	var pauses []game.AutomationPauseEvent
	session.Bus().Subscribe(eventFunc(func(e game.Event) {
		if pe, ok := e.(game.AutomationPauseEvent); ok {
			mu.Lock()
			pauses = append(pauses, pe)
			mu.Unlock()
		}
	}))

	d := New(session, deciders, Config{
		MaxFailures:  3,
		PollInterval: 5 * time.Millisecond,
		Logger:       testLogger(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.Eventually(t, d.Paused, 5*time.Second, 5*time.Millisecond, "driver must pause after repeated failures")

	mu.Lock()
	require.NotEmpty(t, pauses)
	assert.Equal(t, "driver-test", pauses[0].GameID)
	assert.Equal(t, 3, pauses[0].Failures)
	mu.Unlock()

	// the game is untouched by the failures and resumes once the decider
	// recovers
	before := session.Snapshot()
	assert.Equal(t, game.PhaseNightWerewolfChat, before.Phase)

	flaky.ok.Store(true)
	d.Resume()
	require.Eventually(t, func() bool {
		return session.Snapshot().Finished()
	}, 15*time.Second, 10*time.Millisecond)

	cancel()
	err := <-done
	if err != nil {
		require.ErrorIs(t, err, context.Canceled)
	}
}

// stallingDecider never answers until its context is cancelled.
type stallingDecider struct{}

func (stallingDecider) Decide(ctx context.Context, snapshot game.GameState, seat int, legal []game.LegalAction) (game.Decision, error) {
	<-ctx.Done()
	return game.Decision{}, ctx.Err()
}

func TestDriverTimesOutStalledDeciders(t *testing.T) {
	session := aiSession(game.RoleWerewolf, game.RoleWerewolf, game.RoleVillager, game.RoleVillager, game.RoleVillager)
	deciders := map[int]game.Decider{1: stallingDecider{}, 2: stallingDecider{}}

	d := New(session, deciders, Config{
		DecideTimeout: 20 * time.Millisecond,
		MaxFailures:   2,
		PollInterval:  5 * time.Millisecond,
		Logger:        testLogger(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.Eventually(t, d.Paused, 5*time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestDriverStepsElapsedPhases(t *testing.T) {
	// no deciders at all: every phase must close through the timeout
	session := aiSession(game.RoleWerewolf, game.RoleWerewolf, game.RoleVillager, game.RoleVillager, game.RoleVillager)
	d := New(session, nil, Config{
		PollInterval: 10 * time.Millisecond,
		Logger:       testLogger(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.Eventually(t, func() bool {
		return session.Snapshot().Day >= 2
	}, 10*time.Second, 10*time.Millisecond, "forced skips must keep the days turning")

	cancel()
	<-done
}

// eventFunc adapts a function to the game.EventSubscriber interface.
type eventFunc func(game.Event)

func (f eventFunc) OnEvent(e game.Event) { f(e) }
