package server

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"golang.org/x/sync/errgroup"

	"github.com/moonhollow/werewolf-server/internal/bot"
	"github.com/moonhollow/werewolf-server/internal/driver"
	"github.com/moonhollow/werewolf-server/internal/game"
	"github.com/moonhollow/werewolf-server/internal/gameid"
)

// GameEntry is one running game: its session plus the driver that
// advances it.
type GameEntry struct {
	ID      string
	Name    string
	Session *game.Session
	Driver  *driver.Driver
	cancel  context.CancelFunc
}

// GameSummary holds lightweight metadata for clients.
type GameSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Phase    string `json:"phase"`
	Day      int    `json:"day"`
	Seats    int    `json:"seats"`
	Alive    int    `json:"alive"`
	Version  uint64 `json:"version"`
	Paused   bool   `json:"paused"`
	Finished bool   `json:"finished"`
	Result   string `json:"result,omitempty"`
}

// CreateGameParams describes a game to start. Seats and Roles must have the
// same length; seat ids are assigned 1..N in Seats order.
type CreateGameParams struct {
	Name         string
	Seats        []game.SeatSpec
	Roles        []game.Role
	Strategy     string        // decider for AI seats: "heuristic" (default) or "rand"
	Seed         int64         // 0 means time-seeded
	PhaseTimeout time.Duration // 0 means the registry default
}

// RegistryConfig carries the knobs shared by every game the registry
// creates.
type RegistryConfig struct {
	PhaseTimeout  time.Duration
	DecideTimeout time.Duration
	MaxFailures   int
	PollInterval  time.Duration
	Clock         quartz.Clock
	Logger        *log.Logger

	// Subscribers are attached to every created game's event bus, in
	// addition to the broadcaster. Snapshot persistence hooks in here.
	Subscribers []game.EventSubscriber
}

// Registry tracks running games and supervises their drivers. Each game's
// driver runs on its own goroutine under a shared errgroup; one stuck game
// never blocks another.
type Registry struct {
	logger      *log.Logger
	clock       quartz.Clock
	cfg         RegistryConfig
	broadcaster *Broadcaster

	mu    sync.RWMutex
	games map[string]*GameEntry

	group *errgroup.Group
	ctx   context.Context
}

// NewRegistry constructs a registry whose drivers live until ctx is
// cancelled.
func NewRegistry(ctx context.Context, broadcaster *Broadcaster, cfg RegistryConfig) *Registry {
	if cfg.Clock == nil {
		cfg.Clock = quartz.NewReal()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	group, gctx := errgroup.WithContext(ctx)
	return &Registry{
		logger:      cfg.Logger.WithPrefix("registry"),
		clock:       cfg.Clock,
		cfg:         cfg,
		broadcaster: broadcaster,
		games:       make(map[string]*GameEntry),
		group:       group,
		ctx:         gctx,
	}
}

// CreateGame deals roles, builds the session and its driver, and starts the
// driver goroutine. AI seats get deciders built from params.Strategy.
func (r *Registry) CreateGame(params CreateGameParams) (*GameEntry, error) {
	seed := params.Seed
	if seed == 0 {
		seed = r.clock.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	seats, err := game.AssignRoles(params.Seats, params.Roles, rng)
	if err != nil {
		return nil, fmt.Errorf("failed to assign roles: %w", err)
	}

	phaseTimeout := params.PhaseTimeout
	if phaseTimeout == 0 {
		phaseTimeout = r.cfg.PhaseTimeout
	}

	id := gameid.Generate()
	session := game.NewSession(game.NewState(id, seats), game.SessionConfig{
		PhaseTimeout: phaseTimeout,
		Clock:        r.cfg.Clock,
		Logger:       r.cfg.Logger,
	})

	deciders := make(map[int]game.Decider)
	for _, seat := range seats {
		if seat.Kind == game.SeatAI {
			decider, err := r.newDecider(params.Strategy, rng)
			if err != nil {
				return nil, err
			}
			deciders[seat.ID] = decider
		}
	}

	drv := driver.New(session, deciders, driver.Config{
		DecideTimeout: r.cfg.DecideTimeout,
		MaxFailures:   r.cfg.MaxFailures,
		PollInterval:  r.cfg.PollInterval,
		Clock:         r.cfg.Clock,
		Logger:        r.cfg.Logger,
	})

	if r.broadcaster != nil {
		session.Bus().Subscribe(r.broadcaster)
	}
	for _, sub := range r.cfg.Subscribers {
		session.Bus().Subscribe(sub)
	}

	gctx, cancel := context.WithCancel(r.ctx)
	entry := &GameEntry{
		ID:      id,
		Name:    params.Name,
		Session: session,
		Driver:  drv,
		cancel:  cancel,
	}

	r.mu.Lock()
	r.games[id] = entry
	r.mu.Unlock()

	r.group.Go(func() error {
		defer cancel()
		if err := drv.Run(gctx); err != nil && gctx.Err() == nil {
			r.logger.Error("Driver stopped with error", "game", id, "error", err)
		}
		// Driver errors stay contained to their game.
		return nil
	})

	r.logger.Info("Created game", "game", id, "name", params.Name, "seats", len(seats), "ai", len(deciders))
	return entry, nil
}

func (r *Registry) newDecider(strategy string, rng *rand.Rand) (game.Decider, error) {
	// Each decider gets its own rng stream so concurrent turns don't race.
	seeded := rand.New(rand.NewSource(rng.Int63()))
	switch strategy {
	case "", "heuristic":
		return bot.NewBot(seeded, r.cfg.Logger), nil
	case "rand":
		return bot.NewRandBot(seeded, r.cfg.Logger), nil
	default:
		return nil, fmt.Errorf("unknown bot strategy %q", strategy)
	}
}

// GetGame retrieves a game by ID.
func (r *Registry) GetGame(id string) (*GameEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.games[id]
	return entry, ok
}

// DeleteGame stops a game's driver and removes it from the registry.
func (r *Registry) DeleteGame(id string) (*GameEntry, bool) {
	r.mu.Lock()
	entry, ok := r.games[id]
	if ok {
		delete(r.games, id)
	}
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	entry.cancel()
	return entry, true
}

// ListGames returns a snapshot of running games, ordered arbitrarily.
func (r *Registry) ListGames() []GameSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	summaries := make([]GameSummary, 0, len(r.games))
	for _, entry := range r.games {
		st := entry.Session.Snapshot()
		summaries = append(summaries, GameSummary{
			ID:       entry.ID,
			Name:     entry.Name,
			Phase:    st.Phase.String(),
			Day:      st.Day,
			Seats:    len(st.Seats),
			Alive:    len(st.AliveSeats()),
			Version:  st.Version,
			Paused:   entry.Driver.Paused(),
			Finished: st.Finished(),
			Result:   string(st.Result),
		})
	}
	return summaries
}

// Resume clears a paused game's failure state and restarts automation.
func (r *Registry) Resume(id string) error {
	entry, ok := r.GetGame(id)
	if !ok {
		return fmt.Errorf("unknown game %s", id)
	}
	entry.Driver.Resume()
	r.logger.Info("Resumed automation", "game", id)
	return nil
}

// Stop cancels every driver and waits for them to exit.
func (r *Registry) Stop() error {
	r.mu.Lock()
	for _, entry := range r.games {
		entry.cancel()
	}
	r.mu.Unlock()
	return r.group.Wait()
}
