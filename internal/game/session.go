package game

import (
	"fmt"
	"io"
	"math/rand"
	"sort"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
)

// SeatSpec describes one participant before roles are dealt.
type SeatSpec struct {
	Name string
	Kind SeatKind
}

// AssignRoles deals the role list to the participants in a random order and
// returns the bound seats, numbered 1..N. Roles are immutable afterwards.
func AssignRoles(specs []SeatSpec, roles []Role, rng *rand.Rand) ([]Seat, error) {
	if len(specs) != len(roles) {
		return nil, fmt.Errorf("have %d participants but %d roles", len(specs), len(roles))
	}
	dealt := append([]Role(nil), roles...)
	rng.Shuffle(len(dealt), func(i, j int) { dealt[i], dealt[j] = dealt[j], dealt[i] })

	seats := make([]Seat, len(specs))
	for i, spec := range specs {
		seats[i] = Seat{
			ID:    i + 1,
			Name:  spec.Name,
			Kind:  spec.Kind,
			Role:  dealt[i],
			Alive: true,
		}
	}
	return seats, nil
}

// NewState builds the initial authoritative state for a game. The state
// sits at night_start of day 0 until the session's first advance.
func NewState(gameID string, seats []Seat) *GameState {
	return &GameState{
		GameID:      gameID,
		Phase:       PhaseNightStart,
		Seats:       append([]Seat(nil), seats...),
		Pending:     make(map[int][]Action),
		SeerResults: make(map[int][]SeerResult),
	}
}

// SessionConfig carries the tunables for one game session.
type SessionConfig struct {
	// PhaseTimeout bounds how long a phase waits on its mandatory actors
	// before Step may force-skip them. Zero disables timeout stepping.
	PhaseTimeout time.Duration
	// LockWait bounds how long a mutating call waits on the session guard
	// before returning a busy rejection.
	LockWait time.Duration
	Clock    quartz.Clock
	Logger   *log.Logger
}

// StepResult reports the outcome of a Step call.
type StepResult struct {
	Version uint64
	Changed bool
}

// Session is the mutable aggregate owning one game's state. All mutation
// happens inside its guard; every other component sees only immutable
// snapshot copies. Sessions for different games share nothing and proceed
// fully in parallel.
type Session struct {
	gameID    string
	lockc     chan struct{}
	state     *GameState
	published atomic.Pointer[GameState]
	bus       EventBus
	clock     quartz.Clock
	logger    *log.Logger

	phaseTimeout time.Duration
	lockWait     time.Duration
	deadline     atomic.Int64
}

// NewSession wraps an initial state and advances it to the first waiting
// phase, committing version 1.
func NewSession(state *GameState, cfg SessionConfig) *Session {
	clock := cfg.Clock
	if clock == nil {
		clock = quartz.NewReal()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	lockWait := cfg.LockWait
	if lockWait == 0 {
		lockWait = 2 * time.Second
	}

	s := &Session{
		gameID:       state.GameID,
		lockc:        make(chan struct{}, 1),
		state:        state,
		bus:          NewEventBus(),
		clock:        clock,
		logger:       logger.WithPrefix("session").With("game", state.GameID),
		phaseTimeout: cfg.PhaseTimeout,
		lockWait:     lockWait,
	}

	r := newResolver(s.state)
	r.transitionTo(PhaseNightStart)
	r.advance()
	s.commit(r)
	return s
}

// GameID returns the game this session owns.
func (s *Session) GameID() string { return s.gameID }

// Bus returns the session's event bus for subscribing to committed events.
func (s *Session) Bus() EventBus { return s.bus }

// Snapshot returns a read-only deep copy of the latest committed state.
// It never blocks mutations in flight: readers see either the pre- or
// post-mutation snapshot, never a partial one.
func (s *Session) Snapshot() GameState {
	return s.published.Load().Clone()
}

// SnapshotFor returns the latest committed state filtered for one seat.
func (s *Session) SnapshotFor(seat int) GameState {
	return s.published.Load().ViewFor(seat)
}

// LegalActions returns the action menu for a seat against the latest
// committed state.
func (s *Session) LegalActions(seat int) []LegalAction {
	snap := s.Snapshot()
	return LegalActionsFor(&snap, seat)
}

// SubmitAction validates and records one action, attempts phase
// completion, and commits. Rejections never mutate state or advance the
// version.
func (s *Session) SubmitAction(a Action) (version uint64, err error) {
	if rej := s.acquire(); rej != nil {
		return 0, rej
	}
	defer s.release()
	defer s.recoverFault(&err)

	if rej := Validate(s.state, a); rej != nil {
		return 0, rej
	}

	work := s.state.Clone()
	work.Pending[a.Seat] = append(work.Pending[a.Seat], a)
	r := newResolver(&work)
	r.advance()

	s.state = &work
	s.commit(r)
	return work.Version, nil
}

// Step commits the current phase if it is already complete, or force-skips
// the missing actors once the phase deadline has elapsed. With nothing to
// do it is a NoOp: calling it twice in a row changes state at most once.
func (s *Session) Step() (res StepResult, err error) {
	if rej := s.acquire(); rej != nil {
		return StepResult{}, rej
	}
	defer s.release()
	defer s.recoverFault(&err)

	st := s.state
	if st.Finished() {
		return StepResult{}, reject(RejectGameFinished, "game %s is finished", s.gameID)
	}

	work := st.Clone()
	r := newResolver(&work)
	timedOut := s.phaseTimeout > 0 && s.clock.Now().UnixNano() >= s.deadline.Load()
	switch {
	case r.phaseComplete():
		// commit the transition below
	case timedOut:
		s.forceSkip(&work, r)
	default:
		return StepResult{Version: st.Version, Changed: false}, nil
	}

	r.advance()
	s.state = &work
	s.commit(r)
	return StepResult{Version: work.Version, Changed: true}, nil
}

// forceSkip records a skip on behalf of every mandatory actor that has not
// yet closed out the phase, so the elapsed phase can resolve.
func (s *Session) forceSkip(work *GameState, r *resolver) {
	skip := func(id int) {
		work.Pending[id] = append(work.Pending[id], Action{Seat: id, Type: ActionSkip})
	}
	switch work.Phase {
	case PhaseNightWitch:
		for _, id := range r.mandatoryActors() {
			if done := work.HasSubmitted(id, ActionSkip) || work.HasSubmitted(id, ActionPoison); !done {
				skip(id)
			}
		}
	default:
		for _, id := range r.mandatoryActors() {
			if len(work.Pending[id]) == 0 {
				skip(id)
			}
		}
	}
	s.logger.Debug("Force-skipped idle actors", "phase", work.Phase)
}

// commit bumps the version, publishes the new snapshot, re-arms the phase
// deadline, and emits the mutation's events in order. Called with the
// guard held.
func (s *Session) commit(r *resolver) {
	s.state.Version++
	snap := s.state.Clone()
	s.published.Store(&snap)
	s.deadline.Store(s.clock.Now().Add(s.phaseTimeout).UnixNano())

	for _, e := range r.events {
		s.bus.Publish(e)
	}
	s.bus.Publish(NewSnapshotEvent(s.state.Clone()))
}

// acquire takes the session guard with a bounded wait, rejecting with busy
// on contention rather than blocking indefinitely.
func (s *Session) acquire() *Rejection {
	timer := s.clock.NewTimer(s.lockWait)
	defer timer.Stop()
	select {
	case s.lockc <- struct{}{}:
		return nil
	case <-timer.C:
		return reject(RejectBusy, "game %s is busy, retry", s.gameID)
	}
}

func (s *Session) release() {
	<-s.lockc
}

// recoverFault catches an unexpected fault in a mutation, marks the game
// errored so operators can see it, and leaves every other game untouched.
// The faulting mutation's working copy is discarded.
func (s *Session) recoverFault(err *error) {
	p := recover()
	if p == nil {
		return
	}
	s.logger.Error("Internal fault while mutating game", "panic", p)
	s.state.Errored = true
	s.state.ErrorMsg = fmt.Sprint(p)
	r := newResolver(s.state)
	r.emit(GameErroredEvent{GameID: s.gameID, Message: s.state.ErrorMsg, timestamp: nowTS()})
	s.commit(r)
	*err = reject(RejectInternal, "internal fault, game marked errored")
}

// PendingAIActors lists the AI-occupied seats the current phase still
// waits on, in seat order. The driver loop uses this to know whom to ask.
func (s *Session) PendingAIActors() []int {
	snap := s.published.Load()
	r := newResolver(snap)
	var ids []int
	for _, id := range r.mandatoryActors() {
		seat := snap.SeatByID(id)
		if seat == nil || seat.Kind != SeatAI {
			continue
		}
		waiting := len(snap.Pending[id]) == 0
		if snap.Phase == PhaseNightWitch {
			// a lone heal leaves the witch's night open for the poison
			waiting = !snap.HasSubmitted(id, ActionSkip) && !snap.HasSubmitted(id, ActionPoison)
		}
		if waiting {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}

// Deadline reports when the current phase may be force-stepped. The zero
// time means timeouts are disabled.
func (s *Session) Deadline() time.Time {
	if s.phaseTimeout == 0 {
		return time.Time{}
	}
	return time.Unix(0, s.deadline.Load())
}
