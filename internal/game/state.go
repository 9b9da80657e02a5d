package game

import (
	"sort"
	"time"
)

// SeatKind distinguishes who occupies a seat.
type SeatKind string

const (
	SeatHuman SeatKind = "human"
	SeatAI    SeatKind = "ai"
)

// DeathCause records how a seat died.
type DeathCause string

const (
	DeathWerewolf     DeathCause = "werewolf"
	DeathPoison       DeathCause = "poison"
	DeathVote         DeathCause = "vote"
	DeathShot         DeathCause = "shot"
	DeathSelfDestruct DeathCause = "self_destruct"
)

// Seat is a game-assigned slot occupied by exactly one participant for the
// game's duration. Seats are numbered 1..N; seat 0 is reserved for system
// log entries.
type Seat struct {
	ID         int        `json:"id"`
	Name       string     `json:"name"`
	Kind       SeatKind   `json:"kind"`
	Role       Role       `json:"role,omitempty"`
	Alive      bool       `json:"alive"`
	DeathCause DeathCause `json:"deathCause,omitempty"`
	DeathDay   int        `json:"deathDay,omitempty"`

	// Revealed marks an idiot that survived a vote elimination. A revealed
	// idiot's role is public and it loses its vote.
	Revealed bool `json:"revealed,omitempty"`
	// ShotUsed marks a hunter or wolf king that has fired its one shot,
	// and a witch potion-style one-off for shooters only.
	ShotUsed bool `json:"shotUsed,omitempty"`
}

// Visibility scopes a log entry. Public entries go to everyone; werewolf
// entries only to werewolf-aligned seats.
type Visibility string

const (
	VisibilityPublic   Visibility = ""
	VisibilityWerewolf Visibility = "werewolf"
)

// LogEntry is one append-only message log record. Seat 0 is the system.
type LogEntry struct {
	Seat       int        `json:"seat"`
	Day        int        `json:"day"`
	Phase      Phase      `json:"phase"`
	Text       string     `json:"text"`
	Visibility Visibility `json:"visibility,omitempty"`
	At         time.Time  `json:"at"`
}

// SeerResult is one night's private verification, visible only to the seer
// that performed it.
type SeerResult struct {
	Day     int     `json:"day"`
	Target  int     `json:"target"`
	Faction Faction `json:"faction"`
}

// Result is the game outcome.
type Result string

const (
	ResultNone        Result = ""
	ResultWerewolfWin Result = "werewolf_win"
	ResultVillageWin  Result = "village_win"
)

// GameState is the authoritative snapshot of one game. It is plain,
// serializable data: the session hands out deep copies and no consumer ever
// holds a live reference into the session's own copy.
type GameState struct {
	GameID  string        `json:"gameId"`
	Day     int           `json:"day"`
	Phase   Phase         `json:"phase"`
	Seats   []Seat        `json:"seats"`
	Pending map[int][]Action `json:"pending,omitempty"`
	Log     []LogEntry    `json:"log"`
	Result  Result        `json:"result,omitempty"`
	Version uint64        `json:"version"`

	// Errored marks a game whose last mutation hit an internal fault. The
	// game stays readable and manually steppable; automation halts.
	Errored  bool   `json:"errored,omitempty"`
	ErrorMsg string `json:"errorMsg,omitempty"`

	// Night bookkeeping, reset at every night_start.
	GuardTarget     int  `json:"guardTarget,omitempty"`
	LastGuardTarget int  `json:"lastGuardTarget,omitempty"`
	KillTarget      int  `json:"killTarget,omitempty"`
	Healed          bool `json:"healed,omitempty"`
	PoisonTarget    int  `json:"poisonTarget,omitempty"`

	// Witch resources, spent for the rest of the game once used.
	HealUsed   bool `json:"healUsed,omitempty"`
	PoisonUsed bool `json:"poisonUsed,omitempty"`

	// Day flow bookkeeping.
	SpeechTurn     int   `json:"speechTurn,omitempty"` // seat whose turn it is to speak
	LastWordsOwed  []int `json:"lastWordsOwed,omitempty"`
	VoteEliminated int   `json:"voteEliminated,omitempty"` // outcome of the last day_vote tally
	PendingShooter int   `json:"pendingShooter,omitempty"`
	ShootQueue     []int `json:"shootQueue,omitempty"` // seats owed a death-triggered shot
	ResumePhase    Phase `json:"resumePhase,omitempty"` // phase to re-enter after a shot sub-step

	// Private seer knowledge keyed by seer seat id.
	SeerResults map[int][]SeerResult `json:"seerResults,omitempty"`
}

// SeatByID returns the seat with the given id, or nil. The value receiver
// still yields pointers into the shared Seats backing array, and keeps the
// accessor callable on snapshot copies.
func (s GameState) SeatByID(id int) *Seat {
	for i := range s.Seats {
		if s.Seats[i].ID == id {
			return &s.Seats[i]
		}
	}
	return nil
}

// AliveSeats returns living seats in seat-id order.
func (s GameState) AliveSeats() []Seat {
	var alive []Seat
	for _, seat := range s.Seats {
		if seat.Alive {
			alive = append(alive, seat)
		}
	}
	sort.Slice(alive, func(i, j int) bool { return alive[i].ID < alive[j].ID })
	return alive
}

// Finished reports whether the game has ended.
func (s GameState) Finished() bool {
	return s.Phase == PhaseFinished || s.Result != ResultNone
}

// HasSubmitted reports whether the seat already submitted an action of the
// given type this phase.
func (s GameState) HasSubmitted(seat int, at ActionType) bool {
	for _, a := range s.Pending[seat] {
		if a.Type == at {
			return true
		}
	}
	return false
}

// appendLog records a public message log entry. The log is append-only;
// entries are never rewritten or removed.
func (s *GameState) appendLog(seat int, text string) {
	s.appendScopedLog(seat, text, VisibilityPublic)
}

func (s *GameState) appendScopedLog(seat int, text string, vis Visibility) {
	s.Log = append(s.Log, LogEntry{
		Seat:       seat,
		Day:        s.Day,
		Phase:      s.Phase,
		Text:       text,
		Visibility: vis,
		At:         time.Now(),
	})
}

// clearPending empties the pending-action registry on a phase transition.
func (s *GameState) clearPending() {
	s.Pending = make(map[int][]Action)
}

// Clone returns a deep copy of the state.
func (s *GameState) Clone() GameState {
	out := *s
	out.Seats = append([]Seat(nil), s.Seats...)
	out.Log = append([]LogEntry(nil), s.Log...)
	out.LastWordsOwed = append([]int(nil), s.LastWordsOwed...)
	out.ShootQueue = append([]int(nil), s.ShootQueue...)
	out.Pending = make(map[int][]Action, len(s.Pending))
	for seat, actions := range s.Pending {
		out.Pending[seat] = append([]Action(nil), actions...)
	}
	out.SeerResults = make(map[int][]SeerResult, len(s.SeerResults))
	for seat, results := range s.SeerResults {
		out.SeerResults[seat] = append([]SeerResult(nil), results...)
	}
	return out
}

// ViewFor returns a copy of the state filtered for one observing seat.
// Hidden information: other seats' roles (except fellow werewolves and
// revealed idiots), other seats' pending actions (except fellow werewolves'
// kill votes during the werewolf phase), other seers' results, and the
// night bookkeeping that belongs to another role. Once the game is
// finished everything is revealed. Seat 0 is the operator view and sees
// everything.
func (s *GameState) ViewFor(seat int) GameState {
	out := s.Clone()
	if seat == 0 || out.Finished() {
		return out
	}

	viewer := out.SeatByID(seat)
	viewerWolf := viewer != nil && viewer.Role.Werewolf()

	for i := range out.Seats {
		other := &out.Seats[i]
		if other.ID == seat || other.Revealed {
			continue
		}
		if viewerWolf && other.Role.Werewolf() {
			continue
		}
		other.Role = ""
		if other.DeathCause == DeathPoison || other.DeathCause == DeathWerewolf {
			// Overnight deaths are announced without a cause.
			other.DeathCause = ""
		}
	}

	for id := range out.Pending {
		if id == seat {
			continue
		}
		if viewerWolf && s.Phase == PhaseNightWerewolf {
			if owner := s.SeatByID(id); owner != nil && owner.Role.Werewolf() {
				continue
			}
		}
		delete(out.Pending, id)
	}

	if !viewerWolf {
		filtered := out.Log[:0]
		for _, entry := range out.Log {
			if entry.Visibility != VisibilityWerewolf {
				filtered = append(filtered, entry)
			}
		}
		out.Log = filtered
	}

	for id := range out.SeerResults {
		if id != seat {
			delete(out.SeerResults, id)
		}
	}

	// Night bookkeeping is role-private. The witch is told the kill target
	// during her phase; the guard knows its own target.
	if viewer == nil || viewer.Role != RoleWitch {
		out.KillTarget = 0
		out.Healed = false
		out.PoisonTarget = 0
	}
	if viewer == nil || viewer.Role != RoleGuard {
		out.GuardTarget = 0
		out.LastGuardTarget = 0
	}

	return out
}
