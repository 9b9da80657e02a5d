package game

import "fmt"

// RejectCode classifies why an action was refused. Codes are stable and
// cross the wire as-is.
type RejectCode string

const (
	RejectGameFinished      RejectCode = "game_finished"
	RejectUnknownSeat       RejectCode = "unknown_seat"
	RejectSeatDead          RejectCode = "seat_dead"
	RejectWrongPhase        RejectCode = "wrong_phase"
	RejectRoleForbidden     RejectCode = "role_forbidden"
	RejectNotYourTurn       RejectCode = "not_your_turn"
	RejectAlreadySubmitted  RejectCode = "already_submitted"
	RejectBadAction         RejectCode = "bad_action"
	RejectBadTarget         RejectCode = "bad_target"
	RejectResourceExhausted RejectCode = "resource_exhausted"
	RejectBusy              RejectCode = "busy"
	RejectInternal          RejectCode = "internal_error"
)

// Rejection is a typed, non-fatal refusal of a submitted action.
type Rejection struct {
	Code    RejectCode `json:"code"`
	Message string     `json:"message"`
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.Code, r.Message)
}

func reject(code RejectCode, format string, args ...any) *Rejection {
	return &Rejection{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Validate decides whether an action is legal against the current state.
// It never mutates state and never partially applies anything. Checks run
// in a fixed order so the caller always gets the earliest failure.
func Validate(s *GameState, a Action) *Rejection {
	if s.Finished() {
		return reject(RejectGameFinished, "game %s is finished", s.GameID)
	}
	actor := s.SeatByID(a.Seat)
	if actor == nil {
		return reject(RejectUnknownSeat, "no seat %d", a.Seat)
	}
	if !a.Type.Valid() {
		return reject(RejectBadAction, "unknown action type %q", a.Type)
	}

	// Dead seats act only in the post-death windows: last words for seats
	// that just died, and the death-triggered shot or companion kill for
	// the pending shooter.
	if !actor.Alive {
		switch s.Phase {
		case PhaseDayLastWords:
			if !contains(s.LastWordsOwed, actor.ID) {
				return reject(RejectSeatDead, "seat %d has no last words to give", actor.ID)
			}
		case PhaseShoot, PhaseCompanionKill:
			if s.PendingShooter != actor.ID {
				return reject(RejectSeatDead, "seat %d is dead", actor.ID)
			}
		default:
			return reject(RejectSeatDead, "seat %d is dead", actor.ID)
		}
	}

	spec, ok := specFor(actor.Role, s.Phase)
	if !ok {
		return reject(RejectWrongPhase, "role has no action in phase %s", s.Phase)
	}
	if !spec.Allows(a.Type) {
		return reject(RejectRoleForbidden, "%s may not %s in phase %s", actor.Role, a.Type, s.Phase)
	}

	// Turn-taking phases accept only the seat whose turn it is.
	switch s.Phase {
	case PhaseDaySpeech:
		if actor.ID != s.SpeechTurn {
			return reject(RejectNotYourTurn, "it is seat %d's turn to speak", s.SpeechTurn)
		}
	case PhaseDayLastWords:
		if actor.Alive {
			return reject(RejectWrongPhase, "only seats that just died may speak last words")
		}
	case PhaseShoot, PhaseCompanionKill:
		if actor.ID != s.PendingShooter {
			return reject(RejectNotYourTurn, "seat %d holds the pending shot", s.PendingShooter)
		}
	}

	if s.HasSubmitted(a.Seat, a.Type) {
		return reject(RejectAlreadySubmitted, "seat %d already submitted %s this phase", a.Seat, a.Type)
	}
	// One action per seat per phase, except the witch, who may combine a
	// save with a poison in the same night.
	if len(s.Pending[a.Seat]) > 0 && !witchCombo(s, actor, a) {
		return reject(RejectAlreadySubmitted, "seat %d already acted this phase", a.Seat)
	}

	if rej := validateTarget(s, actor, spec, a); rej != nil {
		return rej
	}
	return validateResources(s, actor, a)
}

// witchCombo reports whether a second submission is a legal witch
// follow-up: a save may be followed by a poison, or by a skip to close the
// night without poisoning.
func witchCombo(s *GameState, actor *Seat, a Action) bool {
	if actor.Role != RoleWitch || s.Phase != PhaseNightWitch {
		return false
	}
	if a.Type != ActionPoison && a.Type != ActionSkip {
		return false
	}
	for _, prev := range s.Pending[actor.ID] {
		if prev.Type != ActionSave {
			return false
		}
	}
	return true
}

func validateTarget(s *GameState, actor *Seat, spec ActionSpec, a Action) *Rejection {
	switch a.Type {
	case ActionSkip, ActionSpeak, ActionSelfDestruct:
		return nil
	case ActionSave:
		// The save's implicit target is the pending kill; no free choice.
		if a.Target != 0 && a.Target != s.KillTarget {
			return reject(RejectBadTarget, "heal applies to the kill target, not seat %d", a.Target)
		}
		return nil
	}
	if !a.Type.NeedsTarget() {
		return nil
	}
	target := s.SeatByID(a.Target)
	if target == nil {
		return reject(RejectBadTarget, "no seat %d", a.Target)
	}
	if spec.Filter != nil && !spec.Filter(s, actor, target) {
		return reject(RejectBadTarget, "seat %d is not a legal target for %s", a.Target, a.Type)
	}
	return nil
}

func validateResources(s *GameState, actor *Seat, a Action) *Rejection {
	switch a.Type {
	case ActionSave:
		if s.HealUsed {
			return reject(RejectResourceExhausted, "heal potion already used")
		}
		if s.KillTarget == 0 {
			return reject(RejectBadTarget, "no kill to heal tonight")
		}
	case ActionPoison:
		if s.PoisonUsed {
			return reject(RejectResourceExhausted, "poison potion already used")
		}
	case ActionShoot:
		if actor.ShotUsed {
			return reject(RejectResourceExhausted, "shot already fired")
		}
	case ActionVote:
		if actor.Revealed {
			return reject(RejectRoleForbidden, "a revealed idiot has no vote")
		}
	}
	return nil
}

func contains(ids []int, id int) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
