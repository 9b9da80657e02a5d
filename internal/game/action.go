package game

// ActionType represents a game action type with type safety
type ActionType string

const (
	ActionKill         ActionType = "kill"
	ActionVerify       ActionType = "verify"
	ActionSave         ActionType = "save"
	ActionPoison       ActionType = "poison"
	ActionVote         ActionType = "vote"
	ActionShoot        ActionType = "shoot"
	ActionProtect      ActionType = "protect"
	ActionSelfDestruct ActionType = "self_destruct"
	ActionSpeak        ActionType = "speak"
	ActionSkip         ActionType = "skip"
)

// String returns the string representation of the action type
func (at ActionType) String() string {
	return string(at)
}

// Valid reports whether at is a known action type.
func (at ActionType) Valid() bool {
	switch at {
	case ActionKill, ActionVerify, ActionSave, ActionPoison, ActionVote,
		ActionShoot, ActionProtect, ActionSelfDestruct, ActionSpeak, ActionSkip:
		return true
	}
	return false
}

// NeedsTarget reports whether the action type carries a target seat.
func (at ActionType) NeedsTarget() bool {
	switch at {
	case ActionKill, ActionVerify, ActionSave, ActionPoison, ActionVote,
		ActionShoot, ActionProtect:
		return true
	}
	return false
}

// Action is a single submitted move for the current phase. It is consumed
// exactly once by phase resolution and survives only as the log entry it
// produces.
type Action struct {
	Seat    int        `json:"seat"`
	Type    ActionType `json:"type"`
	Target  int        `json:"target,omitempty"` // 0 = no target
	Content string     `json:"content,omitempty"`
}

// Decision is what a decider (human proxy or AI) returns for a seat.
type Decision struct {
	Type      ActionType
	Target    int
	Content   string
	Reasoning string
}

// ToAction binds a decision to the submitting seat.
func (d Decision) ToAction(seat int) Action {
	return Action{Seat: seat, Type: d.Type, Target: d.Target, Content: d.Content}
}
