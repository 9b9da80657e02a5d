package game

import "context"

// LegalAction is one entry of a seat's action menu for the current phase.
// Targets lists every seat the action may legally name; it is empty for
// targetless actions.
type LegalAction struct {
	Type    ActionType `json:"type"`
	Targets []int      `json:"targets,omitempty"`
}

// Decider is the decision-making capability bound to a seat: a built-in
// bot, a remote model, or a proxy for a human client. Given a snapshot and
// the seat's legal menu it returns one action, or an error the driver
// counts as a failed turn. Implementations must honor ctx cancellation.
type Decider interface {
	Decide(ctx context.Context, snapshot GameState, seat int, legal []LegalAction) (Decision, error)
}

// LegalActionsFor computes the menu of actions the validator would accept
// from a seat right now. An empty menu means the seat has nothing to do in
// the current phase.
func LegalActionsFor(s *GameState, seat int) []LegalAction {
	actor := s.SeatByID(seat)
	if actor == nil || s.Finished() {
		return nil
	}
	spec, ok := specFor(actor.Role, s.Phase)
	if !ok {
		return nil
	}

	var menu []LegalAction
	for _, at := range spec.Types {
		if at.NeedsTarget() && at != ActionSave {
			var targets []int
			for _, candidate := range s.Seats {
				if Validate(s, Action{Seat: seat, Type: at, Target: candidate.ID}) == nil {
					targets = append(targets, candidate.ID)
				}
			}
			if len(targets) > 0 {
				menu = append(menu, LegalAction{Type: at, Targets: targets})
			}
			continue
		}
		if Validate(s, Action{Seat: seat, Type: at}) == nil {
			menu = append(menu, LegalAction{Type: at})
		}
	}
	return menu
}
