package game

// Evaluate is the win condition check, run strictly after a phase's deaths
// are finalized, never mid-phase.
//
// Werewolves win when they equal or outnumber the surviving non-werewolves,
// when no non-werewolf survives, or when every god seat is dead while a
// werewolf remains (only meaningful in setups that seat gods at all). The
// village wins when every werewolf-aligned seat is dead.
func Evaluate(seats []Seat) Result {
	var aliveWolves, aliveOthers, aliveGods, totalGods int
	for _, seat := range seats {
		if seat.Role.God() {
			totalGods++
			if seat.Alive {
				aliveGods++
			}
		}
		if !seat.Alive {
			continue
		}
		if seat.Role.Werewolf() {
			aliveWolves++
		} else {
			aliveOthers++
		}
	}

	if aliveWolves == 0 {
		return ResultVillageWin
	}
	if aliveOthers == 0 || aliveWolves >= aliveOthers {
		return ResultWerewolfWin
	}
	if totalGods > 0 && aliveGods == 0 {
		return ResultWerewolfWin
	}
	return ResultNone
}
