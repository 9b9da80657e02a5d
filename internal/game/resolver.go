package game

import (
	"fmt"
	"sort"
	"time"
)

func nowTS() time.Time { return time.Now() }

// resolver walks a game state forward: it applies the pending actions of
// completed phases, runs phase entry effects, and splices in the
// death-triggered sub-steps. One resolver instance serves one mutation;
// the session publishes the collected events after the commit.
type resolver struct {
	state  *GameState
	events []Event
}

func newResolver(s *GameState) *resolver {
	return &resolver{state: s}
}

func (r *resolver) emit(e Event) {
	r.events = append(r.events, e)
}

// advance drives the state machine until it reaches a phase that still
// waits on someone, or the game finishes.
func (r *resolver) advance() {
	s := r.state
	for {
		r.pumpSpeech()
		if s.Finished() {
			return
		}
		if !r.phaseComplete() {
			return
		}
		r.resolvePhase()
		s.clearPending()
		next := r.nextPhase()
		r.transitionTo(next)
	}
}

// mandatoryActors returns the seats the current phase waits on before it
// can complete.
func (r *resolver) mandatoryActors() []int {
	s := r.state
	switch s.Phase {
	case PhaseNightGuard:
		return r.aliveWithRole(func(role Role) bool { return role == RoleGuard })
	case PhaseNightWerewolfChat, PhaseNightWerewolf:
		return r.aliveWithRole(Role.Werewolf)
	case PhaseNightSeer:
		return r.aliveWithRole(func(role Role) bool { return role == RoleSeer })
	case PhaseNightWitch:
		return r.aliveWithRole(func(role Role) bool { return role == RoleWitch })
	case PhaseDayLastWords:
		return append([]int(nil), s.LastWordsOwed...)
	case PhaseDaySpeech:
		if s.SpeechTurn != 0 {
			return []int{s.SpeechTurn}
		}
		return nil
	case PhaseDayVote:
		var ids []int
		for _, seat := range s.AliveSeats() {
			if !seat.Revealed {
				ids = append(ids, seat.ID)
			}
		}
		return ids
	case PhaseShoot, PhaseCompanionKill:
		if s.PendingShooter != 0 {
			return []int{s.PendingShooter}
		}
		return nil
	}
	return nil
}

func (r *resolver) aliveWithRole(match func(Role) bool) []int {
	var ids []int
	for _, seat := range r.state.AliveSeats() {
		if match(seat.Role) {
			ids = append(ids, seat.ID)
		}
	}
	return ids
}

// phaseComplete reports whether every mandatory actor of the current phase
// has acted. Entry-effect phases never wait; the witch phase has its own
// done rule so a heal does not cut off a same-night poison.
func (r *resolver) phaseComplete() bool {
	s := r.state
	switch s.Phase {
	case PhaseNightStart, PhaseDayAnnouncement, PhaseDayVoteResult:
		return true
	case PhaseNightWitch:
		return r.witchDone()
	case PhaseDaySpeech:
		return s.SpeechTurn == 0
	}
	for _, id := range r.mandatoryActors() {
		if len(s.Pending[id]) == 0 {
			return false
		}
	}
	return true
}

// witchDone: the witch is finished once she skips, once she poisons (the
// last-resolving option), or once she heals while holding no poison. A
// heal with the poison still in hand leaves the phase open for it.
func (r *resolver) witchDone() bool {
	s := r.state
	for _, id := range r.mandatoryActors() {
		acts := s.Pending[id]
		if len(acts) == 0 {
			return false
		}
		var done bool
		for _, a := range acts {
			switch a.Type {
			case ActionSkip, ActionPoison:
				done = true
			case ActionSave:
				if s.PoisonUsed {
					done = true
				}
			}
		}
		if !done && len(acts) < 2 {
			return false
		}
	}
	return true
}

// pumpSpeech applies the current speaker's submission, rotating the turn or
// short-circuiting into the companion-kill sub-step on a self destruct.
func (r *resolver) pumpSpeech() {
	s := r.state
	for s.Phase == PhaseDaySpeech && s.SpeechTurn != 0 {
		acts := s.Pending[s.SpeechTurn]
		if len(acts) == 0 {
			return
		}
		act := acts[0]
		delete(s.Pending, s.SpeechTurn)

		if act.Type == ActionSelfDestruct {
			actor := s.SeatByID(act.Seat)
			s.appendLog(0, fmt.Sprintf("Seat %d reveals itself as the white wolf king and self-destructs", act.Seat))
			r.applyDeath(actor, DeathSelfDestruct)
			s.SpeechTurn = 0
			s.clearPending()
			s.PendingShooter = act.Seat
			r.transitionTo(PhaseCompanionKill)
			return
		}

		if act.Type == ActionSpeak && act.Content != "" {
			s.appendLog(act.Seat, act.Content)
		} else {
			s.appendLog(0, fmt.Sprintf("Seat %d passes", act.Seat))
		}
		s.SpeechTurn = r.nextSpeaker(act.Seat)
	}
}

// nextSpeaker returns the next living seat after the given seat id in
// seat-id order, or 0 when the rotation is done.
func (r *resolver) nextSpeaker(after int) int {
	for _, seat := range r.state.AliveSeats() {
		if seat.ID > after {
			return seat.ID
		}
	}
	return 0
}

// resolvePhase consumes the pending actions of the (completed) current
// phase in resolution-priority order.
func (r *resolver) resolvePhase() {
	s := r.state
	switch s.Phase {
	case PhaseNightGuard:
		for _, act := range r.pendingInOrder() {
			if act.Type == ActionProtect {
				s.GuardTarget = act.Target
			}
		}
	case PhaseNightWerewolfChat:
		for _, act := range r.pendingInOrder() {
			if act.Type == ActionSpeak && act.Content != "" {
				s.appendScopedLog(act.Seat, act.Content, VisibilityWerewolf)
			}
		}
	case PhaseNightWerewolf:
		s.KillTarget = r.tallyKillVotes()
	case PhaseNightSeer:
		for _, act := range r.pendingInOrder() {
			if act.Type != ActionVerify {
				continue
			}
			target := s.SeatByID(act.Target)
			if target == nil {
				continue
			}
			if s.SeerResults == nil {
				s.SeerResults = make(map[int][]SeerResult)
			}
			s.SeerResults[act.Seat] = append(s.SeerResults[act.Seat], SeerResult{
				Day:     s.Day,
				Target:  act.Target,
				Faction: target.Role.Faction(),
			})
		}
	case PhaseNightWitch:
		// The save resolves against the tentative kill before the poison
		// lands, matching the declared priorities.
		for _, act := range r.pendingInOrder() {
			switch act.Type {
			case ActionSave:
				if !s.HealUsed && s.KillTarget != 0 {
					s.Healed = true
					s.HealUsed = true
				}
			case ActionPoison:
				if !s.PoisonUsed {
					s.PoisonTarget = act.Target
					s.PoisonUsed = true
				}
			}
		}
	case PhaseDayLastWords:
		for _, act := range r.pendingInOrder() {
			if act.Type == ActionSpeak && act.Content != "" {
				s.appendLog(act.Seat, act.Content)
			}
		}
		s.LastWordsOwed = nil
	case PhaseDayVote:
		s.VoteEliminated = r.tallyDayVotes()
	case PhaseShoot:
		r.resolveShot(ActionShoot, DeathShot)
	case PhaseCompanionKill:
		r.resolveShot(ActionKill, DeathSelfDestruct)
	}
}

// pendingInOrder flattens the pending registry into seat-id order so
// resolution is deterministic.
func (r *resolver) pendingInOrder() []Action {
	s := r.state
	ids := make([]int, 0, len(s.Pending))
	for id := range s.Pending {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	var out []Action
	for _, id := range ids {
		out = append(out, s.Pending[id]...)
	}
	return out
}

// tallyKillVotes picks the plurality kill target among the wolves' votes.
// Ties break to the lowest seat id; all skips means no kill tonight.
func (r *resolver) tallyKillVotes() int {
	counts := make(map[int]int)
	for _, act := range r.pendingInOrder() {
		if act.Type == ActionKill && act.Target != 0 {
			counts[act.Target]++
		}
	}
	return pluralityLowest(counts)
}

// tallyDayVotes logs each vote and returns the strict-plurality target, or
// 0 on a tie or when nobody voted.
func (r *resolver) tallyDayVotes() int {
	s := r.state
	counts := make(map[int]int)
	for _, act := range r.pendingInOrder() {
		switch act.Type {
		case ActionVote:
			counts[act.Target]++
			s.appendLog(0, fmt.Sprintf("Seat %d votes for seat %d", act.Seat, act.Target))
		case ActionSkip:
			s.appendLog(0, fmt.Sprintf("Seat %d abstains", act.Seat))
		}
	}
	best, runnerUp := 0, 0
	target := 0
	for id, n := range counts {
		switch {
		case n > best:
			runnerUp = best
			best = n
			target = id
		case n == best:
			runnerUp = n
		case n > runnerUp:
			runnerUp = n
		}
	}
	if best == 0 || best == runnerUp {
		return 0
	}
	return target
}

func pluralityLowest(counts map[int]int) int {
	best, target := 0, 0
	for id, n := range counts {
		if n > best || (n == best && id < target) {
			best = n
			target = id
		}
	}
	return target
}

// resolveShot consumes the pending shooter's action. The shot chance is
// spent whether fired or skipped.
func (r *resolver) resolveShot(expect ActionType, cause DeathCause) {
	s := r.state
	shooter := s.SeatByID(s.PendingShooter)
	if shooter == nil {
		return
	}
	if s.Phase == PhaseShoot {
		shooter.ShotUsed = true
	}
	for _, act := range s.Pending[shooter.ID] {
		if act.Type != expect || act.Target == 0 {
			continue
		}
		target := s.SeatByID(act.Target)
		if target == nil || !target.Alive {
			continue
		}
		verb := "shoots"
		if cause == DeathSelfDestruct {
			verb = "takes down"
		}
		s.appendLog(0, fmt.Sprintf("Seat %d %s seat %d", shooter.ID, verb, act.Target))
		r.applyDeath(target, cause)
	}
}

// applyDeath finalizes one death and queues any death-triggered shot. A
// dead seat never returns to life.
func (r *resolver) applyDeath(seat *Seat, cause DeathCause) {
	s := r.state
	if seat == nil || !seat.Alive {
		return
	}
	seat.Alive = false
	seat.DeathCause = cause
	seat.DeathDay = s.Day
	r.emit(DeathEvent{GameID: s.GameID, Seat: seat.ID, Cause: cause, Day: s.Day, timestamp: nowTS()})

	if s.Phase == PhaseDayAnnouncement ||
		(s.Phase == PhaseShoot && s.ResumePhase == PhaseDayLastWords) {
		s.LastWordsOwed = append(s.LastWordsOwed, seat.ID)
	}

	if seat.Role.DeathShot() && cause != DeathPoison && !seat.ShotUsed {
		s.ShootQueue = append(s.ShootQueue, seat.ID)
	}
}

// nextPhase picks the successor of the just-resolved phase: the win check
// runs first, then any owed shot sub-step, then the regular cycle.
func (r *resolver) nextPhase() Phase {
	s := r.state
	if result := Evaluate(s.Seats); result != ResultNone {
		s.Result = result
		return PhaseFinished
	}
	if len(s.ShootQueue) > 0 {
		shooter := s.ShootQueue[0]
		s.ShootQueue = s.ShootQueue[1:]
		switch s.Phase {
		case PhaseShoot:
			// chained shot keeps the original resume target
		case PhaseCompanionKill:
			s.ResumePhase = PhaseNightStart
		default:
			s.ResumePhase = s.Phase.successor()
		}
		s.PendingShooter = shooter
		return PhaseShoot
	}
	switch s.Phase {
	case PhaseShoot:
		resume := s.ResumePhase
		s.PendingShooter = 0
		s.ResumePhase = ""
		if resume == "" {
			resume = PhaseNightStart
		}
		return resume
	case PhaseCompanionKill:
		s.PendingShooter = 0
		return PhaseNightStart
	}
	return s.Phase.successor()
}

// transitionTo enters a phase and applies its deterministic entry effects.
func (r *resolver) transitionTo(next Phase) {
	s := r.state
	from := s.Phase
	s.Phase = next
	if from != next {
		r.emit(PhaseChangeEvent{GameID: s.GameID, Day: s.Day, From: from, To: next, timestamp: nowTS()})
	}

	switch next {
	case PhaseNightStart:
		s.Day++
		s.LastGuardTarget = s.GuardTarget
		s.GuardTarget = 0
		s.KillTarget = 0
		s.Healed = false
		s.PoisonTarget = 0
		s.SpeechTurn = 0
		s.LastWordsOwed = nil
		s.VoteEliminated = 0
		s.appendLog(0, fmt.Sprintf("Night %d falls", s.Day))
	case PhaseDayAnnouncement:
		r.announceDawn()
	case PhaseDaySpeech:
		s.SpeechTurn = r.nextSpeaker(0)
	case PhaseDayVoteResult:
		r.applyVoteResult()
	case PhaseFinished:
		s.appendLog(0, fmt.Sprintf("Game over: %s", s.Result))
		r.emit(GameFinishedEvent{GameID: s.GameID, Result: s.Result, Day: s.Day, timestamp: nowTS()})
	}
}

// announceDawn finalizes the night's deaths. Protection and heal each
// cancel the kill alone but cancel each other when they land on the same
// seat; poison is independent and stacks.
func (r *resolver) announceDawn() {
	s := r.state
	var died []int

	if s.KillTarget != 0 {
		protected := s.GuardTarget == s.KillTarget
		if protected == s.Healed {
			if victim := s.SeatByID(s.KillTarget); victim != nil && victim.Alive {
				r.applyDeath(victim, DeathWerewolf)
				died = append(died, victim.ID)
			}
		}
	}
	if s.PoisonTarget != 0 {
		if victim := s.SeatByID(s.PoisonTarget); victim != nil && victim.Alive {
			r.applyDeath(victim, DeathPoison)
			died = append(died, victim.ID)
		}
	}

	sort.Ints(died)
	if len(died) == 0 {
		s.appendLog(0, fmt.Sprintf("Day %d: a peaceful night, nobody died", s.Day))
		return
	}
	s.appendLog(0, fmt.Sprintf("Day %d: seats %s died overnight", s.Day, joinInts(died)))
}

// applyVoteResult eliminates the strict-plurality vote target. Ties mean
// no elimination; a first-time idiot survives, revealed.
func (r *resolver) applyVoteResult() {
	s := r.state
	target := s.VoteEliminated
	s.VoteEliminated = 0
	if target == 0 {
		s.appendLog(0, "The vote is tied, nobody is eliminated")
		return
	}
	seat := s.SeatByID(target)
	if seat == nil || !seat.Alive {
		return
	}
	if seat.Role == RoleIdiot && !seat.Revealed {
		seat.Revealed = true
		s.appendLog(0, fmt.Sprintf("Seat %d is revealed as the idiot and survives, losing its vote", seat.ID))
		return
	}
	s.appendLog(0, fmt.Sprintf("Seat %d is eliminated by vote", seat.ID))
	r.applyDeath(seat, DeathVote)
}

func joinInts(ids []int) string {
	out := ""
	for i, id := range ids {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%d", id)
	}
	return out
}
