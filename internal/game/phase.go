package game

// Phase is a named stage in the daily game cycle. Transitions follow the
// fixed graph implemented by the resolver; the two shot phases and the
// white wolf king companion kill are sub-steps spliced into the day flow
// when a death trigger fires.
type Phase string

const (
	PhaseNightStart        Phase = "night_start"
	PhaseNightGuard        Phase = "night_guard"
	PhaseNightWerewolfChat Phase = "night_werewolf_chat"
	PhaseNightWerewolf     Phase = "night_werewolf"
	PhaseNightSeer         Phase = "night_seer"
	PhaseNightWitch        Phase = "night_witch"
	PhaseDayAnnouncement   Phase = "day_announcement"
	PhaseDayLastWords      Phase = "day_last_words"
	PhaseDaySpeech         Phase = "day_speech"
	PhaseDayVote           Phase = "day_vote"
	PhaseDayVoteResult     Phase = "day_vote_result"
	PhaseShoot             Phase = "shoot"
	PhaseCompanionKill     Phase = "companion_kill"
	PhaseFinished          Phase = "finished"
)

// String returns the string representation of the phase
func (p Phase) String() string {
	return string(p)
}

// Night reports whether the phase belongs to the night cycle.
func (p Phase) Night() bool {
	switch p {
	case PhaseNightStart, PhaseNightGuard, PhaseNightWerewolfChat,
		PhaseNightWerewolf, PhaseNightSeer, PhaseNightWitch:
		return true
	}
	return false
}

// Terminal reports whether the phase ends the game.
func (p Phase) Terminal() bool {
	return p == PhaseFinished
}

// successor returns the phase that follows p in the regular cycle. The shot
// and companion sub-steps are not part of the regular cycle; the resolver
// splices them in and records where to resume.
func (p Phase) successor() Phase {
	switch p {
	case PhaseNightStart:
		return PhaseNightGuard
	case PhaseNightGuard:
		return PhaseNightWerewolfChat
	case PhaseNightWerewolfChat:
		return PhaseNightWerewolf
	case PhaseNightWerewolf:
		return PhaseNightSeer
	case PhaseNightSeer:
		return PhaseNightWitch
	case PhaseNightWitch:
		return PhaseDayAnnouncement
	case PhaseDayAnnouncement:
		return PhaseDayLastWords
	case PhaseDayLastWords:
		return PhaseDaySpeech
	case PhaseDaySpeech:
		return PhaseDayVote
	case PhaseDayVote:
		return PhaseDayVoteResult
	case PhaseDayVoteResult:
		return PhaseNightStart
	default:
		return PhaseFinished
	}
}
