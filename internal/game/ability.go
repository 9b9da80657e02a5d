package game

// Resolution priorities for same-phase effects. Lower resolves first:
// protection is recorded before the kill is computed, the witch acts on the
// tentative kill, and death-triggered shots fire only after eliminations
// are final.
const (
	PriorityGuard   = 10
	PriorityKill    = 20
	PrioritySeer    = 30
	PriorityWitch   = 40
	PrioritySpeech  = 50
	PriorityVote    = 60
	PriorityTrigger = 70
)

// TargetFilter decides whether target is a legal target for actor. A nil
// filter means the action takes no target.
type TargetFilter func(s *GameState, actor, target *Seat) bool

// ActionSpec declares what a role may do in one phase.
type ActionSpec struct {
	Types    []ActionType
	Priority int
	// Mandatory means the phase waits on this seat before it can complete.
	Mandatory bool
	Filter    TargetFilter
}

// Allows reports whether the spec permits the given action type.
func (spec ActionSpec) Allows(at ActionType) bool {
	for _, t := range spec.Types {
		if t == at {
			return true
		}
	}
	return false
}

func aliveNotSelf(s *GameState, actor, target *Seat) bool {
	return target != nil && target.Alive && target.ID != actor.ID
}

func aliveAny(s *GameState, actor, target *Seat) bool {
	return target != nil && target.Alive
}

// guardTarget permits any living seat, including the guard itself, but
// never the same seat two nights running.
func guardTarget(s *GameState, actor, target *Seat) bool {
	if target == nil || !target.Alive {
		return false
	}
	return target.ID != s.LastGuardTarget
}

// poisonTarget forbids poisoning the seat the witch healed the same night,
// whether the heal is already resolved or still pending.
func poisonTarget(s *GameState, actor, target *Seat) bool {
	if target == nil || !target.Alive {
		return false
	}
	if target.ID != s.KillTarget {
		return true
	}
	if s.Healed {
		return false
	}
	for _, a := range s.Pending[actor.ID] {
		if a.Type == ActionSave {
			return false
		}
	}
	return true
}

// abilityTable maps role -> phase -> spec for the night phases, where
// abilities differ per role. Day phases apply uniformly and are handled by
// daySpec below. Referenced, never mutated, at runtime.
var abilityTable = map[Role]map[Phase]ActionSpec{
	RoleGuard: {
		PhaseNightGuard: {
			Types:     []ActionType{ActionProtect, ActionSkip},
			Priority:  PriorityGuard,
			Mandatory: true,
			Filter:    guardTarget,
		},
	},
	RoleWerewolf: wolfNightSpec(),
	RoleWolfKing: wolfNightSpec(),
	RoleWhiteWolfKing: wolfNightSpec(),
	RoleSeer: {
		PhaseNightSeer: {
			Types:     []ActionType{ActionVerify, ActionSkip},
			Priority:  PrioritySeer,
			Mandatory: true,
			Filter:    aliveNotSelf,
		},
	},
	RoleWitch: {
		PhaseNightWitch: {
			Types:     []ActionType{ActionSave, ActionPoison, ActionSkip},
			Priority:  PriorityWitch,
			Mandatory: true,
			Filter:    poisonTarget,
		},
	},
	RoleVillager: {},
	RoleHunter:   {},
	RoleIdiot:    {},
}

func wolfNightSpec() map[Phase]ActionSpec {
	return map[Phase]ActionSpec{
		PhaseNightWerewolfChat: {
			Types:     []ActionType{ActionSpeak, ActionSkip},
			Priority:  PriorityKill,
			Mandatory: true,
		},
		PhaseNightWerewolf: {
			Types:     []ActionType{ActionKill, ActionSkip},
			Priority:  PriorityKill,
			Mandatory: true,
			Filter:    aliveAny,
		},
	}
}

// AbilitiesFor returns the full phase -> spec mapping for a role, including
// the uniform day phases. The returned map is freshly built; callers may
// keep it.
func AbilitiesFor(role Role) map[Phase]ActionSpec {
	out := make(map[Phase]ActionSpec)
	for phase, spec := range abilityTable[role] {
		out[phase] = spec
	}
	out[PhaseDayLastWords] = ActionSpec{
		Types:     []ActionType{ActionSpeak, ActionSkip},
		Priority:  PrioritySpeech,
		Mandatory: true,
	}
	speech := ActionSpec{
		Types:     []ActionType{ActionSpeak, ActionSkip},
		Priority:  PrioritySpeech,
		Mandatory: true,
	}
	if role == RoleWhiteWolfKing {
		speech.Types = append(speech.Types, ActionSelfDestruct)
	}
	out[PhaseDaySpeech] = speech
	out[PhaseDayVote] = ActionSpec{
		Types:     []ActionType{ActionVote, ActionSkip},
		Priority:  PriorityVote,
		Mandatory: true,
		Filter:    aliveNotSelf,
	}
	if role.DeathShot() {
		out[PhaseShoot] = ActionSpec{
			Types:     []ActionType{ActionShoot, ActionSkip},
			Priority:  PriorityTrigger,
			Mandatory: true,
			Filter:    aliveAny,
		}
	}
	if role == RoleWhiteWolfKing {
		out[PhaseCompanionKill] = ActionSpec{
			Types:     []ActionType{ActionKill, ActionSkip},
			Priority:  PriorityTrigger,
			Mandatory: true,
			Filter:    aliveAny,
		}
	}
	return out
}

// specFor looks up the ActionSpec for a role in a phase, or ok=false when
// the role has nothing to do then.
func specFor(role Role, phase Phase) (ActionSpec, bool) {
	spec, ok := AbilitiesFor(role)[phase]
	return spec, ok
}
