package bot

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/moonhollow/werewolf-server/internal/game"
)

// Bot is a heuristic werewolf AI that satisfies the game.Decider interface.
// It plays its role from the filtered snapshot alone: a wolf knows the pack,
// a seer remembers its verifications, everyone else works off suspicion and
// chance.
type Bot struct {
	rng    *rand.Rand
	logger *log.Logger
}

// NewBot creates a heuristic bot.
func NewBot(rng *rand.Rand, logger *log.Logger) *Bot {
	return &Bot{rng: rng, logger: logger.WithPrefix("bot")}
}

// ThinkingContext accumulates the bot's thoughts during decision making.
type ThinkingContext struct {
	thoughts []string
}

// AddThought appends one thought to the reasoning trail.
func (tc *ThinkingContext) AddThought(thought string) {
	tc.thoughts = append(tc.thoughts, thought)
}

// GetThoughts returns the complete stream of thoughts.
func (tc *ThinkingContext) GetThoughts() string {
	if len(tc.thoughts) == 0 {
		return "No clear reasoning available"
	}
	return strings.Join(tc.thoughts, ". ")
}

// Decide picks one legal action for the seat.
func (b *Bot) Decide(ctx context.Context, snapshot game.GameState, seat int, legal []game.LegalAction) (game.Decision, error) {
	if err := ctx.Err(); err != nil {
		return game.Decision{}, err
	}
	if len(legal) == 0 {
		return game.Decision{}, fmt.Errorf("seat %d has no legal actions in phase %s", seat, snapshot.Phase)
	}

	thinking := &ThinkingContext{}
	me := snapshot.SeatByID(seat)
	if me == nil {
		return game.Decision{}, fmt.Errorf("seat %d not in snapshot", seat)
	}

	decision := b.decideForPhase(&snapshot, me, legal, thinking)
	decision.Reasoning = thinking.GetThoughts()

	b.logger.Debug("Bot decision made",
		"game", snapshot.GameID,
		"seat", seat,
		"phase", snapshot.Phase,
		"decision", decision.Type,
		"target", decision.Target,
		"reasoning", decision.Reasoning)

	return decision, nil
}

func (b *Bot) decideForPhase(s *game.GameState, me *game.Seat, legal []game.LegalAction, thinking *ThinkingContext) game.Decision {
	switch s.Phase {
	case game.PhaseNightGuard:
		return b.decideProtect(s, me, legal, thinking)
	case game.PhaseNightWerewolfChat:
		thinking.AddThought("Coordinating with the pack")
		return game.Decision{Type: game.ActionSpeak, Content: b.wolfChatLine(s, me)}
	case game.PhaseNightWerewolf:
		return b.decideKill(s, me, legal, thinking)
	case game.PhaseNightSeer:
		return b.decideVerify(s, me, legal, thinking)
	case game.PhaseNightWitch:
		return b.decideWitch(s, me, legal, thinking)
	case game.PhaseDayLastWords:
		thinking.AddThought("Leaving last words")
		return game.Decision{Type: game.ActionSpeak, Content: b.lastWordsLine(s, me)}
	case game.PhaseDaySpeech:
		thinking.AddThought("Giving my day speech")
		return game.Decision{Type: game.ActionSpeak, Content: b.speechLine(s, me)}
	case game.PhaseDayVote:
		return b.decideVote(s, me, legal, thinking)
	case game.PhaseShoot, game.PhaseCompanionKill:
		return b.decideShot(s, me, legal, thinking)
	}
	thinking.AddThought("Nothing sensible to do, passing")
	return game.Decision{Type: game.ActionSkip}
}

// decideProtect guards a random seat, leaning on the bot itself early when
// nothing is known yet.
func (b *Bot) decideProtect(s *game.GameState, me *game.Seat, legal []game.LegalAction, thinking *ThinkingContext) game.Decision {
	targets := targetsFor(legal, game.ActionProtect)
	if len(targets) == 0 {
		thinking.AddThought("Nobody left to protect")
		return game.Decision{Type: game.ActionSkip}
	}
	if s.Day == 1 && contains(targets, me.ID) && b.rng.Float64() < 0.5 {
		thinking.AddThought("First night, guarding myself")
		return game.Decision{Type: game.ActionProtect, Target: me.ID}
	}
	target := targets[b.rng.Intn(len(targets))]
	thinking.AddThought(fmt.Sprintf("Guarding seat %d tonight", target))
	return game.Decision{Type: game.ActionProtect, Target: target}
}

// decideKill votes to kill a non-wolf seat. Seats that have spoken a lot
// look like power roles and draw the knife first.
func (b *Bot) decideKill(s *game.GameState, me *game.Seat, legal []game.LegalAction, thinking *ThinkingContext) game.Decision {
	targets := targetsFor(legal, game.ActionKill)
	var prey []int
	for _, id := range targets {
		t := s.SeatByID(id)
		if t == nil || t.Role.Werewolf() {
			continue
		}
		prey = append(prey, id)
	}
	if len(prey) == 0 {
		thinking.AddThought("No prey in reach, holding the knife")
		return game.Decision{Type: game.ActionSkip}
	}
	// pile onto a packmate's earlier vote so the kill does not splinter
	for _, acts := range s.Pending {
		for _, a := range acts {
			if a.Type == game.ActionKill && contains(prey, a.Target) {
				thinking.AddThought(fmt.Sprintf("Following the pack onto seat %d", a.Target))
				return game.Decision{Type: game.ActionKill, Target: a.Target}
			}
		}
	}
	target := b.talkativeTarget(s, prey)
	thinking.AddThought(fmt.Sprintf("Seat %d talks like a power role, killing it", target))
	return game.Decision{Type: game.ActionKill, Target: target}
}

// decideVerify checks the living seat the seer knows least about.
func (b *Bot) decideVerify(s *game.GameState, me *game.Seat, legal []game.LegalAction, thinking *ThinkingContext) game.Decision {
	targets := targetsFor(legal, game.ActionVerify)
	known := make(map[int]bool)
	for _, res := range s.SeerResults[me.ID] {
		known[res.Target] = true
	}
	var unknown []int
	for _, id := range targets {
		if !known[id] {
			unknown = append(unknown, id)
		}
	}
	if len(unknown) == 0 {
		thinking.AddThought("Everyone left is already verified")
		return game.Decision{Type: game.ActionSkip}
	}
	target := unknown[b.rng.Intn(len(unknown))]
	thinking.AddThought(fmt.Sprintf("Verifying seat %d tonight", target))
	return game.Decision{Type: game.ActionVerify, Target: target}
}

// decideWitch heals the first-night kill and holds the poison until the
// game thins out.
func (b *Bot) decideWitch(s *game.GameState, me *game.Seat, legal []game.LegalAction, thinking *ThinkingContext) game.Decision {
	canSave := hasAction(legal, game.ActionSave)
	canPoison := hasAction(legal, game.ActionPoison)

	if canSave && s.KillTarget != 0 {
		if s.KillTarget == me.ID {
			thinking.AddThought("The wolves came for me, drinking the antidote")
			return game.Decision{Type: game.ActionSave}
		}
		if s.Day == 1 || b.rng.Float64() < 0.5 {
			thinking.AddThought(fmt.Sprintf("Healing seat %d", s.KillTarget))
			return game.Decision{Type: game.ActionSave}
		}
	}
	if canPoison && len(s.AliveSeats()) <= 4 && b.rng.Float64() < 0.6 {
		targets := targetsFor(legal, game.ActionPoison)
		if len(targets) > 0 {
			target := targets[b.rng.Intn(len(targets))]
			thinking.AddThought(fmt.Sprintf("Few of us left, poisoning seat %d", target))
			return game.Decision{Type: game.ActionPoison, Target: target}
		}
	}
	thinking.AddThought("Keeping both potions in the bag")
	return game.Decision{Type: game.ActionSkip}
}

// decideVote votes on verified wolves when the bot is a seer, follows the
// pack when it is a wolf, and otherwise picks among the loudest seats.
func (b *Bot) decideVote(s *game.GameState, me *game.Seat, legal []game.LegalAction, thinking *ThinkingContext) game.Decision {
	targets := targetsFor(legal, game.ActionVote)
	if len(targets) == 0 {
		thinking.AddThought("No vote available")
		return game.Decision{Type: game.ActionSkip}
	}

	for _, res := range s.SeerResults[me.ID] {
		if res.Faction == game.FactionWerewolf && contains(targets, res.Target) {
			if t := s.SeatByID(res.Target); t != nil && t.Alive {
				thinking.AddThought(fmt.Sprintf("I verified seat %d as a wolf, voting it out", res.Target))
				return game.Decision{Type: game.ActionVote, Target: res.Target}
			}
		}
	}

	if me.Role.Werewolf() {
		var villagers []int
		for _, id := range targets {
			if t := s.SeatByID(id); t != nil && !t.Role.Werewolf() {
				villagers = append(villagers, id)
			}
		}
		if len(villagers) > 0 {
			target := villagers[b.rng.Intn(len(villagers))]
			thinking.AddThought(fmt.Sprintf("Steering the vote onto seat %d", target))
			return game.Decision{Type: game.ActionVote, Target: target}
		}
	}

	if b.rng.Float64() < 0.15 {
		thinking.AddThought("Nothing convincing either way, abstaining")
		return game.Decision{Type: game.ActionSkip}
	}
	target := b.talkativeTarget(s, targets)
	thinking.AddThought(fmt.Sprintf("Seat %d felt off today, voting it", target))
	return game.Decision{Type: game.ActionVote, Target: target}
}

// decideShot fires at a verified wolf when one is known, otherwise at a
// random living seat. A wolf shooter aims at non-wolves only.
func (b *Bot) decideShot(s *game.GameState, me *game.Seat, legal []game.LegalAction, thinking *ThinkingContext) game.Decision {
	at := game.ActionShoot
	if s.Phase == game.PhaseCompanionKill {
		at = game.ActionKill
	}
	targets := targetsFor(legal, at)
	if len(targets) == 0 {
		thinking.AddThought("Nobody to take with me")
		return game.Decision{Type: game.ActionSkip}
	}

	for _, res := range s.SeerResults[me.ID] {
		if res.Faction == game.FactionWerewolf && contains(targets, res.Target) {
			thinking.AddThought(fmt.Sprintf("Taking the verified wolf in seat %d with me", res.Target))
			return game.Decision{Type: at, Target: res.Target}
		}
	}

	pool := targets
	if me.Role.Werewolf() {
		var villagers []int
		for _, id := range targets {
			if t := s.SeatByID(id); t != nil && !t.Role.Werewolf() {
				villagers = append(villagers, id)
			}
		}
		if len(villagers) > 0 {
			pool = villagers
		}
	}
	target := pool[b.rng.Intn(len(pool))]
	thinking.AddThought(fmt.Sprintf("Firing at seat %d", target))
	return game.Decision{Type: at, Target: target}
}

// talkativeTarget picks the candidate with the most log entries, breaking
// ties randomly. Quiet seats draw less attention.
func (b *Bot) talkativeTarget(s *game.GameState, candidates []int) int {
	counts := make(map[int]int, len(candidates))
	for _, entry := range s.Log {
		counts[entry.Seat]++
	}
	best := candidates[0]
	bestCount := -1
	for _, id := range candidates {
		n := counts[id]
		if n > bestCount || (n == bestCount && b.rng.Intn(2) == 0) {
			best = id
			bestCount = n
		}
	}
	return best
}

func (b *Bot) wolfChatLine(s *game.GameState, me *game.Seat) string {
	lines := []string{
		"The quiet ones worry me, let's take a talker",
		"Someone will claim seer tomorrow, mark them tonight",
		"Spread the votes tomorrow, don't bunch up",
	}
	return lines[b.rng.Intn(len(lines))]
}

func (b *Bot) speechLine(s *game.GameState, me *game.Seat) string {
	lines := []string{
		"I'm an ordinary villager, my vote follows the strongest read",
		"Yesterday's vote pattern looked coordinated to me",
		"I have nothing to hide, check my votes",
		"Whoever pushed hardest yesterday deserves a second look",
	}
	return lines[b.rng.Intn(len(lines))]
}

func (b *Bot) lastWordsLine(s *game.GameState, me *game.Seat) string {
	lines := []string{
		"Don't waste my death, watch who benefits from it",
		"I was just a villager, good luck everyone",
		"Remember who voted against me yesterday",
	}
	return lines[b.rng.Intn(len(lines))]
}

func targetsFor(legal []game.LegalAction, at game.ActionType) []int {
	for _, la := range legal {
		if la.Type == at {
			return la.Targets
		}
	}
	return nil
}

func hasAction(legal []game.LegalAction, at game.ActionType) bool {
	for _, la := range legal {
		if la.Type == at {
			return true
		}
	}
	return false
}

func contains(ids []int, id int) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
