package bot

import (
	"context"
	"math/rand"

	"github.com/charmbracelet/log"
	"github.com/moonhollow/werewolf-server/internal/game"
)

// RandBot is a simple bot that makes uniform random legal actions
type RandBot struct {
	rng    *rand.Rand
	logger *log.Logger
}

// NewRandBot creates a new RandBot instance
func NewRandBot(rng *rand.Rand, logger *log.Logger) *RandBot {
	return &RandBot{rng: rng, logger: logger}
}

func (r *RandBot) Decide(ctx context.Context, snapshot game.GameState, seat int, legal []game.LegalAction) (game.Decision, error) {
	if err := ctx.Err(); err != nil {
		return game.Decision{}, err
	}
	if len(legal) == 0 {
		return game.Decision{Type: game.ActionSkip, Reasoning: "rand-bot no legal actions"}, nil
	}

	pick := legal[r.rng.Intn(len(legal))]
	decision := game.Decision{Type: pick.Type, Reasoning: "rand-bot random action"}
	if len(pick.Targets) > 0 {
		decision.Target = pick.Targets[r.rng.Intn(len(pick.Targets))]
	}
	if pick.Type == game.ActionSpeak {
		decision.Content = "..."
	}
	return decision, nil
}
