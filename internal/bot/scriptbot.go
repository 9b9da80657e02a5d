package bot

import (
	"context"
	"fmt"
	"sync"

	"github.com/moonhollow/werewolf-server/internal/game"
)

// ScriptBot replays a fixed queue of decisions. It exists for tests and
// regression runs where the game must follow a known line.
type ScriptBot struct {
	mu    sync.Mutex
	queue []game.Decision
}

// NewScriptBot creates a bot that plays the given decisions in order.
func NewScriptBot(decisions ...game.Decision) *ScriptBot {
	return &ScriptBot{queue: decisions}
}

// Push appends more decisions to the script.
func (b *ScriptBot) Push(decisions ...game.Decision) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queue = append(b.queue, decisions...)
}

// Remaining reports how many scripted decisions are left.
func (b *ScriptBot) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

func (b *ScriptBot) Decide(ctx context.Context, snapshot game.GameState, seat int, legal []game.LegalAction) (game.Decision, error) {
	if err := ctx.Err(); err != nil {
		return game.Decision{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) == 0 {
		return game.Decision{}, fmt.Errorf("script exhausted for seat %d in phase %s", seat, snapshot.Phase)
	}
	next := b.queue[0]
	b.queue = b.queue[1:]
	return next, nil
}
