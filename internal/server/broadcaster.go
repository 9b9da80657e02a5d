package server

import (
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/moonhollow/werewolf-server/internal/game"
)

// Sink is the delivery end of a subscription. Connections implement it; so
// do test doubles.
type Sink interface {
	SendMessage(msg *Message) error
	Close() error
}

// subscription binds a sink to one seat's view of one game. lastVersion is
// the newest snapshot version already delivered on this sink.
type subscription struct {
	id          string
	gameID      string
	seat        int
	sink        Sink
	lastVersion uint64
}

// Broadcaster fans session events out to subscribed clients. Each
// subscriber gets seat-filtered snapshots in strictly increasing version
// order; anything at or below the subscription's last delivered version is
// dropped. Gaps are fine, the state is cumulative.
type Broadcaster struct {
	logger *log.Logger

	mu   sync.Mutex
	subs map[string]map[string]*subscription // gameID -> subID -> sub
}

// NewBroadcaster creates a broadcaster with no subscriptions.
func NewBroadcaster(logger *log.Logger) *Broadcaster {
	if logger == nil {
		logger = log.Default()
	}
	return &Broadcaster{
		logger: logger.WithPrefix("broadcaster"),
		subs:   make(map[string]map[string]*subscription),
	}
}

// Subscribe registers a sink for a seat's view of a game and returns the
// subscription id. Seat 0 subscribes the unfiltered operator view.
func (b *Broadcaster) Subscribe(gameID string, seat int, sink Sink) string {
	sub := &subscription{
		id:     uuid.NewString(),
		gameID: gameID,
		seat:   seat,
		sink:   sink,
	}

	b.mu.Lock()
	if b.subs[gameID] == nil {
		b.subs[gameID] = make(map[string]*subscription)
	}
	b.subs[gameID][sub.id] = sub
	b.mu.Unlock()

	b.logger.Debug("Subscribed", "game", gameID, "seat", seat, "sub", sub.id)
	return sub.id
}

// Unsubscribe removes a subscription. The sink is not closed; the caller
// owns it.
func (b *Broadcaster) Unsubscribe(gameID, subID string) {
	b.mu.Lock()
	if subs, ok := b.subs[gameID]; ok {
		delete(subs, subID)
		if len(subs) == 0 {
			delete(b.subs, gameID)
		}
	}
	b.mu.Unlock()
}

// OnEvent implements game.EventSubscriber. Snapshot events become per-seat
// update pushes; automation pauses and game completion get their own
// message types.
func (b *Broadcaster) OnEvent(e game.Event) {
	switch ev := e.(type) {
	case game.SnapshotEvent:
		b.pushSnapshot(&ev.State)
	case game.AutomationPauseEvent:
		b.pushPause(ev)
	}
}

// pushSnapshot delivers one snapshot per subscriber, at most once per
// version. b.mu only guards the subscription map; sinks are never touched
// while it is held, because a sink's Close and backpressure handling call
// back into Unsubscribe.
func (b *Broadcaster) pushSnapshot(st *game.GameState) {
	finished := st.Finished()

	b.mu.Lock()
	var targets []*subscription
	for _, sub := range b.subs[st.GameID] {
		if st.Version <= sub.lastVersion {
			b.logger.Debug("Dropping stale snapshot",
				"game", st.GameID, "sub", sub.id,
				"version", st.Version, "delivered", sub.lastVersion)
			continue
		}
		sub.lastVersion = st.Version
		targets = append(targets, sub)
	}
	var closing []*subscription
	if finished {
		for _, sub := range b.subs[st.GameID] {
			closing = append(closing, sub)
		}
		delete(b.subs, st.GameID)
	}
	b.mu.Unlock()

	for _, sub := range targets {
		view := st.ViewFor(sub.seat)
		msg, err := NewMessage(MessageTypeUpdate, UpdateData{Version: view.Version, State: view})
		if err != nil {
			b.logger.Error("Failed to encode update", "game", st.GameID, "error", err)
			continue
		}
		b.deliver(sub, msg)
	}

	if finished {
		b.finishGame(st, closing)
	}
}

// finishGame sends the final result to every remaining subscriber and
// closes their sinks. The subscriptions are already out of the map, so
// any re-entrant Unsubscribe from a closing sink is a no-op.
func (b *Broadcaster) finishGame(st *game.GameState, closing []*subscription) {
	msg, err := NewMessage(MessageTypeGameFinished, GameFinishedData{
		GameID: st.GameID,
		Result: string(st.Result),
		Day:    st.Day,
	})
	if err != nil {
		b.logger.Error("Failed to encode game_finished", "game", st.GameID, "error", err)
		return
	}

	for _, sub := range closing {
		_ = sub.sink.SendMessage(msg)
		_ = sub.sink.Close()
	}
	b.logger.Info("Game finished, channels closed", "game", st.GameID, "result", st.Result)
}

func (b *Broadcaster) pushPause(ev game.AutomationPauseEvent) {
	msg, err := NewMessage(MessageTypePaused, PausedData{
		GameID:   ev.GameID,
		Reason:   ev.Reason,
		Failures: ev.Failures,
	})
	if err != nil {
		b.logger.Error("Failed to encode paused", "game", ev.GameID, "error", err)
		return
	}

	b.mu.Lock()
	targets := make([]*subscription, 0, len(b.subs[ev.GameID]))
	for _, sub := range b.subs[ev.GameID] {
		targets = append(targets, sub)
	}
	b.mu.Unlock()

	for _, sub := range targets {
		b.deliver(sub, msg)
	}
}

// deliver sends on a subscription and drops it if the sink is gone. Must
// be called without b.mu held; a failed send unsubscribes, and the sink's
// own cleanup may do the same.
func (b *Broadcaster) deliver(sub *subscription, msg *Message) {
	if err := sub.sink.SendMessage(msg); err != nil {
		b.logger.Debug("Dropping dead subscription", "game", sub.gameID, "sub", sub.id, "error", err)
		b.Unsubscribe(sub.gameID, sub.id)
	}
}
