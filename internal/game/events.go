package game

import "time"

// EventType represents a game event type with type safety
type EventType string

const (
	EventTypeSnapshot        EventType = "snapshot"
	EventTypePhaseChange     EventType = "phase_change"
	EventTypeDeath           EventType = "death"
	EventTypeGameFinished    EventType = "game_finished"
	EventTypeAutomationPause EventType = "automation_pause"
	EventTypeGameErrored     EventType = "game_errored"
)

// String returns the string representation of the event type
func (et EventType) String() string {
	return string(et)
}

// Event is anything published on a session's bus. Events carry copies of
// state, never live references into the session.
type Event interface {
	EventType() EventType
	Timestamp() time.Time
}

// SnapshotEvent is published once per committed version bump and carries
// the full new snapshot.
type SnapshotEvent struct {
	State     GameState
	timestamp time.Time
}

func (e SnapshotEvent) EventType() EventType { return EventTypeSnapshot }
func (e SnapshotEvent) Timestamp() time.Time { return e.timestamp }

// NewSnapshotEvent creates a snapshot event for a committed state.
func NewSnapshotEvent(state GameState) SnapshotEvent {
	return SnapshotEvent{State: state, timestamp: time.Now()}
}

// PhaseChangeEvent is published when the game enters a new phase.
type PhaseChangeEvent struct {
	GameID    string
	Day       int
	From      Phase
	To        Phase
	timestamp time.Time
}

func (e PhaseChangeEvent) EventType() EventType { return EventTypePhaseChange }
func (e PhaseChangeEvent) Timestamp() time.Time { return e.timestamp }

// DeathEvent is published when a seat's death is finalized.
type DeathEvent struct {
	GameID    string
	Seat      int
	Cause     DeathCause
	Day       int
	timestamp time.Time
}

func (e DeathEvent) EventType() EventType { return EventTypeDeath }
func (e DeathEvent) Timestamp() time.Time { return e.timestamp }

// GameFinishedEvent is published exactly once, when the win evaluator
// reports a winner.
type GameFinishedEvent struct {
	GameID    string
	Result    Result
	Day       int
	timestamp time.Time
}

func (e GameFinishedEvent) EventType() EventType { return EventTypeGameFinished }
func (e GameFinishedEvent) Timestamp() time.Time { return e.timestamp }

// AutomationPauseEvent signals that the driver loop stopped advancing a
// game after repeated AI failures. The game stays manually steppable.
type AutomationPauseEvent struct {
	GameID    string
	Reason    string
	Failures  int
	timestamp time.Time
}

func (e AutomationPauseEvent) EventType() EventType { return EventTypeAutomationPause }
func (e AutomationPauseEvent) Timestamp() time.Time { return e.timestamp }

// NewAutomationPauseEvent creates an automation pause event.
func NewAutomationPauseEvent(gameID, reason string, failures int) AutomationPauseEvent {
	return AutomationPauseEvent{GameID: gameID, Reason: reason, Failures: failures, timestamp: time.Now()}
}

// GameErroredEvent marks a game whose mutation hit an internal fault.
type GameErroredEvent struct {
	GameID    string
	Message   string
	timestamp time.Time
}

func (e GameErroredEvent) EventType() EventType { return EventTypeGameErrored }
func (e GameErroredEvent) Timestamp() time.Time { return e.timestamp }

// EventSubscriber can subscribe to game events
type EventSubscriber interface {
	OnEvent(event Event)
}

// EventBus manages event publishing and subscription
type EventBus interface {
	Subscribe(subscriber EventSubscriber)
	Unsubscribe(subscriber EventSubscriber)
	Publish(event Event)
}

// SimpleEventBus is a basic in-memory event bus implementation
type SimpleEventBus struct {
	subscribers []EventSubscriber
}

// NewEventBus creates a new event bus
func NewEventBus() EventBus {
	return &SimpleEventBus{subscribers: make([]EventSubscriber, 0)}
}

// Subscribe adds a subscriber to receive events
func (bus *SimpleEventBus) Subscribe(subscriber EventSubscriber) {
	bus.subscribers = append(bus.subscribers, subscriber)
}

// Unsubscribe removes a subscriber from receiving events
func (bus *SimpleEventBus) Unsubscribe(subscriber EventSubscriber) {
	for i, sub := range bus.subscribers {
		if sub == subscriber {
			bus.subscribers = append(bus.subscribers[:i], bus.subscribers[i+1:]...)
			break
		}
	}
}

// Publish sends an event to all subscribers
func (bus *SimpleEventBus) Publish(event Event) {
	for _, subscriber := range bus.subscribers {
		subscriber.OnEvent(event)
	}
}
