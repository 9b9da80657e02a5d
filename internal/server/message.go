package server

import (
	"encoding/json"
	"time"

	"github.com/moonhollow/werewolf-server/internal/game"
)

// Message represents a WebSocket message envelope
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"requestId,omitempty"`
}

// NewMessage creates a new message with the given type and data
func NewMessage(messageType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		jsonData, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		rawData = jsonData
	}

	return &Message{
		Type:      messageType,
		Data:      rawData,
		Timestamp: time.Now(),
	}, nil
}

// ActionData carries a seat's move for the current phase. The seat comes
// from the connection binding, never from the payload.
type ActionData struct {
	Type    game.ActionType `json:"type"`
	Target  int             `json:"target,omitempty"`
	Content string          `json:"content,omitempty"`
}

// AckData confirms an accepted submission or step
type AckData struct {
	Version uint64 `json:"version"`
	Changed bool   `json:"changed"`
}

// ConnectedData is the first message after a successful join
type ConnectedData struct {
	GameID string         `json:"gameId"`
	Seat   int            `json:"seat"`
	State  game.GameState `json:"state"`
}

// UpdateData carries a filtered snapshot pushed after each state change
type UpdateData struct {
	Version uint64         `json:"version"`
	State   game.GameState `json:"state"`
}

// StepResultData is the step endpoint's response: whether anything
// changed, and the resulting snapshot either way.
type StepResultData struct {
	Version uint64         `json:"version"`
	Changed bool           `json:"changed"`
	State   game.GameState `json:"state"`
}

// PausedData reports automation stopping after repeated AI failures
type PausedData struct {
	GameID   string `json:"gameId"`
	Reason   string `json:"reason"`
	Failures int    `json:"failures"`
}

// GameFinishedData announces the final result before the channel closes
type GameFinishedData struct {
	GameID string `json:"gameId"`
	Result string `json:"result"`
	Day    int    `json:"day"`
}

// GameListData carries game summaries for list_games
type GameListData struct {
	Games []GameSummary `json:"games"`
}

// ErrorData carries a rejection or transport error back to the client
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
