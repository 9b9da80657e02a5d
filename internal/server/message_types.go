package server

// MessageType represents the type of WebSocket message
type MessageType string

// Client to server message types
const (
	MessageTypeAction   MessageType = "action"
	MessageTypeStep     MessageType = "step"
	MessageTypeSnapshot MessageType = "snapshot"
	MessageTypeResume   MessageType = "resume"
	MessageTypeList     MessageType = "list_games"
	MessageTypePing     MessageType = "ping"
)

// Server to client message types
const (
	MessageTypeConnected    MessageType = "connected"
	MessageTypeUpdate       MessageType = "update"
	MessageTypeAck          MessageType = "ack"
	MessageTypeError        MessageType = "error"
	MessageTypePong         MessageType = "pong"
	MessageTypeGameList     MessageType = "game_list"
	MessageTypePaused       MessageType = "paused"
	MessageTypeGameFinished MessageType = "game_finished"
)

// String returns the string representation of the message type
func (mt MessageType) String() string {
	return string(mt)
}
