package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/moonhollow/werewolf-server/internal/game"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8192
)

var ErrConnectionClosed = websocket.ErrCloseSent

// Connection represents a WebSocket connection to a client. A connection
// is bound to one seat of one game for its whole lifetime; seat 0 is the
// unfiltered operator view.
type Connection struct {
	conn      *websocket.Conn
	send      chan *Message
	gameID    string
	seat      int
	subID     string
	registry  *Registry
	bcast     *Broadcaster
	logger    *log.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewConnection creates a connection wrapper bound to a game and seat.
func NewConnection(conn *websocket.Conn, gameID string, seat int, registry *Registry, bcast *Broadcaster, logger *log.Logger) *Connection {
	ctx, cancel := context.WithCancel(context.Background())

	return &Connection{
		conn:     conn,
		send:     make(chan *Message, 256),
		gameID:   gameID,
		seat:     seat,
		registry: registry,
		bcast:    bcast,
		logger:   logger.WithPrefix("conn").With("game", gameID, "seat", seat),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start subscribes the connection to game updates, sends the initial
// snapshot, and begins the read/write pumps.
func (c *Connection) Start() {
	go c.writePump()
	go c.readPump()

	c.subID = c.bcast.Subscribe(c.gameID, c.seat, c)

	if entry, ok := c.registry.GetGame(c.gameID); ok {
		state := entry.Session.SnapshotFor(c.seat)
		c.reply("", MessageTypeConnected, ConnectedData{
			GameID: c.gameID,
			Seat:   c.seat,
			State:  state,
		})
	}
}

// Close closes the connection and drops its subscription.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.subID != "" {
			c.bcast.Unsubscribe(c.gameID, c.subID)
		}
		close(c.send)
		err = c.conn.Close()
	})
	return err
}

// SendMessage queues a message for the client. A full send buffer means
// the client has stopped draining; the connection is closed rather than
// letting one slow reader block the broadcaster.
func (c *Connection) SendMessage(msg *Message) error {
	defer func() {
		if r := recover(); r != nil {
			// Channel was closed, expected during shutdown.
			c.logger.Debug("Attempted to send message on closed connection", "error", r)
		}
	}()

	select {
	case c.send <- msg:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	default:
		c.logger.Warn("Connection send buffer full, closing connection")
		_ = c.Close()
		return ErrConnectionClosed
	}
}

// readPump handles incoming messages from the client
func (c *Connection) readPump() {
	defer func() { _ = c.Close() }()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", "error", err)
			}
			break
		}

		// Bare "ping" text frames get a pong without the envelope dance.
		if string(raw) == "ping" {
			c.reply("", MessageTypePong, nil)
			continue
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.sendError("", "invalid_message", "Failed to parse message")
			continue
		}
		c.handleMessage(&msg)
	}
}

// writePump handles outgoing messages to the client
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Error("Failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// handleMessage processes incoming messages from the client
func (c *Connection) handleMessage(msg *Message) {
	c.logger.Debug("Received message", "type", msg.Type)

	switch msg.Type {
	case MessageTypeAction:
		var data ActionData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError(msg.RequestID, "invalid_message", "Failed to parse action data")
			return
		}
		c.handleAction(msg.RequestID, data)

	case MessageTypeStep:
		c.handleStep(msg.RequestID)

	case MessageTypeSnapshot:
		c.handleSnapshot(msg.RequestID)

	case MessageTypeResume:
		c.handleResume(msg.RequestID)

	case MessageTypeList:
		c.reply(msg.RequestID, MessageTypeGameList, GameListData{Games: c.registry.ListGames()})

	case MessageTypePing:
		c.reply(msg.RequestID, MessageTypePong, nil)

	default:
		c.sendError(msg.RequestID, "unknown_message_type", "Unknown message type: "+msg.Type.String())
	}
}

func (c *Connection) handleAction(requestID string, data ActionData) {
	entry, ok := c.registry.GetGame(c.gameID)
	if !ok {
		c.sendError(requestID, "unknown_game", "Game not found: "+c.gameID)
		return
	}
	if c.seat == 0 {
		c.sendError(requestID, "role_forbidden", "The operator view cannot submit actions")
		return
	}

	version, err := entry.Session.SubmitAction(game.Action{
		Seat:    c.seat,
		Type:    data.Type,
		Target:  data.Target,
		Content: data.Content,
	})
	if err != nil {
		c.sendRejection(requestID, err)
		return
	}
	c.reply(requestID, MessageTypeAck, AckData{Version: version, Changed: true})
}

func (c *Connection) handleStep(requestID string) {
	entry, ok := c.registry.GetGame(c.gameID)
	if !ok {
		c.sendError(requestID, "unknown_game", "Game not found: "+c.gameID)
		return
	}

	res, err := entry.Session.Step()
	if err != nil {
		c.sendRejection(requestID, err)
		return
	}
	c.reply(requestID, MessageTypeAck, AckData{Version: res.Version, Changed: res.Changed})
}

func (c *Connection) handleSnapshot(requestID string) {
	entry, ok := c.registry.GetGame(c.gameID)
	if !ok {
		c.sendError(requestID, "unknown_game", "Game not found: "+c.gameID)
		return
	}

	state := entry.Session.SnapshotFor(c.seat)
	c.reply(requestID, MessageTypeUpdate, UpdateData{Version: state.Version, State: state})
}

func (c *Connection) handleResume(requestID string) {
	if err := c.registry.Resume(c.gameID); err != nil {
		c.sendError(requestID, "unknown_game", err.Error())
		return
	}
	c.reply(requestID, MessageTypeAck, AckData{})
}

// sendRejection maps engine errors onto the wire error taxonomy.
func (c *Connection) sendRejection(requestID string, err error) {
	var rej *game.Rejection
	if errors.As(err, &rej) {
		c.sendError(requestID, string(rej.Code), rej.Message)
		return
	}
	c.sendError(requestID, "internal_error", err.Error())
}

// sendError sends an error message to the client
func (c *Connection) sendError(requestID, code, message string) {
	c.reply(requestID, MessageTypeError, ErrorData{Code: code, Message: message})
}

// reply builds a message, tags it with the request id, and queues it.
func (c *Connection) reply(requestID string, messageType MessageType, data interface{}) {
	msg, err := NewMessage(messageType, data)
	if err != nil {
		c.logger.Error("Failed to create message", "type", messageType, "error", err)
		return
	}
	msg.RequestID = requestID
	if err := c.SendMessage(msg); err != nil {
		c.logger.Debug("Failed to send message", "type", messageType, "error", err)
	}
}
