package server

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonhollow/werewolf-server/internal/game"
)

func dialGame(t *testing.T, h *testHarness, seat int) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.ts.URL, "http") + fmt.Sprintf("/ws/game/%s?seat=%d", h.entry.ID, seat)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) *Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return &msg
}

func writeMessage(t *testing.T, conn *websocket.Conn, msg *Message) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
}

func clientMessage(t *testing.T, messageType MessageType, requestID string, data interface{}) *Message {
	t.Helper()
	msg, err := NewMessage(messageType, data)
	require.NoError(t, err)
	msg.RequestID = requestID
	return msg
}

func TestWebSocketConnectSendsFilteredSnapshot(t *testing.T) {
	h := newTestHarness(t)

	villagerSeat := 0
	for _, seat := range h.entry.Session.Snapshot().Seats {
		if seat.Role == game.RoleVillager {
			villagerSeat = seat.ID
			break
		}
	}

	conn := dialGame(t, h, villagerSeat)
	msg := readMessage(t, conn)
	require.Equal(t, MessageTypeConnected, msg.Type)

	var data ConnectedData
	require.NoError(t, json.Unmarshal(msg.Data, &data))
	assert.Equal(t, h.entry.ID, data.GameID)
	assert.Equal(t, villagerSeat, data.Seat)
	for _, seat := range data.State.Seats {
		if seat.ID == h.wolfSeat {
			assert.Equal(t, game.Role(""), seat.Role)
		}
	}
}

func TestWebSocketRejectsUnknownGameAndSeat(t *testing.T) {
	h := newTestHarness(t)

	url := "ws" + strings.TrimPrefix(h.ts.URL, "http") + "/ws/game/missing?seat=1"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 404, resp.StatusCode)

	url = "ws" + strings.TrimPrefix(h.ts.URL, "http") + fmt.Sprintf("/ws/game/%s?seat=42", h.entry.ID)
	_, resp, err = websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestWebSocketPingPong(t *testing.T) {
	h := newTestHarness(t)
	conn := dialGame(t, h, 0)
	readMessage(t, conn) // connected

	writeMessage(t, conn, clientMessage(t, MessageTypePing, "req-1", nil))
	msg := readMessage(t, conn)
	assert.Equal(t, MessageTypePong, msg.Type)
	assert.Equal(t, "req-1", msg.RequestID)

	// A bare text ping works without the envelope.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("ping")))
	msg = readMessage(t, conn)
	assert.Equal(t, MessageTypePong, msg.Type)
}

func TestWebSocketSnapshotRequest(t *testing.T) {
	h := newTestHarness(t)
	conn := dialGame(t, h, 0)
	readMessage(t, conn) // connected

	writeMessage(t, conn, clientMessage(t, MessageTypeSnapshot, "req-2", nil))
	msg := readMessage(t, conn)
	require.Equal(t, MessageTypeUpdate, msg.Type)
	assert.Equal(t, "req-2", msg.RequestID)

	var update UpdateData
	require.NoError(t, json.Unmarshal(msg.Data, &update))
	assert.Equal(t, h.entry.Session.Snapshot().Version, update.Version)
}

func TestWebSocketActionFlow(t *testing.T) {
	h := newTestHarness(t)
	conn := dialGame(t, h, h.wolfSeat)
	readMessage(t, conn) // connected

	writeMessage(t, conn, clientMessage(t, MessageTypeAction, "req-3",
		ActionData{Type: game.ActionSpeak, Content: "nice night"}))

	// The commit pushes an update to the subscription and the request gets
	// its ack; their relative order is not fixed.
	types := map[MessageType]*Message{}
	for i := 0; i < 2; i++ {
		msg := readMessage(t, conn)
		types[msg.Type] = msg
	}
	require.Contains(t, types, MessageTypeAck)
	require.Contains(t, types, MessageTypeUpdate)
	assert.Equal(t, "req-3", types[MessageTypeAck].RequestID)

	var update UpdateData
	require.NoError(t, json.Unmarshal(types[MessageTypeUpdate].Data, &update))
	assert.Equal(t, game.PhaseNightWerewolf.String(), update.State.Phase.String())
}

func TestWebSocketActionRejection(t *testing.T) {
	h := newTestHarness(t)
	conn := dialGame(t, h, h.wolfSeat)
	readMessage(t, conn) // connected

	writeMessage(t, conn, clientMessage(t, MessageTypeAction, "req-4",
		ActionData{Type: game.ActionVote, Target: 1}))
	msg := readMessage(t, conn)
	require.Equal(t, MessageTypeError, msg.Type)

	var errData ErrorData
	require.NoError(t, json.Unmarshal(msg.Data, &errData))
	assert.Equal(t, string(game.RejectRoleForbidden), errData.Code)
	assert.Equal(t, "req-4", msg.RequestID)
}

func TestWebSocketOperatorCannotAct(t *testing.T) {
	h := newTestHarness(t)
	conn := dialGame(t, h, 0)
	readMessage(t, conn) // connected

	writeMessage(t, conn, clientMessage(t, MessageTypeAction, "req-5",
		ActionData{Type: game.ActionSpeak, Content: "as the table"}))
	msg := readMessage(t, conn)
	require.Equal(t, MessageTypeError, msg.Type)

	var errData ErrorData
	require.NoError(t, json.Unmarshal(msg.Data, &errData))
	assert.Equal(t, "role_forbidden", errData.Code)
}

func TestWebSocketListGames(t *testing.T) {
	h := newTestHarness(t)
	conn := dialGame(t, h, 0)
	readMessage(t, conn) // connected

	writeMessage(t, conn, clientMessage(t, MessageTypeList, "req-6", nil))
	msg := readMessage(t, conn)
	require.Equal(t, MessageTypeGameList, msg.Type)

	var list GameListData
	require.NoError(t, json.Unmarshal(msg.Data, &list))
	require.Len(t, list.Games, 1)
	assert.Equal(t, h.entry.ID, list.Games[0].ID)
}

func TestWebSocketClosedWhenGameFinishes(t *testing.T) {
	h := newTestHarness(t)
	conn := dialGame(t, h, h.wolfSeat)
	readMessage(t, conn) // connected

	final := h.entry.Session.Snapshot()
	final.Phase = game.PhaseFinished
	final.Result = game.ResultVillageWin
	final.Version++

	// The broadcaster closes finished connections from inside the event
	// callback; publishing must still return.
	published := make(chan struct{})
	go func() {
		h.entry.Session.Bus().Publish(game.NewSnapshotEvent(final))
		close(published)
	}()
	select {
	case <-published:
	case <-time.After(3 * time.Second):
		t.Fatal("publishing the final snapshot did not return")
	}

	msg := readMessage(t, conn)
	require.Equal(t, MessageTypeUpdate, msg.Type)

	var update UpdateData
	require.NoError(t, json.Unmarshal(msg.Data, &update))
	assert.Equal(t, final.Version, update.Version)

	msg = readMessage(t, conn)
	require.Equal(t, MessageTypeGameFinished, msg.Type)

	var finished GameFinishedData
	require.NoError(t, json.Unmarshal(msg.Data, &finished))
	assert.Equal(t, h.entry.ID, finished.GameID)
	assert.Equal(t, string(game.ResultVillageWin), finished.Result)

	// The server hangs up after the final result.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var extra Message
	require.Error(t, conn.ReadJSON(&extra))
}

func TestWebSocketUnknownMessageType(t *testing.T) {
	h := newTestHarness(t)
	conn := dialGame(t, h, 0)
	readMessage(t, conn) // connected

	writeMessage(t, conn, clientMessage(t, MessageType("juggle"), "req-7", nil))
	msg := readMessage(t, conn)
	require.Equal(t, MessageTypeError, msg.Type)

	var errData ErrorData
	require.NoError(t, json.Unmarshal(msg.Data, &errData))
	assert.Equal(t, "unknown_message_type", errData.Code)
}
