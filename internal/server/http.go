package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/moonhollow/werewolf-server/internal/game"
)

// The HTTP surface is the pull side of the protocol: submit, step, and
// snapshot without holding a socket open. Seat filtering matches the
// WebSocket side; seat 0 is the operator view.

func (s *Server) handleListGames(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, GameListData{Games: s.registry.ListGames()})
}

func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.registry.GetGame(r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrorData{Code: "unknown_game", Message: "game not found"})
		return
	}

	seat := 0
	if raw := r.URL.Query().Get("seat"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, ErrorData{Code: "bad_request", Message: "invalid seat"})
			return
		}
		seat = n
	}

	state := entry.Session.SnapshotFor(seat)
	writeJSON(w, http.StatusOK, UpdateData{Version: state.Version, State: state})
}

func (s *Server) handlePostAction(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.registry.GetGame(r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrorData{Code: "unknown_game", Message: "game not found"})
		return
	}

	var action game.Action
	if err := json.NewDecoder(r.Body).Decode(&action); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorData{Code: "invalid_message", Message: "failed to parse action"})
		return
	}

	if _, err := entry.Session.SubmitAction(action); err != nil {
		writeRejection(w, err)
		return
	}

	// The submitter gets its own filtered view of the state it produced.
	state := entry.Session.SnapshotFor(action.Seat)
	writeJSON(w, http.StatusOK, UpdateData{Version: state.Version, State: state})
}

func (s *Server) handlePostStep(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.registry.GetGame(r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrorData{Code: "unknown_game", Message: "game not found"})
		return
	}

	res, err := entry.Session.Step()
	if err != nil {
		writeRejection(w, err)
		return
	}

	state := entry.Session.Snapshot()
	writeJSON(w, http.StatusOK, StepResultData{Version: res.Version, Changed: res.Changed, State: state})
}

func (s *Server) handlePostResume(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.registry.Resume(id); err != nil {
		writeJSON(w, http.StatusNotFound, ErrorData{Code: "unknown_game", Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, AckData{})
}

// writeRejection maps engine errors onto HTTP statuses: contention is 409,
// engine faults are 500, every validation rejection is 400.
func writeRejection(w http.ResponseWriter, err error) {
	var rej *game.Rejection
	if !errors.As(err, &rej) {
		writeJSON(w, http.StatusInternalServerError, ErrorData{Code: "internal_error", Message: err.Error()})
		return
	}

	status := http.StatusBadRequest
	switch rej.Code {
	case game.RejectBusy:
		status = http.StatusConflict
	case game.RejectInternal:
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, ErrorData{Code: string(rej.Code), Message: rej.Message})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
