package server

import (
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"github.com/gofrs/uuid"
	"github.com/gorilla/mux"

	"github.com/biswa/coduel-signal/internal/events"
)

type roomResponse struct {
	Code string `json:"code"`
	events.RoomSnapshot
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "coduel-signal",
		"rooms":   s.rooms.Len(),
	})
}

func (s *Server) getRoom(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	snap, ok := s.handler.Lookup(code)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "room not found"})
		return
	}
	writeJSON(w, http.StatusOK, roomResponse{Code: code, RoomSnapshot: snap})
}

// createRoom hands out a code that no live room uses. The room itself is created on first join.
func (s *Server) createRoom(w http.ResponseWriter, r *http.Request) {
	for {
		code := generateRoomCode()
		if _, taken := s.rooms.Get(code); !taken {
			writeJSON(w, http.StatusCreated, map[string]string{"code": code})
			return
		}
	}
}

func generateRoomCode() string {
	return strings.ToUpper(uuid.Must(uuid.NewV4()).String()[:8])
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
