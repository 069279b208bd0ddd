package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	typeChat  = "chat"
	typePing  = "ping"
	typePong  = "pong"
	typeError = "error"

	readLimit   = 512 * 1024
	readTimeout = 5 * time.Minute
)

type wsRequest struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type wsResponse struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// handleChat answers chat messages of the caller's session over a websocket
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	sess, err := s.session(w, r)
	s.mu.Unlock()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	// carries the session cookie when one was just created
	conn, err := s.upgrader.Upgrade(w, r, w.Header())
	if err != nil {
		log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	conn.SetReadLimit(readLimit)
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		var req wsRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("session", sess.ID).Msg("Websocket read error")
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		var res wsResponse
		switch req.Type {
		case typePing:
			res = wsResponse{Type: typePong}
		case typeChat:
			var payload askRequest
			if err := json.Unmarshal(req.Payload, &payload); err != nil {
				res = wsResponse{Type: typeError, Payload: err.Error()}
				break
			}
			s.mu.Lock()
			sess.Index = s.index
			ans, err := s.ask(r.Context(), sess, payload)
			s.mu.Unlock()
			if err != nil {
				res = wsResponse{Type: typeError, Payload: err.Error()}
				break
			}
			res = wsResponse{Type: typeChat, Payload: ans}
		default:
			res = wsResponse{Type: typeError, Payload: "unknown message type " + req.Type}
		}

		if err := conn.WriteJSON(res); err != nil {
			log.Warn().Err(err).Msg("Websocket write error")
			return
		}
	}
}
