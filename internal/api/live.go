package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talgya/ascension/internal/ascension"
)

const (
	liveIdleTimeout  = 5 * time.Minute
	liveWriteTimeout = 5 * time.Second
	liveMaxMessage   = 4 * 1024
)

type liveError struct {
	Error string `json:"error"`
}

// handleLive upgrades /api/v1/ascension/{island}/live to a websocket. The
// server first sends the current pyramid, then answers every submitted state
// (one per form edit) with the recomputed pyramid after persisting it.
// Invalid states and edits over the write rate limit get an error message
// and the session continues.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	island, ok := islandFromPath(r.URL.Path, ascensionPrefix, liveSuffix)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown island path")
		return
	}
	order := r.URL.Query().Get("order")
	if order != "desc" {
		order = "asc"
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	conn.SetReadLimit(liveMaxMessage)

	ctx := r.Context()
	client := clientAddr(r)
	log := slog.With("island", island, "remote", client)
	log.Debug("live session opened")

	st, err := s.loadState(ctx, island)
	if err != nil {
		log.Error("load ascension failed", "error", err)
		closeWith(conn, websocket.CloseInternalServerErr, "internal error")
		return
	}
	initial, err := s.respond(island, st, order)
	if err != nil {
		log.Error("compute ascension failed", "error", err)
		closeWith(conn, websocket.CloseInternalServerErr, "internal error")
		return
	}
	if err := writeLive(conn, initial); err != nil {
		return
	}

	for {
		_ = conn.SetReadDeadline(time.Now().Add(liveIdleTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("live session read error", "error", err)
			}
			return
		}

		var next ascension.State
		if err := json.Unmarshal(msg, &next); err != nil {
			if writeLive(conn, liveError{Error: "invalid JSON: " + err.Error()}) != nil {
				return
			}
			continue
		}

		if !s.limiter.Allow(client) {
			if writeLive(conn, liveError{Error: "rate limit exceeded"}) != nil {
				return
			}
			continue
		}

		resp, err := s.apply(ctx, island, next, order)
		if err != nil {
			var inErr *ascension.InputError
			if !errors.As(err, &inErr) {
				log.Error("apply ascension failed", "error", err)
				closeWith(conn, websocket.CloseInternalServerErr, "internal error")
				return
			}
			if writeLive(conn, liveError{Error: inErr.Error()}) != nil {
				return
			}
			continue
		}
		if err := writeLive(conn, resp); err != nil {
			return
		}
	}
}

func writeLive(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
	return conn.WriteJSON(v)
}

func closeWith(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(time.Second))
}
