package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"doctrans/internal/domain"
)

const progressWriteTimeout = 10 * time.Second

// TranslationProgress streams a task's progress events over a WebSocket.
// A client attaching mid-task first receives the latest known event, then
// live updates in order; the connection closes after the terminal event.
// Disconnecting never affects the task.
func (a *App) TranslationProgress(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task_id")

	events, cancel, err := a.Orchestrator.Subscribe(taskID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "task not found")
			return
		}
		a.error(w, http.StatusInternalServerError, "internal", "subscription failed")
		return
	}
	defer cancel()

	conn, err := a.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the handshake error.
		a.Logger.Debug().Err(err).Str("task_id", taskID).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	// Drain client frames so close messages are processed; the stream is
	// one-way and client payloads are ignored.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	for event := range events {
		_ = conn.SetWriteDeadline(time.Now().Add(progressWriteTimeout))
		if err := conn.WriteJSON(event); err != nil {
			a.Logger.Debug().Err(err).Str("task_id", taskID).Msg("observer detached")
			return
		}
	}

	_ = conn.SetWriteDeadline(time.Now().Add(progressWriteTimeout))
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "task finished"))
}
