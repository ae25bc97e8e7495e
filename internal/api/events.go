package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/kalambet/dreamhouse/internal/project"
)

const wsWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleProjectEvents streams a project's events over a websocket: the
// current snapshot first, then every change until the project is deleted or
// the client goes away.
func handleProjectEvents(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		// Subscribe before reading the snapshot so no change falls between them.
		events, unsubscribe := deps.Broker.Subscribe(id, 64)
		defer unsubscribe()

		current, err := deps.Projects.Get(id)
		if err != nil {
			writeFailure(w, err)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("websocket upgrade failed", "project_id", id, "error", err)
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		go func() {
			defer cancel()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		send := func(ev project.Event) bool {
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				slog.Debug("websocket write failed", "project_id", id, "error", err)
				return false
			}
			return true
		}

		if !send(project.Event{Type: project.EventSnapshot, ProjectID: id, Project: &current, At: time.Now()}) {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok || !send(ev) {
					return
				}
				if ev.Type == project.EventDeleted {
					conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
					conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "project deleted"))
					return
				}
			}
		}
	}
}
