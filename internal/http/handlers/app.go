package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"doctrans/internal/glossary"
	"doctrans/internal/history"
	"doctrans/internal/infra"
	"doctrans/internal/storage"
	"doctrans/internal/task"
)

// App bundles the handler dependencies: orchestration core, stores, and
// the WebSocket upgrader for the progress stream.
type App struct {
	Logger         infra.Logger
	Orchestrator   *task.Orchestrator
	Store          *storage.FileStore
	Glossaries     *glossary.Store
	History        *history.Store
	DefaultModel   string
	DefaultBaseURL string
	MaxUploadBytes int64
	Upgrader       websocket.Upgrader
}

// NewApp wires an App with a permissive upgrader; origin policy is
// enforced by the CORS middleware in front of it.
func NewApp(logger infra.Logger, orch *task.Orchestrator, store *storage.FileStore, glossaries *glossary.Store, hist *history.Store) *App {
	return &App{
		Logger:       logger,
		Orchestrator: orch,
		Store:        store,
		Glossaries:   glossaries,
		History:      hist,
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]string{"error": errCode, "message": message})
}
