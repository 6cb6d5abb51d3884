package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/tasklink/realtime/internal/auth"
	"github.com/tasklink/realtime/internal/broker"
	"github.com/tasklink/realtime/internal/port"
	"github.com/tasklink/realtime/internal/registry"
)

type WSConfig struct {
	Broker   *broker.Broker
	Registry *registry.Registry
	Verifier *auth.Verifier
	Store    port.MessageStore
	Presence port.Presence

	HistoryLimit   int
	PongWait       time.Duration
	PersistTimeout time.Duration

	RootCtx context.Context
}

func SetupWebSocketRoutes(cfg WSConfig) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/projects/{project_id}", HandleProjectChat(cfg))
	mux.HandleFunc("GET /healthz", handleHealth(cfg.Registry))
	return mux
}

func handleHealth(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":   "ok",
			"rooms":    len(reg.Rooms()),
			"sessions": reg.Sessions(),
		})
	}
}
