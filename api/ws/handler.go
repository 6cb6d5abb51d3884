package ws

import (
	"errors"
	"net/http"
	"time"

	gws "github.com/gorilla/websocket"

	"github.com/tasklink/realtime/internal/auth"
	"github.com/tasklink/realtime/internal/broker"
	"github.com/tasklink/realtime/pkg/logger"
)

// Close codes for the two distinct rejection outcomes. Clients react
// differently: 4001 means re-login, 4003 means stop retrying.
const (
	CloseUnauthenticated = 4001
	CloseUnauthorized    = 4003
)

var upgrader = gws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Origin checks are enforced by the fronting proxy.
	},
}

// HandleProjectChat upgrades the connection, resolves the identity from the
// token in the query string or Authorization header, asks the access gate,
// and only then starts the pumps. No inbound frame is read before the join
// completes.
func HandleProjectChat(cfg WSConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logg := logger.FromContext(cfg.RootCtx).WithModule("websocket")

		projectID := r.PathValue("project_id")
		if projectID == "" {
			http.Error(w, "project id required", http.StatusBadRequest)
			return
		}

		user, authErr := cfg.Verifier.Verify(auth.FromRequest(r))

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logg.Errorf("upgrade error: %v", err)
			return
		}

		if authErr != nil {
			closeWith(conn, CloseUnauthenticated, "authentication required")
			return
		}

		session := newConnection(conn, user, projectID, cfg, logg)

		if err := cfg.Broker.Join(r.Context(), user, projectID, session); err != nil {
			switch {
			case errors.Is(err, broker.ErrUnauthorized):
				closeWith(conn, CloseUnauthorized, "not a project member")
			default:
				logg.Errorf("join failed for user %s in project %s: %v", user.ID, projectID, err)
				closeWith(conn, gws.CloseInternalServerErr, "try again later")
			}
			return
		}

		if cfg.Presence != nil {
			if err := cfg.Presence.SetOnline(cfg.RootCtx, user); err != nil {
				logg.Errorf("failed to mark user %s online: %v", user.ID, err)
			}
		}

		logg.Infof("user %s joined project %s from %s", user.Username, projectID, conn.RemoteAddr())

		go session.writePump()
		session.replayHistory(cfg.HistoryLimit)
		go session.readPump()
	}
}

func closeWith(conn *gws.Conn, code int, reason string) {
	deadline := time.Now().Add(writeWait)
	_ = conn.WriteControl(gws.CloseMessage, gws.FormatCloseMessage(code, reason), deadline)
	conn.Close()
}
