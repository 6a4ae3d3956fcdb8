package wsmux

import (
	"net/http"

	"github.com/coder/websocket"

	"github.com/vibetunnel/vibetunnel-go/internal/logger"
)

// AuthFunc authorizes an incoming WS upgrade request. The Non-goals note in
// SPEC_FULL.md models real authentication as an injectable hook rather than
// implementing one; a no-op passthrough (ok=true) is the default.
type AuthFunc func(r *http.Request) (userID string, ok bool)

// NoAuth is the default AuthFunc: every request is authorized.
func NoAuth(r *http.Request) (string, bool) { return "", true }

// Handler returns the http.HandlerFunc for the single /ws endpoint (§4.J).
func Handler(hub *Hub, auth AuthFunc) http.HandlerFunc {
	if auth == nil {
		auth = NoAuth
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth(r); !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			logger.Warn("wsmux: accept failed", "err", err)
			return
		}
		defer conn.CloseNow()
		HandleConn(r.Context(), conn, hub)
	}
}
