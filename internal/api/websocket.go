package api

import (
	"net/http"

	"ecoquote/internal/auth"
	"ecoquote/internal/ws"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	// Connections authenticate with a bearer header or the access_token
	// query parameter, never with cookies
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (d Dependencies) wsHandler(w http.ResponseWriter, r *http.Request) {
	if d.Hub == nil {
		WriteError(w, http.StatusServiceUnavailable, "not_configured", "WebSocket hub not initialized", d.Log)
		return
	}

	staffID := d.wsStaffID(r)
	if staffID == "" {
		WriteError(w, http.StatusUnauthorized, "unauthorized", "Authentication required", d.Log)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		d.Log.Error("Failed to upgrade connection", zap.Error(err))
		return
	}
	d.Log.Info("WebSocket connected", zap.String("staff_id", staffID), zap.String("remote", r.RemoteAddr))

	wsConn := ws.NewConn(conn, d.Hub, staffID)
	d.Hub.Register(wsConn)

	go wsConn.WritePump()
	go wsConn.ReadPump()
}

// wsStaffID accepts the identity set by the bearer middleware or a token
// passed as the access_token query parameter.
func (d Dependencies) wsStaffID(r *http.Request) string {
	if id := auth.GetStaffID(r.Context()); id != "" {
		return id
	}
	token := r.URL.Query().Get("access_token")
	if token == "" {
		return ""
	}
	claims, err := d.JWT.Parse(token)
	if err != nil {
		return ""
	}
	return claims.Subject
}
