package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// serveWS streams the caller's game notifications over a WebSocket. Each
// notification published to the player's channel is forwarded as one text
// message.
func (a *API) serveWS(c *gin.Context) {
	uid := c.GetHeader(userIDHeader)
	if uid == "" {
		uid = c.Query("userId")
	}
	if uid == "" {
		c.String(http.StatusUnauthorized, "missing user id")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.ErrorContext(c.Request.Context(), "ws: upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sub := a.redis.Subscribe(c.Request.Context(), a.userChannel(uid))
	defer sub.Close()

	// The read pump only detects the peer going away; inbound payloads are
	// ignored.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case msg, ok := <-sub.Channel():
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				slog.ErrorContext(c.Request.Context(), "ws: write failed", "user", uid, "error", err)
				return
			}
		case <-done:
			return
		}
	}
}
