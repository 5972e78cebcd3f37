package realtime

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/domain/notification"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxInboundSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // access is gated by API key
	},
}

// Stream upgrades the request to a WebSocket and writes the user's snapshots as JSON until
// the client goes away. Only the newest pending snapshot is written when the client reads
// slower than changes arrive. Inbound messages are ignored.
func Stream(w http.ResponseWriter, r *http.Request, center Subscriber, userID string, limit int, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	latest := make(chan notification.Snapshot, 1)
	sub, err := center.Subscribe(ctx, userID, limit, func(s notification.Snapshot) {
		// single producer: drop the stale pending snapshot, then queue this one
		select {
		case <-latest:
		default:
		}
		latest <- s
	})
	if err != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseInternalServerErr, err.Error())
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		return err
	}
	defer sub.Unsubscribe()
	logger.Debug("notification stream opened", zap.String("user_id", userID))

	go readPump(conn, cancel)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Debug("notification stream closed", zap.String("user_id", userID))
			return nil
		case s := <-latest:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(s); err != nil {
				logger.Debug("notification stream write failed", zap.String("user_id", userID), zap.Error(err))
				return nil
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		}
	}
}

// readPump drains the connection so control frames are processed; any read error ends
// the stream.
func readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(maxInboundSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
