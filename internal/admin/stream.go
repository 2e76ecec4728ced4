package admin

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// pollInterval is how often StreamIngestLog re-checks for newly appended
// ingest-log lines. The reader itself has no push notification, so this
// endpoint polls ReadNext against a dedicated consumer name scoped to the
// connection.
const pollInterval = 500 * time.Millisecond

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// StreamIngestLog handles GET /admin/ingest-log/stream: upgrades to a
// websocket and pushes each newly appended ingest-log line as a text frame,
// acking sent lines under a consumer name minted for this connection alone,
// so watching the stream never moves a real consumer's saved offset.
func (d Deps) StreamIngestLog(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	consumer := "admin-stream-" + time.Now().UTC().Format("20060102T150405.000000000")
	ctx := r.Context()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			lines, lastID, err := d.Reader.ReadNext(ctx, consumer, 50)
			if err != nil {
				_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"`+err.Error()+`"}`))
				return
			}
			for _, line := range lines {
				if err := conn.WriteMessage(websocket.TextMessage, line); err != nil {
					return
				}
			}
			if lastID != "" {
				if err := d.Reader.AckThrough(ctx, consumer, lastID); err != nil {
					return
				}
			}
		}
	}
}
