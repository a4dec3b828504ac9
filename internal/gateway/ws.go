package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/flemzord/writenow/internal/engine"
)

const (
	// changeWriteTimeout bounds one event write to a slow client.
	changeWriteTimeout = 5 * time.Second
	// changePingInterval keeps idle feeds alive through proxies.
	changePingInterval = 30 * time.Second
)

// changeMessage is one frame of the change feed.
type changeMessage struct {
	Type      string             `json:"type"`
	Event     engine.ChangeEvent `json:"event"`
	Timestamp time.Time          `json:"timestamp"`
}

// handleChanges streams a project's changed(paths) notifications over a
// websocket. The feed does not start the watcher; clients call watch:start.
func (g *Gateway) handleChanges() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		project := projectParam(r)
		events, cancel, err := g.engine.Subscribe(project)
		if err != nil {
			writeError(w, err)
			return
		}
		defer cancel()

		// The server write deadline would otherwise cut long-lived feeds.
		_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			g.logger.Error("websocket accept failed", "error", err)
			return
		}
		defer func() {
			_ = conn.Close(websocket.StatusInternalError, "unexpected close")
		}()

		// Clients only listen; CloseRead handles their close frame.
		ctx := conn.CloseRead(r.Context())
		g.logger.Debug("change feed opened", "project", project)

		ping := time.NewTicker(changePingInterval)
		defer ping.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					_ = conn.Close(websocket.StatusGoingAway, "project closed")
					return
				}
				if err := g.sendChange(ctx, conn, ev); err != nil {
					g.logger.Warn("change feed write failed", "project", project, "error", err)
					return
				}
			case <-ping.C:
				pctx, pcancel := context.WithTimeout(ctx, changeWriteTimeout)
				err := conn.Ping(pctx)
				pcancel()
				if err != nil {
					return
				}
			}
		}
	}
}

func (g *Gateway) sendChange(ctx context.Context, conn *websocket.Conn, ev engine.ChangeEvent) error {
	data, err := json.Marshal(changeMessage{Type: "changed", Event: ev, Timestamp: time.Now()})
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, changeWriteTimeout)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, data)
}
