package web

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/quickvocab/internal/conversation"
)

// heartbeatInterval keeps idle event streams open through proxies.
var heartbeatInterval = 15 * time.Second

// handleEvents streams the client's controller events until the request ends
// or the controller is closed.
func handleEvents(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctrl, ok := controllerFor(c, hub)
		if !ok {
			return
		}
		events, unsubscribe := ctrl.Subscribe(256)
		defer unsubscribe()

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")

		writeSSE(c.Writer, "connected", newMessagesView(ctrl.Snapshot()))
		c.Writer.Flush()

		ctx := c.Request.Context()
		heartbeat := time.NewTicker(heartbeatInterval)
		defer heartbeat.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-heartbeat.C:
				writeSSE(c.Writer, "heartbeat", map[string]string{
					"timestamp": time.Now().UTC().Format(time.RFC3339),
				})
				c.Writer.Flush()
			case ev, ok := <-events:
				if !ok {
					return
				}
				writeSSE(c.Writer, string(ev.Kind), eventView(ev))
				c.Writer.Flush()
			}
		}
	}
}

// eventView adds rendered HTML to transcript events.
func eventView(ev conversation.Event) any {
	if ev.Kind == conversation.EventTranscript {
		return gin.H{"kind": ev.Kind, "messages": renderMessages(ev.Messages)}
	}
	return ev
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w io.Writer, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(jsonData))
}
