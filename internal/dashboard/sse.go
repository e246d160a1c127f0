package dashboard

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/deskhand/deskhand/internal/models"
	"github.com/deskhand/deskhand/internal/store"
)

// historyEvent is the SSE payload for a new history entry.
type historyEvent struct {
	ID           uint   `json:"id"`
	TicketNumber string `json:"ticket_number"`
	Action       string `json:"action"`
	NewStatus    string `json:"new_status,omitempty"`
	ChangedBy    string `json:"changed_by"`
}

func newHistoryEvent(e models.TicketHistory) historyEvent {
	ev := historyEvent{
		ID:           e.ID,
		TicketNumber: e.TicketNumber,
		Action:       e.Action,
		ChangedBy:    e.ChangedBy,
	}
	// Entries without a status transition keep new_status out of the
	// payload instead of rendering as Unknown.
	if e.NewStatus != "" {
		ev.NewStatus = e.NewStatus.Name()
	}
	return ev
}

// handleSSE streams new ticket history entries as they are recorded.
func handleSSE(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")

		writeSSE(c.Writer, "connected", map[string]string{"type": "connected"})
		c.Writer.Flush()

		// Only stream entries recorded after the client connected.
		lastSeenID, err := st.LatestHistoryID()
		if err != nil {
			return
		}

		ctx := c.Request.Context()
		ticker := time.NewTicker(3 * time.Second)
		heartbeat := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
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
			case <-ticker.C:
				entries, err := st.HistorySince(lastSeenID, 100)
				if err != nil || len(entries) == 0 {
					continue
				}
				lastSeenID = entries[len(entries)-1].ID
				for _, e := range entries {
					writeSSE(c.Writer, "history", newHistoryEvent(e))
				}
				c.Writer.Flush()
			}
		}
	}
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w io.Writer, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(jsonData))
}
