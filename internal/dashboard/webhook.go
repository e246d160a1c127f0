package dashboard

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/deskhand/deskhand/internal/secondary"
	"github.com/deskhand/deskhand/internal/store"
)

// webhookPayload accepts the shapes secondary trackers post back. The
// issue title carries the bracket-prefixed primary ticket number.
type webhookPayload struct {
	Summary string `json:"summary"`
	Title   string `json:"title"`
	Status  string `json:"status"`
	Comment string `json:"comment"`
	Issue   struct {
		Title  string `json:"title"`
		Fields struct {
			Summary string `json:"summary"`
		} `json:"fields"`
	} `json:"issue"`
}

// title returns the first non-empty title-ish field.
func (p *webhookPayload) title() string {
	for _, s := range []string{p.Summary, p.Title, p.Issue.Title, p.Issue.Fields.Summary} {
		if strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

// handleSecondaryWebhook receives engineering-side updates and writes
// them back to the primary ticket as work notes. Payloads that do not
// map to a tracked ticket are acknowledged and dropped so the sender
// never retries them.
func handleSecondaryWebhook(st *store.Store, desk Desk) gin.HandlerFunc {
	return func(c *gin.Context) {
		if desk == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service desk not configured"})
			return
		}

		var payload webhookPayload
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
			return
		}

		number, ok := secondary.ParsePrimaryNumber(payload.title())
		if !ok {
			c.Status(http.StatusNoContent)
			return
		}
		ticket, err := st.GetByNumber(number)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.Status(http.StatusNoContent)
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		note := buildWorkNote(payload)
		if err := desk.AddWorkNote(c.Request.Context(), ticket.ID, note); err != nil {
			log.Printf("dashboard: work note for %s: %v", number, err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "service desk update failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ticket": number})
	}
}

func buildWorkNote(p webhookPayload) string {
	var parts []string
	if p.Status != "" {
		parts = append(parts, fmt.Sprintf("Engineering status: %s", p.Status))
	}
	if p.Comment != "" {
		parts = append(parts, p.Comment)
	}
	if len(parts) == 0 {
		parts = append(parts, "Engineering issue updated")
	}
	return strings.Join(parts, "\n")
}
