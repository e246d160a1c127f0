// Package dashboard serves a JSON API over the ticket store plus a
// server-sent-events stream of history entries, and receives status
// callbacks from the secondary tracker.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/deskhand/deskhand/internal/models"
	"github.com/deskhand/deskhand/internal/store"
)

// Desk is the service desk surface the webhook handler needs.
// *servicedesk.Client satisfies it.
type Desk interface {
	AddWorkNote(ctx context.Context, id, note string) error
}

// StartOpts holds configuration for the dashboard server.
type StartOpts struct {
	Store *store.Store
	Desk  Desk // nil disables the secondary webhook route
	Addr  string
	Out   io.Writer
}

// Start launches the dashboard HTTP server. It blocks until ctx is
// cancelled, then shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Store == nil {
		return fmt.Errorf("dashboard: store is required")
	}
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	registerRoutes(router, opts.Store, opts.Desk)

	srv := &http.Server{
		Addr:    opts.Addr,
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Dashboard listening on %s\n", opts.Addr)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}

// registerRoutes sets up all dashboard routes on the Gin router.
func registerRoutes(router *gin.Engine, st *store.Store, desk Desk) {
	api := router.Group("/api")
	api.GET("/tickets", handleTicketList(st))
	api.GET("/tickets/:number", handleTicketDetail(st))
	api.GET("/tickets/:number/history", handleTicketHistory(st))
	api.GET("/summary", handleSummary(st))
	api.GET("/events", handleSSE(st))

	router.POST("/webhooks/secondary", handleSecondaryWebhook(st, desk))
}

func handleTicketList(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := models.Status(c.Query("status"))
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

		tickets, err := st.List(status, limit, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"tickets": ticketViews(tickets)})
	}
}

func handleTicketDetail(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ticket, err := st.GetByNumber(c.Param("number"))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "ticket not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, ticketView(ticket))
	}
}

func handleTicketHistory(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ticket, err := st.GetByNumber(c.Param("number"))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "ticket not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		hist, err := st.History(ticket.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"number": ticket.Number, "history": hist})
	}
}

func handleSummary(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		summary, err := st.Summarize()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

// ticketJSON is the API shape of a ticket; status is expanded to both
// the raw value and its display name.
type ticketJSON struct {
	ID               string `json:"id"`
	Number           string `json:"number"`
	Status           string `json:"status"`
	StatusName       string `json:"status_name"`
	RequesterEmail   string `json:"requester_email"`
	ShortDescription string `json:"short_description"`
	Category         string `json:"category"`
	Priority         int    `json:"priority"`
	AssignedTo       string `json:"assigned_to,omitempty"`
	AssignmentGroup  string `json:"assignment_group,omitempty"`
	SecondaryRef     string `json:"secondary_ref,omitempty"`
	CreatedAt        string `json:"created_at"`
	UpdatedAt        string `json:"updated_at"`
}

func ticketView(t *models.Ticket) ticketJSON {
	return ticketJSON{
		ID:               t.ID,
		Number:           t.Number,
		Status:           string(t.Status),
		StatusName:       t.Status.Name(),
		RequesterEmail:   t.RequesterEmail,
		ShortDescription: t.ShortDescription,
		Category:         t.Category,
		Priority:         t.Priority,
		AssignedTo:       t.AssignedTo,
		AssignmentGroup:  t.AssignmentGroup,
		SecondaryRef:     t.SecondaryRef,
		CreatedAt:        t.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		UpdatedAt:        t.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

func ticketViews(tickets []models.Ticket) []ticketJSON {
	views := make([]ticketJSON, 0, len(tickets))
	for i := range tickets {
		views = append(views, ticketView(&tickets[i]))
	}
	return views
}
