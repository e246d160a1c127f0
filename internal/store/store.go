// Package store is the durable ticket record and its append-only history
// log. All "are we tracking this" and "what was its last status" questions
// are answered here, never from process memory, so the daemon is
// restart-safe. Every mutation goes through a Record* method that writes
// the ticket row and its history entry in one transaction; nothing mutates
// a ticket without a matching history entry.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/deskhand/deskhand/internal/models"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a ticket is not in the store.
var ErrNotFound = errors.New("store: ticket not found")

// Store wraps the GORM handle with ticket-store operations.
type Store struct {
	db *gorm.DB
}

// New creates a Store on an already-connected GORM database.
func New(gdb *gorm.DB) *Store {
	return &Store{db: gdb}
}

// Insert persists a newly created ticket and its tracking_started history
// entry in a single transaction. The ticket must already carry the ID and
// number assigned by the service desk.
func (s *Store) Insert(t *models.Ticket) error {
	if t.ID == "" {
		return fmt.Errorf("store: insert: ticket ID is required")
	}
	if t.Status == "" {
		t.Status = models.StatusNew
	}
	details, err := marshalDetails(map[string]string{
		"requester": t.RequesterEmail,
		"category":  t.Category,
	})
	if err != nil {
		return fmt.Errorf("store: insert %s: %w", t.Number, err)
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(t).Error; err != nil {
			return fmt.Errorf("store: insert %s: %w", t.Number, err)
		}
		entry := models.TicketHistory{
			TicketID:     t.ID,
			TicketNumber: t.Number,
			Action:       models.ActionTrackingStarted,
			NewStatus:    t.Status,
			ChangedBy:    models.ActorSystem,
			Details:      details,
			CreatedAt:    time.Now(),
		}
		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("store: insert history for %s: %w", t.Number, err)
		}
		return nil
	})
}

// Get returns a ticket by its service desk ID.
func (s *Store) Get(id string) (*models.Ticket, error) {
	var t models.Ticket
	err := s.db.First(&t, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %s: %w", id, err)
	}
	return &t, nil
}

// GetByNumber returns a ticket by its human-readable number.
func (s *Store) GetByNumber(number string) (*models.Ticket, error) {
	var t models.Ticket
	err := s.db.First(&t, "number = ?", number).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get number %s: %w", number, err)
	}
	return &t, nil
}

// FindByCorrelation returns the ticket created for an inbound message
// identity, or nil if none exists locally. The creation pipeline still
// checks the service desk itself; this is the fast path.
func (s *Store) FindByCorrelation(key string) (*models.Ticket, error) {
	if key == "" {
		return nil, nil
	}
	var t models.Ticket
	err := s.db.First(&t, "correlation_id = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: find correlation %s: %w", key, err)
	}
	return &t, nil
}

// Active returns all tickets whose stored status is non-terminal, oldest
// first. These are the tickets the reconciliation loop polls.
func (s *Store) Active() ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := s.db.Where("status NOT IN ?", statusValues(models.TerminalStatuses)).
		Order("created_at ASC").Find(&tickets).Error
	if err != nil {
		return nil, fmt.Errorf("store: list active: %w", err)
	}
	return tickets, nil
}

// List returns tickets filtered by status code (all tickets when status is
// empty), newest first, with paging.
func (s *Store) List(status models.Status, limit, offset int) ([]models.Ticket, error) {
	if limit <= 0 {
		limit = 50
	}
	q := s.db.Order("created_at DESC").Limit(limit).Offset(offset)
	if status != "" {
		q = q.Where("status = ?", string(status))
	}
	var tickets []models.Ticket
	if err := q.Find(&tickets).Error; err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	return tickets, nil
}

// RecordStatusChange updates the ticket's status (and current assignee
// fields) and appends the status_change history entry in one transaction.
// The passed ticket is mutated to the new values on success.
func (s *Store) RecordStatusChange(t *models.Ticket, newStatus models.Status, assignedTo, assignmentGroup string) error {
	details, err := marshalDetails(map[string]string{
		"previous_status_name": t.Status.Name(),
		"new_status_name":      newStatus.Name(),
	})
	if err != nil {
		return fmt.Errorf("store: status change %s: %w", t.Number, err)
	}
	prev := t.Status
	err = s.db.Transaction(func(tx *gorm.DB) error {
		entry := models.TicketHistory{
			TicketID:       t.ID,
			TicketNumber:   t.Number,
			Action:         models.ActionStatusChange,
			PreviousStatus: prev,
			NewStatus:      newStatus,
			ChangedBy:      models.ActorExternalSync,
			Details:        details,
			CreatedAt:      time.Now(),
		}
		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("store: status change history %s: %w", t.Number, err)
		}
		updates := map[string]interface{}{
			"status":           string(newStatus),
			"assigned_to":      assignedTo,
			"assignment_group": assignmentGroup,
			"updated_at":       time.Now(),
		}
		if err := tx.Model(&models.Ticket{}).Where("id = ?", t.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("store: status change update %s: %w", t.Number, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	t.Status = newStatus
	t.AssignedTo = assignedTo
	t.AssignmentGroup = assignmentGroup
	return nil
}

// RecordAssignmentChange updates the ticket's assignee fields and appends
// the assignment_change history entry in one transaction. Status is
// untouched.
func (s *Store) RecordAssignmentChange(t *models.Ticket, assignedTo, assignmentGroup string) error {
	details, err := marshalDetails(map[string]string{
		"previous_assigned_to":      t.AssignedTo,
		"previous_assignment_group": t.AssignmentGroup,
		"new_assigned_to":           assignedTo,
		"new_assignment_group":      assignmentGroup,
	})
	if err != nil {
		return fmt.Errorf("store: assignment change %s: %w", t.Number, err)
	}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		entry := models.TicketHistory{
			TicketID:     t.ID,
			TicketNumber: t.Number,
			Action:       models.ActionAssignmentChange,
			ChangedBy:    models.ActorExternalSync,
			Details:      details,
			CreatedAt:    time.Now(),
		}
		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("store: assignment change history %s: %w", t.Number, err)
		}
		updates := map[string]interface{}{
			"assigned_to":      assignedTo,
			"assignment_group": assignmentGroup,
			"updated_at":       time.Now(),
		}
		if err := tx.Model(&models.Ticket{}).Where("id = ?", t.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("store: assignment change update %s: %w", t.Number, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	t.AssignedTo = assignedTo
	t.AssignmentGroup = assignmentGroup
	return nil
}

// RecordNotification appends a notification_sent history entry. Called only
// after the notifier reported success, so history never claims a send that
// didn't happen.
func (s *Store) RecordNotification(t *models.Ticket, kind, recipient string) error {
	details, err := marshalDetails(map[string]string{
		"kind":      kind,
		"recipient": recipient,
	})
	if err != nil {
		return fmt.Errorf("store: notification %s: %w", t.Number, err)
	}
	entry := models.TicketHistory{
		TicketID:     t.ID,
		TicketNumber: t.Number,
		Action:       models.ActionNotificationSent,
		ChangedBy:    models.ActorSystem,
		Details:      details,
		CreatedAt:    time.Now(),
	}
	if err := s.db.Create(&entry).Error; err != nil {
		return fmt.Errorf("store: notification history %s: %w", t.Number, err)
	}
	return nil
}

// History returns all history entries for a ticket, oldest first.
func (s *Store) History(ticketID string) ([]models.TicketHistory, error) {
	var entries []models.TicketHistory
	err := s.db.Where("ticket_id = ?", ticketID).
		Order("created_at ASC, id ASC").Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("store: history %s: %w", ticketID, err)
	}
	return entries, nil
}

// HistorySince returns history entries with an ID greater than afterID,
// oldest first. Used by the dashboard event stream.
func (s *Store) HistorySince(afterID uint, limit int) ([]models.TicketHistory, error) {
	if limit <= 0 {
		limit = 100
	}
	var entries []models.TicketHistory
	err := s.db.Where("id > ?", afterID).
		Order("id ASC").Limit(limit).Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("store: history since %d: %w", afterID, err)
	}
	return entries, nil
}

// LatestHistoryID returns the highest history entry ID, or 0 when the
// history is empty. Event streams start from here to skip old entries.
func (s *Store) LatestHistoryID() (uint, error) {
	var entry models.TicketHistory
	err := s.db.Order("id DESC").Limit(1).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store: latest history id: %w", err)
	}
	return entry.ID, nil
}

// TicketBrief identifies a ticket in a summary.
type TicketBrief struct {
	Number         string    `json:"number"`
	RequesterEmail string    `json:"requester_email"`
	CreatedAt      time.Time `json:"created_at"`
}

// Summary aggregates the current tracking state.
type Summary struct {
	Total    int64            `json:"total"`
	Active   int64            `json:"active"`
	ByStatus map[string]int64 `json:"by_status"`
	Oldest   *TicketBrief     `json:"oldest,omitempty"`
	Newest   *TicketBrief     `json:"newest,omitempty"`
}

// Summarize computes totals, per-status counts, and the oldest/newest
// tracked tickets.
func (s *Store) Summarize() (*Summary, error) {
	sum := &Summary{ByStatus: make(map[string]int64)}

	if err := s.db.Model(&models.Ticket{}).Count(&sum.Total).Error; err != nil {
		return nil, fmt.Errorf("store: summarize: %w", err)
	}
	err := s.db.Model(&models.Ticket{}).
		Where("status NOT IN ?", statusValues(models.TerminalStatuses)).
		Count(&sum.Active).Error
	if err != nil {
		return nil, fmt.Errorf("store: summarize active: %w", err)
	}

	type statusCount struct {
		Status models.Status
		N      int64
	}
	var counts []statusCount
	err = s.db.Model(&models.Ticket{}).
		Select("status, COUNT(*) AS n").Group("status").Scan(&counts).Error
	if err != nil {
		return nil, fmt.Errorf("store: summarize by status: %w", err)
	}
	for _, c := range counts {
		sum.ByStatus[c.Status.Name()] = c.N
	}

	if sum.Total > 0 {
		var oldest, newest models.Ticket
		if err := s.db.Order("created_at ASC").First(&oldest).Error; err == nil {
			sum.Oldest = &TicketBrief{Number: oldest.Number, RequesterEmail: oldest.RequesterEmail, CreatedAt: oldest.CreatedAt}
		}
		if err := s.db.Order("created_at DESC").First(&newest).Error; err == nil {
			sum.Newest = &TicketBrief{Number: newest.Number, RequesterEmail: newest.RequesterEmail, CreatedAt: newest.CreatedAt}
		}
	}
	return sum, nil
}

func statusValues(statuses []models.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func marshalDetails(fields map[string]string) (string, error) {
	data, err := json.Marshal(fields)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
