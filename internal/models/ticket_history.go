package models

import "time"

// History actions. The history log is append-only: rows are written by the
// creation pipeline and the reconciliation loop and never updated or deleted.
const (
	ActionTrackingStarted  = "tracking_started"
	ActionStatusChange     = "status_change"
	ActionAssignmentChange = "assignment_change"
	ActionNotificationSent = "notification_sent"
)

// History actors.
const (
	ActorSystem       = "system"
	ActorExternalSync = "external_sync"
)

// TicketHistory is one append-only audit entry for a ticket.
type TicketHistory struct {
	ID             uint   `gorm:"primaryKey;autoIncrement"`
	TicketID       string `gorm:"size:64;index;not null"`
	TicketNumber   string `gorm:"size:32"`
	Action         string `gorm:"size:32;index"`
	PreviousStatus Status `gorm:"size:8"`
	NewStatus      Status `gorm:"size:8"`
	ChangedBy      string `gorm:"size:32"`
	Details        string `gorm:"type:text"` // JSON payload specific to the action
	CreatedAt      time.Time
}
