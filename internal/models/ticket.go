package models

import "time"

// Ticket is one tracked service desk ticket. The primary key is the
// service desk's own record ID, assigned at creation and never changed;
// it is the sole join key to TicketHistory.
type Ticket struct {
	ID              string `gorm:"primaryKey;size:64"`
	Number          string `gorm:"size:32;uniqueIndex"`
	CorrelationID   string `gorm:"size:255;index"`
	RequesterEmail  string `gorm:"size:255;index"`
	Status          Status `gorm:"size:8;default:1;index"`
	ShortDescription string `gorm:"size:160"`
	Description     string `gorm:"type:text"`
	Priority        int    `gorm:"default:3"`
	Urgency         int    `gorm:"default:3"`
	Category        string `gorm:"size:64"`
	AssignedTo      string `gorm:"size:128"`
	AssignmentGroup string `gorm:"size:128"`
	SecondaryRef    string `gorm:"size:64"`
	CreatedAt       time.Time
	UpdatedAt       time.Time

	History []TicketHistory `gorm:"foreignKey:TicketID"`
}

// Active reports whether the ticket is still tracked by the reconciliation
// loop, i.e. its stored status is non-terminal.
func (t *Ticket) Active() bool {
	return !t.Status.Terminal()
}
