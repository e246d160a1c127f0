package models

// Status is a ticket lifecycle state code as reported by the service desk.
// The codes are the service desk's own state values; Deskhand never invents
// codes of its own.
type Status string

const (
	StatusNew        Status = "1"
	StatusInProgress Status = "2"
	StatusOnHold     Status = "3"
	StatusResolved   Status = "6"
	StatusClosed     Status = "7"
	StatusCanceled   Status = "8"
)

// statusNames maps state codes to human-readable display names.
var statusNames = map[Status]string{
	StatusNew:        "New",
	StatusInProgress: "In Progress",
	StatusOnHold:     "On Hold",
	StatusResolved:   "Resolved",
	StatusClosed:     "Closed",
	StatusCanceled:   "Canceled",
}

// TerminalStatuses are the states from which a ticket is no longer polled.
// Once a ticket reaches one of these it leaves active tracking for good.
var TerminalStatuses = []Status{StatusResolved, StatusClosed, StatusCanceled}

// Name returns the display name for a status code, or "Unknown" for codes
// the service desk reports that we don't recognize.
func (s Status) Name() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "Unknown"
}

// Terminal reports whether the status is one of Resolved, Closed, Canceled.
func (s Status) Terminal() bool {
	switch s {
	case StatusResolved, StatusClosed, StatusCanceled:
		return true
	}
	return false
}

// Known reports whether the status is one of the codes Deskhand tracks.
func (s Status) Known() bool {
	_, ok := statusNames[s]
	return ok
}
