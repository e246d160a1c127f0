package store

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/deskhand/deskhand/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// testStore creates a Store backed by an in-memory SQLite database.
func testStore(t *testing.T) *Store {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := gdb.AutoMigrate(&models.Ticket{}, &models.TicketHistory{}); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return New(gdb)
}

func sampleTicket() *models.Ticket {
	return &models.Ticket{
		ID:               "sys-abc123",
		Number:           "INC0001001",
		CorrelationID:    "<msg-1@mail.example.com>",
		RequesterEmail:   "alice@example.com",
		Status:           models.StatusNew,
		ShortDescription: "VPN not connecting",
		Description:      "VPN fails with timeout since this morning.",
		Priority:         3,
		Urgency:          3,
		Category:         "IT",
	}
}

func TestInsert_CreatesTicketAndTrackingEntry(t *testing.T) {
	s := testStore(t)
	if err := s.Insert(sampleTicket()); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := s.Get("sys-abc123")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Number != "INC0001001" {
		t.Errorf("number = %q, want INC0001001", got.Number)
	}

	entries, err := s.History("sys-abc123")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("history entries = %d, want 1", len(entries))
	}
	if entries[0].Action != models.ActionTrackingStarted {
		t.Errorf("action = %q, want %q", entries[0].Action, models.ActionTrackingStarted)
	}
	if entries[0].NewStatus != models.StatusNew {
		t.Errorf("new status = %q, want %q", entries[0].NewStatus, models.StatusNew)
	}
	if entries[0].ChangedBy != models.ActorSystem {
		t.Errorf("changed by = %q, want %q", entries[0].ChangedBy, models.ActorSystem)
	}
}

func TestInsert_RequiresID(t *testing.T) {
	s := testStore(t)
	tk := sampleTicket()
	tk.ID = ""
	if err := s.Insert(tk); err == nil {
		t.Fatal("expected error for missing ID")
	}
}

func TestGet_NotFound(t *testing.T) {
	s := testStore(t)
	_, err := s.Get("nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestFindByCorrelation(t *testing.T) {
	s := testStore(t)
	if err := s.Insert(sampleTicket()); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := s.FindByCorrelation("<msg-1@mail.example.com>")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got == nil || got.ID != "sys-abc123" {
		t.Fatalf("got %+v, want ticket sys-abc123", got)
	}

	none, err := s.FindByCorrelation("<other@mail.example.com>")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if none != nil {
		t.Errorf("expected nil for unknown correlation, got %+v", none)
	}

	empty, err := s.FindByCorrelation("")
	if err != nil || empty != nil {
		t.Errorf("empty key should be a nil no-op, got %+v, %v", empty, err)
	}
}

func TestActive_ExcludesTerminal(t *testing.T) {
	s := testStore(t)

	open := sampleTicket()
	if err := s.Insert(open); err != nil {
		t.Fatalf("insert: %v", err)
	}

	closed := sampleTicket()
	closed.ID = "sys-def456"
	closed.Number = "INC0001002"
	closed.CorrelationID = "<msg-2@mail.example.com>"
	closed.Status = models.StatusClosed
	if err := s.Insert(closed); err != nil {
		t.Fatalf("insert closed: %v", err)
	}

	active, err := s.Active()
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("active = %d tickets, want 1", len(active))
	}
	if active[0].ID != "sys-abc123" {
		t.Errorf("active ticket = %s, want sys-abc123", active[0].ID)
	}
}

func TestRecordStatusChange(t *testing.T) {
	s := testStore(t)
	tk := sampleTicket()
	if err := s.Insert(tk); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if err := s.RecordStatusChange(tk, models.StatusInProgress, "Bob Smith", "Service Desk"); err != nil {
		t.Fatalf("record status change: %v", err)
	}

	if tk.Status != models.StatusInProgress {
		t.Errorf("in-memory status = %q, want %q", tk.Status, models.StatusInProgress)
	}

	stored, err := s.Get(tk.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != models.StatusInProgress {
		t.Errorf("stored status = %q, want %q", stored.Status, models.StatusInProgress)
	}
	if stored.AssignedTo != "Bob Smith" {
		t.Errorf("assigned to = %q, want Bob Smith", stored.AssignedTo)
	}

	entries, _ := s.History(tk.ID)
	if len(entries) != 2 {
		t.Fatalf("history entries = %d, want 2", len(entries))
	}
	change := entries[1]
	if change.Action != models.ActionStatusChange {
		t.Errorf("action = %q, want %q", change.Action, models.ActionStatusChange)
	}
	if change.PreviousStatus != models.StatusNew || change.NewStatus != models.StatusInProgress {
		t.Errorf("transition = %q->%q, want 1->2", change.PreviousStatus, change.NewStatus)
	}
	if change.ChangedBy != models.ActorExternalSync {
		t.Errorf("changed by = %q, want %q", change.ChangedBy, models.ActorExternalSync)
	}

	var details map[string]string
	if err := json.Unmarshal([]byte(change.Details), &details); err != nil {
		t.Fatalf("details not JSON: %v", err)
	}
	if details["new_status_name"] != "In Progress" {
		t.Errorf("new_status_name = %q, want In Progress", details["new_status_name"])
	}
}

func TestRecordAssignmentChange(t *testing.T) {
	s := testStore(t)
	tk := sampleTicket()
	if err := s.Insert(tk); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if err := s.RecordAssignmentChange(tk, "Carol Jones", "Network Team"); err != nil {
		t.Fatalf("record assignment change: %v", err)
	}

	stored, _ := s.Get(tk.ID)
	if stored.Status != models.StatusNew {
		t.Errorf("status should be untouched, got %q", stored.Status)
	}
	if stored.AssignedTo != "Carol Jones" || stored.AssignmentGroup != "Network Team" {
		t.Errorf("assignee = %q/%q, want Carol Jones/Network Team", stored.AssignedTo, stored.AssignmentGroup)
	}

	entries, _ := s.History(tk.ID)
	if len(entries) != 2 {
		t.Fatalf("history entries = %d, want 2", len(entries))
	}
	if entries[1].Action != models.ActionAssignmentChange {
		t.Errorf("action = %q, want %q", entries[1].Action, models.ActionAssignmentChange)
	}
}

func TestRecordNotification(t *testing.T) {
	s := testStore(t)
	tk := sampleTicket()
	if err := s.Insert(tk); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if err := s.RecordNotification(tk, "closed", "alice@example.com"); err != nil {
		t.Fatalf("record notification: %v", err)
	}

	entries, _ := s.History(tk.ID)
	last := entries[len(entries)-1]
	if last.Action != models.ActionNotificationSent {
		t.Errorf("action = %q, want %q", last.Action, models.ActionNotificationSent)
	}
	var details map[string]string
	json.Unmarshal([]byte(last.Details), &details)
	if details["kind"] != "closed" || details["recipient"] != "alice@example.com" {
		t.Errorf("details = %v", details)
	}
}

func TestSummarize(t *testing.T) {
	s := testStore(t)

	first := sampleTicket()
	if err := s.Insert(first); err != nil {
		t.Fatalf("insert: %v", err)
	}
	second := sampleTicket()
	second.ID = "sys-def456"
	second.Number = "INC0001002"
	second.CorrelationID = "<msg-2@mail.example.com>"
	second.Status = models.StatusResolved
	if err := s.Insert(second); err != nil {
		t.Fatalf("insert: %v", err)
	}

	sum, err := s.Summarize()
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if sum.Total != 2 {
		t.Errorf("total = %d, want 2", sum.Total)
	}
	if sum.Active != 1 {
		t.Errorf("active = %d, want 1", sum.Active)
	}
	if sum.ByStatus["New"] != 1 || sum.ByStatus["Resolved"] != 1 {
		t.Errorf("by status = %v", sum.ByStatus)
	}
	if sum.Oldest == nil || sum.Newest == nil {
		t.Fatal("oldest/newest not set")
	}
}

func TestList_FilterAndPaging(t *testing.T) {
	s := testStore(t)
	for i, id := range []string{"sys-1", "sys-2", "sys-3"} {
		tk := sampleTicket()
		tk.ID = id
		tk.Number = tk.Number[:len(tk.Number)-1] + string(rune('1'+i))
		tk.CorrelationID = id + "@mail"
		if i == 2 {
			tk.Status = models.StatusClosed
		}
		if err := s.Insert(tk); err != nil {
			t.Fatalf("insert %s: %v", id, err)
		}
	}

	all, err := s.List("", 10, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("list all = %d, want 3", len(all))
	}

	closed, err := s.List(models.StatusClosed, 10, 0)
	if err != nil {
		t.Fatalf("list closed: %v", err)
	}
	if len(closed) != 1 || closed[0].ID != "sys-3" {
		t.Errorf("list closed = %+v", closed)
	}

	page, err := s.List("", 2, 0)
	if err != nil {
		t.Fatalf("list page: %v", err)
	}
	if len(page) != 2 {
		t.Errorf("page size = %d, want 2", len(page))
	}
}

func TestLatestHistoryID(t *testing.T) {
	s := testStore(t)

	id, err := s.LatestHistoryID()
	if err != nil {
		t.Fatalf("LatestHistoryID() error = %v", err)
	}
	if id != 0 {
		t.Errorf("empty store id = %d, want 0", id)
	}

	ticket := sampleTicket()
	if err := s.Insert(ticket); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordStatusChange(ticket, models.StatusInProgress, "", ""); err != nil {
		t.Fatal(err)
	}

	id, err = s.LatestHistoryID()
	if err != nil {
		t.Fatalf("LatestHistoryID() error = %v", err)
	}
	if id == 0 {
		t.Error("id = 0 after two history entries")
	}

	later, err := s.HistorySince(id, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(later) != 0 {
		t.Errorf("entries after latest = %d, want 0", len(later))
	}
}
