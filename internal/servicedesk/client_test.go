package servicedesk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/deskhand/deskhand/internal/models"
)

// testClient creates a Client pointed at a test server.
func testClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(Options{
		BaseURL:  srv.URL,
		User:     "api",
		Password: "secret",
		MaxRetry: 2 * time.Second,
		CategoryGroups: map[string]string{
			"IT": "IT Support",
		},
		Fallbacks: Fallbacks{CallerID: "fallback-caller", GroupID: "fallback-group", GroupName: "General Support"},
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c, srv
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Options{User: "u", Password: "p"}); err == nil {
		t.Error("expected error for missing base URL")
	}
	if _, err := New(Options{BaseURL: "https://desk.example.com"}); err == nil {
		t.Error("expected error for missing credentials")
	}

	c, err := New(Options{BaseURL: "desk.example.com/", User: "u", Password: "p"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if c.baseURL != "https://desk.example.com" {
		t.Errorf("baseURL = %q, want scheme added and slash trimmed", c.baseURL)
	}
}

func TestFindByCorrelation(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.RawQuery, "correlation_id") {
			t.Errorf("query missing correlation_id: %s", r.URL.RawQuery)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"result": []map[string]string{{"sys_id": "sys-1", "number": "INC100"}},
		})
	}))

	ref, err := c.FindByCorrelation(context.Background(), "<m1@mail>")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if ref == nil || ref.ID != "sys-1" || ref.Number != "INC100" {
		t.Errorf("ref = %+v, want sys-1/INC100", ref)
	}
}

func TestFindByCorrelation_None(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"result": []interface{}{}})
	}))

	ref, err := c.FindByCorrelation(context.Background(), "<m1@mail>")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if ref != nil {
		t.Errorf("ref = %+v, want nil", ref)
	}

	ref, err = c.FindByCorrelation(context.Background(), "")
	if err != nil || ref != nil {
		t.Errorf("empty key should be nil no-op, got %+v, %v", ref, err)
	}
}

func TestCreate(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		user, pass, _ := r.BasicAuth()
		if user != "api" || pass != "secret" {
			t.Errorf("basic auth = %s/%s", user, pass)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["correlation_id"] != "<m1@mail>" {
			t.Errorf("correlation_id = %q", body["correlation_id"])
		}
		if body["priority"] != "2" {
			t.Errorf("priority = %q, want 2", body["priority"])
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"result": map[string]string{"sys_id": "sys-new", "number": "INC200"},
		})
	}))

	ref, err := c.Create(context.Background(), NewTicket{
		ShortDescription: "Printer down",
		Description:      "Office printer offline",
		Priority:         2,
		Urgency:          3,
		Category:         "IT",
		CorrelationID:    "<m1@mail>",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if ref.ID != "sys-new" || ref.Number != "INC200" {
		t.Errorf("ref = %+v", ref)
	}
}

func TestCreate_TruncatesShortDescription(t *testing.T) {
	var got string
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		got = body["short_description"]
		json.NewEncoder(w).Encode(map[string]interface{}{
			"result": map[string]string{"sys_id": "x", "number": "INC1"},
		})
	}))

	long := strings.Repeat("a", 300)
	if _, err := c.Create(context.Background(), NewTicket{ShortDescription: long}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(got) != 160 {
		t.Errorf("short description length = %d, want 160", len(got))
	}
}

func TestGetState_ObjectFields(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"result": map[string]interface{}{
				"state":            map[string]string{"value": "6", "display_value": "Resolved"},
				"assigned_to":      map[string]string{"value": "user-1", "display_value": "Bob Smith"},
				"assignment_group": map[string]string{"value": "grp-1", "display_value": "IT Support"},
				"close_notes":      map[string]string{"value": "Fixed", "display_value": "Fixed"},
				"work_notes":       map[string]string{"value": "", "display_value": ""},
				"sys_updated_on":   map[string]string{"value": "2026-08-29 10:00:00", "display_value": "2026-08-29 10:00:00"},
			},
		})
	}))

	st, err := c.GetState(context.Background(), "sys-1")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if st.Status != models.StatusResolved {
		t.Errorf("status = %q, want 6", st.Status)
	}
	if st.AssignedTo != "Bob Smith" {
		t.Errorf("assigned to = %q, want display value", st.AssignedTo)
	}
	if st.ResolutionNotes != "Fixed" {
		t.Errorf("resolution = %q, want Fixed", st.ResolutionNotes)
	}
}

func TestGetState_PlainStringFields(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"result": map[string]interface{}{
				"state":       "2",
				"assigned_to": "Carol",
			},
		})
	}))

	st, err := c.GetState(context.Background(), "sys-1")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if st.Status != models.StatusInProgress || st.AssignedTo != "Carol" {
		t.Errorf("state = %+v", st)
	}
}

func TestGetState_Vanished(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	st, err := c.GetState(context.Background(), "gone")
	if err != nil {
		t.Fatalf("vanished ticket should not error, got %v", err)
	}
	if st != nil {
		t.Errorf("state = %+v, want nil", st)
	}
}

func TestDo_Unauthorized(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := c.GetState(context.Background(), "sys-1")
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
}

func TestDo_RetriesTransient(t *testing.T) {
	var calls int32
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"result": map[string]interface{}{"state": "1"},
		})
	}))

	st, err := c.GetState(context.Background(), "sys-1")
	if err != nil {
		t.Fatalf("get state after retries: %v", err)
	}
	if st.Status != models.StatusNew {
		t.Errorf("status = %q", st.Status)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestUpdate(t *testing.T) {
	var method string
	var body map[string]string
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{}`))
	}))

	err := c.Update(context.Background(), "sys-1", map[string]string{"work_notes": "ping"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if method != http.MethodPatch {
		t.Errorf("method = %s, want PATCH", method)
	}
	if body["work_notes"] != "ping" {
		t.Errorf("body = %v", body)
	}

	if err := c.Update(context.Background(), "sys-1", nil); err != nil {
		t.Errorf("empty update should be a no-op, got %v", err)
	}
}

func TestResolveCaller_FoundAndCached(t *testing.T) {
	var calls int32
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"result": []map[string]string{{"sys_id": "user-9", "name": "Alice", "email": "alice@example.com"}},
		})
	}))

	u := c.ResolveCaller(context.Background(), "alice@example.com")
	if u.ID != "user-9" {
		t.Errorf("user = %+v", u)
	}
	c.ResolveCaller(context.Background(), "alice@example.com")
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("lookup calls = %d, want 1 (cached)", calls)
	}
}

func TestResolveCaller_Fallback(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"result": []interface{}{}})
	}))

	u := c.ResolveCaller(context.Background(), "stranger@example.com")
	if u.ID != "fallback-caller" {
		t.Errorf("user = %+v, want fallback", u)
	}

	empty := c.ResolveCaller(context.Background(), "")
	if empty.ID != "fallback-caller" {
		t.Errorf("empty email should resolve to fallback, got %+v", empty)
	}
}

func TestResolveAssignment_RotatesMembers(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "sys_user_group"):
			json.NewEncoder(w).Encode(map[string]interface{}{
				"result": []map[string]string{{"sys_id": "grp-1", "name": "IT Support"}},
			})
		case strings.Contains(r.URL.Path, "sys_user_grmember"):
			json.NewEncoder(w).Encode(map[string]interface{}{
				"result": []map[string]string{
					{"user.sys_id": "u1", "user.name": "Bob"},
					{"user.sys_id": "u2", "user.name": "Carol"},
				},
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	group, first := c.ResolveAssignment(context.Background(), "IT")
	if group.ID != "grp-1" {
		t.Errorf("group = %+v", group)
	}
	_, second := c.ResolveAssignment(context.Background(), "IT")
	if first.ID == second.ID {
		t.Errorf("assignment did not rotate: %s then %s", first.ID, second.ID)
	}
}

func TestResolveAssignment_UnknownCategoryFallsBack(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "sys_user_group"):
			json.NewEncoder(w).Encode(map[string]interface{}{"result": []interface{}{}})
		case strings.Contains(r.URL.Path, "sys_user_grmember"):
			json.NewEncoder(w).Encode(map[string]interface{}{"result": []interface{}{}})
		}
	}))

	group, user := c.ResolveAssignment(context.Background(), "Gardening")
	if group.ID != "fallback-group" {
		t.Errorf("group = %+v, want fallback", group)
	}
	if user.ID != "" {
		t.Errorf("user = %+v, want empty", user)
	}
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	if got := truncate("short", 160); got != "short" {
		t.Errorf("truncate(short) = %q", got)
	}
	long := strings.Repeat("€", 60)
	got := truncate(long, 160)
	if len(got) > 160 {
		t.Errorf("len = %d, want <= 160", len(got))
	}
	if !utf8.ValidString(got) {
		t.Errorf("truncation split a rune: %q", got)
	}
}
