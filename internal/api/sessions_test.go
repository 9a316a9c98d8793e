package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/iamkuldeepprovana/kmschatbot/internal/chat"
)

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()

	encoded, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(encoded))
	if err != nil {
		t.Fatalf("POST %s error = %v", url, err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()

	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestAppendMessage_CreatesSession(t *testing.T) {
	store := newFakeStore()
	ts := newTestServer(t, store, "")

	resp := postJSON(t, ts.URL+"/api/sessions/messages", map[string]string{
		"sessionId": "sess-1",
		"owner":     "kuldeep",
		"content":   "how do I file a claim",
		"role":      "user",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	got := decodeBody[appendResponse](t, resp)
	if !got.Success || !got.IsNewSession || got.Skipped {
		t.Errorf("response = %+v", got)
	}

	sess := store.sessions["sess-1"]
	if sess == nil {
		t.Fatal("session not persisted")
	}
	if sess.Title != "how do I file a claim" {
		t.Errorf("title = %q", sess.Title)
	}
	if len(sess.Messages) != 1 || sess.Messages[0].Role != chat.RoleUser {
		t.Errorf("messages = %+v", sess.Messages)
	}
}

func TestAppendMessage_SecondAppendNotNew(t *testing.T) {
	store := newFakeStore()
	ts := newTestServer(t, store, "")

	first := postJSON(t, ts.URL+"/api/sessions/messages", map[string]string{
		"sessionId": "sess-1", "owner": "kuldeep", "content": "q", "role": "user",
	})
	first.Body.Close()

	resp := postJSON(t, ts.URL+"/api/sessions/messages", map[string]string{
		"sessionId": "sess-1", "owner": "kuldeep", "content": "a", "role": "assistant",
	})
	got := decodeBody[appendResponse](t, resp)
	if got.IsNewSession {
		t.Error("second append should not report a new session")
	}
	if len(store.sessions["sess-1"].Messages) != 2 {
		t.Errorf("messages = %d, want 2", len(store.sessions["sess-1"].Messages))
	}
}

func TestAppendMessage_WelcomeSkipped(t *testing.T) {
	store := newFakeStore()
	ts := newTestServer(t, store, "")

	resp := postJSON(t, ts.URL+"/api/sessions/messages", map[string]string{
		"sessionId": "sess-1",
		"owner":     "kuldeep",
		"content":   chat.WelcomeMessage,
		"role":      "assistant",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	got := decodeBody[appendResponse](t, resp)
	if !got.Skipped {
		t.Error("welcome message should report skipped")
	}
	if len(store.sessions) != 0 {
		t.Error("welcome message must not create a session")
	}
}

func TestAppendMessage_LegacyPair(t *testing.T) {
	store := newFakeStore()
	ts := newTestServer(t, store, "")

	resp := postJSON(t, ts.URL+"/api/sessions/messages", map[string]string{
		"sessionId": "sess-1",
		"username":  "kuldeep",
		"query":     "what is the SLA",
		"response":  "the SLA is 24 hours",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	got := decodeBody[appendResponse](t, resp)
	if !got.IsNewSession {
		t.Error("pair on a fresh session should report isNewSession")
	}

	sess := store.sessions["sess-1"]
	if sess == nil {
		t.Fatal("session not persisted")
	}
	if sess.Owner != "kuldeep" {
		t.Errorf("owner = %q, want username fallback", sess.Owner)
	}
	if len(sess.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(sess.Messages))
	}
	if sess.Messages[0].Role != chat.RoleUser || sess.Messages[1].Role != chat.RoleAssistant {
		t.Errorf("pair order lost: %+v", sess.Messages)
	}
	if sess.Title != "what is the SLA" {
		t.Errorf("title = %q, want derived from query", sess.Title)
	}
}

func TestAppendMessage_InvalidRole(t *testing.T) {
	ts := newTestServer(t, newFakeStore(), "")

	resp := postJSON(t, ts.URL+"/api/sessions/messages", map[string]string{
		"sessionId": "sess-1", "owner": "kuldeep", "content": "hi", "role": "system",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	got := decodeBody[ErrorResponse](t, resp)
	if got.Error != "invalid_role" {
		t.Errorf("error = %q", got.Error)
	}
}

func TestAppendMessage_MissingSessionID(t *testing.T) {
	ts := newTestServer(t, newFakeStore(), "")

	resp := postJSON(t, ts.URL+"/api/sessions/messages", map[string]string{
		"owner": "kuldeep", "content": "hi", "role": "user",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAppendMessage_MalformedBody(t *testing.T) {
	ts := newTestServer(t, newFakeStore(), "")

	resp, err := http.Post(ts.URL+"/api/sessions/messages", "application/json",
		strings.NewReader("{not json"))
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestAppendMessage_StorageFailure(t *testing.T) {
	store := newFakeStore()
	store.failAll = true
	ts := newTestServer(t, store, "")

	resp := postJSON(t, ts.URL+"/api/sessions/messages", map[string]string{
		"sessionId": "sess-1", "owner": "kuldeep", "content": "hi", "role": "user",
	})
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
	got := decodeBody[ErrorResponse](t, resp)
	if got.Error != "storage_error" {
		t.Errorf("error = %q", got.Error)
	}
}

func TestGetSession(t *testing.T) {
	store := newFakeStore()
	ts := newTestServer(t, store, "")

	seed := postJSON(t, ts.URL+"/api/sessions/messages", map[string]string{
		"sessionId": "sess-1", "owner": "kuldeep", "content": "q", "role": "user",
	})
	seed.Body.Close()

	resp, err := http.Get(ts.URL + "/api/sessions/sess-1")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	got := decodeBody[chat.Session](t, resp)
	if got.SessionID != "sess-1" || len(got.Messages) != 1 {
		t.Errorf("session = %+v", got)
	}
}

func TestGetSession_NotFound(t *testing.T) {
	ts := newTestServer(t, newFakeStore(), "")

	resp, err := http.Get(ts.URL + "/api/sessions/missing")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	got := decodeBody[ErrorResponse](t, resp)
	if got.Error != "not_found" {
		t.Errorf("error = %q", got.Error)
	}
}

func TestListSessions(t *testing.T) {
	store := newFakeStore()
	ts := newTestServer(t, store, "")

	for i := 0; i < 3; i++ {
		resp := postJSON(t, ts.URL+"/api/sessions/messages", map[string]string{
			"sessionId": fmt.Sprintf("sess-%d", i), "owner": "kuldeep", "content": "q", "role": "user",
		})
		resp.Body.Close()
	}

	resp, err := http.Get(ts.URL + "/api/sessions?owner=kuldeep")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	got := decodeBody[listResponse](t, resp)
	if len(got.Sessions) != 3 {
		t.Errorf("sessions = %d, want 3", len(got.Sessions))
	}
}

func TestListSessions_UsernameFallback(t *testing.T) {
	store := newFakeStore()
	ts := newTestServer(t, store, "")

	seed := postJSON(t, ts.URL+"/api/sessions/messages", map[string]string{
		"sessionId": "sess-1", "owner": "kuldeep", "content": "q", "role": "user",
	})
	seed.Body.Close()

	resp, err := http.Get(ts.URL + "/api/sessions?username=kuldeep")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	got := decodeBody[listResponse](t, resp)
	if len(got.Sessions) != 1 {
		t.Errorf("sessions = %d, want 1", len(got.Sessions))
	}
}

func TestListSessions_MissingOwner(t *testing.T) {
	ts := newTestServer(t, newFakeStore(), "")

	resp, err := http.Get(ts.URL + "/api/sessions")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestListSessions_FailSoft(t *testing.T) {
	store := newFakeStore()
	store.failSummaries = true
	ts := newTestServer(t, store, "")

	resp, err := http.Get(ts.URL + "/api/sessions?owner=kuldeep")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 even when the store fails", resp.StatusCode)
	}
	got := decodeBody[listResponse](t, resp)
	if got.Sessions == nil {
		t.Error("sessions should be an empty array, not null")
	}
	if len(got.Sessions) != 0 {
		t.Errorf("sessions = %d, want 0", len(got.Sessions))
	}
}

func TestDeleteSession(t *testing.T) {
	store := newFakeStore()
	ts := newTestServer(t, store, "")

	seed := postJSON(t, ts.URL+"/api/sessions/messages", map[string]string{
		"sessionId": "sess-1", "owner": "kuldeep", "content": "q", "role": "user",
	})
	seed.Body.Close()

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/sessions/sess-1", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if len(store.sessions) != 0 {
		t.Error("session not deleted")
	}

	// Deleting again reports not found.
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404 on second delete", resp.StatusCode)
	}
}

func TestAppendMessage_RetitlesPlaceholder(t *testing.T) {
	store := newFakeStore()
	ts := newTestServer(t, store, "")

	// Assistant opener first: session titled "New Chat".
	first := postJSON(t, ts.URL+"/api/sessions/messages", map[string]string{
		"sessionId": "sess-1", "owner": "kuldeep", "content": "How else can I help?", "role": "assistant",
	})
	first.Body.Close()
	if got := store.sessions["sess-1"].Title; got != chat.DefaultTitle {
		t.Fatalf("title = %q, want %q", got, chat.DefaultTitle)
	}

	// First user message claims the title.
	second := postJSON(t, ts.URL+"/api/sessions/messages", map[string]string{
		"sessionId": "sess-1", "owner": "kuldeep", "content": "question one", "role": "user",
	})
	second.Body.Close()
	if got := store.sessions["sess-1"].Title; got != "question one" {
		t.Fatalf("title = %q, want %q", got, "question one")
	}

	// Later user messages must not retitle again.
	third := postJSON(t, ts.URL+"/api/sessions/messages", map[string]string{
		"sessionId": "sess-1", "owner": "kuldeep", "content": "question two", "role": "user",
	})
	third.Body.Close()
	if got := store.sessions["sess-1"].Title; got != "question one" {
		t.Errorf("title = %q, want unchanged", got)
	}
}
