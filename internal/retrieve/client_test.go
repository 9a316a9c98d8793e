package retrieve

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/iamkuldeepprovana/kmschatbot/internal/log"
)

func TestClient_Retrieve_Success(t *testing.T) {
	t.Parallel()

	var gotReq Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(Response{GeneratedResponse: "here is your answer"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second, log.NewNop())

	resp, err := client.Retrieve(context.Background(), Request{Query: "how to file a claim", ClientName: "provana"})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if resp.GeneratedResponse != "here is your answer" {
		t.Errorf("GeneratedResponse = %q", resp.GeneratedResponse)
	}
	if gotReq.Query != "how to file a claim" || gotReq.ClientName != "provana" {
		t.Errorf("upstream payload = %+v", gotReq)
	}
}

func TestClient_Retrieve_UpstreamStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"model overloaded"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second, log.NewNop())

	_, err := client.Retrieve(context.Background(), Request{Query: "q"})
	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("error = %v, want *UpstreamError", err)
	}
	if upstream.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %d, want 503", upstream.StatusCode)
	}
	if upstream.Message != "model overloaded" {
		t.Errorf("Message = %q", upstream.Message)
	}
}

func TestClient_Retrieve_UpstreamErrorField(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(Response{Error: "no documents indexed"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second, log.NewNop())

	_, err := client.Retrieve(context.Background(), Request{Query: "q"})
	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("error = %v, want *UpstreamError", err)
	}
	if upstream.StatusCode != http.StatusBadGateway {
		t.Errorf("StatusCode = %d, want 502", upstream.StatusCode)
	}
}

func TestClient_Retrieve_Timeout(t *testing.T) {
	t.Parallel()

	blocked := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-blocked
	}))
	defer srv.Close()
	defer close(blocked)

	client := NewClient(srv.URL, 50*time.Millisecond, log.NewNop())

	_, err := client.Retrieve(context.Background(), Request{Query: "q"})
	if err == nil {
		t.Fatal("Retrieve() error = nil, want timeout")
	}
	if !IsTimeout(err) {
		t.Errorf("IsTimeout(%v) = false, want true", err)
	}
}

func TestClient_Retrieve_MalformedBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second, log.NewNop())

	if _, err := client.Retrieve(context.Background(), Request{Query: "q"}); err == nil {
		t.Fatal("Retrieve() error = nil, want decode failure")
	}
}

func TestUpstreamMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want string
	}{
		{"error field", `{"error":"boom"}`, "boom"},
		{"message field", `{"message":"nope"}`, "nope"},
		{"detail field", `{"detail":"missing index"}`, "missing index"},
		{"plain text", "gateway exploded", "gateway exploded"},
		{"empty body", "", "empty response body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := upstreamMessage([]byte(tt.body)); got != tt.want {
				t.Errorf("upstreamMessage(%q) = %q, want %q", tt.body, got, tt.want)
			}
		})
	}
}
