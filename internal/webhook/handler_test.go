package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"github.com/braidchat/octocat/internal/message"
)

const (
	testBraidToken    = "braid-token"
	testWebhookSecret = "hook-secret"
)

type fakeRouter struct {
	webhooks []string
	messages []message.Message
}

func (f *fakeRouter) HandleWebhook(_ context.Context, body []byte) {
	f.webhooks = append(f.webhooks, string(body))
}

func (f *fakeRouter) HandleChatMessage(_ context.Context, msg message.Message) {
	f.messages = append(f.messages, msg)
}

// recordingRunner captures tasks without running them, so tests can
// observe the response before any background work happens.
type recordingRunner struct {
	tasks []func(ctx context.Context)
}

func (r *recordingRunner) Go(name string, fn func(ctx context.Context)) {
	r.tasks = append(r.tasks, fn)
}

func (r *recordingRunner) drain() {
	for _, fn := range r.tasks {
		fn(context.Background())
	}
	r.tasks = nil
}

func newTestHandler() (*Handler, *fakeRouter, *recordingRunner) {
	router := &fakeRouter{}
	runner := &recordingRunner{}
	h := NewHandler("octocat", testBraidToken, testWebhookSecret, router, runner)
	return h, router, runner
}

func braidMAC(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testBraidToken))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func githubMAC(body []byte) string {
	mac := hmac.New(sha1.New, []byte(testWebhookSecret))
	mac.Write(body)
	return "sha1=" + hex.EncodeToString(mac.Sum(nil))
}

func encodedMessage(t *testing.T) []byte {
	t.Helper()
	body, err := message.Encode(message.Message{
		GroupID:  "group-1",
		ThreadID: "thread-1",
		UserID:   "user-1",
		Content:  "/octocat help",
	})
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	return body
}

func TestBraidMessageStatusCodes(t *testing.T) {
	body := []byte("opaque bytes")

	tests := []struct {
		name       string
		signature  string
		wantStatus int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong mac", braidMAC([]byte("different body")), http.StatusForbidden},
		{"not hex", "zzzz", http.StatusForbidden},
		{"valid", braidMAC(body), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _, _ := newTestHandler()

			req := httptest.NewRequest(http.MethodPut, "/message", bytes.NewReader(body))
			if tt.signature != "" {
				req.Header.Set("X-Braid-Signature", tt.signature)
			}
			rec := httptest.NewRecorder()
			h.HandleBraidMessage(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestBraidMessageDecodedAndRouted(t *testing.T) {
	h, router, runner := newTestHandler()
	body := encodedMessage(t)

	req := httptest.NewRequest(http.MethodPut, "/message", bytes.NewReader(body))
	req.Header.Set("X-Braid-Signature", braidMAC(body))
	rec := httptest.NewRecorder()
	h.HandleBraidMessage(rec, req)

	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("response = %d %q", rec.Code, rec.Body.String())
	}

	runner.drain()
	if len(router.messages) != 1 {
		t.Fatalf("routed %d messages, want 1", len(router.messages))
	}
	if got := router.messages[0]; got.ThreadID != "thread-1" || got.Content != "/octocat help" {
		t.Errorf("routed message = %+v", got)
	}
}

func TestBraidMessageAckPrecedesDecode(t *testing.T) {
	h, router, runner := newTestHandler()

	// Correctly signed garbage: authentication passes, decoding cannot.
	body := []byte("definitely not cbor")
	req := httptest.NewRequest(http.MethodPut, "/message", bytes.NewReader(body))
	req.Header.Set("X-Braid-Signature", braidMAC(body))
	rec := httptest.NewRecorder()
	h.HandleBraidMessage(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 before any decoding", rec.Code)
	}
	if len(runner.tasks) != 1 {
		t.Fatalf("spawned %d tasks, want 1", len(runner.tasks))
	}

	runner.drain()
	if len(router.messages) != 0 {
		t.Errorf("undecodable body reached the router: %+v", router.messages)
	}
}

func TestGitHubWebhookStatusCodes(t *testing.T) {
	body := []byte(`{"action":"opened"}`)

	tests := []struct {
		name       string
		signature  string
		wantStatus int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong mac", githubMAC([]byte("other payload")), http.StatusForbidden},
		{"no equals sign", "abcdef", http.StatusForbidden},
		{"valid", githubMAC(body), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, router, runner := newTestHandler()

			req := httptest.NewRequest(http.MethodPost, "/issue", bytes.NewReader(body))
			if tt.signature != "" {
				req.Header.Set("X-Hub-Signature", tt.signature)
			}
			rec := httptest.NewRecorder()
			h.HandleGitHubWebhook(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}

			runner.drain()
			if tt.wantStatus == http.StatusOK {
				if len(router.webhooks) != 1 || router.webhooks[0] != string(body) {
					t.Errorf("routed webhooks = %v", router.webhooks)
				}
			} else if len(router.webhooks) != 0 {
				t.Errorf("rejected request reached the router")
			}
		})
	}
}

func TestRouteTable(t *testing.T) {
	h, _, _ := newTestHandler()
	r := mux.NewRouter()
	h.Register(r)

	tests := []struct {
		method     string
		path       string
		wantStatus int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/", http.StatusOK},
		{http.MethodGet, "/message", http.StatusMethodNotAllowed},
		{http.MethodPut, "/issue", http.StatusMethodNotAllowed},
		{http.MethodPut, "/message", http.StatusUnauthorized},
		{http.MethodPost, "/issue", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestRootBanner(t *testing.T) {
	h, _, _ := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.HandleRoot(rec, req)

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	got := rec.Body.String()
	if !bytes.Contains([]byte(got), []byte(`"service":"octocat"`)) {
		t.Errorf("banner = %q", got)
	}
}
