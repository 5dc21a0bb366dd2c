package braid

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fxamacker/cbor/v2"

	"github.com/braidchat/octocat/internal/message"
)

func TestSendMessage(t *testing.T) {
	var gotPath, gotContentType string
	var gotBody []byte
	var gotUser, gotPass string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		gotUser, gotPass, _ = r.BasicAuth()
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "bot-id", "bot-token")
	msg := message.ReplyToThread("group-1", "thread-1", "hello")

	if err := client.SendMessage(context.Background(), msg); err != nil {
		t.Fatalf("SendMessage() error: %v", err)
	}

	if gotPath != "/message" {
		t.Errorf("path = %q, want /message", gotPath)
	}
	if gotContentType != "application/transit+msgpack" {
		t.Errorf("content type = %q", gotContentType)
	}
	if gotUser != "bot-id" || gotPass != "bot-token" {
		t.Errorf("basic auth = %q/%q", gotUser, gotPass)
	}

	var raw map[string]any
	if err := cbor.Unmarshal(gotBody, &raw); err != nil {
		t.Fatalf("decode sent body: %v", err)
	}
	if raw["thread-id"] != "thread-1" || raw["content"] != "hello" {
		t.Errorf("sent message = %v", raw)
	}
}

func TestSendMessageErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "bot-id", "bot-token")
	err := client.SendMessage(context.Background(), message.ReplyToThread("g", "t", "x"))
	if err == nil {
		t.Fatal("expected error on non-2xx status")
	}
}

func TestNickname(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/names/user-1":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"nick":"alice"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "bot-id", "bot-token")

	nick, err := client.Nickname(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Nickname() error: %v", err)
	}
	if nick != "alice" {
		t.Errorf("nick = %q, want alice", nick)
	}

	// Unknown users are not an error; the caller picks the fallback.
	nick, err = client.Nickname(context.Background(), "user-unknown")
	if err != nil {
		t.Fatalf("Nickname(unknown) error: %v", err)
	}
	if nick != "" {
		t.Errorf("nick = %q, want empty", nick)
	}
}

func TestSubscribe(t *testing.T) {
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "bot-id", "bot-token")
	if err := client.Subscribe(context.Background(), "thread-9"); err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}
	if gotMethod != http.MethodPut || gotPath != "/subscribe/thread-9" {
		t.Errorf("request = %s %s", gotMethod, gotPath)
	}
}

func TestThreadURL(t *testing.T) {
	got := ThreadURL("https://braid.example/", "group-1", "thread-1")
	if got != "https://braid.example/group-1/thread/thread-1" {
		t.Errorf("ThreadURL() = %q", got)
	}
}
