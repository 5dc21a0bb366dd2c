// Package webhook exposes the two authenticated HTTP surfaces of the
// bridge: chat messages arriving from Braid and issue events arriving
// from GitHub. Handlers only authenticate and acknowledge; everything
// after the signature check runs off the request path.
package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/braidchat/octocat/internal/message"
	"github.com/braidchat/octocat/internal/signature"
)

// EventRouter consumes verified, acknowledged events.
type EventRouter interface {
	HandleWebhook(ctx context.Context, body []byte)
	HandleChatMessage(ctx context.Context, msg message.Message)
}

// TaskRunner spawns the asynchronous half of request handling.
type TaskRunner interface {
	Go(name string, fn func(ctx context.Context))
}

// Handler authenticates inbound requests and hands the bodies to the
// event router via the runner.
type Handler struct {
	botName       string
	braidToken    []byte
	webhookSecret []byte
	router        EventRouter
	runner        TaskRunner
}

// NewHandler creates the webhook handler.
func NewHandler(botName, braidToken, webhookSecret string, router EventRouter, runner TaskRunner) *Handler {
	return &Handler{
		botName:       botName,
		braidToken:    []byte(braidToken),
		webhookSecret: []byte(webhookSecret),
		router:        router,
		runner:        runner,
	}
}

// Register wires the route table.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/message", h.HandleBraidMessage).Methods(http.MethodPut)
	r.HandleFunc("/issue", h.HandleGitHubWebhook).Methods(http.MethodPost)
	r.HandleFunc("/health", h.HandleHealth).Methods(http.MethodGet)
	r.HandleFunc("/", h.HandleRoot).Methods(http.MethodGet)
}

// HandleBraidMessage receives a CBOR chat message pushed by the Braid
// server. The response only reflects authentication: once the MAC
// checks out the request is acknowledged and decoding happens in the
// background, so a malformed body never surfaces to the sender.
func (h *Handler) HandleBraidMessage(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Error().Err(err).Msg("failed to read braid message body")
		http.Error(w, "could not read body", http.StatusBadRequest)
		return
	}

	header := r.Header.Get("X-Braid-Signature")
	if err := signature.ValidateHeader("X-Braid-Signature", header); err != nil {
		log.Warn().Err(err).Msg("braid message rejected")
		http.Error(w, "missing signature", http.StatusUnauthorized)
		return
	}
	if !signature.VerifyBraid(header, h.braidToken, body) {
		log.Warn().Msg("braid message rejected: signature mismatch")
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))

	h.runner.Go("braid-message", func(ctx context.Context) {
		msg, err := message.Decode(body)
		if err != nil {
			log.Error().Err(err).Msg("braid message dropped: undecodable")
			return
		}
		h.router.HandleChatMessage(ctx, msg)
	})
}

// HandleGitHubWebhook receives issue events from GitHub.
func (h *Handler) HandleGitHubWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Error().Err(err).Msg("failed to read webhook body")
		http.Error(w, "could not read body", http.StatusBadRequest)
		return
	}

	header := r.Header.Get("X-Hub-Signature")
	if err := signature.ValidateHeader("X-Hub-Signature", header); err != nil {
		log.Warn().Err(err).Msg("webhook rejected")
		http.Error(w, "missing signature", http.StatusUnauthorized)
		return
	}
	if !signature.VerifyGitHub(header, h.webhookSecret, body) {
		log.Warn().Msg("webhook rejected: signature mismatch")
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))

	h.runner.Go("github-webhook", func(ctx context.Context) {
		h.router.HandleWebhook(ctx, body)
	})
}

// HandleHealth reports liveness.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// HandleRoot serves a small service banner.
func (h *Handler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"service": h.botName,
		"status":  "running",
	})
}
