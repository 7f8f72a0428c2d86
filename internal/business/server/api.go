// Package server hosts the HTTP API: the inbound message webhook the chat
// relay calls, the admin management endpoints, and the ping probe.
package server

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	slogctx "github.com/veqryn/slog-context"

	"github.com/requestline/intake-bot/internal/approval"
	"github.com/requestline/intake-bot/internal/auth"
	"github.com/requestline/intake-bot/internal/catalog"
	"github.com/requestline/intake-bot/internal/conversation"
	"github.com/requestline/intake-bot/internal/serviceerr"
)

// MessageProcessor handles one inbound chat message and returns the
// synchronous reply.
type MessageProcessor interface {
	ProcessMessage(ctx context.Context, senderHash, replyTo, text string) (conversation.Reply, error)
}

// PolicyAdmin reads and writes the system-wide approval policy.
type PolicyAdmin interface {
	GetApprovalPolicy(ctx context.Context) (approval.Policy, error)
	SetApprovalPolicy(ctx context.Context, policy approval.Policy) error
}

// EndpointAdmin manages the registry of downstream catalog endpoints.
type EndpointAdmin interface {
	List(ctx context.Context) ([]catalog.Endpoint, error)
	Get(ctx context.Context, name string) (catalog.Endpoint, error)
	Create(ctx context.Context, ep catalog.Endpoint) error
	Update(ctx context.Context, ep catalog.Endpoint) error
	Delete(ctx context.Context, name string) error
}

// API bundles the initialised services the HTTP server exposes.
type API struct {
	Conversations MessageProcessor
	Auth          *auth.Service
	Policies      PolicyAdmin
	Endpoints     EndpointAdmin

	// WebhookToken guards the inbound message endpoint. Empty disables the
	// check, for local development only.
	WebhookToken string

	// SenderSalt is mixed into the sender identity hash so the stored hash
	// cannot be reversed by hashing a list of known chat handles.
	SenderSalt string
}

type inboundMessage struct {
	SenderID string `json:"sender_id"`
	ChatID   string `json:"chat_id,omitempty"`
	Text     string `json:"text"`
}

type messageResponse struct {
	SessionID string `json:"session_id"`
	State     string `json:"state"`
	Reply     string `json:"reply"`
}

func (a *API) handlePing(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"result": "pong"})
}

func (a *API) handleInboundMessage(w http.ResponseWriter, r *http.Request) {
	if a.WebhookToken != "" && bearerToken(r) != a.WebhookToken {
		writeError(w, http.StatusUnauthorized, "invalid webhook token")
		return
	}

	var msg inboundMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if msg.SenderID == "" || strings.TrimSpace(msg.Text) == "" {
		writeError(w, http.StatusBadRequest, "sender_id and text are required")
		return
	}

	replyTo := msg.ChatID
	if replyTo == "" {
		replyTo = msg.SenderID
	}

	reply, err := a.Conversations.ProcessMessage(r.Context(), a.hashSender(msg.SenderID), replyTo, msg.Text)
	if err != nil {
		slogctx.Error(r.Context(), "Processing inbound message failed", "error", err)
		writeError(w, http.StatusInternalServerError, "processing message failed")

		return
	}

	writeJSON(w, http.StatusOK, messageResponse{
		SessionID: reply.SessionID,
		State:     string(reply.State),
		Reply:     reply.Text,
	})
}

// hashSender pseudonymises the chat identity before it reaches storage or
// logs.
func (a *API) hashSender(senderID string) string {
	sum := sha256.Sum256([]byte(a.SenderSalt + senderID))

	return hex.EncodeToString(sum[:])
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (a *API) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	token, err := a.Auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, serviceerr.ErrUnauthorized) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}

		slogctx.Error(r.Context(), "Admin login failed", "error", err)
		writeError(w, http.StatusInternalServerError, "login failed")

		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// requireAdmin rejects requests without a valid admin bearer token.
func (a *API) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, err := a.Auth.Verify(bearerToken(r))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		ctx := slogctx.With(r.Context(), "admin_user", username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *API) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	policy, err := a.Policies.GetApprovalPolicy(r.Context())
	if err != nil {
		slogctx.Error(r.Context(), "Getting approval policy failed", "error", err)
		writeError(w, http.StatusInternalServerError, "getting policy failed")

		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"policy": string(policy)})
}

func (a *API) handleSetPolicy(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Policy string `json:"policy"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	policy := approval.Policy(req.Policy)
	if !policy.Valid() {
		writeError(w, http.StatusBadRequest, "unknown policy")
		return
	}

	if err := a.Policies.SetApprovalPolicy(r.Context(), policy); err != nil {
		slogctx.Error(r.Context(), "Setting approval policy failed", "error", err)
		writeError(w, http.StatusInternalServerError, "setting policy failed")

		return
	}

	slogctx.Info(r.Context(), "Approval policy changed", "policy", string(policy))
	writeJSON(w, http.StatusOK, map[string]string{"policy": string(policy)})
}

func (a *API) handleListEndpoints(w http.ResponseWriter, r *http.Request) {
	endpoints, err := a.Endpoints.List(r.Context())
	if err != nil {
		slogctx.Error(r.Context(), "Listing catalog services failed", "error", err)
		writeError(w, http.StatusInternalServerError, "listing catalog services failed")

		return
	}

	if endpoints == nil {
		endpoints = []catalog.Endpoint{}
	}

	writeJSON(w, http.StatusOK, endpoints)
}

func (a *API) handleGetEndpoint(w http.ResponseWriter, r *http.Request) {
	ep, err := a.Endpoints.Get(r.Context(), r.PathValue("name"))
	if err != nil {
		if errors.Is(err, serviceerr.ErrNotFound) {
			writeError(w, http.StatusNotFound, "catalog service not found")
			return
		}

		slogctx.Error(r.Context(), "Getting catalog service failed", "error", err)
		writeError(w, http.StatusInternalServerError, "getting catalog service failed")

		return
	}

	writeJSON(w, http.StatusOK, ep)
}

func (a *API) handleCreateEndpoint(w http.ResponseWriter, r *http.Request) {
	ep, ok := decodeEndpoint(w, r)
	if !ok {
		return
	}

	if err := a.Endpoints.Create(r.Context(), ep); err != nil {
		if errors.Is(err, serviceerr.ErrConflict) {
			writeError(w, http.StatusConflict, "catalog service already exists")
			return
		}

		slogctx.Error(r.Context(), "Creating catalog service failed", "error", err)
		writeError(w, http.StatusInternalServerError, "creating catalog service failed")

		return
	}

	writeJSON(w, http.StatusCreated, ep)
}

func (a *API) handleUpdateEndpoint(w http.ResponseWriter, r *http.Request) {
	ep, ok := decodeEndpoint(w, r)
	if !ok {
		return
	}
	ep.Name = r.PathValue("name")

	if err := a.Endpoints.Update(r.Context(), ep); err != nil {
		if errors.Is(err, serviceerr.ErrNotFound) {
			writeError(w, http.StatusNotFound, "catalog service not found")
			return
		}

		slogctx.Error(r.Context(), "Updating catalog service failed", "error", err)
		writeError(w, http.StatusInternalServerError, "updating catalog service failed")

		return
	}

	writeJSON(w, http.StatusOK, ep)
}

func (a *API) handleDeleteEndpoint(w http.ResponseWriter, r *http.Request) {
	if err := a.Endpoints.Delete(r.Context(), r.PathValue("name")); err != nil {
		if errors.Is(err, serviceerr.ErrNotFound) {
			writeError(w, http.StatusNotFound, "catalog service not found")
			return
		}

		slogctx.Error(r.Context(), "Deleting catalog service failed", "error", err)
		writeError(w, http.StatusInternalServerError, "deleting catalog service failed")

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func decodeEndpoint(w http.ResponseWriter, r *http.Request) (catalog.Endpoint, bool) {
	var ep catalog.Endpoint
	if err := json.NewDecoder(r.Body).Decode(&ep); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return catalog.Endpoint{}, false
	}

	if ep.Name == "" && r.PathValue("name") == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return catalog.Endpoint{}, false
	}

	if ep.Kind != catalog.MediaKindMovie && ep.Kind != catalog.MediaKindSeries {
		writeError(w, http.StatusBadRequest, "kind must be movie or series")
		return catalog.Endpoint{}, false
	}

	if ep.BaseURL == "" {
		writeError(w, http.StatusBadRequest, "baseUrl is required")
		return catalog.Endpoint{}, false
	}

	return ep, true
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ""
	}

	return token
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
