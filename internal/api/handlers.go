package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"finquery/internal/core"
	"finquery/internal/store"
)

type APIHandler struct {
	sessions *core.SessionManager
	log      zerolog.Logger
}

func NewAPIHandler(sessions *core.SessionManager, log zerolog.Logger) *APIHandler {
	return &APIHandler{sessions: sessions, log: log}
}

type CreateSessionRequest struct {
	Transactions []store.TransactionRecord `json:"transactions"`
}

type CreateSessionResponse struct {
	SessionID    string              `json:"session_id"`
	Transactions []store.Transaction `json:"transactions"`
	Indexed      int                 `json:"indexed"`
}

// CreateSessionHandler accepts a normalized transaction batch from the
// upstream data-cleaning collaborator and opens an analysis session.
func (h *APIHandler) CreateSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	sess, err := h.sessions.CreateSession(r.Context(), req.Transactions)
	if err != nil {
		var vErr *store.ValidationError
		if errors.As(err, &vErr) {
			http.Error(w, vErr.Error(), http.StatusBadRequest)
			return
		}
		h.log.Error().Err(err).Msg("failed to create session")
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	resp := CreateSessionResponse{
		SessionID:    sess.ID,
		Transactions: sess.Transactions(),
		Indexed:      sess.Index().Len(),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(resp)
}

type AskRequest struct {
	Question string `json:"question"`
}

func (h *APIHandler) AskHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Question == "" {
		http.Error(w, "Question cannot be empty", http.StatusBadRequest)
		return
	}

	answer, err := h.sessions.Ask(r.Context(), sessionID, req.Question)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrSessionNotFound):
			http.Error(w, "Session not found", http.StatusNotFound)
		case errors.Is(err, core.ErrSessionIndexing):
			http.Error(w, "Session is still indexing, try again shortly", http.StatusConflict)
		default:
			var mErr *core.ModelUnavailableError
			if errors.As(err, &mErr) {
				h.log.Error().Err(err).Str("session_id", sessionID).Msg("model capability unavailable")
				http.Error(w, "The answer service is temporarily unavailable", http.StatusBadGateway)
				return
			}
			h.log.Error().Err(err).Str("session_id", sessionID).Msg("failed to answer question")
			http.Error(w, "Failed to answer question", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(answer)
}

func (h *APIHandler) ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	sess, err := h.sessions.Get(sessionID)
	if err != nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sess.Transactions())
}

type StatsResponse struct {
	Summary    core.SummaryStats   `json:"summary"`
	Categories []core.CategoryStat `json:"categories"`
}

func (h *APIHandler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	sess, err := h.sessions.Get(sessionID)
	if err != nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	txs := sess.Transactions()
	resp := StatsResponse{
		Summary:    core.Summarize(txs),
		Categories: core.CategoryDistribution(txs),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (h *APIHandler) ListMessagesHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	messages, err := h.sessions.Messages(sessionID)
	if err != nil {
		if errors.Is(err, core.ErrSessionNotFound) {
			http.Error(w, "Session not found", http.StatusNotFound)
			return
		}
		h.log.Error().Err(err).Str("session_id", sessionID).Msg("failed to list messages")
		http.Error(w, "Failed to list messages", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(messages)
}

type AlertsResponse struct {
	Alerts  []core.Alert       `json:"alerts"`
	Summary core.AlertsSummary `json:"summary"`
}

// AlertsHandler reports spending anomalies for the session. Computed from the
// transaction history alone; always safe to poll.
func (h *APIHandler) AlertsHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	sess, err := h.sessions.Get(sessionID)
	if err != nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	alerts := core.GenerateAlerts(sess.Transactions(), time.Now())
	resp := AlertsResponse{Alerts: alerts, Summary: core.SummarizeAlerts(alerts)}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (h *APIHandler) HealthScoreHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	sess, err := h.sessions.Get(sessionID)
	if err != nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(core.ScoreHealth(sess.Transactions()))
}

type ForecastResponse struct {
	Forecast   core.SpendingForecast   `json:"forecast"`
	Categories []core.CategoryForecast `json:"categories"`
}

// ForecastHandler projects spending forward. "months" selects the horizon,
// defaulting to 3 and capped at 12.
func (h *APIHandler) ForecastHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	months := 3
	if v := r.URL.Query().Get("months"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "months must be a positive integer", http.StatusBadRequest)
			return
		}
		months = n
	}
	if months > 12 {
		months = 12
	}

	sess, err := h.sessions.Get(sessionID)
	if err != nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	txs := sess.Transactions()
	resp := ForecastResponse{
		Forecast:   core.ForecastSpending(txs, months, time.Now()),
		Categories: core.ForecastCategories(txs),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (h *APIHandler) DeleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if err := h.sessions.Delete(sessionID); err != nil {
		if errors.Is(err, core.ErrSessionNotFound) {
			http.Error(w, "Session not found", http.StatusNotFound)
			return
		}
		h.log.Error().Err(err).Str("session_id", sessionID).Msg("failed to delete session")
		http.Error(w, "Failed to delete session", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
