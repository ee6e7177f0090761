package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/contest-radar/contest-engine/internal/models"
	enginesync "github.com/contest-radar/contest-engine/internal/sync"
)

// Response helpers

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: false,
		Error: &apiError{
			Code:    code,
			Message: message,
		},
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

// Health handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	// Check if the database is reachable
	if err := s.repo.Ping(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, "not_ready", "service not ready")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}

// Sync handlers

func (s *Server) handleSyncAll(w http.ResponseWriter, r *http.Request) {
	result, err := s.orchestrator.SyncAll(r.Context())
	if err != nil {
		if errors.Is(err, enginesync.ErrSyncInProgress) {
			respondError(w, http.StatusConflict, "sync_in_progress", "a sync run is already active")
			return
		}
		slog.Error("sync failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "sync failed")
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleSyncPlatform(w http.ResponseWriter, r *http.Request) {
	p := models.Platform(chi.URLParam(r, "platform"))
	if !p.Valid() {
		respondError(w, http.StatusBadRequest, "validation_error", "unknown platform")
		return
	}

	result, err := s.orchestrator.SyncPlatform(r.Context(), p)
	if err != nil {
		slog.Error("platform sync failed", "platform", p, "error", err)
		respondError(w, http.StatusNotFound, "adapter_not_found", err.Error())
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// Cleanup handler

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	result := s.cleaner.Cleanup(r.Context())
	respondJSON(w, http.StatusOK, result)
}

// Contest handlers

func (s *Server) handleListContests(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	p := models.Platform(r.URL.Query().Get("platform"))
	if p != "" && !p.Valid() {
		respondError(w, http.StatusBadRequest, "validation_error", "unknown platform")
		return
	}

	status := r.URL.Query().Get("status")
	switch status {
	case "upcoming":
		if s.contestCache != nil {
			if contests, ok := s.contestCache.GetUpcoming(r.Context(), p); ok {
				respondContests(w, contests)
				return
			}
		}

		contests, err := s.repo.FindUpcoming(r.Context(), now, p)
		if err != nil {
			slog.Error("failed to list upcoming contests", "error", err)
			respondError(w, http.StatusInternalServerError, "internal_error", "failed to list contests")
			return
		}

		if s.contestCache != nil {
			s.contestCache.SetUpcoming(r.Context(), p, contests)
		}
		respondContests(w, contests)
		return

	case "running":
		contests, err := s.repo.FindRunning(r.Context(), now, p)
		if err != nil {
			slog.Error("failed to list running contests", "error", err)
			respondError(w, http.StatusInternalServerError, "internal_error", "failed to list contests")
			return
		}
		respondContests(w, contests)
		return

	case "":
		// fall through to the filtered listing

	default:
		respondError(w, http.StatusBadRequest, "validation_error", "status must be upcoming or running")
		return
	}

	filters := models.ContestFilters{
		Platform: p,
		Limit:    50, // default
		Offset:   0,
	}

	if fromStr := r.URL.Query().Get("from"); fromStr != "" {
		from, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			respondError(w, http.StatusBadRequest, "validation_error", "from must be RFC3339")
			return
		}
		filters.From = from
	}

	if toStr := r.URL.Query().Get("to"); toStr != "" {
		to, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			respondError(w, http.StatusBadRequest, "validation_error", "to must be RFC3339")
			return
		}
		filters.To = to
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
			filters.Limit = limit
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil && offset >= 0 {
			filters.Offset = offset
		}
	}

	contests, err := s.repo.ListContests(r.Context(), filters)
	if err != nil {
		slog.Error("failed to list contests", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to list contests")
		return
	}

	respondContests(w, contests)
}

func respondContests(w http.ResponseWriter, contests []*models.Contest) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"contests": contests,
		"total":    len(contests),
	})
}

func (s *Server) handleGetContest(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", "contest id must be a UUID")
		return
	}

	contest, err := s.repo.GetContest(r.Context(), id)
	if err != nil {
		slog.Error("failed to get contest", "error", err, "id", id)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to get contest")
		return
	}
	if contest == nil {
		respondError(w, http.StatusNotFound, "not_found", "contest not found")
		return
	}

	respondJSON(w, http.StatusOK, contest)
}

// Notification handlers

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	filters := models.NotificationFilters{
		UserID: r.URL.Query().Get("user_id"),
		Status: models.NotificationStatus(r.URL.Query().Get("status")),
		Limit:  50, // default
		Offset: 0,
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
			filters.Limit = limit
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil && offset >= 0 {
			filters.Offset = offset
		}
	}

	notifications, err := s.repo.ListNotifications(r.Context(), filters)
	if err != nil {
		slog.Error("failed to list notifications", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to list notifications")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": notifications,
		"total":         len(notifications),
	})
}

func (s *Server) handleGetNotification(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", "notification id must be a UUID")
		return
	}

	n, err := s.repo.GetNotification(r.Context(), id)
	if err != nil {
		slog.Error("failed to get notification", "error", err, "id", id)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to get notification")
		return
	}
	if n == nil {
		respondError(w, http.StatusNotFound, "not_found", "notification not found")
		return
	}

	respondJSON(w, http.StatusOK, n)
}

func (s *Server) handleRetryNotification(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", "notification id must be a UUID")
		return
	}

	n, err := s.repo.GetNotification(r.Context(), id)
	if err != nil {
		slog.Error("failed to get notification", "error", err, "id", id)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to get notification")
		return
	}
	if n == nil {
		respondError(w, http.StatusNotFound, "not_found", "notification not found")
		return
	}

	updated, err := s.dispatcher.Dispatch(r.Context(), id)
	if err != nil {
		slog.Error("manual dispatch failed", "error", err, "id", id)
		respondError(w, http.StatusInternalServerError, "internal_error", "dispatch failed")
		return
	}

	respondJSON(w, http.StatusOK, updated)
}

// Component health handlers

func (s *Server) handlePlatformsHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.adapters.HealthCheckAll(r.Context()))
}

func (s *Server) handleChannelsHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.senders.HealthCheckAll(r.Context()))
}
