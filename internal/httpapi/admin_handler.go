package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"aivisibility/internal/auth"
	"aivisibility/internal/queue"
	"aivisibility/internal/utils"
)

type adminLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleAdminLogin exchanges operator credentials for a short-lived token.
// The admin account gets full access; the optional viewer account gets a
// read-only token.
func (deps *Dependencies) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if deps.cfg.AdminPasswordHash == "" && deps.cfg.ViewerPasswordHash == "" {
		utils.RespondWithError(w, http.StatusServiceUnavailable, "Admin login is not configured")
		return
	}

	var req adminLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var role auth.Role
	switch {
	case deps.cfg.AdminPasswordHash != "" && req.Username == deps.cfg.AdminUsername &&
		auth.CheckPassword(deps.cfg.AdminPasswordHash, req.Password):
		role = auth.RoleAdmin
	case deps.cfg.ViewerPasswordHash != "" && req.Username == deps.cfg.ViewerUsername &&
		auth.CheckPassword(deps.cfg.ViewerPasswordHash, req.Password):
		role = auth.RoleViewer
	default:
		utils.RespondWithError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, exp, err := auth.GenerateAdminToken(req.Username, role, deps.cfg.JWTSecret)
	if err != nil {
		deps.logger.Error("Failed to generate admin token", "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Error generating token")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"token": token,
		"role":  role.String(),
		"exp":   exp,
	})
}

// handleModelHealth returns the current health snapshot without probing.
func (deps *Dependencies) handleModelHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, deps.Health.Snapshot())
}

// handleModelHealthCheck probes every registered model and returns the
// fresh records.
func (deps *Dependencies) handleModelHealthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	records := deps.Health.CheckAll(r.Context())
	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"checked": len(records),
		"models":  records,
	})
}

// handleUsageSummary aggregates persisted token usage per provider over a
// trailing window (default 24h).
func (deps *Dependencies) handleUsageSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	window := 24 * time.Hour
	if raw := r.URL.Query().Get("window"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			utils.RespondWithError(w, http.StatusBadRequest, "Invalid window duration")
			return
		}
		window = parsed
	}

	since := time.Now().Add(-window)
	totals, err := deps.Usage.TokensByProvider(r.Context(), since)
	if err != nil {
		deps.logger.Error("Failed to aggregate usage", "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to aggregate usage")
		return
	}

	total := 0
	for _, tokens := range totals {
		total += tokens
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"since":              since,
		"total_tokens":       total,
		"tokens_by_provider": totals,
	})
}

// handleScanUsage returns the per-call audit trail for one scan.
func (deps *Dependencies) handleScanUsage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	id, err := uuid.Parse(strings.TrimPrefix(r.URL.Path, "/admin/usage/scans/"))
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid scan id")
		return
	}

	records, err := deps.Usage.ListByScan(r.Context(), id)
	if err != nil {
		deps.logger.Error("Failed to list scan usage", "scan", id, "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to list scan usage")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"scan_id": id,
		"items":   records,
	})
}

// handleUsageDLQ lists usage records parked after failed persistence.
func (deps *Dependencies) handleUsageDLQ(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	max := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			max = parsed
		}
	}

	items, err := deps.UsageWorker.DeadLetterItems(r.Context(), max)
	if err != nil {
		deps.logger.Error("Failed to list DLQ items", "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to list dead letter items")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

// handleUsageDLQRetry re-enqueues one parked usage record.
func (deps *Dependencies) handleUsageDLQRetry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "An item id is required")
		return
	}

	if err := deps.UsageWorker.RetryDeadLetterItem(r.Context(), req.ID); err != nil {
		if errors.Is(err, queue.ErrItemNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "Item not found")
			return
		}
		deps.logger.Error("Failed to retry DLQ item", "id", req.ID, "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to retry item")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "requeued"})
}
