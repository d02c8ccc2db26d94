package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"aivisibility/internal/analyzer"
	"aivisibility/internal/middleware"
	"aivisibility/internal/models"
	"aivisibility/internal/orchestrator"
	"aivisibility/internal/storage"
	"aivisibility/internal/utils"
)

type analyzeRequest struct {
	URL             string `json:"url"`
	BusinessContext struct {
		BrandName    string `json:"brand_name"`
		Industry     string `json:"industry"`
		BrandSummary string `json:"brand_summary"`
	} `json:"business_context"`
}

type analyzeResponse struct {
	ScanID string                   `json:"scan_id"`
	Report *models.VisibilityReport `json:"report"`
}

// handleAnalyze runs a visibility analysis synchronously and returns the
// report. The caller's tier picks the pipeline: pro keys get generated
// prompts with multi-provider fan-out.
func (deps *Dependencies) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	domain := analyzer.NormalizeDomain(req.URL)
	if domain == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "A valid url is required")
		return
	}

	record, ok := middleware.GetAPIKeyRecord(r.Context())
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Missing API key")
		return
	}

	scanID := uuid.New()
	if deps.Scans != nil {
		scan := &models.Scan{
			ID:        scanID,
			APIKeyID:  record.ID,
			URL:       req.URL,
			Domain:    domain,
			Tier:      record.Tier,
			Status:    models.ScanStatusRunning,
			CreatedAt: time.Now(),
		}
		if err := deps.Scans.Create(r.Context(), scan); err != nil {
			deps.logger.Error("Failed to create scan", "error", err)
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to create scan")
			return
		}
	}

	opts := orchestrator.Options{
		IsElevatedTier: record.Elevated(),
		BusinessContext: models.BusinessContext{
			BrandName:    req.BusinessContext.BrandName,
			Industry:     req.BusinessContext.Industry,
			BrandSummary: req.BusinessContext.BrandSummary,
		},
		ScanID: scanID,
	}

	report, err := deps.Engine.RunVisibilityAnalysis(r.Context(), req.URL, opts)
	if err != nil {
		if deps.Scans != nil {
			if ferr := deps.Scans.Fail(r.Context(), scanID, models.JSONB{"error": err.Error()}); ferr != nil {
				deps.logger.Error("Failed to mark scan failed", "scan", scanID.String(), "error", ferr)
			}
		}
		if errors.Is(err, orchestrator.ErrInvalidURL) {
			utils.RespondWithError(w, http.StatusBadRequest, "A valid url is required")
			return
		}
		deps.logger.Error("Analysis failed", "scan", scanID.String(), "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Analysis failed")
		return
	}

	if deps.Scans != nil {
		doc, err := reportToJSONB(report)
		if err != nil {
			deps.logger.Error("Failed to encode report", "scan", scanID.String(), "error", err)
		} else if err := deps.Scans.Complete(r.Context(), scanID, doc); err != nil {
			deps.logger.Error("Failed to complete scan", "scan", scanID.String(), "error", err)
		}
	}

	utils.RespondWithJSON(w, http.StatusOK, analyzeResponse{
		ScanID: scanID.String(),
		Report: report,
	})
}

// handleGetScan returns one persisted scan owned by the calling key.
func (deps *Dependencies) handleGetScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	id, err := uuid.Parse(strings.TrimPrefix(r.URL.Path, "/v1/scans/"))
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid scan id")
		return
	}

	record, ok := middleware.GetAPIKeyRecord(r.Context())
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Missing API key")
		return
	}

	scan, err := deps.Scans.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrScanNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "Scan not found")
			return
		}
		deps.logger.Error("Failed to load scan", "scan", id.String(), "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to load scan")
		return
	}

	// Keys only ever see their own scans.
	if scan.APIKeyID != record.ID {
		utils.RespondWithError(w, http.StatusNotFound, "Scan not found")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, scan)
}

// handleListScans returns the calling key's recent scans.
func (deps *Dependencies) handleListScans(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	record, ok := middleware.GetAPIKeyRecord(r.Context())
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Missing API key")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	scans, err := deps.Scans.ListByAPIKey(r.Context(), record.ID, limit)
	if err != nil {
		deps.logger.Error("Failed to list scans", "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to list scans")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{"scans": scans})
}

// handleHealth is the liveness endpoint.
func (deps *Dependencies) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok"}
	if deps.DB != nil {
		if err := deps.DB.Health(r.Context()); err != nil {
			utils.RespondWithJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "degraded",
				"error":  err.Error(),
			})
			return
		}
		status["database"] = "ok"
	}
	utils.RespondWithJSON(w, http.StatusOK, status)
}

func reportToJSONB(report *models.VisibilityReport) (models.JSONB, error) {
	raw, err := json.Marshal(report)
	if err != nil {
		return nil, err
	}
	var doc models.JSONB
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
