package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"aivisibility/internal/auth"
	"aivisibility/internal/config"
	"aivisibility/internal/models"
	"aivisibility/internal/orchestrator"
	"aivisibility/internal/storage"
	"aivisibility/internal/utils"
)

// stubEngine records the last run and returns a canned report.
type stubEngine struct {
	lastURL  string
	lastOpts orchestrator.Options
	report   *models.VisibilityReport
	err      error
}

func (e *stubEngine) RunVisibilityAnalysis(ctx context.Context, rawURL string, opts orchestrator.Options) (*models.VisibilityReport, error) {
	e.lastURL = rawURL
	e.lastOpts = opts
	if e.err != nil {
		return nil, e.err
	}
	return e.report, nil
}

// stubScanStore keeps scans in a map.
type stubScanStore struct {
	scans map[uuid.UUID]*models.Scan
}

func newStubScanStore() *stubScanStore {
	return &stubScanStore{scans: make(map[uuid.UUID]*models.Scan)}
}

func (s *stubScanStore) Create(ctx context.Context, scan *models.Scan) error {
	s.scans[scan.ID] = scan
	return nil
}

func (s *stubScanStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Scan, error) {
	scan, ok := s.scans[id]
	if !ok {
		return nil, storage.ErrScanNotFound
	}
	return scan, nil
}

func (s *stubScanStore) Complete(ctx context.Context, id uuid.UUID, report models.JSONB) error {
	scan, ok := s.scans[id]
	if !ok {
		return storage.ErrScanNotFound
	}
	scan.Status = models.ScanStatusCompleted
	scan.Report = report
	return nil
}

func (s *stubScanStore) Fail(ctx context.Context, id uuid.UUID, report models.JSONB) error {
	scan, ok := s.scans[id]
	if !ok {
		return storage.ErrScanNotFound
	}
	scan.Status = models.ScanStatusFailed
	scan.Report = report
	return nil
}

func (s *stubScanStore) ListByAPIKey(ctx context.Context, apiKeyID string, limit int) ([]models.Scan, error) {
	var out []models.Scan
	for _, scan := range s.scans {
		if scan.APIKeyID == apiKeyID {
			out = append(out, *scan)
		}
	}
	return out, nil
}

type stubMonitor struct {
	checkCalls int
}

func (m *stubMonitor) Snapshot() models.HealthSnapshot {
	return models.HealthSnapshot{Models: map[string]models.HealthRecord{
		"gpt-4o-mini": {Healthy: true},
	}}
}

func (m *stubMonitor) CheckAll(ctx context.Context) map[string]models.HealthRecord {
	m.checkCalls++
	return map[string]models.HealthRecord{"gpt-4o-mini": {Healthy: true}}
}

func sampleReport() *models.VisibilityReport {
	return &models.VisibilityReport{
		Domain:     "example.com",
		TotalScore: 7,
		MaxScore:   9,
		Percentage: 78,
		Details: []models.AnalysisResult{
			{PromptID: "default-1", Score: 2, Confidence: models.ConfidenceMedium, Citations: []string{}},
		},
	}
}

func newTestServer(t *testing.T, engine VisibilityEngine, scans ScanStore, monitor HealthMonitor) (*http.ServeMux, *Dependencies) {
	t.Helper()

	hash, err := auth.HashPassword("s3cret")
	if err != nil {
		t.Fatal(err)
	}
	cfg := &config.Config{
		JWTSecret:         []byte("test-secret"),
		AdminUsername:     "admin",
		AdminPasswordHash: hash,
	}

	store := auth.NewInMemoryAPIKeyStore()
	store.Add("vis_free_key", &auth.APIKeyRecord{ID: "key-free", Tier: auth.TierFree})
	store.Add("vis_pro_key", &auth.APIKeyRecord{ID: "key-pro", Tier: auth.TierPro})

	deps := &Dependencies{
		APIKeys: store,
		Engine:  engine,
		Health:  monitor,
		Scans:   scans,
		Usage:   &stubUsageReader{totals: map[string]int{}},
		cfg:     cfg,
		logger:  utils.NewLogger("httpapi-test"),
	}

	mux := http.NewServeMux()
	registerRoutes(mux, deps, cfg)
	return mux, deps
}

func postAnalyze(mux *http.ServeMux, apiKey, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/analyze", bytes.NewBufferString(body))
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestHandleAnalyze_FreeTier(t *testing.T) {
	engine := &stubEngine{report: sampleReport()}
	scans := newStubScanStore()
	mux, _ := newTestServer(t, engine, scans, &stubMonitor{})

	rec := postAnalyze(mux, "vis_free_key", `{"url":"https://www.example.com/"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp analyzeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if resp.Report.Percentage != 78 {
		t.Errorf("percentage = %d", resp.Report.Percentage)
	}
	if engine.lastOpts.IsElevatedTier {
		t.Error("free key must not run the elevated pipeline")
	}

	scanID, err := uuid.Parse(resp.ScanID)
	if err != nil {
		t.Fatalf("scan_id = %q: %v", resp.ScanID, err)
	}
	scan := scans.scans[scanID]
	if scan == nil {
		t.Fatal("scan not persisted")
	}
	if scan.Status != models.ScanStatusCompleted {
		t.Errorf("scan status = %s", scan.Status)
	}
	if scan.Tier != auth.TierFree || scan.APIKeyID != "key-free" {
		t.Errorf("scan ownership = %s/%s", scan.Tier, scan.APIKeyID)
	}
}

func TestHandleAnalyze_ProTierElevates(t *testing.T) {
	engine := &stubEngine{report: sampleReport()}
	mux, _ := newTestServer(t, engine, newStubScanStore(), &stubMonitor{})

	body := `{"url":"example.com","business_context":{"brand_name":"Example Inc","industry":"SEO"}}`
	rec := postAnalyze(mux, "vis_pro_key", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !engine.lastOpts.IsElevatedTier {
		t.Error("pro key must run the elevated pipeline")
	}
	if engine.lastOpts.BusinessContext.BrandName != "Example Inc" {
		t.Errorf("business context = %+v", engine.lastOpts.BusinessContext)
	}
	if engine.lastOpts.ScanID == uuid.Nil {
		t.Error("scan id must be set before the run")
	}
}

func TestHandleAnalyze_Rejections(t *testing.T) {
	engine := &stubEngine{report: sampleReport()}
	mux, _ := newTestServer(t, engine, newStubScanStore(), &stubMonitor{})

	tests := []struct {
		name   string
		apiKey string
		body   string
		status int
	}{
		{"no key", "", `{"url":"example.com"}`, http.StatusUnauthorized},
		{"bad body", "vis_free_key", `{not json`, http.StatusBadRequest},
		{"missing url", "vis_free_key", `{}`, http.StatusBadRequest},
		{"unparseable url", "vis_free_key", `{"url":"https:///"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postAnalyze(mux, tt.apiKey, tt.body)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
		})
	}
}

func TestHandleAnalyze_EngineFailureMarksScanFailed(t *testing.T) {
	engine := &stubEngine{err: context.DeadlineExceeded}
	scans := newStubScanStore()
	mux, _ := newTestServer(t, engine, scans, &stubMonitor{})

	rec := postAnalyze(mux, "vis_free_key", `{"url":"example.com"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	for _, scan := range scans.scans {
		if scan.Status != models.ScanStatusFailed {
			t.Errorf("scan status = %s, want failed", scan.Status)
		}
	}
}

func TestHandleGetScan(t *testing.T) {
	scans := newStubScanStore()
	owned := &models.Scan{ID: uuid.New(), APIKeyID: "key-free", Domain: "example.com", Status: models.ScanStatusCompleted}
	foreign := &models.Scan{ID: uuid.New(), APIKeyID: "someone-else", Domain: "other.org", Status: models.ScanStatusCompleted}
	scans.scans[owned.ID] = owned
	scans.scans[foreign.ID] = foreign

	mux, _ := newTestServer(t, &stubEngine{report: sampleReport()}, scans, &stubMonitor{})

	get := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("X-API-Key", "vis_free_key")
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		return rec
	}

	if rec := get("/v1/scans/" + owned.ID.String()); rec.Code != http.StatusOK {
		t.Errorf("own scan: status = %d", rec.Code)
	}
	// Another key's scan reads as missing, not forbidden.
	if rec := get("/v1/scans/" + foreign.ID.String()); rec.Code != http.StatusNotFound {
		t.Errorf("foreign scan: status = %d, want 404", rec.Code)
	}
	if rec := get("/v1/scans/" + uuid.NewString()); rec.Code != http.StatusNotFound {
		t.Errorf("unknown scan: status = %d, want 404", rec.Code)
	}
	if rec := get("/v1/scans/not-a-uuid"); rec.Code != http.StatusBadRequest {
		t.Errorf("bad id: status = %d, want 400", rec.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	mux, _ := newTestServer(t, &stubEngine{report: sampleReport()}, newStubScanStore(), &stubMonitor{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}
