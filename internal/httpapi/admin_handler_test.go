package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"aivisibility/internal/auth"
	"aivisibility/internal/models"
)

// stubUsageReader serves canned usage data to the admin endpoints.
type stubUsageReader struct {
	records map[uuid.UUID][]models.UsageRecord
	totals  map[string]int
}

func (u *stubUsageReader) ListByScan(ctx context.Context, scanID uuid.UUID) ([]models.UsageRecord, error) {
	return u.records[scanID], nil
}

func (u *stubUsageReader) TokensByProvider(ctx context.Context, since time.Time) (map[string]int, error) {
	return u.totals, nil
}

func adminLogin(t *testing.T, mux *http.ServeMux, username, password string) (string, int) {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"username": username, "password": password})
	req := httptest.NewRequest(http.MethodPost, "/admin/auth/login", bytes.NewBuffer(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		return "", rec.Code
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad login response: %v", err)
	}
	return resp.Token, rec.Code
}

func TestAdminLogin(t *testing.T) {
	mux, _ := newTestServer(t, &stubEngine{report: sampleReport()}, newStubScanStore(), &stubMonitor{})

	token, code := adminLogin(t, mux, "admin", "s3cret")
	if code != http.StatusOK || token == "" {
		t.Fatalf("login failed: code = %d", code)
	}

	if _, code := adminLogin(t, mux, "admin", "wrong"); code != http.StatusUnauthorized {
		t.Errorf("wrong password: code = %d, want 401", code)
	}
	if _, code := adminLogin(t, mux, "intruder", "s3cret"); code != http.StatusUnauthorized {
		t.Errorf("wrong username: code = %d, want 401", code)
	}
}

func TestAdminLogin_NotConfigured(t *testing.T) {
	mux, deps := newTestServer(t, &stubEngine{report: sampleReport()}, newStubScanStore(), &stubMonitor{})
	deps.cfg.AdminPasswordHash = ""

	if _, code := adminLogin(t, mux, "admin", "s3cret"); code != http.StatusServiceUnavailable {
		t.Errorf("code = %d, want 503", code)
	}
}

func TestAdminLogin_ViewerRole(t *testing.T) {
	monitor := &stubMonitor{}
	mux, deps := newTestServer(t, &stubEngine{report: sampleReport()}, newStubScanStore(), monitor)

	hash, err := auth.HashPassword("read-only")
	if err != nil {
		t.Fatal(err)
	}
	deps.cfg.ViewerUsername = "viewer"
	deps.cfg.ViewerPasswordHash = hash

	token, code := adminLogin(t, mux, "viewer", "read-only")
	if code != http.StatusOK || token == "" {
		t.Fatalf("viewer login failed: code = %d", code)
	}

	// Read access works.
	req := httptest.NewRequest(http.MethodGet, "/admin/models/health", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("health read: status = %d, want 200", rec.Code)
	}

	// Triggering probes is admin-only.
	req = httptest.NewRequest(http.MethodPost, "/admin/models/health/check", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("health check: status = %d, want 403", rec.Code)
	}
	if monitor.checkCalls != 0 {
		t.Errorf("viewer token must not trigger probes, got %d", monitor.checkCalls)
	}

	// Viewer credentials never unlock the admin account.
	if _, code := adminLogin(t, mux, "admin", "read-only"); code != http.StatusUnauthorized {
		t.Errorf("admin login with viewer password: code = %d, want 401", code)
	}
}

func TestAdminModelHealth(t *testing.T) {
	monitor := &stubMonitor{}
	mux, _ := newTestServer(t, &stubEngine{report: sampleReport()}, newStubScanStore(), monitor)

	token, code := adminLogin(t, mux, "admin", "s3cret")
	if code != http.StatusOK {
		t.Fatal("login failed")
	}

	// Snapshot read does not probe.
	req := httptest.NewRequest(http.MethodGet, "/admin/models/health", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("health: status = %d", rec.Code)
	}
	if monitor.checkCalls != 0 {
		t.Errorf("snapshot must not trigger probes, got %d", monitor.checkCalls)
	}

	// The check endpoint probes.
	req = httptest.NewRequest(http.MethodPost, "/admin/models/health/check", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("check: status = %d", rec.Code)
	}
	if monitor.checkCalls != 1 {
		t.Errorf("checkCalls = %d, want 1", monitor.checkCalls)
	}

	var resp struct {
		Checked int `json:"checked"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad check response: %v", err)
	}
	if resp.Checked != 1 {
		t.Errorf("checked = %d", resp.Checked)
	}
}

func TestAdminUsageEndpoints(t *testing.T) {
	mux, deps := newTestServer(t, &stubEngine{report: sampleReport()}, newStubScanStore(), &stubMonitor{})

	scanID := uuid.New()
	usage := deps.Usage.(*stubUsageReader)
	usage.totals = map[string]int{"openai": 1200, "gemini": 300}
	usage.records = map[uuid.UUID][]models.UsageRecord{
		scanID: {
			{ID: uuid.New(), ScanID: scanID, Provider: "openai", TokensEstimate: 700},
			{ID: uuid.New(), ScanID: scanID, Provider: "gemini", TokensEstimate: 300},
		},
	}

	token, code := adminLogin(t, mux, "admin", "s3cret")
	if code != http.StatusOK {
		t.Fatal("login failed")
	}
	get := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		return rec
	}

	rec := get("/admin/usage/summary")
	if rec.Code != http.StatusOK {
		t.Fatalf("summary: status = %d", rec.Code)
	}
	var summary struct {
		TotalTokens      int            `json:"total_tokens"`
		TokensByProvider map[string]int `json:"tokens_by_provider"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatal(err)
	}
	if summary.TotalTokens != 1500 {
		t.Errorf("total tokens = %d, want 1500", summary.TotalTokens)
	}
	if summary.TokensByProvider["openai"] != 1200 {
		t.Errorf("openai tokens = %d, want 1200", summary.TokensByProvider["openai"])
	}

	if rec := get("/admin/usage/summary?window=bogus"); rec.Code != http.StatusBadRequest {
		t.Errorf("bad window: status = %d, want 400", rec.Code)
	}

	rec = get("/admin/usage/scans/" + scanID.String())
	if rec.Code != http.StatusOK {
		t.Fatalf("scan usage: status = %d", rec.Code)
	}
	var trail struct {
		Items []models.UsageRecord `json:"items"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &trail); err != nil {
		t.Fatal(err)
	}
	if len(trail.Items) != 2 {
		t.Errorf("items = %d, want 2", len(trail.Items))
	}

	if rec := get("/admin/usage/scans/not-a-uuid"); rec.Code != http.StatusBadRequest {
		t.Errorf("bad scan id: status = %d, want 400", rec.Code)
	}
}

func TestAdminEndpoints_RequireToken(t *testing.T) {
	mux, _ := newTestServer(t, &stubEngine{report: sampleReport()}, newStubScanStore(), &stubMonitor{})

	req := httptest.NewRequest(http.MethodGet, "/admin/models/health", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/admin/models/health/check", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}
