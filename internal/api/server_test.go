package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ChaitanyaYeole02/gmail-cleaner/internal/agent"
	"github.com/ChaitanyaYeole02/gmail-cleaner/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScanner struct {
	last     *models.ScanReport
	dryRun   bool
	calls    []string
	scanErr  error
	criteria string
}

func (f *fakeScanner) scan(mode, criteria string) (*models.ScanReport, error) {
	f.calls = append(f.calls, mode)
	f.criteria = criteria
	if f.scanErr != nil {
		return nil, f.scanErr
	}
	f.last = &models.ScanReport{RunID: "run-1", Mode: mode, Criteria: criteria, DryRun: f.dryRun, Scanned: 3, Labeled: 1,
		LabelCounts: map[string]int{"To Be Deleted": 1}}
	return f.last, nil
}

func (f *fakeScanner) ScanKeywords(_ context.Context, criteria string) (*models.ScanReport, error) {
	return f.scan(models.ModeKeyword, criteria)
}

func (f *fakeScanner) ScanRules(_ context.Context, prompt string, _ []models.Rule) (*models.ScanReport, error) {
	return f.scan(models.ModeRules, prompt)
}

func (f *fakeScanner) LastReport() (models.ScanReport, error) {
	if f.last == nil {
		return models.ScanReport{}, agent.ErrNoReport
	}
	return *f.last, nil
}

func (f *fakeScanner) SetDryRun(dryRun bool) { f.dryRun = dryRun }

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthAndRoot(t *testing.T) {
	h := NewServer(&fakeScanner{}).Router()

	rec := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode(t, rec)["status"])

	rec = do(t, h, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decode(t, rec)["endpoints"], "POST /scan")

	rec = do(t, h, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReport_BeforeScan(t *testing.T) {
	h := NewServer(&fakeScanner{}).Router()

	rec := do(t, h, http.MethodGet, "/report", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, agent.ErrNoReport.Error(), decode(t, rec)["error"])

	rec = do(t, h, http.MethodGet, "/report/xlsx", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestScan_Validation(t *testing.T) {
	scanner := &fakeScanner{}
	h := NewServer(scanner).Router()

	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "invalid json", body: "{", want: "Failed to parse request"},
		{name: "empty criteria", body: `{"criteria": "   "}`, want: "criteria is required"},
		{name: "unknown mode", body: `{"criteria": "golang", "mode": "magic"}`, want: "mode must be"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/scan", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, decode(t, rec)["error"], tt.want)
		})
	}
	assert.Empty(t, scanner.calls)
}

func TestScan_Modes(t *testing.T) {
	scanner := &fakeScanner{}
	h := NewServer(scanner).Router()

	rec := do(t, h, http.MethodPost, "/scan", `{"criteria": " golang rust ", "dry_run": true}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var report models.ScanReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, models.ModeKeyword, report.Mode)
	assert.Equal(t, "golang rust", scanner.criteria)
	assert.True(t, report.DryRun)

	rec = do(t, h, http.MethodPost, "/scan", `{"criteria": "label java resumes", "mode": "rules"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{models.ModeKeyword, models.ModeRules}, scanner.calls)
	assert.False(t, scanner.dryRun)

	rec = do(t, h, http.MethodGet, "/report", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.ModeRules, decode(t, rec)["mode"])

	rec = do(t, h, http.MethodGet, "/report/xlsx", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "scan-run-1.xlsx")
	assert.NotZero(t, rec.Body.Len())
}

func TestScan_Busy(t *testing.T) {
	scanner := &fakeScanner{}
	server := NewServer(scanner)
	h := server.Router()

	server.busy.Lock()
	rec := do(t, h, http.MethodPost, "/scan", `{"criteria": "golang"}`)
	server.busy.Unlock()

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Empty(t, scanner.calls)

	rec = do(t, h, http.MethodPost, "/scan", `{"criteria": "golang"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestScan_Failure(t *testing.T) {
	scanner := &fakeScanner{scanErr: errors.New("failed to search emails: unauthorized")}
	h := NewServer(scanner).Router()

	rec := do(t, h, http.MethodPost, "/scan", `{"criteria": "golang"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "unauthorized")
}
