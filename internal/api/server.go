package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ChaitanyaYeole02/gmail-cleaner/internal/export"
	"github.com/ChaitanyaYeole02/gmail-cleaner/internal/models"
	"github.com/rs/zerolog/log"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Scanner is what the server needs from the scan agent
type Scanner interface {
	ScanKeywords(ctx context.Context, criteria string) (*models.ScanReport, error)
	ScanRules(ctx context.Context, prompt string, ruleSet []models.Rule) (*models.ScanReport, error)
	LastReport() (models.ScanReport, error)
	SetDryRun(dryRun bool)
}

// Server handles HTTP requests
type Server struct {
	scanner Scanner
	// busy serialises scans; a second request gets 409 instead of waiting
	busy sync.Mutex
}

// NewServer creates a new API server
func NewServer(scanner Scanner) *Server {
	return &Server{
		scanner: scanner,
	}
}

// Router returns the HTTP router
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /scan", s.handleScan)
	mux.HandleFunc("GET /report", s.handleReport)
	mux.HandleFunc("GET /report/xlsx", s.handleReportExcel)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /", s.handleRoot)

	return s.loggingMiddleware(mux)
}

// handleRoot provides API information
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		s.respondError(w, http.StatusNotFound, "not found")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"service": "Gmail Resume Scanner",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"POST /scan":       "Scan the mailbox: {\"criteria\": \"...\", \"mode\": \"keyword|rules\", \"dry_run\": false}",
			"GET /report":      "Get the last scan report",
			"GET /report/xlsx": "Download the last scan report as Excel",
			"GET /health":      "Health check",
		},
	})
}

// handleHealth provides a health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// handleScan runs a scan synchronously and returns its report
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req models.ScanRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("Failed to parse request: %v", err))
		return
	}

	req.Criteria = strings.TrimSpace(req.Criteria)
	if req.Criteria == "" {
		s.respondError(w, http.StatusBadRequest, "criteria is required")
		return
	}

	if req.Mode == "" {
		req.Mode = models.ModeKeyword
	}
	if req.Mode != models.ModeKeyword && req.Mode != models.ModeRules {
		s.respondError(w, http.StatusBadRequest, "mode must be 'keyword' or 'rules'")
		return
	}

	if !s.busy.TryLock() {
		s.respondError(w, http.StatusConflict, "a scan is already running")
		return
	}
	defer s.busy.Unlock()

	s.scanner.SetDryRun(req.DryRun)

	var (
		report *models.ScanReport
		err    error
	)
	switch req.Mode {
	case models.ModeRules:
		report, err = s.scanner.ScanRules(r.Context(), req.Criteria, nil)
	default:
		report, err = s.scanner.ScanKeywords(r.Context(), req.Criteria)
	}
	if err != nil {
		log.Error().Err(err).Str("mode", req.Mode).Msg("Scan failed")
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, report)
}

// handleReport returns the last scan report
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.scanner.LastReport()
	if err != nil {
		s.respondError(w, http.StatusNotFound, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, report)
}

// handleReportExcel streams the last report as an xlsx workbook
func (s *Server) handleReportExcel(w http.ResponseWriter, r *http.Request) {
	report, err := s.scanner.LastReport()
	if err != nil {
		s.respondError(w, http.StatusNotFound, err.Error())
		return
	}

	dir, err := os.MkdirTemp("", "resume-report-*")
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer os.RemoveAll(dir)

	path, err := export.ExportToExcel(report, filepath.Join(dir, "report.xlsx"))
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "scan-"+report.RunID+".xlsx"))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		log.Warn().Err(err).Msg("Failed to write report")
	}
}

// respondJSON sends a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// respondError sends an error response
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote", r.RemoteAddr).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// ListenAndServe serves the router on addr until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Starting server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
