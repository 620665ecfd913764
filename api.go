package kmlsummary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
	defaultUploadName   = "upload.kml"
)

// APIServer handles HTTP requests for document summaries
type APIServer struct {
	service        *ReportService
	maxUploadBytes int64
	logger         *slog.Logger
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// NewAPIServer creates a new API server
func NewAPIServer(service *ReportService, cfg ServerConfig, logger *slog.Logger) *APIServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIServer{
		service:        service,
		maxUploadBytes: cfg.MaxUploadBytes,
		logger:         logger,
	}
}

// Handler returns the API routes.
func (s *APIServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/process", s.handleProcess)
	mux.HandleFunc("GET /api/reports", s.handleListReports)
	mux.HandleFunc("GET /api/reports/{id}", s.handleGetReport)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

// Start serves the API until ctx is cancelled, then shuts down gracefully.
func (s *APIServer) Start(ctx context.Context, port int) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting API server", "port", port, "history", s.service.HasHistory())
		errChan <- server.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		s.logger.Info("stopping API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleProcess handles POST /api/process
func (s *APIServer) handleProcess(w http.ResponseWriter, r *http.Request) {
	format, err := ParseExportFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid format", err.Error())
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	name, content, err := readUpload(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "document too large",
				fmt.Sprintf("limit is %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, "invalid upload", err.Error())
		return
	}
	if override := r.URL.Query().Get("name"); override != "" {
		name = override
	}

	if IsKMZ(content) {
		if content, err = ExtractKML(content, s.maxUploadBytes); err != nil {
			if errors.Is(err, ErrDocumentTooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, "document too large",
					fmt.Sprintf("KML entry exceeds %d bytes", s.maxUploadBytes))
				return
			}
			writeError(w, http.StatusBadRequest, "invalid KMZ archive", err.Error())
			return
		}
	}

	opts := RunOptions{Persist: true, Publish: true}
	if format != FormatJSON {
		opts.Output = format
	}

	result, err := s.service.Run(r.Context(), name, content, opts)
	if err != nil {
		var parseErr *ParseError
		switch {
		case errors.As(err, &parseErr):
			writeError(w, http.StatusBadRequest, ErrMalformedDocument.Error(), parseErr.Reason)
		case errors.Is(err, ErrNothingToExport):
			writeError(w, http.StatusUnprocessableEntity, "nothing to export", "document has no counted features or LineStrings")
		default:
			s.logger.Error("failed to process upload", "document", name, "error", err)
			writeError(w, http.StatusInternalServerError, "processing failed", "")
		}
		return
	}

	w.Header().Set("X-Report-Id", result.ID)
	if format == FormatJSON {
		writeJSON(w, http.StatusOK, result)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": ExportStem(name) + "." + string(format),
	}))
	w.WriteHeader(http.StatusOK)
	w.Write(result.Output)
}

// readUpload returns the document of a raw or multipart request body.
func readUpload(r *http.Request) (string, []byte, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		content, err := io.ReadAll(r.Body)
		if err != nil {
			return "", nil, err
		}
		return defaultUploadName, content, nil
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", nil, err
		}
		return "", nil, fmt.Errorf("multipart field \"file\": %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return "", nil, err
	}
	name := header.Filename
	if name == "" {
		name = defaultUploadName
	}
	return name, content, nil
}

// handleListReports handles GET /api/reports
func (s *APIServer) handleListReports(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit", "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	records, err := s.service.History(r.Context(), limit)
	if err != nil {
		s.writeHistoryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// handleGetReport handles GET /api/reports/{id}
func (s *APIServer) handleGetReport(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))

	rec, err := s.service.Report(r.Context(), id)
	if err != nil {
		s.writeHistoryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *APIServer) writeHistoryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrHistoryDisabled):
		writeError(w, http.StatusServiceUnavailable, err.Error(), "")
	case errors.Is(err, ErrReportNotFound):
		writeError(w, http.StatusNotFound, err.Error(), "")
	default:
		s.logger.Error("failed to read report history", "error", err)
		writeError(w, http.StatusInternalServerError, "history unavailable", "")
	}
}

// handleHealth handles GET /health
func (s *APIServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"history": s.service.HasHistory(),
		"time":    time.Now().Format(time.RFC3339),
	})
}

// writeJSON marshals v before writing the status. Encoding failures are
// answered with a 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to encode response", "error", err)
		status = http.StatusInternalServerError
		data, _ = json.Marshal(ErrorResponse{Error: "failed to encode response", Reason: err.Error()})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(data, '\n'))
}

func writeError(w http.ResponseWriter, status int, message, reason string) {
	writeJSON(w, status, ErrorResponse{Error: message, Reason: reason})
}
