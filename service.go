package kmlsummary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// ReportStore keeps the history of processed documents.
type ReportStore interface {
	SaveReport(ctx context.Context, rec *ReportRecord) error
	GetReport(ctx context.Context, id string) (*ReportRecord, error)
	ListReports(ctx context.Context, limit int) ([]*ReportRecord, error)
}

// ReportPublisher uploads rendered exports.
type ReportPublisher interface {
	ReportKey(runID, stem string, format ExportFormat) string
	UploadReport(ctx context.Context, key string, data []byte, contentType string) error
	HeadObject(ctx context.Context, key string) (int64, bool, error)
	GetPublicURL(key string) string
}

// ReportService orchestrates processing, history and publishing. The store
// and publisher may be nil.
type ReportService struct {
	processor *Processor
	store     ReportStore
	publisher ReportPublisher
	logger    *slog.Logger
}

// NewReportService creates a new report service
func NewReportService(store ReportStore, publisher ReportPublisher, logger *slog.Logger) *ReportService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReportService{
		processor: NewProcessorWithLogger(logger),
		store:     store,
		publisher: publisher,
		logger:    logger,
	}
}

// HasHistory reports whether a store is configured.
func (s *ReportService) HasHistory() bool {
	return s.store != nil
}

// Run processes a document and applies the requested side effects. Only a
// malformed document fails the run: store and upload errors are logged and
// reflected in the result.
func (s *ReportService) Run(ctx context.Context, name string, content []byte, opts RunOptions) (*RunResult, error) {
	summary, err := s.processor.Process(name, content)
	if err != nil {
		return nil, err
	}

	result := &RunResult{
		ID:      uuid.New().String(),
		Summary: summary,
		Totals:  summary.Totals(),
		Exports: []ExportObject{},
	}
	logger := s.logger.With("run_id", result.ID, "document", name)

	if opts.Output != "" {
		if result.Output, err = RenderExportBytes(summary, opts.Output); err != nil {
			return nil, err
		}
	}

	if opts.Publish && s.publisher != nil {
		for _, format := range opts.formats() {
			obj, err := s.publish(ctx, result.ID, summary, format)
			if errors.Is(err, ErrNothingToExport) {
				logger.Debug("skipping empty export", "format", format)
				continue
			}
			if err != nil {
				logger.Warn("failed to publish export", "format", format, "error", err)
				continue
			}
			result.Exports = append(result.Exports, *obj)
		}
		logger.Info("exports published", "count", len(result.Exports))
	}

	if opts.Persist && s.store != nil {
		rec := NewReportRecord(result.ID, summary, result.Exports)
		if err := s.store.SaveReport(ctx, rec); err != nil {
			logger.Warn("failed to save report", "error", err)
		} else {
			result.Stored = true
			logger.Info("report saved")
		}
	}

	return result, nil
}

func (s *ReportService) publish(ctx context.Context, runID string, summary *Summary, format ExportFormat) (*ExportObject, error) {
	data, err := RenderExportBytes(summary, format)
	if err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", format, err)
	}

	key := s.publisher.ReportKey(runID, ExportStem(summary.Document), format)
	if err := s.publisher.UploadReport(ctx, key, data, format.ContentType()); err != nil {
		return nil, err
	}

	return &ExportObject{
		Format: format,
		Key:    key,
		URL:    s.publisher.GetPublicURL(key),
		Size:   int64(len(data)),
	}, nil
}

// Report returns a stored report.
func (s *ReportService) Report(ctx context.Context, id string) (*ReportRecord, error) {
	if s.store == nil {
		return nil, ErrHistoryDisabled
	}
	return s.store.GetReport(ctx, id)
}

// History returns the most recent stored reports.
func (s *ReportService) History(ctx context.Context, limit int) ([]*ReportRecord, error) {
	if s.store == nil {
		return nil, ErrHistoryDisabled
	}
	return s.store.ListReports(ctx, limit)
}

// MissingExports returns the exports of a record that are no longer in the
// bucket. Without a publisher nothing can be checked and nil is returned.
func (s *ReportService) MissingExports(ctx context.Context, rec *ReportRecord) ([]ExportObject, error) {
	if s.publisher == nil {
		return nil, nil
	}

	var missing []ExportObject
	for _, obj := range rec.Exports {
		_, exists, err := s.publisher.HeadObject(ctx, obj.Key)
		if err != nil {
			return nil, err
		}
		if !exists {
			missing = append(missing, obj)
		}
	}
	return missing, nil
}
