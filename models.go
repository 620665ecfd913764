package kmlsummary

import (
	"fmt"
	"strings"
	"time"
)

// ExportFormat is an output format for a processed document.
type ExportFormat string

const (
	FormatJSON ExportFormat = "json"
	FormatCSV  ExportFormat = "csv"
	FormatXLSX ExportFormat = "xlsx"
	FormatText ExportFormat = "txt"
)

// PublishedFormats are the formats uploaded for every published run.
var PublishedFormats = []ExportFormat{FormatCSV, FormatXLSX, FormatText}

// ParseExportFormat parses a format name, case-insensitively. An empty name
// selects JSON.
func ParseExportFormat(name string) (ExportFormat, error) {
	switch f := ExportFormat(strings.ToLower(strings.TrimSpace(name))); f {
	case "":
		return FormatJSON, nil
	case FormatJSON, FormatCSV, FormatXLSX, FormatText:
		return f, nil
	default:
		return "", fmt.Errorf("unknown export format %q", name)
	}
}

// ContentType returns the MIME type of the format.
func (f ExportFormat) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatText:
		return "text/plain; charset=utf-8"
	default:
		return "application/json"
	}
}

// ExportObject is an export uploaded to the bucket.
type ExportObject struct {
	Format ExportFormat `json:"format"`
	Key    string       `json:"key"`
	URL    string       `json:"url,omitempty"`
	Size   int64        `json:"size"`
}

// ReportRecord represents a processed document in the report history
type ReportRecord struct {
	ID           string         `json:"id"`
	Document     string         `json:"document"`
	Features     int            `json:"features"`
	LengthMeters float64        `json:"lengthMeters"`
	Warnings     int            `json:"warnings"`
	Summary      *Summary       `json:"summary,omitempty"`
	Exports      []ExportObject `json:"exports"`
	CreatedAt    time.Time      `json:"createdAt"`
}

// NewReportRecord builds the history record of a run.
func NewReportRecord(id string, summary *Summary, exports []ExportObject) *ReportRecord {
	totals := summary.Totals()
	if exports == nil {
		exports = []ExportObject{}
	}
	return &ReportRecord{
		ID:           id,
		Document:     summary.Document,
		Features:     totals.Features,
		LengthMeters: totals.LengthMeters,
		Warnings:     len(summary.Warnings),
		Summary:      summary,
		Exports:      exports,
		CreatedAt:    time.Now().UTC(),
	}
}

// RunOptions represents optional side effects of a report run
type RunOptions struct {
	Persist bool           // save the run to the report history
	Publish bool           // upload exports to the bucket
	Formats []ExportFormat // formats to publish, PublishedFormats when empty
	// Output is rendered into RunResult.Output before any side effect runs,
	// so a summary that cannot be rendered leaves no trace.
	Output ExportFormat
}

func (o RunOptions) formats() []ExportFormat {
	if len(o.Formats) == 0 {
		return PublishedFormats
	}
	return o.Formats
}

// RunResult represents the outcome of a report run
type RunResult struct {
	ID      string         `json:"id"`
	Summary *Summary       `json:"summary"`
	Totals  Totals         `json:"totals"`
	Exports []ExportObject `json:"exports"`
	Stored  bool           `json:"stored"`
	Output  []byte         `json:"-"`
}
