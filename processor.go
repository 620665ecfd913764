package kmlsummary

import (
	"fmt"
	"log/slog"
)

// Processor turns raw KML bytes into a Summary.
type Processor struct {
	logger    *slog.Logger
	extractor *FeatureExtractor
}

// NewProcessor creates a processor using the default logger.
func NewProcessor() *Processor {
	return NewProcessorWithLogger(slog.Default())
}

// NewProcessorWithLogger creates a processor logging to logger.
func NewProcessorWithLogger(logger *slog.Logger) *Processor {
	return &Processor{
		logger:    logger,
		extractor: NewFeatureExtractor().WithLogger(logger),
	}
}

// Process parses content and aggregates its Placemarks. The name is only
// used for diagnostics. Either a complete summary or an error matching
// ErrMalformedDocument is returned, never both.
func (p *Processor) Process(name string, content []byte) (*Summary, error) {
	logger := p.logger.With("document", name, "size_bytes", len(content))
	logger.Debug("processing KML document")

	doc, err := ParseDocument(content)
	if err != nil {
		logger.Error("failed to parse KML document", "error", err)
		return nil, fmt.Errorf("failed to parse %s: %w", name, err)
	}
	if doc.Stripped {
		logger.Info("document parsed after removing XML declaration")
	}

	summary := p.extractor.Extract(doc.Root, name)

	totals := summary.Totals()
	logger.Info("KML document processed",
		"features", totals.Features,
		"length_m", totals.LengthMeters,
		"labels", totals.Labels,
		"warnings", len(summary.Warnings))

	return summary, nil
}

// Process runs a default Processor.
func Process(name string, content []byte) (*Summary, error) {
	return NewProcessor().Process(name, content)
}
