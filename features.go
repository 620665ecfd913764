package kmlsummary

import (
	"log/slog"
	"strings"
)

// FeatureExtractor walks a parsed document and aggregates its Placemarks.
type FeatureExtractor struct {
	logger *slog.Logger
}

// NewFeatureExtractor creates a new feature extractor
func NewFeatureExtractor() *FeatureExtractor {
	return &FeatureExtractor{
		logger: slog.Default(),
	}
}

// WithLogger returns a copy of the extractor logging to logger.
func (e *FeatureExtractor) WithLogger(logger *slog.Logger) *FeatureExtractor {
	return &FeatureExtractor{logger: logger}
}

// Extract aggregates every Placemark below root, at any depth, in document
// order.
func (e *FeatureExtractor) Extract(root Element, document string) *Summary {
	logger := e.logger.With("document", document)
	agg := newAggregator()

	placemarks := root.Descendants("Placemark")
	logger.Debug("placemarks found", "count", len(placemarks))

	for i, pm := range placemarks {
		e.extractPlacemark(logger, agg, i, pm)
	}

	summary := agg.summary(document)
	logger.Debug("placemarks aggregated",
		"counts", len(summary.Counts),
		"line_lengths", len(summary.LineLengths),
		"labels", len(summary.Descriptions),
		"warnings", len(summary.Warnings))
	return summary
}

func (e *FeatureExtractor) extractPlacemark(logger *slog.Logger, agg *aggregator, index int, pm Element) {
	label := childText(pm, "name", DefaultLabel)
	agg.addDescription(label, childText(pm, "description", DefaultDescription))

	// Polygon wins over Point regardless of document order.
	if kind := classify(pm); kind != KindNone {
		agg.countGeometry(label, kind)
	}

	// Only the first LineString of a Placemark is measured.
	ls, ok := pm.FirstDescendant("LineString")
	if !ok {
		return
	}
	coords, ok := ls.Child("coordinates")
	if !ok || coords.Text() == "" {
		return
	}

	line, err := ParseCoordinates(coords.Text())
	if err != nil {
		logger.Warn("couldn't parse coordinates", "label", label, "index", index, "error", err)
		agg.warn(Warning{Index: index, Label: label, Message: err.Error()})
		return
	}
	if len(line) == 0 {
		return
	}

	length := agg.addLine(label, line)
	logger.Debug("linestring measured", "label", label, "points", len(line), "length_m", length)
}

// classify returns the counted geometry kind of a Placemark.
func classify(pm Element) GeometryKind {
	if _, ok := pm.FirstDescendant("Polygon"); ok {
		return KindPolygon
	}
	if _, ok := pm.FirstDescendant("Point"); ok {
		return KindPoint
	}
	return KindNone
}

// childText returns the trimmed text of the first child named tag, or def
// when the child is missing or blank.
func childText(e Element, tag, def string) string {
	child, ok := e.Child(tag)
	if !ok {
		return def
	}
	if text := strings.TrimSpace(child.Text()); text != "" {
		return text
	}
	return def
}
