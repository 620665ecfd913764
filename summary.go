package kmlsummary

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb"
)

// GeometryKind classifies the geometry found in a Placemark.
type GeometryKind string

const (
	KindNone       GeometryKind = ""
	KindPolygon    GeometryKind = "Polygon"
	KindPoint      GeometryKind = "Point"
	KindLineString GeometryKind = "LineString"
)

// Labels used when a Placemark has no usable name or description.
const (
	DefaultLabel       = "Unnamed"
	DefaultDescription = "No description"
)

// FeatureKey builds the aggregation key "{label} ({kind})".
func FeatureKey(label string, kind GeometryKind) string {
	return fmt.Sprintf("%s (%s)", label, kind)
}

// BareLabel returns the label part of a feature key.
func BareLabel(key string) string {
	for _, kind := range []GeometryKind{KindPolygon, KindPoint, KindLineString} {
		if label, ok := strings.CutSuffix(key, " ("+string(kind)+")"); ok {
			return label
		}
	}
	return key
}

// Warning is a non-fatal problem found while walking a document.
type Warning struct {
	Index   int    `json:"index"` // zero-based Placemark position
	Label   string `json:"label"`
	Message string `json:"message"`
}

func (w Warning) String() string {
	return fmt.Sprintf("Couldn't parse coordinates for %s: %s", w.Label, w.Message)
}

// Summary is the result of processing one document.
type Summary struct {
	Document     string              `json:"document"`
	Counts       map[string]int      `json:"counts"`
	LineLengths  map[string]float64  `json:"lineLengths"`
	Descriptions map[string][]string `json:"descriptions"`
	Warnings     []Warning           `json:"warnings"`
	// Extent bounds every measured LineString; nil when none was measured.
	Extent *orb.Bound `json:"extent,omitempty"`
}

// Totals are figures derived from a Summary.
type Totals struct {
	Features     int     `json:"features"`
	LengthMeters float64 `json:"lengthMeters"`
	Labels       int     `json:"labels"` // distinct bare labels in counts and line lengths
}

// Totals sums counts and lengths and counts distinct bare labels.
func (s *Summary) Totals() Totals {
	var t Totals
	labels := make(map[string]struct{})

	for key, count := range s.Counts {
		t.Features += count
		labels[BareLabel(key)] = struct{}{}
	}
	for key, length := range s.LineLengths {
		t.LengthMeters += length
		labels[BareLabel(key)] = struct{}{}
	}

	t.Labels = len(labels)
	return t
}

// Empty reports whether the summary has neither counts nor line lengths.
func (s *Summary) Empty() bool {
	return len(s.Counts) == 0 && len(s.LineLengths) == 0
}

// aggregator accumulates Placemark contributions during one pass.
type aggregator struct {
	counts       map[string]int
	lineLengths  map[string]float64
	descriptions map[string][]string
	warnings     []Warning
	extent       *orb.Bound
}

func newAggregator() *aggregator {
	return &aggregator{
		counts:       make(map[string]int),
		lineLengths:  make(map[string]float64),
		descriptions: make(map[string][]string),
		warnings:     []Warning{},
	}
}

func (a *aggregator) addDescription(label, description string) {
	a.descriptions[label] = append(getOrInsert(a.descriptions, label, []string{}), description)
}

func (a *aggregator) countGeometry(label string, kind GeometryKind) {
	key := FeatureKey(label, kind)
	a.counts[key] = getOrInsert(a.counts, key, 0) + 1
}

func (a *aggregator) addLine(label string, line orb.LineString) float64 {
	key := FeatureKey(label, KindLineString)
	total := getOrInsert(a.lineLengths, key, 0)
	length := PathLength(line)
	a.lineLengths[key] = total + length

	if len(line) > 0 {
		bound := line.Bound()
		if a.extent != nil {
			bound = a.extent.Union(bound)
		}
		a.extent = &bound
	}
	return length
}

func (a *aggregator) warn(w Warning) {
	a.warnings = append(a.warnings, w)
}

func (a *aggregator) summary(document string) *Summary {
	return &Summary{
		Document:     document,
		Counts:       a.counts,
		LineLengths:  a.lineLengths,
		Descriptions: a.descriptions,
		Warnings:     a.warnings,
		Extent:       a.extent,
	}
}

// getOrInsert returns m[key], storing def under key first when it is absent.
func getOrInsert[K comparable, V any](m map[K]V, key K, def V) V {
	if v, ok := m[key]; ok {
		return v
	}
	m[key] = def
	return def
}
