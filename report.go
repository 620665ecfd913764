package kmlsummary

import (
	"cmp"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Number of top count entries and descriptions per label shown as samples.
const (
	sampleEntries      = 3
	sampleDescriptions = 3
)

// CountRow is one row of the feature count table.
type CountRow struct {
	Feature string
	Count   int
}

// LengthRow is one row of the LineString length table.
type LengthRow struct {
	Feature string
	Meters  float64
}

// Kilometers returns the length rounded to whole kilometers.
func (r LengthRow) Kilometers() float64 {
	return math.Round(r.Meters / 1000)
}

// CountRows returns the counts sorted by count descending, then feature key.
func CountRows(s *Summary) []CountRow {
	rows := make([]CountRow, 0, len(s.Counts))
	for feature, count := range s.Counts {
		rows = append(rows, CountRow{Feature: feature, Count: count})
	}
	slices.SortFunc(rows, func(a, b CountRow) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return strings.Compare(a.Feature, b.Feature)
	})
	return rows
}

// LengthRows returns the line lengths sorted by length descending, then
// feature key.
func LengthRows(s *Summary) []LengthRow {
	rows := make([]LengthRow, 0, len(s.LineLengths))
	for feature, meters := range s.LineLengths {
		rows = append(rows, LengthRow{Feature: feature, Meters: meters})
	}
	slices.SortFunc(rows, func(a, b LengthRow) int {
		if c := cmp.Compare(b.Meters, a.Meters); c != 0 {
			return c
		}
		return strings.Compare(a.Feature, b.Feature)
	})
	return rows
}

// WriteCSV writes counts and lengths as one table with a shared feature
// column. Count rows come first; the other column is left empty.
func WriteCSV(w io.Writer, s *Summary) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{"Feature", "Count", "Length (m)"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, row := range CountRows(s) {
		if err := cw.Write([]string{row.Feature, strconv.Itoa(row.Count), ""}); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	for _, row := range LengthRows(s) {
		if err := cw.Write([]string{row.Feature, "", strconv.FormatFloat(row.Meters, 'f', -1, 64)}); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// SampleDescriptions returns up to three descriptions for the labels of the
// three largest count entries, each label once, in count order.
func SampleDescriptions(s *Summary) []LabelDescriptions {
	var samples []LabelDescriptions
	seen := make(map[string]bool)

	for i, row := range CountRows(s) {
		if i >= sampleEntries {
			break
		}
		label := BareLabel(row.Feature)
		if seen[label] {
			continue
		}
		seen[label] = true

		descriptions := s.Descriptions[label]
		if len(descriptions) == 0 {
			descriptions = []string{DefaultDescription}
		}
		if len(descriptions) > sampleDescriptions {
			descriptions = descriptions[:sampleDescriptions]
		}
		samples = append(samples, LabelDescriptions{Label: label, Descriptions: descriptions})
	}
	return samples
}

// LabelDescriptions pairs a bare label with some of its descriptions.
type LabelDescriptions struct {
	Label        string
	Descriptions []string
}

// WriteTextReport writes a plain text report of the summary. The output only
// depends on the summary contents.
func WriteTextReport(w io.Writer, s *Summary) error {
	p := message.NewPrinter(language.English)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	title := "KML Summary"
	if s.Document != "" {
		title += ": " + s.Document
	}
	fmt.Fprintf(tw, "%s\n%s\n\n", title, strings.Repeat("=", len(title)))

	fmt.Fprintln(tw, "Feature Counts")
	counts := CountRows(s)
	if len(counts) == 0 {
		fmt.Fprintln(tw, "  No features found")
	}
	for _, row := range counts {
		p.Fprintf(tw, "  %s\t%d\n", row.Feature, row.Count)
	}
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "LineString Lengths")
	lengths := LengthRows(s)
	if len(lengths) == 0 {
		fmt.Fprintln(tw, "  No LineStrings found")
	}
	for _, row := range lengths {
		p.Fprintf(tw, "  %s\t%.0f m\t%.0f km\n", row.Feature, row.Meters, row.Kilometers())
	}
	fmt.Fprintln(tw)

	totals := s.Totals()
	fmt.Fprintln(tw, "Totals")
	p.Fprintf(tw, "  Features\t%d\n", totals.Features)
	p.Fprintf(tw, "  Total length\t%.0f m\t%.0f km\n", totals.LengthMeters, math.Round(totals.LengthMeters/1000))
	p.Fprintf(tw, "  Distinct labels\t%d\n", totals.Labels)

	if samples := SampleDescriptions(s); len(samples) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "Sample Descriptions")
		for _, sample := range samples {
			fmt.Fprintf(tw, "  - %s: %s\n", sample.Label, strings.Join(sample.Descriptions, ", "))
		}
	}

	if len(s.Warnings) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "Warnings")
		for _, warning := range s.Warnings {
			fmt.Fprintf(tw, "  - %s\n", warning)
		}
	}

	if s.Extent != nil {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "Extent")
		fmt.Fprintf(tw, "  Longitude\t%.6f\t%.6f\n", s.Extent.Min.Lon(), s.Extent.Max.Lon())
		fmt.Fprintf(tw, "  Latitude\t%.6f\t%.6f\n", s.Extent.Min.Lat(), s.Extent.Max.Lat())
	}

	return tw.Flush()
}
