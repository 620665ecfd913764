package kmlsummary

import (
	"bytes"
	"encoding/csv"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/xuri/excelize/v2"
)

func sampleSummary() *Summary {
	return &Summary{
		Document: "parks.kml",
		Counts: map[string]int{
			"Lake (Point)":   2,
			"Park (Polygon)": 5,
			"Bench (Point)":  2,
			"Meadow (Point)": 1,
			"Park (Point)":   1,
			"Statue (Point)": 1,
		},
		LineLengths: map[string]float64{
			"Trail (LineString)": 111194.9,
			"Path (LineString)":  2500.4,
			"Lake (LineString)":  2500.4,
		},
		Descriptions: map[string][]string{
			"Park":  {"North", "South", "East", "West"},
			"Lake":  {"Blue"},
			"Bench": {"Wooden", "Wooden"},
		},
		Warnings: []Warning{{Index: 7, Label: "Broken", Message: `invalid coordinate "abc,def"`}},
		Extent:   &orb.Bound{Min: orb.Point{-1.5, 50}, Max: orb.Point{2.25, 51}},
	}
}

func TestCountRowsSorted(t *testing.T) {
	rows := CountRows(sampleSummary())

	expected := []CountRow{
		{"Park (Polygon)", 5},
		{"Bench (Point)", 2},
		{"Lake (Point)", 2},
		{"Meadow (Point)", 1},
		{"Park (Point)", 1},
		{"Statue (Point)", 1},
	}
	if !reflect.DeepEqual(rows, expected) {
		t.Errorf("rows = %v, expected %v", rows, expected)
	}
}

func TestLengthRowsSorted(t *testing.T) {
	rows := LengthRows(sampleSummary())

	expected := []string{"Trail (LineString)", "Lake (LineString)", "Path (LineString)"}
	for i, row := range rows {
		if row.Feature != expected[i] {
			t.Errorf("rows[%d] = %q, expected %q", i, row.Feature, expected[i])
		}
	}
	if km := rows[0].Kilometers(); km != 111 {
		t.Errorf("Kilometers() = %v, expected 111", km)
	}
}

func TestSampleDescriptions(t *testing.T) {
	samples := SampleDescriptions(sampleSummary())

	// Top three count entries: Park (Polygon), Bench (Point), Lake (Point).
	expected := []LabelDescriptions{
		{Label: "Park", Descriptions: []string{"North", "South", "East"}},
		{Label: "Bench", Descriptions: []string{"Wooden", "Wooden"}},
		{Label: "Lake", Descriptions: []string{"Blue"}},
	}
	if !reflect.DeepEqual(samples, expected) {
		t.Errorf("samples = %v, expected %v", samples, expected)
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sampleSummary()); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("failed to read CSV back: %v", err)
	}

	if len(records) != 1+6+3 {
		t.Fatalf("got %d records, expected 10", len(records))
	}
	if !reflect.DeepEqual(records[0], []string{"Feature", "Count", "Length (m)"}) {
		t.Errorf("header = %v", records[0])
	}
	if !reflect.DeepEqual(records[1], []string{"Park (Polygon)", "5", ""}) {
		t.Errorf("first count row = %v", records[1])
	}
	if !reflect.DeepEqual(records[7], []string{"Trail (LineString)", "", "111194.9"}) {
		t.Errorf("first length row = %v", records[7])
	}
}

func TestWriteTextReport(t *testing.T) {
	var first, second bytes.Buffer
	if err := WriteTextReport(&first, sampleSummary()); err != nil {
		t.Fatalf("WriteTextReport failed: %v", err)
	}
	if err := WriteTextReport(&second, sampleSummary()); err != nil {
		t.Fatalf("WriteTextReport failed: %v", err)
	}
	if first.String() != second.String() {
		t.Error("text report is not deterministic")
	}

	report := first.String()
	for _, want := range []string{
		"KML Summary: parks.kml",
		"Feature Counts",
		"LineString Lengths",
		"111,195 m",
		"Distinct labels",
		"- Park: North, South, East",
		"Couldn't parse coordinates for Broken",
		"Extent",
	} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q:\n%s", want, report)
		}
	}

	if strings.Index(report, "Park (Polygon)") > strings.Index(report, "Bench (Point)") {
		t.Error("counts should be listed by value descending")
	}

	lines := strings.Split(report, "\n")
	for _, line := range lines {
		if strings.Contains(line, "Distinct labels") && !strings.HasSuffix(strings.TrimSpace(line), "7") {
			// Park, Lake, Bench, Meadow, Statue, Trail, Path
			t.Errorf("distinct labels line = %q, expected 7", line)
		}
	}
}

func TestWriteTextReportEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteTextReport(&buf, &Summary{Document: "empty.kml"}); err != nil {
		t.Fatalf("WriteTextReport failed: %v", err)
	}
	report := buf.String()
	if !strings.Contains(report, "No features found") || !strings.Contains(report, "No LineStrings found") {
		t.Errorf("unexpected empty report:\n%s", report)
	}
	if strings.Contains(report, "Sample Descriptions") || strings.Contains(report, "Warnings") {
		t.Errorf("empty report should omit optional sections:\n%s", report)
	}
}

func TestWriteExcel(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteExcel(&buf, sampleSummary()); err != nil {
		t.Fatalf("WriteExcel failed: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("failed to open workbook: %v", err)
	}
	defer f.Close()

	if sheets := f.GetSheetList(); !reflect.DeepEqual(sheets, []string{CountsSheet, LengthsSheet}) {
		t.Errorf("sheets = %v", sheets)
	}

	rows, err := f.GetRows(CountsSheet)
	if err != nil {
		t.Fatalf("GetRows failed: %v", err)
	}
	if len(rows) != 7 || rows[0][0] != "Feature" || rows[1][0] != "Park (Polygon)" || rows[1][1] != "5" {
		t.Errorf("counts sheet = %v", rows)
	}

	rows, err = f.GetRows(LengthsSheet)
	if err != nil {
		t.Fatalf("GetRows failed: %v", err)
	}
	if len(rows) != 4 || rows[0][2] != "Length (km)" || rows[1][0] != "Trail (LineString)" {
		t.Errorf("lengths sheet = %v", rows)
	}
}

func TestWriteExcelOnlyLengths(t *testing.T) {
	s := &Summary{LineLengths: map[string]float64{"Trail (LineString)": 10}}

	var buf bytes.Buffer
	if err := WriteExcel(&buf, s); err != nil {
		t.Fatalf("WriteExcel failed: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("failed to open workbook: %v", err)
	}
	defer f.Close()

	if sheets := f.GetSheetList(); !reflect.DeepEqual(sheets, []string{LengthsSheet}) {
		t.Errorf("sheets = %v", sheets)
	}
}

func TestWriteExcelEmpty(t *testing.T) {
	var buf bytes.Buffer
	err := WriteExcel(&buf, &Summary{})
	if !errors.Is(err, ErrNothingToExport) {
		t.Errorf("expected ErrNothingToExport, got %v", err)
	}
	if buf.Len() != 0 {
		t.Error("nothing should be written for an empty summary")
	}
}
