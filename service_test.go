package kmlsummary

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/twpayne/go-kml"
)

type memoryStore struct {
	mu      sync.Mutex
	records []*ReportRecord
	saveErr error
}

func (m *memoryStore) SaveReport(ctx context.Context, rec *ReportRecord) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *memoryStore) GetReport(ctx context.Context, id string) (*ReportRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.records {
		if rec.ID == id {
			return rec, nil
		}
	}
	return nil, ErrReportNotFound
}

func (m *memoryStore) ListReports(ctx context.Context, limit int) ([]*ReportRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	records := []*ReportRecord{}
	for i := len(m.records) - 1; i >= 0 && len(records) < limit; i-- {
		records = append(records, m.records[i])
	}
	return records, nil
}

type memoryPublisher struct {
	mu        sync.Mutex
	objects   map[string][]byte
	failExt   string
	uploadErr error
}

func newMemoryPublisher() *memoryPublisher {
	return &memoryPublisher{objects: make(map[string][]byte)}
}

func (m *memoryPublisher) ReportKey(runID, stem string, format ExportFormat) string {
	return ReportObjectKey("reports", runID, stem, format)
}

func (m *memoryPublisher) UploadReport(ctx context.Context, key string, data []byte, contentType string) error {
	if m.failExt != "" && strings.HasSuffix(key, m.failExt) {
		return m.uploadErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *memoryPublisher) HeadObject(ctx context.Context, key string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	return int64(len(data)), ok, nil
}

func (m *memoryPublisher) GetPublicURL(key string) string {
	return "https://files.example.com/" + key
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func trailDocument(t *testing.T) []byte {
	t.Helper()
	return buildKML(t,
		kml.Placemark(kml.Name("Trail"), kml.Description("Loop"), kml.LineString(coords([2]float64{0, 0}, [2]float64{1, 0}))),
		kml.Placemark(kml.Name("Lake"), kml.Point(coords([2]float64{2, 2}))),
	)
}

func TestReportServiceRunPublishesAndStores(t *testing.T) {
	store := &memoryStore{}
	publisher := newMemoryPublisher()
	service := NewReportService(store, publisher, quietLogger())

	result, err := service.Run(context.Background(), "uploads/Mountain Trails.kml", trailDocument(t), RunOptions{Persist: true, Publish: true})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !result.Stored {
		t.Error("expected result to be stored")
	}
	if len(result.Exports) != len(PublishedFormats) {
		t.Fatalf("got %d exports, expected %d", len(result.Exports), len(PublishedFormats))
	}
	for i, obj := range result.Exports {
		expectedKey := "reports/" + result.ID + "/Mountain_Trails." + string(PublishedFormats[i])
		if obj.Key != expectedKey {
			t.Errorf("export %d key = %q, expected %q", i, obj.Key, expectedKey)
		}
		if int64(len(publisher.objects[obj.Key])) != obj.Size || obj.Size == 0 {
			t.Errorf("export %s size = %d, uploaded %d bytes", obj.Key, obj.Size, len(publisher.objects[obj.Key]))
		}
		if obj.URL != "https://files.example.com/"+obj.Key {
			t.Errorf("export URL = %q", obj.URL)
		}
	}

	rec, err := service.Report(context.Background(), result.ID)
	if err != nil {
		t.Fatalf("Report failed: %v", err)
	}
	if rec.Features != 1 || rec.Document != "uploads/Mountain Trails.kml" || len(rec.Exports) != 3 {
		t.Errorf("unexpected record: %+v", rec)
	}

	missing, err := service.MissingExports(context.Background(), rec)
	if err != nil {
		t.Fatalf("MissingExports failed: %v", err)
	}
	if len(missing) != 0 {
		t.Errorf("expected no missing exports, got %v", missing)
	}

	delete(publisher.objects, rec.Exports[0].Key)
	missing, _ = service.MissingExports(context.Background(), rec)
	if len(missing) != 1 || missing[0].Format != FormatCSV {
		t.Errorf("expected missing csv export, got %v", missing)
	}
}

func TestReportServiceSideEffectFailuresKeepSummary(t *testing.T) {
	store := &memoryStore{saveErr: errors.New("connection refused")}
	publisher := newMemoryPublisher()
	publisher.failExt = ".xlsx"
	publisher.uploadErr = errors.New("access denied")
	service := NewReportService(store, publisher, quietLogger())

	result, err := service.Run(context.Background(), "trail.kml", trailDocument(t), RunOptions{Persist: true, Publish: true})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Stored {
		t.Error("result should not be marked stored")
	}
	if len(result.Exports) != 2 {
		t.Errorf("got %d exports, expected csv and txt", len(result.Exports))
	}
	if result.Summary.Counts["Lake (Point)"] != 1 {
		t.Errorf("summary lost: %+v", result.Summary)
	}
}

func TestReportServiceSkipsEmptySpreadsheet(t *testing.T) {
	publisher := newMemoryPublisher()
	service := NewReportService(nil, publisher, quietLogger())

	empty := buildKML(t, kml.Placemark(kml.Name("Nothing")))
	result, err := service.Run(context.Background(), "empty.kml", empty, RunOptions{Publish: true})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	for _, obj := range result.Exports {
		if obj.Format == FormatXLSX {
			t.Error("empty summary should not publish a workbook")
		}
	}
	if len(result.Exports) != 2 {
		t.Errorf("got %d exports, expected csv and txt", len(result.Exports))
	}
}

func TestReportServiceOutputRenderedBeforeSideEffects(t *testing.T) {
	testCases := []struct {
		name     string
		content  func(t *testing.T) []byte
		output   ExportFormat
		wantErr  error
		contains string
	}{
		{
			name:     "text report",
			content:  trailDocument,
			output:   FormatText,
			contains: "Trail (LineString)",
		},
		{
			name: "empty workbook",
			content: func(t *testing.T) []byte {
				return buildKML(t, kml.Placemark(kml.Name("Nothing")))
			},
			output:  FormatXLSX,
			wantErr: ErrNothingToExport,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			store := &memoryStore{}
			publisher := newMemoryPublisher()
			service := NewReportService(store, publisher, quietLogger())

			opts := RunOptions{Persist: true, Publish: true, Output: tc.output}
			result, err := service.Run(context.Background(), "doc.kml", tc.content(t), opts)

			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				if len(store.records) != 0 || len(publisher.objects) != 0 {
					t.Errorf("failed render left side effects: %d records, %d objects", len(store.records), len(publisher.objects))
				}
				return
			}
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}
			if !strings.Contains(string(result.Output), tc.contains) {
				t.Errorf("output = %q", result.Output)
			}
			if !result.Stored {
				t.Error("expected the run to be stored")
			}
		})
	}
}

func TestReportServiceWithoutBackends(t *testing.T) {
	service := NewReportService(nil, nil, quietLogger())

	result, err := service.Run(context.Background(), "trail.kml", trailDocument(t), RunOptions{Persist: true, Publish: true})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Stored || len(result.Exports) != 0 {
		t.Errorf("no side effects expected, got %+v", result)
	}
	if result.Totals.Features != 1 {
		t.Errorf("totals = %+v", result.Totals)
	}

	if _, err := service.History(context.Background(), 10); !errors.Is(err, ErrHistoryDisabled) {
		t.Errorf("History error = %v, expected ErrHistoryDisabled", err)
	}
	if _, err := service.Report(context.Background(), result.ID); !errors.Is(err, ErrHistoryDisabled) {
		t.Errorf("Report error = %v, expected ErrHistoryDisabled", err)
	}
	if missing, err := service.MissingExports(context.Background(), &ReportRecord{}); missing != nil || err != nil {
		t.Errorf("MissingExports = %v, %v", missing, err)
	}
}

func TestReportServiceMalformedDocument(t *testing.T) {
	store := &memoryStore{}
	service := NewReportService(store, newMemoryPublisher(), quietLogger())

	_, err := service.Run(context.Background(), "broken.kml", []byte("<kml><Placemark>"), RunOptions{Persist: true, Publish: true})
	if !errors.Is(err, ErrMalformedDocument) {
		t.Fatalf("expected ErrMalformedDocument, got %v", err)
	}
	if len(store.records) != 0 {
		t.Error("malformed document should not be stored")
	}
}

func TestExportStem(t *testing.T) {
	testCases := map[string]string{
		"Trails.kml":            "Trails",
		"uploads/Trails.kmz":    "Trails",
		`C:\maps\Lake Loop.kml`: "Lake_Loop",
		"":                      "report",
		"noext":                 "noext",
		"odd?name#1.kml":        "oddname1",
	}
	for input, expected := range testCases {
		if stem := ExportStem(input); stem != expected {
			t.Errorf("ExportStem(%q) = %q, expected %q", input, stem, expected)
		}
	}
}

func TestParseExportFormat(t *testing.T) {
	testCases := []struct {
		input    string
		expected ExportFormat
		wantErr  bool
	}{
		{"", FormatJSON, false},
		{"CSV", FormatCSV, false},
		{" xlsx ", FormatXLSX, false},
		{"txt", FormatText, false},
		{"pdf", "", true},
	}
	for _, tc := range testCases {
		format, err := ParseExportFormat(tc.input)
		if (err != nil) != tc.wantErr || format != tc.expected {
			t.Errorf("ParseExportFormat(%q) = %q, %v", tc.input, format, err)
		}
	}
}
