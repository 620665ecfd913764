package kmlsummary

import (
	"bytes"
	"encoding/json"
	"io"
	"path"
	"strings"
)

// RenderExport writes the summary in the given format.
func RenderExport(w io.Writer, s *Summary, format ExportFormat) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, s)
	case FormatXLSX:
		return WriteExcel(w, s)
	case FormatText:
		return WriteTextReport(w, s)
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}
}

// RenderExportBytes renders the summary into memory.
func RenderExportBytes(s *Summary, format ExportFormat) ([]byte, error) {
	var buf bytes.Buffer
	if err := RenderExport(&buf, s, format); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ExportStem derives an output file stem from a document name:
// "uploads/Trails.kmz" becomes "Trails".
func ExportStem(document string) string {
	base := path.Base(strings.ReplaceAll(document, `\`, "/"))
	stem := strings.TrimSuffix(base, path.Ext(base))
	stem = strings.Map(func(r rune) rune {
		switch {
		case r == ' ':
			return '_'
		case r < 0x20, r == '/', r == '?', r == '#', r == '%':
			return -1
		}
		return r
	}, stem)
	if stem == "" || stem == "." {
		return "report"
	}
	return stem
}
