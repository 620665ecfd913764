package kmlsummary

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ReadDocumentFile reads a KML document from disk. KMZ archives are opened and
// their doc.kml entry returned, falling back to the first .kml entry.
func ReadDocumentFile(filePath string) ([]byte, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filePath, err)
	}

	if !strings.EqualFold(filepath.Ext(filePath), ".kmz") {
		return data, nil
	}

	kml, err := ExtractKML(data, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to extract KML from %s: %w", filePath, err)
	}
	return kml, nil
}

// ExtractKML returns the KML document stored in KMZ archive bytes. A positive
// maxBytes bounds the inflated size of the entry; larger entries fail with
// ErrDocumentTooLarge.
func ExtractKML(kmz []byte, maxBytes int64) ([]byte, error) {
	reader, err := zip.NewReader(bytes.NewReader(kmz), int64(len(kmz)))
	if err != nil {
		return nil, fmt.Errorf("failed to open KMZ archive: %w", err)
	}

	entry := findKMLEntry(reader.File)
	if entry == nil {
		return nil, fmt.Errorf("no .kml file found in KMZ archive")
	}
	slog.Debug("KML entry found in KMZ", "entry", entry.Name, "size", entry.UncompressedSize64)

	if maxBytes > 0 && entry.UncompressedSize64 > uint64(maxBytes) {
		return nil, fmt.Errorf("%s inflates to %d bytes: %w", entry.Name, entry.UncompressedSize64, ErrDocumentTooLarge)
	}

	rc, err := entry.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", entry.Name, err)
	}
	defer rc.Close()

	if maxBytes <= 0 {
		return io.ReadAll(rc)
	}

	// the header size is not trusted
	data, err := io.ReadAll(io.LimitReader(rc, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", entry.Name, err)
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%s inflates past %d bytes: %w", entry.Name, maxBytes, ErrDocumentTooLarge)
	}
	return data, nil
}

// IsKMZ reports whether content starts like a zip archive.
func IsKMZ(content []byte) bool {
	return bytes.HasPrefix(content, []byte("PK\x03\x04"))
}

// findKMLEntry prefers doc.kml at any depth (handles both "doc.kml" and
// "folder/doc.kml"), then any other .kml entry.
func findKMLEntry(files []*zip.File) *zip.File {
	var fallback *zip.File
	for _, file := range files {
		if file.FileInfo().IsDir() {
			continue
		}
		name := strings.ToLower(file.Name)
		if path.Base(name) == "doc.kml" {
			return file
		}
		if fallback == nil && strings.HasSuffix(name, ".kml") {
			fallback = file
		}
	}
	return fallback
}
