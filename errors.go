package kmlsummary

import (
	"errors"
	"fmt"
)

// ErrMalformedDocument is matched by every error returned when a document
// cannot be parsed at all.
var ErrMalformedDocument = errors.New("malformed KML document")

// ErrNothingToExport is returned when a spreadsheet is requested for a
// summary without counts or line lengths.
var ErrNothingToExport = errors.New("nothing to export: no counts or line lengths")

// ErrDocumentTooLarge is returned when a KMZ entry inflates past the upload
// limit.
var ErrDocumentTooLarge = errors.New("document too large")

var (
	ErrReportNotFound  = errors.New("report not found")
	ErrHistoryDisabled = errors.New("report history is not configured")
)

// ParseStage names the parse attempt that produced a ParseError.
type ParseStage string

const (
	StageDirect   ParseStage = "direct"   // raw bytes as delivered
	StageStripped ParseStage = "stripped" // UTF-8 text without XML declaration
)

// ParseError reports why a document could not be parsed. Direct holds the
// failure of the first attempt when the second one failed too.
type ParseError struct {
	Stage  ParseStage
	Reason string
	Err    error
	Direct error
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("%s parse failed: %s", e.Stage, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error { return e.Err }

// Is makes every ParseError match ErrMalformedDocument.
func (e *ParseError) Is(target error) bool {
	return target == ErrMalformedDocument
}

// CoordinateError reports a coordinate token that is not a numeric
// lon,lat pair.
type CoordinateError struct {
	Token string
	Err   error
}

func (e *CoordinateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid coordinate %q: %v", e.Token, e.Err)
	}
	return fmt.Sprintf("invalid coordinate %q: expected lon,lat", e.Token)
}

func (e *CoordinateError) Unwrap() error { return e.Err }
