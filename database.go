package kmlsummary

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Database wraps report history operations
type Database struct {
	conn *sql.DB
}

// NewDatabase creates a new database connection
func NewDatabase(cfg DatabaseConfig) (*Database, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	slog.Info("database connected successfully", "host", cfg.Host, "database", cfg.DBName)

	return &Database{conn: db}, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.conn.Close()
}

// EnsureSchema creates the report table when it does not exist yet
func (d *Database) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS "KmlReport" (
			id UUID PRIMARY KEY,
			document TEXT NOT NULL,
			features INTEGER NOT NULL,
			"lengthMeters" DOUBLE PRECISION NOT NULL,
			warnings INTEGER NOT NULL,
			summary JSONB NOT NULL,
			exports JSONB NOT NULL DEFAULT '[]',
			"createdAt" TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`
	if _, err := d.conn.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create report table: %w", err)
	}

	index := `CREATE INDEX IF NOT EXISTS "KmlReport_createdAt_idx" ON "KmlReport" ("createdAt" DESC)`
	if _, err := d.conn.ExecContext(ctx, index); err != nil {
		return fmt.Errorf("failed to create report index: %w", err)
	}
	return nil
}

// SaveReport inserts a report record
func (d *Database) SaveReport(ctx context.Context, rec *ReportRecord) error {
	summary, err := json.Marshal(rec.Summary)
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	exports, err := json.Marshal(rec.Exports)
	if err != nil {
		return fmt.Errorf("failed to encode exports: %w", err)
	}

	query := `
		INSERT INTO "KmlReport" (id, document, features, "lengthMeters", warnings, summary, exports, "createdAt")
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = d.conn.ExecContext(ctx, query,
		rec.ID, rec.Document, rec.Features, rec.LengthMeters, rec.Warnings,
		summary, exports, rec.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return fmt.Errorf("report %s already exists: %w", rec.ID, err)
		}
		return fmt.Errorf("failed to insert report: %w", err)
	}

	return nil
}

// GetReport retrieves a report with its full summary
func (d *Database) GetReport(ctx context.Context, id string) (*ReportRecord, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrReportNotFound
	}

	query := `
		SELECT id, document, features, "lengthMeters", warnings, summary, exports, "createdAt"
		FROM "KmlReport"
		WHERE id = $1
	`

	rec := &ReportRecord{}
	var summary, exports []byte
	err := d.conn.QueryRowContext(ctx, query, id).Scan(
		&rec.ID, &rec.Document, &rec.Features, &rec.LengthMeters, &rec.Warnings,
		&summary, &exports, &rec.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query report: %w", err)
	}

	if err := decodeReportColumns(rec, summary, exports); err != nil {
		return nil, err
	}
	return rec, nil
}

// ListReports returns the most recent reports without their summaries
func (d *Database) ListReports(ctx context.Context, limit int) ([]*ReportRecord, error) {
	query := `
		SELECT id, document, features, "lengthMeters", warnings, exports, "createdAt"
		FROM "KmlReport"
		ORDER BY "createdAt" DESC
		LIMIT $1
	`

	rows, err := d.conn.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	records := []*ReportRecord{}
	for rows.Next() {
		rec := &ReportRecord{}
		var exports []byte
		err := rows.Scan(
			&rec.ID, &rec.Document, &rec.Features, &rec.LengthMeters, &rec.Warnings,
			&exports, &rec.CreatedAt,
		)
		if err != nil {
			slog.Error("failed to scan report row", "error", err)
			continue
		}
		if err := decodeReportColumns(rec, nil, exports); err != nil {
			slog.Error("failed to decode report row", "id", rec.ID, "error", err)
			continue
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reports: %w", err)
	}

	return records, nil
}

// decodeReportColumns fills the JSONB columns of a record. A nil summary
// column leaves the summary unset.
func decodeReportColumns(rec *ReportRecord, summary, exports []byte) error {
	if summary != nil {
		rec.Summary = &Summary{}
		if err := json.Unmarshal(summary, rec.Summary); err != nil {
			return fmt.Errorf("failed to decode summary of report %s: %w", rec.ID, err)
		}
	}
	rec.Exports = []ExportObject{}
	if len(exports) > 0 {
		if err := json.Unmarshal(exports, &rec.Exports); err != nil {
			return fmt.Errorf("failed to decode exports of report %s: %w", rec.ID, err)
		}
	}
	return nil
}
