package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/MeKo-Tech/elscan/internal/classifier"
	"github.com/MeKo-Tech/elscan/internal/pipeline"
)

const schema = `
CREATE TABLE IF NOT EXISTS processing_results (
	id            TEXT PRIMARY KEY,
	pdf_name      VARCHAR(255) NOT NULL UNIQUE,
	status        VARCHAR(50) NOT NULL DEFAULT 'pending',
	result        JSONB,
	error_message TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS emergency_lighting (
	id           SERIAL PRIMARY KEY,
	pdf_name     VARCHAR(255) NOT NULL,
	symbol       VARCHAR(50),
	fixture_type VARCHAR(50),
	bounding_box INTEGER[],
	text_nearby  TEXT[],
	source_sheet VARCHAR(50),
	confidence   DOUBLE PRECISION,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_emergency_lighting_pdf_name ON emergency_lighting (pdf_name);

CREATE TABLE IF NOT EXISTS static_content (
	id           SERIAL PRIMARY KEY,
	pdf_name     VARCHAR(255) NOT NULL,
	content_type VARCHAR(50) NOT NULL,
	text         TEXT,
	symbol       VARCHAR(50),
	description  VARCHAR(255),
	mount        VARCHAR(100),
	voltage      VARCHAR(50),
	lumens       VARCHAR(50),
	source_sheet VARCHAR(50),
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_static_content_pdf_name ON static_content (pdf_name);
`

// uniqueViolation is the PostgreSQL error code for duplicate keys.
const uniqueViolation = "23505"

// Postgres stores jobs in PostgreSQL. Saved results are also written as
// per-fixture rows to emergency_lighting and as reference rows to static_content.
type Postgres struct {
	db *sql.DB
}

// NewPostgres connects to dsn and verifies the connection.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	if dsn == "" {
		return nil, errors.New("database URL is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Postgres{db: db}, nil
}

// Migrate creates the tables if they do not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

func (p *Postgres) CreateJob(ctx context.Context, pdfName string) (Job, error) {
	job, err := newJob(pdfName, time.Now().UTC())
	if err != nil {
		return Job{}, err
	}
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO processing_results (id, pdf_name, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $4)`,
		job.ID, job.PDFName, job.Status, job.CreatedAt)
	if isUniqueViolation(err) {
		return Job{}, ErrExists
	}
	if err != nil {
		return Job{}, fmt.Errorf("failed to create job %s: %w", pdfName, err)
	}
	return job, nil
}

func (p *Postgres) UpdateStatus(ctx context.Context, pdfName string, status Status, message string) error {
	if err := checkStatus(status); err != nil {
		return err
	}
	res, err := p.db.ExecContext(ctx,
		`UPDATE processing_results SET status = $2, error_message = NULLIF($3, ''), updated_at = NOW()
		 WHERE pdf_name = $1`,
		pdfName, status, message)
	if err != nil {
		return fmt.Errorf("failed to update job status (pdf=%s, status=%s): %w", pdfName, status, err)
	}
	return requireRow(res)
}

// SaveResult replaces any rows from an earlier attempt, so a retried job
// does not duplicate its fixtures.
func (p *Postgres) SaveResult(ctx context.Context, pdfName string, doc *pipeline.DocumentResult) (err error) {
	cls := classifier.EmptyResult()
	if doc != nil {
		cls = doc.Classification
	}
	payload, err := json.Marshal(cls)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		`UPDATE processing_results SET status = $2, result = $3, error_message = NULL, updated_at = NOW()
		 WHERE pdf_name = $1`,
		pdfName, StatusComplete, payload)
	if err != nil {
		return fmt.Errorf("failed to save result: %w", err)
	}
	if err = requireRow(res); err != nil {
		return err
	}

	for _, table := range []string{"emergency_lighting", "static_content"} {
		if _, err = tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE pdf_name = $1", pdfName); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	for _, d := range cls.DetailedDetections {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO emergency_lighting
			 (pdf_name, symbol, fixture_type, bounding_box, text_nearby, source_sheet, confidence)
			 VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7)`,
			pdfName, d.Symbol, string(d.Type), pq.Array(boxArray(d.Box.Ints())),
			pq.Array(d.TextNearby), d.SourceSheet, d.Confidence); err != nil {
			return fmt.Errorf("failed to save detection: %w", err)
		}
	}

	if doc != nil {
		for _, r := range doc.References {
			if _, err = tx.ExecContext(ctx,
				`INSERT INTO static_content
				 (pdf_name, content_type, text, symbol, description, mount, voltage, lumens, source_sheet)
				 VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''),
				         NULLIF($7, ''), NULLIF($8, ''), $9)`,
				pdfName, string(r.Kind), r.Text, r.Symbol, r.Description, r.Mount,
				r.Voltage, r.Lumens, r.SourceSheet); err != nil {
				return fmt.Errorf("failed to save reference row: %w", err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit result: %w", err)
	}
	return nil
}

func (p *Postgres) Job(ctx context.Context, pdfName string) (Job, error) {
	var (
		job    Job
		result []byte
	)
	err := p.db.QueryRowContext(ctx,
		`SELECT id, pdf_name, status, result, COALESCE(error_message, ''), created_at, updated_at
		 FROM processing_results WHERE pdf_name = $1`, pdfName).
		Scan(&job.ID, &job.PDFName, &job.Status, &result, &job.Message, &job.CreatedAt, &job.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, ErrNotFound
	}
	if err != nil {
		return Job{}, fmt.Errorf("failed to load job %s: %w", pdfName, err)
	}
	if len(result) > 0 {
		var r classifier.Result
		if err := json.Unmarshal(result, &r); err != nil {
			return Job{}, fmt.Errorf("failed to decode result of %s: %w", pdfName, err)
		}
		job.Result = &r
	}
	return job, nil
}

// Ping checks the database connection.
func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *Postgres) Close() error { return p.db.Close() }

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func boxArray(v [4]int) []int64 {
	return []int64{int64(v[0]), int64(v[1]), int64(v[2]), int64(v[3])}
}
