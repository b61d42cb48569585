package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"conforma/internal/finding/models"
	id "conforma/pkg/domain"
	"conforma/pkg/platform/sentinel"
)

// Postgres persists findings in PostgreSQL. Filterable fields live in
// columns; the full aggregate (including sub-records) is stored as a JSONB
// document so the schema does not chase every sub-record field.
//
// Execute uses SELECT ... FOR UPDATE so validate and mutate run under the
// row lock, matching the InMemory semantics.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Create(ctx context.Context, f *models.Finding) error {
	doc, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal finding: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO findings (id, category, severity, status, stage, archived, created_at, version, doc)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		f.ID.String(), f.Category, string(f.Severity), string(f.Status), string(f.Stage),
		f.Archived, f.CreatedAt, f.Version, doc,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert finding: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, findingID id.FindingID) (*models.Finding, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT doc, version FROM findings WHERE id = $1`, findingID.String())
	return scanFinding(row)
}

// Execute loads the finding under a row lock, validates, mutates, and writes
// back in one transaction. Concurrent transitions serialize on the row lock,
// so the loser revalidates against the winner's state and fails cleanly.
func (s *Postgres) Execute(ctx context.Context, findingID id.FindingID, validate func(*models.Finding) error, mutate func(*models.Finding)) (*models.Finding, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`SELECT doc, version FROM findings WHERE id = $1 FOR UPDATE`, findingID.String())
	f, err := scanFinding(row)
	if err != nil {
		return nil, err
	}

	if err := validate(f); err != nil {
		return nil, err
	}
	mutate(f)
	f.Version++

	if err := updateFindingTx(ctx, tx, f); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return f, nil
}

// Update persists a finding read earlier, conditioned on its version being
// unchanged. Prefer Execute for lifecycle transitions.
func (s *Postgres) Update(ctx context.Context, f *models.Finding) error {
	readVersion := f.Version
	f.Version++
	doc, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal finding: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE findings
		SET category = $2, severity = $3, status = $4, stage = $5, archived = $6, version = $7, doc = $8
		WHERE id = $1 AND version = $9`,
		f.ID.String(), f.Category, string(f.Severity), string(f.Status), string(f.Stage),
		f.Archived, f.Version, doc, readVersion,
	)
	if err != nil {
		return fmt.Errorf("update finding: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update finding: %w", err)
	}
	if affected == 0 {
		// Either the row is gone or someone else won the version race.
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM findings WHERE id = $1)`, f.ID.String()).Scan(&exists); err != nil {
			return fmt.Errorf("check finding existence: %w", err)
		}
		if !exists {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrConflict
	}
	return nil
}

func (s *Postgres) List(ctx context.Context, filter Filter) ([]*models.Finding, error) {
	query := `SELECT doc, version FROM findings WHERE 1=1`
	var args []any
	if !filter.IncludeArchived {
		query += ` AND archived = false`
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		query += fmt.Sprintf(` AND category = $%d`, len(args))
	}
	if filter.Severity != "" {
		args = append(args, string(filter.Severity))
		query += fmt.Sprintf(` AND severity = $%d`, len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	if filter.Stage != "" {
		args = append(args, string(filter.Stage))
		query += fmt.Sprintf(` AND stage = $%d`, len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list findings: %w", err)
	}
	defer rows.Close()
	return collectFindings(rows)
}

func (s *Postgres) ListAnalyzedSince(ctx context.Context, since time.Time) ([]*models.Finding, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT doc, version FROM findings
		WHERE archived = false
		  AND stage IN ($1, $2)
		  AND created_at >= $3`,
		string(models.StageRootCauseAnalyzed), string(models.StageVerifiedClosed), since,
	)
	if err != nil {
		return nil, fmt.Errorf("scan analyzed findings: %w", err)
	}
	defer rows.Close()
	return collectFindings(rows)
}

func updateFindingTx(ctx context.Context, tx *sql.Tx, f *models.Finding) error {
	doc, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal finding: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE findings
		SET category = $2, severity = $3, status = $4, stage = $5, archived = $6, version = $7, doc = $8
		WHERE id = $1`,
		f.ID.String(), f.Category, string(f.Severity), string(f.Status), string(f.Stage),
		f.Archived, f.Version, doc,
	)
	if err != nil {
		return fmt.Errorf("update finding: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFinding(row rowScanner) (*models.Finding, error) {
	var doc []byte
	var version int
	if err := row.Scan(&doc, &version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan finding: %w", err)
	}
	var f models.Finding
	if err := json.Unmarshal(doc, &f); err != nil {
		return nil, fmt.Errorf("unmarshal finding: %w", err)
	}
	f.Version = version
	return &f, nil
}

func collectFindings(rows *sql.Rows) ([]*models.Finding, error) {
	var out []*models.Finding
	for rows.Next() {
		f, err := scanFinding(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate findings: %w", err)
	}
	return out, nil
}

// isUniqueViolation matches the Postgres unique_violation SQLSTATE without
// binding to a specific driver error type.
func isUniqueViolation(err error) bool {
	type sqlState interface{ SQLState() string }
	var state sqlState
	if errors.As(err, &state) {
		return state.SQLState() == "23505"
	}
	return false
}
