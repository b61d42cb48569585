package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"conforma/internal/action/models"
	id "conforma/pkg/domain"
	"conforma/pkg/platform/sentinel"
)

// Postgres persists actions in PostgreSQL using the same column-plus-JSONB
// layout as the finding store: filterable fields live in columns, the full
// aggregate in a doc column.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Create(ctx context.Context, a *models.Action) error {
	doc, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal action: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO actions (id, finding_id, status, owner_id, created_at, version, doc)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID.String(), a.FindingID.String(), string(a.Status), a.Owner.String(),
		a.CreatedAt, a.Version, doc,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert action: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, actionID id.ActionID) (*models.Action, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT doc, version FROM actions WHERE id = $1`, actionID.String())
	return scanAction(row)
}

// Execute loads the action under a row lock, validates, mutates, and writes
// back in one transaction.
func (s *Postgres) Execute(ctx context.Context, actionID id.ActionID, validate func(*models.Action) error, mutate func(*models.Action)) (*models.Action, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`SELECT doc, version FROM actions WHERE id = $1 FOR UPDATE`, actionID.String())
	a, err := scanAction(row)
	if err != nil {
		return nil, err
	}

	if err := validate(a); err != nil {
		return nil, err
	}
	mutate(a)
	a.Version++

	doc, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal action: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE actions
		SET status = $2, owner_id = $3, version = $4, doc = $5
		WHERE id = $1`,
		a.ID.String(), string(a.Status), a.Owner.String(), a.Version, doc,
	); err != nil {
		return nil, fmt.Errorf("update action: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return a, nil
}

func (s *Postgres) List(ctx context.Context, filter Filter) ([]*models.Action, error) {
	query := `SELECT doc, version FROM actions WHERE 1=1`
	var args []any
	if !filter.FindingID.IsNil() {
		args = append(args, filter.FindingID.String())
		query += fmt.Sprintf(` AND finding_id = $%d`, len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	if !filter.Owner.IsNil() {
		args = append(args, filter.Owner.String())
		query += fmt.Sprintf(` AND owner_id = $%d`, len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	defer rows.Close()
	return collectActions(rows)
}

func (s *Postgres) ListByFinding(ctx context.Context, findingID id.FindingID) ([]*models.Action, error) {
	return s.List(ctx, Filter{FindingID: findingID})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAction(row rowScanner) (*models.Action, error) {
	var doc []byte
	var version int
	if err := row.Scan(&doc, &version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan action: %w", err)
	}
	var a models.Action
	if err := json.Unmarshal(doc, &a); err != nil {
		return nil, fmt.Errorf("unmarshal action: %w", err)
	}
	a.Version = version
	return &a, nil
}

func collectActions(rows *sql.Rows) ([]*models.Action, error) {
	var out []*models.Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate actions: %w", err)
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
