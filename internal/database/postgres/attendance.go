package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/rollcall/internal/database"
)

// AttendanceRepository stores saved rolls in PostgreSQL.
type AttendanceRepository struct {
	pool *Pool
}

// NewAttendanceRepository creates a new PostgreSQL attendance repository.
func NewAttendanceRepository(pool *Pool) *AttendanceRepository {
	return &AttendanceRepository{pool: pool}
}

var _ database.AttendanceHistory = (*AttendanceRepository)(nil)

// SaveRun stores the run and its rows in a single transaction.
func (r *AttendanceRepository) SaveRun(ctx context.Context, run database.AttendanceRun) error {
	id, err := uuid.Parse(run.ID)
	if err != nil {
		return fmt.Errorf("invalid run id %q: %w", run.ID, err)
	}
	createdAt := run.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO attendance_runs (id, run_date, file, tolerance, present, absent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, id, run.Date, run.File, run.Tolerance, run.Present, run.Absent, createdAt)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO attendance_records (run_id, position, identifier, status)
		VALUES ($1, $2, $3, $4)
	`)
	if err != nil {
		return fmt.Errorf("prepare record insert: %w", err)
	}
	defer stmt.Close()

	for i, row := range run.Rows {
		if _, err := stmt.ExecContext(ctx, id, i, row.Identifier, row.Status); err != nil {
			return fmt.Errorf("insert record %s: %w", row.Identifier, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	return nil
}

// ListRuns returns the newest runs first, without rows.
func (r *AttendanceRepository) ListRuns(ctx context.Context, limit int) ([]database.AttendanceRun, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, to_char(run_date, 'YYYY-MM-DD'), file, tolerance, present, absent, created_at
		FROM attendance_runs
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []database.AttendanceRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// GetRun returns a run with its rows in roster order.
func (r *AttendanceRepository) GetRun(ctx context.Context, id string) (*database.AttendanceRun, error) {
	runID, err := uuid.Parse(id)
	if err != nil {
		return nil, database.ErrNotFound
	}

	run, err := scanRun(r.pool.QueryRow(ctx, `
		SELECT id, to_char(run_date, 'YYYY-MM-DD'), file, tolerance, present, absent, created_at
		FROM attendance_runs
		WHERE id = $1
	`, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT identifier, status
		FROM attendance_records
		WHERE run_id = $1
		ORDER BY position
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var row database.AttendanceRow
		if err := rows.Scan(&row.Identifier, &row.Status); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		run.Rows = append(run.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return run, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(s rowScanner) (*database.AttendanceRun, error) {
	var run database.AttendanceRun
	var id uuid.UUID
	err := s.Scan(&id, &run.Date, &run.File, &run.Tolerance, &run.Present, &run.Absent, &run.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}
	run.ID = id.String()
	return &run, nil
}
