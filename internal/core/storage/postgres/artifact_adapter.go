package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/crimelens-lab/crimelens/internal/core/artifact"
	"github.com/crimelens-lab/crimelens/internal/core/storage"
	"github.com/google/uuid"
)

// ArtifactAdapter implements storage.ArtifactStore using PostgreSQL.
// Replace rewrites all three artifact tables plus the run record in a single
// transaction — the atomicity contract that keeps concurrent readers on
// either the old complete set or the new one, never a mix.
type ArtifactAdapter struct {
	db *sql.DB
}

// NewArtifactAdapter creates an artifact store sharing the given connection.
func NewArtifactAdapter(db *sql.DB) *ArtifactAdapter {
	return &ArtifactAdapter{db: db}
}

// Replace overwrites the current artifact set wholesale.
func (a *ArtifactAdapter) Replace(ctx context.Context, runID uuid.UUID, set *artifact.Set) error {
	started := time.Now().UTC()

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("artifact replace: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, queryInsertRun, runID, started); err != nil {
		return fmt.Errorf("artifact replace: insert run: %w", err)
	}

	for _, table := range []string{"monthly_total", "monthly_type", "sample_points"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("artifact replace: clear %s: %w", table, err)
		}
	}

	if err := a.insertMonthlyTotal(ctx, tx, set.MonthlyTotal); err != nil {
		return err
	}
	if err := a.insertMonthlyType(ctx, tx, set.MonthlyType); err != nil {
		return err
	}
	if err := a.insertSamplePoints(ctx, tx, set.SamplePoints); err != nil {
		return err
	}

	months, typeRows, samples := set.Counts()
	if _, err := tx.ExecContext(ctx, queryFinishRun,
		time.Now().UTC(), months, typeRows, samples, runID,
	); err != nil {
		return fmt.Errorf("artifact replace: finish run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("artifact replace: commit: %w", err)
	}

	slog.Info("[ArtifactStore] Replaced artifact set",
		"run_id", runID,
		"month_rows", months,
		"type_rows", typeRows,
		"sample_rows", samples,
	)
	return nil
}

func (a *ArtifactAdapter) insertMonthlyTotal(ctx context.Context, tx *sql.Tx, rows []artifact.MonthlyTotalRow) error {
	stmt, err := tx.PrepareContext(ctx, queryInsertMonthlyTotal)
	if err != nil {
		return fmt.Errorf("artifact replace: prepare monthly_total insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row.Month, row.Count); err != nil {
			return fmt.Errorf("artifact replace: insert monthly_total %s: %w", row.Month.Format("2006-01"), err)
		}
	}
	return nil
}

func (a *ArtifactAdapter) insertMonthlyType(ctx context.Context, tx *sql.Tx, rows []artifact.MonthlyTypeRow) error {
	stmt, err := tx.PrepareContext(ctx, queryInsertMonthlyType)
	if err != nil {
		return fmt.Errorf("artifact replace: prepare monthly_type insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row.Month, row.PrimaryType, row.Count); err != nil {
			return fmt.Errorf("artifact replace: insert monthly_type (%s, %s): %w",
				row.Month.Format("2006-01"), row.PrimaryType, err)
		}
	}
	return nil
}

func (a *ArtifactAdapter) insertSamplePoints(ctx context.Context, tx *sql.Tx, points []artifact.SamplePoint) error {
	stmt, err := tx.PrepareContext(ctx, queryInsertSamplePoint)
	if err != nil {
		return fmt.Errorf("artifact replace: prepare sample_points insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range points {
		if _, err := stmt.ExecContext(ctx, p.Date, p.PrimaryType, p.Latitude, p.Longitude, p.Year); err != nil {
			return fmt.Errorf("artifact replace: insert sample point: %w", err)
		}
	}
	return nil
}

// loadTxOptions pins the whole load to one MVCC snapshot. Read committed is
// not enough: each statement would take its own snapshot, and a Replace
// committing between two of the table reads would pair rows from different
// generations.
var loadTxOptions = &sql.TxOptions{
	Isolation: sql.LevelRepeatableRead,
	ReadOnly:  true,
}

// Load reads the current artifact set and the id of the run that produced it
// from one repeatable-read transaction, so all three tables come from the
// same committed generation.
func (a *ArtifactAdapter) Load(ctx context.Context) (*artifact.Set, string, error) {
	tx, err := a.db.BeginTx(ctx, loadTxOptions)
	if err != nil {
		return nil, "", fmt.Errorf("artifact load: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var runID string
	err = tx.QueryRowContext(ctx, queryLatestRun).Scan(&runID)
	if err == sql.ErrNoRows {
		return nil, "", storage.ErrNoArtifacts
	}
	if err != nil {
		return nil, "", fmt.Errorf("artifact load: latest run: %w", err)
	}

	set := &artifact.Set{}

	if set.MonthlyTotal, err = loadMonthlyTotal(ctx, tx); err != nil {
		return nil, "", err
	}
	if set.MonthlyType, err = loadMonthlyType(ctx, tx); err != nil {
		return nil, "", err
	}
	if set.SamplePoints, err = loadSamplePoints(ctx, tx); err != nil {
		return nil, "", err
	}

	if err := tx.Commit(); err != nil {
		return nil, "", fmt.Errorf("artifact load: commit: %w", err)
	}

	slog.Info("[ArtifactStore] Loaded artifact set",
		"run_id", runID,
		"month_rows", len(set.MonthlyTotal),
		"type_rows", len(set.MonthlyType),
		"sample_rows", len(set.SamplePoints),
	)
	return set, runID, nil
}

func loadMonthlyTotal(ctx context.Context, tx *sql.Tx) ([]artifact.MonthlyTotalRow, error) {
	rows, err := tx.QueryContext(ctx, queryLoadMonthlyTotal)
	if err != nil {
		return nil, fmt.Errorf("artifact load: monthly_total: %w", err)
	}
	defer rows.Close()

	var out []artifact.MonthlyTotalRow
	for rows.Next() {
		var row artifact.MonthlyTotalRow
		if err := rows.Scan(&row.Month, &row.Count); err != nil {
			return nil, fmt.Errorf("artifact load: scan monthly_total: %w", err)
		}
		row.Month = row.Month.UTC()
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("artifact load: iterate monthly_total: %w", err)
	}
	return out, nil
}

func loadMonthlyType(ctx context.Context, tx *sql.Tx) ([]artifact.MonthlyTypeRow, error) {
	rows, err := tx.QueryContext(ctx, queryLoadMonthlyType)
	if err != nil {
		return nil, fmt.Errorf("artifact load: monthly_type: %w", err)
	}
	defer rows.Close()

	var out []artifact.MonthlyTypeRow
	for rows.Next() {
		var row artifact.MonthlyTypeRow
		if err := rows.Scan(&row.Month, &row.PrimaryType, &row.Count); err != nil {
			return nil, fmt.Errorf("artifact load: scan monthly_type: %w", err)
		}
		row.Month = row.Month.UTC()
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("artifact load: iterate monthly_type: %w", err)
	}
	return out, nil
}

func loadSamplePoints(ctx context.Context, tx *sql.Tx) ([]artifact.SamplePoint, error) {
	rows, err := tx.QueryContext(ctx, queryLoadSamplePoints)
	if err != nil {
		return nil, fmt.Errorf("artifact load: sample_points: %w", err)
	}
	defer rows.Close()

	var out []artifact.SamplePoint
	for rows.Next() {
		var p artifact.SamplePoint
		if err := rows.Scan(&p.Date, &p.PrimaryType, &p.Latitude, &p.Longitude, &p.Year); err != nil {
			return nil, fmt.Errorf("artifact load: scan sample point: %w", err)
		}
		p.Date = p.Date.UTC()
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("artifact load: iterate sample_points: %w", err)
	}
	return out, nil
}
