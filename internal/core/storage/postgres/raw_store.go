package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/crimelens-lab/crimelens/internal/core/incident"
	"github.com/lib/pq"
)

// RawStore implements storage.RawIncidentStore over per-year partition
// tables. Partitions follow a year-parameterized naming pattern
// (e.g. incidents_2015, incidents_2016, ...) and are produced by the upstream
// export job; this store only reads them.
type RawStore struct {
	db     *sql.DB
	prefix string
}

// NewRawStore creates a partition reader sharing the given connection.
// prefix is the partition table name prefix, e.g. "incidents_".
func NewRawStore(db *sql.DB, prefix string) *RawStore {
	return &RawStore{db: db, prefix: prefix}
}

// ListYears discovers partition tables by naming pattern and returns their
// years ascending. Tables matching the prefix without a numeric year suffix
// are ignored.
func (s *RawStore) ListYears(ctx context.Context) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, queryListPartitionTables, s.prefix+"%")
	if err != nil {
		return nil, fmt.Errorf("list partition tables: %w", err)
	}
	defer rows.Close()

	var years []int
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("list partition tables: scan row: %w", err)
		}

		suffix := strings.TrimPrefix(name, s.prefix)
		year, err := strconv.Atoi(suffix)
		if err != nil || year <= 0 {
			slog.Debug("[RawStore] Ignoring table without year suffix", "table", name)
			continue
		}
		years = append(years, year)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list partition tables: iterate rows: %w", err)
	}

	sort.Ints(years)
	return years, nil
}

// ReadPartition reads every raw row of one year's partition in a stable
// order. Nullable columns stay nullable here — validation and dropping happen
// in the aggregation pipeline, not in SQL.
func (s *RawStore) ReadPartition(ctx context.Context, year int) ([]incident.RawIncident, error) {
	table := fmt.Sprintf("%s%d", s.prefix, year)
	query := fmt.Sprintf(queryReadPartition, pq.QuoteIdentifier(table))

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("read partition %s: %w", table, err)
	}
	defer rows.Close()

	var incidents []incident.RawIncident
	for rows.Next() {
		var (
			date        sql.NullString
			primaryType sql.NullString
			latitude    sql.NullFloat64
			longitude   sql.NullFloat64
		)
		if err := rows.Scan(&date, &primaryType, &latitude, &longitude); err != nil {
			return nil, fmt.Errorf("read partition %s: scan row: %w", table, err)
		}

		var raw incident.RawIncident
		if date.Valid {
			raw.Date = &date.String
		}
		if primaryType.Valid {
			raw.PrimaryType = &primaryType.String
		}
		if latitude.Valid {
			raw.Latitude = &latitude.Float64
		}
		if longitude.Valid {
			raw.Longitude = &longitude.Float64
		}
		incidents = append(incidents, raw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read partition %s: iterate rows: %w", table, err)
	}

	return incidents, nil
}
