package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/crimelens-lab/crimelens/internal/core/artifact"
	"github.com/crimelens-lab/crimelens/internal/core/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func testSet() *artifact.Set {
	jan := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	return &artifact.Set{
		MonthlyTotal: []artifact.MonthlyTotalRow{{Month: jan, Count: 100}},
		MonthlyType: []artifact.MonthlyTypeRow{
			{Month: jan, PrimaryType: "BATTERY", Count: 60},
			{Month: jan, PrimaryType: "THEFT", Count: 40},
		},
		SamplePoints: []artifact.SamplePoint{
			{Date: jan.Add(14 * 24 * time.Hour), PrimaryType: "THEFT", Latitude: 41.88, Longitude: -87.63, Year: 2020},
		},
	}
}

func TestArtifactAdapter_Replace(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	adapter := NewArtifactAdapter(db)
	runID := uuid.New()
	set := testSet()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(queryInsertRun)).
		WithArgs(runID, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM monthly_total")).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM monthly_type")).
		WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM sample_points")).
		WillReturnResult(sqlmock.NewResult(0, 9))

	totalPrep := mock.ExpectPrepare(regexp.QuoteMeta(queryInsertMonthlyTotal))
	totalPrep.ExpectExec().
		WithArgs(set.MonthlyTotal[0].Month, int64(100)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	typePrep := mock.ExpectPrepare(regexp.QuoteMeta(queryInsertMonthlyType))
	typePrep.ExpectExec().
		WithArgs(set.MonthlyType[0].Month, "BATTERY", int64(60)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	typePrep.ExpectExec().
		WithArgs(set.MonthlyType[1].Month, "THEFT", int64(40)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	samplePrep := mock.ExpectPrepare(regexp.QuoteMeta(queryInsertSamplePoint))
	samplePrep.ExpectExec().
		WithArgs(set.SamplePoints[0].Date, "THEFT", 41.88, -87.63, 2020).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectExec(regexp.QuoteMeta(queryFinishRun)).
		WithArgs(sqlmock.AnyArg(), 1, 2, 1, runID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, adapter.Replace(context.Background(), runID, set))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestArtifactAdapter_ReplaceRollsBackOnInsertFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	adapter := NewArtifactAdapter(db)
	runID := uuid.New()
	set := testSet()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(queryInsertRun)).
		WithArgs(runID, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM monthly_total")).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	require.Error(t, adapter.Replace(context.Background(), runID, set))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestArtifactAdapter_LoadNoRuns(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	adapter := NewArtifactAdapter(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(queryLatestRun)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, _, err = adapter.Load(context.Background())
	require.ErrorIs(t, err, storage.ErrNoArtifacts)
	require.NoError(t, mock.ExpectationsWereMet())
}

// Load must read all three tables from one MVCC snapshot. Under read
// committed, a Replace committing mid-load would pair monthly_total from one
// generation with monthly_type from the next.
func TestArtifactAdapter_LoadTxPinsOneSnapshot(t *testing.T) {
	require.Equal(t, sql.LevelRepeatableRead, loadTxOptions.Isolation)
	require.True(t, loadTxOptions.ReadOnly)
}

func TestArtifactAdapter_Load(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	adapter := NewArtifactAdapter(db)
	jan := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	runID := uuid.New().String()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(queryLatestRun)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(runID))
	mock.ExpectQuery(regexp.QuoteMeta(queryLoadMonthlyTotal)).
		WillReturnRows(sqlmock.NewRows([]string{"month", "count"}).
			AddRow(jan, int64(100)))
	mock.ExpectQuery(regexp.QuoteMeta(queryLoadMonthlyType)).
		WillReturnRows(sqlmock.NewRows([]string{"month", "primary_type", "count"}).
			AddRow(jan, "BATTERY", int64(60)).
			AddRow(jan, "THEFT", int64(40)))
	mock.ExpectQuery(regexp.QuoteMeta(queryLoadSamplePoints)).
		WillReturnRows(sqlmock.NewRows([]string{"date", "primary_type", "latitude", "longitude", "year"}).
			AddRow(jan.Add(24*time.Hour), "THEFT", 41.88, -87.63, 2020))
	mock.ExpectCommit()

	set, gotRunID, err := adapter.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, runID, gotRunID)
	require.Len(t, set.MonthlyTotal, 1)
	require.Len(t, set.MonthlyType, 2)
	require.Len(t, set.SamplePoints, 1)
	require.NoError(t, set.Validate())
	require.NoError(t, mock.ExpectationsWereMet())
}
