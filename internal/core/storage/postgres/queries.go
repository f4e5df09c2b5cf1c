package postgres

// SQL for partition discovery and artifact persistence.
// Partition reads interpolate a validated table name (identifiers cannot be
// bound as parameters); everything else uses placeholders.

const (
	// queryListPartitionTables discovers per-year raw partitions by naming
	// pattern within the current schema.
	queryListPartitionTables = `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = current_schema()
		  AND table_name LIKE $1
		ORDER BY table_name
	`

	// queryReadPartition reads one year's raw rows. The ORDER BY over all
	// four columns pins a stable row order so seeded sampling is reproducible
	// run over run. The %s is the quoted partition table name.
	queryReadPartition = `
		SELECT date, primary_type, latitude, longitude
		FROM %s
		ORDER BY date, primary_type, latitude, longitude
	`

	queryInsertRun = `
		INSERT INTO aggregate_runs (id, started_at)
		VALUES ($1, $2)
	`

	queryFinishRun = `
		UPDATE aggregate_runs
		SET finished_at = $1, month_rows = $2, type_rows = $3, sample_rows = $4
		WHERE id = $5
	`

	queryInsertMonthlyTotal = `
		INSERT INTO monthly_total (month, count)
		VALUES ($1, $2)
	`

	queryInsertMonthlyType = `
		INSERT INTO monthly_type (month, primary_type, count)
		VALUES ($1, $2, $3)
	`

	queryInsertSamplePoint = `
		INSERT INTO sample_points (date, primary_type, latitude, longitude, year)
		VALUES ($1, $2, $3, $4, $5)
	`

	queryLatestRun = `
		SELECT id
		FROM aggregate_runs
		WHERE finished_at IS NOT NULL
		ORDER BY finished_at DESC
		LIMIT 1
	`

	queryLoadMonthlyTotal = `
		SELECT month, count
		FROM monthly_total
		ORDER BY month ASC
	`

	queryLoadMonthlyType = `
		SELECT month, primary_type, count
		FROM monthly_type
		ORDER BY month ASC, primary_type ASC
	`

	queryLoadSamplePoints = `
		SELECT date, primary_type, latitude, longitude, year
		FROM sample_points
		ORDER BY year ASC, date ASC, primary_type ASC
	`
)
