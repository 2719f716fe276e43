package storage

// SQL schemas for all ClickHouse tables

const (
	// MetricsTableSQL creates the metrics table. ReplacingMergeTree on
	// the ordering key collapses duplicate rows from at-least-once
	// delivery during background merges.
	MetricsTableSQL = `
		CREATE TABLE IF NOT EXISTS metrics (
			timestamp DateTime64(9),
			measurement String,
			tags Map(String, String),
			fields Map(String, Float64)
		) ENGINE = ReplacingMergeTree()
		ORDER BY (measurement, tags['robot_id'], timestamp)
		PARTITION BY toYYYYMM(timestamp)
	`
)

// AllTables returns all table creation statements in creation order.
func AllTables() []string {
	return []string{
		MetricsTableSQL,
	}
}
