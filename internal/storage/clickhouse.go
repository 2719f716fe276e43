package storage

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// ClickHouseStore appends telemetry points to ClickHouse. Rows are keyed
// by (measurement, tags, timestamp), so re-writing the same packet after
// a retry lands on the same row.
type ClickHouseStore struct {
	conn driver.Conn
}

// NewClickHouseStore connects to ClickHouse and makes sure the schema
// exists.
func NewClickHouseStore(addr, database, username, password string) (*ClickHouseStore, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: database,
			Username: username,
			Password: password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	log.Printf("Connected to ClickHouse at %s", addr)

	store := &ClickHouseStore{conn: conn}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// initSchema creates the necessary tables if they don't exist.
func (s *ClickHouseStore) initSchema() error {
	ctx := context.Background()
	for _, tableSQL := range AllTables() {
		if err := s.conn.Exec(ctx, tableSQL); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	log.Println("Database schema initialized successfully")
	return nil
}

// WritePoint appends one measurement row tagged and timestamped by the
// caller.
func (s *ClickHouseStore) WritePoint(ctx context.Context, measurement string, tags map[string]string, fields map[string]float64, timestamp time.Time) error {
	query := `
		INSERT INTO metrics (timestamp, measurement, tags, fields)
		VALUES (?, ?, ?, ?)
	`

	if err := s.conn.Exec(ctx, query, timestamp, measurement, tags, fields); err != nil {
		return fmt.Errorf("failed to insert %s point: %w", measurement, err)
	}
	return nil
}

// Ping reports whether the store is reachable.
func (s *ClickHouseStore) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

// Close closes the ClickHouse connection.
func (s *ClickHouseStore) Close() error {
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			return fmt.Errorf("failed to close ClickHouse connection: %w", err)
		}
		log.Println("ClickHouse connection closed")
	}
	return nil
}
