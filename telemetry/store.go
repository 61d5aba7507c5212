package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/fatih/structs"

	// Metrics are stored in a SQLite database.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"
	"github.com/tebeka/atexit"
)

const metricTable = "metrics"

// metricEntry is one row in the metric table. SQLite stores integers as
// int64, so the timestamp is narrowed on insert.
type metricEntry struct {
	DeviceID       int64
	TimestampNanos int64
	Value          float64
}

// Store is a Sink backed by a SQLite database. Inserts are batched; the
// buffer is flushed when full, on Flush, and at process exit.
type Store struct {
	db   *sql.DB
	path string

	mu        sync.Mutex
	pending   []metricEntry
	batchSize int
}

// NewStore creates a metric store backed by a new SQLite database at
// path + ".sqlite3". An empty path picks a unique name. Creating a store
// over an existing file is an error.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "simnet_metrics_" + xid.New().String()
	}

	filename := path + ".sqlite3"
	if _, err := os.Stat(filename); err == nil {
		return nil, fmt.Errorf("file %s already exists", filename)
	}

	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		return nil, fmt.Errorf("opening metric database: %w", err)
	}

	s := &Store{
		db:        db,
		path:      filename,
		batchSize: 1024,
	}

	if err := s.createTable(); err != nil {
		db.Close()
		return nil, err
	}

	atexit.Register(func() { _ = s.Flush() })

	return s, nil
}

func (s *Store) createTable() error {
	fields := strings.Join(structs.Names(metricEntry{}), ", \n\t")

	createSQL := `CREATE TABLE ` + metricTable +
		` (` + "\n\t" + fields + "\n" + `);`

	if _, err := s.db.Exec(createSQL); err != nil {
		return fmt.Errorf("creating metric table: %w", err)
	}

	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// LogMetric buffers one metric record.
func (s *Store) LogMetric(
	_ context.Context,
	deviceID uint32,
	timestampNanos uint64,
	value float64,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = append(s.pending, metricEntry{
		DeviceID:       int64(deviceID),
		TimestampNanos: int64(timestampNanos),
		Value:          value,
	})

	if len(s.pending) >= s.batchSize {
		return s.flushLocked()
	}

	return nil
}

// Flush writes all buffered records to the database.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.flushLocked()
}

func (s *Store) flushLocked() error {
	if len(s.pending) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting metric transaction: %w", err)
	}

	placeholders := make([]string, len(structs.Names(metricEntry{})))
	for i := range placeholders {
		placeholders[i] = "?"
	}

	stmt, err := tx.Prepare("INSERT INTO " + metricTable +
		" VALUES (" + strings.Join(placeholders, ", ") + ")")
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("preparing metric insert: %w", err)
	}
	defer stmt.Close()

	for _, entry := range s.pending {
		if _, err := stmt.Exec(structs.Values(entry)...); err != nil {
			tx.Rollback()
			return fmt.Errorf("inserting metric record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing metric records: %w", err)
	}

	s.pending = s.pending[:0]

	return nil
}

// TotalRecordCount flushes and returns the number of stored records.
func (s *Store) TotalRecordCount() (int, error) {
	if err := s.Flush(); err != nil {
		return 0, err
	}

	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM " + metricTable).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting metric records: %w", err)
	}

	return count, nil
}

// Close flushes buffered records and closes the database.
func (s *Store) Close() error {
	if err := s.Flush(); err != nil {
		return err
	}

	return s.db.Close()
}
