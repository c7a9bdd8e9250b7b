/*
Copyright The Meridian Contributors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package audit persists failover records into an append-only sqlite
// database, one row per run, immutable once written
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	// sqlite driver
	_ "github.com/mattn/go-sqlite3"

	"github.com/meridian-ops/meridian/pkg/failover"
)

const schema = `
CREATE TABLE IF NOT EXISTS failover_records (
	id TEXT PRIMARY KEY,
	failed_region TEXT NOT NULL,
	target_region TEXT NOT NULL,
	reason TEXT NOT NULL,
	status TEXT NOT NULL,
	started_at TIMESTAMP NOT NULL,
	completed_at TIMESTAMP NOT NULL,
	actions_json TEXT NOT NULL,
	snapshot_json TEXT NOT NULL DEFAULT '[]',
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_failover_records_regions
	ON failover_records(failed_region, target_region);
`

// Store is a sqlite-backed audit sink
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if needed) the audit database at dbPath
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("while opening audit database %q: %w", dbPath, err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("while creating audit schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database handle
func (s *Store) Close() error {
	return s.db.Close()
}

// Append persists one failover record. Records are never updated or
// deleted.
func (s *Store) Append(ctx context.Context, record failover.Record) error {
	actions, err := json.Marshal(record.Actions)
	if err != nil {
		return fmt.Errorf("while encoding action outcomes: %w", err)
	}

	snapshot, err := json.Marshal(record.Snapshot)
	if err != nil {
		return fmt.Errorf("while encoding configuration snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO failover_records
			(id, failed_region, target_region, reason, status, started_at, completed_at,
			actions_json, snapshot_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.FailedRegion,
		record.TargetRegion,
		record.Reason,
		string(record.Status),
		record.StartedAt,
		record.CompletedAt,
		string(actions),
		string(snapshot),
	)
	if err != nil {
		return fmt.Errorf("while appending failover record %s: %w", record.ID, err)
	}

	return nil
}

// Latest returns the most recent records, newest first
func (s *Store) Latest(ctx context.Context, limit int) ([]failover.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, failed_region, target_region, reason, status, started_at, completed_at,
			actions_json, snapshot_json
			FROM failover_records ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("while reading failover records: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var records []failover.Record
	for rows.Next() {
		var record failover.Record
		var status, actions, snapshot string
		var startedAt, completedAt time.Time
		if err := rows.Scan(&record.ID, &record.FailedRegion, &record.TargetRegion,
			&record.Reason, &status, &startedAt, &completedAt, &actions, &snapshot); err != nil {
			return nil, fmt.Errorf("while scanning failover record: %w", err)
		}
		record.Status = failover.RecordStatus(status)
		record.StartedAt = startedAt
		record.CompletedAt = completedAt
		if err := json.Unmarshal([]byte(actions), &record.Actions); err != nil {
			return nil, fmt.Errorf("while decoding action outcomes of %s: %w", record.ID, err)
		}
		if err := json.Unmarshal([]byte(snapshot), &record.Snapshot); err != nil {
			return nil, fmt.Errorf("while decoding snapshot of %s: %w", record.ID, err)
		}
		records = append(records, record)
	}

	return records, rows.Err()
}
