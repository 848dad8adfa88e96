package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"log"

	_ "modernc.org/sqlite"

	"asv-survey/internal/survey"
)

//go:embed schema.sql
var schemaSQL string

// DocumentStore keeps each record as a JSON document, grouped by mission.
type DocumentStore struct {
	db *sql.DB
}

// OpenDocumentStore opens (or creates) the sqlite database at path.
func OpenDocumentStore(path string) (*DocumentStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One writer; sqlite serializes anyway.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store schema: %w", err)
	}
	log.Printf("store: opened document store path=%s", path)
	return &DocumentStore{db: db}, nil
}

func (s *DocumentStore) Name() string { return "sqlite" }

func (s *DocumentStore) Save(ctx context.Context, r survey.Record) error {
	doc, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("store encode record %s: %w", r.ID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO records (id, mission, cycle, ts_unix_ms, latitude, longitude, doc) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Mission, r.Cycle, r.Timestamp.UnixMilli(), r.Latitude, r.Longitude, string(doc))
	if err != nil {
		return fmt.Errorf("store insert record %s: %w", r.ID, err)
	}
	return nil
}

// Count returns the number of records stored for mission.
func (s *DocumentStore) Count(ctx context.Context, mission string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE mission = ?`, mission).Scan(&n)
	return n, err
}

// Records returns a mission's records in time order.
func (s *DocumentStore) Records(ctx context.Context, mission string) ([]survey.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT doc FROM records WHERE mission = ? ORDER BY ts_unix_ms, cycle`, mission)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []survey.Record
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var r survey.Record
		if err := json.Unmarshal([]byte(doc), &r); err != nil {
			return nil, fmt.Errorf("store decode record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Missions lists mission names with at least one record.
func (s *DocumentStore) Missions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT mission FROM records ORDER BY mission`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *DocumentStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
