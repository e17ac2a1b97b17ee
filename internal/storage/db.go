package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/malgorzata-bondini/offerings-app/internal"
	"github.com/malgorzata-bondini/offerings-app/internal/util"
)

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS existing_offerings (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  nameKey TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL,
  source TEXT NOT NULL,
  sysId TEXT,
  updatedAt TEXT,
  lastSeenAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_existing_offerings_sysId ON existing_offerings(sysId);

CREATE TABLE IF NOT EXISTS inputs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  path TEXT NOT NULL UNIQUE,
  hash TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'new',
  runId TEXT,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  runId TEXT NOT NULL UNIQUE,
  convention TEXT NOT NULL,
  profile TEXT NOT NULL,
  inputsJson TEXT NOT NULL,
  output TEXT,
  countsJson TEXT NOT NULL,
  timingsJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS run_offerings (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  runId TEXT NOT NULL,
  seq INTEGER NOT NULL,
  name TEXT NOT NULL,
  category TEXT,
  response TEXT,
  resolution TEXT,
  availability TEXT,
  profileKey TEXT,
  sourceId TEXT NOT NULL,
  fieldsJson TEXT NOT NULL,
  UNIQUE(runId, seq),
  FOREIGN KEY(runId) REFERENCES runs(runId)
);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

// UpsertExistingOfferings caches catalog names. Names are keyed by their
// normalized form; the first spelling stored is kept.
func (d *DB) UpsertExistingOfferings(offerings []internal.ExistingOffering) (int, error) {
	tx, err := d.conn.Begin()
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
INSERT INTO existing_offerings (nameKey, name, source, sysId, updatedAt, lastSeenAt)
VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(nameKey) DO UPDATE SET
  source=excluded.source,
  sysId=COALESCE(excluded.sysId, existing_offerings.sysId),
  updatedAt=COALESCE(excluded.updatedAt, existing_offerings.updatedAt),
  lastSeenAt=CURRENT_TIMESTAMP
`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	n := 0
	for _, o := range offerings {
		key := util.NormalizeName(o.Name)
		if key == "" {
			continue
		}
		if _, err := stmt.Exec(key, util.NormalizeSpaces(o.Name), o.Source, o.SysID, o.UpdatedAt); err != nil {
			return 0, err
		}
		n++
	}

	return n, tx.Commit()
}

func (d *DB) ListExistingOfferingNames() ([]string, error) {
	rows, err := d.conn.Query(`SELECT name FROM existing_offerings ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (d *DB) CountExistingOfferings(source string) (int, error) {
	var n int
	var err error
	if source == "" {
		err = d.conn.QueryRow(`SELECT COUNT(*) FROM existing_offerings`).Scan(&n)
	} else {
		err = d.conn.QueryRow(`SELECT COUNT(*) FROM existing_offerings WHERE source = ?`, source).Scan(&n)
	}
	return n, err
}

func (d *DB) UpsertInput(path, hash string) (internal.InputRow, error) {
	_, err := d.conn.Exec(`
INSERT INTO inputs (path, hash, status)
VALUES (?, ?, 'new')
ON CONFLICT(path) DO UPDATE SET
  status=CASE WHEN inputs.hash = excluded.hash THEN inputs.status ELSE 'new' END,
  hash=excluded.hash,
  updatedAt=CURRENT_TIMESTAMP
`, path, hash)
	if err != nil {
		return internal.InputRow{}, err
	}

	row, err := d.GetInputByPath(path)
	if err != nil {
		return internal.InputRow{}, err
	}
	if row == nil {
		return internal.InputRow{}, errors.New("failed to upsert input")
	}
	return *row, nil
}

func (d *DB) GetInputByPath(path string) (*internal.InputRow, error) {
	var row internal.InputRow
	err := d.conn.QueryRow(`SELECT id, path, hash, status, runId FROM inputs WHERE path = ?`, path).
		Scan(&row.ID, &row.Path, &row.Hash, &row.Status, &row.RunID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) UpdateInputStatus(id int, status string, runID *string) error {
	_, err := d.conn.Exec(`UPDATE inputs SET status = ?, runId = COALESCE(?, runId), updatedAt = CURRENT_TIMESTAMP WHERE id = ?`, status, runID, id)
	return err
}

// InsertRun stores the run and its emitted offerings in one transaction.
func (d *DB) InsertRun(run internal.RunRow, offerings []internal.RunOfferingRow) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	inputsJSON, _ := json.Marshal(run.Inputs)
	countsJSON, _ := json.Marshal(run.Counts)
	timingsJSON, _ := json.Marshal(run.TimingsMs)
	if _, err := tx.Exec(`
INSERT INTO runs (runId, convention, profile, inputsJson, output, countsJson, timingsJson)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, run.RunID, run.Convention, run.Profile, string(inputsJSON), run.Output, string(countsJSON), string(timingsJSON)); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
INSERT INTO run_offerings (runId, seq, name, category, response, resolution, availability, profileKey, sourceId, fieldsJson)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, o := range offerings {
		fieldsJSON, _ := json.Marshal(o.Fields)
		if _, err := stmt.Exec(run.RunID, o.Seq, o.Name, o.Category, o.Response, o.Resolution, o.Availability, o.ProfileKey, o.SourceID, string(fieldsJSON)); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (d *DB) ListRuns(limit int) ([]internal.RunRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.conn.Query(`
SELECT id, runId, convention, profile, inputsJson, COALESCE(output, ''), countsJson, timingsJson, createdAt
FROM runs ORDER BY id DESC LIMIT ?
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.RunRow
	for rows.Next() {
		row, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) GetRun(runID string) (*internal.RunRow, error) {
	row, err := scanRun(d.conn.QueryRow(`
SELECT id, runId, convention, profile, inputsJson, COALESCE(output, ''), countsJson, timingsJson, createdAt
FROM runs WHERE runId = ?
`, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (internal.RunRow, error) {
	var row internal.RunRow
	var inputsJSON, countsJSON, timingsJSON string
	if err := s.Scan(&row.ID, &row.RunID, &row.Convention, &row.Profile, &inputsJSON, &row.Output, &countsJSON, &timingsJSON, &row.CreatedAt); err != nil {
		return internal.RunRow{}, err
	}
	_ = json.Unmarshal([]byte(inputsJSON), &row.Inputs)
	_ = json.Unmarshal([]byte(countsJSON), &row.Counts)
	_ = json.Unmarshal([]byte(timingsJSON), &row.TimingsMs)
	return row, nil
}

func (d *DB) GetRunOfferings(runID string) ([]internal.RunOfferingRow, error) {
	rows, err := d.conn.Query(`
SELECT seq, name, COALESCE(category, ''), COALESCE(response, ''), COALESCE(resolution, ''),
       COALESCE(availability, ''), COALESCE(profileKey, ''), sourceId, fieldsJson
FROM run_offerings WHERE runId = ? ORDER BY seq ASC
`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.RunOfferingRow
	for rows.Next() {
		var row internal.RunOfferingRow
		var fieldsJSON string
		if err := rows.Scan(&row.Seq, &row.Name, &row.Category, &row.Response, &row.Resolution, &row.Availability, &row.ProfileKey, &row.SourceID, &fieldsJSON); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(fieldsJSON), &row.Fields)
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(key string) (*string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}

func (d *DB) MustRun(runID string) (internal.RunRow, error) {
	row, err := d.GetRun(runID)
	if err != nil {
		return internal.RunRow{}, err
	}
	if row == nil {
		return internal.RunRow{}, fmt.Errorf("run not found: %s", runID)
	}
	return *row, nil
}
