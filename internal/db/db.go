package db

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"anythingllm-sync/pkg/models"
)

// timeLayout matches the storage format of the tracking database:
// second granularity, UTC.
const timeLayout = "2006-01-02 15:04:05"

// DB is the local tracking ledger: one row per uploaded local file.
type DB struct {
	*sql.DB
}

// New opens the ledger at path, creating the file and schema if needed.
func New(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	db := &DB{sqlDB}
	if err := db.initialize(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to initialize ledger %s: %w", path, err)
	}
	return db, nil
}

// initialize creates the documents table if it doesn't exist.
func (db *DB) initialize() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS documents (
			local_path      TEXT PRIMARY KEY,
			synced_at       DATETIME NOT NULL,
			remote_location TEXT NOT NULL,
			metadata        TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_documents_location ON documents(remote_location);
		PRAGMA journal_mode=WAL;
		PRAGMA synchronous=NORMAL;
	`)
	return err
}

// Upsert inserts or replaces the record for doc.LocalPath.
func (db *DB) Upsert(doc models.TrackedDocument) error {
	_, err := db.Exec(`
		INSERT OR REPLACE INTO documents (local_path, synced_at, remote_location, metadata)
		VALUES (?, ?, ?, ?)
	`, doc.LocalPath, doc.SyncedAt.UTC().Format(timeLayout), doc.RemoteLocation, doc.Metadata)
	return err
}

// Delete removes the record for localPath, if any.
func (db *DB) Delete(localPath string) error {
	_, err := db.Exec(`DELETE FROM documents WHERE local_path = ?`, localPath)
	return err
}

// List returns every tracked document ordered by local path.
func (db *DB) List() ([]models.TrackedDocument, error) {
	rows, err := db.Query(`
		SELECT local_path, synced_at, remote_location, COALESCE(metadata, '')
		FROM documents
		ORDER BY local_path
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []models.TrackedDocument
	for rows.Next() {
		var doc models.TrackedDocument
		var syncedAt string
		if err := rows.Scan(&doc.LocalPath, &syncedAt, &doc.RemoteLocation, &doc.Metadata); err != nil {
			return nil, err
		}
		doc.SyncedAt, err = time.ParseInLocation(timeLayout, syncedAt, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("bad synced_at for %s: %w", doc.LocalPath, err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Clear deletes every tracked document.
func (db *DB) Clear() error {
	_, err := db.Exec(`DELETE FROM documents`)
	return err
}

// Count returns the number of tracked documents.
func (db *DB) Count() (int64, error) {
	var n int64
	err := db.QueryRow(`SELECT COUNT(*) FROM documents`).Scan(&n)
	return n, err
}
