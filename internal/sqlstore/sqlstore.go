// Package sqlstore persists segmented protocols in a local SQLite database.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgallion1/protoseg/internal/doctree"
	"github.com/dgallion1/protoseg/internal/protocol"
	"github.com/dgallion1/protoseg/internal/segment"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS protocols (
	doc_id          TEXT PRIMARY KEY,
	drug_name       TEXT NOT NULL,
	protocol_source TEXT NOT NULL,
	protocol_number TEXT NOT NULL,
	content_hash    TEXT NOT NULL,
	created_at      TEXT NOT NULL,
	metadata        TEXT NOT NULL DEFAULT '{}',
	toc_pages       TEXT NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_protocols_hash ON protocols(content_hash);
CREATE TABLE IF NOT EXISTS sections (
	doc_id      TEXT NOT NULL REFERENCES protocols(doc_id) ON DELETE CASCADE,
	position    INTEGER NOT NULL,
	name        TEXT NOT NULL,
	found       INTEGER NOT NULL,
	content     TEXT NOT NULL,
	start_page  INTEGER,
	end_page    INTEGER,
	section_num TEXT,
	images      TEXT NOT NULL DEFAULT '[]',
	tables      TEXT NOT NULL DEFAULT '[]',
	PRIMARY KEY (doc_id, position)
);
`

// Store is a protocol.Store backed by SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer at a time.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=10000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Save inserts or replaces the document and all of its section rows.
func (s *Store) Save(ctx context.Context, doc *protocol.Document) error {
	meta, err := json.Marshal(nonNilMap(doc.Metadata))
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	tocPages := doc.TOCPages
	if tocPages == nil {
		tocPages = []int{}
	}
	toc, err := json.Marshal(tocPages)
	if err != nil {
		return fmt.Errorf("marshal toc pages: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM protocols WHERE doc_id = ?`, doc.DocID); err != nil {
		return wrap("replace protocol", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO protocols (doc_id, drug_name, protocol_source, protocol_number, content_hash, created_at, metadata, toc_pages)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.DocID, doc.DrugName, doc.Source, doc.Number, doc.ContentHash,
		doc.CreatedAt.UTC().Format(time.RFC3339Nano), string(meta), string(toc),
	)
	if err != nil {
		return wrap("insert protocol", err)
	}

	if doc.Sections != nil {
		for i, rec := range doc.Sections.Sections {
			if err := insertSection(ctx, tx, doc.DocID, i, rec); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return wrap("commit", err)
	}
	return nil
}

func insertSection(ctx context.Context, tx *sql.Tx, docID string, pos int, rec segment.Record) error {
	images, err := json.Marshal(nonNilItems(rec.Images))
	if err != nil {
		return fmt.Errorf("marshal images: %w", err)
	}
	tables, err := json.Marshal(nonNilItems(rec.Tables))
	if err != nil {
		return fmt.Errorf("marshal tables: %w", err)
	}

	var start, end sql.NullInt64
	var num sql.NullString
	if rec.Found {
		start = sql.NullInt64{Int64: int64(rec.StartPage), Valid: true}
		end = sql.NullInt64{Int64: int64(rec.EndPage), Valid: true}
		num = sql.NullString{String: rec.SectionNum, Valid: rec.SectionNum != ""}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sections (doc_id, position, name, found, content, start_page, end_page, section_num, images, tables)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		docID, pos, rec.Name, rec.Found, rec.Content, start, end, num, string(images), string(tables),
	)
	if err != nil {
		return wrap(fmt.Sprintf("insert section %q", rec.Name), err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, docID string) (*protocol.Document, error) {
	var (
		doc       protocol.Document
		createdAt string
		meta, toc string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT doc_id, drug_name, protocol_source, protocol_number, content_hash, created_at, metadata, toc_pages
		 FROM protocols WHERE doc_id = ?`, docID,
	).Scan(&doc.DocID, &doc.DrugName, &doc.Source, &doc.Number, &doc.ContentHash, &createdAt, &meta, &toc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, protocol.ErrNotFound
	}
	if err != nil {
		return nil, wrap("query protocol", err)
	}

	if doc.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if err := json.Unmarshal([]byte(meta), &doc.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	if len(doc.Metadata) == 0 {
		doc.Metadata = nil
	}
	if err := json.Unmarshal([]byte(toc), &doc.TOCPages); err != nil {
		return nil, fmt.Errorf("decode toc pages: %w", err)
	}

	sections, err := s.sections(ctx, docID)
	if err != nil {
		return nil, err
	}
	doc.Sections = &segment.Result{Sections: sections}
	return &doc, nil
}

func (s *Store) sections(ctx context.Context, docID string) ([]segment.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, found, content, start_page, end_page, section_num, images, tables
		 FROM sections WHERE doc_id = ? ORDER BY position`, docID)
	if err != nil {
		return nil, wrap("query sections", err)
	}
	defer rows.Close()

	var out []segment.Record
	for rows.Next() {
		var (
			rec            segment.Record
			start, end     sql.NullInt64
			num            sql.NullString
			images, tables string
		)
		if err := rows.Scan(&rec.Name, &rec.Found, &rec.Content, &start, &end, &num, &images, &tables); err != nil {
			return nil, fmt.Errorf("scan section: %w", err)
		}
		rec.StartPage, rec.EndPage = int(start.Int64), int(end.Int64)
		rec.SectionNum = num.String
		if err := json.Unmarshal([]byte(images), &rec.Images); err != nil {
			return nil, fmt.Errorf("decode images: %w", err)
		}
		if err := json.Unmarshal([]byte(tables), &rec.Tables); err != nil {
			return nil, fmt.Errorf("decode tables: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) FindByHash(ctx context.Context, hash string) (string, bool, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT doc_id FROM protocols WHERE content_hash = ? ORDER BY created_at LIMIT 1`, hash,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrap("query hash", err)
	}
	return id, true, nil
}

func (s *Store) Delete(ctx context.Context, docID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM protocols WHERE doc_id = ?`, docID)
	if err != nil {
		return wrap("delete protocol", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete protocol: %w", err)
	}
	if n == 0 {
		return protocol.ErrNotFound
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// BusyError marks a failure caused by a locked database.
type BusyError struct {
	Op  string
	Err error
}

func (e *BusyError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *BusyError) Unwrap() error { return e.Err }

// Retryable is always true; the lock is expected to clear.
func (e *BusyError) Retryable() bool { return true }

func wrap(op string, err error) error {
	msg := err.Error()
	if strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked") {
		return &BusyError{Op: op, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func nonNilMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func nonNilItems(items []doctree.Item) []doctree.Item {
	if items == nil {
		return []doctree.Item{}
	}
	return items
}
