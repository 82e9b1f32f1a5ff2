package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// Document is one stored document with its metadata.
type Document struct {
	ID   string
	Body map[string]any
	Rev  int64
}

// Get reads the document at (collection, id) and unmarshals its body
// into out. Returns ErrNotFound if the document does not exist.
func (s *Store) Get(ctx context.Context, collection, id string, out any) error {
	_, err := s.GetRev(ctx, collection, id, out)
	return err
}

// GetRev is Get plus the document's current revision, for callers that
// will follow up with a Replace precondition.
func (s *Store) GetRev(ctx context.Context, collection, id string, out any) (int64, error) {
	var body string
	var rev int64
	err := s.db.QueryRowContext(ctx, `
		SELECT body, rev FROM documents
		WHERE collection = ? AND id = ?
	`, collection, id).Scan(&body, &rev)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("get %s/%s: %w", collection, id, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}

	if out != nil {
		if err := json.Unmarshal([]byte(body), out); err != nil {
			return 0, fmt.Errorf("get %s/%s: unmarshal body: %w", collection, id, err)
		}
	}
	return rev, nil
}

// Exists reports whether a document exists at (collection, id).
func (s *Store) Exists(ctx context.Context, collection, id string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM documents
		WHERE collection = ? AND id = ?
	`, collection, id).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("exists %s/%s: %w", collection, id, err)
	}
	return count > 0, nil
}

// Find returns every document in a collection, ordered by id for
// deterministic iteration. Returns an empty slice (not nil) for an
// empty or unknown collection.
func (s *Store) Find(ctx context.Context, collection string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, body, rev FROM documents
		WHERE collection = ?
		ORDER BY id COLLATE BINARY ASC
	`, collection)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", collection, err)
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		var doc Document
		var body string
		if err := rows.Scan(&doc.ID, &body, &doc.Rev); err != nil {
			return nil, fmt.Errorf("find %s: scan: %w", collection, err)
		}
		if err := json.Unmarshal([]byte(body), &doc.Body); err != nil {
			return nil, fmt.Errorf("find %s: unmarshal %s: %w", collection, doc.ID, err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find %s: iterate: %w", collection, err)
	}

	return docs, nil
}
