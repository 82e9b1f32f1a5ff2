package docstore

import (
	"context"
	"encoding/json"
	"fmt"
)

// Insert creates the document at (collection, id). Returns ErrExists
// if a document is already stored under that key; the existing
// document is left untouched.
func (s *Store) Insert(ctx context.Context, collection, id string, doc any) error {
	body, err := marshalBody(doc)
	if err != nil {
		return fmt.Errorf("insert %s/%s: %w", collection, id, err)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, body, rev)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(collection, id) DO NOTHING
	`, collection, id, body)
	if err != nil {
		return fmt.Errorf("insert %s/%s: %w", collection, id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert %s/%s: rows affected: %w", collection, id, err)
	}
	if affected == 0 {
		return fmt.Errorf("insert %s/%s: %w", collection, id, ErrExists)
	}
	return nil
}

// Put writes the document at (collection, id), creating or replacing
// it unconditionally. The document's rev is bumped on replacement.
func (s *Store) Put(ctx context.Context, collection, id string, doc any) error {
	body, err := marshalBody(doc)
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", collection, id, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, body, rev)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(collection, id) DO UPDATE SET
			body = excluded.body,
			rev = documents.rev + 1
	`, collection, id, body)
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", collection, id, err)
	}
	return nil
}

// Replace writes the document at (collection, id) only if its current
// rev equals ifRev (compare-and-swap). Returns the new rev on success,
// ErrConflict if the rev moved, ErrNotFound if the document is absent.
func (s *Store) Replace(ctx context.Context, collection, id string, doc any, ifRev int64) (int64, error) {
	body, err := marshalBody(doc)
	if err != nil {
		return 0, fmt.Errorf("replace %s/%s: %w", collection, id, err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE documents
		SET body = ?, rev = rev + 1
		WHERE collection = ? AND id = ? AND rev = ?
	`, body, collection, id, ifRev)
	if err != nil {
		return 0, fmt.Errorf("replace %s/%s: %w", collection, id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("replace %s/%s: rows affected: %w", collection, id, err)
	}
	if affected == 0 {
		// Distinguish a moved rev from a missing document.
		exists, err := s.Exists(ctx, collection, id)
		if err != nil {
			return 0, err
		}
		if !exists {
			return 0, fmt.Errorf("replace %s/%s: %w", collection, id, ErrNotFound)
		}
		return 0, fmt.Errorf("replace %s/%s: %w", collection, id, ErrConflict)
	}
	return ifRev + 1, nil
}

// Delete removes the document at (collection, id). Deleting a missing
// document is a no-op, not an error.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM documents WHERE collection = ? AND id = ?
	`, collection, id)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return nil
}

// marshalBody converts a document to its stored JSON TEXT form.
func marshalBody(doc any) (string, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshal body: %w", err)
	}
	return string(data), nil
}
