package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"reflect"
)

// Filter is an equality match on top-level document fields.
// A nil or empty Filter matches every document.
type Filter map[string]any

// Matches reports whether a document body satisfies the filter.
// Comparison goes through a JSON round-trip so that filter values
// authored as Go ints compare equal to stored float64 numbers.
func (f Filter) Matches(body map[string]any) bool {
	for field, want := range f {
		got, ok := body[field]
		if !ok {
			return false
		}
		if !jsonEqual(got, want) {
			return false
		}
	}
	return true
}

// SetField sets field to value on every document in the collection
// matching the filter. Returns the number of documents changed.
func (s *Store) SetField(ctx context.Context, collection, field string, value any, where Filter) (int, error) {
	return s.mutate(ctx, collection, where, func(body map[string]any) bool {
		if jsonEqual(body[field], value) {
			return false
		}
		body[field] = value
		return true
	})
}

// UnsetField removes field from every matching document in the
// collection. Documents without the field are untouched.
func (s *Store) UnsetField(ctx context.Context, collection, field string, where Filter) (int, error) {
	return s.mutate(ctx, collection, where, func(body map[string]any) bool {
		if _, ok := body[field]; !ok {
			return false
		}
		delete(body, field)
		return true
	})
}

// RenameField moves the value of from to to on every matching document
// that has the from field. An existing to field is overwritten.
func (s *Store) RenameField(ctx context.Context, collection, from, to string, where Filter) (int, error) {
	return s.mutate(ctx, collection, where, func(body map[string]any) bool {
		value, ok := body[from]
		if !ok {
			return false
		}
		delete(body, from)
		body[to] = value
		return true
	})
}

// DeleteWhere removes every document in the collection matching the
// filter. Returns the number of documents removed.
func (s *Store) DeleteWhere(ctx context.Context, collection string, where Filter) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("delete where %s: begin tx: %w", collection, err)
	}
	defer tx.Rollback() // No-op if committed

	docs, err := findTx(ctx, tx, collection)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, doc := range docs {
		if !where.Matches(doc.Body) {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM documents WHERE collection = ? AND id = ?
		`, collection, doc.ID); err != nil {
			return 0, fmt.Errorf("delete where %s/%s: %w", collection, doc.ID, err)
		}
		deleted++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("delete where %s: commit: %w", collection, err)
	}
	return deleted, nil
}

// mutate applies fn to every matching document body and writes back
// the ones fn reports as changed, all in one transaction.
func (s *Store) mutate(ctx context.Context, collection string, where Filter, fn func(map[string]any) bool) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("mutate %s: begin tx: %w", collection, err)
	}
	defer tx.Rollback()

	docs, err := findTx(ctx, tx, collection)
	if err != nil {
		return 0, err
	}

	changed := 0
	for _, doc := range docs {
		if !where.Matches(doc.Body) {
			continue
		}
		if !fn(doc.Body) {
			continue
		}
		body, err := marshalBody(doc.Body)
		if err != nil {
			return 0, fmt.Errorf("mutate %s/%s: %w", collection, doc.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE documents SET body = ?, rev = rev + 1
			WHERE collection = ? AND id = ?
		`, body, collection, doc.ID); err != nil {
			return 0, fmt.Errorf("mutate %s/%s: %w", collection, doc.ID, err)
		}
		changed++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("mutate %s: commit: %w", collection, err)
	}
	return changed, nil
}

// findTx is Find inside an open transaction.
func findTx(ctx context.Context, tx *sql.Tx, collection string) ([]Document, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, body, rev FROM documents
		WHERE collection = ?
		ORDER BY id COLLATE BINARY ASC
	`, collection)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", collection, err)
	}
	defer rows.Close()

	var docs []Document
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

// jsonEqual compares two values after normalizing both through a JSON
// round-trip, so int(1) and float64(1) compare equal.
func jsonEqual(a, b any) bool {
	na, err := jsonNormalize(a)
	if err != nil {
		return false
	}
	nb, err := jsonNormalize(b)
	if err != nil {
		return false
	}
	return reflect.DeepEqual(na, nb)
}

func jsonNormalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
