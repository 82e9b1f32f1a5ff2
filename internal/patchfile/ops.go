package patchfile

import (
	"context"
	"fmt"

	"github.com/roach88/docpatch/internal/docstore"
)

// Op is one document-store mutation inside a declarative patch.
// Ops execute in declaration order; each must be individually
// re-runnable since a patch may be retried after a partial failure.
type Op interface {
	apply(ctx context.Context, db *docstore.Store) error
	describe() string
}

// setOp sets a field on all documents matching the filter.
type setOp struct {
	collection string
	field      string
	value      any
	where      docstore.Filter
}

func (o *setOp) apply(ctx context.Context, db *docstore.Store) error {
	if _, err := db.SetField(ctx, o.collection, o.field, o.value, o.where); err != nil {
		return fmt.Errorf("%s: %w", o.describe(), err)
	}
	return nil
}

func (o *setOp) describe() string {
	return fmt.Sprintf("set %s.%s", o.collection, o.field)
}

// unsetOp removes a field from all documents matching the filter.
type unsetOp struct {
	collection string
	field      string
	where      docstore.Filter
}

func (o *unsetOp) apply(ctx context.Context, db *docstore.Store) error {
	if _, err := db.UnsetField(ctx, o.collection, o.field, o.where); err != nil {
		return fmt.Errorf("%s: %w", o.describe(), err)
	}
	return nil
}

func (o *unsetOp) describe() string {
	return fmt.Sprintf("unset %s.%s", o.collection, o.field)
}

// renameOp renames a field on all documents matching the filter.
type renameOp struct {
	collection string
	from       string
	to         string
	where      docstore.Filter
}

func (o *renameOp) apply(ctx context.Context, db *docstore.Store) error {
	if _, err := db.RenameField(ctx, o.collection, o.from, o.to, o.where); err != nil {
		return fmt.Errorf("%s: %w", o.describe(), err)
	}
	return nil
}

func (o *renameOp) describe() string {
	return fmt.Sprintf("rename %s.%s to %s", o.collection, o.from, o.to)
}

// insertOp creates one document. Put semantics keep the op re-runnable:
// re-inserting after a partial failure overwrites the same document.
type insertOp struct {
	collection string
	id         string
	doc        map[string]any
}

func (o *insertOp) apply(ctx context.Context, db *docstore.Store) error {
	if err := db.Put(ctx, o.collection, o.id, o.doc); err != nil {
		return fmt.Errorf("%s: %w", o.describe(), err)
	}
	return nil
}

func (o *insertOp) describe() string {
	return fmt.Sprintf("insert %s/%s", o.collection, o.id)
}

// deleteOp removes one document by id, or all documents matching a
// filter when no id is given. Deleting what is already gone is a no-op.
type deleteOp struct {
	collection string
	id         string
	where      docstore.Filter
}

func (o *deleteOp) apply(ctx context.Context, db *docstore.Store) error {
	if o.id != "" {
		if err := db.Delete(ctx, o.collection, o.id); err != nil {
			return fmt.Errorf("%s: %w", o.describe(), err)
		}
		return nil
	}
	if _, err := db.DeleteWhere(ctx, o.collection, o.where); err != nil {
		return fmt.Errorf("%s: %w", o.describe(), err)
	}
	return nil
}

func (o *deleteOp) describe() string {
	if o.id != "" {
		return fmt.Sprintf("delete %s/%s", o.collection, o.id)
	}
	return fmt.Sprintf("delete from %s", o.collection)
}

// runOps executes ops sequentially, stopping at the first failure.
func runOps(ctx context.Context, db *docstore.Store, ops []Op) error {
	for _, op := range ops {
		if err := op.apply(ctx, db); err != nil {
			return err
		}
	}
	return nil
}
