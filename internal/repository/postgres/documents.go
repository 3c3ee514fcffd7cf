package postgres

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/splax/teamroster/internal/docpath"
)

// Every leaf of the tree is one row: (path, jsonb value). Subtrees are addressed by prefix.

// GetNode assembles the subtree rooted at path.
func (r *Repository) GetNode(ctx context.Context, path string) (any, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if path == "" {
		rows, err = r.pool.Query(ctx, `SELECT path, value FROM documents`)
	} else {
		const query = `SELECT path, value FROM documents WHERE path = $1 OR starts_with(path, $2)`
		rows, err = r.pool.Query(ctx, query, path, path+"/")
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	leaves := make([]docpath.Leaf, 0)
	for rows.Next() {
		var (
			p   string
			raw []byte
		)
		if err := rows.Scan(&p, &raw); err != nil {
			return nil, err
		}
		value, err := decodeValue(raw)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", p, err)
		}
		leaves = append(leaves, docpath.Leaf{Path: p, Value: value})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return docpath.Assemble(path, leaves), nil
}

// SetNode replaces the subtree at path inside one transaction.
func (r *Repository) SetNode(ctx context.Context, path string, value any) error {
	leaves, err := docpath.Flatten(path, value)
	if err != nil {
		return err
	}
	return r.inTx(ctx, func(tx pgx.Tx) error {
		return replaceSubtree(ctx, tx, path, leaves)
	})
}

// UpdateNode applies every patch target inside one transaction.
func (r *Repository) UpdateNode(ctx context.Context, path string, patch map[string]any) error {
	targets, err := docpath.PatchTargets(path, patch)
	if err != nil {
		return err
	}
	flattened := make([][]docpath.Leaf, len(targets))
	for i, target := range targets {
		leaves, err := docpath.Flatten(target.Path, target.Value)
		if err != nil {
			return err
		}
		flattened[i] = leaves
	}
	return r.inTx(ctx, func(tx pgx.Tx) error {
		for i, target := range targets {
			if err := replaceSubtree(ctx, tx, target.Path, flattened[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// RemoveNode deletes the subtree at path.
func (r *Repository) RemoveNode(ctx context.Context, path string) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		return replaceSubtree(ctx, tx, path, nil)
	})
}

func (r *Repository) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func replaceSubtree(ctx context.Context, tx pgx.Tx, path string, leaves []docpath.Leaf) error {
	if path == "" {
		if _, err := tx.Exec(ctx, `DELETE FROM documents`); err != nil {
			return err
		}
	} else {
		const deleteSubtree = `DELETE FROM documents WHERE path = $1 OR starts_with(path, $2)`
		if _, err := tx.Exec(ctx, deleteSubtree, path, path+"/"); err != nil {
			return err
		}
	}
	if ancestors := docpath.Ancestors(path); len(ancestors) > 0 {
		if _, err := tx.Exec(ctx, `DELETE FROM documents WHERE path = ANY($1)`, ancestors); err != nil {
			return err
		}
	}
	if len(leaves) == 0 {
		return nil
	}

	const insertLeaf = `INSERT INTO documents (path, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (path) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`
	batch := &pgx.Batch{}
	for _, leaf := range leaves {
		raw, err := json.Marshal(leaf.Value)
		if err != nil {
			return fmt.Errorf("encode %s: %w", leaf.Path, err)
		}
		batch.Queue(insertLeaf, leaf.Path, raw)
	}
	br := tx.SendBatch(ctx, batch)
	for range leaves {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return err
		}
	}
	return br.Close()
}

func decodeValue(raw []byte) (any, error) {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}
	return value, nil
}
