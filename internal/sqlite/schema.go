package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mesh-intelligence/entitymeta/pkg/types"
)

// Schema DDL for the polymorphic metadata table.
const (
	createMetaData = `CREATE TABLE IF NOT EXISTS meta_data (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    "key" TEXT NOT NULL,
    value TEXT,
    entity_id TEXT NOT NULL,
    entity_type TEXT NOT NULL,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);`

	idxMetaDataEntity = `CREATE INDEX IF NOT EXISTS meta_data_entity_type_entity_id_index
    ON meta_data(entity_type, entity_id);`

	idxMetaDataEntityKey = `CREATE UNIQUE INDEX IF NOT EXISTS meta_data_entity_key_unique
    ON meta_data(entity_type, entity_id, "key");`

	countDuplicateKeys = `SELECT COUNT(*) FROM (
    SELECT 1 FROM meta_data GROUP BY entity_type, entity_id, "key" HAVING COUNT(*) > 1
);`

	dropMetaDataEntityKey = `DROP INDEX IF EXISTS meta_data_entity_key_unique;`

	dropMetaData = `DROP TABLE IF EXISTS meta_data;`
)

// migrate creates the table and indexes idempotently. With uniqueKeys false
// the unique index is dropped if an earlier attach created it.
func migrate(ctx context.Context, db *sql.DB, uniqueKeys bool) error {
	stmts := []string{createMetaData, idxMetaDataEntity}
	if uniqueKeys {
		stmts = append(stmts, idxMetaDataEntityKey)
	} else {
		stmts = append(stmts, dropMetaDataEntityKey)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning migration: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range stmts {
		if stmt == idxMetaDataEntityKey {
			if err := checkDuplicateKeys(ctx, tx); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrating schema: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing migration: %w", err)
	}
	return nil
}

// checkDuplicateKeys fails with ErrDuplicateKeys when some (owner, key)
// pair holds more than one row, which the unique index cannot cover.
func checkDuplicateKeys(ctx context.Context, tx *sql.Tx) error {
	var n int
	if err := tx.QueryRowContext(ctx, countDuplicateKeys).Scan(&n); err != nil {
		return fmt.Errorf("checking duplicate keys: %w", err)
	}
	if n > 0 {
		return fmt.Errorf("%w: %d owner keys hold more than one row; set allow_duplicate_keys or remove the extra rows", types.ErrDuplicateKeys, n)
	}
	return nil
}

// rollback drops the table; its indexes go with it.
func rollback(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, dropMetaData); err != nil {
		return fmt.Errorf("dropping schema: %w", err)
	}
	return nil
}
