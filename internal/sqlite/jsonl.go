package sqlite

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/mesh-intelligence/entitymeta/pkg/types"
)

// maxLineSize bounds one JSONL line. Metadata values are text columns and
// may be large JSON documents.
const maxLineSize = 16 << 20

// ImportResult counts the outcome of Import.
type ImportResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// Export writes the records matching q to w, one JSON object per line.
// It returns the number of records written.
func (b *Backend) Export(ctx context.Context, w io.Writer, q *types.Query) (int, error) {
	recs, err := b.Find(ctx, q)
	if err != nil {
		return 0, err
	}

	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	for _, rec := range recs {
		if err := enc.Encode(toJSON(rec)); err != nil {
			return 0, fmt.Errorf("encoding record %d: %w", rec.ID, err)
		}
	}
	if err := bw.Flush(); err != nil {
		return 0, fmt.Errorf("flushing export: %w", err)
	}
	return len(recs), nil
}

// ExportFile atomically writes the records matching q to path using the
// temp-file, fsync, rename pattern.
func (b *Backend) ExportFile(ctx context.Context, path string, q *types.Query) (int, error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".jsonl-*.tmp")
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	n, err := b.Export(ctx, tmp, q)
	if err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return 0, err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return 0, fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("renaming temp file: %w", err)
	}
	return n, nil
}

// Import reads JSONL records from r and upserts each by (owner, key)
// inside one transaction. Empty lines, malformed lines and records without
// a key or owner are skipped and counted. Unknown fields are ignored.
// Timestamps present in the file are kept for new records.
func (b *Backend) Import(ctx context.Context, r io.Reader) (res ImportResult, err error) {
	start := time.Now()
	log := b.logger()
	defer func() { log.LogDbOperation("import", time.Since(start), int64(res.Imported), err) }()

	db, unlock, err := b.acquire()
	if err != nil {
		return res, err
	}
	defer unlock()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("beginning import: %w", err)
	}
	defer tx.Rollback()

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var m metadataJSON
		if err := json.Unmarshal(line, &m); err != nil {
			res.Skipped++
			continue
		}
		rec, err := m.toRecord(b.timestamp())
		if err != nil {
			res.Skipped++
			continue
		}
		if b.uniqueKeys {
			_, err = upsertUnique(ctx, tx, rec, rec.CreatedAt, rec.UpdatedAt)
		} else {
			_, err = upsertScan(ctx, tx, rec, rec.CreatedAt, rec.UpdatedAt)
		}
		if err != nil {
			return ImportResult{}, err
		}
		res.Imported++
	}
	if err := sc.Err(); err != nil {
		return ImportResult{}, fmt.Errorf("scanning import: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return ImportResult{}, fmt.Errorf("committing import: %w", err)
	}
	return res, nil
}

// ImportFile opens path and calls Import.
func (b *Backend) ImportFile(ctx context.Context, path string) (ImportResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return ImportResult{}, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	return b.Import(ctx, f)
}
