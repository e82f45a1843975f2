package cachestore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/arborcache/engine/internal/cacheerr"
)

// schemaVersion is the on-disk schema version of this store's own
// tables (distinct from CacheEntry.SchemaVersion, which tags the
// payload shape of an individual cached result).
const schemaVersion = 1

// Store is a durable, single-writer, many-reader key->entry index
// backed by SQLite (pure-Go driver, WAL mode), matching spec.md §6's
// logical schema.
type Store struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool

	hits   atomicCounter
	misses atomicCounter
}

// Open creates or opens the durable store at path. An empty path opens
// an in-memory store, useful for tests.
func Open(path string) (*Store, error) {
	dsn := ":memory:"
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, cacheerr.StoreUnavailable("cannot create cache store directory", err)
		}
		if err := validateIntegrity(path); err != nil {
			slog.Warn("cachestore_corrupted", slog.String("path", path), slog.String("error", err.Error()))
			_ = os.Remove(path)
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")
		}
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, cacheerr.StoreUnavailable("cannot open cache store", err)
	}
	// Single-writer discipline (spec.md §5): one connection serializes
	// every write through SQLite's own locking.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, cacheerr.StoreUnavailable("cannot set store pragma", err)
		}
	}

	s := &Store{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func validateIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return err
	}
	defer db.Close()
	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return err
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_meta (version INTEGER PRIMARY KEY);

	CREATE TABLE IF NOT EXISTS cache_entries (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		cache_key        TEXT NOT NULL UNIQUE,
		operation_kind   TEXT NOT NULL,
		repo_path        TEXT NOT NULL,
		file_path        TEXT NOT NULL,
		content_hash     TEXT NOT NULL,
		provider         TEXT NOT NULL,
		model            TEXT NOT NULL,
		prompt_hash      TEXT NOT NULL,
		schema_version   INTEGER NOT NULL,
		payload          BLOB NOT NULL,
		tokens_input     INTEGER NOT NULL DEFAULT 0,
		tokens_output    INTEGER NOT NULL DEFAULT 0,
		tokens_cached    INTEGER NOT NULL DEFAULT 0,
		input_size       INTEGER NOT NULL DEFAULT 0,
		payload_size     INTEGER NOT NULL DEFAULT 0,
		created_at       TEXT NOT NULL,
		last_accessed_at TEXT NOT NULL,
		access_count     INTEGER NOT NULL DEFAULT 0,
		quarantined      INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_cache_entries_operation_kind ON cache_entries(operation_kind);
	CREATE INDEX IF NOT EXISTS idx_cache_entries_repo_path ON cache_entries(repo_path);
	CREATE INDEX IF NOT EXISTS idx_cache_entries_model ON cache_entries(model);
	CREATE INDEX IF NOT EXISTS idx_cache_entries_created_at ON cache_entries(created_at);
	CREATE INDEX IF NOT EXISTS idx_cache_entries_last_accessed_at ON cache_entries(last_accessed_at);

	CREATE TABLE IF NOT EXISTS aggregate_stats (
		id         INTEGER PRIMARY KEY CHECK (id = 1),
		hits       INTEGER NOT NULL DEFAULT 0,
		misses     INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL
	);
	INSERT OR IGNORE INTO aggregate_stats (id, hits, misses, updated_at) VALUES (1, 0, 0, datetime('now'));

	INSERT OR IGNORE INTO schema_meta (version) VALUES (1);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return cacheerr.StoreUnavailable("cannot initialize cache store schema", err)
	}

	var v int
	if err := s.db.QueryRow("SELECT version FROM schema_meta LIMIT 1").Scan(&v); err != nil {
		return cacheerr.StoreUnavailable("cannot read schema version", err)
	}
	if v != schemaVersion {
		return cacheerr.SchemaMismatch(
			fmt.Sprintf("cache store schema version %d incompatible with code version %d", v, schemaVersion), nil)
	}
	return nil
}

const timeLayout = time.RFC3339Nano

// Put inserts or replaces the row for entry.CacheKey. Replace is
// idempotent: an identical payload produces the same stored bytes.
func (s *Store) Put(ctx context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return cacheerr.StoreUnavailable("cache store is closed", nil)
	}

	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.LastAccessedAt.IsZero() {
		e.LastAccessedAt = e.CreatedAt
	}
	e.PayloadSize = int64(len(e.Payload))

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_entries (
			cache_key, operation_kind, repo_path, file_path, content_hash,
			provider, model, prompt_hash, schema_version, payload,
			tokens_input, tokens_output, tokens_cached, input_size, payload_size,
			created_at, last_accessed_at, access_count, quarantined
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0)
		ON CONFLICT(cache_key) DO UPDATE SET
			operation_kind = excluded.operation_kind,
			repo_path = excluded.repo_path,
			file_path = excluded.file_path,
			content_hash = excluded.content_hash,
			provider = excluded.provider,
			model = excluded.model,
			prompt_hash = excluded.prompt_hash,
			schema_version = excluded.schema_version,
			payload = excluded.payload,
			tokens_input = excluded.tokens_input,
			tokens_output = excluded.tokens_output,
			tokens_cached = excluded.tokens_cached,
			input_size = excluded.input_size,
			payload_size = excluded.payload_size,
			last_accessed_at = excluded.last_accessed_at,
			quarantined = 0
	`,
		e.CacheKey, string(e.OperationKind), e.RepoPath, e.FilePath, e.ContentHash,
		e.Provider, e.Model, e.PromptHash, e.SchemaVersion, e.Payload,
		e.TokensInput, e.TokensOutput, e.TokensCached, e.InputSize, e.PayloadSize,
		e.CreatedAt.Format(timeLayout), e.LastAccessedAt.Format(timeLayout),
	)
	if err != nil {
		return cacheerr.StoreUnavailable("cache store put failed", err)
	}
	return nil
}

// PutWithKey stores an entry using a pre-computed cache key without
// recomputing the fingerprint. Used only by the migration tool, where
// the original content is unavailable to rehash; the caller is
// responsible for key correctness (spec.md §4.5).
func (s *Store) PutWithKey(ctx context.Context, key string, e Entry) error {
	e.CacheKey = key
	return s.Put(ctx, e)
}

// Get returns the entry for key, updating last_accessed_at and
// access_count atomically with the read, and incrementing the
// aggregate hit/miss counters. A quarantined entry is treated as a
// miss to the caller but still counted in size-based stats.
func (s *Store) Get(ctx context.Context, key string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, cacheerr.StoreUnavailable("cache store is closed", nil)
	}

	e, quarantined, err := s.scanByKey(ctx, key)
	if err != nil {
		if err == sql.ErrNoRows {
			s.misses.add(1)
			_ = s.flushStat(ctx, "misses")
			return nil, nil
		}
		return nil, cacheerr.StoreUnavailable("cache store get failed", err)
	}
	if quarantined {
		s.misses.add(1)
		_ = s.flushStat(ctx, "misses")
		return nil, nil
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		UPDATE cache_entries
		SET last_accessed_at = ?, access_count = access_count + 1
		WHERE cache_key = ?`, now.Format(timeLayout), key)
	if err != nil {
		return nil, cacheerr.StoreUnavailable("cache store access-time update failed", err)
	}
	e.LastAccessedAt = now
	e.AccessCount++

	s.hits.add(1)
	_ = s.flushStat(ctx, "hits")
	return e, nil
}

func (s *Store) scanByKey(ctx context.Context, key string) (*Entry, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT cache_key, operation_kind, repo_path, file_path, content_hash,
			provider, model, prompt_hash, schema_version, payload,
			tokens_input, tokens_output, tokens_cached, input_size, payload_size,
			created_at, last_accessed_at, access_count, quarantined
		FROM cache_entries WHERE cache_key = ?`, key)
	return scanRow(row)
}

func scanRow(row *sql.Row) (*Entry, bool, error) {
	var e Entry
	var op string
	var createdAt, lastAccessedAt string
	var quarantined int
	err := row.Scan(&e.CacheKey, &op, &e.RepoPath, &e.FilePath, &e.ContentHash,
		&e.Provider, &e.Model, &e.PromptHash, &e.SchemaVersion, &e.Payload,
		&e.TokensInput, &e.TokensOutput, &e.TokensCached, &e.InputSize, &e.PayloadSize,
		&createdAt, &lastAccessedAt, &e.AccessCount, &quarantined)
	if err != nil {
		return nil, false, err
	}
	e.OperationKind = OperationKind(op)
	e.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	e.LastAccessedAt, _ = time.Parse(timeLayout, lastAccessedAt)
	e.Quarantined = quarantined != 0
	return &e, e.Quarantined, nil
}

func (s *Store) flushStat(ctx context.Context, column string) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`UPDATE aggregate_stats SET %s = %s + 1, updated_at = ? WHERE id = 1`, column, column),
		time.Now().UTC().Format(timeLayout))
	return err
}

// Quarantine marks an entry unreadable without removing it; its size
// still contributes to AggregateStats until explicitly deleted.
func (s *Store) Quarantine(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `UPDATE cache_entries SET quarantined = 1 WHERE cache_key = ?`, key)
	if err != nil {
		return cacheerr.StoreUnavailable("cache store quarantine failed", err)
	}
	return nil
}

// DeleteByKind removes every entry with the given operation kind.
func (s *Store) DeleteByKind(ctx context.Context, kind OperationKind) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE operation_kind = ?`, string(kind))
	if err != nil {
		return 0, cacheerr.StoreUnavailable("delete_by_kind failed", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// DeleteByRepo removes every entry for the given repo path.
func (s *Store) DeleteByRepo(ctx context.Context, repoPath string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE repo_path = ?`, repoPath)
	if err != nil {
		return 0, cacheerr.StoreUnavailable("delete_by_repo failed", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Clear removes every entry in the store (scope=all).
func (s *Store) Clear(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries`)
	if err != nil {
		return 0, cacheerr.StoreUnavailable("clear failed", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// DeleteKey removes a single row by cache key; used by the eviction
// engine to commit one victim at a time.
func (s *Store) DeleteKey(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE cache_key = ?`, key)
	if err != nil {
		return cacheerr.StoreUnavailable("delete failed", err)
	}
	return nil
}

// EntriesForRepo returns a page of entries for repoPath ordered by
// created_at descending.
func (s *Store) EntriesForRepo(ctx context.Context, repoPath string, limit, offset int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT cache_key, operation_kind, repo_path, file_path, content_hash,
			provider, model, prompt_hash, schema_version, payload,
			tokens_input, tokens_output, tokens_cached, input_size, payload_size,
			created_at, last_accessed_at, access_count, quarantined
		FROM cache_entries WHERE repo_path = ?
		ORDER BY created_at DESC LIMIT ? OFFSET ?`, repoPath, limit, offset)
	if err != nil {
		return nil, cacheerr.StoreUnavailable("entries_for_repo failed", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var op, createdAt, lastAccessedAt string
		var quarantined int
		if err := rows.Scan(&e.CacheKey, &op, &e.RepoPath, &e.FilePath, &e.ContentHash,
			&e.Provider, &e.Model, &e.PromptHash, &e.SchemaVersion, &e.Payload,
			&e.TokensInput, &e.TokensOutput, &e.TokensCached, &e.InputSize, &e.PayloadSize,
			&createdAt, &lastAccessedAt, &e.AccessCount, &quarantined); err != nil {
			return nil, cacheerr.StoreUnavailable("entries_for_repo scan failed", err)
		}
		e.OperationKind = OperationKind(op)
		e.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		e.LastAccessedAt, _ = time.Parse(timeLayout, lastAccessedAt)
		e.Quarantined = quarantined != 0
		out = append(out, e)
	}
	return out, rows.Err()
}

// Stats computes AggregateStats using grouped SQL aggregations so the
// call stays sub-linear in row count relative to a full table scan in
// application code.
func (s *Store) Stats(ctx context.Context) (AggregateStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats AggregateStats
	stats.ByOperation = make(map[OperationKind]OperationBreakdown)
	stats.ByModel = make(map[string]OperationBreakdown)

	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(payload_size),0), COALESCE(SUM(tokens_input+tokens_output+tokens_cached),0)
		FROM cache_entries`)
	if err := row.Scan(&stats.TotalEntries, &stats.TotalBytes, &stats.TotalTokens); err != nil {
		return stats, cacheerr.StoreUnavailable("stats aggregation failed", err)
	}

	opRows, err := s.db.QueryContext(ctx, `
		SELECT operation_kind, COUNT(*), COALESCE(SUM(payload_size),0), COALESCE(SUM(tokens_input+tokens_output+tokens_cached),0)
		FROM cache_entries GROUP BY operation_kind`)
	if err != nil {
		return stats, cacheerr.StoreUnavailable("stats by-operation aggregation failed", err)
	}
	defer opRows.Close()
	for opRows.Next() {
		var kind string
		var b OperationBreakdown
		if err := opRows.Scan(&kind, &b.Entries, &b.Bytes, &b.Tokens); err != nil {
			return stats, cacheerr.StoreUnavailable("stats by-operation scan failed", err)
		}
		stats.ByOperation[OperationKind(kind)] = b
	}

	modelRows, err := s.db.QueryContext(ctx, `
		SELECT model, COUNT(*), COALESCE(SUM(payload_size),0), COALESCE(SUM(tokens_input+tokens_output+tokens_cached),0)
		FROM cache_entries GROUP BY model`)
	if err != nil {
		return stats, cacheerr.StoreUnavailable("stats by-model aggregation failed", err)
	}
	defer modelRows.Close()
	for modelRows.Next() {
		var model string
		var b OperationBreakdown
		if err := modelRows.Scan(&model, &b.Entries, &b.Bytes, &b.Tokens); err != nil {
			return stats, cacheerr.StoreUnavailable("stats by-model scan failed", err)
		}
		stats.ByModel[model] = b
	}

	var hits, misses int64
	if err := s.db.QueryRowContext(ctx, `SELECT hits, misses FROM aggregate_stats WHERE id = 1`).Scan(&hits, &misses); err != nil {
		return stats, cacheerr.StoreUnavailable("stats hit/miss read failed", err)
	}
	stats.Hits = hits
	stats.Misses = misses

	return stats, nil
}

// VictimCandidate is a minimal row projection the eviction engine
// needs to rank victims without pulling full payloads into memory.
type VictimCandidate struct {
	CacheKey       string
	PayloadSize    int64
	CreatedAt      time.Time
	LastAccessedAt time.Time
	TotalTokens    int64
}

// ListForEviction returns every row's eviction-relevant projection,
// ordered by policy is left to the eviction engine.
func (s *Store) ListForEviction(ctx context.Context) ([]VictimCandidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT cache_key, payload_size, created_at, last_accessed_at, tokens_input + tokens_output
		FROM cache_entries`)
	if err != nil {
		return nil, cacheerr.StoreUnavailable("list_for_eviction failed", err)
	}
	defer rows.Close()

	var out []VictimCandidate
	for rows.Next() {
		var v VictimCandidate
		var createdAt, lastAccessedAt string
		if err := rows.Scan(&v.CacheKey, &v.PayloadSize, &createdAt, &lastAccessedAt, &v.TotalTokens); err != nil {
			return nil, cacheerr.StoreUnavailable("list_for_eviction scan failed", err)
		}
		v.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		v.LastAccessedAt, _ = time.Parse(timeLayout, lastAccessedAt)
		out = append(out, v)
	}
	return out, rows.Err()
}

// TotalPayloadBytes returns the current sum of payload_size across all
// rows, used by the eviction engine to decide whether it has work to do.
func (s *Store) TotalPayloadBytes(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(payload_size),0) FROM cache_entries`).Scan(&total); err != nil {
		return 0, cacheerr.StoreUnavailable("total_payload_bytes failed", err)
	}
	return total, nil
}

// RowCount returns the current number of cache_entries rows, used by
// the migration tool's optional post-run verification step.
func (s *Store) RowCount(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache_entries`).Scan(&n); err != nil {
		return 0, cacheerr.StoreUnavailable("row_count failed", err)
	}
	return n, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// atomicCounter is an in-process hit/miss counter; the mutex already
// held by callers makes a plain int sufficient. It does not defer the
// durable write: Get also writes every hit or miss to the
// aggregate_stats row through flushStat on the same call, and no
// batching of those writes is done.
type atomicCounter struct{ n int64 }

func (c *atomicCounter) add(d int64) { c.n += d }
