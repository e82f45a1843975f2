// Package migration implements the Migration Tool (C7): a one-shot,
// resumable conversion from the legacy file-per-entry cache layout
// into the Cache Store.
package migration

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/arborcache/engine/internal/async"
	"github.com/arborcache/engine/internal/cacheerr"
	"github.com/arborcache/engine/internal/cachestore"
	"github.com/arborcache/engine/internal/codec"
)

// Record is a self-describing legacy cache record (spec.md §4.7).
type Record struct {
	CacheKey      string `json:"cache_key"`
	OperationKind string `json:"operation_kind"`
	RepoPath      string `json:"repo_path"`
	FilePath      string `json:"file_path"`
	Provider      string `json:"provider"`
	Model         string `json:"model"`
	PromptHash    string `json:"prompt_hash"`
	SchemaVersion int64  `json:"schema_version"`
	Result        json.RawMessage `json:"result"`
	TokensUsed    *int64 `json:"tokens_used,omitempty"`
	FileSize      int64  `json:"file_size,omitempty"`
	FileHash      string `json:"file_hash,omitempty"`
}

// repoMeta is the optional meta.json carried per repo-hash directory.
type repoMeta struct {
	RepoPath string `json:"repo_path"`
}

// Failure describes one per-record migration failure.
type Failure struct {
	Path          string
	OperationKind string
	ErrorMessage  string
}

// Result is the outcome of a migration run (spec.md §4.7).
type Result struct {
	Total       int
	Migrated    int
	Failed      int
	SourceBytes int64
	DestBytes   int64
	BytesSaved  int64
	Failures    []Failure

	// VerificationFailed is non-nil only when verify was requested and
	// the post-run store row count didn't match Migrated.
	VerificationFailed error
}

// Store is the subset of *cachestore.Store the migration tool needs.
type Store interface {
	PutWithKey(ctx context.Context, key string, e cachestore.Entry) error
}

// RowCounter lets the caller ask the destination store how many rows
// it holds, for the optional verification step.
type RowCounter interface {
	RowCount(ctx context.Context) (int64, error)
}

// Options configures a migration run.
type Options struct {
	// Backup, if true, makes a recursive copy of source to a sibling
	// path before migrating (non-destructive; released on every exit
	// path, including cancellation).
	Backup bool
	// Verify, if true, compares the destination's row count against
	// Migrated after the run.
	Verify bool
}

// Tool runs migrations from a legacy source tree into a Store.
type Tool struct {
	store Store
	codec *codec.Codec
}

// New creates a Tool writing into store, compressing payloads with c.
func New(store Store, c *codec.Codec) *Tool {
	return &Tool{store: store, codec: c}
}

// Migrate discovers every legacy record under source, converts it into
// the destination store, and reports progress through sink. The run
// never aborts on a single bad record: failures accumulate in
// Result.Failures and the run continues (spec.md §4.7, §7
// MigrationRecordError).
func (t *Tool) Migrate(ctx context.Context, source string, opts Options, sink async.ProgressSink) (Result, error) {
	if sink == nil {
		sink = async.NoopSink
	}

	info, err := os.Stat(source)
	if err != nil || !info.IsDir() {
		return Result{}, cacheerr.SourceMissing("legacy migration source does not exist", err)
	}

	if opts.Backup {
		if err := backupTree(source); err != nil {
			return Result{}, err
		}
	}

	paths, err := discoverRecords(source)
	if err != nil {
		return Result{}, cacheerr.SourceMissing("failed to enumerate legacy records", err)
	}

	var result Result
	result.Total = len(paths)

	for _, path := range paths {
		select {
		case <-ctx.Done():
			return result, cacheerr.Cancelled("migration cancelled")
		default:
		}

		rec, meta, srcBytes, err := readRecord(source, path)
		kind := ""
		if rec != nil {
			kind = rec.OperationKind
		}
		if err != nil {
			result.Failed++
			result.Failures = append(result.Failures, Failure{Path: path, OperationKind: kind, ErrorMessage: err.Error()})
			sink(async.MigrationProgress{Total: result.Total, Migrated: result.Migrated, Failed: result.Failed, CurrentPath: path})
			continue
		}

		payload := t.codec.Encode(rec.Result)
		entry := cachestore.Entry{
			OperationKind: cachestore.OperationKind(rec.OperationKind),
			RepoPath:      repoPathOf(rec, meta),
			FilePath:      rec.FilePath,
			Provider:      rec.Provider,
			Model:         rec.Model,
			PromptHash:    rec.PromptHash,
			SchemaVersion: rec.SchemaVersion,
			Payload:       payload,
			InputSize:     rec.FileSize,
		}
		if rec.TokensUsed != nil {
			half := *rec.TokensUsed / 2
			entry.TokensInput = half
			entry.TokensOutput = *rec.TokensUsed - half
		}

		if err := t.store.PutWithKey(ctx, rec.CacheKey, entry); err != nil {
			result.Failed++
			result.Failures = append(result.Failures, Failure{Path: path, OperationKind: kind, ErrorMessage: err.Error()})
			sink(async.MigrationProgress{Total: result.Total, Migrated: result.Migrated, Failed: result.Failed, CurrentPath: path})
			continue
		}

		result.Migrated++
		result.SourceBytes += srcBytes
		result.DestBytes += int64(len(payload))
		sink(async.MigrationProgress{Total: result.Total, Migrated: result.Migrated, Failed: result.Failed, CurrentPath: path})
	}

	if result.SourceBytes > result.DestBytes {
		result.BytesSaved = result.SourceBytes - result.DestBytes
	}

	if opts.Verify {
		if counter, ok := t.store.(RowCounter); ok {
			n, err := counter.RowCount(ctx)
			if err != nil {
				result.VerificationFailed = cacheerr.VerificationFailed("could not read destination row count", err)
			} else if n != int64(result.Migrated) {
				result.VerificationFailed = cacheerr.VerificationFailed("destination row count does not match migrated count", nil).
					WithDetail("expected", itoa(result.Migrated)).WithDetail("actual", itoa(int(n)))
			}
		}
	}

	return result, nil
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// discoverRecords walks <source>/<repo-hash>/<kind>/<path-hash>.json,
// returning paths relative to source.
func discoverRecords(source string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(source, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.EqualFold(d.Name(), "meta.json") {
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}
		rel, err := filepath.Rel(source, path)
		if err != nil {
			return err
		}
		paths = append(paths, rel)
		return nil
	})
	return paths, err
}

func readRecord(source, relPath string) (*Record, *repoMeta, int64, error) {
	full := filepath.Join(source, relPath)
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, nil, 0, cacheerr.MigrationRecordError("cannot read legacy record file", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, nil, 0, cacheerr.MigrationRecordError("legacy record is not valid JSON", err)
	}
	if rec.CacheKey == "" {
		return &rec, nil, 0, cacheerr.MigrationRecordError("legacy record missing cache_key", nil)
	}

	// repo-hash directory is the first path segment; its meta.json (if
	// present) carries the canonical repo path.
	var meta *repoMeta
	if segs := strings.Split(filepath.ToSlash(relPath), "/"); len(segs) > 0 {
		metaPath := filepath.Join(source, segs[0], "meta.json")
		if mdata, err := os.ReadFile(metaPath); err == nil {
			var m repoMeta
			if json.Unmarshal(mdata, &m) == nil {
				meta = &m
			}
		}
	}

	return &rec, meta, int64(len(data)), nil
}

func repoPathOf(rec *Record, meta *repoMeta) string {
	if rec.RepoPath != "" {
		return rec.RepoPath
	}
	if meta != nil {
		return meta.RepoPath
	}
	return ""
}

// backupTree performs a non-destructive recursive copy of source to a
// sibling "<source>.backup" path, opening and releasing file handles
// on every exit path including cancellation (spec.md §9 "Backup copy
// in migration").
func backupTree(source string) error {
	dest := source + ".backup"
	return filepath.WalkDir(source, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(source, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
