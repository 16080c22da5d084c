package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/wro/internal/cache"
	"github.com/roach88/wro/internal/reqctx"
)

// Save stores e under key, replacing any previous entry.
// Implements cache.Backing.
func (s *Store) Save(ctx context.Context, key cache.Key, e *cache.Entry) error {
	artifact, used, err := compress(e.Artifact, s.compression)
	if err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	constituents, err := marshalConstituents(e.Constituents)
	if err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	warnings, err := marshalWarnings(e.Warnings)
	if err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cache_entries
		(key_hash, key, group_name, resource_type, minimize, variant,
		 input_hash, computed_at, compression, artifact_size, artifact, constituents, warnings)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key_hash) DO UPDATE SET
			input_hash    = excluded.input_hash,
			computed_at   = excluded.computed_at,
			compression   = excluded.compression,
			artifact_size = excluded.artifact_size,
			artifact      = excluded.artifact,
			constituents  = excluded.constituents,
			warnings      = excluded.warnings
	`,
		string(key.Hash()),
		key.String(),
		key.Group,
		string(key.Type),
		boolToInt(key.Minimize),
		key.Variant,
		string(e.InputHash),
		e.ComputedAt.UnixNano(),
		string(used),
		len(e.Artifact),
		artifact,
		constituents,
		warnings,
	)
	if err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Delete removes the entry for key. Deleting an unknown key is not an
// error. Implements cache.Backing.
func (s *Store) Delete(ctx context.Context, key cache.Key) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key_hash = ?`, string(key.Hash())); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Purge removes every cache entry. Build reports are kept.
// Implements cache.Backing.
func (s *Store) Purge(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries`); err != nil {
		return fmt.Errorf("purge cache entries: %w", err)
	}
	return nil
}

// Report is one pipeline invocation.
type Report struct {
	RequestID    string           `json:"request_id"`
	Key          string           `json:"key"`
	Group        string           `json:"group"`
	CacheHit     bool             `json:"cache_hit"`
	InputHash    string           `json:"input_hash,omitempty"`
	ArtifactSize int              `json:"artifact_size"`
	Duration     time.Duration    `json:"duration_ns"`
	StartedAt    time.Time        `json:"started_at"`
	Error        string           `json:"error,omitempty"`
	Warnings     []reqctx.Warning `json:"warnings,omitempty"`

	// Seq is assigned by the store; zero on write.
	Seq int64 `json:"seq"`
}

// WriteReport appends a build report. Writing the same request id twice
// is ignored.
func (s *Store) WriteReport(ctx context.Context, r Report) error {
	warnings, err := marshalWarnings(r.Warnings)
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO build_reports
		(request_id, key, group_name, cache_hit, input_hash, artifact_size,
		 duration_ns, started_at, error, warnings)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(request_id) DO NOTHING
	`,
		r.RequestID,
		r.Key,
		r.Group,
		boolToInt(r.CacheHit),
		r.InputHash,
		r.ArtifactSize,
		int64(r.Duration),
		r.StartedAt.UnixNano(),
		r.Error,
		warnings,
	)
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
