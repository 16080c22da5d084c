package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/wro/internal/cache"
	"github.com/roach88/wro/internal/model"
)

// Load returns the stored entry for key, or (nil, nil) if there is none.
// Implements cache.Backing.
func (s *Store) Load(ctx context.Context, key cache.Key) (*cache.Entry, error) {
	var (
		inputHash    string
		computedAt   int64
		compression  string
		size         int
		artifact     []byte
		constituents []byte
		warnings     []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT input_hash, computed_at, compression, artifact_size, artifact, constituents, warnings
		FROM cache_entries
		WHERE key_hash = ?
	`, string(key.Hash())).Scan(&inputHash, &computedAt, &compression, &size, &artifact, &constituents, &warnings)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}

	data, err := decompress(artifact, Compression(compression), size)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	uris, err := unmarshalConstituents(constituents)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	ws, err := unmarshalWarnings(warnings)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}

	return &cache.Entry{
		Artifact:     data,
		InputHash:    model.Digest(inputHash),
		ComputedAt:   time.Unix(0, computedAt).UTC(),
		Constituents: uris,
		Warnings:     ws,
	}, nil
}

// EntrySummary describes a stored entry without its artifact.
type EntrySummary struct {
	Key          string    `json:"key"`
	Group        string    `json:"group"`
	Type         string    `json:"type"`
	InputHash    string    `json:"input_hash"`
	ComputedAt   time.Time `json:"computed_at"`
	Compression  string    `json:"compression"`
	Size         int       `json:"size"`
	StoredSize   int       `json:"stored_size"`
	Constituents int       `json:"constituents"`
}

// Entries lists stored entries ordered by group, then key.
func (s *Store) Entries(ctx context.Context) ([]EntrySummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, group_name, resource_type, input_hash, computed_at, compression,
		       artifact_size, length(artifact), constituents
		FROM cache_entries
		ORDER BY group_name ASC, key COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query cache entries: %w", err)
	}
	defer rows.Close()

	summaries := []EntrySummary{}
	for rows.Next() {
		var (
			sum          EntrySummary
			computedAt   int64
			constituents []byte
		)
		if err := rows.Scan(&sum.Key, &sum.Group, &sum.Type, &sum.InputHash, &computedAt,
			&sum.Compression, &sum.Size, &sum.StoredSize, &constituents); err != nil {
			return nil, fmt.Errorf("scan cache entry: %w", err)
		}
		uris, err := unmarshalConstituents(constituents)
		if err != nil {
			return nil, err
		}
		sum.ComputedAt = time.Unix(0, computedAt).UTC()
		sum.Constituents = len(uris)
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cache entries: %w", err)
	}
	return summaries, nil
}

// Reports returns build reports in write order. An empty group returns
// reports for every group; limit <= 0 returns all of them.
func (s *Store) Reports(ctx context.Context, group string, limit int) ([]Report, error) {
	query := `
		SELECT seq, request_id, key, group_name, cache_hit, input_hash, artifact_size,
		       duration_ns, started_at, error, warnings
		FROM build_reports
		WHERE (? = '' OR group_name = ?)
		ORDER BY seq ASC`
	args := []any{group, group}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	defer rows.Close()

	reports := []Report{}
	for rows.Next() {
		var (
			r         Report
			hit       int
			duration  int64
			startedAt int64
			warnings  []byte
		)
		if err := rows.Scan(&r.Seq, &r.RequestID, &r.Key, &r.Group, &hit, &r.InputHash,
			&r.ArtifactSize, &duration, &startedAt, &r.Error, &warnings); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		r.CacheHit = hit != 0
		r.Duration = time.Duration(duration)
		r.StartedAt = time.Unix(0, startedAt).UTC()
		if r.Warnings, err = unmarshalWarnings(warnings); err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reports: %w", err)
	}
	return reports, nil
}

// Stats summarizes the store contents.
type Stats struct {
	Entries     int   `json:"entries"`
	Bytes       int64 `json:"bytes"`
	StoredBytes int64 `json:"stored_bytes"`
	Reports     int   `json:"reports"`
}

// Stats returns counts and sizes of stored data.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(artifact_size), 0), COALESCE(SUM(length(artifact)), 0)
		FROM cache_entries
	`).Scan(&st.Entries, &st.Bytes, &st.StoredBytes)
	if err != nil {
		return Stats{}, fmt.Errorf("query entry stats: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM build_reports`).Scan(&st.Reports); err != nil {
		return Stats{}, fmt.Errorf("query report stats: %w", err)
	}
	return st, nil
}
