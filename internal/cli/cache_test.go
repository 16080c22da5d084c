package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// builtCache builds the site twice into a fresh cache database.
func builtCache(t *testing.T) (*site, string) {
	t.Helper()
	s := newSite(t)
	db := filepath.Join(s.dir, "cache.db")
	for i := 0; i < 2; i++ {
		_, stderr, err := execute(t, "build", s.model, "--root", s.web, "--out", s.out, "--cache-db", db)
		require.NoError(t, err, stderr)
	}
	return s, db
}

func TestCache_RequiresDatabase(t *testing.T) {
	for _, sub := range []string{"stats", "ls", "reports", "purge"} {
		t.Run(sub, func(t *testing.T) {
			_, _, err := execute(t, "cache", sub)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), "no cache database configured")
		})
	}
}

func TestCache_Stats(t *testing.T) {
	_, db := builtCache(t)

	stdout, _, err := execute(t, "cache", "stats", "--cache-db", db, "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Data CacheStatsResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, 3, resp.Data.Entries)
	assert.Equal(t, 6, resp.Data.Reports)
	assert.Equal(t, int64(len(mainCSS)+len(mainJS)+len(adminCSS)), resp.Data.Bytes)
}

func TestCache_List(t *testing.T) {
	_, db := builtCache(t)

	stdout, _, err := execute(t, "cache", "ls", "--cache-db", db, "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Data CacheListResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	require.Len(t, resp.Data.Entries, 3)

	groups := map[string]int{}
	for _, e := range resp.Data.Entries {
		groups[e.Group]++
	}
	assert.Equal(t, map[string]int{"main": 2, "admin": 1}, groups)

	stdout, _, err = execute(t, "cache", "ls", "--cache-db", db)
	require.NoError(t, err)
	assert.Contains(t, stdout, "KEY")
	assert.Contains(t, stdout, "COMPRESSION")
}

func TestCache_Reports(t *testing.T) {
	_, db := builtCache(t)

	stdout, _, err := execute(t, "cache", "reports", "--cache-db", db, "--group", "admin", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Data CacheReportsResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	require.Len(t, resp.Data.Reports, 2)
	assert.False(t, resp.Data.Reports[0].CacheHit)
	assert.True(t, resp.Data.Reports[1].CacheHit)
	for _, r := range resp.Data.Reports {
		assert.Equal(t, "admin", r.Group)
	}

	stdout, _, err = execute(t, "cache", "reports", "--cache-db", db, "--limit", "1", "--format", "json")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Len(t, resp.Data.Reports, 1)
}

func TestCache_PurgeForcesRebuild(t *testing.T) {
	s, db := builtCache(t)

	stdout, _, err := execute(t, "cache", "purge", "--cache-db", db)
	require.NoError(t, err)
	assert.Contains(t, stdout, "✓ Purged 3 cached artifact(s)")

	stdout, _, err = execute(t, "cache", "ls", "--cache-db", db)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Cache is empty")

	resp := buildJSON(t, s.model, "--root", s.web, "--out", s.out, "--cache-db", db)
	for _, a := range resp.Data.Artifacts {
		assert.False(t, a.CacheHit, a.Path)
	}
}
