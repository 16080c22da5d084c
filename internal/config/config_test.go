package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/wro/internal/model"
	"github.com/roach88/wro/internal/reqctx"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, used, err := Load(LoadOptions{Dir: t.TempDir()})
	require.NoError(t, err)

	assert.Empty(t, used)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_FileInDir(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "wro.yaml", `
model: site.cue
root: web
type: css
minimize: false
failures: lenient
processor_timeout: 2s
processors:
  pre: [bomStripper, uglify]
  commands:
    - name: uglify
      phase: pre
      types: [js]
      argv: [uglifyjs, --compress]
      minimizes: true
cache:
  db: .wro/cache.db
  compression: lz4
  max_age: 1h
vars:
  CDN: https://cdn.example
`)

	cfg, used, err := Load(LoadOptions{Dir: dir})
	require.NoError(t, err)

	assert.Equal(t, path, used)
	assert.Equal(t, "site.cue", cfg.Model)
	assert.Equal(t, "web", cfg.Root)
	assert.False(t, cfg.Minimize)
	assert.Equal(t, 2*time.Second, cfg.ProcessorTimeout)
	assert.Equal(t, []string{"bomStripper", "uglify"}, cfg.Processors.Pre)
	require.Len(t, cfg.Processors.Commands, 1)
	assert.Equal(t, []string{"uglifyjs", "--compress"}, cfg.Processors.Commands[0].Argv)
	assert.True(t, cfg.Processors.Commands[0].Minimizes)
	assert.Equal(t, ".wro/cache.db", cfg.Cache.DB)
	assert.Equal(t, "lz4", cfg.Cache.Compression)
	assert.Equal(t, time.Hour, cfg.Cache.MaxAge)
	assert.Equal(t, "127.0.0.1:8080", cfg.Serve.Addr, "unset keys keep defaults")

	opts, err := cfg.RequestOptions()
	require.NoError(t, err)
	assert.Equal(t, model.TypeCSS, opts.Type)
	assert.Equal(t, reqctx.Lenient, opts.Failures)
	assert.False(t, *opts.Minimize)

	chain, err := cfg.Chain()
	require.NoError(t, err)
	assert.Equal(t, []string{"bomStripper", "uglify"}, chain.PreNames())

	v, ok := cfg.lookup("CDN")
	assert.True(t, ok)
	assert.Equal(t, "https://cdn.example", v)
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "wro.yaml", "encoding: iso-8859-1\nvariant: dark\ncache:\n  db: file.db\n")
	t.Setenv("WRO_VARIANT", "light")
	t.Setenv("WRO_CACHE_DB", "env.db")

	cfg, _, err := Load(LoadOptions{
		Dir:       dir,
		Overrides: map[string]any{"cache.db": "flag.db"},
	})
	require.NoError(t, err)

	assert.Equal(t, "iso-8859-1", cfg.Encoding, "file over default")
	assert.Equal(t, "light", cfg.Variant, "env over file")
	assert.Equal(t, "flag.db", cfg.Cache.DB, "override over env")
}

func TestLoad_ExplicitFile(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "custom.json", `{"out": "build", "serve": {"gzip": false}}`)

	cfg, used, err := Load(LoadOptions{ConfigFile: path})
	require.NoError(t, err)
	assert.Equal(t, path, used)
	assert.Equal(t, "build", cfg.Out)
	assert.False(t, cfg.Serve.Gzip)

	_, _, err = Load(LoadOptions{ConfigFile: filepath.Join(dir, "missing.yaml")})
	assert.ErrorContains(t, err, "config file not found")
}

func TestLoad_BrokenFile(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "wro.yaml", "model: [unterminated\n")

	_, _, err := Load(LoadOptions{Dir: dir})
	assert.ErrorContains(t, err, "failed to read config")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad type", func(c *Config) { c.Type = "html" }, "invalid resource type"},
		{"bad missing policy", func(c *Config) { c.Missing = "ignore" }, "missing-resource policy"},
		{"bad failure policy", func(c *Config) { c.Failures = "sometimes" }, "failure policy"},
		{"bad encoding", func(c *Config) { c.Encoding = "klingon" }, "klingon"},
		{"bad compression", func(c *Config) { c.Cache.Compression = "brotli" }, "cache.compression"},
		{"negative parallelism", func(c *Config) { c.Parallelism = -1 }, "parallelism"},
		{"negative max entries", func(c *Config) { c.Cache.MaxEntries = -1 }, "max_entries"},
		{"negative timeout", func(c *Config) { c.ProcessorTimeout = -time.Second }, "timeout"},
		{"unnamed command", func(c *Config) {
			c.Processors.Commands = []CommandConfig{{Argv: []string{"cat"}}}
		}, "name is required"},
		{"duplicate command", func(c *Config) {
			c.Processors.Commands = []CommandConfig{{Name: "a", Argv: []string{"cat"}}, {Name: "a", Argv: []string{"cat"}}}
		}, "duplicate name"},
		{"bad phase", func(c *Config) {
			c.Processors.Commands = []CommandConfig{{Name: "a", Phase: "during", Argv: []string{"cat"}}}
		}, "phase must be pre or post"},
		{"bad command type", func(c *Config) {
			c.Processors.Commands = []CommandConfig{{Name: "a", Types: []string{"less"}, Argv: []string{"cat"}}}
		}, "processors.commands[0]"},
		{"no argv", func(c *Config) {
			c.Processors.Commands = []CommandConfig{{Name: "a"}}
		}, "argv is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestChain_CommandPhases(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Processors.Commands = []CommandConfig{
		{Name: "both", Argv: []string{"cat"}},
		{Name: "late", Phase: "post", Argv: []string{"cat"}},
	}

	cfg.Processors.Pre = []string{"both"}
	cfg.Processors.Post = []string{"both", "late", "cssVariables"}
	chain, err := cfg.Chain()
	require.NoError(t, err)
	assert.Equal(t, []string{"both"}, chain.PreNames())
	assert.Equal(t, []string{"both", "late", "cssVariables"}, chain.PostNames())

	cfg.Processors.Pre = []string{"late"}
	_, err = cfg.Chain()
	assert.ErrorContains(t, err, `unknown pre-processor "late"`)
}

func TestLookup_FallsBackToEnvironment(t *testing.T) {
	t.Setenv("WRO_TEST_PLACEHOLDER", "from-env")
	cfg := DefaultConfig()

	v, ok := cfg.lookup("WRO_TEST_PLACEHOLDER")
	assert.True(t, ok)
	assert.Equal(t, "from-env", v)

	_, ok = cfg.lookup("WRO_TEST_UNSET_PLACEHOLDER")
	assert.False(t, ok)
}
