package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/wro/internal/cache"
	"github.com/roach88/wro/internal/config"
	"github.com/roach88/wro/internal/loader"
	"github.com/roach88/wro/internal/locator"
	"github.com/roach88/wro/internal/model"
	"github.com/roach88/wro/internal/pipeline"
	"github.com/roach88/wro/internal/reqctx"
	"github.com/roach88/wro/internal/store"
)

// environment is everything a pipeline command needs, assembled from
// configuration.
type environment struct {
	cfg      *config.Config
	model    *model.Model
	reader   locator.Reader
	store    *store.Store // nil without cache.db
	cache    *cache.Cache
	executor *pipeline.Executor
	opts     reqctx.Options
	logger   *slog.Logger
}

// flagKeys maps command flags to the config keys they override. Only
// flags the user set take part, so unset flags never mask the config
// file or the environment.
type flagKeys map[string]string

// overrides collects the changed flags of cmd as config overrides.
func (fk flagKeys) overrides(cmd *cobra.Command) map[string]any {
	out := make(map[string]any)
	for flag, key := range fk {
		f := cmd.Flags().Lookup(flag)
		if f == nil || !f.Changed {
			continue
		}
		out[key] = f.Value.String()
	}
	return out
}

// configFlags are the flags of every command that override a config key.
var configFlags = flagKeys{
	"root":      "root",
	"type":      "type",
	"minimize":  "minimize",
	"encoding":  "encoding",
	"variant":   "variant",
	"timeout":   "processor_timeout",
	"parallel":  "parallelism",
	"cache-db":  "cache.db",
	"out":       "out",
	"addr":      "serve.addr",
	"gzip":      "serve.gzip",
	"max-age":   "cache.max_age",
	"max-items": "cache.max_entries",
}

// addPipelineFlags registers the request option flags.
func addPipelineFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("root", ".", "directory resource URIs are resolved against")
	f.String("type", "", "build only resources of this type (css|js)")
	f.Bool("minimize", true, "run minimizing processors")
	f.String("encoding", reqctx.DefaultEncoding, "charset of resources and artifacts")
	f.String("variant", "", "artifact variant (locale, theme)")
	f.Bool("lenient", false, "revert failed processors instead of failing the build")
	f.Bool("skip-missing", false, "skip resources that cannot be read")
	f.Duration("timeout", 0, "deadline for each processor invocation")
	f.Int("parallel", 0, "concurrent processor work (default GOMAXPROCS)")
	f.String("cache-db", "", "SQLite database for the persistent cache")
}

// loadConfig loads the configuration with the changed flags of cmd on
// top. A model argument overrides the configured model.
func loadConfig(cmd *cobra.Command, rootOpts *RootOptions, args []string) (*config.Config, error) {
	overrides := configFlags.overrides(cmd)
	if len(args) > 0 {
		overrides["model"] = args[0]
	}
	if changed(cmd, "lenient") {
		if lenient, _ := cmd.Flags().GetBool("lenient"); lenient {
			overrides["failures"] = string(reqctx.Lenient)
		} else {
			overrides["failures"] = string(reqctx.FailFast)
		}
	}
	if changed(cmd, "skip-missing") {
		if skip, _ := cmd.Flags().GetBool("skip-missing"); skip {
			overrides["missing"] = string(reqctx.MissingSkip)
		} else {
			overrides["missing"] = string(reqctx.MissingFail)
		}
	}

	cfg, used, err := config.Load(config.LoadOptions{
		ConfigFile: rootOpts.ConfigFile,
		Overrides:  overrides,
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if used != "" {
		rootOpts.logger().Debug("config loaded", "file", used)
	}
	return cfg, nil
}

// openEnvironment loads configuration and model and assembles the
// executor. The caller must Close the environment.
func openEnvironment(cmd *cobra.Command, rootOpts *RootOptions, args []string) (*environment, error) {
	logger := rootOpts.logger()

	cfg, err := loadConfig(cmd, rootOpts, args)
	if err != nil {
		return nil, err
	}

	m, err := loader.Load(cfg.Model)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load model", err)
	}
	logger.Debug("model loaded", "path", cfg.Model, "groups", m.Len())

	opts, err := cfg.RequestOptions()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid request options", err)
	}
	opts.Logger = logger

	chain, err := cfg.Chain()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid processor chain", err)
	}
	logger.Debug("processor chain", "pre", chain.PreNames(), "post", chain.PostNames())

	env := &environment{
		cfg:    cfg,
		model:  m,
		reader: locator.NewFileReader(cfg.Root),
		opts:   opts,
		logger: logger,
	}

	cacheOpts := []cache.Option{
		cache.WithLogger(logger),
		cache.WithMaxAge(cfg.Cache.MaxAge),
		cache.WithMaxEntries(cfg.Cache.MaxEntries),
	}
	execOpts := []pipeline.Option{pipeline.WithLogger(logger)}
	if cfg.Parallelism > 0 {
		execOpts = append(execOpts, pipeline.WithParallelism(cfg.Parallelism))
	}

	if cfg.Cache.DB != "" {
		st, err := openStore(cfg)
		if err != nil {
			return nil, err
		}
		env.store = st
		cacheOpts = append(cacheOpts, cache.WithBacking(st))
		execOpts = append(execOpts, pipeline.WithReporter(st))
		logger.Debug("persistent cache", "db", cfg.Cache.DB, "compression", cfg.Cache.Compression)
	}

	env.cache = cache.New(pipeline.Hasher(env.reader), cacheOpts...)
	execOpts = append(execOpts, pipeline.WithCache(env.cache))
	env.executor = pipeline.New(env.reader, chain, execOpts...)
	return env, nil
}

// openStore opens the configured cache database.
func openStore(cfg *config.Config) (*store.Store, error) {
	compression, err := store.ParseCompression(cfg.Cache.Compression)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid cache compression", err)
	}
	st, err := store.Open(cfg.Cache.DB, store.WithCompression(compression))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to open cache database %s", cfg.Cache.DB), err)
	}
	return st, nil
}

// Close releases the store, if one was opened.
func (e *environment) Close() {
	if e.store == nil {
		return
	}
	if err := e.store.Close(); err != nil {
		e.logger.Error("error closing cache database", "error", err)
	}
}

func changed(cmd *cobra.Command, flag string) bool {
	f := cmd.Flags().Lookup(flag)
	return f != nil && f.Changed
}

// commandContext returns the command's context, cancelled on interrupt
// or SIGTERM.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
