package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/roach88/wro/internal/model"
	"github.com/roach88/wro/internal/processor"
	"github.com/roach88/wro/internal/reqctx"
	"github.com/roach88/wro/internal/store"
)

const (
	// ConfigFileName is the name of the config file (without extension).
	ConfigFileName = "wro"

	// EnvPrefix prefixes environment overrides: WRO_MINIMIZE=false.
	EnvPrefix = "WRO"
)

// Config is the complete front-end configuration.
type Config struct {
	// Model is the group model file or CUE package directory.
	Model string `mapstructure:"model"`

	// Root is the directory resource URIs are resolved against.
	Root string `mapstructure:"root"`

	// Out is the output directory of the build command.
	Out string `mapstructure:"out"`

	Type             string        `mapstructure:"type"`
	Minimize         bool          `mapstructure:"minimize"`
	Encoding         string        `mapstructure:"encoding"`
	Variant          string        `mapstructure:"variant"`
	Missing          string        `mapstructure:"missing"`
	Failures         string        `mapstructure:"failures"`
	ProcessorTimeout time.Duration `mapstructure:"processor_timeout"`

	// Parallelism bounds concurrent processor work. Zero uses GOMAXPROCS.
	Parallelism int `mapstructure:"parallelism"`

	Processors ProcessorsConfig `mapstructure:"processors"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Serve      ServeConfig      `mapstructure:"serve"`

	// Vars are substituted by the placeholder processor ahead of the
	// environment.
	Vars map[string]string `mapstructure:"vars"`
}

// ProcessorsConfig names the chain and defines external processors.
type ProcessorsConfig struct {
	Pre      []string        `mapstructure:"pre"`
	Post     []string        `mapstructure:"post"`
	Commands []CommandConfig `mapstructure:"commands"`
}

// CommandConfig defines a processor backed by an external program.
type CommandConfig struct {
	Name string `mapstructure:"name"`

	// Phase is "pre", "post" or empty for both.
	Phase string `mapstructure:"phase"`

	// Types restricts the processor to css or js; empty means any.
	Types []string `mapstructure:"types"`

	Argv      []string `mapstructure:"argv"`
	Minimizes bool     `mapstructure:"minimizes"`
}

// CacheConfig configures the persistent cache tier.
type CacheConfig struct {
	// DB is the SQLite path. Empty disables persistence.
	DB          string        `mapstructure:"db"`
	Compression string        `mapstructure:"compression"`
	MaxAge      time.Duration `mapstructure:"max_age"`
	MaxEntries  int           `mapstructure:"max_entries"`
}

// ServeConfig configures the serve command.
type ServeConfig struct {
	Addr string `mapstructure:"addr"`
	Gzip bool   `mapstructure:"gzip"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	return &Config{
		Model:    "groups.yaml",
		Root:     ".",
		Out:      "dist",
		Minimize: true,
		Encoding: reqctx.DefaultEncoding,
		Missing:  string(reqctx.MissingFail),
		Failures: string(reqctx.FailFast),
		Processors: ProcessorsConfig{
			Pre: []string{processor.BOMStripperName, processor.CSSURLRewritingName, processor.SemicolonAppenderName},
		},
		Cache: CacheConfig{
			Compression: string(store.CompressionZstd),
		},
		Serve: ServeConfig{
			Addr: "127.0.0.1:8080",
			Gzip: true,
		},
	}
}

// LoadOptions controls where configuration comes from.
type LoadOptions struct {
	// ConfigFile is used exclusively when set; it must exist.
	ConfigFile string

	// Dir is searched for wro.yaml when ConfigFile is empty.
	// Empty means the working directory.
	Dir string

	// Overrides are applied last, keyed by config key ("cache.db").
	Overrides map[string]any
}

// Load reads the configuration and reports the config file used, if any.
func Load(opts LoadOptions) (*Config, string, error) {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("model", defaults.Model)
	v.SetDefault("root", defaults.Root)
	v.SetDefault("out", defaults.Out)
	v.SetDefault("type", defaults.Type)
	v.SetDefault("minimize", defaults.Minimize)
	v.SetDefault("encoding", defaults.Encoding)
	v.SetDefault("variant", defaults.Variant)
	v.SetDefault("missing", defaults.Missing)
	v.SetDefault("failures", defaults.Failures)
	v.SetDefault("processor_timeout", defaults.ProcessorTimeout)
	v.SetDefault("parallelism", defaults.Parallelism)
	v.SetDefault("processors.pre", defaults.Processors.Pre)
	v.SetDefault("processors.post", defaults.Processors.Post)
	v.SetDefault("cache.db", defaults.Cache.DB)
	v.SetDefault("cache.compression", defaults.Cache.Compression)
	v.SetDefault("cache.max_age", defaults.Cache.MaxAge)
	v.SetDefault("cache.max_entries", defaults.Cache.MaxEntries)
	v.SetDefault("serve.addr", defaults.Serve.Addr)
	v.SetDefault("serve.gzip", defaults.Serve.Gzip)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		if _, err := os.Stat(opts.ConfigFile); err != nil {
			return nil, "", fmt.Errorf("config file not found: %s", opts.ConfigFile)
		}
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, "", fmt.Errorf("failed to read config %s: %w", opts.ConfigFile, err)
		}
	} else {
		dir := opts.Dir
		if dir == "" {
			dir = "."
		}
		v.SetConfigName(ConfigFileName)
		v.AddConfigPath(dir)
		if err := v.ReadInConfig(); err != nil {
			// No config file is fine; a broken one is not.
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, "", fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	for key, val := range opts.Overrides {
		v.Set(key, val)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, v.ConfigFileUsed(), nil
}

// Validate checks values that the decoder cannot.
func (c *Config) Validate() error {
	if _, err := c.RequestOptions(); err != nil {
		return err
	}
	if _, err := store.ParseCompression(c.Cache.Compression); err != nil {
		return fmt.Errorf("cache.compression: %w", err)
	}
	if c.Parallelism < 0 {
		return fmt.Errorf("parallelism must not be negative, got %d", c.Parallelism)
	}
	if c.Cache.MaxEntries < 0 {
		return fmt.Errorf("cache.max_entries must not be negative, got %d", c.Cache.MaxEntries)
	}

	seen := make(map[string]bool)
	for i, cmd := range c.Processors.Commands {
		if cmd.Name == "" {
			return fmt.Errorf("processors.commands[%d]: name is required", i)
		}
		if seen[cmd.Name] {
			return fmt.Errorf("processors.commands[%d]: duplicate name %q", i, cmd.Name)
		}
		seen[cmd.Name] = true
		switch cmd.Phase {
		case "", string(processor.PhasePre), string(processor.PhasePost):
		default:
			return fmt.Errorf("processors.commands[%d]: phase must be pre or post, got %q", i, cmd.Phase)
		}
		if _, err := typeSet(cmd.Types); err != nil {
			return fmt.Errorf("processors.commands[%d]: %w", i, err)
		}
		if len(cmd.Argv) == 0 {
			return fmt.Errorf("processors.commands[%d]: argv is required", i)
		}
	}
	return nil
}

// RequestOptions converts the per-invocation settings into reqctx.Options.
func (c *Config) RequestOptions() (reqctx.Options, error) {
	opts := reqctx.Options{
		Minimize:         reqctx.Bool(c.Minimize),
		Encoding:         c.Encoding,
		Variant:          c.Variant,
		ProcessorTimeout: c.ProcessorTimeout,
	}
	var err error
	if c.Type != "" {
		if opts.Type, err = model.ParseResourceType(c.Type); err != nil {
			return reqctx.Options{}, err
		}
	}
	if opts.MissingResources, err = reqctx.ParseMissingPolicy(c.Missing); err != nil {
		return reqctx.Options{}, err
	}
	if opts.Failures, err = reqctx.ParseFailurePolicy(c.Failures); err != nil {
		return reqctx.Options{}, err
	}
	if err := opts.Normalize().Validate(); err != nil {
		return reqctx.Options{}, err
	}
	return opts, nil
}

// Chain builds the configured processor chain: the built-ins plus the
// command processors, in the order the pre and post lists name them.
func (c *Config) Chain() (*processor.Chain, error) {
	reg := processor.DefaultWithLookup(c.lookup)
	for _, cmd := range c.Processors.Commands {
		types, err := typeSet(cmd.Types)
		if err != nil {
			return nil, err
		}
		p, err := processor.Command(cmd.Name, types, cmd.Argv, cmd.Minimizes)
		if err != nil {
			return nil, err
		}
		if cmd.Phase != string(processor.PhasePost) {
			if err := reg.RegisterPre(cmd.Name, func() processor.PreProcessor { return p }); err != nil {
				return nil, err
			}
		}
		if cmd.Phase != string(processor.PhasePre) {
			if err := reg.RegisterPost(cmd.Name, func() processor.PostProcessor { return p }); err != nil {
				return nil, err
			}
		}
	}
	return reg.Chain(c.Processors.Pre, c.Processors.Post)
}

func (c *Config) lookup(name string) (string, bool) {
	// viper lower-cases map keys.
	if v, ok := c.Vars[strings.ToLower(name)]; ok {
		return v, true
	}
	return os.LookupEnv(name)
}

func typeSet(names []string) (processor.TypeSet, error) {
	if len(names) == 0 {
		return processor.AnyType, nil
	}
	types := make([]model.ResourceType, len(names))
	for i, n := range names {
		t, err := model.ParseResourceType(n)
		if err != nil {
			return nil, err
		}
		types[i] = t
	}
	return processor.Types(types...), nil
}
