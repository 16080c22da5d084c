package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/wro/internal/store"
)

// CacheOptions holds flags for the cache subcommands.
type CacheOptions struct {
	*RootOptions
	Group string
	Limit int
}

// NewCacheCommand creates the cache command and its subcommands.
func NewCacheCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CacheOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the persistent cache",
		Long: `Inspect or clear the SQLite database behind the persistent cache.

The database is taken from --cache-db, WRO_CACHE_DB or cache.db in the
config file.

Example:
  wro cache stats --cache-db .wro/cache.db
  wro cache reports --group main --limit 20
  wro cache purge`,
	}
	cmd.PersistentFlags().String("cache-db", "", "SQLite database for the persistent cache")

	cmd.AddCommand(&cobra.Command{
		Use:           "stats",
		Short:         "Show entry and report counts",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCacheStats(cmd, opts)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:           "ls",
		Short:         "List stored artifacts",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCacheList(cmd, opts)
		},
	})

	reports := &cobra.Command{
		Use:           "reports",
		Short:         "Show build reports in write order",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCacheReports(cmd, opts)
		},
	}
	reports.Flags().StringVarP(&opts.Group, "group", "g", "", "only reports for this group")
	reports.Flags().IntVarP(&opts.Limit, "limit", "n", 0, "maximum number of reports (default all)")
	cmd.AddCommand(reports)

	cmd.AddCommand(&cobra.Command{
		Use:           "purge",
		Short:         "Delete every stored artifact",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCachePurge(cmd, opts)
		},
	})

	return cmd
}

// openCacheStore opens the configured cache database; one must be set.
func openCacheStore(cmd *cobra.Command, opts *CacheOptions) (*store.Store, error) {
	cfg, err := loadConfig(cmd, opts.RootOptions, nil)
	if err != nil {
		return nil, err
	}
	if cfg.Cache.DB == "" {
		return nil, NewExitError(ExitCommandError, "no cache database configured (use --cache-db)")
	}
	return openStore(cfg)
}

// CacheStatsResult is the output of cache stats.
type CacheStatsResult struct {
	store.Stats
}

func (r CacheStatsResult) writeText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "Entries:  %d\nSize:     %d B (%d B stored)\nReports:  %d\n",
		r.Entries, r.Bytes, r.StoredBytes, r.Reports)
	return err
}

func runCacheStats(cmd *cobra.Command, opts *CacheOptions) error {
	st, err := openCacheStore(cmd, opts)
	if err != nil {
		return err
	}
	defer st.Close()

	stats, err := st.Stats(cmd.Context())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read cache stats", err)
	}
	return newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr()).Success(CacheStatsResult{stats})
}

// CacheListResult is the output of cache ls.
type CacheListResult struct {
	Entries []store.EntrySummary `json:"entries"`
}

func (r CacheListResult) writeText(w io.Writer) error {
	if len(r.Entries) == 0 {
		_, err := fmt.Fprintln(w, "Cache is empty")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tSIZE\tSTORED\tCOMPRESSION\tCOMPUTED")
	for _, e := range r.Entries {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\n", e.Key, e.Size, e.StoredSize, e.Compression, e.ComputedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func runCacheList(cmd *cobra.Command, opts *CacheOptions) error {
	st, err := openCacheStore(cmd, opts)
	if err != nil {
		return err
	}
	defer st.Close()

	entries, err := st.Entries(cmd.Context())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list cache entries", err)
	}
	return newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr()).Success(CacheListResult{Entries: entries})
}

// CacheReportsResult is the output of cache reports.
type CacheReportsResult struct {
	Reports []store.Report `json:"reports"`
}

func (r CacheReportsResult) writeText(w io.Writer) error {
	if len(r.Reports) == 0 {
		_, err := fmt.Fprintln(w, "No reports")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tREQUEST\tKEY\tHIT\tSIZE\tDURATION\tRESULT")
	for _, rep := range r.Reports {
		outcome := "ok"
		switch {
		case rep.Error != "":
			outcome = rep.Error
		case len(rep.Warnings) > 0:
			outcome = fmt.Sprintf("%d warning(s)", len(rep.Warnings))
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%v\t%d\t%s\t%s\n",
			rep.Seq, rep.RequestID, rep.Key, rep.CacheHit, rep.ArtifactSize, rep.Duration, outcome)
	}
	return tw.Flush()
}

func runCacheReports(cmd *cobra.Command, opts *CacheOptions) error {
	st, err := openCacheStore(cmd, opts)
	if err != nil {
		return err
	}
	defer st.Close()

	reports, err := st.Reports(cmd.Context(), opts.Group, opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read reports", err)
	}
	return newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr()).Success(CacheReportsResult{Reports: reports})
}

// CachePurgeResult is the output of cache purge.
type CachePurgeResult struct {
	Purged int `json:"purged"`
}

func (r CachePurgeResult) writeText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "✓ Purged %d cached artifact(s)\n", r.Purged)
	return err
}

func runCachePurge(cmd *cobra.Command, opts *CacheOptions) error {
	st, err := openCacheStore(cmd, opts)
	if err != nil {
		return err
	}
	defer st.Close()

	stats, err := st.Stats(cmd.Context())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read cache stats", err)
	}
	if err := st.Purge(cmd.Context()); err != nil {
		return WrapExitError(ExitCommandError, "failed to purge cache", err)
	}
	opts.logger().Info("cache purged", "entries", stats.Entries)
	return newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr()).Success(CachePurgeResult{Purged: stats.Entries})
}
