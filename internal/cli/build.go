package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/wro/internal/model"
	"github.com/roach88/wro/internal/pipeline"
)

// BuildOptions holds flags for the build command.
type BuildOptions struct {
	*RootOptions
	Groups []string
}

// NewBuildCommand creates the build command.
func NewBuildCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BuildOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "build [model]",
		Short: "Build group artifacts into the output directory",
		Long: `Build the groups of a model and write one artifact per group and
resource type to <out>/<group>.<css|js>.

The model defaults to the configured one (groups.yaml). Every group is
built unless --group names some.

Example:
  wro build groups.yaml --out dist
  wro build site.cue --group main --type css --minimize=false
  wro build --cache-db .wro/cache.db --lenient`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd, opts, args)
		},
	}

	addPipelineFlags(cmd)
	cmd.Flags().StringSliceVarP(&opts.Groups, "group", "g", nil, "groups to build (default all)")
	cmd.Flags().StringP("out", "o", "dist", "output directory")

	return cmd
}

// BuiltArtifact describes one written artifact.
type BuiltArtifact struct {
	Group     string   `json:"group"`
	Type      string   `json:"type"`
	Path      string   `json:"path"`
	Size      int      `json:"size"`
	InputHash string   `json:"input_hash"`
	CacheHit  bool     `json:"cache_hit"`
	RequestID string   `json:"request_id"`
	Warnings  []string `json:"warnings,omitempty"`
}

// BuildResult is the output of the build command.
type BuildResult struct {
	Artifacts []BuiltArtifact `json:"artifacts"`
}

func (r BuildResult) writeText(w io.Writer) error {
	if len(r.Artifacts) == 0 {
		_, err := fmt.Fprintln(w, "No artifacts built")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, a := range r.Artifacts {
		state := "built"
		if a.CacheHit {
			state = "cached"
		}
		fmt.Fprintf(tw, "%s\t%d B\t%s\t%s\n", a.Path, a.Size, state, model.Digest(a.InputHash).Short())
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "✓ Built %d artifact(s)\n", len(r.Artifacts))
	return err
}

func runBuild(cmd *cobra.Command, opts *BuildOptions, args []string) error {
	env, err := openEnvironment(cmd, opts.RootOptions, args)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, stop := commandContext(cmd)
	defer stop()

	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	for _, name := range opts.Groups {
		if _, ok := env.model.Group(name); !ok {
			err := &model.UnknownGroupError{Ref: name}
			_ = formatter.Error(CodeUnknownGroup, err.Error(), nil)
			return WrapExitError(ExitCommandError, "build failed", err)
		}
	}

	types := model.ResourceTypes
	if env.opts.Type != "" {
		types = []model.ResourceType{env.opts.Type}
	}

	result := BuildResult{Artifacts: []BuiltArtifact{}}
	for _, t := range types {
		reqOpts := env.opts
		reqOpts.Type = t
		artifacts, err := env.executor.BuildAll(ctx, env.model, opts.Groups, reqOpts)
		if err != nil {
			_ = formatter.Error(ErrorCode(err), err.Error(), nil)
			return WrapExitError(ExitFailure, "build failed", err)
		}
		for _, a := range artifacts {
			built, err := writeArtifact(env.cfg.Out, a)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to write artifact", err)
			}
			for _, w := range a.Warnings {
				env.logger.Warn("tolerated failure", "group", a.Group, "type", a.Type, "warning", w.String())
			}
			result.Artifacts = append(result.Artifacts, built)
		}
	}

	return formatter.Success(result)
}

// writeArtifact writes a to <out>/<group>.<ext>.
func writeArtifact(out string, a *pipeline.Artifact) (BuiltArtifact, error) {
	path := filepath.Join(out, filepath.FromSlash(a.Group)+"."+a.Type.Extension())
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return BuiltArtifact{}, err
	}
	if err := os.WriteFile(path, a.Content, 0o644); err != nil {
		return BuiltArtifact{}, err
	}

	warnings := make([]string, len(a.Warnings))
	for i, w := range a.Warnings {
		warnings[i] = w.String()
	}
	return BuiltArtifact{
		Group:     a.Group,
		Type:      string(a.Type),
		Path:      path,
		Size:      len(a.Content),
		InputHash: string(a.InputHash),
		CacheHit:  a.CacheHit,
		RequestID: a.RequestID,
		Warnings:  warnings,
	}, nil
}
