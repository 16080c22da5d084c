package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/wro/internal/loader"
	"github.com/roach88/wro/internal/locator"
	"github.com/roach88/wro/internal/model"
	"github.com/roach88/wro/internal/reqctx"
	"github.com/roach88/wro/internal/resolver"
)

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check [model]",
		Short: "Check that every group resolves",
		Long: `Resolve the imports of every group without running processors and
report cyclic imports and resources that cannot be read.

Exits 1 when any group has an issue.

Example:
  wro check groups.yaml
  wro check site.cue --root web --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, rootOpts, args)
		},
	}
	cmd.Flags().String("root", ".", "directory resource URIs are resolved against")
	cmd.Flags().String("type", "", "check only resources of this type (css|js)")
	cmd.Flags().String("encoding", reqctx.DefaultEncoding, "charset of resources")
	return cmd
}

// Issue kinds reported by check.
const (
	IssueCycle   = "cycle"
	IssueMissing = "missing"
)

// CheckIssue is one problem found in a group.
type CheckIssue struct {
	Kind     string   `json:"kind"`
	URI      string   `json:"uri,omitempty"`
	Importer string   `json:"importer,omitempty"`
	Path     []string `json:"path,omitempty"`
	Message  string   `json:"message"`
}

// GroupCheck is the outcome for one group and type.
type GroupCheck struct {
	Group     string       `json:"group"`
	Type      string       `json:"type"`
	Resources int          `json:"resources"`
	Issues    []CheckIssue `json:"issues,omitempty"`
}

// CheckResult is the output of the check command.
type CheckResult struct {
	OK     bool         `json:"ok"`
	Groups []GroupCheck `json:"groups"`
}

func (r CheckResult) writeText(w io.Writer) error {
	issues := 0
	for _, g := range r.Groups {
		target := g.Group + "." + g.Type
		if len(g.Issues) == 0 {
			fmt.Fprintf(w, "✓ %s (%d resources)\n", target, g.Resources)
			continue
		}
		fmt.Fprintf(w, "✗ %s\n", target)
		for _, is := range g.Issues {
			issues++
			fmt.Fprintf(w, "    %s\n", is.Message)
		}
	}
	if issues > 0 {
		_, err := fmt.Fprintf(w, "\n%d issue(s) found\n", issues)
		return err
	}
	_, err := fmt.Fprintf(w, "\nAll %d group target(s) resolve\n", len(r.Groups))
	return err
}

func runCheck(cmd *cobra.Command, rootOpts *RootOptions, args []string) error {
	formatter := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	cfg, err := loadConfig(cmd, rootOpts, args)
	if err != nil {
		return err
	}
	m, err := loader.Load(cfg.Model)
	if err != nil {
		_ = formatter.Error(CodeCommandError, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load model", err)
	}
	opts, err := cfg.RequestOptions()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid request options", err)
	}
	// Missing resources are collected rather than fatal.
	opts.MissingResources = reqctx.MissingSkip
	opts.Logger = rootOpts.logger()

	ctx, stop := commandContext(cmd)
	defer stop()

	result, err := checkModel(ctx, m, locator.NewFileReader(cfg.Root), opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "check failed", err)
	}
	if !result.OK {
		_ = formatter.Error(CodeCheckFailures, "some groups do not resolve", result)
		return NewExitError(ExitFailure, "check failed")
	}
	return formatter.Success(result)
}

// checkModel resolves every group of m per type. Cycles and missing
// resources become issues; any other error is returned.
func checkModel(ctx context.Context, m *model.Model, reader locator.Reader, opts reqctx.Options) (CheckResult, error) {
	res := resolver.New(locator.NewSnapshot(reader))
	pool := reqctx.NewPool()
	result := CheckResult{OK: true, Groups: []GroupCheck{}}

	for _, g := range m.Groups() {
		for _, t := range model.ResourceTypes {
			if (opts.Type != "" && t != opts.Type) || !g.HasType(t) {
				continue
			}
			gc := GroupCheck{Group: g.Name, Type: string(t)}
			err := reqctx.Scope(ctx, pool, opts, func(ctx context.Context, rc *reqctx.Context) error {
				resolved, err := res.ResolveAll(ctx, g.Filter(t), rc)
				if err != nil {
					return err
				}
				gc.Resources = len(resolved)
				for _, r := range resolved {
					if r.Missing {
						gc.Issues = append(gc.Issues, missingIssue(r))
					}
				}
				return nil
			})

			var cycle *resolver.CyclicImportError
			switch {
			case errors.As(err, &cycle):
				gc.Issues = append(gc.Issues, CheckIssue{
					Kind:    IssueCycle,
					Path:    cycle.Path,
					Message: cycle.Error(),
				})
			case err != nil:
				return CheckResult{}, fmt.Errorf("group %s: %w", g.Name, err)
			}
			if len(gc.Issues) > 0 {
				result.OK = false
			}
			result.Groups = append(result.Groups, gc)
		}
	}
	return result, nil
}

func missingIssue(r resolver.Resolved) CheckIssue {
	msg := "missing " + r.Resource.URI
	if r.Importer != "" {
		msg += " (imported by " + r.Importer + ")"
	}
	return CheckIssue{
		Kind:     IssueMissing,
		URI:      r.Resource.URI,
		Importer: r.Importer,
		Message:  msg,
	}
}
