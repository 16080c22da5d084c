package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/wro/internal/loader"
	"github.com/roach88/wro/internal/model"
)

// NewGroupsCommand creates the groups command.
func NewGroupsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "groups [model]",
		Short: "List the groups of a model",
		Long: `List the buildable groups of a model in declaration order with their
resource counts. Group references are expanded; abstract groups are not
listed.

Example:
  wro groups groups.yaml
  wro groups site.cue --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGroups(cmd, rootOpts, args)
		},
	}
	return cmd
}

// GroupInfo describes one group.
type GroupInfo struct {
	Name      string   `json:"name"`
	Resources int      `json:"resources"`
	CSS       int      `json:"css"`
	JS        int      `json:"js"`
	URIs      []string `json:"uris"`
}

// GroupsResult is the output of the groups command.
type GroupsResult struct {
	Model  string      `json:"model"`
	Groups []GroupInfo `json:"groups"`
}

func (r GroupsResult) writeText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "GROUP\tRESOURCES\tCSS\tJS")
	for _, g := range r.Groups {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", g.Name, g.Resources, g.CSS, g.JS)
	}
	return tw.Flush()
}

func runGroups(cmd *cobra.Command, rootOpts *RootOptions, args []string) error {
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

	return formatter.Success(describeGroups(cfg.Model, m))
}

func describeGroups(path string, m *model.Model) GroupsResult {
	result := GroupsResult{Model: path, Groups: make([]GroupInfo, 0, m.Len())}
	for _, g := range m.Groups() {
		info := GroupInfo{
			Name:      g.Name,
			Resources: len(g.Resources),
			CSS:       len(g.Filter(model.TypeCSS)),
			JS:        len(g.Filter(model.TypeJS)),
			URIs:      make([]string, len(g.Resources)),
		}
		for i, r := range g.Resources {
			info.URIs[i] = r.URI
		}
		result.Groups = append(result.Groups, info)
	}
	return result
}
