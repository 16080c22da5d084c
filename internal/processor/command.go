package processor

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/roach88/wro/internal/model"
)

// CommandProcessor delegates to an external program: content is written
// to its stdin and its stdout becomes the output. A non-zero exit status
// is a failure carrying the program's stderr. The process is killed when
// the invocation context ends.
type CommandProcessor struct {
	name      string
	types     TypeSet
	argv      []string
	minimizes bool
}

// Command creates a CommandProcessor running argv.
func Command(name string, types TypeSet, argv []string, minimizes bool) (*CommandProcessor, error) {
	if name == "" {
		return nil, fmt.Errorf("command processor requires a name")
	}
	if len(argv) == 0 || argv[0] == "" {
		return nil, fmt.Errorf("command processor %q requires a program", name)
	}
	return &CommandProcessor{
		name:      name,
		types:     types,
		argv:      append([]string(nil), argv...),
		minimizes: minimizes,
	}, nil
}

func (p *CommandProcessor) Name() string                      { return p.name }
func (p *CommandProcessor) Supports(t model.ResourceType) bool { return p.types.Supports(t) }
func (p *CommandProcessor) Minimizes() bool                    { return p.minimizes }

func (p *CommandProcessor) Pre(ctx context.Context, res model.Resource, content string) (string, error) {
	return p.run(ctx, content, "WRO_URI="+res.URI, "WRO_TYPE="+string(res.Type))
}

func (p *CommandProcessor) Post(ctx context.Context, target Target, content string) (string, error) {
	return p.run(ctx, content, "WRO_GROUP="+target.Group, "WRO_TYPE="+string(target.Type))
}

func (p *CommandProcessor) run(ctx context.Context, content string, env ...string) (string, error) {
	cmd := exec.CommandContext(ctx, p.argv[0], p.argv[1:]...)
	cmd.Env = append(cmd.Environ(), env...)
	cmd.Stdin = strings.NewReader(content)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%s: %w: %s", p.argv[0], err, msg)
		}
		return "", fmt.Errorf("%s: %w", p.argv[0], err)
	}
	return stdout.String(), nil
}
