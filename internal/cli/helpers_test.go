package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// siteModel is the group model written by newSite.
const siteModel = `groups:
  - name: main
    resources:
      - css/main.css
      - js/a.js
      - js/b.js
  - name: admin
    resources:
      - css/reset.css
`

// siteFiles are the resources written by newSite, relative to web/.
var siteFiles = map[string]string{
	"css/reset.css": "* { margin: 0 }",
	"css/main.css":  "@import \"reset.css\";\nbody { background: url(img/bg.png) }",
	"js/a.js":       "var a = 1",
	"js/b.js":       "var b = 2",
}

// site is a model and resource tree in a temporary directory.
type site struct {
	dir   string
	model string
	web   string
	out   string
}

func newSite(t *testing.T) *site {
	t.Helper()
	dir := t.TempDir()
	s := &site{
		dir:   dir,
		model: filepath.Join(dir, "groups.yaml"),
		web:   filepath.Join(dir, "web"),
		out:   filepath.Join(dir, "dist"),
	}
	require.NoError(t, os.WriteFile(s.model, []byte(siteModel), 0o644))
	for uri, content := range siteFiles {
		s.write(t, uri, content)
	}
	return s
}

// write creates or replaces a resource.
func (s *site) write(t *testing.T, uri, content string) {
	t.Helper()
	path := filepath.Join(s.web, filepath.FromSlash(uri))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// setModel replaces the group model.
func (s *site) setModel(t *testing.T, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(s.model, []byte(content), 0o644))
}

func (s *site) read(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(s.out, name))
	require.NoError(t, err)
	return string(data)
}

// execute runs the root command with args.
func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	err = Execute(args, out, errOut)
	return out.String(), errOut.String(), err
}
