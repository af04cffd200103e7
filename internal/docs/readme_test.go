package docs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/himera/internal/commands"
	"github.com/keshon/himera/pkg/cmd"
)

func registry() *cmd.Registry {
	r := cmd.NewRegistry()
	commands.Register(r, commands.Deps{Log: zerolog.Nop()})
	return r
}

func TestCommandSections(t *testing.T) {
	out := CommandSections(registry().GetAll())

	assert.True(t, strings.HasPrefix(out, "### Information\n\n- **/help**: Show the available commands.\n"))
	assert.Contains(t, out, "- **/cleanup**: Run the maintenance sweep now. (admin)\n")
	assert.Less(t, strings.Index(out, "/writeme**"), strings.Index(out, "/dontwrite**"))
	assert.Less(t, strings.Index(out, "### Memory"), strings.Index(out, "### Administration"))
}

func TestUpdateReadme(t *testing.T) {
	dir := t.TempDir()
	tmpl := filepath.Join(dir, "README.md.tmpl")
	out := filepath.Join(dir, "README.md")
	require.NoError(t, os.WriteFile(tmpl, []byte("# himera\n\n{{.CommandSections}}"), 0o644))

	require.NoError(t, UpdateReadme(registry(), tmpl, out))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# himera\n\n### Information")

	assert.Error(t, UpdateReadme(registry(), filepath.Join(dir, "missing"), out))
}
