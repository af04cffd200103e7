// Package docs renders the command reference into README.md.
package docs

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"text/template"

	"github.com/keshon/himera/internal/commands"
	"github.com/keshon/himera/pkg/cmd"
)

// CommandSections renders commands as markdown sections, one per category,
// categories in order of their lowest sort value. Admin commands are marked.
func CommandSections(all []cmd.Command) string {
	type entry struct {
		c        cmd.Command
		category string
		sort     int
	}
	entries := make([]entry, 0, len(all))
	weights := map[string]int{}
	for _, c := range all {
		e := entry{c: c, category: "Other", sort: 1 << 20}
		if m, ok := cmd.Root(c).(commands.Categorized); ok {
			e.category, e.sort = m.Category(), m.Sort()
		}
		if w, ok := weights[e.category]; !ok || e.sort < w {
			weights[e.category] = e.sort
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		wi, wj := weights[entries[i].category], weights[entries[j].category]
		if wi != wj {
			return wi < wj
		}
		return entries[i].sort < entries[j].sort
	})

	var buf bytes.Buffer
	current := ""
	for _, e := range entries {
		if e.category != current {
			if current != "" {
				buf.WriteString("\n")
			}
			current = e.category
			fmt.Fprintf(&buf, "### %s\n\n", current)
		}
		suffix := ""
		if a, ok := cmd.Root(e.c).(cmd.AdminOnly); ok && a.AdminOnly() {
			suffix = " (admin)"
		}
		fmt.Fprintf(&buf, "- **/%s**: %s%s\n", e.c.Name(), e.c.Description(), suffix)
	}
	return buf.String()
}

// Render executes tmpl with the command sections available as
// {{.CommandSections}}.
func Render(w io.Writer, tmpl string, registry *cmd.Registry) error {
	t, err := template.New("readme").Parse(tmpl)
	if err != nil {
		return fmt.Errorf("parse template: %w", err)
	}
	data := struct{ CommandSections string }{CommandSections(registry.GetAll())}
	return t.Execute(w, data)
}

// UpdateReadme renders the template at tmplPath into outPath.
func UpdateReadme(registry *cmd.Registry, tmplPath, outPath string) error {
	raw, err := os.ReadFile(tmplPath)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := Render(&buf, string(raw), registry); err != nil {
		return err
	}
	return os.WriteFile(outPath, buf.Bytes(), 0o644)
}
