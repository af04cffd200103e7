package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/keshon/himera/internal/auth"
	"github.com/keshon/himera/pkg/cmd"
)

type helpCmd struct {
	meta
	registry *cmd.Registry
	auth     *auth.Allowlist
}

func (h *helpCmd) Run(ctx context.Context, inv *cmd.Invocation) error {
	admin := h.auth != nil && h.auth.IsAdmin(ctx, inv.UserID)
	inv.Replyf("%s", BuildHelp(h.registry.GetAll(), admin))
	return nil
}

// BuildHelp lists commands grouped by category, categories ordered by their
// lowest sort value. Admin commands are listed only when admin is set.
func BuildHelp(cmds []cmd.Command, admin bool) string {
	categoryMap := make(map[string][]cmd.Command)
	categorySort := make(map[string]int)
	sortOf := func(c cmd.Command) int {
		if cat, ok := cmd.Root(c).(Categorized); ok {
			return cat.Sort()
		}
		return 1 << 20
	}

	for _, c := range cmds {
		root := cmd.Root(c)
		if a, ok := root.(cmd.AdminOnly); ok && a.AdminOnly() && !admin {
			continue
		}
		cat := "Other"
		if cz, ok := root.(Categorized); ok {
			cat = cz.Category()
		}
		categoryMap[cat] = append(categoryMap[cat], c)
		if val, ok := categorySort[cat]; !ok || sortOf(c) < val {
			categorySort[cat] = sortOf(c)
		}
	}

	cats := make([]string, 0, len(categorySort))
	for cat := range categorySort {
		cats = append(cats, cat)
	}
	sort.Slice(cats, func(i, j int) bool { return categorySort[cats[i]] < categorySort[cats[j]] })

	var sb strings.Builder
	for i, cat := range cats {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "%s\n", cat)
		list := categoryMap[cat]
		sort.Slice(list, func(i, j int) bool { return sortOf(list[i]) < sortOf(list[j]) })
		for _, c := range list {
			fmt.Fprintf(&sb, "  /%s - %s\n", c.Name(), c.Description())
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}
