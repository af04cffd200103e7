// Package cmd provides a transport-agnostic command core: a command has a
// name, a description and Run(ctx, invocation). The console adapter and the
// admin CLI both dispatch through it.
package cmd

import (
	"context"
	"fmt"
	"io"
)

// Invocation carries what any front-end can pass: the calling user, positional
// arguments and the writer replies go to.
type Invocation struct {
	UserID int64
	Args   []string
	Out    io.Writer
}

// Replyf writes one reply line. A nil Out discards it.
func (inv *Invocation) Replyf(format string, args ...any) {
	if inv.Out == nil {
		return
	}
	fmt.Fprintf(inv.Out, format+"\n", args...)
}

// Arg returns the i-th argument or "".
func (inv *Invocation) Arg(i int) string {
	if i < 0 || i >= len(inv.Args) {
		return ""
	}
	return inv.Args[i]
}

// Command is the universal contract: identity plus execution. Permission checks
// live in middleware.
type Command interface {
	Name() string
	Description() string
	Run(ctx context.Context, inv *Invocation) error
}
