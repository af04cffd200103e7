// Package console is the messaging front-end: it reads user lines from an
// input stream, answers through the chat pipeline or the command registry,
// and prints proactive messages as they are dispatched.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/keshon/himera/internal/ai"
	"github.com/keshon/himera/internal/mind"
	"github.com/keshon/himera/pkg/cmd"
)

// Handler answers a chat message. *mind.Pipeline implements it.
type Handler interface {
	HandleMessage(ctx context.Context, userID int64, text string) (mind.Outcome, error)
}

// Output serializes writes from the reply path and the dispatcher.
type Output struct {
	mu sync.Mutex
	w  io.Writer
}

func NewOutput(w io.Writer) *Output {
	return &Output{w: w}
}

// Send prints a proactive message. It satisfies initiation.Sender.
func (o *Output) Send(_ context.Context, userID int64, text string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, err := fmt.Fprintf(o.w, "[himera -> %d] %s\n", userID, text)
	return err
}

func (o *Output) printf(format string, args ...any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fmt.Fprintf(o.w, format, args...)
}

// Console talks to one user at a time over a line-based stream. The current
// user can be switched with /as <id>.
type Console struct {
	in       io.Reader
	out      *Output
	handler  Handler
	registry *cmd.Registry
	log      zerolog.Logger

	mu   sync.Mutex
	user int64
}

func New(in io.Reader, out *Output, handler Handler, registry *cmd.Registry, userID int64, log zerolog.Logger) *Console {
	return &Console{
		in:       in,
		out:      out,
		handler:  handler,
		registry: registry,
		user:     userID,
		log:      log.With().Str("component", "console").Logger(),
	}
}

func (c *Console) printf(format string, args ...any) {
	c.out.printf(format, args...)
}

func (c *Console) currentUser() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user
}

// Run reads lines until the input ends or ctx is done. On cancellation an
// input that is an io.Closer is closed before Run returns, which releases the
// reader goroutine.
func (c *Console) Run(ctx context.Context) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(c.in)
		sc.Buffer(make([]byte, 64*1024), 1024*1024)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	defer func() {
		if closer, ok := c.in.(io.Closer); ok && ctx.Err() != nil {
			closer.Close()
		}
	}()

	c.log.Info().Int64("user", c.currentUser()).Msg("console ready")
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			c.Handle(ctx, line)
		}
	}
}

// Handle processes one input line.
func (c *Console) Handle(ctx context.Context, line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	if strings.HasPrefix(line, "/") {
		c.command(ctx, line)
		return
	}

	user := c.currentUser()
	res, err := c.handler.HandleMessage(ctx, user, line)
	if err != nil {
		c.log.Error().Err(err).Int64("user", user).Bool("transient", ai.IsTransient(err)).Msg("message failed")
		if res.Text == "" {
			res.Text = ai.Apology
		}
	}
	c.printf("himera: %s\n", res.Text)
	if res.AutoSaved > 0 {
		c.printf("(this exchange was saved to memory)\n")
	}
}

func (c *Console) command(ctx context.Context, line string) {
	fields := strings.Fields(strings.TrimPrefix(line, "/"))
	if len(fields) == 0 {
		return
	}
	name, args := strings.ToLower(fields[0]), fields[1:]

	if name == "as" {
		id, err := strconv.ParseInt(strings.Join(args, ""), 10, 64)
		if err != nil {
			c.printf("Usage: /as <user id>\n")
			return
		}
		c.mu.Lock()
		c.user = id
		c.mu.Unlock()
		c.printf("Now talking as %d\n", id)
		return
	}

	command := c.registry.Get(name)
	if command == nil {
		c.printf("Unknown command /%s. Try /help\n", name)
		return
	}

	var reply strings.Builder
	err := command.Run(ctx, &cmd.Invocation{UserID: c.currentUser(), Args: args, Out: &reply})
	switch {
	case errors.Is(err, cmd.ErrForbidden):
		c.printf("This command is for administrators.\n")
		return
	case err != nil:
		c.printf("Something went wrong, please try again.\n")
		return
	}
	c.printf("%s", reply.String())
}
