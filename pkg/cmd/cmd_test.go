package cmd

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echo struct{ admin bool }

func (echo) Name() string        { return "echo" }
func (echo) Description() string { return "echo args" }
func (e echo) AdminOnly() bool   { return e.admin }
func (echo) Run(_ context.Context, inv *Invocation) error {
	inv.Replyf("echo %s", inv.Arg(0))
	return nil
}

func TestRegistryAndMiddleware(t *testing.T) {
	isAdmin := func(_ context.Context, id int64) bool { return id == 1 }

	r := NewRegistry()
	r.Register(echo{admin: true}, Logged(zerolog.Nop()), RequireAdmin(isAdmin))

	c := r.Get("echo")
	require.NotNil(t, c)
	assert.IsType(t, echo{}, Root(c))

	var out bytes.Buffer
	err := c.Run(context.Background(), &Invocation{UserID: 2, Args: []string{"hi"}, Out: &out})
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Empty(t, out.String())

	require.NoError(t, c.Run(context.Background(), &Invocation{UserID: 1, Args: []string{"hi"}, Out: &out}))
	assert.Equal(t, "echo hi\n", out.String())
	assert.Len(t, r.GetAll(), 1)
}

func TestApplyOrderOutermostFirst(t *testing.T) {
	var trail []string
	mark := func(tag string) Middleware {
		return func(c Command) Command {
			return Wrap(c, func(ctx context.Context, inv *Invocation) error {
				trail = append(trail, tag)
				return c.Run(ctx, inv)
			})
		}
	}
	c := Apply(echo{admin: true}, mark("outer"), mark("inner"))
	require.NoError(t, c.Run(context.Background(), &Invocation{}))
	assert.Equal(t, []string{"outer", "inner"}, trail)
	assert.Equal(t, "echo", c.Name())
	assert.Equal(t, "echo args", c.Description())
	a, ok := Root(c).(AdminOnly)
	require.True(t, ok)
	assert.True(t, a.AdminOnly())
	assert.Equal(t, "", (&Invocation{}).Arg(3))
}
