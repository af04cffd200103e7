package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllowlist(t *testing.T) {
	ctx := context.Background()
	a := NewAllowlist([]int64{10}, []int64{1})

	assert.True(t, a.IsAuthorized(ctx, 10))
	assert.True(t, a.IsAuthorized(ctx, 1))
	assert.False(t, a.IsAuthorized(ctx, 11))
	assert.True(t, a.IsAdmin(ctx, 1))
	assert.False(t, a.IsAdmin(ctx, 10))

	a.Grant(11)
	assert.True(t, a.IsAuthorized(ctx, 11))
	a.Revoke(11)
	assert.False(t, a.IsAuthorized(ctx, 11))
}
