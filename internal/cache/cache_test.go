package cache

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSetExpire(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(time.Minute)

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, c.Set(ctx, "k", "v", 20*time.Millisecond))
	v, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	time.Sleep(40 * time.Millisecond)
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestIncrConcurrent(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.Incr(ctx, "n", time.Hour)
		}()
	}
	wg.Wait()

	n, err := c.Counter(ctx, "n")
	require.NoError(t, err)
	assert.EqualValues(t, 50, n)
}

func TestKeysByPrefixAndDelete(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(time.Minute)
	require.NoError(t, c.Set(ctx, "himera:injections:a", "1", 0))
	require.NoError(t, c.Set(ctx, "himera:injections:b", "2", 0))
	require.NoError(t, c.Set(ctx, "other", "3", 0))

	keys, err := c.Keys(ctx, "himera:injections:")
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"himera:injections:a", "himera:injections:b"}, keys)

	require.NoError(t, c.Delete(ctx, keys...))
	keys, err = c.Keys(ctx, "himera:injections:")
	require.NoError(t, err)
	assert.Empty(t, keys)
}
