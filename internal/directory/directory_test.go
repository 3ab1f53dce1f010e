package directory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingDirectory struct {
	Directory
	calls int
}

func (c *countingDirectory) Profile(ctx context.Context, id string) (Profile, error) {
	c.calls++
	return c.Directory.Profile(ctx, id)
}

func TestCached_ServesRepeatLookupsFromCache(t *testing.T) {
	inner := &countingDirectory{Directory: NewMemoryDirectory(Profile{ID: "alice", DisplayName: "Alice"})}
	d := NewCached(inner, 16, time.Minute)

	for i := 0; i < 3; i++ {
		p, err := d.Profile(context.Background(), "alice")
		require.NoError(t, err)
		assert.Equal(t, "Alice", p.DisplayName)
	}
	assert.Equal(t, 1, inner.calls)

	d.Invalidate("alice")
	_, err := d.Profile(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestCached_DoesNotCacheMisses(t *testing.T) {
	mem := NewMemoryDirectory()
	inner := &countingDirectory{Directory: mem}
	d := NewCached(inner, 16, time.Minute)

	_, err := d.Profile(context.Background(), "bob")
	require.ErrorIs(t, err, ErrNotFound)

	mem.Put(Profile{ID: "bob", DisplayName: "Bob"})
	p, err := d.Profile(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, "Bob", p.DisplayName)
	assert.Equal(t, 2, inner.calls)
}
