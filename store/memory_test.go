package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/insurekit/core"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	assert.Equal(t, "memory", s.Name())

	_, err := s.Get(ctx, "missing")
	assert.True(t, core.IsStoreNotFound(err))

	value := []byte("3")
	require.NoError(t, s.Set(ctx, "latest", value))
	value[0] = '9'

	got, err := s.Get(ctx, "latest")
	require.NoError(t, err)
	assert.Equal(t, []byte("3"), got)

	require.NoError(t, s.Delete(ctx, "latest"))
	_, err = s.Get(ctx, "latest")
	assert.True(t, core.IsStoreNotFound(err))
}

func TestMemoryStore_TTL(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1700000000, 0)
	s := NewMemoryStore()
	s.now = func() time.Time { return now }

	require.NoError(t, s.Set(ctx, "k", []byte("v"), 10))
	require.NoError(t, s.Set(ctx, "forever", []byte("v")))

	now = now.Add(5 * time.Second)
	_, err := s.Get(ctx, "k")
	require.NoError(t, err)

	now = now.Add(6 * time.Second)
	_, err = s.Get(ctx, "k")
	assert.True(t, core.IsStoreNotFound(err))

	_, err = s.Get(ctx, "forever")
	assert.NoError(t, err)
}

func TestMemoryStore_Close(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Set(ctx, "k", []byte("v")))
	require.NoError(t, s.Close())

	_, err := s.Get(ctx, "k")
	assert.True(t, core.IsStoreNotFound(err))
}
