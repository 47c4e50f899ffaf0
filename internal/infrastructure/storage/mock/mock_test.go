package mock

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tentens-tech/rental-deposit/internal/infrastructure/storage"
)

func TestStorageAppendAssignsDenseIDs(t *testing.T) {
	ctx := context.Background()
	s := New()

	for want := uint64(0); want < 3; want++ {
		id, err := s.Append(ctx, []byte("record"))
		require.NoError(t, err)
		assert.Equal(t, want, id)
	}

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), count)
}

func TestStorageGetPut(t *testing.T) {
	ctx := context.Background()
	s := New()

	id, err := s.Append(ctx, []byte("first"))
	require.NoError(t, err)

	_, version, err := s.Get(ctx, id)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, id, []byte("second"), version))

	data, newVersion, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), data)
	assert.Greater(t, newVersion, version)

	data[0] = 'X'
	again, _, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), again)

	_, _, err = s.Get(ctx, 7)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
	assert.True(t, errors.Is(s.Put(ctx, 7, nil, 0), storage.ErrNotFound))
}

func TestStoragePutStaleVersion(t *testing.T) {
	ctx := context.Background()
	s := New()

	id, err := s.Append(ctx, []byte("first"))
	require.NoError(t, err)
	_, version, err := s.Get(ctx, id)
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, id, []byte("second"), version))

	err = s.Put(ctx, id, []byte("third"), version)
	assert.True(t, errors.Is(err, storage.ErrConflict))

	data, _, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), data)
}

func TestStorageInjectedFailures(t *testing.T) {
	ctx := context.Background()
	s := New()
	boom := errors.New("boom")

	s.FailAppend = boom
	_, err := s.Append(ctx, []byte("x"))
	assert.Equal(t, boom, err)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestStorageConcurrentAppend(t *testing.T) {
	ctx := context.Background()
	s := New()

	numAppends := 100
	var wg sync.WaitGroup
	wg.Add(numAppends)

	ids := make(chan uint64, numAppends)
	for i := 0; i < numAppends; i++ {
		go func() {
			defer wg.Done()
			id, err := s.Append(ctx, []byte("x"))
			assert.NoError(t, err)
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[uint64]bool)
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	assert.Len(t, seen, numAppends)
}
