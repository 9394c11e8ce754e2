package parallel

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForEachVisitsEveryIndex(t *testing.T) {
	out := make([]int, 100)
	err := ForEach(context.Background(), len(out), 4, func(_ context.Context, i int) error {
		out[i] = i * i
		return nil
	})
	require.NoError(t, err)
	for i, v := range out {
		assert.Equal(t, i*i, v)
	}
}

func TestForEachReturnsFirstError(t *testing.T) {
	boom := errors.New("boom")
	var calls atomic.Int64
	err := ForEach(context.Background(), 50, 2, func(_ context.Context, i int) error {
		calls.Add(1)
		if i == 3 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
}

func TestForEachCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := ForEach(ctx, 10, 1, func(_ context.Context, i int) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParallelizeCoversRange(t *testing.T) {
	var seen [37]atomic.Bool
	ParallelizeWithThreshold(len(seen), 0, func(start, end int) {
		for i := start; i < end; i++ {
			seen[i].Store(true)
		}
	})
	for i := range seen {
		assert.True(t, seen[i].Load(), "index %d", i)
	}
}
