package offload

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bridgify/pkg/apperr"
)

func startedPool(t *testing.T, workers int) *Pool {
	t.Helper()
	p := New(workers)
	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(func() {
		_ = p.Close(context.Background())
	})
	return p
}

func TestNew_ClampsWorkersToAtLeastOne(t *testing.T) {
	p := New(0)
	require.NoError(t, p.Start(context.Background()))
	defer p.Close(context.Background())

	v, err := Run(context.Background(), p, func(ctx context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestRun_ReturnsValueAndNilError(t *testing.T) {
	p := startedPool(t, 2)

	v, err := Run(context.Background(), p, func(ctx context.Context) (string, error) {
		return "folders fetched", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "folders fetched", v)
}

func TestRun_PropagatesError(t *testing.T) {
	p := startedPool(t, 2)
	wantErr := errors.New("adapter call failed")

	_, err := Run(context.Background(), p, func(ctx context.Context) (int, error) {
		return 0, wantErr
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, wantErr)
}

func TestRun_CanceledContextReturnsTimeoutError(t *testing.T) {
	p := startedPool(t, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, p, func(ctx context.Context) (int, error) {
		time.Sleep(50 * time.Millisecond)
		return 1, nil
	})

	require.Error(t, err)
	assert.Equal(t, apperr.KindTimeout, apperr.AsRPCError(err).Kind)
}

func TestRun_ConcurrentCallsAreIndependent(t *testing.T) {
	p := startedPool(t, 4)

	var wg sync.WaitGroup
	results := make([]int, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := Run(context.Background(), p, func(ctx context.Context) (int, error) {
				return i * 2, nil
			})
			require.NoError(t, err)
			results[i] = v
		}(i)
	}
	wg.Wait()

	for i, v := range results {
		assert.Equal(t, i*2, v)
	}
}
