package async_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/pkg/async"
)

func TestExecuteCollectsAllResults(t *testing.T) {
	pool := async.NewPool(2)

	tasks := []async.Task{
		{Name: "alpha", Execute: func() (interface{}, error) { return 1, nil }},
		{Name: "beta", Execute: func() (interface{}, error) { return "two", nil }},
		{Name: "gamma", Execute: func() (interface{}, error) { return nil, errors.New("boom") }},
	}

	results := pool.Execute(context.Background(), tasks)
	require.Len(t, results, 3)

	assert.Equal(t, 1, results["alpha"].Data)
	assert.NoError(t, results["alpha"].Err)
	assert.Equal(t, "two", results["beta"].Data)
	assert.EqualError(t, results["gamma"].Err, "boom")
}

func TestExecuteBoundsConcurrency(t *testing.T) {
	pool := async.NewPool(1)

	var running, peak int32
	task := func() (interface{}, error) {
		current := atomic.AddInt32(&running, 1)
		if current > atomic.LoadInt32(&peak) {
			atomic.StoreInt32(&peak, current)
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return nil, nil
	}

	results := pool.Execute(context.Background(), []async.Task{
		{Name: "a", Execute: task},
		{Name: "b", Execute: task},
		{Name: "c", Execute: task},
	})

	require.Len(t, results, 3)
	assert.Equal(t, int32(1), atomic.LoadInt32(&peak))
}

func TestExecuteReturnsPartialResultsOnCancel(t *testing.T) {
	pool := async.NewPool(1)
	ctx, cancel := context.WithCancel(context.Background())

	blocked := make(chan struct{})
	tasks := []async.Task{
		{Name: "fast", Execute: func() (interface{}, error) { return "done", nil }},
		{Name: "slow", Execute: func() (interface{}, error) {
			cancel()
			<-blocked
			return nil, nil
		}},
	}
	defer close(blocked)

	results := pool.Execute(ctx, tasks)
	assert.LessOrEqual(t, len(results), 1)
}
