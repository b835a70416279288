package chanerr

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrReturnsNilWhenNothingAdded(t *testing.T) {
	var c Collector
	assert.NoError(t, c.Err())
}

func TestErrIgnoresNilAdds(t *testing.T) {
	var c Collector
	c.Add(nil)
	c.Add(nil)
	assert.NoError(t, c.Err())
}

func TestErrAggregatesMultipleFailures(t *testing.T) {
	var c Collector
	errA := errors.New("socket close failed")
	errB := errors.New("spill file close failed")
	c.Add(errA)
	c.Add(errB)

	err := c.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "socket close failed")
	assert.Contains(t, err.Error(), "spill file close failed")
}

func TestAddIsSafeForConcurrentUse(t *testing.T) {
	var c Collector
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			c.Add(errors.New("failure"))
		}(i)
	}
	wg.Wait()
	require.Error(t, c.Err())
}
