package cache

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreate_SingleFlightUnderConcurrency(t *testing.T) {
	c := NewSingle[string, int]()
	var creations int32

	var wg sync.WaitGroup
	results := make([]int, 20)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.GetOrCreate("k", func() (int, error) {
				atomic.AddInt32(&creations, 1)
				return 42, nil
			})
			require.NoError(t, err)
			results[i] = v
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, creations)
	for _, v := range results {
		assert.Equal(t, 42, v)
	}
}

func TestGetOrCreate_PropagatesCreateError(t *testing.T) {
	c := NewSingle[string, int]()
	_, err := c.GetOrCreate("k", func() (int, error) {
		return 0, assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 0, c.Len())
}

func TestOnCreate_FiresOncePerKey(t *testing.T) {
	c := NewSingle[string, int]()
	var fired []string
	c.OnCreate(func(key string) { fired = append(fired, key) })

	_, err := c.GetOrCreate("a", func() (int, error) { return 1, nil })
	require.NoError(t, err)
	_, err = c.GetOrCreate("a", func() (int, error) { return 1, nil })
	require.NoError(t, err)
	_, err = c.GetOrCreate("b", func() (int, error) { return 2, nil })
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, fired)
}

func TestDelete_AllowsRecreate(t *testing.T) {
	c := NewSingle[string, int]()
	_, err := c.GetOrCreate("k", func() (int, error) { return 1, nil })
	require.NoError(t, err)
	c.Delete("k")
	assert.Equal(t, 0, c.Len())

	var creations int32
	_, err = c.GetOrCreate("k", func() (int, error) {
		atomic.AddInt32(&creations, 1)
		return 2, nil
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, creations)
}
