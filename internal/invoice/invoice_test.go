package invoice

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnowflakeIDsAreUniqueAcrossGoroutines(t *testing.T) {
	gen, err := NewSnowflake(7, "INV")
	require.NoError(t, err)

	const workers, perWorker = 8, 500
	ids := make(chan string, workers*perWorker)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				ids <- gen.Next()
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]struct{}, workers*perWorker)
	for id := range ids {
		require.True(t, strings.HasPrefix(id, "INV-"), id)
		_, dup := seen[id]
		require.False(t, dup, "duplicate invoice id %s", id)
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, workers*perWorker)
}

func TestNewSnowflakeValidation(t *testing.T) {
	_, err := NewSnowflake(1024, "INV")
	assert.Error(t, err)

	gen, err := NewSnowflake(0, "  ")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(gen.Next(), "INV-"))
}
