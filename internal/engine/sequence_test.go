package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequencerStartsAtZero(t *testing.T) {
	s := NewSequencer()
	assert.Equal(t, int64(0), s.Next())
	assert.Equal(t, int64(1), s.Next())
	assert.Equal(t, int64(2), s.Current())
}

func TestSequencerConcurrentUniqueness(t *testing.T) {
	s := NewSequencer()
	const n = 100

	var wg sync.WaitGroup
	results := make(chan int64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- s.Next()
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[int64]bool)
	for seq := range results {
		assert.False(t, seen[seq], "sequence %d issued twice", seq)
		seen[seq] = true
	}
	assert.Len(t, seen, n)
}
