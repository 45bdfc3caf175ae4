package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyedRateLimiter_Allow(t *testing.T) {
	tests := []struct {
		name     string
		rps      float64
		burst    int
		calls    int
		wantPass int
	}{
		{"burst allows initial requests", 1, 3, 3, 3},
		{"exceeding burst blocks", 1, 2, 5, 2},
		{"zero rps disables limiting", 0, 0, 50, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rl := New(tt.rps, tt.burst, time.Minute)
			passed := 0
			for range tt.calls {
				if rl.Allow("k") {
					passed++
				}
			}
			assert.Equal(t, tt.wantPass, passed)
		})
	}
}

func TestKeyedRateLimiter_IndependentKeys(t *testing.T) {
	rl := New(1, 1, time.Minute)

	assert.True(t, rl.Allow("user:1"))
	assert.False(t, rl.Allow("user:1"))
	assert.True(t, rl.Allow("user:2"))
}

func TestKeyedRateLimiter_Refills(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := New(10, 1, time.Minute)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("k"))
	assert.False(t, rl.Allow("k"))

	now = now.Add(100 * time.Millisecond)
	assert.True(t, rl.Allow("k"))
}

func TestKeyedRateLimiter_Sweep(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := New(1, 1, time.Minute)
	rl.now = func() time.Time { return now }

	rl.Allow("old")
	now = now.Add(45 * time.Second)
	rl.Allow("fresh")
	now = now.Add(30 * time.Second)

	assert.Equal(t, 1, rl.Sweep())
	assert.Equal(t, 1, rl.Len())

	// A swept key starts over with a full bucket.
	assert.True(t, rl.Allow("old"))
}

func TestKeyedRateLimiter_Concurrent(t *testing.T) {
	rl := New(1, 10, time.Minute)

	var mu sync.Mutex
	passed := 0
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.Allow("shared") {
				mu.Lock()
				passed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, passed, 11)
	assert.GreaterOrEqual(t, passed, 10)
}
