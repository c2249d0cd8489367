package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"dashboard-auth/internal/auth"
)

func TestIdentityCacheHitWithinTTL(t *testing.T) {
	clk := testingclock.NewFakePassiveClock(time.Now())
	c := New(time.Minute, clk)

	c.Set("tok", auth.Identity{ID: "1", Username: "alice"})

	clk.SetTime(clk.Now().Add(59 * time.Second))
	got, ok := c.Get("tok")
	require.True(t, ok)
	assert.Equal(t, "alice", got.Username)
}

func TestIdentityCacheExpiresAtTTL(t *testing.T) {
	clk := testingclock.NewFakePassiveClock(time.Now())
	c := New(time.Minute, clk)

	c.Set("tok", auth.Identity{ID: "1"})

	clk.SetTime(clk.Now().Add(time.Minute))
	_, ok := c.Get("tok")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len(), "expired entry is dropped on read")
}

func TestIdentityCacheMiss(t *testing.T) {
	c := New(time.Minute, nil)

	_, ok := c.Get("unknown")
	assert.False(t, ok)
}

func TestIdentityCacheReturnsCopies(t *testing.T) {
	c := New(time.Minute, nil)
	c.Set("tok", auth.Identity{ID: "1", Username: "alice"})

	got, ok := c.Get("tok")
	require.True(t, ok)
	got.Username = "mallory"

	again, ok := c.Get("tok")
	require.True(t, ok)
	assert.Equal(t, "alice", again.Username)
}

func TestIdentityCacheSetRestampsEntry(t *testing.T) {
	clk := testingclock.NewFakePassiveClock(time.Now())
	c := New(time.Minute, clk)

	c.Set("tok", auth.Identity{ID: "1"})
	clk.SetTime(clk.Now().Add(50 * time.Second))
	c.Set("tok", auth.Identity{ID: "1"})
	clk.SetTime(clk.Now().Add(50 * time.Second))

	_, ok := c.Get("tok")
	assert.True(t, ok)
}

func TestIdentityCachePrune(t *testing.T) {
	clk := testingclock.NewFakePassiveClock(time.Now())
	c := New(time.Minute, clk)

	c.Set("old", auth.Identity{ID: "1"})
	clk.SetTime(clk.Now().Add(30 * time.Second))
	c.Set("new", auth.Identity{ID: "2"})
	clk.SetTime(clk.Now().Add(40 * time.Second))

	assert.Equal(t, 1, c.Prune())
	assert.Equal(t, 1, c.Len())

	_, ok := c.Get("new")
	assert.True(t, ok)
}

func TestIdentityCacheConcurrentAccess(t *testing.T) {
	c := New(time.Minute, nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.Set("tok", auth.Identity{ID: "1"})
		}()
		go func() {
			defer wg.Done()
			c.Get("tok")
		}()
	}
	wg.Wait()

	_, ok := c.Get("tok")
	assert.True(t, ok)
}
