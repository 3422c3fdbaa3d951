package snowflake

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(DefaultEpoch + 10_000)}
}

func TestNewRejectsInvalidWorkerID(t *testing.T) {
	for _, id := range []int64{-1, 1024, 1 << 20} {
		_, err := New(id)
		require.ErrorIs(t, err, ErrInvalidWorkerID, "worker %d", id)
	}
	for _, id := range []int64{0, 1023} {
		_, err := New(id)
		require.NoError(t, err, "worker %d", id)
	}
}

func TestNewRejectsInvalidEpoch(t *testing.T) {
	_, err := New(1, WithEpoch(0))
	require.ErrorIs(t, err, ErrInvalidEpoch)

	_, err = New(1, WithEpoch(-5))
	require.ErrorIs(t, err, ErrInvalidEpoch)

	future := time.Now().Add(time.Hour).UnixMilli()
	_, err = New(1, WithEpoch(future))
	require.ErrorIs(t, err, ErrInvalidEpoch)
}

func TestGenerateRoundTripsThroughDeconstruct(t *testing.T) {
	clock := newFakeClock()
	g, err := New(37, WithClock(clock.Now))
	require.NoError(t, err)

	id, err := g.Generate()
	require.NoError(t, err)

	parts := g.Deconstruct(id)
	assert.Equal(t, clock.Now().UnixMilli(), parts.Timestamp)
	assert.Equal(t, int64(37), parts.WorkerID)
	assert.Equal(t, int64(0), parts.Sequence)
	assert.Equal(t, id, parts.ID)

	id2, err := g.Generate()
	require.NoError(t, err)
	assert.Equal(t, int64(1), g.Deconstruct(id2).Sequence)
	assert.Greater(t, id2, id)
}

func TestSequenceResetsOnNewMillisecond(t *testing.T) {
	clock := newFakeClock()
	g, err := New(1, WithClock(clock.Now))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := g.Generate()
		require.NoError(t, err)
	}
	clock.Advance(time.Millisecond)

	id, err := g.Generate()
	require.NoError(t, err)
	assert.Equal(t, int64(0), g.Deconstruct(id).Sequence)
}

func TestSequenceOverflowWaitsForNextMillisecond(t *testing.T) {
	clock := newFakeClock()
	g, err := New(5, WithClock(clock.Now))
	require.NoError(t, err)

	slept := 0
	g.sleep = func(time.Duration) {
		slept++
		clock.Advance(time.Millisecond)
	}

	start := clock.Now().UnixMilli()
	seen := make(map[ID]struct{}, 4097)
	for i := 0; i < 4096; i++ {
		id, err := g.Generate()
		require.NoError(t, err)
		seen[id] = struct{}{}
	}
	require.Zero(t, slept)

	id, err := g.Generate()
	require.NoError(t, err)
	seen[id] = struct{}{}

	parts := g.Deconstruct(id)
	assert.Equal(t, 1, slept)
	assert.Equal(t, start+1, parts.Timestamp)
	assert.Equal(t, int64(0), parts.Sequence)
	assert.Len(t, seen, 4097)
}

func TestClockMovedBackwards(t *testing.T) {
	clock := newFakeClock()
	g, err := New(1, WithClock(clock.Now))
	require.NoError(t, err)

	_, err = g.Generate()
	require.NoError(t, err)

	clock.Advance(-5 * time.Millisecond)
	_, err = g.Generate()
	require.ErrorIs(t, err, ErrClockMovedBackwards)

	clock.Advance(10 * time.Millisecond)
	_, err = g.Generate()
	require.NoError(t, err)
}

func TestSetEpochAndWorkerID(t *testing.T) {
	clock := newFakeClock()
	g, err := New(1, WithClock(clock.Now))
	require.NoError(t, err)

	require.ErrorIs(t, g.SetEpoch(0), ErrInvalidEpoch)
	require.ErrorIs(t, g.SetEpoch(clock.Now().Add(time.Second).UnixMilli()), ErrInvalidEpoch)
	require.ErrorIs(t, g.SetWorkerID(1024), ErrInvalidWorkerID)
	require.ErrorIs(t, g.SetWorkerID(-1), ErrInvalidWorkerID)

	before, err := g.Generate()
	require.NoError(t, err)

	newEpoch := DefaultEpoch + 5_000
	require.NoError(t, g.SetEpoch(newEpoch))
	assert.Equal(t, clock.Now().UnixMilli(), DeconstructWithEpoch(before, DefaultEpoch).Timestamp)

	require.NoError(t, g.SetWorkerID(1023))
	assert.Equal(t, newEpoch, g.Epoch())
	assert.Equal(t, int64(1023), g.WorkerID())

	id, err := g.Generate()
	require.NoError(t, err)
	parts := g.Deconstruct(id)
	assert.Equal(t, clock.Now().UnixMilli(), parts.Timestamp)
	assert.Equal(t, int64(1023), parts.WorkerID)

	assert.Equal(t, clock.Now().UnixMilli()-newEpoch, int64(id)>>timestampShift)

	// Decoding against the previous epoch yields a shifted timestamp.
	assert.Equal(t, parts.Timestamp-5_000, DeconstructWithEpoch(id, DefaultEpoch).Timestamp)
}

func TestReconfigureWithinFrozenMillisecondStaysUnique(t *testing.T) {
	clock := newFakeClock()
	g, err := New(5, WithClock(clock.Now))
	require.NoError(t, err)

	seen := make(map[ID]struct{})
	gen := func() {
		t.Helper()
		id, err := g.Generate()
		require.NoError(t, err)
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %d", id)
		seen[id] = struct{}{}
	}

	gen()
	require.NoError(t, g.SetWorkerID(6))
	gen()
	require.NoError(t, g.SetWorkerID(5))
	gen()

	require.NoError(t, g.SetEpoch(DefaultEpoch+5_000))
	gen()
	require.NoError(t, g.SetEpoch(DefaultEpoch))
	gen()

	assert.Len(t, seen, 5)
}

func TestConcurrentGenerateIsUnique(t *testing.T) {
	g, err := New(9)
	require.NoError(t, err)

	const workers, perWorker = 8, 2000
	var (
		mu   sync.Mutex
		seen = make(map[ID]struct{}, workers*perWorker)
		wg   sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]ID, 0, perWorker)
			for i := 0; i < perWorker; i++ {
				local = append(local, g.MustGenerate())
			}
			mu.Lock()
			for _, id := range local {
				seen[id] = struct{}{}
			}
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, workers*perWorker)
}

func TestParseID(t *testing.T) {
	g, err := New(3)
	require.NoError(t, err)
	id := g.MustGenerate()

	parsed, err := ParseID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	for _, bad := range []string{"", "abc", "-1", "1.5"} {
		_, err := ParseID(bad)
		assert.ErrorIs(t, err, ErrInvalidID, "input %q", bad)
	}
}
