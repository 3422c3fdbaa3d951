package snowflake

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"
)

const (
	// DefaultEpoch is 2025-01-11T00:00:00Z in unix milliseconds.
	DefaultEpoch int64 = 1736572800000

	// MaxWorkerID is the largest worker id that fits the 10-bit field.
	MaxWorkerID int64 = 1<<workerBits - 1

	timestampBits = 41
	workerBits    = 10
	sequenceBits  = 12

	workerShift    = sequenceBits
	timestampShift = sequenceBits + workerBits

	maxSequence  int64 = 1<<sequenceBits - 1
	maxTimestamp int64 = 1<<timestampBits - 1
)

var (
	// ErrInvalidEpoch is returned for epochs that are not positive or lie in the future.
	ErrInvalidEpoch = errors.New("snowflake: invalid epoch")
	// ErrInvalidWorkerID is returned for worker ids outside [0, MaxWorkerID].
	ErrInvalidWorkerID = errors.New("snowflake: invalid worker id")
	// ErrClockMovedBackwards is returned when the clock reads earlier than the last generated id.
	ErrClockMovedBackwards = errors.New("snowflake: clock moved backwards")
	// ErrTimestampOverflow is returned once the 41-bit timestamp range is exhausted.
	ErrTimestampOverflow = errors.New("snowflake: timestamp overflow")
	// ErrInvalidID is returned by ParseID for malformed input.
	ErrInvalidID = errors.New("snowflake: invalid id")
)

// ID is a generated snowflake identifier.
type ID int64

// String returns the decimal representation used on the wire.
func (id ID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// Int64 returns the raw value.
func (id ID) Int64() int64 {
	return int64(id)
}

// Time returns the wall-clock instant encoded in id for the given epoch.
func (id ID) Time(epoch int64) time.Time {
	return time.UnixMilli(DeconstructWithEpoch(id, epoch).Timestamp)
}

// ParseID parses the decimal form produced by ID.String.
func ParseID(s string) (ID, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	return ID(v), nil
}

// Parts is the decoded form of an ID.
type Parts struct {
	ID        ID
	Timestamp int64 // unix milliseconds
	WorkerID  int64
	Sequence  int64
}

// Option configures a Generator.
type Option func(*Generator)

// WithEpoch overrides DefaultEpoch. Validation happens in New.
func WithEpoch(epochMs int64) Option {
	return func(g *Generator) {
		g.epoch = epochMs
	}
}

// WithClock injects the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		if now != nil {
			g.now = now
		}
	}
}

// Generator produces IDs for a single worker. It is safe for concurrent use.
type Generator struct {
	mu       sync.Mutex
	epoch    int64
	workerID int64
	lastTS   int64
	sequence int64
	now      func() time.Time
	sleep    func(time.Duration)
}

// New creates a Generator for workerID.
func New(workerID int64, opts ...Option) (*Generator, error) {
	g := &Generator{
		epoch:  DefaultEpoch,
		lastTS: -1,
		now:    time.Now,
		sleep:  time.Sleep,
	}
	for _, opt := range opts {
		opt(g)
	}
	if err := validateWorkerID(workerID); err != nil {
		return nil, err
	}
	if err := validateEpoch(g.epoch, g.now()); err != nil {
		return nil, err
	}
	g.workerID = workerID
	return g, nil
}

// SetEpoch changes the epoch for subsequently generated IDs. IDs generated
// before the change keep their original encoding. The last issued timestamp is
// rebased onto the new epoch so the sequence keeps counting within the same
// wall-clock millisecond.
func (g *Generator) SetEpoch(epochMs int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := validateEpoch(epochMs, g.now()); err != nil {
		return err
	}
	if g.lastTS >= 0 {
		g.lastTS += g.epoch - epochMs
	}
	g.epoch = epochMs
	return nil
}

// SetWorkerID changes the worker id for subsequently generated IDs.
func (g *Generator) SetWorkerID(workerID int64) error {
	if err := validateWorkerID(workerID); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.workerID = workerID
	return nil
}

// Epoch returns the current epoch in unix milliseconds.
func (g *Generator) Epoch() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.epoch
}

// WorkerID returns the current worker id.
func (g *Generator) WorkerID() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.workerID
}

// Generate returns the next ID. It blocks for at most one millisecond when the
// per-millisecond sequence is exhausted.
func (g *Generator) Generate() (ID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ts := g.elapsed()
	if ts < g.lastTS {
		return 0, fmt.Errorf("%w: %dms", ErrClockMovedBackwards, g.lastTS-ts)
	}

	if ts == g.lastTS {
		g.sequence = (g.sequence + 1) & maxSequence
		if g.sequence == 0 {
			ts = g.waitNextMillis(g.lastTS)
		}
	} else {
		g.sequence = 0
	}

	if ts > maxTimestamp {
		return 0, ErrTimestampOverflow
	}

	g.lastTS = ts
	id := ts<<timestampShift | g.workerID<<workerShift | g.sequence
	return ID(id), nil
}

// MustGenerate is Generate that panics on error.
func (g *Generator) MustGenerate() ID {
	id, err := g.Generate()
	if err != nil {
		panic(err)
	}
	return id
}

// Deconstruct decodes id using the generator's current epoch.
func (g *Generator) Deconstruct(id ID) Parts {
	return DeconstructWithEpoch(id, g.Epoch())
}

// DeconstructWithEpoch decodes id against an explicit epoch.
func DeconstructWithEpoch(id ID, epoch int64) Parts {
	raw := int64(id)
	return Parts{
		ID:        id,
		Timestamp: (raw >> timestampShift) + epoch,
		WorkerID:  (raw >> workerShift) & MaxWorkerID,
		Sequence:  raw & maxSequence,
	}
}

func (g *Generator) elapsed() int64 {
	return g.now().UnixMilli() - g.epoch
}

// waitNextMillis spins on the clock until it passes last. Called with g.mu held.
func (g *Generator) waitNextMillis(last int64) int64 {
	ts := g.elapsed()
	for ts <= last {
		g.sleep(100 * time.Microsecond)
		ts = g.elapsed()
	}
	return ts
}

func validateEpoch(epochMs int64, now time.Time) error {
	if epochMs <= 0 {
		return fmt.Errorf("%w: must be positive, got %d", ErrInvalidEpoch, epochMs)
	}
	if epochMs > now.UnixMilli() {
		return fmt.Errorf("%w: %d is in the future", ErrInvalidEpoch, epochMs)
	}
	return nil
}

func validateWorkerID(workerID int64) error {
	if workerID < 0 || workerID > MaxWorkerID {
		return fmt.Errorf("%w: %d not in [0,%d]", ErrInvalidWorkerID, workerID, MaxWorkerID)
	}
	return nil
}
