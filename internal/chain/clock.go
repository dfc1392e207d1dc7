// Package chain supplies the two environment readings every request needs:
// wall-clock seconds for accrual and a block height for the antibot gate.
package chain

import (
	"sync"
	"sync/atomic"
	"time"
)

// Clock is read once per request; both readings are stamped on the
// journal entry.
type Clock interface {
	Now() int64     // unix seconds
	Block() uint64 // current block height
}

// BlockClock pairs the system wall clock with a monotonic block counter.
//
// Thread-safety: safe for concurrent use (atomic operations). The block
// producer is normally the only writer.
type BlockClock struct {
	height atomic.Uint64
	now    func() time.Time
}

// NewBlockClock creates a clock at block 0.
func NewBlockClock() *BlockClock {
	return NewBlockClockAt(0)
}

// NewBlockClockAt resumes the counter at a known height, e.g. the block
// of the last committed journal entry.
func NewBlockClockAt(height uint64) *BlockClock {
	c := &BlockClock{now: time.Now}
	c.height.Store(height)
	return c
}

func (c *BlockClock) Now() int64 {
	return c.now().Unix()
}

func (c *BlockClock) Block() uint64 {
	return c.height.Load()
}

// Advance produces the next block and returns its height.
func (c *BlockClock) Advance() uint64 {
	return c.height.Add(1)
}

// ManualClock is a Clock driven entirely by the caller. Used in tests.
type ManualClock struct {
	mu    sync.Mutex
	now   int64
	block uint64
}

// NewManualClock creates a clock at the given time and block.
func NewManualClock(now int64, block uint64) *ManualClock {
	return &ManualClock{now: now, block: block}
}

func (c *ManualClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Block() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.block
}

// Set moves the clock to an absolute time and block.
func (c *ManualClock) Set(now int64, block uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
	c.block = block
}

// Tick advances time by seconds and the height by blocks.
func (c *ManualClock) Tick(seconds int64, blocks uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += seconds
	c.block += blocks
}
