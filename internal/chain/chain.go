// Package chain provides the block-ordered execution environment the store
// runs in: a block height, a block clock, and atomic operations that revert
// every journaled mutation on failure.
package chain

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config controls block production.
type Config struct {
	ChainID  uint64
	AutoMine bool          // mine one block per successful operation
	BlockGap time.Duration // block clock advance per mined block
	Genesis  time.Time
}

// Block identifies the block an operation executed in.
type Block struct {
	Height uint64 `json:"height"`
	Time   uint64 `json:"time"`
}

// Stats counts executed operations.
type Stats struct {
	Committed uint64 `json:"committed"`
	Reverted  uint64 `json:"reverted"`
}

// Chain serializes operations. Only one operation runs at a time.
type Chain struct {
	mu     sync.Mutex
	cfg    Config
	head   Block
	stats  Stats
	logger *slog.Logger
}

// New creates a chain at height zero.
func New(cfg Config, logger *slog.Logger) *Chain {
	if cfg.BlockGap <= 0 {
		cfg.BlockGap = 12 * time.Second
	}
	if cfg.Genesis.IsZero() {
		cfg.Genesis = time.Now()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{
		cfg:    cfg,
		head:   Block{Height: 0, Time: uint64(cfg.Genesis.Unix())},
		logger: logger.With(slog.String("component", "chain")),
	}
}

// ChainID returns the chain id used for signature domains.
func (c *Chain) ChainID() uint64 { return c.cfg.ChainID }

// Head returns the latest block.
func (c *Chain) Head() Block {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.head
}

// Stats returns operation counters.
func (c *Chain) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Mine advances the chain by n empty blocks and returns the new head.
func (c *Chain) Mine(n uint64) Block {
	c.mu.Lock()
	defer c.mu.Unlock()
	for range n {
		c.head = c.next(c.head)
	}
	return c.head
}

// View runs fn with the chain locked so reads observe a consistent state.
func (c *Chain) View(fn func(head Block)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c.head)
}

// Exec runs fn as one atomic operation sent by sender. If fn returns an error
// or panics, every undo registered on the Tx runs in reverse order.
func (c *Chain) Exec(ctx context.Context, sender common.Address, fn func(tx *Tx) error) (Block, error) {
	if err := ctx.Err(); err != nil {
		return Block{}, fmt.Errorf("chain: exec: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	blk := c.head
	if c.cfg.AutoMine {
		blk = c.next(c.head)
	}

	tx := &Tx{sender: sender, block: blk}
	if err := c.run(tx, fn); err != nil {
		tx.revert()
		c.stats.Reverted++
		return blk, err
	}

	tx.undo = nil
	c.head = blk
	c.stats.Committed++
	return blk, nil
}

func (c *Chain) run(tx *Tx, fn func(tx *Tx) error) error {
	defer func() {
		if r := recover(); r != nil {
			tx.revert()
			c.stats.Reverted++
			panic(r)
		}
	}()
	return fn(tx)
}

// Produce mines one block every interval until ctx is cancelled.
func (c *Chain) Produce(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.logger.Info("block producer started", slog.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			head := c.Mine(1)
			c.logger.Debug("block mined", slog.Uint64("height", head.Height))
		}
	}
}

func (c *Chain) next(b Block) Block {
	return Block{
		Height: b.Height + 1,
		Time:   b.Time + uint64(c.cfg.BlockGap/time.Second),
	}
}
