// Package config holds the tick engine's construction-time parameters:
// worker count, footprint guard mode, and the retention defaults of
// spec.md §6.5. Modeled on the teacher's config/config.go Parameters
// struct — a validated value type with named presets — generalized from
// consensus sampling parameters to the WARP engine's own knobs.
package config

import (
	"errors"
	"fmt"

	"github.com/luxfi/warp/guard"
)

// Error variables for parameter validation, one per invalid field, in the
// teacher's style (config/config.go Err* vars) rather than a single opaque
// error.
var (
	ErrInvalidWorkerCount       = errors.New("engine: worker count must be >= 1")
	ErrInvalidShardCount        = errors.New("engine: shard count must be >= worker count")
	ErrInvalidProvenanceWindow  = errors.New("engine: provenance window must be >= 1 tick")
	ErrInvalidReceiptCacheSize  = errors.New("engine: receipt cache size must be >= 1")
	ErrInvalidCheckpointPeriod  = errors.New("engine: checkpoint interval must be >= 1 tick")
	ErrInvalidFrameRetention    = errors.New("engine: per-channel frame retention must be >= 1")
	ErrInvalidAtomWriteWindow   = errors.New("engine: atom-write history window must be >= 1 tick")
	ErrInvalidGuardMode         = errors.New("engine: unknown footprint guard mode")
	ErrInvalidDefaultChannelPol = errors.New("engine: unknown default materialization channel policy")
)

// DefaultChannelPolicy names a fallback materialization channel policy (log
// or strict single). Kept as a string here (rather than importing
// matbus.PolicyKind) to avoid a config → matbus → config import cycle.
// Valid checks it, but engine.New does not read it: a channel nobody
// registered finalizes under matbus's Log policy whatever this field holds.
type DefaultChannelPolicy string

const (
	ChannelPolicyLog          DefaultChannelPolicy = "log"
	ChannelPolicyStrictSingle DefaultChannelPolicy = "strict_single"
)

// Config is the tick engine's construction-time configuration (spec.md
// §6.5: "All values are configurable at engine construction").
type Config struct {
	// Workers is the number of BOAW worker goroutines (spec.md §4.5).
	Workers int
	// Shards must be >= Workers; Valid checks that, but nothing else reads
	// it: BOAW always partitions work into boaw.NumShards (256) fixed
	// virtual shards (spec.md §4.5).
	Shards int

	// GuardMode selects whether the footprint guard runs on every read/write
	// (spec.md §4.8). Enforced in development and release-with-enforcement
	// builds; Off only once a rule's footprint declarations are proven.
	GuardMode guard.Mode

	// ProvenanceWindow is how many ticks of patches remain queryable
	// (spec.md §6.5 "Provenance window: 1000 ticks of patches").
	ProvenanceWindow int
	// ReceiptCacheSize bounds the resident commit-receipt cache (spec.md
	// §6.5 "Receipt cache: 100 receipts").
	ReceiptCacheSize int
	// CheckpointInterval is how often a full snapshot is taken, in ticks
	// (spec.md §6.5 "Checkpoint interval: full snapshot every 100 ticks").
	CheckpointInterval int
	// ChannelFrameRetention is the per-channel frame retention count
	// (spec.md §6.5 "Per-channel frame retention: 50"). Valid checks it,
	// but nothing in the engine or matbus reads it.
	ChannelFrameRetention int
	// AtomWriteWindow is the attachment-write history depth in ticks
	// (spec.md §6.5 "Atom-write history window: 500 ticks"). Valid checks
	// it, but nothing in the engine reads it.
	AtomWriteWindow int

	// DefaultChannelPolicy is validated but not read by the engine; see the
	// DefaultChannelPolicy type.
	DefaultChannelPolicy DefaultChannelPolicy
}

// Default returns the engine's built-in defaults: spec.md §6.5's retention
// numbers, one worker per BOAW shard group of 32, and footprint guard
// enforced.
func Default() Config {
	return Config{
		Workers:   8,
		Shards:    256,
		GuardMode: guard.Enforced,

		ProvenanceWindow:      1000,
		ReceiptCacheSize:      100,
		CheckpointInterval:    100,
		ChannelFrameRetention: 50,
		AtomWriteWindow:       500,

		DefaultChannelPolicy: ChannelPolicyLog,
	}
}

// Valid validates c, mirroring the teacher's Parameters.Valid: every field
// is checked independently so the first violated invariant is reported by
// name rather than folded into one generic error.
func (c Config) Valid() error {
	if c.Workers < 1 {
		return ErrInvalidWorkerCount
	}
	if c.Shards < c.Workers {
		return ErrInvalidShardCount
	}
	if c.ProvenanceWindow < 1 {
		return ErrInvalidProvenanceWindow
	}
	if c.ReceiptCacheSize < 1 {
		return ErrInvalidReceiptCacheSize
	}
	if c.CheckpointInterval < 1 {
		return ErrInvalidCheckpointPeriod
	}
	if c.ChannelFrameRetention < 1 {
		return ErrInvalidFrameRetention
	}
	if c.AtomWriteWindow < 1 {
		return ErrInvalidAtomWriteWindow
	}
	if c.GuardMode != guard.Off && c.GuardMode != guard.Enforced {
		return ErrInvalidGuardMode
	}
	switch c.DefaultChannelPolicy {
	case ChannelPolicyLog, ChannelPolicyStrictSingle:
	default:
		return ErrInvalidDefaultChannelPol
	}
	return nil
}

// Validate is a compatibility alias for Valid, matching the teacher's
// Parameters.Validate/Valid pair.
func (c Config) Validate() error {
	return c.Valid()
}

// WithWorkers returns a copy of c with Workers set to n, matching the
// teacher's WithBlockTime copy-and-set pattern.
func (c Config) WithWorkers(n int) Config {
	c.Workers = n
	return c
}

func (e DefaultChannelPolicy) String() string {
	return string(e)
}

// mustValid is used by the named presets below, which are compiled-in
// constants and therefore must never fail validation; a panic here would
// indicate a programming error in this file, not bad user input.
func mustValid(c Config) Config {
	if err := c.Valid(); err != nil {
		panic(fmt.Sprintf("config: built-in preset failed validation: %v", err))
	}
	return c
}
