package engine

import (
	"fmt"

	"github.com/luxfi/warp/snapshot"
)

// EncodeReceipt serializes the commitment for a resident tick at the given
// mode (spec.md §6.4), drawing the receipt, commit hash, state root, and
// emissions digest from the engine's retention windows.
func (e *Engine) EncodeReceipt(tick uint64, mode snapshot.ReceiptMode) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap, ok := e.snapshots.Get(tick)
	if !ok {
		return nil, fmt.Errorf("engine: tick %d snapshot evicted from receipt cache", tick)
	}
	receipt, ok := e.receipts.Get(tick)
	if !ok {
		return nil, fmt.Errorf("engine: tick %d receipt evicted from receipt cache", tick)
	}
	emissionsDigest, ok := e.emissionsDigests.Get(tick)
	if !ok {
		return nil, fmt.Errorf("engine: tick %d emissions digest evicted from receipt cache", tick)
	}

	return snapshot.EncodeReceiptEnvelope(snapshot.ReceiptEnvelope{
		Mode:            mode,
		CommitHash:      snap.CommitHash,
		StateRoot:       snap.StateRoot,
		EmissionsDigest: emissionsDigest,
		Receipt:         receipt,
	})
}
