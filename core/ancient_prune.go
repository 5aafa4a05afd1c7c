package core

import (
	"fmt"

	"github.com/guillotine/guillotine/core/rawdb"
)

// EnableAncientStore opens an ancient store rooted at dataDir and attaches it
// to the chain, enabling PruneAncient. Call once during node startup, before
// any PruneAncient call.
func (bc *Blockchain) EnableAncientStore(dataDir string) error {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	store, err := rawdb.NewAncientStore(rawdb.AncientStoreConfig{DataDir: dataDir})
	if err != nil {
		return fmt.Errorf("enable ancient store: %w", err)
	}
	bc.ancient = store
	return nil
}

// PruneAncient migrates finalized blocks older than (head - retain) out of
// the hot key-value store and into the ancient store's append-only tables,
// then records the new retention boundary via rawdb.WriteHistoryOldest per
// EIP-4444. It is a no-op until EnableAncientStore has been called, or while
// the chain has fewer than retain blocks.
func (bc *Blockchain) PruneAncient(retain uint64) (uint64, error) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	if bc.ancient == nil {
		return 0, nil
	}
	head := bc.currentBlock.NumberU64()
	if head <= retain {
		return 0, nil
	}
	end := head - retain
	start := bc.ancient.Frozen()
	if start > end {
		return 0, nil
	}
	migrated, err := bc.ancient.MigrateFromDB(bc.db, start, end)
	if err != nil {
		return migrated, fmt.Errorf("prune ancient: %w", err)
	}
	if migrated > 0 {
		if err := rawdb.WriteHistoryOldest(bc.db, end+1); err != nil {
			return migrated, fmt.Errorf("prune ancient: record oldest: %w", err)
		}
	}
	return migrated, nil
}

// AncientFrozen returns the number of blocks migrated into the ancient
// store, or 0 if no ancient store is attached.
func (bc *Blockchain) AncientFrozen() uint64 {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	if bc.ancient == nil {
		return 0
	}
	return bc.ancient.Frozen()
}

// CloseAncientStore closes the ancient store, if one was opened.
func (bc *Blockchain) CloseAncientStore() error {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	if bc.ancient == nil {
		return nil
	}
	err := bc.ancient.Close()
	bc.ancient = nil
	return err
}
