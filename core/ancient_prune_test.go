package core

import (
	"testing"
)

func TestPruneAncientNoOpWithoutStore(t *testing.T) {
	bc, _ := testChain(t)
	migrated, err := bc.PruneAncient(10)
	if err != nil {
		t.Fatalf("PruneAncient: %v", err)
	}
	if migrated != 0 {
		t.Fatalf("want 0 migrated without an ancient store, got %d", migrated)
	}
	if bc.AncientFrozen() != 0 {
		t.Fatalf("want 0 frozen without an ancient store")
	}
}

func TestPruneAncientMigratesFinalizedBlocks(t *testing.T) {
	bc, _ := testChain(t)

	if err := bc.EnableAncientStore(t.TempDir()); err != nil {
		t.Fatalf("EnableAncientStore: %v", err)
	}
	defer bc.CloseAncientStore()

	parent := bc.Genesis()
	for i := 0; i < 5; i++ {
		block := makeBlock(parent, nil)
		if err := bc.InsertBlock(block); err != nil {
			t.Fatalf("InsertBlock %d: %v", i, err)
		}
		parent = block
	}

	// Head is now block 5; retain=2 should migrate blocks [0, 3].
	migrated, err := bc.PruneAncient(2)
	if err != nil {
		t.Fatalf("PruneAncient: %v", err)
	}
	if migrated != 4 {
		t.Fatalf("want 4 migrated blocks, got %d", migrated)
	}
	if got := bc.AncientFrozen(); got != 4 {
		t.Fatalf("want 4 frozen, got %d", got)
	}

	// A second call with the same retention has nothing left to migrate.
	migrated, err = bc.PruneAncient(2)
	if err != nil {
		t.Fatalf("second PruneAncient: %v", err)
	}
	if migrated != 0 {
		t.Fatalf("want 0 migrated on second call, got %d", migrated)
	}
}

func TestPruneAncientRetainsEntireShortChain(t *testing.T) {
	bc, _ := testChain(t)
	if err := bc.EnableAncientStore(t.TempDir()); err != nil {
		t.Fatalf("EnableAncientStore: %v", err)
	}
	defer bc.CloseAncientStore()

	migrated, err := bc.PruneAncient(1000)
	if err != nil {
		t.Fatalf("PruneAncient: %v", err)
	}
	if migrated != 0 {
		t.Fatalf("want 0 migrated when chain is shorter than retention, got %d", migrated)
	}
}
