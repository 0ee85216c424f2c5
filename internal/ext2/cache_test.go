package ext2

import "testing"

func TestInodeCache_GetInode_SamePointer(t *testing.T) {
	// Given a freshly formatted filesystem
	fs, _ := testVolume(t, 512, 1024, 64)

	// When the root inode is fetched twice
	a, err := fs.cache.GetInode(InoRoot)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	b, err := fs.cache.GetInode(InoRoot)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	// Then both calls return the identical LiveInode pointer
	if a != b {
		t.Fatalf("wanted the same `*LiveInode`; found distinct pointers")
	}

	entry := fs.cache.entries[InoRoot]
	if entry.refs != 2 {
		t.Fatalf("wanted refcount `2`; found `%d`", entry.refs)
	}

	// And releasing both drops the refcount back to zero without evicting
	fs.cache.Release(InoRoot)
	fs.cache.Release(InoRoot)
	if entry.refs != 0 {
		t.Fatalf("wanted refcount `0`; found `%d`", entry.refs)
	}
	if _, ok := fs.cache.entries[InoRoot]; !ok {
		t.Fatal("wanted the entry to remain cached at refcount `0`")
	}
}

func TestInodeCache_Evict(t *testing.T) {
	// Given a cached inode
	fs, _ := testVolume(t, 512, 1024, 64)
	live, err := fs.cache.GetInode(InoRoot)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	_ = live

	// When it's evicted
	fs.cache.Evict(InoRoot)

	// Then it's gone from the map, and fetching it again builds a fresh entry
	if _, ok := fs.cache.entries[InoRoot]; ok {
		t.Fatal("wanted the entry gone after eviction")
	}
	again, err := fs.cache.GetInode(InoRoot)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if again == live {
		t.Fatal("wanted a freshly built `*LiveInode`; found the evicted one reused")
	}
}
