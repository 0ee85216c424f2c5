package ext2

import (
	"fmt"
	"sync"
)

// InodeCache is the process-wide map from inode index to live inode object
// (component H), guarded by a single mutex (lock #1 of the three-tier
// ordering). It holds one owning reference per entry; callers hold shared
// references acquired through GetInode and returned through Release,
// following the reference-counted-cache pattern: an entry's refcount
// reaching zero makes it eligible for eviction, not evicted outright, so a
// racing GetInode can still find and reuse it.
type InodeCache struct {
	fs *FileSystem

	mu      sync.Mutex
	entries map[Ino]*cacheEntry
}

type cacheEntry struct {
	live *LiveInode
	refs int
}

func NewInodeCache(fs *FileSystem) *InodeCache {
	return &InodeCache{fs: fs, entries: make(map[Ino]*cacheEntry)}
}

// GetInode returns the unique LiveInode for i, creating it on first access.
// Two concurrent calls for the same i are guaranteed to return the same
// pointer (P2): the double-checked-locking pattern in component H's
// description. The read of the on-disk record happens with the cache lock
// released, so it never blocks unrelated lookups; if another caller wins
// the race and inserts first, this call's read is discarded.
func (c *InodeCache) GetInode(i Ino) (*LiveInode, error) {
	c.mu.Lock()
	if entry, ok := c.entries[i]; ok {
		entry.refs++
		c.mu.Unlock()
		return entry.live, nil
	}
	c.mu.Unlock()

	raw, err := c.fs.ReadInode(i)
	if err != nil {
		return nil, fmt.Errorf("getting inode `%d`: %w", i, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[i]; ok {
		entry.refs++
		return entry.live, nil
	}

	live := newLiveInode(c.fs, i, raw)
	c.entries[i] = &cacheEntry{live: live, refs: 1}
	c.fs.log.WithField("ino", i).Debug("inode cache miss; installed new live inode")
	return live, nil
}

// Release drops the caller's reference to inode i. An entry whose refcount
// reaches zero remains cached (cheap to keep; eviction is opportunistic,
// not mandatory) but becomes eligible for removal by Evict.
func (c *InodeCache) Release(i Ino) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[i]; ok && entry.refs > 0 {
		entry.refs--
	}
}

// Evict forcibly drops inode i from the cache regardless of refcount. Used
// by unlink once an inode's links_count hits zero and its on-disk record is
// freed, so a stale LiveInode can never be handed out again for a reused
// index.
func (c *InodeCache) Evict(i Ino) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, i)
}
