package ext2

import (
	"bytes"
	"fmt"
	"sync"
)

// inlineSymlinkMax bounds the fast symlink encoding: a symlink whose target
// is shorter than this many bytes is stored inline in the inode's
// block-pointer array rather than in a data block.
const inlineSymlinkMax = 60

// LiveInode is the in-memory, lock-protected handle for one open inode
// (component I). Its own mutex is lock #2 of the three-tier ordering: held
// across block I/O, it may itself acquire the superblock/BGDT lock (#3) but
// must never acquire the inode-cache lock (#1) while held, since the cache
// is exactly what hands these handles out in the first place.
type LiveInode struct {
	fs  *FileSystem
	ino Ino

	mu  sync.Mutex
	raw *Inode

	blockListLoaded bool
	blockList       []Block

	lookupLoaded bool
	lookup_      map[string]Ino
}

func newLiveInode(fs *FileSystem, ino Ino, raw *Inode) *LiveInode {
	return &LiveInode{fs: fs, ino: ino, raw: raw}
}

func (li *LiveInode) Ino() Ino { return li.ino }

// Metadata returns a snapshot of the inode's fixed-size fields (component I
// / external interface inode_metadata).
func (li *LiveInode) Metadata() Inode {
	li.mu.Lock()
	defer li.mu.Unlock()
	return *li.raw
}

// blockCountLocked derives the number of logical blocks a file of raw.Size
// occupies given the mounted filesystem's block size. Every inode resolves
// through the normal block list except symlinks with size < inlineSymlinkMax,
// which are read inline and never touch the block list at all.
func (li *LiveInode) blockCountLocked() int {
	bs := li.fs.BlockSize()
	if li.raw.Size == 0 {
		return 0
	}
	n := (Byte(li.raw.Size) + bs - 1) / bs
	return int(n)
}

func (li *LiveInode) ensureBlockListLocked() error {
	if li.blockListLoaded {
		return nil
	}
	want := li.blockCountLocked()
	blocks, err := ResolveBlockList(li.fs, li.fs.BlockSize(), li.raw, want)
	if err != nil {
		return err
	}
	li.blockList = blocks
	li.blockListLoaded = true
	return nil
}

// isInlineSymlinkLocked reports whether this inode stores its symlink target
// inline in its block-pointer array rather than in a data block.
func (li *LiveInode) isInlineSymlinkLocked() bool {
	return li.raw.Mode.FileType == FileTypeSymlink && li.raw.Size < inlineSymlinkMax
}

// ReadBytes reads count bytes starting at offset into buf (component I /
// external interface read_inode_bytes for non-directories), returning the
// number of bytes actually read. A read that runs off the end of the file
// is truncated, not an error. Inline symlinks are read straight out of the
// inode's block-pointer array; everything else goes through the resolved
// block list. Any I/O error discards the whole read rather than returning a
// partial result, since the caller cannot tell which blocks landed.
func (li *LiveInode) ReadBytes(offset, count Byte, buf []byte) (Byte, error) {
	li.mu.Lock()
	defer li.mu.Unlock()

	if li.raw.Mode.FileType == FileTypeDir {
		return 0, fmt.Errorf("reading inode `%d`: %w", li.ino, IsADirErr)
	}

	size := Byte(li.raw.Size)
	if offset >= size {
		return 0, nil
	}
	if offset+count > size {
		count = size - offset
	}
	if count > Byte(len(buf)) {
		count = Byte(len(buf))
	}

	if li.isInlineSymlinkLocked() {
		target := inlineSymlinkBytes(li.raw)
		n := copy(buf[:count], target[offset:])
		return Byte(n), nil
	}

	if err := li.ensureBlockListLocked(); err != nil {
		return 0, fmt.Errorf("reading inode `%d`: %w", li.ino, err)
	}

	bs := li.fs.BlockSize()
	var read Byte
	for read < count {
		blockIdx := int((offset + read) / bs)
		inBlock := (offset + read) % bs
		if blockIdx >= len(li.blockList) {
			break
		}
		block := li.blockList[blockIdx]
		var blockBytes []byte
		if block == BlockNil {
			blockBytes = make([]byte, bs)
		} else {
			var err error
			blockBytes, err = li.fs.ReadBlock(block)
			if err != nil {
				return 0, fmt.Errorf("reading inode `%d`: %w", li.ino, err)
			}
		}
		n := Byte(copy(buf[read:count], blockBytes[inBlock:]))
		read += n
		if n == 0 {
			break
		}
	}
	return read, nil
}

// WriteBytes overwrites count bytes starting at offset (component I write).
// Per the resolved open question on partial-block rewrites, this engine only
// supports writes that stay within the file's already-allocated block
// count; any write that would grow the file onto a block beyond the current
// block list fails with UnsupportedErr rather than silently truncating or
// allocating new blocks mid-write (block growth is the exclusive job of the
// create/append path, which allocates before extending Size).
func (li *LiveInode) WriteBytes(offset Byte, data []byte) error {
	li.mu.Lock()
	defer li.mu.Unlock()

	if li.raw.Mode.FileType == FileTypeDir {
		return fmt.Errorf("writing inode `%d`: %w", li.ino, IsADirErr)
	}
	if err := li.ensureBlockListLocked(); err != nil {
		return fmt.Errorf("writing inode `%d`: %w", li.ino, err)
	}

	bs := li.fs.BlockSize()
	end := offset + Byte(len(data))
	if end > Byte(len(li.blockList))*bs {
		return fmt.Errorf("writing inode `%d`: %w", li.ino, UnsupportedErr)
	}

	var written Byte
	for written < Byte(len(data)) {
		blockIdx := int((offset + written) / bs)
		inBlock := (offset + written) % bs
		block := li.blockList[blockIdx]

		blockBytes, err := li.fs.ReadBlock(block)
		if err != nil {
			return fmt.Errorf("writing inode `%d`: %w", li.ino, err)
		}
		n := Byte(copy(blockBytes[inBlock:], data[written:]))
		if err := li.fs.WriteBlock(block, blockBytes); err != nil {
			return fmt.Errorf("writing inode `%d`: %w", li.ino, err)
		}
		written += n
	}

	if end > Byte(li.raw.Size) {
		li.raw.Size = uint64(end)
		if err := li.fs.WriteInode(li.ino, li.raw); err != nil {
			return fmt.Errorf("writing inode `%d`: %w", li.ino, err)
		}
	}
	return nil
}

func inlineSymlinkBytes(raw *Inode) []byte {
	buf := make([]byte, 0, inlineSymlinkMax)
	for _, b := range raw.Block {
		var be [4]byte
		EncodeUint32(uint32(b), be[:])
		buf = append(buf, be[:]...)
	}
	if int(raw.Size) < len(buf) {
		buf = buf[:raw.Size]
	}
	return bytes.TrimRight(buf, "\x00")
}

// TraverseAsDirectory reads the full directory and invokes visit for every
// live entry (component I / external interface traverse_directory); visit
// returning false stops the walk early.
func (li *LiveInode) TraverseAsDirectory(visit func(name []byte, child Ino, fileType FileType) bool) error {
	li.mu.Lock()
	defer li.mu.Unlock()

	if li.raw.Mode.FileType != FileTypeDir {
		return fmt.Errorf("traversing inode `%d`: %w", li.ino, NotADirErr)
	}
	if err := li.ensureBlockListLocked(); err != nil {
		return fmt.Errorf("traversing inode `%d`: %w", li.ino, err)
	}

	for _, block := range li.blockList {
		buf, err := li.fs.ReadBlock(block)
		if err != nil {
			return fmt.Errorf("traversing inode `%d`: %w", li.ino, err)
		}
		stop := false
		err = ParseDirEntries(buf, func(name []byte, child Ino, fileType FileType) bool {
			if !visit(name, child, fileType) {
				stop = true
				return false
			}
			return true
		})
		if err != nil {
			return fmt.Errorf("traversing inode `%d`: %w", li.ino, err)
		}
		if stop {
			return nil
		}
	}
	return nil
}

func (li *LiveInode) ensureLookupLocked() error {
	if li.lookupLoaded {
		return nil
	}
	if li.raw.Mode.FileType != FileTypeDir {
		return fmt.Errorf("building lookup table for inode `%d`: %w", li.ino, NotADirErr)
	}
	if err := li.ensureBlockListLocked(); err != nil {
		return err
	}

	table := make(map[string]Ino)
	for _, block := range li.blockList {
		buf, err := li.fs.ReadBlock(block)
		if err != nil {
			return err
		}
		err = ParseDirEntries(buf, func(name []byte, child Ino, fileType FileType) bool {
			table[string(name)] = child
			return true
		})
		if err != nil {
			return err
		}
	}
	li.lookup_ = table
	li.lookupLoaded = true
	return nil
}

// Lookup resolves name to a child inode index within this directory
// (component I / external interface get_inode support), lazily building and
// caching the full name table on first call.
func (li *LiveInode) Lookup(name []byte) (Ino, bool, error) {
	li.mu.Lock()
	defer li.mu.Unlock()
	if err := li.ensureLookupLocked(); err != nil {
		return InoNil, false, fmt.Errorf("looking up `%s` in inode `%d`: %w", name, li.ino, err)
	}
	ino, ok := li.lookup_[string(name)]
	return ino, ok, nil
}

// ReverseLookup scans this directory's cached name table for the entry
// pointing at child. It only consults the name table already built by
// Lookup (TraverseAsDirectory does not build it); a cold directory returns
// not-found rather than triggering I/O. FindParentOfInode does not use it:
// it matches entries during TraverseAsDirectory instead.
func (li *LiveInode) ReverseLookup(child Ino) ([]byte, bool) {
	li.mu.Lock()
	defer li.mu.Unlock()
	if !li.lookupLoaded {
		return nil, false
	}
	for name, ino := range li.lookup_ {
		if ino == child {
			return []byte(name), true
		}
	}
	return nil, false
}

// invalidateLookupLocked drops the cached name table after a structural
// change (entry added or removed) so the next Lookup rebuilds it from disk.
func (li *LiveInode) invalidateLookupLocked() {
	li.lookupLoaded = false
	li.lookup_ = nil
}

func (li *LiveInode) collectEntriesLocked() ([]DirEntryInput, error) {
	var out []DirEntryInput
	for _, block := range li.blockList {
		buf, err := li.fs.ReadBlock(block)
		if err != nil {
			return nil, err
		}
		err = ParseDirEntries(buf, func(name []byte, child Ino, fileType FileType) bool {
			nameCopy := make([]byte, len(name))
			copy(nameCopy, name)
			out = append(out, DirEntryInput{Name: nameCopy, Child: child, FileType: fileType})
			return true
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// writeEntriesLocked re-serializes entries and writes it across the
// directory's allocated blocks. growBy additional direct blocks are
// allocated first if the caller has already determined they're needed;
// growBy must be 0 when shrinking or rewriting in place.
func (li *LiveInode) writeEntriesLocked(entries []DirEntryInput, growBy int) error {
	bs := li.fs.BlockSize()

	for g := 0; g < growBy; g++ {
		if len(li.blockList) >= DirectBlocksCount {
			return fmt.Errorf("growing directory `%d`: %w", li.ino, UnsupportedErr)
		}
		groupIdx, blocks, err := li.fs.AllocateBlocks(int((li.ino-1)/Ino(li.fs.sb.InodesPerGroup)), 1)
		if err != nil {
			return fmt.Errorf("growing directory `%d`: %w", li.ino, err)
		}
		if err := li.fs.SetBlockAllocationState(groupIdx, blocks[0], true); err != nil {
			return fmt.Errorf("growing directory `%d`: %w", li.ino, err)
		}
		li.raw.Block[len(li.blockList)] = blocks[0]
		li.blockList = append(li.blockList, blocks[0])
	}

	totalSize := Byte(len(li.blockList)) * bs
	buf, err := serializeDirEntriesFixedSize(entries, totalSize)
	if err != nil {
		return fmt.Errorf("writing directory `%d`: %w", li.ino, err)
	}

	for idx, block := range li.blockList {
		if err := li.fs.WriteBlock(block, buf[Byte(idx)*bs:Byte(idx+1)*bs]); err != nil {
			return fmt.Errorf("writing directory `%d`: %w", li.ino, err)
		}
	}

	li.raw.Size = uint64(totalSize)
	li.raw.Size512 = uint32(totalSize / 512)
	if err := li.fs.WriteInode(li.ino, li.raw); err != nil {
		return fmt.Errorf("writing directory `%d`: %w", li.ino, err)
	}
	li.invalidateLookupLocked()
	return nil
}

// AppendEntry adds one directory entry (component I / the create/mkdir
// composite operation's final step). It fails with ExistsErr if name is
// already present, and tries to fit the grown entry list into the
// directory's existing blocks before allocating one more direct block; a
// directory that has exhausted all 12 direct pointers fails with
// UnsupportedErr rather than growing into indirect blocks.
func (li *LiveInode) AppendEntry(name []byte, child Ino, fileType FileType) error {
	li.mu.Lock()
	defer li.mu.Unlock()

	if li.raw.Mode.FileType != FileTypeDir {
		return fmt.Errorf("adding entry to inode `%d`: %w", li.ino, NotADirErr)
	}
	if err := li.ensureBlockListLocked(); err != nil {
		return fmt.Errorf("adding entry to inode `%d`: %w", li.ino, err)
	}

	entries, err := li.collectEntriesLocked()
	if err != nil {
		return fmt.Errorf("adding entry to inode `%d`: %w", li.ino, err)
	}
	for _, e := range entries {
		if bytes.Equal(e.Name, name) {
			return fmt.Errorf("adding entry `%s` to inode `%d`: %w", name, li.ino, ExistsErr)
		}
	}
	entries = append(entries, DirEntryInput{Name: name, Child: child, FileType: fileType})

	minSize, err := minDirEntriesSize(entries)
	if err != nil {
		return fmt.Errorf("adding entry to inode `%d`: %w", li.ino, err)
	}

	bs := li.fs.BlockSize()
	currentCapacity := Byte(len(li.blockList)) * bs
	growBy := 0
	if minSize > currentCapacity {
		growBy = int(divRoundUpByte(minSize-currentCapacity, bs))
	}

	return li.writeEntriesLocked(entries, growBy)
}

// RemoveEntry deletes the directory entry named name (component I / the
// unlink composite operation's parent-side step). It zeroes the matching
// record's inode field in place and leaves rec_len, the name, and every
// neighboring record untouched: a tombstoned slot, not a shifted one.
// ParseDirEntries already treats Ino == 0 as a dead record, so the
// tombstone is simply skipped by future traversals and lookups.
func (li *LiveInode) RemoveEntry(name []byte) (Ino, error) {
	li.mu.Lock()
	defer li.mu.Unlock()

	if li.raw.Mode.FileType != FileTypeDir {
		return InoNil, fmt.Errorf("removing entry from inode `%d`: %w", li.ino, NotADirErr)
	}
	if err := li.ensureBlockListLocked(); err != nil {
		return InoNil, fmt.Errorf("removing entry from inode `%d`: %w", li.ino, err)
	}

	for _, block := range li.blockList {
		buf, err := li.fs.ReadBlock(block)
		if err != nil {
			return InoNil, fmt.Errorf("removing entry from inode `%d`: %w", li.ino, err)
		}

		offset, found, err := LocateDirEntry(buf, name)
		if err != nil {
			return InoNil, fmt.Errorf("removing entry from inode `%d`: %w", li.ino, err)
		}
		if !found {
			continue
		}

		var entry DirEntry
		header := (*[DirEntryHeaderSize]byte)(buf[offset : offset+DirEntryHeaderSize])
		DecodeDirEntryHeader(&entry, header)
		removed := entry.Ino

		entry.Ino = InoNil
		entry.FileType = FileTypeUnknown
		EncodeDirEntryHeader(&entry, header)

		if err := li.fs.WriteBlock(block, buf); err != nil {
			return InoNil, fmt.Errorf("removing entry from inode `%d`: %w", li.ino, err)
		}
		li.invalidateLookupLocked()
		return removed, nil
	}

	return InoNil, fmt.Errorf("removing entry `%s` from inode `%d`: %w", name, li.ino, NotFoundErr)
}
