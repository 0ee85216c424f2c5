package ext2

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// group is the runtime state this engine keeps for one block group: its
// descriptor plus its two loaded bitmaps. Mutation of any of these three
// fields happens only while the owning FileSystem's mu (lock #3, the
// superblock/BGDT lock) is held.
type group struct {
	desc        GroupDesc
	blockBitmap *Bitmap
	inodeBitmap *Bitmap
}

// FileSystem is the superblock/BGDT manager (component B) plus the
// disk-backed store (component A): it owns the volume, the superblock, the
// BGDT, and every group's bitmaps, and is the lock #3 of the three-tier
// ordering in the concurrency model.
type FileSystem struct {
	id     FilesystemID
	volume Volume
	log    *logrus.Entry

	mu     sync.Mutex
	sb     Superblock
	groups []group

	cache *InodeCache
}

// Mount loads an existing ext2 image from volume: superblock, BGDT, and
// every group's bitmaps. It fails with CorruptErr if the superblock magic
// or block-group count is invalid (component B's InvalidSuperblock case).
func Mount(volume Volume, log *logrus.Logger) (*FileSystem, error) {
	if log == nil {
		log = logrus.New()
	}
	id := uuid.New()

	var raw [SuperblockSize]byte
	if err := volume.ReadAt(SuperblockOffset, raw[:]); err != nil {
		return nil, fmt.Errorf("mounting filesystem: %w", err)
	}
	sb, err := DecodeSuperblock(&raw, false)
	if err != nil {
		return nil, fmt.Errorf("mounting filesystem: %w", err)
	}

	fs := &FileSystem{
		id:     FilesystemID(id),
		volume: volume,
		log:    logrus.NewEntry(log).WithField("fs", id.String()),
		sb:     sb,
	}
	fs.cache = NewInodeCache(fs)

	if err := fs.loadGroups(); err != nil {
		return nil, fmt.Errorf("mounting filesystem: %w", err)
	}

	fs.log.WithFields(logrus.Fields{
		"blocks":      sb.BlocksCount,
		"inodes":      sb.InodesCount,
		"block_size":  sb.BlockSize(),
		"group_count": sb.GroupCount(),
	}).Info("mounted ext2 filesystem")

	return fs, nil
}

func (fs *FileSystem) ID() FilesystemID { return fs.id }

func (fs *FileSystem) BlockSize() Byte { return fs.sb.BlockSize() }

// bgdtStartBlock is the first block of the block-group descriptor table:
// block 2 when the filesystem block size is 1024 (since the superblock
// occupies block 1 in that case), block 1 otherwise (the superblock shares
// block 0 with the boot block).
func (fs *FileSystem) bgdtStartBlock() Block {
	if fs.sb.BlockSize() == 1024 {
		return 2
	}
	return 1
}

func (fs *FileSystem) loadGroups() error {
	groupCount := fs.sb.GroupCount()
	if groupCount == 0 {
		return fmt.Errorf("loading block groups: %w", CorruptErr)
	}

	bgdtBlocks := divRoundUpByte(Byte(groupCount)*GroupDescSize, fs.sb.BlockSize())
	bgdtBytes := make([]byte, Byte(bgdtBlocks)*fs.sb.BlockSize())
	if err := fs.volume.ReadAt(Byte(fs.bgdtStartBlock())*fs.sb.BlockSize(), bgdtBytes); err != nil {
		return fmt.Errorf("reading block group descriptor table: %w", err)
	}

	groups := make([]group, groupCount)
	for i := range groups {
		off := Byte(i) * GroupDescSize
		groups[i].desc = DecodeGroupDesc((*[GroupDescSize]byte)(bgdtBytes[off : off+GroupDescSize]))
	}

	for i := range groups {
		blockBitmapBytes := make([]byte, divRoundUpByte(Byte(fs.sb.BlocksPerGroup), 8))
		if err := fs.volume.ReadAt(Byte(groups[i].desc.BlockBitmap)*fs.sb.BlockSize(), blockBitmapBytes); err != nil {
			return fmt.Errorf("reading block bitmap for group `%d`: %w", i+1, err)
		}
		groups[i].blockBitmap = NewBitmap(blockBitmapBytes)

		inodeBitmapBytes := make([]byte, divRoundUpByte(Byte(fs.sb.InodesPerGroup), 8))
		if err := fs.volume.ReadAt(Byte(groups[i].desc.InodeBitmap)*fs.sb.BlockSize(), inodeBitmapBytes); err != nil {
			return fmt.Errorf("reading inode bitmap for group `%d`: %w", i+1, err)
		}
		groups[i].inodeBitmap = NewBitmap(inodeBitmapBytes)
	}

	fs.groups = groups
	return nil
}

// ReadBlock implements BlockReader (component A): a typed read of one
// fixed-size logical block.
func (fs *FileSystem) ReadBlock(b Block) ([]byte, error) {
	buf := make([]byte, fs.sb.BlockSize())
	if err := fs.volume.ReadAt(Byte(b)*fs.sb.BlockSize(), buf); err != nil {
		return nil, fmt.Errorf("reading block `%d`: %w", b, err)
	}
	return buf, nil
}

// WriteBlock implements the write half of component A.
func (fs *FileSystem) WriteBlock(b Block, data []byte) error {
	if Byte(len(data)) != fs.sb.BlockSize() {
		return fmt.Errorf(
			"writing block `%d`: expected `%d` bytes, got `%d`",
			b,
			fs.sb.BlockSize(),
			len(data),
		)
	}
	if err := fs.volume.WriteAt(Byte(b)*fs.sb.BlockSize(), data); err != nil {
		return fmt.Errorf("writing block `%d`: %w", b, err)
	}
	return nil
}

// writeSuperblock persists the superblock to both its 512-byte sector
// halves at SuperblockOffset. Callers must hold fs.mu.
func (fs *FileSystem) writeSuperblock() error {
	var buf [SuperblockSize]byte
	fs.sb.Encode(&buf)
	if err := fs.volume.WriteAt(SuperblockOffset, buf[:]); err != nil {
		return fmt.Errorf("writing superblock: %w", err)
	}
	return nil
}

// writeBGDT rewrites the full block-group descriptor table. Callers must
// hold fs.mu.
func (fs *FileSystem) writeBGDT() error {
	bgdtBlocks := divRoundUpByte(Byte(len(fs.groups))*GroupDescSize, fs.sb.BlockSize())
	buf := make([]byte, Byte(bgdtBlocks)*fs.sb.BlockSize())
	for i, g := range fs.groups {
		off := Byte(i) * GroupDescSize
		desc := g.desc
		desc.Encode((*[GroupDescSize]byte)(buf[off : off+GroupDescSize]))
	}
	if err := fs.volume.WriteAt(Byte(fs.bgdtStartBlock())*fs.sb.BlockSize(), buf); err != nil {
		return fmt.Errorf("writing block group descriptor table: %w", err)
	}
	return nil
}

// writeGroupBitmaps persists both bitmaps of group (0-based index).
// Callers must hold fs.mu.
func (fs *FileSystem) writeGroupBitmaps(groupIdx int) error {
	g := &fs.groups[groupIdx]
	if err := fs.volume.WriteAt(Byte(g.desc.BlockBitmap)*fs.sb.BlockSize(), g.blockBitmap.Bytes()); err != nil {
		return fmt.Errorf("writing block bitmap for group `%d`: %w", groupIdx+1, err)
	}
	if err := fs.volume.WriteAt(Byte(g.desc.InodeBitmap)*fs.sb.BlockSize(), g.inodeBitmap.Bytes()); err != nil {
		return fmt.Errorf("writing inode bitmap for group `%d`: %w", groupIdx+1, err)
	}
	return nil
}

// Flush persists every in-memory structure this manager owns: the
// superblock, the BGDT, and every group's bitmaps. Inode table and data
// blocks are written eagerly by the components that mutate them, so they
// need no separate flush step.
func (fs *FileSystem) Flush() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := fs.writeSuperblock(); err != nil {
		return fmt.Errorf("flushing filesystem: %w", err)
	}
	if err := fs.writeBGDT(); err != nil {
		return fmt.Errorf("flushing filesystem: %w", err)
	}
	for i := range fs.groups {
		if err := fs.writeGroupBitmaps(i); err != nil {
			return fmt.Errorf("flushing filesystem: %w", err)
		}
	}
	return nil
}
