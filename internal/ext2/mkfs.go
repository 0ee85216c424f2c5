package ext2

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// FormatOptions parameterizes Format. BlockSize must be a power of two
// multiple of 1024 (1024, 2048, or 4096); InodesCount is the total inode
// table size this engine will ever have room for.
type FormatOptions struct {
	BlocksCount Block
	BlockSize   Byte
	InodesCount uint32
}

// Format writes a brand-new, single-block-group ext2 image to volume and
// mounts it (mkfs, the tool half of component B). A single group keeps the
// on-disk layout this engine needs to compute by hand small: boot block (for
// 1024-byte blocks only), superblock, block group descriptor table, block
// bitmap, inode bitmap, inode table, then the root directory's one data
// block, in that order; everything after that is free.
func Format(volume Volume, opts FormatOptions, log *logrus.Logger) (*FileSystem, error) {
	if opts.BlockSize != 1024 && opts.BlockSize != 2048 && opts.BlockSize != 4096 {
		return nil, fmt.Errorf("formatting volume: unsupported block size `%d`", opts.BlockSize)
	}

	var firstDataBlock Block
	if opts.BlockSize == 1024 {
		firstDataBlock = 1
	}

	bgdtStart := Block(2)
	if opts.BlockSize != 1024 {
		bgdtStart = 1
	}
	bgdtBlocks := Block(divRoundUpByte(GroupDescSize, opts.BlockSize))

	blockBitmapBlock := bgdtStart + bgdtBlocks
	inodeBitmapBlock := blockBitmapBlock + 1
	inodeTableBlock := inodeBitmapBlock + 1
	inodeTableBlocks := Block(divRoundUp(opts.InodesCount*uint32(DefaultInodeSize), uint32(opts.BlockSize)))
	rootDirBlock := inodeTableBlock + inodeTableBlocks

	if Block(opts.BlocksCount) <= rootDirBlock {
		return nil, fmt.Errorf(
			"formatting volume: `%d` blocks is too small for `%d`-byte blocks and `%d` inodes",
			opts.BlocksCount,
			opts.BlockSize,
			opts.InodesCount,
		)
	}

	sb := Superblock{
		InodesCount:     opts.InodesCount,
		BlocksCount:     uint32(opts.BlocksCount),
		FirstDataBlock:  uint32(firstDataBlock),
		BlocksPerGroup:  uint32(opts.BlocksCount) - uint32(firstDataBlock),
		InodesPerGroup:  opts.InodesCount,
		State:           StateClean,
		RevLevel:        RevLevelDynamic,
		FirstIno:        DefaultFirstIno,
		InodeSize:       DefaultInodeSize,
		FeatureIncompat: SupportedIncompatFeatures,
		FeatureROCompat: SupportedROCompatFeatures,
	}
	if sb.LogBlockSize = logBlockSizeOf(opts.BlockSize); sb.BlockSize() != opts.BlockSize {
		return nil, fmt.Errorf("formatting volume: block size `%d` is not a valid ext2 block size", opts.BlockSize)
	}

	usedBlocks := uint64(rootDirBlock-firstDataBlock) + 1
	usedInodes := uint64(sb.FirstIno - 1) // inodes 1..FirstIno-1, including root (ino 2)
	sb.FreeBlocksCount = sb.BlocksPerGroup - uint32(usedBlocks)
	sb.FreeInodesCount = sb.InodesPerGroup - uint32(usedInodes)

	desc := GroupDesc{
		BlockBitmap:     blockBitmapBlock,
		InodeBitmap:     inodeBitmapBlock,
		InodeTable:      inodeTableBlock,
		FreeBlocksCount: uint16(sb.FreeBlocksCount),
		FreeInodesCount: uint16(sb.FreeInodesCount),
		UsedDirsCount:   1, // root
	}

	blockBitmap := NewBitmap(make([]byte, divRoundUpByte(Byte(sb.BlocksPerGroup), 8)))
	for b := uint64(0); b < usedBlocks; b++ {
		blockBitmap.Set(b, true)
	}
	inodeBitmap := NewBitmap(make([]byte, divRoundUpByte(Byte(sb.InodesPerGroup), 8)))
	for i := uint64(0); i < usedInodes; i++ {
		inodeBitmap.Set(i, true)
	}

	rootEntries := []DirEntryInput{
		{Name: []byte("."), Child: InoRoot, FileType: FileTypeDir},
		{Name: []byte(".."), Child: InoRoot, FileType: FileTypeDir},
	}
	rootDirBuf, err := SerializeDirEntries(rootEntries, opts.BlockSize)
	if err != nil {
		return nil, fmt.Errorf("formatting volume: %w", err)
	}

	rootInode := newInode(InoRoot, FileTypeDir, 0o755, 0, 0)
	rootInode.Block[0] = rootDirBlock
	rootInode.Size = uint64(opts.BlockSize)
	rootInode.Size512 = uint32(opts.BlockSize / 512)
	rootInode.LinksCount = 2

	if err := volume.WriteAt(Byte(rootDirBlock)*opts.BlockSize, rootDirBuf); err != nil {
		return nil, fmt.Errorf("formatting volume: %w", err)
	}

	var inodeTableBuf [InodeBufferSize]byte
	if err := rootInode.Encode(sb.RevLevel, &inodeTableBuf); err != nil {
		return nil, fmt.Errorf("formatting volume: %w", err)
	}
	rootOffset := Byte(inodeTableBlock)*opts.BlockSize + Byte(InoRoot-1)*Byte(sb.InodeSize)
	if err := volume.WriteAt(rootOffset, inodeTableBuf[:]); err != nil {
		return nil, fmt.Errorf("formatting volume: %w", err)
	}

	if err := volume.WriteAt(Byte(desc.BlockBitmap)*opts.BlockSize, blockBitmap.Bytes()); err != nil {
		return nil, fmt.Errorf("formatting volume: %w", err)
	}
	if err := volume.WriteAt(Byte(desc.InodeBitmap)*opts.BlockSize, inodeBitmap.Bytes()); err != nil {
		return nil, fmt.Errorf("formatting volume: %w", err)
	}

	var bgdtBuf [GroupDescSize]byte
	desc.Encode(&bgdtBuf)
	bgdtPage := make([]byte, Byte(bgdtBlocks)*opts.BlockSize)
	copy(bgdtPage, bgdtBuf[:])
	if err := volume.WriteAt(Byte(bgdtStart)*opts.BlockSize, bgdtPage); err != nil {
		return nil, fmt.Errorf("formatting volume: %w", err)
	}

	var sbBuf [SuperblockSize]byte
	sb.Encode(&sbBuf)
	if err := volume.WriteAt(SuperblockOffset, sbBuf[:]); err != nil {
		return nil, fmt.Errorf("formatting volume: %w", err)
	}

	return Mount(volume, log)
}

// logBlockSizeOf inverts Superblock.BlockSize's "1024 << log_block_size"
// rule.
func logBlockSizeOf(blockSize Byte) uint32 {
	var log uint32
	for size := Byte(1024); size < blockSize; size <<= 1 {
		log++
	}
	return log
}
