package ext2

import (
	"encoding/binary"
	"fmt"
)

type SuperblockState uint16

type RevLevel uint32

const (
	SuperblockMagic uint16 = 0xef53

	// SuperblockSize is the size allocated for the superblock on disk. The
	// superblock doesn't actually use this much; it's an upper bound in
	// case more fields get added.
	SuperblockSize   Byte = 1024
	SuperblockOffset Byte = 1024

	SupportedIncompatFeatures uint32 = 0x0002
	SupportedROCompatFeatures uint32 = 0

	StateClean SuperblockState = 1
	StateDirty SuperblockState = 2

	RevLevelStatic  RevLevel = 0
	RevLevelDynamic RevLevel = 1

	DefaultFirstIno  uint32 = 11
	DefaultInodeSize uint16 = 128
)

// Superblock is the in-memory projection of the 1024-byte on-disk
// superblock record (component B). Field set covers everything the engine
// consumes; unknown/unused bytes round-trip as zero.
type Superblock struct {
	InodesCount     uint32
	BlocksCount     uint32
	FreeBlocksCount uint32
	FreeInodesCount uint32
	FirstDataBlock  uint32
	LogBlockSize    uint32
	BlocksPerGroup  uint32
	InodesPerGroup  uint32
	State           SuperblockState
	RevLevel        RevLevel
	FirstIno        uint32
	InodeSize       uint16
	FeatureCompat   uint32
	FeatureIncompat uint32
	FeatureROCompat uint32
}

// BlockSize derives the filesystem block size from log_block_size, per the
// ext2 rule block_size = 1024 << log_block_size.
func (sb *Superblock) BlockSize() Byte {
	return SuperblockOffset << sb.LogBlockSize
}

// InodesPerBlock derives how many fixed-size on-disk inode records fit in
// one filesystem block.
func (sb *Superblock) InodesPerBlock() uint32 {
	return uint32(sb.BlockSize()) / uint32(sb.InodeSize)
}

// GroupCount derives the block-group count, ceil((blocks_count -
// first_data_block) / blocks_per_group).
func (sb *Superblock) GroupCount() uint32 {
	if sb.BlocksPerGroup == 0 || sb.BlocksCount < sb.FirstDataBlock {
		return 0
	}
	return divRoundUp(sb.BlocksCount-sb.FirstDataBlock, sb.BlocksPerGroup)
}

type ErrBadMagic struct {
	Found uint16
}

func (err ErrBadMagic) Error() string {
	return fmt.Sprintf(
		"bad magic: wanted `0x%2X`; found `%0#2x`",
		SuperblockMagic,
		err.Found,
	)
}

type ErrBadState struct {
	Found SuperblockState
}

func (err ErrBadState) Error() string {
	return fmt.Sprintf(
		"bad state: wanted `0x%2X`; found `%0#2x`",
		StateClean,
		err.Found,
	)
}

type ErrIncompatibleFeatures struct {
	Found uint32
}

func (err ErrIncompatibleFeatures) Error() string {
	return fmt.Sprintf("volume uses incompatible features: `%0#4x`", err.Found)
}

type ErrIncompatibleFeaturesReadOnly struct {
	Found uint32
}

func (err ErrIncompatibleFeaturesReadOnly) Error() string {
	return fmt.Sprintf(
		"volume uses incompatible features; only reading is supported: `%0#4x`",
		err.Found,
	)
}

func DecodeSuperblock(b *[SuperblockSize]byte, readOnly bool) (Superblock, error) {
	var sb Superblock
	err := sb.Decode(b, readOnly)
	return sb, err
}

// Decode validates magic and state before mutating the receiver, following
// the codec's general rule: don't touch the pointee until the bytes are
// known-good.
func (sb *Superblock) Decode(b *[SuperblockSize]byte, readOnly bool) error {
	magic := DecodeUint16(b[56], b[57])
	if magic != SuperblockMagic {
		return fmt.Errorf("decoding superblock: %w: %w", CorruptErr, ErrBadMagic{magic})
	}

	state := SuperblockState(DecodeUint16(b[58], b[59]))
	if state != StateClean {
		return fmt.Errorf("decoding superblock: %w: %w", CorruptErr, ErrBadState{state})
	}

	rev := RevLevel(DecodeUint32(b[76], b[77], b[78], b[79]))

	var featureCompat, featureIncompat, featureROCompat uint32
	if rev >= RevLevelDynamic {
		featureCompat = DecodeUint32(b[92], b[93], b[94], b[95])
		featureIncompat = DecodeUint32(b[96], b[97], b[98], b[99])
		featureROCompat = DecodeUint32(b[100], b[101], b[102], b[103])
	}

	if (featureIncompat & ^SupportedIncompatFeatures) != 0 {
		return fmt.Errorf(
			"decoding superblock: %w",
			ErrIncompatibleFeatures{featureIncompat},
		)
	}

	if !readOnly && (featureROCompat & ^SupportedROCompatFeatures) != 0 {
		return fmt.Errorf(
			"decoding superblock: %w",
			ErrIncompatibleFeaturesReadOnly{featureROCompat},
		)
	}

	sb.InodesCount = DecodeUint32(b[0], b[1], b[2], b[3])
	sb.BlocksCount = DecodeUint32(b[4], b[5], b[6], b[7])
	sb.FreeBlocksCount = DecodeUint32(b[12], b[13], b[14], b[15])
	sb.FreeInodesCount = DecodeUint32(b[16], b[17], b[18], b[19])
	sb.FirstDataBlock = DecodeUint32(b[20], b[21], b[22], b[23])
	sb.LogBlockSize = DecodeUint32(b[24], b[25], b[26], b[27])
	sb.BlocksPerGroup = DecodeUint32(b[32], b[33], b[34], b[35])
	sb.InodesPerGroup = DecodeUint32(b[40], b[41], b[42], b[43])
	sb.State = state
	sb.RevLevel = rev
	if rev != RevLevelStatic {
		sb.FirstIno = DecodeUint32(b[84], b[85], b[86], b[87])
		sb.InodeSize = DecodeUint16(b[88], b[89])
	} else {
		sb.FirstIno = DefaultFirstIno
		sb.InodeSize = DefaultInodeSize
	}
	sb.FeatureCompat = featureCompat
	sb.FeatureIncompat = featureIncompat
	sb.FeatureROCompat = featureROCompat

	if sb.GroupCount() == 0 {
		return fmt.Errorf("decoding superblock: %w: zero block groups", CorruptErr)
	}

	return nil
}

func DecodeUint16(b0, b1 byte) uint16 {
	// Little endian: first byte is least significant.
	// https://en.wikipedia.org/wiki/Endianness
	return uint16(b0) + (uint16(b1) << 8)
}

func DecodeUint32(b0, b1, b2, b3 byte) uint32 {
	return uint32(b0) +
		(uint32(b1) << 8) +
		(uint32(b2) << 16) +
		(uint32(b3) << 24)
}

func (sb *Superblock) Encode(b *[SuperblockSize]byte) {
	EncodeUint32(sb.InodesCount, b[0:])
	EncodeUint32(sb.BlocksCount, b[4:])
	EncodeUint32(sb.FreeBlocksCount, b[12:])
	EncodeUint32(sb.FreeInodesCount, b[16:])
	EncodeUint32(sb.FirstDataBlock, b[20:])
	EncodeUint32(sb.LogBlockSize, b[24:])
	EncodeUint32(sb.BlocksPerGroup, b[32:])
	EncodeUint32(sb.InodesPerGroup, b[40:])
	EncodeUint16(SuperblockMagic, b[56:])
	EncodeUint16(uint16(sb.State), b[58:])
	EncodeUint32(uint32(sb.RevLevel), b[76:])

	if sb.RevLevel != RevLevelStatic {
		EncodeUint32(sb.FirstIno, b[84:])
		EncodeUint16(sb.InodeSize, b[88:])
		EncodeUint32(sb.FeatureCompat, b[92:])
		EncodeUint32(sb.FeatureIncompat, b[96:])
		EncodeUint32(sb.FeatureROCompat, b[100:])
	}
}

func EncodeUint16(x uint16, b []byte) {
	binary.LittleEndian.PutUint16(b, x)
}

func EncodeUint32(x uint32, b []byte) {
	binary.LittleEndian.PutUint32(b, x)
}

func divRoundUp(a, b uint32) uint32 {
	if a%b == 0 {
		return a / b
	}
	return a/b + 1
}
