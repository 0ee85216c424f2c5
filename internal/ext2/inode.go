package ext2

import "fmt"

// DirectBlocksCount is the number of direct block pointers an inode carries
// before the single/double/triple indirect pointers.
const DirectBlocksCount = 12

// Inode is the in-memory projection of an on-disk inode record (component
// D). Ino is carried alongside for error messages and is not itself part of
// the on-disk record (the record's position in the inode table is its
// identity).
type Inode struct {
	Ino        Ino
	Mode       Mode
	Attr       FileAttr
	Size       uint64
	Size512    uint32
	LinksCount uint16
	Flags      uint32
	Block      [15]Block
	FileACL    uint32
}

type FileAttr struct {
	UID   uint32
	GID   uint32
	ATime uint32
	CTime uint32
	MTime uint32
	DTime uint32
}

type Mode struct {
	FileType     FileType
	SUID         bool
	SGID         bool
	Sticky       bool
	AccessRights uint16
}

type ErrUnknownFileType struct {
	FoundNibble uint16
}

func (err *ErrUnknownFileType) Error() string {
	return fmt.Sprintf("unknown inode mode type nibble: %d", err.FoundNibble)
}

func DecodeInodeMode(mode uint16) (Mode, error) {
	typeNibble := (mode & 0xf000) >> 12
	fileType, ok := nibbleModeType[typeNibble]
	if !ok {
		return Mode{}, fmt.Errorf(
			"decoding inode mode `%#x`: %w",
			mode,
			&ErrUnknownFileType{typeNibble},
		)
	}

	return Mode{
		FileType:     fileType,
		SUID:         mode&0x0800 != 0,
		SGID:         mode&0x0400 != 0,
		Sticky:       mode&0x0200 != 0,
		AccessRights: mode & 0x01ff,
	}, nil
}

func (mode *Mode) Encode() uint16 {
	var suid, sgid, sticky uint16
	if mode.SUID {
		suid = 0x0800
	}
	if mode.SGID {
		sgid = 0x0400
	}
	if mode.Sticky {
		sticky = 0x0200
	}
	return modeTypeNibble[mode.FileType]<<12 + suid + sgid + sticky + mode.AccessRights
}

// Byte layout, chained the way this field follows the previous one on disk.
// Bit-exact to ext2 revision 1; gaps (generation, faddr, osd1/osd2) are
// neither consumed nor round-tripped by this engine.
const (
	inodeModeStart  = 0
	inodeModeSize   = 2
	inodeUIDLoStart = inodeModeStart + inodeModeSize
	inodeUIDLoSize  = 2
	inodeSizeStart  = inodeUIDLoStart + inodeUIDLoSize
	inodeSizeSize   = 4
	inodeATimeStart = inodeSizeStart + inodeSizeSize
	inodeATimeSize  = 4
	inodeCTimeStart = inodeATimeStart + inodeATimeSize
	inodeCTimeSize  = 4
	inodeMTimeStart = inodeCTimeStart + inodeCTimeSize
	inodeMTimeSize  = 4
	inodeDTimeStart = inodeMTimeStart + inodeMTimeSize
	inodeDTimeSize  = 4
	inodeGIDLoStart = inodeDTimeStart + inodeDTimeSize
	inodeGIDLoSize  = 2
	inodeLinksStart = inodeGIDLoStart + inodeGIDLoSize
	inodeLinksSize  = 2
	inodeBlocksStart = inodeLinksStart + inodeLinksSize
	inodeBlocksSize  = 4
	inodeFlagsStart  = inodeBlocksStart + inodeBlocksSize
	inodeFlagsSize   = 4
	// osd1 occupies [36:40) and is not modeled.
	inodeBlockPtrsStart = 40
	inodeBlockPtrSize   = 4
	inodeBlockPtrsEnd   = inodeBlockPtrsStart + 15*inodeBlockPtrSize // 100
	// generation occupies [100:104).
	inodeFileACLStart = 104
	inodeFileACLSize  = 4
	inodeSizeHiStart  = inodeFileACLStart + inodeFileACLSize // 108, dir_acl/size_high
	// faddr, osd2 occupy [112:120).
	inodeUIDHiStart = 120
	inodeGIDHiStart = 122
)

func DecodeInode(ino Ino, revLevel RevLevel, b *[InodeBufferSize]byte) (Inode, error) {
	mode, err := DecodeInodeMode(DecodeUint16(b[inodeModeStart], b[inodeModeStart+1]))
	if err != nil {
		return Inode{}, fmt.Errorf("decoding inode `%d`: %w", ino, err)
	}

	sizeLow := uint64(DecodeUint32(
		b[inodeSizeStart], b[inodeSizeStart+1], b[inodeSizeStart+2], b[inodeSizeStart+3],
	))
	var sizeHigh uint64
	if revLevel > RevLevelStatic && mode.FileType == FileTypeRegular {
		sizeHigh = uint64(DecodeUint32(
			b[inodeSizeHiStart], b[inodeSizeHiStart+1], b[inodeSizeHiStart+2], b[inodeSizeHiStart+3],
		))
	}

	uidLow := uint32(DecodeUint16(b[inodeUIDLoStart], b[inodeUIDLoStart+1]))
	uidHigh := uint32(DecodeUint16(b[inodeUIDHiStart], b[inodeUIDHiStart+1]))
	gidLow := uint32(DecodeUint16(b[inodeGIDLoStart], b[inodeGIDLoStart+1]))
	gidHigh := uint32(DecodeUint16(b[inodeGIDHiStart], b[inodeGIDHiStart+1]))

	var block [15]Block
	for i := range block {
		base := inodeBlockPtrsStart + i*inodeBlockPtrSize
		block[i] = Block(DecodeUint32(b[base], b[base+1], b[base+2], b[base+3]))
	}

	return Inode{
		Ino:  ino,
		Mode: mode,
		Attr: FileAttr{
			UID: uidLow + uidHigh<<16,
			GID: gidLow + gidHigh<<16,
			ATime: DecodeUint32(
				b[inodeATimeStart], b[inodeATimeStart+1], b[inodeATimeStart+2], b[inodeATimeStart+3],
			),
			CTime: DecodeUint32(
				b[inodeCTimeStart], b[inodeCTimeStart+1], b[inodeCTimeStart+2], b[inodeCTimeStart+3],
			),
			MTime: DecodeUint32(
				b[inodeMTimeStart], b[inodeMTimeStart+1], b[inodeMTimeStart+2], b[inodeMTimeStart+3],
			),
			DTime: DecodeUint32(
				b[inodeDTimeStart], b[inodeDTimeStart+1], b[inodeDTimeStart+2], b[inodeDTimeStart+3],
			),
		},
		Size: sizeLow + sizeHigh<<32,
		Size512: DecodeUint32(
			b[inodeBlocksStart], b[inodeBlocksStart+1], b[inodeBlocksStart+2], b[inodeBlocksStart+3],
		),
		LinksCount: DecodeUint16(b[inodeLinksStart], b[inodeLinksStart+1]),
		Flags: DecodeUint32(
			b[inodeFlagsStart], b[inodeFlagsStart+1], b[inodeFlagsStart+2], b[inodeFlagsStart+3],
		),
		Block: block,
		FileACL: DecodeUint32(
			b[inodeFileACLStart], b[inodeFileACLStart+1], b[inodeFileACLStart+2], b[inodeFileACLStart+3],
		),
	}, nil
}

type ErrFileSizeTooLargeForStaticRevLevel struct {
	FileSize uint64
}

func (err ErrFileSizeTooLargeForStaticRevLevel) Error() string {
	return fmt.Sprintf(
		"file size cannot exceed 32 bits for rev level %d; found file size `%#x`",
		RevLevelStatic,
		err.FileSize,
	)
}

func (inode *Inode) Encode(revLevel RevLevel, b *[InodeBufferSize]byte) error {
	EncodeUint16(inode.Mode.Encode(), b[inodeModeStart:])

	EncodeUint16(uint16(inode.Attr.UID&0xffff), b[inodeUIDLoStart:])
	EncodeUint16(uint16(inode.Attr.UID>>16&0xffff), b[inodeUIDHiStart:])
	EncodeUint16(uint16(inode.Attr.GID&0xffff), b[inodeGIDLoStart:])
	EncodeUint16(uint16(inode.Attr.GID>>16&0xffff), b[inodeGIDHiStart:])

	EncodeUint32(uint32(inode.Size&0xffffffff), b[inodeSizeStart:])
	if inode.Size>>32 != 0 && revLevel == RevLevelStatic {
		return fmt.Errorf(
			"encoding inode `%d`: %w",
			inode.Ino,
			ErrFileSizeTooLargeForStaticRevLevel{inode.Size},
		)
	}
	EncodeUint32(uint32(inode.Size>>32&0xffffffff), b[inodeSizeHiStart:])

	for i := range inode.Block {
		EncodeUint32(uint32(inode.Block[i]), b[inodeBlockPtrsStart+i*inodeBlockPtrSize:])
	}
	EncodeUint32(inode.Attr.ATime, b[inodeATimeStart:])
	EncodeUint32(inode.Attr.CTime, b[inodeCTimeStart:])
	EncodeUint32(inode.Attr.MTime, b[inodeMTimeStart:])
	EncodeUint32(inode.Attr.DTime, b[inodeDTimeStart:])
	EncodeUint16(inode.LinksCount, b[inodeLinksStart:])
	EncodeUint32(inode.Size512, b[inodeBlocksStart:])
	EncodeUint32(inode.Flags, b[inodeFlagsStart:])
	EncodeUint32(inode.FileACL, b[inodeFileACLStart:])

	return nil
}
