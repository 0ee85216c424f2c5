package ext2

// GroupDesc is a 32-byte block-group descriptor (component B): the block
// bitmap, inode bitmap, and inode table locations for one group, plus its
// free-object counters.
type GroupDesc struct {
	BlockBitmap     Block
	InodeBitmap     Block
	InodeTable      Block
	FreeBlocksCount uint16
	FreeInodesCount uint16
	UsedDirsCount   uint16
}

const GroupDescSize Byte = 32

func DecodeGroupDesc(b *[GroupDescSize]byte) GroupDesc {
	return GroupDesc{
		BlockBitmap:     Block(DecodeUint32(b[0], b[1], b[2], b[3])),
		InodeBitmap:     Block(DecodeUint32(b[4], b[5], b[6], b[7])),
		InodeTable:      Block(DecodeUint32(b[8], b[9], b[10], b[11])),
		FreeBlocksCount: DecodeUint16(b[12], b[13]),
		FreeInodesCount: DecodeUint16(b[14], b[15]),
		UsedDirsCount:   DecodeUint16(b[16], b[17]),
	}
}

func (desc *GroupDesc) Encode(b *[GroupDescSize]byte) {
	EncodeUint32(uint32(desc.BlockBitmap), b[0:])
	EncodeUint32(uint32(desc.InodeBitmap), b[4:])
	EncodeUint32(uint32(desc.InodeTable), b[8:])
	EncodeUint16(desc.FreeBlocksCount, b[12:])
	EncodeUint16(desc.FreeInodesCount, b[14:])
	EncodeUint16(desc.UsedDirsCount, b[16:])
}
