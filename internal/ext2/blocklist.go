package ext2

import "fmt"

// BlockReader is the narrow disk-backed-store contract the resolver needs:
// read one filesystem block by physical number. *FileSystem implements it.
type BlockReader interface {
	ReadBlock(b Block) ([]byte, error)
}

// ResolveBlockList computes the ordered list of physical blocks backing an
// inode (component E), walking direct, single-, double-, and
// triple-indirect pointers. want is the number of logical blocks the caller
// expects (LiveInode passes ceil(inode.Size/blockSize)). A zero entry inside
// an indirect block's pointer array ends that level's contribution without
// error (sparse encoding) but never short-circuits the whole walk: a zero
// i_block[0..11] direct pointer or a zero i_block[12..14] indirect pointer
// only stops that one level, and the remaining levels are still tried. If
// fewer than want blocks are found once the triple-indirect chain is
// exhausted, the inode is malformed and ResolveBlockList fails with
// CorruptErr.
func ResolveBlockList(
	r BlockReader,
	blockSize Byte,
	inode *Inode,
	want int,
) ([]Block, error) {
	if want == 0 {
		return nil, nil
	}

	out := make([]Block, 0, want)

	for i := 0; i < DirectBlocksCount && len(out) < want; i++ {
		if inode.Block[i] == BlockNil {
			break
		}
		out = append(out, inode.Block[i])
	}
	if len(out) >= want {
		return out, nil
	}

	pointersPerBlock := int(blockSize / 4)

	appendFromIndirect := func(indirect Block, depth int) (bool, error) {
		var walk func(block Block, depth int) (bool, error)
		walk = func(block Block, depth int) (bool, error) {
			if block == BlockNil {
				return false, nil
			}
			pointers, err := readBlockPointers(r, block, pointersPerBlock)
			if err != nil {
				return false, fmt.Errorf(
					"resolving block list for inode `%d`: %w",
					inode.Ino,
					err,
				)
			}
			for _, p := range pointers {
				if p == BlockNil {
					return false, nil
				}
				if depth == 0 {
					out = append(out, p)
				} else {
					done, err := walk(p, depth-1)
					if err != nil {
						return false, err
					}
					if done {
						return true, nil
					}
				}
				if len(out) >= want {
					return true, nil
				}
			}
			return false, nil
		}
		return walk(indirect, depth)
	}

	// single indirect: i_block[12], depth 0 (entries are data blocks).
	if done, err := appendFromIndirect(inode.Block[12], 0); err != nil {
		return nil, err
	} else if done || len(out) >= want {
		return out, nil
	}

	// double indirect: i_block[13], depth 1 (entries are single-indirect blocks).
	if done, err := appendFromIndirect(inode.Block[13], 1); err != nil {
		return nil, err
	} else if done || len(out) >= want {
		return out, nil
	}

	// triple indirect: i_block[14], depth 2 (entries are double-indirect blocks).
	if done, err := appendFromIndirect(inode.Block[14], 2); err != nil {
		return nil, err
	} else if done || len(out) >= want {
		return out, nil
	}

	if len(out) < want {
		return nil, fmt.Errorf(
			"resolving block list for inode `%d`: wanted `%d` blocks, found `%d`: %w",
			inode.Ino,
			want,
			len(out),
			CorruptErr,
		)
	}
	return out, nil
}

func readBlockPointers(r BlockReader, block Block, count int) ([]Block, error) {
	buf, err := r.ReadBlock(block)
	if err != nil {
		return nil, err
	}
	out := make([]Block, count)
	for i := 0; i < count; i++ {
		base := i * 4
		out[i] = Block(DecodeUint32(buf[base], buf[base+1], buf[base+2], buf[base+3]))
	}
	return out, nil
}
