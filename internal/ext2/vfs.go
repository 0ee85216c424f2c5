package ext2

import (
	"fmt"
	"time"
)

// groupOfIno returns the 0-based block group an inode index belongs to,
// the natural "preferred group" for anything being created alongside it
// (new files default to their parent directory's group).
func (fs *FileSystem) groupOfIno(i Ino) int {
	return int((uint32(i) - 1) / fs.sb.InodesPerGroup)
}

// RootInode returns a held reference to the root directory (external
// interface root_inode). Callers must Release it when done.
func (fs *FileSystem) RootInode() (*LiveInode, error) {
	return fs.cache.GetInode(InoRoot)
}

// GetInode returns a held reference to inode i (external interface
// get_inode). Callers must Release it when done.
func (fs *FileSystem) GetInode(i Ino) (*LiveInode, error) {
	return fs.cache.GetInode(i)
}

// Release returns a reference acquired from RootInode/GetInode/CreateInode.
func (fs *FileSystem) Release(live *LiveInode) {
	fs.cache.Release(live.Ino())
}

// ReadInodeBytes reads up to len(buf) bytes starting at offset (external
// interface read_inode_bytes). Reading a directory's bytes directly is
// rejected with EISDIR; use TraverseDirectory instead.
func (fs *FileSystem) ReadInodeBytes(live *LiveInode, offset Byte, buf []byte) (Byte, Errno) {
	n, err := live.ReadBytes(offset, Byte(len(buf)), buf)
	if err != nil {
		return 0, errnoFor(err)
	}
	return n, 0
}

// WriteInodeBytes overwrites bytes in an already-allocated region (external
// interface write_inode).
func (fs *FileSystem) WriteInodeBytes(live *LiveInode, offset Byte, data []byte) Errno {
	return errnoFor(live.WriteBytes(offset, data))
}

// TraverseDirectory walks a directory's live entries (external interface
// traverse_directory).
func (fs *FileSystem) TraverseDirectory(live *LiveInode, visit func(name []byte, child Ino, fileType FileType) bool) Errno {
	return errnoFor(live.TraverseAsDirectory(visit))
}

// now returns the current wall-clock time as a Unix timestamp. It stamps the
// times of newly created inodes and the dtime of an unlinked inode; SetMTime
// takes its timestamp from the caller instead.
func now() uint32 { return uint32(time.Now().Unix()) }

// newInode builds the in-memory record for a freshly allocated inode; the
// caller still owns committing its allocation bits and persisting it.
func newInode(ino Ino, fileType FileType, accessRights uint16, uid, gid uint32) *Inode {
	t := now()
	return &Inode{
		Ino: ino,
		Mode: Mode{
			FileType:     fileType,
			AccessRights: accessRights,
		},
		Attr: FileAttr{
			UID:   uid,
			GID:   gid,
			ATime: t,
			CTime: t,
			MTime: t,
		},
		LinksCount: 1,
	}
}

// CreateInode allocates a new regular, device, fifo, socket, or symlink
// inode named name inside parent and links it in (component I / the
// create/mkdir composite operation, non-directory branch). Use
// CreateDirectory for directories, which additionally need "." and "..".
func (fs *FileSystem) CreateInode(
	parent *LiveInode,
	name []byte,
	fileType FileType,
	accessRights uint16,
	uid, gid uint32,
) (*LiveInode, Errno) {
	if fileType == FileTypeDir {
		return nil, EISDIR
	}

	if _, ok, err := parent.Lookup(name); err != nil {
		return nil, errnoFor(err)
	} else if ok {
		return nil, EEXIST
	}

	preferred := fs.groupOfIno(parent.Ino())
	groupIdx, ino, err := fs.AllocateInode(preferred, 0)
	if err != nil {
		return nil, errnoFor(err)
	}
	if err := fs.SetInodeAllocationState(ino, true); err != nil {
		return nil, errnoFor(err)
	}

	raw := newInode(ino, fileType, accessRights, uid, gid)
	if err := fs.WriteInode(ino, raw); err != nil {
		return nil, errnoFor(err)
	}

	if err := parent.AppendEntry(name, ino, fileType); err != nil {
		fs.SetInodeAllocationState(ino, false)
		return nil, errnoFor(err)
	}

	_ = groupIdx
	li, err := fs.cache.GetInode(ino)
	if err != nil {
		return nil, errnoFor(err)
	}
	return li, 0
}

// CreateDirectory allocates a new directory inode named name inside parent,
// populates it with "." and "..", and links it into parent (component I /
// the create/mkdir composite operation, directory branch).
func (fs *FileSystem) CreateDirectory(parent *LiveInode, name []byte, accessRights uint16, uid, gid uint32) (*LiveInode, Errno) {
	if _, ok, err := parent.Lookup(name); err != nil {
		return nil, errnoFor(err)
	} else if ok {
		return nil, EEXIST
	}

	preferred := fs.groupOfIno(parent.Ino())
	bs := fs.BlockSize()

	groupIdx, ino, err := fs.AllocateInode(preferred, bs)
	if err != nil {
		return nil, errnoFor(err)
	}
	if err := fs.SetInodeAllocationState(ino, true); err != nil {
		return nil, errnoFor(err)
	}

	_, blocks, err := fs.AllocateBlocks(groupIdx, 1)
	if err != nil {
		fs.SetInodeAllocationState(ino, false)
		return nil, errnoFor(err)
	}
	if err := fs.SetBlockAllocationState(groupIdx, blocks[0], true); err != nil {
		fs.SetInodeAllocationState(ino, false)
		return nil, errnoFor(err)
	}

	selfEntries := []DirEntryInput{
		{Name: []byte("."), Child: ino, FileType: FileTypeDir},
		{Name: []byte(".."), Child: parent.Ino(), FileType: FileTypeDir},
	}
	dirBuf, err := SerializeDirEntries(selfEntries, bs)
	if err != nil {
		return nil, errnoFor(err)
	}
	if err := fs.WriteBlock(blocks[0], dirBuf); err != nil {
		return nil, errnoFor(err)
	}

	raw := newInode(ino, FileTypeDir, accessRights, uid, gid)
	raw.Block[0] = blocks[0]
	raw.Size = uint64(bs)
	raw.Size512 = uint32(bs / 512)
	raw.LinksCount = 2 // "." plus the parent's entry
	if err := fs.WriteInode(ino, raw); err != nil {
		return nil, errnoFor(err)
	}

	if err := parent.AppendEntry(name, ino, FileTypeDir); err != nil {
		return nil, errnoFor(err)
	}
	if err := fs.bumpLinksAndUsedDirs(parent, groupIdx); err != nil {
		return nil, errnoFor(err)
	}

	li, err := fs.cache.GetInode(ino)
	if err != nil {
		return nil, errnoFor(err)
	}
	return li, 0
}

// bumpLinksAndUsedDirs increments parent's links_count (for the new
// subdirectory's ".." entry) and the new directory's group's used_dirs_count
// bookkeeping counter.
func (fs *FileSystem) bumpLinksAndUsedDirs(parent *LiveInode, groupIdx int) error {
	if err := fs.ModifyLinkCount(parent, 1); err != 0 {
		return fmt.Errorf("bumping parent link count: errno %d", err)
	}
	fs.mu.Lock()
	fs.groups[groupIdx].desc.UsedDirsCount++
	err := fs.writeBGDT()
	fs.mu.Unlock()
	return err
}

// ModifyLinkCount adds delta to an inode's links_count and persists it
// (external interface modify_link_count).
func (fs *FileSystem) ModifyLinkCount(live *LiveInode, delta int16) Errno {
	live.mu.Lock()
	defer live.mu.Unlock()
	live.raw.LinksCount = uint16(int32(live.raw.LinksCount) + int32(delta))
	return errnoFor(live.fs.WriteInode(live.ino, live.raw))
}

// SetMTime stamps an inode's modification time (external interface
// set_mtime).
func (fs *FileSystem) SetMTime(live *LiveInode, mtime uint32) Errno {
	live.mu.Lock()
	defer live.mu.Unlock()
	live.raw.Attr.MTime = mtime
	return errnoFor(live.fs.WriteInode(live.ino, live.raw))
}

// FindParentOfInode scans every group's inode table for a directory whose
// entries include child, returning that directory's index and child's name
// within it (external interface find_parent_of_inode). This is an
// O(inodes_count) worst case scan; the engine keeps no persistent parent
// pointer, matching real ext2's lack of one outside "..".
func (fs *FileSystem) FindParentOfInode(child Ino) (Ino, []byte, error) {
	// Root sits below FirstIno; the reserved indices between fail GetInode
	// and are skipped.
	for candidate := InoRoot; uint32(candidate) <= fs.sb.InodesCount; candidate++ {
		live, err := fs.cache.GetInode(candidate)
		if err != nil {
			continue
		}
		meta := live.Metadata()
		if meta.Mode.FileType != FileTypeDir {
			fs.cache.Release(candidate)
			continue
		}

		var name []byte
		var found bool
		walkErr := live.TraverseAsDirectory(func(n []byte, ino Ino, _ FileType) bool {
			if ino == child && string(n) != "." && string(n) != ".." {
				name = append([]byte(nil), n...)
				found = true
				return false
			}
			return true
		})
		fs.cache.Release(candidate)
		if walkErr != nil {
			continue
		}
		if found {
			return candidate, name, nil
		}
	}
	return InoNil, nil, fmt.Errorf("finding parent of inode `%d`: %w", child, NotFoundErr)
}

// Unlink removes name from parent and, if that was the target's last link,
// frees its blocks and inode (external interface unlink / the supplemented
// unlink operation). Directories are not supported here: this engine's
// unlink targets only non-directory entries, matching a flat "rm", not
// "rmdir"'s emptiness check and the ".."-link bookkeeping a recursive
// removal would need.
func (fs *FileSystem) Unlink(parent *LiveInode, name []byte) Errno {
	childIno, ok, err := parent.Lookup(name)
	if err != nil {
		return errnoFor(err)
	}
	if !ok {
		return errnoFor(fmt.Errorf("unlinking `%s`: %w", name, NotFoundErr))
	}

	live, err := fs.cache.GetInode(childIno)
	if err != nil {
		return errnoFor(err)
	}
	defer fs.cache.Release(childIno)

	live.mu.Lock()
	if live.raw.Mode.FileType == FileTypeDir {
		live.mu.Unlock()
		return EISDIR
	}
	live.mu.Unlock()

	child, err := parent.RemoveEntry(name)
	if err != nil {
		return errnoFor(err)
	}

	live.mu.Lock()
	live.raw.LinksCount--
	linksCount := live.raw.LinksCount
	if linksCount == 0 {
		live.raw.Attr.DTime = now()
	}
	writeErr := fs.WriteInode(child, live.raw)
	var blockList []Block
	if linksCount == 0 && writeErr == nil {
		if err := live.ensureBlockListLocked(); err == nil {
			blockList = live.blockList
		}
	}
	live.mu.Unlock()
	if writeErr != nil {
		return errnoFor(writeErr)
	}

	if linksCount > 0 {
		return 0
	}

	groupIdx := fs.groupOfIno(child)
	for _, b := range blockList {
		if b == BlockNil {
			continue
		}
		if err := fs.SetBlockAllocationState(groupIdx, b, false); err != nil {
			return errnoFor(err)
		}
	}
	if err := fs.SetInodeAllocationState(child, false); err != nil {
		return errnoFor(err)
	}
	fs.cache.Evict(child)
	return 0
}
