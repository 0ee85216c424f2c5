package ext2

import "testing"

func TestFormat_ProducesMountableSingleGroupImage(t *testing.T) {
	// Given a newly formatted image
	fs, volume := testVolume(t, 512, 1024, 64)

	// Then it lays out exactly one block group
	if got := fs.sb.GroupCount(); got != 1 {
		t.Fatalf("wanted `1` group; found `%d`", got)
	}

	// And remounting the same volume from scratch succeeds and agrees
	remounted, err := Mount(volume, newDiscardLogger())
	if err != nil {
		t.Fatalf("remounting: %v", err)
	}
	if remounted.sb.BlocksCount != fs.sb.BlocksCount || remounted.sb.InodesCount != fs.sb.InodesCount {
		t.Fatalf("remounted superblock diverged from the formatted one")
	}

	// And the root directory's "." and ".." both resolve to itself
	root, err := remounted.RootInode()
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	defer remounted.Release(root)

	dotIno, ok, err := root.Lookup([]byte("."))
	if err != nil || !ok || dotIno != InoRoot {
		t.Fatalf("wanted `.` to resolve to root; found `(%d, %v, %v)`", dotIno, ok, err)
	}
	dotDotIno, ok, err := root.Lookup([]byte(".."))
	if err != nil || !ok || dotDotIno != InoRoot {
		t.Fatalf("wanted `..` to resolve to root; found `(%d, %v, %v)`", dotDotIno, ok, err)
	}
}

func TestFormat_RejectsVolumeTooSmall(t *testing.T) {
	// Given a volume far too small to hold its own metadata
	volume := NewMemoryVolume(4096)

	// When formatting is attempted with inode/block counts that don't fit
	_, err := Format(volume, FormatOptions{BlocksCount: 4, BlockSize: 1024, InodesCount: 64}, newDiscardLogger())

	// Then it's rejected up front rather than silently corrupting the image
	if err == nil {
		t.Fatal("wanted an error; found none")
	}
}

func TestFormat_RejectsUnsupportedBlockSize(t *testing.T) {
	// Given an unsupported block size
	volume := NewMemoryVolume(1 << 20)

	// When formatting is attempted
	_, err := Format(volume, FormatOptions{BlocksCount: 512, BlockSize: 777, InodesCount: 64}, newDiscardLogger())

	// Then it's rejected
	if err == nil {
		t.Fatal("wanted an error; found none")
	}
}
