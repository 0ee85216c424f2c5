package ext2

import (
	"bytes"
	"testing"
)

func TestVFS_CreateInode_ReadWriteRoundTrip(t *testing.T) {
	// Given a freshly formatted filesystem and its root directory
	fs, _ := testVolume(t, 512, 1024, 64)
	root, err := fs.RootInode()
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	defer fs.Release(root)

	// When a regular file is created under root and its bytes written
	live, errno := fs.CreateInode(root, []byte("hello.txt"), FileTypeRegular, 0o644, 1000, 1000)
	if errno != 0 {
		t.Fatalf("unexpected errno: %d", errno)
	}
	defer fs.Release(live)

	want := []byte("hello, ext2")
	if errno := fs.WriteInodeBytes(live, 0, want); errno != 0 {
		t.Fatalf("unexpected errno: %d", errno)
	}

	// Then reading it back returns exactly what was written
	got := make([]byte, len(want))
	n, errno := fs.ReadInodeBytes(live, 0, got)
	if errno != 0 {
		t.Fatalf("unexpected errno: %d", errno)
	}
	if n != Byte(len(want)) || !bytes.Equal(got, want) {
		t.Fatalf("wanted `%s`; found `%s`", want, got[:n])
	}

	// And it's visible by traversing the directory
	var foundIno Ino
	var foundType FileType
	errno = fs.TraverseDirectory(root, func(name []byte, child Ino, fileType FileType) bool {
		if string(name) == "hello.txt" {
			foundIno, foundType = child, fileType
			return false
		}
		return true
	})
	if errno != 0 {
		t.Fatalf("unexpected errno: %d", errno)
	}
	if foundIno != live.Ino() || foundType != FileTypeRegular {
		t.Fatalf("wanted `(%d, %s)`; found `(%d, %s)`", live.Ino(), FileTypeRegular, foundIno, foundType)
	}
}

func TestVFS_CreateInode_DuplicateName(t *testing.T) {
	// Given a directory containing "dup"
	fs, _ := testVolume(t, 512, 1024, 64)
	root, _ := fs.RootInode()
	defer fs.Release(root)
	live, errno := fs.CreateInode(root, []byte("dup"), FileTypeRegular, 0o644, 0, 0)
	if errno != 0 {
		t.Fatalf("unexpected errno: %d", errno)
	}
	fs.Release(live)

	// When another inode is created with the same name
	_, errno = fs.CreateInode(root, []byte("dup"), FileTypeRegular, 0o644, 0, 0)

	// Then it's rejected as already existing
	if errno != EEXIST {
		t.Fatalf("wanted `EEXIST`; found `%d`", errno)
	}
}

func TestVFS_CreateDirectory_DotAndDotDot(t *testing.T) {
	// Given root
	fs, _ := testVolume(t, 512, 1024, 64)
	root, _ := fs.RootInode()
	defer fs.Release(root)

	// When a subdirectory is created
	sub, errno := fs.CreateDirectory(root, []byte("sub"), 0o755, 0, 0)
	if errno != 0 {
		t.Fatalf("unexpected errno: %d", errno)
	}
	defer fs.Release(sub)

	// Then "." resolves to itself and ".." resolves to root
	dotIno, ok, err := sub.Lookup([]byte("."))
	if err != nil || !ok || dotIno != sub.Ino() {
		t.Fatalf("wanted `.` to resolve to `%d`; found `(%d, %v, %v)`", sub.Ino(), dotIno, ok, err)
	}
	dotDotIno, ok, err := sub.Lookup([]byte(".."))
	if err != nil || !ok || dotDotIno != root.Ino() {
		t.Fatalf("wanted `..` to resolve to `%d`; found `(%d, %v, %v)`", root.Ino(), dotDotIno, ok, err)
	}

	// And root's link count grew by one for the new ".." reference
	if root.Metadata().LinksCount != 3 {
		t.Fatalf("wanted root links_count `3`; found `%d`", root.Metadata().LinksCount)
	}
}

func TestVFS_Unlink_LastLinkFreesInode(t *testing.T) {
	// Given a file with a single link
	fs, _ := testVolume(t, 512, 1024, 64)
	root, _ := fs.RootInode()
	defer fs.Release(root)
	live, errno := fs.CreateInode(root, []byte("gone.txt"), FileTypeRegular, 0o644, 0, 0)
	if errno != 0 {
		t.Fatalf("unexpected errno: %d", errno)
	}
	ino := live.Ino()
	fs.Release(live)

	// When it's unlinked
	if errno := fs.Unlink(root, []byte("gone.txt")); errno != 0 {
		t.Fatalf("unexpected errno: %d", errno)
	}

	// Then it's no longer reachable from root
	if _, ok, err := root.Lookup([]byte("gone.txt")); err != nil || ok {
		t.Fatalf("wanted entry gone; found `(%v, %v)`", ok, err)
	}

	// And re-creating a file reuses the freed inode rather than growing past it
	live2, errno := fs.CreateInode(root, []byte("again.txt"), FileTypeRegular, 0o644, 0, 0)
	if errno != 0 {
		t.Fatalf("unexpected errno: %d", errno)
	}
	defer fs.Release(live2)
	if live2.Ino() != ino {
		t.Fatalf("wanted the freed inode `%d` reused; found `%d`", ino, live2.Ino())
	}
}

func TestVFS_Unlink_DirectoryRejected(t *testing.T) {
	// Given a subdirectory
	fs, _ := testVolume(t, 512, 1024, 64)
	root, _ := fs.RootInode()
	defer fs.Release(root)
	sub, errno := fs.CreateDirectory(root, []byte("sub"), 0o755, 0, 0)
	if errno != 0 {
		t.Fatalf("unexpected errno: %d", errno)
	}
	fs.Release(sub)

	// When it's unlinked as if it were a plain file
	errno = fs.Unlink(root, []byte("sub"))

	// Then it's rejected
	if errno != EISDIR {
		t.Fatalf("wanted `EISDIR`; found `%d`", errno)
	}
}

func TestVFS_FindParentOfInode(t *testing.T) {
	// Given a file nested under root
	fs, _ := testVolume(t, 512, 1024, 64)
	root, _ := fs.RootInode()
	defer fs.Release(root)
	live, errno := fs.CreateInode(root, []byte("child.txt"), FileTypeRegular, 0o644, 0, 0)
	if errno != 0 {
		t.Fatalf("unexpected errno: %d", errno)
	}
	childIno := live.Ino()
	fs.Release(live)

	// When its parent is sought
	parentIno, name, err := fs.FindParentOfInode(childIno)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	// Then it's root, under the original name
	if parentIno != root.Ino() || string(name) != "child.txt" {
		t.Fatalf("wanted `(%d, \"child.txt\")`; found `(%d, %q)`", root.Ino(), parentIno, name)
	}
}

func TestVFS_SetMTime(t *testing.T) {
	// Given a file
	fs, _ := testVolume(t, 512, 1024, 64)
	root, _ := fs.RootInode()
	defer fs.Release(root)
	live, errno := fs.CreateInode(root, []byte("stamped.txt"), FileTypeRegular, 0o644, 0, 0)
	if errno != 0 {
		t.Fatalf("unexpected errno: %d", errno)
	}
	defer fs.Release(live)

	// When its mtime is set
	if errno := fs.SetMTime(live, 12345); errno != 0 {
		t.Fatalf("unexpected errno: %d", errno)
	}

	// Then it reads back as stamped, including from a fresh cache lookup
	if live.Metadata().Attr.MTime != 12345 {
		t.Fatalf("wanted mtime `12345`; found `%d`", live.Metadata().Attr.MTime)
	}
	again, err := fs.GetInode(live.Ino())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	defer fs.Release(again)
	if again.Metadata().Attr.MTime != 12345 {
		t.Fatalf("wanted mtime `12345`; found `%d`", again.Metadata().Attr.MTime)
	}
}
