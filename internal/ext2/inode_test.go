package ext2

import "testing"

func TestMode_EncodeDecode_RoundTrip(t *testing.T) {
	for _, fileType := range []FileType{
		FileTypeFifo, FileTypeCharDev, FileTypeDir, FileTypeBlockDev,
		FileTypeRegular, FileTypeSymlink, FileTypeSocket,
	} {
		// Given a mode with this file type and some permission bits
		want := Mode{FileType: fileType, SUID: true, AccessRights: 0o644}

		// When it's encoded and decoded back
		encoded := want.Encode()
		got, err := DecodeInodeMode(encoded)
		if err != nil {
			t.Fatalf("%s: unexpected err: %v", fileType, err)
		}

		// Then it round-trips exactly
		if got != want {
			t.Errorf("%s: wanted `%+v`; found `%+v`", fileType, want, got)
		}
	}
}

func TestDecodeInodeMode_UnknownTypeNibble(t *testing.T) {
	// Given a mode whose type nibble ext2 doesn't define (0x3)
	mode := uint16(0x3000) | 0o644

	// When it's decoded
	_, err := DecodeInodeMode(mode)

	// Then it's rejected
	if err == nil {
		t.Fatal("wanted an error; found none")
	}
}

func TestInode_EncodeDecode_RoundTrip(t *testing.T) {
	// Given a populated regular-file inode
	want := Inode{
		Ino:        12,
		Mode:       Mode{FileType: FileTypeRegular, AccessRights: 0o644},
		Attr:       FileAttr{UID: 1000, GID: 1000, ATime: 111, CTime: 222, MTime: 333, DTime: 0},
		Size:       4096,
		Size512:    8,
		LinksCount: 1,
		Flags:      0,
		Block:      [15]Block{1, 2, 3},
		FileACL:    0,
	}

	// When it's encoded and decoded back under the dynamic revision
	var buf [InodeBufferSize]byte
	if err := want.Encode(RevLevelDynamic, &buf); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	got, err := DecodeInode(12, RevLevelDynamic, &buf)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	// Then every field round-trips
	if got != want {
		t.Fatalf("wanted `%+v`; found `%+v`", want, got)
	}
}

func TestInode_Encode_SizeTooLargeForStaticRevLevel(t *testing.T) {
	// Given an inode whose size exceeds 32 bits
	inode := Inode{Ino: 12, Mode: Mode{FileType: FileTypeRegular}, Size: 1 << 33}

	// When it's encoded under the static revision
	var buf [InodeBufferSize]byte
	err := inode.Encode(RevLevelStatic, &buf)

	// Then it's rejected
	if err == nil {
		t.Fatal("wanted an error; found none")
	}
}
