package ext2

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSerializeParseDirEntries_RoundTrip(t *testing.T) {
	// Given a small set of directory entries
	entries := []DirEntryInput{
		{Name: []byte("."), Child: 2, FileType: FileTypeDir},
		{Name: []byte(".."), Child: 2, FileType: FileTypeDir},
		{Name: []byte("hello.txt"), Child: 12, FileType: FileTypeRegular},
	}

	// When they're serialized and parsed back
	buf, err := SerializeDirEntries(entries, 1024)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	type seen struct {
		name     string
		child    Ino
		fileType FileType
	}
	var got []seen
	err = ParseDirEntries(buf, func(name []byte, child Ino, fileType FileType) bool {
		got = append(got, seen{string(name), child, fileType})
		return true
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	want := []seen{
		{".", 2, FileTypeDir},
		{"..", 2, FileTypeDir},
		{"hello.txt", 12, FileTypeRegular},
	}
	if diff := cmp.Diff(want, got, cmp.AllowUnexported(seen{})); diff != "" {
		t.Fatalf("unexpected diff:\n%s", diff)
	}

	// And the whole buffer is exactly one block
	if len(buf) != 1024 {
		t.Fatalf("wanted `1024`-byte buffer; found `%d`", len(buf))
	}
}

func TestParseDirEntries_StopsEarly(t *testing.T) {
	// Given three entries
	entries := []DirEntryInput{
		{Name: []byte("a"), Child: 12, FileType: FileTypeRegular},
		{Name: []byte("b"), Child: 13, FileType: FileTypeRegular},
		{Name: []byte("c"), Child: 14, FileType: FileTypeRegular},
	}
	buf, err := SerializeDirEntries(entries, 1024)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	// When the visitor stops after the first entry
	var count int
	err = ParseDirEntries(buf, func(name []byte, child Ino, fileType FileType) bool {
		count++
		return false
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	// Then only the first entry was visited
	if count != 1 {
		t.Fatalf("wanted `1` visit; found `%d`", count)
	}
}

func TestParseDirEntries_CorruptRecLen(t *testing.T) {
	// Given a buffer whose first record claims a rec_len that overruns the
	// buffer
	buf := make([]byte, 16)
	entry := DirEntry{Ino: 12, RecLen: 9000, NameLen: 1, FileType: FileTypeRegular}
	EncodeDirEntryHeader(&entry, (*[DirEntryHeaderSize]byte)(buf[:DirEntryHeaderSize]))

	// When it's parsed
	err := ParseDirEntries(buf, func(name []byte, child Ino, fileType FileType) bool { return true })

	// Then it's reported as corrupt
	if !errors.Is(err, CorruptErr) {
		t.Fatalf("wanted `CorruptErr`; found `%v`", err)
	}
}

func TestSerializeDirEntries_NameTooLong(t *testing.T) {
	// Given an entry whose name exceeds 255 bytes
	name := make([]byte, 256)

	// When it's serialized
	_, err := SerializeDirEntries([]DirEntryInput{{Name: name, Child: 12, FileType: FileTypeRegular}}, 1024)

	// Then it's rejected
	if err == nil {
		t.Fatal("wanted an error; found none")
	}
}
