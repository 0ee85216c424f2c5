package ext2

import "testing"

func TestGroupDesc_EncodeDecode_RoundTrip(t *testing.T) {
	// Given a populated group descriptor
	want := GroupDesc{
		BlockBitmap:     3,
		InodeBitmap:     4,
		InodeTable:      5,
		FreeBlocksCount: 1000,
		FreeInodesCount: 500,
		UsedDirsCount:   2,
	}

	// When it's encoded and decoded back
	var buf [GroupDescSize]byte
	want.Encode(&buf)
	got := DecodeGroupDesc(&buf)

	// Then every field round-trips
	if got != want {
		t.Fatalf("wanted `%+v`; found `%+v`", want, got)
	}
}
