package ext2

import "testing"

func TestBitmap_SetGet(t *testing.T) {
	// Given a fresh 2-byte bitmap
	bm := NewBitmap(make([]byte, 2))

	// When bit 5 is set
	bm.Set(5, true)

	// Then only bit 5 reads back set
	for k := uint64(0); k < 16; k++ {
		want := k == 5
		if got := bm.Get(k); got != want {
			t.Errorf("bit %d: wanted `%v`; found `%v`", k, want, got)
		}
	}
}

func TestBitmap_FindFirstUnset(t *testing.T) {
	// Given a bitmap with bits 0-2 set
	bm := NewBitmap(make([]byte, 1))
	bm.Set(0, true)
	bm.Set(1, true)
	bm.Set(2, true)

	// When the first unset bit is found
	got, ok := bm.FindFirstUnset(0)

	// Then it's bit 3
	if !ok || got != 3 {
		t.Fatalf("wanted `(3, true)`; found `(%d, %v)`", got, ok)
	}
}

func TestBitmap_FindFirstUnset_AllSet(t *testing.T) {
	// Given a fully set bitmap
	bm := NewBitmap(make([]byte, 1))
	for k := uint64(0); k < 8; k++ {
		bm.Set(k, true)
	}

	// When the first unset bit is sought
	_, ok := bm.FindFirstUnset(0)

	// Then none is found
	if ok {
		t.Fatal("wanted no unset bit; found one")
	}
}

func TestBitmap_PopcountClear(t *testing.T) {
	// Given a bitmap with 3 of 8 bits set
	bm := NewBitmap(make([]byte, 1))
	bm.Set(0, true)
	bm.Set(1, true)
	bm.Set(7, true)

	// When the clear bits are counted
	got := bm.PopcountClear()

	// Then 5 remain clear
	if got != 5 {
		t.Fatalf("wanted `5`; found `%d`", got)
	}
}
