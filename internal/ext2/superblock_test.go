package ext2

import (
	"errors"
	"testing"
)

func TestSuperblock_EncodeDecode_RoundTrip(t *testing.T) {
	// Given a populated superblock
	want := Superblock{
		InodesCount:     512,
		BlocksCount:     16384,
		FreeBlocksCount: 16000,
		FreeInodesCount: 500,
		FirstDataBlock:  1,
		LogBlockSize:    0,
		BlocksPerGroup:  16383,
		InodesPerGroup:  512,
		State:           StateClean,
		RevLevel:        RevLevelDynamic,
		FirstIno:        11,
		InodeSize:       128,
		FeatureIncompat: SupportedIncompatFeatures,
		FeatureROCompat: SupportedROCompatFeatures,
	}

	// When it's encoded and decoded back
	var buf [SuperblockSize]byte
	want.Encode(&buf)
	got, err := DecodeSuperblock(&buf, false)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	// Then every field round-trips
	if got != want {
		t.Fatalf("wanted `%+v`; found `%+v`", want, got)
	}
}

func TestSuperblock_Decode_BadMagic(t *testing.T) {
	// Given an all-zero buffer (no magic stamped)
	var buf [SuperblockSize]byte

	// When it's decoded
	_, err := DecodeSuperblock(&buf, false)

	// Then it's reported as corrupt
	if !errors.Is(err, CorruptErr) {
		t.Fatalf("wanted `CorruptErr`; found `%v`", err)
	}
}

func TestSuperblock_BlockSize(t *testing.T) {
	for _, tc := range []struct {
		logBlockSize uint32
		wanted       Byte
	}{
		{0, 1024},
		{1, 2048},
		{2, 4096},
	} {
		sb := Superblock{LogBlockSize: tc.logBlockSize}
		if got := sb.BlockSize(); got != tc.wanted {
			t.Errorf("log_block_size=%d: wanted `%d`; found `%d`", tc.logBlockSize, tc.wanted, got)
		}
	}
}

func TestSuperblock_GroupCount(t *testing.T) {
	// Given a superblock whose 99 blocks after first_data_block make exactly
	// three groups of 33 (100 blocks would round up to four)
	sb := Superblock{BlocksCount: 100, FirstDataBlock: 1, BlocksPerGroup: 33}

	// When GroupCount is computed
	got := sb.GroupCount()

	// Then it accounts for first_data_block before dividing:
	// ceil((100-1)/33) = 3
	if got != 3 {
		t.Fatalf("wanted `3`; found `%d`", got)
	}
}
