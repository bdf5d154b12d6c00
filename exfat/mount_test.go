package exfat

import (
	"bytes"
	"testing"
)

func newMountableTestVolume(spec testVolumeSpec) *testVolume {
	tv := newTestVolume(spec)

	entries := [][]byte{
		testAllocationBitmapEntry(0, 2, 3),
	}

	if spec.numberOfFats == 2 {
		entries = append(entries, testAllocationBitmapEntry(1, 3, 3))
	}

	entries = append(entries, testVolumeLabelEntry("TEST"))

	tv.writeDirectory(spec.firstClusterOfRoot, entries...)

	return tv
}

func TestOpen(t *testing.T) {
	tv := newMountableTestVolume(defaultTestVolumeSpec())

	fs, err := Open(tv.reader())
	if err != nil {
		t.Fatalf("Open failed: %s", err)
	}

	if label, found := fs.Label(); found != true || label != "TEST" {
		t.Fatalf("Label not correct: [%s] [%v]", label, found)
	}

	params := fs.Params()
	if params.BytesPerSector != 512 || params.ClusterCount != 16 {
		t.Fatalf("Params not correct: %+v", params)
	}

	if fs.Root().AllocationBitmaps[0] == nil {
		t.Fatalf("Allocation bitmap missing after mount.")
	}
}

func TestOpen_NotExFat(t *testing.T) {
	tv := newMountableTestVolume(defaultTestVolumeSpec())
	copy(tv.data[3:11], []byte("NTFS    "))

	if _, err := Open(tv.reader()); err != ErrNotExFat {
		t.Fatalf("Expected ErrNotExFat: %v", err)
	}
}

func TestOpen_BadBytesPerSectorShift(t *testing.T) {
	tv := newMountableTestVolume(defaultTestVolumeSpec())
	tv.data[108] = 8

	if _, err := Open(tv.reader()); err != ErrInvalidBytesPerSectorShift {
		t.Fatalf("Expected ErrInvalidBytesPerSectorShift: %v", err)
	}
}

func TestOpen_NoAllocationBitmap(t *testing.T) {
	tv := newTestVolume(defaultTestVolumeSpec())
	tv.writeDirectory(4, testVolumeLabelEntry("TEST"))

	if _, err := Open(tv.reader()); err != ErrNoAllocationBitmap {
		t.Fatalf("Expected ErrNoAllocationBitmap: %v", err)
	}
}

func TestOpen_SecondBitmapRequired(t *testing.T) {
	// With two FAT copies the second allocation bitmap is the one that
	// matters, so a volume carrying only the first must not mount.
	spec := defaultTestVolumeSpec()
	spec.numberOfFats = 2

	tv := newTestVolume(spec)
	tv.writeDirectory(4, testAllocationBitmapEntry(0, 2, 3))

	if _, err := Open(tv.reader()); err != ErrNoAllocationBitmap {
		t.Fatalf("Expected ErrNoAllocationBitmap: %v", err)
	}
}

func TestOpen_ActiveFatRequiresSecondCopy(t *testing.T) {
	spec := defaultTestVolumeSpec()
	spec.volumeFlags = uint16(VolumeFlagActiveFat)

	tv := newMountableTestVolume(spec)

	if _, err := Open(tv.reader()); err != ErrInvalidNumberOfFats {
		t.Fatalf("Expected ErrInvalidNumberOfFats: %v", err)
	}
}

func TestOpen_SecondFatActive(t *testing.T) {
	spec := defaultTestVolumeSpec()
	spec.numberOfFats = 2
	spec.volumeFlags = uint16(VolumeFlagActiveFat)

	tv := newMountableTestVolume(spec)

	// Free the root cluster in the first copy. If the mount honored the
	// active-FAT flag it never looks at it.
	tv.setFatEntry(0, 4, 0)

	fs, err := Open(tv.reader())
	if err != nil {
		t.Fatalf("Open failed: %s", err)
	}

	if fs.Fat().Entry(4).IsLast() != true {
		t.Fatalf("Mount did not load the second FAT copy.")
	}
}

func TestOpen_TruncatedBootRegion(t *testing.T) {
	tv := newMountableTestVolume(defaultTestVolumeSpec())

	if _, err := Open(bytes.NewReader(tv.data[:100])); err == nil {
		t.Fatalf("Expected failure for a truncated boot region.")
	}
}
