package exfat

import (
	"reflect"
	"testing"
)

func loadTestFat(t *testing.T, tv *testVolume, fatIndex int) (Params, Fat) {
	t.Helper()

	params, err := parseTestParams(t, tv.spec)
	if err != nil {
		t.Fatalf("Parse failed: %s", err)
	}

	fat, err := LoadFat(tv.reader(), params, fatIndex)
	if err != nil {
		t.Fatalf("LoadFat failed: %s", err)
	}

	return params, fat
}

func TestLoadFat(t *testing.T) {
	tv := newTestVolume(defaultTestVolumeSpec())
	tv.setFatEntry(0, 5, 6)
	tv.setFatEntry(0, 6, 0xffffffff)

	_, fat := loadTestFat(t, tv, 0)

	if fat.Entry(0) != MappedCluster(0xfffffff8) {
		t.Fatalf("Media-type entry not correct: (0x%08x)", uint32(fat.Entry(0)))
	} else if fat.Entry(1).IsLast() != true {
		t.Fatalf("Reserved entry not correct.")
	} else if fat.Entry(5) != MappedCluster(6) {
		t.Fatalf("Entry (5) not correct: (%d)", uint32(fat.Entry(5)))
	} else if fat.Entry(6).IsLast() != true {
		t.Fatalf("Entry (6) not correct.")
	} else if fat.Entry(7).IsFree() != true {
		t.Fatalf("Entry (7) should be free.")
	}
}

func TestLoadFat_SecondCopy(t *testing.T) {
	spec := defaultTestVolumeSpec()
	spec.numberOfFats = 2

	tv := newTestVolume(spec)

	// Distinguish the two copies.
	tv.setFatEntry(0, 5, 0xfffffff7)
	tv.setFatEntry(1, 5, 9)

	_, fat := loadTestFat(t, tv, 1)

	if fat.Entry(5) != MappedCluster(9) {
		t.Fatalf("Second FAT copy not read from its own offset: (0x%08x)", uint32(fat.Entry(5)))
	}
}

func TestMappedCluster_Markers(t *testing.T) {
	if MappedCluster(0).IsFree() != true {
		t.Fatalf("Free marker not recognized.")
	} else if MappedCluster(0xfffffff7).IsBad() != true {
		t.Fatalf("Bad marker not recognized.")
	} else if MappedCluster(0xffffffff).IsLast() != true {
		t.Fatalf("Last marker not recognized.")
	} else if MappedCluster(17).IsFree() || MappedCluster(17).IsBad() || MappedCluster(17).IsLast() {
		t.Fatalf("Plain mapping misread as a marker.")
	}
}

func TestFat_Chain_SingleCluster(t *testing.T) {
	// The root cluster is already marked end-of-chain by the fixture.
	tv := newTestVolume(defaultTestVolumeSpec())

	_, fat := loadTestFat(t, tv, 0)

	clusters, err := fat.Chain(tv.spec.firstClusterOfRoot)
	if err != nil {
		t.Fatalf("Chain failed: %s", err)
	}

	if reflect.DeepEqual(clusters, []uint32{4}) != true {
		t.Fatalf("Chain not correct: %v", clusters)
	}
}

func TestFat_Chain_MultipleClusters(t *testing.T) {
	tv := newTestVolume(defaultTestVolumeSpec())
	tv.setFatEntry(0, 5, 9)
	tv.setFatEntry(0, 9, 6)
	tv.setFatEntry(0, 6, 0xffffffff)

	_, fat := loadTestFat(t, tv, 0)

	clusters, err := fat.Chain(5)
	if err != nil {
		t.Fatalf("Chain failed: %s", err)
	}

	if reflect.DeepEqual(clusters, []uint32{5, 9, 6}) != true {
		t.Fatalf("Chain not correct: %v", clusters)
	}
}

func TestFat_Chain_Cyclic(t *testing.T) {
	tv := newTestVolume(defaultTestVolumeSpec())
	tv.setFatEntry(0, 5, 6)
	tv.setFatEntry(0, 6, 5)

	_, fat := loadTestFat(t, tv, 0)

	if _, err := fat.Chain(5); err != ErrCyclicClusterChain {
		t.Fatalf("Expected ErrCyclicClusterChain: %v", err)
	}
}

func TestFat_Chain_FreeEntry(t *testing.T) {
	tv := newTestVolume(defaultTestVolumeSpec())
	tv.setFatEntry(0, 5, 6)

	// Cluster 6 is still free.

	_, fat := loadTestFat(t, tv, 0)

	if _, err := fat.Chain(5); err != ErrFreeClusterInChain {
		t.Fatalf("Expected ErrFreeClusterInChain: %v", err)
	}
}

func TestFat_Chain_BadEntry(t *testing.T) {
	tv := newTestVolume(defaultTestVolumeSpec())
	tv.setFatEntry(0, 5, 6)
	tv.setFatEntry(0, 6, 0xfffffff7)

	_, fat := loadTestFat(t, tv, 0)

	if _, err := fat.Chain(5); err != ErrBadClusterInChain {
		t.Fatalf("Expected ErrBadClusterInChain: %v", err)
	}
}

func TestFat_Chain_OutOfRangeEntry(t *testing.T) {
	// ClusterCount is 16, so 18 is past the last valid cluster (17).
	tv := newTestVolume(defaultTestVolumeSpec())
	tv.setFatEntry(0, 5, 18)

	_, fat := loadTestFat(t, tv, 0)

	if _, err := fat.Chain(5); err != ErrInvalidClusterInChain {
		t.Fatalf("Expected ErrInvalidClusterInChain: %v", err)
	}
}

func TestFat_Chain_InvalidStart(t *testing.T) {
	tv := newTestVolume(defaultTestVolumeSpec())

	_, fat := loadTestFat(t, tv, 0)

	for _, start := range []uint32{0, 1, 18} {
		if _, err := fat.Chain(start); err != ErrInvalidClusterInChain {
			t.Fatalf("Expected ErrInvalidClusterInChain for start (%d): %v", start, err)
		}
	}
}

func TestFat_EnumerateChain_EarlyStop(t *testing.T) {
	tv := newTestVolume(defaultTestVolumeSpec())
	tv.setFatEntry(0, 5, 6)
	tv.setFatEntry(0, 6, 0xffffffff)

	_, fat := loadTestFat(t, tv, 0)

	visited := make([]uint32, 0)

	err := fat.EnumerateChain(5, func(clusterNumber uint32) (doContinue bool, err error) {
		visited = append(visited, clusterNumber)
		return false, nil
	})

	if err != nil {
		t.Fatalf("EnumerateChain failed: %s", err)
	}

	if reflect.DeepEqual(visited, []uint32{5}) != true {
		t.Fatalf("Early stop not honored: %v", visited)
	}
}
