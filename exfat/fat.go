// This file loads one copy of the File Allocation Table and walks
// cluster chains through it.

package exfat

import (
	"bytes"
	"errors"
	"io"
	"reflect"

	"encoding/binary"

	"github.com/dsoprea/go-logging"
)

// Chain traversal errors. Any of these indicates either a corrupt volume
// or a lookup through a cluster that was never allocated to a chain.
var (
	// ErrFreeClusterInChain indicates that a chain hopped onto a cluster
	// whose FAT entry is the free marker.
	ErrFreeClusterInChain = errors.New("cluster chain entry is free")

	// ErrBadClusterInChain indicates that a chain hopped onto a cluster
	// marked bad.
	ErrBadClusterInChain = errors.New("cluster chain entry is bad")

	// ErrInvalidClusterInChain indicates a FAT entry outside of
	// [2, ClusterCount+1] that is not one of the special markers.
	ErrInvalidClusterInChain = errors.New("cluster chain entry is out of range")

	// ErrCyclicClusterChain indicates that a chain revisited a cluster.
	// The traversal fails fast rather than spinning forever.
	ErrCyclicClusterChain = errors.New("cluster chain is cyclic")
)

const (
	freeMappedCluster = MappedCluster(0x00000000)
	badMappedCluster  = MappedCluster(0xfffffff7)
	lastMappedCluster = MappedCluster(0xffffffff)
)

// MappedCluster represents one cluster entry in the FAT.
type MappedCluster uint32

// IsFree indicates that the cluster is not allocated to any chain.
func (mc MappedCluster) IsFree() bool {
	return mc == freeMappedCluster
}

// IsBad indicates that this cluster has been marked as having one or
// more bad sectors.
func (mc MappedCluster) IsBad() bool {
	return mc == badMappedCluster
}

// IsLast indicates that no more clusters follow the cluster that led to
// this entry.
func (mc MappedCluster) IsLast() bool {
	return mc == lastMappedCluster
}

// Fat is a read-only snapshot of one FAT copy, index-addressable by
// cluster number. Entries zero and one are reserved and never consulted.
type Fat struct {
	entries      []MappedCluster
	clusterCount uint32
}

// LoadFat reads FAT copy `fatIndex` (zero for the primary, one for the
// TexFAT mirror) into memory. The caller is responsible for only asking
// for a copy the volume actually has.
func LoadFat(rs io.ReadSeeker, params Params, fatIndex int) (fat Fat, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			var ok bool
			if err, ok = errRaw.(error); ok == true {
				err = log.Wrap(err)
			} else {
				err = log.Errorf("Error not an error: [%s] [%v]", reflect.TypeOf(err).Name(), err)
			}
		}
	}()

	if fatIndex < 0 || fatIndex >= int(params.NumberOfFats) {
		log.Panicf("FAT copy (%d) does not exist on this volume", fatIndex)
	}

	offset := (params.FatOffset + uint64(fatIndex)*params.FatLength) * params.BytesPerSector
	length := params.FatLength * params.BytesPerSector

	_, err = rs.Seek(int64(offset), io.SeekStart)
	log.PanicIf(err)

	raw := make([]byte, length)

	if _, err := io.ReadFull(rs, raw); err != nil {
		log.Panicf("could not read FAT copy (%d): %s", fatIndex, err)
	}

	// One entry per cluster number, including the two reserved entries.
	// The FAT region may be longer than the entries it has to describe;
	// the excess is undefined and ignored.

	entryCount := uint64(params.ClusterCount) + 2
	if available := length / 4; available < entryCount {
		entryCount = available
	}

	entries := make([]MappedCluster, entryCount)

	err = binary.Read(bytes.NewReader(raw[:entryCount*4]), defaultEncoding, entries)
	log.PanicIf(err)

	fat = Fat{
		entries:      entries,
		clusterCount: params.ClusterCount,
	}

	return fat, nil
}

// Entry returns the FAT entry for the given cluster number.
func (fat Fat) Entry(clusterNumber uint32) MappedCluster {
	if clusterNumber >= uint32(len(fat.entries)) {
		log.Panicf("cluster exceeds FAT bounds: (%d) >= (%d)", clusterNumber, len(fat.entries))
	}

	return fat.entries[clusterNumber]
}

// ClusterVisitorFunc is a visitor callback as all clusters in a chain
// are visited.
type ClusterVisitorFunc func(clusterNumber uint32) (doContinue bool, err error)

// EnumerateChain calls the given callback for each cluster in the chain
// starting from the given cluster: the starting cluster first, then each
// cluster its FAT entry points to, until the end-of-chain marker. A
// free, bad, or out-of-range entry aborts the walk with a distinct
// error, and a revisited cluster aborts with ErrCyclicClusterChain. The
// sequence is always finite.
func (fat Fat) EnumerateChain(startingClusterNumber uint32, cb ClusterVisitorFunc) (err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			var ok bool
			if err, ok = errRaw.(error); ok == true {
				err = log.Wrap(err)
			} else {
				err = log.Errorf("Error not an error: [%s] [%v]", reflect.TypeOf(err).Name(), err)
			}
		}
	}()

	visited := make(map[uint32]struct{})

	currentClusterNumber := startingClusterNumber
	for {
		if currentClusterNumber < firstClusterNumber || uint64(currentClusterNumber) > uint64(fat.clusterCount)+1 {
			return ErrInvalidClusterInChain
		} else if int(currentClusterNumber) >= len(fat.entries) {
			// The FAT region was too short to describe this cluster.
			return ErrInvalidClusterInChain
		}

		if _, seen := visited[currentClusterNumber]; seen == true {
			return ErrCyclicClusterChain
		}

		visited[currentClusterNumber] = struct{}{}

		doContinue, err := cb(currentClusterNumber)
		log.PanicIf(err)

		if doContinue == false {
			return nil
		}

		entry := fat.entries[currentClusterNumber]

		if entry.IsLast() == true {
			return nil
		} else if entry.IsFree() == true {
			return ErrFreeClusterInChain
		} else if entry.IsBad() == true {
			return ErrBadClusterInChain
		}

		currentClusterNumber = uint32(entry)
	}
}

// Chain collects the full cluster chain starting from the given cluster.
func (fat Fat) Chain(startingClusterNumber uint32) (clusterNumbers []uint32, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			var ok bool
			if err, ok = errRaw.(error); ok == true {
				err = log.Wrap(err)
			} else {
				err = log.Errorf("Error not an error: [%s] [%v]", reflect.TypeOf(err).Name(), err)
			}
		}
	}()

	clusterNumbers = make([]uint32, 0)

	err = fat.EnumerateChain(startingClusterNumber, func(clusterNumber uint32) (doContinue bool, err error) {
		clusterNumbers = append(clusterNumbers, clusterNumber)
		return true, nil
	})

	if err != nil {
		return nil, err
	}

	return clusterNumbers, nil
}
