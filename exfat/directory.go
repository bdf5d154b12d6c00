// This file walks a directory's cluster stream and groups its 32-byte
// entries into logical entry sets, including the volume-label and
// allocation-bitmap special entry sets that mounting depends on.

package exfat

import (
	"errors"
	"io"
	"reflect"

	"github.com/dsoprea/go-logging"
)

// Directory corruption errors.
var (
	// ErrEntrySetChecksum indicates that the stored set-checksum of an
	// entry set does not cover its bytes.
	ErrEntrySetChecksum = errors.New("directory entry-set checksum mismatch")

	// ErrMalformedEntrySet indicates an entry set cut short by the end of
	// the directory stream, or a secondary entry with no primary in
	// front of it.
	ErrMalformedEntrySet = errors.New("directory entry-set malformed")
)

// EntrySet is the logical unit of directory encoding: one primary entry
// and the secondary entries bound to it.
type EntrySet struct {
	Primary     DirectoryEntry
	Secondaries []DirectoryEntry
}

// FileName assembles the complete filename of a file entry set.
func (es EntrySet) FileName() string {
	return MultipartFilename(es.Secondaries).Filename()
}

// StreamExtension returns the stream-extension secondary of a file entry
// set, or nil.
func (es EntrySet) StreamExtension() *StreamExtensionDirectoryEntry {
	for _, de := range es.Secondaries {
		if sede, ok := de.(*StreamExtensionDirectoryEntry); ok == true {
			return sede
		}
	}

	return nil
}

// entrySetChecksum is the 16-bit rotate-right-and-add checksum over
// every byte of every entry in the set, skipping the two checksum bytes
// of the primary entry (Section 6.3.3).
func entrySetChecksum(setData []byte) uint16 {
	checksum := uint16(0)

	for i, b := range setData {
		if i == 2 || i == 3 {
			continue
		}

		checksum = checksum>>1 | checksum<<15
		checksum += uint16(b)
	}

	return checksum
}

// setCarriesChecksum reports whether the primary entry of a set stores a
// verifiable set-checksum. The critical primaries that redefine those
// template bytes (bitmap, up-case table, label) do not.
func setCarriesChecksum(primary DirectoryEntry) (storedChecksum uint16, carries bool) {
	switch pe := primary.(type) {
	case *FileDirectoryEntry:
		return pe.SetChecksum, true
	case *VolumeGuidDirectoryEntry:
		return pe.SetChecksum, true
	}

	return 0, false
}

// loadDirectoryStream materializes the raw 32-byte entry stream of a
// directory. The stream is one flat sequence across the whole cluster
// chain, not per-cluster-bounded. With useFat false the clusters are
// adjacent on disk (NoFatChain) and the read stops at the cluster
// containing the end-of-directory marker.
func loadDirectoryStream(rs io.ReadSeeker, params Params, fat Fat, firstClusterNumber uint32, useFat bool) (data []byte, err error) {
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

	data = make([]byte, 0, params.ClusterSize())

	if useFat == true {
		err = fat.EnumerateChain(firstClusterNumber, func(clusterNumber uint32) (doContinue bool, err error) {
			clusterData, err := readCluster(rs, params, clusterNumber)
			log.PanicIf(err)

			data = append(data, clusterData...)

			return true, nil
		})

		if err != nil {
			return nil, err
		}

		return data, nil
	}

	for clusterNumber := firstClusterNumber; ; clusterNumber++ {
		if clusterNumber < firstClusterNumber || uint64(clusterNumber) > uint64(params.ClusterCount)+1 {
			// Ran off the heap without a terminal entry.
			return nil, ErrMalformedEntrySet
		}

		clusterData, err := readCluster(rs, params, clusterNumber)
		log.PanicIf(err)

		data = append(data, clusterData...)

		if hasEndOfDirectory(clusterData) == true {
			return data, nil
		}
	}
}

// hasEndOfDirectory scans the 32-byte slots of one cluster for the
// terminal entry.
func hasEndOfDirectory(clusterData []byte) bool {
	for i := 0; i+directoryEntrySize <= len(clusterData); i += directoryEntrySize {
		if EntryType(clusterData[i]).IsEndOfDirectory() == true {
			return true
		}
	}

	return false
}

// EntrySetVisitorFunc is a visitor callback over each in-use entry set
// of a directory.
type EntrySetVisitorFunc func(es EntrySet) (err error)

// EnumerateEntrySets walks the directory stream starting at the given
// cluster and calls the callback once per complete, verified entry set.
// The walk terminates at the end-of-directory entry. Unused entries are
// skipped; a checksum mismatch or a structurally broken set aborts the
// enumeration.
func EnumerateEntrySets(rs io.ReadSeeker, params Params, fat Fat, firstClusterNumber uint32, useFat bool, cb EntrySetVisitorFunc) (err error) {
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

	data, err := loadDirectoryStream(rs, params, fat, firstClusterNumber, useFat)
	if err != nil {
		return err
	}

	for offset := 0; offset+directoryEntrySize <= len(data); {
		entryData := data[offset : offset+directoryEntrySize]
		entryType := EntryType(entryData[0])

		if entryType.IsEndOfDirectory() == true {
			return nil
		}

		if entryType.IsUnusedEntryMarker() == true {
			offset += directoryEntrySize
			continue
		}

		if entryType.IsSecondary() == true {
			// A secondary with no primary in front of it.
			return ErrMalformedEntrySet
		}

		primary, err := parseDirectoryEntry(entryType, entryData)
		log.PanicIf(err)

		secondaryCount := 0
		if pde, ok := primary.(PrimaryDirectoryEntry); ok == true {
			secondaryCount = int(pde.SecondaryCount())
		}

		setSize := (secondaryCount + 1) * directoryEntrySize
		if offset+setSize > len(data) {
			return ErrMalformedEntrySet
		}

		secondaries := make([]DirectoryEntry, 0, secondaryCount)

		for i := 1; i <= secondaryCount; i++ {
			secondaryData := data[offset+i*directoryEntrySize : offset+(i+1)*directoryEntrySize]
			secondaryType := EntryType(secondaryData[0])

			if secondaryType.IsInUse() == false || secondaryType.IsSecondary() == false {
				return ErrMalformedEntrySet
			}

			secondary, err := parseDirectoryEntry(secondaryType, secondaryData)
			log.PanicIf(err)

			secondaries = append(secondaries, secondary)
		}

		if storedChecksum, carries := setCarriesChecksum(primary); carries == true {
			if entrySetChecksum(data[offset:offset+setSize]) != storedChecksum {
				return ErrEntrySetChecksum
			}
		}

		err = cb(EntrySet{Primary: primary, Secondaries: secondaries})
		log.PanicIf(err)

		offset += setSize
	}

	// The stream ended without a terminal entry; tolerated, since the
	// chain itself bounded the walk.
	return nil
}

// AllocationBitmap describes the on-disk bitmap stream of one FAT copy.
type AllocationBitmap struct {
	// FirstCluster is the first cluster of the bitmap stream.
	FirstCluster uint32

	// DataLength is the length of the bitmap in bytes.
	DataLength uint64
}

// UpcaseTable describes the on-disk case-folding table stream.
type UpcaseTable struct {
	// TableChecksum is the checksum of the table data.
	TableChecksum uint32

	// FirstCluster is the first cluster of the table stream.
	FirstCluster uint32

	// DataLength is the length of the table in bytes.
	DataLength uint64
}

// RootDirectory aggregates the mount-relevant entry sets of the root
// directory stream.
type RootDirectory struct {
	volumeLabel    string
	hasVolumeLabel bool

	// AllocationBitmaps holds the bitmap descriptor per FAT-copy index.
	// A compliant volume carries one per live FAT copy.
	AllocationBitmaps [2]*AllocationBitmap

	// UpcaseTable is the case-folding table descriptor, if present.
	UpcaseTable *UpcaseTable

	// FileEntrySets are the ordinary children of the root directory.
	FileEntrySets []EntrySet
}

// Label returns the volume label. A volume without a label (or with a
// zero-length label entry) reports found == false.
func (rd *RootDirectory) Label() (label string, found bool) {
	return rd.volumeLabel, rd.hasVolumeLabel
}

// LoadRootDirectory parses the root directory stream and extracts the
// special entries mounting cross-validates.
func LoadRootDirectory(rs io.ReadSeeker, params Params, fat Fat) (root *RootDirectory, err error) {
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

	root = &RootDirectory{
		FileEntrySets: make([]EntrySet, 0),
	}

	err = EnumerateEntrySets(rs, params, fat, params.FirstClusterOfRootDirectory, true, func(es EntrySet) (err error) {
		switch pe := es.Primary.(type) {
		case *VolumeLabelDirectoryEntry:
			if pe.CharacterCount > 0 {
				root.volumeLabel = pe.Label()
				root.hasVolumeLabel = true
			}
		case *AllocationBitmapDirectoryEntry:
			root.AllocationBitmaps[pe.BitmapIndex()] = &AllocationBitmap{
				FirstCluster: pe.FirstCluster,
				DataLength:   pe.DataLength,
			}
		case *UpcaseTableDirectoryEntry:
			root.UpcaseTable = &UpcaseTable{
				TableChecksum: pe.TableChecksum,
				FirstCluster:  pe.FirstCluster,
				DataLength:    pe.DataLength,
			}
		case *FileDirectoryEntry:
			root.FileEntrySets = append(root.FileEntrySets, es)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	return root, nil
}
