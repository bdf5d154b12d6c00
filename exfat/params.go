// This file decodes the main boot sector and validates it into the
// immutable set of volume parameters that every other component reads.

package exfat

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"

	"github.com/dsoprea/go-logging"
	"github.com/go-restruct/restruct"
)

// BootSectorSize is the size of the main boot sector. The boot sector is
// always 512 bytes even when the volume uses larger sectors.
const BootSectorSize = 512

var (
	requiredFileSystemName = []byte("EXFAT   ")
)

// Geometry validation errors. Checks are short-circuiting, in the order
// these are declared.
var (
	// ErrNotExFat indicates that the image does not carry the exFAT
	// signature or that the must-be-zero region is dirty. The image is
	// some other format, not a corrupt exFAT volume.
	ErrNotExFat = errors.New("image is not exFAT")

	// ErrInvalidBytesPerSectorShift indicates a BytesPerSectorShift
	// outside of [9,12].
	ErrInvalidBytesPerSectorShift = errors.New("invalid BytesPerSectorShift")

	// ErrInvalidSectorsPerClusterShift indicates a SectorsPerClusterShift
	// that would produce a cluster larger than 32MB.
	ErrInvalidSectorsPerClusterShift = errors.New("invalid SectorsPerClusterShift")

	// ErrInvalidNumberOfFats indicates a NumberOfFats other than one or
	// two, or a volume whose flags select a second FAT that it does not
	// have.
	ErrInvalidNumberOfFats = errors.New("invalid NumberOfFats")
)

// BootSector is the raw layout of the main boot sector (Section 3.1).
// Field order matters; it is unpacked sequentially.
type BootSector struct {
	// JumpBoot is the x86 jump to the boot-strapping code in BootCode.
	JumpBoot [3]byte

	// FileSystemName is "EXFAT   " (three trailing spaces) on a valid
	// volume.
	FileSystemName [8]byte

	// MustBeZero blankets the range a FAT12/16/32 BPB would occupy, which
	// keeps legacy implementations from mounting an exFAT volume.
	MustBeZero [53]byte

	// PartitionOffset is the media-relative sector offset of the hosting
	// partition. Zero means "ignore".
	PartitionOffset uint64

	// VolumeLength is the size of the volume in sectors.
	VolumeLength uint64

	// FatOffset is the volume-relative sector offset of the first FAT.
	FatOffset uint32

	// FatLength is the length of each FAT in sectors.
	FatLength uint32

	// ClusterHeapOffset is the volume-relative sector offset of the
	// cluster heap (cluster 2).
	ClusterHeapOffset uint32

	// ClusterCount is the number of clusters in the cluster heap.
	ClusterCount uint32

	// FirstClusterOfRootDirectory is where the root directory stream
	// starts.
	FirstClusterOfRootDirectory uint32

	// VolumeSerialNumber distinguishes volumes.
	VolumeSerialNumber uint32

	// FileSystemRevision is the minor and major revision numbers, in that
	// (low-order first) order.
	FileSystemRevision [2]uint8

	// VolumeFlags carries the active-FAT, dirty, and media-failure bits.
	VolumeFlags VolumeFlags

	// BytesPerSectorShift is log2 of the sector size. Valid range [9,12].
	BytesPerSectorShift uint8

	// SectorsPerClusterShift is log2 of the sectors-per-cluster count.
	// Valid range [0, 25-BytesPerSectorShift].
	SectorsPerClusterShift uint8

	// NumberOfFats is one, or two for TexFAT volumes.
	NumberOfFats uint8

	// DriveSelect is the extended INT 13h drive number.
	DriveSelect uint8

	// PercentInUse is the allocated percentage of the cluster heap, or
	// 0xff when unavailable.
	PercentInUse uint8

	// Reserved is reserved.
	Reserved [7]byte

	// BootCode is the boot-strapping instructions.
	BootCode [390]byte

	// BootSignature is 0xaa55 on a valid boot sector.
	BootSignature uint16
}

// String returns a description of the boot sector.
func (bs BootSector) String() string {
	return fmt.Sprintf("BootSector<SN=(0x%08x) REVISION=(0x%02x)-(0x%02x)>", bs.VolumeSerialNumber, bs.FileSystemRevision[0], bs.FileSystemRevision[1])
}

// ParseBootSector unpacks exactly one boot sector worth of bytes and
// checks the signature and the must-be-zero region. Geometry validation
// happens in NewParams.
func ParseBootSector(data []byte) (bs BootSector, err error) {
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

	if len(data) != BootSectorSize {
		log.Panicf("boot-sector data must be exactly (%d) bytes: (%d)", BootSectorSize, len(data))
	}

	if bytes.Equal(data[3:11], requiredFileSystemName) != true {
		return bs, ErrNotExFat
	}

	for _, c := range data[11:64] {
		if c != 0 {
			return bs, ErrNotExFat
		}
	}

	err = restruct.Unpack(data, defaultEncoding, &bs)
	log.PanicIf(err)

	return bs, nil
}

// Params is the validated volume geometry. It is immutable after
// NewParams and shared read-only by the FAT loader, the cluster
// addressor, and the directory parser for the lifetime of the mount.
type Params struct {
	// FatOffset is the sector offset of the first FAT.
	FatOffset uint64

	// FatLength is the length of each FAT in sectors.
	FatLength uint64

	// ClusterHeapOffset is the sector offset of cluster 2.
	ClusterHeapOffset uint64

	// ClusterCount is the total addressable cluster count. Valid cluster
	// numbers are [2, ClusterCount+1].
	ClusterCount uint32

	// FirstClusterOfRootDirectory is the start of the root directory
	// stream.
	FirstClusterOfRootDirectory uint32

	// VolumeFlags carries the active-FAT selection, among others.
	VolumeFlags VolumeFlags

	// BytesPerSector is the effective sector size in bytes.
	BytesPerSector uint64

	// SectorsPerCluster is the effective sectors-per-cluster count.
	SectorsPerCluster uint64

	// NumberOfFats is one or two.
	NumberOfFats uint8
}

// NewParams validates the decoded boot sector and derives the effective
// geometry from it.
func NewParams(bs BootSector) (params Params, err error) {
	if bs.BytesPerSectorShift < 9 || bs.BytesPerSectorShift > 12 {
		return params, ErrInvalidBytesPerSectorShift
	}

	// The subtraction can not underflow; the shift was bounded above.
	if bs.SectorsPerClusterShift > 25-bs.BytesPerSectorShift {
		return params, ErrInvalidSectorsPerClusterShift
	}

	if bs.NumberOfFats != 1 && bs.NumberOfFats != 2 {
		return params, ErrInvalidNumberOfFats
	}

	params = Params{
		FatOffset:                   uint64(bs.FatOffset),
		FatLength:                   uint64(bs.FatLength),
		ClusterHeapOffset:           uint64(bs.ClusterHeapOffset),
		ClusterCount:                bs.ClusterCount,
		FirstClusterOfRootDirectory: bs.FirstClusterOfRootDirectory,
		VolumeFlags:                 bs.VolumeFlags,
		BytesPerSector:              1 << bs.BytesPerSectorShift,
		SectorsPerCluster:           1 << bs.SectorsPerClusterShift,
		NumberOfFats:                bs.NumberOfFats,
	}

	return params, nil
}

// ClusterSize returns the cluster size in bytes.
func (p Params) ClusterSize() uint64 {
	return p.SectorsPerCluster * p.BytesPerSector
}

// Dump prints the geometry.
func (p Params) Dump() {
	fmt.Printf("Volume Parameters\n")
	fmt.Printf("=================\n")
	fmt.Printf("\n")

	fmt.Printf("FatOffset: (%d)\n", p.FatOffset)
	fmt.Printf("FatLength: (%d)\n", p.FatLength)
	fmt.Printf("ClusterHeapOffset: (%d)\n", p.ClusterHeapOffset)
	fmt.Printf("ClusterCount: (%d)\n", p.ClusterCount)
	fmt.Printf("FirstClusterOfRootDirectory: (%d)\n", p.FirstClusterOfRootDirectory)
	fmt.Printf("BytesPerSector: (%d)\n", p.BytesPerSector)
	fmt.Printf("SectorsPerCluster: (%d)\n", p.SectorsPerCluster)
	fmt.Printf("-> Cluster-size: (%d)\n", p.ClusterSize())
	fmt.Printf("NumberOfFats: (%d)\n", p.NumberOfFats)
	fmt.Printf("\n")

	fmt.Printf("VolumeFlags: (%d)\n", p.VolumeFlags)
	p.VolumeFlags.DumpBareIndented("  ")

	fmt.Printf("\n")
}

const (
	// VolumeFlagActiveFat selects which FAT and allocation bitmap are
	// active: clear for the first pair, set for the second. The second
	// pair is only possible when NumberOfFats is two.
	VolumeFlagActiveFat VolumeFlags = 1

	// VolumeFlagVolumeDirty means the volume is probably in an
	// inconsistent state.
	VolumeFlagVolumeDirty = 2

	// VolumeFlagMediaFailure means the hosting media has reported
	// failures that are not recorded as bad clusters yet.
	VolumeFlagMediaFailure = 4

	// VolumeFlagClearToZero has no meaning other than that it should be
	// cleared before the volume is modified.
	VolumeFlagClearToZero = 8
)

// VolumeFlags represents some state flags for the filesystem.
type VolumeFlags uint16

// ActiveFat returns the index of the FAT copy (and allocation bitmap)
// that is currently authoritative.
func (vf VolumeFlags) ActiveFat() int {
	if vf&VolumeFlagActiveFat > 0 {
		return 1
	}

	return 0
}

// UseFirstFat indicates whether the first FAT should be used.
func (vf VolumeFlags) UseFirstFat() bool {
	return vf&VolumeFlagActiveFat == 0
}

// UseSecondFat indicates whether the second FAT should be used.
func (vf VolumeFlags) UseSecondFat() bool {
	return vf&VolumeFlagActiveFat > 0
}

// IsDirty indicates that the volume was not cleanly unmounted.
func (vf VolumeFlags) IsDirty() bool {
	return vf&VolumeFlagVolumeDirty > 0
}

// HasHadMediaFailures indicates whether media-errors have been detected.
func (vf VolumeFlags) HasHadMediaFailures() bool {
	return vf&VolumeFlagMediaFailure > 0
}

// ClearToZero indicates that this flag should be cleared.
func (vf VolumeFlags) ClearToZero() bool {
	return vf&VolumeFlagClearToZero > 0
}

// DumpBareIndented prints the volume flags with arbitrary indentation.
func (vf VolumeFlags) DumpBareIndented(indent string) {
	fmt.Printf("%sRaw Value: (%08b)\n", indent, uint16(vf))
	fmt.Printf("%sActiveFat: (%d)\n", indent, vf.ActiveFat())
	fmt.Printf("%sIsDirty: [%v]\n", indent, vf.IsDirty())
	fmt.Printf("%sHasHadMediaFailures: [%v]\n", indent, vf.HasHadMediaFailures())
	fmt.Printf("%sClearToZero: [%v]\n", indent, vf.ClearToZero())
}
