package exfat

// Synthetic-volume fixtures. The builders here lay out a minimal but
// structurally valid exFAT image in memory so tests can corrupt exactly
// the bytes they are about and mount the rest.

import (
	"bytes"
	"unicode/utf16"

	"encoding/binary"

	"github.com/dsoprea/go-logging"
)

type testVolumeSpec struct {
	bytesPerSectorShift    uint8
	sectorsPerClusterShift uint8
	fatOffset              uint32
	fatLength              uint32
	clusterHeapOffset      uint32
	clusterCount           uint32
	firstClusterOfRoot     uint32
	numberOfFats           uint8
	volumeFlags            uint16
}

// defaultTestVolumeSpec is a 512-byte-sector volume with one-sector
// clusters: FAT at sector 2 (one sector per copy), cluster heap at
// sector 4, root directory in cluster 4.
func defaultTestVolumeSpec() testVolumeSpec {
	return testVolumeSpec{
		bytesPerSectorShift:    9,
		sectorsPerClusterShift: 0,
		fatOffset:              2,
		fatLength:              1,
		clusterHeapOffset:      4,
		clusterCount:           16,
		firstClusterOfRoot:     4,
		numberOfFats:           1,
		volumeFlags:            0,
	}
}

// encodeTestBootSector lays the spec fields out at their fixed offsets.
func encodeTestBootSector(spec testVolumeSpec) []byte {
	data := make([]byte, BootSectorSize)

	copy(data[0:3], []byte{0xeb, 0x76, 0x90})
	copy(data[3:11], requiredFileSystemName)

	binary.LittleEndian.PutUint32(data[80:], spec.fatOffset)
	binary.LittleEndian.PutUint32(data[84:], spec.fatLength)
	binary.LittleEndian.PutUint32(data[88:], spec.clusterHeapOffset)
	binary.LittleEndian.PutUint32(data[92:], spec.clusterCount)
	binary.LittleEndian.PutUint32(data[96:], spec.firstClusterOfRoot)
	binary.LittleEndian.PutUint16(data[106:], spec.volumeFlags)

	data[108] = spec.bytesPerSectorShift
	data[109] = spec.sectorsPerClusterShift
	data[110] = spec.numberOfFats

	binary.LittleEndian.PutUint16(data[510:], 0xaa55)

	return data
}

type testVolume struct {
	spec testVolumeSpec
	data []byte
}

// newTestVolume builds a full image for the given spec: boot sector,
// zeroed FAT copies with their two reserved entries and an end-of-chain
// marker for the root cluster, and a zeroed cluster heap.
func newTestVolume(spec testVolumeSpec) *testVolume {
	sectorSize := uint32(1) << spec.bytesPerSectorShift
	sectorsPerCluster := uint32(1) << spec.sectorsPerClusterShift

	totalSectors := spec.clusterHeapOffset + spec.clusterCount*sectorsPerCluster

	tv := &testVolume{
		spec: spec,
		data: make([]byte, totalSectors*sectorSize),
	}

	copy(tv.data, encodeTestBootSector(spec))

	for copyIndex := 0; copyIndex < int(spec.numberOfFats); copyIndex++ {
		tv.setFatEntry(copyIndex, 0, 0xfffffff8)
		tv.setFatEntry(copyIndex, 1, 0xffffffff)
		tv.setFatEntry(copyIndex, spec.firstClusterOfRoot, 0xffffffff)
	}

	return tv
}

func (tv *testVolume) sectorSize() uint32 {
	return uint32(1) << tv.spec.bytesPerSectorShift
}

func (tv *testVolume) clusterSize() uint32 {
	return tv.sectorSize() << tv.spec.sectorsPerClusterShift
}

func (tv *testVolume) fatEntryOffset(copyIndex int, clusterNumber uint32) uint32 {
	fatStart := (tv.spec.fatOffset + uint32(copyIndex)*tv.spec.fatLength) * tv.sectorSize()
	return fatStart + clusterNumber*4
}

func (tv *testVolume) setFatEntry(copyIndex int, clusterNumber, value uint32) {
	binary.LittleEndian.PutUint32(tv.data[tv.fatEntryOffset(copyIndex, clusterNumber):], value)
}

func (tv *testVolume) clusterOffset(clusterNumber uint32) uint32 {
	sector := tv.spec.clusterHeapOffset + (clusterNumber-2)*(uint32(1)<<tv.spec.sectorsPerClusterShift)
	return sector * tv.sectorSize()
}

// writeDirectory lays the given 32-byte entries down back to back
// starting at the given cluster. Writing past the cluster boundary runs
// into the next adjacent cluster; the caller is responsible for the FAT
// chain covering it. The heap is zeroed, so the terminal entry is
// implicit.
func (tv *testVolume) writeDirectory(clusterNumber uint32, entries ...[]byte) {
	offset := tv.clusterOffset(clusterNumber)

	for _, entry := range entries {
		if len(entry) != directoryEntrySize {
			log.Panicf("directory entry fixture must be (%d) bytes: (%d)", directoryEntrySize, len(entry))
		}

		copy(tv.data[offset:], entry)
		offset += directoryEntrySize
	}
}

func (tv *testVolume) reader() *bytes.Reader {
	return bytes.NewReader(tv.data)
}

func testVolumeLabelEntry(label string) []byte {
	data := make([]byte, directoryEntrySize)
	data[0] = 0x83

	units := utf16.Encode([]rune(label))
	data[1] = uint8(len(units))

	for i, unit := range units {
		binary.LittleEndian.PutUint16(data[2+i*2:], unit)
	}

	return data
}

func testAllocationBitmapEntry(bitmapFlags uint8, firstCluster uint32, dataLength uint64) []byte {
	data := make([]byte, directoryEntrySize)
	data[0] = 0x81
	data[1] = bitmapFlags

	binary.LittleEndian.PutUint32(data[20:], firstCluster)
	binary.LittleEndian.PutUint64(data[24:], dataLength)

	return data
}

func testUpcaseTableEntry(tableChecksum, firstCluster uint32, dataLength uint64) []byte {
	data := make([]byte, directoryEntrySize)
	data[0] = 0x82

	binary.LittleEndian.PutUint32(data[4:], tableChecksum)
	binary.LittleEndian.PutUint32(data[20:], firstCluster)
	binary.LittleEndian.PutUint64(data[24:], dataLength)

	return data
}

// testFileEntrySet builds a complete file entry set (file, stream
// extension, and however many name entries the name needs) with a valid
// set-checksum.
func testFileEntrySet(name string, isDirectory, noFatChain bool, firstCluster uint32, dataLength uint64) [][]byte {
	nameUnits := utf16.Encode([]rune(name))
	nameEntryCount := (len(nameUnits) + fileNameEntryCharacters - 1) / fileNameEntryCharacters

	fde := make([]byte, directoryEntrySize)
	fde[0] = 0x85
	fde[1] = uint8(1 + nameEntryCount)

	attributes := uint16(0x20)
	if isDirectory == true {
		attributes = 0x10
	}

	binary.LittleEndian.PutUint16(fde[4:], attributes)

	sede := make([]byte, directoryEntrySize)
	sede[0] = 0xc0
	sede[1] = 0x01
	if noFatChain == true {
		sede[1] |= 0x02
	}

	sede[3] = uint8(len(nameUnits))

	binary.LittleEndian.PutUint64(sede[8:], dataLength)
	binary.LittleEndian.PutUint32(sede[20:], firstCluster)
	binary.LittleEndian.PutUint64(sede[24:], dataLength)

	entries := [][]byte{fde, sede}

	for i := 0; i < nameEntryCount; i++ {
		fnde := make([]byte, directoryEntrySize)
		fnde[0] = 0xc1

		for j := 0; j < fileNameEntryCharacters; j++ {
			k := i*fileNameEntryCharacters + j
			if k >= len(nameUnits) {
				break
			}

			binary.LittleEndian.PutUint16(fnde[2+j*2:], nameUnits[k])
		}

		entries = append(entries, fnde)
	}

	setData := make([]byte, 0, len(entries)*directoryEntrySize)
	for _, entry := range entries {
		setData = append(setData, entry...)
	}

	binary.LittleEndian.PutUint16(fde[2:], entrySetChecksum(setData))

	return entries
}

// flattenEntrySets concatenates entry sets into one entry list.
func flattenEntrySets(entrySets ...[][]byte) [][]byte {
	entries := make([][]byte, 0)
	for _, es := range entrySets {
		entries = append(entries, es...)
	}

	return entries
}
