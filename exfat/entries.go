// On-disk layouts of the 32-byte directory entries (Sections 6 and 7 of
// the exFAT specification) and the type-byte taxonomy that selects
// between them.

package exfat

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/dsoprea/go-logging"
	"github.com/go-restruct/restruct"
)

// directoryEntrySize is the size of every directory entry (Section 6.1).
const directoryEntrySize = 32

// EntryType is the first byte of every directory entry: bit 7 is the
// in-use flag, bit 6 the category (primary/secondary), bit 5 the
// importance (critical/benign), and the low five bits the type code.
type EntryType uint8

// IsEndOfDirectory indicates the terminal entry of a directory stream.
func (et EntryType) IsEndOfDirectory() bool {
	return et == 0
}

// IsUnusedEntryMarker indicates an entry that was deleted and may be
// reclaimed.
func (et EntryType) IsUnusedEntryMarker() bool {
	return et >= 0x01 && et <= 0x7f
}

// TypeCode returns the low five type-code bits.
func (et EntryType) TypeCode() int {
	return int(et & 31)
}

// TypeImportance returns the importance bit.
func (et EntryType) TypeImportance() bool {
	return et&32 > 0
}

// IsCritical indicates a critical entry-type.
func (et EntryType) IsCritical() bool {
	return et.TypeImportance() == false
}

// IsBenign indicates a benign entry-type.
func (et EntryType) IsBenign() bool {
	return et.TypeImportance() == true
}

// TypeCategory returns the category bit.
func (et EntryType) TypeCategory() bool {
	return et&64 > 0
}

// IsPrimary indicates a primary entry-type.
func (et EntryType) IsPrimary() bool {
	return et.TypeCategory() == false
}

// IsSecondary indicates a secondary entry-type.
func (et EntryType) IsSecondary() bool {
	return et.TypeCategory() == true
}

// IsInUse returns the in-use bit.
func (et EntryType) IsInUse() bool {
	return et&128 > 0
}

func (et EntryType) String() string {
	return fmt.Sprintf("EntryType<TYPE-CODE=(%d) IS-CRITICAL=[%v] IS-PRIMARY=[%v] IS-IN-USE=[%v]>", et.TypeCode(), et.IsCritical(), et.IsPrimary(), et.IsInUse())
}

// directoryEntryParserKey describes the combination of attributes that
// uniquely identify an entry-type.
type directoryEntryParserKey struct {
	typeCode   int
	isCritical bool
	isPrimary  bool
}

func (depk directoryEntryParserKey) String() string {
	return fmt.Sprintf("DirectoryEntryParserKey<TYPE-CODE=(%d) IS-CRITICAL=[%v] IS-PRIMARY=[%v]>", depk.typeCode, depk.isCritical, depk.isPrimary)
}

var (
	// directoryEntryParsers maps every entry-type the specification
	// describes to its concrete struct.
	directoryEntryParsers = map[directoryEntryParserKey]reflect.Type{

		//// Critical primary

		// Allocation Bitmap (Section 7.1)
		{typeCode: 1, isCritical: true, isPrimary: true}: reflect.TypeOf(AllocationBitmapDirectoryEntry{}),

		// Up-case Table (Section 7.2)
		{typeCode: 2, isCritical: true, isPrimary: true}: reflect.TypeOf(UpcaseTableDirectoryEntry{}),

		// Volume Label (Section 7.3)
		{typeCode: 3, isCritical: true, isPrimary: true}: reflect.TypeOf(VolumeLabelDirectoryEntry{}),

		// File (Section 7.4)
		{typeCode: 5, isCritical: true, isPrimary: true}: reflect.TypeOf(FileDirectoryEntry{}),

		//// Benign primary

		// Volume GUID (Section 7.5)
		{typeCode: 0, isCritical: false, isPrimary: true}: reflect.TypeOf(VolumeGuidDirectoryEntry{}),

		// TexFAT Padding (Section 7.10)
		{typeCode: 1, isCritical: false, isPrimary: true}: reflect.TypeOf(TexFatDirectoryEntry{}),

		//// Critical secondary

		// Stream Extension (Section 7.6)
		{typeCode: 0, isCritical: true, isPrimary: false}: reflect.TypeOf(StreamExtensionDirectoryEntry{}),

		// File Name (Section 7.7)
		{typeCode: 1, isCritical: true, isPrimary: false}: reflect.TypeOf(FileNameDirectoryEntry{}),

		//// Benign secondary

		// Vendor Extension (Section 7.8)
		{typeCode: 0, isCritical: false, isPrimary: false}: reflect.TypeOf(VendorExtensionDirectoryEntry{}),

		// Vendor Allocation (Section 7.9)
		{typeCode: 1, isCritical: false, isPrimary: false}: reflect.TypeOf(VendorAllocationDirectoryEntry{}),
	}
)

// DirectoryEntry is one decoded 32-byte directory entry.
type DirectoryEntry interface {
	TypeName() string
}

// PrimaryDirectoryEntry is a primary entry that knows how many secondary
// entries belong to its entry set.
type PrimaryDirectoryEntry interface {
	SecondaryCount() uint8
}

// GenericPrimaryDirectoryEntry is the primary-entry template (Section
// 6.3), used for primary types this package has no specific layout for.
type GenericPrimaryDirectoryEntry struct {
	EntryType           EntryType
	SecondaryCountRaw   uint8
	SetChecksum         uint16
	GeneralPrimaryFlags uint16
	CustomDefined       [14]byte
	FirstCluster        uint32
	DataLength          uint64
}

func (gpde GenericPrimaryDirectoryEntry) String() string {
	return fmt.Sprintf("PrimaryDirectoryEntry<TYPE=(%d) SECONDARY-COUNT=(%d) FIRST-CLUSTER=(%d) DATA-LENGTH=(%d)>", gpde.EntryType, gpde.SecondaryCountRaw, gpde.FirstCluster, gpde.DataLength)
}

// SecondaryCount returns the number of secondary entries in the set.
func (gpde GenericPrimaryDirectoryEntry) SecondaryCount() uint8 {
	return gpde.SecondaryCountRaw
}

// TypeName returns a static name for this entry-type.
func (GenericPrimaryDirectoryEntry) TypeName() string {
	return "_Primary"
}

// GenericSecondaryDirectoryEntry is the secondary-entry template
// (Section 6.4), used for secondary types this package has no specific
// layout for.
type GenericSecondaryDirectoryEntry struct {
	EntryType             EntryType
	GeneralSecondaryFlags GeneralSecondaryFlags
	CustomDefined         [18]byte
	FirstCluster          uint32
	DataLength            uint64
}

func (gsde GenericSecondaryDirectoryEntry) String() string {
	return fmt.Sprintf("SecondaryDirectoryEntry<TYPE=(%d) FIRST-CLUSTER=(%d) DATA-LENGTH=(%d)>", gsde.EntryType, gsde.FirstCluster, gsde.DataLength)
}

// TypeName returns a static name for this entry-type.
func (GenericSecondaryDirectoryEntry) TypeName() string {
	return "_Secondary"
}

// GeneralSecondaryFlags is the flags byte shared by all secondary
// entries (Section 6.4.2).
type GeneralSecondaryFlags uint8

// AllocationPossible indicates that the entry describes an allocation in
// the cluster heap.
func (gsf GeneralSecondaryFlags) AllocationPossible() bool {
	return gsf&1 > 0
}

// NoFatChain indicates that the allocation is one contiguous series of
// clusters and that the corresponding FAT entries are invalid.
func (gsf GeneralSecondaryFlags) NoFatChain() bool {
	return gsf&2 > 0
}

func (gsf GeneralSecondaryFlags) String() string {
	return fmt.Sprintf("GeneralSecondaryFlags<ALLOCATION-POSSIBLE=[%v] NO-FAT-CHAIN=[%v]>", gsf.AllocationPossible(), gsf.NoFatChain())
}

// Timestamp is the packed date/time used by file entries: two-second
// granularity, years since 1980.
type Timestamp uint32

// Second returns the seconds component.
func (ts Timestamp) Second() int {
	return int(ts&31) * 2
}

// Minute returns the minutes component.
func (ts Timestamp) Minute() int {
	return int(ts>>5) & 63
}

// Hour returns the hours component.
func (ts Timestamp) Hour() int {
	return int(ts>>11) & 31
}

// Day returns the day component.
func (ts Timestamp) Day() int {
	return int(ts>>16) & 31
}

// Month returns the month component.
func (ts Timestamp) Month() int {
	return int(ts>>21) & 15
}

// Year returns the full year.
func (ts Timestamp) Year() int {
	return 1980 + int(ts>>25)
}

// Time converts to a time.Time.
func (ts Timestamp) Time() time.Time {

	// TODO(baye): honor the per-timestamp UTC-offset fields.

	return time.Date(ts.Year(), time.Month(ts.Month()), ts.Day(), ts.Hour(), ts.Minute(), ts.Second(), 0, time.Local)
}

func (ts Timestamp) String() string {
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d", ts.Year(), ts.Month(), ts.Day(), ts.Hour(), ts.Minute(), ts.Second())
}

// FileAttributes is the DOS-style attribute bits of a file entry.
type FileAttributes uint16

// IsReadOnly returns the read-only bit.
func (fa FileAttributes) IsReadOnly() bool {
	return fa&1 > 0
}

// IsHidden returns the hidden bit.
func (fa FileAttributes) IsHidden() bool {
	return fa&2 > 0
}

// IsSystem returns the system bit.
func (fa FileAttributes) IsSystem() bool {
	return fa&4 > 0
}

// IsDirectory returns the directory bit.
func (fa FileAttributes) IsDirectory() bool {
	return fa&16 > 0
}

// IsArchive returns the archive bit.
func (fa FileAttributes) IsArchive() bool {
	return fa&32 > 0
}

func (fa FileAttributes) String() string {
	return fmt.Sprintf("FileAttributes<IS-READONLY=[%v] IS-HIDDEN=[%v] IS-SYSTEM=[%v] IS-DIRECTORY=[%v] IS-ARCHIVE=[%v]>",
		fa.IsReadOnly(), fa.IsHidden(), fa.IsSystem(), fa.IsDirectory(), fa.IsArchive())
}

// FileDirectoryEntry is the primary entry of an ordinary directory child
// (Section 7.4).
type FileDirectoryEntry struct {
	EntryType                 EntryType
	SecondaryCountRaw         uint8
	SetChecksum               uint16
	FileAttributes            FileAttributes
	Reserved1                 uint16
	CreateTimestamp           Timestamp
	LastModifiedTimestamp     Timestamp
	LastAccessedTimestamp     Timestamp
	Create10msIncrement       uint8
	LastModified10msIncrement uint8
	CreateUtcOffset           uint8
	LastModifiedUtcOffset     uint8
	LastAccessedUtcOffset     uint8
	Reserved2                 [7]byte
}

func (fde FileDirectoryEntry) String() string {
	return fmt.Sprintf("FileDirectoryEntry<SECONDARY-COUNT=(%d) CTIME=[%s] MTIME=[%s] ATIME=[%s]>",
		fde.SecondaryCountRaw,
		fde.CreateTimestamp, fde.LastModifiedTimestamp, fde.LastAccessedTimestamp)
}

// Dump prints the file entry fields.
func (fde FileDirectoryEntry) Dump() {
	fmt.Printf("File Directory Entry\n")
	fmt.Printf("====================\n")
	fmt.Printf("\n")

	fmt.Printf("SecondaryCount: (%d)\n", fde.SecondaryCountRaw)
	fmt.Printf("SetChecksum: (0x%04x)\n", fde.SetChecksum)
	fmt.Printf("FileAttributes: %s\n", fde.FileAttributes)
	fmt.Printf("CreateTimestamp: [%s]\n", fde.CreateTimestamp)
	fmt.Printf("LastModifiedTimestamp: [%s]\n", fde.LastModifiedTimestamp)
	fmt.Printf("LastAccessedTimestamp: [%s]\n", fde.LastAccessedTimestamp)
	fmt.Printf("\n")
}

// SecondaryCount returns the number of secondary entries in the set.
func (fde FileDirectoryEntry) SecondaryCount() uint8 {
	return fde.SecondaryCountRaw
}

// TypeName returns a static name for this entry-type.
func (FileDirectoryEntry) TypeName() string {
	return "File"
}

// AllocationBitmapDirectoryEntry describes the bitmap stream of one FAT
// copy (Section 7.1). Bit zero of BitmapFlags selects the copy.
type AllocationBitmapDirectoryEntry struct {
	EntryType    EntryType
	BitmapFlags  uint8
	Reserved     [18]byte
	FirstCluster uint32
	DataLength   uint64
}

// BitmapIndex returns the FAT-copy index this bitmap belongs to.
func (abde AllocationBitmapDirectoryEntry) BitmapIndex() int {
	return int(abde.BitmapFlags & 1)
}

func (abde AllocationBitmapDirectoryEntry) String() string {
	return fmt.Sprintf("AllocationBitmapDirectoryEntry<BITMAP-FLAGS=[%08b] FIRST-CLUSTER=(%d) DATA-LENGTH=(%d)>", abde.BitmapFlags, abde.FirstCluster, abde.DataLength)
}

// TypeName returns a static name for this entry-type.
func (AllocationBitmapDirectoryEntry) TypeName() string {
	return "AllocationBitmap"
}

// UpcaseTableDirectoryEntry describes the case-folding table stream
// (Section 7.2).
type UpcaseTableDirectoryEntry struct {
	EntryType     EntryType
	Reserved1     [3]byte
	TableChecksum uint32
	Reserved2     [12]byte
	FirstCluster  uint32
	DataLength    uint64
}

func (utde UpcaseTableDirectoryEntry) String() string {
	return fmt.Sprintf("UpcaseTableDirectoryEntry<TABLE-CHECKSUM=(0x%08x) FIRST-CLUSTER=(%d) DATA-LENGTH=(%d)>", utde.TableChecksum, utde.FirstCluster, utde.DataLength)
}

// TypeName returns a static name for this entry-type.
func (UpcaseTableDirectoryEntry) TypeName() string {
	return "UpcaseTable"
}

// VolumeLabelDirectoryEntry carries the inline user-friendly volume name
// (Section 7.3). Tools in the wild spill the label into the trailing
// reserved bytes, so the two fields are combined here.
type VolumeLabelDirectoryEntry struct {
	EntryType      EntryType
	CharacterCount uint8
	VolumeLabel    [30]byte
}

// Label decodes the UTF-16 label text. A zero CharacterCount means the
// volume has no label, which is distinct from an empty string.
func (vlde VolumeLabelDirectoryEntry) Label() string {
	return utf16String(vlde.VolumeLabel[:], int(vlde.CharacterCount))
}

func (vlde VolumeLabelDirectoryEntry) String() string {
	return fmt.Sprintf("VolumeLabelDirectoryEntry<CHARACTER-COUNT=(%d) LABEL=[%s]>", vlde.CharacterCount, vlde.Label())
}

// TypeName returns a static name for this entry-type.
func (VolumeLabelDirectoryEntry) TypeName() string {
	return "VolumeLabel"
}

// VolumeGuidDirectoryEntry is the benign volume GUID entry (Section
// 7.5).
type VolumeGuidDirectoryEntry struct {
	EntryType           EntryType
	SecondaryCountRaw   uint8
	SetChecksum         uint16
	GeneralPrimaryFlags uint16
	VolumeGuid          [16]byte
	Reserved            [10]byte
}

func (vgde VolumeGuidDirectoryEntry) String() string {
	return fmt.Sprintf("VolumeGuidDirectoryEntry<SECONDARY-COUNT=(%d) SET-CHECKSUM=(0x%04x) GUID=[%032x]>", vgde.SecondaryCountRaw, vgde.SetChecksum, vgde.VolumeGuid)
}

// SecondaryCount returns the number of secondary entries in the set.
func (vgde VolumeGuidDirectoryEntry) SecondaryCount() uint8 {
	return vgde.SecondaryCountRaw
}

// TypeName returns a static name for this entry-type.
func (VolumeGuidDirectoryEntry) TypeName() string {
	return "VolumeGuid"
}

// TexFatDirectoryEntry is TexFAT padding; the specification does not
// describe its interior.
type TexFatDirectoryEntry struct {
	Reserved [32]byte
}

func (TexFatDirectoryEntry) String() string {
	return "TexFatDirectoryEntry<>"
}

// TypeName returns a static name for this entry-type.
func (TexFatDirectoryEntry) TypeName() string {
	return "TexFat"
}

// StreamExtensionDirectoryEntry is the first secondary entry of a file
// entry set (Section 7.6); it locates the file data stream.
type StreamExtensionDirectoryEntry struct {
	EntryType             EntryType
	GeneralSecondaryFlags GeneralSecondaryFlags
	Reserved1             [1]byte
	NameLength            uint8
	NameHash              uint16
	Reserved2             [2]byte
	ValidDataLength       uint64
	Reserved3             [4]byte
	FirstCluster          uint32
	DataLength            uint64
}

func (sede StreamExtensionDirectoryEntry) String() string {
	return fmt.Sprintf("StreamExtensionDirectoryEntry<FLAGS=(%08b) NAME-LENGTH=(%d) NAME-HASH=(0x%04x) VALID-DATA-LENGTH=(%d) FIRST-CLUSTER=(%d) DATA-LENGTH=(%d)>",
		uint8(sede.GeneralSecondaryFlags), sede.NameLength, sede.NameHash, sede.ValidDataLength, sede.FirstCluster, sede.DataLength)
}

// Dump prints the stream-extension fields.
func (sede StreamExtensionDirectoryEntry) Dump() {
	fmt.Printf("Stream Extension Directory Entry\n")
	fmt.Printf("================================\n")
	fmt.Printf("\n")

	fmt.Printf("GeneralSecondaryFlags: %s\n", sede.GeneralSecondaryFlags)
	fmt.Printf("NameLength: (%d)\n", sede.NameLength)
	fmt.Printf("NameHash: (0x%04x)\n", sede.NameHash)
	fmt.Printf("ValidDataLength: (%d)\n", sede.ValidDataLength)
	fmt.Printf("FirstCluster: (%d)\n", sede.FirstCluster)
	fmt.Printf("DataLength: (%d)\n", sede.DataLength)
	fmt.Printf("\n")
}

// TypeName returns a static name for this entry-type.
func (StreamExtensionDirectoryEntry) TypeName() string {
	return "StreamExtension"
}

// FileNameDirectoryEntry carries up to fifteen UTF-16 code units of the
// filename (Section 7.7).
type FileNameDirectoryEntry struct {
	EntryType             EntryType
	GeneralSecondaryFlags GeneralSecondaryFlags
	FileName              [30]byte
}

func (fnde FileNameDirectoryEntry) String() string {
	return fmt.Sprintf("FileNameDirectoryEntry<FLAGS=(%08b) FILENAME=[%s]>", uint8(fnde.GeneralSecondaryFlags), utf16String(fnde.FileName[:], fileNameEntryCharacters))
}

// TypeName returns a static name for this entry-type.
func (FileNameDirectoryEntry) TypeName() string {
	return "FileName"
}

// fileNameEntryCharacters is the UTF-16 code-unit capacity of one File
// Name entry.
const fileNameEntryCharacters = 15

// MultipartFilename assembles the complete filename out of the File Name
// secondary entries of one entry set.
type MultipartFilename []DirectoryEntry

// Filename joins the name fragments in entry order.
func (mf MultipartFilename) Filename() string {
	parts := make([]string, 0)

	for _, deRaw := range mf {
		if fnde, ok := deRaw.(*FileNameDirectoryEntry); ok == true {
			parts = append(parts, utf16String(fnde.FileName[:], fileNameEntryCharacters))
		}
	}

	return strings.Join(parts, "")
}

// VendorExtensionDirectoryEntry is a vendor-specific secondary entry
// without an allocation (Section 7.8).
type VendorExtensionDirectoryEntry struct {
	EntryType             EntryType
	GeneralSecondaryFlags GeneralSecondaryFlags
	VendorGuid            [16]byte
	VendorDefined         [14]byte
}

func (vede VendorExtensionDirectoryEntry) String() string {
	return fmt.Sprintf("VendorExtensionDirectoryEntry<FLAGS=(%08b) GUID=(%032x)>", uint8(vede.GeneralSecondaryFlags), vede.VendorGuid)
}

// TypeName returns a static name for this entry-type.
func (VendorExtensionDirectoryEntry) TypeName() string {
	return "VendorExtension"
}

// VendorAllocationDirectoryEntry is a vendor-specific secondary entry
// with an allocation (Section 7.9).
type VendorAllocationDirectoryEntry struct {
	EntryType             EntryType
	GeneralSecondaryFlags GeneralSecondaryFlags
	VendorGuid            [16]byte
	VendorDefined         [2]byte
	FirstCluster          uint32
	DataLength            uint64
}

func (vade VendorAllocationDirectoryEntry) String() string {
	return fmt.Sprintf("VendorAllocationDirectoryEntry<FLAGS=(%08b) GUID=(%032x) FIRST-CLUSTER=(%d) DATA-LENGTH=(%d)>", uint8(vade.GeneralSecondaryFlags), vade.VendorGuid, vade.FirstCluster, vade.DataLength)
}

// TypeName returns a static name for this entry-type.
func (VendorAllocationDirectoryEntry) TypeName() string {
	return "VendorAllocation"
}

// parseDirectoryEntry decodes one 32-byte entry into the struct its
// entry-type selects. Types the specification does not describe fall
// back to the generic primary/secondary templates.
func parseDirectoryEntry(entryType EntryType, directoryEntryData []byte) (parsed DirectoryEntry, err error) {
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

	depk := directoryEntryParserKey{
		typeCode:   entryType.TypeCode(),
		isCritical: entryType.IsCritical(),
		isPrimary:  entryType.IsPrimary(),
	}

	structType, found := directoryEntryParsers[depk]
	if found == false {
		if entryType.IsPrimary() == true {
			structType = reflect.TypeOf(GenericPrimaryDirectoryEntry{})
		} else {
			structType = reflect.TypeOf(GenericSecondaryDirectoryEntry{})
		}
	}

	s := reflect.New(structType)
	x := s.Interface()

	err = restruct.Unpack(directoryEntryData, defaultEncoding, x)
	log.PanicIf(err)

	return x.(DirectoryEntry), nil
}
