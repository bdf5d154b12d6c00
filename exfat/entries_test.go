package exfat

import (
	"testing"
)

func TestEntryType_Bits(t *testing.T) {
	// File entry: critical primary, code 5, in use.
	et := EntryType(0x85)

	if et.IsInUse() != true {
		t.Fatalf("IsInUse not correct.")
	} else if et.IsCritical() != true {
		t.Fatalf("IsCritical not correct.")
	} else if et.IsPrimary() != true {
		t.Fatalf("IsPrimary not correct.")
	} else if et.TypeCode() != 5 {
		t.Fatalf("TypeCode not correct: (%d)", et.TypeCode())
	}

	// Stream extension: critical secondary, code 0, in use.
	et = EntryType(0xc0)

	if et.IsSecondary() != true {
		t.Fatalf("IsSecondary not correct.")
	} else if et.IsCritical() != true {
		t.Fatalf("IsCritical not correct.")
	} else if et.TypeCode() != 0 {
		t.Fatalf("TypeCode not correct: (%d)", et.TypeCode())
	}

	// Vendor extension: benign secondary, code 0, in use.
	et = EntryType(0xe0)

	if et.IsBenign() != true {
		t.Fatalf("IsBenign not correct.")
	} else if et.IsSecondary() != true {
		t.Fatalf("IsSecondary not correct.")
	}
}

func TestEntryType_Markers(t *testing.T) {
	if EntryType(0x00).IsEndOfDirectory() != true {
		t.Fatalf("End-of-directory not recognized.")
	}

	if EntryType(0x05).IsUnusedEntryMarker() != true {
		t.Fatalf("Unused entry not recognized.")
	}

	if EntryType(0x05).IsInUse() != false {
		t.Fatalf("Unused entry should not be in use.")
	}

	if EntryType(0x85).IsUnusedEntryMarker() != false {
		t.Fatalf("In-use entry misrecognized as unused.")
	}
}

func TestTimestamp(t *testing.T) {
	// 2020-07-15 18:30:20.
	ts := Timestamp(0)
	ts |= Timestamp(2020-1980) << 25
	ts |= Timestamp(7) << 21
	ts |= Timestamp(15) << 16
	ts |= Timestamp(18) << 11
	ts |= Timestamp(30) << 5
	ts |= Timestamp(20 / 2)

	if ts.Year() != 2020 || ts.Month() != 7 || ts.Day() != 15 {
		t.Fatalf("Date not correct: %s", ts)
	}

	if ts.Hour() != 18 || ts.Minute() != 30 || ts.Second() != 20 {
		t.Fatalf("Time not correct: %s", ts)
	}

	if ts.String() != "2020-07-15 18:30:20" {
		t.Fatalf("String not correct: [%s]", ts)
	}
}

func TestFileAttributes(t *testing.T) {
	fa := FileAttributes(0x10 | 0x02)

	if fa.IsDirectory() != true || fa.IsHidden() != true {
		t.Fatalf("Set attributes not recognized: %s", fa)
	}

	if fa.IsReadOnly() != false || fa.IsSystem() != false || fa.IsArchive() != false {
		t.Fatalf("Clear attributes misrecognized: %s", fa)
	}
}

func TestGeneralSecondaryFlags(t *testing.T) {
	gsf := GeneralSecondaryFlags(0x03)

	if gsf.AllocationPossible() != true || gsf.NoFatChain() != true {
		t.Fatalf("Flags not correct: %s", gsf)
	}

	gsf = GeneralSecondaryFlags(0x01)

	if gsf.NoFatChain() != false {
		t.Fatalf("NoFatChain not correct: %s", gsf)
	}
}

func TestParseDirectoryEntry_File(t *testing.T) {
	fileSet := testFileEntrySet("hello.txt", false, false, 5, 100)

	parsed, err := parseDirectoryEntry(EntryType(fileSet[0][0]), fileSet[0])
	if err != nil {
		t.Fatalf("parseDirectoryEntry failed: %s", err)
	}

	fde, ok := parsed.(*FileDirectoryEntry)
	if ok != true {
		t.Fatalf("Parsed to the wrong type: %v", parsed)
	}

	if fde.TypeName() != "File" {
		t.Fatalf("TypeName not correct: [%s]", fde.TypeName())
	} else if fde.SecondaryCount() != 2 {
		t.Fatalf("SecondaryCount not correct: (%d)", fde.SecondaryCount())
	}
}

func TestParseDirectoryEntry_UnknownPrimary(t *testing.T) {
	// Benign primary, code 7: no specific parser registered.
	data := make([]byte, directoryEntrySize)
	data[0] = 0xa7
	data[1] = 3

	parsed, err := parseDirectoryEntry(EntryType(data[0]), data)
	if err != nil {
		t.Fatalf("parseDirectoryEntry failed: %s", err)
	}

	gpde, ok := parsed.(*GenericPrimaryDirectoryEntry)
	if ok != true {
		t.Fatalf("Parsed to the wrong type: %v", parsed)
	}

	if gpde.SecondaryCount() != 3 {
		t.Fatalf("SecondaryCount not correct: (%d)", gpde.SecondaryCount())
	}
}

func TestParseDirectoryEntry_UnknownSecondary(t *testing.T) {
	// Benign secondary, code 7: no specific parser registered.
	data := make([]byte, directoryEntrySize)
	data[0] = 0xe7

	parsed, err := parseDirectoryEntry(EntryType(data[0]), data)
	if err != nil {
		t.Fatalf("parseDirectoryEntry failed: %s", err)
	}

	if _, ok := parsed.(*GenericSecondaryDirectoryEntry); ok != true {
		t.Fatalf("Parsed to the wrong type: %v", parsed)
	}
}

func TestMultipartFilename(t *testing.T) {
	// Twenty characters spread over two name entries.
	name := "abcdefghijklmnopqrst"

	fileSet := testFileEntrySet(name, false, false, 5, 100)

	if len(fileSet) != 4 {
		t.Fatalf("Expected two name entries: (%d)", len(fileSet))
	}

	secondaries := make([]DirectoryEntry, 0)
	for _, entryData := range fileSet[1:] {
		de, err := parseDirectoryEntry(EntryType(entryData[0]), entryData)
		if err != nil {
			t.Fatalf("parseDirectoryEntry failed: %s", err)
		}

		secondaries = append(secondaries, de)
	}

	if assembled := MultipartFilename(secondaries).Filename(); assembled != name {
		t.Fatalf("Filename not correct: [%s]", assembled)
	}
}
