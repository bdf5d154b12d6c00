// Mount orchestration: boot sector, FAT, root directory, cross-checks.
// Mounting is strictly linear and one-shot; the first failure aborts it.

package exfat

import (
	"errors"
	"io"
	"reflect"

	"github.com/dsoprea/go-logging"
)

// ErrNoAllocationBitmap indicates that the root directory lacks the
// allocation-bitmap entry for a live FAT copy. A compliant volume always
// carries bitmap metadata for each FAT it declares, so this is fatal to
// mounting.
var ErrNoAllocationBitmap = errors.New("no allocation bitmap for active FAT")

// ExFat is a read-only mounted exFAT volume. It owns the image handle
// exclusively; the caller must serialize any concurrent use.
//
// https://learn.microsoft.com/en-us/windows/win32/fileio/exfat-specification
type ExFat struct {
	rs     io.ReadSeeker
	params Params
	fat    Fat
	root   *RootDirectory
}

// Open mounts the exFAT volume in the given image. The image handle is
// read from position zero; nothing else may use it while mounting runs.
func Open(rs io.ReadSeeker) (fs *ExFat, err error) {
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

	boot := make([]byte, BootSectorSize)

	_, err = rs.Seek(0, io.SeekStart)
	log.PanicIf(err)

	if _, err := io.ReadFull(rs, boot); err != nil {
		log.Panicf("could not read main boot region: %s", err)
	}

	bs, err := ParseBootSector(boot)
	if err != nil {
		return nil, err
	}

	params, err := NewParams(bs)
	if err != nil {
		return nil, err
	}

	// The flag may only select the second copy when the volume actually
	// has two FATs; anything else is an inconsistent volume.

	activeFat := params.VolumeFlags.ActiveFat()
	if activeFat != 0 && params.NumberOfFats != 2 {
		return nil, ErrInvalidNumberOfFats
	}

	fat, err := LoadFat(rs, params, activeFat)
	if err != nil {
		return nil, err
	}

	root, err := LoadRootDirectory(rs, params, fat)
	if err != nil {
		return nil, err
	}

	// Every live FAT copy must have its allocation bitmap on record.

	if params.NumberOfFats == 2 {
		if root.AllocationBitmaps[1] == nil {
			return nil, ErrNoAllocationBitmap
		}
	} else if root.AllocationBitmaps[0] == nil {
		return nil, ErrNoAllocationBitmap
	}

	fs = &ExFat{
		rs:     rs,
		params: params,
		fat:    fat,
		root:   root,
	}

	return fs, nil
}

// Label returns the volume label, or found == false when the volume has
// none.
func (fs *ExFat) Label() (label string, found bool) {
	return fs.root.Label()
}

// Params returns the validated volume geometry.
func (fs *ExFat) Params() Params {
	return fs.params
}

// Fat returns the loaded active FAT snapshot.
func (fs *ExFat) Fat() Fat {
	return fs.fat
}

// Root returns the parsed root directory aggregate.
func (fs *ExFat) Root() *RootDirectory {
	return fs.root
}
