package memory

import (
	"encoding/binary"
	"errors"
	"fmt"

	"XivSync/utils"
)

// ErrRemoteRead marks a failed read of the game's memory. Callers treat it
// as transient; it is never used for a pointer that was simply zero.
var ErrRemoteRead = errors.New("remote memory read failed")

// Reader copies bytes out of the game process.
type Reader interface {
	ReadRaw(address uint64, size int) ([]byte, error)
}

// RegionReader is a Reader that can also list the process's mappings.
type RegionReader interface {
	Reader
	Regions() ([]utils.MemoryRegion, error)
}

type ReadError struct {
	Address uint64
	Size    int
	Err     error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read %d bytes at 0x%X: %v", e.Size, e.Address, e.Err)
}

func (e *ReadError) Unwrap() []error {
	return []error{ErrRemoteRead, e.Err}
}

func readRaw(r Reader, address uint64, size int) ([]byte, error) {
	buf, err := r.ReadRaw(address, size)
	if err != nil {
		return nil, &ReadError{Address: address, Size: size, Err: err}
	}
	if len(buf) < size {
		return nil, &ReadError{Address: address, Size: size, Err: fmt.Errorf("short read of %d bytes", len(buf))}
	}
	return buf, nil
}

func readUint32(r Reader, address uint64) (uint32, error) {
	buf, err := readRaw(r, address, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf), nil
}
