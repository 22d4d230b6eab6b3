package memory

import (
	"encoding/binary"
	"fmt"
)

// Step is one hop of a pointer chain: read Size bytes as a little-endian
// pointer, then add Offset.
type Step struct {
	Size   int
	Offset uint64
}

// PointerStep is the usual 8-byte pointer hop.
func PointerStep(offset uint64) Step {
	return Step{Size: 8, Offset: offset}
}

// ReadChain follows steps from base and reads size bytes at the final address.
//
// A pointer value of zero at any hop means "not set": the rest of the chain
// is skipped and a zero-filled result is returned with a nil error. A failed
// read returns a *ReadError instead.
func ReadChain(mem Reader, base uint64, size int, steps ...Step) ([]byte, error) {
	address := base
	for i, step := range steps {
		if step.Size < 1 || step.Size > 8 {
			return nil, fmt.Errorf("chain step %d: invalid pointer size %d", i, step.Size)
		}
		buf, err := readRaw(mem, address, step.Size)
		if err != nil {
			return nil, fmt.Errorf("chain step %d: %w", i, err)
		}
		var wide [8]byte
		copy(wide[:], buf)
		pointer := binary.LittleEndian.Uint64(wide[:])
		if pointer == 0 {
			return make([]byte, size), nil
		}
		address = pointer + step.Offset
	}
	return readRaw(mem, address, size)
}

// ReadChainUint64 is ReadChain for a final 8-byte little-endian value.
func ReadChainUint64(mem Reader, base uint64, steps ...Step) (uint64, error) {
	buf, err := ReadChain(mem, base, 8, steps...)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf), nil
}
