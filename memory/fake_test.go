package memory

import (
	"encoding/binary"
	"fmt"

	"XivSync/utils"
)

type fakeSegment struct {
	region utils.MemoryRegion
	data   []byte
}

// fakeProcess is an in-memory stand-in for the game process.
type fakeProcess struct {
	segments []*fakeSegment
	reads    int
}

func (f *fakeProcess) addSegment(base uint64, size int, perms, path string) *fakeSegment {
	seg := &fakeSegment{
		region: utils.MemoryRegion{Start: base, End: base + uint64(size), Perms: perms, Path: path},
		data:   make([]byte, size),
	}
	f.segments = append(f.segments, seg)
	return seg
}

func (f *fakeProcess) find(address uint64, size int) (*fakeSegment, int, bool) {
	for _, seg := range f.segments {
		if address >= seg.region.Start && address+uint64(size) <= seg.region.End {
			return seg, int(address - seg.region.Start), true
		}
	}
	return nil, 0, false
}

func (f *fakeProcess) ReadRaw(address uint64, size int) ([]byte, error) {
	f.reads++
	seg, off, ok := f.find(address, size)
	if !ok {
		return nil, fmt.Errorf("bad address 0x%X", address)
	}
	out := make([]byte, size)
	copy(out, seg.data[off:off+size])
	return out, nil
}

func (f *fakeProcess) Regions() ([]utils.MemoryRegion, error) {
	regions := make([]utils.MemoryRegion, len(f.segments))
	for i, seg := range f.segments {
		regions[i] = seg.region
	}
	return regions, nil
}

func (f *fakeProcess) write(address uint64, data []byte) {
	seg, off, ok := f.find(address, len(data))
	if !ok {
		panic(fmt.Sprintf("write outside fake memory at 0x%X", address))
	}
	copy(seg.data[off:], data)
}

func (f *fakeProcess) putUint64(address, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	f.write(address, buf[:])
}

func (f *fakeProcess) putUint32(address uint64, v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	f.write(address, buf[:])
}
