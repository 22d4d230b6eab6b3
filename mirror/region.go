// mirror/region.go

package mirror

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"

	"XivSync/memory"
	"XivSync/types"
)

// Blocks in region order. Each is prefixed with its default signature,
// wildcards zeroed, so a reader that resolves signatures against the game
// resolves them against the mirror as well.
var blockLayout = []struct {
	Name     memory.SignatureType
	DataSize int
}{
	{memory.SigZoneID, 8},
	{memory.SigTarget, types.TargetDataSize},
	{memory.SigChatLog, chatLogDataSize},
	{memory.SigMobArray, types.MobSlots * 8},
	{memory.SigPartyList, partyListSize},
	{memory.SigServerTime, 8},
	{memory.SigPlayer, 0},
}

const (
	partyListSize = 25600

	// The chat log is mirrored empty: a header pointer map followed by a
	// header whose array bounds are all zero.
	chatLogHeaderMapSize = 8 + 8 + 80 + 8 + 36 + 8 + 352 + 8 + 32
	chatLogHeaderSize    = 952 + 8 + 8 + 8 + 8 + 8 + 32
	chatLogDataSize      = chatLogHeaderMapSize + chatLogHeaderSize
	chatLogFirstMapEntry = 0x08

	// Server time sits at the end of a three part pointer chain.
	serverTimePart1Size = 72 + 8
	serverTimePart2Size = 8 + 8
	serverTimePart3Size = 2116 + 8
)

// Block is one signature-prefixed section of the region.
type Block struct {
	Name            memory.SignatureType
	SignatureOffset int
	SignatureLen    int
	DataOffset      int
	DataSize        int
}

// Region is a fixed-layout memory area shaped like the game's own memory, so
// tools that locate structures by signature can read it directly. It lives
// in its own mapping and never moves.
//
// Only one goroutine writes to a Region. Outside readers are not
// synchronized with it; 8-byte values at aligned offsets are written with a
// single atomic store so they are never observed torn.
type Region struct {
	mem    []byte
	blocks map[memory.SignatureType]Block

	serverTimeParts [3]int
}

func align8(n int) int {
	return (n + 7) &^ 7
}

// NewRegion maps and initializes a region.
func NewRegion() (*Region, error) {
	blocks := make(map[memory.SignatureType]Block, len(blockLayout))
	sigs := make(map[memory.SignatureType][]byte, len(blockLayout))
	offset := 0
	for _, entry := range blockLayout {
		sig, err := memory.ParseSignature(memory.DefaultSignatures[entry.Name])
		if err != nil {
			return nil, fmt.Errorf("block %s: %w", entry.Name, err)
		}
		// The displacement after the signature skips the padding that puts the
		// data on an 8-byte boundary.
		dataOffset := align8(offset + sig.Len() + 4)
		blocks[entry.Name] = Block{
			Name:            entry.Name,
			SignatureOffset: offset,
			SignatureLen:    sig.Len(),
			DataOffset:      dataOffset,
			DataSize:        entry.DataSize,
		}
		sigs[entry.Name] = sig.Bytes
		offset = dataOffset + entry.DataSize
	}

	var parts [3]int
	for i, size := range []int{serverTimePart1Size, serverTimePart2Size, serverTimePart3Size} {
		parts[i] = align8(offset)
		offset = parts[i] + size
	}

	pageSize := unix.Getpagesize()
	size := (offset + pageSize - 1) / pageSize * pageSize
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("map mirror region: %w", err)
	}

	r := &Region{mem: mem, blocks: blocks, serverTimeParts: parts}
	for name, b := range blocks {
		copy(mem[b.SignatureOffset:], sigs[name])
		disp := b.DataOffset - (b.SignatureOffset + b.SignatureLen + 4)
		binary.LittleEndian.PutUint32(mem[b.SignatureOffset+b.SignatureLen:], uint32(disp))
	}

	chatLog := blocks[memory.SigChatLog]
	r.put64(chatLog.DataOffset, chatLogFirstMapEntry)

	serverTime := blocks[memory.SigServerTime]
	r.put64(serverTime.DataOffset, r.addressOf(parts[0]))
	r.put64(parts[0]+72, r.addressOf(parts[1]))
	r.put64(parts[1]+8, r.addressOf(parts[2]))
	return r, nil
}

// Base returns the address of the first byte of the region.
func (r *Region) Base() uint64 {
	return r.addressOf(0)
}

func (r *Region) Size() int {
	return len(r.mem)
}

func (r *Region) Block(name memory.SignatureType) (Block, bool) {
	b, ok := r.blocks[name]
	return b, ok
}

// DataAddress is where a signature in the region resolves to.
func (r *Region) DataAddress(name memory.SignatureType) uint64 {
	return r.addressOf(r.blocks[name].DataOffset)
}

// Bytes exposes the raw region. Callers must not write to it.
func (r *Region) Bytes() []byte {
	return r.mem
}

func (r *Region) SetZone(zone uint32) {
	off := r.blocks[memory.SigZoneID].DataOffset
	atomic.StoreUint32((*uint32)(unsafe.Pointer(&r.mem[off])), zone)
}

func (r *Region) SetServerTime(t uint64) {
	r.put64(r.serverTimeParts[2]+2116, t)
}

// SetMobSlot publishes the address of the blob held by slot.
func (r *Region) SetMobSlot(slot int, address uint64) {
	r.put64(r.blocks[memory.SigMobArray].DataOffset+slot*8, address)
}

func (r *Region) MobSlot(slot int) uint64 {
	off := r.blocks[memory.SigMobArray].DataOffset + slot*8
	return binary.LittleEndian.Uint64(r.mem[off:])
}

// SetTargets publishes resolved blob addresses into the target block.
func (r *Region) SetTargets(target, hover, focus uint64) {
	off := r.blocks[memory.SigTarget].DataOffset
	r.put64(off+types.TargetOffset, target)
	r.put64(off+types.HoverTargetOffset, hover)
	r.put64(off+types.FocusTargetOffset, focus)
}

func (r *Region) Close() error {
	if r.mem == nil {
		return nil
	}
	err := unix.Munmap(r.mem)
	r.mem = nil
	return err
}

func (r *Region) addressOf(off int) uint64 {
	return uint64(uintptr(unsafe.Pointer(&r.mem[off])))
}

func (r *Region) put64(off int, v uint64) {
	if r.addressOf(off)%8 == 0 {
		atomic.StoreUint64((*uint64)(unsafe.Pointer(&r.mem[off])), v)
		return
	}
	binary.LittleEndian.PutUint64(r.mem[off:], v)
}
