package types

import (
	"encoding/binary"
	"fmt"
)

const (
	// TargetBlockSize is how much of the target structure the host copies.
	TargetBlockSize = 512

	// Offsets of the three target pointers inside the block.
	TargetOffset      = 192
	HoverTargetOffset = 200
	FocusTargetOffset = 280

	// TargetDataSize is the part of the block the mirror reproduces.
	TargetDataSize = FocusTargetOffset + 8
)

// Target holds the identities of the current, hovered and focused mobs.
// A zero identity means nothing is selected.
type Target struct {
	Target Identity
	Hover  Identity
	Focus  Identity
}

func DecodeTarget(blob []byte) (Target, error) {
	if len(blob) < TargetDataSize {
		return Target{}, fmt.Errorf("target block too short: %d bytes, need %d", len(blob), TargetDataSize)
	}
	le := binary.LittleEndian
	return Target{
		Target: Identity(le.Uint64(blob[TargetOffset:])),
		Hover:  Identity(le.Uint64(blob[HoverTargetOffset:])),
		Focus:  Identity(le.Uint64(blob[FocusTargetOffset:])),
	}, nil
}

// ForeignLayout returns the target data block as the game lays it out.
func (t Target) ForeignLayout() []byte {
	blob := make([]byte, TargetDataSize)
	le := binary.LittleEndian
	le.PutUint64(blob[TargetOffset:], uint64(t.Target))
	le.PutUint64(blob[HoverTargetOffset:], uint64(t.Hover))
	le.PutUint64(blob[FocusTargetOffset:], uint64(t.Focus))
	return blob
}
