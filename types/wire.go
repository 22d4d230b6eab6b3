package types

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// ErrCorruptPayload is returned for mob payloads that fail to decompress or decode.
var ErrCorruptPayload = errors.New("corrupt combatant payload")

// maxWirePayload bounds decompressed payloads; a combatant is far smaller.
const maxWirePayload = 64 << 10

var (
	// encoder and decoder for zstd are reusable and thread-safe
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	zstdDecoder, _ = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxWirePayload), zstd.WithDecoderConcurrency(0))

	combatantWireSize = binary.Size(Combatant{})
)

// MarshalBinary serializes the combatant with its fixed little-endian struct layout.
func (c *Combatant) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(combatantWireSize)
	if err := binary.Write(&buf, binary.LittleEndian, c); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary is the inverse of MarshalBinary. The input must be exactly
// one serialized combatant.
func (c *Combatant) UnmarshalBinary(data []byte) error {
	if len(data) != combatantWireSize {
		return fmt.Errorf("%w: %d bytes, want %d", ErrCorruptPayload, len(data), combatantWireSize)
	}
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, c); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptPayload, err)
	}
	return nil
}

// EncodeWire serializes and compresses a combatant for a MobUpdate packet.
func EncodeWire(c *Combatant) ([]byte, error) {
	raw, err := c.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return zstdEncoder.EncodeAll(raw, make([]byte, 0, len(raw))), nil
}

// DecodeWire decompresses and decodes a MobUpdate payload.
func DecodeWire(payload []byte) (Combatant, error) {
	var c Combatant
	if len(payload) == 0 {
		return c, fmt.Errorf("%w: empty", ErrCorruptPayload)
	}
	raw, err := zstdDecoder.DecodeAll(payload, nil)
	if err != nil {
		return c, fmt.Errorf("%w: %v", ErrCorruptPayload, err)
	}
	if err := c.UnmarshalBinary(raw); err != nil {
		return Combatant{}, err
	}
	return c, nil
}
