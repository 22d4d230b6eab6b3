package netsync

import (
	"encoding/binary"
	"errors"
	"fmt"

	"XivSync/types"
)

// Packet type bytes.
const (
	PacketZoneID     byte = 1
	PacketMobUpdate  byte = 2
	PacketMobNull    byte = 3
	PacketTarget     byte = 4
	PacketServerTime byte = 5
)

// frameHeaderSize is the type byte plus the 8-byte sequence number.
const frameHeaderSize = 1 + 8

// MaxDatagramSize is the largest frame the client will accept.
const MaxDatagramSize = 64 << 10

var (
	// ConnectMagic opens a session with the host.
	ConnectMagic = [8]byte{}
	// HeartbeatMagic keeps an open session alive.
	HeartbeatMagic = [8]byte{'X', 'I', 'V', 'B', 'E', 'A', 'T', 0x01}
)

// ErrMalformedPacket is returned for frames that cannot be decoded.
var ErrMalformedPacket = errors.New("malformed packet")

// EncodeFrame serializes ev as [type][seq][payload], all little-endian.
func EncodeFrame(ev types.Event, seq uint64) ([]byte, error) {
	le := binary.LittleEndian
	var frame []byte
	switch ev := ev.(type) {
	case types.ZoneChanged:
		frame = header(PacketZoneID, seq, 4)
		frame = le.AppendUint32(frame, ev.Zone)
	case types.MobUpsert:
		frame = header(PacketMobUpdate, seq, 2+8+8+len(ev.Payload))
		frame = le.AppendUint16(frame, ev.Slot)
		frame = le.AppendUint64(frame, uint64(ev.Identity))
		frame = le.AppendUint64(frame, uint64(len(ev.Payload)))
		frame = append(frame, ev.Payload...)
	case types.MobCleared:
		frame = header(PacketMobNull, seq, 2)
		frame = le.AppendUint16(frame, ev.Slot)
	case types.TargetsChanged:
		frame = header(PacketTarget, seq, 24)
		frame = le.AppendUint64(frame, uint64(ev.Targets.Target))
		frame = le.AppendUint64(frame, uint64(ev.Targets.Hover))
		frame = le.AppendUint64(frame, uint64(ev.Targets.Focus))
	case types.ServerTimeChanged:
		frame = header(PacketServerTime, seq, 8)
		frame = le.AppendUint64(frame, ev.Time)
	default:
		return nil, fmt.Errorf("cannot encode event %T", ev)
	}
	return frame, nil
}

func header(packetType byte, seq uint64, payloadLen int) []byte {
	frame := make([]byte, 0, frameHeaderSize+payloadLen)
	frame = append(frame, packetType)
	return binary.LittleEndian.AppendUint64(frame, seq)
}

// DecodeFrame parses one datagram. Payload bytes of a MobUpsert are copied,
// so b may be reused by the caller.
func DecodeFrame(b []byte) (uint64, types.Event, error) {
	if len(b) < frameHeaderSize {
		return 0, nil, fmt.Errorf("%w: %d bytes is shorter than a header", ErrMalformedPacket, len(b))
	}
	le := binary.LittleEndian
	packetType := b[0]
	seq := le.Uint64(b[1:])
	payload := b[frameHeaderSize:]

	wantLen := func(n int) error {
		if len(payload) != n {
			return fmt.Errorf("%w: type %d payload is %d bytes, want %d", ErrMalformedPacket, packetType, len(payload), n)
		}
		return nil
	}

	switch packetType {
	case PacketZoneID:
		if err := wantLen(4); err != nil {
			return seq, nil, err
		}
		return seq, types.ZoneChanged{Zone: le.Uint32(payload)}, nil

	case PacketMobUpdate:
		if len(payload) < 2+8+8 {
			return seq, nil, fmt.Errorf("%w: mob update header truncated", ErrMalformedPacket)
		}
		dataLen := le.Uint64(payload[10:])
		data := payload[18:]
		if dataLen != uint64(len(data)) {
			return seq, nil, fmt.Errorf("%w: mob update declares %d bytes, carries %d", ErrMalformedPacket, dataLen, len(data))
		}
		return seq, types.MobUpsert{
			Slot:     le.Uint16(payload),
			Identity: types.Identity(le.Uint64(payload[2:])),
			Payload:  append([]byte(nil), data...),
		}, nil

	case PacketMobNull:
		if err := wantLen(2); err != nil {
			return seq, nil, err
		}
		return seq, types.MobCleared{Slot: le.Uint16(payload)}, nil

	case PacketTarget:
		if err := wantLen(24); err != nil {
			return seq, nil, err
		}
		return seq, types.TargetsChanged{Targets: types.Target{
			Target: types.Identity(le.Uint64(payload)),
			Hover:  types.Identity(le.Uint64(payload[8:])),
			Focus:  types.Identity(le.Uint64(payload[16:])),
		}}, nil

	case PacketServerTime:
		if err := wantLen(8); err != nil {
			return seq, nil, err
		}
		return seq, types.ServerTimeChanged{Time: le.Uint64(payload)}, nil
	}
	return seq, nil, fmt.Errorf("%w: unknown type %d", ErrMalformedPacket, packetType)
}
