// types/combatant.go

package types

import (
	"encoding/binary"
	"fmt"
	"math"

	"XivSync/utils"
)

const (
	// CombatantSize is the size of one combatant record in the game's memory.
	CombatantSize = 11520
	// MobSlots is the number of entries in the game's mob pointer table.
	MobSlots = 421
	// NameLength is the size of the fixed name buffer inside a combatant.
	NameLength = 30
)

// Byte offsets of the fields we track inside a combatant record.
const (
	offName                = 48
	offID                  = 116
	offBNpcID              = 128
	offOwnerID             = 132
	offType                = 140
	offEffectiveDistance   = 146
	offPosX                = 160
	offPosZ                = 164
	offPosY                = 168
	offHeading             = 176
	offPCTargetID          = 1000
	offNPCTargetID         = 6176
	offBNpcNameID          = 6268
	offCurrentWorldID      = 6296
	offHomeWorldID         = 6298
	offCurrentHP           = 6308
	offMaxHP               = 6312
	offCurrentMP           = 6316
	offMaxMP               = 6320
	offCurrentGP           = 6326
	offMaxGP               = 6328
	offCurrentCP           = 6330
	offMaxCP               = 6332
	offJob                 = 6364
	offLevel               = 6366
	offIsCasting1          = 7248
	offIsCasting2          = 7250
	offCastBuffID          = 7252
	offCastDurationCurrent = 7300
	offCastDurationMax     = 7304

	// combatantFieldsEnd is one past the last byte any tracked field touches.
	combatantFieldsEnd = offCastDurationMax + 4
)

// Combatant is the portable form of a mob record. The field order is also
// the wire layout, so every field must stay fixed-size.
type Combatant struct {
	Name                [NameLength]byte
	ID                  uint32
	BNpcID              uint32
	OwnerID             uint32
	Type                uint8
	EffectiveDistance   uint8
	PosX                float32
	PosZ                float32
	PosY                float32
	Heading             float32
	PCTargetID          uint32
	NPCTargetID         uint32
	BNpcNameID          uint32
	CurrentWorldID      uint16
	HomeWorldID         uint16
	CurrentHP           uint32
	MaxHP               uint32
	CurrentMP           uint32
	MaxMP               uint32
	CurrentGP           uint16
	MaxGP               uint16
	CurrentCP           uint16
	MaxCP               uint16
	Job                 uint8
	Level               uint8
	IsCasting1          uint8
	IsCasting2          uint8
	CastBuffID          uint32
	CastDurationCurrent float32
	CastDurationMax     float32
}

// DisplayName returns the name up to its first NUL byte.
func (c *Combatant) DisplayName() string {
	return utils.ReadNullTerminatedString(c.Name[:])
}

// DecodeCombatant reads a combatant out of a raw record copied from the game.
// The blob may be shorter than CombatantSize as long as it covers every
// tracked field.
func DecodeCombatant(blob []byte) (Combatant, error) {
	var c Combatant
	if len(blob) < combatantFieldsEnd {
		return c, fmt.Errorf("combatant record too short: %d bytes, need %d", len(blob), combatantFieldsEnd)
	}
	le := binary.LittleEndian

	copy(c.Name[:], blob[offName:offName+NameLength])
	c.ID = le.Uint32(blob[offID:])
	c.BNpcID = le.Uint32(blob[offBNpcID:])
	c.OwnerID = le.Uint32(blob[offOwnerID:])
	c.Type = blob[offType]
	c.EffectiveDistance = blob[offEffectiveDistance]
	c.PosX = math.Float32frombits(le.Uint32(blob[offPosX:]))
	c.PosZ = math.Float32frombits(le.Uint32(blob[offPosZ:]))
	c.PosY = math.Float32frombits(le.Uint32(blob[offPosY:]))
	c.Heading = math.Float32frombits(le.Uint32(blob[offHeading:]))
	c.PCTargetID = le.Uint32(blob[offPCTargetID:])
	c.NPCTargetID = le.Uint32(blob[offNPCTargetID:])
	c.BNpcNameID = le.Uint32(blob[offBNpcNameID:])
	c.CurrentWorldID = le.Uint16(blob[offCurrentWorldID:])
	c.HomeWorldID = le.Uint16(blob[offHomeWorldID:])
	c.CurrentHP = le.Uint32(blob[offCurrentHP:])
	c.MaxHP = le.Uint32(blob[offMaxHP:])
	c.CurrentMP = le.Uint32(blob[offCurrentMP:])
	c.MaxMP = le.Uint32(blob[offMaxMP:])
	c.CurrentGP = le.Uint16(blob[offCurrentGP:])
	c.MaxGP = le.Uint16(blob[offMaxGP:])
	c.CurrentCP = le.Uint16(blob[offCurrentCP:])
	c.MaxCP = le.Uint16(blob[offMaxCP:])
	c.Job = blob[offJob]
	c.Level = blob[offLevel]
	c.IsCasting1 = blob[offIsCasting1]
	c.IsCasting2 = blob[offIsCasting2]
	c.CastBuffID = le.Uint32(blob[offCastBuffID:])
	c.CastDurationCurrent = math.Float32frombits(le.Uint32(blob[offCastDurationCurrent:]))
	c.CastDurationMax = math.Float32frombits(le.Uint32(blob[offCastDurationMax:]))

	return c, nil
}

// ForeignLayout writes the combatant into a zero-filled record shaped exactly
// like the game's. Bytes outside the tracked fields stay zero.
func (c *Combatant) ForeignLayout() []byte {
	blob := make([]byte, CombatantSize)
	c.PutForeignLayout(blob)
	return blob
}

// PutForeignLayout is ForeignLayout into a caller-owned buffer of at least
// CombatantSize bytes. Untracked bytes are cleared.
func (c *Combatant) PutForeignLayout(blob []byte) {
	_ = blob[CombatantSize-1]
	clear(blob[:CombatantSize])
	le := binary.LittleEndian

	copy(blob[offName:offName+NameLength], c.Name[:])
	le.PutUint32(blob[offID:], c.ID)
	le.PutUint32(blob[offBNpcID:], c.BNpcID)
	le.PutUint32(blob[offOwnerID:], c.OwnerID)
	blob[offType] = c.Type
	blob[offEffectiveDistance] = c.EffectiveDistance
	le.PutUint32(blob[offPosX:], math.Float32bits(c.PosX))
	le.PutUint32(blob[offPosZ:], math.Float32bits(c.PosZ))
	le.PutUint32(blob[offPosY:], math.Float32bits(c.PosY))
	le.PutUint32(blob[offHeading:], math.Float32bits(c.Heading))
	le.PutUint32(blob[offPCTargetID:], c.PCTargetID)
	le.PutUint32(blob[offNPCTargetID:], c.NPCTargetID)
	le.PutUint32(blob[offBNpcNameID:], c.BNpcNameID)
	le.PutUint16(blob[offCurrentWorldID:], c.CurrentWorldID)
	le.PutUint16(blob[offHomeWorldID:], c.HomeWorldID)
	le.PutUint32(blob[offCurrentHP:], c.CurrentHP)
	le.PutUint32(blob[offMaxHP:], c.MaxHP)
	le.PutUint32(blob[offCurrentMP:], c.CurrentMP)
	le.PutUint32(blob[offMaxMP:], c.MaxMP)
	le.PutUint16(blob[offCurrentGP:], c.CurrentGP)
	le.PutUint16(blob[offMaxGP:], c.MaxGP)
	le.PutUint16(blob[offCurrentCP:], c.CurrentCP)
	le.PutUint16(blob[offMaxCP:], c.MaxCP)
	blob[offJob] = c.Job
	blob[offLevel] = c.Level
	blob[offIsCasting1] = c.IsCasting1
	blob[offIsCasting2] = c.IsCasting2
	le.PutUint32(blob[offCastBuffID:], c.CastBuffID)
	le.PutUint32(blob[offCastDurationCurrent:], math.Float32bits(c.CastDurationCurrent))
	le.PutUint32(blob[offCastDurationMax:], math.Float32bits(c.CastDurationMax))
}
