package types

import (
	"encoding/binary"
	"math"
	"testing"
)

func sampleCombatant() Combatant {
	c := Combatant{
		ID:                  0x40001234,
		BNpcID:              7,
		OwnerID:             0xE0000000,
		Type:                2,
		EffectiveDistance:   12,
		PosX:                101.5,
		PosZ:                -3.25,
		PosY:                88.125,
		Heading:             math.Pi,
		PCTargetID:          0x10203040,
		NPCTargetID:         0x50607080,
		BNpcNameID:          4130,
		CurrentWorldID:      73,
		HomeWorldID:         74,
		CurrentHP:           123456,
		MaxHP:               234567,
		CurrentMP:           10000,
		MaxMP:               10000,
		CurrentGP:           400,
		MaxGP:               700,
		CurrentCP:           500,
		MaxCP:               600,
		Job:                 19,
		Level:               90,
		IsCasting1:          1,
		IsCasting2:          1,
		CastBuffID:          7559,
		CastDurationCurrent: 0.5,
		CastDurationMax:     2.5,
	}
	copy(c.Name[:], "Striking Dummy")
	return c
}

func TestForeignLayoutRoundTrip(t *testing.T) {
	c := sampleCombatant()
	blob := c.ForeignLayout()
	if len(blob) != CombatantSize {
		t.Fatalf("Expected %d byte blob, got %d", CombatantSize, len(blob))
	}

	got, err := DecodeCombatant(blob)
	if err != nil {
		t.Fatalf("DecodeCombatant failed: %v", err)
	}
	if got != c {
		t.Errorf("Round trip mismatch:\n got %+v\nwant %+v", got, c)
	}
	if got.DisplayName() != "Striking Dummy" {
		t.Errorf("DisplayName = %q", got.DisplayName())
	}
}

func TestForeignLayoutOffsets(t *testing.T) {
	c := sampleCombatant()
	blob := c.ForeignLayout()
	le := binary.LittleEndian

	if got := le.Uint32(blob[116:]); got != c.ID {
		t.Errorf("id at 116 = %x", got)
	}
	if got := math.Float32frombits(le.Uint32(blob[160:])); got != c.PosX {
		t.Errorf("pos_x at 160 = %v", got)
	}
	if got := le.Uint32(blob[6308:]); got != c.CurrentHP {
		t.Errorf("current_hp at 6308 = %d", got)
	}
	if blob[6366] != c.Level {
		t.Errorf("level at 6366 = %d", blob[6366])
	}
	if got := math.Float32frombits(le.Uint32(blob[7304:])); got != c.CastDurationMax {
		t.Errorf("cast_duration_max at 7304 = %v", got)
	}
	// Nothing past the last tracked field.
	for i := 7308; i < CombatantSize; i++ {
		if blob[i] != 0 {
			t.Fatalf("Untracked byte %d is %d", i, blob[i])
		}
	}
}

func TestPutForeignLayoutClearsBuffer(t *testing.T) {
	blob := make([]byte, CombatantSize)
	for i := range blob {
		blob[i] = 0xff
	}
	c := sampleCombatant()
	c.PutForeignLayout(blob)
	if blob[0] != 0 || blob[CombatantSize-1] != 0 {
		t.Errorf("Untracked bytes were not cleared")
	}
}

func TestDecodeCombatantShortBlob(t *testing.T) {
	if _, err := DecodeCombatant(make([]byte, 7000)); err == nil {
		t.Errorf("Expected an error for a short blob")
	}
}

func TestTargetRoundTrip(t *testing.T) {
	want := Target{Target: 0x1111, Hover: 0x2222, Focus: 0x3333}
	blob := make([]byte, TargetBlockSize)
	copy(blob, want.ForeignLayout())

	got, err := DecodeTarget(blob)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("Got %v, want %v", got, want)
	}
	if le := binary.LittleEndian; le.Uint64(blob[280:]) != 0x3333 {
		t.Errorf("Focus not at offset 280")
	}
}
