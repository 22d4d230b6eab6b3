package memory

import (
	"encoding/binary"

	"XivSync/types"
)

// ReadMobTable reads all slot pointers of the mob array in one go.
func ReadMobTable(mem Reader, sigs SignatureMap) ([types.MobSlots]types.Identity, error) {
	var table [types.MobSlots]types.Identity
	buf, err := readRaw(mem, sigs[SigMobArray], types.MobSlots*8)
	if err != nil {
		return table, err
	}
	for i := range table {
		table[i] = types.Identity(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return table, nil
}

// ReadMob copies and decodes the combatant a slot points at.
func ReadMob(mem Reader, mobPtr types.Identity) (types.Combatant, error) {
	blob, err := readRaw(mem, uint64(mobPtr), types.CombatantSize)
	if err != nil {
		return types.Combatant{}, err
	}
	return types.DecodeCombatant(blob)
}
