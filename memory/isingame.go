package memory

// ReadZoneID reads the current zone. Zero means a loading screen or no
// character logged in.
func ReadZoneID(mem Reader, sigs SignatureMap) (uint32, error) {
	return readUint32(mem, sigs[SigZoneID])
}

// IsInGame reports whether the zone id belongs to a loaded zone.
func IsInGame(zone uint32) bool {
	return zone != 0
}
