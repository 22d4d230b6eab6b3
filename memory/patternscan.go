package memory

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strings"

	"github.com/apex/log"

	"XivSync/utils"
)

// ScanWindow is how much of a region is read per pattern search.
const ScanWindow = 64 << 10

// SignatureMap holds the resolved address of each signature for one session.
type SignatureMap map[SignatureType]uint64

// SignatureNotFoundError lists every signature the scan could not resolve.
type SignatureNotFoundError struct {
	Missing []SignatureType
}

func (e *SignatureNotFoundError) Error() string {
	names := make([]string, len(e.Missing))
	for i, m := range e.Missing {
		names[i] = string(m)
	}
	return fmt.Sprintf("signatures not found: %s", strings.Join(names, ", "))
}

// eligibleRegion keeps anonymous read-only code mappings, which is where the
// game's instructions embedding the structure addresses live.
func eligibleRegion(r utils.MemoryRegion) bool {
	return r.Readable() && r.Executable() && !r.Writable() && !r.FileBacked() && r.Size() > 0
}

// PatternScan resolves every signature in sigs. For each one the 4 bytes
// following its first match hold a signed displacement relative to the end
// of those 4 bytes; the resolved address is that target.
func PatternScan(mem RegionReader, sigs map[SignatureType]Signature) (SignatureMap, error) {
	regions, err := mem.Regions()
	if err != nil {
		return nil, fmt.Errorf("list memory regions: %w", err)
	}

	maxLen := 0
	for _, sig := range sigs {
		maxLen = max(maxLen, sig.Len())
	}
	if maxLen == 0 {
		return nil, fmt.Errorf("no signatures to scan")
	}
	if maxLen >= ScanWindow {
		return nil, fmt.Errorf("signature length %d exceeds scan window", maxLen)
	}

	pending := make(map[SignatureType]Signature, len(sigs))
	for name, sig := range sigs {
		pending[name] = sig
	}
	found := make(SignatureMap, len(sigs))

	for _, region := range regions {
		if len(pending) == 0 {
			break
		}
		if !eligibleRegion(region) {
			continue
		}
		scanRegion(mem, region, maxLen, pending, found)
	}

	if len(pending) > 0 {
		missing := make([]SignatureType, 0, len(pending))
		for name := range pending {
			missing = append(missing, name)
		}
		sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
		return found, &SignatureNotFoundError{Missing: missing}
	}
	log.Infof("Found all %d memory signatures", len(found))
	return found, nil
}

func scanRegion(mem Reader, region utils.MemoryRegion, maxLen int, pending map[SignatureType]Signature, found SignatureMap) {
	step := uint64(ScanWindow - (maxLen - 1))
	for addr := region.Start; addr < region.End && len(pending) > 0; addr += step {
		size := int(min(uint64(ScanWindow), region.End-addr))
		window, err := readRaw(mem, addr, size)
		if err != nil {
			log.WithError(err).Debugf("Skipping rest of region %s", region)
			return
		}

		for name, sig := range pending {
			offset := FindSignature(window, sig)
			if offset < 0 {
				continue
			}
			match := addr + uint64(offset)
			target, err := resolveDisplacement(mem, match, sig.Len())
			if err != nil {
				log.WithError(err).Warnf("Matched %s at 0x%X but could not read its displacement", name, match)
				continue
			}
			log.Debugf("Signature %s matched at 0x%X, resolves to 0x%X", name, match, target)
			found[name] = target
			delete(pending, name)
		}

		if addr+uint64(size) >= region.End {
			return
		}
	}
}

func resolveDisplacement(mem Reader, match uint64, sigLen int) (uint64, error) {
	dispAt := match + uint64(sigLen)
	buf, err := readRaw(mem, dispAt, 4)
	if err != nil {
		return 0, err
	}
	disp := int32(binary.LittleEndian.Uint32(buf))
	return uint64(int64(dispAt+4) + int64(disp)), nil
}
