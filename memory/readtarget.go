package memory

import "XivSync/types"

// ReadTarget reads the target block and drops any identity that is not held
// by one of the tracked mob slots.
func ReadTarget(mem Reader, sigs SignatureMap, tracked *[types.MobSlots]types.Identity) (types.Target, error) {
	blob, err := readRaw(mem, sigs[SigTarget], types.TargetBlockSize)
	if err != nil {
		return types.Target{}, err
	}
	target, err := types.DecodeTarget(blob)
	if err != nil {
		return types.Target{}, err
	}
	target.Target = resolveTracked(target.Target, tracked)
	target.Hover = resolveTracked(target.Hover, tracked)
	target.Focus = resolveTracked(target.Focus, tracked)
	return target, nil
}

func resolveTracked(id types.Identity, tracked *[types.MobSlots]types.Identity) types.Identity {
	if id.IsZero() {
		return 0
	}
	for _, slot := range tracked {
		if slot == id {
			return id
		}
	}
	return 0
}
