package types

import "fmt"

// Identity is a foreign pointer value used only to detect when a slot
// starts holding a different object. It is never dereferenced locally.
type Identity uint64

func (id Identity) IsZero() bool {
	return id == 0
}

func (id Identity) String() string {
	return fmt.Sprintf("0x%X", uint64(id))
}
