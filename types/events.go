package types

import "fmt"

// Event is one state change produced by the host scan loop. The concrete
// types are ZoneChanged, MobUpsert, MobCleared, TargetsChanged and
// ServerTimeChanged.
type Event interface {
	event()
}

type ZoneChanged struct {
	Zone uint32
}

// MobUpsert carries a slot's current contents. Payload is the EncodeWire
// form of the combatant.
type MobUpsert struct {
	Slot     uint16
	Identity Identity
	Payload  []byte
}

type MobCleared struct {
	Slot uint16
}

type TargetsChanged struct {
	Targets Target
}

type ServerTimeChanged struct {
	Time uint64
}

func (ZoneChanged) event()       {}
func (MobUpsert) event()         {}
func (MobCleared) event()        {}
func (TargetsChanged) event()    {}
func (ServerTimeChanged) event() {}

func (e ZoneChanged) String() string { return fmt.Sprintf("ZoneChanged(%d)", e.Zone) }
func (e MobUpsert) String() string {
	return fmt.Sprintf("MobUpsert(slot=%d id=%s len=%d)", e.Slot, e.Identity, len(e.Payload))
}
func (e MobCleared) String() string { return fmt.Sprintf("MobCleared(slot=%d)", e.Slot) }
func (e TargetsChanged) String() string {
	return fmt.Sprintf("TargetsChanged(%s, %s, %s)", e.Targets.Target, e.Targets.Hover, e.Targets.Focus)
}
func (e ServerTimeChanged) String() string { return fmt.Sprintf("ServerTimeChanged(%d)", e.Time) }
