package mirror

import (
	"errors"
	"fmt"
	"time"
	"unsafe"

	"github.com/apex/log"
	"golang.org/x/sys/unix"

	"XivSync/types"
)

// DefaultGracePeriod is how long a replaced blob stays mapped, giving outside
// readers that still hold its address time to move on.
const DefaultGracePeriod = time.Second

var ErrSlotOutOfRange = errors.New("mob slot out of range")

type blob struct {
	identity types.Identity
	mem      []byte
}

func (b *blob) address() uint64 {
	return uint64(uintptr(unsafe.Pointer(&b.mem[0])))
}

type retiredBlob struct {
	blob    *blob
	release time.Time
}

// Heap applies sync events to a Region. Every mob lives in its own
// CombatantSize mapping whose address is published in the region's mob
// table. It must be used from a single goroutine.
type Heap struct {
	region *Region
	grace  time.Duration
	now    func() time.Time

	slots   [types.MobSlots]*blob
	retired []retiredBlob
	scratch [types.CombatantSize]byte
}

func NewHeap(region *Region, grace time.Duration) *Heap {
	if grace < 0 {
		grace = 0
	}
	return &Heap{region: region, grace: grace, now: time.Now}
}

// Handle applies ev and logs anything that had to be dropped.
func (h *Heap) Handle(seq uint64, ev types.Event) {
	if err := h.Apply(ev); err != nil {
		log.WithError(err).Warnf("Dropping packet %d (%v)", seq, ev)
	}
}

func (h *Heap) Apply(ev types.Event) error {
	defer h.reap()

	switch ev := ev.(type) {
	case types.ZoneChanged:
		h.region.SetZone(ev.Zone)
	case types.ServerTimeChanged:
		h.region.SetServerTime(ev.Time)
	case types.MobUpsert:
		return h.upsert(ev)
	case types.MobCleared:
		if int(ev.Slot) >= types.MobSlots {
			return fmt.Errorf("%w: %d", ErrSlotOutOfRange, ev.Slot)
		}
		h.region.SetMobSlot(int(ev.Slot), 0)
		h.retire(h.slots[ev.Slot])
		h.slots[ev.Slot] = nil
	case types.TargetsChanged:
		h.region.SetTargets(
			h.resolve(ev.Targets.Target),
			h.resolve(ev.Targets.Hover),
			h.resolve(ev.Targets.Focus),
		)
	default:
		return fmt.Errorf("unhandled event %T", ev)
	}
	return nil
}

func (h *Heap) upsert(ev types.MobUpsert) error {
	slot := int(ev.Slot)
	if slot >= types.MobSlots {
		return fmt.Errorf("%w: %d", ErrSlotOutOfRange, slot)
	}
	combatant, err := types.DecodeWire(ev.Payload)
	if err != nil {
		return err
	}
	combatant.PutForeignLayout(h.scratch[:])

	if cur := h.slots[slot]; cur != nil && cur.identity == ev.Identity {
		copy(cur.mem, h.scratch[:])
		return nil
	}

	mem, err := unix.Mmap(-1, 0, types.CombatantSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return fmt.Errorf("map mob blob: %w", err)
	}
	next := &blob{identity: ev.Identity, mem: mem}
	copy(next.mem, h.scratch[:])

	h.region.SetMobSlot(slot, next.address())
	h.retire(h.slots[slot])
	h.slots[slot] = next
	log.Debugf("Slot %d now mirrors %s at 0x%X (%s)", slot, ev.Identity, next.address(), combatant.DisplayName())
	return nil
}

// resolve maps a foreign identity to the local blob holding it.
func (h *Heap) resolve(id types.Identity) uint64 {
	if id.IsZero() {
		return 0
	}
	for _, b := range h.slots {
		if b != nil && b.identity == id {
			return b.address()
		}
	}
	return 0
}

// SlotAddress returns the published address for slot, or 0.
func (h *Heap) SlotAddress(slot int) uint64 {
	if slot < 0 || slot >= types.MobSlots || h.slots[slot] == nil {
		return 0
	}
	return h.slots[slot].address()
}

func (h *Heap) retire(b *blob) {
	if b == nil {
		return
	}
	h.retired = append(h.retired, retiredBlob{blob: b, release: h.now().Add(h.grace)})
}

// reap unmaps retired blobs whose grace period has passed.
func (h *Heap) reap() {
	now := h.now()
	kept := h.retired[:0]
	for _, r := range h.retired {
		if now.Before(r.release) {
			kept = append(kept, r)
			continue
		}
		if err := unix.Munmap(r.blob.mem); err != nil {
			log.WithError(err).Warn("Failed to unmap retired mob blob")
		}
	}
	clear(h.retired[len(kept):])
	h.retired = kept
}

// Retired returns how many replaced blobs are still mapped.
func (h *Heap) Retired() int {
	return len(h.retired)
}

// Close clears the region's mob table and unmaps every blob.
func (h *Heap) Close() error {
	var errs []error
	for i, b := range h.slots {
		if b == nil {
			continue
		}
		h.region.SetMobSlot(i, 0)
		errs = append(errs, unix.Munmap(b.mem))
		h.slots[i] = nil
	}
	h.region.SetTargets(0, 0, 0)
	for _, r := range h.retired {
		errs = append(errs, unix.Munmap(r.blob.mem))
	}
	h.retired = nil
	return errors.Join(errs...)
}
