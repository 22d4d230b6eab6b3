package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"XivSync/types"
)

const (
	zoneAddr       = heapBase
	serverTimeAddr = heapBase + 0x100
	mobTableAddr   = heapBase + 0x10000
	targetAddr     = heapBase + 0x20000
	combatantBase  = heapBase + 0x30000
)

var testSigs = SignatureMap{
	SigZoneID:     zoneAddr,
	SigServerTime: serverTimeAddr,
	SigMobArray:   mobTableAddr,
	SigTarget:     targetAddr,
}

// newGameProcess lays out a fake game with mobs in the given slots.
func newGameProcess(zone uint32, slots ...int) (*fakeProcess, map[int]types.Identity) {
	fake := &fakeProcess{}
	fake.addSegment(heapBase, 0x40000+len(slots)*0x4000, "rw-p", "")

	fake.putUint32(zoneAddr, zone)
	fake.putUint64(serverTimeAddr, heapBase+0x1000)
	fake.putUint64(heapBase+0x1000+72, heapBase+0x2000)
	fake.putUint64(heapBase+0x2000+8, heapBase+0x3000)
	fake.putUint64(heapBase+0x3000+2116, 1712345678)

	ptrs := make(map[int]types.Identity, len(slots))
	for i, slot := range slots {
		addr := uint64(combatantBase + i*0x4000)
		var c types.Combatant
		copy(c.Name[:], "Mob")
		c.ID = uint32(0x40000000 + slot)
		c.CurrentHP = uint32(1000 * (i + 1))
		c.MaxHP = 5000
		fake.write(addr, c.ForeignLayout())
		fake.putUint64(mobTableAddr+uint64(slot)*8, addr)
		ptrs[slot] = types.Identity(addr)
	}
	return fake, ptrs
}

func collect(s *Scanner) ([]types.Event, error) {
	var events []types.Event
	err := s.Tick(func(ev types.Event) error {
		events = append(events, ev)
		return nil
	})
	return events, err
}

func TestScannerTickEmitsEverySlot(t *testing.T) {
	fake, ptrs := newGameProcess(641, 0, 7, 420)
	fake.write(targetAddr, types.Target{Target: ptrs[7], Hover: 0xabcdef, Focus: ptrs[420]}.ForeignLayout())

	events, err := collect(NewScanner(fake, testSigs, 0))
	if err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if want := 2 + types.MobSlots + 1; len(events) != want {
		t.Fatalf("Expected %d events, got %d", want, len(events))
	}

	if ev, ok := events[0].(types.ServerTimeChanged); !ok || ev.Time != 1712345678 {
		t.Errorf("Expected server time first, got %v", events[0])
	}
	if ev, ok := events[1].(types.ZoneChanged); !ok || ev.Zone != 641 {
		t.Errorf("Expected zone 641, got %v", events[1])
	}

	upserts, clears := 0, 0
	for i, ev := range events[2 : 2+types.MobSlots] {
		switch ev := ev.(type) {
		case types.MobUpsert:
			upserts++
			if int(ev.Slot) != i {
				t.Errorf("Upsert out of order: slot %d at position %d", ev.Slot, i)
			}
			if ev.Identity != ptrs[i] {
				t.Errorf("Slot %d identity %s, want %s", i, ev.Identity, ptrs[i])
			}
			c, err := types.DecodeWire(ev.Payload)
			if err != nil {
				t.Fatalf("Slot %d payload: %v", i, err)
			}
			if c.DisplayName() != "Mob" || c.ID != uint32(0x40000000+i) {
				t.Errorf("Slot %d decoded as %q/%x", i, c.DisplayName(), c.ID)
			}
		case types.MobCleared:
			clears++
			if int(ev.Slot) != i {
				t.Errorf("Clear out of order: slot %d at position %d", ev.Slot, i)
			}
		default:
			t.Fatalf("Unexpected event %v at position %d", ev, i)
		}
	}
	if upserts != 3 || clears != 418 {
		t.Errorf("Expected 3 upserts and 418 clears, got %d and %d", upserts, clears)
	}

	targets, ok := events[len(events)-1].(types.TargetsChanged)
	if !ok {
		t.Fatalf("Expected targets last, got %v", events[len(events)-1])
	}
	want := types.Target{Target: ptrs[7], Focus: ptrs[420]}
	if targets.Targets != want {
		t.Errorf("Targets %v, want %v (untracked hover dropped)", targets.Targets, want)
	}
}

func TestScannerTickOutOfGame(t *testing.T) {
	fake, _ := newGameProcess(0, 3)

	events, err := collect(NewScanner(fake, testSigs, 0))
	if err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("Expected only server time and zone, got %d events", len(events))
	}
	if ev, ok := events[1].(types.ZoneChanged); !ok || ev.Zone != 0 {
		t.Errorf("Expected zone 0, got %v", events[1])
	}
}

func TestScannerSkipsUnreadableMob(t *testing.T) {
	fake, _ := newGameProcess(132, 1)
	fake.putUint64(mobTableAddr+2*8, 0xbad00000)

	events, err := collect(NewScanner(fake, testSigs, 0))
	if err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	// Slot 2 produces nothing this tick.
	if want := 2 + types.MobSlots - 1 + 1; len(events) != want {
		t.Fatalf("Expected %d events, got %d", want, len(events))
	}
	if ev, ok := events[2+2].(types.MobCleared); !ok || ev.Slot != 3 {
		t.Errorf("Expected slot 3 right after slot 1, got %v", events[2+2])
	}
}

func TestScannerServerTimeFailureIsSkipped(t *testing.T) {
	fake, _ := newGameProcess(0)
	fake.putUint64(serverTimeAddr, 0xbad00000)

	events, err := collect(NewScanner(fake, testSigs, 0))
	if err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("Expected only the zone event, got %d", len(events))
	}
}

func TestScannerRunStopsOnUnreadableZone(t *testing.T) {
	fake, _ := newGameProcess(641)
	sigs := SignatureMap{}
	for k, v := range testSigs {
		sigs[k] = v
	}
	sigs[SigZoneID] = 0xbad00000

	out := make(chan types.Event, 16)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := NewScanner(fake, sigs, time.Millisecond).Run(ctx, out)
	if !errors.Is(err, ErrZoneUnreadable) {
		t.Fatalf("Expected ErrZoneUnreadable, got %v", err)
	}
}

func TestScannerRunHonorsCancel(t *testing.T) {
	fake, _ := newGameProcess(0)
	out := make(chan types.Event)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- NewScanner(fake, testSigs, time.Millisecond).Run(ctx, out) }()

	<-out
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
