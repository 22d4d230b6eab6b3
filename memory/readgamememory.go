package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/apex/log"

	"XivSync/types"
)

// ErrZoneUnreadable stops the scan loop: the process is gone or has moved
// its structures, so the resolved signatures are stale.
var ErrZoneUnreadable = errors.New("zone id unreadable")

// DefaultScanInterval is the polling period of the scan loop.
const DefaultScanInterval = 10 * time.Millisecond

// Scanner polls the game's memory and turns it into events.
type Scanner struct {
	mem      Reader
	sigs     SignatureMap
	interval time.Duration

	// identities is the pointer each slot held on the last tick.
	identities [types.MobSlots]types.Identity
	ticks      uint64
}

func NewScanner(mem Reader, sigs SignatureMap, interval time.Duration) *Scanner {
	if interval <= 0 {
		interval = DefaultScanInterval
	}
	return &Scanner{mem: mem, sigs: sigs, interval: interval}
}

// Run ticks until ctx is cancelled, the consumer stops taking events, or the
// zone id becomes unreadable.
func (s *Scanner) Run(ctx context.Context, out chan<- types.Event) error {
	emit := func(ev types.Event) error {
		select {
		case out <- ev:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if err := s.Tick(emit); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick performs one scan and hands every event to emit in order. An error
// from emit ends the tick and is returned as is.
func (s *Scanner) Tick(emit func(types.Event) error) error {
	s.ticks++

	if serverTime, err := ReadServerTime(s.mem, s.sigs); err == nil {
		if err := emit(types.ServerTimeChanged{Time: serverTime}); err != nil {
			return err
		}
	} else {
		log.WithError(err).Debug("Server time not readable this tick")
	}

	zone, err := ReadZoneID(s.mem, s.sigs)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrZoneUnreadable, err)
	}
	if err := emit(types.ZoneChanged{Zone: zone}); err != nil {
		return err
	}
	if !IsInGame(zone) {
		return nil
	}

	if err := s.scanMobs(emit); err != nil {
		return err
	}

	target, err := ReadTarget(s.mem, s.sigs, &s.identities)
	if err != nil {
		log.WithError(err).Debug("Target not readable this tick")
		return nil
	}
	return emit(types.TargetsChanged{Targets: target})
}

func (s *Scanner) scanMobs(emit func(types.Event) error) error {
	table, err := ReadMobTable(s.mem, s.sigs)
	if err != nil {
		log.WithError(err).Debug("Mob array not readable this tick")
		return nil
	}

	for i, mobPtr := range table {
		slot := uint16(i)
		if mobPtr.IsZero() {
			s.identities[i] = 0
			if err := emit(types.MobCleared{Slot: slot}); err != nil {
				return err
			}
			continue
		}

		combatant, err := ReadMob(s.mem, mobPtr)
		if err != nil {
			log.WithError(err).Debugf("Skipping mob slot %d this tick", i)
			continue
		}
		payload, err := types.EncodeWire(&combatant)
		if err != nil {
			log.WithError(err).Warnf("Failed to encode mob slot %d", i)
			continue
		}

		if prev := s.identities[i]; prev != mobPtr {
			log.Debugf("Mob slot %d now holds %s (%q), was %s", i, mobPtr, combatant.DisplayName(), prev)
		}
		s.identities[i] = mobPtr

		if err := emit(types.MobUpsert{Slot: slot, Identity: mobPtr, Payload: payload}); err != nil {
			return err
		}
	}
	return nil
}

// Ticks returns how many scans have run.
func (s *Scanner) Ticks() uint64 {
	return s.ticks
}
