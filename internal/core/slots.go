package core

import "context"

// LowestFreeSlot returns the smallest integer in [0, maxSlots) not present in
// bound. The lowest-first policy favors reusing freed slots over growing the
// allocation frontier, because sensor memory is slot-indexed and finite.
func LowestFreeSlot(bound []int, maxSlots int) (int, bool) {
	occupied := make(map[int]struct{}, len(bound))
	for _, s := range bound {
		occupied[s] = struct{}{}
	}

	for slot := 0; slot < maxSlots; slot++ {
		if _, taken := occupied[slot]; !taken {
			return slot, true
		}
	}
	return 0, false
}

// NextAvailableSlot picks the lowest unused template slot on a device.
// Returns ErrDeviceFull when capacity is exhausted; a recoverable, user-facing
// condition rather than a crash.
func (s *AccessService) NextAvailableSlot(ctx context.Context, deviceID string) (int, error) {
	bound, err := s.repo.BoundSlots(ctx, deviceID)
	if err != nil {
		return 0, err
	}

	slot, ok := LowestFreeSlot(bound, s.maxSlots)
	if !ok {
		return 0, ErrDeviceFull
	}
	return slot, nil
}
