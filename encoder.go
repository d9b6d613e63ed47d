package main

import "sync"

// encoderCenter is the value a relative control starts from.
const encoderCenter = 64

type encoderKey struct {
	channel, control uint8
}

// EncoderStore holds the accumulated value of every relative control seen so
// far. All updates for a control go through one lock so deltas are applied in
// the order Apply is called.
type EncoderStore struct {
	mu     sync.Mutex
	values map[encoderKey]uint8
}

func NewEncoderStore() *EncoderStore {
	return &EncoderStore{values: make(map[encoderKey]uint8)}
}

// Apply adds delta to the control's stored value, clamps the result to 0-127,
// stores it and returns it. A control seen for the first time starts at 64.
func (s *EncoderStore) Apply(channel, control uint8, delta int) uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := encoderKey{channel, control}
	cur, ok := s.values[k]
	if !ok {
		cur = encoderCenter
	}
	next := clampInt(int(cur)+delta, 0, 127)
	s.values[k] = uint8(next)
	return uint8(next)
}

// Value reports the stored value of a control and whether it has been used.
func (s *EncoderStore) Value(channel, control uint8) (uint8, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[encoderKey{channel, control}]
	return v, ok
}

// Len is the number of controls with stored state.
func (s *EncoderStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.values)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
