package main

import "testing"

func TestEncoderStoreApply(t *testing.T) {
	s := NewEncoderStore()
	if _, ok := s.Value(0, 1); ok {
		t.Fatal("fresh store reports a value")
	}

	steps := []struct {
		delta int
		want  uint8
	}{
		{0, 64},
		{5, 69},
		{-3, 66},
		{100, 127},
		{-127, 0},
		{-1, 0},
		{64, 64},
	}
	for i, st := range steps {
		if got := s.Apply(0, 1, st.delta); got != st.want {
			t.Fatalf("step %d Apply(%d) = %d, want %d", i, st.delta, got, st.want)
		}
	}
	if v, ok := s.Value(0, 1); !ok || v != 64 {
		t.Errorf("Value() = %d, %t; want 64, true", v, ok)
	}
}

func TestEncoderStoreIsolation(t *testing.T) {
	a, b := NewEncoderStore(), NewEncoderStore()
	a.Apply(0, 1, 10)
	if _, ok := b.Value(0, 1); ok {
		t.Error("state leaked between stores")
	}
	a.Apply(1, 1, -10)
	if v, _ := a.Value(0, 1); v != 74 {
		t.Errorf("channel 0 value = %d, want 74", v)
	}
	if v, _ := a.Value(1, 1); v != 54 {
		t.Errorf("channel 1 value = %d, want 54", v)
	}
	if a.Len() != 2 {
		t.Errorf("Len() = %d, want 2", a.Len())
	}
}
