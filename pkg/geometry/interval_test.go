package geometry

import "testing"

func TestIntervalScale(t *testing.T) {
	tests := []struct {
		iv    Interval
		scale float64
		want  Interval
	}{
		{Interval{40, 100}, 0.5, Interval{20, 50}},
		{Interval{5, 15}, 0.5, Interval{2, 8}},
		{Interval{0, 60}, 2, Interval{0, 120}},
	}
	for _, tt := range tests {
		if got := tt.iv.Scale(tt.scale); got != tt.want {
			t.Errorf("%v.Scale(%g) = %v, want %v", tt.iv, tt.scale, got, tt.want)
		}
	}
}

func TestBox(t *testing.T) {
	b := NewBox([]int{40, 0}, []int{100, 60})
	if b.Size() != 3600 {
		t.Errorf("Size() = %d, want 3600", b.Size())
	}
	if !b.Contains([]int{40, 59}) || b.Contains([]int{100, 0}) {
		t.Error("Contains() should treat the box as half-open")
	}
	inter := b.Intersect(NewBox([]int{0, 0}, []int{60, 60}))
	if !inter.Equal(NewBox([]int{40, 0}, []int{60, 60})) {
		t.Errorf("Intersect() = %v", inter)
	}
	if got := b.Translate([]int{40, 0}).String(); got != "[0:60,0:60]" {
		t.Errorf("Translate() = %s", got)
	}
	full := b.Prepend(Interval{0, 3})
	if full.Rank() != 3 || full[0].Len() != 3 {
		t.Errorf("Prepend() = %v", full)
	}
	if !NewBox([]int{0}, []int{0}).Empty() {
		t.Error("zero-length box should be empty")
	}
}
