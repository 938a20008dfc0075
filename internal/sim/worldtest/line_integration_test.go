package worldtest

import (
	"testing"
)

// subtractLine feeds a vertical SUBTRACT unit at (5,5): A=(5,4) gets a,
// B=(5,6) gets b, and the output leaves to the right.
func subtractLine(h *Harness, a, b int64) {
	h.MustDo(
		Operator(5, 5, "SUBTRACT", "VERTICAL"),
		Extractor(3, 4, a),
		Belt(4, 4, "RIGHT"),
		Extractor(3, 6, b),
		Belt(4, 6, "RIGHT"),
		Belt(6, 5, "RIGHT"),
		Belt(7, 5, "RIGHT"),
		Consumer(8, 5),
	)
}

func TestLine_VerticalSubtractKeepsOperandOrder(t *testing.T) {
	h := NewHarness(t, testConfig())
	subtractLine(h, 10, 3)

	got := h.StepN(20 * 10)
	if len(got) < 3 {
		t.Fatalf("deliveries=%v", values(got))
	}
	for _, d := range got {
		if d.Value != 7 || d.Pos != [2]int{8, 5} {
			t.Fatalf("delivery=%+v, want 7 at (8,5)", d)
		}
	}
}

func TestLine_SameCommandsSameDigests(t *testing.T) {
	h1 := NewHarness(t, testConfig())
	h2 := NewHarness(t, testConfig())
	subtractLine(h1, 9, 2)
	subtractLine(h2, 9, 2)
	h1.StepN(150)
	h2.StepN(150)

	if len(h1.Ticks) != len(h2.Ticks) {
		t.Fatalf("tick count %d vs %d", len(h1.Ticks), len(h2.Ticks))
	}
	for i := range h1.Ticks {
		if h1.Ticks[i].Digest != h2.Ticks[i].Digest {
			t.Fatalf("tick %d: digest %s vs %s", h1.Ticks[i].Tick, h1.Ticks[i].Digest, h2.Ticks[i].Digest)
		}
	}
}

func TestLine_SnapshotResumeMatchesContinuousRun(t *testing.T) {
	h := NewHarness(t, testConfig())
	subtractLine(h, 10, 3)
	// Stop at an odd tick so belt transfers are mid-flight.
	h.StepN(37)

	r := h.Resume(t.TempDir(), testConfig())
	if r.W.CurrentTick() != h.W.CurrentTick() {
		t.Fatalf("resumed tick=%d want %d", r.W.CurrentTick(), h.W.CurrentTick())
	}

	start := len(h.Ticks)
	want := h.StepN(120)
	got := r.StepN(120)
	for i, e := range r.Ticks {
		if e.Digest != h.Ticks[start+i].Digest {
			t.Fatalf("tick %d: resumed digest diverged", e.Tick)
		}
	}
	if len(got) != len(want) {
		t.Fatalf("deliveries %v vs %v", values(got), values(want))
	}
}

func TestLine_RemovingFeedStopsDeliveries(t *testing.T) {
	h := NewHarness(t, testConfig())
	subtractLine(h, 10, 3)
	if got := h.StepN(20 * 5); len(got) == 0 {
		t.Fatalf("no deliveries before removal")
	}

	h.MustDo(Remove(3, 6))
	h.StepN(20 * 5)
	if got := h.StepN(20 * 5); len(got) != 0 {
		t.Fatalf("deliveries after starving input B: %v", values(got))
	}
}
