package savings

import "testing"

func TestSegmentClock(t *testing.T) {
	clock := SegmentClock{Start: 1_000, SegmentLength: 600, DepositCount: 3, WaitingRound: 300}

	tests := []struct {
		now       uint64
		segment   uint64
		completed bool
	}{
		{now: 0, segment: 0},
		{now: 1_000, segment: 0},
		{now: 1_599, segment: 0},
		{now: 1_600, segment: 1},
		{now: 2_199, segment: 1},
		{now: 2_200, segment: 2},
		{now: 2_800, segment: 3},
		{now: 3_099, segment: 3},
		{now: 3_100, segment: 3, completed: true},
		{now: 90_000, segment: 3, completed: true},
	}
	for _, tc := range tests {
		if got := clock.CurrentSegment(tc.now); got != tc.segment {
			t.Fatalf("segment at %d: expected %d, got %d", tc.now, tc.segment, got)
		}
		if got := clock.IsCompleted(tc.now); got != tc.completed {
			t.Fatalf("completed at %d: expected %v, got %v", tc.now, tc.completed, got)
		}
	}
	if clock.LastDepositSegment() != 2 {
		t.Fatalf("unexpected last deposit segment %d", clock.LastDepositSegment())
	}
	if clock.CompletesAt() != 3_100 {
		t.Fatalf("unexpected completion time %d", clock.CompletesAt())
	}
}

func TestSegmentClockMonotonic(t *testing.T) {
	clock := SegmentClock{Start: 50, SegmentLength: 7, DepositCount: 5}
	var prev uint64
	completedSeen := false
	for now := uint64(0); now < 200; now++ {
		seg := clock.CurrentSegment(now)
		if seg < prev {
			t.Fatalf("segment decreased at %d: %d -> %d", now, prev, seg)
		}
		done := clock.IsCompleted(now)
		if completedSeen && !done {
			t.Fatalf("completion flipped back at %d", now)
		}
		if done && seg <= clock.LastDepositSegment() {
			t.Fatalf("completed during deposit segment %d", seg)
		}
		completedSeen = done
		prev = seg
	}
	if !completedSeen {
		t.Fatalf("expected the game to complete")
	}
}
