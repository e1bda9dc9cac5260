package savings

// SegmentClock maps wall-clock seconds onto game segments. Segments
// [0, DepositCount) accept payments; segment DepositCount is the waiting
// round, after which the game completes.
type SegmentClock struct {
	Start         uint64
	SegmentLength uint64
	DepositCount  uint64
	WaitingRound  uint64
}

// CurrentSegment returns the segment active at now, clamped to
// [0, DepositCount].
func (c SegmentClock) CurrentSegment(now uint64) uint64 {
	if c.SegmentLength == 0 || now <= c.Start {
		return 0
	}
	segment := (now - c.Start) / c.SegmentLength
	if segment > c.DepositCount {
		return c.DepositCount
	}
	return segment
}

// LastDepositSegment is the final segment that accepts a payment.
func (c SegmentClock) LastDepositSegment() uint64 {
	if c.DepositCount == 0 {
		return 0
	}
	return c.DepositCount - 1
}

// SegmentStart returns the first second of segment s.
func (c SegmentClock) SegmentStart(s uint64) uint64 {
	return c.Start + s*c.SegmentLength
}

// CompletesAt returns the first second at which the game is complete.
func (c SegmentClock) CompletesAt() uint64 {
	return c.SegmentStart(c.DepositCount) + c.WaitingRound
}

// IsCompleted reports whether the waiting round has elapsed.
func (c SegmentClock) IsCompleted(now uint64) bool {
	return now >= c.CompletesAt()
}
