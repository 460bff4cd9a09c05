package chat

import (
	"testing"
	"time"
)

// fixedRoller always returns the same percent draw.
type fixedRoller struct {
	percent float64
	boolVal bool
}

func (f fixedRoller) Percent() float64                 { return f.percent }
func (f fixedRoller) Bool(float64) bool                { return f.boolVal }
func (f fixedRoller) Shuffle(int, func(i, j int))      {}
func (f fixedRoller) Jitter(time.Duration) time.Duration { return 0 }

func TestRollNextReplyAlwaysLow(t *testing.T) {
	// A draw of 0 is at or below both thresholds: the chain runs to 3.
	r := fixedRoller{percent: 0}

	if !RollNextReply(r, 1) {
		t.Error("expected second reply at draw 0")
	}
	if !RollNextReply(r, 2) {
		t.Error("expected third reply at draw 0")
	}
	if RollNextReply(r, 3) {
		t.Error("chain must stop at 3 replies regardless of draw")
	}
}

func TestRollNextReplyAlwaysHigh(t *testing.T) {
	r := fixedRoller{percent: 99}

	if RollNextReply(r, 1) {
		t.Error("draw of 99 must not trigger a second reply")
	}
	if RollNextReply(r, 2) {
		t.Error("draw of 99 must not trigger a third reply")
	}
}

func TestRollNextReplyThresholdEdges(t *testing.T) {
	if !RollNextReply(fixedRoller{percent: DoubleMessageChance}, 1) {
		t.Error("draw equal to the double threshold triggers the reply")
	}
	if RollNextReply(fixedRoller{percent: DoubleMessageChance + 0.01}, 1) {
		t.Error("draw just above the double threshold must not trigger")
	}
	if !RollNextReply(fixedRoller{percent: TripleMessageChance}, 2) {
		t.Error("draw equal to the triple threshold triggers the reply")
	}
	if RollNextReply(fixedRoller{percent: TripleMessageChance + 0.01}, 2) {
		t.Error("draw just above the triple threshold must not trigger")
	}
}

func TestRollNextReplyZeroProduced(t *testing.T) {
	// The roll only ever follows an existing reply.
	if RollNextReply(fixedRoller{percent: 0}, 0) {
		t.Error("no chained reply before a primary reply exists")
	}
}
