package economy

import "testing"

func TestLevelBoundaries(t *testing.T) {
	cases := []struct {
		totalSpent int
		want       int
	}{
		{0, 0},
		{159, 0},
		{160, 1},
		{161, 1},
		{319, 1},
		{320, 2},
		{1600, 10},
		{-5, 0},
	}

	for _, c := range cases {
		if got := Level(c.totalSpent); got != c.want {
			t.Errorf("Level(%d) = %d, want %d", c.totalSpent, got, c.want)
		}
	}
}

func TestLevelMonotonic(t *testing.T) {
	prev := 0
	for spent := 0; spent <= 2000; spent++ {
		level := Level(spent)
		if level < prev {
			t.Fatalf("level decreased at totalSpent=%d: %d -> %d", spent, prev, level)
		}
		prev = level
	}
}

func TestLevelDebitCrossesThreshold(t *testing.T) {
	// User at 159 lifetime spend is level 0; one 1-XP debit makes level 1.
	if Level(159) != 0 {
		t.Fatalf("expected level 0 at 159, got %d", Level(159))
	}
	if Level(160) != 1 {
		t.Fatalf("expected level 1 at 160, got %d", Level(160))
	}
}

func TestThresholdForLevel(t *testing.T) {
	if got := ThresholdForLevel(0); got != 0 {
		t.Errorf("ThresholdForLevel(0) = %d, want 0", got)
	}
	if got := ThresholdForLevel(3); got != 480 {
		t.Errorf("ThresholdForLevel(3) = %d, want 480", got)
	}
	// Threshold and Level agree at every boundary.
	for level := 0; level < 20; level++ {
		if Level(ThresholdForLevel(level)) != level {
			t.Fatalf("Level(ThresholdForLevel(%d)) != %d", level, level)
		}
	}
}

func TestProgressToNextLevel(t *testing.T) {
	into, needed := ProgressToNextLevel(170)
	if into != 10 || needed != 150 {
		t.Errorf("ProgressToNextLevel(170) = (%d, %d), want (10, 150)", into, needed)
	}
}
