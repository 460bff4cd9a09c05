package economy

// XPPerLevel is the lifetime spend required per level.
const XPPerLevel = 160

// Level derives a user's level from lifetime spend. Pure and monotonically
// non-decreasing; recomputed on demand rather than stored, so it can never
// drift from the counter it is defined against.
func Level(totalSpent int) int {
	if totalSpent < 0 {
		return 0
	}
	return totalSpent / XPPerLevel
}

// ThresholdForLevel returns the lifetime spend at which a level is reached.
func ThresholdForLevel(level int) int {
	if level < 0 {
		return 0
	}
	return level * XPPerLevel
}

// ProgressToNextLevel returns the XP spent into the current level and the
// XP still needed for the next one.
func ProgressToNextLevel(totalSpent int) (into, needed int) {
	if totalSpent < 0 {
		totalSpent = 0
	}
	into = totalSpent % XPPerLevel
	return into, XPPerLevel - into
}
