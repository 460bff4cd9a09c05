package chat

// MaxRepliesPerTurn caps a companion's chained replies to one user message.
const MaxRepliesPerTurn = 3

// Chained-reply thresholds: a draw in [0, 100) at or below the threshold
// triggers the next reply.
const (
	DoubleMessageChance = 15
	TripleMessageChance = 5
)

// RollNextReply decides whether another chained reply follows, given how many
// replies this turn has already produced. Only called when the companion has
// multi-message replies enabled.
func RollNextReply(r Roller, produced int) bool {
	switch produced {
	case 1:
		return r.Percent() <= DoubleMessageChance
	case 2:
		return r.Percent() <= TripleMessageChance
	default:
		return false
	}
}
