package chat

import (
	"github.com/companionchat/backend/internal/models"
)

// MaxResponders bounds how many companions reply to one group message.
const MaxResponders = 3

// FollowUpChance is each non-main candidate's probability of replying.
const FollowUpChance = 0.5

// SelectCandidates picks the ordered candidate set for a group message. A
// mentioned companion is reserved in the first slot and never excluded by
// randomness; the remaining slots are a shuffled prefix of the other members.
func SelectCandidates(members []models.Companion, mentionedID string, r Roller) []models.Companion {
	candidates := make([]models.Companion, 0, MaxResponders)

	if mentionedID != "" {
		for _, m := range members {
			if m.ID == mentionedID {
				candidates = append(candidates, m)
				break
			}
		}
	}

	rest := make([]models.Companion, 0, len(members))
	for _, m := range members {
		if len(candidates) > 0 && m.ID == candidates[0].ID {
			continue
		}
		rest = append(rest, m)
	}

	r.Shuffle(len(rest), func(i, j int) {
		rest[i], rest[j] = rest[j], rest[i]
	})

	for _, m := range rest {
		if len(candidates) == MaxResponders {
			break
		}
		candidates = append(candidates, m)
	}

	return candidates
}
