package chat

import (
	"testing"
	"time"

	"github.com/companionchat/backend/internal/models"
)

// reverseRoller shuffles deterministically by reversing the slice.
type reverseRoller struct{}

func (reverseRoller) Percent() float64 { return 50 }
func (reverseRoller) Bool(float64) bool { return false }
func (reverseRoller) Shuffle(n int, swap func(i, j int)) {
	for i, j := 0, n-1; i < j; i, j = i+1, j-1 {
		swap(i, j)
	}
}
func (reverseRoller) Jitter(time.Duration) time.Duration { return 0 }

func member(id string) models.Companion {
	return models.Companion{ID: id, Name: "bot-" + id}
}

func TestSelectCandidatesBounded(t *testing.T) {
	members := []models.Companion{member("a"), member("b"), member("c"), member("d"), member("e")}

	got := SelectCandidates(members, "", reverseRoller{})
	if len(got) != MaxResponders {
		t.Fatalf("selected %d candidates, want %d", len(got), MaxResponders)
	}
}

func TestSelectCandidatesMentionReserved(t *testing.T) {
	members := []models.Companion{member("a"), member("b"), member("c"), member("d"), member("e")}

	// With the reversing shuffle, "e" would normally come first; a mention
	// of "a" must survive regardless.
	got := SelectCandidates(members, "a", reverseRoller{})
	if len(got) != MaxResponders {
		t.Fatalf("selected %d candidates, want %d", len(got), MaxResponders)
	}
	if got[0].ID != "a" {
		t.Fatalf("mentioned companion not in first slot: got %q", got[0].ID)
	}
	for _, c := range got[1:] {
		if c.ID == "a" {
			t.Fatal("mentioned companion duplicated in candidate set")
		}
	}
}

func TestSelectCandidatesUnknownMention(t *testing.T) {
	members := []models.Companion{member("a"), member("b")}

	// A mention of a non-member is ignored rather than reserved.
	got := SelectCandidates(members, "zz", reverseRoller{})
	if len(got) != 2 {
		t.Fatalf("selected %d candidates, want 2", len(got))
	}
	for _, c := range got {
		if c.ID == "zz" {
			t.Fatal("non-member mention selected")
		}
	}
}

func TestSelectCandidatesSmallGroup(t *testing.T) {
	members := []models.Companion{member("a")}

	got := SelectCandidates(members, "", reverseRoller{})
	if len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("unexpected candidates: %+v", got)
	}

	if got := SelectCandidates(nil, "", reverseRoller{}); len(got) != 0 {
		t.Fatalf("expected no candidates for empty group, got %d", len(got))
	}
}
