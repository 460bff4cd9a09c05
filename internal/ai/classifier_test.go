package ai

import (
	"errors"
	"testing"
)

func TestParseResponderIndex(t *testing.T) {
	cases := []struct {
		content string
		n       int
		want    int
		wantErr error
	}{
		{"2", 5, 2, nil},
		{" 1 ", 3, 1, nil},
		{"0", 1, 0, nil},
		{"The best responder is 2.", 5, 2, nil},
		{"Bot #1 should answer", 3, 1, nil},
		{"7", 3, 0, ErrIndexOutOfRange},
		{"-1", 3, 0, ErrIndexOutOfRange},
		{"none of them", 3, 0, ErrUnparseableIndex},
		{"", 3, 0, ErrUnparseableIndex},
		{"1", 0, 0, ErrUnparseableIndex},
	}

	for _, c := range cases {
		got, err := ParseResponderIndex(c.content, c.n)
		if c.wantErr != nil {
			if !errors.Is(err, c.wantErr) {
				t.Errorf("ParseResponderIndex(%q, %d): err = %v, want %v", c.content, c.n, err, c.wantErr)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseResponderIndex(%q, %d): %v", c.content, c.n, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseResponderIndex(%q, %d) = %d, want %d", c.content, c.n, got, c.want)
		}
	}
}
