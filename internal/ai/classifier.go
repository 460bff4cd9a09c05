package ai

import (
	"errors"
	"strconv"
	"strings"
	"unicode"
)

var (
	// ErrUnparseableIndex is returned when the classifier output contains
	// no usable candidate index.
	ErrUnparseableIndex = errors.New("unparseable responder index")
	// ErrIndexOutOfRange is returned when the classifier names a candidate
	// that does not exist. Callers fall back to the first candidate.
	ErrIndexOutOfRange = errors.New("responder index out of range")
)

// ParseResponderIndex extracts a candidate index from free-form classifier
// output and validates it against [0, n). The model is asked for a bare
// integer but may wrap it in prose, so the first integer found wins.
func ParseResponderIndex(content string, n int) (int, error) {
	if n <= 0 {
		return 0, ErrUnparseableIndex
	}

	content = strings.TrimSpace(content)
	idx, err := strconv.Atoi(content)
	if err != nil {
		idx, err = firstInteger(content)
		if err != nil {
			return 0, err
		}
	}

	if idx < 0 || idx >= n {
		return 0, ErrIndexOutOfRange
	}
	return idx, nil
}

// firstInteger finds the first run of digits in s.
func firstInteger(s string) (int, error) {
	start := -1
	for i, r := range s {
		if unicode.IsDigit(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			return strconv.Atoi(s[start:i])
		}
	}
	if start >= 0 {
		return strconv.Atoi(s[start:])
	}
	return 0, ErrUnparseableIndex
}
