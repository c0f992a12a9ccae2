package post

import (
	"math"
	"strconv"
	"strings"
)

// ParseVoteLabel converts a vote label to a count. Plain integers are taken
// as is and "1.2k" style labels are multiplied out. Anything else, including
// the empty label shown on posts younger than an hour, is UnknownVotes.
func ParseVoteLabel(label string) int {
	label = strings.TrimSpace(label)
	if n, err := strconv.Atoi(label); err == nil {
		return n
	}

	before, _, found := strings.Cut(label, "k")
	if !found {
		return UnknownVotes
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(before), 64)
	if err != nil || f < 0 {
		return UnknownVotes
	}
	// nudge past binary representation error so 4.35k is 4350, not 4349
	return int(math.Floor(f*1000 + 1e-6))
}

// ParseCommentLabel converts an "N Comments" label to N. A bare "Comments"
// label means zero.
func ParseCommentLabel(label string) (int, error) {
	count := strings.TrimSpace(strings.ReplaceAll(label, "Comments", ""))
	if count == "" {
		return 0, nil
	}
	return strconv.Atoi(count)
}
