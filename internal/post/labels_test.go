package post

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVoteLabel(t *testing.T) {
	tests := []struct {
		label string
		want  int
	}{
		{"870", 870},
		{" 35 ", 35},
		{"0", 0},
		{"1.2k", 1200},
		{"15k", 15000},
		{"4.35k", 4350},
		{"1.1k", 1100},
		{"", UnknownVotes},
		{"vote", UnknownVotes},
		{"k", UnknownVotes},
		{"abck", UnknownVotes},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseVoteLabel(tt.label))
		})
	}
}

func TestParseCommentLabel(t *testing.T) {
	n, err := ParseCommentLabel("12 Comments")
	require.NoError(t, err)
	assert.Equal(t, 12, n)

	n, err = ParseCommentLabel("Comments")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = ParseCommentLabel("")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = ParseCommentLabel("1.2k Comments")
	assert.Error(t, err)
}
