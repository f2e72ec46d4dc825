package models

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func assertLedgerConsistent(t *testing.T, issue *Issue) {
	t.Helper()
	up, down := CountVotes(issue.UserVotes)
	assert.Equal(t, up, issue.Upvotes, "upvotes must match ledger")
	assert.Equal(t, down, issue.Downvotes, "downvotes must match ledger")
}

func TestToggleVote(t *testing.T) {
	tests := []struct {
		current, requested, want VoteType
	}{
		{"", VoteUp, VoteUp},
		{"", VoteDown, VoteDown},
		{VoteUp, VoteUp, ""},
		{VoteDown, VoteDown, ""},
		{VoteUp, VoteDown, VoteDown},
		{VoteDown, VoteUp, VoteUp},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q->%q", tt.current, tt.requested), func(t *testing.T) {
			assert.Equal(t, tt.want, ToggleVote(tt.current, tt.requested))
		})
	}
}

func TestApplyVote_UpThenUpRetracts(t *testing.T) {
	issue := &Issue{}
	issue.ApplyVote("u1", VoteUp)
	assert.Equal(t, 1, issue.Upvotes)
	assert.Equal(t, VoteUp, issue.UserVotes["u1"])

	issue.ApplyVote("u1", VoteUp)
	assert.Equal(t, 0, issue.Upvotes)
	assert.NotContains(t, issue.UserVotes, "u1")
	assertLedgerConsistent(t, issue)
}

func TestApplyVote_Switch(t *testing.T) {
	issue := &Issue{UserVotes: map[string]VoteType{}}
	issue.ApplyVote("u1", VoteUp)
	issue.ApplyVote("u1", VoteDown)

	assert.Equal(t, 0, issue.Upvotes)
	assert.Equal(t, 1, issue.Downvotes)
	assert.Equal(t, VoteDown, issue.UserVotes["u1"])
	assertLedgerConsistent(t, issue)
}

func TestApplyVote_RandomSequencesKeepInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	users := []string{"a", "b", "c", "d", "e"}
	issue := &Issue{}

	for i := 0; i < 2000; i++ {
		v := VoteUp
		if rng.Intn(2) == 0 {
			v = VoteDown
		}
		issue.ApplyVote(users[rng.Intn(len(users))], v)
		assertLedgerConsistent(t, issue)
		assert.GreaterOrEqual(t, issue.Upvotes, 0)
		assert.GreaterOrEqual(t, issue.Downvotes, 0)
	}
}

func TestVoteType_Valid(t *testing.T) {
	assert.True(t, VoteUp.Valid())
	assert.True(t, VoteDown.Valid())
	assert.False(t, VoteType("sideways").Valid())
	assert.False(t, VoteType("").Valid())
}
