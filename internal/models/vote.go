package models

// VoteType is the direction of a vote.
type VoteType string

const (
	VoteUp   VoteType = "up"
	VoteDown VoteType = "down"
)

// Valid reports whether v is up or down.
func (v VoteType) Valid() bool {
	return v == VoteUp || v == VoteDown
}

// ToggleVote returns the ledger entry that results from a user with vote
// current casting requested. An empty result means the vote was retracted.
func ToggleVote(current, requested VoteType) VoteType {
	if current == requested {
		return ""
	}
	return requested
}

// ApplyVote records userID casting t on the issue. Casting the same direction
// twice retracts the vote; casting the other direction switches it. Upvotes
// and Downvotes always match the ledger afterwards.
func (i *Issue) ApplyVote(userID string, t VoteType) {
	if i.UserVotes == nil {
		i.UserVotes = map[string]VoteType{}
	}
	current, had := i.UserVotes[userID]
	if had {
		i.adjust(current, -1)
	}
	next := ToggleVote(current, t)
	if next == "" {
		delete(i.UserVotes, userID)
		return
	}
	i.UserVotes[userID] = next
	i.adjust(next, 1)
}

func (i *Issue) adjust(v VoteType, delta int) {
	switch v {
	case VoteUp:
		i.Upvotes += delta
	case VoteDown:
		i.Downvotes += delta
	}
}

// CountVotes recomputes the counters from the ledger.
func CountVotes(ledger map[string]VoteType) (up, down int) {
	for _, v := range ledger {
		switch v {
		case VoteUp:
			up++
		case VoteDown:
			down++
		}
	}
	return up, down
}
