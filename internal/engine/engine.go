package engine

import "slices"

// ApplyVote records userID's vote on the given behavior. A prior vote by the
// same user on the same behavior is decremented first, so a user contributes
// to at most one counter per behavior. Returns false when behaviorID matches
// nothing, in which case the input state is returned untouched (stale clients
// are tolerated, not punished).
func ApplyVote(s State, behaviorID int, userID string, vote Vote) (State, bool) {
	next := s.Clone()
	b := next.Behavior(behaviorID)
	if b == nil {
		return s, false
	}

	if prev, ok := b.UserVotes[userID]; ok {
		b.Votes.add(prev, -1)
	}
	b.UserVotes[userID] = vote
	b.Votes.add(vote, +1)
	return next, true
}

// ApplySetBehavior moves the pinned scenario. Whether the result is persisted
// or broadcast is the caller's decision (it depends on SyncMode).
func ApplySetBehavior(s State, behaviorID int) State {
	next := s.Clone()
	next.CurrentBehaviorID = behaviorID
	return next
}

// ApplyToggleSync flips between synchronized and independent navigation.
func ApplyToggleSync(s State) State {
	next := s.Clone()
	next.SyncMode = !next.SyncMode
	return next
}

// ApplyReset zeroes every tally, clears every user's recorded votes and
// re-pins the first scenario. SyncMode survives a reset. Idempotent.
func ApplyReset(s State) State {
	next := s.Clone()
	for i := range next.Behaviors {
		next.Behaviors[i].Votes = VoteCounts{}
		next.Behaviors[i].UserVotes = map[string]Vote{}
	}
	if len(next.Behaviors) > 0 {
		next.CurrentBehaviorID = next.Behaviors[0].ID
	}
	return next
}

// ApplyAddBehavior appends a new behavior with the next free id and an empty
// tally. Ids are never reused, so max+1 rather than len+1.
func ApplyAddBehavior(s State, scenario string, prompts []string) (State, Behavior) {
	next := s.Clone()
	maxID := 0
	for _, b := range next.Behaviors {
		maxID = max(maxID, b.ID)
	}
	nb := Behavior{
		ID:        maxID + 1,
		Scenario:  scenario,
		Prompts:   slices.Clone(prompts),
		UserVotes: map[string]Vote{},
	}
	next.Behaviors = append(next.Behaviors, nb)
	return next, nb
}
