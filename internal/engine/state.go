package engine

import (
	"maps"
	"slices"

	"github.com/ianarundale/lead-from-here/internal/catalog"
)

type Vote string

const (
	VoteRed   Vote = "red"
	VoteAmber Vote = "amber"
	VoteGreen Vote = "green"
)

// ParseVote validates a wire-level vote string.
func ParseVote(s string) (Vote, bool) {
	switch Vote(s) {
	case VoteRed, VoteAmber, VoteGreen:
		return Vote(s), true
	default:
		return "", false
	}
}

type VoteCounts struct {
	Red   int `json:"red"`
	Amber int `json:"amber"`
	Green int `json:"green"`
}

func (c *VoteCounts) add(v Vote, delta int) {
	switch v {
	case VoteRed:
		c.Red += delta
	case VoteAmber:
		c.Amber += delta
	case VoteGreen:
		c.Green += delta
	}
}

func (c VoteCounts) Total() int { return c.Red + c.Amber + c.Green }

// Behavior is one votable scenario with its running tally. Invariant:
// Votes.Total() == len(UserVotes), and each UserVotes entry is counted in
// exactly one counter.
type Behavior struct {
	ID        int             `json:"id"`
	Scenario  string          `json:"scenario"`
	Prompts   []string        `json:"prompts"`
	Votes     VoteCounts      `json:"votes"`
	UserVotes map[string]Vote `json:"userVotes"`
}

// State is the canonical voting aggregate. Always read and written whole;
// mutations go through the Apply* functions, which operate on a deep copy.
type State struct {
	CurrentBehaviorID int            `json:"currentBehaviorId"`
	SyncMode          bool           `json:"syncMode"`
	Legend            catalog.Legend `json:"legend"`
	Behaviors         []Behavior     `json:"behaviors"`
}

// NewState builds the default aggregate from the catalog: ids are catalog
// index + 1, first scenario pinned, sync on, no votes.
func NewState(c catalog.Catalog) State {
	behaviors := make([]Behavior, len(c.Scenarios))
	for i, sc := range c.Scenarios {
		behaviors[i] = Behavior{
			ID:        i + 1,
			Scenario:  sc.Scenario,
			Prompts:   slices.Clone(sc.Prompts),
			UserVotes: map[string]Vote{},
		}
	}
	return State{
		CurrentBehaviorID: 1,
		SyncMode:          true,
		Legend:            c.Legend,
		Behaviors:         behaviors,
	}
}

// Clone deep-copies the aggregate so callers never share UserVotes maps with
// a stored snapshot.
func (s State) Clone() State {
	out := s
	out.Behaviors = make([]Behavior, len(s.Behaviors))
	for i, b := range s.Behaviors {
		nb := b
		nb.Prompts = slices.Clone(b.Prompts)
		nb.UserVotes = maps.Clone(b.UserVotes)
		if nb.UserVotes == nil {
			nb.UserVotes = map[string]Vote{}
		}
		out.Behaviors[i] = nb
	}
	return out
}

// Behavior returns a pointer into s.Behaviors for the given id, or nil if no
// behavior has that id.
func (s *State) Behavior(id int) *Behavior {
	for i := range s.Behaviors {
		if s.Behaviors[i].ID == id {
			return &s.Behaviors[i]
		}
	}
	return nil
}
