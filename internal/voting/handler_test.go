package voting

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ianarundale/lead-from-here/internal/catalog"
	"github.com/ianarundale/lead-from-here/internal/engine"
	"github.com/ianarundale/lead-from-here/internal/protocol"
	"github.com/ianarundale/lead-from-here/internal/registry"
	"github.com/ianarundale/lead-from-here/internal/store"
)

func testDefaults() engine.State {
	return engine.NewState(catalog.Catalog{
		Legend: catalog.Legend{Red: "r", Amber: "a", Green: "g"},
		Scenarios: []catalog.Scenario{
			{Scenario: "one", Prompts: []string{"p1"}},
			{Scenario: "two"},
			{Scenario: "three"},
		},
	})
}

func newTestHandler(t *testing.T) (*Handler, registry.Registry) {
	t.Helper()
	reg := registry.NewMemory()
	return NewHandler(store.NewMemory(testDefaults), reg, zap.NewNop()), reg
}

// connectAndAnnounce runs the connect + CLIENT_CONNECT sequence for one
// connection, discarding the resulting plans.
func connectAndAnnounce(t *testing.T, h *Handler, connectionID, userID string) {
	t.Helper()
	ctx := context.Background()
	_, err := h.Connect(ctx, connectionID)
	require.NoError(t, err)
	_, err = h.HandleMessage(ctx, connectionID,
		[]byte(`{"type":"CLIENT_CONNECT","userId":"`+userID+`"}`))
	require.NoError(t, err)
}

func TestConnect_SendsInitialStateToNewConnectionOnly(t *testing.T) {
	req := require.New(t)
	h, _ := newTestHandler(t)

	plans, err := h.Connect(context.Background(), "connA")
	req.NoError(err)
	req.Len(plans, 1)
	req.Equal(protocol.TypeInitialState, plans[0].Message.Type)
	req.Equal(ScopeOnly, plans[0].Scope)
	req.Equal("connA", plans[0].ConnectionID)
	req.Equal(1, plans[0].Message.Data.ConnectedUsers)
	req.Len(plans[0].Message.Data.Behaviors, 3)
}

func TestClientConnect_AnnouncePlans(t *testing.T) {
	req := require.New(t)
	h, reg := newTestHandler(t)
	ctx := context.Background()

	_, err := h.Connect(ctx, "connA")
	req.NoError(err)

	plans, err := h.HandleMessage(ctx, "connA", []byte(`{"type":"CLIENT_CONNECT","userId":"alice"}`))
	req.NoError(err)
	req.Len(plans, 2)

	req.Equal(protocol.TypeInitialState, plans[0].Message.Type)
	req.Equal(ScopeOnly, plans[0].Scope)
	req.Equal("connA", plans[0].ConnectionID)

	req.Equal(protocol.TypeStateUpdate, plans[1].Message.Type)
	req.Equal(ScopeAllExcept, plans[1].Scope)
	req.Equal("connA", plans[1].ConnectionID)

	entries, err := reg.ListAll(ctx)
	req.NoError(err)
	req.Equal("alice", entries[0].UserID)
}

func TestVote_BroadcastsToEveryoneIncludingSender(t *testing.T) {
	req := require.New(t)
	h, _ := newTestHandler(t)
	ctx := context.Background()

	connectAndAnnounce(t, h, "connA", "alice")
	connectAndAnnounce(t, h, "connB", "bob")
	connectAndAnnounce(t, h, "connC", "carol")

	plans, err := h.HandleMessage(ctx, "connA",
		[]byte(`{"type":"VOTE","behaviorId":2,"vote":"green","userId":"alice"}`))
	req.NoError(err)
	req.Len(plans, 1)
	req.Equal(protocol.TypeStateUpdate, plans[0].Message.Type)
	req.Equal(ScopeAll, plans[0].Scope)

	b := plans[0].Message.Data.Behavior(2)
	req.Equal(1, b.Votes.Green)
	req.Equal(3, plans[0].Message.Data.ConnectedUsers)

	// Re-vote: the prior green moves to red in the next update.
	plans, err = h.HandleMessage(ctx, "connA",
		[]byte(`{"type":"VOTE","behaviorId":2,"vote":"red","userId":"alice"}`))
	req.NoError(err)

	b = plans[0].Message.Data.Behavior(2)
	req.Equal(0, b.Votes.Green)
	req.Equal(1, b.Votes.Red)
	req.Equal(engine.VoteRed, b.UserVotes["alice"])
}

func TestVote_UnknownBehaviorIsSilentlyIgnored(t *testing.T) {
	req := require.New(t)
	h, _ := newTestHandler(t)
	ctx := context.Background()

	connectAndAnnounce(t, h, "connA", "alice")

	plans, err := h.HandleMessage(ctx, "connA",
		[]byte(`{"type":"VOTE","behaviorId":42,"vote":"red","userId":"alice"}`))
	req.NoError(err)
	req.Empty(plans)

	state, err := h.State(ctx)
	req.NoError(err)
	for _, b := range state.Behaviors {
		req.Zero(b.Votes.Total())
	}
}

func TestVote_InvalidColourIsMalformed(t *testing.T) {
	req := require.New(t)
	h, _ := newTestHandler(t)

	_, err := h.HandleMessage(context.Background(), "connA",
		[]byte(`{"type":"VOTE","behaviorId":1,"vote":"purple","userId":"alice"}`))
	req.ErrorIs(err, ErrMalformed)
}

func TestSetBehavior_SyncOn_ExcludesOriginator(t *testing.T) {
	req := require.New(t)
	h, _ := newTestHandler(t)
	ctx := context.Background()

	connectAndAnnounce(t, h, "connA", "alice")
	connectAndAnnounce(t, h, "connB", "bob")

	plans, err := h.HandleMessage(ctx, "connA", []byte(`{"type":"SET_BEHAVIOR","behaviorId":3}`))
	req.NoError(err)
	req.Len(plans, 1)
	req.Equal(protocol.TypeBehaviorChanged, plans[0].Message.Type)
	req.Equal(ScopeAllExcept, plans[0].Scope)
	req.Equal("connA", plans[0].ConnectionID)
	req.Equal(3, plans[0].Message.Data.CurrentBehaviorID)

	state, err := h.State(ctx)
	req.NoError(err)
	req.Equal(3, state.CurrentBehaviorID)
}

func TestSetBehavior_SyncOff_NoBroadcastNoPersist(t *testing.T) {
	req := require.New(t)
	h, _ := newTestHandler(t)
	ctx := context.Background()

	connectAndAnnounce(t, h, "connA", "alice")

	_, err := h.HandleMessage(ctx, "connA", []byte(`{"type":"TOGGLE_SYNC"}`))
	req.NoError(err)

	plans, err := h.HandleMessage(ctx, "connA", []byte(`{"type":"SET_BEHAVIOR","behaviorId":3}`))
	req.NoError(err)
	req.Empty(plans)

	state, err := h.State(ctx)
	req.NoError(err)
	req.Equal(1, state.CurrentBehaviorID)
}

func TestToggleSync_NegatesAndBroadcastsToAll(t *testing.T) {
	req := require.New(t)
	h, _ := newTestHandler(t)
	ctx := context.Background()

	connectAndAnnounce(t, h, "connA", "alice")

	plans, err := h.HandleMessage(ctx, "connA", []byte(`{"type":"TOGGLE_SYNC"}`))
	req.NoError(err)
	req.Len(plans, 1)
	req.Equal(protocol.TypeStateUpdate, plans[0].Message.Type)
	req.Equal(ScopeAll, plans[0].Scope)
	req.False(plans[0].Message.Data.SyncMode)

	plans, err = h.HandleMessage(ctx, "connA", []byte(`{"type":"TOGGLE_SYNC"}`))
	req.NoError(err)
	req.True(plans[0].Message.Data.SyncMode)
}

func TestReset_ClearsVotesKeepsSyncMode(t *testing.T) {
	req := require.New(t)
	h, _ := newTestHandler(t)
	ctx := context.Background()

	connectAndAnnounce(t, h, "connA", "alice")
	_, err := h.HandleMessage(ctx, "connA",
		[]byte(`{"type":"VOTE","behaviorId":1,"vote":"amber","userId":"alice"}`))
	req.NoError(err)
	_, err = h.HandleMessage(ctx, "connA", []byte(`{"type":"TOGGLE_SYNC"}`))
	req.NoError(err)

	plans, err := h.HandleMessage(ctx, "connA", []byte(`{"type":"RESET_VOTES"}`))
	req.NoError(err)
	req.Len(plans, 1)
	req.Equal(protocol.TypeStateUpdate, plans[0].Message.Type)
	req.Equal(ScopeAll, plans[0].Scope)

	data := plans[0].Message.Data
	req.Equal(1, data.CurrentBehaviorID)
	req.False(data.SyncMode)
	for _, b := range data.Behaviors {
		req.Zero(b.Votes.Total())
		req.Empty(b.UserVotes)
	}

	// Second reset yields the same state.
	again, err := h.Reset(ctx)
	req.NoError(err)
	req.Equal(data.State, again[0].Message.Data.State)
}

func TestDisconnect_RefreshesPresenceForRemaining(t *testing.T) {
	req := require.New(t)
	h, _ := newTestHandler(t)
	ctx := context.Background()

	connectAndAnnounce(t, h, "connA", "alice")
	connectAndAnnounce(t, h, "connB", "bob")

	plans, err := h.Disconnect(ctx, "connB")
	req.NoError(err)
	req.Len(plans, 1)
	req.Equal(protocol.TypeStateUpdate, plans[0].Message.Type)
	req.Equal(ScopeAll, plans[0].Scope)
	req.Equal(1, plans[0].Message.Data.ConnectedUsers)
}

func TestHandleMessage_Malformed(t *testing.T) {
	req := require.New(t)
	h, _ := newTestHandler(t)

	_, err := h.HandleMessage(context.Background(), "connA", []byte(`{not json`))
	req.ErrorIs(err, ErrMalformed)

	_, err = h.HandleMessage(context.Background(), "connA", []byte(`{"type":"NO_SUCH_TYPE"}`))
	req.ErrorIs(err, ErrUnknownType)
}

func TestAddBehavior_BroadcastsToAll(t *testing.T) {
	req := require.New(t)
	h, _ := newTestHandler(t)
	ctx := context.Background()

	connectAndAnnounce(t, h, "connA", "alice")

	added, plans, err := h.AddBehavior(ctx, "a brand new dilemma", []string{"why?"})
	req.NoError(err)
	req.Equal(4, added.ID)
	req.Len(plans, 1)
	req.Equal(protocol.TypeBehaviorAdded, plans[0].Message.Type)
	req.Equal(ScopeAll, plans[0].Scope)
	req.Len(plans[0].Message.Data.Behaviors, 4)
}

func TestPlaceholderUserID_CountsUnannouncedConnections(t *testing.T) {
	req := require.New(t)
	h, reg := newTestHandler(t)
	ctx := context.Background()

	_, err := h.Connect(ctx, "aaaaaaaa-1111")
	req.NoError(err)
	_, err = h.Connect(ctx, "bbbbbbbb-2222")
	req.NoError(err)

	n, err := reg.CountDistinctUsers(ctx)
	req.NoError(err)
	req.Equal(2, n)
}
