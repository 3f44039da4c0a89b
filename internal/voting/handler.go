// Package voting is the protocol handler: it owns the load-mutate-save cycle
// over the stored aggregate and decides, per operation, which connections
// receive which outbound message. It performs no delivery itself; the
// transport executes the returned broadcast plans.
package voting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/ianarundale/lead-from-here/internal/engine"
	"github.com/ianarundale/lead-from-here/internal/protocol"
	"github.com/ianarundale/lead-from-here/internal/registry"
	"github.com/ianarundale/lead-from-here/internal/store"
)

// ErrMalformed reports a frame that does not parse as a client envelope.
// It affects only the offending message.
var ErrMalformed = errors.New("malformed message")

// ErrUnknownType reports a parseable envelope with an unrecognized type.
var ErrUnknownType = errors.New("unknown message type")

type Scope int

const (
	// ScopeAll delivers to every registered connection.
	ScopeAll Scope = iota
	// ScopeAllExcept delivers to everyone but ConnectionID (the originator).
	ScopeAllExcept
	// ScopeOnly delivers to ConnectionID alone.
	ScopeOnly
)

// Broadcast is one outbound delivery decided by an operation.
type Broadcast struct {
	Message      protocol.ServerMessage
	Scope        Scope
	ConnectionID string
}

type operation func(ctx context.Context, connectionID string, msg protocol.ClientMessage) ([]Broadcast, error)

// Handler applies client messages to the voting state. It is safe for
// concurrent use: every mutation runs one full load-mutate-save cycle under
// mu, so concurrent votes are serialized rather than clobbering each other's
// snapshots.
type Handler struct {
	store    store.Store
	registry registry.Registry
	log      *zap.Logger
	dispatch map[string]operation

	mu sync.Mutex
}

func NewHandler(st store.Store, reg registry.Registry, log *zap.Logger) *Handler {
	h := &Handler{store: st, registry: reg, log: log}
	h.dispatch = map[string]operation{
		protocol.TypeClientConnect: h.clientConnect,
		protocol.TypeVote:          h.vote,
		protocol.TypeSetBehavior:   h.setBehavior,
		protocol.TypeToggleSync:    h.toggleSync,
		protocol.TypeResetVotes:    h.resetVotes,
	}
	return h
}

// HandleMessage parses one inbound frame and dispatches it.
func (h *Handler) HandleMessage(ctx context.Context, connectionID string, raw []byte) ([]Broadcast, error) {
	var msg protocol.ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	op, ok := h.dispatch[msg.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, msg.Type)
	}
	return op(ctx, connectionID, msg)
}

// Connect registers a new connection under a placeholder identity derived
// from its id and returns the initial-state push for that connection. The
// placeholder holds the presence count together until CLIENT_CONNECT arrives.
func (h *Handler) Connect(ctx context.Context, connectionID string) ([]Broadcast, error) {
	if err := h.registry.Register(ctx, connectionID, placeholderUserID(connectionID)); err != nil {
		return nil, err
	}
	payload, err := h.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return []Broadcast{{
		Message:      protocol.ServerMessage{Type: protocol.TypeInitialState, Data: payload},
		Scope:        ScopeOnly,
		ConnectionID: connectionID,
	}}, nil
}

// Disconnect removes the connection and refreshes the presence count for
// everyone still connected.
func (h *Handler) Disconnect(ctx context.Context, connectionID string) ([]Broadcast, error) {
	if err := h.registry.Unregister(ctx, connectionID); err != nil {
		return nil, err
	}
	payload, err := h.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return []Broadcast{{
		Message: protocol.ServerMessage{Type: protocol.TypeStateUpdate, Data: payload},
		Scope:   ScopeAll,
	}}, nil
}

// Evict is Disconnect for connections discovered dead during delivery. The
// failed send is evidence the remote end is gone; the entry is dropped and
// the failure never escalates to the operation that triggered the broadcast.
func (h *Handler) Evict(ctx context.Context, connectionID string) {
	if err := h.registry.Unregister(ctx, connectionID); err != nil {
		h.log.Warn("failed to evict stale connection",
			zap.String("connection_id", connectionID), zap.Error(err))
	}
}

// Reset restores the default tallies and notifies every connection. Also the
// GET /reset entry point; idempotent.
func (h *Handler) Reset(ctx context.Context) ([]Broadcast, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	state, err := h.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	state = engine.ApplyReset(state)
	if err := h.store.Save(ctx, state); err != nil {
		return nil, err
	}
	return h.broadcastAll(ctx, protocol.TypeStateUpdate, state)
}

// AddBehavior appends a new votable scenario and announces it to every
// connection.
func (h *Handler) AddBehavior(ctx context.Context, scenario string, prompts []string) (engine.Behavior, []Broadcast, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	state, err := h.store.Load(ctx)
	if err != nil {
		return engine.Behavior{}, nil, err
	}
	state, added := engine.ApplyAddBehavior(state, scenario, prompts)
	if err := h.store.Save(ctx, state); err != nil {
		return engine.Behavior{}, nil, err
	}
	plans, err := h.broadcastAll(ctx, protocol.TypeBehaviorAdded, state)
	if err != nil {
		return engine.Behavior{}, nil, err
	}
	return added, plans, nil
}

// State returns the current aggregate with the live presence count, for the
// read-only REST views.
func (h *Handler) State(ctx context.Context) (protocol.StatePayload, error) {
	payload, err := h.snapshot(ctx)
	if err != nil {
		return protocol.StatePayload{}, err
	}
	return *payload, nil
}

func (h *Handler) vote(ctx context.Context, _ string, msg protocol.ClientMessage) ([]Broadcast, error) {
	vote, ok := engine.ParseVote(msg.Vote)
	if !ok {
		return nil, fmt.Errorf("%w: vote %q", ErrMalformed, msg.Vote)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	state, err := h.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	state, known := engine.ApplyVote(state, msg.BehaviorID, msg.UserID, vote)
	if !known {
		// Stale client pointing at a behavior that no longer exists. Not a
		// protocol violation; drop it quietly.
		h.log.Info("vote for unknown behavior ignored",
			zap.Int("behavior_id", msg.BehaviorID), zap.String("user_id", msg.UserID))
		return nil, nil
	}
	if err := h.store.Save(ctx, state); err != nil {
		return nil, err
	}

	// The sender gets the update too: its UI reconciles from the
	// authoritative count, not its optimistic local one.
	return h.broadcastAll(ctx, protocol.TypeStateUpdate, state)
}

func (h *Handler) setBehavior(ctx context.Context, connectionID string, msg protocol.ClientMessage) ([]Broadcast, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	state, err := h.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if !state.SyncMode {
		// Independent navigation: the pointer is client-local, nothing to
		// persist and nobody to tell.
		return nil, nil
	}
	state = engine.ApplySetBehavior(state, msg.BehaviorID)
	if err := h.store.Save(ctx, state); err != nil {
		return nil, err
	}

	payload, err := h.payload(ctx, state)
	if err != nil {
		return nil, err
	}
	// The originator already moved locally; echoing it back would flicker.
	return []Broadcast{{
		Message:      protocol.ServerMessage{Type: protocol.TypeBehaviorChanged, Data: payload},
		Scope:        ScopeAllExcept,
		ConnectionID: connectionID,
	}}, nil
}

func (h *Handler) toggleSync(ctx context.Context, _ string, _ protocol.ClientMessage) ([]Broadcast, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	state, err := h.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	state = engine.ApplyToggleSync(state)
	if err := h.store.Save(ctx, state); err != nil {
		return nil, err
	}
	// Everyone, originator included: each client needs the new mode to decide
	// whether to honor future BEHAVIOR_CHANGED events.
	return h.broadcastAll(ctx, protocol.TypeStateUpdate, state)
}

func (h *Handler) resetVotes(ctx context.Context, _ string, _ protocol.ClientMessage) ([]Broadcast, error) {
	return h.Reset(ctx)
}

func (h *Handler) clientConnect(ctx context.Context, connectionID string, msg protocol.ClientMessage) ([]Broadcast, error) {
	if msg.UserID == "" {
		return nil, fmt.Errorf("%w: missing userId", ErrMalformed)
	}
	if err := h.registry.UpdateUserID(ctx, connectionID, msg.UserID); err != nil {
		return nil, err
	}

	state, err := h.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	payload, err := h.payload(ctx, state)
	if err != nil {
		return nil, err
	}
	// Full state to the announcer, then a presence refresh to everyone else
	// so the connected count converges promptly.
	return []Broadcast{
		{
			Message:      protocol.ServerMessage{Type: protocol.TypeInitialState, Data: payload},
			Scope:        ScopeOnly,
			ConnectionID: connectionID,
		},
		{
			Message:      protocol.ServerMessage{Type: protocol.TypeStateUpdate, Data: payload},
			Scope:        ScopeAllExcept,
			ConnectionID: connectionID,
		},
	}, nil
}

func (h *Handler) broadcastAll(ctx context.Context, msgType string, state engine.State) ([]Broadcast, error) {
	payload, err := h.payload(ctx, state)
	if err != nil {
		return nil, err
	}
	return []Broadcast{{
		Message: protocol.ServerMessage{Type: msgType, Data: payload},
		Scope:   ScopeAll,
	}}, nil
}

func (h *Handler) payload(ctx context.Context, state engine.State) (*protocol.StatePayload, error) {
	count, err := h.registry.CountDistinctUsers(ctx)
	if err != nil {
		return nil, err
	}
	return &protocol.StatePayload{State: state, ConnectedUsers: count}, nil
}

func (h *Handler) snapshot(ctx context.Context) (*protocol.StatePayload, error) {
	state, err := h.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	return h.payload(ctx, state)
}

func placeholderUserID(connectionID string) string {
	if len(connectionID) > 8 {
		connectionID = connectionID[:8]
	}
	return "user_" + connectionID
}
