package protocol

import "github.com/ianarundale/lead-from-here/internal/engine"

// Inbound message types (client -> server).
const (
	TypeClientConnect = "CLIENT_CONNECT"
	TypeVote          = "VOTE"
	TypeSetBehavior   = "SET_BEHAVIOR"
	TypeToggleSync    = "TOGGLE_SYNC"
	TypeResetVotes    = "RESET_VOTES"
)

// Outbound message types (server -> client).
const (
	TypeInitialState    = "INITIAL_STATE"
	TypeStateUpdate     = "STATE_UPDATE"
	TypeBehaviorChanged = "BEHAVIOR_CHANGED"
	TypeBehaviorAdded   = "BEHAVIOR_ADDED"
	TypeError           = "ERROR"
)

// ClientMessage is the inbound envelope. Fields beyond Type are populated
// per message kind; unknown types are rejected at dispatch.
type ClientMessage struct {
	Type       string `json:"type"`
	BehaviorID int    `json:"behaviorId,omitempty"`
	Vote       string `json:"vote,omitempty"`
	UserID     string `json:"userId,omitempty"`
}

// StatePayload is the full voting aggregate plus the live presence count.
// ConnectedUsers is derived from the connection registry at send time and is
// never persisted with the state.
type StatePayload struct {
	engine.State
	ConnectedUsers int `json:"connectedUsers"`
}

// ServerMessage is the outbound envelope.
type ServerMessage struct {
	Type  string        `json:"type"`
	Data  *StatePayload `json:"data,omitempty"`
	Error string        `json:"error,omitempty"`
}
