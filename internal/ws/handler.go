package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ianarundale/lead-from-here/internal/protocol"
	"github.com/ianarundale/lead-from-here/internal/voting"
)

const outboxSize = 16

// Handler accepts a websocket connection and runs its read loop. Each
// connection gets a writer goroutine draining its hub outbox; inbound frames
// dispatch to the voting handler and the resulting broadcast plans go back
// through the hub.
func Handler(h *Hub, v *voting.Handler, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		connectionID := uuid.NewString()
		outbox := make(chan []byte, outboxSize)
		h.Inbox() <- Join{ConnectionID: connectionID, Outbox: outbox}

		defer func() {
			h.Inbox() <- Leave{ConnectionID: connectionID}
			// The request context is already dead at this point; cleanup gets
			// its own.
			plans, err := v.Disconnect(context.Background(), connectionID)
			if err != nil {
				log.Warn("disconnect cleanup failed",
					zap.String("connection_id", connectionID), zap.Error(err))
				return
			}
			h.Inbox() <- Deliver{Plans: plans}
		}()

		// Writer goroutine: the outbox is closed by the hub on Leave or
		// eviction, which ends this loop.
		go func() {
			for frame := range outbox {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				err := conn.Write(ctx, websocket.MessageText, frame)
				cancel()
				if err != nil {
					return
				}
			}
		}()

		// Register and push INITIAL_STATE before reading anything, the way
		// the always-open transport can.
		plans, err := v.Connect(r.Context(), connectionID)
		if err != nil {
			log.Error("connect failed", zap.String("connection_id", connectionID), zap.Error(err))
			return
		}
		h.Inbox() <- Deliver{Plans: plans}

		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					return
				}
				return
			}

			plans, err := v.HandleMessage(r.Context(), connectionID, data)
			if err != nil {
				h.Inbox() <- Deliver{Plans: []voting.Broadcast{errorReply(connectionID, err)}}
				if !errors.Is(err, voting.ErrMalformed) && !errors.Is(err, voting.ErrUnknownType) {
					log.Error("message handling failed",
						zap.String("connection_id", connectionID), zap.Error(err))
				}
				continue
			}
			h.Inbox() <- Deliver{Plans: plans}
		}
	}
}

// errorReply builds the per-message error sent back to the offending
// connection only. Internal failures are masked; malformed frames get the
// parse complaint.
func errorReply(connectionID string, err error) voting.Broadcast {
	text := "internal error"
	if errors.Is(err, voting.ErrMalformed) || errors.Is(err, voting.ErrUnknownType) {
		text = err.Error()
	}
	return voting.Broadcast{
		Message:      protocol.ServerMessage{Type: protocol.TypeError, Error: text},
		Scope:        voting.ScopeOnly,
		ConnectionID: connectionID,
	}
}

// marshal is used by tests to compare frames against plan messages.
func marshal(msg protocol.ServerMessage) []byte {
	frame, _ := json.Marshal(msg)
	return frame
}
