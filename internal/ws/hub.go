package ws

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/ianarundale/lead-from-here/internal/voting"
)

type HubMsg interface{ isHubMsg() }

type Join struct {
	ConnectionID string
	Outbox       chan []byte // where this connection receives outbound frames
}

type Leave struct{ ConnectionID string }

// Deliver executes a set of broadcast plans against the current connection
// set.
type Deliver struct{ Plans []voting.Broadcast }

type GetPresence struct {
	Reply chan int
}

type Shutdown struct{}

func (Join) isHubMsg()        {}
func (Leave) isHubMsg()       {}
func (Deliver) isHubMsg()     {}
func (GetPresence) isHubMsg() {}
func (Shutdown) isHubMsg()    {}

// Hub owns the set of live connection outboxes and fans broadcast plans out
// to them. A connection whose outbox is full is treated as gone: it is
// dropped from the hub and evicted from the registry, and the rest of the
// batch is unaffected.
type Hub struct {
	inbox   chan HubMsg
	conns   map[string]chan []byte
	onEvict func(connectionID string)
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewHub(parent context.Context, onEvict func(string), log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:   make(chan HubMsg, 64),
		conns:   make(map[string]chan []byte),
		onEvict: onEvict,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case Join:
				h.conns[msg.ConnectionID] = msg.Outbox

			case Leave:
				if ch, ok := h.conns[msg.ConnectionID]; ok {
					close(ch)
					delete(h.conns, msg.ConnectionID)
				}

			case Deliver:
				for _, plan := range msg.Plans {
					h.deliver(plan)
				}

			case GetPresence:
				msg.Reply <- len(h.conns)

			case Shutdown:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) deliver(plan voting.Broadcast) {
	frame, err := json.Marshal(plan.Message)
	if err != nil {
		h.log.Error("failed to encode outbound message", zap.Error(err))
		return
	}

	switch plan.Scope {
	case voting.ScopeOnly:
		if ch, ok := h.conns[plan.ConnectionID]; ok {
			h.send(plan.ConnectionID, ch, frame)
		}
	case voting.ScopeAllExcept:
		for id, ch := range h.conns {
			if id == plan.ConnectionID {
				continue
			}
			h.send(id, ch, frame)
		}
	default:
		for id, ch := range h.conns {
			h.send(id, ch, frame)
		}
	}
}

func (h *Hub) send(id string, ch chan []byte, frame []byte) {
	select {
	case ch <- frame:
	default:
		// Outbox full: the connection is dead or hopelessly behind. Drop it
		// so one bad connection never stalls a broadcast.
		close(ch)
		delete(h.conns, id)
		h.log.Warn("dropping unresponsive connection", zap.String("connection_id", id))
		if h.onEvict != nil {
			h.onEvict(id)
		}
	}
}

func (h *Hub) shutdown() {
	for id, ch := range h.conns {
		close(ch)
		delete(h.conns, id)
	}
	h.cancel()
}
