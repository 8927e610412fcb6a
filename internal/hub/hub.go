// Package hub fans dispatcher views out to the connected presentation
// clients.
package hub

import (
	"context"

	pub "github.com/DoyleJ11/netra-vaani/pkg/types"
)

type HubMsg interface{ isHubMsg() }

type Join struct {
	ClientID string
	Outbox   chan pub.View // where this client wants to receive views
}

type Leave struct {
	ClientID string
}

type Publish struct {
	View pub.View
}

type CountClients struct {
	Reply chan int
}

type ShutdownHub struct{}

func (Join) isHubMsg()         {}
func (Leave) isHubMsg()        {}
func (Publish) isHubMsg()      {}
func (CountClients) isHubMsg() {}
func (ShutdownHub) isHubMsg()  {}

type Hub struct {
	inbox   chan HubMsg
	clients map[string]chan pub.View
	last    *pub.View
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewHub(parent context.Context) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:   make(chan HubMsg, 64),
		clients: make(map[string]chan pub.View),
		ctx:     ctx,
		cancel:  cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

// Done is closed once the hub starts shutting down, before any outbox is
// closed.
func (h *Hub) Done() <-chan struct{} { return h.ctx.Done() }

// Publish queues v for every client. It gives up once the hub is shut down.
func (h *Hub) Publish(v pub.View) {
	if h.ctx.Err() != nil {
		return
	}
	select {
	case h.inbox <- Publish{View: v}:
	case <-h.ctx.Done():
	}
}

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case Join:
				h.clients[msg.ClientID] = msg.Outbox
				// New clients start from the latest view.
				if h.last != nil {
					h.send(msg.ClientID, msg.Outbox, *h.last)
				}

			case Leave:
				if ch, ok := h.clients[msg.ClientID]; ok {
					close(ch)
					delete(h.clients, msg.ClientID)
				}

			case Publish:
				v := msg.View
				h.last = &v
				for id, ch := range h.clients {
					h.send(id, ch, v)
				}

			case CountClients:
				msg.Reply <- len(h.clients)

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

// send drops a client whose outbox is full.
func (h *Hub) send(id string, ch chan pub.View, v pub.View) {
	select {
	case ch <- v:
	default:
		close(ch)
		delete(h.clients, id)
	}
}

func (h *Hub) shutdown() {
	h.cancel()
	for id, ch := range h.clients {
		close(ch) // no more views
		delete(h.clients, id)
	}
}
