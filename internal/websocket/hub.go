package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"medportal/pkg/logger"
)

// Hub tracks dashboard connections by wallet
type Hub struct {
	mu sync.RWMutex

	clients  map[string]*Client
	byWallet map[string]map[*Client]struct{}

	// ops carries registrations and removals in the order they were made.
	ops  chan hubOp
	done chan struct{}

	log *logger.Logger
}

type hubOp struct {
	client *Client
	add    bool
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients:  make(map[string]*Client),
		byWallet: make(map[string]map[*Client]struct{}),
		ops:      make(chan hubOp, 256),
		done:     make(chan struct{}),
		log:      logger.OrNop(log).Named("websocket"),
	}
}

// Run processes registrations until ctx ends, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case op := <-h.ops:
			if op.add {
				h.addClient(op.client)
			} else {
				h.removeClient(op.client)
			}
		}
	}
}

// Register queues client for the Run loop. Once the hub has stopped the
// client's queue is closed instead.
func (h *Hub) Register(client *Client) {
	select {
	case <-h.done:
		client.closeSend()
		return
	default:
	}
	select {
	case h.ops <- hubOp{client: client, add: true}:
	case <-h.done:
		client.closeSend()
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.ops <- hubOp{client: client}:
	case <-h.done:
	}
}

// NotifyWallet sends a frame to every connection of wallet. It returns the
// number of connections the frame was queued on.
func (h *Hub) NotifyWallet(wallet string, f Frame) int {
	payload, err := json.Marshal(f)
	if err != nil {
		h.log.Warn("notify marshal failed", zap.Error(err))
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	sent := 0
	for client := range h.byWallet[wallet] {
		if client.SendMessage(payload) {
			sent++
		}
	}
	return sent
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) WalletConnections(wallet string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byWallet[wallet])
}

func (h *Hub) addClient(client *Client) {
	if client.isClosed() {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
	if _, ok := h.byWallet[client.Wallet]; !ok {
		h.byWallet[client.Wallet] = make(map[*Client]struct{})
	}
	h.byWallet[client.Wallet][client] = struct{}{}
	h.log.Debug("client registered", zap.String("client_id", client.ID), zap.String("wallet", client.Wallet))
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.ID]; !ok {
		client.closeSend()
		return
	}
	delete(h.clients, client.ID)
	if set, ok := h.byWallet[client.Wallet]; ok {
		delete(set, client)
		if len(set) == 0 {
			delete(h.byWallet, client.Wallet)
		}
	}
	client.closeSend()
	h.log.Debug("client unregistered", zap.String("client_id", client.ID), zap.String("wallet", client.Wallet))
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, client := range h.clients {
		client.closeSend()
		delete(h.clients, id)
	}
	h.byWallet = make(map[string]map[*Client]struct{})
}
