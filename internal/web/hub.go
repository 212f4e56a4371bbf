package web

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zulandar/quickvocab/internal/conversation"
)

// Hub limits.
const (
	DefaultMaxClients = 1000
	DefaultIdleTTL    = 30 * time.Minute
)

// ControllerFactory creates the controller for a new browser client.
type ControllerFactory func() (*conversation.Controller, error)

// HubOpts holds parameters for creating a Hub.
type HubOpts struct {
	Factory    ControllerFactory
	MaxClients int              // defaults to DefaultMaxClients
	IdleTTL    time.Duration    // defaults to DefaultIdleTTL
	Now        func() time.Time // defaults to time.Now
}

type hubClient struct {
	ctrl     *conversation.Controller
	lastSeen time.Time
}

// Hub keeps one conversation controller per browser client. Only ids issued
// by Create are known; clients idle for longer than the TTL are dropped, and
// the least recently seen client makes room when the hub is full.
type Hub struct {
	factory    ControllerFactory
	maxClients int
	idleTTL    time.Duration
	now        func() time.Time

	mu      sync.Mutex
	clients map[string]*hubClient
}

// NewHub creates an empty Hub.
func NewHub(opts HubOpts) (*Hub, error) {
	if opts.Factory == nil {
		return nil, fmt.Errorf("web: hub: controller factory is required")
	}
	if opts.MaxClients <= 0 {
		opts.MaxClients = DefaultMaxClients
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = DefaultIdleTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Hub{
		factory:    opts.Factory,
		maxClients: opts.MaxClients,
		idleTTL:    opts.IdleTTL,
		now:        opts.Now,
		clients:    make(map[string]*hubClient),
	}, nil
}

// Lookup returns the controller for a previously issued client id and marks
// the client as seen.
func (h *Hub) Lookup(clientID string) (*conversation.Controller, bool) {
	now := h.now()

	h.mu.Lock()
	cl, ok := h.clients[clientID]
	if ok && now.Sub(cl.lastSeen) > h.idleTTL {
		delete(h.clients, clientID)
		h.mu.Unlock()
		cl.ctrl.Close()
		return nil, false
	}
	if ok {
		cl.lastSeen = now
	}
	h.mu.Unlock()

	if !ok {
		return nil, false
	}
	return cl.ctrl, true
}

// Create issues a new client id with its own controller and loads the history
// list for it.
func (h *Hub) Create(ctx context.Context) (string, *conversation.Controller, error) {
	ctrl, err := h.factory()
	if err != nil {
		return "", nil, fmt.Errorf("web: new controller: %w", err)
	}
	id := uuid.NewString()
	now := h.now()

	h.mu.Lock()
	evicted := h.evictLocked(now)
	h.clients[id] = &hubClient{ctrl: ctrl, lastSeen: now}
	h.mu.Unlock()

	for _, old := range evicted {
		old.Close()
	}

	// A failed load is logged by the controller; the page still works.
	ctrl.RefreshHistory(ctx)
	return id, ctrl, nil
}

// evictLocked drops idle clients, then the least recently seen ones until
// there is room for one more. The caller closes the returned controllers.
func (h *Hub) evictLocked(now time.Time) []*conversation.Controller {
	var evicted []*conversation.Controller
	for id, cl := range h.clients {
		if now.Sub(cl.lastSeen) > h.idleTTL {
			evicted = append(evicted, cl.ctrl)
			delete(h.clients, id)
		}
	}
	for len(h.clients) >= h.maxClients {
		var oldestID string
		var oldest *hubClient
		for id, cl := range h.clients {
			if oldest == nil || cl.lastSeen.Before(oldest.lastSeen) {
				oldestID, oldest = id, cl
			}
		}
		evicted = append(evicted, oldest.ctrl)
		delete(h.clients, oldestID)
	}
	return evicted
}

// Len returns the number of tracked clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close closes every controller.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, cl := range h.clients {
		cl.ctrl.Close()
		delete(h.clients, id)
	}
}
