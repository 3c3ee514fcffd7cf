package ws

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/splax/teamroster/internal/docpath"
)

// Subscriber abstracts a streaming client.
type Subscriber interface {
	Send([]byte) error
	Close()
}

// Renderer produces the snapshot payload for a subscribed path.
type Renderer func(ctx context.Context, path string) ([]byte, error)

const renderTimeout = 5 * time.Second

// Hub owns the subscription registry. A single goroutine registers, unregisters and
// delivers snapshots, so every subscriber sees snapshots in write order.
type Hub struct {
	render    Renderer
	log       *slog.Logger
	clients   map[string]map[Subscriber]struct{}
	count     atomic.Int64
	register  chan subscription
	unreg     chan subscription
	broadcast chan []string
	done      chan struct{}
	stopOnce  sync.Once
}

// subscription defines register/unregister requests.
type subscription struct {
	path   string
	client Subscriber
}

// NewHub creates a Hub and starts its loop.
func NewHub(render Renderer, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		render:    render,
		log:       logger,
		clients:   make(map[string]map[Subscriber]struct{}),
		register:  make(chan subscription),
		unreg:     make(chan subscription),
		broadcast: make(chan []string, 64),
		done:      make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			for path, clients := range h.clients {
				for c := range clients {
					c.Close()
				}
				delete(h.clients, path)
			}
			h.count.Store(0)
			return
		case sub := <-h.register:
			if _, ok := h.clients[sub.path]; !ok {
				h.clients[sub.path] = make(map[Subscriber]struct{})
			}
			h.clients[sub.path][sub.client] = struct{}{}
			h.count.Add(1)
			h.deliver(sub.path, map[Subscriber]struct{}{sub.client: {}})
		case sub := <-h.unreg:
			h.drop(sub.path, sub.client)
		case changed := <-h.broadcast:
			for path, clients := range h.clients {
				if touches(path, changed) {
					h.deliver(path, clients)
				}
			}
		}
	}
}

func (h *Hub) deliver(path string, clients map[Subscriber]struct{}) {
	ctx, cancel := context.WithTimeout(context.Background(), renderTimeout)
	payload, err := h.render(ctx, path)
	cancel()
	if err != nil {
		h.log.Error("render snapshot failed", "path", path, "error", err)
		return
	}
	for c := range clients {
		if err := c.Send(payload); err != nil {
			h.drop(path, c)
		}
	}
}

func (h *Hub) drop(path string, client Subscriber) {
	clients, ok := h.clients[path]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	client.Close()
	h.count.Add(-1)
	if len(clients) == 0 {
		delete(h.clients, path)
	}
}

func touches(subscribed string, changed []string) bool {
	for _, p := range changed {
		if docpath.Overlaps(subscribed, p) {
			return true
		}
	}
	return false
}

// Register subscribes client to path and queues the initial snapshot. The returned
// disposer unregisters and closes the client; calling it more than once is safe.
func (h *Hub) Register(path string, client Subscriber) (dispose func()) {
	select {
	case h.register <- subscription{path: path, client: client}:
	case <-h.done:
		client.Close()
		return func() {}
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			select {
			case h.unreg <- subscription{path: path, client: client}:
			case <-h.done:
			}
		})
	}
}

// Broadcast schedules fresh snapshots for every subscription overlapping a changed path.
func (h *Hub) Broadcast(changed ...string) {
	if len(changed) == 0 {
		return
	}
	select {
	case h.broadcast <- changed:
	case <-h.done:
	}
}

// Subscribers reports the number of registered clients.
func (h *Hub) Subscribers() int {
	return int(h.count.Load())
}

// Stop closes every client and ends the loop.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}
