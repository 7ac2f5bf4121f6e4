package ws

import "sync"

// Subscriber abstracts a streaming client.
type Subscriber interface {
	Send([]byte) error
	Close()
}

// Hub fans log lines out to subscribers of a named channel.
type Hub struct {
	register  chan subscription
	unreg     chan subscription
	broadcast chan message
	done      chan struct{}
	stopOnce  sync.Once

	mu     sync.RWMutex
	counts map[string]int
}

type message struct {
	channel string
	payload []byte
}

type subscription struct {
	channel string
	client  Subscriber
}

// NewHub creates a running Hub.
func NewHub() *Hub {
	h := &Hub{
		register:  make(chan subscription),
		unreg:     make(chan subscription),
		broadcast: make(chan message, 64),
		done:      make(chan struct{}),
		counts:    make(map[string]int),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	clients := make(map[string]map[Subscriber]struct{})
	for {
		select {
		case <-h.done:
			for _, set := range clients {
				for c := range set {
					c.Close()
				}
			}
			return
		case sub := <-h.register:
			if _, ok := clients[sub.channel]; !ok {
				clients[sub.channel] = make(map[Subscriber]struct{})
			}
			clients[sub.channel][sub.client] = struct{}{}
			h.setCount(sub.channel, len(clients[sub.channel]))
		case sub := <-h.unreg:
			if set, ok := clients[sub.channel]; ok {
				delete(set, sub.client)
				if len(set) == 0 {
					delete(clients, sub.channel)
				}
				h.setCount(sub.channel, len(set))
			}
		case msg := <-h.broadcast:
			set, ok := clients[msg.channel]
			if !ok {
				continue
			}
			for c := range set {
				if err := c.Send(msg.payload); err != nil {
					c.Close()
					delete(set, c)
				}
			}
			if len(set) == 0 {
				delete(clients, msg.channel)
			}
			h.setCount(msg.channel, len(set))
		}
	}
}

func (h *Hub) setCount(channel string, n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n == 0 {
		delete(h.counts, channel)
		return
	}
	h.counts[channel] = n
}

// Subscribers returns the number of clients listening on channel.
func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.counts[channel]
}

// Register adds a client to a channel stream.
func (h *Hub) Register(channel string, client Subscriber) {
	select {
	case h.register <- subscription{channel: channel, client: client}:
	case <-h.done:
		client.Close()
	}
}

// Unregister removes a client.
func (h *Hub) Unregister(channel string, client Subscriber) {
	select {
	case h.unreg <- subscription{channel: channel, client: client}:
	case <-h.done:
	}
}

// Broadcast sends payload to all channel clients.
func (h *Hub) Broadcast(channel string, payload []byte) {
	select {
	case h.broadcast <- message{channel: channel, payload: payload}:
	case <-h.done:
	}
}

// Close stops the hub and closes every client.
func (h *Hub) Close() {
	h.stopOnce.Do(func() { close(h.done) })
}
