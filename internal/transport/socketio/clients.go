package socketio

import (
	"net"
	"sync"

	"github.com/disgoorg/snowflake/v2"
)

// ClientRegistry tracks connected clients and the guild room each one joined.
// Local clients (loopback addresses) are unlimited. When more than maxExternal
// remote clients are connected, the oldest remote client is evicted.
type ClientRegistry struct {
	mu          sync.Mutex
	maxExternal int
	// remote client IDs, oldest first
	external []string
	clients  map[string]*clientEntry
}

type clientEntry struct {
	local  bool
	guild  snowflake.ID
	joined bool
}

// NewClientRegistry creates a registry allowing up to maxExternal concurrent
// remote clients. maxExternal <= 0 disables eviction.
func NewClientRegistry(maxExternal int) *ClientRegistry {
	return &ClientRegistry{
		maxExternal: maxExternal,
		clients:     make(map[string]*clientEntry),
	}
}

// Add registers a client connecting from addr (host or host:port) and
// returns the ID of the client it evicted, if any.
func (r *ClientRegistry) Add(clientID, addr string) (evictedID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.clients[clientID]; exists {
		return ""
	}

	local := isLocalAddr(addr)
	r.clients[clientID] = &clientEntry{local: local}
	if local {
		return ""
	}

	r.external = append(r.external, clientID)
	if r.maxExternal > 0 && len(r.external) > r.maxExternal {
		evictedID = r.external[0]
		r.external = r.external[1:]
		delete(r.clients, evictedID)
	}
	return evictedID
}

// Join records that the client entered guild's room. It returns the guild the
// client left, if it was in one. ok is false for an unknown client.
func (r *ClientRegistry) Join(clientID string, guild snowflake.ID) (prev snowflake.ID, hadPrev, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, exists := r.clients[clientID]
	if !exists {
		return 0, false, false
	}
	prev, hadPrev = c.guild, c.joined
	c.guild, c.joined = guild, true
	return prev, hadPrev, true
}

// Guild returns the guild the client joined.
func (r *ClientRegistry) Guild(clientID string) (snowflake.ID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, exists := r.clients[clientID]
	if !exists || !c.joined {
		return 0, false
	}
	return c.guild, true
}

// Watchers counts the clients in guild's room.
func (r *ClientRegistry) Watchers(guild snowflake.ID) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, c := range r.clients {
		if c.joined && c.guild == guild {
			n++
		}
	}
	return n
}

// Len returns the number of tracked clients.
func (r *ClientRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// Remove unregisters a client when it disconnects.
func (r *ClientRegistry) Remove(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, exists := r.clients[clientID]
	if !exists {
		return
	}
	delete(r.clients, clientID)
	if c.local {
		return
	}

	for i, id := range r.external {
		if id == clientID {
			r.external = append(r.external[:i], r.external[i+1:]...)
			break
		}
	}
}

// isLocalAddr reports whether addr is a loopback address, with or without a port.
func isLocalAddr(addr string) bool {
	host := addr
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = h
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
