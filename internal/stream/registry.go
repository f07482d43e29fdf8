package stream

import (
	"sort"
	"sync"
)

// Registry tracks which connections are subscribed to which symbols.
// It keeps both directions indexed so symbol fan-out and connection
// teardown are each a single map lookup.
type Registry struct {
	mu       sync.RWMutex
	conns    map[string]*ClientConn
	bySymbol map[string]map[string]struct{}
	byConn   map[string]map[string]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		conns:    make(map[string]*ClientConn),
		bySymbol: make(map[string]map[string]struct{}),
		byConn:   make(map[string]map[string]struct{}),
	}
}

// Register adds a connection. Subscriptions are added separately via
// Subscribe. Registering an already-known connection is a no-op.
func (r *Registry) Register(conn *ClientConn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[conn.ID]; ok {
		return
	}
	r.conns[conn.ID] = conn
	r.byConn[conn.ID] = make(map[string]struct{})
}

// Subscribe records a (connection, symbol) pair. Idempotent: repeating
// an existing subscription changes nothing. Returns false if the
// connection is unknown.
func (r *Registry) Subscribe(connID, symbol string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	symbols, ok := r.byConn[connID]
	if !ok {
		return false
	}
	symbols[symbol] = struct{}{}

	subs, ok := r.bySymbol[symbol]
	if !ok {
		subs = make(map[string]struct{})
		r.bySymbol[symbol] = subs
	}
	subs[connID] = struct{}{}
	return true
}

// Unsubscribe removes a (connection, symbol) pair. Idempotent:
// removing a pair that does not exist changes nothing.
func (r *Registry) Unsubscribe(connID, symbol string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unsubscribeLocked(connID, symbol)
}

func (r *Registry) unsubscribeLocked(connID, symbol string) {
	if symbols, ok := r.byConn[connID]; ok {
		delete(symbols, symbol)
	}
	if subs, ok := r.bySymbol[symbol]; ok {
		delete(subs, connID)
		if len(subs) == 0 {
			delete(r.bySymbol, symbol)
		}
	}
}

// RemoveConnection drops a connection and all of its subscriptions.
func (r *Registry) RemoveConnection(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for symbol := range r.byConn[connID] {
		r.unsubscribeLocked(connID, symbol)
	}
	delete(r.byConn, connID)
	delete(r.conns, connID)
}

// SubscribersOf returns the connections subscribed to a symbol.
func (r *Registry) SubscribersOf(symbol string) []*ClientConn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.bySymbol[symbol]
	out := make([]*ClientConn, 0, len(ids))
	for id := range ids {
		if conn, ok := r.conns[id]; ok {
			out = append(out, conn)
		}
	}
	return out
}

// SymbolsWithSubscribers returns, sorted, every symbol that has at
// least one subscriber. The broadcast scheduler sweeps exactly this
// set each tick.
func (r *Registry) SymbolsWithSubscribers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	symbols := make([]string, 0, len(r.bySymbol))
	for symbol := range r.bySymbol {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// SymbolsOf returns the symbols a connection is subscribed to, sorted.
func (r *Registry) SymbolsOf(connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.byConn[connID]
	symbols := make([]string, 0, len(set))
	for symbol := range set {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// ConnectionCount returns the number of registered connections.
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// SubscriptionCount returns the total number of (connection, symbol)
// pairs.
func (r *Registry) SubscriptionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, subs := range r.bySymbol {
		n += len(subs)
	}
	return n
}

// Broadcast enqueues a message to every subscriber of symbol. Sends
// are non-blocking; slow consumers drop per their policy and never
// stall the caller. Returns the number of successful enqueues.
func (r *Registry) Broadcast(symbol string, msg []byte) int {
	delivered := 0
	for _, conn := range r.SubscribersOf(symbol) {
		if err := conn.Send(msg); err == nil {
			delivered++
		}
	}
	return delivered
}
