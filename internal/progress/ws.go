package progress

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// WSPublisher is a Sink that streams snapshots as JSON frames to every
// connected websocket client. New clients get the latest snapshot
// immediately so a late subscriber never starts from a blank view.
type WSPublisher struct {
	upgrader websocket.Upgrader

	mu       sync.Mutex
	conns    map[*websocket.Conn]struct{}
	last     Snapshot
	haveLast bool
	closed   bool
}

// NewWSPublisher returns a publisher with no connected clients.
func NewWSPublisher() *WSPublisher {
	return &WSPublisher{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns: make(map[*websocket.Conn]struct{}),
	}
}

// ServeHTTP upgrades the request and registers the client. The read
// loop exists only to notice the peer going away.
func (p *WSPublisher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		conn.Close()
		return
	}
	p.conns[conn] = struct{}{}
	if p.haveLast {
		if err := conn.WriteJSON(p.last); err != nil {
			delete(p.conns, conn)
			p.mu.Unlock()
			conn.Close()
			return
		}
	}
	p.mu.Unlock()

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
		p.mu.Lock()
		delete(p.conns, conn)
		p.mu.Unlock()
		conn.Close()
	}()
}

// Publish fans the snapshot out to every client. Clients whose write
// fails are dropped; their failure never propagates to the transfer.
func (p *WSPublisher) Publish(s Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrSinkClosed
	}
	p.last = s
	p.haveLast = true
	for conn := range p.conns {
		if err := conn.WriteJSON(s); err != nil {
			delete(p.conns, conn)
			conn.Close()
		}
	}
	return nil
}

// Close drops all clients and rejects further publishes.
func (p *WSPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	for conn := range p.conns {
		conn.Close()
	}
	p.conns = nil
	return nil
}
