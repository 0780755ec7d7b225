// Package registry tracks live connections to the aggregation server and the
// producer sessions carried by them. It never performs I/O: expired handles
// are handed back to the caller to close.
package registry

import (
	"io"
	"sort"
	"sync"
	"time"
)

// Session describes one tracked connection.
type Session struct {
	ID           string    `json:"id"`
	RemoteAddr   string    `json:"remoteAddr"`
	ConnectedAt  time.Time `json:"connectedAt"`
	LastActiveAt time.Time `json:"lastActiveAt"`

	// Producer is set once the connection has carried a valid PUT.
	Producer bool `json:"producer"`
}

// Expired is a session removed by SweepIdle together with its connection.
type Expired struct {
	Session
	Conn io.Closer
}

type entry struct {
	session Session
	conn    io.Closer
}

// Registry is a concurrency-safe session table keyed by generated session id.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*entry
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{sessions: make(map[string]*entry)}
}

// Watch starts tracking a connection that has not yet sent a request.
func (r *Registry) Watch(id string, conn io.Closer, remoteAddr string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[id] = &entry{
		session: Session{
			ID:           id,
			RemoteAddr:   remoteAddr,
			ConnectedAt:  now,
			LastActiveAt: now,
		},
		conn: conn,
	}
}

// Touch creates or refreshes the producer session for a connection and
// reports whether the session was newly established as a producer.
func (r *Registry) Touch(id string, conn io.Closer, remoteAddr string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[id]
	if !ok {
		e = &entry{
			session: Session{ID: id, RemoteAddr: remoteAddr, ConnectedAt: now},
			conn:    conn,
		}
		r.sessions[id] = e
	}
	first := !e.session.Producer
	e.session.Producer = true
	e.session.LastActiveAt = now
	return first
}

// Remove forgets a session. Removing an unknown id is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, id)
}

// SweepIdle removes and returns every session whose last activity is older
// than idleTimeout. Closing the returned connections is the caller's job.
func (r *Registry) SweepIdle(now time.Time, idleTimeout time.Duration) []Expired {
	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []Expired
	for id, e := range r.sessions {
		if now.Sub(e.session.LastActiveAt) > idleTimeout {
			expired = append(expired, Expired{Session: e.session, Conn: e.conn})
			delete(r.sessions, id)
		}
	}
	return expired
}

// Producers returns a snapshot of producer sessions, oldest activity first.
func (r *Registry) Producers() []Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Session
	for _, e := range r.sessions {
		if e.session.Producer {
			out = append(out, e.session)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActiveAt.Before(out[j].LastActiveAt)
	})
	return out
}

// Len returns the number of tracked connections, producers or not.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.sessions)
}
