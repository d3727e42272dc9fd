package socketio

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"sync"
)

// sessionEntry memoizes the construction of one session so racing
// creators never build two sessions for the same id. Whoever calls get
// first runs build, plain lookups included.
type sessionEntry struct {
	once  sync.Once
	build func() (*Session, error)
	sess  *Session
	err   error
}

func (e *sessionEntry) get() (*Session, error) {
	e.once.Do(func() {
		e.sess, e.err = e.build()
		e.build = nil
	})
	return e.sess, e.err
}

// Registry maps session ids to sessions. At most one session per id is
// visible at any time.
type Registry struct {
	sessions  sync.Map // string -> *sessionEntry
	heartbeat heartbeatConfig
	localPort int
	logger    *slog.Logger
	metrics   *metrics
}

// NewRegistry creates an empty registry whose sessions follow opts.
func NewRegistry(opts Options) *Registry {
	return newRegistry(opts, nil)
}

func newRegistry(opts Options, m *metrics) *Registry {
	return &Registry{
		heartbeat: opts.heartbeatConfig(),
		localPort: opts.LocalPort,
		logger:    opts.logger(),
		metrics:   m,
	}
}

// GetOrCreate returns the session registered under req.SessionID, creating
// it on first access. When the registered session is bound to another
// transport than req, it is discarded and replaced by a new session for
// req.Transport. conn is the connection the request arrived on; binding
// it is left to Session.Connect.
func (r *Registry) GetOrCreate(req ConnectRequest, conn Conn, onDisconnect DisconnectFunc) (*Session, error) {
	if !req.Transport.valid() {
		return nil, ErrUnknownTransport
	}
	var upgradedFrom *TransportType
	for {
		from := upgradedFrom
		candidate := &sessionEntry{build: func() (*Session, error) {
			s, err := newSession(sessionParams{
				req:          req,
				localPort:    r.localPort,
				heartbeat:    r.heartbeat,
				upgradedFrom: from,
				onDisconnect: onDisconnect,
				logger:       r.logger,
				metrics:      r.metrics,
			})
			if err == nil {
				r.metrics.sessionCreated()
				s.logger.Info("session created")
			}
			return s, err
		}}
		v, _ := r.sessions.LoadOrStore(req.SessionID, candidate)
		entry := v.(*sessionEntry)
		sess, err := entry.get()
		if err != nil {
			r.sessions.CompareAndDelete(req.SessionID, entry)
			return nil, err
		}
		if sess.Transport() == req.Transport {
			return sess, nil
		}

		previous := sess.Transport()
		if r.sessions.CompareAndDelete(req.SessionID, entry) {
			sess.discard()
			r.metrics.sessionRemoved()
			r.metrics.sessionUpgraded(previous, req.Transport)
			sess.logger.Info("session upgraded", "to", req.Transport.String())
		}
		upgradedFrom = &previous
	}
}

// Get returns the session registered under id, or nil.
func (r *Registry) Get(id string) *Session {
	v, ok := r.sessions.Load(id)
	if !ok {
		return nil
	}
	sess, err := v.(*sessionEntry).get()
	if err != nil {
		return nil
	}
	return sess
}

func (r *Registry) Contains(id string) bool {
	return r.Get(id) != nil
}

// Remove unregisters whatever session is registered under id.
func (r *Registry) Remove(id string) {
	if _, loaded := r.sessions.LoadAndDelete(id); loaded {
		r.metrics.sessionRemoved()
	}
}

// RemoveSession unregisters sess if it is still the session registered
// under its id, and reports whether it did.
func (r *Registry) RemoveSession(sess *Session) bool {
	v, ok := r.sessions.Load(sess.ID())
	if !ok {
		return false
	}
	if registered, _ := v.(*sessionEntry).get(); registered != sess {
		return false
	}
	if !r.sessions.CompareAndDelete(sess.ID(), v) {
		return false
	}
	r.metrics.sessionRemoved()
	return true
}

// Range calls f for every registered session until f returns false.
func (r *Registry) Range(f func(*Session) bool) {
	r.sessions.Range(func(_, v any) bool {
		sess, err := v.(*sessionEntry).get()
		if err != nil {
			return true
		}
		return f(sess)
	})
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	n := 0
	r.Range(func(*Session) bool { n++; return true })
	return n
}

// NewSessionID returns a random 128 bit session id as lowercase hex.
func NewSessionID() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
