package socketio

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Conn is one physical transport connection a session writes to, a
// websocket or a single long-poll HTTP response.
type Conn interface {
	// WritePackets writes the packets as one frame.
	WritePackets(packets ...*Packet) error
	// IsOpen reports whether the connection still accepts writes.
	IsOpen() bool
	// Close releases the connection. Idempotent.
	Close() error
}

// SessionState defines the current state of the session
type SessionState uint32

const (
	SessionCreated SessionState = iota
	// waiting for the first transport connection
	SessionConnecting
	SessionConnected
	// teardown started, inbound packets are still accepted
	SessionDisconnecting
	// terminal, the session is removed from the registry
	SessionDisconnected
)

func (s SessionState) String() string {
	switch s {
	case SessionCreated:
		return "created"
	case SessionConnecting:
		return "connecting"
	case SessionConnected:
		return "connected"
	case SessionDisconnecting:
		return "disconnecting"
	case SessionDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// ConnectRequest is the connect-shaped metadata a transport extracts from
// an incoming physical connection.
type ConnectRequest struct {
	SessionID  string
	Transport  TransportType
	Origin     string
	RemoteAddr string
}

// DisconnectFunc is called once when a session reaches SessionDisconnected
// without having been discarded by a transport upgrade.
type DisconnectFunc func(*Session)

// delivery holds the transport shape specific half of a session: push
// transports write straight to one long lived connection, poll transports
// queue packets until the client polls.
type delivery interface {
	bind(s *Session, conn Conn, connected bool)
	send(s *Session, p *Packet)
	acknowledge(s *Session, conn Conn, p *Packet)
	disconnect(s *Session)
	// called when Disconnect is invoked again while disconnecting
	forceDisconnect(s *Session)
	// owns reports whether conn may still act for the session
	owns(conn Conn) bool
	// take unbinds and returns the connection the session would write to
	take() Conn
	release(conn Conn)
	drain() []*Packet
	discard(s *Session)
}

// Session is one logical client connection, independent of the physical
// connections that carry it over its lifetime.
type Session struct {
	id           string
	transport    TransportType
	upgradedFrom TransportType
	upgraded     bool
	remoteAddr   string
	origin       string
	localPort    int

	state     atomic.Uint32
	discarded atomic.Bool

	heartbeat    *heartbeatScheduler
	delivery     delivery
	onDisconnect DisconnectFunc
	values       sync.Map

	logger  *slog.Logger
	metrics *metrics
}

type sessionParams struct {
	req          ConnectRequest
	localPort    int
	heartbeat    heartbeatConfig
	upgradedFrom *TransportType
	onDisconnect DisconnectFunc
	logger       *slog.Logger
	metrics      *metrics
}

func newSession(p sessionParams) (*Session, error) {
	var d delivery
	switch p.req.Transport {
	case TransportWebsocket:
		d = new(pushDelivery)
	case TransportXHRPolling, TransportJSONPPolling:
		d = newPollDelivery()
	default:
		return nil, ErrUnknownTransport
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	s := &Session{
		id:           p.req.SessionID,
		transport:    p.req.Transport,
		remoteAddr:   p.req.RemoteAddr,
		origin:       p.req.Origin,
		localPort:    p.localPort,
		delivery:     d,
		onDisconnect: p.onDisconnect,
		metrics:      p.metrics,
		logger:       p.logger.With("session_id", p.req.SessionID, "transport", p.req.Transport.String()),
	}
	if p.upgradedFrom != nil {
		s.upgradedFrom, s.upgraded = *p.upgradedFrom, true
	}
	s.heartbeat = newHeartbeatScheduler(p.heartbeat, s)
	s.heartbeat.expired = func() {
		s.logger.Info("heartbeat timeout")
		s.metrics.heartbeatTimeout()
	}
	s.state.Store(uint32(SessionConnecting))
	return s, nil
}

func (s *Session) ID() string               { return s.id }
func (s *Session) Transport() TransportType { return s.transport }
func (s *Session) RemoteAddr() string       { return s.remoteAddr }
func (s *Session) Origin() string           { return s.origin }
func (s *Session) LocalPort() int           { return s.localPort }
func (s *Session) State() SessionState      { return SessionState(s.state.Load()) }
func (s *Session) Store(key, value any)     { s.values.Store(key, value) }
func (s *Session) Load(key any) (any, bool) { return s.values.Load(key) }

func (s *Session) isDiscarded() bool { return s.discarded.Load() }

func (s *Session) casState(from, to SessionState) bool {
	return s.state.CompareAndSwap(uint32(from), uint32(to))
}

// UpgradedFrom returns the transport of the session this one replaced.
func (s *Session) UpgradedFrom() (TransportType, bool) { return s.upgradedFrom, s.upgraded }

// Connect binds a physical connection to the session. It returns true only
// for the call that moved the session from connecting to connected; that
// call also writes the CONNECT packet on conn.
func (s *Session) Connect(conn Conn) bool {
	connected := s.casState(SessionConnecting, SessionConnected)
	if connected {
		s.logger.Info("session connected", "remote_addr", s.remoteAddr)
		s.heartbeat.reschedule()
	}
	s.delivery.bind(s, conn, connected)
	return connected
}

// Send delivers a packet to the client, through the bound connection or
// the poll queue depending on the transport.
func (s *Session) Send(p *Packet) {
	if s.State() == SessionDisconnected {
		s.logger.Debug("dropping packet for disconnected session", "type", p.Type().String())
		return
	}
	s.delivery.send(s, p)
}

// SendMessage sends data as a MESSAGE packet.
func (s *Session) SendMessage(data []byte) { s.Send(NewMessagePacket(data)) }

// SendJSON sends v encoded as a JSON packet.
func (s *Session) SendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	p := NewPacket(PacketJSON)
	p.Data = data
	s.Send(p)
	return nil
}

func (s *Session) SendHeartbeat() { s.Send(NewPacket(PacketHeartbeat)) }

// AcceptPacket records an inbound packet received on conn.
func (s *Session) AcceptPacket(conn Conn, p *Packet) {
	s.heartbeat.reschedule()
	s.delivery.acknowledge(s, conn, p)
}

func (s *Session) AcceptHeartbeat() { s.heartbeat.reschedule() }

// Disconnect starts a graceful disconnect. Calling it on a disconnected
// session does nothing; calling it again on a disconnecting poll session
// tears the session down immediately.
func (s *Session) Disconnect() {
	switch s.beginDisconnect() {
	case SessionDisconnected:
		return
	case SessionDisconnecting:
		s.delivery.forceDisconnect(s)
		return
	}
	s.logger.Debug("session disconnecting")
	s.heartbeat.disable()
	s.delivery.disconnect(s)
}

// DisconnectConn tears the session down because conn went away or asked
// to. A DISCONNECT packet is still written on conn if it is open. A conn
// that was already replaced by a newer one is only closed.
func (s *Session) DisconnectConn(conn Conn) {
	if conn != nil && !s.delivery.owns(conn) {
		s.logger.Debug("closing replaced connection")
		_ = conn.Close()
		return
	}
	if s.beginDisconnect() == SessionDisconnected {
		return
	}
	s.heartbeat.disable()
	s.delivery.release(conn)
	s.teardown(conn)
}

// expire tears the session down without waiting for the client, the
// connection it would write to still gets the DISCONNECT packet.
func (s *Session) expire() {
	if s.beginDisconnect() == SessionDisconnected {
		return
	}
	s.heartbeat.disable()
	s.teardown(s.delivery.take())
}

// beginDisconnect moves an active session to SessionDisconnecting and
// returns the state it found.
func (s *Session) beginDisconnect() SessionState {
	for {
		st := s.State()
		if st >= SessionDisconnecting {
			return st
		}
		if s.casState(st, SessionDisconnecting) {
			return st
		}
	}
}

// teardown finishes a disconnect. Queued packets and a DISCONNECT packet
// go out on conn when it is open. Reports whether this call did the transition.
func (s *Session) teardown(conn Conn) bool {
	if !s.casState(SessionDisconnecting, SessionDisconnected) {
		return false
	}
	s.heartbeat.disable()
	if s.isDiscarded() {
		return true
	}
	packets := append(s.delivery.drain(), NewPacket(PacketDisconnect))
	if conn != nil && conn.IsOpen() {
		_ = s.write(conn, packets...)
		_ = conn.Close()
	}
	s.logger.Info("session disconnected")
	if s.onDisconnect != nil {
		s.onDisconnect(s)
	}
	return true
}

// discard retires a session replaced by a transport upgrade. No packets
// are flushed and no disconnect notification is fired.
func (s *Session) discard() {
	s.discarded.Store(true)
	s.heartbeat.disable()
	s.state.Store(uint32(SessionDisconnected))
	s.delivery.discard(s)
}

func (s *Session) write(conn Conn, packets ...*Packet) error {
	if err := conn.WritePackets(packets...); err != nil {
		s.logger.Warn("write failed", "error", err, "packets", len(packets))
		return err
	}
	for _, p := range packets {
		s.metrics.packetSent(p.Type())
	}
	return nil
}
