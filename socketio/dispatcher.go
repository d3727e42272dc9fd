package socketio

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/scalecube/socketio-go/socketio"

// Listener receives the application level session events. Callbacks run
// on transport and timer goroutines, possibly concurrently.
type Listener interface {
	OnConnect(s *Session)
	OnMessage(s *Session, data []byte)
	OnDisconnect(s *Session)
}

// ListenerFuncs adapts plain functions to a Listener. Nil fields are skipped.
type ListenerFuncs struct {
	Connect    func(s *Session)
	Message    func(s *Session, data []byte)
	Disconnect func(s *Session)
}

func (l ListenerFuncs) OnConnect(s *Session) {
	if l.Connect != nil {
		l.Connect(s)
	}
}

func (l ListenerFuncs) OnMessage(s *Session, data []byte) {
	if l.Message != nil {
		l.Message(s, data)
	}
}

func (l ListenerFuncs) OnDisconnect(s *Session) {
	if l.Disconnect != nil {
		l.Disconnect(s)
	}
}

// Dispatcher routes decoded packets to their sessions and to the listener.
type Dispatcher struct {
	registry *Registry
	listener Listener
	logger   *slog.Logger
	metrics  *metrics
	tracer   trace.Tracer
}

// NewDispatcher creates a dispatcher over registry. A nil listener ignores all events.
func NewDispatcher(registry *Registry, listener Listener, opts Options) *Dispatcher {
	return newDispatcher(registry, listener, opts, registry.metrics)
}

func newDispatcher(registry *Registry, listener Listener, opts Options, m *metrics) *Dispatcher {
	if listener == nil {
		listener = ListenerFuncs{}
	}
	provider := opts.TracerProvider
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	return &Dispatcher{
		registry: registry,
		listener: listener,
		logger:   opts.logger(),
		metrics:  m,
		tracer:   provider.Tracer(tracerName),
	}
}

// Connect handles a connect-shaped request: it finds or creates the
// session, binds conn to it and fires OnConnect the first time the
// session connects.
func (d *Dispatcher) Connect(ctx context.Context, req ConnectRequest, conn Conn) (*Session, error) {
	_, span := d.tracer.Start(ctx, "socketio.connect", trace.WithAttributes(
		attribute.String("socketio.session_id", req.SessionID),
		attribute.String("socketio.transport", req.Transport.String()),
	))
	defer span.End()

	sess, err := d.registry.GetOrCreate(req, conn, d.onSessionDisconnect)
	if err != nil {
		d.metrics.dispatchError("connect")
		d.logger.Warn("connect failed", "session_id", req.SessionID, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if sess.Connect(conn) {
		d.notify(sess, "connect", func() { d.listener.OnConnect(sess) })
	}
	return sess, nil
}

// Dispatch routes one inbound packet received on conn. Null packets and
// packets for unknown sessions are dropped silently.
func (d *Dispatcher) Dispatch(ctx context.Context, conn Conn, p *Packet) error {
	if p.IsNull() {
		return nil
	}
	_, span := d.tracer.Start(ctx, "socketio.dispatch", trace.WithAttributes(
		attribute.String("socketio.session_id", p.SessionID),
		attribute.String("socketio.packet_type", p.Type().String()),
		attribute.String("socketio.transport", p.Transport.String()),
	))
	defer span.End()

	d.metrics.packetReceived(p.Type())
	if !p.Transport.valid() || !p.Type().valid() {
		err := fmt.Errorf("%w: %s over %s", ErrUnknownTransport, p.Type(), p.Transport)
		d.metrics.dispatchError("unsupported")
		d.logger.Error("dispatch failed", "session_id", p.SessionID, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	sess := d.registry.Get(p.SessionID)
	if sess == nil {
		d.logger.Debug("discarding packet for unknown session", "session_id", p.SessionID, "type", p.Type().String())
		return nil
	}

	switch p.Type() {
	case PacketHeartbeat:
		sess.AcceptPacket(conn, p)
		sess.AcceptHeartbeat()
	case PacketDisconnect:
		sess.Disconnect()
	case PacketMessage, PacketJSON:
		sess.AcceptPacket(conn, p)
		d.notify(sess, "message", func() { d.listener.OnMessage(sess, p.Data) })
	default:
		sess.AcceptPacket(conn, p)
	}
	return nil
}

// onSessionDisconnect is the DisconnectFunc of every session this
// dispatcher creates.
func (d *Dispatcher) onSessionDisconnect(sess *Session) {
	if d.registry.RemoveSession(sess) {
		d.notify(sess, "disconnect", func() { d.listener.OnDisconnect(sess) })
	}
}

// notify runs a listener callback, a panic is logged and does not reach
// the transport.
func (d *Dispatcher) notify(sess *Session, event string, callback func()) {
	defer func() {
		if r := recover(); r != nil {
			d.metrics.dispatchError("listener_panic")
			sess.logger.Error("listener panic", "event", event, "panic", r)
		}
	}()
	callback()
}
