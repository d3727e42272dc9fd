package socketio

import (
	"context"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingListener struct {
	mu          sync.Mutex
	connects    int
	disconnects int
	messages    []string
}

func (l *recordingListener) OnConnect(*Session) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connects++
}

func (l *recordingListener) OnMessage(_ *Session, data []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, string(data))
}

func (l *recordingListener) OnDisconnect(*Session) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.disconnects++
}

func (l *recordingListener) snapshot() (connects, disconnects int, messages []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connects, l.disconnects, append([]string(nil), l.messages...)
}

func newTestDispatcher(listener Listener) (*Dispatcher, *metrics) {
	opts := DefaultOptions
	opts.HeartbeatInterval = testHeartbeat.interval
	opts.HeartbeatTimeout = testHeartbeat.timeout
	m := newMetrics(prometheus.NewRegistry())
	return newDispatcher(newRegistry(opts, m), listener, opts, m), m
}

func packetFor(sid string, t TransportType, p *Packet) *Packet {
	p.SessionID = sid
	p.Transport = t
	return p
}

func TestDispatcher_ConnectFiresOnce(t *testing.T) {
	listener := new(recordingListener)
	d, m := newTestDispatcher(listener)
	req := ConnectRequest{SessionID: "abc", Transport: TransportXHRPolling}

	first := newMockPoll()
	s, err := d.Connect(context.Background(), req, first)
	require.NoError(t, err)
	assert.Equal(t, SessionConnected, s.State())
	assert.Equal(t, []string{"1::"}, first.written())

	again, err := d.Connect(context.Background(), req, newMockPoll())
	require.NoError(t, err)
	assert.Same(t, s, again)

	connects, _, _ := listener.snapshot()
	assert.Equal(t, 1, connects)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.sessionsCreated))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.sessionsActive))
	s.heartbeat.disable()
}

func TestDispatcher_ConnectUnknownTransport(t *testing.T) {
	d, m := newTestDispatcher(nil)
	_, err := d.Connect(context.Background(), ConnectRequest{SessionID: "abc", Transport: TransportType(9)}, new(mockConn))
	assert.ErrorIs(t, err, ErrUnknownTransport)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.dispatchErrors.WithLabelValues("connect")))
}

func TestDispatcher_Message(t *testing.T) {
	listener := new(recordingListener)
	d, m := newTestDispatcher(listener)
	conn := new(mockConn)
	s, err := d.Connect(context.Background(), ConnectRequest{SessionID: "abc", Transport: TransportWebsocket}, conn)
	require.NoError(t, err)
	defer s.heartbeat.disable()

	require.NoError(t, d.Dispatch(context.Background(), conn, packetFor("abc", TransportWebsocket, NewMessagePacket([]byte("hello")))))
	json := packetFor("abc", TransportWebsocket, NewPacket(PacketJSON))
	json.Data = []byte(`{"a":1}`)
	require.NoError(t, d.Dispatch(context.Background(), conn, json))

	_, _, messages := listener.snapshot()
	assert.Equal(t, []string{"hello", `{"a":1}`}, messages)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.packetsReceived.WithLabelValues("message")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.packetsReceived.WithLabelValues("json")))
}

func TestDispatcher_NullAndUnknownSession(t *testing.T) {
	listener := new(recordingListener)
	d, _ := newTestDispatcher(listener)
	assert.NoError(t, d.Dispatch(context.Background(), nil, NullPacket))
	assert.NoError(t, d.Dispatch(context.Background(), nil, packetFor("nobody", TransportWebsocket, NewMessagePacket([]byte("x")))))
	_, _, messages := listener.snapshot()
	assert.Empty(t, messages)
}

func TestDispatcher_UnsupportedPacket(t *testing.T) {
	d, m := newTestDispatcher(nil)
	err := d.Dispatch(context.Background(), nil, packetFor("abc", TransportType(5), NewMessagePacket(nil)))
	assert.ErrorIs(t, err, ErrUnknownTransport)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.dispatchErrors.WithLabelValues("unsupported")))
}

func TestDispatcher_Disconnect(t *testing.T) {
	listener := new(recordingListener)
	d, m := newTestDispatcher(listener)
	conn := new(mockConn)
	_, err := d.Connect(context.Background(), ConnectRequest{SessionID: "abc", Transport: TransportWebsocket}, conn)
	require.NoError(t, err)

	require.NoError(t, d.Dispatch(context.Background(), conn, packetFor("abc", TransportWebsocket, NewPacket(PacketDisconnect))))
	require.NoError(t, d.Dispatch(context.Background(), conn, packetFor("abc", TransportWebsocket, NewPacket(PacketDisconnect))))

	_, disconnects, _ := listener.snapshot()
	assert.Equal(t, 1, disconnects)
	assert.False(t, d.registry.Contains("abc"))
	assert.Equal(t, []string{"1::", "0::"}, conn.written())
	assert.Equal(t, float64(0), testutil.ToFloat64(m.sessionsActive))
}

func TestDispatcher_HeartbeatAcknowledgedOnPoll(t *testing.T) {
	d, _ := newTestDispatcher(nil)
	s, err := d.Connect(context.Background(), ConnectRequest{SessionID: "abc", Transport: TransportXHRPolling}, newMockPoll())
	require.NoError(t, err)
	defer s.heartbeat.disable()

	post := newMockPoll()
	require.NoError(t, d.Dispatch(context.Background(), post, packetFor("abc", TransportXHRPolling, NewPacket(PacketHeartbeat))))
	assert.Equal(t, []string{"6::"}, post.written())
}

func TestDispatcher_UpgradeDoesNotNotifyDisconnect(t *testing.T) {
	listener := new(recordingListener)
	d, m := newTestDispatcher(listener)
	polling, err := d.Connect(context.Background(), ConnectRequest{SessionID: "abc", Transport: TransportXHRPolling}, newMockPoll())
	require.NoError(t, err)

	conn := new(mockConn)
	ws, err := d.Connect(context.Background(), ConnectRequest{SessionID: "abc", Transport: TransportWebsocket}, conn)
	require.NoError(t, err)
	defer ws.heartbeat.disable()

	connects, disconnects, _ := listener.snapshot()
	assert.Equal(t, 2, connects)
	assert.Equal(t, 0, disconnects)
	assert.Equal(t, SessionDisconnected, polling.State())
	assert.Equal(t, SessionConnected, ws.State())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.sessionUpgrades.WithLabelValues("xhr-polling", "websocket")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.sessionsActive))
}

func TestDispatcher_ListenerPanicIsIsolated(t *testing.T) {
	d, m := newTestDispatcher(ListenerFuncs{
		Connect: func(*Session) { panic("connect") },
		Message: func(*Session, []byte) { panic("message") },
	})
	conn := new(mockConn)
	var s *Session
	require.NotPanics(t, func() {
		var err error
		s, err = d.Connect(context.Background(), ConnectRequest{SessionID: "abc", Transport: TransportWebsocket}, conn)
		require.NoError(t, err)
	})
	defer s.heartbeat.disable()
	assert.NotPanics(t, func() {
		err := d.Dispatch(context.Background(), conn, packetFor("abc", TransportWebsocket, NewMessagePacket([]byte("boom"))))
		assert.NoError(t, err)
	})
	assert.Equal(t, SessionConnected, s.State())
	assert.Equal(t, float64(2), testutil.ToFloat64(m.dispatchErrors.WithLabelValues("listener_panic")))
}

func TestDispatcher_ConcurrentConnectNotifiesOnce(t *testing.T) {
	listener := new(recordingListener)
	d, _ := newTestDispatcher(listener)
	req := ConnectRequest{SessionID: "race", Transport: TransportWebsocket}

	const n = 32
	sessions := make(chan *Session, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			s, err := d.Connect(context.Background(), req, new(mockConn))
			assert.NoError(t, err)
			sessions <- s
		}()
	}
	wg.Wait()
	close(sessions)

	var first *Session
	for s := range sessions {
		if first == nil {
			first = s
		}
		assert.Same(t, first, s)
	}
	connects, _, _ := listener.snapshot()
	assert.Equal(t, 1, connects)
	first.heartbeat.disable()
}
