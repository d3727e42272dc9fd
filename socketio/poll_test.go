package socketio

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollConn_SingleWrite(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/socket.io/1/xhr-polling/sid", nil)
	conn := newPollConn(rec, req, TransportXHRPolling, "")
	assert.True(t, conn.IsOpen())

	require.NoError(t, conn.WritePackets(NewPacket(PacketConnect)))
	assert.False(t, conn.IsOpen())
	assert.ErrorIs(t, conn.WritePackets(NewPacket(PacketNoop)), ErrConnClosed)
	assert.Equal(t, "1::", rec.Body.String())
	assert.Equal(t, "text/plain; charset=UTF-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Cache-Control"), "no-store")

	select {
	case <-conn.doneNotify():
	default:
		t.Fatal("done channel should be closed after write")
	}
}

func TestPollConn_JSONP(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/socket.io/1/jsonp-polling/sid?i=4", nil)
	conn := newPollConn(rec, req, TransportJSONPPolling, "4")
	require.NoError(t, conn.WritePackets(NewMessagePacket([]byte(`"</script>"`))))
	assert.Equal(t, "application/javascript; charset=UTF-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, `io.j[4]("3:::\"\u003c/script\u003e\"");`, rec.Body.String())
}

func TestPollConn_CloseWithoutBody(t *testing.T) {
	rec := httptest.NewRecorder()
	conn := newPollConn(rec, httptest.NewRequest("GET", "/", nil), TransportXHRPolling, "")
	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	assert.False(t, conn.IsOpen())
	assert.Empty(t, rec.Body.String())
}

func TestPollConn_RequestGone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest("GET", "/", nil).WithContext(ctx)
	conn := newPollConn(httptest.NewRecorder(), req, TransportXHRPolling, "")
	cancel()
	assert.False(t, conn.IsOpen())
	assert.ErrorIs(t, conn.WritePackets(NewPacket(PacketNoop)), ErrConnClosed)
}

func TestEncodePollBody_NotPollTransport(t *testing.T) {
	_, _, err := encodePollBody(TransportWebsocket, "", []byte("1::"))
	assert.ErrorIs(t, err, ErrUnknownTransport)
}
