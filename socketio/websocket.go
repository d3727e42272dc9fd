package socketio

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsConn writes frames as websocket text messages. gorilla/websocket
// allows a single concurrent writer, hence the mutex.
type wsConn struct {
	mu           sync.Mutex
	conn         *websocket.Conn
	writeTimeout time.Duration
	closeOnce    sync.Once
	closeCh      chan struct{}
}

func newWsConn(conn *websocket.Conn, writeTimeout time.Duration) *wsConn {
	return &wsConn{
		conn:         conn,
		writeTimeout: writeTimeout,
		closeCh:      make(chan struct{}),
	}
}

func (w *wsConn) WritePackets(packets ...*Packet) error {
	frame, err := EncodeFrame(packets...)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.IsOpen() {
		return ErrConnClosed
	}
	if w.writeTimeout != 0 {
		_ = w.conn.SetWriteDeadline(time.Now().Add(w.writeTimeout))
	}
	if err := w.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		w.Close()
		return err
	}
	return nil
}

func (w *wsConn) IsOpen() bool {
	select {
	case <-w.closeCh: // already closed
		return false
	default:
		return true
	}
}

func (w *wsConn) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.closeCh)
		err = w.conn.Close()
	})
	return err
}
