package socketio

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
)

// pollConn is a single long-poll HTTP response. It accepts exactly one
// write, the response body, and is closed afterwards.
type pollConn struct {
	mu        sync.Mutex
	rw        http.ResponseWriter
	req       *http.Request
	transport TransportType
	// index echoed in the jsonp-polling response wrapper
	index  string
	closed bool
	doneCh chan struct{}
}

func newPollConn(rw http.ResponseWriter, req *http.Request, transport TransportType, index string) *pollConn {
	return &pollConn{
		rw:        rw,
		req:       req,
		transport: transport,
		index:     index,
		doneCh:    make(chan struct{}),
	}
}

func (c *pollConn) WritePackets(packets ...*Packet) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.req.Context().Err() != nil {
		return ErrConnClosed
	}
	c.closed = true
	defer close(c.doneCh)

	frame, err := EncodeFrame(packets...)
	if err != nil {
		return err
	}
	body, contentType, err := encodePollBody(c.transport, c.index, frame)
	if err != nil {
		return err
	}
	header := c.rw.Header()
	header.Set("Content-Type", contentType)
	setCors(header, c.req)
	noCache(header)
	_, err = c.rw.Write(body)
	return err
}

func (c *pollConn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && c.req.Context().Err() == nil
}

// Close finishes the response without a body. Idempotent.
func (c *pollConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.doneCh)
	}
	return nil
}

func (c *pollConn) doneNotify() <-chan struct{} { return c.doneCh }

// encodePollBody wraps a frame the way the poll transport expects it.
func encodePollBody(t TransportType, index string, frame []byte) ([]byte, string, error) {
	switch t {
	case TransportXHRPolling:
		return frame, "text/plain; charset=UTF-8", nil
	case TransportJSONPPolling:
		return jsonpWrap(index, frame), "application/javascript; charset=UTF-8", nil
	}
	return nil, "", fmt.Errorf("%w: %s is not a poll transport", ErrUnknownTransport, t)
}

// jsonpWrap renders io.j[index]("<payload as a JS string>");
func jsonpWrap(index string, payload []byte) []byte {
	quoted, _ := json.Marshal(string(payload))
	body := make([]byte, 0, len(quoted)+len(index)+10)
	body = append(body, "io.j["...)
	body = append(body, index...)
	body = append(body, "]("...)
	body = append(body, quoted...)
	body = append(body, ");"...)
	return body
}
