package socketio

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

const protocolVersion = "1"

// Handler serves the socket.io handshake and transport endpoints under a
// path prefix. It conforms to the net/http.Handler interface.
type Handler struct {
	prefix     string
	options    Options
	router     *httprouter.Router
	registry   *Registry
	dispatcher *Dispatcher
	listener   Listener
	logger     *slog.Logger

	// issued session ids, forgotten when the session disconnects or is
	// never connected within CloseTimeout
	handshakes sync.Map // string -> *time.Timer
}

// NewHandler creates new HTTP handler. It takes path prefix, options and
// the listener receiving session events as parameters.
func NewHandler(prefix string, opts Options, listener Listener) (*Handler, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if listener == nil {
		listener = ListenerFuncs{}
	}
	m := newMetrics(opts.Registerer)
	h := &Handler{
		prefix:   prefix,
		options:  opts,
		router:   httprouter.New(),
		listener: listener,
		logger:   opts.logger(),
	}
	h.registry = newRegistry(opts, m)
	h.dispatcher = newDispatcher(h.registry, ListenerFuncs{
		Connect:    listener.OnConnect,
		Message:    listener.OnMessage,
		Disconnect: h.onDisconnect,
	}, opts, m)

	base := prefix + "/" + protocolVersion
	h.router.GET(base+"/", h.handshake)
	h.router.POST(base+"/", h.handshake)
	if opts.transportEnabled(TransportWebsocket) {
		h.router.GET(base+"/websocket/:sid", h.websocket)
	}
	for _, t := range []TransportType{TransportXHRPolling, TransportJSONPPolling} {
		if !opts.transportEnabled(t) {
			continue
		}
		path := base + "/" + t.String() + "/:sid"
		h.router.GET(path, h.poll(t))
		h.router.POST(path, h.pollSend(t))
		h.router.OPTIONS(path, func(rw http.ResponseWriter, req *http.Request, _ httprouter.Params) {
			corsOptions(rw, req)
		})
	}
	return h, nil
}

func (h *Handler) Prefix() string { return h.prefix }

func (h *Handler) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	h.router.ServeHTTP(rw, req)
}

// Session returns the live session with the given id, or nil.
func (h *Handler) Session(id string) *Session { return h.registry.Get(id) }

// SessionCount returns the number of registered sessions.
func (h *Handler) SessionCount() int { return h.registry.Len() }

// SendTo delivers p to the session registered under id.
func (h *Handler) SendTo(id string, p *Packet) error {
	sess := h.registry.Get(id)
	if sess == nil {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	sess.Send(p)
	return nil
}

// Broadcast sends a packet of type t carrying data to every registered session.
func (h *Handler) Broadcast(t PacketType, data []byte) {
	h.registry.Range(func(s *Session) bool {
		p := NewPacket(t)
		p.Data = data
		s.Send(p)
		return true
	})
}

func (h *Handler) onDisconnect(s *Session) {
	if v, ok := h.handshakes.LoadAndDelete(s.ID()); ok {
		v.(*time.Timer).Stop()
	}
	h.listener.OnDisconnect(s)
}

func (h *Handler) handshaken(id string) bool {
	_, ok := h.handshakes.Load(id)
	return ok
}

// handshake issues a session id and advertises heartbeat timeout, close
// timeout and the enabled transports.
func (h *Handler) handshake(rw http.ResponseWriter, req *http.Request, _ httprouter.Params) {
	id, err := NewSessionID()
	if err != nil {
		h.logger.Error("session id generation failed", "error", err)
		http.Error(rw, "Handshake error", http.StatusInternalServerError)
		return
	}
	h.handshakes.Store(id, time.AfterFunc(h.options.CloseTimeout, func() {
		if !h.registry.Contains(id) {
			h.handshakes.Delete(id)
		}
	}))

	body := fmt.Sprintf("%s:%d:%d:%s", id,
		int(h.options.HeartbeatTimeout.Seconds()),
		int(h.options.CloseTimeout.Seconds()),
		h.options.transportList())
	setCors(rw.Header(), req)
	noCache(rw.Header())
	if index := req.URL.Query().Get("jsonp"); index != "" {
		rw.Header().Set("Content-Type", "application/javascript; charset=UTF-8")
		_, _ = rw.Write(jsonpWrap(index, []byte(body)))
		return
	}
	rw.Header().Set("Content-Type", "text/plain; charset=UTF-8")
	_, _ = io.WriteString(rw, body)
}

func (h *Handler) connectRequest(req *http.Request, sid string, t TransportType) ConnectRequest {
	return ConnectRequest{
		SessionID:  sid,
		Transport:  t,
		Origin:     req.Header.Get("Origin"),
		RemoteAddr: req.RemoteAddr,
	}
}

func (h *Handler) websocket(rw http.ResponseWriter, req *http.Request, ps httprouter.Params) {
	upgrader := h.options.WebsocketUpgrader
	if upgrader == nil {
		upgrader = new(websocket.Upgrader)
	}
	ws, err := upgrader.Upgrade(rw, req, nil)
	if err != nil {
		return
	}
	if h.options.MaxPayload > 0 {
		ws.SetReadLimit(h.options.MaxPayload)
	}
	conn := newWsConn(ws, h.options.WebsocketWriteTimeout)
	defer conn.Close()

	sid := ps.ByName("sid")
	if !h.handshaken(sid) {
		_ = conn.WritePackets(NewPacket(PacketDisconnect))
		return
	}
	connectReq := h.connectRequest(req, sid, TransportWebsocket)
	sess, err := h.dispatcher.Connect(req.Context(), connectReq, conn)
	if err != nil {
		return
	}
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			break
		}
		h.dispatchFrame(req, conn, connectReq, "", data)
	}
	sess.DisconnectConn(conn)
}

// poll handles a GET long-poll: a connect-shaped request that parks the
// response on the session until there is something to write.
func (h *Handler) poll(t TransportType) httprouter.Handle {
	return func(rw http.ResponseWriter, req *http.Request, ps httprouter.Params) {
		sid := ps.ByName("sid")
		conn := newPollConn(rw, req, t, req.URL.Query().Get("i"))
		defer conn.Close()

		if !h.handshaken(sid) {
			_ = conn.WritePackets(NewPacket(PacketDisconnect))
			return
		}
		if _, ok := req.URL.Query()["disconnect"]; ok {
			if sess := h.registry.Get(sid); sess != nil {
				sess.DisconnectConn(conn)
			}
			if conn.IsOpen() {
				_ = conn.WritePackets(NewPacket(PacketDisconnect))
			}
			return
		}

		sess, err := h.dispatcher.Connect(req.Context(), h.connectRequest(req, sid, t), conn)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusInternalServerError)
			return
		}
		timer := time.NewTimer(h.options.PollingDuration)
		defer timer.Stop()
		select {
		case <-conn.doneNotify():
		case <-req.Context().Done():
			sess.delivery.release(conn)
		case <-timer.C:
			sess.delivery.release(conn)
			_ = conn.WritePackets(NewPacket(PacketNoop))
		}
	}
}

// pollSend handles a POST carrying a frame from the client. The response
// is the connection inbound packets are acknowledged on.
func (h *Handler) pollSend(t TransportType) httprouter.Handle {
	return func(rw http.ResponseWriter, req *http.Request, ps httprouter.Params) {
		setCors(rw.Header(), req)
		if h.options.MaxPayload > 0 {
			req.Body = http.MaxBytesReader(rw, req.Body, h.options.MaxPayload)
		}
		var data []byte
		var err error
		switch t {
		case TransportJSONPPolling:
			err = req.ParseForm()
			data = []byte(req.PostForm.Get("d"))
		default:
			data, err = io.ReadAll(req.Body)
		}
		if err != nil {
			http.Error(rw, "Payload expected.", http.StatusBadRequest)
			return
		}
		conn := newPollConn(rw, req, t, req.URL.Query().Get("i"))
		defer conn.Close()
		h.dispatchFrame(req, conn, h.connectRequest(req, ps.ByName("sid"), t), req.URL.Query().Get("i"), data)
	}
}

func (h *Handler) dispatchFrame(req *http.Request, conn Conn, meta ConnectRequest, pollIndex string, data []byte) {
	packets, err := DecodeFrame(data)
	if err != nil {
		h.logger.Warn("dropping undecodable frame", "session_id", meta.SessionID, "error", err)
		return
	}
	for _, p := range packets {
		p.SessionID = meta.SessionID
		p.Transport = meta.Transport
		p.Origin = meta.Origin
		p.PollIndex = pollIndex
		_ = h.dispatcher.Dispatch(req.Context(), conn, p)
	}
}
