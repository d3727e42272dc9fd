package main

import (
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/scalecube/socketio-go/socketio"
)

type testHandler []*socketio.Handler

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	// prepare various options for tests
	echoOptions := socketio.DefaultOptions
	echoOptions.Logger = logger
	echoOptions.MaxPayload = 4096

	fastHeartbeatOptions := echoOptions
	fastHeartbeatOptions.HeartbeatInterval = time.Second
	fastHeartbeatOptions.HeartbeatTimeout = 3 * time.Second
	fastHeartbeatOptions.PollingDuration = 2 * time.Second

	disabledWebsocketOptions := echoOptions
	disabledWebsocketOptions.Transports = []socketio.TransportType{socketio.TransportXHRPolling, socketio.TransportJSONPPolling}

	// register various test handlers
	var handlers []*socketio.Handler
	for _, h := range []struct {
		prefix   string
		opts     socketio.Options
		listener socketio.Listener
	}{
		{"/echo", echoOptions, echoListener(logger)},
		{"/fast_heartbeat_echo", fastHeartbeatOptions, echoListener(logger)},
		{"/close", echoOptions, socketio.ListenerFuncs{Connect: func(s *socketio.Session) { s.Disconnect() }}},
		{"/disabled_websocket_echo", disabledWebsocketOptions, echoListener(logger)},
	} {
		handler, err := socketio.NewHandler(h.prefix, h.opts, h.listener)
		if err != nil {
			logger.Error("invalid handler options", "prefix", h.prefix, "error", err)
			os.Exit(1)
		}
		handlers = append(handlers, handler)
	}
	http.Handle("/", testHandler(handlers))
	// start test handler
	logger.Info("test server started", "addr", ":8081")
	if err := http.ListenAndServe(":8081", nil); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func (t testHandler) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	for _, handler := range t {
		if strings.HasPrefix(req.URL.Path, handler.Prefix()+"/") {
			handler.ServeHTTP(rw, req)
			return
		}
	}
	http.NotFound(rw, req)
}

func echoListener(logger *slog.Logger) socketio.Listener {
	return socketio.ListenerFuncs{
		Connect: func(s *socketio.Session) {
			logger.Info("New connection created", "session_id", s.ID(), "transport", s.Transport().String())
		},
		Message: func(s *socketio.Session, data []byte) { s.SendMessage(data) },
		Disconnect: func(s *socketio.Session) {
			logger.Info("Connection closed", "session_id", s.ID())
		},
	}
}
