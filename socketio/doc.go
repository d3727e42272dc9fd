/*
Package socketio provides a socket.io 0.9 protocol server. Following transports are implemented:

	* websocket
	* xhr-polling
	* jsonp-polling

A client first performs the handshake (GET {prefix}/1/), receives a session id and then connects
with one of the advertised transports. A session may switch transport; the previous session
is discarded silently and a new one takes its id.

Example:

	handler, err := socketio.NewHandler("/socket.io", socketio.DefaultOptions, socketio.ListenerFuncs{
		Message: func(s *socketio.Session, data []byte) { s.SendMessage(data) },
	})
	if err != nil {
		log.Fatal(err)
	}
	http.Handle("/socket.io/", handler)
*/
package socketio
