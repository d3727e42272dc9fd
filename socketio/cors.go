package socketio

import (
	"net/http"
)

func setCors(header http.Header, req *http.Request) {
	header.Set("Access-Control-Allow-Credentials", "true")
	header.Set("Access-Control-Allow-Origin", originHeader(req))
	if allowHeaders := req.Header.Get("Access-Control-Request-Headers"); allowHeaders != "" && allowHeaders != "null" {
		header.Set("Access-Control-Allow-Headers", allowHeaders)
	}
}

func noCache(header http.Header) {
	header.Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
}

func originHeader(req *http.Request) string {
	origin := req.Header.Get("Origin")
	if origin == "" || origin == "null" {
		origin = "*"
	}
	return origin
}

func corsOptions(rw http.ResponseWriter, req *http.Request) {
	setCors(rw.Header(), req)
	rw.Header().Set("Access-Control-Allow-Methods", "OPTIONS, GET, POST")
	rw.Header().Set("Access-Control-Max-Age", "31536000")
	rw.WriteHeader(http.StatusNoContent)
}
