package liveserver

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/livebud/sse"
	"github.com/matthewmueller/httpbuf"
)

// Event is an server-sent event (SSE) published alongside every signal
type Event = sse.Event

func NewReloader(log *slog.Logger, hub *Broadcaster) *Reloader {
	return &Reloader{"/livereload", log, hub, sse.New(log)}
}

// Reloader serves the reload channel and injects the client script into
// HTML responses
type Reloader struct {
	Path string
	log  *slog.Logger
	hub  *Broadcaster
	sse  *sse.Handler
}

// Middleware that rewrites HTML response bodies to include the livereload
// script. It also serves the reload channel at the reload path, as a
// websocket or as server-sent events.
func (r *Reloader) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path == r.Path {
			switch {
			case websocket.IsWebSocketUpgrade(req):
				r.serveWebsocket(w, req)
				return
			case req.Header.Get("Accept") == "text/event-stream":
				r.sse.ServeHTTP(w, req)
				return
			}
		}
		// HEAD renders the page as a GET so its headers match the injected
		// response, then drops the body
		head := req.Method == http.MethodHead
		if head {
			req = req.Clone(req.Context())
			req.Method = http.MethodGet
		}
		// Wrap the response writer to capture the response body
		rw := httpbuf.Wrap(w)
		next.ServeHTTP(rw, req)
		r.rewrite(rw)
		if head {
			rw.Body = nil
		}
		rw.Flush()
	})
}

// rewrite injects the live reload script into complete HTML responses.
// Partial content and errors are left alone.
func (r *Reloader) rewrite(rw *httpbuf.ResponseWriter) {
	if rw.Status != 0 && rw.Status != http.StatusOK {
		return
	}
	if !strings.HasPrefix(rw.Header().Get("Content-Type"), "text/html") {
		return
	}
	body, rewrote := Inject(rw.Body, r.Path)
	if !rewrote {
		return
	}
	rw.Body = body
	rw.Header().Set("Content-Length", strconv.Itoa(len(body)))
	// Don't cache re-written responses
	rw.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	rw.Header().Set("Last-Modified", "0")
}

// Publish sends the signal to every connected browser. Data is attached to
// the server-sent event and follows the "op:path" format of Change.
func (r *Reloader) Publish(ctx context.Context, signal Signal, data string) error {
	sent := r.hub.Broadcast(signal)
	r.log.Debug("liveserver: sent signal", "signal", signal, "clients", sent, "data", data)
	event := &Event{Type: "reload", Data: []byte(data)}
	if signal == SignalRefreshCSS {
		event.Type = "refreshcss"
	}
	return r.sse.Publish(ctx, event)
}
