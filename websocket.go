package liveserver

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  512,
	WriteBufferSize: 512,
}

type websocketSink struct {
	conn *websocket.Conn
	once sync.Once
}

func (s *websocketSink) Send(ctx context.Context, signal Signal) error {
	if deadline, ok := ctx.Deadline(); ok {
		s.conn.SetWriteDeadline(deadline)
	}
	return s.conn.WriteMessage(websocket.TextMessage, []byte(signal))
}

func (s *websocketSink) Close() (err error) {
	s.once.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
		s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = s.conn.Close()
	})
	return err
}

// serveWebsocket upgrades the request into a reload channel and blocks
// until the browser goes away
func (r *Reloader) serveWebsocket(w http.ResponseWriter, req *http.Request) {
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		// Upgrade already replied with an error
		r.log.Debug("liveserver: unable to upgrade reload channel", "error", err)
		return
	}
	client := r.hub.Connect(&websocketSink{conn: conn})
	defer client.Close()
	if !client.Open() {
		return
	}
	r.log.Debug("liveserver: client connected", "id", client.ID)
	// Browsers don't send anything, read until the connection drops
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			r.log.Debug("liveserver: client disconnected", "id", client.ID, "error", err)
			return
		}
	}
}
