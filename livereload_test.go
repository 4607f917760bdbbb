package liveserver_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/gorilla/websocket"
	"github.com/livebud/sse"
	"github.com/matryer/is"
	"github.com/matthewmueller/liveserver"
)

// Pulled from: https://github.com/mathiasbynens/small
// Built with: xxd -i small.ico
var favicon = []byte{
	0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x01, 0x01, 0x00, 0x00, 0x01, 0x00,
	0x18, 0x00, 0x30, 0x00, 0x00, 0x00, 0x16, 0x00, 0x00, 0x00, 0x28, 0x00,
	0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x02, 0x00, 0x00, 0x00, 0x01, 0x00,
	0x18, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0xff, 0x00, 0x00, 0x00, 0x00, 0x00,
}

const scriptMarker = "<!-- Code injected by liveserver -->"

func contains(haystack, needle string) error {
	if strings.Contains(haystack, needle) {
		return nil
	}
	return fmt.Errorf("expected the following to contain %s:\n\n%s", needle, haystack)
}

func notContains(haystack, needle string) error {
	if !strings.Contains(haystack, needle) {
		return nil
	}
	return fmt.Errorf("expected the following to not contain %s:\n\n%s", needle, haystack)
}

// waitFor polls until fn returns true or a few seconds pass
func waitFor(t testing.TB, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !fn() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for condition")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func openClients(hub *liveserver.Broadcaster) int {
	n := 0
	for _, c := range hub.Clients() {
		if c.State() == liveserver.Open {
			n++
		}
	}
	return n
}

func dialReload(t testing.TB, serverURL, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(serverURL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestStatic(t *testing.T) {
	log := slog.Default()
	is := is.New(t)
	hub := liveserver.NewBroadcaster(log)
	lr := liveserver.NewReloader(log, hub)
	fsys := fstest.MapFS{
		"index.html":  &fstest.MapFile{Data: []byte("<html><body>hello world</body></html>")},
		"error.txt":   &fstest.MapFile{Data: []byte("some error")},
		"index.css":   &fstest.MapFile{Data: []byte("body { color: red }")},
		"index.js":    &fstest.MapFile{Data: []byte("console.log('hello world')")},
		"favicon.ico": &fstest.MapFile{Data: favicon},
	}
	handler := lr.Middleware(http.FileServer(http.FS(fsys)))
	server := httptest.NewServer(handler)
	defer server.Close()

	// Test index.html
	res, err := http.Get(server.URL + "/index.html")
	is.NoErr(err)
	is.Equal(res.StatusCode, 200)
	is.Equal(res.Header.Get("Content-Type"), "text/html; charset=utf-8")
	is.Equal(res.Header.Get("Cache-Control"), "no-cache, no-store, must-revalidate")
	is.Equal(res.Header.Get("Last-Modified"), "0")
	body, err := io.ReadAll(res.Body)
	is.NoErr(err)
	is.NoErr(contains(string(body), "<html><body>hello world"))
	is.NoErr(contains(string(body), scriptMarker))
	is.NoErr(contains(string(body), `"/livereload"`))
	is.True(strings.HasSuffix(string(body), "</script>\n</body></html>"))

	// Test error.txt
	res, err = http.Get(server.URL + "/error.txt")
	is.NoErr(err)
	is.Equal(res.StatusCode, 200)
	is.Equal(res.Header.Get("Content-Type"), "text/plain; charset=utf-8")
	is.Equal(res.Header.Get("Cache-Control"), "")
	is.Equal(res.Header.Get("Last-Modified"), "")
	body, err = io.ReadAll(res.Body)
	is.NoErr(err)
	is.Equal(string(body), "some error")

	// Test index.css
	res, err = http.Get(server.URL + "/index.css")
	is.NoErr(err)
	is.Equal(res.StatusCode, 200)
	is.Equal(res.Header.Get("Content-Type"), "text/css; charset=utf-8")
	is.Equal(res.Header.Get("Cache-Control"), "")
	body, err = io.ReadAll(res.Body)
	is.NoErr(err)
	is.Equal(string(body), "body { color: red }")

	// Test index.js
	res, err = http.Get(server.URL + "/index.js")
	is.NoErr(err)
	is.Equal(res.StatusCode, 200)
	is.Equal(res.Header.Get("Content-Type"), "text/javascript; charset=utf-8")
	body, err = io.ReadAll(res.Body)
	is.NoErr(err)
	is.NoErr(notContains(string(body), scriptMarker))

	// Test favicon.ico
	res, err = http.Get(server.URL + "/favicon.ico")
	is.NoErr(err)
	is.Equal(res.StatusCode, 200)
	is.Equal(res.Header.Get("Cache-Control"), "")
	body, err = io.ReadAll(res.Body)
	is.NoErr(err)
	is.Equal(body, favicon)

	// Test that we get events when we call Publish
	stream, err := sse.Dial(log, server.URL+"/livereload")
	is.NoErr(err)
	defer stream.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	lr.Publish(ctx, liveserver.SignalReload, "hello")
	event, err := stream.Next(ctx)
	is.NoErr(err)
	is.Equal(string(event.Type), "reload")
	is.Equal(string(event.Data), "hello")
}

func TestWebsocketChannel(t *testing.T) {
	log := slog.Default()
	is := is.New(t)
	hub := liveserver.NewBroadcaster(log)
	lr := liveserver.NewReloader(log, hub)
	handler := lr.Middleware(http.NotFoundHandler())
	server := httptest.NewServer(handler)
	defer server.Close()

	conn := dialReload(t, server.URL, "/livereload")
	waitFor(t, func() bool { return openClients(hub) == 1 })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go lr.Publish(ctx, liveserver.SignalRefreshCSS, "update:style.css")
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	kind, msg, err := conn.ReadMessage()
	is.NoErr(err)
	is.Equal(kind, websocket.TextMessage)
	is.Equal(string(msg), "refreshcss")

	// Browser goes away
	conn.Close()
	waitFor(t, func() bool { return len(hub.Clients()) == 0 })
}

func TestHeadMatchesGet(t *testing.T) {
	is := is.New(t)
	log := slog.Default()
	lr := liveserver.NewReloader(log, liveserver.NewBroadcaster(log))
	fsys := fstest.MapFS{
		"index.html": &fstest.MapFile{Data: []byte("<html><body>hello world</body></html>")},
		"index.css":  &fstest.MapFile{Data: []byte("body { color: red }")},
	}
	server := httptest.NewServer(lr.Middleware(http.FileServer(http.FS(fsys))))
	defer server.Close()
	for _, path := range []string{"/", "/index.css"} {
		get, err := http.Get(server.URL + path)
		is.NoErr(err)
		body, err := io.ReadAll(get.Body)
		is.NoErr(err)
		get.Body.Close()
		head, err := http.Head(server.URL + path)
		is.NoErr(err)
		empty, err := io.ReadAll(head.Body)
		is.NoErr(err)
		head.Body.Close()
		is.Equal(head.StatusCode, 200)
		is.Equal(len(empty), 0)
		is.Equal(head.Header.Get("Content-Length"), strconv.Itoa(len(body)))
		is.Equal(head.Header.Get("Content-Type"), get.Header.Get("Content-Type"))
		is.Equal(head.Header.Get("Cache-Control"), get.Header.Get("Cache-Control"))
	}
}

func TestRangeIsNotRewritten(t *testing.T) {
	is := is.New(t)
	log := slog.Default()
	lr := liveserver.NewReloader(log, liveserver.NewBroadcaster(log))
	page := "<html><body>hello world</body></html>"
	fsys := fstest.MapFS{
		"index.html": &fstest.MapFile{Data: []byte(page)},
	}
	server := httptest.NewServer(lr.Middleware(http.FileServer(http.FS(fsys))))
	defer server.Close()
	req, err := http.NewRequest(http.MethodGet, server.URL+"/", nil)
	is.NoErr(err)
	req.Header.Set("Range", "bytes=0-9")
	res, err := http.DefaultClient.Do(req)
	is.NoErr(err)
	defer res.Body.Close()
	is.Equal(res.StatusCode, http.StatusPartialContent)
	is.Equal(res.Header.Get("Content-Range"), "bytes 0-9/"+strconv.Itoa(len(page)))
	is.Equal(res.Header.Get("Content-Length"), "10")
	body, err := io.ReadAll(res.Body)
	is.NoErr(err)
	is.Equal(string(body), page[:10])
	is.NoErr(notContains(string(body), scriptMarker))
}
