package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/livebud/mux"
	"github.com/matthewmueller/liveserver"
	"github.com/matthewmueller/socket"
	"golang.org/x/sync/errgroup"
)

// Embeds the reloader into an existing handler instead of running the whole
// live server
func main() {
	ctx := context.Background()
	log := slog.Default()
	cfg, err := liveserver.Config{Root: "example/embedded/public"}.Validate()
	if err != nil {
		log.Error("Invalid config", "error", err)
		return
	}
	hub := liveserver.NewBroadcaster(log)
	lr := liveserver.NewReloader(log, hub)
	files := liveserver.NewFileSet()
	watcher, err := liveserver.NewWatcher(log, files, cfg)
	if err != nil {
		log.Error("Unable to watch", "error", err)
		return
	}
	fsys := liveserver.NewFileServer(log, cfg.Root)
	router := mux.New()
	router.Get("/", fsys.ServeHTTP)
	router.Get("/about", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintln(w, "<html><body><h1>About Page</h1></body></html>")
	})
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return watcher.Run(ctx)
	})
	eg.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case change := <-watcher.Changes():
				if err := lr.Publish(ctx, liveserver.SignalReload, change.String()); err != nil {
					log.Error("Unable to reload", "error", err)
				}
			}
		}
	})
	eg.Go(func() error {
		fmt.Println("Server started at http://localhost:3000")
		return socket.ListenAndServe(ctx, ":3000", lr.Middleware(router))
	})
	if err := eg.Wait(); err != nil {
		slog.Error("Error in server", "error", err)
		return
	}
}
