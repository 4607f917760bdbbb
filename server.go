package liveserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"sync"

	"github.com/matthewmueller/socket"
	"golang.org/x/sync/errgroup"
)

// Server owns the state shared by the file server, the watcher and the
// reload channels
type Server struct {
	cfg      Config
	log      *slog.Logger
	files    *FileSet
	hub      *Broadcaster
	reloader *Reloader
	static   *FileServer
	ready    chan struct{}
	once     sync.Once
}

// New validates the config and sets up the server. The only errors it
// returns are *ConfigError.
func New(log *slog.Logger, cfg Config) (*Server, error) {
	cfg, err := cfg.Validate()
	if err != nil {
		return nil, err
	}
	hub := NewBroadcaster(log)
	static := NewFileServer(log, cfg.Root)
	static.Listing = !cfg.NoListing
	static.Fallback = cfg.File
	reloader := NewReloader(log, hub)
	reloader.Path = cfg.ReloadPath
	return &Server{
		cfg:      cfg,
		log:      log,
		files:    NewFileSet(),
		hub:      hub,
		reloader: reloader,
		static:   static,
		ready:    make(chan struct{}),
	}, nil
}

// Config returns the validated config
func (s *Server) Config() Config {
	return s.cfg
}

// Files returns the files being watched
func (s *Server) Files() *FileSet {
	return s.files
}

// Clients returns the reload channel broadcaster
func (s *Server) Clients() *Broadcaster {
	return s.hub
}

// Ready is closed once the watcher has registered the root, or has failed
// to. Under ListenAndServe the listener is already bound by then.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Handler serves the root with the client script injected into HTML pages
// and the reload channel on the reload path
func (s *Server) Handler() http.Handler {
	return logRequests(s.log, s.cfg.ReloadPath, s.reloader.Middleware(s.static))
}

// Reload every connected browser
func (s *Server) Reload(ctx context.Context, signal Signal) error {
	return s.reloader.Publish(ctx, signal, "")
}

// Watch the root and reload browsers on changes. Watch blocks until the
// context is canceled.
func (s *Server) Watch(ctx context.Context) error {
	w, err := NewWatcher(s.log, s.files, s.cfg)
	if err != nil {
		return err
	}
	s.once.Do(func() { close(s.ready) })
	s.log.Debug("liveserver: watching for changes", "root", s.cfg.Root, "files", s.files.Len())
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return w.Run(ctx)
	})
	eg.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-w.Done():
				return nil
			case change := <-w.Changes():
				s.log.Info("liveserver: change detected", "change", change.String())
				if err := s.reloader.Publish(ctx, s.signal(change), change.String()); err != nil {
					s.log.Error("liveserver: failed to reload", "error", err, "change", change.String())
				}
			}
		}
	})
	return eg.Wait()
}

// signal picks the signal for a change: stylesheets are swapped in place
// unless CSS injection is turned off
func (s *Server) signal(change Change) Signal {
	if !s.cfg.NoCSSInject && change.Op != OpDelete && strings.EqualFold(filepath.Ext(change.Path), ".css") {
		return SignalRefreshCSS
	}
	return SignalReload
}

// ListenAndServe serves HTTP and watches the root until the context is
// canceled, then closes every reload channel. A watcher that fails to start
// is logged and the root is served without live reload.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := socket.Listen(s.cfg.Addr())
	if err != nil {
		return err
	}
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		if err := s.Watch(ctx); err != nil {
			s.log.Error("liveserver: serving without live reload", "error", err)
			s.once.Do(func() { close(s.ready) })
		}
		return nil
	})
	eg.Go(func() error {
		err := socket.Serve(ctx, ln, s.Handler())
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		s.hub.CloseAll()
		return nil
	})
	return eg.Wait()
}
