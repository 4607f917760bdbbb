package liveserver

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Signal is the message sent down a reload channel
type Signal string

const (
	// SignalReload asks the browser to reload the page
	SignalReload Signal = "reload"
	// SignalRefreshCSS asks the browser to refetch its stylesheets
	SignalRefreshCSS Signal = "refreshcss"
)

// ConnState is the state of a ClientConnection
type ConnState int32

const (
	Connecting ConnState = iota
	Open
	Closed
)

func (s ConnState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Sink is the transport underneath a ClientConnection
type Sink interface {
	Send(ctx context.Context, signal Signal) error
	Close() error
}

// writeTimeout bounds a single write to a client
const writeTimeout = 10 * time.Second

// ClientConnection is one connected browser
type ClientConnection struct {
	ID      string
	Created time.Time

	hub   *Broadcaster
	sink  Sink
	state atomic.Int32
	wake  chan struct{}
	done  chan struct{}
	once  sync.Once

	mu      sync.Mutex
	pending Signal
}

// State of the connection
func (c *ClientConnection) State() ConnState {
	return ConnState(c.state.Load())
}

// Open marks the handshake as complete and starts delivering signals. It
// returns false if the connection was closed in the meantime.
func (c *ClientConnection) Open() bool {
	if !c.state.CompareAndSwap(int32(Connecting), int32(Open)) {
		return false
	}
	go c.writer()
	return true
}

// Done is closed once the connection is closed
func (c *ClientConnection) Done() <-chan struct{} {
	return c.done
}

// Close the connection and remove it from the broadcaster. Safe to call
// more than once.
func (c *ClientConnection) Close() error {
	var err error
	c.once.Do(func() {
		c.state.Store(int32(Closed))
		close(c.done)
		c.hub.remove(c)
		err = c.sink.Close()
	})
	return err
}

// dispatch hands the signal to the writer without blocking. At most one
// signal waits per client: a pending reload absorbs anything sent after it
// and a later reload replaces a pending refreshcss.
func (c *ClientConnection) dispatch(signal Signal) bool {
	if c.State() != Open {
		return false
	}
	c.mu.Lock()
	c.pending = coalesce(c.pending, signal)
	c.mu.Unlock()
	select {
	case c.wake <- struct{}{}:
	default:
	}
	return true
}

func coalesce(pending, next Signal) Signal {
	if pending == SignalReload {
		return pending
	}
	return next
}

func (c *ClientConnection) next() Signal {
	c.mu.Lock()
	defer c.mu.Unlock()
	signal := c.pending
	c.pending = ""
	return signal
}

func (c *ClientConnection) writer() {
	for {
		select {
		case <-c.done:
			return
		case <-c.wake:
			signal := c.next()
			if signal == "" {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			err := c.sink.Send(ctx, signal)
			cancel()
			if err != nil {
				c.fail(err)
				return
			}
		}
	}
}

func (c *ClientConnection) fail(err error) {
	if c.State() == Closed {
		return
	}
	c.hub.log.Warn("liveserver: closing reload channel", "error", &ChannelError{c.ID, err})
	c.Close()
}

// Broadcaster fans signals out to every open client
type Broadcaster struct {
	log   *slog.Logger
	mu    sync.RWMutex
	conns map[*ClientConnection]struct{}
}

func NewBroadcaster(log *slog.Logger) *Broadcaster {
	return &Broadcaster{
		log:   log,
		conns: map[*ClientConnection]struct{}{},
	}
}

// Connect registers a new client in the Connecting state
func (b *Broadcaster) Connect(sink Sink) *ClientConnection {
	c := &ClientConnection{
		ID:      uuid.NewString(),
		Created: time.Now(),
		hub:     b,
		sink:    sink,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	b.mu.Lock()
	b.conns[c] = struct{}{}
	b.mu.Unlock()
	return c
}

func (b *Broadcaster) remove(c *ClientConnection) {
	b.mu.Lock()
	delete(b.conns, c)
	b.mu.Unlock()
}

// Clients returns a snapshot of the registered clients
func (b *Broadcaster) Clients() []*ClientConnection {
	b.mu.RLock()
	defer b.mu.RUnlock()
	clients := make([]*ClientConnection, 0, len(b.conns))
	for c := range b.conns {
		clients = append(clients, c)
	}
	return clients
}

// Broadcast the signal to every open client. Clients are snapshotted first,
// so clients that connect or leave meanwhile don't affect delivery to the
// others. It returns the number of clients the signal was handed to.
func (b *Broadcaster) Broadcast(signal Signal) int {
	sent := 0
	for _, c := range b.Clients() {
		if c.dispatch(signal) {
			sent++
		}
	}
	return sent
}

// CloseAll closes every client
func (b *Broadcaster) CloseAll() {
	for _, c := range b.Clients() {
		c.Close()
	}
}
