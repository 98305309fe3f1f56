package stream

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/danmuck/sockwrap/internal/logging"
	"github.com/danmuck/sockwrap/internal/observability"
	"github.com/danmuck/sockwrap/internal/protocol"
	"github.com/danmuck/sockwrap/internal/protocol/value"
	"github.com/danmuck/sockwrap/internal/wire"
)

var (
	ErrFaulted         = errors.New("stream: client faulted, reset with a new connection")
	ErrNoPeer          = errors.New("stream: no connection")
	ErrUnexpectedReply = errors.New("stream: unexpected reply")
)

// Peer is the connection a Client polls. *wire.Conn satisfies it.
type Peer interface {
	Send(v value.Value) error
	SendThenReceive(v value.Value, opts ...wire.ReceiveOption) (value.Value, error)
	Close() error
	Identity() string
}

var _ Peer = (*wire.Conn)(nil)

type State int32

const (
	StateStopped State = iota
	StateRunning
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	case StateFaulted:
		return "faulted"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

type Option func(*Client)

func WithObserver(obs logging.Observer) Option {
	return func(c *Client) {
		if obs != nil {
			c.obs = obs
		}
	}
}

// Client keeps the latest frame pulled from a Producer by a background loop.
// Start, Stop, Resize, Reset and Close may be called from any goroutine; Read
// and Size never block on the loop.
type Client struct {
	obs logging.Observer

	// ctl serializes lifecycle calls; the loop never takes it.
	ctl  sync.Mutex
	peer Peer
	done chan struct{}

	mu     sync.RWMutex
	latest value.Array
	width  int
	height int
	err    error

	running atomic.Bool
	stopped atomic.Bool
	state   atomic.Int32
}

func NewClient(peer Peer, opts ...Option) *Client {
	c := &Client{
		obs:    logging.Nop(),
		peer:   peer,
		latest: value.Zeros(value.KindUint8, 4, 4),
	}
	c.stopped.Store(true)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) State() State {
	return State(c.state.Load())
}

// Idle reports whether the polling loop has exited.
func (c *Client) Idle() bool {
	return c.stopped.Load()
}

// Err returns the failure that faulted the client.
func (c *Client) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// Read returns a copy of the most recent frame.
func (c *Client) Read() value.Array {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.latest.Clone()
}

// Size returns the last requested resolution; zero until Resize is called.
func (c *Client) Size() (int, int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.width, c.height
}

// Start launches the polling loop. It is a no-op while running.
func (c *Client) Start() error {
	c.ctl.Lock()
	defer c.ctl.Unlock()
	return c.startLocked()
}

func (c *Client) startLocked() error {
	if c.running.Load() {
		return nil
	}
	switch {
	case c.State() == StateFaulted:
		return ErrFaulted
	case c.peer == nil:
		return ErrNoPeer
	}
	done := make(chan struct{})
	c.done = done
	c.stopped.Store(false)
	c.running.Store(true)
	c.state.Store(int32(StateRunning))
	observability.RecordStreamEvent("start")
	go c.loop(c.peer, done)
	return nil
}

func (c *Client) loop(peer Peer, done chan struct{}) {
	defer close(done)
	defer c.stopped.Store(true)
	for c.running.Load() {
		reply, err := peer.SendThenReceive(CameraSendImage)
		if err != nil {
			c.fault(peer, err)
			return
		}
		frame, ok := reply.(value.Array)
		if !ok {
			c.fault(peer, fmt.Errorf("%w: %T for %s", ErrUnexpectedReply, reply, CameraSendImage))
			return
		}
		c.mu.Lock()
		c.latest = frame
		c.mu.Unlock()
		observability.RecordStreamEvent("poll")
	}
}

// fault ends the loop for good. The connection is closed since its envelope
// pairing can no longer be trusted.
func (c *Client) fault(peer Peer, err error) {
	c.running.Store(false)
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
	c.state.Store(int32(StateFaulted))
	observability.RecordStreamEvent("fault")

	if errors.Is(err, protocol.ErrConnectionLost) {
		c.obs.Warnf("stream.loop connection lost peer=%s err=%v", peer.Identity(), err)
	} else {
		c.obs.Warnf("stream.loop failed peer=%s err=%v", peer.Identity(), err)
	}
	span := c.obs.Begin(logging.LevelDebug, "cleaning up")
	if cerr := peer.Close(); cerr != nil {
		c.obs.Debugf("stream.loop close peer=%s err=%v", peer.Identity(), cerr)
	}
	span.End()
}

// Stop clears the running flag and blocks until the loop has exited. No
// timeout applies: an in-flight request must complete or fail first.
func (c *Client) Stop() {
	c.ctl.Lock()
	defer c.ctl.Unlock()
	c.stopLocked()
}

func (c *Client) stopLocked() {
	if c.done == nil {
		return
	}
	c.running.Store(false)
	<-c.done
	c.done = nil
	c.state.CompareAndSwap(int32(StateRunning), int32(StateStopped))
	observability.RecordStreamEvent("stop")
}

// Resize asks the producer for a new resolution. The loop is fully quiesced
// before the two-part command goes out and is restarted afterwards.
func (c *Client) Resize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("stream: invalid resolution %dx%d", width, height)
	}
	c.ctl.Lock()
	defer c.ctl.Unlock()

	if w, h := c.Size(); w == width && h == height {
		return nil
	}
	if c.State() == StateFaulted {
		return ErrFaulted
	}
	if c.peer == nil {
		return ErrNoPeer
	}

	span := c.obs.Begin(logging.LevelInfo, "telling producer to resize")
	defer span.End()
	c.stopLocked()

	c.mu.Lock()
	c.width, c.height = width, height
	c.mu.Unlock()

	if err := c.peer.Send(SetResolution); err != nil {
		c.fault(c.peer, err)
		return err
	}
	if err := c.peer.Send(value.Seq(width, height)); err != nil {
		c.fault(c.peer, err)
		return err
	}
	observability.RecordStreamEvent("resize")
	return c.startLocked()
}

// Reset stops the loop and swaps in a fresh connection, clearing any fault.
// The loop is not restarted.
func (c *Client) Reset(peer Peer) {
	c.ctl.Lock()
	defer c.ctl.Unlock()
	c.stopLocked()
	c.peer = peer
	c.mu.Lock()
	c.err = nil
	c.mu.Unlock()
	c.state.Store(int32(StateStopped))
}

// Close stops the loop and closes the connection.
func (c *Client) Close() error {
	c.ctl.Lock()
	defer c.ctl.Unlock()
	c.stopLocked()
	if c.peer == nil {
		return nil
	}
	peer := c.peer
	c.peer = nil
	if c.State() == StateFaulted {
		return nil
	}
	return peer.Close()
}
