package wire

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/danmuck/sockwrap/internal/logging"
	"github.com/danmuck/sockwrap/internal/protocol"
	"github.com/danmuck/sockwrap/internal/protocol/frame"
	"github.com/danmuck/sockwrap/internal/protocol/value"
	"github.com/google/uuid"
)

var ErrClosed = errors.New("wire: connection closed")

// Conn is one framed, self-describing message connection. A Conn is not safe
// for concurrent use: at most one Send and one Receive may be in flight, and
// request/response pairs must be serialized by the caller.
type Conn struct {
	id   string
	raw  net.Conn
	ch   *frame.Channel
	cfg  Config
	obs  logging.Observer
	peer string

	mu        sync.Mutex
	fault     error
	closed    bool
	onClose   []func()
	closeOnce sync.Once
}

// NewConn wraps an already connected socket.
func NewConn(raw net.Conn, cfg Config) *Conn {
	cfg = cfg.WithDefaults()
	peer := ""
	if addr := raw.RemoteAddr(); addr != nil {
		peer = addr.String()
	}
	return &Conn{
		id:   uuid.NewString(),
		raw:  raw,
		ch:   frame.NewChannel(raw, cfg.frameOptions(peer)),
		cfg:  cfg,
		obs:  cfg.Observer,
		peer: peer,
	}
}

// Connect dials address:port. Only the dial is bounded by cfg.ConnectTimeout.
func Connect(ctx context.Context, address string, port int, cfg Config) (*Conn, error) {
	if err := ValidateEndpoint(address, port, false); err != nil {
		return nil, err
	}
	cfg = cfg.WithDefaults()
	dialer := net.Dialer{Timeout: cfg.ConnectTimeout}
	raw, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(address, strconv.Itoa(port)))
	if err != nil {
		return nil, err
	}
	c := NewConn(raw, cfg)
	c.obs.Debugf("wire.Connect id=%s peer=%s", c.id, c.peer)
	return c, nil
}

func (c *Conn) ID() string {
	return c.id
}

// Identity is the remote addr:port used in ConnectionLost errors.
func (c *Conn) Identity() string {
	return c.peer
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.raw.RemoteAddr()
}

func (c *Conn) LocalAddr() net.Addr {
	return c.raw.LocalAddr()
}

// OnClose registers fn to run once when the connection closes.
func (c *Conn) OnClose(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = append(c.onClose, fn)
}

// Err returns the fatal error that ended the connection, if any.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fault
}

func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		hooks := c.onClose
		c.onClose = nil
		c.mu.Unlock()
		err = c.raw.Close()
		for _, fn := range hooks {
			fn()
		}
		c.obs.Debugf("wire.Close id=%s peer=%s", c.id, c.peer)
	})
	return err
}

// SendThenReceive sends v and waits for the peer's reply.
func (c *Conn) SendThenReceive(v value.Value, opts ...ReceiveOption) (value.Value, error) {
	if err := c.Send(v); err != nil {
		return nil, err
	}
	return c.Receive(opts...)
}

// ReceiveThenSend waits for one message, answers with v and returns what was
// received.
func (c *Conn) ReceiveThenSend(v value.Value, opts ...ReceiveOption) (value.Value, error) {
	got, err := c.Receive(opts...)
	if err != nil {
		return nil, err
	}
	if err := c.Send(v); err != nil {
		return nil, err
	}
	return got, nil
}

func (c *Conn) usable() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fault != nil {
		return c.fault
	}
	if c.closed {
		return ErrClosed
	}
	return nil
}

// check records protocol and transport failures as terminal for this Conn.
func (c *Conn) check(err error) error {
	if err == nil || !protocol.Fatal(err) {
		return err
	}
	c.mu.Lock()
	if c.fault == nil {
		c.fault = err
	}
	c.mu.Unlock()
	return err
}

// Listener accepts peers on a bound address.
type Listener struct {
	address string
	port    int
	cfg     Config
	ln      net.Listener
	backlog int
}

// Bind validates and records the local endpoint. The socket opens on Listen.
func Bind(address string, port int, cfg Config) (*Listener, error) {
	if err := ValidateEndpoint(address, port, true); err != nil {
		return nil, err
	}
	return &Listener{address: address, port: port, cfg: cfg.WithDefaults()}, nil
}

// Listen opens the listening socket. The kernel backlog is chosen by the Go
// runtime; backlog is recorded for reporting only.
func (l *Listener) Listen(backlog int) error {
	if l.ln != nil {
		return fmt.Errorf("wire: listener already open on %s", l.ln.Addr())
	}
	if backlog < 0 {
		return fmt.Errorf("wire: invalid backlog %d", backlog)
	}
	ln, err := net.Listen("tcp", net.JoinHostPort(l.address, strconv.Itoa(l.port)))
	if err != nil {
		return err
	}
	l.ln = ln
	l.backlog = backlog
	l.cfg.Observer.Infof("wire.Listen addr=%s backlog=%d", ln.Addr(), backlog)
	return nil
}

// Accept waits for a peer and wraps it in a new Conn that shares nothing with
// the listener.
func (l *Listener) Accept() (*Conn, net.Addr, error) {
	if l.ln == nil {
		return nil, nil, fmt.Errorf("wire: accept before listen")
	}
	raw, err := l.ln.Accept()
	if err != nil {
		return nil, nil, err
	}
	c := NewConn(raw, l.cfg)
	l.cfg.Observer.Debugf("wire.Accept id=%s peer=%s", c.id, c.peer)
	return c, raw.RemoteAddr(), nil
}

func (l *Listener) Addr() net.Addr {
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// Port returns the bound port, resolving port 0 after Listen.
func (l *Listener) Port() int {
	if tcp, ok := l.Addr().(*net.TCPAddr); ok {
		return tcp.Port
	}
	return l.port
}

func (l *Listener) Close() error {
	if l.ln == nil {
		return nil
	}
	return l.ln.Close()
}

// ValidateEndpoint checks address and port locally without any I/O. An empty
// address is only accepted for listeners.
func ValidateEndpoint(address string, port int, listen bool) error {
	minPort := 1
	if listen {
		minPort = 0
	}
	if port < minPort || port > 65535 {
		return protocol.InvalidEndpoint(address, port)
	}
	if address == "" {
		if listen {
			return nil
		}
		return protocol.InvalidEndpoint(address, port)
	}
	if net.ParseIP(address) != nil || validHostname(address) {
		return nil
	}
	return protocol.InvalidEndpoint(address, port)
}

func validHostname(host string) bool {
	host = strings.TrimSuffix(host, ".")
	if host == "" || len(host) > 253 {
		return false
	}
	for _, label := range strings.Split(host, ".") {
		if label == "" || len(label) > 63 {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for _, r := range label {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			default:
				return false
			}
		}
	}
	return true
}
