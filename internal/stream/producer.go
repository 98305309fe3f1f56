package stream

import (
	"errors"
	"fmt"
	"sync"

	"github.com/danmuck/sockwrap/internal/logging"
	"github.com/danmuck/sockwrap/internal/observability"
	"github.com/danmuck/sockwrap/internal/protocol"
	"github.com/danmuck/sockwrap/internal/protocol/value"
	"github.com/danmuck/sockwrap/internal/wire"
)

// MaxDimension bounds resolutions a PatternSource accepts.
const MaxDimension = 8192

var ErrUnexpectedRequest = errors.New("stream: unexpected request")

// Responder is the producer end of a polling session. *wire.Conn satisfies it.
type Responder interface {
	Send(v value.Value) error
	Receive(opts ...wire.ReceiveOption) (value.Value, error)
	Identity() string
}

var _ Responder = (*wire.Conn)(nil)

// FrameSource produces frames at a configurable resolution.
type FrameSource interface {
	Frame() (value.Array, error)
	Resize(width, height int) error
}

// PatternSource renders a moving uint8 gradient shaped height x width.
type PatternSource struct {
	mu     sync.Mutex
	width  int
	height int
	tick   int
}

func NewPatternSource(width, height int) *PatternSource {
	if width <= 0 || height <= 0 {
		width, height = 4, 4
	}
	return &PatternSource{width: width, height: height}
}

func (p *PatternSource) Frame() (value.Array, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	vals := make([]uint8, p.width*p.height)
	for y := 0; y < p.height; y++ {
		row := vals[y*p.width : (y+1)*p.width]
		for x := range row {
			row[x] = uint8(x + y + p.tick + 1)
		}
	}
	p.tick++
	return value.FromUint8([]int{p.height, p.width}, vals)
}

func (p *PatternSource) Resize(width, height int) error {
	if width <= 0 || height <= 0 || width > MaxDimension || height > MaxDimension {
		return fmt.Errorf("stream: resolution %dx%d out of range", width, height)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.width, p.height = width, height
	return nil
}

func (p *PatternSource) Size() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.width, p.height
}

type ProducerOption func(*Producer)

func WithProducerObserver(obs logging.Observer) ProducerOption {
	return func(p *Producer) {
		if obs != nil {
			p.obs = obs
		}
	}
}

// WithLogText sets what a SendLog command is answered with.
func WithLogText(fn func() string) ProducerOption {
	return func(p *Producer) {
		if fn != nil {
			p.logText = fn
		}
	}
}

// Producer answers Client commands from a FrameSource.
type Producer struct {
	src     FrameSource
	obs     logging.Observer
	logText func() string
}

func NewProducer(src FrameSource, opts ...ProducerOption) *Producer {
	p := &Producer{
		src:     src,
		obs:     logging.Nop(),
		logText: func() string { return "" },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Serve handles requests on conn until the peer goes away. Connection loss is
// the normal end of a session and returns nil.
func (p *Producer) Serve(conn Responder) error {
	for {
		req, err := conn.Receive(wire.WithEnumType(Commands))
		if err != nil {
			if errors.Is(err, protocol.ErrConnectionLost) {
				p.obs.Debugf("stream.Producer peer left peer=%s", conn.Identity())
				return nil
			}
			return err
		}
		if err := p.handle(conn, req); err != nil {
			if errors.Is(err, protocol.ErrConnectionLost) {
				return nil
			}
			return err
		}
	}
}

func (p *Producer) handle(conn Responder, req value.Value) error {
	cmd, ok := req.(value.Enum)
	if !ok {
		return fmt.Errorf("%w: %T", ErrUnexpectedRequest, req)
	}
	switch cmd.Raw {
	case CmdCameraSendImage:
		frame, err := p.src.Frame()
		if err != nil {
			return err
		}
		if err := conn.Send(frame); err != nil {
			return err
		}
		observability.RecordStreamEvent("frame_served")
		return nil
	case CmdSetResolution:
		dims, err := conn.Receive()
		if err != nil {
			return err
		}
		width, height, err := parseDims(dims)
		if err != nil {
			return err
		}
		// A rejected size keeps the session in sync, so it only warns.
		if err := p.src.Resize(width, height); err != nil {
			p.obs.Warnf("stream.Producer resize peer=%s err=%v", conn.Identity(), err)
			return nil
		}
		p.obs.Infof("stream.Producer resized peer=%s width=%d height=%d", conn.Identity(), width, height)
		return nil
	case CmdSendLog:
		return conn.Send(value.String(p.logText()))
	default:
		return fmt.Errorf("%w: command %d", ErrUnexpectedRequest, cmd.Raw)
	}
}

func parseDims(v value.Value) (int, int, error) {
	seq, ok := v.(value.Sequence)
	if !ok || len(seq) != 2 {
		return 0, 0, fmt.Errorf("%w: resolution must be a (width, height) pair, got %T", ErrUnexpectedRequest, v)
	}
	w, wok := seq[0].(value.Int)
	h, hok := seq[1].(value.Int)
	if !wok || !hok {
		return 0, 0, fmt.Errorf("%w: resolution must be integers", ErrUnexpectedRequest)
	}
	return int(w), int(h), nil
}
