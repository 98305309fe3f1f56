package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"net"

	"github.com/danmuck/sockwrap/internal/observability"
	"github.com/danmuck/sockwrap/internal/protocol"
)

const (
	LengthPrefixLen = 4
	// DefaultChunkSize caps the bytes requested from the transport per Read.
	DefaultChunkSize = 256
)

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxFrameBytes uint64
}

func DefaultLimits() Limits {
	return Limits{
		MaxFrameBytes: 256 * 1024 * 1024,
	}
}

func (l Limits) maxFrame() uint64 {
	if l.MaxFrameBytes == 0 || l.MaxFrameBytes > math.MaxUint32 {
		return math.MaxUint32
	}
	return l.MaxFrameBytes
}

// Capabilities describes what the underlying transport can do.
type Capabilities struct {
	// ScatterRead is true when the transport can fill a caller-provided slice
	// directly. Transports without it are read through a bounded scratch buffer.
	ScatterRead bool
}

// Options configures a Channel.
type Options struct {
	Identity  string
	ChunkSize int
	Limits    Limits
	Caps      Capabilities
}

func DefaultOptions() Options {
	return Options{
		ChunkSize: DefaultChunkSize,
		Limits:    DefaultLimits(),
		Caps:      Capabilities{ScatterRead: true},
	}
}

// Channel is a length-prefixed frame transport over one connected stream.
// It is not safe for concurrent use in the same direction.
type Channel struct {
	rw       io.ReadWriter
	identity string
	chunk    int
	limits   Limits
	caps     Capabilities
	scratch  []byte
}

func NewChannel(rw io.ReadWriter, opts Options) *Channel {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	c := &Channel{
		rw:       rw,
		identity: opts.Identity,
		chunk:    opts.ChunkSize,
		limits:   opts.Limits,
		caps:     opts.Caps,
	}
	if !c.caps.ScatterRead {
		c.scratch = make([]byte, c.chunk)
	}
	return c
}

func (c *Channel) Identity() string {
	return c.identity
}

// CheckSize returns ErrFrameTooLarge when an n byte payload cannot be framed.
// Nothing is written, so callers can reject a message before any part of it
// reaches the peer.
func (c *Channel) CheckSize(n int) error {
	if n < 0 || uint64(n) > c.limits.maxFrame() {
		return fmt.Errorf("%w: %d bytes, limit %d", protocol.ErrFrameTooLarge, n, c.limits.maxFrame())
	}
	return nil
}

// WriteFrame writes the big-endian length followed by payload. The call either
// delivers both or fails with a ConnectionLostError.
func (c *Channel) WriteFrame(payload []byte) error {
	if err := c.CheckSize(len(payload)); err != nil {
		return err
	}
	var prefix [LengthPrefixLen]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(payload)))

	bufs := net.Buffers{prefix[:], payload}
	n, err := bufs.WriteTo(c.rw)
	if err != nil {
		return c.lost(err)
	}
	if n != int64(LengthPrefixLen+len(payload)) {
		return c.lost(io.ErrShortWrite)
	}
	observability.RecordFrame(observability.DirectionOut, n)
	return nil
}

// ReadFrame reads one length-prefixed frame.
func (c *Channel) ReadFrame() ([]byte, error) {
	var prefix [LengthPrefixLen]byte
	if err := c.readExact(prefix[:]); err != nil {
		return nil, err
	}
	size := uint64(binary.BigEndian.Uint32(prefix[:]))
	if size > c.limits.maxFrame() {
		return nil, fmt.Errorf("%w: frame length %d exceeds limit %d", protocol.ErrMalformedMessage, size, c.limits.maxFrame())
	}
	payload := make([]byte, size)
	if err := c.readExact(payload); err != nil {
		return nil, err
	}
	observability.RecordFrame(observability.DirectionIn, int64(LengthPrefixLen+len(payload)))
	return payload, nil
}

// CopyTo streams exactly n raw (unframed) bytes from the peer into dst, one
// chunk at a time. progress, when set, is called with the running total.
func (c *Channel) CopyTo(dst io.Writer, n int64, progress func(done int64)) error {
	buf := c.scratch
	if buf == nil {
		buf = make([]byte, c.chunk)
	}
	var done int64
	for done < n {
		want := int64(len(buf))
		if rem := n - done; rem < want {
			want = rem
		}
		got, err := c.rw.Read(buf[:want])
		if got > 0 {
			if _, werr := dst.Write(buf[:got]); werr != nil {
				return werr
			}
			done += int64(got)
			if progress != nil {
				progress(done)
			}
		}
		if done == n {
			break
		}
		if err != nil || got == 0 {
			return c.lost(err)
		}
	}
	observability.RecordFrame(observability.DirectionIn, n)
	return nil
}

// SendFrom streams exactly n raw bytes from src to the peer. A failing src is
// reported as ErrSourceRead rather than a lost connection; both are fatal
// because part of the stream may already be on the wire.
func (c *Channel) SendFrom(src io.Reader, n int64) error {
	if n == 0 {
		return nil
	}
	rec := &sourceReader{r: io.LimitReader(src, n)}
	sent, err := io.Copy(c.rw, rec)
	if rec.err != nil {
		return fmt.Errorf("%w: %d of %d bytes sent: %v", protocol.ErrSourceRead, sent, n, rec.err)
	}
	if err != nil {
		return c.lost(err)
	}
	if sent != n {
		return fmt.Errorf("%w: source yielded %d of %d bytes", protocol.ErrMalformedMessage, sent, n)
	}
	observability.RecordFrame(observability.DirectionOut, n)
	return nil
}

// sourceReader remembers the first non-EOF error of the local source.
type sourceReader struct {
	r   io.Reader
	err error
}

func (s *sourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && err != io.EOF && s.err == nil {
		s.err = err
	}
	return n, err
}

func (c *Channel) readExact(dst []byte) error {
	for off := 0; off < len(dst); {
		want := len(dst) - off
		if want > c.chunk {
			want = c.chunk
		}
		var (
			got int
			err error
		)
		if c.caps.ScatterRead {
			got, err = c.rw.Read(dst[off : off+want])
		} else {
			got, err = c.rw.Read(c.scratch[:want])
			copy(dst[off:], c.scratch[:got])
		}
		off += got
		if off == len(dst) {
			return nil
		}
		if err != nil || got == 0 {
			return c.lost(err)
		}
	}
	return nil
}

func (c *Channel) lost(cause error) error {
	if cause == nil {
		cause = io.ErrUnexpectedEOF
	}
	var lost *protocol.ConnectionLostError
	if errors.As(cause, &lost) {
		return cause
	}
	return &protocol.ConnectionLostError{Identity: c.identity, Cause: cause}
}
