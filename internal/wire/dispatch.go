package wire

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/danmuck/sockwrap/internal/logging"
	"github.com/danmuck/sockwrap/internal/observability"
	"github.com/danmuck/sockwrap/internal/protocol"
	"github.com/danmuck/sockwrap/internal/protocol/envelope"
	"github.com/danmuck/sockwrap/internal/protocol/value"
)

// ReceiveOption tunes a single Receive call.
type ReceiveOption func(*receiveOptions)

type receiveOptions struct {
	filename string
	dir      string
	enum     *value.EnumType
}

// WithFilename overrides the destination of a received file.
func WithFilename(name string) ReceiveOption {
	return func(o *receiveOptions) { o.filename = name }
}

// WithDir places received files under dir when no filename override is set.
func WithDir(dir string) ReceiveOption {
	return func(o *receiveOptions) { o.dir = dir }
}

// WithEnumType resolves a received enum against t.
func WithEnumType(t value.EnumType) ReceiveOption {
	return func(o *receiveOptions) { o.enum = &t }
}

// Send classifies v and writes its envelope and, for composite values, its
// payload. Order of the cases is the dispatch precedence.
func (c *Conn) Send(v value.Value) error {
	if err := c.usable(); err != nil {
		return err
	}
	return c.check(c.send(v))
}

func (c *Conn) send(v value.Value) error {
	switch x := v.(type) {
	case value.Sequence:
		plain, err := value.ToPlain(x)
		if err != nil {
			return err
		}
		return c.writeEnvelope(envelope.TagSequence, plain)
	case value.String:
		return c.sendString(string(x))
	case value.Int:
		return c.writeEnvelope(envelope.TagInteger, int64(x))
	case value.Enum:
		return c.writeEnvelope(envelope.TagEnum, x.Raw)
	case value.Array:
		return c.sendArray(x)
	case *value.File:
		return c.sendFile(x)
	case nil:
		return fmt.Errorf("%w: nil value", protocol.ErrUnsupportedValue)
	default:
		return c.sendGeneric(v)
	}
}

func (c *Conn) sendString(s string) error {
	if !utf8.ValidString(s) {
		return fmt.Errorf("%w: string is not valid utf-8", protocol.ErrUnsupportedValue)
	}
	if utf8.RuneCountInString(s) < c.cfg.StringThreshold {
		return c.writeEnvelope(envelope.TagShortString, s)
	}
	payload := []byte(s)
	if err := c.ch.CheckSize(len(payload)); err != nil {
		return err
	}
	span := c.obs.Begin(logging.LevelDebug, "sending long string")
	defer span.End()
	if err := c.writeEnvelope(envelope.TagLongString, nil); err != nil {
		return err
	}
	return payloadFailed(c.ch.WriteFrame(payload))
}

func (c *Conn) sendArray(a value.Array) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if err := c.ch.CheckSize(len(a.Data)); err != nil {
		return err
	}
	span := c.obs.Begin(logging.LevelDebug, "sending numeric array")
	defer span.End()
	if err := c.writeEnvelope(envelope.TagNumericArray, a.Header()); err != nil {
		return err
	}
	return payloadFailed(c.ch.WriteFrame(a.Data))
}

func (c *Conn) sendFile(f *value.File) error {
	if f.Size < 0 {
		return fmt.Errorf("%w: file %q has negative size %d", protocol.ErrUnsupportedValue, f.Name, f.Size)
	}
	r, err := f.Reader()
	if err != nil {
		return err
	}
	span := c.obs.Begin(logging.LevelInfo, "sending file "+f.Name)
	defer span.End()
	if err := c.writeEnvelope(envelope.TagFile, f.Header()); err != nil {
		return err
	}
	return payloadFailed(c.ch.SendFrom(r, f.Size))
}

func (c *Conn) sendGeneric(v value.Value) error {
	plain, err := value.ToPlain(v)
	if err != nil {
		return err
	}
	payload, err := envelope.MarshalGeneric(plain)
	if err != nil {
		return err
	}
	if err := c.ch.CheckSize(len(payload)); err != nil {
		return err
	}
	c.obs.Warnf("wire.Send %T uses generic serialization: slow and not portable", v)
	if err := c.writeEnvelope(envelope.TagGenericValue, nil); err != nil {
		return err
	}
	return payloadFailed(c.ch.WriteFrame(payload))
}

// payloadFailed marks any failure after an envelope went out as fatal: the
// peer is already waiting for the payload.
func payloadFailed(err error) error {
	if err == nil || protocol.Fatal(err) {
		return err
	}
	return fmt.Errorf("%w: payload not sent after envelope: %w", protocol.ErrMalformedMessage, err)
}

func (c *Conn) writeEnvelope(tag envelope.Tag, inline any) error {
	b, err := envelope.Encode(envelope.Envelope{Tag: tag, Inline: inline})
	if err != nil {
		return err
	}
	if err := c.ch.WriteFrame(b); err != nil {
		return err
	}
	observability.RecordMessage(observability.DirectionOut, tag.String())
	return nil
}

// Receive reads one logical message. Options only matter for the File and
// Enum paths.
func (c *Conn) Receive(opts ...ReceiveOption) (value.Value, error) {
	if err := c.usable(); err != nil {
		return nil, err
	}
	var o receiveOptions
	for _, opt := range opts {
		opt(&o)
	}
	v, err := c.receive(o)
	return v, c.check(err)
}

func (c *Conn) receive(o receiveOptions) (value.Value, error) {
	b, err := c.ch.ReadFrame()
	if err != nil {
		return nil, err
	}
	env, err := envelope.Decode(b)
	if err != nil {
		return nil, err
	}
	observability.RecordMessage(observability.DirectionIn, env.Tag.String())

	switch env.Tag {
	case envelope.TagShortString:
		s, ok := env.Inline.(string)
		if !ok {
			return nil, inlineMismatch(env)
		}
		return value.String(s), nil
	case envelope.TagLongString:
		payload, err := c.ch.ReadFrame()
		if err != nil {
			return nil, err
		}
		if !utf8.Valid(payload) {
			return nil, fmt.Errorf("%w: long string is not valid utf-8", protocol.ErrMalformedMessage)
		}
		return value.String(payload), nil
	case envelope.TagInteger:
		n, ok := env.Inline.(int64)
		if !ok {
			return nil, inlineMismatch(env)
		}
		return value.Int(n), nil
	case envelope.TagEnum:
		raw, ok := env.Inline.(int64)
		if !ok {
			return nil, inlineMismatch(env)
		}
		if o.enum != nil {
			e, err := o.enum.Resolve(raw)
			if err != nil {
				return nil, err
			}
			return e, nil
		}
		return value.Enum{Raw: raw}, nil
	case envelope.TagNumericArray:
		return c.receiveArray(env)
	case envelope.TagFile:
		return c.receiveFile(env, o)
	case envelope.TagGenericValue:
		payload, err := c.ch.ReadFrame()
		if err != nil {
			return nil, err
		}
		plain, err := envelope.UnmarshalGeneric(payload)
		if err != nil {
			return nil, err
		}
		return value.FromPlain(plain)
	case envelope.TagSequence:
		if _, ok := env.Inline.([]any); !ok {
			return nil, inlineMismatch(env)
		}
		return value.FromPlain(env.Inline)
	default:
		return nil, fmt.Errorf("%w: %d", protocol.ErrUnknownTag, env.Tag)
	}
}

func (c *Conn) receiveArray(env envelope.Envelope) (value.Value, error) {
	a, err := value.ParseHeader(env.Inline)
	if err != nil {
		return nil, err
	}
	payload, err := c.ch.ReadFrame()
	if err != nil {
		return nil, err
	}
	a.Data = payload
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

func (c *Conn) receiveFile(env envelope.Envelope, o receiveOptions) (value.Value, error) {
	size, name, err := value.ParseFileHeader(env.Inline)
	if err != nil {
		return nil, err
	}
	path := o.filename
	if path == "" {
		base := filepath.Base(name)
		if base == "." || base == string(filepath.Separator) || base == ".." {
			return nil, fmt.Errorf("%w: file name %q", protocol.ErrMalformedMessage, name)
		}
		path = filepath.Join(o.dir, base)
	}

	span := c.obs.Begin(logging.LevelInfo, "receiving file "+path)
	defer span.End()

	sink := &fileSink{}
	f, openErr := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if openErr == nil {
		sink.w = f
	} else {
		sink.err = openErr
	}
	err = c.ch.CopyTo(sink, size, func(done int64) { span.Progress(done, size) })
	if f != nil {
		if cerr := f.Close(); cerr != nil && sink.err == nil {
			sink.err = cerr
		}
	}
	if err != nil {
		return nil, err
	}
	if sink.err != nil {
		return nil, fmt.Errorf("wire: write %s: %w", path, sink.err)
	}
	return value.Received{Path: path, Size: size}, nil
}

// fileSink keeps draining after a local write error so the stream stays in
// sync with the peer.
type fileSink struct {
	w   io.Writer
	err error
}

func (s *fileSink) Write(p []byte) (int, error) {
	if s.err != nil {
		return len(p), nil
	}
	if _, err := s.w.Write(p); err != nil {
		s.err = err
	}
	return len(p), nil
}

func inlineMismatch(env envelope.Envelope) error {
	return fmt.Errorf("%w: %s envelope carries %T", protocol.ErrMalformedMessage, env.Tag, env.Inline)
}
