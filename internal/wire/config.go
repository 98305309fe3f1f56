package wire

import (
	"time"

	"github.com/danmuck/sockwrap/internal/logging"
	"github.com/danmuck/sockwrap/internal/protocol/frame"
)

// DefaultStringThreshold is the length at which strings leave the envelope.
const DefaultStringThreshold = 256

// Transport names the socket family behind a Conn and what it can do.
type Transport struct {
	Name string
	// ScatterRead is false for transports that cannot receive into a
	// caller-provided buffer; those are read through a bounded scratch buffer.
	ScatterRead bool
}

var (
	TransportTCP    = Transport{Name: "tcp", ScatterRead: true}
	TransportRFCOMM = Transport{Name: "rfcomm", ScatterRead: false}
)

// BackoffConfig defines reconnect backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config controls connection setup and the send/receive pipeline.
type Config struct {
	// ConnectTimeout bounds the dial only; send and receive never time out.
	ConnectTimeout  time.Duration
	StringThreshold int
	ChunkSize       int
	Limits          frame.Limits
	Transport       Transport
	Observer        logging.Observer
	Backoff         BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		ConnectTimeout:  2 * time.Second,
		StringThreshold: DefaultStringThreshold,
		ChunkSize:       frame.DefaultChunkSize,
		Limits:          frame.DefaultLimits(),
		Transport:       TransportTCP,
		Observer:        logging.Nop(),
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.StringThreshold <= 0 {
		c.StringThreshold = def.StringThreshold
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = def.ChunkSize
	}
	if c.Limits.MaxFrameBytes == 0 {
		c.Limits = def.Limits
	}
	if c.Transport.Name == "" {
		c.Transport = def.Transport
	}
	if c.Observer == nil {
		c.Observer = def.Observer
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff = def.Backoff
	}
	return c
}

func (c Config) frameOptions(identity string) frame.Options {
	return frame.Options{
		Identity:  identity,
		ChunkSize: c.ChunkSize,
		Limits:    c.Limits,
		Caps:      frame.Capabilities{ScatterRead: c.Transport.ScatterRead},
	}
}
