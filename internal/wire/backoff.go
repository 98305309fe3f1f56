package wire

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/danmuck/sockwrap/internal/protocol"
)

// NextBackoffDelay returns the retry delay for attempt N (1-based).
func NextBackoffDelay(cfg BackoffConfig, attempt int, rng *rand.Rand) time.Duration {
	if attempt <= 1 {
		return cfg.InitialDelay
	}
	if cfg.InitialDelay <= 0 {
		return 0
	}
	if cfg.Multiplier < 1.0 {
		cfg.Multiplier = 1.0
	}
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		f := 0.5
		if rng != nil {
			f = 0.5 + rng.Float64()
		}
		delay = delay * f
	}
	return time.Duration(delay)
}

// DialWithBackoff calls Connect until it succeeds, ctx ends, or attempts run
// out (attempts <= 0 retries forever). Invalid endpoints fail immediately.
func DialWithBackoff(ctx context.Context, address string, port int, cfg Config, attempts int) (*Conn, error) {
	cfg = cfg.WithDefaults()
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	for attempt := 1; ; attempt++ {
		conn, err := Connect(ctx, address, port, cfg)
		if err == nil {
			return conn, nil
		}
		if errors.Is(err, protocol.ErrInvalidAddressOrPort) {
			return nil, err
		}
		cfg.Observer.Warnf("wire.DialWithBackoff attempt=%d addr=%s:%d err=%v", attempt, address, port, err)
		if attempts > 0 && attempt >= attempts {
			return nil, err
		}
		timer := time.NewTimer(NextBackoffDelay(cfg.Backoff, attempt, rng))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}
