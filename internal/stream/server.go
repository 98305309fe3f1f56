package stream

import (
	"context"
	"errors"
	"net"
	"sync/atomic"

	"github.com/danmuck/sockwrap/internal/logging"
	"github.com/danmuck/sockwrap/internal/wire"
	"golang.org/x/sync/errgroup"
)

// Server runs one Producer session per accepted peer.
type Server struct {
	ln       *wire.Listener
	producer *Producer
	obs      logging.Observer
	active   atomic.Int64
}

// NewServer serves producer on ln, which must already be listening.
func NewServer(ln *wire.Listener, producer *Producer, obs logging.Observer) *Server {
	if obs == nil {
		obs = logging.Nop()
	}
	return &Server{ln: ln, producer: producer, obs: obs}
}

// Active returns the number of peers being served.
func (s *Server) Active() int64 {
	return s.active.Load()
}

// Serve accepts peers until ctx ends or the listener fails. Cancelling ctx
// closes the listener and every open session.
func (s *Server) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		_ = s.ln.Close()
		return nil
	})

	var acceptErr error
	for {
		conn, addr, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
				acceptErr = err
			}
			break
		}
		g.Go(func() error {
			s.handle(gctx, conn, addr)
			return nil
		})
	}
	cancel()
	if err := g.Wait(); err != nil && acceptErr == nil {
		acceptErr = err
	}
	return acceptErr
}

func (s *Server) handle(ctx context.Context, conn *wire.Conn, addr net.Addr) {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer conn.Close()

	active := s.active.Add(1)
	s.obs.Infof("stream.Server peer connected remote=%s id=%s active=%d", addr, conn.ID(), active)
	defer func() {
		remaining := s.active.Add(-1)
		s.obs.Infof("stream.Server peer disconnected remote=%s id=%s active=%d", addr, conn.ID(), remaining)
	}()

	if err := s.producer.Serve(conn); err != nil {
		s.obs.Warnf("stream.Server session remote=%s err=%v", addr, err)
	}
}
