package stream

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danmuck/sockwrap/internal/protocol"
	"github.com/danmuck/sockwrap/internal/protocol/value"
	"github.com/danmuck/sockwrap/internal/testutil/testlog"
	"github.com/danmuck/sockwrap/internal/wire"
)

// fakePeer answers every poll with a 1x1 frame holding the poll count.
type fakePeer struct {
	mu        sync.Mutex
	sent      []value.Value
	polls     int
	failAfter int
	reply     value.Value

	inFlight atomic.Int32
	overlap  atomic.Bool
	closed   atomic.Bool
}

func (p *fakePeer) SendThenReceive(v value.Value, _ ...wire.ReceiveOption) (value.Value, error) {
	p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	time.Sleep(time.Millisecond)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, v)
	p.polls++
	if p.failAfter > 0 && p.polls >= p.failAfter {
		return nil, &protocol.ConnectionLostError{Identity: "fake:1", Cause: io.EOF}
	}
	if p.reply != nil {
		return p.reply, nil
	}
	return value.FromUint8([]int{1, 1}, []uint8{uint8(p.polls)})
}

func (p *fakePeer) Send(v value.Value) error {
	if p.inFlight.Load() > 0 {
		p.overlap.Store(true)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, v)
	return nil
}

func (p *fakePeer) Close() error {
	p.closed.Store(true)
	return nil
}

func (p *fakePeer) Identity() string {
	return "fake:1"
}

func (p *fakePeer) pollCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.polls
}

func (p *fakePeer) log() []value.Value {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]value.Value(nil), p.sent...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestClientStartReadStop(t *testing.T) {
	testlog.Start(t)
	peer := &fakePeer{}
	c := NewClient(peer, WithObserver(testlog.Observer(t)))

	initial := c.Read()
	if !initial.Equal(value.Zeros(value.KindUint8, 4, 4)) {
		t.Fatalf("expected 4x4 zero frame before start, got %v", initial.Shape)
	}
	if c.State() != StateStopped || !c.Idle() {
		t.Fatalf("expected idle stopped client, got %s", c.State())
	}

	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := c.Start(); err != nil {
		t.Fatalf("second start should be a no-op: %v", err)
	}
	waitFor(t, "a polled frame", func() bool { return !c.Read().Equal(initial) })
	if c.State() != StateRunning {
		t.Fatalf("expected running, got %s", c.State())
	}

	c.Stop()
	if c.State() != StateStopped || !c.Idle() {
		t.Fatalf("expected stopped after Stop, got %s idle=%v", c.State(), c.Idle())
	}
	snapshot := c.Read()
	polls := peer.pollCount()
	time.Sleep(20 * time.Millisecond)
	if peer.pollCount() != polls {
		t.Fatalf("loop kept polling after Stop: %d -> %d", polls, peer.pollCount())
	}
	if !c.Read().Equal(snapshot) {
		t.Fatalf("latest frame mutated after Stop")
	}
	for _, v := range peer.log() {
		if !value.Equal(v, CameraSendImage) {
			t.Fatalf("unexpected request %#v", v)
		}
	}
}

func TestClientReadReturnsCopy(t *testing.T) {
	testlog.Start(t)
	c := NewClient(&fakePeer{})
	frame := c.Read()
	frame.Data[0] = 9
	if c.Read().Data[0] != 0 {
		t.Fatalf("Read exposed internal frame storage")
	}
}

func TestClientResizeQuiescesLoop(t *testing.T) {
	testlog.Start(t)
	peer := &fakePeer{}
	c := NewClient(peer)
	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, "first poll", func() bool { return peer.pollCount() > 0 })

	if err := c.Resize(640, 480); err != nil {
		t.Fatalf("resize: %v", err)
	}
	before := peer.pollCount()
	waitFor(t, "poll after resize", func() bool { return peer.pollCount() > before })
	if err := c.Resize(640, 480); err != nil {
		t.Fatalf("unchanged resize: %v", err)
	}
	c.Stop()

	if peer.overlap.Load() {
		t.Fatalf("resize command sent while a poll was in flight")
	}
	if w, h := c.Size(); w != 640 || h != 480 {
		t.Fatalf("expected 640x480, got %dx%d", w, h)
	}

	reqs := peer.log()
	resizes := 0
	for i, v := range reqs {
		if !value.Equal(v, SetResolution) {
			continue
		}
		resizes++
		if i+1 >= len(reqs) || !value.Equal(reqs[i+1], value.Seq(640, 480)) {
			t.Fatalf("resize command not followed by dimensions: %#v", reqs[i+1:])
		}
		for _, after := range reqs[i+2:] {
			if !value.Equal(after, CameraSendImage) {
				t.Fatalf("unexpected request after resize: %#v", after)
			}
		}
	}
	if resizes != 1 {
		t.Fatalf("expected exactly one resize command, got %d", resizes)
	}
}

func TestClientResizeRejectsBadSize(t *testing.T) {
	testlog.Start(t)
	c := NewClient(&fakePeer{})
	if err := c.Resize(0, 480); err == nil {
		t.Fatalf("expected error for zero width")
	}
}

func TestClientFaultsOnConnectionLost(t *testing.T) {
	testlog.Start(t)
	peer := &fakePeer{failAfter: 3}
	c := NewClient(peer, WithObserver(testlog.Observer(t)))
	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, "fault", func() bool { return c.State() == StateFaulted })
	waitFor(t, "loop exit", c.Idle)

	if !errors.Is(c.Err(), protocol.ErrConnectionLost) {
		t.Fatalf("expected ErrConnectionLost, got %v", c.Err())
	}
	if !peer.closed.Load() {
		t.Fatalf("expected dead connection to be closed")
	}
	if err := c.Start(); !errors.Is(err, ErrFaulted) {
		t.Fatalf("expected ErrFaulted on restart, got %v", err)
	}
	if err := c.Resize(10, 10); !errors.Is(err, ErrFaulted) {
		t.Fatalf("expected ErrFaulted on resize, got %v", err)
	}
	c.Stop()
	if c.State() != StateFaulted {
		t.Fatalf("Stop must not clear a fault, got %s", c.State())
	}

	fresh := &fakePeer{}
	c.Reset(fresh)
	if c.State() != StateStopped || c.Err() != nil {
		t.Fatalf("expected clean state after reset, got %s err=%v", c.State(), c.Err())
	}
	if err := c.Start(); err != nil {
		t.Fatalf("start after reset: %v", err)
	}
	waitFor(t, "poll on new peer", func() bool { return fresh.pollCount() > 0 })
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !fresh.closed.Load() {
		t.Fatalf("expected Close to close the peer")
	}
}

func TestClientFaultsOnUnexpectedReply(t *testing.T) {
	testlog.Start(t)
	peer := &fakePeer{reply: value.String("not a frame")}
	c := NewClient(peer)
	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, "fault", func() bool { return c.State() == StateFaulted })
	if !errors.Is(c.Err(), ErrUnexpectedReply) {
		t.Fatalf("expected ErrUnexpectedReply, got %v", c.Err())
	}
}

func TestClientWithoutPeer(t *testing.T) {
	testlog.Start(t)
	c := NewClient(nil)
	if err := c.Start(); !errors.Is(err, ErrNoPeer) {
		t.Fatalf("expected ErrNoPeer, got %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
