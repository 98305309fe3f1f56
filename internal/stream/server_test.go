package stream

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/danmuck/sockwrap/internal/protocol/value"
	"github.com/danmuck/sockwrap/internal/testutil/testlog"
	"github.com/danmuck/sockwrap/internal/wire"
)

func TestPatternSourceFrames(t *testing.T) {
	src := NewPatternSource(3, 2)
	a, err := src.Frame()
	if err != nil {
		t.Fatalf("frame: %v", err)
	}
	if len(a.Shape) != 2 || a.Shape[0] != 2 || a.Shape[1] != 3 || a.Kind != value.KindUint8 {
		t.Fatalf("unexpected frame layout %v %s", a.Shape, a.Kind)
	}
	b, _ := src.Frame()
	if a.Equal(b) {
		t.Fatalf("expected consecutive frames to differ")
	}
	if err := src.Resize(0, 10); err == nil {
		t.Fatalf("expected error for zero width")
	}
	if err := src.Resize(MaxDimension+1, 10); err == nil {
		t.Fatalf("expected error for oversized width")
	}
	if err := src.Resize(8, 6); err != nil {
		t.Fatalf("resize: %v", err)
	}
	if w, h := src.Size(); w != 8 || h != 6 {
		t.Fatalf("expected 8x6, got %dx%d", w, h)
	}
}

func TestProducerAnswersCommands(t *testing.T) {
	testlog.Start(t)
	a, b := net.Pipe()
	client := wire.NewConn(a, wire.DefaultConfig())
	server := wire.NewConn(b, wire.DefaultConfig())
	defer server.Close()

	src := NewPatternSource(4, 4)
	producer := NewProducer(src,
		WithProducerObserver(testlog.Observer(t)),
		WithLogText(func() string { return "camera ok" }),
	)
	served := make(chan error, 1)
	go func() { served <- producer.Serve(server) }()

	got, err := client.SendThenReceive(CameraSendImage)
	if err != nil {
		t.Fatalf("request frame: %v", err)
	}
	if arr, ok := got.(value.Array); !ok || arr.Shape[0] != 4 || arr.Shape[1] != 4 {
		t.Fatalf("unexpected frame %#v", got)
	}

	if err := client.Send(SetResolution); err != nil {
		t.Fatalf("send resize: %v", err)
	}
	if err := client.Send(value.Seq(8, 6)); err != nil {
		t.Fatalf("send dims: %v", err)
	}
	got, err = client.SendThenReceive(CameraSendImage)
	if err != nil {
		t.Fatalf("request resized frame: %v", err)
	}
	if arr := got.(value.Array); arr.Shape[0] != 6 || arr.Shape[1] != 8 {
		t.Fatalf("expected 6x8 frame, got %v", arr.Shape)
	}

	// A rejected size leaves the session usable.
	if err := client.Send(SetResolution); err != nil {
		t.Fatalf("send resize: %v", err)
	}
	if err := client.Send(value.Seq(0, 6)); err != nil {
		t.Fatalf("send dims: %v", err)
	}

	got, err = client.SendThenReceive(SendLog)
	if err != nil {
		t.Fatalf("request log: %v", err)
	}
	if got != value.String("camera ok") {
		t.Fatalf("unexpected log reply %#v", got)
	}
	if w, h := src.Size(); w != 8 || h != 6 {
		t.Fatalf("rejected resize changed the source to %dx%d", w, h)
	}

	_ = client.Close()
	select {
	case err := <-served:
		if err != nil {
			t.Fatalf("serve returned %v on peer close", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("producer did not notice peer close")
	}
}

func TestProducerRejectsNonCommand(t *testing.T) {
	testlog.Start(t)
	a, b := net.Pipe()
	client := wire.NewConn(a, wire.DefaultConfig())
	defer client.Close()
	server := wire.NewConn(b, wire.DefaultConfig())
	defer server.Close()

	served := make(chan error, 1)
	go func() { served <- NewProducer(NewPatternSource(2, 2)).Serve(server) }()
	if err := client.Send(value.Int(1)); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := <-served; !errors.Is(err, ErrUnexpectedRequest) {
		t.Fatalf("expected ErrUnexpectedRequest, got %v", err)
	}
}

func TestServerStreamsToClient(t *testing.T) {
	testlog.Start(t)
	cfg := wire.DefaultConfig()
	ln, err := wire.Bind("127.0.0.1", 0, cfg)
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	if err := ln.Listen(4); err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv := NewServer(ln, NewProducer(NewPatternSource(4, 3)), testlog.Observer(t))
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ctx) }()

	conn, err := wire.Connect(ctx, "127.0.0.1", ln.Port(), cfg)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	client := NewClient(conn, WithObserver(testlog.Observer(t)))
	initial := client.Read()
	if err := client.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, "first frame", func() bool { return !client.Read().Equal(initial) })
	waitFor(t, "server session", func() bool { return srv.Active() == 1 })

	if err := client.Resize(16, 9); err != nil {
		t.Fatalf("resize: %v", err)
	}
	waitFor(t, "resized frame", func() bool {
		f := client.Read()
		return len(f.Shape) == 2 && f.Shape[0] == 9 && f.Shape[1] == 16
	})

	client.Stop()
	snapshot := client.Read()
	time.Sleep(20 * time.Millisecond)
	if !client.Read().Equal(snapshot) {
		t.Fatalf("frame changed after Stop")
	}

	// Cancelling the server drops the session; a restarted loop faults.
	cancel()
	select {
	case err := <-served:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("server did not stop on cancel")
	}
	if err := client.Start(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	waitFor(t, "fault after server shutdown", func() bool { return client.State() == StateFaulted })
	waitFor(t, "loop exit", client.Idle)
}
