package http

import (
	"context"
	"testing"
	"time"
)

func TestServerRunStopsOnCancel(t *testing.T) {
	srv := NewServer("127.0.0.1:0", RouterDeps{}, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(shutdownTimeout + time.Second):
		t.Fatalf("server did not stop")
	}
}

func TestServerRunReportsListenError(t *testing.T) {
	srv := NewServer("256.0.0.1:bad", RouterDeps{}, nil)
	if err := srv.Run(context.Background()); err == nil {
		t.Fatalf("expected listen error")
	}
}
