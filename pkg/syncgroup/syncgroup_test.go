package syncgroup

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunAndWait(t *testing.T) {
	g := NewSyncGroup()
	var n atomic.Int32
	for i := 0; i < 3; i++ {
		g.Add("worker", func(ctx context.Context) error {
			<-ctx.Done()
			n.Add(1)
			return ctx.Err()
		})
	}
	g.Add("fails", func(context.Context) error { return errors.New("boom") })
	g.Add("panics", func(context.Context) error { panic("boom") })

	ctx, cancel := context.WithCancel(context.Background())
	g.Run(ctx)
	time.Sleep(10 * time.Millisecond)
	if got := g.Running(); got != 3 {
		t.Fatalf("running = %d, want 3", got)
	}

	cancel()
	done := make(chan struct{})
	go func() { g.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after cancel")
	}
	if n.Load() != 3 {
		t.Fatalf("workers stopped = %d", n.Load())
	}
	if g.Running() != 0 {
		t.Fatalf("running after wait = %d", g.Running())
	}
}
