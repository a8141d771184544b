package coordinator

import (
	"context"
	"testing"
	"time"
)

func TestLockHandlesSerializesAcquisition(t *testing.T) {
	engine := newTestEngine(1)
	ctx := context.Background()

	release, err := engine.LockHandles(ctx)
	if err != nil {
		t.Fatalf("LockHandles: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		release2, err := engine.LockHandles(ctx)
		if err != nil {
			t.Errorf("second LockHandles: %v", err)
			return
		}
		close(acquired)
		release2()
	}()

	select {
	case <-acquired:
		t.Fatal("second LockHandles acquired before the first was released")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second LockHandles never acquired after release")
	}
}

func TestCalibratedShardsRoundTrip(t *testing.T) {
	engine := newTestEngine(1)
	key := ShapeKey{OutDim: 10, InGroupDim: 2}

	if _, ok := engine.CalibratedShards(key); ok {
		t.Fatal("expected no entry before SetCalibratedShards")
	}
	engine.SetCalibratedShards(key, 4)

	n, ok := engine.CalibratedShards(key)
	if !ok || n != 4 {
		t.Errorf("CalibratedShards(%v) = (%d,%v), want (4,true)", key, n, ok)
	}
}
