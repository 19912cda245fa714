package transport

import (
	"context"
	"testing"
	"time"

	"github.com/afcore/dsp-audio-framework/internal/wire"
)

func TestEnqueueDequeueFIFO(t *testing.T) {
	q := NewQueue(4, nil, nil, true)

	d1 := &wire.Descriptor{Length: 1}
	d2 := &wire.Descriptor{Length: 2}

	if !q.Enqueue(d1) || !q.Enqueue(d2) {
		t.Fatal("expected both enqueues to succeed")
	}

	got1, ok := q.Dequeue()
	if !ok || got1 != d1 {
		t.Fatal("expected FIFO order, got1 mismatch")
	}
	got2, ok := q.Dequeue()
	if !ok || got2 != d2 {
		t.Fatal("expected FIFO order, got2 mismatch")
	}
	if _, ok := q.Dequeue(); ok {
		t.Fatal("expected Dequeue on an empty queue to return false")
	}
}

func TestEnqueueFullReturnsFalse(t *testing.T) {
	q := NewQueue(2, nil, nil, true)
	if !q.Enqueue(&wire.Descriptor{}) || !q.Enqueue(&wire.Descriptor{}) {
		t.Fatal("expected first two enqueues to succeed")
	}
	if q.Enqueue(&wire.Descriptor{}) {
		t.Fatal("expected enqueue on a full queue to return false")
	}
}

func TestFlushInvalidateCalledOncePerOp(t *testing.T) {
	region, err := NewRegion(4096)
	if err != nil {
		t.Fatalf("NewRegion: %v", err)
	}
	defer region.Close()

	q := NewQueue(4, region, nil, false)
	q.Enqueue(&wire.Descriptor{})
	if region.FlushCount() != 1 {
		t.Errorf("expected exactly one flush per enqueue, got %d", region.FlushCount())
	}

	q.Dequeue()
	if region.InvalidateCount() != 1 {
		t.Errorf("expected exactly one invalidate per dequeue, got %d", region.InvalidateCount())
	}
}

func TestCoherentQueueSkipsCacheMaintenance(t *testing.T) {
	region, err := NewRegion(4096)
	if err != nil {
		t.Fatalf("NewRegion: %v", err)
	}
	defer region.Close()

	q := NewQueue(4, region, nil, true)
	q.Enqueue(&wire.Descriptor{})
	q.Dequeue()

	if region.FlushCount() != 0 || region.InvalidateCount() != 0 {
		t.Error("expected a coherent queue to never call Flush/Invalidate")
	}
}

func TestDoorbellRingWakesWaiter(t *testing.T) {
	d, err := NewDoorbell()
	if err != nil {
		t.Fatalf("NewDoorbell: %v", err)
	}
	defer d.Close()

	if err := d.Ring(); err != nil {
		t.Fatalf("Ring: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := d.Wait(ctx); err != nil {
		t.Fatalf("expected Wait to return promptly after Ring, got %v", err)
	}
}

func TestDoorbellWaitTimesOutWithoutRing(t *testing.T) {
	d, err := NewDoorbell()
	if err != nil {
		t.Fatalf("NewDoorbell: %v", err)
	}
	defer d.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := d.Wait(ctx); err == nil {
		t.Error("expected Wait to time out when the doorbell was never rung")
	}
}
