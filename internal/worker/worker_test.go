package worker

import (
	"context"
	"testing"
	"time"

	"github.com/afcore/dsp-audio-framework/internal/registry"
	"github.com/afcore/dsp-audio-framework/internal/wire"
)

type fakeProcessor struct {
	id        registry.ClientID
	processed []*wire.Descriptor
	sliceRuns int
	rc        int
}

func (f *fakeProcessor) ID() registry.ClientID { return f.id }
func (f *fakeProcessor) ProcessMessage(msg *wire.Descriptor) int {
	f.processed = append(f.processed, msg)
	return f.rc
}
func (f *fakeProcessor) Process() int {
	f.sliceRuns++
	return f.rc
}

func TestWorkerDispatchesMessage(t *testing.T) {
	proc := &fakeProcessor{id: 1}
	lookup := func(id registry.ClientID) (Processor, bool) { return proc, id == proc.id }

	var torndown Processor
	w := New(1, 10, 64, lookup, func(p Processor) { torndown = p }, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	msg := &wire.Descriptor{Opcode: wire.OpFillThisBuffer}
	if err := w.Submit(ctx, Item{Component: proc, Message: msg}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	deadline := time.After(time.Second)
	for len(proc.processed) == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for message dispatch")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	if proc.processed[0] != msg {
		t.Error("expected the submitted message to reach ProcessMessage")
	}
	if torndown != nil {
		t.Error("expected no teardown for rc == 0")
	}

	cancel()
	<-done
}

func TestWorkerDropsMessageForDeletedClient(t *testing.T) {
	proc := &fakeProcessor{id: 1}
	lookup := func(id registry.ClientID) (Processor, bool) { return nil, false }

	w := New(1, 10, 64, lookup, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	msg := &wire.Descriptor{}
	_ = w.Submit(ctx, Item{Component: proc, Message: msg})
	time.Sleep(10 * time.Millisecond)

	if len(proc.processed) != 0 {
		t.Error("expected message for a deleted client to be dropped, not dispatched")
	}
}

func TestBaseCancelDropsSelfScheduledWork(t *testing.T) {
	proc := &fakeProcessor{id: 1}
	lookup := func(id registry.ClientID) (Processor, bool) { return proc, true }

	w := New(1, 10, 64, lookup, nil, nil)
	w.MarkCancelled(proc.id)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	_ = w.Submit(ctx, Item{Component: proc})
	time.Sleep(10 * time.Millisecond)

	if proc.sliceRuns != 0 {
		t.Error("expected a cancelled component's self-scheduled item to be dropped")
	}
}

func TestWorkerRunsScheduledTimeSliceWithoutAnyMessage(t *testing.T) {
	proc := &fakeProcessor{id: 1}
	lookup := func(id registry.ClientID) (Processor, bool) { return proc, true }

	w := New(1, 10, 64, lookup, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	w.SchedulePut(proc, 0)

	deadline := time.After(time.Second)
	for proc.sliceRuns == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for scheduled time-slice")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	if len(proc.processed) != 0 {
		t.Error("expected a scheduled time-slice to run Process, not ProcessMessage")
	}
}

func TestMarkCancelledRemovesScheduledEntry(t *testing.T) {
	proc := &fakeProcessor{id: 1}
	lookup := func(id registry.ClientID) (Processor, bool) { return proc, true }

	w := New(1, 10, 64, lookup, nil, nil)
	w.SchedulePut(proc, 0)
	w.MarkCancelled(proc.id)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)
	time.Sleep(10 * time.Millisecond)

	if proc.sliceRuns != 0 {
		t.Error("expected MarkCancelled to remove an already-scheduled entry")
	}
}

func TestWorkerForPriorityClamps(t *testing.T) {
	p := NewPool(2, 10, 64, nil, nil, nil) // workers 0,1,2

	if w := p.WorkerForPriority(1); w.Index() != 1 {
		t.Errorf("expected priority 1 to map to worker 1, got %d", w.Index())
	}
	if w := p.WorkerForPriority(99); w.Index() != 2 {
		t.Errorf("expected an out-of-range priority to clamp to the highest worker, got %d", w.Index())
	}
}

func TestDefaultPriorityScenario6(t *testing.T) {
	// n_rt=3, base=4, bg=2: default priority is n_rt-1=2, and base+2=6 is
	// not less than bg=2, so it is not promoted to background.
	if got := DefaultPriority(3, 4, 2); got != 2 {
		t.Errorf("expected default priority 2 per scenario 6, got %d", got)
	}
}

func TestDefaultPriorityPromotedToBackground(t *testing.T) {
	// A low rtBase can make the RT tier less urgent than the background
	// priority, in which case the component is promoted to worker 0.
	if got := DefaultPriority(3, 0, 10); got != 0 {
		t.Errorf("expected promotion to background, got %d", got)
	}
}

func TestPoolStartStop(t *testing.T) {
	p := NewPool(1, 10, 64, func(registry.ClientID) (Processor, bool) { return nil, false }, nil, nil)
	ctx := context.Background()
	p.Start(ctx)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := p.Stop(stopCtx); err != nil {
		t.Errorf("expected clean pool shutdown, got %v", err)
	}
}
