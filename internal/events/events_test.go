package events

import (
	"testing"

	"github.com/afcore/dsp-audio-framework/internal/msgpool"
)

func newPool(n int) *msgpool.Pool {
	return msgpool.New(n)
}

func TestCreatePreloadsBuffers(t *testing.T) {
	pool := newPool(4)
	chain := NewChain(nil, nil)

	c := chain.Create(1, 2, 0, false, 0, pool, 3)

	if c.Pending() != 3 {
		t.Errorf("expected 3 preloaded buffers, got %d", c.Pending())
	}
	if !c.IsActive() {
		t.Error("expected a freshly created channel to be active")
	}
}

func TestDestroyReturnsAllBuffersAndUnlinks(t *testing.T) {
	pool := newPool(4)
	chain := NewChain(nil, nil)
	c := chain.Create(1, 2, 0, false, 0, pool, 4)

	chain.Destroy(c)

	if c.Pending() != 0 {
		t.Errorf("expected destroy to zero pending buffers, got %d", c.Pending())
	}
	if _, ok := chain.Find(1, 2); ok {
		t.Error("expected destroy to unlink the channel from the chain")
	}
	if c.IsActive() {
		t.Error("expected destroy to deactivate the channel")
	}
}

func TestRelayDeliversAndResubmits(t *testing.T) {
	pool := newPool(4)
	var delivered []uint32
	resubmitted := 0
	chain := NewChain(
		func(src, evt uint32, payload []byte, fatal bool) { delivered = append(delivered, evt) },
		func(payload []byte) error { resubmitted++; return nil },
	)
	chain.Create(1, 2, 0, false, 0, pool, 1)

	chain.Relay(1, 2, []byte("payload"), false)

	if len(delivered) != 1 || delivered[0] != 2 {
		t.Errorf("expected the handler to be invoked with event id 2, got %v", delivered)
	}
	if resubmitted != 1 {
		t.Errorf("expected one resubmit, got %d", resubmitted)
	}
}

func TestRelayUnknownChannelDropped(t *testing.T) {
	called := false
	chain := NewChain(func(uint32, uint32, []byte, bool) { called = true }, nil)

	chain.Relay(99, 99, nil, false)

	if called {
		t.Error("expected a relay with no matching channel to be dropped silently")
	}
}

func TestRelaySkipsHandlerWhenAlreadyInactive(t *testing.T) {
	pool := newPool(4)
	called := false
	chain := NewChain(func(uint32, uint32, []byte, bool) { called = true }, nil)
	c := chain.Create(1, 2, 0, false, 0, pool, 1)
	c.Deactivate()

	chain.Relay(1, 2, nil, false)

	if called {
		t.Error("expected no delivery once the channel has been deactivated")
	}
}

// TestRelayDeactivatedDuringHandlerSkipsResubmit exercises the documented
// double state-check race: the channel is deactivated from inside the
// handler call (simulating the application reacting to a fatal event),
// and the relay must not resubmit the buffer nor re-increment pending.
func TestRelayDeactivatedDuringHandlerSkipsResubmit(t *testing.T) {
	pool := newPool(4)
	resubmitted := 0
	chain := NewChain(nil, func(payload []byte) error { resubmitted++; return nil })
	c := chain.Create(1, 2, 0, false, 0, pool, 1)

	chain.handler = func(src, evt uint32, payload []byte, fatal bool) {
		c.Deactivate()
	}

	chain.Relay(1, 2, nil, true)

	if resubmitted != 0 {
		t.Errorf("expected no resubmit once deactivated mid-handler, got %d", resubmitted)
	}
	if c.Pending() != 0 {
		t.Errorf("expected pending to stay at 0 after the dropped relay, got %d", c.Pending())
	}
}

func TestRelayDecrementsPendingEvenWhenInactive(t *testing.T) {
	pool := newPool(4)
	chain := NewChain(nil, nil)
	c := chain.Create(1, 2, 0, false, 0, pool, 2)
	c.Deactivate()

	chain.Relay(1, 2, nil, false)

	if c.Pending() != 1 {
		t.Errorf("expected pending to decrement regardless of active state, got %d", c.Pending())
	}
}
