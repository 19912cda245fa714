package msgpool

import "testing"

func TestAcquireExhaustion(t *testing.T) {
	p := New(3)

	d1 := p.Acquire()
	d2 := p.Acquire()
	d3 := p.Acquire()
	if d1 == nil || d2 == nil || d3 == nil {
		t.Fatal("expected three non-nil descriptors from a pool of capacity 3")
	}
	if d4 := p.Acquire(); d4 != nil {
		t.Fatal("expected Acquire to return nil once exhausted")
	}

	p.Release(d2)
	if d5 := p.Acquire(); d5 == nil {
		t.Fatal("expected Acquire to succeed after a Release")
	}
}

func TestReleaseReusesSlot(t *testing.T) {
	p := New(1)
	d := p.Acquire()
	d.Length = 42
	p.Release(d)

	d2 := p.Acquire()
	if d2 != d {
		t.Fatal("expected a capacity-1 pool to hand back the same slot")
	}
	if d2.Length != 0 {
		t.Error("expected Acquire to reset a reused descriptor")
	}
}

func TestReleaseAfterDestroyPanics(t *testing.T) {
	p := New(2)
	d := p.Acquire()
	p.Destroy()

	defer func() {
		if recover() == nil {
			t.Fatal("expected Release after Destroy to panic")
		}
	}()
	p.Release(d)
}

func TestAcquireAfterDestroyReturnsNil(t *testing.T) {
	p := New(2)
	p.Destroy()
	if d := p.Acquire(); d != nil {
		t.Error("expected Acquire on a destroyed pool to behave as exhausted")
	}
}
