package routing

import "testing"

func TestRouteUnrouteRoundTrip(t *testing.T) {
	a := New(2) // 1 input, 1 output
	b := New(2)

	if err := a.Route(1, b, 0, 5, 7); err != nil {
		t.Fatalf("Route failed: %v", err)
	}
	if !a.Connected(1) {
		t.Error("expected source output port to be connected")
	}
	if !b.Connected(0) {
		t.Error("expected destination input port to be connected")
	}

	peer, ok := a.Peer(1)
	if !ok || peer.ClientID != 5 || peer.Port != 0 {
		t.Errorf("unexpected peer on source port: %+v ok=%v", peer, ok)
	}

	if err := a.Unroute(1, b); err != nil {
		t.Fatalf("Unroute failed: %v", err)
	}
	if a.Connected(1) || b.Connected(0) {
		t.Error("expected both endpoints NOT_CONNECTED after unroute")
	}
}

func TestRouteRequiresIdleEndpoints(t *testing.T) {
	a := New(2)
	b := New(2)
	c := New(2)

	if err := a.Route(1, b, 0, 1, 2); err != nil {
		t.Fatalf("first route failed: %v", err)
	}
	if err := a.Route(1, c, 0, 3, 2); err == nil {
		t.Error("expected routing an already-routed port to fail")
	}
}

func TestUnrouteRejectsActivePort(t *testing.T) {
	a := New(2)
	b := New(2)
	_ = a.Route(1, b, 0, 1, 2)
	a.MarkActive(1)

	if err := a.Unroute(1, b); err == nil {
		t.Error("expected Unroute to reject a port with an outstanding buffer")
	}
	a.MarkIdle(1)
	if err := a.Unroute(1, b); err != nil {
		t.Errorf("expected Unroute to succeed once idle, got %v", err)
	}
}
