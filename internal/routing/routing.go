// Package routing implements the per-component port connection table from
// spec.md §4.4: an array of length inp_ports+out_ports per component,
// tracking each port's connection state and peer.
package routing

import (
	"github.com/afcore/dsp-audio-framework/internal/registry"
)

// State is a port's connection state.
type State int

const (
	Idle State = iota
	Routed
	RoutedActive
)

// NotConnected is the sentinel peer port value meaning "no connection".
const NotConnected = -1

// Peer identifies the other end of a routed port.
type Peer struct {
	ClientID registry.ClientID
	Port     int
}

type portEntry struct {
	state State
	peer  Peer
}

// Table is one component's port connection map, sized inp_ports+out_ports
// at construction (input ports first, then output ports, matching the
// order spec.md's `cmap[port]` indexing implies).
type Table struct {
	ports []portEntry
}

// New builds a routing table with numPorts entries, all NOT_CONNECTED.
func New(numPorts int) *Table {
	t := &Table{ports: make([]portEntry, numPorts)}
	for i := range t.ports {
		t.ports[i].peer.Port = NotConnected
	}
	return t
}

// Len returns the table's port count (inputs + outputs).
func (t *Table) Len() int {
	return len(t.ports)
}

// Connected reports whether port is routed: cmap[port].ptr != null &&
// cmap[port].port != NOT_CONNECTED (spec.md §4.4).
func (t *Table) Connected(port int) bool {
	e := t.ports[port]
	return e.state != Idle && e.peer.Port != NotConnected
}

// State returns a port's current connection state.
func (t *Table) State(port int) State {
	return t.ports[port].state
}

// Peer returns a port's connected peer, if any.
func (t *Table) Peer(port int) (Peer, bool) {
	e := t.ports[port]
	if e.peer.Port == NotConnected {
		return Peer{}, false
	}
	return e.peer, true
}

// Route connects this table's srcPort to (dstTable, dstPort), requiring
// both ports idle (spec.md §4.4: "requires both endpoints idle"). The
// caller is responsible for the "source component already past init"
// precondition, which belongs to the component lifecycle layer, not the
// routing table.
func (t *Table) Route(srcPort int, dstTable *Table, dstPort int, dstClient registry.ClientID, srcClient registry.ClientID) error {
	if t.ports[srcPort].state != Idle || dstTable.ports[dstPort].state != Idle {
		return errRoutingNotIdle
	}
	t.ports[srcPort] = portEntry{state: Routed, peer: Peer{ClientID: dstClient, Port: dstPort}}
	dstTable.ports[dstPort] = portEntry{state: Routed, peer: Peer{ClientID: srcClient, Port: srcPort}}
	return nil
}

// Unroute disconnects an output port, only legal while it is idle (no
// outstanding buffers) per spec.md §4.4.
func (t *Table) Unroute(port int, peerTable *Table) error {
	e := t.ports[port]
	if e.state == Idle {
		return nil
	}
	if e.state != Idle && e.state == RoutedActive {
		return errPortNotIdle
	}
	peerPort := e.peer.Port
	t.ports[port] = portEntry{peer: Peer{Port: NotConnected}}
	if peerTable != nil && peerPort != NotConnected {
		peerTable.ports[peerPort] = portEntry{peer: Peer{Port: NotConnected}}
	}
	return nil
}

// MarkActive transitions a routed port to routed-and-active (an
// outstanding buffer is now in flight on it).
func (t *Table) MarkActive(port int) {
	if t.ports[port].state == Routed {
		t.ports[port].state = RoutedActive
	}
}

// MarkIdle transitions a routed-and-active port back to routed (its
// outstanding buffer has completed).
func (t *Table) MarkIdle(port int) {
	if t.ports[port].state == RoutedActive {
		t.ports[port].state = Routed
	}
}

type routingError string

func (e routingError) Error() string { return string(e) }

const (
	errRoutingNotIdle = routingError("routing: both endpoints must be idle")
	errPortNotIdle    = routingError("routing: output port has outstanding buffers")
)
