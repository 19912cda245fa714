package dispatch

import (
	"github.com/afcore/dsp-audio-framework/internal/registry"
	"github.com/afcore/dsp-audio-framework/internal/wire"
)

// handleRegister implements spec.md §4.8 REGISTER: allocate a client id,
// invoke the class factory keyed on the payload string, store the
// component, set its default priority, and respond with the new id
// packed into the message.
func handleRegister(d *Dispatcher, msg *wire.Descriptor) *wire.Descriptor {
	componentType := string(msg.Buffer[:msg.Length])

	comp, err := d.Factory(componentType)
	if err != nil {
		return msg.Response(msg.Opcode.AsResponse(), []byte("MEMORY"), 6)
	}

	id, ok := d.Registry.Alloc(comp)
	if !ok {
		return msg.Response(msg.Opcode.AsResponse(), []byte("MEMORY"), 6)
	}
	comp.SetID(id)

	d.mu.Lock()
	comp.SetPriority(d.defaultPriority)
	d.mu.Unlock()

	d.SchedulePut(comp)

	resp := msg.Response(msg.Opcode.AsResponse(), nil, 0)
	dst := resp.ID.Dst()
	dst.Client = uint16(id)
	resp.ID = resp.ID.WithDst(dst)
	return resp
}

// handleAlloc implements ALLOC: request a buffer from the shared-memory
// allocator.
func handleAlloc(d *Dispatcher, msg *wire.Descriptor) *wire.Descriptor {
	if d.Allocator == nil {
		return msg.Response(msg.Opcode.AsResponse(), []byte("MEMORY"), 6)
	}
	size := int(msg.Length)
	buf, err := d.Allocator.Alloc(size)
	if err != nil {
		return msg.Response(msg.Opcode.AsResponse(), []byte("MEMORY"), 6)
	}
	return msg.Response(msg.Opcode.AsResponse(), buf, uint32(len(buf)))
}

// handleFree implements FREE: release a buffer to the shared allocator.
func handleFree(d *Dispatcher, msg *wire.Descriptor) *wire.Descriptor {
	if d.Allocator != nil {
		d.Allocator.Free(msg.Buffer)
	}
	return msg.Response(msg.Opcode.AsResponse(), nil, 0)
}

// handleReservedProxySink implements the FILL_THIS_BUFFER/FLUSH-to-proxy
// reserved slot (spec.md §4.8: "reserved for optional remote-trace
// sink"). No sink is wired by default, so any sub-destination is unknown
// and the handler answers INVALIDVAL.
func handleReservedProxySink(d *Dispatcher, msg *wire.Descriptor) *wire.Descriptor {
	return msg.Response(msg.Opcode.AsResponse(), []byte("INVALIDVAL"), 10)
}

// handleSetPriorities implements SET_PRIORITIES: a one-shot operation
// that allocates and starts the worker pool, and reinitializes every
// preemption-aware lock. Subsequent calls return a "not supported"
// failure rather than silently no-oping, per spec.md §4.8 - the reason
// this is a manual boolean check rather than sync.Once (sync.Once would
// swallow the second call with no way to report it to the caller).
func handleSetPriorities(d *Dispatcher, msg *wire.Descriptor) *wire.Descriptor {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.prioritiesSet {
		return msg.Response(msg.Opcode.AsResponse(), []byte("API_MISUSE"), 10)
	}

	nRT, rtBase, bg := decodeSetPriorities(msg.Buffer)
	d.defaultPriority = defaultPriorityFor(nRT, rtBase, bg)
	d.prioritiesSet = true

	// Device.SetPriorities calls through to this handler and, once it
	// succeeds, swaps in a freshly constructed worker.Pool/msgpool.Pool
	// set sized from nRT - this handler only records that the one-shot
	// has fired and computes the default priority every subsequent
	// REGISTER will use.
	return msg.Response(msg.Opcode.AsResponse(), nil, 0)
}

// handleSuspend implements SUSPEND: broadcast to every live component.
// There is no response message - the acknowledgment is the SUSPEND_ACK
// doorbell side-channel, owned by the transport layer, not this handler.
func handleSuspend(d *Dispatcher, msg *wire.Descriptor) *wire.Descriptor {
	broadcastLifecycle(d, wire.OpSuspend)
	return nil
}

// handleSuspendResume implements SUSPEND_RESUME: broadcast resume to
// every live component, again with no response message.
func handleSuspendResume(d *Dispatcher, msg *wire.Descriptor) *wire.Descriptor {
	broadcastLifecycle(d, wire.OpSuspendResume)
	return nil
}

func broadcastLifecycle(d *Dispatcher, opcode wire.Opcode) {
	for id := registry.ClientID(0); id < registry.ClientID(d.Registry.MaxClients()); id++ {
		comp, ok := d.Registry.Lookup(id)
		if !ok {
			continue
		}
		c := comp.(Component)
		c.ProcessMessage(&wire.Descriptor{Opcode: opcode})
	}
}

// defaultPriorityFor applies the same rule as worker.DefaultPriority;
// kept as a small pure function so SET_PRIORITIES can compute it before
// the pool exists.
func defaultPriorityFor(nRT, rtBase, bgPriority int) int {
	p := nRT - 1
	if rtBase+p < bgPriority {
		return 0
	}
	return p
}

// decodeSetPriorities unpacks the SET_PRIORITIES payload: three
// little-endian uint32s (n_rt_priorities, rt_priority_base, bg_priority),
// matching the fixed-layout wire format spec.md §6 describes for
// control-command payloads.
func decodeSetPriorities(buf []byte) (nRT, rtBase, bg int) {
	if len(buf) < 12 {
		return 1, 0, 0
	}
	nRT = int(le32(buf[0:4]))
	rtBase = int(le32(buf[4:8]))
	bg = int(le32(buf[8:12]))
	return
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
