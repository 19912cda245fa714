package wire

// Descriptor is a message descriptor as described in spec.md §3: an id, an
// opcode, a payload length, a buffer, and linkage used only while the
// descriptor is queued. Descriptors are drawn from internal/msgpool; the
// pool owns their storage for the lifetime of the owning component or
// device.
type Descriptor struct {
	ID     ID
	Opcode Opcode
	Length uint32
	Buffer []byte // payload, in shared or local memory depending on queue

	// next is reserved intrusive linkage; no queue in this module sets
	// it (Reset clears it), and consumers must not read it.
	next *Descriptor
}

// Reset clears a descriptor for reuse by a pool, without touching its
// backing Buffer allocation (the pool reuses that too).
func (d *Descriptor) Reset() {
	d.ID = 0
	d.Opcode = 0
	d.Length = 0
	d.next = nil
}

// Response builds a response descriptor from a request descriptor: swaps
// the id's high/low halves and flags the opcode as a response, per
// spec.md §3 ("Swapping high/low halves turns a request into its
// response").
func (d *Descriptor) Response(opcode Opcode, buffer []byte, length uint32) *Descriptor {
	return &Descriptor{
		ID:     d.ID.Swap(),
		Opcode: opcode.AsResponse(),
		Buffer: buffer,
		Length: length,
	}
}
