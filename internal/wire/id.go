// Package wire defines the on-the-wire shapes crossing the host/DSP
// boundary: packed message ids, opcodes, and the message descriptor.
// Nothing outside this package touches the raw integer encodings directly
// (see DESIGN NOTES in SPEC_FULL.md, "packed ids").
package wire

// ProxyClient is the reserved client value meaning "the host-side control
// endpoint" rather than a registered component.
const ProxyClient uint16 = 0x3FF

// fields are packed 10/2/4 bits: client, core, port, filling one 16-bit
// half of the id. Clients stay under 1024 (ProxyClient is the top value),
// cores under 4, ports under 16 - enough for MAX_CLIENTS (64) and typical
// port counts (<=4).
const (
	portBits   = 4
	clientBits = 10
	coreBits   = 2

	portMask   = (1 << portBits) - 1
	clientMask = (1 << clientBits) - 1
	coreMask   = (1 << coreBits) - 1

	coreShift   = portBits
	clientShift = portBits + coreBits
)

// Endpoint is one side (source or destination) of a message id: a core, a
// client-or-proxy, and a port.
type Endpoint struct {
	Core   uint16
	Client uint16 // ProxyClient for the host-side control endpoint
	Port   uint16
}

func (e Endpoint) pack() uint16 {
	return uint16(e.Port&portMask) |
		uint16(e.Core&coreMask)<<coreShift |
		uint16(e.Client&clientMask)<<clientShift
}

func unpackEndpoint(half uint16) Endpoint {
	return Endpoint{
		Port:   half & portMask,
		Core:   (half >> coreShift) & coreMask,
		Client: (half >> clientShift) & clientMask,
	}
}

// ID is the packed 32-bit message id: destination in the low half, source
// in the high half, matching spec.md §3 exactly.
type ID uint32

// NewID packs a destination and source endpoint into a message id.
func NewID(dst, src Endpoint) ID {
	return ID(uint32(dst.pack()) | uint32(src.pack())<<16)
}

// Dst returns the destination endpoint (low half).
func (id ID) Dst() Endpoint {
	return unpackEndpoint(uint16(id))
}

// Src returns the source endpoint (high half).
func (id ID) Src() Endpoint {
	return unpackEndpoint(uint16(id >> 16))
}

// WithDst returns id with its destination endpoint replaced.
func (id ID) WithDst(dst Endpoint) ID {
	return NewID(dst, id.Src())
}

// WithSrc returns id with its source endpoint replaced.
func (id ID) WithSrc(src Endpoint) ID {
	return NewID(id.Dst(), src)
}

// Swap exchanges the high and low halves, turning a request id into its
// response id and vice versa (spec.md §3).
func (id ID) Swap() ID {
	return ID(uint32(id)<<16 | uint32(id)>>16)
}

// DstIsProxy reports whether the destination endpoint is the proxy client.
func (id ID) DstIsProxy() bool {
	return id.Dst().Client == ProxyClient
}

// SrcIsProxy reports whether the source endpoint is the proxy client.
func (id ID) SrcIsProxy() bool {
	return id.Src().Client == ProxyClient
}
