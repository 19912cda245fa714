package wire

// Opcode packs a type (low bits, index into a dispatch table) and a
// request/response flag bit (spec.md §3).
type Opcode uint16

const opcodeResponseFlag Opcode = 1 << 15

// Type returns the dispatch-table index for this opcode.
func (o Opcode) Type() int {
	return int(o &^ opcodeResponseFlag)
}

// IsResponse reports whether the flag bit marking a response is set.
func (o Opcode) IsResponse() bool {
	return o&opcodeResponseFlag != 0
}

// AsResponse returns the response-flagged variant of a request opcode.
func (o Opcode) AsResponse() Opcode {
	return o | opcodeResponseFlag
}

// AsRequest returns the request variant of a response-flagged opcode.
func (o Opcode) AsRequest() Opcode {
	return o &^ opcodeResponseFlag
}

// The minimum opcode set spec.md §3 requires the core to implement.
const (
	OpRegister Opcode = iota
	OpAlloc
	OpFree
	OpRoute
	OpUnroute
	OpFillThisBuffer
	OpEmptyThisBuffer
	OpSetParam
	OpGetParam
	OpStart
	OpStop
	OpPause
	OpResume
	OpFlush
	OpEvent
	OpSetPriorities
	OpSuspend
	OpSuspendResume
	OpUnregister

	// OpcodeTypeCount bounds the proxy command dispatch table; an opcode
	// type outside [0, OpcodeTypeCount) is out of range per spec.md §4.8.
	OpcodeTypeCount
)

var opcodeNames = [OpcodeTypeCount]string{
	"REGISTER", "ALLOC", "FREE", "ROUTE", "UNROUTE",
	"FILL_THIS_BUFFER", "EMPTY_THIS_BUFFER", "SET_PARAM", "GET_PARAM",
	"START", "STOP", "PAUSE", "RESUME", "FLUSH", "EVENT",
	"SET_PRIORITIES", "SUSPEND", "SUSPEND_RESUME", "UNREGISTER",
}

// String renders the opcode's type name plus a response marker, e.g.
// "REGISTER" or "REGISTER(resp)". Unknown types render numerically.
func (o Opcode) String() string {
	t := o.Type()
	name := "UNKNOWN"
	if t >= 0 && t < int(OpcodeTypeCount) {
		name = opcodeNames[t]
	}
	if o.IsResponse() {
		return name + "(resp)"
	}
	return name
}
