package afcore

import (
	"sync"

	"github.com/afcore/dsp-audio-framework/internal/constants"
	"github.com/afcore/dsp-audio-framework/internal/registry"
	"github.com/afcore/dsp-audio-framework/internal/routing"
	"github.com/afcore/dsp-audio-framework/internal/transport"
	"github.com/afcore/dsp-audio-framework/internal/wire"
)

// Component is the host-side handle for one registered DSP component: it
// satisfies registry.Component, scheduler.Component, worker.Processor,
// and dispatch.Component, and drives the comp_process/comp_get_status
// state machine from spec.md §4.10.
type Component struct {
	mu sync.Mutex

	id       registry.ClientID
	typeName string
	priority int

	device *Device
	routes *routing.Table

	// inputBufs tracks every buffer ever handed to this component's
	// input, so INPUT_READY can reject a pointer that was not originally
	// allocated to it (spec.md §4.10, §8 scenario 5).
	inputBufs map[*wire.Descriptor]bool

	pendingOutput  map[int]int // port -> outstanding FILL_THIS_BUFFER count
	inputPortCount int
	expectOutCmd   int
	inputOver      bool
	initDone       bool
	probing        bool

	// params backs comp_set_config/comp_get_config (spec.md §6): a flat
	// key/value store the soft model answers SET_PARAM/GET_PARAM against.
	params map[uint32]uint32

	// respQueue/respDoorbell are this component's half of the host<->DSP
	// transport (spec.md §4.1): the soft-model service loop enqueues onto
	// respQueue and rings respDoorbell; comp_get_status waits on the
	// doorbell then drains the queue. The queue is local and cache-
	// coherent (both ends are Go goroutines sharing memory), so it carries
	// no Region - only a cross-core queue needs the flush/invalidate
	// discipline transport.Region provides.
	respQueue    *transport.Queue
	respDoorbell *transport.Doorbell
	lastRC       int
}

// NewComponent builds a host-side component handle outside the built-in
// class-factory registry, for external packages (e.g. components/hostaudio)
// that back comp_process with a real hardware collaborator instead of the
// soft-model synthesis in synthesizeDSPResponse. Callers embed the
// returned *Component and shadow ProcessMessage to supply real samples.
func NewComponent(device *Device, typeName string, numPorts int) (*Component, error) {
	return newComponent(device, typeName, numPorts)
}

// DeliverResponse feeds msg to this component's comp_get_status receive
// path. Exported for external component implementations (see NewComponent)
// that synthesize their own DSP-side responses instead of using
// synthesizeDSPResponse.
func (c *Component) DeliverResponse(msg *wire.Descriptor) {
	c.deliverResponse(msg)
}

func newComponent(device *Device, typeName string, numPorts int) (*Component, error) {
	doorbell, err := transport.NewDoorbell()
	if err != nil {
		return nil, err
	}
	return &Component{
		typeName:      typeName,
		device:        device,
		routes:        routing.New(numPorts),
		inputBufs:     make(map[*wire.Descriptor]bool),
		pendingOutput: make(map[int]int),
		params:        make(map[uint32]uint32),
		respQueue:     transport.NewQueue(constants.ComponentResponseQueueDepth, nil, doorbell, true),
		respDoorbell:  doorbell,
	}, nil
}

// ID satisfies registry.Component/scheduler.Component/worker.Processor.
func (c *Component) ID() registry.ClientID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// SetID is called once by the dispatcher's REGISTER handler.
func (c *Component) SetID(id registry.ClientID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.id = id
}

// Priority returns the worker-tier priority this component is assigned.
func (c *Component) Priority() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.priority
}

// SetPriority is called by REGISTER's default-priority assignment.
func (c *Component) SetPriority(p int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.priority = p
}

// TypeName returns the class-factory key this component was built from.
func (c *Component) TypeName() string { return c.typeName }

// Routes exposes the component's port connection table.
func (c *Component) Routes() *routing.Table { return c.routes }

// EnableProbe marks this component as probing: once enabled, an
// EXEC_DONE transition pauses the component before reporting
// completion, giving a probe port a chance to flush.
func (c *Component) EnableProbe() {
	c.mu.Lock()
	c.probing = true
	c.mu.Unlock()
}

// deliverResponse is called by the device's demultiplexer when a
// response destined for this component arrives; it feeds
// comp_get_status's blocking receive. A full queue means the application
// has stopped polling status - drop rather than block a worker goroutine
// forever, matching Enqueue's non-blocking contract.
func (c *Component) deliverResponse(msg *wire.Descriptor) {
	c.respQueue.Enqueue(msg)
}

// ProcessMessage satisfies worker.Processor. Every message the dispatcher
// hands a component directly (as opposed to a proxy command) is this
// component's own comp_process request arriving at the DSP-side service
// loop (spec.md §5's "soft model when the DSP is actually hardware,"
// implemented here as the same in-process worker pool); the response
// synthesized for it feeds comp_get_status.
func (c *Component) ProcessMessage(msg *wire.Descriptor) int {
	c.deliverResponse(c.synthesizeDSPResponse(msg))
	return 0
}

// synthesizeDSPResponse is the in-process DSP-side service loop's
// soft-model reply to one comp_process request: FILL_THIS_BUFFER gets a
// drained (length 0) reply once input_over has been signaled, otherwise
// a regular output fill carrying a synthetic start-info payload;
// EMPTY_THIS_BUFFER is echoed unchanged, since its buffer/nil-ness is
// exactly what comp_get_status needs to classify NEED_INPUT vs
// EXEC_DONE.
func (c *Component) synthesizeDSPResponse(msg *wire.Descriptor) *wire.Descriptor {
	switch msg.Opcode.Type() {
	case int(wire.OpFillThisBuffer):
		c.mu.Lock()
		inputOver := c.inputOver
		c.mu.Unlock()
		if inputOver {
			return &wire.Descriptor{Opcode: wire.OpFillThisBuffer, Length: 0}
		}
		return &wire.Descriptor{Opcode: wire.OpFillThisBuffer, Buffer: encodeStartPayload(48000), Length: 1024}
	case int(wire.OpSetParam):
		return c.handleSetParam(msg)
	case int(wire.OpGetParam):
		return c.handleGetParam(msg)
	default:
		return msg
	}
}

func encodeStartPayload(sampleRate uint32) []byte {
	return []byte{byte(sampleRate), byte(sampleRate >> 8), byte(sampleRate >> 16), byte(sampleRate >> 24)}
}

// processSync runs msg through the soft model's synthesis directly,
// bypassing deliverResponse/respQueue. SET_PARAM/GET_PARAM use this
// instead of ProcessMessage's async respQueue path so these synchronous
// metadata operations never enter comp_get_status's classify() state
// machine, which only recognizes comp_process/comp_get_status traffic.
func (c *Component) processSync(msg *wire.Descriptor) *wire.Descriptor {
	return c.synthesizeDSPResponse(msg)
}

// handleSetParam implements SET_PARAM: overwrite each key/value pair in
// the component's config store (spec.md §6 comp_set_config).
func (c *Component) handleSetParam(msg *wire.Descriptor) *wire.Descriptor {
	pairs := decodeParamPairs(msg.Buffer[:msg.Length])
	c.mu.Lock()
	for k, v := range pairs {
		c.params[k] = v
	}
	c.mu.Unlock()
	return &wire.Descriptor{Opcode: wire.OpSetParam}
}

// handleGetParam implements GET_PARAM: reads back the requested keys in
// order. A response with Length 0 signals at least one unknown key
// (spec.md §6 comp_get_config).
func (c *Component) handleGetParam(msg *wire.Descriptor) *wire.Descriptor {
	keys := decodeParamKeys(msg.Buffer[:msg.Length])
	values := make([]uint32, len(keys))

	c.mu.Lock()
	missing := false
	for i, k := range keys {
		v, ok := c.params[k]
		if !ok {
			missing = true
		}
		values[i] = v
	}
	c.mu.Unlock()

	if missing {
		return &wire.Descriptor{Opcode: wire.OpGetParam, Length: 0}
	}
	buf := encodeParamValues(values)
	return &wire.Descriptor{Opcode: wire.OpGetParam, Buffer: buf, Length: uint32(len(buf))}
}

// encodeParamPairs packs a key/value map into the fixed little-endian
// layout comp_set_config's SET_PARAM payload uses: repeated (key uint32,
// value uint32) pairs.
func encodeParamPairs(pairs map[uint32]uint32) []byte {
	buf := make([]byte, 0, len(pairs)*8)
	for k, v := range pairs {
		pair := make([]byte, 8)
		put32(pair[0:4], k)
		put32(pair[4:8], v)
		buf = append(buf, pair...)
	}
	return buf
}

func decodeParamPairs(buf []byte) map[uint32]uint32 {
	out := make(map[uint32]uint32, len(buf)/8)
	for i := 0; i+8 <= len(buf); i += 8 {
		out[le32(buf[i:i+4])] = le32(buf[i+4 : i+8])
	}
	return out
}

// encodeParamKeys packs a key list into GET_PARAM's request payload:
// repeated little-endian uint32 keys.
func encodeParamKeys(keys []uint32) []byte {
	buf := make([]byte, len(keys)*4)
	for i, k := range keys {
		put32(buf[i*4:i*4+4], k)
	}
	return buf
}

func decodeParamKeys(buf []byte) []uint32 {
	keys := make([]uint32, 0, len(buf)/4)
	for i := 0; i+4 <= len(buf); i += 4 {
		keys = append(keys, le32(buf[i:i+4]))
	}
	return keys
}

// encodeParamValues packs GET_PARAM's response payload: the requested
// values, in request order, as little-endian uint32s.
func encodeParamValues(values []uint32) []byte {
	buf := make([]byte, len(values)*4)
	for i, v := range values {
		put32(buf[i*4:i*4+4], v)
	}
	return buf
}

func decodeParamValues(buf []byte) []uint32 {
	values := make([]uint32, 0, len(buf)/4)
	for i := 0; i+4 <= len(buf); i += 4 {
		values = append(values, le32(buf[i:i+4]))
	}
	return values
}

// Process satisfies worker.Processor's self-scheduled time-slice path;
// host-side components have no self-scheduled work of their own.
func (c *Component) Process() int { return 0 }

// Exit satisfies dispatch.Component and resolves xaf_renderer_deinit's
// missing return value (spec.md §9): it tears down the component's
// response doorbell, the one real OS resource a host-side component
// holds, and returns that teardown's error explicitly rather than
// leaving the outcome unreported.
func (c *Component) Exit() error {
	return c.respDoorbell.Close()
}
