package afcore

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/afcore/dsp-audio-framework/internal/components"
	"github.com/afcore/dsp-audio-framework/internal/constants"
	"github.com/afcore/dsp-audio-framework/internal/dispatch"
	"github.com/afcore/dsp-audio-framework/internal/events"
	"github.com/afcore/dsp-audio-framework/internal/logging"
	"github.com/afcore/dsp-audio-framework/internal/msgpool"
	"github.com/afcore/dsp-audio-framework/internal/registry"
	"github.com/afcore/dsp-audio-framework/internal/routing"
	"github.com/afcore/dsp-audio-framework/internal/worker"
	"github.com/afcore/dsp-audio-framework/internal/wire"
)

// proxyEndpoint is the fixed host-side control endpoint every proxy
// command is addressed from and to (spec.md §4.8).
var proxyEndpoint = wire.Endpoint{Core: 0, Client: wire.ProxyClient, Port: 0}

func selfEndpoint(id registry.ClientID) wire.Endpoint {
	return wire.Endpoint{Core: 0, Client: uint16(id), Port: 0}
}

// DeviceConfig configures one Device (spec.md §4.10's device_open):
// registry capacity, worker pool shape, and the pools backing control and
// event traffic.
type DeviceConfig struct {
	MaxClients       int // must be a power of two (spec.md §4.3)
	NumRTWorkers     int
	WorkerQueueDepth int
	ScratchSize      int
	ControlPoolSize  int
	EventPoolSize    int

	Logger   *logging.Logger
	Observer Observer

	// EventHandler receives every relayed DSP event (spec.md §4.9). A nil
	// handler means events are relayed (buffers recycled, pending counts
	// maintained) but silently dropped at the application boundary.
	EventHandler func(sourceComponent, eventID uint32, payload []byte, fatal bool)
}

// DefaultDeviceConfig returns the sizing spec.md §3 names as typical:
// 64 clients, 3 real-time workers plus the background worker, a
// 100-entry worker queue.
func DefaultDeviceConfig() DeviceConfig {
	return DeviceConfig{
		MaxClients:       constants.DefaultMaxClients,
		NumRTWorkers:     3,
		WorkerQueueDepth: constants.WorkerQueueDepth,
		ScratchSize:      constants.MinComponentBufferSize,
		ControlPoolSize:  constants.DefaultMessagePoolSize / 8,
		EventPoolSize:    constants.DefaultMessagePoolSize / 16,
	}
}

// validateDeviceConfig enforces the boundary spec.md §8 describes as
// failing with INVALIDVAL: a buffer size one byte below the declared
// minimum, or misaligned, is rejected rather than silently accepted.
func validateDeviceConfig(cfg DeviceConfig) error {
	if cfg.MaxClients <= 0 || cfg.MaxClients&(cfg.MaxClients-1) != 0 {
		return NewError("device_open", ErrInvalidValue, "max_clients must be a power of two")
	}
	if cfg.ScratchSize < constants.MinComponentBufferSize {
		return NewError("device_open", ErrInvalidValue, "scratch buffer size below the minimum component buffer size")
	}
	if cfg.ScratchSize%constants.BufferAlignment != 0 {
		return NewError("device_open", ErrInvalidValue, "scratch buffer size must be 32-byte aligned")
	}
	return nil
}

// MemStats answers GET_MEM_STATS (spec.md §4.10).
type MemStats struct {
	LiveClients    int
	MaxClients     int
	ControlPoolCap int
	EventPoolCap   int
}

// Device is the host-side handle for one DSP core: its client registry,
// worker pool, dispatcher, class-factory registry, and event channel
// chain (spec.md §4.10, C10).
type Device struct {
	mu     sync.Mutex
	ctrlMu sync.Mutex

	id  uuid.UUID
	cfg DeviceConfig

	registry     *registry.Registry
	pool         *worker.Pool
	controlPool  *msgpool.Pool
	eventPool    *msgpool.Pool
	classFactory *components.Registry
	dispatcher   *dispatch.Dispatcher
	events       *events.Chain
	metrics      *Metrics
	observer     Observer
	logger       *logging.Logger

	components     map[registry.ClientID]*Component
	componentOrder []registry.ClientID // registration order, for chain-head-first FORCE close

	lastProxyResp *wire.Descriptor
	closed        bool
}

// Open implements device_open (spec.md §4.10): allocates the client
// registry, the control and event pools, the class-factory registry
// (seeded with this core's built-in component types), and starts the
// worker pool. ctx bounds the worker pool's lifetime, not this call.
func Open(ctx context.Context, cfg DeviceConfig) (*Device, error) {
	cfg = fillDeviceDefaults(cfg)
	if err := validateDeviceConfig(cfg); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	metrics := NewMetrics()
	observer := cfg.Observer
	if observer == nil {
		observer = NewMetricsObserver(metrics)
	}

	d := &Device{
		id:           uuid.New(),
		cfg:          cfg,
		registry:     registry.New(cfg.MaxClients),
		controlPool:  msgpool.New(cfg.ControlPoolSize),
		eventPool:    msgpool.New(cfg.EventPoolSize),
		classFactory: components.NewRegistry(),
		metrics:      metrics,
		observer:     observer,
		logger:       logger,
		components:   make(map[registry.ClientID]*Component),
	}
	d.controlPool.SetObserver("control", observer)
	d.eventPool.SetObserver("event", observer)
	registerBuiltinComponentTypes(d.classFactory, d)

	var dispatcher *dispatch.Dispatcher
	lookup := func(id registry.ClientID) (worker.Processor, bool) {
		comp, ok := d.registry.Lookup(id)
		if !ok {
			return nil, false
		}
		return comp.(worker.Processor), true
	}
	onTeardown := func(p worker.Processor) {
		dispatcher.HandleTeardown(p)
	}
	d.pool = worker.NewPool(cfg.NumRTWorkers, cfg.WorkerQueueDepth, cfg.ScratchSize, lookup, onTeardown, logger)
	d.pool.Start(ctx)

	dispatcher = &dispatch.Dispatcher{
		Registry:  d.registry,
		Pool:      d.pool,
		Pools:     d.controlPool,
		Factory:   d.classFactory.AsFactory(),
		Allocator: newByteAllocator(cfg.ScratchSize),
		Send:      d.captureProxyResponse,
		Logger:    logger,
		Observer:  observer,
	}
	d.dispatcher = dispatcher

	d.events = events.NewChain(d.onEvent, d.resubmitEvent)

	return d, nil
}

func fillDeviceDefaults(cfg DeviceConfig) DeviceConfig {
	def := DefaultDeviceConfig()
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = def.MaxClients
	}
	if cfg.NumRTWorkers <= 0 {
		cfg.NumRTWorkers = def.NumRTWorkers
	}
	if cfg.WorkerQueueDepth <= 0 {
		cfg.WorkerQueueDepth = def.WorkerQueueDepth
	}
	if cfg.ScratchSize <= 0 {
		cfg.ScratchSize = def.ScratchSize
	}
	if cfg.ControlPoolSize <= 0 {
		cfg.ControlPoolSize = def.ControlPoolSize
	}
	if cfg.EventPoolSize <= 0 {
		cfg.EventPoolSize = def.EventPoolSize
	}
	return cfg
}

// CloseFlag controls device_close(flag)'s behavior toward components
// still live when Close is called (spec.md §4.10/§6).
type CloseFlag int

const (
	// CloseNormal rejects with ErrAPIMisuse if any component is still
	// live, requiring the caller to comp_delete everything first.
	CloseNormal CloseFlag = iota
	// CloseForce drains every live component, chain-head-first in
	// registration order, before tearing down the pools.
	CloseForce
)

// Close implements device_close(flag): rejects with ErrAPIMisuse if the
// device is already RESET (closed twice), and with CloseNormal rejects
// if any component is still live rather than leaking it. CloseForce
// instead tears every live component down first, then stops the worker
// pool and destroys the control/event pools.
func (d *Device) Close(ctx context.Context, flag CloseFlag) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return NewError("device_close", ErrAPIMisuse, "device already closed")
	}
	live := d.orderedComponentsLocked()
	if len(live) > 0 && flag != CloseForce {
		d.mu.Unlock()
		return NewError("device_close", ErrAPIMisuse, "device has live components")
	}
	d.closed = true
	d.mu.Unlock()

	for _, c := range live {
		_ = d.DeleteComponent(c)
	}

	err := d.pool.Stop(ctx)
	d.controlPool.Destroy()
	d.eventPool.Destroy()
	d.metrics.Stop()
	return err
}

// orderedComponentsLocked returns every live component in registration
// order. Callers must hold d.mu.
func (d *Device) orderedComponentsLocked() []*Component {
	out := make([]*Component, 0, len(d.componentOrder))
	for _, id := range d.componentOrder {
		if c, ok := d.components[id]; ok {
			out = append(out, c)
		}
	}
	return out
}

func (d *Device) captureProxyResponse(m *wire.Descriptor) bool {
	d.lastProxyResp = m
	return true
}

// doControl serializes one proxy command through the dispatcher and
// captures its synchronous response (proxy dispatch never touches the
// worker pool, so Dispatch returning means the response, if any, is
// already captured).
func (d *Device) doControl(ctx context.Context, msg *wire.Descriptor) *wire.Descriptor {
	d.ctrlMu.Lock()
	defer d.ctrlMu.Unlock()
	d.lastProxyResp = nil
	d.dispatcher.Dispatch(ctx, msg)
	return d.lastProxyResp
}

// ComponentOptions carries comp_create's buffer-count request (spec.md
// §4.10: "num_input_buffers ∈ [0, MAX_INBUFS], num_output_buffers ∈
// [0, 1]"). The zero value requests no buffers and always validates.
type ComponentOptions struct {
	NumInputBuffers  int
	NumOutputBuffers int
}

// CreateComponent implements comp_create (spec.md §4.10) with the default
// buffer-count request. See CreateComponentWithOptions to request a
// specific input/output buffer count.
func (d *Device) CreateComponent(ctx context.Context, typeName string) (*Component, error) {
	return d.CreateComponentWithOptions(ctx, typeName, ComponentOptions{})
}

// CreateComponentWithOptions implements comp_create (spec.md §4.10):
// validates the requested buffer counts, then REGISTERs a new instance of
// typeName through the class-factory registry and returns its host-side
// handle.
func (d *Device) CreateComponentWithOptions(ctx context.Context, typeName string, opts ComponentOptions) (*Component, error) {
	if opts.NumInputBuffers < 0 || opts.NumInputBuffers > constants.MaxInputBuffers {
		return nil, NewError("comp_create", ErrInvalidValue, "num_input_buffers out of range")
	}
	if opts.NumOutputBuffers < 0 || opts.NumOutputBuffers > constants.MaxOutputBuffers {
		return nil, NewError("comp_create", ErrInvalidValue, "num_output_buffers out of range")
	}

	payload := []byte(typeName)
	msg := &wire.Descriptor{
		ID:     wire.NewID(proxyEndpoint, proxyEndpoint),
		Opcode: wire.OpRegister,
		Buffer: payload,
		Length: uint32(len(payload)),
	}

	resp := d.doControl(ctx, msg)
	if resp == nil {
		return nil, NewError("comp_create", ErrAPIMisuse, "no response from REGISTER")
	}
	if resp.Length != 0 {
		return nil, NewError("comp_create", ErrMemory, string(resp.Buffer[:resp.Length]))
	}

	id := registry.ClientID(resp.ID.Dst().Client)
	comp, ok := d.registry.Lookup(id)
	if !ok {
		return nil, NewError("comp_create", ErrAPIMisuse, "registered component missing from registry")
	}
	c := comp.(*Component)

	d.mu.Lock()
	d.components[id] = c
	d.componentOrder = append(d.componentOrder, id)
	d.mu.Unlock()
	return c, nil
}

// DeleteComponent implements comp_delete: unroutes every connected port,
// runs the component's exit capability, and frees its client id. Host-
// initiated deletion is a direct call, not a round trip through the
// message path - the only actor that can legally delete a component is
// the host that created it.
func (d *Device) DeleteComponent(c *Component) error {
	numPorts := c.Routes().Len()
	for port := 0; port < numPorts; port++ {
		peer, ok := c.Routes().Peer(port)
		if !ok {
			continue
		}
		var peerRoutes *routing.Table
		if peerComp, ok := d.registry.Lookup(peer.ClientID); ok {
			peerRoutes = peerComp.(*Component).Routes()
		}
		_ = c.Routes().Unroute(port, peerRoutes)
	}

	d.pool.WorkerForPriority(c.Priority()).MarkCancelled(c.ID())
	c.ProcessMessage(&wire.Descriptor{Opcode: wire.OpUnregister})

	if err := c.Exit(); err != nil {
		return WrapError("comp_delete", ErrAPIMisuse, err)
	}

	id := c.ID()
	d.registry.Free(id)
	d.pool.WorkerForPriority(c.Priority()).ClearCancelled(id)
	d.mu.Lock()
	delete(d.components, id)
	for i, oid := range d.componentOrder {
		if oid == id {
			d.componentOrder = append(d.componentOrder[:i], d.componentOrder[i+1:]...)
			break
		}
	}
	d.mu.Unlock()
	return nil
}

// Connect implements comp_route (spec.md §4.4/§4.10): links src's output
// port to dst's input port, requiring both idle.
func (d *Device) Connect(src *Component, srcPort int, dst *Component, dstPort int) error {
	if err := src.Routes().Route(srcPort, dst.Routes(), dstPort, dst.ID(), src.ID()); err != nil {
		return WrapError("comp_route", ErrRouting, err)
	}
	return nil
}

// Disconnect implements comp_unroute: idles src's port, requiring no
// outstanding buffer on it.
func (d *Device) Disconnect(src *Component, srcPort int) error {
	var peerRoutes *routing.Table
	if peer, ok := src.Routes().Peer(srcPort); ok {
		if peerComp, ok := d.registry.Lookup(peer.ClientID); ok {
			peerRoutes = peerComp.(*Component).Routes()
		}
	}
	if err := src.Routes().Unroute(srcPort, peerRoutes); err != nil {
		return WrapError("comp_unroute", ErrRouting, err)
	}
	return nil
}

// Suspend implements SUSPEND: broadcasts suspend to every live component
// on this core. There is no response message, matching the proxy
// handler's SUSPEND_ACK-via-doorbell design.
func (d *Device) Suspend(ctx context.Context) error {
	msg := &wire.Descriptor{ID: wire.NewID(proxyEndpoint, proxyEndpoint), Opcode: wire.OpSuspend}
	d.doControl(ctx, msg)
	return nil
}

// Resume implements SUSPEND_RESUME: broadcasts resume to every live
// component on this core.
func (d *Device) Resume(ctx context.Context) error {
	msg := &wire.Descriptor{ID: wire.NewID(proxyEndpoint, proxyEndpoint), Opcode: wire.OpSuspendResume}
	d.doControl(ctx, msg)
	return nil
}

// FlushComponent implements FLUSH addressed at a single component (as
// opposed to the proxy-destined FLUSH reserved for a remote-trace sink):
// delivered synchronously, matching the proxy layer's own
// broadcastLifecycle pattern for component-targeted lifecycle opcodes.
func (d *Device) FlushComponent(c *Component) {
	c.ProcessMessage(&wire.Descriptor{Opcode: wire.OpFlush})
}

// PauseComponent implements the per-component pause operation (spec.md
// §6): delivered synchronously, the same pattern FlushComponent and
// broadcastLifecycle use for component-targeted lifecycle opcodes. Also
// used internally by classify()'s EXEC_DONE transition to pause a
// probing component's probe port before reporting completion.
func (d *Device) PauseComponent(c *Component) {
	c.ProcessMessage(&wire.Descriptor{Opcode: wire.OpPause})
}

// ResumeComponent implements the per-component resume operation (spec.md
// §6). Named distinctly from Device.Resume, which is the full-core
// SUSPEND_RESUME broadcast.
func (d *Device) ResumeComponent(c *Component) {
	c.ProcessMessage(&wire.Descriptor{Opcode: wire.OpResume})
}

// SetConfig implements comp_set_config (spec.md §6): overwrites each
// key/value pair on c. Delivered synchronously via Component.processSync
// rather than the async worker pool, since config is metadata comp_process
// and comp_get_status never need to see.
func (d *Device) SetConfig(c *Component, pairs map[uint32]uint32) error {
	buf := encodeParamPairs(pairs)
	c.processSync(&wire.Descriptor{Opcode: wire.OpSetParam, Buffer: buf, Length: uint32(len(buf))})
	return nil
}

// GetConfig implements comp_get_config: reads back the values for keys,
// in the same order, failing with ErrInvalidValue if any key was never
// set via SetConfig.
func (d *Device) GetConfig(c *Component, keys []uint32) ([]uint32, error) {
	buf := encodeParamKeys(keys)
	resp := c.processSync(&wire.Descriptor{Opcode: wire.OpGetParam, Buffer: buf, Length: uint32(len(buf))})
	if len(keys) > 0 && resp.Length == 0 {
		return nil, NewError("comp_get_config", ErrInvalidValue, "unknown parameter key")
	}
	return decodeParamValues(resp.Buffer[:resp.Length]), nil
}

// SetPriorities implements set_priorities(n_rt, base, bg) (spec.md §4.8/
// §6): calls through to the dispatcher's one-shot SET_PRIORITIES proxy
// handler, then - only on its first and only success - replaces the
// worker pool and the control/event message pools with freshly
// constructed, freshly observer-wired instances sized from nRT, the step
// the dispatcher's handler comment defers to "the caller."
func (d *Device) SetPriorities(ctx context.Context, nRT, rtBase, bgPriority int) error {
	payload := make([]byte, 12)
	put32(payload[0:4], uint32(nRT))
	put32(payload[4:8], uint32(rtBase))
	put32(payload[8:12], uint32(bgPriority))
	msg := &wire.Descriptor{
		ID:     wire.NewID(proxyEndpoint, proxyEndpoint),
		Opcode: wire.OpSetPriorities,
		Buffer: payload,
		Length: uint32(len(payload)),
	}

	resp := d.doControl(ctx, msg)
	if resp == nil {
		return NewError("set_priorities", ErrAPIMisuse, "no response from SET_PRIORITIES")
	}
	if resp.Length != 0 {
		return NewError("set_priorities", ErrAPIMisuse, string(resp.Buffer[:resp.Length]))
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	lookup := func(id registry.ClientID) (worker.Processor, bool) {
		comp, ok := d.registry.Lookup(id)
		if !ok {
			return nil, false
		}
		return comp.(worker.Processor), true
	}
	onTeardown := func(p worker.Processor) {
		d.dispatcher.HandleTeardown(p)
	}

	newPool := worker.NewPool(nRT, d.cfg.WorkerQueueDepth, d.cfg.ScratchSize, lookup, onTeardown, d.logger)
	newPool.Start(ctx)
	oldPool := d.pool
	d.pool = newPool
	d.dispatcher.Pool = newPool
	_ = oldPool.Stop(ctx)

	newControl := msgpool.New(d.cfg.ControlPoolSize)
	newControl.SetObserver("control", d.observer)
	oldControl := d.controlPool
	d.controlPool = newControl
	oldControl.Destroy()

	newEvent := msgpool.New(d.cfg.EventPoolSize)
	newEvent.SetObserver("event", d.observer)
	oldEvent := d.eventPool
	d.eventPool = newEvent
	oldEvent.Destroy()

	return nil
}

// CreateEventChannel implements create_event_channel (spec.md §4.9):
// dest nil means the channel targets the application rather than
// another component.
func (d *Device) CreateEventChannel(sourceComponent *Component, sourceEventID uint32, dest *Component, destEventID uint32, nbuf int) *events.Channel {
	var destID uint32
	hasDest := dest != nil
	if hasDest {
		destID = uint32(dest.ID())
	}
	return d.events.Create(uint32(sourceComponent.ID()), sourceEventID, destID, hasDest, destEventID, d.eventPool, nbuf)
}

// DeleteEventChannel implements delete_event_channel.
func (d *Device) DeleteEventChannel(ch *events.Channel) {
	d.events.Destroy(ch)
}

// RelayEvent feeds one DSP-originated EVENT into the channel chain,
// matching spec.md §4.9's relay entry point. Nothing inside the device
// calls it; the caller feeds each event in.
func (d *Device) RelayEvent(sourceComponent, sourceEventID uint32, payload []byte, fatal bool) {
	d.events.Relay(sourceComponent, sourceEventID, payload, fatal)
}

func (d *Device) onEvent(sourceComponent, eventID uint32, payload []byte, fatal bool) {
	if d.cfg.EventHandler != nil {
		d.cfg.EventHandler(sourceComponent, eventID, payload, fatal)
	}
}

// resubmitEvent hands a delivered event buffer back to the DSP-side soft
// model's event queue. The in-process simulation has no real buffer to
// exhaust, so this always succeeds; a hardware DSP binding would post a
// fresh EVENT-opcode descriptor here instead.
func (d *Device) resubmitEvent(payload []byte) error {
	return nil
}

// GetMemStats implements GET_MEM_STATS (spec.md §4.10). A closed device
// has no live pools to report against, so this returns ErrAPIMisuse
// rather than a zero-valued MemStats that a caller could mistake for
// "no clients yet."
func (d *Device) GetMemStats() (MemStats, error) {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return MemStats{}, NewError("get_mem_stats", ErrAPIMisuse, "device closed")
	}
	return MemStats{
		LiveClients:    d.registry.Live(),
		MaxClients:     d.registry.MaxClients(),
		ControlPoolCap: d.controlPool.Cap(),
		EventPoolCap:   d.eventPool.Cap(),
	}, nil
}

// Metrics returns the device's operational counters.
func (d *Device) Metrics() *Metrics { return d.metrics }

// RegisterComponentType adds componentType to this device's class-factory
// registry, for external packages (e.g. components/hostaudio) that supply
// a component backed by a real hardware collaborator rather than one of
// the built-in soft-model shapes.
func (d *Device) RegisterComponentType(componentType string, factory func() (dispatch.Component, error)) {
	d.classFactory.Register(componentType, factory)
}

// ComponentTypes lists every class-factory key this device can REGISTER,
// sorted.
func (d *Device) ComponentTypes() []string {
	return d.classFactory.Types()
}

// simulateDSPExchange is the host-side half of the soft-model DSP
// service loop (spec.md §5): it hands a comp_process request to the
// same worker pool that services every other message on this core,
// addressed at the issuing component's own client id so the dispatcher
// routes it straight to Component.ProcessMessage, which synthesizes the
// DSP's reply.
func (d *Device) simulateDSPExchange(ctx context.Context, c *Component, opcode wire.Opcode, payload []byte, length uint32) error {
	ep := selfEndpoint(c.ID())
	msg := &wire.Descriptor{ID: wire.NewID(ep, ep), Opcode: opcode, Buffer: payload, Length: length}
	d.dispatcher.Dispatch(ctx, msg)
	return nil
}

// registerBuiltinComponentTypes seeds the class-factory registry with the
// component shapes this core ships: a single in/out gain stage, a
// two-input mixer, a sink-only renderer, and a source-only capturer -
// enough port topology variety to exercise routing, scheduling, and the
// comp_process/comp_get_status state machine end to end.
func registerBuiltinComponentTypes(reg *components.Registry, device *Device) {
	reg.Register("pcm_gain", func() (dispatch.Component, error) {
		c, err := newComponent(device, "pcm_gain", 2)
		if err != nil {
			return nil, err
		}
		c.SetOutputPortRange(1)
		return c, nil
	})
	reg.Register("mixer", func() (dispatch.Component, error) {
		c, err := newComponent(device, "mixer", 3)
		if err != nil {
			return nil, err
		}
		c.SetOutputPortRange(2)
		return c, nil
	})
	reg.Register("pcm_renderer", func() (dispatch.Component, error) {
		c, err := newComponent(device, "pcm_renderer", 1)
		if err != nil {
			return nil, err
		}
		c.SetOutputPortRange(1)
		return c, nil
	})
	reg.Register("pcm_capturer", func() (dispatch.Component, error) {
		c, err := newComponent(device, "pcm_capturer", 1)
		if err != nil {
			return nil, err
		}
		c.SetOutputPortRange(0)
		return c, nil
	})
}
