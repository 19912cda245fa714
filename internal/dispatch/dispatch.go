// Package dispatch implements the message dispatcher (spec.md §4.7) and
// the proxy command handlers (spec.md §4.8): decoding a message's
// destination and opcode, routing it to a proxy-command handler, a
// registered component, or dropping it.
package dispatch

import (
	"context"
	"fmt"
	"sync"

	"time"

	"github.com/afcore/dsp-audio-framework/internal/interfaces"
	"github.com/afcore/dsp-audio-framework/internal/logging"
	"github.com/afcore/dsp-audio-framework/internal/msgpool"
	"github.com/afcore/dsp-audio-framework/internal/registry"
	"github.com/afcore/dsp-audio-framework/internal/scheduler"
	"github.com/afcore/dsp-audio-framework/internal/worker"
	"github.com/afcore/dsp-audio-framework/internal/wire"
)

// Component is everything the dispatcher, the worker pool, and the
// scheduler need from a registered component. The root afcore package's
// Component type is the only production implementation; tests in this
// package use lightweight fakes.
type Component interface {
	worker.Processor
	scheduler.Component
	Exit() error
	Priority() int
	SetID(registry.ClientID)
	SetPriority(int)
}

// Factory builds a new Component instance for the given class-factory
// key (spec.md §4.8 REGISTER: "invoke the class factory keyed on the
// payload string").
type Factory func(componentType string) (Component, error)

// Allocator services ALLOC/FREE proxy commands against the core's
// shared-memory allocator. A nil Allocator makes ALLOC always fail with
// ErrMemory, useful for dispatcher-only unit tests.
type Allocator interface {
	Alloc(size int) ([]byte, error)
	Free(buf []byte)
}

// Sender is how the dispatcher hands a built response or forwarded
// message back out; Device installs one that captures proxy responses.
type Sender func(*wire.Descriptor) bool

// Dispatcher implements spec.md §4.7/§4.8 for one core.
type Dispatcher struct {
	Registry  *registry.Registry
	Pool      *worker.Pool
	Pools     *msgpool.Pool
	Factory   Factory
	Allocator Allocator
	Send      Sender
	Logger    *logging.Logger
	Observer  interfaces.Observer

	mu              sync.Mutex
	prioritiesSet   bool
	defaultPriority int // component_default_priority, set at REGISTER time
}

// proxyHandler processes one proxy-destined message and optionally
// returns a response descriptor to send back.
type proxyHandler func(d *Dispatcher, msg *wire.Descriptor) *wire.Descriptor

// proxyTable is indexed by wire.Opcode.Type(); an index outside this
// array's bounds is the out-of-range case spec.md §4.7 requires to
// return a generic failure response rather than crash.
var proxyTable [wire.OpcodeTypeCount]proxyHandler

func init() {
	proxyTable[wire.OpRegister] = handleRegister
	proxyTable[wire.OpAlloc] = handleAlloc
	proxyTable[wire.OpFree] = handleFree
	proxyTable[wire.OpFillThisBuffer] = handleReservedProxySink
	proxyTable[wire.OpFlush] = handleReservedProxySink
	proxyTable[wire.OpSetPriorities] = handleSetPriorities
	proxyTable[wire.OpSuspend] = handleSuspend
	proxyTable[wire.OpSuspendResume] = handleSuspendResume
}

// Dispatch implements the full per-message algorithm in spec.md §4.7,
// timing it and reporting latency/success to Observer so dispatch
// traffic is visible in Metrics without every caller instrumenting
// itself.
func (d *Dispatcher) Dispatch(ctx context.Context, msg *wire.Descriptor) {
	start := time.Now()
	ok := d.dispatch(ctx, msg)
	if d.Observer != nil {
		d.Observer.ObserveDispatch(msg.Opcode.Type(), uint64(time.Since(start).Nanoseconds()), ok)
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, msg *wire.Descriptor) bool {
	dst := msg.ID.Dst()

	if dst.Client == wire.ProxyClient {
		resp := d.dispatchProxy(msg)
		if resp != nil && d.Send != nil {
			d.Send(resp)
		}
		return true
	}

	clientID := registry.ClientID(dst.Client)
	comp, ok := d.Registry.Lookup(clientID)
	if !ok {
		switch {
		case msg.ID.SrcIsProxy():
			if d.Send != nil {
				d.Send(errorResponse(msg))
			}
		case !msg.ID.SrcIsProxy():
			if d.Send != nil {
				d.Send(failureResponse(msg))
			}
		}
		return false
	}

	c := comp.(Component)

	if msg.Opcode.Type() == int(wire.OpUnregister) && !msg.ID.SrcIsProxy() {
		return true // locally generated UNREGISTER, discard per spec.md §4.7
	}

	priority := c.Priority()
	w := d.Pool.WorkerForPriority(priority)
	err := w.Submit(ctx, worker.Item{Component: c, Message: msg})
	if d.Observer != nil {
		d.Observer.ObserveQueueDepth(w.Index(), w.QueueDepth())
	}
	return err == nil
}

// SchedulePut registers c for a self-scheduled time-slice on the worker
// tier matching its priority, per spec.md §4.5 sched_put - called at
// REGISTER time so every live component gets a cooperative turn even
// when nothing has sent it a message.
func (d *Dispatcher) SchedulePut(c Component) {
	w := d.Pool.WorkerForPriority(c.Priority())
	w.SchedulePut(c, c.Priority())
}

// HandleTeardown is wired as the worker pool's onTeardown callback: when
// a component's entry returns < 0 its exit capability runs, and the
// client id is freed and its base-cancel entry cleared only if Exit
// succeeds (spec.md §4.7).
func (d *Dispatcher) HandleTeardown(p worker.Processor) {
	c := p.(Component)
	if err := c.Exit(); err == nil {
		d.Registry.Free(c.ID())
		d.Pool.WorkerForPriority(c.Priority()).ClearCancelled(c.ID())
	}
}

func (d *Dispatcher) dispatchProxy(msg *wire.Descriptor) (resp *wire.Descriptor) {
	t := msg.Opcode.Type()
	if t < 0 || t >= len(proxyTable) || proxyTable[t] == nil {
		return genericFailure(msg)
	}

	defer func() {
		if r := recover(); r != nil {
			if d.Logger != nil {
				d.Logger.Error("proxy handler panic", "opcode", msg.Opcode.String(), "panic", fmt.Sprint(r))
			}
			resp = genericFailure(msg)
		}
	}()

	return proxyTable[t](d, msg)
}

// genericFailure answers an opcode-type-out-of-range proxy message, per
// spec.md §4.7 ("any opcode-type out of range returns a generic failure
// response").
func genericFailure(msg *wire.Descriptor) *wire.Descriptor {
	return msg.Response(msg.Opcode.AsResponse(), []byte("ERR_OPCODE_RANGE"), 16)
}

// errorResponse answers a failed client lookup when the message came
// from the proxy (host side), per spec.md §4.7 step 3.
func errorResponse(msg *wire.Descriptor) *wire.Descriptor {
	return msg.Response(msg.Opcode.AsResponse(), []byte("ERR_NO_SUCH_CLIENT"), 18)
}

// failureResponse answers a failed client lookup when the message came
// from another client, using a distinct kind for client-visible error
// propagation (spec.md §4.7 step 3).
func failureResponse(msg *wire.Descriptor) *wire.Descriptor {
	return msg.Response(msg.Opcode.AsResponse(), []byte("ROUTING_FAILURE"), 15)
}
