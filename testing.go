package afcore

import (
	"sync"

	"github.com/afcore/dsp-audio-framework/internal/registry"
	"github.com/afcore/dsp-audio-framework/internal/routing"
	"github.com/afcore/dsp-audio-framework/internal/wire"
)

// MockComponent is a bare dispatch.Component implementation for tests
// that need a registered component without the full comp_process state
// machine: it records every message it receives and returns a
// caller-configured rc from ProcessMessage (Process always returns 0),
// useful for exercising
// the dispatcher, worker pool, and scheduler in isolation.
type MockComponent struct {
	mu sync.Mutex

	id       registry.ClientID
	priority int
	typeName string
	routes   *routing.Table

	processRC int
	exitErr   error

	received []*wire.Descriptor
	processCalls int
	exitCalls    int
}

// NewMockComponent builds a MockComponent with numPorts routing slots.
func NewMockComponent(typeName string, numPorts int) *MockComponent {
	return &MockComponent{
		typeName: typeName,
		routes:   routing.New(numPorts),
	}
}

func (m *MockComponent) ID() registry.ClientID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id
}

func (m *MockComponent) SetID(id registry.ClientID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.id = id
}

func (m *MockComponent) Priority() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.priority
}

func (m *MockComponent) SetPriority(p int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.priority = p
}

func (m *MockComponent) TypeName() string { return m.typeName }

func (m *MockComponent) Routes() *routing.Table { return m.routes }

// ProcessMessage records msg and returns the configured rc.
func (m *MockComponent) ProcessMessage(msg *wire.Descriptor) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.received = append(m.received, msg)
	m.processCalls++
	return m.processRC
}

// Process satisfies worker.Processor's self-scheduled path; MockComponent
// never has self-scheduled work, so it always returns 0.
func (m *MockComponent) Process() int { return 0 }

// Exit records the call and returns the configured error.
func (m *MockComponent) Exit() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exitCalls++
	return m.exitErr
}

// SetProcessRC configures the rc ProcessMessage returns; a negative value
// exercises the worker pool's teardown path.
func (m *MockComponent) SetProcessRC(rc int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processRC = rc
}

// SetExitErr configures the error Exit returns.
func (m *MockComponent) SetExitErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exitErr = err
}

// Received returns every message handed to ProcessMessage, in order.
func (m *MockComponent) Received() []*wire.Descriptor {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*wire.Descriptor, len(m.received))
	copy(out, m.received)
	return out
}

// ProcessCalls returns how many times ProcessMessage has been called.
func (m *MockComponent) ProcessCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.processCalls
}

// ExitCalls returns how many times Exit has been called.
func (m *MockComponent) ExitCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exitCalls
}
