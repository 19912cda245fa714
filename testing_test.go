package afcore

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/afcore/dsp-audio-framework/internal/dispatch"
	"github.com/afcore/dsp-audio-framework/internal/registry"
	"github.com/afcore/dsp-audio-framework/internal/wire"
)

var _ dispatch.Component = (*MockComponent)(nil)

func TestMockComponentRecordsMessages(t *testing.T) {
	m := NewMockComponent("pcm_gain", 2)
	m.SetID(registry.ClientID(5))
	m.SetPriority(2)

	msg := &wire.Descriptor{Opcode: wire.OpFillThisBuffer}
	assert.Equal(t, 0, m.ProcessMessage(msg), "expected default rc 0")

	m.SetProcessRC(-1)
	assert.Equal(t, -1, m.ProcessMessage(msg), "expected configured rc -1")

	assert.Equal(t, 2, m.ProcessCalls(), "expected 2 recorded ProcessMessage calls")
	assert.Len(t, m.Received(), 2)
	assert.Equal(t, registry.ClientID(5), m.ID())
	assert.Equal(t, 2, m.Priority())

	assert.NoError(t, m.Exit(), "expected nil Exit error by default")
	assert.Equal(t, 1, m.ExitCalls(), "expected 1 recorded Exit call")
}
