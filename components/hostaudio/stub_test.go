//go:build !portaudio

package hostaudio

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	afcore "github.com/afcore/dsp-audio-framework"
)

func TestRegisterNoOpWithoutPortaudioTag(t *testing.T) {
	cfg := afcore.DefaultDeviceConfig()
	cfg.MaxClients = 8
	cfg.NumRTWorkers = 1

	d, err := afcore.Open(context.Background(), cfg)
	require.NoError(t, err)
	defer d.Close(context.Background(), afcore.CloseNormal)

	before := d.ComponentTypes()
	Register(d)
	after := d.ComponentTypes()

	assert.Len(t, after, len(before), "expected Register to add no component types without the portaudio tag")
}
