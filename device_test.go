package afcore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afcore/dsp-audio-framework/internal/constants"
)

func testDevice(t *testing.T) *Device {
	t.Helper()
	d, err := Open(context.Background(), DeviceConfig{MaxClients: 8, NumRTWorkers: 1, WorkerQueueDepth: 16, ControlPoolSize: 4, EventPoolSize: 4})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close(context.Background(), CloseForce) })
	return d
}

func TestCreateComponentUnknownType(t *testing.T) {
	d := testDevice(t)
	_, err := d.CreateComponent(context.Background(), "no_such_type")
	assert.Error(t, err, "expected an error for an unregistered component type")
}

func TestCreateConnectDeleteComponent(t *testing.T) {
	d := testDevice(t)
	ctx := context.Background()

	capturer, err := d.CreateComponent(ctx, "pcm_capturer")
	require.NoError(t, err)
	render, err := d.CreateComponent(ctx, "pcm_renderer")
	require.NoError(t, err)

	stats, err := d.GetMemStats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.LiveClients)

	require.NoError(t, d.Connect(capturer, 0, render, 0))
	assert.True(t, capturer.Routes().Connected(0), "expected capturer's output port connected after Connect")

	require.NoError(t, d.Disconnect(capturer, 0))
	assert.False(t, capturer.Routes().Connected(0), "expected capturer's output port idle after Disconnect")

	require.NoError(t, d.DeleteComponent(capturer))
	stats, err = d.GetMemStats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.LiveClients, "expected 1 live client after delete")
}

func TestSuspendResumeBroadcastNoError(t *testing.T) {
	d := testDevice(t)
	ctx := context.Background()

	_, err := d.CreateComponent(ctx, "pcm_gain")
	require.NoError(t, err)
	assert.NoError(t, d.Suspend(ctx))
	assert.NoError(t, d.Resume(ctx))
}

func TestEventChannelRelayInvokesHandler(t *testing.T) {
	var got []byte
	d, err := Open(context.Background(), DeviceConfig{
		MaxClients: 8, NumRTWorkers: 1, WorkerQueueDepth: 16, ControlPoolSize: 4, EventPoolSize: 4,
		EventHandler: func(sourceComponent, eventID uint32, payload []byte, fatal bool) {
			got = payload
		},
	})
	require.NoError(t, err)
	defer d.Close(context.Background(), CloseForce)

	ctx := context.Background()
	c, err := d.CreateComponent(ctx, "pcm_gain")
	require.NoError(t, err)

	ch := d.CreateEventChannel(c, 3, nil, 0, 2)
	require.Equal(t, int32(2), ch.Pending(), "expected 2 preloaded buffers")

	d.RelayEvent(uint32(c.ID()), 3, []byte("clip"), false)
	assert.Equal(t, "clip", string(got), "expected handler to receive relayed payload")

	d.DeleteEventChannel(ch)
	assert.Equal(t, int32(0), ch.Pending(), "expected pending reset to 0 after delete")
}

func TestCreateComponentWithOptionsRejectsOutOfRangeBufferCounts(t *testing.T) {
	d := testDevice(t)
	ctx := context.Background()

	_, err := d.CreateComponentWithOptions(ctx, "pcm_gain", ComponentOptions{NumInputBuffers: -1})
	assert.Error(t, err, "expected an error for a negative num_input_buffers")

	_, err = d.CreateComponentWithOptions(ctx, "pcm_gain", ComponentOptions{NumInputBuffers: constants.MaxInputBuffers + 1})
	assert.Error(t, err, "expected an error for num_input_buffers beyond MAX_INBUFS")

	_, err = d.CreateComponentWithOptions(ctx, "pcm_gain", ComponentOptions{NumOutputBuffers: constants.MaxOutputBuffers + 1})
	assert.Error(t, err, "expected an error for num_output_buffers beyond the documented [0,1] bound")

	_, err = d.CreateComponentWithOptions(ctx, "pcm_gain", ComponentOptions{NumInputBuffers: constants.MaxInputBuffers, NumOutputBuffers: constants.MaxOutputBuffers})
	assert.NoError(t, err, "expected in-range buffer counts to succeed")
}

func TestOpenRejectsUndersizedScratchBuffer(t *testing.T) {
	_, err := Open(context.Background(), DeviceConfig{MaxClients: 8, NumRTWorkers: 1, ScratchSize: constants.MinComponentBufferSize - 1})
	assert.Error(t, err, "expected an error for a scratch buffer size below the documented minimum")
}

func TestGetMemStatsAfterCloseIsAPIMisuse(t *testing.T) {
	d := testDevice(t)
	require.NoError(t, d.Close(context.Background(), CloseNormal))
	_, err := d.GetMemStats()
	assert.True(t, IsCode(err, ErrAPIMisuse), "expected ErrAPIMisuse after close")
}

func TestGetVersionInfo(t *testing.T) {
	d := testDevice(t)
	v := d.GetVersionInfo()
	assert.NotEmpty(t, v.Module)
	assert.NotZero(t, v.WireFormat)
}

func TestSetConfigGetConfigRoundTrip(t *testing.T) {
	d := testDevice(t)
	ctx := context.Background()

	c, err := d.CreateComponent(ctx, "pcm_gain")
	require.NoError(t, err)

	require.NoError(t, d.SetConfig(c, map[uint32]uint32{1: 10, 2: 20}))

	got, err := d.GetConfig(c, []uint32{2, 1})
	require.NoError(t, err)
	assert.Equal(t, []uint32{20, 10}, got)
}

func TestGetConfigUnknownKeyIsInvalidValue(t *testing.T) {
	d := testDevice(t)
	ctx := context.Background()

	c, err := d.CreateComponent(ctx, "pcm_gain")
	require.NoError(t, err)

	_, err = d.GetConfig(c, []uint32{99})
	assert.True(t, IsCode(err, ErrInvalidValue), "expected ErrInvalidValue for an unset parameter key")
}

func TestSetPrioritiesRebuildsPoolThenRejectsSecondCall(t *testing.T) {
	d := testDevice(t)
	ctx := context.Background()

	require.NoError(t, d.SetPriorities(ctx, 1, 0, 3))

	// The pool must have been rebuilt and still be usable.
	c, err := d.CreateComponent(ctx, "pcm_gain")
	require.NoError(t, err)
	assert.NotNil(t, c)

	err = d.SetPriorities(ctx, 1, 0, 3)
	assert.True(t, IsCode(err, ErrAPIMisuse), "expected a one-shot SET_PRIORITIES to reject a second call")
}

func TestPauseResumeComponentNoError(t *testing.T) {
	d := testDevice(t)
	ctx := context.Background()

	c, err := d.CreateComponent(ctx, "pcm_gain")
	require.NoError(t, err)

	d.PauseComponent(c)
	d.ResumeComponent(c)
}

func TestCloseRejectsWhenAlreadyClosed(t *testing.T) {
	d, err := Open(context.Background(), DeviceConfig{MaxClients: 8, NumRTWorkers: 1, WorkerQueueDepth: 16, ControlPoolSize: 4, EventPoolSize: 4})
	require.NoError(t, err)

	require.NoError(t, d.Close(context.Background(), CloseNormal))
	err = d.Close(context.Background(), CloseNormal)
	assert.True(t, IsCode(err, ErrAPIMisuse), "expected ErrAPIMisuse closing an already-closed device")
}

func TestCloseWithoutForceRejectsLiveComponents(t *testing.T) {
	d, err := Open(context.Background(), DeviceConfig{MaxClients: 8, NumRTWorkers: 1, WorkerQueueDepth: 16, ControlPoolSize: 4, EventPoolSize: 4})
	require.NoError(t, err)
	defer d.Close(context.Background(), CloseForce)

	ctx := context.Background()
	_, err = d.CreateComponent(ctx, "pcm_gain")
	require.NoError(t, err)

	err = d.Close(ctx, CloseNormal)
	assert.True(t, IsCode(err, ErrAPIMisuse), "expected ErrAPIMisuse closing with live components and no FORCE")
}

func TestForceCloseSucceedsWithLiveComponents(t *testing.T) {
	d, err := Open(context.Background(), DeviceConfig{MaxClients: 8, NumRTWorkers: 1, WorkerQueueDepth: 16, ControlPoolSize: 4, EventPoolSize: 4})
	require.NoError(t, err)

	ctx := context.Background()
	_, err = d.CreateComponent(ctx, "pcm_capturer")
	require.NoError(t, err)
	_, err = d.CreateComponent(ctx, "pcm_renderer")
	require.NoError(t, err)

	require.NoError(t, d.Close(ctx, CloseForce))

	stats, err := d.GetMemStats()
	assert.True(t, IsCode(err, ErrAPIMisuse), "expected GetMemStats to reject after close")
	assert.Zero(t, stats.LiveClients)
}
