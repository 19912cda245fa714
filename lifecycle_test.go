package afcore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afcore/dsp-audio-framework/internal/wire"
)

func TestProcessStartYieldsInitDone(t *testing.T) {
	d := testDevice(t)
	ctx := context.Background()

	c, err := d.CreateComponent(ctx, "pcm_gain")
	require.NoError(t, err)

	require.NoError(t, c.Process(ctx, wire.FlagStart, nil))

	status, info, err := c.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, wire.StatusInitDone, status)
	assert.NotZero(t, info.SampleRate, "expected a populated sample rate on INIT_DONE")
}

func TestProcessExecBeforeInitIsAPIMisuse(t *testing.T) {
	d := testDevice(t)
	ctx := context.Background()

	c, err := d.CreateComponent(ctx, "pcm_gain")
	require.NoError(t, err)

	err = c.Process(ctx, wire.FlagExec, nil)
	assert.True(t, IsCode(err, ErrAPIMisuse), "expected ErrAPIMisuse before init")
}

func TestOutputReadyThenNeedOutput(t *testing.T) {
	d := testDevice(t)
	ctx := context.Background()

	c, err := d.CreateComponent(ctx, "pcm_gain")
	require.NoError(t, err)

	require.NoError(t, c.Process(ctx, wire.FlagStart, nil))
	_, _, err = c.GetStatus(ctx)
	require.NoError(t, err)

	require.NoError(t, c.Process(ctx, wire.FlagExec, nil))
	status, info, err := c.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, wire.StatusOutputReady, status)
	require.Len(t, info.OutputLengths, 1)
	assert.NotZero(t, info.OutputLengths[0])

	assert.NoError(t, c.Process(ctx, wire.FlagNeedOutput, nil))
}

func TestNeedOutputWithoutOutstandingExpectIsAPIMisuse(t *testing.T) {
	d := testDevice(t)
	ctx := context.Background()

	c, err := d.CreateComponent(ctx, "pcm_gain")
	require.NoError(t, err)

	err = c.Process(ctx, wire.FlagNeedOutput, nil)
	assert.True(t, IsCode(err, ErrAPIMisuse), "expected ErrAPIMisuse with no outstanding expect_out_cmd")
}

func TestInputReadyRejectsUntrackedPointer(t *testing.T) {
	d := testDevice(t)
	ctx := context.Background()

	c, err := d.CreateComponent(ctx, "pcm_gain")
	require.NoError(t, err)

	buf := &wire.Descriptor{Buffer: []byte("not mine"), Length: 8}
	err = c.Process(ctx, wire.FlagInputReady, buf)
	assert.True(t, IsCode(err, ErrInvalidPointer), "expected ErrInvalidPointer for an untracked buffer")
}

func TestInputReadyAcceptsTrackedPointer(t *testing.T) {
	d := testDevice(t)
	ctx := context.Background()

	c, err := d.CreateComponent(ctx, "pcm_gain")
	require.NoError(t, err)

	buf := &wire.Descriptor{Buffer: []byte("pcm frame"), Length: 9}
	c.TrackInputBuffer(buf)

	require.NoError(t, c.Process(ctx, wire.FlagInputReady, buf))

	status, _, err := c.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, wire.StatusNeedInput, status)
}

func TestInputOverYieldsExecDone(t *testing.T) {
	d := testDevice(t)
	ctx := context.Background()

	c, err := d.CreateComponent(ctx, "pcm_gain")
	require.NoError(t, err)

	require.NoError(t, c.Process(ctx, wire.FlagInputOver, nil))

	status, _, err := c.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, wire.StatusExecDone, status, "expected EXEC_DONE after input_over")
}
