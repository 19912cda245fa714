//go:build portaudio

// Package hostaudio provides a real host-soundcard-backed capturer and
// renderer pair, registered under the "hostaudio_capturer" and
// "hostaudio_renderer" class-factory keys. It exists to give
// internal/components something concrete to exercise end to end without
// pulling SAI/ESAI register code into the core - the hardware-glue
// collaborator spec.md places out of scope, wired here as an external,
// build-tag-gated package. Mirrors the teacher's giouring/minimal split.
package hostaudio

import (
	"sync"

	"github.com/gordonklaus/portaudio"

	afcore "github.com/afcore/dsp-audio-framework"
	"github.com/afcore/dsp-audio-framework/internal/dispatch"
	"github.com/afcore/dsp-audio-framework/internal/wire"
)

const (
	sampleRate      = 48000
	framesPerBuffer = 1024
)

// Register installs the host-soundcard component types on device. Callers
// are responsible for portaudio.Initialize before Register and
// portaudio.Terminate after the device is closed.
func Register(device *afcore.Device) {
	device.RegisterComponentType("hostaudio_capturer", func() (dispatch.Component, error) {
		return newCapturer(device)
	})
	device.RegisterComponentType("hostaudio_renderer", func() (dispatch.Component, error) {
		return newRenderer(device)
	})
}

// capturer answers comp_process FILL_THIS_BUFFER with real microphone
// samples instead of afcore.Component's synthetic start payload.
type capturer struct {
	*afcore.Component
	mu     sync.Mutex
	stream *portaudio.Stream
	buf    []int16
}

func newCapturer(device *afcore.Device) (dispatch.Component, error) {
	base, err := afcore.NewComponent(device, "hostaudio_capturer", 1)
	if err != nil {
		return nil, err
	}
	c := &capturer{
		Component: base,
		buf:       make([]int16, framesPerBuffer),
	}
	c.SetOutputPortRange(0) // source: its one port is output-only

	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), framesPerBuffer, c.buf)
	if err != nil {
		return nil, err
	}
	if err := stream.Start(); err != nil {
		return nil, err
	}
	c.stream = stream
	return c, nil
}

func (c *capturer) ProcessMessage(msg *wire.Descriptor) int {
	if msg.Opcode.Type() != int(wire.OpFillThisBuffer) {
		c.Component.DeliverResponse(msg)
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.stream.Read(); err != nil {
		c.Component.DeliverResponse(&wire.Descriptor{Opcode: wire.OpFillThisBuffer, Length: 0})
		return 0
	}
	c.Component.DeliverResponse(&wire.Descriptor{
		Opcode: wire.OpFillThisBuffer,
		Buffer: int16ToBytes(c.buf),
		Length: uint32(len(c.buf) * 2),
	})
	return 0
}

func (c *capturer) Exit() error {
	if c.stream != nil {
		_ = c.stream.Stop()
		if err := c.stream.Close(); err != nil {
			return err
		}
	}
	return c.Component.Exit()
}

// renderer writes real output samples as EMPTY_THIS_BUFFER requests
// arrive from comp_process, in place of afcore.Component's soft-model
// echo.
type renderer struct {
	*afcore.Component
	mu     sync.Mutex
	stream *portaudio.Stream
	buf    []int16
}

func newRenderer(device *afcore.Device) (dispatch.Component, error) {
	base, err := afcore.NewComponent(device, "hostaudio_renderer", 1)
	if err != nil {
		return nil, err
	}
	r := &renderer{
		Component: base,
		buf:       make([]int16, framesPerBuffer),
	}
	r.SetOutputPortRange(1) // sink: its one port is input-only

	stream, err := portaudio.OpenDefaultStream(0, 1, float64(sampleRate), framesPerBuffer, r.buf)
	if err != nil {
		return nil, err
	}
	if err := stream.Start(); err != nil {
		return nil, err
	}
	r.stream = stream
	return r, nil
}

func (r *renderer) ProcessMessage(msg *wire.Descriptor) int {
	if msg.Opcode.Type() != int(wire.OpEmptyThisBuffer) || msg.Buffer == nil {
		r.Component.DeliverResponse(msg)
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	bytesToInt16(msg.Buffer, r.buf)
	if err := r.stream.Write(); err != nil {
		r.Component.DeliverResponse(&wire.Descriptor{Opcode: wire.OpEmptyThisBuffer})
		return 0
	}
	r.Component.DeliverResponse(msg)
	return 0
}

func (r *renderer) Exit() error {
	if r.stream != nil {
		_ = r.stream.Stop()
		if err := r.stream.Close(); err != nil {
			return err
		}
	}
	return r.Component.Exit()
}

func int16ToBytes(s []int16) []byte {
	b := make([]byte, len(s)*2)
	for i, v := range s {
		b[2*i] = byte(v)
		b[2*i+1] = byte(v >> 8)
	}
	return b
}

func bytesToInt16(b []byte, dst []int16) {
	n := len(b) / 2
	if n > len(dst) {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		dst[i] = int16(b[2*i]) | int16(b[2*i+1])<<8
	}
}
