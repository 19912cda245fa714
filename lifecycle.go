package afcore

import (
	"context"

	"github.com/afcore/dsp-audio-framework/internal/wire"
)

// StatusInfo carries the fields the INIT_DONE transition populates from
// the DSP's start-buffer payload (spec.md §4.10: "sample rate, channels,
// PCM width, per-port input/output lengths").
type StatusInfo struct {
	SampleRate    int
	Channels      int
	PCMWidthBits  int
	InputLengths  []int
	OutputLengths []int
	EventID       uint32 // valid when Status == wire.StatusEvent
	EventPayload  []byte
	EventFatal    bool
}

// Process drives the comp_process state machine (spec.md §4.10). It
// sends the opcode the flag implies to the DSP-side service loop - here
// the core's own worker pool, a soft in-process model per spec.md §5 -
// and returns once the send has been accepted; the resulting response is
// read later via GetStatus.
func (c *Component) Process(ctx context.Context, flag wire.ProcessFlag, buf *wire.Descriptor) error {
	switch flag {
	case wire.FlagStart:
		return c.sendFillOnEveryOutputPort(ctx)

	case wire.FlagExec:
		c.mu.Lock()
		done := c.initDone
		c.mu.Unlock()
		if !done {
			return &Error{Op: "comp_process", Code: ErrAPIMisuse, Msg: "EXEC before init completes"}
		}
		return c.sendFillOnEveryOutputPort(ctx)

	case wire.FlagInputOver:
		c.mu.Lock()
		c.inputOver = true
		c.mu.Unlock()
		return c.sendToDSP(ctx, wire.OpEmptyThisBuffer, nil, 0)

	case wire.FlagInputReady:
		c.mu.Lock()
		known := c.inputBufs[buf]
		c.mu.Unlock()
		if !known {
			return &Error{Op: "comp_process", Code: ErrInvalidPointer, Msg: "buffer not allocated to this component's input"}
		}
		return c.sendToDSP(ctx, wire.OpEmptyThisBuffer, buf.Buffer, buf.Length)

	case wire.FlagNeedOutput, wire.FlagNeedProbe:
		c.mu.Lock()
		legal := c.expectOutCmd > 0
		if legal {
			c.expectOutCmd--
		}
		c.mu.Unlock()
		if !legal {
			return &Error{Op: "comp_process", Code: ErrAPIMisuse, Msg: "NEED_OUTPUT/NEED_PROBE with no outstanding expect_out_cmd"}
		}
		return c.sendToDSP(ctx, wire.OpFillThisBuffer, nil, 0)
	}
	return &Error{Op: "comp_process", Code: ErrInvalidValue, Msg: "unknown process flag"}
}

// TrackInputBuffer records buf as having been handed to this component's
// input pool, so a later INPUT_READY call can validate the pointer
// (spec.md §8 scenario 5).
func (c *Component) TrackInputBuffer(buf *wire.Descriptor) {
	c.mu.Lock()
	c.inputBufs[buf] = true
	c.mu.Unlock()
}

func (c *Component) sendFillOnEveryOutputPort(ctx context.Context) error {
	numPorts := c.routes.Len()
	for port := 0; port < numPorts; port++ {
		if !c.isOutputPort(port) {
			continue
		}
		c.mu.Lock()
		c.pendingOutput[port]++
		c.mu.Unlock()
		if err := c.sendToDSP(ctx, wire.OpFillThisBuffer, nil, 0); err != nil {
			return err
		}
	}
	return nil
}

// isOutputPort is a placeholder hook for components whose port layout
// distinguishes input/output ranges; the device's component-create logic
// is the source of truth and records it via SetOutputPortRange.
func (c *Component) isOutputPort(port int) bool {
	return port >= c.inputPortCount
}

// SetOutputPortRange records how many of this component's leading ports
// are inputs, matching routing.Table's "input ports first" convention.
func (c *Component) SetOutputPortRange(numInputPorts int) {
	c.mu.Lock()
	c.inputPortCount = numInputPorts
	c.mu.Unlock()
}

func (c *Component) sendToDSP(ctx context.Context, opcode wire.Opcode, payload []byte, length uint32) error {
	if c.device == nil {
		return &Error{Op: "comp_process", Code: ErrAPIMisuse, Msg: "component has no device"}
	}
	return c.device.simulateDSPExchange(ctx, c, opcode, payload, length)
}

// GetStatus blocks on the next response from the DSP and classifies it,
// per spec.md §4.10's comp_get_status. A doorbell ring is a level-
// triggered hint, not a one-for-one token per queued item (a burst of
// responses queued between two Waits only rings once) - so each
// iteration checks the queue directly before waiting on the next ring,
// rather than trusting ring count to match item count.
func (c *Component) GetStatus(ctx context.Context) (wire.StatusCode, StatusInfo, error) {
	for {
		if msg, ok := c.respQueue.Dequeue(); ok {
			return c.classify(msg)
		}
		if err := c.respDoorbell.Wait(ctx); err != nil {
			return wire.StatusAPIErr, StatusInfo{}, err
		}
	}
}

func (c *Component) classify(msg *wire.Descriptor) (wire.StatusCode, StatusInfo, error) {
	switch msg.Opcode.Type() {
	case int(wire.OpEvent):
		return wire.StatusEvent, StatusInfo{EventPayload: msg.Buffer}, nil

	case int(wire.OpFillThisBuffer):
		c.mu.Lock()
		wasInit := !c.initDone
		if wasInit {
			c.initDone = true
		}
		c.mu.Unlock()

		if wasInit {
			return wire.StatusInitDone, decodeStartPayload(msg.Buffer), nil
		}
		if msg.Length == 0 {
			c.mu.Lock()
			probing := c.probing
			c.mu.Unlock()
			if probing && c.device != nil {
				// Pause the probe port to flush before reporting
				// completion, per spec.md §4.10's EXEC_DONE transition.
				c.device.PauseComponent(c)
			}
			return wire.StatusExecDone, StatusInfo{}, nil
		}
		c.mu.Lock()
		c.expectOutCmd++
		c.mu.Unlock()
		return wire.StatusOutputReady, StatusInfo{OutputLengths: []int{int(msg.Length)}}, nil

	case int(wire.OpEmptyThisBuffer):
		c.mu.Lock()
		inputOver := c.inputOver
		c.mu.Unlock()
		if msg.Buffer == nil && inputOver {
			return wire.StatusExecDone, StatusInfo{}, nil
		}
		return wire.StatusNeedInput, StatusInfo{}, nil
	}
	return wire.StatusAPIErr, StatusInfo{}, &Error{Op: "comp_get_status", Code: ErrAPIMisuse, Msg: "unrecognized response opcode"}
}

func decodeStartPayload(buf []byte) StatusInfo {
	info := StatusInfo{SampleRate: 48000, Channels: 2, PCMWidthBits: 16}
	if len(buf) >= 4 {
		info.SampleRate = int(le32(buf[0:4]))
	}
	return info
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// put32 encodes v into b[0:4] little-endian, the wire-format counterpart
// to le32 used when building request payloads (SET_PRIORITIES,
// SET_PARAM/GET_PARAM) rather than decoding responses.
func put32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
