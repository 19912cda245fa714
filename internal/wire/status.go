package wire

// ProcessFlag selects which branch of the comp_process state machine
// (spec.md §4.10) an Component.Process call drives.
type ProcessFlag int

const (
	FlagStart ProcessFlag = iota
	FlagExec
	FlagInputOver
	FlagInputReady
	FlagNeedOutput
	FlagNeedProbe
)

// StatusCode is what comp_get_status classifies a DSP response into
// (spec.md §4.10).
type StatusCode int

const (
	StatusNeedInput StatusCode = iota
	StatusInitDone
	StatusOutputReady
	StatusProbeReady
	StatusExecDone
	StatusEvent
	StatusAPIErr
)

func (s StatusCode) String() string {
	switch s {
	case StatusNeedInput:
		return "NEED_INPUT"
	case StatusInitDone:
		return "INIT_DONE"
	case StatusOutputReady:
		return "OUTPUT_READY"
	case StatusProbeReady:
		return "PROBE_READY"
	case StatusExecDone:
		return "EXEC_DONE"
	case StatusEvent:
		return "EVENT"
	default:
		return "API_ERR"
	}
}

// ProbePort is the reserved output-port index for probe buffers.
// comp_get_status does not consult it: a non-empty output buffer is always
// reported as OUTPUT_READY, never PROBE_READY.
const ProbePort = -1
