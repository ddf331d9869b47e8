package runtime

// ETagMaxInitialValue just a value, meaningless
const ETagMaxInitialValue int64 = 3294967296

type AcquisitionStatus int8

const (
	Stopped AcquisitionStatus = iota
	Acquiring
	AcquiringError
	Unconnected
)

var AcquisitionStatusToString = map[AcquisitionStatus]string{
	Stopped:        "stopped",
	Acquiring:      "acquiring",
	AcquiringError: "acquiringError",
	Unconnected:    "unconnected",
}

var StringToAcquisitionStatus = map[string]AcquisitionStatus{
	"stopped":        Stopped,
	"acquiring":      Acquiring,
	"acquiringError": AcquiringError,
	"unconnected":    Unconnected,
}

type StatusCommand int8

const (
	Start StatusCommand = iota
	Stop
	Restart
)

var StringToStatusCommand = map[string]StatusCommand{
	"start":   Start,
	"stop":    Stop,
	"restart": Restart,
}
