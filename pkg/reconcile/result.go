package reconcile

type Status string

const (
	StatusSuccess        Status = "success"
	StatusPartialSuccess Status = "partial_success"
	StatusFailure        Status = "failure"
	// StatusNotSupported answers channel requests whose operation the
	// broker does not handle. The request is never silently dropped.
	StatusNotSupported Status = "not_supported"
)

type RunState string

const (
	StateRunning RunState = "running"
	StateStopped RunState = "stopped"
	StateUnknown RunState = "unknown"
)

// ServiceState is the controller's view of a daemon plus the raw
// tool-reported status for diagnostics.
type ServiceState struct {
	State RunState `json:"state" cbor:"state"`
	Raw   string   `json:"raw,omitempty" cbor:"raw,omitempty"`
}

// Snapshot is the optional post-state attached to a result.
type Snapshot struct {
	// Interfaces maps interface name to its resulting address list.
	Interfaces map[string][]string `json:"interfaces,omitempty" cbor:"interfaces,omitempty"`
	// Stale lists addresses that survived the reconciler's retry budget,
	// keyed by interface. Only set on partial success.
	Stale map[string][]string `json:"stale,omitempty" cbor:"stale,omitempty"`

	Service *ServiceState `json:"service,omitempty" cbor:"service,omitempty"`
}

// Result is the single structured answer to one request. Changed
// distinguishes "nothing needed to change" from "changed successfully".
type Result struct {
	ID       string    `json:"id" cbor:"id"`
	Status   Status    `json:"status" cbor:"status"`
	Changed  bool      `json:"changed" cbor:"changed"`
	Detail   string    `json:"detail,omitempty" cbor:"detail,omitempty"`
	Error    *Error    `json:"error,omitempty" cbor:"error,omitempty"`
	Snapshot *Snapshot `json:"snapshot,omitempty" cbor:"snapshot,omitempty"`
}

func Success(id string, changed bool) Result {
	return Result{ID: id, Status: StatusSuccess, Changed: changed}
}

func Partial(id, detail string) Result {
	return Result{ID: id, Status: StatusPartialSuccess, Changed: true, Detail: detail}
}

func Failed(id string, err error) Result {
	return Result{ID: id, Status: StatusFailure, Error: AsError(err)}
}

func NotSupported(id string) Result {
	return Result{ID: id, Status: StatusNotSupported, Detail: "operation not yet supported"}
}
