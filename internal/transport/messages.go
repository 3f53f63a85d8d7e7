// Package transport realizes spec.md §6's "external interface" as an
// in-process websocket server, since this is a standalone Go binary
// rather than in-browser code that could leave the transport wholly
// external. The handler-per-route shape (one httpHandler struct closing
// over the pieces it needs, registered against a ServeMux) follows the
// small webserver command found elsewhere in this corpus; the upgrade to
// a persistent bidirectional connection uses gorilla/websocket, already
// present (if indirect) in the teacher's own dependency closure.
package transport

import "encoding/json"

// Inbound envelope kinds, per spec.md §6.
const (
	KindCompile    = "compile"
	KindRefresh    = "refresh"
	KindEvaluate   = "evaluate"
	KindFSResponse = "fs-response"
)

// Outbound envelope kinds, per spec.md §6, plus fs-request (added so the
// async FS bridge round-trip described in spec.md §4.A has a concrete
// wire shape to correlate requestId against).
const (
	KindInitialized = "initialized"
	KindStart       = "start"
	KindStatus      = "status"
	KindState       = "state"
	KindDone        = "done"
	KindSuccess     = "success"
	KindAction      = "action"
	KindConsole     = "console"
	KindResize      = "resize"
	KindRefreshOut  = "refresh"
	KindFSRequest   = "fs-request"
)

// InboundEnvelope is the generic shape every inbound frame is first
// decoded into; Kind selects which concrete payload Data holds.
type InboundEnvelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// CompileFile is one entry of a compile envelope's file map; the map key
// it is stored under (in CompilePayload.Modules) is its path.
type CompileFile struct {
	Code string `json:"code"`
}

// CompilePayload is the "compile" inbound payload.
type CompilePayload struct {
	Modules         map[string]CompileFile `json:"modules"`
	Template        string                 `json:"template"`
	HasFileResolver bool                   `json:"hasFileResolver,omitempty"`
	LogLevel        string                 `json:"logLevel,omitempty"`
}

// EvaluatePayload is the "evaluate" inbound payload: a console REPL
// command pass-through.
type EvaluatePayload struct {
	Command string `json:"command"`
}

// FSResponsePayload answers a prior "fs-request" the host sent for the
// async FS bridge.
type FSResponsePayload struct {
	RequestID string `json:"requestId"`
	Result    string `json:"result,omitempty"`
	Found     bool   `json:"found"`
	Error     string `json:"error,omitempty"`
}

// OutboundEnvelope is the generic shape every outbound frame is encoded
// from.
type OutboundEnvelope struct {
	Kind string `json:"kind"`
	Data any    `json:"data"`
}

// StatusPayload reports a Bundler phase transition (spec.md §4.J).
type StatusPayload struct {
	Status string `json:"status"`
}

// StatePayload carries the transpiled module-map snapshot, per spec.md
// §6 (keys are "path:", values are compiled source).
type StatePayload struct {
	Modules map[string]string `json:"modules"`
	Entry   string            `json:"entry"`
}

// ActionPayload carries a host-side UI action, e.g. show-error or
// empty-state.
type ActionPayload struct {
	Action  string `json:"action"`
	Message string `json:"message,omitempty"`
}

// DonePayload reports the outcome of the compile that just finished, per
// spec.md §6's `done {compilatonError}` shape (field name kept exactly as
// the original wire protocol spells it, typo and all, for host
// compatibility). A nil CompilationError is spec.md §8 S5's
// `done{compilatonError:false}`: the compile reached done with nothing
// wrong, whether or not it produced any modules.
type DonePayload struct {
	CompilationError *string `json:"compilatonError,omitempty"`
}

// ConsolePayload mirrors a console.log/warn/error call observed during
// evaluation back to the host.
type ConsolePayload struct {
	Level string   `json:"level"`
	Args  []string `json:"args"`
}

// FSRequestPayload asks the host to resolve a path the virtual file
// system's package layer or async bridge could not answer locally.
type FSRequestPayload struct {
	RequestID string `json:"requestId"`
	Path      string `json:"path"`
}
