package protocol

import (
	"encoding/json"
	"fmt"
)

// ControlKind identifies a worker control-plane message. Control messages
// manage the sandboxed runtime's lifecycle and never mix with session
// messages; they are always JSON regardless of the session codec.
type ControlKind string

const (
	ControlInit   ControlKind = "init"   // host → worker: bootstrap parameters
	ControlRun    ControlKind = "run"    // host → worker: application source
	ControlStatus ControlKind = "status" // worker → host: bootstrap progress
	ControlReady  ControlKind = "ready"  // worker → host: bootstrap complete
	ControlError  ControlKind = "error"  // worker → host: bootstrap or run failure
)

// ControlMessage is implemented by every control-plane message.
type ControlMessage interface {
	ControlMessageKind() ControlKind
}

// InitRequest carries the runtime bootstrap parameters. The worker replies
// with status updates and finally ready or error.
type InitRequest struct {
	Type     ControlKind       `json:"type"`
	IndexURL string            `json:"indexUrl,omitempty"` // package index override
	Packages []string          `json:"packages,omitempty"` // packages to preinstall
	Env      map[string]string `json:"env,omitempty"`
}

func (*InitRequest) ControlMessageKind() ControlKind { return ControlInit }

// NewInitRequest creates an InitRequest with the kind tag set.
func NewInitRequest() *InitRequest {
	return &InitRequest{Type: ControlInit}
}

// RunRequest submits application source to an initialized runtime. Exactly
// one of Code, Files or Archive is set: inline source, a named module with
// file contents, or the local path of a fetched package archive.
type RunRequest struct {
	Type    ControlKind       `json:"type"`
	Code    string            `json:"code,omitempty"`
	Module  string            `json:"module,omitempty"`
	Files   map[string]string `json:"files,omitempty"`
	Archive string            `json:"archive,omitempty"`
	Entry   string            `json:"entry,omitempty"`
}

func (*RunRequest) ControlMessageKind() ControlKind { return ControlRun }

// NewRunRequest creates a RunRequest with the kind tag set.
func NewRunRequest() *RunRequest {
	return &RunRequest{Type: ControlRun}
}

// StatusMessage reports bootstrap progress. Phase names the stage
// ("spawn", "runtime", "packages"); Message is human-readable.
type StatusMessage struct {
	Type    ControlKind `json:"type"`
	Phase   string      `json:"phase"`
	Message string      `json:"message"`
}

func (*StatusMessage) ControlMessageKind() ControlKind { return ControlStatus }

// ReadyMessage signals that the runtime finished bootstrapping and the
// session plane is open.
type ReadyMessage struct {
	Type           ControlKind `json:"type"`
	RuntimeVersion string      `json:"runtimeVersion,omitempty"`
}

func (*ReadyMessage) ControlMessageKind() ControlKind { return ControlReady }

// ErrorReport signals a bootstrap or execution failure. Phase names the
// stage that failed; Message carries the runtime's own description.
type ErrorReport struct {
	Type    ControlKind `json:"type"`
	Phase   string      `json:"phase,omitempty"`
	Message string      `json:"message"`
}

func (*ErrorReport) ControlMessageKind() ControlKind { return ControlError }

// controlProbe reads just the kind tag of a control message.
type controlProbe struct {
	Type ControlKind `json:"type"`
}

// taggedControl returns msg with its kind tag filled in, copying when the
// caller built the struct without it.
func taggedControl(msg ControlMessage) ControlMessage {
	switch m := msg.(type) {
	case *InitRequest:
		if m.Type == "" {
			c := *m
			c.Type = ControlInit
			return &c
		}
	case *RunRequest:
		if m.Type == "" {
			c := *m
			c.Type = ControlRun
			return &c
		}
	case *StatusMessage:
		if m.Type == "" {
			c := *m
			c.Type = ControlStatus
			return &c
		}
	case *ReadyMessage:
		if m.Type == "" {
			c := *m
			c.Type = ControlReady
			return &c
		}
	case *ErrorReport:
		if m.Type == "" {
			c := *m
			c.Type = ControlError
			return &c
		}
	}
	return msg
}

// EncodeControl serializes a control message as a JSON object.
func EncodeControl(msg ControlMessage) ([]byte, error) {
	data, err := json.Marshal(taggedControl(msg))
	if err != nil {
		return nil, fmt.Errorf("protocol: encode control %s: %w", msg.ControlMessageKind(), err)
	}
	return data, nil
}

// DecodeControl deserializes a control message into its concrete type.
func DecodeControl(data []byte) (ControlMessage, error) {
	var probe controlProbe
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("protocol: decode control message: %w", err)
	}
	var msg ControlMessage
	switch probe.Type {
	case ControlInit:
		msg = &InitRequest{}
	case ControlRun:
		msg = &RunRequest{}
	case ControlStatus:
		msg = &StatusMessage{}
	case ControlReady:
		msg = &ReadyMessage{}
	case ControlError:
		msg = &ErrorReport{}
	default:
		return nil, fmt.Errorf("protocol: unknown control kind %q", probe.Type)
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("protocol: decode control %s: %w", probe.Type, err)
	}
	return msg, nil
}
