package ipc

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Commands understood by the daemon
const (
	CmdStatus     = "status"
	CmdCopy       = "copy"
	CmdSyncForce  = "sync.force"
	CmdSyncReset  = "sync.reset"
	CmdSyncStatus = "sync.status"
	CmdWatch      = "watch"
)

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Request represents a command sent from the CLI to the daemon.
type Request struct {
	Command string         `json:"command"`        // e.g. "status", "copy"
	Args    map[string]any `json:"args,omitempty"` // Command-specific arguments
}

// Response represents a reply from the daemon to the CLI.
type Response struct {
	Status  string          `json:"status"`            // "ok" or "error"
	Message string          `json:"message,omitempty"` // Human-readable message or error
	Data    json.RawMessage `json:"data,omitempty"`    // Command-specific payload
}

// OK builds a success response carrying data
func OK(data any) *Response {
	if data == nil {
		return &Response{Status: StatusOK}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Errorf("failed to encode response: %v", err)
	}
	return &Response{Status: StatusOK, Data: raw}
}

// Errorf builds an error response
func Errorf(format string, args ...any) *Response {
	return &Response{Status: StatusError, Message: fmt.Sprintf(format, args...)}
}

// Err returns the daemon-side error, if any
func (r *Response) Err() error {
	if r.Status == StatusError {
		return fmt.Errorf("daemon: %s", r.Message)
	}
	return nil
}

// Decode unmarshals the payload into v
func (r *Response) Decode(v any) error {
	if err := r.Err(); err != nil {
		return err
	}
	if len(r.Data) == 0 {
		return nil
	}
	return json.Unmarshal(r.Data, v)
}

// Int64Arg reads a numeric argument. JSON numbers arrive as float64, and
// strings are accepted for hand-written requests.
func (r *Request) Int64Arg(name string) (int64, error) {
	v, ok := r.Args[name]
	if !ok {
		return 0, fmt.Errorf("missing argument %q", name)
	}
	switch n := v.(type) {
	case float64:
		return int64(n), nil
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case string:
		id, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("argument %q: %w", name, err)
		}
		return id, nil
	default:
		return 0, fmt.Errorf("argument %q has type %T", name, v)
	}
}
