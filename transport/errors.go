package transport

import "fmt"

// TransportError reports a failure below the RPC layer: connection errors,
// HTTP statuses >= 400 and response bodies that cannot be parsed. A non-2xx
// status is always a transport failure, regardless of the body.
type TransportError struct {
	Status int    // HTTP status, 0 for connection-level failures
	Body   string // response body snippet, if any
	Err    error  // underlying error, if any
}

func (e *TransportError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("mcp connection error: %v", e.Err)
	case e.Status != 0:
		return fmt.Sprintf("mcp request failed (%d): %s", e.Status, e.Body)
	default:
		return fmt.Sprintf("mcp transport error: %s", e.Body)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// RPCError is a well-formed JSON-RPC error object carried inside a 2xx
// response. Its presence means the call failed at the protocol level.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("mcp error %d: %s", e.Code, e.Message)
}
