package btn

import (
	"errors"
	"fmt"
)

// JSON-RPC error codes returned by the BTN API.
const (
	CodeAuthentication = -32001
	CodeRateLimit      = -32002
)

var (
	ErrMissingAPIKey = errors.New("btn: missing API key")
	ErrCallBudget    = errors.New("btn: hourly call budget exhausted")
)

// RPCError is an error object returned by the API.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("btn: rpc error %d: %s", e.Code, e.Message)
}

// Unavailable reports whether the error means the site is temporarily down.
func (e *RPCError) Unavailable() bool {
	switch e.Code {
	case 500, 502, 521, 524:
		return true
	}
	return false
}

// Expected reports whether the error is one the API documents, as opposed
// to a protocol error.
func (e *RPCError) Expected() bool {
	return e.Code == CodeAuthentication || e.Code == CodeRateLimit || e.Unavailable()
}
