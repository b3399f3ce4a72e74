//nolint:revive // exported
package mresult

import (
	"time"

	"github.com/the-dev-tools/apirun/pkg/idwrap"
)

// ErrorCode classifies transport and validation failures. Remote HTTP status
// codes are never errors; they surface as a successful result.
type ErrorCode string

const (
	ErrorCodeNone           ErrorCode = ""
	ErrorCodeInvalidRequest ErrorCode = "invalid_request"
	ErrorCodeDNS            ErrorCode = "dns"
	ErrorCodeConnection     ErrorCode = "connection"
	ErrorCodeTimeout        ErrorCode = "timeout"
	ErrorCodeTLS            ErrorCode = "tls"
	ErrorCodeTooLarge       ErrorCode = "too_large"
	ErrorCodeCanceled       ErrorCode = "canceled"
	ErrorCodeUnknown        ErrorCode = "unknown"
)

type Header struct {
	HeaderKey string `json:"key"`
	Value     string `json:"value"`
}

type Cookie struct {
	Name    string    `json:"name"`
	Value   string    `json:"value"`
	Domain  string    `json:"domain,omitempty"`
	Path    string    `json:"path,omitempty"`
	Expires time.Time `json:"expires,omitzero"`
}

type TestResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Error  string `json:"error,omitempty"`
}

// RequestEcho is the fully resolved request as it was (or would have been)
// dispatched, carried on every result for diagnostics.
type RequestEcho struct {
	Method  string   `json:"method"`
	URL     string   `json:"url"`
	Headers []Header `json:"headers,omitempty"`
	Body    string   `json:"body,omitempty"`
}

type ResponseInfo struct {
	Status     int32    `json:"status"`
	StatusText string   `json:"status_text"`
	Headers    []Header `json:"headers,omitempty"`
	Body       []byte   `json:"body,omitempty"`
	Cookies    []Cookie `json:"cookies,omitempty"`
	BodySize   int32    `json:"body_size"`
	HeaderSize int32    `json:"header_size"`
	Duration   int32    `json:"duration"` // milliseconds
}

// ExecutionResult is the uniform artifact of one execution. Success means a
// response of any status code was obtained; Response may still be set on
// failure when the transport produced one before failing.
type ExecutionResult struct {
	ID        idwrap.IDWrap `json:"id"`
	Success   bool          `json:"success"`
	Timestamp time.Time     `json:"timestamp"`

	Request  RequestEcho   `json:"request"`
	Response *ResponseInfo `json:"response,omitempty"`

	ErrorMessage string    `json:"error,omitempty"`
	ErrorCode    ErrorCode `json:"error_code,omitempty"`

	TestResults []TestResult `json:"test_results,omitempty"`
	Console     []string     `json:"console,omitempty"`
}

func (r ExecutionResult) TestsFailed() int {
	failed := 0
	for _, t := range r.TestResults {
		if !t.Passed {
			failed++
		}
	}
	return failed
}
