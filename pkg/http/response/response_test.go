package response_test

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/the-dev-tools/apirun/pkg/http/response"
	"github.com/the-dev-tools/apirun/pkg/httpclient"
	"github.com/the-dev-tools/apirun/pkg/idwrap"
	"github.com/the-dev-tools/apirun/pkg/model/mresult"
)

func TestAssembleSuccess(t *testing.T) {
	execID := idwrap.NewNow()
	echo := mresult.RequestEcho{Method: "GET", URL: "https://example.com"}
	resp := httpclient.Response{
		StatusCode: 404,
		Status:     "404 Not Found",
		Body:       []byte("missing"),
		Headers: []httpclient.Header{
			{HeaderKey: "Content-Type", Value: "text/plain"},
		},
	}

	result := response.Assemble(execID, echo, resp, 120*time.Millisecond)

	assert.True(t, result.Success, "an HTTP error status is still a completed execution")
	assert.Equal(t, execID, result.ID)
	require.NotNil(t, result.Response)
	assert.Equal(t, int32(404), result.Response.Status)
	assert.Equal(t, "Not Found", result.Response.StatusText)
	assert.Equal(t, int32(7), result.Response.BodySize)
	assert.Equal(t, int32(120), result.Response.Duration)
	// "Content-Type: text/plain\r\n"
	assert.Equal(t, int32(len("Content-Type")+2+len("text/plain")+2), result.Response.HeaderSize)
}

func TestAssembleStatusTextFallback(t *testing.T) {
	result := response.Assemble(idwrap.NewNow(), mresult.RequestEcho{}, httpclient.Response{
		StatusCode: 200,
		Status:     "200",
	}, 0)
	require.NotNil(t, result.Response)
	assert.Equal(t, "OK", result.Response.StatusText)
}

func TestAssembleParsesCookies(t *testing.T) {
	resp := httpclient.Response{
		StatusCode: 200,
		Status:     "200 OK",
		Headers: []httpclient.Header{
			{HeaderKey: "Set-Cookie", Value: "session=abc123; Path=/; Domain=example.com"},
			{HeaderKey: "Set-Cookie", Value: "theme=dark"},
			{HeaderKey: "Set-Cookie", Value: ""},
		},
	}

	result := response.Assemble(idwrap.NewNow(), mresult.RequestEcho{}, resp, 0)

	require.NotNil(t, result.Response)
	require.Len(t, result.Response.Cookies, 2)
	assert.Equal(t, "session", result.Response.Cookies[0].Name)
	assert.Equal(t, "abc123", result.Response.Cookies[0].Value)
	assert.Equal(t, "/", result.Response.Cookies[0].Path)
	assert.Equal(t, "example.com", result.Response.Cookies[0].Domain)
	assert.Equal(t, "theme", result.Response.Cookies[1].Name)
}

func TestAssembleFailure(t *testing.T) {
	err := &net.DNSError{Err: "no such host", Name: "nope.invalid"}
	result := response.AssembleFailure(idwrap.NewNow(), mresult.RequestEcho{URL: "https://nope.invalid"}, err, nil, 0)

	assert.False(t, result.Success)
	assert.Nil(t, result.Response)
	assert.Equal(t, mresult.ErrorCodeDNS, result.ErrorCode)
	assert.Contains(t, result.ErrorMessage, "no such host")
}

func TestAssembleFailureCarriesPartialResponse(t *testing.T) {
	partial := &httpclient.Response{
		StatusCode: 200,
		Status:     "200 OK",
		Body:       []byte("trunca"),
	}
	result := response.AssembleFailure(idwrap.NewNow(), mresult.RequestEcho{}, errors.New("unexpected EOF"), partial, 40*time.Millisecond)

	assert.False(t, result.Success)
	require.NotNil(t, result.Response)
	assert.Equal(t, int32(200), result.Response.Status)
	assert.Equal(t, "trunca", string(result.Response.Body))
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want mresult.ErrorCode
	}{
		{"nil", nil, mresult.ErrorCodeNone},
		{"too large", httpclient.ErrResponseTooLarge, mresult.ErrorCodeTooLarge},
		{"canceled", context.Canceled, mresult.ErrorCodeCanceled},
		{"deadline", context.DeadlineExceeded, mresult.ErrorCodeTimeout},
		{"dns", &net.DNSError{Err: "no such host"}, mresult.ErrorCodeDNS},
		{"tls cert", &tls.CertificateVerificationError{Err: errors.New("bad cert")}, mresult.ErrorCodeTLS},
		{"conn refused", syscall.ECONNREFUSED, mresult.ErrorCodeConnection},
		{"conn reset", syscall.ECONNRESET, mresult.ErrorCodeConnection},
		{"op error", &net.OpError{Op: "dial", Err: errors.New("broken")}, mresult.ErrorCodeConnection},
		{"wrapped dns", &net.OpError{Op: "dial", Err: &net.DNSError{Err: "x"}}, mresult.ErrorCodeDNS},
		{"unknown", errors.New("weird"), mresult.ErrorCodeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, response.ClassifyError(tt.err))
		})
	}
}

func TestClassifyErrorNetTimeout(t *testing.T) {
	err := &net.OpError{Op: "read", Err: &timeoutErr{}}
	assert.Equal(t, mresult.ErrorCodeTimeout, response.ClassifyError(err))
}

type timeoutErr struct{}

func (*timeoutErr) Error() string   { return "i/o timeout" }
func (*timeoutErr) Timeout() bool   { return true }
func (*timeoutErr) Temporary() bool { return true }
