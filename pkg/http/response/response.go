//nolint:revive // exported
package response

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/the-dev-tools/apirun/pkg/httpclient"
	"github.com/the-dev-tools/apirun/pkg/idwrap"
	"github.com/the-dev-tools/apirun/pkg/model/mresult"
)

// Assemble builds the result for an obtained response. Any status code is a
// success at this layer; HTTP errors are data, not exceptions.
func Assemble(execID idwrap.IDWrap, echo mresult.RequestEcho, resp httpclient.Response, lapse time.Duration) mresult.ExecutionResult {
	return mresult.ExecutionResult{
		ID:        execID,
		Success:   true,
		Timestamp: time.Now(),
		Request:   echo,
		Response:  buildResponseInfo(resp, lapse),
	}
}

// AssembleFailure builds the result for a transport or validation failure.
// When the transport got a partial response before failing, its fields are
// carried on the failed result.
func AssembleFailure(execID idwrap.IDWrap, echo mresult.RequestEcho, err error, partial *httpclient.Response, lapse time.Duration) mresult.ExecutionResult {
	result := mresult.ExecutionResult{
		ID:           execID,
		Success:      false,
		Timestamp:    time.Now(),
		Request:      echo,
		ErrorMessage: err.Error(),
		ErrorCode:    ClassifyError(err),
	}
	if partial != nil && partial.StatusCode != 0 {
		result.Response = buildResponseInfo(*partial, lapse)
	}
	return result
}

func buildResponseInfo(resp httpclient.Response, lapse time.Duration) *mresult.ResponseInfo {
	headers := make([]mresult.Header, 0, len(resp.Headers))
	headerSize := 0
	for _, h := range resp.Headers {
		headers = append(headers, mresult.Header{HeaderKey: h.HeaderKey, Value: h.Value})
		// "key: value\r\n"
		headerSize += len(h.HeaderKey) + 2 + len(h.Value) + 2
	}

	// resp.Status looks like "200 OK"; keep the reason phrase only.
	statusText := resp.Status
	if i := strings.IndexByte(statusText, ' '); i != -1 {
		statusText = statusText[i+1:]
	}
	if statusText == "" {
		statusText = http.StatusText(resp.StatusCode)
	}

	return &mresult.ResponseInfo{
		Status:     int32(resp.StatusCode),
		StatusText: statusText,
		Headers:    headers,
		Body:       resp.Body,
		Cookies:    parseCookies(resp.Headers),
		BodySize:   int32(len(resp.Body)),
		HeaderSize: int32(headerSize),
		Duration:   int32(lapse.Milliseconds()),
	}
}

func parseCookies(headers []httpclient.Header) []mresult.Cookie {
	var cookies []mresult.Cookie
	for _, h := range headers {
		if !strings.EqualFold(h.HeaderKey, "Set-Cookie") {
			continue
		}
		parsed, err := http.ParseSetCookie(h.Value)
		if err != nil {
			continue
		}
		cookies = append(cookies, mresult.Cookie{
			Name:    parsed.Name,
			Value:   parsed.Value,
			Domain:  parsed.Domain,
			Path:    parsed.Path,
			Expires: parsed.Expires,
		})
	}
	return cookies
}

// ClassifyError maps transport failures onto the engine's error taxonomy.
func ClassifyError(err error) mresult.ErrorCode {
	switch {
	case err == nil:
		return mresult.ErrorCodeNone
	case errors.Is(err, httpclient.ErrResponseTooLarge):
		return mresult.ErrorCodeTooLarge
	case errors.Is(err, context.Canceled):
		return mresult.ErrorCodeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return mresult.ErrorCodeTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return mresult.ErrorCodeDNS
	}

	var certErr *tls.CertificateVerificationError
	var recordErr tls.RecordHeaderError
	var unknownAuthErr x509.UnknownAuthorityError
	var hostErr x509.HostnameError
	if errors.As(err, &certErr) || errors.As(err, &recordErr) ||
		errors.As(err, &unknownAuthErr) || errors.As(err, &hostErr) {
		return mresult.ErrorCodeTLS
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return mresult.ErrorCodeTimeout
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return mresult.ErrorCodeConnection
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return mresult.ErrorCodeConnection
	}

	return mresult.ErrorCodeUnknown
}
