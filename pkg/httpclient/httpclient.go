//nolint:revive // exported
package httpclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html/charset"

	"github.com/the-dev-tools/apirun/pkg/compress"
)

type HttpClient interface {
	Do(req *http.Request) (*http.Response, error)
}

const (
	DefaultTimeout      = 30 * time.Second
	DefaultMaxRedirects = 5

	// MaxResponseBodySize bounds memory per execution; larger bodies reject
	// with ErrResponseTooLarge.
	MaxResponseBodySize = 50 << 20
)

var ErrResponseTooLarge = fmt.Errorf("response body exceeds %d bytes", MaxResponseBodySize)

type Options struct {
	Timeout            time.Duration
	FollowRedirects    bool
	MaxRedirects       int
	InsecureSkipVerify bool
}

func DefaultOptions() Options {
	return Options{
		Timeout:         DefaultTimeout,
		FollowRedirects: true,
		MaxRedirects:    DefaultMaxRedirects,
	}
}

// Transports are shared across clients so connections get reused within the
// process. TLS verification is request-scoped: an insecure client uses its
// own pooled transport, the verified one is never touched.
var (
	transportOnce     sync.Once
	verifiedTransport *http.Transport
	insecureTransport *http.Transport
)

func sharedTransport(insecure bool) *http.Transport {
	transportOnce.Do(func() {
		verifiedTransport = http.DefaultTransport.(*http.Transport).Clone()
		insecureTransport = http.DefaultTransport.(*http.Transport).Clone()
		insecureTransport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402 -- explicit per-request opt-in
	})
	if insecure {
		return insecureTransport
	}
	return verifiedTransport
}

func New() HttpClient {
	return NewWithOptions(DefaultOptions())
}

func NewWithOptions(opts Options) HttpClient {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	maxRedirects := opts.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = DefaultMaxRedirects
	}

	client := &http.Client{
		Timeout:   opts.Timeout,
		Transport: sharedTransport(opts.InsecureSkipVerify),
	}
	if opts.FollowRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		}
	} else {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return client
}

type Query struct {
	QueryKey string
	Value    string
}

type Header struct {
	HeaderKey string
	Value     string
}

type Request struct {
	Method  string
	URL     string
	Queries []Query
	Headers []Header
	Body    []byte
}

type Response struct {
	StatusCode int      `json:"statusCode"`
	Status     string   `json:"status"`
	Body       []byte   `json:"body"`
	Headers    []Header `json:"headers"`
}

func SendRequestWithContext(ctx context.Context, client HttpClient, req *Request) (*http.Response, error) {
	reqRaw, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, err
	}

	qNew := ConvertQueriesToUrl(req.Queries, reqRaw.URL.Query())
	reqRaw.URL.RawQuery = qNew.Encode()
	reqRaw.Header = ConvertHeadersToHttp(req.Headers)
	return client.Do(reqRaw)
}

// SendRequestAndConvertWithContext sends the request and reads the full body
// under the size cap, decompressing per Content-Encoding and converting the
// declared charset to UTF-8. On a read failure after the status line arrived,
// the partial Response is returned alongside the error.
func SendRequestAndConvertWithContext(ctx context.Context, client HttpClient, req *Request) (Response, error) {
	resp, err := SendRequestWithContext(ctx, client, req)
	if err != nil {
		return Response{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	partial := Response{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Headers:    ConvertHttpHeaderToHeaders(resp.Header),
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBodySize+1))
	if err != nil {
		partial.Body = body
		return partial, err
	}
	if len(body) > MaxResponseBodySize {
		partial.Body = body[:MaxResponseBodySize]
		return partial, ErrResponseTooLarge
	}

	encoding := strings.ToLower(resp.Header.Get("Content-Encoding"))
	if encoding != "" {
		body, err = compress.DecompressWithContentEncodeStr(body, encoding)
		if err != nil {
			return partial, err
		}
	}

	// Convert body to UTF-8 if content-type specifies a charset
	contentType := resp.Header.Get("Content-Type")
	if contentType != "" {
		reader, err := charset.NewReader(bytes.NewReader(body), contentType)
		if err == nil {
			converted, err := io.ReadAll(reader)
			if err == nil {
				body = converted
			}
		}
	}

	partial.Body = body
	return partial, nil
}

func ConvertHttpHeaderToHeaders(headers http.Header) []Header {
	result := make([]Header, 0, len(headers))
	for key, values := range headers {
		for _, value := range values {
			result = append(result, Header{
				HeaderKey: key,
				Value:     value,
			})
		}
	}
	return result
}

func ConvertHeadersToHttp(headers []Header) http.Header {
	result := make(http.Header)
	for _, header := range headers {
		result.Add(header.HeaderKey, header.Value)
	}
	return result
}

func ConvertQueriesToUrl(queries []Query, url url.Values) url.Values {
	for _, query := range queries {
		url.Add(query.QueryKey, query.Value)
	}
	return url
}
