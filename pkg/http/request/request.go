//nolint:revive // exported
package request

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/the-dev-tools/apirun/pkg/httpclient"
	"github.com/the-dev-tools/apirun/pkg/model/mrequest"
	"github.com/the-dev-tools/apirun/pkg/model/mresult"
)

const (
	HeaderContentType  = "Content-Type"
	MimeJSON           = "application/json"
	MimeXML            = "application/xml"
	MimeTextPlain      = "text/plain"
	MimeOctetStream    = "application/octet-stream"
	MimeFormUrlEncoded = "application/x-www-form-urlencoded"
)

var (
	ErrInvalidJSONBody = fmt.Errorf("body is not valid JSON")
	ErrInvalidBody     = fmt.Errorf("invalid body")
)

// Build turns a resolved definition into a transport-ready request. All
// validation happens here, before any network activity.
func Build(def mrequest.RequestDefinition) (*httpclient.Request, error) {
	method := strings.ToUpper(strings.TrimSpace(def.Method))
	if method == "" {
		method = http.MethodGet
	}

	rawURL := normalizeURL(def.URL)
	if _, err := url.Parse(rawURL); err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}

	queries := make([]httpclient.Query, 0, len(def.Queries))
	for _, q := range def.Queries {
		if !q.IsEnabled() || q.Key == "" {
			continue
		}
		queries = append(queries, httpclient.Query{QueryKey: q.Key, Value: q.Value})
	}

	// Later entries for the same key overwrite earlier ones.
	headers := make([]httpclient.Header, 0, len(def.Headers))
	for _, h := range def.Headers {
		if !h.IsEnabled() || h.Key == "" {
			continue
		}
		headers = setHeader(headers, h.Key, h.Value)
	}

	headers, queries, err := applyAuth(headers, queries, def.Auth)
	if err != nil {
		return nil, err
	}

	var body []byte
	if methodAllowsBody(method) {
		body, headers, err = buildBody(def.Body, headers)
		if err != nil {
			return nil, err
		}
	}

	return &httpclient.Request{
		Method:  method,
		URL:     rawURL,
		Queries: queries,
		Headers: headers,
		Body:    body,
	}, nil
}

func normalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}
	if !strings.Contains(raw, "://") {
		return "http://" + raw
	}
	return raw
}

// GET and HEAD requests never carry a body, whatever the declared kind.
func methodAllowsBody(method string) bool {
	return method != http.MethodGet && method != http.MethodHead
}

func buildBody(body mrequest.Body, headers []httpclient.Header) ([]byte, []httpclient.Header, error) {
	switch body.Kind {
	case mrequest.BodyKindNone:
		return nil, headers, nil

	case mrequest.BodyKindJSON:
		if body.Raw == "" {
			return nil, headers, nil
		}
		if !json.Valid([]byte(body.Raw)) {
			return nil, nil, fmt.Errorf("%w: %.80q", ErrInvalidJSONBody, body.Raw)
		}
		headers = defaultContentType(headers, MimeJSON)
		return []byte(body.Raw), headers, nil

	case mrequest.BodyKindRaw:
		headers = defaultContentType(headers, MimeTextPlain)
		return []byte(body.Raw), headers, nil

	case mrequest.BodyKindXML:
		headers = defaultContentType(headers, MimeXML)
		return []byte(body.Raw), headers, nil

	case mrequest.BodyKindUrlEncoded:
		fields, err := urlEncodedFields(body)
		if err != nil {
			return nil, nil, err
		}
		urlVal := url.Values{}
		for _, f := range fields {
			if !f.IsEnabled() {
				continue
			}
			urlVal.Add(f.Key, f.Value)
		}
		headers = defaultContentType(headers, MimeFormUrlEncoded)
		return []byte(urlVal.Encode()), headers, nil

	case mrequest.BodyKindFormData:
		return buildMultipart(body.Form, headers)

	case mrequest.BodyKindBinary:
		if body.FilePath == "" {
			return nil, headers, nil
		}
		data, err := os.ReadFile(filepath.Clean(body.FilePath))
		if err != nil {
			return nil, nil, fmt.Errorf("%w: read %s: %w", ErrInvalidBody, body.FilePath, err)
		}
		headers = defaultContentType(headers, MimeOctetStream)
		return data, headers, nil

	case mrequest.BodyKindGraphQL:
		if body.GraphQL == nil {
			return nil, headers, nil
		}
		payload := map[string]any{"query": body.GraphQL.Query}
		if body.GraphQL.OperationName != "" {
			payload["operationName"] = body.GraphQL.OperationName
		}
		if body.GraphQL.Variables != "" {
			var vars map[string]any
			if err := json.Unmarshal([]byte(body.GraphQL.Variables), &vars); err != nil {
				return nil, nil, fmt.Errorf("%w: graphql variables: %w", ErrInvalidBody, err)
			}
			payload["variables"] = vars
		}
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, nil, err
		}
		headers = defaultContentType(headers, MimeJSON)
		return data, headers, nil

	default:
		return nil, nil, fmt.Errorf("%w: body kind %d", ErrInvalidBody, body.Kind)
	}
}

// urlEncodedFields accepts the structured pair list or, failing that, a
// JSON-encoded array of pairs in the raw text slot.
func urlEncodedFields(body mrequest.Body) ([]mrequest.FormField, error) {
	if len(body.UrlEncoded) > 0 {
		return body.UrlEncoded, nil
	}
	if body.Raw == "" {
		return nil, nil
	}
	var fields []mrequest.FormField
	if err := json.Unmarshal([]byte(body.Raw), &fields); err != nil {
		return nil, fmt.Errorf("%w: url-encoded body: %w", ErrInvalidBody, err)
	}
	return fields, nil
}

func buildMultipart(fields []mrequest.FormField, headers []httpclient.Header) ([]byte, []httpclient.Header, error) {
	bodyBytes := &bytes.Buffer{}
	writer := multipart.NewWriter(bodyBytes)

	for _, f := range fields {
		if !f.IsEnabled() {
			continue
		}
		if !f.IsFile {
			if err := writer.WriteField(f.Key, f.Value); err != nil {
				return nil, nil, err
			}
			continue
		}

		data, err := os.ReadFile(filepath.Clean(f.Value))
		if err != nil {
			return nil, nil, fmt.Errorf("%w: read file %s: %w", ErrInvalidBody, f.Value, err)
		}
		fileName := filepath.Base(f.Value)

		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
				escapeQuotes(f.Key), escapeQuotes(fileName)))
		mimeType := mime.TypeByExtension(filepath.Ext(fileName))
		if mimeType == "" {
			mimeType = MimeOctetStream
		}
		h.Set(HeaderContentType, mimeType)

		part, err := writer.CreatePart(h)
		if err != nil {
			return nil, nil, err
		}
		if _, err := part.Write(data); err != nil {
			return nil, nil, err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, nil, err
	}

	// The boundary is owned by the writer, so the header is always set here.
	headers = setHeader(headers, HeaderContentType, writer.FormDataContentType())
	return bodyBytes.Bytes(), headers, nil
}

func defaultContentType(headers []httpclient.Header, mimeType string) []httpclient.Header {
	if hasHeader(headers, HeaderContentType) {
		return headers
	}
	return append(headers, httpclient.Header{HeaderKey: HeaderContentType, Value: mimeType})
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

type RequestResponse struct {
	HttpResp httpclient.Response
	LapTime  time.Duration
}

// SendRequestWithContext dispatches the built request and measures wall-clock
// latency for the full send-to-body-read cycle. When the transport produced a
// status line before failing, the partial response rides along with the error.
func SendRequestWithContext(ctx context.Context, req *httpclient.Request, client httpclient.HttpClient) (*RequestResponse, error) {
	start := time.Now()
	resp, err := httpclient.SendRequestAndConvertWithContext(ctx, client, req)
	lapse := time.Since(start)
	if err != nil {
		if resp.StatusCode != 0 {
			return &RequestResponse{HttpResp: resp, LapTime: lapse}, err
		}
		return nil, err
	}
	return &RequestResponse{HttpResp: resp, LapTime: lapse}, nil
}

// ConvertRequestToEcho snapshots the dispatched request for the result model.
func ConvertRequestToEcho(r *httpclient.Request) mresult.RequestEcho {
	headers := make([]mresult.Header, 0, len(r.Headers))
	for _, h := range r.Headers {
		headers = append(headers, mresult.Header{HeaderKey: h.HeaderKey, Value: h.Value})
	}
	return mresult.RequestEcho{
		Method:  r.Method,
		URL:     r.URL,
		Headers: headers,
		Body:    string(r.Body),
	}
}
