package execution

import (
	"context"
	"encoding/base64"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/the-dev-tools/apirun/pkg/httpclient"
	"github.com/the-dev-tools/apirun/pkg/idwrap"
)

const logBodyLimit = 2048

func sanitizeHeadersForLog(headers []httpclient.Header) []map[string]string {
	if len(headers) == 0 {
		return nil
	}
	result := make([]map[string]string, 0, len(headers))
	for _, header := range headers {
		value := header.Value
		if strings.EqualFold(header.HeaderKey, "Authorization") {
			value = "[REDACTED]"
		}
		result = append(result, map[string]string{
			"key":   header.HeaderKey,
			"value": value,
		})
	}
	return result
}

func formatQueriesForLog(queries []httpclient.Query) []map[string]string {
	if len(queries) == 0 {
		return nil
	}
	result := make([]map[string]string, 0, len(queries))
	for _, query := range queries {
		result = append(result, map[string]string{
			"key":   query.QueryKey,
			"value": query.Value,
		})
	}
	return result
}

func formatBodyForLog(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	if !utf8.Valid(body) {
		encoded := base64.StdEncoding.EncodeToString(body)
		if len(encoded) > logBodyLimit {
			return "[base64]" + encoded[:logBodyLimit] + "...(truncated)"
		}
		return "[base64]" + encoded
	}
	text := string(body)
	if len(text) > logBodyLimit {
		return text[:logBodyLimit] + "...(truncated)"
	}
	return text
}

func logRequestDispatch(ctx context.Context, logger *slog.Logger, execID idwrap.IDWrap, name string, prepared *httpclient.Request) {
	if prepared == nil {
		return
	}
	logger.InfoContext(ctx, "Dispatching HTTP request",
		"execution_id", execID.String(),
		"request_name", name,
		"method", prepared.Method,
		"url", prepared.URL,
		"queries", formatQueriesForLog(prepared.Queries),
		"headers", sanitizeHeadersForLog(prepared.Headers),
		"body", formatBodyForLog(prepared.Body),
	)
}
