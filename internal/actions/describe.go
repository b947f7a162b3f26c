package actions

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/rendis/blockrun/pkg/schema"
)

// errorMessagePaths are the body fields upstream APIs use for a
// human-readable message, in lookup order.
var errorMessagePaths = []string{"message", "mensagem", "error.message", "error", "erro", "errors.0.message", "errors.0"}

// DescribeError converts a failed external call into one error log entry.
// The description starts with context; for HTTP errors the upstream message
// is extracted from the body and the raw body is kept as details.
func DescribeError(err error, context string) schema.LogEntry {
	entry := schema.LogEntry{Status: schema.LogError}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		msg := upstreamMessage(httpErr.Body)
		if msg == "" {
			msg = httpErr.Status
		}
		entry.Description = fmt.Sprintf("%s: %s", context, msg)
		entry.Details = strings.TrimSpace(string(httpErr.Body))
		return entry
	}

	if err == nil {
		entry.Description = context
		return entry
	}
	entry.Description = fmt.Sprintf("%s: %s", context, err.Error())
	return entry
}

func upstreamMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	if !gjson.ValidBytes(body) {
		return strings.TrimSpace(string(body))
	}
	root := gjson.ParseBytes(body)
	if root.Type == gjson.String {
		return root.String()
	}
	for _, p := range errorMessagePaths {
		if r := root.Get(p); r.Type == gjson.String && r.String() != "" {
			return r.String()
		}
	}
	return ""
}
