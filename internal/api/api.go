// Package api defines the HTTP wire contract shared by the server and the
// remote client.
package api

import (
	"net/url"
	"strings"

	"github.com/jgarciait/osl-app-ct-sub002/internal/record"
)

// Routes.
const (
	PathTables      = "/api/tables/"
	PathSubscribe   = "/api/subscribe"
	PathSession     = "/api/session"
	PathPermissions = "/api/permissions"
	PathSchemas     = "/api/schemas"
	PathMetrics     = "/metrics"
	PathHealth      = "/healthz"
)

// Response statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Error codes.
const (
	CodeUnauthorized   = "unauthorized"
	CodeForbidden      = "forbidden"
	CodeNotFound       = "not_found"
	CodeReadOnly       = "read_only"
	CodeInvalidRequest = "invalid_request"
	CodeFetchFailed    = "fetch_failed"
	CodeMutationFailed = "mutation_failed"
	CodeInternal       = "internal"
)

// Response is the JSON envelope of every API reply.
type Response[T any] struct {
	Status string `json:"status"`
	Data   T      `json:"data,omitempty"`
	Error  *Error `json:"error,omitempty"`
}

// Error is the error body of a failed reply. Message is localized.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Login   string `json:"login,omitempty"`
	Details any    `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

// List is the payload of a table read.
type List struct {
	Table   string          `json:"table"`
	Records []record.Record `json:"records"`
}

// Mutation is the payload of a write.
type Mutation struct {
	Table  string         `json:"table"`
	Record *record.Record `json:"record,omitempty"`
	ID     int64          `json:"id,omitempty"`
}

// EncodeOrder renders sort keys as "field,-field".
func EncodeOrder(order []record.SortKey) string {
	parts := make([]string, len(order))
	for i, k := range order {
		if k.Desc {
			parts[i] = "-" + k.Field
		} else {
			parts[i] = k.Field
		}
	}
	return strings.Join(parts, ",")
}

// DecodeOrder parses EncodeOrder output. Empty means nil.
func DecodeOrder(s string) []record.SortKey {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []record.SortKey
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		field, desc := strings.CutPrefix(part, "-")
		out = append(out, record.SortKey{Field: field, Desc: desc})
	}
	return out
}

// SubscribeQuery builds the query string of a subscription request.
func SubscribeQuery(table string, mask record.EventMask) url.Values {
	q := url.Values{}
	q.Set("table", table)
	if mask != 0 && mask != record.MaskAll {
		q.Set("events", mask.String())
	}
	return q
}
