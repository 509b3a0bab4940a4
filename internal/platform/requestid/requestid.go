// Package requestid issues and propagates the ids that tie health-check
// requests to their log lines.
package requestid

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const Header = "X-Request-Id"

// maxLen bounds ids accepted from callers so they stay loggable.
const maxLen = 128

type ctxKey struct{}

// New returns a fresh id prefixed with service.
func New(service string) (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	if service == "" {
		return id.String(), nil
	}
	return service + "-" + id.String(), nil
}

// FromHeader returns the caller-supplied id when it is usable.
func FromHeader(h http.Header) (string, bool) {
	id := strings.TrimSpace(h.Get(Header))
	if id == "" || len(id) > maxLen {
		return "", false
	}
	for _, r := range id {
		if r < 0x21 || r > 0x7e {
			return "", false
		}
	}
	return id, true
}

func WithContext(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func FromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}
