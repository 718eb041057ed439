package httpmetrics

import (
	"strings"

	"github.com/google/uuid"
)

var routedPrefixes = []string{"/api/auth/", "/internal/", "/health", "/metrics"}

// NormalizePath turns a request path into a bounded metric label. Ids become
// {id} and anything outside the routed prefixes collapses to "other", so
// scanners cannot grow label cardinality.
func NormalizePath(path string) string {
	if path == "" || path == "/" {
		return "/"
	}
	if !isRouted(path) {
		return "other"
	}

	parts := strings.Split(path, "/")
	for i, part := range parts {
		if isIdentifier(part) {
			parts[i] = "{id}"
		}
	}
	return strings.Join(parts, "/")
}

func isRouted(path string) bool {
	for _, prefix := range routedPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	if _, err := uuid.Parse(s); err == nil {
		return true
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
