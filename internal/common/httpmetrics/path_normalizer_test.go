package httpmetrics

import "testing"

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "/"},
		{"/", "/"},
		{"/api/auth/refresh", "/api/auth/refresh"},
		{"/api/auth/sessions/3f2c1a9e-5b7d-4c8e-9f01-23456789abcd", "/api/auth/sessions/{id}"},
		{"/api/auth/sessions/42", "/api/auth/sessions/{id}"},
		{"/api/auth/sessions/revoke-all", "/api/auth/sessions/revoke-all"},
		{"/internal/audit/stream", "/internal/audit/stream"},
		{"/wp-admin/setup.php", "other"},
		{"/items/42", "other"},
	}

	for _, tc := range tests {
		if got := NormalizePath(tc.in); got != tc.want {
			t.Errorf("NormalizePath(%q): expected %q, got %q", tc.in, tc.want, got)
		}
	}
}
