package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                          "/",
		"/metrics":                  "/metrics",
		"/v1/roles/admin":           "/v1/roles/:name",
		"/v1/roles/admin/activate":  "/v1/roles/:name/activate",
		"/v1/principals/abc/role":   "/v1/principals/:id/role",
		"/v1/auth/login":            "/v1/auth/login",
		"/v1/auth/login?redirect=1": "/v1/auth/login",
		"/v1/revocations/stats":     "/v1/revocations/stats",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
