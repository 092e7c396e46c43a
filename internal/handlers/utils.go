// internal/handlers/utils.go
package handlers

import (
	"net/http"
	"strings"
)

// extractCookieToken extracts a named cookie value from "Cookie" header, or returns empty if not found.
func extractCookieToken(cookieHeader, cookieName string) string {
	parts := strings.Split(cookieHeader, cookieName+"=")
	if len(parts) < 2 {
		return ""
	}
	token := parts[1]
	if idx := strings.Index(token, ";"); idx != -1 {
		token = token[:idx]
	}
	return strings.TrimSpace(token)
}

// extractToken finds the auth token of a request. The auth_token cookie wins
// over the token query parameter, which wins over an Authorization bearer.
func extractToken(r *http.Request) string {
	if t := extractCookieToken(r.Header.Get("Cookie"), "auth_token"); t != "" {
		return t
	}
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}
