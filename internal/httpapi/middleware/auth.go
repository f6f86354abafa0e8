package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

type Role int

const (
	RoleNone Role = iota
	RolePublic
	RoleAdmin
)

type Keys struct {
	Public []string
	Admin  []string
}

// RoleOf maps a presented key to its role. Comparison is constant time per
// configured key.
func (k Keys) RoleOf(given string) Role {
	if given == "" {
		return RoleNone
	}
	if match(given, k.Admin) {
		return RoleAdmin
	}
	if match(given, k.Public) {
		return RolePublic
	}
	return RoleNone
}

func match(given string, set []string) bool {
	ok := 0
	for _, k := range set {
		ok |= subtle.ConstantTimeCompare([]byte(k), []byte(given))
	}
	return ok == 1
}

// keyFrom reads the bearer token, the X-API-Key header or, for browser
// WebSocket clients that cannot set headers, the api_key query parameter.
func keyFrom(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	if k := r.Header.Get("X-API-Key"); k != "" {
		return strings.TrimSpace(k)
	}
	return strings.TrimSpace(r.URL.Query().Get("api_key"))
}

func deny(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}

// RequireAny allows requests that present either a public or admin key.
// With no keys configured every request passes.
func RequireAny(keys Keys) func(http.Handler) http.Handler {
	enabled := len(keys.Public) > 0 || len(keys.Admin) > 0
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if keys.RoleOf(keyFrom(r)) == RoleNone {
				deny(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin only permits admin keys. A missing or unknown key is 401,
// a public key is 403. With no admin keys configured every request passes.
func RequireAdmin(keys Keys) func(http.Handler) http.Handler {
	enabled := len(keys.Admin) > 0
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch keys.RoleOf(keyFrom(r)) {
			case RoleAdmin:
				next.ServeHTTP(w, r)
			case RolePublic:
				deny(w, http.StatusForbidden, "forbidden")
			default:
				deny(w, http.StatusUnauthorized, "unauthorized")
			}
		})
	}
}
