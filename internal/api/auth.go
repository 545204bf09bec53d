package api

import (
	"crypto/subtle"
	"fmt"
	"net/http"

	"github.com/AaronLay10/JackalCourse/internal/config"
)

// Role represents an authorization role.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
)

// Auth checks HTTP basic credentials. A nil or disabled Auth grants admin
// to every request.
type Auth struct {
	admin    config.Credentials
	operator config.Credentials
}

// NewAuth builds an Auth from explicit credentials.
func NewAuth(admin, operator config.Credentials) *Auth {
	return &Auth{admin: admin, operator: operator}
}

// LoadAuth resolves credentials from COURSE_ADMIN_USER/PASS and
// COURSE_OPERATOR_USER/PASS, honoring the *_FILE convention.
func LoadAuth() (*Auth, error) {
	admin, err := config.ResolveCredentials("COURSE_ADMIN_USER", "COURSE_ADMIN_PASS")
	if err != nil {
		return nil, fmt.Errorf("resolve admin credentials: %w", err)
	}
	operator, err := config.ResolveCredentials("COURSE_OPERATOR_USER", "COURSE_OPERATOR_PASS")
	if err != nil {
		return nil, fmt.Errorf("resolve operator credentials: %w", err)
	}
	return NewAuth(admin, operator), nil
}

// Enabled reports whether admin credentials are configured. Without them
// authentication is off.
func (a *Auth) Enabled() bool {
	return a != nil && a.admin.Set()
}

// roleOf returns the caller's role, or "" for bad credentials.
func (a *Auth) roleOf(r *http.Request) Role {
	if !a.Enabled() {
		return RoleAdmin
	}

	user, pass, ok := r.BasicAuth()
	if !ok {
		return ""
	}
	if matches(a.admin, user, pass) {
		return RoleAdmin
	}
	if a.operator.Set() && matches(a.operator, user, pass) {
		return RoleOperator
	}
	return ""
}

func matches(c config.Credentials, user, pass string) bool {
	// Evaluate both comparisons so timing does not reveal which part failed.
	u := secureCompare(user, c.User)
	p := secureCompare(pass, c.Password)
	return u && p
}

// secureCompare performs constant-time string comparison.
func secureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func requireAuth(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="JackalCourse"`)
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}

// RequireRole wraps a handler and requires one of the specified roles.
func (a *Auth) RequireRole(handler http.HandlerFunc, allowedRoles ...Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role := a.roleOf(r)
		if role == "" {
			requireAuth(w)
			return
		}
		for _, allowed := range allowedRoles {
			if role == allowed {
				handler(w, r)
				return
			}
		}
		http.Error(w, "Forbidden", http.StatusForbidden)
	}
}

// RequireAnyRole wraps a handler requiring admin or operator role.
func (a *Auth) RequireAnyRole(handler http.HandlerFunc) http.HandlerFunc {
	return a.RequireRole(handler, RoleAdmin, RoleOperator)
}

// RequireAdmin wraps a handler requiring admin role only.
func (a *Auth) RequireAdmin(handler http.HandlerFunc) http.HandlerFunc {
	return a.RequireRole(handler, RoleAdmin)
}
