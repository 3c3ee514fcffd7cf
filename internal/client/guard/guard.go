// Package guard decides whether a protected view may render for the current auth slice.
// It is a convenience for the client only; the server's access rules are authoritative.
package guard

import (
	"fmt"

	"github.com/splax/teamroster/internal/client/state"
	"github.com/splax/teamroster/internal/domain"
)

// LoginRoute is where every denial redirects.
const LoginRoute = "login"

// Decision is the outcome of Check.
type Decision struct {
	Allowed  bool
	Redirect string
}

// Check allows when authenticated and requiredRole is empty or matches the profile role.
// Unauthenticated and wrong-role callers get the same redirect.
func Check(auth state.Auth, requiredRole domain.Role) Decision {
	if !auth.Authenticated {
		return Decision{Redirect: LoginRoute}
	}
	if requiredRole != "" && auth.Session.Profile.Role != requiredRole {
		return Decision{Redirect: LoginRoute}
	}
	return Decision{Allowed: true}
}

// RedirectError is returned by Protect instead of rendering the view.
type RedirectError struct {
	To string
}

func (e *RedirectError) Error() string {
	return fmt.Sprintf("not permitted; redirect to %s", e.To)
}

// Protect renders view when the store's auth slice passes Check.
func Protect(store *state.Store, requiredRole domain.Role, view func() error) error {
	decision := Check(store.Auth(), requiredRole)
	if !decision.Allowed {
		return &RedirectError{To: decision.Redirect}
	}
	return view()
}

// CanManage reports whether the signed-in user may edit, delete or change the members of
// a team written by author: its author or an admin. A team without a recorded author is
// open to any signed-in user, as the server allows.
func CanManage(auth state.Auth, author string) bool {
	if !auth.Authenticated {
		return false
	}
	profile := auth.Session.Profile
	return profile.Role == domain.RoleAdmin || author == "" || author == profile.ID
}
