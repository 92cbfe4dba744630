package shared

import "context"

// Role distinguishes the administrator from directory clients.
type Role string

const (
	// RoleAdmin is the single workshop administrator.
	RoleAdmin Role = "admin"
	// RoleClient is a customer sourced from the directory.
	RoleClient Role = "client"
)

// IsValid reports whether the role is known.
func (r Role) IsValid() bool {
	return r == RoleAdmin || r == RoleClient
}

// Session value keys holding the principal beside the user id.
const (
	SessionRoleKey = "role"
	SessionNameKey = "name"
)

// Principal describes the authenticated actor.
type Principal struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  Role   `json:"role"`
}

// IsAdmin reports whether the principal holds the admin role.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// Owns reports whether the principal is the client the resource belongs to.
func (p Principal) Owns(clientEmail string) bool {
	return p.Role == RoleClient && p.Email != "" && SameEmail(p.Email, clientEmail)
}

// BindPrincipal stores the principal on the session.
func (s *Session) BindPrincipal(p Principal) {
	s.SetUser(p.Email)
	s.Set(SessionRoleKey, string(p.Role))
	s.Set(SessionNameKey, p.Name)
}

// Principal rebuilds the principal stored on the session.
func (s *Session) Principal() (Principal, bool) {
	if s == nil || s.User() == "" {
		return Principal{}, false
	}
	role := Role(s.Get(SessionRoleKey))
	if !role.IsValid() {
		return Principal{}, false
	}
	return Principal{Email: s.User(), Name: s.Get(SessionNameKey), Role: role}, true
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}
