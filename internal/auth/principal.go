// Package auth reads the caller identity the upstream gateway injects and
// checks it against the role permission map. Token verification happens
// at the gateway.
package auth

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointments/internal/appointment"
)

const (
	HeaderUserID    = "X-User-ID"
	HeaderUserRole  = "X-User-Role"
	HeaderUserEmail = "X-User-Email"
)

type Role = appointment.Role

type Principal struct {
	UserID uuid.UUID
	Role   Role
	Email  string
}

// Scope is the read scope the principal is entitled to.
func (p *Principal) Scope() appointment.Scope {
	return appointment.Scope{Role: p.Role, UserID: p.UserID}
}

func (p *Principal) Is(role Role) bool {
	return p.Role == role
}

type ctxKey string

const principalKey ctxKey = "auth_principal"

// WithPrincipal stores pr in ctx.
func WithPrincipal(ctx context.Context, pr *Principal) context.Context {
	return context.WithValue(ctx, principalKey, pr)
}

// FromContext extracts Principal from context.
func FromContext(ctx context.Context) (*Principal, bool) {
	pr, ok := ctx.Value(principalKey).(*Principal)
	return pr, ok
}

func parseRole(v string) (Role, bool) {
	switch r := Role(strings.ToUpper(strings.TrimSpace(v))); r {
	case appointment.RolePatient, appointment.RoleDoctor, appointment.RoleAdmin, appointment.RoleService:
		return r, true
	}
	return "", false
}
