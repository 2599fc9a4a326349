package auth

import (
	"context"

	"github.com/ariefcatur/go-storefront-orders/internal/apperr"
)

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleUser     Role = "user"
	RoleCustomer Role = "customer"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser || r == RoleCustomer
}

// Context identifies the caller of a core operation. The zero value is anonymous.
type Context struct {
	PrincipalID string
	Role        Role
}

func (c Context) Authenticated() bool { return c.PrincipalID != "" }

func (c Context) IsAdmin() bool { return c.Authenticated() && c.Role == RoleAdmin }

func (c Context) RequireAuthenticated() error {
	if !c.Authenticated() {
		return apperr.NewUnauthorized("authentication required")
	}
	return nil
}

func (c Context) RequireAdmin() error {
	if err := c.RequireAuthenticated(); err != nil {
		return err
	}
	if c.Role != RoleAdmin {
		return apperr.NewForbidden("admin role required")
	}
	return nil
}

type ctxKey struct{}

func WithContext(ctx context.Context, ac Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, ac)
}

func FromContext(ctx context.Context) Context {
	ac, _ := ctx.Value(ctxKey{}).(Context)
	return ac
}
