// Copyright (C) 2024 Storj Labs, Inc.
// See LICENSE for copying information.

// Package auth implements session tokens, user-minted API keys, the OIDC
// login flow and DPoP proof verification.
package auth

import (
	"context"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
)

var (
	// Error is the default error class for the auth package.
	Error = errs.Class("auth")
	// ErrUnauthorized is returned for missing or invalid credentials.
	ErrUnauthorized = errs.Class("unauthorized")

	mon = monkit.Package()
)

// Principal is the authenticated caller attached to a request context.
type Principal struct {
	UserID string
}

type principalKey struct{}

// WithPrincipal returns a context carrying the authenticated principal.
func WithPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, principal)
}

// GetPrincipal returns the principal attached to the context.
func GetPrincipal(ctx context.Context) (Principal, error) {
	principal, ok := ctx.Value(principalKey{}).(Principal)
	if !ok {
		return Principal{}, ErrUnauthorized.New("missing credentials")
	}
	return principal, nil
}
