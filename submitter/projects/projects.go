// Copyright (C) 2024 Storj Labs, Inc.
// See LICENSE for copying information.

// Package projects maps authenticated principals to the projects they may
// act in. Two deployment flavors exist: a directory-backed mapping (CSC)
// and a self mapping (NBIS) where the user id is its own project.
package projects

import (
	"context"
	"slices"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
)

var (
	// Error is the default error class for the projects package.
	Error = errs.Class("projects")
	// ErrForbidden is returned when the principal is not in the project.
	ErrForbidden = errs.Class("forbidden")

	mon = monkit.Package()
)

// Provider resolves the project ids a user belongs to.
type Provider interface {
	// ProjectsFor returns the project ids for the user, possibly empty.
	ProjectsFor(ctx context.Context, userID string) ([]string, error)
}

// RequireMember returns ErrForbidden unless the user belongs to projectID.
func RequireMember(ctx context.Context, provider Provider, userID, projectID string) (err error) {
	defer mon.Task()(&ctx)(&err)

	ids, err := provider.ProjectsFor(ctx, userID)
	if err != nil {
		return Error.Wrap(err)
	}
	if !slices.Contains(ids, projectID) {
		return ErrForbidden.New("user %s is not a member of project %s", userID, projectID)
	}
	return nil
}

// SelfProvider maps every user to exactly one project: themselves.
type SelfProvider struct{}

// ProjectsFor implements Provider.
func (SelfProvider) ProjectsFor(ctx context.Context, userID string) ([]string, error) {
	return []string{userID}, nil
}
