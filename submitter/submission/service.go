// Copyright (C) 2024 Storj Labs, Inc.
// See LICENSE for copying information.

package submission

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"submitter.io/submitter/submitter/auth"
	"submitter.io/submitter/submitter/projects"
	"submitter.io/submitter/submitter/schema"
	"submitter.io/submitter/submitter/workflow"
)

// Archive starts the archive-side ingest pipeline for a submission.
type Archive interface {
	Ingest(ctx context.Context, sub *Submission, files []File) error
}

// Config holds submission service configuration.
type Config struct {
	// BPCenterID prefixes deterministic BigPicture accession ids.
	BPCenterID string
	// AllowUnsafe permits deleting submissions with a minted DOI; test only.
	AllowUnsafe bool
}

// Service owns the submission lifecycle and its contained objects and files.
//
// architecture: Service
type Service struct {
	log      *zap.Logger
	config   Config
	store    Store
	catalog  *schema.Catalog
	projects projects.Provider
	archive  Archive
}

// NewService creates the submission service.
func NewService(log *zap.Logger, config Config, store Store, catalog *schema.Catalog, provider projects.Provider, archive Archive) *Service {
	return &Service{
		log:      log,
		config:   config,
		store:    store,
		catalog:  catalog,
		projects: provider,
		archive:  archive,
	}
}

// Store exposes the underlying store for collaborating components.
func (service *Service) Store() Store { return service.store }

// requireProject checks that the request principal belongs to the project.
func (service *Service) requireProject(ctx context.Context, projectID string) error {
	principal, err := auth.GetPrincipal(ctx)
	if err != nil {
		return err
	}
	return projects.RequireMember(ctx, service.projects, principal.UserID, projectID)
}

// CreateParams are the user-settable fields of a new submission.
type CreateParams struct {
	Name        string `json:"name"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Create makes a new draft submission in the given project and workflow.
func (service *Service) Create(ctx context.Context, wf workflow.Name, projectID string, params CreateParams) (_ *Submission, err error) {
	defer mon.Task()(&ctx)(&err)

	if !workflow.Valid(wf) {
		return nil, ErrValidation.New("unknown workflow %q", wf)
	}
	if strings.TrimSpace(params.Name) == "" {
		return nil, ErrValidation.New("submission name must not be empty")
	}
	if err := service.requireProject(ctx, projectID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	sub := &Submission{
		ID:          uuid.NewString(),
		ProjectID:   projectID,
		Workflow:    wf,
		Name:        params.Name,
		Title:       params.Title,
		Description: params.Description,
		Created:     now,
		Modified:    now,
	}
	if err := service.store.Submissions().Create(ctx, sub); err != nil {
		return nil, err
	}
	service.log.Info("submission created",
		zap.String("id", sub.ID),
		zap.String("project", projectID),
		zap.String("workflow", string(wf)))
	return sub, nil
}

// Get returns a submission together with its derived state.
func (service *Service) Get(ctx context.Context, id string) (_ *Submission, _ State, err error) {
	defer mon.Task()(&ctx)(&err)

	sub, err := service.store.Submissions().Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if err := service.requireProject(ctx, sub.ProjectID); err != nil {
		return nil, "", err
	}
	files, err := service.store.Files().ListBySubmission(ctx, id)
	if err != nil {
		return nil, "", err
	}
	return sub, sub.State(files), nil
}

// List returns the project's submissions.
func (service *Service) List(ctx context.Context, projectID string) (_ []Submission, err error) {
	defer mon.Task()(&ctx)(&err)

	if err := service.requireProject(ctx, projectID); err != nil {
		return nil, err
	}
	return service.store.Submissions().ListByProject(ctx, projectID)
}

// UpdatePatch is a deep-merge update of a submission. Nil pointers leave
// the field untouched; Metadata merges key-wise with unset-by-null.
type UpdatePatch struct {
	Name        *string         `json:"name"`
	Title       *string         `json:"title"`
	Description *string         `json:"description"`
	Bucket      *string         `json:"bucket"`
	Metadata    json.RawMessage `json:"metadata"`
	Rems        *Rems           `json:"rems"`
}

// Update applies a deep-merge patch to a draft submission.
func (service *Service) Update(ctx context.Context, id string, patch UpdatePatch) (err error) {
	defer mon.Task()(&ctx)(&err)

	return WithTx(ctx, service.store, func(tx Tx) error {
		if err := tx.Submissions().Lock(ctx, id); err != nil {
			return err
		}
		sub, err := tx.Submissions().Get(ctx, id)
		if err != nil {
			return err
		}
		if err := service.requireProject(ctx, sub.ProjectID); err != nil {
			return err
		}
		if sub.Frozen() {
			return ErrFrozen.New("submission %s", id)
		}

		if patch.Name != nil {
			if strings.TrimSpace(*patch.Name) == "" {
				return ErrValidation.New("submission name must not be empty")
			}
			sub.Name = *patch.Name
		}
		if patch.Title != nil {
			sub.Title = *patch.Title
		}
		if patch.Description != nil {
			sub.Description = *patch.Description
		}
		if patch.Bucket != nil {
			if *patch.Bucket == "" {
				sub.Bucket = nil
			} else {
				sub.Bucket = patch.Bucket
			}
		}
		if patch.Rems != nil {
			sub.Rems = *patch.Rems
		}
		if len(patch.Metadata) > 0 {
			if err := sub.Metadata.Patch(patch.Metadata); err != nil {
				return err
			}
		}

		sub.Modified = time.Now().UTC()
		return tx.Submissions().Update(ctx, sub)
	})
}

// Delete removes a submission and everything it owns. A submission with a
// minted DOI is refused unless the unsafe override is configured.
func (service *Service) Delete(ctx context.Context, id string) (err error) {
	defer mon.Task()(&ctx)(&err)

	return WithTx(ctx, service.store, func(tx Tx) error {
		if err := tx.Submissions().Lock(ctx, id); err != nil {
			return err
		}
		sub, err := tx.Submissions().Get(ctx, id)
		if err != nil {
			return err
		}
		if err := service.requireProject(ctx, sub.ProjectID); err != nil {
			return err
		}
		if sub.Frozen() {
			return ErrFrozen.New("submission %s", id)
		}

		_, err = tx.Registrations().Get(ctx, id, nil, workflow.ServiceDOI)
		switch {
		case err == nil:
			if !service.config.AllowUnsafe {
				return ErrFrozen.New("submission %s has a minted DOI", id)
			}
		case !ErrNotFound.Has(err):
			return err
		}

		return tx.Submissions().Delete(ctx, id)
	})
}

// StartIngest hands the submission's files to the archive pipeline and marks
// the submission ingesting. The caller must hold the admin credential; the
// web layer enforces that.
func (service *Service) StartIngest(ctx context.Context, id string) (err error) {
	defer mon.Task()(&ctx)(&err)

	var sub *Submission
	var files []File
	err = WithTx(ctx, service.store, func(tx Tx) error {
		if err := tx.Submissions().Lock(ctx, id); err != nil {
			return err
		}
		sub, err = tx.Submissions().Get(ctx, id)
		if err != nil {
			return err
		}
		if sub.Frozen() {
			return ErrFrozen.New("submission %s", id)
		}
		if sub.IngestStarted != nil {
			// Re-triggering ingest is allowed and idempotent.
			return nil
		}
		files, err = tx.Files().ListBySubmission(ctx, id)
		if err != nil {
			return err
		}
		wf, err := workflow.Get(sub.Workflow)
		if err != nil {
			return err
		}
		if wf.TracksFiles && len(files) == 0 {
			return ErrValidation.New("submission %s has no files to ingest", id)
		}
		now := time.Now().UTC()
		sub.IngestStarted = &now
		sub.Modified = now
		return tx.Submissions().Update(ctx, sub)
	})
	if err != nil || files == nil {
		return err
	}

	if err := service.archive.Ingest(ctx, sub, files); err != nil {
		return Error.Wrap(err)
	}
	return nil
}

// Registrations lists the external ids minted for a submission.
func (service *Service) Registrations(ctx context.Context, id string) (_ []Registration, err error) {
	defer mon.Task()(&ctx)(&err)

	sub, err := service.store.Submissions().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := service.requireProject(ctx, sub.ProjectID); err != nil {
		return nil, err
	}
	return service.store.Registrations().ListBySubmission(ctx, id)
}
