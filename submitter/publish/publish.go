// Copyright (C) 2024 Storj Labs, Inc.
// See LICENSE for copying information.

// Package publish orchestrates the per-workflow pipeline that registers a
// submission with every configured downstream registry. Each step records a
// registration row in the same transaction that moves the step forward;
// existing rows make re-invocations skip the step, so the pipeline is
// idempotent and safely re-runnable after partial failure.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"submitter.io/submitter/submitter/auth"
	"submitter.io/submitter/submitter/clients"
	"submitter.io/submitter/submitter/projects"
	"submitter.io/submitter/submitter/submission"
	"submitter.io/submitter/submitter/workflow"
)

var (
	// Error is the default error class for the publish package.
	Error = errs.Class("publish")

	mon = monkit.Package()
)

// DOI mints and promotes persistent identifiers.
type DOI interface {
	Draft(ctx context.Context, payload clients.DOIPayload) (doi string, err error)
	Publish(ctx context.Context, doi string) error
	Delete(ctx context.Context, doi string) error
}

// Catalog indexes published datasets.
type Catalog interface {
	UpsertDataset(ctx context.Context, dataset clients.MetaxDataset) (pid string, err error)
}

// Access registers datasets with the access-management service.
type Access interface {
	CreateResource(ctx context.Context, resID, organizationID string, licenses []int) (int, error)
	CreateCatalogueItem(ctx context.Context, workflowID, resourceID int, organizationID string, localizations map[string]clients.Localization) (int, error)
	ReleaseCatalogueItem(ctx context.Context, itemID int) error
}

// Archive releases finished datasets on the archive side.
type Archive interface {
	ReleaseDataset(ctx context.Context, sub *submission.Submission) error
}

// Config holds publish pipeline configuration.
type Config struct {
	// DiscoveryBaseURL is where published datasets land, used as DOI target.
	DiscoveryBaseURL string
	// Publisher is stamped into DOI metadata.
	Publisher string
	// CatalogID is the Metax data catalog datasets are indexed into.
	CatalogID string
}

// StepStatus is the outcome of one pipeline step.
type StepStatus string

// Step outcomes.
const (
	StepOK      StepStatus = "ok"
	StepSkipped StepStatus = "skipped"
	StepError   StepStatus = "error"
)

// StepResult reports one step of a publish invocation.
type StepResult struct {
	Name   string     `json:"name"`
	Status StepStatus `json:"status"`
}

// Orchestrator runs the publish and announce pipelines.
//
// architecture: Service
type Orchestrator struct {
	log      *zap.Logger
	config   Config
	store    submission.Store
	projects projects.Provider

	doi     DOI
	catalog Catalog
	access  Access
	archive Archive
}

// NewOrchestrator creates the publish orchestrator.
func NewOrchestrator(log *zap.Logger, config Config, store submission.Store, provider projects.Provider, doi DOI, catalog Catalog, access Access, archive Archive) *Orchestrator {
	return &Orchestrator{
		log:      log,
		config:   config,
		store:    store,
		projects: provider,
		doi:      doi,
		catalog:  catalog,
		access:   access,
		archive:  archive,
	}
}

// Publish runs the workflow's publish steps in order. It returns the step
// report even when a step fails so callers can surface partial progress.
func (o *Orchestrator) Publish(ctx context.Context, submissionID string) (report []StepResult, err error) {
	defer mon.Task()(&ctx)(&err)

	sub, err := o.store.Submissions().Get(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if err := o.requireProject(ctx, sub.ProjectID); err != nil {
		return nil, err
	}
	wf, err := workflow.Get(sub.Workflow)
	if err != nil {
		return nil, err
	}
	if !sub.Frozen() {
		if err := submission.CheckReadyWith(ctx, o.store, sub); err != nil {
			return nil, err
		}
	}

	for _, service := range wf.PublishSteps {
		result, stepErr := o.runStep(ctx, sub, service)
		report = append(report, result)
		if stepErr != nil {
			return report, stepErr
		}
	}

	if !sub.Frozen() {
		err = submission.WithTx(ctx, o.store, func(tx submission.Tx) error {
			if err := tx.Submissions().Lock(ctx, sub.ID); err != nil {
				return err
			}
			current, err := tx.Submissions().Get(ctx, sub.ID)
			if err != nil {
				return err
			}
			if current.PublishedAt != nil {
				return nil
			}
			now := time.Now().UTC()
			current.PublishedAt = &now
			current.Modified = now
			return tx.Submissions().Update(ctx, current)
		})
		if err != nil {
			return report, err
		}
		o.log.Info("submission published", zap.String("id", sub.ID))
	}
	return report, nil
}

// runStep executes one pipeline step inside its own transaction: the
// registration row commits together with the step, and stays committed even
// when a later step fails.
func (o *Orchestrator) runStep(ctx context.Context, sub *submission.Submission, service workflow.Service) (result StepResult, err error) {
	defer mon.Task()(&ctx)(&err)

	result = StepResult{Name: string(service)}

	err = submission.WithTx(ctx, o.store, func(tx submission.Tx) error {
		if err := tx.Submissions().Lock(ctx, sub.ID); err != nil {
			return err
		}
		_, err := tx.Registrations().Get(ctx, sub.ID, nil, service)
		switch {
		case err == nil:
			result.Status = StepSkipped
			return nil
		case !submission.ErrNotFound.Has(err):
			return err
		}

		externalID, meta, err := o.execute(ctx, tx, sub, service)
		if err != nil {
			return err
		}

		if err := tx.Registrations().Create(ctx, &submission.Registration{
			ID:           uuid.NewString(),
			SubmissionID: sub.ID,
			Service:      service,
			ExternalID:   externalID,
			Meta:         meta,
			Created:      time.Now().UTC(),
		}); err != nil {
			return err
		}
		result.Status = StepOK
		return nil
	})
	if err != nil {
		result.Status = StepError
		return result, err
	}
	return result, nil
}

// execute performs the downstream call for one service.
func (o *Orchestrator) execute(ctx context.Context, tx submission.Tx, sub *submission.Submission, service workflow.Service) (externalID string, meta json.RawMessage, err error) {
	switch service {
	case workflow.ServiceDOI:
		doi, err := o.doi.Draft(ctx, clients.DOIPayload{
			Suffix:          sub.ID,
			URL:             fmt.Sprintf("%s/datasets/%s", o.config.DiscoveryBaseURL, sub.ID),
			Publisher:       o.config.Publisher,
			PublicationYear: time.Now().UTC().Year(),
			Titles: []struct {
				Title string `json:"title"`
			}{{Title: sub.Title}},
		})
		if err != nil {
			return "", nil, err
		}
		if err := o.doi.Publish(ctx, doi); err != nil {
			return "", nil, err
		}
		return doi, nil, nil

	case workflow.ServiceCatalog:
		doi, err := o.mintedDOI(ctx, tx, sub.ID)
		if err != nil {
			return "", nil, err
		}
		pid, err := o.catalog.UpsertDataset(ctx, clients.MapDataset(o.config.CatalogID, sub, doi))
		if err != nil {
			return "", nil, err
		}
		return pid, nil, nil

	case workflow.ServiceAccess:
		doi, err := o.mintedDOI(ctx, tx, sub.ID)
		if err != nil {
			return "", nil, err
		}
		resourceID, err := o.access.CreateResource(ctx, doi, sub.Rems.OrganizationID, sub.Rems.Licenses)
		if err != nil {
			return "", nil, err
		}
		itemID, err := o.access.CreateCatalogueItem(ctx, sub.Rems.WorkflowID, resourceID,
			sub.Rems.OrganizationID, map[string]clients.Localization{
				"en": {Title: sub.Title, InfoURL: fmt.Sprintf("%s/datasets/%s", o.config.DiscoveryBaseURL, sub.ID)},
			})
		if err != nil {
			return "", nil, err
		}
		meta, err := json.Marshal(map[string]int{
			"resourceId":      resourceID,
			"catalogueItemId": itemID,
		})
		if err != nil {
			return "", nil, Error.Wrap(err)
		}
		return strconv.Itoa(itemID), meta, nil
	}
	return "", nil, Error.New("no executor for service %q", service)
}

// mintedDOI reads the DOI registered by the earlier pipeline step.
func (o *Orchestrator) mintedDOI(ctx context.Context, tx submission.Tx, submissionID string) (string, error) {
	reg, err := tx.Registrations().Get(ctx, submissionID, nil, workflow.ServiceDOI)
	if err != nil {
		return "", Error.New("doi step has not succeeded yet: %w", err)
	}
	return reg.ExternalID, nil
}

// Announce releases the archive dataset; it is the only transition allowed
// on a published submission and is idempotent.
func (o *Orchestrator) Announce(ctx context.Context, submissionID string) (err error) {
	defer mon.Task()(&ctx)(&err)

	sub, err := o.store.Submissions().Get(ctx, submissionID)
	if err != nil {
		return err
	}
	if err := o.requireProject(ctx, sub.ProjectID); err != nil {
		return err
	}
	if !sub.Frozen() {
		return submission.ErrNotReady.New("submission %s is not published", submissionID)
	}
	if sub.AnnouncedAt != nil {
		return nil
	}

	return submission.WithTx(ctx, o.store, func(tx submission.Tx) error {
		if err := tx.Submissions().Lock(ctx, sub.ID); err != nil {
			return err
		}
		current, err := tx.Submissions().Get(ctx, sub.ID)
		if err != nil {
			return err
		}
		if current.AnnouncedAt != nil {
			return nil
		}

		_, err = tx.Registrations().Get(ctx, sub.ID, nil, workflow.ServiceArchive)
		switch {
		case err == nil:
		case submission.ErrNotFound.Has(err):
			if err := o.archive.ReleaseDataset(ctx, current); err != nil {
				return err
			}
			if err := o.releaseAccess(ctx, tx, current); err != nil {
				return err
			}
			if err := tx.Registrations().Create(ctx, &submission.Registration{
				ID:           uuid.NewString(),
				SubmissionID: sub.ID,
				Service:      workflow.ServiceArchive,
				ExternalID:   sub.ID,
				Created:      time.Now().UTC(),
			}); err != nil {
				return err
			}
		default:
			return err
		}

		now := time.Now().UTC()
		current.AnnouncedAt = &now
		current.Modified = now
		return tx.Submissions().Update(ctx, current)
	})
}

// releaseAccess propagates the release to the access service for workflows
// whose pipeline registered a catalogue item.
func (o *Orchestrator) releaseAccess(ctx context.Context, tx submission.Tx, sub *submission.Submission) error {
	reg, err := tx.Registrations().Get(ctx, sub.ID, nil, workflow.ServiceAccess)
	if err != nil {
		if submission.ErrNotFound.Has(err) {
			return nil
		}
		return err
	}
	var meta struct {
		CatalogueItemID int `json:"catalogueItemId"`
	}
	if err := json.Unmarshal(reg.Meta, &meta); err != nil {
		return Error.Wrap(err)
	}
	return o.access.ReleaseCatalogueItem(ctx, meta.CatalogueItemID)
}

func (o *Orchestrator) requireProject(ctx context.Context, projectID string) error {
	principal, err := auth.GetPrincipal(ctx)
	if err != nil {
		return err
	}
	return projects.RequireMember(ctx, o.projects, principal.UserID, projectID)
}
