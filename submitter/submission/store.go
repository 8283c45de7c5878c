// Copyright (C) 2024 Storj Labs, Inc.
// See LICENSE for copying information.

package submission

import (
	"context"

	"github.com/zeebo/errs"

	"submitter.io/submitter/submitter/workflow"
)

// Submissions is the repository for submission rows.
//
// architecture: Database
type Submissions interface {
	// Create inserts the submission; ErrNameTaken when (project, name) exists.
	Create(ctx context.Context, sub *Submission) error
	// Get returns the submission; ErrNotFound when absent.
	Get(ctx context.Context, id string) (*Submission, error)
	// ListByProject returns all submissions of the project, newest first.
	ListByProject(ctx context.Context, projectID string) ([]Submission, error)
	// ListIngesting returns submissions whose ingest is started but which are
	// neither ready nor published; used by the reconciliation loop.
	ListIngesting(ctx context.Context) ([]Submission, error)
	// Update writes mutable fields; ErrNameTaken on a name collision.
	Update(ctx context.Context, sub *Submission) error
	// Delete removes the submission and cascades to objects and files.
	Delete(ctx context.Context, id string) error
	// Lock takes the per-submission row lock; valid only inside a
	// transaction. Blocking behavior follows the variant: Lock waits,
	// TryLock returns ErrNotFound immediately on contention.
	Lock(ctx context.Context, id string) error
	TryLock(ctx context.Context, id string) error
}

// Objects is the repository for metadata objects.
//
// architecture: Database
type Objects interface {
	// Create inserts the object; ErrNameTaken when
	// (project, type, name) exists.
	Create(ctx context.Context, object *MetadataObject) error
	// Get returns the object by accession id; ErrNotFound when absent.
	Get(ctx context.Context, accessionID string) (*MetadataObject, error)
	// ListBySubmission returns objects of the submission, optionally
	// filtered by type (empty objectType means all).
	ListBySubmission(ctx context.Context, submissionID, objectType string) ([]MetadataObject, error)
	// Update replaces the stored document and XML.
	Update(ctx context.Context, object *MetadataObject) error
	// Delete removes the object.
	Delete(ctx context.Context, accessionID string) error
}

// Files is the repository for file references.
//
// architecture: Database
type Files interface {
	// Create inserts a new file version for its path.
	Create(ctx context.Context, file *File) error
	// Get returns the file by accession id; ErrNotFound when absent.
	Get(ctx context.Context, accessionID string) (*File, error)
	// ListLatestByProject returns the latest non-removed version per path.
	ListLatestByProject(ctx context.Context, projectID string) ([]File, error)
	// ListBySubmission returns the latest non-removed versions attached to
	// the submission.
	ListBySubmission(ctx context.Context, submissionID string) ([]File, error)
	// NextVersion returns one past the highest version for the path.
	NextVersion(ctx context.Context, projectID, path string) (int, error)
	// SetSubmission attaches (or with nil detaches) files to a submission.
	SetSubmission(ctx context.Context, accessionID string, submissionID *string) error
	// UpdateIngest applies an ingest state change.
	UpdateIngest(ctx context.Context, accessionID string, status IngestStatus, errorType *ErrorType, errorCount int) error
	// Remove tombstones the file.
	Remove(ctx context.Context, accessionID string) error
}

// Registrations is the repository of downstream service registrations.
//
// architecture: Database
type Registrations interface {
	// Create inserts a registration; at most one active row may exist per
	// (submission, object, service).
	Create(ctx context.Context, reg *Registration) error
	// Get returns the registration; ErrNotFound when the step has not
	// succeeded yet.
	Get(ctx context.Context, submissionID string, objectID *string, service workflow.Service) (*Registration, error)
	// ListBySubmission returns all registrations of the submission.
	ListBySubmission(ctx context.Context, submissionID string) ([]Registration, error)
}

// Repositories bundles the submission-domain repositories.
type Repositories interface {
	Submissions() Submissions
	Objects() Objects
	Files() Files
	Registrations() Registrations
}

// Store is the transactional entry point to the submission domain.
//
// architecture: Database
type Store interface {
	Repositories

	// BeginTx opens a transaction exposing the same repositories.
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx is one open transaction over the domain repositories.
type Tx interface {
	Repositories

	Commit() error
	Rollback() error
}

// WithTx runs fn inside a transaction, committing on success and rolling
// back on error.
func WithTx(ctx context.Context, store Store, fn func(tx Tx) error) (err error) {
	tx, err := store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			err = errs.Combine(err, tx.Rollback())
			return
		}
		err = tx.Commit()
	}()
	return fn(tx)
}
