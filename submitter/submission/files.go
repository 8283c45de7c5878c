// Copyright (C) 2024 Storj Labs, Inc.
// See LICENSE for copying information.

package submission

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FileDraft is a user-supplied file registration.
type FileDraft struct {
	Path                string    `json:"path"`
	Bytes               int64     `json:"bytes"`
	ObjectID            *string   `json:"objectId,omitempty"`
	EncryptedChecksum   *Checksum `json:"encryptedChecksum,omitempty"`
	UnencryptedChecksum *Checksum `json:"unencryptedChecksum,omitempty"`
}

// RegisterFiles records file references in the project. Re-registering a
// path supersedes the previous version, clearing any error state.
func (service *Service) RegisterFiles(ctx context.Context, projectID string, drafts []FileDraft) (files []File, err error) {
	defer mon.Task()(&ctx)(&err)

	if err := service.requireProject(ctx, projectID); err != nil {
		return nil, err
	}

	err = WithTx(ctx, service.store, func(tx Tx) error {
		files = files[:0]
		now := time.Now().UTC()
		for _, draft := range drafts {
			if strings.TrimSpace(draft.Path) == "" {
				return ErrValidation.New("file path must not be empty")
			}
			version, err := tx.Files().NextVersion(ctx, projectID, draft.Path)
			if err != nil {
				return err
			}
			file := File{
				AccessionID:         uuid.NewString(),
				ProjectID:           projectID,
				ObjectID:            draft.ObjectID,
				Path:                draft.Path,
				Bytes:               draft.Bytes,
				Version:             version,
				EncryptedChecksum:   draft.EncryptedChecksum,
				UnencryptedChecksum: draft.UnencryptedChecksum,
				IngestStatus:        IngestAdded,
				Created:             now,
				Modified:            now,
			}
			if err := tx.Files().Create(ctx, &file); err != nil {
				return err
			}
			files = append(files, file)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// ListFiles returns the latest file versions of a project.
func (service *Service) ListFiles(ctx context.Context, projectID string) (_ []File, err error) {
	defer mon.Task()(&ctx)(&err)

	if err := service.requireProject(ctx, projectID); err != nil {
		return nil, err
	}
	return service.store.Files().ListLatestByProject(ctx, projectID)
}

// ListSubmissionFiles returns the latest file versions attached to a
// submission.
func (service *Service) ListSubmissionFiles(ctx context.Context, submissionID string) (_ []File, err error) {
	defer mon.Task()(&ctx)(&err)

	sub, err := service.store.Submissions().Get(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if err := service.requireProject(ctx, sub.ProjectID); err != nil {
		return nil, err
	}
	return service.store.Files().ListBySubmission(ctx, submissionID)
}

// FilePatch attaches or detaches one file.
type FilePatch struct {
	AccessionID string `json:"accessionId"`
	// Attach when true, detach when false.
	Attach bool `json:"attach"`
}

// PatchFiles attaches and detaches files on a draft submission.
func (service *Service) PatchFiles(ctx context.Context, submissionID string, patches []FilePatch) (err error) {
	defer mon.Task()(&ctx)(&err)

	return WithTx(ctx, service.store, func(tx Tx) error {
		if err := tx.Submissions().Lock(ctx, submissionID); err != nil {
			return err
		}
		sub, err := tx.Submissions().Get(ctx, submissionID)
		if err != nil {
			return err
		}
		if err := service.requireProject(ctx, sub.ProjectID); err != nil {
			return err
		}
		if sub.Frozen() {
			return ErrFrozen.New("submission %s", submissionID)
		}

		for _, patch := range patches {
			file, err := tx.Files().Get(ctx, patch.AccessionID)
			if err != nil {
				return err
			}
			if file.ProjectID != sub.ProjectID {
				return ErrValidation.New("file %s belongs to another project", patch.AccessionID)
			}
			target := &submissionID
			if !patch.Attach {
				if file.SubmissionID == nil || *file.SubmissionID != submissionID {
					continue
				}
				target = nil
			}
			if err := tx.Files().SetSubmission(ctx, patch.AccessionID, target); err != nil {
				return err
			}
		}

		sub.Modified = time.Now().UTC()
		return tx.Submissions().Update(ctx, sub)
	})
}
