// Copyright (C) 2024 Storj Labs, Inc.
// See LICENSE for copying information.

package submission

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"submitter.io/submitter/submitter/workflow"
)

// ErrNoXML is returned when an object has no stored XML counterpart.
var ErrNoXML = &ErrNotFound

// PutObjects validates and stores metadata documents of one type under a
// submission, minting accession ids. All documents land in one transaction.
func (service *Service) PutObjects(ctx context.Context, submissionID, objectType string, docs []json.RawMessage) (accessionIDs []string, err error) {
	defer mon.Task()(&ctx)(&err)

	drafts := make([]MetadataObject, 0, len(docs))
	for _, doc := range docs {
		drafts = append(drafts, MetadataObject{ObjectType: objectType, Document: doc})
	}
	stored, err := service.StoreObjects(ctx, submissionID, drafts)
	if err != nil {
		return nil, err
	}
	for _, object := range stored {
		accessionIDs = append(accessionIDs, object.AccessionID)
	}
	return accessionIDs, nil
}

// StoreObjects persists prepared objects (from a JSON post or the XML
// processor) under the submission, enforcing workflow multiplicity and name
// uniqueness inside a single transaction holding the submission lock.
func (service *Service) StoreObjects(ctx context.Context, submissionID string, drafts []MetadataObject) (stored []MetadataObject, err error) {
	defer mon.Task()(&ctx)(&err)

	err = WithTx(ctx, service.store, func(tx Tx) error {
		stored = stored[:0]
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
		wf, err := workflow.Get(sub.Workflow)
		if err != nil {
			return err
		}

		counts := map[string]int{}
		for _, draft := range drafts {
			counts[draft.ObjectType]++
		}
		for objectType, added := range counts {
			rule, ok := wf.Rule(objectType)
			if !ok {
				return ErrValidation.New("workflow %s does not accept %q objects", wf.Name, objectType)
			}
			if rule.AllowMultiple {
				continue
			}
			existing, err := tx.Objects().ListBySubmission(ctx, submissionID, objectType)
			if err != nil {
				return err
			}
			if len(existing)+added > 1 {
				return ErrValidation.New("workflow %s allows a single %q object", wf.Name, objectType)
			}
		}

		now := time.Now().UTC()
		for _, draft := range drafts {
			object := draft

			var fields struct {
				Alias string `json:"alias"`
				Title string `json:"title"`
			}
			if err := json.Unmarshal(object.Document, &fields); err != nil {
				return ErrValidation.New("%s document is not an object: %v", object.ObjectType, err)
			}
			if object.Name == "" {
				object.Name = fields.Alias
			}
			if object.Name == "" {
				return ErrValidation.New("%s document has no alias", object.ObjectType)
			}
			if object.Title == "" {
				object.Title = fields.Title
			}

			var decoded any
			if err := json.Unmarshal(object.Document, &decoded); err != nil {
				return ErrValidation.Wrap(err)
			}
			if violations := service.catalog.ValidateJSON(object.ObjectType, decoded); len(violations) > 0 {
				return ErrValidation.New("%s %q: %v", object.ObjectType, object.Name, violations[0])
			}

			if object.AccessionID == "" {
				object.AccessionID = MintAccession(sub.Workflow, service.config.BPCenterID, submissionID, object.ObjectType, object.Name)
				object.Document, err = withAccession(object.Document, object.AccessionID)
				if err != nil {
					return err
				}
			}
			object.SubmissionID = submissionID
			object.ProjectID = sub.ProjectID
			object.Created = now
			object.Modified = now

			if err := tx.Objects().Create(ctx, &object); err != nil {
				return err
			}
			stored = append(stored, object)
		}

		sub.Modified = now
		return tx.Submissions().Update(ctx, sub)
	})
	if err != nil {
		return nil, err
	}
	service.log.Info("objects stored",
		zap.String("submission", submissionID),
		zap.Int("count", len(stored)))
	return stored, nil
}

// withAccession sets the accession key on a JSON document.
func withAccession(doc json.RawMessage, accessionID string) (json.RawMessage, error) {
	var decoded map[string]any
	if err := json.Unmarshal(doc, &decoded); err != nil {
		return nil, ErrValidation.Wrap(err)
	}
	decoded["accession"] = accessionID
	out, err := json.Marshal(decoded)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return out, nil
}

// GetObject returns a metadata object by accession id.
func (service *Service) GetObject(ctx context.Context, accessionID string) (_ *MetadataObject, err error) {
	defer mon.Task()(&ctx)(&err)

	object, err := service.store.Objects().Get(ctx, accessionID)
	if err != nil {
		return nil, err
	}
	if err := service.requireProject(ctx, object.ProjectID); err != nil {
		return nil, err
	}
	return object, nil
}

// GetObjectXML returns the stored XML counterpart of an object.
func (service *Service) GetObjectXML(ctx context.Context, accessionID string) (_ []byte, err error) {
	defer mon.Task()(&ctx)(&err)

	object, err := service.GetObject(ctx, accessionID)
	if err != nil {
		return nil, err
	}
	if len(object.XML) == 0 {
		return nil, ErrNoXML.New("object %s: no_xml", accessionID)
	}
	return object.XML, nil
}

// ReplaceObject overwrites the stored document of an object.
func (service *Service) ReplaceObject(ctx context.Context, accessionID string, doc json.RawMessage) (err error) {
	defer mon.Task()(&ctx)(&err)

	return WithTx(ctx, service.store, func(tx Tx) error {
		object, err := tx.Objects().Get(ctx, accessionID)
		if err != nil {
			return err
		}
		if err := tx.Submissions().Lock(ctx, object.SubmissionID); err != nil {
			return err
		}
		sub, err := tx.Submissions().Get(ctx, object.SubmissionID)
		if err != nil {
			return err
		}
		if err := service.requireProject(ctx, sub.ProjectID); err != nil {
			return err
		}
		if sub.Frozen() {
			return ErrFrozen.New("submission %s", sub.ID)
		}

		doc, err = withAccession(doc, accessionID)
		if err != nil {
			return err
		}
		var decoded any
		if err := json.Unmarshal(doc, &decoded); err != nil {
			return ErrValidation.Wrap(err)
		}
		if violations := service.catalog.ValidateJSON(object.ObjectType, decoded); len(violations) > 0 {
			return ErrValidation.New("%s %q: %v", object.ObjectType, object.Name, violations[0])
		}

		object.Document = doc
		object.XML = nil
		object.Modified = time.Now().UTC()
		return tx.Objects().Update(ctx, object)
	})
}

// DeleteObject removes an object from a draft submission. Submission-level
// types (bprems) cannot be deleted object-wise.
func (service *Service) DeleteObject(ctx context.Context, accessionID string) (err error) {
	defer mon.Task()(&ctx)(&err)

	return WithTx(ctx, service.store, func(tx Tx) error {
		object, err := tx.Objects().Get(ctx, accessionID)
		if err != nil {
			return err
		}
		if object.ObjectType == "bprems" {
			return ErrValidation.New("bprems is managed at submission level")
		}
		if err := tx.Submissions().Lock(ctx, object.SubmissionID); err != nil {
			return err
		}
		sub, err := tx.Submissions().Get(ctx, object.SubmissionID)
		if err != nil {
			return err
		}
		if err := service.requireProject(ctx, sub.ProjectID); err != nil {
			return err
		}
		if sub.Frozen() {
			return ErrFrozen.New("submission %s", sub.ID)
		}
		return tx.Objects().Delete(ctx, accessionID)
	})
}

// ListObjects returns the submission's objects, optionally by type.
func (service *Service) ListObjects(ctx context.Context, submissionID, objectType string) (_ []MetadataObject, err error) {
	defer mon.Task()(&ctx)(&err)

	sub, err := service.store.Submissions().Get(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if err := service.requireProject(ctx, sub.ProjectID); err != nil {
		return nil, err
	}
	return service.store.Objects().ListBySubmission(ctx, submissionID, objectType)
}
