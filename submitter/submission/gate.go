// Copyright (C) 2024 Storj Labs, Inc.
// See LICENSE for copying information.

package submission

import (
	"context"

	"submitter.io/submitter/submitter/workflow"
)

// CheckReady verifies the per-workflow publish gate for a submission:
// required schemas present with valid cardinality, declared dependency edges
// satisfied, and every attached file ingested without errors. A nil error
// means the submission may be published.
func (service *Service) CheckReady(ctx context.Context, sub *Submission) (err error) {
	defer mon.Task()(&ctx)(&err)
	return CheckReadyWith(ctx, service.store, sub)
}

// CheckReadyWith runs the publish gate against explicit repositories, so the
// publish orchestrator can evaluate it inside its own transaction.
func CheckReadyWith(ctx context.Context, repos Repositories, sub *Submission) error {
	wf, err := workflow.Get(sub.Workflow)
	if err != nil {
		return err
	}

	objects, err := repos.Objects().ListBySubmission(ctx, sub.ID, "")
	if err != nil {
		return err
	}
	present := map[string]int{}
	for _, object := range objects {
		present[object.ObjectType]++
	}

	for _, rule := range wf.Schemas {
		count := present[rule.Schema]
		if rule.Required && count == 0 {
			return ErrNotReady.New("missing required %q object", rule.Schema)
		}
		if !rule.AllowMultiple && count > 1 {
			return ErrNotReady.New("more than one %q object", rule.Schema)
		}
		if count == 0 {
			continue
		}
		for _, dep := range rule.Requires {
			if present[dep] == 0 {
				return ErrNotReady.New("%q requires a %q object", rule.Schema, dep)
			}
		}
		if len(rule.RequiresOr) > 0 {
			satisfied := false
			for _, dep := range rule.RequiresOr {
				if present[dep] > 0 {
					satisfied = true
					break
				}
			}
			if !satisfied {
				return ErrNotReady.New("%q requires one of %v", rule.Schema, rule.RequiresOr)
			}
		}
	}

	if !wf.TracksFiles {
		return nil
	}

	files, err := repos.Files().ListBySubmission(ctx, sub.ID)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return ErrNotReady.New("no files attached")
	}
	for _, file := range files {
		switch file.IngestStatus {
		case IngestError:
			return ErrNotReady.New("file %s failed ingestion", file.Path)
		case IngestReady, IngestVerified, IngestCompleted:
		default:
			return ErrNotReady.New("file %s is not ingested yet", file.Path)
		}
	}
	return nil
}
