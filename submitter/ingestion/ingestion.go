// Copyright (C) 2024 Storj Labs, Inc.
// See LICENSE for copying information.

// Package ingestion reconciles file ingest state with the archive. A
// periodic chore polls the archive for every submission whose ingest has
// started, applies forward-only status transitions to the tracked files and
// promotes the submission once every file has ingested and the archive
// confirms completion.
package ingestion

import (
	"context"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"submitter.io/submitter/shared/sync2"
	"submitter.io/submitter/submitter/clients"
	"submitter.io/submitter/submitter/submission"
)

var (
	// Error is the default error class for the ingestion package.
	Error = errs.Class("ingestion")

	mon = monkit.Package()
)

// Archive is the subset of the archive admin API the poller needs.
type Archive interface {
	Poll(ctx context.Context, sub *submission.Submission) ([]clients.FileStatus, error)
	VerifyComplete(ctx context.Context, sub *submission.Submission) (bool, error)
	CreateDataset(ctx context.Context, sub *submission.Submission, accessionIDs []string) error
}

// Config holds the poller configuration.
type Config struct {
	Interval time.Duration `help:"how often to poll the archive for ingest progress" default:"1m"`
}

// Chore polls the archive and advances file ingest state.
//
// architecture: Chore
type Chore struct {
	log     *zap.Logger
	store   submission.Store
	archive Archive

	Loop *sync2.Cycle
}

// NewChore creates the ingest reconciliation chore.
func NewChore(log *zap.Logger, config Config, store submission.Store, archive Archive) *Chore {
	return &Chore{
		log:     log,
		store:   store,
		archive: archive,
		Loop:    sync2.NewCycle(config.Interval),
	}
}

// Run starts the reconciliation loop until the context is canceled.
func (chore *Chore) Run(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	return chore.Loop.Run(ctx, chore.RunOnce)
}

// Close stops the loop.
func (chore *Chore) Close() error {
	chore.Loop.Stop()
	return nil
}

// RunOnce performs a single reconciliation pass. Per-submission failures are
// logged and do not abort the pass.
func (chore *Chore) RunOnce(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	ingesting, err := chore.store.Submissions().ListIngesting(ctx)
	if err != nil {
		return err
	}
	for _, sub := range ingesting {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := chore.reconcile(ctx, sub.ID); err != nil {
			chore.log.Warn("ingest reconciliation failed",
				zap.String("submission", sub.ID),
				zap.Error(err))
		}
	}
	return nil
}

// reconcile advances one submission. The whole pass runs under the
// submission's row lock; contention means another poller has it, so the
// submission is skipped until the next cycle.
func (chore *Chore) reconcile(ctx context.Context, submissionID string) (err error) {
	defer mon.Task()(&ctx)(&err)

	return submission.WithTx(ctx, chore.store, func(tx submission.Tx) error {
		if err := tx.Submissions().TryLock(ctx, submissionID); err != nil {
			if submission.ErrNotFound.Has(err) {
				return nil
			}
			return err
		}
		sub, err := tx.Submissions().Get(ctx, submissionID)
		if err != nil {
			return err
		}
		if sub.IngestStarted == nil || sub.ReadyAt != nil || sub.PublishedAt != nil {
			return nil
		}

		statuses, err := chore.archive.Poll(ctx, sub)
		if err != nil {
			return err
		}
		byPath := map[string]clients.FileStatus{}
		for _, status := range statuses {
			byPath[status.Path] = status
		}

		files, err := tx.Files().ListBySubmission(ctx, sub.ID)
		if err != nil {
			return err
		}

		allReady := len(files) > 0
		for _, file := range files {
			status, polled := byPath[file.Path]
			if polled {
				if err := chore.advance(ctx, tx, &file, status); err != nil {
					return err
				}
			}
			if file.IngestStatus == submission.IngestError {
				return nil
			}
			if !ingested(file.IngestStatus) {
				allReady = false
			}
		}
		if !allReady {
			return nil
		}

		complete, err := chore.archive.VerifyComplete(ctx, sub)
		if err != nil {
			return err
		}
		if !complete {
			return nil
		}

		accessionIDs := make([]string, 0, len(files))
		for _, file := range files {
			accessionIDs = append(accessionIDs, file.AccessionID)
		}
		if err := chore.archive.CreateDataset(ctx, sub, accessionIDs); err != nil {
			return err
		}

		now := time.Now().UTC()
		sub.ReadyAt = &now
		sub.Modified = now
		if err := tx.Submissions().Update(ctx, sub); err != nil {
			return err
		}
		chore.log.Info("submission ready",
			zap.String("submission", sub.ID),
			zap.Int("files", len(files)))
		return nil
	})
}

// advance applies one polled status to a file, honoring the forward-only
// state machine. Regressions reported by the archive are ignored.
func (chore *Chore) advance(ctx context.Context, tx submission.Tx, file *submission.File, status clients.FileStatus) error {
	next, known := mapStatus(status.Status)
	if !known {
		chore.log.Warn("archive reported unknown file status",
			zap.String("file", file.AccessionID),
			zap.String("status", status.Status))
		return nil
	}
	if next == file.IngestStatus || !submission.CanTransition(file.IngestStatus, next) {
		return nil
	}

	var errorType *submission.ErrorType
	errorCount := file.IngestErrorCount
	if next == submission.IngestError {
		classified := mapErrorType(status.ErrorType)
		errorType = &classified
		errorCount++
	}
	if err := tx.Files().UpdateIngest(ctx, file.AccessionID, next, errorType, errorCount); err != nil {
		return err
	}
	file.IngestStatus = next
	file.IngestErrorType = errorType
	file.IngestErrorCount = errorCount
	return nil
}

// ingested reports whether a file has reached a promotion-eligible state;
// the archive's own completion check covers the verification tail.
func ingested(status submission.IngestStatus) bool {
	switch status {
	case submission.IngestReady, submission.IngestVerified, submission.IngestCompleted:
		return true
	}
	return false
}

func mapStatus(status string) (submission.IngestStatus, bool) {
	switch status {
	case "added", "submitted":
		return submission.IngestAdded, true
	case "ready":
		return submission.IngestReady, true
	case "verified":
		return submission.IngestVerified, true
	case "completed":
		return submission.IngestCompleted, true
	case "error", "failed":
		return submission.IngestError, true
	}
	return "", false
}

func mapErrorType(errorType string) submission.ErrorType {
	switch errorType {
	case "user":
		return submission.ErrorUser
	case "permanent":
		return submission.ErrorPermanent
	}
	return submission.ErrorTransient
}
