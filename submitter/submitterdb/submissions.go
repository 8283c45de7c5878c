// Copyright (C) 2024 Storj Labs, Inc.
// See LICENSE for copying information.

package submitterdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/zeebo/errs"

	"submitter.io/submitter/submitter/submission"
)

// submissionsRepo implements submission.Submissions.
type submissionsRepo struct {
	q querier
}

const submissionColumns = `id, project_id, workflow, name, title, description, bucket,
	metadata, rems, created, modified, ingest_started, ready_at, published_at, announced_at`

func (repo *submissionsRepo) Create(ctx context.Context, sub *submission.Submission) error {
	metadata, rems, err := encodeSubmissionDocs(sub)
	if err != nil {
		return err
	}
	_, err = repo.q.ExecContext(ctx, `
		INSERT INTO submissions (`+submissionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		sub.ID, sub.ProjectID, sub.Workflow, sub.Name, sub.Title, sub.Description, sub.Bucket,
		metadata, rems, sub.Created, sub.Modified,
		sub.IngestStarted, sub.ReadyAt, sub.PublishedAt, sub.AnnouncedAt)
	if isUniqueViolation(err) {
		return submission.ErrNameTaken.New("submission %q", sub.Name)
	}
	return Error.Wrap(err)
}

func (repo *submissionsRepo) Get(ctx context.Context, id string) (*submission.Submission, error) {
	row := repo.q.QueryRowContext(ctx, `
		SELECT `+submissionColumns+` FROM submissions WHERE id = $1`, id)
	sub, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, submission.ErrNotFound.New("submission %s", id)
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return sub, nil
}

func (repo *submissionsRepo) ListByProject(ctx context.Context, projectID string) (subs []submission.Submission, err error) {
	rows, err := repo.q.QueryContext(ctx, `
		SELECT `+submissionColumns+` FROM submissions
		WHERE project_id = $1 ORDER BY created DESC`, projectID)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { err = errs.Combine(err, Error.Wrap(rows.Close())) }()

	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

func (repo *submissionsRepo) ListIngesting(ctx context.Context) (subs []submission.Submission, err error) {
	rows, err := repo.q.QueryContext(ctx, `
		SELECT `+submissionColumns+` FROM submissions
		WHERE ingest_started IS NOT NULL AND ready_at IS NULL AND published_at IS NULL
		ORDER BY ingest_started`)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { err = errs.Combine(err, Error.Wrap(rows.Close())) }()

	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

func (repo *submissionsRepo) Update(ctx context.Context, sub *submission.Submission) error {
	metadata, rems, err := encodeSubmissionDocs(sub)
	if err != nil {
		return err
	}
	result, err := repo.q.ExecContext(ctx, `
		UPDATE submissions SET
			name = $2, title = $3, description = $4, bucket = $5,
			metadata = $6, rems = $7, modified = $8,
			ingest_started = $9, ready_at = $10, published_at = $11, announced_at = $12
		WHERE id = $1`,
		sub.ID, sub.Name, sub.Title, sub.Description, sub.Bucket,
		metadata, rems, sub.Modified,
		sub.IngestStarted, sub.ReadyAt, sub.PublishedAt, sub.AnnouncedAt)
	if isUniqueViolation(err) {
		return submission.ErrNameTaken.New("submission %q", sub.Name)
	}
	if err != nil {
		return Error.Wrap(err)
	}
	return affectedOne(result, submission.ErrNotFound.New("submission %s", sub.ID))
}

func (repo *submissionsRepo) Delete(ctx context.Context, id string) error {
	result, err := repo.q.ExecContext(ctx, `DELETE FROM submissions WHERE id = $1`, id)
	if err != nil {
		return Error.Wrap(err)
	}
	return affectedOne(result, submission.ErrNotFound.New("submission %s", id))
}

func (repo *submissionsRepo) Lock(ctx context.Context, id string) error {
	return repo.lock(ctx, id, `SELECT id FROM submissions WHERE id = $1 FOR UPDATE`)
}

func (repo *submissionsRepo) TryLock(ctx context.Context, id string) error {
	return repo.lock(ctx, id, `SELECT id FROM submissions WHERE id = $1 FOR UPDATE NOWAIT`)
}

func (repo *submissionsRepo) lock(ctx context.Context, id, query string) error {
	var locked string
	err := repo.q.QueryRowContext(ctx, query, id).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) || isLockNotAvailable(err) {
		return submission.ErrNotFound.New("submission %s", id)
	}
	return Error.Wrap(err)
}

// scanner covers sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row scanner) (*submission.Submission, error) {
	var sub submission.Submission
	var metadata, rems []byte
	err := row.Scan(
		&sub.ID, &sub.ProjectID, &sub.Workflow, &sub.Name, &sub.Title, &sub.Description, &sub.Bucket,
		&metadata, &rems, &sub.Created, &sub.Modified,
		&sub.IngestStarted, &sub.ReadyAt, &sub.PublishedAt, &sub.AnnouncedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(metadata, &sub.Metadata); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(rems, &sub.Rems); err != nil {
		return nil, err
	}
	return &sub, nil
}

func encodeSubmissionDocs(sub *submission.Submission) (metadata, rems []byte, err error) {
	metadata, err = json.Marshal(sub.Metadata)
	if err != nil {
		return nil, nil, Error.Wrap(err)
	}
	rems, err = json.Marshal(sub.Rems)
	if err != nil {
		return nil, nil, Error.Wrap(err)
	}
	return metadata, rems, nil
}

func affectedOne(result sql.Result, missing error) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return Error.Wrap(err)
	}
	if affected == 0 {
		return missing
	}
	return nil
}
