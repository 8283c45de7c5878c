// Copyright (C) 2024 Storj Labs, Inc.
// See LICENSE for copying information.

package submitterdb

import (
	"context"
	"database/sql"
	"errors"

	"github.com/zeebo/errs"

	"submitter.io/submitter/submitter/submission"
	"submitter.io/submitter/submitter/workflow"
)

// registrationsRepo implements submission.Registrations.
type registrationsRepo struct {
	q querier
}

const registrationColumns = `id, submission_id, object_id, service, external_id, meta, created`

func (repo *registrationsRepo) Create(ctx context.Context, reg *submission.Registration) error {
	_, err := repo.q.ExecContext(ctx, `
		INSERT INTO registrations (`+registrationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		reg.ID, reg.SubmissionID, reg.ObjectID, reg.Service,
		reg.ExternalID, []byte(reg.Meta), reg.Created)
	if isUniqueViolation(err) {
		return submission.ErrNameTaken.New("registration %s/%s", reg.SubmissionID, reg.Service)
	}
	return Error.Wrap(err)
}

func (repo *registrationsRepo) Get(ctx context.Context, submissionID string, objectID *string, service workflow.Service) (*submission.Registration, error) {
	query := `SELECT ` + registrationColumns + ` FROM registrations
		WHERE submission_id = $1 AND service = $2 AND object_id IS NULL`
	args := []any{submissionID, service}
	if objectID != nil {
		query = `SELECT ` + registrationColumns + ` FROM registrations
			WHERE submission_id = $1 AND service = $2 AND object_id = $3`
		args = append(args, *objectID)
	}

	row := repo.q.QueryRowContext(ctx, query, args...)
	reg, err := scanRegistration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, submission.ErrNotFound.New("registration %s/%s", submissionID, service)
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return reg, nil
}

func (repo *registrationsRepo) ListBySubmission(ctx context.Context, submissionID string) (regs []submission.Registration, err error) {
	rows, err := repo.q.QueryContext(ctx, `
		SELECT `+registrationColumns+` FROM registrations
		WHERE submission_id = $1 ORDER BY created`, submissionID)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { err = errs.Combine(err, Error.Wrap(rows.Close())) }()

	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		regs = append(regs, *reg)
	}
	return regs, rows.Err()
}

func scanRegistration(row scanner) (*submission.Registration, error) {
	var reg submission.Registration
	var meta []byte
	err := row.Scan(
		&reg.ID, &reg.SubmissionID, &reg.ObjectID, &reg.Service,
		&reg.ExternalID, &meta, &reg.Created)
	if err != nil {
		return nil, err
	}
	reg.Meta = meta
	return &reg, nil
}
