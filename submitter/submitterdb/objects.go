// Copyright (C) 2024 Storj Labs, Inc.
// See LICENSE for copying information.

package submitterdb

import (
	"context"
	"database/sql"
	"errors"

	"github.com/zeebo/errs"

	"submitter.io/submitter/submitter/submission"
)

// objectsRepo implements submission.Objects.
type objectsRepo struct {
	q querier
}

const objectColumns = `accession_id, submission_id, project_id, object_type, name, title,
	document, xml, created, modified`

func (repo *objectsRepo) Create(ctx context.Context, object *submission.MetadataObject) error {
	_, err := repo.q.ExecContext(ctx, `
		INSERT INTO objects (`+objectColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		object.AccessionID, object.SubmissionID, object.ProjectID, object.ObjectType,
		object.Name, object.Title, []byte(object.Document), object.XML,
		object.Created, object.Modified)
	if isUniqueViolation(err) {
		return submission.ErrNameTaken.New("%s %q", object.ObjectType, object.Name)
	}
	return Error.Wrap(err)
}

func (repo *objectsRepo) Get(ctx context.Context, accessionID string) (*submission.MetadataObject, error) {
	row := repo.q.QueryRowContext(ctx, `
		SELECT `+objectColumns+` FROM objects WHERE accession_id = $1`, accessionID)
	object, err := scanObject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, submission.ErrNotFound.New("object %s", accessionID)
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return object, nil
}

func (repo *objectsRepo) ListBySubmission(ctx context.Context, submissionID, objectType string) (objects []submission.MetadataObject, err error) {
	query := `SELECT ` + objectColumns + ` FROM objects WHERE submission_id = $1`
	args := []any{submissionID}
	if objectType != "" {
		query += ` AND object_type = $2`
		args = append(args, objectType)
	}
	query += ` ORDER BY created`

	rows, err := repo.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { err = errs.Combine(err, Error.Wrap(rows.Close())) }()

	for rows.Next() {
		object, err := scanObject(rows)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		objects = append(objects, *object)
	}
	return objects, rows.Err()
}

func (repo *objectsRepo) Update(ctx context.Context, object *submission.MetadataObject) error {
	result, err := repo.q.ExecContext(ctx, `
		UPDATE objects SET name = $2, title = $3, document = $4, xml = $5, modified = $6
		WHERE accession_id = $1`,
		object.AccessionID, object.Name, object.Title,
		[]byte(object.Document), object.XML, object.Modified)
	if isUniqueViolation(err) {
		return submission.ErrNameTaken.New("%s %q", object.ObjectType, object.Name)
	}
	if err != nil {
		return Error.Wrap(err)
	}
	return affectedOne(result, submission.ErrNotFound.New("object %s", object.AccessionID))
}

func (repo *objectsRepo) Delete(ctx context.Context, accessionID string) error {
	result, err := repo.q.ExecContext(ctx, `DELETE FROM objects WHERE accession_id = $1`, accessionID)
	if err != nil {
		return Error.Wrap(err)
	}
	return affectedOne(result, submission.ErrNotFound.New("object %s", accessionID))
}

func scanObject(row scanner) (*submission.MetadataObject, error) {
	var object submission.MetadataObject
	var document []byte
	err := row.Scan(
		&object.AccessionID, &object.SubmissionID, &object.ProjectID, &object.ObjectType,
		&object.Name, &object.Title, &document, &object.XML,
		&object.Created, &object.Modified)
	if err != nil {
		return nil, err
	}
	object.Document = document
	return &object, nil
}
