// Copyright (C) 2024 Storj Labs, Inc.
// See LICENSE for copying information.

package submitterdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/zeebo/errs"

	"submitter.io/submitter/submitter/submission"
)

// filesRepo implements submission.Files.
type filesRepo struct {
	q querier
}

const fileColumns = `accession_id, submission_id, project_id, object_id, path, bytes, version,
	encrypted_checksum, unencrypted_checksum,
	ingest_status, ingest_error_type, ingest_error_count,
	created, modified, removed`

func (repo *filesRepo) Create(ctx context.Context, file *submission.File) error {
	encrypted, err := encodeChecksum(file.EncryptedChecksum)
	if err != nil {
		return err
	}
	unencrypted, err := encodeChecksum(file.UnencryptedChecksum)
	if err != nil {
		return err
	}
	_, err = repo.q.ExecContext(ctx, `
		INSERT INTO files (`+fileColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		file.AccessionID, file.SubmissionID, file.ProjectID, file.ObjectID,
		file.Path, file.Bytes, file.Version, encrypted, unencrypted,
		file.IngestStatus, file.IngestErrorType, file.IngestErrorCount,
		file.Created, file.Modified, file.Removed)
	if isUniqueViolation(err) {
		return submission.ErrNameTaken.New("file %q version %d", file.Path, file.Version)
	}
	return Error.Wrap(err)
}

func (repo *filesRepo) Get(ctx context.Context, accessionID string) (*submission.File, error) {
	row := repo.q.QueryRowContext(ctx, `
		SELECT `+fileColumns+` FROM files WHERE accession_id = $1`, accessionID)
	file, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, submission.ErrNotFound.New("file %s", accessionID)
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return file, nil
}

func (repo *filesRepo) ListLatestByProject(ctx context.Context, projectID string) ([]submission.File, error) {
	return repo.list(ctx, `
		SELECT DISTINCT ON (path) `+fileColumns+` FROM files
		WHERE project_id = $1 AND removed IS NULL
		ORDER BY path, version DESC`, projectID)
}

func (repo *filesRepo) ListBySubmission(ctx context.Context, submissionID string) ([]submission.File, error) {
	return repo.list(ctx, `
		SELECT DISTINCT ON (path) `+fileColumns+` FROM files
		WHERE submission_id = $1 AND removed IS NULL
		ORDER BY path, version DESC`, submissionID)
}

func (repo *filesRepo) list(ctx context.Context, query string, args ...any) (files []submission.File, err error) {
	rows, err := repo.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { err = errs.Combine(err, Error.Wrap(rows.Close())) }()

	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		files = append(files, *file)
	}
	return files, rows.Err()
}

func (repo *filesRepo) NextVersion(ctx context.Context, projectID, path string) (int, error) {
	var version int
	err := repo.q.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(version), 0) + 1 FROM files
		WHERE project_id = $1 AND path = $2`, projectID, path).Scan(&version)
	if err != nil {
		return 0, Error.Wrap(err)
	}
	return version, nil
}

func (repo *filesRepo) SetSubmission(ctx context.Context, accessionID string, submissionID *string) error {
	result, err := repo.q.ExecContext(ctx, `
		UPDATE files SET submission_id = $2, modified = $3 WHERE accession_id = $1`,
		accessionID, submissionID, time.Now().UTC())
	if err != nil {
		return Error.Wrap(err)
	}
	return affectedOne(result, submission.ErrNotFound.New("file %s", accessionID))
}

func (repo *filesRepo) UpdateIngest(ctx context.Context, accessionID string, status submission.IngestStatus, errorType *submission.ErrorType, errorCount int) error {
	result, err := repo.q.ExecContext(ctx, `
		UPDATE files SET ingest_status = $2, ingest_error_type = $3, ingest_error_count = $4, modified = $5
		WHERE accession_id = $1`,
		accessionID, status, errorType, errorCount, time.Now().UTC())
	if err != nil {
		return Error.Wrap(err)
	}
	return affectedOne(result, submission.ErrNotFound.New("file %s", accessionID))
}

func (repo *filesRepo) Remove(ctx context.Context, accessionID string) error {
	now := time.Now().UTC()
	result, err := repo.q.ExecContext(ctx, `
		UPDATE files SET removed = $2, modified = $2 WHERE accession_id = $1 AND removed IS NULL`,
		accessionID, now)
	if err != nil {
		return Error.Wrap(err)
	}
	return affectedOne(result, submission.ErrNotFound.New("file %s", accessionID))
}

func scanFile(row scanner) (*submission.File, error) {
	var file submission.File
	var encrypted, unencrypted []byte
	err := row.Scan(
		&file.AccessionID, &file.SubmissionID, &file.ProjectID, &file.ObjectID,
		&file.Path, &file.Bytes, &file.Version, &encrypted, &unencrypted,
		&file.IngestStatus, &file.IngestErrorType, &file.IngestErrorCount,
		&file.Created, &file.Modified, &file.Removed)
	if err != nil {
		return nil, err
	}
	if file.EncryptedChecksum, err = decodeChecksum(encrypted); err != nil {
		return nil, err
	}
	if file.UnencryptedChecksum, err = decodeChecksum(unencrypted); err != nil {
		return nil, err
	}
	return &file, nil
}

func encodeChecksum(checksum *submission.Checksum) ([]byte, error) {
	if checksum == nil {
		return nil, nil
	}
	encoded, err := json.Marshal(checksum)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return encoded, nil
}

func decodeChecksum(encoded []byte) (*submission.Checksum, error) {
	if len(encoded) == 0 {
		return nil, nil
	}
	var checksum submission.Checksum
	if err := json.Unmarshal(encoded, &checksum); err != nil {
		return nil, err
	}
	return &checksum, nil
}
