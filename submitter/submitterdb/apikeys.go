// Copyright (C) 2024 Storj Labs, Inc.
// See LICENSE for copying information.

package submitterdb

import (
	"context"
	"database/sql"
	"errors"

	"github.com/zeebo/errs"

	"submitter.io/submitter/submitter/auth"
)

// apiKeysRepo implements auth.APIKeys.
type apiKeysRepo struct {
	q querier
}

const apiKeyColumns = `id, user_id, name, salted_hash, created_at, expires_at`

func (repo *apiKeysRepo) Create(ctx context.Context, key auth.APIKey) error {
	_, err := repo.q.ExecContext(ctx, `
		INSERT INTO api_keys (`+apiKeyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		key.ID, key.UserID, key.Name, key.SaltedHash, key.CreatedAt, key.ExpiresAt)
	return Error.Wrap(err)
}

func (repo *apiKeysRepo) Get(ctx context.Context, id string) (*auth.APIKey, error) {
	var key auth.APIKey
	err := repo.q.QueryRowContext(ctx, `
		SELECT `+apiKeyColumns+` FROM api_keys WHERE id = $1`, id).
		Scan(&key.ID, &key.UserID, &key.Name, &key.SaltedHash, &key.CreatedAt, &key.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNoAPIKey.New("%s", id)
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return &key, nil
}

func (repo *apiKeysRepo) ListByUser(ctx context.Context, userID string) (keys []auth.APIKey, err error) {
	rows, err := repo.q.QueryContext(ctx, `
		SELECT `+apiKeyColumns+` FROM api_keys WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { err = errs.Combine(err, Error.Wrap(rows.Close())) }()

	for rows.Next() {
		var key auth.APIKey
		if err := rows.Scan(&key.ID, &key.UserID, &key.Name, &key.SaltedHash, &key.CreatedAt, &key.ExpiresAt); err != nil {
			return nil, Error.Wrap(err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (repo *apiKeysRepo) Delete(ctx context.Context, userID, id string) error {
	result, err := repo.q.ExecContext(ctx, `
		DELETE FROM api_keys WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return Error.Wrap(err)
	}
	return affectedOne(result, auth.ErrNoAPIKey.New("%s", id))
}
