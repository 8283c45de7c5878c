// Copyright (C) 2024 Storj Labs, Inc.
// See LICENSE for copying information.

package clients

import (
	"context"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// S3Config configures the object-store client.
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

// ObjectStore inspects the buckets submitters stage their files in. The
// system never moves bulk data; it only verifies buckets and lists keys.
type ObjectStore struct {
	log    *zap.Logger
	client *minio.Client
}

// NewObjectStore creates the object-store client.
func NewObjectStore(log *zap.Logger, config S3Config) (*ObjectStore, error) {
	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
		Secure: config.UseSSL,
		Region: config.Region,
	})
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return &ObjectStore{log: log.Named("s3"), client: client}, nil
}

// HeadBucket verifies the bucket exists and is reachable.
func (store *ObjectStore) HeadBucket(ctx context.Context, bucket string) (err error) {
	defer mon.Task()(&ctx)(&err)

	exists, err := store.client.BucketExists(ctx, bucket)
	if err != nil {
		return ErrTransient.New("s3: %v", err)
	}
	if !exists {
		return ErrPermanent.New("bucket %q does not exist", bucket)
	}
	return nil
}

// GetBucketPolicy returns the bucket's policy document.
func (store *ObjectStore) GetBucketPolicy(ctx context.Context, bucket string) (policy string, err error) {
	defer mon.Task()(&ctx)(&err)

	policy, err = store.client.GetBucketPolicy(ctx, bucket)
	if err != nil {
		return "", ErrTransient.New("s3: %v", err)
	}
	return policy, nil
}

// PutBucketPolicy replaces the bucket's policy document.
func (store *ObjectStore) PutBucketPolicy(ctx context.Context, bucket, policy string) (err error) {
	defer mon.Task()(&ctx)(&err)

	if err := store.client.SetBucketPolicy(ctx, bucket, policy); err != nil {
		return ErrTransient.New("s3: %v", err)
	}
	return nil
}

// Name implements Pinger.
func (store *ObjectStore) Name() string { return "s3" }

// Ping implements Pinger.
func (store *ObjectStore) Ping(ctx context.Context) error {
	if _, err := store.client.ListBuckets(ctx); err != nil {
		return ErrTransient.New("s3: %v", err)
	}
	return nil
}

// ListObjects returns the keys under a prefix.
func (store *ObjectStore) ListObjects(ctx context.Context, bucket, prefix string) (keys []string, err error) {
	defer mon.Task()(&ctx)(&err)

	for object := range store.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if object.Err != nil {
			return nil, ErrTransient.New("s3: %v", object.Err)
		}
		keys = append(keys, object.Key)
	}
	return keys, nil
}
