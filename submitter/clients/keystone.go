// Copyright (C) 2024 Storj Labs, Inc.
// See LICENSE for copying information.

package clients

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// KeystoneConfig configures the OpenStack identity client.
type KeystoneConfig struct {
	Endpoint string
	Token    string
}

// Keystone issues per-project EC2 credentials so submitters can stage
// files into project buckets.
type Keystone struct {
	client *httpClient
}

// NewKeystone creates the identity client.
func NewKeystone(log *zap.Logger, config KeystoneConfig) *Keystone {
	return &Keystone{
		client: newHTTPClient(log, "keystone", config.Endpoint,
			headerAuth("X-Auth-Token", config.Token)),
	}
}

// EC2Credentials is a temporary S3-compatible credential pair.
type EC2Credentials struct {
	Access string    `json:"access"`
	Secret string    `json:"secret"`
	Expiry time.Time `json:"expiry"`
}

// IssueEC2Credentials creates credentials scoped to the given project.
func (k *Keystone) IssueEC2Credentials(ctx context.Context, projectID string) (_ EC2Credentials, err error) {
	defer mon.Task()(&ctx)(&err)

	resp, err := k.client.do(ctx, http.MethodPost, "/v3/users/self/credentials/OS-EC2", map[string]any{
		"tenant_id": projectID,
	})
	if err != nil {
		return EC2Credentials{}, err
	}
	var decoded struct {
		Credential struct {
			Access string `json:"access"`
			Secret string `json:"secret"`
		} `json:"credential"`
	}
	if err := decode(resp, &decoded); err != nil {
		return EC2Credentials{}, err
	}
	return EC2Credentials{
		Access: decoded.Credential.Access,
		Secret: decoded.Credential.Secret,
		Expiry: time.Now().Add(8 * time.Hour),
	}, nil
}

// Name implements Pinger.
func (k *Keystone) Name() string { return "keystone" }

// Ping implements Pinger.
func (k *Keystone) Ping(ctx context.Context) error {
	return k.client.ping(ctx, "/v3")
}
