// Copyright (C) 2024 Storj Labs, Inc.
// See LICENSE for copying information.

package clients

import (
	"context"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"submitter.io/submitter/submitter/submission"
)

// AdminConfig configures the archive admin API client.
type AdminConfig struct {
	Endpoint string
	Token    string
}

// Admin drives the archive-side ingest pipeline: it hands files over,
// reports per-file progress and releases finished datasets.
type Admin struct {
	client *httpClient
}

// NewAdmin creates the archive admin API client.
func NewAdmin(log *zap.Logger, config AdminConfig) *Admin {
	return &Admin{
		client: newHTTPClient(log, "admin", config.Endpoint, bearerAuth(config.Token)),
	}
}

// Ingest asks the archive to start ingesting the submission's files.
func (a *Admin) Ingest(ctx context.Context, sub *submission.Submission, files []submission.File) (err error) {
	defer mon.Task()(&ctx)(&err)

	type ingestFile struct {
		Path        string `json:"filepath"`
		AccessionID string `json:"accessionId"`
	}
	payload := struct {
		SubmissionID string       `json:"submissionId"`
		User         string       `json:"user"`
		Files        []ingestFile `json:"files"`
	}{SubmissionID: sub.ID, User: sub.ProjectID}
	for _, file := range files {
		payload.Files = append(payload.Files, ingestFile{Path: file.Path, AccessionID: file.AccessionID})
	}

	_, err = a.client.do(ctx, http.MethodPost, "/ingest", payload)
	return err
}

// FileStatus is one per-file progress report from the archive.
type FileStatus struct {
	Path      string `json:"filepath"`
	Status    string `json:"status"`
	ErrorType string `json:"errorType,omitempty"`
}

// Poll returns the archive's view of the submission's files.
func (a *Admin) Poll(ctx context.Context, sub *submission.Submission) (_ []FileStatus, err error) {
	defer mon.Task()(&ctx)(&err)

	resp, err := a.client.do(ctx, http.MethodGet, "/files?submission="+url.QueryEscape(sub.ID), nil)
	if err != nil {
		return nil, err
	}
	var statuses []FileStatus
	if err := decode(resp, &statuses); err != nil {
		return nil, err
	}
	return statuses, nil
}

// VerifyComplete reports whether the archive considers every file of the
// submission verified.
func (a *Admin) VerifyComplete(ctx context.Context, sub *submission.Submission) (_ bool, err error) {
	defer mon.Task()(&ctx)(&err)

	resp, err := a.client.do(ctx, http.MethodGet, "/submissions/"+url.PathEscape(sub.ID)+"/status", nil)
	if err != nil {
		return false, err
	}
	var status struct {
		Complete bool `json:"complete"`
	}
	if err := decode(resp, &status); err != nil {
		return false, err
	}
	return status.Complete, nil
}

// CreateDataset maps the submission's accession ids into an archive dataset.
func (a *Admin) CreateDataset(ctx context.Context, sub *submission.Submission, accessionIDs []string) (err error) {
	defer mon.Task()(&ctx)(&err)

	_, err = a.client.do(ctx, http.MethodPost, "/dataset", map[string]any{
		"submissionId": sub.ID,
		"accessionIds": accessionIDs,
	})
	return err
}

// ReleaseDataset makes the archive dataset available for access requests.
func (a *Admin) ReleaseDataset(ctx context.Context, sub *submission.Submission) (err error) {
	defer mon.Task()(&ctx)(&err)

	_, err = a.client.do(ctx, http.MethodPost, "/dataset/release/"+url.PathEscape(sub.ID), nil)
	return err
}

// Name implements Pinger.
func (a *Admin) Name() string { return "admin" }

// Ping implements Pinger.
func (a *Admin) Ping(ctx context.Context) error {
	return a.client.ping(ctx, "/ready")
}
