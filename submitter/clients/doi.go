// Copyright (C) 2024 Storj Labs, Inc.
// See LICENSE for copying information.

package clients

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// DOIPayload is the DataCite-shaped attributes document sent when drafting
// a DOI.
type DOIPayload struct {
	Prefix    string `json:"prefix,omitempty"`
	Suffix    string `json:"suffix,omitempty"`
	URL       string `json:"url,omitempty"`
	Titles    []struct {
		Title string `json:"title"`
	} `json:"titles,omitempty"`
	Publisher       string `json:"publisher,omitempty"`
	PublicationYear int    `json:"publicationYear,omitempty"`
	Attributes      map[string]any `json:"-"`
}

// DataCiteConfig configures the DataCite REST client.
type DataCiteConfig struct {
	Endpoint string
	Prefix   string
	Username string
	Password string
}

// DataCite mints DOIs through the DataCite REST API.
type DataCite struct {
	client *httpClient
	prefix string
}

// NewDataCite creates the DataCite client.
func NewDataCite(log *zap.Logger, config DataCiteConfig) *DataCite {
	return &DataCite{
		client: newHTTPClient(log, "datacite", config.Endpoint,
			basicAuth(config.Username, config.Password)),
		prefix: config.Prefix,
	}
}

type dataciteEnvelope struct {
	Data struct {
		ID         string         `json:"id"`
		Attributes map[string]any `json:"attributes"`
	} `json:"data"`
}

// Draft registers a draft DOI and returns it.
func (dc *DataCite) Draft(ctx context.Context, payload DOIPayload) (doi string, err error) {
	defer mon.Task()(&ctx)(&err)

	attributes := map[string]any{"prefix": dc.prefix}
	if payload.Suffix != "" {
		attributes["doi"] = fmt.Sprintf("%s/%s", dc.prefix, payload.Suffix)
	}
	if payload.URL != "" {
		attributes["url"] = payload.URL
	}
	if len(payload.Titles) > 0 {
		attributes["titles"] = payload.Titles
	}
	if payload.Publisher != "" {
		attributes["publisher"] = payload.Publisher
	}
	if payload.PublicationYear != 0 {
		attributes["publicationYear"] = payload.PublicationYear
	}
	for key, value := range payload.Attributes {
		attributes[key] = value
	}

	body := map[string]any{
		"data": map[string]any{"type": "dois", "attributes": attributes},
	}
	resp, err := dc.client.do(ctx, http.MethodPost, "/dois", body)
	if err != nil {
		return "", err
	}
	var envelope dataciteEnvelope
	if err := decode(resp, &envelope); err != nil {
		return "", err
	}
	if envelope.Data.ID == "" {
		return "", Error.New("datacite draft returned no DOI")
	}
	return envelope.Data.ID, nil
}

// Publish promotes a draft DOI to findable.
func (dc *DataCite) Publish(ctx context.Context, doi string) (err error) {
	defer mon.Task()(&ctx)(&err)

	body := map[string]any{
		"data": map[string]any{
			"type":       "dois",
			"attributes": map[string]any{"event": "publish"},
		},
	}
	_, err = dc.client.do(ctx, http.MethodPut, "/dois/"+doi, body)
	return err
}

// Delete removes a draft DOI. Findable DOIs cannot be deleted.
func (dc *DataCite) Delete(ctx context.Context, doi string) (err error) {
	defer mon.Task()(&ctx)(&err)
	_, err = dc.client.do(ctx, http.MethodDelete, "/dois/"+doi, nil)
	return err
}

// Name implements Pinger.
func (dc *DataCite) Name() string { return "datacite" }

// Ping implements Pinger.
func (dc *DataCite) Ping(ctx context.Context) error {
	return dc.client.ping(ctx, "/heartbeat")
}

// PIDConfig configures the CSC PID service client, the deployment-local
// alternative to DataCite.
type PIDConfig struct {
	Endpoint string
	APIKey   string
}

// PID mints DOIs through the CSC PID service.
type PID struct {
	client *httpClient
}

// NewPID creates the PID client.
func NewPID(log *zap.Logger, config PIDConfig) *PID {
	return &PID{
		client: newHTTPClient(log, "pid", config.Endpoint,
			headerAuth("apikey", config.APIKey)),
	}
}

// Draft registers a DOI for the given payload and returns it.
func (p *PID) Draft(ctx context.Context, payload DOIPayload) (doi string, err error) {
	defer mon.Task()(&ctx)(&err)

	resp, err := p.client.do(ctx, http.MethodPost, "/v1/pid/doi", map[string]any{
		"url":  payload.URL,
		"type": "DOI",
		"persist": 0,
	})
	if err != nil {
		return "", err
	}
	doi = string(resp.Body)
	if len(doi) == 0 {
		return "", Error.New("pid service returned no DOI")
	}
	return trimQuotes(doi), nil
}

// Publish is a no-op for the PID service; DOIs are live at mint time.
func (p *PID) Publish(ctx context.Context, doi string) error { return nil }

// Delete is unsupported by the PID service.
func (p *PID) Delete(ctx context.Context, doi string) error {
	return ErrPermanent.New("pid service does not delete DOIs")
}

// Name implements Pinger.
func (p *PID) Name() string { return "pid" }

// Ping implements Pinger.
func (p *PID) Ping(ctx context.Context) error {
	return p.client.ping(ctx, "/")
}

func trimQuotes(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
