// Copyright (C) 2024 Storj Labs, Inc.
// See LICENSE for copying information.

package clients

import (
	"context"
	"net/http"

	"go.uber.org/zap"
)

// REMSConfig configures the access-management client.
type REMSConfig struct {
	Endpoint string
	UserID   string
	APIKey   string
}

// REMS registers published datasets with the access-management service so
// applicants can request entitlements.
type REMS struct {
	client *httpClient
}

// NewREMS creates the access-management client.
func NewREMS(log *zap.Logger, config REMSConfig) *REMS {
	authorize := func(req *http.Request) {
		req.Header.Set("x-rems-api-key", config.APIKey)
		req.Header.Set("x-rems-user-id", config.UserID)
	}
	return &REMS{client: newHTTPClient(log, "rems", config.Endpoint, authorize)}
}

type remsCreated struct {
	ID      int  `json:"id"`
	Success bool `json:"success"`
}

// CreateResource registers the dataset DOI as a REMS resource and returns
// the resource id.
func (r *REMS) CreateResource(ctx context.Context, resID string, organizationID string, licenses []int) (id int, err error) {
	defer mon.Task()(&ctx)(&err)

	resp, err := r.client.do(ctx, http.MethodPost, "/api/resources/create", map[string]any{
		"resid":        resID,
		"organization": map[string]string{"organization/id": organizationID},
		"licenses":     licenses,
	})
	if err != nil {
		return 0, err
	}
	var created remsCreated
	if err := decode(resp, &created); err != nil {
		return 0, err
	}
	if !created.Success {
		return 0, ErrPermanent.New("rems refused the resource")
	}
	return created.ID, nil
}

// Localization is the per-language title of a catalogue item.
type Localization struct {
	Title   string `json:"title"`
	InfoURL string `json:"infourl,omitempty"`
}

// CreateCatalogueItem links the resource to an application workflow and
// returns the catalogue item id.
func (r *REMS) CreateCatalogueItem(ctx context.Context, workflowID, resourceID int, organizationID string, localizations map[string]Localization) (id int, err error) {
	defer mon.Task()(&ctx)(&err)

	resp, err := r.client.do(ctx, http.MethodPost, "/api/catalogue-items/create", map[string]any{
		"form":         nil,
		"resid":        resourceID,
		"wfid":         workflowID,
		"organization": map[string]string{"organization/id": organizationID},
		"localizations": localizations,
		"enabled":      true,
	})
	if err != nil {
		return 0, err
	}
	var created remsCreated
	if err := decode(resp, &created); err != nil {
		return 0, err
	}
	if !created.Success {
		return 0, ErrPermanent.New("rems refused the catalogue item")
	}
	return created.ID, nil
}

// ReleaseCatalogueItem enables the catalogue item so applicants can request
// entitlements once the dataset is released on the archive side.
func (r *REMS) ReleaseCatalogueItem(ctx context.Context, itemID int) (err error) {
	defer mon.Task()(&ctx)(&err)

	resp, err := r.client.do(ctx, http.MethodPut, "/api/catalogue-items/enabled", map[string]any{
		"id":      itemID,
		"enabled": true,
	})
	if err != nil {
		return err
	}
	var result remsCreated
	if err := decode(resp, &result); err != nil {
		return err
	}
	if !result.Success {
		return ErrPermanent.New("rems refused to enable catalogue item %d", itemID)
	}
	return nil
}

// Name implements Pinger.
func (r *REMS) Name() string { return "rems" }

// Ping implements Pinger.
func (r *REMS) Ping(ctx context.Context) error {
	return r.client.ping(ctx, "/api/health")
}
