// Copyright (C) 2024 Storj Labs, Inc.
// See LICENSE for copying information.

package clients

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"submitter.io/submitter/submitter/submission"
)

// MetaxConfig configures the Metax V3 catalog client.
type MetaxConfig struct {
	Endpoint  string
	Token     string
	CatalogID string
}

// Metax indexes published submissions in the Metax V3 metadata catalog.
type Metax struct {
	client  *httpClient
	catalog string
}

// NewMetax creates the catalog client.
func NewMetax(log *zap.Logger, config MetaxConfig) *Metax {
	return &Metax{
		client:  newHTTPClient(log, "metax", config.Endpoint, bearerAuth(config.Token)),
		catalog: config.CatalogID,
	}
}

// MetaxDataset is the catalog-side record for one submission.
type MetaxDataset struct {
	DataCatalog          string           `json:"data_catalog"`
	Title                map[string]string `json:"title"`
	Description          map[string]string `json:"description,omitempty"`
	PersistentIdentifier string           `json:"persistent_identifier,omitempty"`
	Language             []map[string]string `json:"language,omitempty"`
	Actors               []MetaxActor     `json:"actors,omitempty"`
	FieldOfScience       []map[string]string `json:"field_of_science,omitempty"`
	Keyword              []string         `json:"keyword,omitempty"`
	Spatial              []MetaxSpatial   `json:"spatial,omitempty"`
	Projects             []MetaxProject   `json:"projects,omitempty"`
	AccessRights         *MetaxAccessRights `json:"access_rights,omitempty"`
}

// MetaxActor is a catalog actor with a role.
type MetaxActor struct {
	Roles  []string `json:"roles"`
	Person *struct {
		Name string `json:"name"`
	} `json:"person,omitempty"`
	Organization *struct {
		Name map[string]string `json:"pref_label,omitempty"`
	} `json:"organization,omitempty"`
}

// MetaxSpatial is a catalog location entry.
type MetaxSpatial struct {
	GeographicName string    `json:"geographic_name,omitempty"`
	Custom         []float64 `json:"custom_wkt,omitempty"`
}

// MetaxProject carries funder information.
type MetaxProject struct {
	Title   map[string]string `json:"title,omitempty"`
	Funders []struct {
		Organization map[string]string `json:"organization,omitempty"`
		FunderType   string            `json:"funder_type,omitempty"`
	} `json:"funding,omitempty"`
}

// MetaxAccessRights maps submission rights to catalog access rights.
type MetaxAccessRights struct {
	License []map[string]string `json:"license,omitempty"`
}

// MapDataset converts the submission's DataCite-shaped metadata into the
// catalog record: creators become actors with the creator role, subjects
// split into field-of-science codes and keywords, geolocations become
// spatial entries, funding references become projects, rights become
// access rights.
func MapDataset(catalogID string, sub *submission.Submission, doi string) MetaxDataset {
	dataset := MetaxDataset{
		DataCatalog:          catalogID,
		Title:                map[string]string{"en": sub.Title},
		PersistentIdentifier: doi,
	}
	if sub.Description != "" {
		dataset.Description = map[string]string{"en": sub.Description}
	}
	meta := sub.Metadata

	if meta.Language != "" {
		dataset.Language = []map[string]string{{"url": languageURI(meta.Language)}}
	}
	for _, creator := range meta.Creators {
		actor := MetaxActor{Roles: []string{"creator"}}
		actor.Person = &struct {
			Name string `json:"name"`
		}{Name: creator.Name}
		dataset.Actors = append(dataset.Actors, actor)
	}
	for _, subject := range meta.Subjects {
		if subject.Scheme == "Field of Science" || subject.Scheme == "FOS" {
			dataset.FieldOfScience = append(dataset.FieldOfScience,
				map[string]string{"url": subject.Subject})
			continue
		}
		dataset.Keyword = append(dataset.Keyword, subject.Subject)
	}
	dataset.Keyword = append(dataset.Keyword, meta.Keywords...)
	for _, location := range meta.GeoLocations {
		spatial := MetaxSpatial{GeographicName: location.Place}
		if location.Point != nil {
			spatial.Custom = []float64{location.Point.Longitude, location.Point.Latitude}
		}
		dataset.Spatial = append(dataset.Spatial, spatial)
	}
	for _, funding := range meta.FundingReferences {
		project := MetaxProject{}
		project.Funders = append(project.Funders, struct {
			Organization map[string]string `json:"organization,omitempty"`
			FunderType   string            `json:"funder_type,omitempty"`
		}{Organization: map[string]string{"en": funding.FunderName}})
		dataset.Projects = append(dataset.Projects, project)
	}
	if len(meta.Rights) > 0 {
		access := &MetaxAccessRights{}
		for _, rights := range meta.Rights {
			entry := map[string]string{}
			if rights.RightsURI != "" {
				entry["url"] = rights.RightsURI
			} else {
				entry["title"] = rights.Rights
			}
			access.License = append(access.License, entry)
		}
		dataset.AccessRights = access
	}
	return dataset
}

// languageURI maps a BCP47 tag onto the lexvo URI the catalog expects.
func languageURI(tag string) string {
	return "http://lexvo.org/id/iso639-3/" + tag
}

type metaxResponse struct {
	ID                   string `json:"id"`
	PersistentIdentifier string `json:"persistent_identifier"`
}

// UpsertDataset creates or updates the catalog record for a submission and
// returns its persistent identifier.
func (m *Metax) UpsertDataset(ctx context.Context, dataset MetaxDataset) (pid string, err error) {
	defer mon.Task()(&ctx)(&err)

	if dataset.DataCatalog == "" {
		dataset.DataCatalog = m.catalog
	}
	resp, err := m.client.do(ctx, http.MethodPost, "/v3/datasets", dataset)
	if err != nil {
		return "", err
	}
	var decoded metaxResponse
	if err := decode(resp, &decoded); err != nil {
		return "", err
	}
	if decoded.PersistentIdentifier != "" {
		return decoded.PersistentIdentifier, nil
	}
	return decoded.ID, nil
}

// Name implements Pinger.
func (m *Metax) Name() string { return "metax" }

// Ping implements Pinger.
func (m *Metax) Ping(ctx context.Context) error {
	return m.client.ping(ctx, "/v3/datasets?limit=1")
}
