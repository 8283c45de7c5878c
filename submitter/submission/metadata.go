// Copyright (C) 2024 Storj Labs, Inc.
// See LICENSE for copying information.

package submission

import (
	"bytes"
	"encoding/json"
)

// Metadata is the DataCite-shaped descriptive record embedded in a
// submission. Updates merge rather than overwrite; see Patch.
type Metadata struct {
	Creators          []Creator          `json:"creators,omitempty"`
	Contributors      []Contributor      `json:"contributors,omitempty"`
	Subjects          []Subject          `json:"subjects,omitempty"`
	Rights            []Rights           `json:"rights,omitempty"`
	GeoLocations      []GeoLocation      `json:"geoLocations,omitempty"`
	Dates             []Date             `json:"dates,omitempty"`
	FundingReferences []FundingReference `json:"fundingReferences,omitempty"`
	Keywords          []string           `json:"keywords,omitempty"`
	Language          string             `json:"language,omitempty"`
	Publisher         string             `json:"publisher,omitempty"`
}

// Creator names one dataset author.
type Creator struct {
	Name        string        `json:"name"`
	GivenName   string        `json:"givenName,omitempty"`
	FamilyName  string        `json:"familyName,omitempty"`
	Affiliation []Affiliation `json:"affiliation,omitempty"`
}

// Contributor is a creator with a DataCite contributor type.
type Contributor struct {
	Name            string        `json:"name"`
	ContributorType string        `json:"contributorType"`
	Affiliation     []Affiliation `json:"affiliation,omitempty"`
}

// Affiliation names an organisation.
type Affiliation struct {
	Name                  string `json:"name"`
	AffiliationIdentifier string `json:"affiliationIdentifier,omitempty"`
}

// Subject is one classification entry; Scheme distinguishes field-of-science
// codes from free keywords.
type Subject struct {
	Subject string `json:"subject"`
	Scheme  string `json:"subjectScheme,omitempty"`
}

// Rights describes a license.
type Rights struct {
	Rights    string `json:"rights"`
	RightsURI string `json:"rightsUri,omitempty"`
}

// GeoLocation places the data geographically.
type GeoLocation struct {
	Place string            `json:"geoLocationPlace,omitempty"`
	Point *GeoLocationPoint `json:"geoLocationPoint,omitempty"`
}

// GeoLocationPoint is a WGS84 coordinate.
type GeoLocationPoint struct {
	Latitude  float64 `json:"pointLatitude"`
	Longitude float64 `json:"pointLongitude"`
}

// Date is a typed DataCite date entry.
type Date struct {
	Date     string `json:"date"`
	DateType string `json:"dateType"`
}

// FundingReference names a funder of the dataset.
type FundingReference struct {
	FunderName       string `json:"funderName"`
	FunderIdentifier string `json:"funderIdentifier,omitempty"`
	AwardNumber      string `json:"awardNumber,omitempty"`
}

// Patch deep-merges a raw JSON patch into the metadata. Keys set to null or
// to an empty value explicitly remove the stored value; absent keys keep it.
func (m *Metadata) Patch(patch json.RawMessage) error {
	if len(bytes.TrimSpace(patch)) == 0 {
		return nil
	}

	current, err := json.Marshal(m)
	if err != nil {
		return Error.Wrap(err)
	}
	var base map[string]any
	if err := json.Unmarshal(current, &base); err != nil {
		return Error.Wrap(err)
	}
	if base == nil {
		base = map[string]any{}
	}

	var overlay map[string]any
	if err := json.Unmarshal(patch, &overlay); err != nil {
		return ErrValidation.New("metadata patch is not an object: %v", err)
	}

	merged := mergeMaps(base, overlay)

	data, err := json.Marshal(merged)
	if err != nil {
		return Error.Wrap(err)
	}
	var next Metadata
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&next); err != nil {
		return ErrValidation.New("metadata patch does not fit the record: %v", err)
	}

	*m = next
	return nil
}

// mergeMaps merges overlay into base: nested objects merge recursively,
// everything else replaces, and null or empty values remove the key.
func mergeMaps(base, overlay map[string]any) map[string]any {
	for key, value := range overlay {
		if isEmptyValue(value) {
			delete(base, key)
			continue
		}
		if sub, ok := value.(map[string]any); ok {
			if existing, ok := base[key].(map[string]any); ok {
				base[key] = mergeMaps(existing, sub)
				continue
			}
		}
		base[key] = value
	}
	return base
}

func isEmptyValue(value any) bool {
	switch typed := value.(type) {
	case nil:
		return true
	case string:
		return typed == ""
	case []any:
		return len(typed) == 0
	case map[string]any:
		return len(typed) == 0
	}
	return false
}
