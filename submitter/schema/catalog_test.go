// Copyright (C) 2024 Storj Labs, Inc.
// See LICENSE for copying information.

package schema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"submitter.io/submitter/submitter/schema"
)

func TestLoadDefault(t *testing.T) {
	catalog, err := schema.LoadDefault()
	require.NoError(t, err)

	infos := catalog.Schemas()
	require.Len(t, infos, 14)
	assert.Equal(t, "study", infos[0].Name)
	assert.Equal(t, "EGA", infos[0].Provider)

	for _, name := range []string{
		"study", "sample", "experiment", "run", "analysis", "dac", "policy", "dataset",
		"bpdataset", "bpsample", "bpimage", "bpobservation", "bpstaining", "bprems",
	} {
		assert.True(t, catalog.Has(name), name)
	}
	assert.False(t, catalog.Has("nope"))

	_, err = catalog.SchemaFor("study")
	require.NoError(t, err)
	_, err = catalog.SchemaFor("nope")
	require.True(t, schema.ErrNotFound.Has(err))
}

func TestValidateJSON(t *testing.T) {
	catalog, err := schema.LoadDefault()
	require.NoError(t, err)

	valid := map[string]any{
		"alias": "study-1",
		"title": "A study",
	}
	assert.Empty(t, catalog.ValidateJSON("study", valid))

	missing := map[string]any{
		"alias": "study-1",
	}
	violations := catalog.ValidateJSON("study", missing)
	require.NotEmpty(t, violations)

	violations = catalog.ValidateJSON("nope", valid)
	require.Len(t, violations, 1)
	assert.Contains(t, violations[0].Message, "nope")
}

func TestValidateJSONReferences(t *testing.T) {
	catalog, err := schema.LoadDefault()
	require.NoError(t, err)

	doc := map[string]any{
		"alias": "obs-1",
		"bpsample_ref": map[string]any{
			"refname": "sample-1",
		},
	}
	assert.Empty(t, catalog.ValidateJSON("bpobservation", doc))

	// refname is mandatory on a reference site
	doc["bpsample_ref"] = map[string]any{"accession": "acc-1"}
	assert.NotEmpty(t, catalog.ValidateJSON("bpobservation", doc))
}

func TestValidateXML(t *testing.T) {
	catalog, err := schema.LoadDefault()
	require.NoError(t, err)

	valid := []byte(`<STUDY_SET><STUDY alias="s1"><TITLE>My study</TITLE></STUDY></STUDY_SET>`)
	assert.Empty(t, catalog.ValidateXML("study", valid))

	single := []byte(`<STUDY alias="s1" accession="already-minted"/>`)
	assert.Empty(t, catalog.ValidateXML("study", single))

	malformed := []byte(`<STUDY_SET><STUDY alias="s1">`)
	assert.NotEmpty(t, catalog.ValidateXML("study", malformed))

	unknownElement := []byte(`<STUDY alias="s1"><NO_SUCH_ELEMENT/></STUDY>`)
	violations := catalog.ValidateXML("study", unknownElement)
	require.NotEmpty(t, violations)

	violations = catalog.ValidateXML("nope", valid)
	require.Len(t, violations, 1)
}
