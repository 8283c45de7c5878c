// Copyright (C) 2024 Storj Labs, Inc.
// See LICENSE for copying information.

package xmlproc_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"submitter.io/submitter/submitter/schema"
	"submitter.io/submitter/submitter/submission"
	"submitter.io/submitter/submitter/workflow"
	"submitter.io/submitter/submitter/xmlproc"
)

func newTestProcessor(t *testing.T) *xmlproc.Processor {
	catalog, err := schema.LoadDefault()
	require.NoError(t, err)
	return xmlproc.NewProcessor(zaptest.NewLogger(t), catalog, "center-1")
}

func fegaSubmission() *submission.Submission {
	return &submission.Submission{ID: "sub-1", ProjectID: "project-1", Workflow: workflow.FEGA}
}

func bpSubmission() *submission.Submission {
	return &submission.Submission{ID: "sub-1", ProjectID: "project-1", Workflow: workflow.BP}
}

func TestProcessStudySet(t *testing.T) {
	processor := newTestProcessor(t)

	result, err := processor.Process(context.Background(), fegaSubmission(), nil, []xmlproc.Part{{
		ObjectType: "study",
		Data: []byte(`<STUDY_SET>
			<STUDY alias="s1"><TITLE>First   study</TITLE></STUDY>
			<STUDY alias="s2"><TITLE>Second study</TITLE></STUDY>
		</STUDY_SET>`),
	}})
	require.NoError(t, err)
	require.Empty(t, result.Problems)
	require.Len(t, result.Objects, 2)

	first := result.Objects[0]
	assert.Equal(t, "study", first.ObjectType)
	assert.Equal(t, "s1", first.Name)
	assert.Equal(t, "First study", first.Title)
	assert.NotEmpty(t, first.AccessionID)
	assert.Equal(t, "sub-1", first.SubmissionID)
	assert.Equal(t, "project-1", first.ProjectID)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(first.Document, &doc))
	assert.Equal(t, "s1", doc["alias"])
	assert.Equal(t, "First study", doc["title"])
	assert.Equal(t, first.AccessionID, doc["accession"])

	// the stored XML carries the minted accession
	assert.Contains(t, string(first.XML), `accession="`+first.AccessionID+`"`)

	for _, card := range result.Cardinality {
		if card.ObjectType == "study" {
			assert.Equal(t, 2, card.Count)
			assert.False(t, card.AllowMultiple)
		}
	}
}

func TestProcessSingleObjectRoot(t *testing.T) {
	processor := newTestProcessor(t)

	result, err := processor.Process(context.Background(), fegaSubmission(), nil, []xmlproc.Part{{
		ObjectType: "study",
		Data:       []byte(`<STUDY alias="s1"><TITLE>Only one</TITLE></STUDY>`),
	}})
	require.NoError(t, err)
	require.Empty(t, result.Problems)
	require.Len(t, result.Objects, 1)
}

func TestProcessAccessionDeterminism(t *testing.T) {
	processor := newTestProcessor(t)
	part := xmlproc.Part{
		ObjectType: "bpsample",
		Data:       []byte(`<BPSAMPLE alias="sample-1"/>`),
	}

	first, err := processor.Process(context.Background(), bpSubmission(), nil, []xmlproc.Part{part})
	require.NoError(t, err)
	require.Empty(t, first.Problems)
	require.Len(t, first.Objects, 1)

	second, err := processor.Process(context.Background(), bpSubmission(), nil, []xmlproc.Part{part})
	require.NoError(t, err)
	require.Len(t, second.Objects, 1)

	// BigPicture accessions replay deterministically
	assert.Equal(t, first.Objects[0].AccessionID, second.Objects[0].AccessionID)
	assert.Regexp(t, `^center-1-[0-9a-f]{16}$`, first.Objects[0].AccessionID)
}

func TestProcessResolvesReferences(t *testing.T) {
	processor := newTestProcessor(t)

	existing := []submission.MetadataObject{{
		AccessionID: "center-1-aaaaaaaaaaaaaaaa",
		ObjectType:  "bpsample",
		Name:        "sample-1",
	}}

	result, err := processor.Process(context.Background(), bpSubmission(), existing, []xmlproc.Part{{
		ObjectType: "bpobservation",
		Data:       []byte(`<BPOBSERVATION alias="obs-1"><BPSAMPLE_REF refname="sample-1"/></BPOBSERVATION>`),
	}})
	require.NoError(t, err)
	require.Empty(t, result.Problems)
	require.Len(t, result.Objects, 1)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(result.Objects[0].Document, &doc))
	ref, ok := doc["bpsample_ref"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "sample-1", ref["refname"])
	assert.Equal(t, "center-1-aaaaaaaaaaaaaaaa", ref["accession"])

	assert.Contains(t, string(result.Objects[0].XML), `accession="center-1-aaaaaaaaaaaaaaaa"`)
}

func TestProcessReferencesWithinBundle(t *testing.T) {
	processor := newTestProcessor(t)

	// the observation references a sample shipped in the same bundle
	result, err := processor.Process(context.Background(), bpSubmission(), nil, []xmlproc.Part{
		{
			ObjectType: "bpsample",
			Data:       []byte(`<BPSAMPLE alias="sample-1"/>`),
		},
		{
			ObjectType: "bpobservation",
			Data:       []byte(`<BPOBSERVATION alias="obs-1"><BPSAMPLE_REF refname="sample-1"/></BPOBSERVATION>`),
		},
	})
	require.NoError(t, err)
	require.Empty(t, result.Problems)
	require.Len(t, result.Objects, 2)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(result.Objects[1].Document, &doc))
	ref := doc["bpsample_ref"].(map[string]any)
	assert.Equal(t, result.Objects[0].AccessionID, ref["accession"])
}

func TestProcessRejectsDanglingReference(t *testing.T) {
	processor := newTestProcessor(t)

	result, err := processor.Process(context.Background(), bpSubmission(), nil, []xmlproc.Part{{
		ObjectType: "bpobservation",
		Data:       []byte(`<BPOBSERVATION alias="obs-1"><BPSAMPLE_REF refname="missing-sample"/></BPOBSERVATION>`),
	}})
	require.NoError(t, err)
	require.Nil(t, result.Objects)
	require.Len(t, result.Problems, 1)

	problem := result.Problems[0]
	assert.Equal(t, xmlproc.KindReference, problem.Kind)
	assert.Equal(t, "bpsample", problem.ObjectType)
	assert.Equal(t, "obs-1", problem.From)
	assert.Equal(t, "missing-sample", problem.ToName)
}

func TestProcessDuplicateNames(t *testing.T) {
	processor := newTestProcessor(t)

	existing := []submission.MetadataObject{{
		AccessionID: "existing-1",
		ObjectType:  "bpsample",
		Name:        "sample-1",
	}}

	result, err := processor.Process(context.Background(), bpSubmission(), existing, []xmlproc.Part{{
		ObjectType: "bpsample",
		Data: []byte(`<BPSAMPLE_SET>
			<BPSAMPLE alias="sample-1"/>
			<BPSAMPLE alias="sample-2"/>
			<BPSAMPLE alias="sample-2"/>
		</BPSAMPLE_SET>`),
	}})
	require.NoError(t, err)
	require.Nil(t, result.Objects)
	require.Len(t, result.Problems, 2)
	for _, problem := range result.Problems {
		assert.Equal(t, xmlproc.KindDuplicateName, problem.Kind)
	}
}

func TestProcessAccumulatesProblems(t *testing.T) {
	processor := newTestProcessor(t)

	result, err := processor.Process(context.Background(), fegaSubmission(), nil, []xmlproc.Part{
		{
			ObjectType: "study",
			Data:       []byte(`<STUDY_SET><STUDY alias="s1">`),
		},
		{
			ObjectType: "bpimage",
			Data:       []byte(`<BPIMAGE alias="i1"/>`),
		},
		{
			ObjectType: "study",
			Data:       []byte(`<STUDY><TITLE>No alias</TITLE></STUDY>`),
		},
	})
	require.NoError(t, err)
	require.Nil(t, result.Objects)
	// every defect of the bundle is reported at once
	require.GreaterOrEqual(t, len(result.Problems), 3)

	kinds := map[string]bool{}
	for _, problem := range result.Problems {
		kinds[problem.Kind] = true
		assert.NotEmpty(t, problem.Message)
	}
	assert.True(t, kinds[xmlproc.KindXMLSchema])
}

func TestProcessUnexpectedRoot(t *testing.T) {
	processor := newTestProcessor(t)

	result, err := processor.Process(context.Background(), fegaSubmission(), nil, []xmlproc.Part{{
		ObjectType: "study",
		Data:       []byte(`<SAMPLE alias="s1"/>`),
	}})
	require.NoError(t, err)
	require.Nil(t, result.Objects)
	require.NotEmpty(t, result.Problems)
}
