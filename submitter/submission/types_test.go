// Copyright (C) 2024 Storj Labs, Inc.
// See LICENSE for copying information.

package submission_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"submitter.io/submitter/submitter/submission"
	"submitter.io/submitter/submitter/workflow"
)

func TestMintAccession(t *testing.T) {
	bp := submission.MintAccession(workflow.BP, "center-1", "sub-1", "bpimage", "img-1")
	assert.Regexp(t, `^center-1-[0-9a-f]{16}$`, bp)
	// same inputs mint the same id
	assert.Equal(t, bp, submission.MintAccession(workflow.BP, "center-1", "sub-1", "bpimage", "img-1"))
	assert.NotEqual(t, bp, submission.MintAccession(workflow.BP, "center-1", "sub-1", "bpimage", "img-2"))

	fega := submission.MintAccession(workflow.FEGA, "center-1", "sub-1", "study", "s-1")
	assert.NotEqual(t, fega, submission.MintAccession(workflow.FEGA, "center-1", "sub-1", "study", "s-1"))
}

func TestCanTransition(t *testing.T) {
	forward := []submission.IngestStatus{
		submission.IngestAdded,
		submission.IngestReady,
		submission.IngestVerified,
		submission.IngestCompleted,
	}
	for i, from := range forward {
		for j, to := range forward {
			assert.Equal(t, j >= i, submission.CanTransition(from, to), "%s -> %s", from, to)
		}
		assert.True(t, submission.CanTransition(from, submission.IngestError))
	}

	// error is a sink
	for _, to := range forward {
		assert.False(t, submission.CanTransition(submission.IngestError, to))
	}
	assert.True(t, submission.CanTransition(submission.IngestError, submission.IngestError))
}

func TestSubmissionState(t *testing.T) {
	now := time.Now().UTC()
	sub := submission.Submission{ID: "sub-1"}

	require.Equal(t, submission.StateDraft, sub.State(nil))
	require.False(t, sub.Frozen())

	pending := []submission.File{{Path: "a.c4gh", IngestStatus: submission.IngestAdded}}
	require.Equal(t, submission.StateFilesPending, sub.State(pending))

	sub.IngestStarted = &now
	require.Equal(t, submission.StateIngesting, sub.State(pending))

	sub.ReadyAt = &now
	require.Equal(t, submission.StateReady, sub.State(nil))

	sub.PublishedAt = &now
	require.Equal(t, submission.StatePublished, sub.State(nil))
	require.True(t, sub.Frozen())

	sub.AnnouncedAt = &now
	require.Equal(t, submission.StateAnnounced, sub.State(nil))
}
