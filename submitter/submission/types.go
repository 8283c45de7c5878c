// Copyright (C) 2024 Storj Labs, Inc.
// See LICENSE for copying information.

// Package submission owns the submission entity, its contained metadata
// objects, file references and downstream registrations, and the state
// machine that governs the path from draft to announced.
package submission

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/google/uuid"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"

	"submitter.io/submitter/submitter/workflow"
)

var (
	// Error is the default error class for the submission package.
	Error = errs.Class("submission")
	// ErrNotFound is returned when an entity does not exist.
	ErrNotFound = errs.Class("not found")
	// ErrNameTaken is returned on unique name collisions.
	ErrNameTaken = errs.Class("name taken")
	// ErrFrozen is returned for mutations against a published submission.
	ErrFrozen = errs.Class("submission is published")
	// ErrValidation is returned for schema and rule violations.
	ErrValidation = errs.Class("validation")
	// ErrNotReady is returned when publish is invoked before the gate passes.
	ErrNotReady = errs.Class("not ready")

	mon = monkit.Package()
)

// State is the derived lifecycle state of a submission.
type State string

// Lifecycle states.
const (
	StateDraft        State = "draft"
	StateFilesPending State = "files-pending"
	StateIngesting    State = "ingesting"
	StateReady        State = "ready"
	StatePublished    State = "published"
	StateAnnounced    State = "announced"
)

// Submission is a dataset-level container of metadata objects, files and
// external registrations.
type Submission struct {
	ID          string
	ProjectID   string
	Workflow    workflow.Name
	Name        string
	Title       string
	Description string
	Bucket      *string

	Metadata Metadata
	Rems     Rems

	Created       time.Time
	Modified      time.Time
	IngestStarted *time.Time
	ReadyAt       *time.Time
	PublishedAt   *time.Time
	AnnouncedAt   *time.Time
}

// Frozen reports whether the submission refuses user mutations.
func (s *Submission) Frozen() bool { return s.PublishedAt != nil }

// State derives the lifecycle state from the stored markers and the latest
// file versions attached to the submission.
func (s *Submission) State(files []File) State {
	switch {
	case s.AnnouncedAt != nil:
		return StateAnnounced
	case s.PublishedAt != nil:
		return StatePublished
	case s.ReadyAt != nil:
		return StateReady
	case s.IngestStarted != nil:
		return StateIngesting
	}
	for _, file := range files {
		if file.IngestStatus == IngestAdded {
			return StateFilesPending
		}
	}
	return StateDraft
}

// Rems is the access-management attachment of a submission.
type Rems struct {
	WorkflowID     int    `json:"workflowId,omitempty"`
	OrganizationID string `json:"organizationId,omitempty"`
	Licenses       []int  `json:"licenses,omitempty"`
}

// MetadataObject is one schema-validated document inside a submission.
type MetadataObject struct {
	AccessionID  string
	SubmissionID string
	ProjectID    string
	ObjectType   string
	Name         string
	Title        string

	Document json.RawMessage
	XML      []byte

	Created  time.Time
	Modified time.Time
}

// IngestStatus mirrors the archive pipeline states for one file.
type IngestStatus string

// File ingest states.
const (
	IngestAdded     IngestStatus = "added"
	IngestReady     IngestStatus = "ready"
	IngestVerified  IngestStatus = "verified"
	IngestCompleted IngestStatus = "completed"
	IngestError     IngestStatus = "error"
)

// ingestRank orders the monotonic part of the state machine.
var ingestRank = map[IngestStatus]int{
	IngestAdded: 0, IngestReady: 1, IngestVerified: 2, IngestCompleted: 3,
}

// CanTransition reports whether moving from one ingest status to another is
// allowed: forward-only, and error is a sink cleared only by a new version.
func CanTransition(from, to IngestStatus) bool {
	if from == to {
		return true
	}
	if from == IngestError {
		return false
	}
	if to == IngestError {
		return true
	}
	return ingestRank[to] > ingestRank[from]
}

// ErrorType classifies a file ingest failure.
type ErrorType string

// Ingest failure classes.
const (
	ErrorUser      ErrorType = "user"
	ErrorTransient ErrorType = "transient"
	ErrorPermanent ErrorType = "permanent"
)

// Checksum is one digest over file content.
type Checksum struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// File references one object in external storage; the system never stores
// the bytes themselves.
type File struct {
	AccessionID  string
	SubmissionID *string
	ProjectID    string
	ObjectID     *string
	Path         string
	Bytes        int64
	Version      int

	EncryptedChecksum   *Checksum
	UnencryptedChecksum *Checksum

	IngestStatus     IngestStatus
	IngestErrorType  *ErrorType
	IngestErrorCount int

	Created  time.Time
	Modified time.Time
	Removed  *time.Time
}

// Registration proves one successful downstream service call; its existence
// is the idempotency marker for the publish pipeline.
type Registration struct {
	ID           string
	SubmissionID string
	ObjectID     *string
	Service      workflow.Service
	ExternalID   string
	Meta         json.RawMessage
	Created      time.Time
}

// MintAccession returns the accession id for a new object. FEGA and SD use
// random UUIDs; BP derives a stable center-prefixed id so replays of the
// same submitted name yield the same accession.
func MintAccession(wf workflow.Name, centerID, submissionID, objectType, name string) string {
	if wf != workflow.BP {
		return uuid.NewString()
	}
	hash := fnv.New64a()
	_, _ = fmt.Fprintf(hash, "%s/%s/%s", submissionID, objectType, name)
	return fmt.Sprintf("%s-%016x", centerID, hash.Sum64())
}
