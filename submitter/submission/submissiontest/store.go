// Copyright (C) 2024 Storj Labs, Inc.
// See LICENSE for copying information.

// Package submissiontest provides an in-memory submission.Store for tests.
package submissiontest

import (
	"context"
	"sort"
	"sync"

	"submitter.io/submitter/submitter/submission"
	"submitter.io/submitter/submitter/workflow"
)

// Store is an in-memory submission.Store. It enforces the same uniqueness
// rules as the SQL implementation so service tests exercise real conflicts.
type Store struct {
	mu sync.Mutex

	submissions   map[string]submission.Submission
	objects       map[string]submission.MetadataObject
	files         map[string]submission.File
	registrations map[string]submission.Registration

	locked map[string]bool
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		submissions:   map[string]submission.Submission{},
		objects:       map[string]submission.MetadataObject{},
		files:         map[string]submission.File{},
		registrations: map[string]submission.Registration{},
		locked:        map[string]bool{},
	}
}

// HoldLock marks a submission row as locked by someone else so TryLock
// contention can be simulated.
func (store *Store) HoldLock(id string, held bool) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.locked[id] = held
}

// Submissions implements submission.Repositories.
func (store *Store) Submissions() submission.Submissions { return (*submissionsRepo)(store) }

// Objects implements submission.Repositories.
func (store *Store) Objects() submission.Objects { return (*objectsRepo)(store) }

// Files implements submission.Repositories.
func (store *Store) Files() submission.Files { return (*filesRepo)(store) }

// Registrations implements submission.Repositories.
func (store *Store) Registrations() submission.Registrations { return (*registrationsRepo)(store) }

// BeginTx implements submission.Store; the fake has no isolation, commit and
// rollback are no-ops.
func (store *Store) BeginTx(ctx context.Context) (submission.Tx, error) {
	return (*storeTx)(store), nil
}

type storeTx Store

func (tx *storeTx) Submissions() submission.Submissions     { return (*submissionsRepo)(tx) }
func (tx *storeTx) Objects() submission.Objects             { return (*objectsRepo)(tx) }
func (tx *storeTx) Files() submission.Files                 { return (*filesRepo)(tx) }
func (tx *storeTx) Registrations() submission.Registrations { return (*registrationsRepo)(tx) }
func (tx *storeTx) Commit() error                           { return nil }
func (tx *storeTx) Rollback() error                         { return nil }

type submissionsRepo Store

func (repo *submissionsRepo) Create(ctx context.Context, sub *submission.Submission) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	for _, existing := range repo.submissions {
		if existing.ProjectID == sub.ProjectID && existing.Name == sub.Name {
			return submission.ErrNameTaken.New("submission %q", sub.Name)
		}
	}
	repo.submissions[sub.ID] = *sub
	return nil
}

func (repo *submissionsRepo) Get(ctx context.Context, id string) (*submission.Submission, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	sub, ok := repo.submissions[id]
	if !ok {
		return nil, submission.ErrNotFound.New("submission %s", id)
	}
	return &sub, nil
}

func (repo *submissionsRepo) ListByProject(ctx context.Context, projectID string) (subs []submission.Submission, _ error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	for _, sub := range repo.submissions {
		if sub.ProjectID == projectID {
			subs = append(subs, sub)
		}
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].Created.After(subs[j].Created) })
	return subs, nil
}

func (repo *submissionsRepo) ListIngesting(ctx context.Context) (subs []submission.Submission, _ error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	for _, sub := range repo.submissions {
		if sub.IngestStarted != nil && sub.ReadyAt == nil && sub.PublishedAt == nil {
			subs = append(subs, sub)
		}
	}
	return subs, nil
}

func (repo *submissionsRepo) Update(ctx context.Context, sub *submission.Submission) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	if _, ok := repo.submissions[sub.ID]; !ok {
		return submission.ErrNotFound.New("submission %s", sub.ID)
	}
	for _, existing := range repo.submissions {
		if existing.ID != sub.ID && existing.ProjectID == sub.ProjectID && existing.Name == sub.Name {
			return submission.ErrNameTaken.New("submission %q", sub.Name)
		}
	}
	repo.submissions[sub.ID] = *sub
	return nil
}

func (repo *submissionsRepo) Delete(ctx context.Context, id string) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	if _, ok := repo.submissions[id]; !ok {
		return submission.ErrNotFound.New("submission %s", id)
	}
	delete(repo.submissions, id)
	for accession, object := range repo.objects {
		if object.SubmissionID == id {
			delete(repo.objects, accession)
		}
	}
	for accession, file := range repo.files {
		if file.SubmissionID != nil && *file.SubmissionID == id {
			file.SubmissionID = nil
			repo.files[accession] = file
		}
	}
	for regID, reg := range repo.registrations {
		if reg.SubmissionID == id {
			delete(repo.registrations, regID)
		}
	}
	return nil
}

func (repo *submissionsRepo) Lock(ctx context.Context, id string) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	if _, ok := repo.submissions[id]; !ok {
		return submission.ErrNotFound.New("submission %s", id)
	}
	return nil
}

func (repo *submissionsRepo) TryLock(ctx context.Context, id string) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	if repo.locked[id] {
		return submission.ErrNotFound.New("submission %s is locked", id)
	}
	if _, ok := repo.submissions[id]; !ok {
		return submission.ErrNotFound.New("submission %s", id)
	}
	return nil
}

type objectsRepo Store

func (repo *objectsRepo) Create(ctx context.Context, object *submission.MetadataObject) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	for _, existing := range repo.objects {
		if existing.ProjectID == object.ProjectID &&
			existing.ObjectType == object.ObjectType &&
			existing.Name == object.Name {
			return submission.ErrNameTaken.New("%s %q", object.ObjectType, object.Name)
		}
	}
	repo.objects[object.AccessionID] = *object
	return nil
}

func (repo *objectsRepo) Get(ctx context.Context, accessionID string) (*submission.MetadataObject, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	object, ok := repo.objects[accessionID]
	if !ok {
		return nil, submission.ErrNotFound.New("object %s", accessionID)
	}
	return &object, nil
}

func (repo *objectsRepo) ListBySubmission(ctx context.Context, submissionID, objectType string) (objects []submission.MetadataObject, _ error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	for _, object := range repo.objects {
		if object.SubmissionID != submissionID {
			continue
		}
		if objectType != "" && object.ObjectType != objectType {
			continue
		}
		objects = append(objects, object)
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Created.Before(objects[j].Created) })
	return objects, nil
}

func (repo *objectsRepo) Update(ctx context.Context, object *submission.MetadataObject) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	if _, ok := repo.objects[object.AccessionID]; !ok {
		return submission.ErrNotFound.New("object %s", object.AccessionID)
	}
	repo.objects[object.AccessionID] = *object
	return nil
}

func (repo *objectsRepo) Delete(ctx context.Context, accessionID string) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	if _, ok := repo.objects[accessionID]; !ok {
		return submission.ErrNotFound.New("object %s", accessionID)
	}
	delete(repo.objects, accessionID)
	return nil
}

type filesRepo Store

func (repo *filesRepo) Create(ctx context.Context, file *submission.File) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	for _, existing := range repo.files {
		if existing.ProjectID == file.ProjectID &&
			existing.Path == file.Path &&
			existing.Version == file.Version {
			return submission.ErrNameTaken.New("file %q version %d", file.Path, file.Version)
		}
	}
	repo.files[file.AccessionID] = *file
	return nil
}

func (repo *filesRepo) Get(ctx context.Context, accessionID string) (*submission.File, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	file, ok := repo.files[accessionID]
	if !ok {
		return nil, submission.ErrNotFound.New("file %s", accessionID)
	}
	return &file, nil
}

func (repo *filesRepo) ListLatestByProject(ctx context.Context, projectID string) ([]submission.File, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	return latestVersions(repo.files, func(file submission.File) bool {
		return file.ProjectID == projectID && file.Removed == nil
	}), nil
}

func (repo *filesRepo) ListBySubmission(ctx context.Context, submissionID string) ([]submission.File, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	return latestVersions(repo.files, func(file submission.File) bool {
		return file.SubmissionID != nil && *file.SubmissionID == submissionID && file.Removed == nil
	}), nil
}

func latestVersions(files map[string]submission.File, match func(submission.File) bool) []submission.File {
	latest := map[string]submission.File{}
	for _, file := range files {
		if !match(file) {
			continue
		}
		if current, ok := latest[file.Path]; !ok || file.Version > current.Version {
			latest[file.Path] = file
		}
	}
	result := make([]submission.File, 0, len(latest))
	for _, file := range latest {
		result = append(result, file)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Path < result[j].Path })
	return result
}

func (repo *filesRepo) NextVersion(ctx context.Context, projectID, path string) (int, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	highest := 0
	for _, file := range repo.files {
		if file.ProjectID == projectID && file.Path == path && file.Version > highest {
			highest = file.Version
		}
	}
	return highest + 1, nil
}

func (repo *filesRepo) SetSubmission(ctx context.Context, accessionID string, submissionID *string) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	file, ok := repo.files[accessionID]
	if !ok {
		return submission.ErrNotFound.New("file %s", accessionID)
	}
	file.SubmissionID = submissionID
	repo.files[accessionID] = file
	return nil
}

func (repo *filesRepo) UpdateIngest(ctx context.Context, accessionID string, status submission.IngestStatus, errorType *submission.ErrorType, errorCount int) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	file, ok := repo.files[accessionID]
	if !ok {
		return submission.ErrNotFound.New("file %s", accessionID)
	}
	file.IngestStatus = status
	file.IngestErrorType = errorType
	file.IngestErrorCount = errorCount
	repo.files[accessionID] = file
	return nil
}

func (repo *filesRepo) Remove(ctx context.Context, accessionID string) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	file, ok := repo.files[accessionID]
	if !ok || file.Removed != nil {
		return submission.ErrNotFound.New("file %s", accessionID)
	}
	now := file.Modified
	file.Removed = &now
	repo.files[accessionID] = file
	return nil
}

type registrationsRepo Store

func (repo *registrationsRepo) Create(ctx context.Context, reg *submission.Registration) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	for _, existing := range repo.registrations {
		if existing.SubmissionID == reg.SubmissionID &&
			existing.Service == reg.Service &&
			equalObjectID(existing.ObjectID, reg.ObjectID) {
			return submission.ErrNameTaken.New("registration %s/%s", reg.SubmissionID, reg.Service)
		}
	}
	repo.registrations[reg.ID] = *reg
	return nil
}

func (repo *registrationsRepo) Get(ctx context.Context, submissionID string, objectID *string, service workflow.Service) (*submission.Registration, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	for _, reg := range repo.registrations {
		if reg.SubmissionID == submissionID && reg.Service == service && equalObjectID(reg.ObjectID, objectID) {
			return &reg, nil
		}
	}
	return nil, submission.ErrNotFound.New("registration %s/%s", submissionID, service)
}

func (repo *registrationsRepo) ListBySubmission(ctx context.Context, submissionID string) (regs []submission.Registration, _ error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	for _, reg := range repo.registrations {
		if reg.SubmissionID == submissionID {
			regs = append(regs, reg)
		}
	}
	sort.Slice(regs, func(i, j int) bool { return regs[i].Created.Before(regs[j].Created) })
	return regs, nil
}

func equalObjectID(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
