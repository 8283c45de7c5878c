// Copyright (C) 2024 Storj Labs, Inc.
// See LICENSE for copying information.

package web

import (
	"encoding/json"
	"net/http"
	"time"

	"submitter.io/submitter/submitter/submission"
)

// fileView is the API shape of a file reference.
type fileView struct {
	AccessionID  string                  `json:"accessionId"`
	SubmissionID *string                 `json:"submissionId,omitempty"`
	ProjectID    string                  `json:"projectId"`
	ObjectID     *string                 `json:"objectId,omitempty"`
	Path         string                  `json:"path"`
	Bytes        int64                   `json:"bytes"`
	Version      int                     `json:"version"`
	IngestStatus submission.IngestStatus `json:"ingestStatus"`
	ErrorType    *submission.ErrorType   `json:"errorType,omitempty"`
	Created      time.Time               `json:"created"`
	Modified     time.Time               `json:"modified"`
}

func fileViewOf(file *submission.File) fileView {
	return fileView{
		AccessionID:  file.AccessionID,
		SubmissionID: file.SubmissionID,
		ProjectID:    file.ProjectID,
		ObjectID:     file.ObjectID,
		Path:         file.Path,
		Bytes:        file.Bytes,
		Version:      file.Version,
		IngestStatus: file.IngestStatus,
		ErrorType:    file.IngestErrorType,
		Created:      file.Created,
		Modified:     file.Modified,
	}
}

func fileViewsOf(files []submission.File) []fileView {
	views := make([]fileView, 0, len(files))
	for i := range files {
		views = append(views, fileViewOf(&files[i]))
	}
	return views
}

// handleRegisterFiles registers staged files under the project; re-posting
// an existing path creates a new version.
func (server *Server) handleRegisterFiles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	projectID := r.URL.Query().Get("projectId")
	if projectID == "" {
		server.serveProblem(w, r, submission.ErrValidation.New("projectId query parameter is required"))
		return
	}

	var drafts []submission.FileDraft
	if err := json.NewDecoder(r.Body).Decode(&drafts); err != nil {
		server.serveProblem(w, r, submission.ErrValidation.Wrap(err))
		return
	}

	files, err := server.submissions.RegisterFiles(ctx, projectID, drafts)
	if err != nil {
		server.serveProblem(w, r, err)
		return
	}
	server.serveJSON(w, http.StatusCreated, fileViewsOf(files))
}

// handleListFiles lists the latest file versions in the project.
func (server *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	projectID := r.URL.Query().Get("projectId")
	if projectID == "" {
		server.serveProblem(w, r, submission.ErrValidation.New("projectId query parameter is required"))
		return
	}

	files, err := server.submissions.ListFiles(ctx, projectID)
	if err != nil {
		server.serveProblem(w, r, err)
		return
	}
	server.serveJSON(w, http.StatusOK, fileViewsOf(files))
}

// handleListSubmissionFiles lists the files attached to a submission.
func (server *Server) handleListSubmissionFiles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	files, err := server.submissions.ListSubmissionFiles(ctx, pathVar(r, "id"))
	if err != nil {
		server.serveProblem(w, r, err)
		return
	}
	server.serveJSON(w, http.StatusOK, fileViewsOf(files))
}

// handlePatchSubmissionFiles attaches or detaches files.
func (server *Server) handlePatchSubmissionFiles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var patches []submission.FilePatch
	if err := json.NewDecoder(r.Body).Decode(&patches); err != nil {
		server.serveProblem(w, r, submission.ErrValidation.Wrap(err))
		return
	}
	if err := server.submissions.PatchFiles(ctx, pathVar(r, "id"), patches); err != nil {
		server.serveProblem(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
