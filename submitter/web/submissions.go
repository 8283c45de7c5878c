// Copyright (C) 2024 Storj Labs, Inc.
// See LICENSE for copying information.

package web

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"submitter.io/submitter/submitter/submission"
	"submitter.io/submitter/submitter/workflow"
	"submitter.io/submitter/submitter/xmlproc"
)

func pathVar(r *http.Request, name string) string {
	return mux.Vars(r)[name]
}

// submissionView is the API shape of a submission.
type submissionView struct {
	SubmissionID string              `json:"submissionId"`
	ProjectID    string              `json:"projectId"`
	Workflow     workflow.Name       `json:"workflow"`
	Name         string              `json:"name"`
	Title        string              `json:"title,omitempty"`
	Description  string              `json:"description,omitempty"`
	Bucket       *string             `json:"bucket,omitempty"`
	State        submission.State    `json:"state"`
	Metadata     submission.Metadata `json:"metadata"`
	Created      time.Time           `json:"created"`
	Modified     time.Time           `json:"modified"`
	PublishedAt  *time.Time          `json:"publishedAt,omitempty"`
	AnnouncedAt  *time.Time          `json:"announcedAt,omitempty"`
}

func viewOf(sub *submission.Submission, state submission.State) submissionView {
	return submissionView{
		SubmissionID: sub.ID,
		ProjectID:    sub.ProjectID,
		Workflow:     sub.Workflow,
		Name:         sub.Name,
		Title:        sub.Title,
		Description:  sub.Description,
		Bucket:       sub.Bucket,
		State:        state,
		Metadata:     sub.Metadata,
		Created:      sub.Created,
		Modified:     sub.Modified,
		PublishedAt:  sub.PublishedAt,
		AnnouncedAt:  sub.AnnouncedAt,
	}
}

// handleCreateSubmission creates a draft submission. A multipart request
// additionally carries XML parts, one field per object type, which are
// processed as a bundle; bundle problems reject the whole request.
func (server *Server) handleCreateSubmission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	wf := workflow.Name(pathVar(r, "workflow"))
	projectID := pathVar(r, "project")

	var params submission.CreateParams
	var parts []xmlproc.Part

	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/") {
		if err := r.ParseMultipartForm(server.config.MaxBodySize); err != nil {
			server.serveProblem(w, r, submission.ErrValidation.Wrap(err))
			return
		}
		if raw := r.FormValue("submission"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &params); err != nil {
				server.serveProblem(w, r, submission.ErrValidation.Wrap(err))
				return
			}
		}
		var err error
		parts, err = bundleParts(r)
		if err != nil {
			server.serveProblem(w, r, err)
			return
		}
	} else {
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			server.serveProblem(w, r, submission.ErrValidation.Wrap(err))
			return
		}
	}

	sub, err := server.submissions.Create(ctx, wf, projectID, params)
	if err != nil {
		server.serveProblem(w, r, err)
		return
	}

	if len(parts) > 0 {
		result, err := server.processor.Process(ctx, sub, nil, parts)
		if err == nil && len(result.Problems) > 0 {
			err = submission.ErrValidation.New("bundle rejected")
		}
		if err == nil {
			_, err = server.submissions.StoreObjects(ctx, sub.ID, result.Objects)
		}
		if err != nil {
			if deleteErr := server.submissions.Delete(ctx, sub.ID); deleteErr != nil {
				server.log.Warn("failed to roll back submission after bundle rejection")
			}
			if result != nil && len(result.Problems) > 0 {
				server.serveProblem(w, r, err, problemDetails(result.Problems)...)
				return
			}
			server.serveProblem(w, r, err)
			return
		}
	}

	server.serveJSON(w, http.StatusCreated, viewOf(sub, submission.StateDraft))
}

// bundleParts collects the XML parts of a multipart request; every field
// except "submission" names an object type.
func bundleParts(r *http.Request) ([]xmlproc.Part, error) {
	var parts []xmlproc.Part
	for field, headers := range r.MultipartForm.File {
		if field == "submission" {
			continue
		}
		for _, header := range headers {
			file, err := header.Open()
			if err != nil {
				return nil, submission.ErrValidation.Wrap(err)
			}
			data, err := io.ReadAll(file)
			_ = file.Close()
			if err != nil {
				return nil, submission.ErrValidation.Wrap(err)
			}
			parts = append(parts, xmlproc.Part{ObjectType: field, Data: data})
		}
	}
	for field, values := range r.MultipartForm.Value {
		if field == "submission" {
			continue
		}
		for _, value := range values {
			parts = append(parts, xmlproc.Part{ObjectType: field, Data: []byte(value)})
		}
	}
	return parts, nil
}

func problemDetails(problems []xmlproc.Problem) []any {
	details := make([]any, 0, len(problems))
	for _, p := range problems {
		details = append(details, p)
	}
	return details
}

// handleListSubmissions lists the project's submissions.
func (server *Server) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	projectID := r.URL.Query().Get("projectId")
	if projectID == "" {
		server.serveProblem(w, r, submission.ErrValidation.New("projectId query parameter is required"))
		return
	}
	subs, err := server.submissions.List(ctx, projectID)
	if err != nil {
		server.serveProblem(w, r, err)
		return
	}

	views := make([]submissionView, 0, len(subs))
	for i := range subs {
		views = append(views, viewOf(&subs[i], subs[i].State(nil)))
	}
	server.serveJSON(w, http.StatusOK, views)
}

// handleGetSubmission returns one submission with its derived state.
func (server *Server) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sub, state, err := server.submissions.Get(ctx, pathVar(r, "id"))
	if err != nil {
		server.serveProblem(w, r, err)
		return
	}
	server.serveJSON(w, http.StatusOK, viewOf(sub, state))
}

// handlePatchSubmission applies a deep-merge update.
func (server *Server) handlePatchSubmission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var patch submission.UpdatePatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		server.serveProblem(w, r, submission.ErrValidation.Wrap(err))
		return
	}
	if err := server.submissions.Update(ctx, pathVar(r, "id"), patch); err != nil {
		server.serveProblem(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDeleteSubmission removes a non-frozen submission.
func (server *Server) handleDeleteSubmission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := server.submissions.Delete(ctx, pathVar(r, "id")); err != nil {
		server.serveProblem(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleIngest hands the submission's files to the archive pipeline.
func (server *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := server.submissions.StartIngest(ctx, pathVar(r, "id")); err != nil {
		server.serveProblem(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleListRegistrations lists the submission's downstream registrations.
func (server *Server) handleListRegistrations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	regs, err := server.submissions.Registrations(ctx, pathVar(r, "id"))
	if err != nil {
		server.serveProblem(w, r, err)
		return
	}

	type registrationView struct {
		Service    workflow.Service `json:"service"`
		ExternalID string           `json:"externalId"`
		ObjectID   *string          `json:"objectId,omitempty"`
		Created    time.Time        `json:"created"`
	}
	views := make([]registrationView, 0, len(regs))
	for _, reg := range regs {
		views = append(views, registrationView{
			Service:    reg.Service,
			ExternalID: reg.ExternalID,
			ObjectID:   reg.ObjectID,
			Created:    reg.Created,
		})
	}
	server.serveJSON(w, http.StatusOK, views)
}
