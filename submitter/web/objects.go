// Copyright (C) 2024 Storj Labs, Inc.
// See LICENSE for copying information.

package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"submitter.io/submitter/submitter/submission"
	"submitter.io/submitter/submitter/xmlproc"
)

// objectView is the API shape of a metadata object.
type objectView struct {
	AccessionID  string          `json:"accessionId"`
	SubmissionID string          `json:"submissionId"`
	Schema       string          `json:"schema"`
	Name         string          `json:"name"`
	Title        string          `json:"title,omitempty"`
	Document     json.RawMessage `json:"document,omitempty"`
	Created      time.Time       `json:"created"`
	Modified     time.Time       `json:"modified"`
}

func objectViewOf(object *submission.MetadataObject, withDocument bool) objectView {
	view := objectView{
		AccessionID:  object.AccessionID,
		SubmissionID: object.SubmissionID,
		Schema:       object.ObjectType,
		Name:         object.Name,
		Title:        object.Title,
		Created:      object.Created,
		Modified:     object.Modified,
	}
	if withDocument {
		view.Document = object.Document
	}
	return view
}

// handlePostObjects adds metadata objects to a submission. JSON bodies carry
// one document or an array of documents; XML bodies go through the bundle
// processor.
func (server *Server) handlePostObjects(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	objectType := pathVar(r, "schema")

	submissionID := r.URL.Query().Get("submission")
	if submissionID == "" {
		server.serveProblem(w, r, submission.ErrValidation.New("submission query parameter is required"))
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		server.serveProblem(w, r, submission.ErrValidation.Wrap(err))
		return
	}

	var accessionIDs []string
	if isXMLRequest(r, body) {
		accessionIDs, err = server.storeXMLObjects(r, submissionID, objectType, body)
	} else {
		var docs []json.RawMessage
		docs, err = decodeDocs(body)
		if err == nil {
			accessionIDs, err = server.submissions.PutObjects(ctx, submissionID, objectType, docs)
		}
	}
	if err != nil {
		var bundleErr *bundleProblemsError
		if errors.As(err, &bundleErr) {
			server.serveProblem(w, r, bundleErr.err, problemDetails(bundleErr.problems)...)
			return
		}
		server.serveProblem(w, r, err)
		return
	}

	type created struct {
		AccessionID string `json:"accessionId"`
	}
	response := make([]created, 0, len(accessionIDs))
	for _, id := range accessionIDs {
		response = append(response, created{AccessionID: id})
	}
	server.serveJSON(w, http.StatusCreated, response)
}

func isXMLRequest(r *http.Request, body []byte) bool {
	contentType := r.Header.Get("Content-Type")
	if strings.Contains(contentType, "xml") {
		return true
	}
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) > 0 && trimmed[0] == '<'
}

// decodeDocs accepts either one JSON object or an array of them.
func decodeDocs(body []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var docs []json.RawMessage
		if err := json.Unmarshal(trimmed, &docs); err != nil {
			return nil, submission.ErrValidation.Wrap(err)
		}
		return docs, nil
	}
	var doc json.RawMessage
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, submission.ErrValidation.Wrap(err)
	}
	return []json.RawMessage{doc}, nil
}

// storeXMLObjects runs a one-part bundle through the processor and persists
// the resulting objects.
func (server *Server) storeXMLObjects(r *http.Request, submissionID, objectType string, body []byte) ([]string, error) {
	ctx := r.Context()

	sub, _, err := server.submissions.Get(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	existing, err := server.submissions.ListObjects(ctx, submissionID, "")
	if err != nil {
		return nil, err
	}

	result, err := server.processor.Process(ctx, sub, existing, []xmlproc.Part{
		{ObjectType: objectType, Data: body},
	})
	if err != nil {
		return nil, err
	}
	if len(result.Problems) > 0 {
		return nil, bundleError(result.Problems)
	}

	stored, err := server.submissions.StoreObjects(ctx, submissionID, result.Objects)
	if err != nil {
		return nil, err
	}
	accessionIDs := make([]string, 0, len(stored))
	for _, object := range stored {
		accessionIDs = append(accessionIDs, object.AccessionID)
	}
	return accessionIDs, nil
}

// bundleProblemsError carries accumulated bundle problems across the
// handler boundary so the response can list them all.
type bundleProblemsError struct {
	problems []xmlproc.Problem
	err      error
}

func bundleError(problems []xmlproc.Problem) error {
	return &bundleProblemsError{
		problems: problems,
		err:      submission.ErrValidation.New("bundle rejected with %d problems", len(problems)),
	}
}

func (e *bundleProblemsError) Error() string { return e.err.Error() }
func (e *bundleProblemsError) Unwrap() error { return e.err }

// handleGetObject returns one object as JSON or, with format=xml, the
// stored XML original.
func (server *Server) handleGetObject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accessionID := pathVar(r, "id")

	if r.URL.Query().Get("format") == "xml" {
		raw, err := server.submissions.GetObjectXML(ctx, accessionID)
		if err != nil {
			server.serveProblem(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "text/xml")
		_, _ = w.Write(raw)
		return
	}

	object, err := server.submissions.GetObject(ctx, accessionID)
	if err != nil {
		server.serveProblem(w, r, err)
		return
	}
	server.serveJSON(w, http.StatusOK, objectViewOf(object, true))
}

// handleReplaceObject replaces the stored document.
func (server *Server) handleReplaceObject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var doc json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		server.serveProblem(w, r, submission.ErrValidation.Wrap(err))
		return
	}
	if err := server.submissions.ReplaceObject(ctx, pathVar(r, "id"), doc); err != nil {
		server.serveProblem(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDeleteObject removes one object.
func (server *Server) handleDeleteObject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := server.submissions.DeleteObject(ctx, pathVar(r, "id")); err != nil {
		server.serveProblem(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListSubmissionObjects lists the submission's objects; the /docs
// variant includes the documents.
func (server *Server) handleListSubmissionObjects(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	withDocs := strings.HasSuffix(r.URL.Path, "/docs")
	objects, err := server.submissions.ListObjects(ctx, pathVar(r, "id"), r.URL.Query().Get("schema"))
	if err != nil {
		server.serveProblem(w, r, err)
		return
	}

	views := make([]objectView, 0, len(objects))
	for i := range objects {
		views = append(views, objectViewOf(&objects[i], withDocs))
	}
	server.serveJSON(w, http.StatusOK, views)
}
