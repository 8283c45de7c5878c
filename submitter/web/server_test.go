// Copyright (C) 2024 Storj Labs, Inc.
// See LICENSE for copying information.

package web

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"submitter.io/submitter/submitter/auth"
	"submitter.io/submitter/submitter/clients"
	"submitter.io/submitter/submitter/projects"
	"submitter.io/submitter/submitter/publish"
	"submitter.io/submitter/submitter/schema"
	"submitter.io/submitter/submitter/submission"
	"submitter.io/submitter/submitter/submission/submissiontest"
	"submitter.io/submitter/submitter/xmlproc"
)

const testProject = "project-1"

type memKeys struct {
	mu   sync.Mutex
	keys map[string]auth.APIKey
}

func newMemKeys() *memKeys { return &memKeys{keys: map[string]auth.APIKey{}} }

func (m *memKeys) Create(ctx context.Context, key auth.APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key.ID] = key
	return nil
}

func (m *memKeys) Get(ctx context.Context, id string) (*auth.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, ok := m.keys[id]
	if !ok {
		return nil, auth.ErrNoAPIKey.New("%s", id)
	}
	return &key, nil
}

func (m *memKeys) ListByUser(ctx context.Context, userID string) (keys []auth.APIKey, _ error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range m.keys {
		if key.UserID == userID {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (m *memKeys) Delete(ctx context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, ok := m.keys[id]
	if !ok || key.UserID != userID {
		return auth.ErrNoAPIKey.New("%s", id)
	}
	delete(m.keys, id)
	return nil
}

type fakeDOI struct{}

func (fakeDOI) Draft(ctx context.Context, payload clients.DOIPayload) (string, error) {
	return "10.1234/" + payload.Suffix, nil
}
func (fakeDOI) Publish(ctx context.Context, doi string) error { return nil }
func (fakeDOI) Delete(ctx context.Context, doi string) error  { return nil }

type fakeCatalogClient struct{}

func (fakeCatalogClient) UpsertDataset(ctx context.Context, dataset clients.MetaxDataset) (string, error) {
	return "metax-pid-1", nil
}

type fakeAccess struct{}

func (fakeAccess) CreateResource(ctx context.Context, resID, organizationID string, licenses []int) (int, error) {
	return 11, nil
}

func (fakeAccess) CreateCatalogueItem(ctx context.Context, workflowID, resourceID int, organizationID string, localizations map[string]clients.Localization) (int, error) {
	return 22, nil
}

func (fakeAccess) ReleaseCatalogueItem(ctx context.Context, itemID int) error { return nil }

type fakeReleaser struct{}

func (fakeReleaser) ReleaseDataset(ctx context.Context, sub *submission.Submission) error { return nil }

type fakeIngestArchive struct {
	mu       sync.Mutex
	ingested int
}

func (a *fakeIngestArchive) Ingest(ctx context.Context, sub *submission.Submission, files []submission.File) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ingested++
	return nil
}

type fakePinger struct {
	name string
	err  error
}

func (p *fakePinger) Name() string                   { return p.name }
func (p *fakePinger) Ping(ctx context.Context) error { return p.err }

type testEnv struct {
	server    *Server
	store     *submissiontest.Store
	auth      *auth.Service
	archive   *fakeIngestArchive
	saturated bool
	pingers   []clients.Pinger
}

func newTestEnv(t *testing.T) *testEnv {
	return newCustomEnv(t, auth.Config{}, "admin-token")
}

func newCustomEnv(t *testing.T, authConfig auth.Config, adminToken string) *testEnv {
	log := zaptest.NewLogger(t)

	catalog, err := schema.LoadDefault()
	require.NoError(t, err)

	env := &testEnv{
		store:   submissiontest.NewStore(),
		archive: &fakeIngestArchive{},
		pingers: []clients.Pinger{&fakePinger{name: "database"}},
	}

	authConfig.JWTSecret = "test-secret"
	authConfig.Issuer = "http://localhost:8080"
	authConfig.TokenLifetime = time.Hour
	env.auth, err = auth.NewService(log, authConfig, newMemKeys())
	require.NoError(t, err)
	env.auth.TestSetPasswordCost(bcrypt.MinCost)

	provider := projects.SelfProvider{}
	submissions := submission.NewService(log, submission.Config{BPCenterID: "center-1"},
		env.store, catalog, provider, env.archive)
	processor := xmlproc.NewProcessor(log, catalog, "center-1")
	publisher := publish.NewOrchestrator(log, publish.Config{
		DiscoveryBaseURL: "https://discovery.example",
		Publisher:        "CSC",
		CatalogID:        "catalog-1",
	}, env.store, provider, fakeDOI{}, fakeCatalogClient{}, fakeAccess{}, fakeReleaser{})

	env.server = NewServer(log, Config{
		Address:         ":0",
		ExternalURL:     "http://localhost:8080",
		MaxBodySize:     1 << 20,
		AdminToken:      adminToken,
		ShutdownTimeout: time.Second,
	}, nil, env.auth, auth.NewOIDC(auth.OIDCConfig{}), provider,
		submissions, processor, publisher, catalog,
		env.pingers, func() bool { return env.saturated })

	return env
}

// do serves one request through the full middleware chain.
func (env *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	env.server.server.Handler.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) sessionCookie(t *testing.T) *http.Cookie {
	token, _, err := env.auth.MintSessionToken(context.Background(), testProject)
	require.NoError(t, err)
	return &http.Cookie{Name: sessionCookieName, Value: token}
}

func (env *testEnv) authed(t *testing.T, method, target string, body []byte) *http.Request {
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.AddCookie(env.sessionCookie(t))
	return req
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	var value T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &value), rec.Body.String())
	return value
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/v1/submissions?projectId="+testProject, nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	body := decodeBody[map[string]any](t, rec)
	// credentials failures never leak detail
	assert.Equal(t, "authentication required", body["detail"])

	bad := httptest.NewRequest(http.MethodGet, "/v1/submissions?projectId="+testProject, nil)
	bad.Header.Set("Authorization", "Bearer not-a-key")
	require.Equal(t, http.StatusUnauthorized, env.do(bad).Code)
}

func TestRequestIDEcho(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	rec := env.do(req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-Id"))

	rec = env.do(httptest.NewRequest(http.MethodGet, "/v1/health", nil))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/v1/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "Up", body["status"])

	env.pingers[0].(*fakePinger).err = clients.ErrTransient.New("down")
	rec = env.do(httptest.NewRequest(http.MethodGet, "/v1/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody[map[string]any](t, rec)
	assert.Equal(t, "Down", body["status"])
	services := body["services"].(map[string]any)
	assert.Equal(t, "Down", services["database"])
}

func TestBackpressure(t *testing.T) {
	env := newTestEnv(t)
	env.saturated = true

	rec := env.do(env.authed(t, http.MethodGet, "/v1/submissions?projectId="+testProject, nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	// the public surface stays reachable
	rec = env.do(httptest.NewRequest(http.MethodGet, "/v1/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIKeyFlow(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(env.authed(t, http.MethodPost, "/v1/users/current/keys", []byte(`{"name":"ci"}`)))
	require.Equal(t, http.StatusCreated, rec.Code)
	issued := decodeBody[map[string]any](t, rec)
	plaintext := issued["plaintext"].(string)
	keyID := issued["keyId"].(string)
	require.NotEmpty(t, plaintext)

	// the key authenticates without a session
	req := httptest.NewRequest(http.MethodGet, "/v1/users/current", nil)
	req.Header.Set("Authorization", "Bearer "+plaintext)
	rec = env.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	user := decodeBody[map[string]any](t, rec)
	assert.Equal(t, testProject, user["userId"])
	assert.Equal(t, []any{testProject}, user["projects"])

	// listing never returns the secret
	rec = env.do(env.authed(t, http.MethodGet, "/v1/users/current/keys", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), plaintext)

	rec = env.do(env.authed(t, http.MethodDelete, "/v1/users/current/keys/"+keyID, nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/users/current", nil)
	req.Header.Set("Authorization", "Bearer "+plaintext)
	require.Equal(t, http.StatusUnauthorized, env.do(req).Code)
}

func TestSubmissionLifecycle(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(env.authed(t, http.MethodPost,
		"/v1/workflows/SD/projects/"+testProject+"/submissions",
		[]byte(`{"name":"my dataset","title":"My dataset"}`)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[map[string]any](t, rec)
	id := created["submissionId"].(string)
	assert.Equal(t, "draft", created["state"])

	rec = env.do(env.authed(t, http.MethodGet, "/v1/submissions?projectId="+testProject, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	listed := decodeBody[[]map[string]any](t, rec)
	require.Len(t, listed, 1)

	rec = env.do(env.authed(t, http.MethodPatch, "/v1/submissions/"+id,
		[]byte(`{"title":"Renamed","metadata":{"language":"en"}}`)))
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = env.do(env.authed(t, http.MethodGet, "/v1/submissions/"+id, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "Renamed", got["title"])

	rec = env.do(env.authed(t, http.MethodDelete, "/v1/submissions/"+id, nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(env.authed(t, http.MethodGet, "/v1/submissions/"+id, nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateSubmissionWithBundle(t *testing.T) {
	env := newTestEnv(t)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	require.NoError(t, writer.WriteField("submission", `{"name":"bundle","title":"Bundle"}`))
	require.NoError(t, writer.WriteField("study", `<STUDY alias="s1"><TITLE>Bundled study</TITLE></STUDY>`))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost,
		"/v1/workflows/FEGA/projects/"+testProject+"/submissions", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.AddCookie(env.sessionCookie(t))

	rec := env.do(req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[map[string]any](t, rec)
	id := created["submissionId"].(string)

	rec = env.do(env.authed(t, http.MethodGet, "/v1/submissions/"+id+"/objects", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	objects := decodeBody[[]map[string]any](t, rec)
	require.Len(t, objects, 1)
	assert.Equal(t, "study", objects[0]["schema"])
}

func TestCreateSubmissionBundleRejected(t *testing.T) {
	env := newTestEnv(t)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	require.NoError(t, writer.WriteField("submission", `{"name":"broken","title":"Broken"}`))
	// observation referencing a sample that exists nowhere
	require.NoError(t, writer.WriteField("bpobservation",
		`<BPOBSERVATION alias="o1"><BPSAMPLE_REF refname="missing"/></BPOBSERVATION>`))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost,
		"/v1/workflows/BP/projects/"+testProject+"/submissions", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.AddCookie(env.sessionCookie(t))

	rec := env.do(req)
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	problem := decodeBody[map[string]any](t, rec)
	require.NotEmpty(t, problem["errors"])

	// the draft is rolled back
	rec = env.do(env.authed(t, http.MethodGet, "/v1/submissions?projectId="+testProject, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}

func TestFrozenSubmission(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(env.authed(t, http.MethodPost,
		"/v1/workflows/SD/projects/"+testProject+"/submissions",
		[]byte(`{"name":"frozen"}`)))
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeBody[map[string]any](t, rec)["submissionId"].(string)

	// make it publishable and publish it
	rec = env.do(env.authed(t, http.MethodPost, "/v1/objects/dataset?submission="+id,
		[]byte(`{"alias":"d1","title":"Dataset"}`)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(env.authed(t, http.MethodPost, "/v1/publish/"+id, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	published := decodeBody[map[string]any](t, rec)
	require.NotEmpty(t, published["steps"])

	// every mutation on a published submission answers 405
	rec = env.do(env.authed(t, http.MethodPatch, "/v1/submissions/"+id, []byte(`{"title":"nope"}`)))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	rec = env.do(env.authed(t, http.MethodDelete, "/v1/submissions/"+id, nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	// except announce
	rec = env.do(env.authed(t, http.MethodPatch, "/v1/announce/"+id, nil))
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = env.do(env.authed(t, http.MethodGet, "/v1/submissions/"+id, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "announced", decodeBody[map[string]any](t, rec)["state"])
}

func TestIngestRequiresAdminToken(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(env.authed(t, http.MethodPost,
		"/v1/workflows/SD/projects/"+testProject+"/submissions",
		[]byte(`{"name":"ingestable"}`)))
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeBody[map[string]any](t, rec)["submissionId"].(string)

	req := env.authed(t, http.MethodPost, "/v1/submissions/"+id+"/ingest", nil)
	require.Equal(t, http.StatusForbidden, env.do(req).Code)

	req = env.authed(t, http.MethodPost, "/v1/submissions/"+id+"/ingest", nil)
	req.Header.Set("X-Authorization", "Bearer wrong-token")
	require.Equal(t, http.StatusForbidden, env.do(req).Code)

	req = env.authed(t, http.MethodPost, "/v1/submissions/"+id+"/ingest", nil)
	req.Header.Set("X-Authorization", "Bearer admin-token")
	require.Equal(t, http.StatusAccepted, env.do(req).Code)
}

func TestIngestDisabledWithoutAdminToken(t *testing.T) {
	env := newCustomEnv(t, auth.Config{}, "")

	rec := env.do(env.authed(t, http.MethodPost,
		"/v1/workflows/SD/projects/"+testProject+"/submissions",
		[]byte(`{"name":"locked"}`)))
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeBody[map[string]any](t, rec)["submissionId"].(string)

	// an empty bearer must not match an unset token
	req := env.authed(t, http.MethodPost, "/v1/submissions/"+id+"/ingest", nil)
	req.Header.Set("X-Authorization", "Bearer ")
	require.Equal(t, http.StatusForbidden, env.do(req).Code)
}

// dpopProof builds a proof JWT bound to the given key.
func dpopProof(t *testing.T, key *ecdsa.PrivateKey, method, target, jti string) string {
	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"htm": method,
		"htu": target,
		"iat": time.Now().Unix(),
		"jti": jti,
	})
	token.Header["typ"] = "dpop+jwt"
	token.Header["jwk"] = map[string]any{
		"kty": "EC",
		"crv": "P-256",
		"x":   base64.RawURLEncoding.EncodeToString(key.X.FillBytes(make([]byte, 32))),
		"y":   base64.RawURLEncoding.EncodeToString(key.Y.FillBytes(make([]byte, 32))),
	}
	proof, err := token.SignedString(key)
	require.NoError(t, err)
	return proof
}

func TestLoginRequiresDPoP(t *testing.T) {
	env := newCustomEnv(t, auth.Config{
		DPoP: auth.DPoPConfig{Enabled: true, ProofLifetime: time.Minute},
	}, "admin-token")

	rec := env.do(httptest.NewRequest(http.MethodGet, "/v1/aai", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	rec = env.do(httptest.NewRequest(http.MethodGet, "/v1/callback", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/v1/aai", nil)
	req.Header.Set("DPoP", dpopProof(t, key, "GET", "http://localhost:8080/v1/aai", "login-1"))
	rec = env.do(req)
	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())

	// a proof bound to another endpoint is rejected
	req = httptest.NewRequest(http.MethodGet, "/v1/aai", nil)
	req.Header.Set("DPoP", dpopProof(t, key, "GET", "http://localhost:8080/v1/callback", "login-2"))
	require.Equal(t, http.StatusUnauthorized, env.do(req).Code)
}

func TestPublishPartialReport(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(env.authed(t, http.MethodPost,
		"/v1/workflows/SD/projects/"+testProject+"/submissions",
		[]byte(`{"name":"unready"}`)))
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeBody[map[string]any](t, rec)["submissionId"].(string)

	// the gate refuses an incomplete submission with 409
	rec = env.do(env.authed(t, http.MethodPost, "/v1/publish/"+id, nil))
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
}

func TestSchemasEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(env.authed(t, http.MethodGet, "/v1/schemas", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	schemas := decodeBody[[]map[string]any](t, rec)
	require.NotEmpty(t, schemas)

	rec = env.do(env.authed(t, http.MethodGet, "/v1/schemas/study", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(env.authed(t, http.MethodGet, "/v1/schemas/nope", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestObjectsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(env.authed(t, http.MethodPost,
		"/v1/workflows/FEGA/projects/"+testProject+"/submissions",
		[]byte(`{"name":"objects"}`)))
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeBody[map[string]any](t, rec)["submissionId"].(string)

	// XML post
	xmlReq := env.authed(t, http.MethodPost, "/v1/objects/study?submission="+id,
		[]byte(`<STUDY alias="s1"><TITLE>Via XML</TITLE></STUDY>`))
	xmlReq.Header.Set("Content-Type", "text/xml")
	rec = env.do(xmlReq)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[[]map[string]any](t, rec)
	require.Len(t, created, 1)
	accession := created[0]["accessionId"].(string)

	// stored XML round-trips
	rec = env.do(env.authed(t, http.MethodGet, "/v1/objects/study/"+accession+"?format=xml", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "xml")
	assert.Contains(t, rec.Body.String(), "Via XML")

	// JSON post of another type
	rec = env.do(env.authed(t, http.MethodPost, "/v1/objects/sample?submission="+id,
		[]byte(`{"alias":"sm1","title":"Sample"}`)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(env.authed(t, http.MethodDelete, "/v1/objects/study/"+accession, nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestFilesEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(env.authed(t, http.MethodPost, "/v1/files?projectId="+testProject,
		[]byte(`[{"path":"data/a.c4gh","bytes":100}]`)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	files := decodeBody[[]map[string]any](t, rec)
	require.Len(t, files, 1)
	accession := files[0]["accessionId"].(string)

	rec = env.do(env.authed(t, http.MethodGet, "/v1/files?projectId="+testProject, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	// attach to a submission
	rec = env.do(env.authed(t, http.MethodPost,
		"/v1/workflows/FEGA/projects/"+testProject+"/submissions",
		[]byte(`{"name":"with files"}`)))
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeBody[map[string]any](t, rec)["submissionId"].(string)

	rec = env.do(env.authed(t, http.MethodPatch, "/v1/submissions/"+id+"/files",
		[]byte(`[{"accessionId":"`+accession+`","attach":true}]`)))
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = env.do(env.authed(t, http.MethodGet, "/v1/submissions/"+id+"/files", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	attached := decodeBody[[]map[string]any](t, rec)
	require.Len(t, attached, 1)
	assert.Equal(t, "added", attached[0]["ingestStatus"])
}
