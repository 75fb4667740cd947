package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/jwtauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-docstore/pkg/docstore"
	memorystorage "github.com/tendant/simple-docstore/pkg/docstore/storage/memory"
)

// setupHandlerTest creates a Handler over an in-memory store
func setupHandlerTest(t *testing.T, serviceOpts []docstore.Option, handlerOpts ...HandlerOption) (http.Handler, *memorystorage.Backend) {
	t.Helper()
	store := memorystorage.New()
	opts := append([]docstore.Option{docstore.WithObjectStore(store)}, serviceOpts...)
	svc, err := docstore.New(opts...)
	require.NoError(t, err)
	return NewHandler(svc, handlerOpts...).Routes(), store
}

func put(t *testing.T, store *memorystorage.Backend, key, data string) {
	t.Helper()
	require.NoError(t, store.Put(context.Background(), key, strings.NewReader(data)))
}

func do(t *testing.T, h http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rr.Body).Decode(v))
}

func TestHandler_CreateGetAndList(t *testing.T) {
	h, _ := setupHandlerTest(t, nil)

	rr := do(t, h, http.MethodPost, "/documents/report.pdf", []byte("pdf-bytes"))
	require.Equal(t, http.StatusCreated, rr.Code)
	var saved SaveResponse
	decode(t, rr, &saved)
	assert.Equal(t, "report.pdf", saved.ReloadDocumentID)
	assert.True(t, saved.Written)
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))

	rr = do(t, h, http.MethodGet, "/documents/report.pdf", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var doc DocumentResponse
	decode(t, rr, &doc)
	assert.Equal(t, "plain", strings.ToLower(doc.Mode))
	assert.Equal(t, []byte("pdf-bytes"), doc.Content)

	rr = do(t, h, http.MethodGet, "/documents/report.pdf/content", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "pdf-bytes", rr.Body.String())

	rr = do(t, h, http.MethodGet, "/documents", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var ids []string
	decode(t, rr, &ids)
	assert.Equal(t, []string{"report.pdf"}, ids)
}

func TestHandler_ErrorStatuses(t *testing.T) {
	h, store := setupHandlerTest(t, nil)
	put(t, store, "taken.pdf", "x")

	tests := []struct {
		name   string
		method string
		target string
		status int
		code   string
	}{
		{"missing document", http.MethodGet, "/documents/missing.pdf", http.StatusNotFound, "not_found"},
		{"create collision", http.MethodPost, "/documents/taken.pdf", http.StatusConflict, "already_exists"},
		{"traversal id", http.MethodGet, "/documents/..", http.StatusBadRequest, "invalid_identifier"},
		{"save sparse", http.MethodPut, "/documents/SparseDocument:folder", http.StatusBadRequest, "unsupported_operation"},
		{"missing sparse folder", http.MethodGet, "/documents/SparseDocument:nothing", http.StatusNotFound, "not_found"},
		{"unknown artifact kind", http.MethodGet, "/documents/taken.pdf/artifacts/stamp", http.StatusBadRequest, "unsupported_operation"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, h, tt.method, tt.target, []byte("body"))
			require.Equal(t, tt.status, rr.Code, rr.Body.String())
			var resp ErrorResponse
			decode(t, rr, &resp)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.NotEmpty(t, resp.Error.RequestID)
		})
	}
}

func TestHandler_ReadOnly(t *testing.T) {
	h, store := setupHandlerTest(t, []docstore.Option{docstore.WithReadOnly(true)})

	rr := do(t, h, http.MethodPost, "/documents/new.pdf", []byte("x"))
	assert.Equal(t, http.StatusForbidden, rr.Code)

	ids, err := store.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestHandler_EscapedDocumentID(t *testing.T) {
	h, store := setupHandlerTest(t, nil)
	put(t, store, "scan 1.tif", "tiff")

	rr := do(t, h, http.MethodGet, "/documents/"+url.PathEscape("scan 1.tif")+"/content", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "tiff", rr.Body.String())
}

func TestHandler_SparseWindow(t *testing.T) {
	h, store := setupHandlerTest(t, nil)
	for _, page := range []string{"p0", "p1", "p2", "p3"} {
		put(t, store, "book/"+page, page)
	}

	rr := do(t, h, http.MethodGet, "/documents/SparseDocument:book?start=1&count=2", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var doc DocumentResponse
	decode(t, rr, &doc)
	require.NotNil(t, doc.Sparse)
	assert.Equal(t, [][]byte{[]byte("p1"), []byte("p2")}, doc.Sparse.Pages)
	assert.Equal(t, 2, doc.Sparse.ReturnedCount)

	rr = do(t, h, http.MethodGet, "/documents/SparseDocument:book?start=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandler_Annotations(t *testing.T) {
	h, store := setupHandlerTest(t, nil)
	put(t, store, "contract.pdf", "pdf")

	rr := do(t, h, http.MethodPut, "/documents/contract.pdf/annotations/sig", []byte("<ann/>"))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = do(t, h, http.MethodPut, "/documents/contract.pdf/annotations/sig?page=2", []byte("<page/>"))
	require.Equal(t, http.StatusOK, rr.Code)
	var saved map[string]string
	decode(t, rr, &saved)
	assert.Equal(t, "contract.pdf.sig-page2.ann", saved["key"])

	rr = do(t, h, http.MethodGet, "/documents/contract.pdf/annotations", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var ids []string
	decode(t, rr, &ids)
	assert.Contains(t, ids, "sig")

	rr = do(t, h, http.MethodGet, "/documents/contract.pdf/annotations/sig", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var layer docstore.AnnotationLayer
	decode(t, rr, &layer)
	assert.Equal(t, []byte("<ann/>"), layer.Data)

	rr = do(t, h, http.MethodGet, "/documents/contract.pdf/annotations/sig/properties", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var props docstore.AnnotationProperties
	decode(t, rr, &props)
	assert.Equal(t, docstore.PermissionDelete, props.PermissionLevel)

	rr = do(t, h, http.MethodGet, "/documents/contract.pdf/annotations/ghost/properties", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, h, http.MethodDelete, "/documents/contract.pdf/annotations/sig", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = do(t, h, http.MethodDelete, "/documents/contract.pdf/annotations/sig", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestHandler_SaveComponents(t *testing.T) {
	h, store := setupHandlerTest(t, nil)
	put(t, store, "memo.pdf", "v1")
	put(t, store, "memo.pdf.old.ann", "old")

	body, err := json.Marshal(SaveComponentsBody{
		Content: []byte("v2"),
		Annotations: []docstore.AnnotationLayer{
			{LayerID: "new", Data: []byte("n"), IsNew: true},
			{LayerID: "kept", Data: []byte("k")},
		},
		DeletedLayerIDs: []string{"old"},
		Notes:           []byte("notes"),
	})
	require.NoError(t, err)

	rr := do(t, h, http.MethodPut, "/documents/memo.pdf/components", body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var resp SaveComponentsResponse
	decode(t, rr, &resp)
	assert.Equal(t, "memo.pdf", resp.ReloadDocumentID)
	assert.Equal(t, []string{"new"}, resp.SavedLayers)
	require.NotNil(t, resp.Deleted)
	assert.Empty(t, resp.Deleted.Failures)

	exists, err := store.Exists(context.Background(), "memo.pdf.old.ann")
	require.NoError(t, err)
	assert.False(t, exists)

	rr = do(t, h, http.MethodGet, "/documents/memo.pdf/artifacts/notes", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "notes", rr.Body.String())
}

func TestHandler_ArtifactsAndCallbacks(t *testing.T) {
	h, store := setupHandlerTest(t, nil)
	put(t, store, "a.pdf", "pdf")

	rr := do(t, h, http.MethodPut, "/documents/a.pdf/artifacts/bookmark", []byte("bm"))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, h, http.MethodGet, "/documents/a.pdf/artifacts/bookmark", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "bm", rr.Body.String())

	rr = do(t, h, http.MethodDelete, "/documents/a.pdf/artifacts/bookmark", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = do(t, h, http.MethodGet, "/documents/a.pdf/cache", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var cache map[string]bool
	decode(t, rr, &cache)
	assert.True(t, cache["valid"])

	rr = do(t, h, http.MethodPost, "/documents/a.pdf/events", []byte(`{"type":"documentClosed","params":{"page":"3"}}`))
	assert.Equal(t, http.StatusAccepted, rr.Code)

	rr = do(t, h, http.MethodPost, "/documents/a.pdf/events", []byte(`{}`))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestHandler_TokenAuth(t *testing.T) {
	auth := jwtauth.New("HS256", []byte("test-secret"), nil)
	h, store := setupHandlerTest(t, nil, WithTokenAuth(auth))
	put(t, store, "a.pdf", "pdf")
	put(t, store, "a.pdf.sig.ann", "ann")

	rr := do(t, h, http.MethodGet, "/documents/a.pdf/annotations/sig/properties", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	_, token, err := auth.Encode(map[string]interface{}{PermissionClaim: "view"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/documents/a.pdf/annotations/sig/properties", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var props docstore.AnnotationProperties
	decode(t, rr, &props)
	assert.Equal(t, docstore.PermissionView, props.PermissionLevel)
}

func TestPermissionFromClaim(t *testing.T) {
	tests := []struct {
		raw     interface{}
		want    docstore.PermissionLevel
		wantErr bool
	}{
		{float64(20), docstore.PermissionPrint, false},
		{"annotate", docstore.PermissionAnnotate, false},
		{"DELETE", docstore.PermissionDelete, false},
		{"50", docstore.PermissionEdit, false},
		{"owner", docstore.PermissionNone, true},
		{true, docstore.PermissionNone, true},
	}
	for _, tt := range tests {
		got, err := permissionFromClaim(tt.raw)
		if tt.wantErr {
			assert.Error(t, err, "%v", tt.raw)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}
