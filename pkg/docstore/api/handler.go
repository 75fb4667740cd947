// Package api exposes a docstore.Service over HTTP.
package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth"
	"github.com/go-chi/render"
	"github.com/tendant/simple-docstore/pkg/docstore"
)

// maxBodyBytes limits uploaded document and annotation bodies
const maxBodyBytes = 512 << 20

// Handler handles HTTP requests for documents and their artifacts
type Handler struct {
	service docstore.Service
	logger  *slog.Logger
	auth    *jwtauth.JWTAuth
}

// HandlerOption configures a Handler
type HandlerOption func(*Handler)

// WithLogger sets the request logger
func WithLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithTokenAuth requires a valid JWT on every document route
func WithTokenAuth(auth *jwtauth.JWTAuth) HandlerOption {
	return func(h *Handler) {
		h.auth = auth
	}
}

// NewHandler creates a new document handler
func NewHandler(service docstore.Service, opts ...HandlerOption) *Handler {
	h := &Handler{service: service, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the routes for documents
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(h.logger))

	r.Get("/health", h.Health)

	r.Group(func(r chi.Router) {
		if h.auth != nil {
			r.Use(jwtauth.Verifier(h.auth))
			r.Use(jwtauth.Authenticator)
			r.Use(PermissionMiddleware)
		}

		r.Get("/documents", h.ListDocuments)
		r.Route("/documents/{id}", func(r chi.Router) {
			r.Get("/", h.GetDocument)
			r.Post("/", h.CreateDocument)
			r.Put("/", h.SaveDocument)
			r.Get("/content", h.OpenDocument)
			r.Put("/components", h.SaveComponents)

			r.Get("/annotations", h.ListAnnotations)
			r.Get("/annotations/{layer}", h.GetAnnotation)
			r.Put("/annotations/{layer}", h.SaveAnnotation)
			r.Delete("/annotations/{layer}", h.DeleteAnnotation)
			r.Get("/annotations/{layer}/properties", h.GetAnnotationProperties)
			r.Get("/layers", h.GetAllAnnotations)

			r.Get("/artifacts/{kind}", h.GetArtifact)
			r.Put("/artifacts/{kind}", h.SaveArtifact)
			r.Delete("/artifacts/{kind}", h.DeleteArtifact)
			r.Get("/ocr", h.GetOCRData)

			r.Get("/cache", h.ValidateCache)
			r.Post("/events", h.Notify)
		})
	})

	return r
}

// pathParam returns an unescaped URL parameter; document ids may carry
// escaped separators.
func pathParam(r *http.Request, name string) (string, error) {
	raw := chi.URLParam(r, name)
	value, err := url.PathUnescape(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", docstore.ErrInvalidIdentifier, name, err)
	}
	if value == "" {
		return "", fmt.Errorf("%w: missing %s", docstore.ErrInvalidIdentifier, name)
	}
	return value, nil
}

func queryInt(r *http.Request, name string) (int, bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, false, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false, fmt.Errorf("%w: %s must be a non-negative integer", docstore.ErrInvalidIdentifier, name)
	}
	return n, true, nil
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read body: %v", docstore.ErrInvalidIdentifier, err)
	}
	return data, nil
}

// annotationRequest builds an AnnotationRequest carrying the token's
// permission level, when the request was authenticated.
func annotationRequest(r *http.Request, documentID, layerID string) docstore.AnnotationRequest {
	return docstore.AnnotationRequest{
		DocumentID:       documentID,
		LayerID:          layerID,
		ClientInstanceID: r.URL.Query().Get("client_instance_id"),
		PermissionLevel:  permissionFromContext(r.Context()),
	}
}

// Health reports whether the object store is reachable
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.service.CheckAvailable(r.Context()); err != nil {
		h.logger.Error("Object store unavailable", "error", err)
		writeError(w, r, fmt.Errorf("%w: %v", docstore.ErrStoreUnavailable, err))
		return
	}
	render.PlainText(w, r, http.StatusText(http.StatusOK))
}

// ListDocuments lists the documents available under the configured folder
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	ids, err := h.service.ListDocuments(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	render.JSON(w, r, ids)
}

// GetDocument fetches a plain, sparse or compound document. Sparse windows
// are selected with the start and count query parameters.
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	documentID, err := pathParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	start, _, err := queryInt(r, "start")
	if err != nil {
		writeError(w, r, err)
		return
	}
	count, _, err := queryInt(r, "count")
	if err != nil {
		writeError(w, r, err)
		return
	}

	doc, err := h.service.GetDocument(r.Context(), docstore.GetDocumentRequest{
		DocumentID: documentID,
		Window:     docstore.SparseWindow{StartPage: start, PageCount: count},
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, toDocumentResponse(doc))
}

// OpenDocument streams the raw bytes of a plain document
func (h *Handler) OpenDocument(w http.ResponseWriter, r *http.Request) {
	documentID, err := pathParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.service.OpenDocument(r.Context(), documentID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer res.Reader.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := io.Copy(w, res.Reader); err != nil {
		h.logger.Error("Failed to stream document", "document_id", documentID, "error", err)
	}
}

// CreateDocument stores a new document. Email attachments are created with
// attachment=true and parent=<document id>.
func (h *Handler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	documentID, err := pathParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	content, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	attachment, _ := strconv.ParseBool(r.URL.Query().Get("attachment"))

	res, err := h.service.CreateDocument(r.Context(), docstore.SaveDocumentRequest{
		DocumentID:        documentID,
		Content:           content,
		IsEmailAttachment: attachment,
		ParentDocumentID:  r.URL.Query().Get("parent"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	if !res.Existing {
		render.Status(r, http.StatusCreated)
	}
	render.JSON(w, r, SaveResponse{
		ReloadDocumentID: res.ReloadDocumentID,
		Key:              res.Key,
		Existing:         res.Existing,
		Written:          res.Written,
	})
}

// SaveDocument overwrites the bytes of a document
func (h *Handler) SaveDocument(w http.ResponseWriter, r *http.Request) {
	documentID, err := pathParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	content, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.service.SaveDocument(r.Context(), docstore.SaveDocumentRequest{
		DocumentID: documentID,
		Content:    content,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, SaveResponse{
		ReloadDocumentID: res.ReloadDocumentID,
		Key:              res.Key,
		Written:          res.Written,
	})
}

// SaveComponents saves a document together with its annotations, notes,
// bookmarks and watermarks
func (h *Handler) SaveComponents(w http.ResponseWriter, r *http.Request) {
	documentID, err := pathParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var body SaveComponentsBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	req := docstore.SaveComponentsRequest{
		DocumentID:      documentID,
		Content:         body.Content,
		Annotations:     body.Annotations,
		DeletedLayerIDs: body.DeletedLayerIDs,
		Notes:           body.Notes,
		Bookmarks:       body.Bookmarks,
		Watermarks:      body.Watermarks,
	}

	save := h.service.SaveDocumentComponents
	if body.SaveAs {
		save = h.service.SaveDocumentComponentsAs
	}
	res, err := save(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, toSaveComponentsResponse(res))
}

// ListAnnotations lists the annotation layer ids of a document
func (h *Handler) ListAnnotations(w http.ResponseWriter, r *http.Request) {
	documentID, err := pathParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	ids, err := h.service.ListAnnotations(r.Context(), documentID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	render.JSON(w, r, ids)
}

// GetAnnotation returns one annotation layer with its properties
func (h *Handler) GetAnnotation(w http.ResponseWriter, r *http.Request) {
	documentID, err := pathParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	layerID, err := pathParam(r, "layer")
	if err != nil {
		writeError(w, r, err)
		return
	}
	layer, err := h.service.GetAnnotation(r.Context(), annotationRequest(r, documentID, layerID))
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, layer)
}

// GetAnnotationProperties returns the properties of an existing layer
func (h *Handler) GetAnnotationProperties(w http.ResponseWriter, r *http.Request) {
	documentID, err := pathParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	layerID, err := pathParam(r, "layer")
	if err != nil {
		writeError(w, r, err)
		return
	}
	props, err := h.service.GetAnnotationProperties(r.Context(), annotationRequest(r, documentID, layerID))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if props == nil {
		writeError(w, r, fmt.Errorf("%w: annotation layer %s", docstore.ErrNotFound, layerID))
		return
	}
	render.JSON(w, r, props)
}

// SaveAnnotation stores the request body as an annotation layer. The page
// query parameter stores a page-scoped layer.
func (h *Handler) SaveAnnotation(w http.ResponseWriter, r *http.Request) {
	documentID, err := pathParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	layerID, err := pathParam(r, "layer")
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, pageScoped, err := queryInt(r, "page")
	if err != nil {
		writeError(w, r, err)
		return
	}
	data, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var props map[string]interface{}
	if level := r.URL.Query().Get("permission_level"); level != "" {
		parsed, err := docstore.ParsePermissionLevel(level)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: %v", docstore.ErrInvalidIdentifier, err))
			return
		}
		props = map[string]interface{}{docstore.PropertyPermissionLevel: int(parsed)}
	}

	key, err := h.service.SaveAnnotation(r.Context(), docstore.SaveAnnotationRequest{
		DocumentID: documentID,
		LayerID:    layerID,
		Data:       data,
		Properties: props,
		PageScoped: pageScoped,
		PageIndex:  page,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]string{"key": key})
}

// DeleteAnnotation removes an annotation layer; absent layers are not an error
func (h *Handler) DeleteAnnotation(w http.ResponseWriter, r *http.Request) {
	documentID, err := pathParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	layerID, err := pathParam(r, "layer")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.service.DeleteAnnotation(r.Context(), annotationRequest(r, documentID, layerID)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetAllAnnotations returns every stored annotation layer of a document
func (h *Handler) GetAllAnnotations(w http.ResponseWriter, r *http.Request) {
	documentID, err := pathParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	layers, err := h.service.GetAllAnnotations(r.Context(), annotationRequest(r, documentID, ""))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if layers == nil {
		layers = []*docstore.AnnotationLayer{}
	}
	render.JSON(w, r, layers)
}

func artifactRequest(r *http.Request) (docstore.ArtifactRequest, error) {
	documentID, err := pathParam(r, "id")
	if err != nil {
		return docstore.ArtifactRequest{}, err
	}
	kind, err := docstore.ParseArtifactKind(chi.URLParam(r, "kind"))
	if err != nil {
		return docstore.ArtifactRequest{}, fmt.Errorf("%w: %v", docstore.ErrUnsupportedOperation, err)
	}
	return docstore.ArtifactRequest{DocumentID: documentID, Kind: kind}, nil
}

// GetArtifact returns a bookmark, note, watermark or OCR artifact
func (h *Handler) GetArtifact(w http.ResponseWriter, r *http.Request) {
	req, err := artifactRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	data, err := h.service.GetArtifact(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(data)
}

// SaveArtifact stores the request body as an artifact
func (h *Handler) SaveArtifact(w http.ResponseWriter, r *http.Request) {
	req, err := artifactRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	data, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	key, err := h.service.SaveArtifact(r.Context(), req, data)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]string{"key": key})
}

// DeleteArtifact removes an artifact; absent artifacts are not an error
func (h *Handler) DeleteArtifact(w http.ResponseWriter, r *http.Request) {
	req, err := artifactRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.service.DeleteArtifact(r.Context(), req); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetOCRData returns the stored OCR text of a document
func (h *Handler) GetOCRData(w http.ResponseWriter, r *http.Request) {
	documentID, err := pathParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	data, err := h.service.GetOCRData(r.Context(), documentID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// ValidateCache reports whether the host may keep its cached copy
func (h *Handler) ValidateCache(w http.ResponseWriter, r *http.Request) {
	documentID, err := pathParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	valid, err := h.service.ValidateCache(r.Context(), documentID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]bool{"valid": valid})
}

// Notify forwards a host event
func (h *Handler) Notify(w http.ResponseWriter, r *http.Request) {
	documentID, err := pathParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var body NotifyBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if body.Type == "" {
		http.Error(w, "Missing event type", http.StatusBadRequest)
		return
	}

	err = h.service.Notify(r.Context(), docstore.HostEvent{
		DocumentID: documentID,
		Type:       body.Type,
		Params:     body.Params,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
