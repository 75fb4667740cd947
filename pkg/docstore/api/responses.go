package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
	"github.com/tendant/simple-docstore/pkg/docstore"
)

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody describes a failed request
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// statusFor maps docstore error kinds to HTTP status codes
func statusFor(err error) (int, string) {
	switch {
	case docstore.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, docstore.ErrAlreadyExists):
		return http.StatusConflict, "already_exists"
	case errors.Is(err, docstore.ErrReadOnly):
		return http.StatusForbidden, "read_only"
	case errors.Is(err, docstore.ErrInvalidIdentifier):
		return http.StatusBadRequest, "invalid_identifier"
	case errors.Is(err, docstore.ErrUnsupportedOperation):
		return http.StatusBadRequest, "unsupported_operation"
	case errors.Is(err, docstore.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "store_unavailable"
	case errors.Is(err, docstore.ErrPartialFailure):
		return http.StatusInternalServerError, "partial_failure"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "Request failed", "request_id", RequestID(r.Context()), "path", r.URL.Path, "error", err)
	}
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: ErrorBody{
		Code:      code,
		Message:   err.Error(),
		RequestID: RequestID(r.Context()),
	}})
}

// FailureResponse is one failed item of a best-effort operation
type FailureResponse struct {
	Item  string `json:"item"`
	Error string `json:"error"`
}

func failures(items []docstore.ItemFailure) []FailureResponse {
	if len(items) == 0 {
		return nil
	}
	out := make([]FailureResponse, 0, len(items))
	for _, f := range items {
		out = append(out, FailureResponse{Item: f.Item, Error: f.Err.Error()})
	}
	return out
}

// SparseResponse is the fetched window of a sparse document
type SparseResponse struct {
	Name          string            `json:"name"`
	Pages         [][]byte          `json:"pages"`
	StartPage     int               `json:"start_page"`
	ReturnedCount int               `json:"returned_count"`
	TotalCount    int               `json:"total_count"`
	Failures      []FailureResponse `json:"failures,omitempty"`
}

// CompoundResponse is an assembled compound document
type CompoundResponse struct {
	DisplayName string   `json:"display_name"`
	Components  []string `json:"components"`
	Elements    [][]byte `json:"elements"`
}

// DocumentResponse is the response body for GET /documents/{id}
type DocumentResponse struct {
	DocumentID  string            `json:"document_id"`
	Mode        string            `json:"mode"`
	DisplayName string            `json:"display_name"`
	Content     []byte            `json:"content,omitempty"`
	Sparse      *SparseResponse   `json:"sparse,omitempty"`
	Compound    *CompoundResponse `json:"compound,omitempty"`
}

func toDocumentResponse(doc *docstore.DocumentContent) DocumentResponse {
	resp := DocumentResponse{
		DocumentID:  doc.DocumentID,
		Mode:        doc.Mode.String(),
		DisplayName: doc.DisplayName,
		Content:     doc.Content,
	}
	if doc.Sparse != nil {
		resp.Sparse = &SparseResponse{
			Name:          doc.Sparse.Name,
			Pages:         doc.Sparse.Pages,
			StartPage:     doc.Sparse.StartPage,
			ReturnedCount: doc.Sparse.ReturnedCount,
			TotalCount:    doc.Sparse.TotalCount,
			Failures:      failures(doc.Sparse.Failures),
		}
	}
	if doc.Compound != nil {
		resp.Compound = &CompoundResponse{
			DisplayName: doc.Compound.DisplayName,
			Components:  doc.Compound.Components,
			Elements:    doc.Compound.Elements,
		}
	}
	return resp
}

// SaveResponse is the response body of document create and save
type SaveResponse struct {
	ReloadDocumentID string `json:"reload_document_id"`
	Key              string `json:"key,omitempty"`
	Existing         bool   `json:"existing"`
	Written          bool   `json:"written"`
}

// SaveComponentsBody is the request body for PUT /documents/{id}/components
type SaveComponentsBody struct {
	Content         []byte                     `json:"content,omitempty"`
	Annotations     []docstore.AnnotationLayer `json:"annotations,omitempty"`
	DeletedLayerIDs []string                   `json:"deleted_layer_ids,omitempty"`
	Notes           []byte                     `json:"notes,omitempty"`
	Bookmarks       []byte                     `json:"bookmarks,omitempty"`
	Watermarks      []byte                     `json:"watermarks,omitempty"`
	SaveAs          bool                       `json:"save_as,omitempty"`
}

// BatchResponse reports a best-effort batch
type BatchResponse struct {
	Processed []string          `json:"processed"`
	Skipped   []string          `json:"skipped,omitempty"`
	Failures  []FailureResponse `json:"failures,omitempty"`
}

// SaveComponentsResponse is the response body of a component save
type SaveComponentsResponse struct {
	ReloadDocumentID string         `json:"reload_document_id"`
	SavedLayers      []string       `json:"saved_layers"`
	SkippedLayers    []string       `json:"skipped_layers,omitempty"`
	Deleted          *BatchResponse `json:"deleted,omitempty"`
}

func toSaveComponentsResponse(res *docstore.SaveComponentsResult) SaveComponentsResponse {
	resp := SaveComponentsResponse{
		ReloadDocumentID: res.ReloadDocumentID,
		SavedLayers:      res.SavedLayers,
		SkippedLayers:    res.SkippedLayers,
	}
	if res.Deleted != nil {
		resp.Deleted = &BatchResponse{
			Processed: res.Deleted.Processed,
			Skipped:   res.Deleted.Skipped,
			Failures:  failures(res.Deleted.Failures),
		}
	}
	return resp
}

// NotifyBody is the request body for POST /documents/{id}/events
type NotifyBody struct {
	Type   string            `json:"type"`
	Params map[string]string `json:"params,omitempty"`
}
