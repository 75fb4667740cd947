package docstore

import "io"

// Request/response DTOs for the document store service

// GetDocumentRequest contains parameters for fetching a document
type GetDocumentRequest struct {
	DocumentID string
	Window     SparseWindow
}

// SaveDocumentRequest contains parameters for creating or saving a document
type SaveDocumentRequest struct {
	DocumentID        string
	Content           []byte
	IsEmailAttachment bool
	ParentDocumentID  string
}

// SaveComponentsRequest contains every component of a document save. Nil byte
// slices are left untouched.
type SaveComponentsRequest struct {
	DocumentID      string
	Content         []byte
	Annotations     []AnnotationLayer
	DeletedLayerIDs []string
	Notes           []byte
	Bookmarks       []byte
	Watermarks      []byte
}

// AnnotationRequest identifies an annotation layer of a document.
// PermissionLevel, when set, is the caller's pre-resolved permission and takes
// precedence over ClientInstanceID.
type AnnotationRequest struct {
	DocumentID       string
	LayerID          string
	ClientInstanceID string
	PermissionLevel  *PermissionLevel
}

// SaveAnnotationRequest contains parameters for saving one annotation layer
type SaveAnnotationRequest struct {
	DocumentID string
	LayerID    string
	Data       []byte
	Properties map[string]interface{}
	PageScoped bool
	PageIndex  int
}

// ArtifactRequest identifies a non-annotation artifact of a document
type ArtifactRequest struct {
	DocumentID string
	Kind       ArtifactKind
}

// HostEvent is a notification forwarded from the viewer host
type HostEvent struct {
	DocumentID string
	Type       string
	Params     map[string]string
}

// DocumentContent is the result of GetDocument. Plain documents carry Content;
// sparse documents carry Sparse; compound documents carry Compound.
type DocumentContent struct {
	DocumentID  string
	Mode        Mode
	DisplayName string
	Content     []byte
	Sparse      *SparseDocument
	Compound    *CompoundDocument
}

// OpenDocumentResult streams plain document content
type OpenDocumentResult struct {
	DocumentID string
	Key        string
	Reader     io.ReadCloser
}

// SaveResult reports the outcome of a document write
type SaveResult struct {
	// ReloadDocumentID is the id the host should reload
	ReloadDocumentID string
	Key              string

	// Existing is set when create found an already opened email attachment
	Existing bool

	// Written is false when the request carried no content
	Written bool
}

// SaveComponentsResult reports the outcome of a component save
type SaveComponentsResult struct {
	ReloadDocumentID string
	SavedLayers      []string
	SkippedLayers    []string
	Deleted          *BatchResult
}
