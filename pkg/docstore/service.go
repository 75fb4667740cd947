package docstore

import "context"

// Service defines the document store operations exposed to the viewer host
type Service interface {
	// Document operations
	GetDocument(ctx context.Context, req GetDocumentRequest) (*DocumentContent, error)
	OpenDocument(ctx context.Context, documentID string) (*OpenDocumentResult, error)
	CreateDocument(ctx context.Context, req SaveDocumentRequest) (*SaveResult, error)
	SaveDocument(ctx context.Context, req SaveDocumentRequest) (*SaveResult, error)
	SaveDocumentComponents(ctx context.Context, req SaveComponentsRequest) (*SaveComponentsResult, error)
	SaveDocumentComponentsAs(ctx context.Context, req SaveComponentsRequest) (*SaveComponentsResult, error)
	ListDocuments(ctx context.Context) ([]string, error)

	// Annotation operations
	ListAnnotations(ctx context.Context, documentID string) ([]string, error)
	GetAnnotation(ctx context.Context, req AnnotationRequest) (*AnnotationLayer, error)
	GetAnnotationProperties(ctx context.Context, req AnnotationRequest) (*AnnotationProperties, error)
	SaveAnnotation(ctx context.Context, req SaveAnnotationRequest) (string, error)
	DeleteAnnotation(ctx context.Context, req AnnotationRequest) error
	GetAllAnnotations(ctx context.Context, req AnnotationRequest) ([]*AnnotationLayer, error)

	// Bookmark, note, watermark and OCR artifacts
	GetArtifact(ctx context.Context, req ArtifactRequest) ([]byte, error)
	SaveArtifact(ctx context.Context, req ArtifactRequest, data []byte) (string, error)
	DeleteArtifact(ctx context.Context, req ArtifactRequest) error
	GetOCRData(ctx context.Context, documentID string) ([]byte, error)

	// Host callbacks
	ValidateCache(ctx context.Context, documentID string) (bool, error)
	CheckAvailable(ctx context.Context) error
	Notify(ctx context.Context, event HostEvent) error
}
