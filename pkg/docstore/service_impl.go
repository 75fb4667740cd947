package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tendant/simple-docstore/pkg/docstore/metrics"
	"github.com/tendant/simple-docstore/pkg/docstore/tifftag"
)

// healthCheckKey is probed by CheckAvailable; it never needs to exist
const healthCheckKey = ".docstore-health"

// service implements the Service interface
type service struct {
	store      ObjectStore
	codec      KeyCodec
	eventSink  EventSink
	recorder   metrics.Recorder
	logger     *slog.Logger
	readOnly   bool
	debug      bool
	tiffTags   bool
	resolution CompoundResolution
	extensions []string

	documents *DocumentStore
	artifacts *ArtifactStore
	sparse    *SparseAssembler
	compound  *CompoundAssembler
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithObjectStore sets the backing object store
func WithObjectStore(store ObjectStore) Option {
	return func(s *service) {
		s.store = store
	}
}

// WithFolder places every key under folder
func WithFolder(folder string) Option {
	return func(s *service) {
		s.codec = NewKeyCodec(folder)
	}
}

// WithEventSink sets the event sink for the service
func WithEventSink(sink EventSink) Option {
	return func(s *service) {
		s.eventSink = sink
	}
}

// WithRecorder sets the metrics recorder
func WithRecorder(recorder metrics.Recorder) Option {
	return func(s *service) {
		s.recorder = recorder
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// WithReadOnly rejects every mutating operation
func WithReadOnly(readOnly bool) Option {
	return func(s *service) {
		s.readOnly = readOnly
	}
}

// WithDebug reports reversed document names, making the store in use visible in the viewer
func WithDebug(debug bool) Option {
	return func(s *service) {
		s.debug = debug
	}
}

// WithTIFFTagAnnotations reports embedded TIFF annotations as an extra layer
func WithTIFFTagAnnotations(enabled bool) Option {
	return func(s *service) {
		s.tiffTags = enabled
	}
}

// WithCompoundResolution selects how compound components map to keys
func WithCompoundResolution(resolution CompoundResolution) Option {
	return func(s *service) {
		s.resolution = resolution
	}
}

// WithDocumentExtensions sets the extensions ListDocuments accepts
func WithDocumentExtensions(extensions []string) Option {
	return func(s *service) {
		s.extensions = extensions
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		eventSink:  NewNoopEventSink(),
		recorder:   metrics.NoopRecorder{},
		logger:     slog.Default(),
		resolution: CompoundAliased,
	}

	for _, option := range options {
		option(s)
	}

	if s.store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if s.eventSink == nil {
		s.eventSink = NewNoopEventSink()
	}
	if s.recorder == nil {
		s.recorder = metrics.NoopRecorder{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.documents = NewDocumentStore(s.store, DocumentStoreConfig{
		Codec:      s.codec,
		ReadOnly:   s.readOnly,
		Extensions: s.extensions,
		Logger:     s.logger,
	})
	s.artifacts = NewArtifactStore(s.store, ArtifactStoreConfig{
		Codec:    s.codec,
		ReadOnly: s.readOnly,
		Logger:   s.logger,
	})
	s.sparse = NewSparseAssembler(s.store, s.codec, s.logger)
	s.compound = NewCompoundAssembler(s.store, s.codec, s.resolution, s.logger)

	return s, nil
}

// Document operations

func (s *service) GetDocument(ctx context.Context, req GetDocumentRequest) (*DocumentContent, error) {
	mode, _ := Classify(req.DocumentID)
	scraped, err := ScrapeDocumentID(req.DocumentID)
	if err != nil {
		return nil, err
	}

	result := &DocumentContent{DocumentID: scraped, Mode: mode}
	switch mode {
	case ModeSparse:
		doc, err := s.sparse.Fetch(ctx, req.DocumentID, req.Window)
		if err != nil {
			return nil, err
		}
		if len(doc.Failures) > 0 {
			s.recorder.IncPartialFailure("sparse_fetch", len(doc.Failures))
		}
		result.Sparse = doc
		result.DisplayName = doc.Name
		if s.debug {
			result.DisplayName = strings.ToUpper(reverse(scraped))
		}

	case ModeCompound:
		doc, err := s.compound.Assemble(ctx, req.DocumentID)
		if err != nil {
			return nil, err
		}
		result.Compound = doc
		result.DisplayName = doc.DisplayName
		if s.debug {
			result.DisplayName = strings.ToUpper(reverse(scraped))
		}

	default:
		content, err := s.documents.Get(ctx, req.DocumentID)
		if err != nil {
			s.logger.Error("Document not found", "document_id", scraped, "error", err)
			return nil, err
		}
		result.Content = content
		result.DisplayName = scraped
		if s.debug {
			result.DisplayName = reverse(scraped)
		}
	}
	return result, nil
}

func (s *service) OpenDocument(ctx context.Context, documentID string) (*OpenDocumentResult, error) {
	if mode, _ := Classify(documentID); mode == ModeSparse || mode == ModeCompound {
		return nil, &DocumentError{DocumentID: documentID, Op: "open", Err: ErrUnsupportedOperation}
	}
	return s.documents.Open(ctx, documentID)
}

func (s *service) CreateDocument(ctx context.Context, req SaveDocumentRequest) (*SaveResult, error) {
	result, err := s.documents.Create(ctx, req)
	if err != nil {
		return nil, err
	}
	if result.Written {
		s.publish(ctx, NewEvent(EventDocumentCreated, result.ReloadDocumentID, result.Key))
	}
	return result, nil
}

func (s *service) SaveDocument(ctx context.Context, req SaveDocumentRequest) (*SaveResult, error) {
	result, err := s.documents.Save(ctx, req)
	if err != nil {
		return nil, err
	}
	if result.Written {
		s.publish(ctx, NewEvent(EventDocumentSaved, result.ReloadDocumentID, result.Key))
	}
	return result, nil
}

func (s *service) SaveDocumentComponents(ctx context.Context, req SaveComponentsRequest) (*SaveComponentsResult, error) {
	if s.readOnly {
		return nil, ErrReadOnly
	}
	if mode, _ := Classify(req.DocumentID); mode == ModeSparse || mode == ModeCompound {
		return nil, &DocumentError{DocumentID: req.DocumentID, Op: "save components", Err: ErrUnsupportedOperation}
	}
	id, err := ScrapeDocumentID(req.DocumentID)
	if err != nil {
		return nil, err
	}

	result := &SaveComponentsResult{ReloadDocumentID: id}

	if req.Content != nil {
		if _, err := s.SaveDocument(ctx, SaveDocumentRequest{DocumentID: id, Content: req.Content}); err != nil {
			return nil, err
		}
	}

	for _, layer := range req.Annotations {
		if !layer.IsNew && !layer.IsModified {
			s.logger.Debug("Skipping unmodified layer", "document_id", id, "layer_id", layer.LayerID)
			result.SkippedLayers = append(result.SkippedLayers, layer.LayerID)
			continue
		}
		if layer.Data == nil {
			result.SkippedLayers = append(result.SkippedLayers, layer.LayerID)
			continue
		}
		ref := ArtifactRef{
			DocumentID: id,
			Kind:       KindAnnotation,
			LayerID:    layer.LayerID,
			PageScoped: layer.PageScoped,
			PageIndex:  layer.PageIndex,
		}
		key, err := s.artifacts.Save(ctx, ref, layer.Data)
		if err != nil {
			return nil, err
		}
		s.publishArtifact(ctx, EventArtifactSaved, id, key, KindAnnotation)
		result.SavedLayers = append(result.SavedLayers, layer.LayerID)
	}

	if len(req.DeletedLayerIDs) > 0 {
		deleted, err := s.artifacts.DeleteMany(ctx, id, req.DeletedLayerIDs)
		if err != nil {
			return nil, err
		}
		if deleted.Failed() {
			s.recorder.IncPartialFailure("delete_layers", len(deleted.Failures))
		}
		for _, layerID := range deleted.Processed {
			key, _ := s.artifacts.KeyFor(AnnotationRef(id, layerID))
			s.publishArtifact(ctx, EventArtifactDeleted, id, key, KindAnnotation)
		}
		result.Deleted = deleted
	}

	for _, part := range []struct {
		kind ArtifactKind
		data []byte
	}{
		{KindNote, req.Notes},
		{KindBookmark, req.Bookmarks},
		{KindWatermark, req.Watermarks},
	} {
		if part.data == nil {
			continue
		}
		if _, err := s.SaveArtifact(ctx, ArtifactRequest{DocumentID: id, Kind: part.kind}, part.data); err != nil {
			return nil, err
		}
	}

	return result, nil
}

func (s *service) SaveDocumentComponentsAs(ctx context.Context, req SaveComponentsRequest) (*SaveComponentsResult, error) {
	if s.readOnly {
		return nil, ErrReadOnly
	}
	return s.SaveDocumentComponents(ctx, req)
}

func (s *service) ListDocuments(ctx context.Context) ([]string, error) {
	return s.documents.ListDocumentIDs(ctx)
}

// Annotation operations

func (s *service) ListAnnotations(ctx context.Context, documentID string) ([]string, error) {
	var ids []string
	if s.tiffTags && s.hasTIFFTagAnnotations(ctx, documentID) {
		ids = append(ids, TIFFTagLayerID)
	}

	stored, err := s.artifacts.ListAnnotationIDs(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return append(ids, stored...), nil
}

func (s *service) hasTIFFTagAnnotations(ctx context.Context, documentID string) bool {
	if mode, _ := Classify(documentID); mode != ModePlain {
		return false
	}
	content, err := s.documents.Get(ctx, documentID)
	if err != nil {
		s.logger.Error("Error retrieving TIFF tag annotations", "document_id", documentID, "error", err)
		return false
	}
	if !tifftag.IsTIFF(content) {
		return false
	}
	found, err := tifftag.HasTag(content, tifftag.WangAnnotation)
	if err != nil {
		s.logger.Error("Error scanning TIFF tags", "document_id", documentID, "error", err)
		return false
	}
	return found
}

func (s *service) GetAnnotation(ctx context.Context, req AnnotationRequest) (*AnnotationLayer, error) {
	id, err := ScrapeDocumentID(req.DocumentID)
	if err != nil {
		return nil, err
	}
	props, err := s.GetAnnotationProperties(ctx, req)
	if err != nil {
		return nil, err
	}

	data, err := s.artifacts.Get(ctx, AnnotationRef(id, req.LayerID))
	if err != nil {
		return nil, err
	}
	return &AnnotationLayer{
		LayerID:     req.LayerID,
		DocumentID:  id,
		DisplayName: req.LayerID,
		Data:        data,
		Properties:  props,
	}, nil
}

// GetAnnotationProperties returns nil properties for layers that are not stored
func (s *service) GetAnnotationProperties(ctx context.Context, req AnnotationRequest) (*AnnotationProperties, error) {
	id, err := ScrapeDocumentID(req.DocumentID)
	if err != nil {
		return nil, err
	}
	exists, err := s.artifacts.Exists(ctx, AnnotationRef(id, req.LayerID))
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}

	props := &AnnotationProperties{PermissionLevel: PermissionDelete}
	if req.PermissionLevel != nil {
		props.PermissionLevel = *req.PermissionLevel
	} else if level, ok := permissionFromClientInstance(req.ClientInstanceID); ok {
		props.PermissionLevel = level
	}
	return props, nil
}

// permissionFromClientInstance reads the annotationPermissionLevel override a
// JSON client instance id may carry. Other ids are ignored.
func permissionFromClientInstance(clientInstanceID string) (PermissionLevel, bool) {
	if clientInstanceID == "" {
		return PermissionNone, false
	}
	var settings struct {
		AnnotationPermissionLevel *int `json:"annotationPermissionLevel"`
	}
	if err := json.Unmarshal([]byte(clientInstanceID), &settings); err != nil || settings.AnnotationPermissionLevel == nil {
		return PermissionNone, false
	}
	return PermissionLevel(*settings.AnnotationPermissionLevel), true
}

func (s *service) SaveAnnotation(ctx context.Context, req SaveAnnotationRequest) (string, error) {
	if s.readOnly {
		return "", ErrReadOnly
	}
	if req.Data == nil {
		return "", nil
	}
	id, err := ScrapeDocumentID(req.DocumentID)
	if err != nil {
		return "", err
	}

	props := ParseAnnotationProperties(req.Properties)
	s.logger.Debug("Saving annotation layer", "document_id", id, "layer_id", req.LayerID,
		"permission_level", props.PermissionLevel.String(), "redaction", props.RedactionFlag)

	key, err := s.artifacts.Save(ctx, ArtifactRef{
		DocumentID: id,
		Kind:       KindAnnotation,
		LayerID:    req.LayerID,
		PageScoped: req.PageScoped,
		PageIndex:  req.PageIndex,
	}, req.Data)
	if err != nil {
		return "", err
	}
	s.publishArtifact(ctx, EventArtifactSaved, id, key, KindAnnotation)
	return key, nil
}

func (s *service) DeleteAnnotation(ctx context.Context, req AnnotationRequest) error {
	if s.readOnly {
		return ErrReadOnly
	}
	id, err := ScrapeDocumentID(req.DocumentID)
	if err != nil {
		return err
	}
	ref := AnnotationRef(id, req.LayerID)
	key, err := s.artifacts.KeyFor(ref)
	if err != nil {
		return err
	}
	if err := s.artifacts.Delete(ctx, ref); err != nil {
		s.logger.Error("Failed to delete layer", "document_id", id, "layer_id", req.LayerID, "error", err)
		return err
	}
	s.publishArtifact(ctx, EventArtifactDeleted, id, key, KindAnnotation)
	return nil
}

// GetAllAnnotations returns every stored layer in listing order. Layers that
// disappear between listing and fetch are skipped.
func (s *service) GetAllAnnotations(ctx context.Context, req AnnotationRequest) ([]*AnnotationLayer, error) {
	ids, err := s.ListAnnotations(ctx, req.DocumentID)
	if err != nil {
		return nil, err
	}

	var layers []*AnnotationLayer
	for _, layerID := range ids {
		if layerID == TIFFTagLayerID {
			continue
		}
		layerReq := req
		layerReq.LayerID = layerID
		layer, err := s.GetAnnotation(ctx, layerReq)
		if err != nil {
			if IsNotFound(err) {
				s.logger.Debug("Skipping missing layer", "document_id", req.DocumentID, "layer_id", layerID)
				continue
			}
			return nil, err
		}
		layers = append(layers, layer)
	}
	return layers, nil
}

// Bookmark, note, watermark and OCR artifacts

func (s *service) GetArtifact(ctx context.Context, req ArtifactRequest) ([]byte, error) {
	if err := checkArtifactKind(req.Kind); err != nil {
		return nil, err
	}
	return s.artifacts.Get(ctx, ArtifactRef{DocumentID: req.DocumentID, Kind: req.Kind})
}

// SaveArtifact writes the artifact; nil data deletes it
func (s *service) SaveArtifact(ctx context.Context, req ArtifactRequest, data []byte) (string, error) {
	if s.readOnly {
		return "", ErrReadOnly
	}
	if err := checkArtifactKind(req.Kind); err != nil {
		return "", err
	}
	if data == nil {
		return "", s.DeleteArtifact(ctx, req)
	}

	key, err := s.artifacts.Save(ctx, ArtifactRef{DocumentID: req.DocumentID, Kind: req.Kind}, data)
	if err != nil {
		return "", err
	}
	s.publishArtifact(ctx, EventArtifactSaved, req.DocumentID, key, req.Kind)
	return key, nil
}

func (s *service) DeleteArtifact(ctx context.Context, req ArtifactRequest) error {
	if s.readOnly {
		return ErrReadOnly
	}
	if err := checkArtifactKind(req.Kind); err != nil {
		return err
	}
	ref := ArtifactRef{DocumentID: req.DocumentID, Kind: req.Kind}
	key, err := s.artifacts.KeyFor(ref)
	if err != nil {
		return err
	}
	if err := s.artifacts.Delete(ctx, ref); err != nil {
		return err
	}
	s.publishArtifact(ctx, EventArtifactDeleted, req.DocumentID, key, req.Kind)
	return nil
}

func checkArtifactKind(kind ArtifactKind) error {
	switch kind {
	case KindBookmark, KindNote, KindWatermark, KindOCRText:
		return nil
	default:
		return fmt.Errorf("%w: %s is not a document artifact", ErrUnsupportedOperation, kind)
	}
}

// GetOCRData returns stored OCR text. It serves both the on-load and the
// perform-OCR host calls; no OCR engine is run.
func (s *service) GetOCRData(ctx context.Context, documentID string) ([]byte, error) {
	return s.GetArtifact(ctx, ArtifactRequest{DocumentID: documentID, Kind: KindOCRText})
}

// Host callbacks

func (s *service) ValidateCache(ctx context.Context, documentID string) (bool, error) {
	return true, nil
}

func (s *service) CheckAvailable(ctx context.Context) error {
	if _, err := s.store.Exists(ctx, s.codec.Prefix()+healthCheckKey); err != nil {
		return fmt.Errorf("object store %s unavailable: %w", s.store, err)
	}
	return nil
}

func (s *service) Notify(ctx context.Context, event HostEvent) error {
	s.logger.Debug("Host event", "type", event.Type, "document_id", event.DocumentID, "params", event.Params)
	e := NewEvent(EventHostNotified, event.DocumentID, "")
	e.Params = make(map[string]string, len(event.Params)+1)
	for k, v := range event.Params {
		e.Params[k] = v
	}
	e.Params["event"] = event.Type
	s.publish(ctx, e)
	return nil
}

func (s *service) publishArtifact(ctx context.Context, eventType EventType, documentID, key string, kind ArtifactKind) {
	e := NewEvent(eventType, documentID, key)
	e.Kind = kind
	s.publish(ctx, e)
}

// publish delivers an event; sink failures are logged and never returned
func (s *service) publish(ctx context.Context, event Event) {
	err := s.eventSink.Publish(ctx, event)
	s.recorder.IncEvent(string(event.Type), err == nil)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("Failed to publish event", "type", string(event.Type), "document_id", event.DocumentID, "error", err)
	}
}

func reverse(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}
