package docstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
)

// ArtifactRef identifies one artifact of a document. LayerID, PageScoped and
// PageIndex only apply to annotations.
type ArtifactRef struct {
	DocumentID string
	Kind       ArtifactKind
	LayerID    string
	PageScoped bool
	PageIndex  int
}

// AnnotationRef returns the reference of an unscoped annotation layer
func AnnotationRef(documentID, layerID string) ArtifactRef {
	return ArtifactRef{DocumentID: documentID, Kind: KindAnnotation, LayerID: layerID}
}

// ArtifactStoreConfig configures an ArtifactStore
type ArtifactStoreConfig struct {
	Codec    KeyCodec
	ReadOnly bool
	Logger   *slog.Logger
}

// ArtifactStore reads and writes the secondary objects of a document
type ArtifactStore struct {
	store    ObjectStore
	codec    KeyCodec
	readOnly bool
	logger   *slog.Logger
}

// NewArtifactStore creates an artifact store over an object store
func NewArtifactStore(store ObjectStore, config ArtifactStoreConfig) *ArtifactStore {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &ArtifactStore{
		store:    store,
		codec:    config.Codec,
		readOnly: config.ReadOnly,
		logger:   config.Logger,
	}
}

// KeyFor derives the storage key of an artifact
func (a *ArtifactStore) KeyFor(ref ArtifactRef) (string, error) {
	if ref.Kind == KindDocument {
		return "", fmt.Errorf("%w: primary content is not an artifact", ErrInvalidIdentifier)
	}
	basename, err := ScrapeDocumentID(ref.DocumentID)
	if err != nil {
		return "", err
	}
	var discriminator string
	if ref.Kind == KindAnnotation {
		discriminator = AnnotationDiscriminator(ref.LayerID, ref.PageScoped, ref.PageIndex)
		if ref.LayerID == "" {
			discriminator = ""
		}
	}
	return a.codec.DeriveKey(basename, ref.Kind, discriminator)
}

// Save writes the artifact, replacing any previous content
func (a *ArtifactStore) Save(ctx context.Context, ref ArtifactRef, data []byte) (string, error) {
	if a.readOnly {
		return "", ErrReadOnly
	}
	key, err := a.KeyFor(ref)
	if err != nil {
		return "", err
	}
	if data == nil {
		data = []byte{}
	}

	if err := a.store.Put(ctx, key, bytes.NewReader(data)); err != nil {
		a.logger.Error("Failed to save artifact", "document_id", ref.DocumentID, "kind", ref.Kind.String(), "key", key, "error", err)
		return "", &DocumentError{DocumentID: ref.DocumentID, Op: "save " + ref.Kind.String(), Err: err}
	}
	a.logger.Debug("Saved artifact", "document_id", ref.DocumentID, "kind", ref.Kind.String(), "key", key)
	return key, nil
}

// Get returns the artifact content, or an error matching ErrNotFound
func (a *ArtifactStore) Get(ctx context.Context, ref ArtifactRef) ([]byte, error) {
	key, err := a.KeyFor(ref)
	if err != nil {
		return nil, err
	}

	exists, err := a.store.Exists(ctx, key)
	if err != nil {
		return nil, &DocumentError{DocumentID: ref.DocumentID, Op: "get " + ref.Kind.String(), Err: err}
	}
	if !exists {
		return nil, &DocumentError{DocumentID: ref.DocumentID, Op: "get " + ref.Kind.String(), Err: ErrNotFound}
	}

	reader, err := a.store.Get(ctx, key)
	if err != nil {
		return nil, &DocumentError{DocumentID: ref.DocumentID, Op: "get " + ref.Kind.String(), Err: err}
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, &DocumentError{DocumentID: ref.DocumentID, Op: "get " + ref.Kind.String(), Err: fmt.Errorf("%w: %w", ErrStoreUnavailable, err)}
	}
	return data, nil
}

// Exists reports whether the artifact is stored
func (a *ArtifactStore) Exists(ctx context.Context, ref ArtifactRef) (bool, error) {
	key, err := a.KeyFor(ref)
	if err != nil {
		return false, err
	}
	return a.store.Exists(ctx, key)
}

// Delete removes the artifact. Deleting an absent artifact is not an error.
func (a *ArtifactStore) Delete(ctx context.Context, ref ArtifactRef) error {
	if a.readOnly {
		return ErrReadOnly
	}
	key, err := a.KeyFor(ref)
	if err != nil {
		return err
	}

	exists, err := a.store.Exists(ctx, key)
	if err != nil {
		return &DocumentError{DocumentID: ref.DocumentID, Op: "delete " + ref.Kind.String(), Err: err}
	}
	if !exists {
		a.logger.Debug("Artifact does not exist, nothing to delete", "document_id", ref.DocumentID, "key", key)
		return nil
	}

	if err := a.store.Delete(ctx, key); err != nil {
		return &DocumentError{DocumentID: ref.DocumentID, Op: "delete " + ref.Kind.String(), Err: err}
	}
	a.logger.Debug("Deleted artifact", "document_id", ref.DocumentID, "key", key)
	return nil
}

// DeleteMany deletes the listed annotation layers of a document. Empty ids are
// skipped. Every id is attempted; failures are logged and reported in the
// result rather than stopping the batch.
func (a *ArtifactStore) DeleteMany(ctx context.Context, documentID string, layerIDs []string) (*BatchResult, error) {
	if a.readOnly {
		return nil, ErrReadOnly
	}

	result := &BatchResult{}
	for _, id := range layerIDs {
		if id == "" {
			result.Skipped = append(result.Skipped, id)
			continue
		}
		if err := a.Delete(ctx, AnnotationRef(documentID, id)); err != nil {
			a.logger.Error("Failed to delete annotation layer", "document_id", documentID, "layer_id", id, "error", err)
			result.Failures = append(result.Failures, ItemFailure{Item: id, Err: err})
			continue
		}
		result.Processed = append(result.Processed, id)
	}
	return result, nil
}

// ListAnnotationIDs returns the stored annotation discriminators of a document
// in key order. Page-scoped layers appear once per page.
func (a *ArtifactStore) ListAnnotationIDs(ctx context.Context, documentID string) ([]string, error) {
	basename, err := ScrapeDocumentID(documentID)
	if err != nil {
		return nil, err
	}

	prefix := a.codec.Prefix()
	keys, err := a.store.List(ctx, prefix+basename+".")
	if err != nil {
		return nil, fmt.Errorf("failed to list annotations for %s: %w", documentID, err)
	}

	var ids []string
	for _, name := range ChildNames(prefix, keys) {
		if name == basename {
			continue
		}
		if id, ok := AnnotationIDFromName(basename, name); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// ExistingAnnotationLayers returns the set of logical layer ids stored for a
// document. Page-scoped ids collapse onto their layer id.
func (a *ArtifactStore) ExistingAnnotationLayers(ctx context.Context, documentID string) (map[string]struct{}, error) {
	ids, err := a.ListAnnotationIDs(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return CollapseLayerIDs(ids), nil
}

// CollapseLayerIDs truncates each id at "-page" and returns the distinct results.
func CollapseLayerIDs(ids []string) map[string]struct{} {
	layers := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		layers[LayerFromDiscriminator(id)] = struct{}{}
	}
	return layers
}
