package docstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
)

// DocumentStoreConfig configures a DocumentStore
type DocumentStoreConfig struct {
	Codec      KeyCodec
	ReadOnly   bool
	Extensions []string // known document extensions, DefaultDocumentExtensions when empty
	Logger     *slog.Logger
}

// DocumentStore reads and writes primary document content
type DocumentStore struct {
	store      ObjectStore
	codec      KeyCodec
	readOnly   bool
	extensions []string
	logger     *slog.Logger
}

// NewDocumentStore creates a document store over an object store
func NewDocumentStore(store ObjectStore, config DocumentStoreConfig) *DocumentStore {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if len(config.Extensions) == 0 {
		config.Extensions = DefaultDocumentExtensions
	}
	return &DocumentStore{
		store:      store,
		codec:      config.Codec,
		readOnly:   config.ReadOnly,
		extensions: config.Extensions,
		logger:     config.Logger,
	}
}

// KeyFor returns the storage key of the document's primary content
func (d *DocumentStore) KeyFor(documentID string) (string, error) {
	basename, err := ScrapeDocumentID(documentID)
	if err != nil {
		return "", err
	}
	return d.codec.DeriveKey(basename, KindDocument, "")
}

// Exists reports whether the document's primary content is stored
func (d *DocumentStore) Exists(ctx context.Context, documentID string) (bool, error) {
	key, err := d.KeyFor(documentID)
	if err != nil {
		return false, err
	}
	return d.store.Exists(ctx, key)
}

// Open streams the document's primary content. The caller closes the reader.
func (d *DocumentStore) Open(ctx context.Context, documentID string) (*OpenDocumentResult, error) {
	key, err := d.KeyFor(documentID)
	if err != nil {
		return nil, err
	}

	exists, err := d.store.Exists(ctx, key)
	if err != nil {
		return nil, &DocumentError{DocumentID: documentID, Op: "open", Err: err}
	}
	if !exists {
		return nil, &DocumentError{DocumentID: documentID, Op: "open", Err: ErrNotFound}
	}

	reader, err := d.store.Get(ctx, key)
	if err != nil {
		return nil, &DocumentError{DocumentID: documentID, Op: "open", Err: err}
	}
	return &OpenDocumentResult{DocumentID: documentID, Key: key, Reader: reader}, nil
}

// Get returns the document's primary content
func (d *DocumentStore) Get(ctx context.Context, documentID string) ([]byte, error) {
	result, err := d.Open(ctx, documentID)
	if err != nil {
		return nil, err
	}
	defer result.Reader.Close()

	data, err := io.ReadAll(result.Reader)
	if err != nil {
		return nil, &DocumentError{DocumentID: documentID, Op: "get", Err: fmt.Errorf("%w: %w", ErrStoreUnavailable, err)}
	}
	return data, nil
}

// Create stores a new document. A live object at the derived key is an
// ErrAlreadyExists collision, except for email attachments, whose repeated
// opens return the existing key.
func (d *DocumentStore) Create(ctx context.Context, req SaveDocumentRequest) (*SaveResult, error) {
	if d.readOnly {
		return nil, ErrReadOnly
	}

	id, key, err := d.resolveWrite(req)
	if err != nil {
		return nil, err
	}

	exists, err := d.store.Exists(ctx, key)
	if err != nil {
		return nil, &DocumentError{DocumentID: id, Op: "create", Err: err}
	}
	if exists {
		if req.IsEmailAttachment {
			d.logger.Debug("Email attachment already opened", "document_id", id, "key", key)
			return &SaveResult{ReloadDocumentID: id, Key: key, Existing: true}, nil
		}
		return nil, &DocumentError{DocumentID: id, Op: "create", Err: ErrAlreadyExists}
	}

	return d.write(ctx, id, key, req.Content)
}

// Save overwrites the document's primary content. Versioning backends keep
// the previous content as an older version.
func (d *DocumentStore) Save(ctx context.Context, req SaveDocumentRequest) (*SaveResult, error) {
	if d.readOnly {
		return nil, ErrReadOnly
	}

	id, key, err := d.resolveWrite(req)
	if err != nil {
		return nil, err
	}
	return d.write(ctx, id, key, req.Content)
}

// ListDocumentIDs returns the documents stored directly under the folder whose
// names carry a known document extension. Artifact objects are excluded.
func (d *DocumentStore) ListDocumentIDs(ctx context.Context) ([]string, error) {
	prefix := d.codec.Prefix()
	keys, err := d.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	var ids []string
	for _, name := range ChildNames(prefix, keys) {
		if IsArtifactName(name) || !HasKnownExtension(name, d.extensions) {
			continue
		}
		ids = append(ids, name)
	}
	return ids, nil
}

// resolveWrite returns the document id and key a write request targets
func (d *DocumentStore) resolveWrite(req SaveDocumentRequest) (string, string, error) {
	mode, _ := Classify(req.DocumentID)
	if mode == ModeSparse || mode == ModeCompound {
		return "", "", &DocumentError{DocumentID: req.DocumentID, Op: "save", Err: ErrUnsupportedOperation}
	}

	id, err := ScrapeDocumentID(req.DocumentID)
	if err != nil {
		return "", "", err
	}
	if req.IsEmailAttachment {
		id, err = EmailAttachmentID(req.ParentDocumentID, id)
		if err != nil {
			return "", "", err
		}
	}

	key, err := d.codec.DeriveKey(id, KindDocument, "")
	if err != nil {
		return "", "", err
	}
	return id, key, nil
}

func (d *DocumentStore) write(ctx context.Context, id, key string, content []byte) (*SaveResult, error) {
	if content == nil {
		return &SaveResult{ReloadDocumentID: id, Key: key}, nil
	}
	if err := d.store.Put(ctx, key, bytes.NewReader(content)); err != nil {
		d.logger.Error("Failed to save document", "document_id", id, "key", key, "error", err)
		return nil, &DocumentError{DocumentID: id, Op: "save", Err: err}
	}
	return &SaveResult{ReloadDocumentID: id, Key: key, Written: true}, nil
}
