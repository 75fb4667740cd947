package docstore

import (
	"errors"
	"fmt"
)

// Error types
var (
	// ErrNotFound indicates an object is absent from the store
	ErrNotFound = errors.New("object not found")

	// ErrAlreadyExists indicates a create collided with a live object
	ErrAlreadyExists = errors.New("a document by this name already exists")

	// ErrReadOnly indicates a mutating operation was attempted in read-only mode
	ErrReadOnly = errors.New("saving has been disabled by the administrator")

	// ErrInvalidIdentifier indicates a malformed or unsafe document id
	ErrInvalidIdentifier = errors.New("invalid document identifier")

	// ErrStoreUnavailable indicates a transport, credential or configuration failure
	ErrStoreUnavailable = errors.New("object store unavailable")

	// ErrPartialFailure indicates a best-effort batch left some items unprocessed
	ErrPartialFailure = errors.New("partial failure")

	// ErrSparseDocumentNotFound indicates a sparse document folder is empty or missing
	ErrSparseDocumentNotFound = errors.New("sparse document not found")

	// ErrDocumentNotFound indicates a document or compound component is missing
	ErrDocumentNotFound = errors.New("document not found")

	// ErrUnsupportedOperation indicates the operation cannot be applied to a virtual document
	ErrUnsupportedOperation = errors.New("operation not supported for this document")
)

// IsNotFound reports whether err is any of the not-found kinds.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrDocumentNotFound) ||
		errors.Is(err, ErrSparseDocumentNotFound)
}

// DocumentError represents an error related to a document operation
type DocumentError struct {
	DocumentID string
	Op         string
	Err        error
}

func (e *DocumentError) Error() string {
	return fmt.Sprintf("document operation %s failed for document %q: %v", e.Op, e.DocumentID, e.Err)
}

func (e *DocumentError) Unwrap() error {
	return e.Err
}

// StorageError represents an error related to storage operations
type StorageError struct {
	Backend string
	Key     string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for key %s on backend %s: %v", e.Op, e.Key, e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewNotFoundError returns a StorageError for a missing key.
func NewNotFoundError(backend, op, key string) error {
	return &StorageError{Backend: backend, Key: key, Op: op, Err: ErrNotFound}
}

// NewUnavailableError returns a StorageError classifying cause as a store failure.
func NewUnavailableError(backend, op, key string, cause error) error {
	return &StorageError{Backend: backend, Key: key, Op: op, Err: fmt.Errorf("%w: %w", ErrStoreUnavailable, cause)}
}
