package docstore

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// ObjectStore defines the capability the document store needs from a backend.
//
// Implementations must return an error matching ErrNotFound (errors.Is) for
// missing keys and one matching ErrStoreUnavailable for transport failures.
type ObjectStore interface {
	// Put writes the object, replacing any live version
	Put(ctx context.Context, key string, reader io.Reader) error

	// Get opens the latest version of the object
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the object; deleting an absent key is not an error
	Delete(ctx context.Context, key string) error

	// Exists reports whether a live object occupies key
	Exists(ctx context.Context, key string) (bool, error)

	// List returns every key starting with prefix in ascending lexicographic
	// order. Paginated listings are fully drained.
	List(ctx context.Context, prefix string) ([]string, error)

	// String names the backend
	String() string
}

// EventSink receives document store events
type EventSink interface {
	// Publish delivers the event; failures never fail the originating operation
	Publish(ctx context.Context, event Event) error
}

// EventType names a store event
type EventType string

const (
	EventDocumentCreated EventType = "document.created"
	EventDocumentSaved   EventType = "document.saved"
	EventArtifactSaved   EventType = "artifact.saved"
	EventArtifactDeleted EventType = "artifact.deleted"
	EventHostNotified    EventType = "host.notification"
)

// Event describes a mutation or a host notification
type Event struct {
	ID         uuid.UUID
	Type       EventType
	DocumentID string
	Key        string
	Kind       ArtifactKind
	Params     map[string]string
	OccurredAt time.Time
}

// NewEvent builds an event stamped with a fresh id and the current time.
func NewEvent(eventType EventType, documentID, key string) Event {
	return Event{
		ID:         uuid.New(),
		Type:       eventType,
		DocumentID: documentID,
		Key:        key,
		OccurredAt: time.Now().UTC(),
	}
}
