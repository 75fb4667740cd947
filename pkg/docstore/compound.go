package docstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// CompoundResolution selects how compound components map to stored objects
type CompoundResolution string

const (
	// CompoundAliased fetches the compound id's own key for every component
	CompoundAliased CompoundResolution = "aliased"

	// CompoundPerComponent fetches each component's own key
	CompoundPerComponent CompoundResolution = "per_component"
)

// ParseCompoundResolution maps a configuration value to a resolution mode.
// The empty string selects CompoundAliased.
func ParseCompoundResolution(s string) (CompoundResolution, error) {
	switch CompoundResolution(strings.ToLower(strings.TrimSpace(s))) {
	case "", CompoundAliased:
		return CompoundAliased, nil
	case CompoundPerComponent, "per-component":
		return CompoundPerComponent, nil
	default:
		return CompoundAliased, fmt.Errorf("unknown compound resolution %q", s)
	}
}

// CompoundAssembler concatenates the components named in a compound id
type CompoundAssembler struct {
	store      ObjectStore
	codec      KeyCodec
	resolution CompoundResolution
	logger     *slog.Logger
}

// NewCompoundAssembler creates a compound document assembler
func NewCompoundAssembler(store ObjectStore, codec KeyCodec, resolution CompoundResolution, logger *slog.Logger) *CompoundAssembler {
	if logger == nil {
		logger = slog.Default()
	}
	if resolution == "" {
		resolution = CompoundAliased
	}
	return &CompoundAssembler{store: store, codec: codec, resolution: resolution, logger: logger}
}

// Resolution returns the configured resolution mode
func (c *CompoundAssembler) Resolution() CompoundResolution {
	return c.resolution
}

// CompoundComponents splits the component list of a compound id. Order and
// duplicates are kept; empty tokens are dropped.
func CompoundComponents(documentID string) (string, []string, error) {
	scraped, err := ScrapeDocumentID(documentID)
	if err != nil {
		return "", nil, err
	}
	if !strings.HasPrefix(scraped, PrefixCompound) {
		return "", nil, fmt.Errorf("%w: %q is not a compound document id", ErrInvalidIdentifier, documentID)
	}
	list := strings.TrimPrefix(scraped, PrefixCompound)

	var components []string
	for _, token := range strings.Split(list, ",") {
		if token != "" {
			components = append(components, token)
		}
	}
	return list, components, nil
}

// Assemble fetches one element per component token, in order. A missing
// component fails the whole assembly with ErrDocumentNotFound; any other fetch
// error aborts as well.
func (c *CompoundAssembler) Assemble(ctx context.Context, documentID string) (*CompoundDocument, error) {
	list, components, err := CompoundComponents(documentID)
	if err != nil {
		return nil, err
	}

	doc := &CompoundDocument{DisplayName: list, Components: components}
	for _, component := range components {
		key, err := c.componentKey(documentID, component)
		if err != nil {
			return nil, err
		}

		data, err := c.fetch(ctx, key)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				c.logger.Error("Compound component not found", "document_id", documentID, "component", component, "key", key)
				return nil, &DocumentError{DocumentID: documentID, Op: "compound assemble", Err: fmt.Errorf("%w: %s", ErrDocumentNotFound, component)}
			}
			c.logger.Error("Failed to read compound component", "document_id", documentID, "component", component, "error", err)
			return nil, &DocumentError{DocumentID: documentID, Op: "compound assemble", Err: err}
		}
		doc.Elements = append(doc.Elements, data)
	}
	return doc, nil
}

func (c *CompoundAssembler) componentKey(documentID, component string) (string, error) {
	if c.resolution == CompoundPerComponent {
		basename, err := SanitizeBasename(component)
		if err != nil {
			return "", err
		}
		return c.codec.DeriveKey(basename, KindDocument, "")
	}
	scraped, err := ScrapeDocumentID(documentID)
	if err != nil {
		return "", err
	}
	return c.codec.DeriveKey(scraped, KindDocument, "")
}

func (c *CompoundAssembler) fetch(ctx context.Context, key string) ([]byte, error) {
	exists, err := c.store.Exists(ctx, key)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, NewNotFoundError(c.store.String(), "get", key)
	}
	reader, err := c.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return io.ReadAll(reader)
}
