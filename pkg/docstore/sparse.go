package docstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// SparseAssembler fetches page windows of sparse documents. Each page of a
// sparse document is a separate object under "<folder>/<name>/".
type SparseAssembler struct {
	store  ObjectStore
	codec  KeyCodec
	logger *slog.Logger
}

// NewSparseAssembler creates a sparse document assembler
func NewSparseAssembler(store ObjectStore, codec KeyCodec, logger *slog.Logger) *SparseAssembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SparseAssembler{store: store, codec: codec, logger: logger}
}

// SparseFolderName returns the folder holding the pages of a sparse document:
// the text after the prefix up to the next ':'.
func SparseFolderName(documentID string) (string, error) {
	scraped, err := ScrapeDocumentID(documentID)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(scraped, PrefixSparse) {
		return "", fmt.Errorf("%w: %q is not a sparse document id", ErrInvalidIdentifier, documentID)
	}
	name := strings.TrimPrefix(scraped, PrefixSparse)
	if i := strings.Index(name, ":"); i >= 0 {
		name = name[:i]
	}
	if name == "" {
		return "", fmt.Errorf("%w: sparse document id %q has no folder name", ErrInvalidIdentifier, documentID)
	}
	return name, nil
}

// PageRange resolves a window against total pages. The returned range may be
// empty; it is never an error.
func PageRange(window SparseWindow, total int) (start, end int) {
	start = window.StartPage
	if start < 0 {
		start = 0
	}
	end = window.StartPage + window.PageCount
	if window.PageCount == 0 || end > total {
		end = total
	}
	if start > end {
		start = end
	}
	return start, end
}

// Fetch returns the pages of the requested window in key order. A page that
// fails to load is logged, recorded in Failures and skipped.
func (s *SparseAssembler) Fetch(ctx context.Context, documentID string, window SparseWindow) (*SparseDocument, error) {
	name, err := SparseFolderName(documentID)
	if err != nil {
		return nil, err
	}

	prefix := s.codec.Prefix() + name + "/"
	keys, err := s.store.List(ctx, prefix)
	if err != nil {
		return nil, &DocumentError{DocumentID: documentID, Op: "sparse list", Err: err}
	}
	pages := ChildNames(prefix, keys)
	if len(pages) == 0 {
		s.logger.Error("Sparse document not found", "document_id", documentID, "prefix", prefix)
		return nil, &DocumentError{DocumentID: documentID, Op: "sparse list", Err: ErrSparseDocumentNotFound}
	}

	start, end := PageRange(window, len(pages))
	doc := &SparseDocument{Name: name, StartPage: window.StartPage}
	for i := start; i < end; i++ {
		key := prefix + pages[i]
		data, err := s.fetchPage(ctx, key)
		if err != nil {
			s.logger.Error("Failed to fetch sparse page", "document_id", documentID, "key", key, "error", err)
			doc.Failures = append(doc.Failures, ItemFailure{Item: key, Err: err})
			continue
		}
		doc.Pages = append(doc.Pages, data)
	}

	doc.ReturnedCount = len(doc.Pages)
	doc.TotalCount = len(doc.Pages)
	return doc, nil
}

func (s *SparseAssembler) fetchPage(ctx context.Context, key string) ([]byte, error) {
	reader, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return io.ReadAll(reader)
}
