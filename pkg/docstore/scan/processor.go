package scan

import (
	"context"
	"sort"
	"sync"

	"github.com/tendant/simple-docstore/pkg/docstore"
	"github.com/tendant/simple-docstore/pkg/docstore/tifftag"
)

// AnnotationLister is the part of docstore.Service the inventory needs
type AnnotationLister interface {
	ListAnnotations(ctx context.Context, documentID string) ([]string, error)
}

// DocumentReader is the part of docstore.Service page counting needs
type DocumentReader interface {
	GetDocument(ctx context.Context, req docstore.GetDocumentRequest) (*docstore.DocumentContent, error)
}

// InventoryEntry is the annotation summary of one document. Pages is only
// set for plain TIFF documents when page counting is enabled.
type InventoryEntry struct {
	DocumentID string   `json:"document_id"`
	Layers     []string `json:"layers"`
	PageLayers int      `json:"page_layers"`
	Pages      int      `json:"pages,omitempty"`
}

// AnnotationInventory records the logical annotation layers of every
// processed document. Page-scoped layers collapse onto their layer id.
type AnnotationInventory struct {
	lister AnnotationLister
	reader DocumentReader

	mu      sync.Mutex
	entries []InventoryEntry
}

// NewAnnotationInventory creates an inventory processor
func NewAnnotationInventory(lister AnnotationLister) *AnnotationInventory {
	return &AnnotationInventory{lister: lister}
}

// WithPageCounts makes the inventory read each document and record the page
// count of TIFF content. Non-TIFF documents are left at zero.
func (a *AnnotationInventory) WithPageCounts(reader DocumentReader) *AnnotationInventory {
	a.reader = reader
	return a
}

func (a *AnnotationInventory) Process(ctx context.Context, documentID string) error {
	ids, err := a.lister.ListAnnotations(ctx, documentID)
	if err != nil {
		return err
	}

	entry := InventoryEntry{DocumentID: documentID, Layers: []string{}}
	for layer := range docstore.CollapseLayerIDs(ids) {
		entry.Layers = append(entry.Layers, layer)
	}
	sort.Strings(entry.Layers)
	for _, id := range ids {
		if docstore.LayerFromDiscriminator(id) != id {
			entry.PageLayers++
		}
	}

	if a.reader != nil {
		pages, err := a.countPages(ctx, documentID)
		if err != nil {
			return err
		}
		entry.Pages = pages
	}

	a.mu.Lock()
	a.entries = append(a.entries, entry)
	a.mu.Unlock()
	return nil
}

// Entries returns the recorded entries in processing order
func (a *AnnotationInventory) Entries() []InventoryEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]InventoryEntry(nil), a.entries...)
}

func (a *AnnotationInventory) countPages(ctx context.Context, documentID string) (int, error) {
	doc, err := a.reader.GetDocument(ctx, docstore.GetDocumentRequest{DocumentID: documentID})
	if err != nil {
		return 0, err
	}
	if doc.Mode != docstore.ModePlain || !tifftag.IsTIFF(doc.Content) {
		return 0, nil
	}
	return tifftag.PageCount(doc.Content)
}
