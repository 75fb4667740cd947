// Package scan walks the documents of a store and hands each one to a processor.
package scan

import (
	"context"
	"fmt"
	"log/slog"
	"path"

	"github.com/tendant/simple-docstore/pkg/docstore"
)

// DocumentProcessor processes individual documents.
// Return an error to mark the document as failed; the scan continues.
type DocumentProcessor interface {
	Process(ctx context.Context, documentID string) error
}

// Lister is the part of docstore.Service the scanner needs
type Lister interface {
	ListDocuments(ctx context.Context) ([]string, error)
}

// Scanner lists documents and processes them with the provided processor.
type Scanner struct {
	lister Lister
	logger *slog.Logger
}

// New creates a new Scanner instance.
func New(lister Lister, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{lister: lister, logger: logger}
}

// ScanOptions configures the scan operation.
type ScanOptions struct {
	// Pattern is an optional path.Match glob applied to document ids
	Pattern string

	// Processor defines the processing logic (required unless DryRun is true)
	Processor DocumentProcessor

	// BatchSize controls how often OnProgress is called (default: 100)
	BatchSize int

	// DryRun if true, doesn't process documents, just reports what would be processed
	DryRun bool

	// OnProgress is called after each batch is processed (optional)
	OnProgress func(processed, total int64)
}

// ScanResult contains statistics about the scan operation.
type ScanResult struct {
	TotalFound     int64
	TotalProcessed int64
	TotalFailed    int64

	// FailedIDs contains the ids of documents that failed processing
	FailedIDs []string
}

// Scan lists the documents matching the pattern and processes each one. A
// document that fails is recorded and scanning continues with the next one.
func (s *Scanner) Scan(ctx context.Context, opts ScanOptions) (*ScanResult, error) {
	result := &ScanResult{}

	if !opts.DryRun && opts.Processor == nil {
		return result, fmt.Errorf("processor is required when DryRun is false")
	}
	if opts.Pattern != "" {
		if _, err := path.Match(opts.Pattern, ""); err != nil {
			return result, fmt.Errorf("invalid pattern %q: %w", opts.Pattern, err)
		}
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}

	ids, err := s.lister.ListDocuments(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to list documents: %w", err)
	}

	var matched []string
	for _, id := range ids {
		if opts.Pattern != "" {
			if ok, _ := path.Match(opts.Pattern, id); !ok {
				continue
			}
		}
		matched = append(matched, id)
	}
	result.TotalFound = int64(len(matched))

	for i, id := range matched {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if opts.DryRun {
			s.logger.Info("Dry run, would process document", "document_id", id)
			result.TotalProcessed++
		} else if err := opts.Processor.Process(ctx, id); err != nil {
			s.logger.Error("Failed to process document", "document_id", id, "error", err)
			result.TotalFailed++
			result.FailedIDs = append(result.FailedIDs, id)
		} else {
			result.TotalProcessed++
		}

		if opts.OnProgress != nil && ((i+1)%opts.BatchSize == 0 || i == len(matched)-1) {
			opts.OnProgress(result.TotalProcessed+result.TotalFailed, result.TotalFound)
		}
	}

	return result, nil
}

// ForEach processes each document with a callback function.
func (s *Scanner) ForEach(ctx context.Context, pattern string, fn func(context.Context, string) error) (*ScanResult, error) {
	return s.Scan(ctx, ScanOptions{
		Pattern:   pattern,
		Processor: funcProcessor(fn),
	})
}

// funcProcessor adapts a function to the DocumentProcessor interface.
type funcProcessor func(context.Context, string) error

func (p funcProcessor) Process(ctx context.Context, documentID string) error {
	return p(ctx, documentID)
}

var _ Lister = docstore.Service(nil)
