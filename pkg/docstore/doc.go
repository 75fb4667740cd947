// Package docstore provides a document content store that maps documents and
// their artifacts onto objects in a key/value object store.
//
// A document is addressed by an opaque document id. Only the final path
// segment of an id is ever used to build a storage key; ids carrying one of
// the virtual prefixes (SparseDocument:, CompoundDocument:, VirtualDocument:,
// IncludesExternalReferences:) select an assembly mode.
//
// Storage Layout
//
//	<folder/>?<basename>                          primary content
//	<folder/>?<basename>.<layer>[-page<N>].ann    annotation layers
//	<folder/>?<basename>.bookmarks.xml            bookmarks
//	<folder/>?<basename>.notes.xml                notes
//	<folder/>?<basename>.watermarks.json          watermarks
//	<folder/>?<basename>.ocr-text.json            OCR text
//
// The ObjectStore interface is the only dependency on the backing store.
// Implementations for memory, the local filesystem and S3 are provided under
// the storage subpackages.
package docstore
