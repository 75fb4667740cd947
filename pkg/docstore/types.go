package docstore

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/multierr"
)

// Mode is the assembly mode selected by a document id prefix
type Mode int

const (
	ModePlain Mode = iota
	ModeSparse
	ModeCompound
	ModeVirtual
	ModeExternalRef
)

// String returns the mode name
func (m Mode) String() string {
	switch m {
	case ModePlain:
		return "plain"
	case ModeSparse:
		return "sparse"
	case ModeCompound:
		return "compound"
	case ModeVirtual:
		return "virtual"
	case ModeExternalRef:
		return "external_ref"
	default:
		return "unknown"
	}
}

// ArtifactKind identifies a per-document object stored next to the primary content
type ArtifactKind int

const (
	KindDocument ArtifactKind = iota
	KindAnnotation
	KindBookmark
	KindNote
	KindWatermark
	KindOCRText
)

// Suffix returns the fixed key suffix for the kind. Annotation keys also carry
// a layer discriminator in front of the suffix.
func (k ArtifactKind) Suffix() string {
	switch k {
	case KindAnnotation:
		return ".ann"
	case KindBookmark:
		return ".bookmarks.xml"
	case KindNote:
		return ".notes.xml"
	case KindWatermark:
		return ".watermarks.json"
	case KindOCRText:
		return ".ocr-text.json"
	default:
		return ""
	}
}

// String returns the kind name
func (k ArtifactKind) String() string {
	switch k {
	case KindDocument:
		return "document"
	case KindAnnotation:
		return "annotation"
	case KindBookmark:
		return "bookmark"
	case KindNote:
		return "note"
	case KindWatermark:
		return "watermark"
	case KindOCRText:
		return "ocr_text"
	default:
		return "unknown"
	}
}

// ParseArtifactKind maps a kind name back to its value.
func ParseArtifactKind(s string) (ArtifactKind, error) {
	switch strings.ToLower(s) {
	case "document":
		return KindDocument, nil
	case "annotation", "annotations":
		return KindAnnotation, nil
	case "bookmark", "bookmarks":
		return KindBookmark, nil
	case "note", "notes":
		return KindNote, nil
	case "watermark", "watermarks":
		return KindWatermark, nil
	case "ocr_text", "ocr-text", "ocr":
		return KindOCRText, nil
	default:
		return KindDocument, fmt.Errorf("unknown artifact kind %q", s)
	}
}

// PermissionLevel is the caller's pre-resolved permission on an annotation layer
type PermissionLevel int

const (
	PermissionNone PermissionLevel = iota * 10
	PermissionView
	PermissionPrint
	PermissionAnnotate
	PermissionRedact
	PermissionEdit
	PermissionDelete
)

// String returns the level name
func (p PermissionLevel) String() string {
	switch p {
	case PermissionNone:
		return "none"
	case PermissionView:
		return "view"
	case PermissionPrint:
		return "print"
	case PermissionAnnotate:
		return "annotate"
	case PermissionRedact:
		return "redact"
	case PermissionEdit:
		return "edit"
	case PermissionDelete:
		return "delete"
	default:
		return strconv.Itoa(int(p))
	}
}

// ParsePermissionLevel accepts a level name ("view", "DELETE") or its number
func ParsePermissionLevel(s string) (PermissionLevel, error) {
	s = strings.TrimSpace(s)
	if i, err := strconv.Atoi(s); err == nil {
		return PermissionLevel(i), nil
	}
	for p := PermissionNone; p <= PermissionDelete; p += 10 {
		if strings.EqualFold(s, p.String()) {
			return p, nil
		}
	}
	return PermissionNone, fmt.Errorf("unknown permission level %q", s)
}

// Property map keys understood by ParseAnnotationProperties
const (
	PropertyPermissionLevel = "permissionLevel"
	PropertyRedactionFlag   = "redactionFlag"
)

// AnnotationProperties are the typed properties of an annotation layer
type AnnotationProperties struct {
	PermissionLevel PermissionLevel `json:"permission_level"`
	RedactionFlag   bool            `json:"redaction_flag"`
}

// ParseAnnotationProperties decodes a host property map. Unknown keys are
// ignored so newer hosts can send additional properties.
func ParseAnnotationProperties(props map[string]interface{}) AnnotationProperties {
	out := AnnotationProperties{PermissionLevel: PermissionDelete}
	if props == nil {
		return out
	}
	switch v := props[PropertyPermissionLevel].(type) {
	case int:
		out.PermissionLevel = PermissionLevel(v)
	case int64:
		out.PermissionLevel = PermissionLevel(v)
	case float64:
		out.PermissionLevel = PermissionLevel(int(v))
	case string:
		if i, err := strconv.Atoi(v); err == nil {
			out.PermissionLevel = PermissionLevel(i)
		}
	}
	switch v := props[PropertyRedactionFlag].(type) {
	case bool:
		out.RedactionFlag = v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			out.RedactionFlag = b
		}
	}
	return out
}

// Map encodes the properties back into the host's property map form.
func (p AnnotationProperties) Map() map[string]interface{} {
	return map[string]interface{}{
		PropertyPermissionLevel: int(p.PermissionLevel),
		PropertyRedactionFlag:   p.RedactionFlag,
	}
}

// AnnotationLayer is one annotation layer of a document
type AnnotationLayer struct {
	LayerID     string                `json:"layer_id"`
	DocumentID  string                `json:"document_id"`
	DisplayName string                `json:"display_name"`
	Data        []byte                `json:"data"`
	Properties  *AnnotationProperties `json:"properties,omitempty"`

	// PageScoped layers are stored under <layer>-page<PageIndex>
	PageScoped bool `json:"page_scoped"`
	PageIndex  int  `json:"page_index"`

	IsNew      bool `json:"is_new"`
	IsModified bool `json:"is_modified"`
}

// SparseWindow is a caller-requested page range. PageCount 0 means "to the end".
type SparseWindow struct {
	StartPage int
	PageCount int
}

// SparseDocument is the fetched window of a sparse document
type SparseDocument struct {
	Name      string
	Pages     [][]byte
	StartPage int

	// ReturnedCount and TotalCount both equal the number of pages fetched
	ReturnedCount int
	TotalCount    int

	Failures []ItemFailure
}

// CompoundDocument is an assembled compound document
type CompoundDocument struct {
	DisplayName string
	Components  []string
	Elements    [][]byte
}

// ItemFailure records one failed item of a best-effort operation
type ItemFailure struct {
	Item string
	Err  error
}

// BatchResult reports the outcome of a best-effort batch
type BatchResult struct {
	Processed []string
	Skipped   []string
	Failures  []ItemFailure
}

// Failed reports whether any item failed
func (r *BatchResult) Failed() bool {
	return r != nil && len(r.Failures) > 0
}

// Err combines the item failures into one error matching ErrPartialFailure,
// or returns nil when every item succeeded.
func (r *BatchResult) Err() error {
	if !r.Failed() {
		return nil
	}
	var combined error
	for _, f := range r.Failures {
		combined = multierr.Append(combined, fmt.Errorf("%s: %w", f.Item, f.Err))
	}
	return fmt.Errorf("%w: %d of %d items failed: %w", ErrPartialFailure,
		len(r.Failures), len(r.Failures)+len(r.Processed), combined)
}
