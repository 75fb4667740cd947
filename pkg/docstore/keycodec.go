package docstore

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Document id prefixes selecting an assembly mode
const (
	PrefixSparse      = "SparseDocument:"
	PrefixCompound    = "CompoundDocument:"
	PrefixVirtual     = "VirtualDocument:"
	PrefixExternalRef = "IncludesExternalReferences:"
)

// TIFFTagLayerID is the synthetic annotation layer reported for TIFF files
// carrying embedded annotation tags.
const TIFFTagLayerID = "TIFF_TAG_LAYER"

var prefixes = []struct {
	prefix string
	mode   Mode
}{
	{PrefixExternalRef, ModeExternalRef},
	{PrefixCompound, ModeCompound},
	{PrefixVirtual, ModeVirtual},
	{PrefixSparse, ModeSparse},
}

// DefaultDocumentExtensions are the extensions ListDocumentIDs accepts when no
// other list is configured.
var DefaultDocumentExtensions = []string{
	"pdf", "tif", "tiff", "jpg", "jpeg", "png", "gif", "bmp",
	"doc", "docx", "xls", "xlsx", "ppt", "pptx", "rtf", "odt",
	"msg", "eml", "html", "htm", "svg", "dcm", "afp", "dwg", "dxf",
}

// Extensions accepted regardless of configuration
var alwaysKnownExtensions = []string{"txt", "jb2"}

// Classify returns the mode selected by the longest matching id prefix and the
// id with that prefix removed. Ids without a known prefix are plain.
func Classify(documentID string) (Mode, string) {
	var (
		best     Mode = ModePlain
		residual      = documentID
		bestLen       = 0
	)
	for _, p := range prefixes {
		if len(p.prefix) > bestLen && strings.HasPrefix(documentID, p.prefix) {
			best = p.mode
			residual = documentID[len(p.prefix):]
			bestLen = len(p.prefix)
		}
	}
	return best, residual
}

// PrefixFor returns the id prefix of a mode, "" for plain documents.
func PrefixFor(mode Mode) string {
	for _, p := range prefixes {
		if p.mode == mode {
			return p.prefix
		}
	}
	return ""
}

// SanitizeBasename reduces residual to its final path segment. Both '/' and
// '\' separate segments. Control characters, invalid UTF-8 and the names "",
// "." and ".." are rejected.
func SanitizeBasename(residual string) (string, error) {
	if !utf8.ValidString(residual) {
		return "", fmt.Errorf("%w: not valid UTF-8", ErrInvalidIdentifier)
	}
	for _, r := range residual {
		if r == 0 || unicode.IsControl(r) {
			return "", fmt.Errorf("%w: contains control characters", ErrInvalidIdentifier)
		}
	}

	base := residual
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}

	switch base {
	case "", ".", "..":
		return "", fmt.Errorf("%w: %q has no usable file name", ErrInvalidIdentifier, residual)
	}
	return base, nil
}

// ScrapeDocumentID returns the storage basename of a document id: the mode
// prefix, kept as is, followed by the sanitized final segment of the rest.
func ScrapeDocumentID(documentID string) (string, error) {
	mode, residual := Classify(documentID)
	base, err := SanitizeBasename(residual)
	if err != nil {
		return "", err
	}
	return PrefixFor(mode) + base, nil
}

// EmailAttachmentID returns the document id of an attachment extracted from
// the parent document.
func EmailAttachmentID(parentDocumentID, attachmentName string) (string, error) {
	parent, err := ScrapeDocumentID(parentDocumentID)
	if err != nil {
		return "", err
	}
	name, err := SanitizeBasename(attachmentName)
	if err != nil {
		return "", err
	}
	return "Attachment - " + parent + "-" + name, nil
}

// KeyCodec derives object store keys under a folder
type KeyCodec struct {
	folder string
}

// NewKeyCodec returns a codec rooted at folder. One trailing slash is trimmed;
// an empty folder places keys at the bucket root.
func NewKeyCodec(folder string) KeyCodec {
	return KeyCodec{folder: strings.TrimSuffix(folder, "/")}
}

// Folder returns the normalized folder
func (c KeyCodec) Folder() string {
	return c.folder
}

// Prefix returns the listing prefix for the folder: "" or "<folder>/".
func (c KeyCodec) Prefix() string {
	if c.folder == "" {
		return ""
	}
	return c.folder + "/"
}

// DeriveKey builds the key of an object owned by basename. The discriminator
// is only used for annotations, where it is the layer id.
func (c KeyCodec) DeriveKey(basename string, kind ArtifactKind, discriminator string) (string, error) {
	if basename == "" {
		return "", fmt.Errorf("%w: empty basename", ErrInvalidIdentifier)
	}
	name := basename
	if kind == KindAnnotation {
		if discriminator == "" {
			return "", fmt.Errorf("%w: empty annotation layer id", ErrInvalidIdentifier)
		}
		if strings.ContainsAny(discriminator, `/\`) {
			return "", fmt.Errorf("%w: annotation layer id %q contains a path separator", ErrInvalidIdentifier, discriminator)
		}
		name += "." + discriminator
	}
	name += kind.Suffix()
	return c.Prefix() + name, nil
}

// ParseKey splits a key into its folder and final name.
func (c KeyCodec) ParseKey(key string) (folder, name string) {
	if i := strings.LastIndex(key, "/"); i >= 0 {
		return key[:i], key[i+1:]
	}
	return "", key
}

// AnnotationDiscriminator returns the annotation key discriminator for a layer,
// with a page suffix for page-scoped layers.
func AnnotationDiscriminator(layerID string, pageScoped bool, pageIndex int) string {
	if !pageScoped {
		return layerID
	}
	return fmt.Sprintf("%s-page%d", layerID, pageIndex)
}

// LayerFromDiscriminator strips a page suffix from an annotation discriminator.
func LayerFromDiscriminator(discriminator string) string {
	if i := strings.Index(discriminator, "-page"); i >= 0 {
		return discriminator[:i]
	}
	return discriminator
}

// AnnotationIDFromName extracts the layer discriminator from an object name of
// the form "<basename>.<id>.ann".
func AnnotationIDFromName(basename, name string) (string, bool) {
	prefix := basename + "."
	suffix := KindAnnotation.Suffix()
	if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
		return "", false
	}
	if len(name) <= len(prefix)+len(suffix) {
		return "", false
	}
	return name[len(prefix) : len(name)-len(suffix)], true
}

// ChildNames strips prefix from each listed key and keeps only direct children:
// nested keys and directory markers are dropped. The result is sorted.
func ChildNames(prefix string, keys []string) []string {
	names := make([]string, 0, len(keys))
	for _, key := range keys {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		name := key[len(prefix):]
		if name == "" || strings.Contains(name, "/") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasKnownExtension reports whether name ends with one of the extensions, or
// with an always-accepted one. Matching ignores case.
func HasKnownExtension(name string, extensions []string) bool {
	ext := strings.TrimPrefix(path.Ext(name), ".")
	if ext == "" {
		return false
	}
	for _, list := range [][]string{extensions, alwaysKnownExtensions} {
		for _, known := range list {
			if strings.EqualFold(ext, strings.TrimPrefix(known, ".")) {
				return true
			}
		}
	}
	return false
}

// IsArtifactName reports whether name is a per-document artifact object or a
// host file the document listing ignores.
func IsArtifactName(name string) bool {
	lower := strings.ToLower(name)
	for _, suffix := range []string{
		KindAnnotation.Suffix(),
		KindBookmark.Suffix(),
		KindNote.Suffix(),
		KindWatermark.Suffix(),
		KindOCRText.Suffix(),
		".ds_store",
	} {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}
