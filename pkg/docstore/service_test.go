package docstore_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-docstore/pkg/docstore"
	"github.com/tendant/simple-docstore/pkg/docstore/tifftag"
)

func newService(t *testing.T, store docstore.ObjectStore, opts ...docstore.Option) (docstore.Service, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	all := append([]docstore.Option{
		docstore.WithObjectStore(store),
		docstore.WithEventSink(sink),
	}, opts...)
	svc, err := docstore.New(all...)
	require.NoError(t, err)
	return svc, sink
}

func TestNewRequiresStore(t *testing.T) {
	_, err := docstore.New()
	assert.Error(t, err)
}

func TestService_GetDocumentPlain(t *testing.T) {
	store := seed(t, map[string]string{"f/report.pdf": "pdf"})
	svc, _ := newService(t, store, docstore.WithFolder("f"))

	doc, err := svc.GetDocument(context.Background(), docstore.GetDocumentRequest{DocumentID: "C:/upload/report.pdf"})
	require.NoError(t, err)
	assert.Equal(t, docstore.ModePlain, doc.Mode)
	assert.Equal(t, "report.pdf", doc.DocumentID)
	assert.Equal(t, "report.pdf", doc.DisplayName)
	assert.Equal(t, []byte("pdf"), doc.Content)
}

func TestService_DebugDisplayNames(t *testing.T) {
	store := seed(t, map[string]string{
		"report.pdf":                   "pdf",
		"scan/p1":                      "1",
		"CompoundDocument:a.pdf,b.pdf": "c",
	})
	svc, _ := newService(t, store, docstore.WithDebug(true))
	ctx := context.Background()

	plain, err := svc.GetDocument(ctx, docstore.GetDocumentRequest{DocumentID: "report.pdf"})
	require.NoError(t, err)
	assert.Equal(t, "fdp.troper", plain.DisplayName)

	sparse, err := svc.GetDocument(ctx, docstore.GetDocumentRequest{DocumentID: "SparseDocument:scan"})
	require.NoError(t, err)
	assert.Equal(t, "NACS:TNEMUCODESRAPS", sparse.DisplayName)

	compound, err := svc.GetDocument(ctx, docstore.GetDocumentRequest{DocumentID: "CompoundDocument:a.pdf,b.pdf"})
	require.NoError(t, err)
	assert.Equal(t, "FDP.B,FDP.A:TNEMUCODDNUOPMOC", compound.DisplayName)
}

func TestService_OpenDocumentRejectsVirtual(t *testing.T) {
	svc, _ := newService(t, seed(t, nil))
	_, err := svc.OpenDocument(context.Background(), "SparseDocument:scan")
	assert.ErrorIs(t, err, docstore.ErrUnsupportedOperation)
}

func TestService_CreatePublishesEvent(t *testing.T) {
	svc, sink := newService(t, seed(t, nil))
	ctx := context.Background()

	_, err := svc.CreateDocument(ctx, docstore.SaveDocumentRequest{DocumentID: "a.pdf", Content: []byte("x")})
	require.NoError(t, err)
	_, err = svc.SaveDocument(ctx, docstore.SaveDocumentRequest{DocumentID: "a.pdf", Content: []byte("y")})
	require.NoError(t, err)

	assert.Equal(t, []docstore.EventType{docstore.EventDocumentCreated, docstore.EventDocumentSaved}, sink.types())
	assert.Equal(t, "a.pdf", sink.events[0].Key)
}

func TestService_SinkFailureDoesNotFailOperation(t *testing.T) {
	svc, sink := newService(t, seed(t, nil))
	sink.err = errors.New("sink down")

	_, err := svc.CreateDocument(context.Background(), docstore.SaveDocumentRequest{DocumentID: "a.pdf", Content: []byte("x")})
	assert.NoError(t, err)
	assert.Len(t, sink.events, 1)
}

func TestService_SaveDocumentComponents(t *testing.T) {
	store := seed(t, map[string]string{
		"memo.pdf":         "v1",
		"memo.pdf.old.ann": "old",
	})
	svc, sink := newService(t, store)

	res, err := svc.SaveDocumentComponents(context.Background(), docstore.SaveComponentsRequest{
		DocumentID: "/share/memo.pdf",
		Content:    []byte("v2"),
		Annotations: []docstore.AnnotationLayer{
			{LayerID: "fresh", Data: []byte("f"), IsNew: true},
			{LayerID: "sig", Data: []byte("s0"), IsModified: true, PageScoped: true, PageIndex: 0},
			{LayerID: "untouched", Data: []byte("u")},
			{LayerID: "empty", IsNew: true},
		},
		DeletedLayerIDs: []string{"old", "never-existed"},
		Bookmarks:       []byte("<b/>"),
		Watermarks:      []byte("{}"),
	})
	require.NoError(t, err)

	assert.Equal(t, "memo.pdf", res.ReloadDocumentID)
	assert.Equal(t, []string{"fresh", "sig"}, res.SavedLayers)
	assert.Equal(t, []string{"untouched", "empty"}, res.SkippedLayers)
	require.NotNil(t, res.Deleted)
	assert.Equal(t, []string{"old", "never-existed"}, res.Deleted.Processed)

	assert.Equal(t, "v2", read(t, store, "memo.pdf"))
	assert.Equal(t, "f", read(t, store, "memo.pdf.fresh.ann"))
	assert.Equal(t, "s0", read(t, store, "memo.pdf.sig-page0.ann"))
	assert.Equal(t, "<b/>", read(t, store, "memo.pdf.bookmarks.xml"))
	assert.Equal(t, "{}", read(t, store, "memo.pdf.watermarks.json"))

	exists, err := store.Exists(context.Background(), "memo.pdf.old.ann")
	require.NoError(t, err)
	assert.False(t, exists)
	exists, err = store.Exists(context.Background(), "memo.pdf.notes.xml")
	require.NoError(t, err)
	assert.False(t, exists, "nil notes are left untouched")

	assert.Contains(t, sink.types(), docstore.EventArtifactDeleted)
}

func TestService_SaveComponentsRejections(t *testing.T) {
	ctx := context.Background()

	counting := newCountingStore(seed(t, nil))
	readOnly, _ := newService(t, counting, docstore.WithReadOnly(true))
	_, err := readOnly.SaveDocumentComponents(ctx, docstore.SaveComponentsRequest{DocumentID: "a.pdf", Content: []byte("x")})
	assert.ErrorIs(t, err, docstore.ErrReadOnly)
	_, err = readOnly.SaveDocumentComponentsAs(ctx, docstore.SaveComponentsRequest{DocumentID: "a.pdf", Content: []byte("x")})
	assert.ErrorIs(t, err, docstore.ErrReadOnly)
	assert.Zero(t, counting.total())

	svc, _ := newService(t, seed(t, nil))
	_, err = svc.SaveDocumentComponents(ctx, docstore.SaveComponentsRequest{DocumentID: "CompoundDocument:a,b"})
	assert.ErrorIs(t, err, docstore.ErrUnsupportedOperation)
}

func TestService_DeletedLayersPartialFailure(t *testing.T) {
	backing := seed(t, map[string]string{"a.pdf.bad.ann": "x", "a.pdf.good.ann": "y"})
	store := &failingStore{ObjectStore: backing, failDelete: map[string]bool{"a.pdf.bad.ann": true}}
	svc, _ := newService(t, store)

	res, err := svc.SaveDocumentComponents(context.Background(), docstore.SaveComponentsRequest{
		DocumentID:      "a.pdf",
		DeletedLayerIDs: []string{"bad", "good"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"good"}, res.Deleted.Processed)
	require.Len(t, res.Deleted.Failures, 1)
	assert.Equal(t, "bad", res.Deleted.Failures[0].Item)
}

func TestService_AnnotationProperties(t *testing.T) {
	store := seed(t, map[string]string{"a.pdf.sig.ann": "x"})
	svc, _ := newService(t, store)
	ctx := context.Background()

	props, err := svc.GetAnnotationProperties(ctx, docstore.AnnotationRequest{DocumentID: "a.pdf", LayerID: "sig"})
	require.NoError(t, err)
	require.NotNil(t, props)
	assert.Equal(t, docstore.PermissionDelete, props.PermissionLevel)
	assert.False(t, props.RedactionFlag)

	props, err = svc.GetAnnotationProperties(ctx, docstore.AnnotationRequest{
		DocumentID:       "a.pdf",
		LayerID:          "sig",
		ClientInstanceID: `{"annotationPermissionLevel": 20}`,
	})
	require.NoError(t, err)
	assert.Equal(t, docstore.PermissionPrint, props.PermissionLevel)

	level := docstore.PermissionView
	props, err = svc.GetAnnotationProperties(ctx, docstore.AnnotationRequest{
		DocumentID:       "a.pdf",
		LayerID:          "sig",
		ClientInstanceID: `{"annotationPermissionLevel": 20}`,
		PermissionLevel:  &level,
	})
	require.NoError(t, err)
	assert.Equal(t, docstore.PermissionView, props.PermissionLevel)

	props, err = svc.GetAnnotationProperties(ctx, docstore.AnnotationRequest{DocumentID: "a.pdf", LayerID: "ghost"})
	require.NoError(t, err)
	assert.Nil(t, props)
}

func TestService_AnnotationLifecycle(t *testing.T) {
	store := seed(t, map[string]string{"a.pdf": "doc"})
	svc, _ := newService(t, store)
	ctx := context.Background()

	key, err := svc.SaveAnnotation(ctx, docstore.SaveAnnotationRequest{
		DocumentID: "a.pdf",
		LayerID:    "review",
		Data:       []byte("<r/>"),
		Properties: map[string]interface{}{"permissionLevel": 30, "future": "ignored"},
	})
	require.NoError(t, err)
	assert.Equal(t, "a.pdf.review.ann", key)

	key, err = svc.SaveAnnotation(ctx, docstore.SaveAnnotationRequest{DocumentID: "a.pdf", LayerID: "nothing"})
	require.NoError(t, err)
	assert.Empty(t, key)

	ids, err := svc.ListAnnotations(ctx, "a.pdf")
	require.NoError(t, err)
	assert.Equal(t, []string{"review"}, ids)

	layers, err := svc.GetAllAnnotations(ctx, docstore.AnnotationRequest{DocumentID: "a.pdf"})
	require.NoError(t, err)
	require.Len(t, layers, 1)
	assert.Equal(t, []byte("<r/>"), layers[0].Data)

	require.NoError(t, svc.DeleteAnnotation(ctx, docstore.AnnotationRequest{DocumentID: "a.pdf", LayerID: "review"}))
	require.NoError(t, svc.DeleteAnnotation(ctx, docstore.AnnotationRequest{DocumentID: "a.pdf", LayerID: "review"}))

	_, err = svc.GetAnnotation(ctx, docstore.AnnotationRequest{DocumentID: "a.pdf", LayerID: "review"})
	assert.True(t, docstore.IsNotFound(err))
}

func TestService_TIFFTagLayer(t *testing.T) {
	store := seed(t, map[string]string{
		"tagged.tif":       string(singlePageTIFF(256, tifftag.WangAnnotation)),
		"tagged.tif.a.ann": "a",
		"plain.tif":        string(singlePageTIFF(256)),
		"broken.tif":       "II*\x00\xff\xff\xff\xff",
		"hostile.tif":      "II+\x00\x08\x00\x00\x00\xff\xff\xff\xff\xff\xff\xff\xff",
	})
	ctx := context.Background()

	enabled, _ := newService(t, store, docstore.WithTIFFTagAnnotations(true))
	ids, err := enabled.ListAnnotations(ctx, "tagged.tif")
	require.NoError(t, err)
	assert.Equal(t, []string{docstore.TIFFTagLayerID, "a"}, ids)

	ids, err = enabled.ListAnnotations(ctx, "plain.tif")
	require.NoError(t, err)
	assert.Empty(t, ids)

	ids, err = enabled.ListAnnotations(ctx, "broken.tif")
	require.NoError(t, err, "detection failures are logged and ignored")
	assert.Empty(t, ids)

	ids, err = enabled.ListAnnotations(ctx, "hostile.tif")
	require.NoError(t, err, "out of range IFD offsets are rejected")
	assert.Empty(t, ids)

	layers, err := enabled.GetAllAnnotations(ctx, docstore.AnnotationRequest{DocumentID: "tagged.tif"})
	require.NoError(t, err)
	require.Len(t, layers, 1)
	assert.Equal(t, "a", layers[0].LayerID)

	disabled, _ := newService(t, store)
	ids, err = disabled.ListAnnotations(ctx, "tagged.tif")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids)
}

func TestService_Artifacts(t *testing.T) {
	store := seed(t, map[string]string{"a.pdf.ocr-text.json": `{"pages":[]}`})
	svc, sink := newService(t, store)
	ctx := context.Background()

	key, err := svc.SaveArtifact(ctx, docstore.ArtifactRequest{DocumentID: "a.pdf", Kind: docstore.KindNote}, []byte("<n/>"))
	require.NoError(t, err)
	assert.Equal(t, "a.pdf.notes.xml", key)

	data, err := svc.GetArtifact(ctx, docstore.ArtifactRequest{DocumentID: "a.pdf", Kind: docstore.KindNote})
	require.NoError(t, err)
	assert.Equal(t, []byte("<n/>"), data)

	_, err = svc.SaveArtifact(ctx, docstore.ArtifactRequest{DocumentID: "a.pdf", Kind: docstore.KindNote}, nil)
	require.NoError(t, err)
	_, err = svc.GetArtifact(ctx, docstore.ArtifactRequest{DocumentID: "a.pdf", Kind: docstore.KindNote})
	assert.ErrorIs(t, err, docstore.ErrNotFound)

	_, err = svc.SaveArtifact(ctx, docstore.ArtifactRequest{DocumentID: "a.pdf", Kind: docstore.KindAnnotation}, []byte("x"))
	assert.ErrorIs(t, err, docstore.ErrUnsupportedOperation)

	ocr, err := svc.GetOCRData(ctx, "a.pdf")
	require.NoError(t, err)
	assert.JSONEq(t, `{"pages":[]}`, string(ocr))

	assert.Equal(t, []docstore.EventType{docstore.EventArtifactSaved, docstore.EventArtifactDeleted}, sink.types())
}

func TestService_HostCallbacks(t *testing.T) {
	svc, sink := newService(t, seed(t, nil))
	ctx := context.Background()

	valid, err := svc.ValidateCache(ctx, "a.pdf")
	require.NoError(t, err)
	assert.True(t, valid)

	assert.NoError(t, svc.CheckAvailable(ctx))

	require.NoError(t, svc.Notify(ctx, docstore.HostEvent{DocumentID: "a.pdf", Type: "pageChanged", Params: map[string]string{"page": "2"}}))
	require.Len(t, sink.events, 1)
	assert.Equal(t, docstore.EventHostNotified, sink.events[0].Type)
	assert.Equal(t, map[string]string{"page": "2", "event": "pageChanged"}, sink.events[0].Params)

	unavailable, _ := newService(t, &failingStore{ObjectStore: seed(t, nil), failExists: true})
	assert.ErrorIs(t, unavailable.CheckAvailable(ctx), docstore.ErrStoreUnavailable)
}

func TestService_ListDocuments(t *testing.T) {
	store := seed(t, map[string]string{
		"docs/a.pdf":         "",
		"docs/a.pdf.x.ann":   "",
		"docs/notes.unknown": "",
		"docs/b.msg":         "",
	})
	svc, _ := newService(t, store, docstore.WithFolder("docs/"), docstore.WithDocumentExtensions([]string{"pdf"}))

	ids, err := svc.ListDocuments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.pdf"}, ids)
}
