package docstore_test

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-docstore/pkg/docstore"
)

func TestDocumentStore_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	store := seed(t, nil)
	docs := docstore.NewDocumentStore(store, docstore.DocumentStoreConfig{Codec: docstore.NewKeyCodec("f")})

	res, err := docs.Create(ctx, docstore.SaveDocumentRequest{DocumentID: "/tmp/upload/a.pdf", Content: []byte("v1")})
	require.NoError(t, err)
	assert.Equal(t, "a.pdf", res.ReloadDocumentID)
	assert.Equal(t, "f/a.pdf", res.Key)
	assert.True(t, res.Written)

	data, err := docs.Get(ctx, "a.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), data)

	opened, err := docs.Open(ctx, "a.pdf")
	require.NoError(t, err)
	defer opened.Reader.Close()
	streamed, err := io.ReadAll(opened.Reader)
	require.NoError(t, err)
	assert.Equal(t, "v1", string(streamed))
}

func TestDocumentStore_CreateCollision(t *testing.T) {
	ctx := context.Background()
	store := seed(t, map[string]string{"a.pdf": "v1"})
	docs := docstore.NewDocumentStore(store, docstore.DocumentStoreConfig{})

	_, err := docs.Create(ctx, docstore.SaveDocumentRequest{DocumentID: "a.pdf", Content: []byte("v2")})
	assert.ErrorIs(t, err, docstore.ErrAlreadyExists)
	assert.Equal(t, "v1", read(t, store, "a.pdf"))
	assert.Equal(t, 1, store.Versions("a.pdf"))
}

func TestDocumentStore_CreateEmailAttachment(t *testing.T) {
	ctx := context.Background()
	store := seed(t, nil)
	docs := docstore.NewDocumentStore(store, docstore.DocumentStoreConfig{})

	req := docstore.SaveDocumentRequest{
		DocumentID:        "invoice.pdf",
		Content:           []byte("att"),
		IsEmailAttachment: true,
		ParentDocumentID:  "mail.eml",
	}
	first, err := docs.Create(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "Attachment - mail.eml-invoice.pdf", first.ReloadDocumentID)
	assert.False(t, first.Existing)

	req.Content = []byte("second open")
	second, err := docs.Create(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Existing)
	assert.Equal(t, first.ReloadDocumentID, second.ReloadDocumentID)
	assert.Equal(t, "att", read(t, store, first.Key))
}

func TestDocumentStore_SaveKeepsVersions(t *testing.T) {
	ctx := context.Background()
	store := seed(t, map[string]string{"a.pdf": "v1"})
	docs := docstore.NewDocumentStore(store, docstore.DocumentStoreConfig{})

	_, err := docs.Save(ctx, docstore.SaveDocumentRequest{DocumentID: "a.pdf", Content: []byte("v2")})
	require.NoError(t, err)
	assert.Equal(t, "v2", read(t, store, "a.pdf"))
	assert.Equal(t, 2, store.Versions("a.pdf"))

	res, err := docs.Save(ctx, docstore.SaveDocumentRequest{DocumentID: "a.pdf"})
	require.NoError(t, err)
	assert.False(t, res.Written)
	assert.Equal(t, 2, store.Versions("a.pdf"))
}

func TestDocumentStore_ReadOnlyNeverTouchesStore(t *testing.T) {
	ctx := context.Background()
	counting := newCountingStore(seed(t, nil))
	docs := docstore.NewDocumentStore(counting, docstore.DocumentStoreConfig{ReadOnly: true})

	_, err := docs.Create(ctx, docstore.SaveDocumentRequest{DocumentID: "a.pdf", Content: []byte("x")})
	assert.ErrorIs(t, err, docstore.ErrReadOnly)
	_, err = docs.Save(ctx, docstore.SaveDocumentRequest{DocumentID: "../bad", Content: []byte("x")})
	assert.ErrorIs(t, err, docstore.ErrReadOnly)

	assert.Zero(t, counting.total())
}

func TestDocumentStore_RejectsVirtualWrites(t *testing.T) {
	ctx := context.Background()
	counting := newCountingStore(seed(t, nil))
	docs := docstore.NewDocumentStore(counting, docstore.DocumentStoreConfig{})

	for _, id := range []string{"SparseDocument:scan", "CompoundDocument:a.pdf,b.pdf"} {
		_, err := docs.Save(ctx, docstore.SaveDocumentRequest{DocumentID: id, Content: []byte("x")})
		assert.ErrorIs(t, err, docstore.ErrUnsupportedOperation, id)
	}
	_, err := docs.Save(ctx, docstore.SaveDocumentRequest{DocumentID: "..", Content: []byte("x")})
	assert.ErrorIs(t, err, docstore.ErrInvalidIdentifier)

	assert.Zero(t, counting.total())
}

func TestDocumentStore_GetMissing(t *testing.T) {
	docs := docstore.NewDocumentStore(seed(t, nil), docstore.DocumentStoreConfig{})

	_, err := docs.Get(context.Background(), "missing.pdf")
	assert.ErrorIs(t, err, docstore.ErrNotFound)

	var docErr *docstore.DocumentError
	require.ErrorAs(t, err, &docErr)
	assert.Equal(t, "missing.pdf", docErr.DocumentID)
}

func TestDocumentStore_GetUnavailable(t *testing.T) {
	store := &failingStore{ObjectStore: seed(t, nil), failExists: true}
	docs := docstore.NewDocumentStore(store, docstore.DocumentStoreConfig{})

	_, err := docs.Get(context.Background(), "a.pdf")
	assert.ErrorIs(t, err, docstore.ErrStoreUnavailable)
	assert.NotErrorIs(t, err, docstore.ErrNotFound)
}

func TestDocumentStore_ListDocumentIDs(t *testing.T) {
	store := seed(t, map[string]string{
		"f/a.pdf":             "",
		"f/b.TIF":             "",
		"f/readme.txt":        "",
		"f/a.pdf.sig.ann":     "",
		"f/a.pdf.notes.xml":   "",
		"f/.DS_Store":         "",
		"f/archive.zip":       "",
		"f/sparse/page1.tif":  "",
		"other/elsewhere.pdf": "",
	})
	docs := docstore.NewDocumentStore(store, docstore.DocumentStoreConfig{Codec: docstore.NewKeyCodec("f")})

	ids, err := docs.ListDocumentIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.pdf", "b.TIF", "readme.txt"}, ids)

	restricted := docstore.NewDocumentStore(store, docstore.DocumentStoreConfig{
		Codec:      docstore.NewKeyCodec("f"),
		Extensions: []string{"tif"},
	})
	ids, err = restricted.ListDocumentIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"b.TIF", "readme.txt"}, ids)
}
