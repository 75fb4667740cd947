package presets

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-docstore/pkg/docstore"
)

func TestNewDevelopment(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "dev-data")
	svc, cleanup, err := NewDevelopment(WithDevStorage(dir), WithDevFolder("docs"))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = svc.CreateDocument(ctx, docstore.SaveDocumentRequest{DocumentID: "a.pdf", Content: []byte("x")})
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "docs", "a.pdf"))
	assert.NoError(t, err)

	ids, err := svc.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.pdf"}, ids)

	cleanup()
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestNewTesting(t *testing.T) {
	svc := NewTesting(t, WithFixtures(map[string]string{"a.pdf": "fixture"}))
	ctx := context.Background()

	doc, err := svc.GetDocument(ctx, docstore.GetDocumentRequest{DocumentID: "a.pdf"})
	require.NoError(t, err)
	assert.Equal(t, []byte("fixture"), doc.Content)

	readOnly := NewTesting(t, WithFixtures(map[string]string{"a.pdf": "fixture"}), WithReadOnlyStore())
	_, err = readOnly.SaveDocument(ctx, docstore.SaveDocumentRequest{DocumentID: "a.pdf", Content: []byte("y")})
	assert.ErrorIs(t, err, docstore.ErrReadOnly)

	debug := NewTesting(t, WithFixtures(map[string]string{"ab.pdf": ""}), WithServiceOptions(docstore.WithDebug(true)))
	doc, err = debug.GetDocument(ctx, docstore.GetDocumentRequest{DocumentID: "ab.pdf"})
	require.NoError(t, err)
	assert.Equal(t, "fdp.ba", doc.DisplayName)
}

func TestPresetIsolation(t *testing.T) {
	ctx := context.Background()
	first := NewTesting(t)
	second := NewTesting(t)

	_, err := first.CreateDocument(ctx, docstore.SaveDocumentRequest{DocumentID: "a.pdf", Content: []byte("x")})
	require.NoError(t, err)

	ids, err := second.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestNewProductionRejectsMemory(t *testing.T) {
	t.Setenv("DOCSTORE_BACKEND", "memory")
	_, _, err := NewProduction(context.Background(), nil)
	assert.Error(t, err)
}
