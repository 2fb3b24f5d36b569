package storage

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adverant/nexus/doctranslate-worker/internal/errors"
)

func TestArtifactKeys(t *testing.T) {
	assert.Equal(t, "job-1/translated_page_3.png", PageImageKey("job-1", 3))
	assert.Equal(t, "job-1/translated_page_3.txt", PageTextKey("job-1", 3))
	assert.Equal(t, "job-1/translated_document.pdf", DocumentKey("job-1"))
	assert.Equal(t, "translated_page_1.png", PageImageKey("", 1))
}

func TestSanitizeProgress(t *testing.T) {
	assert.Equal(t, 0, sanitizeProgress(-5))
	assert.Equal(t, 42, sanitizeProgress(42))
	assert.Equal(t, 100, sanitizeProgress(250))
}

func TestSanitizeJSONForPostgres(t *testing.T) {
	out := sanitizeJSONForPostgres([]byte(`{"text":"a\u0000b\u0007c"}`))
	assert.Equal(t, `{"text":"ab c"}`, string(out))
}

func TestDirStoreWritesArtifacts(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	store, err := NewDirStore(dir)
	require.NoError(t, err)

	stored, err := store.StoreTranslation(context.Background(), &TranslationOutput{
		JobID:    "cli",
		Pages:    []PageOutput{{Number: 1, Image: []byte("png"), Text: "HALO"}, {Number: 3, Image: []byte("png3"), Text: ""}},
		Document: []byte("%PDF-1.7"),
	})
	require.NoError(t, err)
	require.Len(t, stored.Pages, 2)
	assert.Equal(t, filepath.Join(dir, "translated_page_3.png"), stored.Pages[1].Image.Key)
	assert.Equal(t, "application/pdf", stored.Document.ContentType)

	text, err := os.ReadFile(filepath.Join(dir, "translated_page_1.txt"))
	require.NoError(t, err)
	assert.Equal(t, "HALO", string(text))

	_, err = os.Stat(filepath.Join(dir, "translated_document.pdf"))
	assert.NoError(t, err)
	assert.NoError(t, store.UpdateJobStatus(context.Background(), &JobUpdate{JobID: "cli", Status: StatusProcessing}))
}

func TestPostgresFailuresAreDatabaseErrors(t *testing.T) {
	// nothing listens on port 1, so every query fails to connect
	db, err := sql.Open("postgres", "postgres://doctranslate@127.0.0.1:1/doctranslate?sslmode=disable&connect_timeout=1")
	require.NoError(t, err)
	client := &PostgresClient{db: db}
	defer client.Close()

	ctx := context.Background()
	err = client.UpdateJobStatus(ctx, &JobUpdate{JobID: "job-1", Status: StatusProcessing})
	assert.Equal(t, errors.ErrorDatabaseFailed, errors.CodeOf(err))

	_, err = client.GetJobByID(ctx, "job-1")
	assert.Equal(t, errors.ErrorDatabaseFailed, errors.CodeOf(err))
	assert.NotErrorIs(t, err, ErrJobNotFound)
}
