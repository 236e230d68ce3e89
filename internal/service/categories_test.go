package service

import (
	"context"
	"errors"
	"path"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"

	"github.com/filedepot/filedepot/internal/blob"
	"github.com/filedepot/filedepot/internal/db"
)

func TestCategoryCreateRequiresName(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.svc.Categories.Create(context.Background(), CategoryInput{Name: "  "})
	require.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "Name is required", Message(err))
}

func TestCategoryUpdate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	id := f.category(t, "Docs")

	c, err := f.svc.Categories.Update(ctx, id, CategoryInput{Name: "Documents", Icon: "📁", Color: "#000000"})
	require.NoError(t, err)
	assert.Equal(t, "Documents", c.Name)

	list, err := f.svc.Categories.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "📁", list[0].Icon)

	_, err = f.svc.Categories.Update(ctx, id+100, CategoryInput{Name: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCategoryDeleteCascades(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	docs := f.category(t, "Docs")
	images := f.category(t, "Images")

	first := f.post(t, "Report", &docs, sized("a.pdf", 100), sized("b.pdf", 200))
	second := f.post(t, "Minutes", &docs, sized("c.txt", 10))
	kept := f.post(t, "Photo", &images, sized("d.png", 50))
	require.Equal(t, 4, f.blobCount(t))

	result, err := f.svc.Categories.Delete(ctx, docs)
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.Posts)
	assert.Equal(t, int64(3), result.Attachments)
	assert.Equal(t, 3, result.BlobsRemoved)
	assert.Equal(t, 0, result.BlobFailures)

	for _, id := range []int64{first, second} {
		_, err := f.svc.Posts.Get(ctx, id)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Zero(t, f.attachmentCount(t, id))
	}

	detail, err := f.svc.Posts.Get(ctx, kept)
	require.NoError(t, err)
	assert.Len(t, detail.Attachments, 1)
	assert.Equal(t, 1, f.blobCount(t))

	c, err := f.repo.Categories().GetByID(ctx, docs)
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestCategoryDeleteMissingTouchesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	docs := f.category(t, "Docs")
	f.post(t, "Report", &docs, sized("a.pdf", 100))

	_, err := f.svc.Categories.Delete(ctx, docs+1)
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "Category not found", Message(err))

	posts, err := f.svc.Posts.List(ctx, PostQuery{})
	require.NoError(t, err)
	assert.Len(t, posts, 1)
	assert.Equal(t, 1, f.blobCount(t))
}

func TestCategoryDeleteEmpty(t *testing.T) {
	f := newFixture(t, Options{})
	id := f.category(t, "Empty")

	result, err := f.svc.Categories.Delete(context.Background(), id)
	require.NoError(t, err)
	assert.Zero(t, result.Posts)
	assert.Zero(t, result.Attachments)
}

func TestCategoryDeleteToleratesMissingBlobs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	docs := f.category(t, "Docs")
	id := f.post(t, "Report", &docs, sized("a.pdf", 100), sized("b.pdf", 200))

	detail, err := f.svc.Posts.Get(ctx, id)
	require.NoError(t, err)
	require.NoError(t, f.blobs.Remove(detail.Attachments[0].FilePath))

	result, err := f.svc.Categories.Delete(ctx, docs)
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.Attachments)
	assert.Equal(t, 1, result.BlobsRemoved)
	assert.Equal(t, 0, result.BlobFailures)
	assert.Equal(t, 0, f.blobCount(t))
}

func TestCategoryDeleteSurvivesBlobRemovalFailure(t *testing.T) {
	ctx := context.Background()
	fsys := &failingFs{Fs: afero.NewMemMapFs(), fail: map[string]bool{}}
	f := newFixtureFs(t, Options{}, fsys)
	docs := f.category(t, "Docs")
	first := f.post(t, "Report", &docs, sized("a.pdf", 100), sized("b.pdf", 200))
	second := f.post(t, "Minutes", &docs, sized("c.txt", 10))
	require.Equal(t, 3, f.blobCount(t))

	detail, err := f.svc.Posts.Get(ctx, first)
	require.NoError(t, err)
	stuck := detail.Attachments[0].FilePath
	fsys.fail[path.Base(stuck)] = true

	result, err := f.svc.Categories.Delete(ctx, docs)
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.Posts)
	assert.Equal(t, int64(3), result.Attachments)
	assert.Equal(t, 2, result.BlobsRemoved)
	assert.Equal(t, 1, result.BlobFailures)

	for _, id := range []int64{first, second} {
		_, err := f.svc.Posts.Get(ctx, id)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Zero(t, f.attachmentCount(t, id))
	}
	c, err := f.repo.Categories().GetByID(ctx, docs)
	require.NoError(t, err)
	assert.Nil(t, c)

	ok, err := f.blobs.Exists(stuck)
	require.NoError(t, err)
	assert.True(t, ok, "only the failing blob is left behind")
	assert.Equal(t, 1, f.blobCount(t))
}

func newMockServices(t *testing.T) (*Services, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	database, err := db.Open(postgres.New(postgres.Config{
		Conn:       sqlDB,
		DriverName: "postgres",
	}), "SILENT")
	require.NoError(t, err)

	blobs := blob.NewFs(afero.NewMemMapFs())
	return New(db.NewRepository(database.DB), blobs, nil, Options{}), mock
}

func TestCategoryListStorageFailure(t *testing.T) {
	svc, mock := newMockServices(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "categories"`)).
		WillReturnError(errors.New("connection refused"))

	_, err := svc.Categories.List(context.Background())
	require.ErrorIs(t, err, ErrStorage)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCategoryDeleteRollsBackOnStorageFailure(t *testing.T) {
	svc, mock := newMockServices(t)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "categories"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "icon", "color"}).AddRow(7, "Docs", "📄", "#3b82f6"))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "id" FROM "posts"`)).
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	_, err := svc.Categories.Delete(context.Background(), 7)
	require.ErrorIs(t, err, ErrStorage)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
