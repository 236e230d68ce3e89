package api

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filedepot/filedepot/internal/blob"
	"github.com/filedepot/filedepot/internal/db"
	"github.com/filedepot/filedepot/internal/service"
	"github.com/filedepot/filedepot/pkg/config"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type testServer struct {
	engine    *gin.Engine
	uploadDir string
}

func newTestServer(t *testing.T, mutate ...func(*config.Config)) *testServer {
	t.Helper()
	dir := t.TempDir()

	cfg := &config.Config{
		Database: config.DatabaseConfig{URL: "sqlite://" + filepath.Join(dir, "api.sqlite")},
		Server: config.ServerConfig{
			Port:               3001,
			AllowedOrigins:     []string{"*"},
			MaxMultipartMemory: 8 << 20,
		},
		Storage: config.StorageConfig{
			UploadDir:          filepath.Join(dir, "uploads"),
			PlaceholderMissing: true,
			MaxFileSize:        1 << 20,
		},
	}
	for _, fn := range mutate {
		fn(cfg)
	}

	database, err := db.New(&cfg.Database, "SILENT")
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, database.Migrate(context.Background()))

	blobs, err := blob.New(cfg.Storage.UploadDir)
	require.NoError(t, err)

	services := service.New(db.NewRepository(database.DB), blobs, nil, service.Options{
		PlaceholderMissing: cfg.Storage.PlaceholderMissing,
		MaxFileSize:        cfg.Storage.MaxFileSize,
	})
	return &testServer{
		engine:    NewRouter(cfg, database, nil, services).Engine(),
		uploadDir: cfg.Storage.UploadDir,
	}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	s.engine.ServeHTTP(resp, req)
	return resp
}

func (s *testServer) json(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	return s.do(req)
}

type part struct {
	field, name, content string
}

func (s *testServer) multipart(t *testing.T, path string, fields map[string]string, files ...part) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for _, f := range files {
		fw, err := w.CreateFormFile(f.field, f.name)
		require.NoError(t, err)
		_, err = io.WriteString(fw, f.content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return s.do(req)
}

func decode(t *testing.T, resp *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), v), resp.Body.String())
}

func errorMessage(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	decode(t, resp, &body)
	return body["error"]
}

func (s *testServer) createCategory(t *testing.T, name string) int64 {
	t.Helper()
	resp := s.json(t, http.MethodPost, "/api/categories", gin.H{"name": name, "icon": "📄", "color": "#3b82f6"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var body struct {
		ID int64 `json:"id"`
	}
	decode(t, resp, &body)
	return body.ID
}

func (s *testServer) createPost(t *testing.T, title string, categoryID string, files ...part) int64 {
	t.Helper()
	resp := s.multipart(t, "/api/posts", map[string]string{"title": title, "category_id": categoryID}, files...)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var body struct {
		ID int64 `json:"id"`
	}
	decode(t, resp, &body)
	return body.ID
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	resp := s.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, resp.Code)

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	decode(t, resp, &body)
	assert.Equal(t, "OK", body.Status)
	assert.Equal(t, "disabled", body.Checks["redis"])
}

func TestCategoryEndpoints(t *testing.T) {
	s := newTestServer(t)
	id := s.createCategory(t, "Docs")

	resp := s.json(t, http.MethodPut, "/api/categories/"+itoa(id), gin.H{"name": "Documents", "icon": "📁", "color": "#000"})
	require.Equal(t, http.StatusOK, resp.Code)

	resp = s.json(t, http.MethodGet, "/api/categories", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var list []map[string]interface{}
	decode(t, resp, &list)
	require.Len(t, list, 1)
	assert.Equal(t, "Documents", list[0]["name"])

	resp = s.json(t, http.MethodPost, "/api/categories", gin.H{"name": ""})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = s.json(t, http.MethodPut, "/api/categories/999", gin.H{"name": "x"})
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "Category not found", errorMessage(t, resp))
}

func TestDeleteCategoryCascade(t *testing.T) {
	s := newTestServer(t)
	docs := s.createCategory(t, "Docs")
	postID := s.createPost(t, "Report", itoa(docs),
		part{"files", "a.pdf", strings.Repeat("a", 100)},
		part{"files", "b.pdf", strings.Repeat("b", 200)})

	resp := s.json(t, http.MethodGet, "/api/posts?category_id="+itoa(docs), nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var posts []struct {
		Title           string `json:"title"`
		AttachmentCount int64  `json:"attachment_count"`
		TotalSize       int64  `json:"total_size"`
	}
	decode(t, resp, &posts)
	require.Len(t, posts, 1)
	assert.Equal(t, int64(2), posts[0].AttachmentCount)
	assert.Equal(t, int64(300), posts[0].TotalSize)

	resp = s.json(t, http.MethodDelete, "/api/categories/"+itoa(docs), nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var msg map[string]interface{}
	decode(t, resp, &msg)
	assert.Equal(t, "Category deleted successfully", msg["message"])

	resp = s.json(t, http.MethodGet, "/api/posts/"+itoa(postID), nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "Post not found", errorMessage(t, resp))

	entries, err := os.ReadDir(s.uploadDir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	resp = s.json(t, http.MethodDelete, "/api/categories/"+itoa(docs), nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestCreatePostErrors(t *testing.T) {
	s := newTestServer(t)

	resp := s.multipart(t, "/api/posts", map[string]string{"title": "Report"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "At least one file is required", errorMessage(t, resp))

	resp = s.multipart(t, "/api/posts", map[string]string{"title": ""}, part{"files", "a.txt", "x"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "Title is required", errorMessage(t, resp))

	six := make([]part, 6)
	for i := range six {
		six[i] = part{"files", "f.txt", "x"}
	}
	resp = s.multipart(t, "/api/posts", map[string]string{"title": "Too many"}, six...)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "Maximum 5 attachments per post", errorMessage(t, resp))

	many := make([]part, 200)
	for i := range many {
		many[i] = part{"files", "f" + strconv.Itoa(i) + ".txt", "x"}
	}
	resp = s.multipart(t, "/api/posts", map[string]string{"title": "Far too many"}, many...)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "Maximum 5 attachments per post", errorMessage(t, resp))
	entries, err := os.ReadDir(s.uploadDir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	resp = s.multipart(t, "/api/posts", map[string]string{"title": "x", "category_id": "42"}, part{"files", "a.txt", "x"})
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = s.multipart(t, "/api/posts", map[string]string{"title": "x", "category_id": "abc"}, part{"files", "a.txt", "x"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = s.json(t, http.MethodGet, "/api/posts", nil)
	var posts []interface{}
	decode(t, resp, &posts)
	assert.Empty(t, posts)
}

func TestUpdateAndDeletePost(t *testing.T) {
	s := newTestServer(t)
	docs := s.createCategory(t, "Docs")
	id := s.createPost(t, "Draft", "", part{"files", "a.txt", "x"})

	resp := s.json(t, http.MethodPut, "/api/posts/"+itoa(id), gin.H{"title": "Final", "category_id": itoa(docs)})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var detail struct {
		Title       string        `json:"title"`
		CategoryID  *int64        `json:"category_id"`
		Attachments []interface{} `json:"attachments"`
	}
	decode(t, s.json(t, http.MethodGet, "/api/posts/"+itoa(id), nil), &detail)
	assert.Equal(t, "Final", detail.Title)
	require.NotNil(t, detail.CategoryID)
	assert.Equal(t, docs, *detail.CategoryID)
	assert.Len(t, detail.Attachments, 1)

	resp = s.json(t, http.MethodPut, "/api/posts/"+itoa(id), gin.H{"title": "Final", "category_id": nil})
	require.Equal(t, http.StatusOK, resp.Code)

	resp = s.json(t, http.MethodDelete, "/api/posts/"+itoa(id), nil)
	require.Equal(t, http.StatusOK, resp.Code)
	resp = s.json(t, http.MethodDelete, "/api/posts/"+itoa(id), nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestAttachmentEndpoints(t *testing.T) {
	s := newTestServer(t)
	id := s.createPost(t, "Report", "",
		part{"files", "1.txt", "1"}, part{"files", "2.txt", "2"}, part{"files", "3.txt", "3"}, part{"files", "4.txt", "4"})

	resp := s.multipart(t, "/api/posts/"+itoa(id)+"/attachments", nil, part{"file", "5.txt", "5"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var added struct {
		ID       int64  `json:"id"`
		FileName string `json:"file_name"`
	}
	decode(t, resp, &added)
	assert.Equal(t, "5.txt", added.FileName)

	resp = s.multipart(t, "/api/posts/"+itoa(id)+"/attachments", nil, part{"file", "6.txt", "6"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "Maximum 5 attachments per post", errorMessage(t, resp))

	resp = s.multipart(t, "/api/posts/"+itoa(id)+"/attachments", nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "No file uploaded", errorMessage(t, resp))

	resp = s.multipart(t, "/api/posts/999/attachments", nil, part{"file", "x.txt", "x"})
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = s.json(t, http.MethodDelete, "/api/attachments/"+itoa(added.ID), nil)
	require.Equal(t, http.StatusOK, resp.Code)
	resp = s.json(t, http.MethodDelete, "/api/attachments/"+itoa(added.ID), nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "Attachment not found", errorMessage(t, resp))
}

func TestDownloadAttachmentHeaders(t *testing.T) {
	s := newTestServer(t)
	id := s.createPost(t, "Korean", "", part{"files", "보고서.pdf", "pdf-bytes"})

	var detail struct {
		Attachments []struct {
			ID       int64  `json:"id"`
			FileName string `json:"file_name"`
		} `json:"attachments"`
	}
	decode(t, s.json(t, http.MethodGet, "/api/posts/"+itoa(id), nil), &detail)
	require.Len(t, detail.Attachments, 1)
	assert.Equal(t, "보고서.pdf", detail.Attachments[0].FileName)

	resp := s.do(httptest.NewRequest(http.MethodGet, "/api/attachments/"+itoa(detail.Attachments[0].ID)+"/download", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t,
		`attachment; filename="download.pdf"; filename*=UTF-8''%EB%B3%B4%EA%B3%A0%EC%84%9C.pdf`,
		resp.Header().Get("Content-Disposition"))
	assert.Equal(t, "pdf-bytes", resp.Body.String())

	resp = s.do(httptest.NewRequest(http.MethodGet, "/api/attachments/999/download", nil))
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestDownloadPostZip(t *testing.T) {
	s := newTestServer(t)
	id := s.createPost(t, "보고서", "", part{"files", "a.txt", "alpha"}, part{"files", "b.txt", "bravo"})

	resp := s.do(httptest.NewRequest(http.MethodGet, "/api/posts/"+itoa(id)+"/download", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "application/zip", resp.Header().Get("Content-Type"))
	assert.Equal(t,
		`attachment; filename="download.zip"; filename*=UTF-8''%EB%B3%B4%EA%B3%A0%EC%84%9C.zip`,
		resp.Header().Get("Content-Disposition"))

	data := resp.Body.Bytes()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	assert.Equal(t, []string{"a.txt", "b.txt"}, names)

	resp = s.do(httptest.NewRequest(http.MethodGet, "/api/posts/999/download", nil))
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestDownloadMissingBlobStrict(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) { cfg.Storage.PlaceholderMissing = false })
	id := s.createPost(t, "Report", "", part{"files", "a.txt", "alpha"})

	entries, err := os.ReadDir(s.uploadDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NoError(t, os.Remove(filepath.Join(s.uploadDir, entries[0].Name())))

	resp := s.do(httptest.NewRequest(http.MethodGet, "/api/posts/"+itoa(id)+"/download", nil))
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "File not found", errorMessage(t, resp))
}

func TestInvalidID(t *testing.T) {
	s := newTestServer(t)
	resp := s.json(t, http.MethodGet, "/api/posts/abc", nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "Invalid id", errorMessage(t, resp))
}

func TestRateLimitOnMutations(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) { cfg.Server.RateLimitPerMinute = 1 })

	resp := s.json(t, http.MethodPost, "/api/categories", gin.H{"name": "one"})
	assert.Equal(t, http.StatusOK, resp.Code)
	resp = s.json(t, http.MethodPost, "/api/categories", gin.H{"name": "two"})
	assert.Equal(t, http.StatusTooManyRequests, resp.Code)

	// Reads are never throttled.
	resp = s.json(t, http.MethodGet, "/api/categories", nil)
	assert.Equal(t, http.StatusOK, resp.Code)
}
