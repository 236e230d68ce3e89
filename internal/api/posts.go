package api

import (
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/filedepot/filedepot/internal/models"
	"github.com/filedepot/filedepot/internal/service"
)

type updatePostRequest struct {
	Title      string     `json:"title"`
	CategoryID OptionalID `json:"category_id"`
}

func (r *Router) listPosts(c *gin.Context) {
	categoryID, err := parseOptionalID(c.Query("category_id"))
	if err != nil {
		r.writeError(c, NewError(http.StatusBadRequest, "Invalid category_id"))
		return
	}
	page, err := queryInt(c, "page")
	if err != nil {
		r.writeError(c, err)
		return
	}
	pageSize, err := queryInt(c, "page_size")
	if err != nil {
		r.writeError(c, err)
		return
	}

	posts, err := r.services.Posts.List(c.Request.Context(), service.PostQuery{
		CategoryID: categoryID,
		Search:     c.Query("q"),
		Page:       page,
		PageSize:   pageSize,
	})
	if err != nil {
		r.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, posts)
}

func (r *Router) getPost(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		r.writeError(c, err)
		return
	}
	post, err := r.services.Posts.Get(c.Request.Context(), id)
	if err != nil {
		r.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

// createPost accepts multipart fields title, category_id and up to five files
func (r *Router) createPost(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		r.writeError(c, NewError(http.StatusBadRequest, "Invalid multipart form"))
		return
	}
	categoryID, err := parseOptionalID(firstValue(form, "category_id"))
	if err != nil {
		r.writeError(c, NewError(http.StatusBadRequest, "Invalid category_id"))
		return
	}

	headers := form.File["files"]
	if len(headers) > models.MaxAttachmentsPerPost {
		r.writeError(c, NewError(http.StatusBadRequest, "Maximum 5 attachments per post"))
		return
	}
	uploads := make([]service.FileUpload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			r.writeError(c, NewError(http.StatusBadRequest, "Invalid file upload"))
			return
		}
		defer f.Close()
		uploads = append(uploads, service.FileUpload{Name: fh.Filename, Size: fh.Size, Body: f})
	}

	summary, err := r.services.Posts.Create(c.Request.Context(), service.PostInput{
		Title:      firstValue(form, "title"),
		CategoryID: categoryID,
	}, uploads)
	if err != nil {
		r.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (r *Router) updatePost(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		r.writeError(c, err)
		return
	}
	var req updatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		r.writeError(c, NewError(http.StatusBadRequest, "Invalid request body"))
		return
	}
	post, err := r.services.Posts.Update(c.Request.Context(), id, service.PostInput{
		Title:      req.Title,
		CategoryID: req.CategoryID.Value,
	})
	if err != nil {
		r.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

func (r *Router) deletePost(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		r.writeError(c, err)
		return
	}
	if err := r.services.Posts.Delete(c.Request.Context(), id); err != nil {
		r.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Post deleted"})
}

// downloadPost streams every attachment of a post as one zip
func (r *Router) downloadPost(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		r.writeError(c, err)
		return
	}
	archive, err := r.services.Archives.Prepare(c.Request.Context(), id)
	if err != nil {
		r.writeError(c, err)
		return
	}
	defer archive.Close()

	c.Header("Content-Type", "application/zip")
	c.Header("Content-Disposition", contentDisposition("download.zip", archive.Name))
	c.Status(http.StatusOK)
	if _, err := archive.WriteTo(c.Writer); err != nil {
		// Headers are already sent.
		r.logger.Error("zip stream aborted", zap.Int64("post_id", id), zap.Error(err))
		_ = c.Error(err)
	}
}

func firstValue(form *multipart.Form, key string) string {
	if v := form.Value[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}
