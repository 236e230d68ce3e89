package api

import (
	"net/http"
	"path"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/filedepot/filedepot/internal/service"
)

func (r *Router) addAttachment(c *gin.Context) {
	postID, err := pathID(c)
	if err != nil {
		r.writeError(c, err)
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		r.writeError(c, NewError(http.StatusBadRequest, "No file uploaded"))
		return
	}
	f, err := fh.Open()
	if err != nil {
		r.writeError(c, NewError(http.StatusBadRequest, "Invalid file upload"))
		return
	}
	defer f.Close()

	attachment, err := r.services.Attachments.Add(c.Request.Context(), postID, service.FileUpload{
		Name: fh.Filename,
		Size: fh.Size,
		Body: f,
	})
	if err != nil {
		r.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, attachment)
}

func (r *Router) deleteAttachment(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		r.writeError(c, err)
		return
	}
	if err := r.services.Attachments.Delete(c.Request.Context(), id); err != nil {
		r.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Attachment deleted"})
}

func (r *Router) downloadAttachment(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		r.writeError(c, err)
		return
	}
	download, err := r.services.Attachments.Open(c.Request.Context(), id)
	if err != nil {
		r.writeError(c, err)
		return
	}
	defer download.File.Close()

	var modTime time.Time
	if info, err := download.File.Stat(); err == nil {
		modTime = info.ModTime()
	}
	name := download.Attachment.FileName
	c.Header("Content-Disposition", contentDisposition(fallbackName(name), name))
	http.ServeContent(c.Writer, c.Request, path.Base(download.Attachment.FilePath), modTime, download.File)
}
