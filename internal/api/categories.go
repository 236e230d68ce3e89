package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/filedepot/filedepot/internal/service"
)

type categoryRequest struct {
	Name  string `json:"name"`
	Icon  string `json:"icon"`
	Color string `json:"color"`
}

func (req categoryRequest) input() service.CategoryInput {
	return service.CategoryInput{Name: req.Name, Icon: req.Icon, Color: req.Color}
}

func (r *Router) listCategories(c *gin.Context) {
	categories, err := r.services.Categories.List(c.Request.Context())
	if err != nil {
		r.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, categories)
}

func (r *Router) createCategory(c *gin.Context) {
	var req categoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		r.writeError(c, NewError(http.StatusBadRequest, "Invalid request body"))
		return
	}
	category, err := r.services.Categories.Create(c.Request.Context(), req.input())
	if err != nil {
		r.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, category)
}

func (r *Router) updateCategory(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		r.writeError(c, err)
		return
	}
	var req categoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		r.writeError(c, NewError(http.StatusBadRequest, "Invalid request body"))
		return
	}
	category, err := r.services.Categories.Update(c.Request.Context(), id, req.input())
	if err != nil {
		r.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, category)
}

// deleteCategory removes the category with every post and attachment in it
func (r *Router) deleteCategory(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		r.writeError(c, err)
		return
	}
	result, err := r.services.Categories.Delete(c.Request.Context(), id)
	if err != nil {
		r.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":             "Category deleted successfully",
		"deleted_posts":       result.Posts,
		"deleted_attachments": result.Attachments,
	})
}
