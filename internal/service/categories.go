package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/filedepot/filedepot/internal/db"
	"github.com/filedepot/filedepot/internal/models"
	"github.com/filedepot/filedepot/pkg/telemetry"
)

// CategoryService manages categories and their cascading delete
type CategoryService struct {
	*base
}

// CategoryInput carries the editable fields of a category
type CategoryInput struct {
	Name  string
	Icon  string
	Color string
}

// CascadeResult reports what a category delete removed
type CascadeResult struct {
	Posts        int64
	Attachments  int64
	BlobsRemoved int
	BlobFailures int
}

// List returns every category ordered by id
func (s *CategoryService) List(ctx context.Context) (categories []models.Category, err error) {
	ctx, span := telemetry.StartSpan(ctx, "CategoryService.List")
	defer func() { telemetry.EndSpan(span, err) }()

	if err := s.cache.GetJSON(ctx, cachePrefixCategories+"all", &categories); err == nil {
		return categories, nil
	}
	gen := s.cache.Generation()

	categories, err = s.repo.Categories().List(ctx)
	if err != nil {
		return nil, storageError("failed to list categories", err)
	}
	if _, err := s.cache.SetJSONAt(ctx, cachePrefixCategories+"all", categories, gen); err != nil && s.cache != nil {
		s.logger.Debug("category cache write failed", zap.Error(err))
	}
	return categories, nil
}

// Create inserts a category. The name is required.
func (s *CategoryService) Create(ctx context.Context, in CategoryInput) (category *models.Category, err error) {
	ctx, span := telemetry.StartSpan(ctx, "CategoryService.Create")
	defer func() { telemetry.EndSpan(span, err) }()

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, validationError("Name is required")
	}

	category = &models.Category{Name: name, Icon: in.Icon, Color: in.Color}
	if err := s.repo.Categories().Create(ctx, category); err != nil {
		return nil, storageError("failed to create category", err)
	}
	s.invalidate(ctx, cachePrefixCategories)
	return category, nil
}

// Update replaces the fields of an existing category
func (s *CategoryService) Update(ctx context.Context, id int64, in CategoryInput) (category *models.Category, err error) {
	ctx, span := telemetry.StartSpan(ctx, "CategoryService.Update")
	defer func() { telemetry.EndSpan(span, err) }()

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, validationError("Name is required")
	}

	unlock := s.locks.Lock(categoryKey(id))
	defer unlock()

	categories := s.repo.Categories()
	category, err = categories.GetByID(ctx, id)
	if err != nil {
		return nil, storageError("failed to load category", err)
	}
	if category == nil {
		return nil, notFound("Category not found")
	}

	category.Name = name
	category.Icon = in.Icon
	category.Color = in.Color
	if err := categories.Update(ctx, category); err != nil {
		return nil, storageError("failed to update category", err)
	}
	s.invalidate(ctx, cachePrefixCategories)
	return category, nil
}

// Delete removes a category together with all of its posts and their
// attachments in one transaction, children first. Blobs are removed after
// the commit; a blob that cannot be removed is logged and counted only.
func (s *CategoryService) Delete(ctx context.Context, id int64) (result *CascadeResult, err error) {
	ctx, span := telemetry.StartSpan(ctx, "CategoryService.Delete")
	defer func() { telemetry.EndSpan(span, err) }()

	unlock := s.locks.Lock(categoryKey(id))
	defer unlock()

	result = &CascadeResult{}
	var doomed []models.Attachment

	err = s.repo.WithTx(ctx, func(tx *db.Repository) error {
		category, err := tx.Categories().GetByID(ctx, id)
		if err != nil {
			return storageError("failed to load category", err)
		}
		if category == nil {
			return notFound("Category not found")
		}

		postIDs, err := tx.Posts().IDsByCategory(ctx, id)
		if err != nil {
			return storageError("failed to collect posts", err)
		}
		doomed, err = tx.Attachments().ListByCategory(ctx, id)
		if err != nil {
			return storageError("failed to collect attachments", err)
		}

		if result.Attachments, err = tx.Attachments().DeleteByPostIDs(ctx, postIDs); err != nil {
			return storageError("failed to delete attachments", err)
		}
		if result.Posts, err = tx.Posts().DeleteByIDs(ctx, postIDs); err != nil {
			return storageError("failed to delete posts", err)
		}
		n, err := tx.Categories().Delete(ctx, id)
		if err != nil {
			return storageError("failed to delete category", err)
		}
		if n == 0 {
			return notFound("Category not found")
		}
		return nil
	})
	if err != nil {
		return nil, passOrStorage("failed to delete category", err)
	}

	result.BlobsRemoved, result.BlobFailures = s.removeBlobs(ctx, "category_delete", doomed)
	telemetry.Add(ctx, s.metrics.CascadeDeletes, 1, "")
	s.logger.Info("category deleted",
		zap.Int64("category_id", id),
		zap.Int64("posts", result.Posts),
		zap.Int64("attachments", result.Attachments),
		zap.Int("blobs_removed", result.BlobsRemoved),
		zap.Int("blob_failures", result.BlobFailures))

	s.invalidate(ctx, cachePrefixCategories, cachePrefixPosts)
	return result, nil
}
