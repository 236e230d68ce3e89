// Package seed fills an empty database with demonstration content and
// converts the legacy single-file table into posts.
package seed

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/filedepot/filedepot/internal/db"
	"github.com/filedepot/filedepot/internal/models"
	"github.com/filedepot/filedepot/pkg/logging"
)

// Result reports what Run did
type Result struct {
	MigratedFiles int
	Categories    int
	Posts         int
	Attachments   int
}

// Seeder prepares a freshly migrated database
type Seeder struct {
	repo   *db.Repository
	logger *zap.Logger
}

// New creates a seeder over repo
func New(repo *db.Repository) *Seeder {
	return &Seeder{
		repo:   repo,
		logger: logging.WithComponent("seed"),
	}
}

// Run migrates the legacy files table when it exists. Otherwise, when there
// are no categories yet, it inserts the sample data.
func (s *Seeder) Run(ctx context.Context) (*Result, error) {
	legacy := s.repo.LegacyFiles()
	if legacy.Exists(ctx) {
		s.logger.Info("Migrating legacy files to posts")
		n, err := s.MigrateLegacy(ctx)
		if err != nil {
			return nil, err
		}
		return &Result{MigratedFiles: n}, nil
	}

	count, err := s.repo.Categories().Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting categories: %w", err)
	}
	if count > 0 {
		s.logger.Info("Database already contains data")
		return &Result{}, nil
	}

	s.logger.Info("Inserting sample data")
	return s.InsertSampleData(ctx)
}

// MigrateLegacy turns every legacy file row into a post with one attachment
// and drops the legacy table, all in one transaction. References to
// categories that no longer exist are cleared.
func (s *Seeder) MigrateLegacy(ctx context.Context) (int, error) {
	var migrated int
	err := s.repo.WithTx(ctx, func(tx *db.Repository) error {
		files, err := tx.LegacyFiles().List(ctx)
		if err != nil {
			return fmt.Errorf("reading legacy files: %w", err)
		}

		known := map[int64]bool{}
		categories, err := tx.Categories().List(ctx)
		if err != nil {
			return fmt.Errorf("listing categories: %w", err)
		}
		for _, c := range categories {
			known[c.ID] = true
		}

		for _, f := range files {
			categoryID := f.CategoryID
			if categoryID != nil && !known[*categoryID] {
				s.logger.Warn("legacy file references a missing category",
					zap.Int64("file_id", f.ID),
					zap.Int64("category_id", *categoryID))
				categoryID = nil
			}

			post := &models.Post{Title: f.Name, CategoryID: categoryID, CreatedDate: legacyDate(f.UploadDate)}
			if err := tx.Posts().Create(ctx, post); err != nil {
				return fmt.Errorf("inserting post for legacy file %d: %w", f.ID, err)
			}
			if err := tx.Attachments().Create(ctx, &models.Attachment{
				PostID:   post.ID,
				FileName: f.Name,
				FileSize: f.Size,
				FilePath: f.FilePath,
			}); err != nil {
				return fmt.Errorf("inserting attachment for legacy file %d: %w", f.ID, err)
			}
			migrated++
		}

		if err := tx.LegacyFiles().Drop(ctx); err != nil {
			return fmt.Errorf("dropping legacy files table: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("Legacy migration completed", zap.Int("files", migrated))
	return migrated, nil
}

// legacyDate keeps the calendar part of an upload timestamp
func legacyDate(s string) string {
	if len(s) >= len(models.DateLayout) {
		return s[:len(models.DateLayout)]
	}
	return s
}

// InsertSampleData writes the demonstration categories and posts in one
// transaction. The attachments point at blobs that do not exist; downloads
// rely on placeholder synthesis.
func (s *Seeder) InsertSampleData(ctx context.Context) (*Result, error) {
	result := &Result{}
	err := s.repo.WithTx(ctx, func(tx *db.Repository) error {
		ids := make([]int64, len(sampleCategories))
		for i := range sampleCategories {
			c := sampleCategories[i]
			if err := tx.Categories().Create(ctx, &c); err != nil {
				return fmt.Errorf("inserting category %q: %w", c.Name, err)
			}
			ids[i] = c.ID
			result.Categories++
		}

		for _, sp := range samplePosts {
			categoryID := ids[sp.category]
			post := &models.Post{Title: sp.title, CategoryID: &categoryID, CreatedDate: sp.created}
			if err := tx.Posts().Create(ctx, post); err != nil {
				return fmt.Errorf("inserting post %q: %w", sp.title, err)
			}
			attachments := make([]models.Attachment, len(sp.attachments))
			for i, a := range sp.attachments {
				a.PostID = post.ID
				attachments[i] = a
			}
			if err := tx.Attachments().CreateBatch(ctx, attachments); err != nil {
				return fmt.Errorf("inserting attachments of %q: %w", sp.title, err)
			}
			result.Posts++
			result.Attachments += len(attachments)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Sample data inserted",
		zap.Int("categories", result.Categories),
		zap.Int("posts", result.Posts),
		zap.Int("attachments", result.Attachments))
	return result, nil
}
