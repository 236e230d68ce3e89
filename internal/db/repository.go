package db

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/filedepot/filedepot/internal/models"
)

// Repository provides database access methods
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx runs fn inside a transaction. The repository handed to fn is bound
// to the transaction; returning an error rolls it back.
func (r *Repository) WithTx(ctx context.Context, fn func(tx *Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repository{db: tx})
	})
}

// Categories returns the category repository bound to r
func (r *Repository) Categories() *CategoryRepository {
	return &CategoryRepository{Repository: r}
}

// Posts returns the post repository bound to r
func (r *Repository) Posts() *PostRepository {
	return &PostRepository{Repository: r}
}

// Attachments returns the attachment repository bound to r
func (r *Repository) Attachments() *AttachmentRepository {
	return &AttachmentRepository{Repository: r}
}

// CategoryRepository provides category-related database operations
type CategoryRepository struct {
	*Repository
}

// List returns all categories ordered by id
func (r *CategoryRepository) List(ctx context.Context) ([]models.Category, error) {
	categories := []models.Category{}
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&categories).Error; err != nil {
		return nil, err
	}
	return categories, nil
}

// GetByID retrieves a category by ID
func (r *CategoryRepository) GetByID(ctx context.Context, id int64) (*models.Category, error) {
	var category models.Category
	if err := r.db.WithContext(ctx).First(&category, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &category, nil
}

// Count returns the number of categories
func (r *CategoryRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Category{}).Count(&n).Error
	return n, err
}

// Create creates a new category
func (r *CategoryRepository) Create(ctx context.Context, category *models.Category) error {
	return r.db.WithContext(ctx).Create(category).Error
}

// Update updates a category
func (r *CategoryRepository) Update(ctx context.Context, category *models.Category) error {
	return r.db.WithContext(ctx).Save(category).Error
}

// Delete removes a category row and reports how many rows were deleted
func (r *CategoryRepository) Delete(ctx context.Context, id int64) (int64, error) {
	res := r.db.WithContext(ctx).Delete(&models.Category{}, id)
	return res.RowsAffected, res.Error
}

// PostRepository provides post-related database operations
type PostRepository struct {
	*Repository
}

// PostFilter narrows a post summary listing
type PostFilter struct {
	CategoryID *int64
	Search     string
	Limit      int
	Offset     int
}

// GetByID retrieves a post by ID
func (r *PostRepository) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	var post models.Post
	if err := r.db.WithContext(ctx).First(&post, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &post, nil
}

// Create creates a new post
func (r *PostRepository) Create(ctx context.Context, post *models.Post) error {
	return r.db.WithContext(ctx).Omit("Category").Create(post).Error
}

// Update updates the title and category of a post
func (r *PostRepository) Update(ctx context.Context, post *models.Post) error {
	return r.db.WithContext(ctx).Model(&models.Post{ID: post.ID}).
		Select("title", "category_id").
		Updates(map[string]interface{}{
			"title":       post.Title,
			"category_id": post.CategoryID,
		}).Error
}

// Delete removes a post row and reports how many rows were deleted
func (r *PostRepository) Delete(ctx context.Context, id int64) (int64, error) {
	res := r.db.WithContext(ctx).Delete(&models.Post{}, id)
	return res.RowsAffected, res.Error
}

// IDsByCategory returns the ids of all posts in a category
func (r *PostRepository) IDsByCategory(ctx context.Context, categoryID int64) ([]int64, error) {
	var ids []int64
	if err := r.db.WithContext(ctx).Model(&models.Post{}).
		Where("category_id = ?", categoryID).
		Order("id ASC").
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// DeleteByIDs removes all posts with the given ids in one statement
func (r *PostRepository) DeleteByIDs(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.Post{})
	return res.RowsAffected, res.Error
}

// summaryQuery joins posts to their attachments and aggregates count and size
func (r *PostRepository) summaryQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Table("posts AS p").
		Select("p.id, p.title, p.category_id, p.created_date, " +
			"COUNT(a.id) AS attachment_count, COALESCE(SUM(a.file_size), 0) AS total_size").
		Joins("LEFT JOIN attachments a ON a.post_id = p.id").
		Group("p.id, p.title, p.category_id, p.created_date")
}

// Summaries lists posts with attachment aggregates, newest first
func (r *PostRepository) Summaries(ctx context.Context, filter PostFilter) ([]models.PostSummary, error) {
	q := r.summaryQuery(ctx)
	if filter.CategoryID != nil {
		q = q.Where("p.category_id = ?", *filter.CategoryID)
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		q = q.Where(`LOWER(p.title) LIKE ? ESCAPE '\'`, "%"+escapeLike(strings.ToLower(s))+"%")
	}
	q = q.Order("p.created_date DESC").Order("p.id DESC")
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit).Offset(filter.Offset)
	}

	summaries := []models.PostSummary{}
	if err := q.Scan(&summaries).Error; err != nil {
		return nil, err
	}
	return summaries, nil
}

// Summary returns the aggregate row of one post, or nil if it does not exist
func (r *PostRepository) Summary(ctx context.Context, id int64) (*models.PostSummary, error) {
	var summaries []models.PostSummary
	if err := r.summaryQuery(ctx).Where("p.id = ?", id).Scan(&summaries).Error; err != nil {
		return nil, err
	}
	if len(summaries) == 0 {
		return nil, nil
	}
	return &summaries[0], nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// AttachmentRepository provides attachment-related database operations
type AttachmentRepository struct {
	*Repository
}

// GetByID retrieves an attachment by ID
func (r *AttachmentRepository) GetByID(ctx context.Context, id int64) (*models.Attachment, error) {
	var attachment models.Attachment
	if err := r.db.WithContext(ctx).First(&attachment, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &attachment, nil
}

// Create creates a new attachment
func (r *AttachmentRepository) Create(ctx context.Context, attachment *models.Attachment) error {
	return r.db.WithContext(ctx).Omit("Post").Create(attachment).Error
}

// CreateBatch inserts several attachments in one statement
func (r *AttachmentRepository) CreateBatch(ctx context.Context, attachments []models.Attachment) error {
	if len(attachments) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Omit("Post").Create(&attachments).Error
}

// ListByPost returns the attachments of a post in insertion order
func (r *AttachmentRepository) ListByPost(ctx context.Context, postID int64) ([]models.Attachment, error) {
	attachments := []models.Attachment{}
	if err := r.db.WithContext(ctx).Where("post_id = ?", postID).Order("id ASC").Find(&attachments).Error; err != nil {
		return nil, err
	}
	return attachments, nil
}

// ListByCategory returns the attachments of every post in a category
func (r *AttachmentRepository) ListByCategory(ctx context.Context, categoryID int64) ([]models.Attachment, error) {
	attachments := []models.Attachment{}
	if err := r.db.WithContext(ctx).
		Select("attachments.*").
		Joins("JOIN posts ON posts.id = attachments.post_id").
		Where("posts.category_id = ?", categoryID).
		Order("attachments.id ASC").
		Find(&attachments).Error; err != nil {
		return nil, err
	}
	return attachments, nil
}

// CountByPost returns the number of attachments of a post
func (r *AttachmentRepository) CountByPost(ctx context.Context, postID int64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Attachment{}).Where("post_id = ?", postID).Count(&n).Error
	return n, err
}

// Delete removes one attachment row
func (r *AttachmentRepository) Delete(ctx context.Context, id int64) (int64, error) {
	res := r.db.WithContext(ctx).Delete(&models.Attachment{}, id)
	return res.RowsAffected, res.Error
}

// DeleteByPostIDs removes the attachments of all given posts in one statement
func (r *AttachmentRepository) DeleteByPostIDs(ctx context.Context, postIDs []int64) (int64, error) {
	if len(postIDs) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Where("post_id IN ?", postIDs).Delete(&models.Attachment{})
	return res.RowsAffected, res.Error
}

// LegacyFiles returns the repository of the pre-post single-file table
func (r *Repository) LegacyFiles() *LegacyFileRepository {
	return &LegacyFileRepository{Repository: r}
}

// LegacyFileRepository reads and retires the old "files" table
type LegacyFileRepository struct {
	*Repository
}

// Exists reports whether the legacy table is still present
func (r *LegacyFileRepository) Exists(ctx context.Context) bool {
	return r.db.WithContext(ctx).Migrator().HasTable(&models.LegacyFile{})
}

// List returns every legacy row ordered by id
func (r *LegacyFileRepository) List(ctx context.Context) ([]models.LegacyFile, error) {
	var files []models.LegacyFile
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&files).Error; err != nil {
		return nil, err
	}
	return files, nil
}

// Drop removes the legacy table
func (r *LegacyFileRepository) Drop(ctx context.Context) error {
	return r.db.WithContext(ctx).Migrator().DropTable(&models.LegacyFile{})
}
