package service

import (
	"context"
	"errors"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/filedepot/filedepot/internal/blob"
	"github.com/filedepot/filedepot/internal/cache"
	"github.com/filedepot/filedepot/internal/db"
	"github.com/filedepot/filedepot/internal/models"
	"github.com/filedepot/filedepot/pkg/telemetry"
)

// FileUpload is one received file
type FileUpload struct {
	Name string
	Size int64
	Body io.Reader
}

// PostService manages posts together with their attachments
type PostService struct {
	*base
}

// PostQuery filters and pages a post listing. A zero PageSize disables paging.
type PostQuery struct {
	CategoryID *int64
	Search     string
	Page       int
	PageSize   int
}

// PostInput carries the editable fields of a post
type PostInput struct {
	Title      string
	CategoryID *int64
}

// List returns post summaries, newest first
func (s *PostService) List(ctx context.Context, q PostQuery) (summaries []models.PostSummary, err error) {
	ctx, span := telemetry.StartSpan(ctx, "PostService.List")
	defer func() { telemetry.EndSpan(span, err) }()

	if q.PageSize < 0 || q.Page < 0 {
		return nil, validationError("Invalid page")
	}

	filter := db.PostFilter{CategoryID: q.CategoryID, Search: q.Search}
	if q.PageSize > 0 {
		page := q.Page
		if page < 1 {
			page = 1
		}
		filter.Limit = q.PageSize
		filter.Offset = (page - 1) * q.PageSize
	}

	key := cachePrefixPosts + cache.HashKey(optionalID(q.CategoryID), strings.TrimSpace(q.Search),
		strconv.Itoa(filter.Limit), strconv.Itoa(filter.Offset))
	if err := s.cache.GetJSON(ctx, key, &summaries); err == nil {
		return summaries, nil
	}
	gen := s.cache.Generation()

	summaries, err = s.repo.Posts().Summaries(ctx, filter)
	if err != nil {
		return nil, storageError("failed to list posts", err)
	}
	if _, err := s.cache.SetJSONAt(ctx, key, summaries, gen); err != nil && s.cache != nil {
		s.logger.Debug("post cache write failed", zap.Error(err))
	}
	return summaries, nil
}

// Get returns one post with its aggregates and attachments
func (s *PostService) Get(ctx context.Context, id int64) (detail *models.PostDetail, err error) {
	ctx, span := telemetry.StartSpan(ctx, "PostService.Get")
	defer func() { telemetry.EndSpan(span, err) }()

	summary, err := s.repo.Posts().Summary(ctx, id)
	if err != nil {
		return nil, storageError("failed to load post", err)
	}
	if summary == nil {
		return nil, notFound("Post not found")
	}
	attachments, err := s.repo.Attachments().ListByPost(ctx, id)
	if err != nil {
		return nil, storageError("failed to load attachments", err)
	}
	return &models.PostDetail{PostSummary: *summary, Attachments: attachments}, nil
}

// Create stores the files and inserts the post with all of its attachments
// atomically. Either the post and every attachment exist afterwards, or none
// of them and none of the written blobs.
func (s *PostService) Create(ctx context.Context, in PostInput, files []FileUpload) (summary *models.PostSummary, err error) {
	ctx, span := telemetry.StartSpan(ctx, "PostService.Create")
	defer func() { telemetry.EndSpan(span, err) }()

	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, validationError("Title is required")
	}
	if len(files) == 0 {
		return nil, validationError("At least one file is required")
	}
	if len(files) > models.MaxAttachmentsPerPost {
		return nil, &Error{Kind: ErrCapacityExceeded, Message: "Maximum 5 attachments per post"}
	}

	if in.CategoryID != nil {
		unlock := s.locks.Lock(categoryKey(*in.CategoryID))
		defer unlock()
		if err := s.requireCategory(ctx, *in.CategoryID); err != nil {
			return nil, err
		}
	}

	attachments := make([]models.Attachment, 0, len(files))
	var written []string
	for _, f := range files {
		rel, size, err := s.blobs.Save(f.Body, f.Name, s.opts.MaxFileSize)
		if err != nil {
			s.discardBlobs(written)
			return nil, saveError(err)
		}
		written = append(written, rel)
		attachments = append(attachments, models.Attachment{
			FileName: RepairFileName(f.Name),
			FileSize: size,
			FilePath: rel,
		})
	}

	post := &models.Post{
		Title:       title,
		CategoryID:  in.CategoryID,
		CreatedDate: s.opts.Now().UTC().Format(models.DateLayout),
	}
	err = s.repo.WithTx(ctx, func(tx *db.Repository) error {
		if err := tx.Posts().Create(ctx, post); err != nil {
			return err
		}
		for i := range attachments {
			attachments[i].PostID = post.ID
		}
		return tx.Attachments().CreateBatch(ctx, attachments)
	})
	if err != nil {
		s.discardBlobs(written)
		return nil, storageError("failed to create post", err)
	}

	var total int64
	for _, a := range attachments {
		total += a.FileSize
	}
	telemetry.Add(ctx, s.metrics.Uploads, int64(len(attachments)), "post_create")
	telemetry.Add(ctx, s.metrics.UploadBytes, total, "post_create")
	s.logger.Info("post created",
		zap.Int64("post_id", post.ID),
		zap.Int("attachments", len(attachments)),
		zap.Int64("total_size", total))
	s.invalidate(ctx, cachePrefixPosts)

	return &models.PostSummary{
		ID:              post.ID,
		Title:           post.Title,
		CategoryID:      post.CategoryID,
		CreatedDate:     post.CreatedDate,
		AttachmentCount: int64(len(attachments)),
		TotalSize:       total,
	}, nil
}

// Update changes the title and category of a post. Attachments are untouched.
func (s *PostService) Update(ctx context.Context, id int64, in PostInput) (post *models.Post, err error) {
	ctx, span := telemetry.StartSpan(ctx, "PostService.Update")
	defer func() { telemetry.EndSpan(span, err) }()

	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, validationError("Title is required")
	}

	var extra []string
	if in.CategoryID != nil {
		extra = append(extra, categoryKey(*in.CategoryID))
	}
	post, unlock, err := s.lockPost(ctx, id, extra...)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if in.CategoryID != nil {
		if err := s.requireCategory(ctx, *in.CategoryID); err != nil {
			return nil, err
		}
	}

	post.Title = title
	post.CategoryID = in.CategoryID
	if err := s.repo.Posts().Update(ctx, post); err != nil {
		return nil, storageError("failed to update post", err)
	}
	s.invalidate(ctx, cachePrefixPosts)
	return post, nil
}

// Delete removes a post and its attachment rows in one transaction, then
// removes their blobs.
func (s *PostService) Delete(ctx context.Context, id int64) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "PostService.Delete")
	defer func() { telemetry.EndSpan(span, err) }()

	_, unlock, err := s.lockPost(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	var doomed []models.Attachment
	err = s.repo.WithTx(ctx, func(tx *db.Repository) error {
		var err error
		if doomed, err = tx.Attachments().ListByPost(ctx, id); err != nil {
			return storageError("failed to collect attachments", err)
		}
		if _, err := tx.Attachments().DeleteByPostIDs(ctx, []int64{id}); err != nil {
			return storageError("failed to delete attachments", err)
		}
		n, err := tx.Posts().Delete(ctx, id)
		if err != nil {
			return storageError("failed to delete post", err)
		}
		if n == 0 {
			return notFound("Post not found")
		}
		return nil
	})
	if err != nil {
		return passOrStorage("failed to delete post", err)
	}

	s.removeBlobs(ctx, "post_delete", doomed)
	s.logger.Info("post deleted", zap.Int64("post_id", id), zap.Int("attachments", len(doomed)))
	s.invalidate(ctx, cachePrefixPosts)
	return nil
}

func (b *base) requireCategory(ctx context.Context, id int64) error {
	category, err := b.repo.Categories().GetByID(ctx, id)
	if err != nil {
		return storageError("failed to load category", err)
	}
	if category == nil {
		return notFound("Category not found")
	}
	return nil
}

func saveError(err error) error {
	if errors.Is(err, blob.ErrTooLarge) {
		return &Error{Kind: ErrValidation, Message: "File too large", Err: err}
	}
	return storageError("failed to store file", err)
}

func optionalID(id *int64) string {
	if id == nil {
		return ""
	}
	return strconv.FormatInt(*id, 10)
}
