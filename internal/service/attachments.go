package service

import (
	"context"
	"errors"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/filedepot/filedepot/internal/models"
	"github.com/filedepot/filedepot/pkg/telemetry"
)

// AttachmentService manages single attachments of existing posts
type AttachmentService struct {
	*base
}

// Download is an opened attachment ready to be served. File must be closed.
type Download struct {
	Attachment models.Attachment
	File       afero.File
}

// ListByPost returns the attachments of a post in insertion order
func (s *AttachmentService) ListByPost(ctx context.Context, postID int64) (attachments []models.Attachment, err error) {
	ctx, span := telemetry.StartSpan(ctx, "AttachmentService.ListByPost")
	defer func() { telemetry.EndSpan(span, err) }()

	post, err := s.repo.Posts().GetByID(ctx, postID)
	if err != nil {
		return nil, storageError("failed to load post", err)
	}
	if post == nil {
		return nil, notFound("Post not found")
	}
	attachments, err = s.repo.Attachments().ListByPost(ctx, postID)
	if err != nil {
		return nil, storageError("failed to load attachments", err)
	}
	return attachments, nil
}

// Get returns one attachment
func (s *AttachmentService) Get(ctx context.Context, id int64) (*models.Attachment, error) {
	attachment, err := s.repo.Attachments().GetByID(ctx, id)
	if err != nil {
		return nil, storageError("failed to load attachment", err)
	}
	if attachment == nil {
		return nil, notFound("Attachment not found")
	}
	return attachment, nil
}

// Add stores one more file on a post. The count check and the insert happen
// under the post's lock, so a post never exceeds MaxAttachmentsPerPost.
func (s *AttachmentService) Add(ctx context.Context, postID int64, f FileUpload) (attachment *models.Attachment, err error) {
	ctx, span := telemetry.StartSpan(ctx, "AttachmentService.Add")
	defer func() { telemetry.EndSpan(span, err) }()

	_, unlock, err := s.lockPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	attachments := s.repo.Attachments()
	count, err := attachments.CountByPost(ctx, postID)
	if err != nil {
		return nil, storageError("failed to count attachments", err)
	}
	if count >= models.MaxAttachmentsPerPost {
		return nil, &Error{Kind: ErrCapacityExceeded, Message: "Maximum 5 attachments per post"}
	}

	rel, size, err := s.blobs.Save(f.Body, f.Name, s.opts.MaxFileSize)
	if err != nil {
		return nil, saveError(err)
	}

	attachment = &models.Attachment{
		PostID:   postID,
		FileName: RepairFileName(f.Name),
		FileSize: size,
		FilePath: rel,
	}
	if err := attachments.Create(ctx, attachment); err != nil {
		s.discardBlobs([]string{rel})
		return nil, storageError("failed to add attachment", err)
	}

	telemetry.Add(ctx, s.metrics.Uploads, 1, "attachment_add")
	telemetry.Add(ctx, s.metrics.UploadBytes, size, "attachment_add")
	s.logger.Info("attachment added",
		zap.Int64("post_id", postID),
		zap.Int64("attachment_id", attachment.ID),
		zap.Int64("file_size", size))
	s.invalidate(ctx, cachePrefixPosts)
	return attachment, nil
}

// Delete removes an attachment row and then its blob
func (s *AttachmentService) Delete(ctx context.Context, id int64) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "AttachmentService.Delete")
	defer func() { telemetry.EndSpan(span, err) }()

	attachment, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	_, unlock, err := s.lockPost(ctx, attachment.PostID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return notFound("Attachment not found")
		}
		return err
	}
	defer unlock()

	// Re-read under the lock; a concurrent delete may have won.
	if attachment, err = s.Get(ctx, id); err != nil {
		return err
	}
	n, err := s.repo.Attachments().Delete(ctx, id)
	if err != nil {
		return storageError("failed to delete attachment", err)
	}
	if n == 0 {
		return notFound("Attachment not found")
	}

	s.removeBlobs(ctx, "attachment_delete", []models.Attachment{*attachment})
	s.invalidate(ctx, cachePrefixPosts)
	return nil
}

// Open resolves the blob of an attachment for a single-file download,
// applying the missing-blob policy.
func (s *AttachmentService) Open(ctx context.Context, id int64) (download *Download, err error) {
	ctx, span := telemetry.StartSpan(ctx, "AttachmentService.Open")
	defer func() { telemetry.EndSpan(span, err) }()

	attachment, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	f, err := s.openBlob(ctx, *attachment)
	if err != nil {
		return nil, err
	}
	return &Download{Attachment: *attachment, File: f}, nil
}
