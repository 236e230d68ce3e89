// Package service implements the category, post, attachment and archive
// operations on top of the repository and the blob store.
package service

import (
	"context"
	"errors"
	"io/fs"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/filedepot/filedepot/internal/blob"
	"github.com/filedepot/filedepot/internal/cache"
	"github.com/filedepot/filedepot/internal/db"
	"github.com/filedepot/filedepot/internal/models"
	"github.com/filedepot/filedepot/pkg/logging"
	"github.com/filedepot/filedepot/pkg/telemetry"
)

// Options tunes service behavior
type Options struct {
	// PlaceholderMissing makes downloads synthesize a placeholder for a
	// missing blob instead of failing with ErrBlobMissing.
	PlaceholderMissing bool
	// MaxFileSize bounds a single upload in bytes; zero means unbounded.
	MaxFileSize int64
	// Now is the clock used for created_date; defaults to time.Now.
	Now func() time.Time
	// Metrics receives the service counters; nil records nothing.
	Metrics *telemetry.Metrics
}

// Services bundles the managers sharing one repository, blob store and lock table
type Services struct {
	Categories  *CategoryService
	Posts       *PostService
	Attachments *AttachmentService
	Archives    *ArchiveBuilder
}

// Cache key prefixes
const (
	cachePrefixCategories = "categories:"
	cachePrefixPosts      = "posts:"
)

type base struct {
	repo    *db.Repository
	blobs   *blob.Store
	cache   *cache.Cache
	locks   *Locker
	metrics *telemetry.Metrics
	logger  *zap.Logger
	opts    Options
}

// New wires the managers. redisCache may be nil.
func New(repo *db.Repository, blobs *blob.Store, redisCache *cache.Cache, opts Options) *Services {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Metrics == nil {
		opts.Metrics = telemetry.NewMetrics(nil)
	}
	b := &base{
		repo:    repo,
		blobs:   blobs,
		cache:   redisCache,
		locks:   NewLocker(),
		metrics: opts.Metrics,
		logger:  logging.WithComponent("service"),
		opts:    opts,
	}
	return &Services{
		Categories:  &CategoryService{base: b},
		Posts:       &PostService{base: b},
		Attachments: &AttachmentService{base: b},
		Archives:    &ArchiveBuilder{base: b},
	}
}

// lockPost locks the subtree of a post: its current category, if any, the
// post itself and any extra keys. The post is re-read under the lock and the
// lock retaken if its category moved in between.
func (b *base) lockPost(ctx context.Context, postID int64, extra ...string) (*models.Post, func(), error) {
	posts := b.repo.Posts()
	for {
		post, err := posts.GetByID(ctx, postID)
		if err != nil {
			return nil, nil, storageError("failed to load post", err)
		}
		if post == nil {
			return nil, nil, notFound("Post not found")
		}

		keys := append([]string{postKey(postID)}, extra...)
		if post.CategoryID != nil {
			keys = append(keys, categoryKey(*post.CategoryID))
		}
		unlock := b.locks.Lock(keys...)

		current, err := posts.GetByID(ctx, postID)
		if err != nil {
			unlock()
			return nil, nil, storageError("failed to load post", err)
		}
		if current == nil {
			unlock()
			return nil, nil, notFound("Post not found")
		}
		if sameCategory(current.CategoryID, post.CategoryID) {
			return current, unlock, nil
		}
		unlock()
	}
}

func sameCategory(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// removeBlobs deletes the blobs of already deleted attachment rows. Failures
// are logged and counted, never returned.
func (b *base) removeBlobs(ctx context.Context, op string, attachments []models.Attachment) (removed, failed int) {
	for _, a := range attachments {
		if a.FilePath == "" {
			continue
		}
		err := b.blobs.Remove(a.FilePath)
		switch {
		case err == nil:
			removed++
		case errors.Is(err, fs.ErrNotExist):
			b.logger.Debug("blob already missing",
				zap.String("op", op),
				zap.Int64("attachment_id", a.ID),
				zap.String("file_path", a.FilePath))
		default:
			failed++
			b.logger.Warn("failed to remove blob",
				zap.String("op", op),
				zap.Int64("attachment_id", a.ID),
				zap.String("file_path", a.FilePath),
				zap.Error(err))
		}
	}
	telemetry.Add(ctx, b.metrics.BlobsRemoved, int64(removed), op)
	telemetry.Add(ctx, b.metrics.BlobRemovalFailures, int64(failed), op)
	return removed, failed
}

// discardBlobs removes blobs written for an operation that did not commit
func (b *base) discardBlobs(paths []string) {
	for _, p := range paths {
		if err := b.blobs.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			b.logger.Warn("failed to discard uncommitted blob", zap.String("file_path", p), zap.Error(err))
		}
	}
}

// openBlob opens the blob of an attachment, applying the missing-blob
// policy. The caller closes the file.
func (b *base) openBlob(ctx context.Context, a models.Attachment) (afero.File, error) {
	ok, err := b.blobs.Exists(a.FilePath)
	if errors.Is(err, blob.ErrInvalidPath) {
		return nil, &Error{Kind: ErrBlobMissing, Message: "File not found", Err: err}
	}
	if err != nil {
		return nil, storageError("failed to stat file", err)
	}
	if !ok {
		if !b.opts.PlaceholderMissing {
			return nil, &Error{Kind: ErrBlobMissing, Message: "File not found"}
		}
		created, err := b.blobs.EnsurePlaceholder(a.FilePath, a.FileName)
		if err != nil {
			return nil, storageError("failed to create placeholder", err)
		}
		if created {
			telemetry.Add(ctx, b.metrics.PlaceholdersCreated, 1, "")
			b.logger.Warn("synthesized placeholder for missing blob",
				zap.Int64("attachment_id", a.ID),
				zap.String("file_path", a.FilePath))
		}
	}

	f, err := b.blobs.Open(a.FilePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &Error{Kind: ErrBlobMissing, Message: "File not found", Err: err}
	}
	if err != nil {
		return nil, storageError("failed to open file", err)
	}
	return f, nil
}

func (b *base) invalidate(ctx context.Context, prefixes ...string) {
	b.cache.Invalidate(ctx, prefixes...)
}
