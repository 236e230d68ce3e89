package service

import (
	"archive/zip"
	"compress/flate"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/filedepot/filedepot/pkg/telemetry"
)

// ArchiveBuilder bundles the attachments of a post into a zip stream
type ArchiveBuilder struct {
	*base
}

// Archive is a prepared zip of one post. Every blob is already open, so the
// stream cannot fail halfway because a file vanished. Close must be called.
type Archive struct {
	// Name is the suggested download name, "<title>.zip".
	Name    string
	entries []archiveEntry
	modTime time.Time
	logger  *zap.Logger
}

type archiveEntry struct {
	name string
	file afero.File
}

// Prepare resolves every attachment of a post before any byte is written.
// It fails with ErrNotFound for a missing post, ErrEmptyArchive for a post
// without attachments and ErrBlobMissing when a blob is gone and placeholders
// are disabled.
func (b *ArchiveBuilder) Prepare(ctx context.Context, postID int64) (archive *Archive, err error) {
	ctx, span := telemetry.StartSpan(ctx, "ArchiveBuilder.Prepare")
	defer func() { telemetry.EndSpan(span, err) }()

	post, err := b.repo.Posts().GetByID(ctx, postID)
	if err != nil {
		return nil, storageError("failed to load post", err)
	}
	if post == nil {
		return nil, notFound("Post not found")
	}
	attachments, err := b.repo.Attachments().ListByPost(ctx, postID)
	if err != nil {
		return nil, storageError("failed to load attachments", err)
	}
	if len(attachments) == 0 {
		return nil, &Error{Kind: ErrEmptyArchive, Message: "No attachments found"}
	}

	archive = &Archive{
		Name:    ArchiveName(post.Title),
		modTime: b.opts.Now(),
		logger:  b.logger,
	}
	names := make(map[string]int, len(attachments))
	for _, a := range attachments {
		f, err := b.openBlob(ctx, a)
		if err != nil {
			archive.Close()
			return nil, err
		}
		archive.entries = append(archive.entries, archiveEntry{
			name: uniqueEntryName(names, a.FileName),
			file: f,
		})
	}
	return archive, nil
}

// WriteTo streams the zip to w, compressing every entry with Deflate at the
// best compression level.
func (a *Archive) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	zw := zip.NewWriter(cw)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})

	for _, e := range a.entries {
		hdr := &zip.FileHeader{
			Name:     e.name,
			Method:   zip.Deflate,
			Modified: a.modTime,
		}
		dst, err := zw.CreateHeader(hdr)
		if err != nil {
			return cw.n, fmt.Errorf("creating zip entry %q: %w", e.name, err)
		}
		if _, err := io.Copy(dst, e.file); err != nil {
			return cw.n, fmt.Errorf("writing zip entry %q: %w", e.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return cw.n, fmt.Errorf("finishing zip: %w", err)
	}
	return cw.n, nil
}

// Entries returns the entry names in archive order
func (a *Archive) Entries() []string {
	names := make([]string, len(a.entries))
	for i, e := range a.entries {
		names[i] = e.name
	}
	return names
}

// Close releases the open blobs
func (a *Archive) Close() {
	for _, e := range a.entries {
		if err := e.file.Close(); err != nil {
			a.logger.Debug("closing archive entry", zap.String("name", e.name), zap.Error(err))
		}
	}
	a.entries = nil
}

// ArchiveName is the download name of a post archive
func ArchiveName(title string) string {
	title = strings.TrimSpace(strings.NewReplacer("/", "_", `\`, "_").Replace(title))
	if title == "" {
		return "download.zip"
	}
	return title + ".zip"
}

// uniqueEntryName keeps zip entry names distinct: a repeated "a.txt" becomes
// "a (1).txt".
func uniqueEntryName(seen map[string]int, name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = strings.TrimLeft(path.Clean("/"+name), "/")
	name = strings.ReplaceAll(name, "/", "_")
	if name == "" || name == "." {
		name = "file"
	}

	count := seen[name]
	seen[name] = count + 1
	if count == 0 {
		return name
	}
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := count; ; i++ {
		candidate := fmt.Sprintf("%s (%d)%s", stem, i, ext)
		if seen[candidate] == 0 {
			seen[candidate] = 1
			return candidate
		}
	}
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
