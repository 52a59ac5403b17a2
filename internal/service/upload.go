package service

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"path"
	"strings"
	"time"

	"polegrid/internal/storage"
)

// UploadsPrefix is the public URL prefix stored files are served under.
const UploadsPrefix = "/uploads/"

// File is one uploaded file as received from the client.
type File struct {
	Filename    string
	ContentType string
	Size        int64
	Reader      io.Reader
}

// StoredFile describes a file after it has been written to storage.
type StoredFile struct {
	Filename string `json:"filename"`
	Path     string `json:"path"`
	Size     int64  `json:"size"`
}

// UploadPath returns the public path of a stored file name.
func UploadPath(filename string) string {
	return UploadsPrefix + filename
}

// generateFilename builds "<unix-ms>-<n><ext>" keeping only the original extension.
func generateFilename(now time.Time, n int, original string) string {
	base := path.Base(strings.ReplaceAll(original, `\`, "/"))
	ext := path.Ext(base)
	if ext == "." {
		ext = ""
	}
	return fmt.Sprintf("%d-%d%s", now.UnixMilli(), n, ext)
}

func randomSuffix() int {
	return rand.IntN(1_000_000_000)
}

// uploader writes files to storage under generated unique names.
type uploader struct {
	store  storage.Storage
	now    func() time.Time
	random func() int
}

func newUploader(store storage.Storage) *uploader {
	return &uploader{store: store, now: time.Now, random: randomSuffix}
}

func (u *uploader) save(ctx context.Context, f File) (*StoredFile, error) {
	if f.Reader == nil {
		return nil, ErrReaderNil
	}
	name := generateFilename(u.now(), u.random(), f.Filename)
	size := f.Size
	if size <= 0 {
		size = -1
	}
	info, err := u.store.Put(ctx, name, f.Reader, storage.PutObjectOptions{
		Size:        size,
		ContentType: f.ContentType,
		Metadata: map[string]string{
			"original-filename": f.Filename,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("upload to storage: %w", err)
	}
	return &StoredFile{Filename: name, Path: UploadPath(name), Size: info.Size}, nil
}
