// Package upload implements the upload-and-poll flow: store one image, then
// wait for the processing webhook to insert its record.
//
//	uploading -> processing -> done | timed_out | cancelled
//	uploading -> failed
package upload

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/notes-bin/aigallery/internal/model"
	"github.com/notes-bin/aigallery/internal/records"
)

var ErrNotImage = errors.New("please upload an image file")

const (
	DefaultPollInterval = time.Second
	DefaultMaxAttempts  = 30
)

const (
	msgUploading  = "Uploading..."
	msgProcessing = "Upload successful! AI is analyzing your image..."
	msgDone       = "Analysis complete! Your image has been processed with AI."
	msgTimedOut   = "Image uploaded but processing is taking longer than expected. Check back soon!"
	msgCancelled  = "Stopped waiting for processing."
)

// Uploader puts bytes into object storage.
type Uploader interface {
	Put(ctx context.Context, path string, body io.Reader, size int64, contentType string) error
}

// Finder looks up the record the processor inserts for a path.
type Finder interface {
	FindByPath(ctx context.Context, path string) (*model.Image, error)
}

// File is a single file selected by the user.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

type Options struct {
	PollInterval time.Duration
	MaxAttempts  int
	// OnChange observes every state transition.
	OnChange func(model.UploadStatus)
}

type Flow struct {
	uploader Uploader
	finder   Finder
	opts     Options
	log      *slog.Logger
}

func NewFlow(uploader Uploader, finder Finder, opts Options, log *slog.Logger) *Flow {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	return &Flow{uploader: uploader, finder: finder, opts: opts, log: log}
}

// Upload is a flow whose bytes are stored and whose record is awaited.
type Upload struct {
	flow   *Flow
	mu     sync.Mutex
	status model.UploadStatus
}

// Status returns a snapshot of the current state.
func (u *Upload) Status() model.UploadStatus {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.status
}

// DetectImage returns the image MIME type of f or ErrNotImage. A declared
// image/* type is trusted; content is sniffed only when the type is missing
// or generic.
func DetectImage(f File) (string, error) {
	if len(f.Data) == 0 {
		return "", ErrNotImage
	}
	declared, _, _ := mime.ParseMediaType(f.ContentType)
	declared = strings.ToLower(declared)
	if strings.HasPrefix(declared, "image/") {
		return declared, nil
	}
	if declared != "" && declared != "application/octet-stream" {
		return "", ErrNotImage
	}
	sniffed := http.DetectContentType(f.Data[:min(len(f.Data), 512)])
	if !strings.HasPrefix(sniffed, "image/") {
		return "", ErrNotImage
	}
	return sniffed, nil
}

var preferredExt = map[string]string{
	"image/jpeg":    ".jpg",
	"image/png":     ".png",
	"image/gif":     ".gif",
	"image/webp":    ".webp",
	"image/bmp":     ".bmp",
	"image/heic":    ".heic",
	"image/svg+xml": ".svg",
	"image/tiff":    ".tiff",
}

// RandomFileName returns a random name that keeps the original extension.
func RandomFileName(original, mimeType string) string {
	ext := strings.ToLower(filepath.Ext(original))
	if ext == "" || ext == "." {
		ext = preferredExt[mimeType]
		if ext == "" {
			if exts, _ := mime.ExtensionsByType(mimeType); len(exts) > 0 {
				ext = exts[0]
			}
		}
	}
	return strings.ReplaceAll(uuid.NewString(), "-", "") + ext
}

// Start validates and uploads f under <userID>/. Non-image files are
// rejected before any storage call. On success the returned Upload is in
// the processing state and ready to Poll.
func (fl *Flow) Start(ctx context.Context, userID string, f File) (*Upload, error) {
	mimeType, err := DetectImage(f)
	if err != nil {
		return nil, err
	}

	path := userID + "/" + RandomFileName(f.Name, mimeType)
	u := &Upload{flow: fl, status: model.UploadStatus{
		ID:       uuid.NewString(),
		UserID:   userID,
		FilePath: path,
	}}
	u.transition(model.UploadUploading, msgUploading, nil)

	if err := fl.uploader.Put(ctx, path, bytes.NewReader(f.Data), int64(len(f.Data)), mimeType); err != nil {
		fl.log.Error("Upload failed", "path", path, "error", err)
		u.transition(model.UploadFailed, err.Error(), nil)
		return nil, err
	}

	u.transition(model.UploadProcessing, msgProcessing, nil)
	return u, nil
}

// Poll queries the store once per interval until the record appears, the
// attempt budget is spent, or ctx is cancelled. onComplete, if set, runs
// exactly once with the terminal status, which is also returned.
func (u *Upload) Poll(ctx context.Context, onComplete func(model.UploadStatus)) model.UploadStatus {
	var once sync.Once
	complete := func() model.UploadStatus {
		st := u.Status()
		once.Do(func() {
			if onComplete != nil {
				onComplete(st)
			}
		})
		return st
	}

	if u.Status().State != model.UploadProcessing {
		return complete()
	}

	fl := u.flow
	ticker := time.NewTicker(fl.opts.PollInterval)
	defer ticker.Stop()

	for attempts := 0; ; {
		select {
		case <-ctx.Done():
			u.transition(model.UploadCancelled, msgCancelled, nil)
			return complete()
		case <-ticker.C:
		}

		attempts++
		u.setAttempts(attempts)

		rec, err := fl.finder.FindByPath(ctx, u.status.FilePath)
		switch {
		case err == nil:
			u.transition(model.UploadDone, msgDone, rec)
			return complete()
		case !errors.Is(err, records.ErrNotFound):
			fl.log.Warn("Poll query failed", "path", u.status.FilePath, "attempt", attempts, "error", err)
		}

		if attempts >= fl.opts.MaxAttempts {
			u.transition(model.UploadTimedOut, msgTimedOut, nil)
			return complete()
		}
	}
}

func (u *Upload) setAttempts(n int) {
	u.mu.Lock()
	u.status.Attempts = n
	u.mu.Unlock()
}

func (u *Upload) transition(state model.UploadState, msg string, rec *model.Image) {
	if rec != nil {
		r := *rec
		r.Embedding = nil
		rec = &r
	}
	u.mu.Lock()
	u.status.State = state
	u.status.Message = msg
	u.status.Record = rec
	u.status.UpdatedAt = time.Now()
	st := u.status
	u.mu.Unlock()

	if u.flow.opts.OnChange != nil {
		u.flow.opts.OnChange(st)
	}
}
