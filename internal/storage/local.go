package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Local keeps objects under <dir>/<bucket>/<path> and serves them from
// <baseURL>/objects/<path>.
type Local struct {
	root    string
	bucket  string
	baseURL string
}

func NewLocal(dir, bucket, baseURL string) (*Local, error) {
	root := filepath.Join(dir, bucket)
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, err
	}
	return &Local{root: root, bucket: bucket, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *Local) Bucket() string { return s.bucket }

func (s *Local) Put(_ context.Context, p string, body io.Reader, _ int64, _ string) error {
	fullPath, err := s.filePath(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return err
	}
	out, err := os.Create(fullPath)
	if err != nil {
		slog.Error("Failed to create file", "path", fullPath, "error", err)
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, body); err != nil {
		slog.Error("Failed to save file", "path", fullPath, "error", err)
		os.Remove(fullPath)
		return err
	}
	return nil
}

func (s *Local) Get(_ context.Context, p string) (*Object, error) {
	fullPath, err := s.filePath(p)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(fullPath)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	contentType := mime.TypeByExtension(filepath.Ext(p))
	if contentType == "" {
		contentType = http.DetectContentType(data[:min(len(data), 512)])
	}
	return &Object{Data: data, ContentType: contentType}, nil
}

// Open returns a reader for serving the raw object.
func (s *Local) Open(p string) (io.ReadSeekCloser, error) {
	fullPath, err := s.filePath(p)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(fullPath)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	return f, err
}

func (s *Local) PublicURL(p string) string {
	return s.baseURL + "/objects/" + escapePath(p)
}

func (s *Local) filePath(p string) (string, error) {
	if !filepath.IsLocal(p) {
		return "", fmt.Errorf("invalid object path %q", p)
	}
	return filepath.Join(s.root, filepath.FromSlash(p)), nil
}

func escapePath(p string) string {
	segments := strings.Split(path.Clean(p), "/")
	var b bytes.Buffer
	for i, seg := range segments {
		if i > 0 {
			b.WriteByte('/')
		}
		b.WriteString(url.PathEscape(seg))
	}
	return b.String()
}
