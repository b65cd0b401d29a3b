package gallery

import (
	"bytes"
	"context"
	"fmt"

	"github.com/notes-bin/aigallery/internal/storage"

	"github.com/disintegration/imaging"
)

const ThumbnailSize = 300

// Thumbnailer renders square JPEG previews of stored images.
type Thumbnailer struct {
	objects storage.Store
}

func NewThumbnailer(objects storage.Store) *Thumbnailer {
	return &Thumbnailer{objects: objects}
}

func (t *Thumbnailer) Render(ctx context.Context, path string) ([]byte, error) {
	obj, err := t.objects.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	return Thumbnail(obj.Data)
}

// Thumbnail crops and scales an encoded image to ThumbnailSize square.
func Thumbnail(data []byte) ([]byte, error) {
	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	thumb := imaging.Fill(src, ThumbnailSize, ThumbnailSize, imaging.Center, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
