// Package gallery renders a user's analyzed images.
package gallery

import (
	"context"
	"errors"
	"time"

	"github.com/notes-bin/aigallery/internal/cache"
	"github.com/notes-bin/aigallery/internal/model"
	"github.com/notes-bin/aigallery/internal/records"
)

var ErrForbidden = errors.New("image belongs to another user")

// Lister is the read side of the records store.
type Lister interface {
	Get(ctx context.Context, id string) (*model.Image, error)
	ListByUser(ctx context.Context, userID string) ([]model.Image, error)
}

type Swatch struct {
	Color string `json:"color"`
	Label string `json:"label"` // 文字颜色
}

// Item is one gallery entry with its resolved display URL.
type Item struct {
	model.Image
	URL          string   `json:"url"`
	ThumbnailURL string   `json:"thumbnail_url"`
	Swatches     []Swatch `json:"swatches"`
}

type View struct {
	records  Lister
	sessions *cache.Sessions
}

func NewView(records Lister, sessions *cache.Sessions) *View {
	return &View{records: records, sessions: sessions}
}

// List returns the user's images newest first.
func (v *View) List(ctx context.Context, userID string) ([]Item, error) {
	imgs, err := v.records.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	urls := v.sessions.For(userID)
	items := make([]Item, 0, len(imgs))
	for _, img := range imgs {
		items = append(items, newItem(img, urls))
	}
	return items, nil
}

// Get returns one of the user's images.
func (v *View) Get(ctx context.Context, userID, id string) (*Item, error) {
	img, err := v.records.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if img.UserID != userID {
		return nil, ErrForbidden
	}
	item := newItem(*img, v.sessions.For(userID))
	return &item, nil
}

// Forget drops the user's URL cache.
func (v *View) Forget(userID string) {
	v.sessions.Drop(userID)
}

func newItem(img model.Image, urls *cache.URLCache) Item {
	img.Embedding = nil
	swatches := make([]Swatch, 0, len(img.ColorPalette))
	for _, c := range img.ColorPalette {
		swatches = append(swatches, Swatch{Color: c, Label: ContrastColor(c)})
	}
	return Item{
		Image:        img,
		URL:          urls.Get(img.FilePath),
		ThumbnailURL: "/thumbnails/" + img.FilePath,
		Swatches:     swatches,
	}
}

// Uploaded formats the upload timestamp for display.
func (i Item) Uploaded() string {
	return i.CreatedAt.Local().Format(time.DateTime)
}

// IsNotFound reports whether err means the image does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, records.ErrNotFound)
}
