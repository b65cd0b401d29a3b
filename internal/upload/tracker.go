package upload

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/notes-bin/aigallery/internal/model"
)

const statusTTL = time.Hour

// StatusStore keeps upload snapshots where any instance can read them.
type StatusStore interface {
	SaveUploadStatus(ctx context.Context, st *model.UploadStatus, ttl time.Duration) error
	GetUploadStatus(ctx context.Context, id string) (*model.UploadStatus, error)
}

// Tracker runs flows in the background for the HTTP API. Each transition
// is saved to the StatusStore and broadcast to SSE subscribers.
type Tracker struct {
	flow     *Flow
	statuses StatusStore
	events   *Broadcaster
	log      *slog.Logger

	// base bounds every poll loop; cancelled on shutdown.
	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// OnComplete, if set, observes every finished flow.
	OnComplete func(model.UploadStatus)
}

func NewTracker(uploader Uploader, finder Finder, statuses StatusStore, opts Options, log *slog.Logger) *Tracker {
	t := &Tracker{statuses: statuses, events: NewBroadcaster(), log: log}
	t.base, t.cancel = context.WithCancel(context.Background())
	opts.OnChange = t.record
	t.flow = NewFlow(uploader, finder, opts, log)
	return t
}

// Start uploads synchronously and polls in the background. Validation and
// upload errors are returned directly.
func (t *Tracker) Start(ctx context.Context, userID string, f File) (*model.UploadStatus, error) {
	u, err := t.flow.Start(ctx, userID, f)
	if err != nil {
		return nil, err
	}
	st := u.Status()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		u.Poll(t.base, func(final model.UploadStatus) {
			t.log.Info("Upload flow finished",
				"upload_id", final.ID,
				"path", final.FilePath,
				"state", final.State,
				"attempts", final.Attempts)
			if t.OnComplete != nil {
				t.OnComplete(final)
			}
		})
	}()
	return &st, nil
}

// Status returns the latest snapshot of an upload, or nil if unknown.
func (t *Tracker) Status(ctx context.Context, id string) (*model.UploadStatus, error) {
	return t.statuses.GetUploadStatus(ctx, id)
}

// Events returns the broadcaster used for SSE streams.
func (t *Tracker) Events() *Broadcaster { return t.events }

// Close cancels all running poll loops and waits for them to finish.
func (t *Tracker) Close() {
	t.cancel()
	t.wg.Wait()
}

func (t *Tracker) record(st model.UploadStatus) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := t.statuses.SaveUploadStatus(ctx, &st, statusTTL); err != nil {
		t.log.Error("Failed to save upload status", "upload_id", st.ID, "error", err)
	}
	t.events.Broadcast(st)
}
