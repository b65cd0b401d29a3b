package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Event announces a newly stored object, in the storage webhook format
// {"record": {"name": "<path>", "bucket_id": "<bucket>"}}.
type Event struct {
	Record EventRecord `json:"record"`
}

type EventRecord struct {
	Name     string `json:"name"`
	BucketID string `json:"bucket_id"`
}

type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Webhook POSTs events to the processing endpoint.
type Webhook struct {
	url    string
	secret string
	client *http.Client
}

func NewWebhook(url, secret string, timeout time.Duration) *Webhook {
	return &Webhook{url: url, secret: secret, client: &http.Client{Timeout: timeout}}
}

func (w *Webhook) Notify(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if w.secret != "" {
		req.Header.Set("Authorization", "Bearer "+w.secret)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook %s: %w", w.url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook %s: status %d: %s", w.url, resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}

// Notifying is a Store that announces every successful Put, the way a
// managed bucket fires its object-created trigger.
type Notifying struct {
	Store
	notifier Notifier
	log      *slog.Logger
	inflight chan struct{}
	wg       sync.WaitGroup
}

func WithNotifications(s Store, n Notifier, log *slog.Logger) *Notifying {
	return &Notifying{Store: s, notifier: n, log: log, inflight: make(chan struct{}, 64)}
}

func (s *Notifying) Put(ctx context.Context, path string, body io.Reader, size int64, contentType string) error {
	if err := s.Store.Put(ctx, path, body, size, contentType); err != nil {
		return err
	}
	ev := Event{Record: EventRecord{Name: path, BucketID: s.Bucket()}}
	select {
	case s.inflight <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("notify %s: %w", path, ctx.Err())
	}
	// The trigger outlives the upload request.
	ctx = context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() { <-s.inflight }()
		if err := s.notifier.Notify(ctx, ev); err != nil {
			s.log.Error("Failed to deliver storage event", "path", path, "error", err)
			return
		}
		s.log.Info("Storage event delivered", "path", path, "bucket", ev.Record.BucketID)
	}()
	return nil
}

// Close waits for in-flight events to be delivered.
func (s *Notifying) Close() {
	s.wg.Wait()
}
