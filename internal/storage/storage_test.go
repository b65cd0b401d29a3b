package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/notes-bin/aigallery/internal/logger"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n0000")

func TestLocalPutGet(t *testing.T) {
	s, err := NewLocal(t.TempDir(), "images", "http://localhost:8080/")
	if err != nil {
		t.Fatalf("new local: %v", err)
	}
	ctx := t.Context()

	if err := s.Put(ctx, "u1/a.png", bytes.NewReader(pngHeader), int64(len(pngHeader)), "image/png"); err != nil {
		t.Fatalf("put: %v", err)
	}
	obj, err := s.Get(ctx, "u1/a.png")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(obj.Data, pngHeader) {
		t.Fatal("object bytes differ")
	}
	if obj.ContentType != "image/png" {
		t.Fatalf("expected image/png, got %q", obj.ContentType)
	}

	if _, err := s.Get(ctx, "u1/missing.png"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if got := s.PublicURL("u1/a b.png"); got != "http://localhost:8080/objects/u1/a%20b.png" {
		t.Fatalf("unexpected public url %q", got)
	}
}

func TestLocalRejectsEscapingPath(t *testing.T) {
	s, _ := NewLocal(t.TempDir(), "images", "")
	err := s.Put(t.Context(), "../etc/passwd", strings.NewReader("x"), 1, "text/plain")
	if err == nil {
		t.Fatal("expected error for path outside the bucket")
	}
	if _, err := s.Get(t.Context(), "/abs.png"); err == nil {
		t.Fatal("expected error for absolute path")
	}
}

func TestWebhookNotify(t *testing.T) {
	var got Event
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	hook := NewWebhook(srv.URL, "s3cret", time.Second)
	ev := Event{Record: EventRecord{Name: "u1/a.png", BucketID: "images"}}
	if err := hook.Notify(t.Context(), ev); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if got != ev {
		t.Fatalf("expected %+v, got %+v", ev, got)
	}
	if auth != "Bearer s3cret" {
		t.Fatalf("expected bearer secret, got %q", auth)
	}
}

func TestWebhookNotifyError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewWebhook(srv.URL, "", time.Second).Notify(t.Context(), Event{})
	if err == nil || !strings.Contains(err.Error(), "500") {
		t.Fatalf("expected status error, got %v", err)
	}
}

type chanNotifier chan Event

func (c chanNotifier) Notify(_ context.Context, ev Event) error {
	c <- ev
	return nil
}

type failingStore struct{ Store }

func (failingStore) Put(context.Context, string, io.Reader, int64, string) error {
	return errors.New("disk full")
}

func (failingStore) Bucket() string { return "images" }

func TestNotifyingStore(t *testing.T) {
	local, _ := NewLocal(t.TempDir(), "images", "")
	events := make(chanNotifier, 1)
	s := WithNotifications(local, events, logger.NewNop())

	ctx, cancel := context.WithCancel(t.Context())
	if err := s.Put(ctx, "u1/a.png", bytes.NewReader(pngHeader), int64(len(pngHeader)), "image/png"); err != nil {
		t.Fatalf("put: %v", err)
	}
	cancel()

	select {
	case ev := <-events:
		if ev.Record.Name != "u1/a.png" || ev.Record.BucketID != "images" {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no storage event emitted")
	}
}

func TestNotifyingStoreSkipsFailedPut(t *testing.T) {
	events := make(chanNotifier, 1)
	s := WithNotifications(failingStore{}, events, logger.NewNop())

	if err := s.Put(t.Context(), "u1/a.png", strings.NewReader("x"), 1, "image/png"); err == nil {
		t.Fatal("expected put error")
	}
	select {
	case ev := <-events:
		t.Fatalf("no event expected after failed put, got %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

type blockingNotifier struct {
	release   chan struct{}
	delivered chan Event
}

func (n *blockingNotifier) Notify(_ context.Context, ev Event) error {
	<-n.release
	n.delivered <- ev
	return nil
}

func TestNotifyingStoreCloseWaitsForDelivery(t *testing.T) {
	local, _ := NewLocal(t.TempDir(), "images", "")
	n := &blockingNotifier{release: make(chan struct{}), delivered: make(chan Event, 1)}
	s := WithNotifications(local, n, logger.NewNop())

	if err := s.Put(t.Context(), "u1/a.png", bytes.NewReader(pngHeader), int64(len(pngHeader)), "image/png"); err != nil {
		t.Fatalf("put: %v", err)
	}

	closed := make(chan struct{})
	go func() {
		s.Close()
		close(closed)
	}()
	select {
	case <-closed:
		t.Fatal("Close returned before the event was delivered")
	case <-time.After(50 * time.Millisecond):
	}

	close(n.release)
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close did not return after delivery")
	}
	if ev := <-n.delivered; ev.Record.Name != "u1/a.png" {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestNotifyingStoreRespectsContextWhenSaturated(t *testing.T) {
	local, _ := NewLocal(t.TempDir(), "images", "")
	n := &blockingNotifier{release: make(chan struct{}), delivered: make(chan Event, 1)}
	s := WithNotifications(local, n, logger.NewNop())
	s.inflight = make(chan struct{}, 1)
	t.Cleanup(func() {
		close(n.release)
		<-n.delivered
		s.Close()
	})

	if err := s.Put(t.Context(), "u1/a.png", bytes.NewReader(pngHeader), int64(len(pngHeader)), "image/png"); err != nil {
		t.Fatalf("put: %v", err)
	}

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	err := s.Put(ctx, "u1/b.png", bytes.NewReader(pngHeader), int64(len(pngHeader)), "image/png")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error while all slots are busy, got %v", err)
	}
}
