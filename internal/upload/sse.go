package upload

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/notes-bin/aigallery/internal/model"
)

const (
	sseChannelBuffer = 16
	sseHeartbeat     = 30 * time.Second
)

// subscriber is a single SSE connection.
type subscriber struct {
	ch       chan model.UploadStatus
	uploadID string
}

// Broadcaster fans status changes out to SSE subscribers grouped by upload.
type Broadcaster struct {
	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[*subscriber]struct{})}
}

func (b *Broadcaster) Register(uploadID string) *subscriber {
	s := &subscriber{
		ch:       make(chan model.UploadStatus, sseChannelBuffer),
		uploadID: uploadID,
	}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	return s
}

// Unregister removes a subscriber and closes its channel.
func (b *Broadcaster) Unregister(s *subscriber) {
	b.mu.Lock()
	if _, ok := b.subs[s]; ok {
		delete(b.subs, s)
		close(s.ch)
	}
	b.mu.Unlock()
}

func (b *Broadcaster) Broadcast(st model.UploadStatus) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for s := range b.subs {
		if s.uploadID == st.ID {
			select {
			case s.ch <- st:
			default:
				// Channel full, skip slow subscriber.
			}
		}
	}
}

// SubscriberCount returns the number of connections watching an upload.
func (b *Broadcaster) SubscriberCount(uploadID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for s := range b.subs {
		if s.uploadID == uploadID {
			n++
		}
	}
	return n
}

// ServeSSE streams status changes of one upload until it reaches a terminal
// state or the client goes away. current is called after registration so no
// transition between the snapshot and the subscription is lost.
func (b *Broadcaster) ServeSSE(w http.ResponseWriter, r *http.Request, uploadID string, current func() *model.UploadStatus) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	s := b.Register(uploadID)
	defer b.Unregister(s)

	write := func(st model.UploadStatus) bool {
		data, _ := json.Marshal(st)
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", st.State, data)
		flusher.Flush()
		return st.State.Terminal()
	}

	if st := current(); st != nil && write(*st) {
		return
	}

	ticker := time.NewTicker(sseHeartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case st, ok := <-s.ch:
			if !ok || write(st) {
				return
			}
		case <-ticker.C:
			fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		}
	}
}
