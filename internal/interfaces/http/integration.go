package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"lifedash/internal/domain/inbox"
	"lifedash/internal/domain/syncjob"
	"lifedash/internal/domain/synclog"
	"lifedash/internal/interfaces/scheduler"
)

const defaultStreamPoll = 5 * time.Second

// SyncDispatcher starts background sync jobs.
type SyncDispatcher interface {
	Dispatch(ctx context.Context, userID, provider string, reason syncjob.Reason) (*syncjob.Job, error)
}

type JobReader interface {
	Get(ctx context.Context, userID, id string) (*syncjob.Job, error)
}

type LogReader interface {
	Recent(ctx context.Context, userID, provider string, max int) ([]*synclog.Entry, error)
	Watch(ctx context.Context, userID, provider string, max int) (<-chan []*synclog.Entry, error)
}

type InboxWriter interface {
	Enqueue(ctx context.Context, userID, provider string, entityType inbox.EntityType, payload json.RawMessage, opts inbox.EnqueueOptions) (string, error)
}

// IntegrationHandler serves the per-provider sync, job, log and inbox routes.
type IntegrationHandler struct {
	dispatcher SyncDispatcher
	jobs       JobReader
	logs       LogReader
	inbox      InboxWriter
	streamPoll time.Duration
}

func NewIntegrationHandler(dispatcher SyncDispatcher, jobs JobReader, logs LogReader, inbox InboxWriter) *IntegrationHandler {
	return &IntegrationHandler{
		dispatcher: dispatcher,
		jobs:       jobs,
		logs:       logs,
		inbox:      inbox,
		streamPoll: defaultStreamPoll,
	}
}

// SetStreamPollInterval sets how often the log stream polls backends
// without a live feed.
func (h *IntegrationHandler) SetStreamPollInterval(d time.Duration) {
	if d > 0 {
		h.streamPoll = d
	}
}

// HandleSync starts a manual sync. Only one job per user and provider may be
// active; a second request gets 409 with the active job id.
func (h *IntegrationHandler) HandleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	provider := r.PathValue("provider")

	job, err := h.dispatcher.Dispatch(r.Context(), userID, provider, syncjob.ReasonManual)
	var inProgress *syncjob.InProgressError
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, job)
	case errors.As(err, &inProgress):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: inProgress.Error(), JobID: inProgress.JobID})
	case errors.Is(err, scheduler.ErrUnknownProvider):
		http.Error(w, "Unknown provider", http.StatusNotFound)
	case errors.Is(err, scheduler.ErrQueueFull), errors.Is(err, scheduler.ErrPoolClosed):
		log.Printf("User %s: sync for %s not dispatched: %v", userID, provider, err)
		http.Error(w, "Sync queue is busy, try again later", http.StatusServiceUnavailable)
	default:
		log.Printf("User %s: failed to start %s sync: %v", userID, provider, err)
		http.Error(w, "Failed to start sync", http.StatusInternalServerError)
	}
}

// HandleGetJob returns one job of the provider.
func (h *IntegrationHandler) HandleGetJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	job, err := h.jobs.Get(r.Context(), userID, r.PathValue("id"))
	if errors.Is(err, syncjob.ErrJobNotFound) || (err == nil && job.Provider != r.PathValue("provider")) {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("User %s: failed to get job %s: %v", userID, r.PathValue("id"), err)
		http.Error(w, "Failed to get job", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, job)
}

// HandleLogs returns the newest log entries, newest first.
func (h *IntegrationHandler) HandleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	entries, err := h.logs.Recent(r.Context(), userID, r.PathValue("provider"), queryInt(r, "limit", 0))
	if err != nil {
		log.Printf("User %s: failed to read sync logs: %v", userID, err)
		http.Error(w, "Failed to read logs", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []*synclog.Entry{}
	}

	writeJSON(w, http.StatusOK, entries)
}

// HandleLogStream sends the recent log window as server-sent events each time
// it changes. Backends without a live feed are polled.
func (h *IntegrationHandler) HandleLogStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	provider := r.PathValue("provider")
	limit := queryInt(r, "limit", 0)

	feed, err := h.logs.Watch(ctx, userID, provider, limit)
	if errors.Is(err, synclog.ErrLiveFeedUnsupported) {
		feed = h.pollLogs(ctx, userID, provider, limit)
	} else if err != nil {
		log.Printf("User %s: failed to watch sync logs: %v", userID, err)
		http.Error(w, "Failed to watch logs", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-ctx.Done():
			return
		case entries, ok := <-feed:
			if !ok {
				return
			}
			if entries == nil {
				entries = []*synclog.Entry{}
			}
			data, err := json.Marshal(entries)
			if err != nil {
				log.Printf("User %s: failed to encode log stream: %v", userID, err)
				return
			}
			if _, err := w.Write([]byte("event: logs\ndata: " + string(data) + "\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// pollLogs emulates a live feed by re-reading the window on an interval and
// emitting it when the newest entry changes.
func (h *IntegrationHandler) pollLogs(ctx context.Context, userID, provider string, limit int) <-chan []*synclog.Entry {
	out := make(chan []*synclog.Entry)
	go func() {
		defer close(out)
		ticker := time.NewTicker(h.streamPoll)
		defer ticker.Stop()

		last := "\x00"
		for {
			entries, err := h.logs.Recent(ctx, userID, provider, limit)
			if err != nil && ctx.Err() == nil {
				log.Printf("User %s: log stream poll failed: %v", userID, err)
			}
			if err == nil {
				head := ""
				if len(entries) > 0 {
					head = entries[0].ID
				}
				if head != last {
					last = head
					select {
					case out <- entries:
					case <-ctx.Done():
						return
					}
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return out
}

// EnqueueInboxRequest is the body of an inbox submission.
type EnqueueInboxRequest struct {
	EntityType string          `json:"entityType"`
	Payload    json.RawMessage `json:"payload"`
	ExternalID *string         `json:"externalId,omitempty"`
	Checksum   *string         `json:"checksum,omitempty"`
	Source     string          `json:"source,omitempty"`
}

// EnqueueInboxResponse carries the id of the staged item.
type EnqueueInboxResponse struct {
	ItemID string `json:"itemId"`
}

// HandleEnqueueInbox stages a record for asynchronous processing.
func (h *IntegrationHandler) HandleEnqueueInbox(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req EnqueueInboxRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	itemID, err := h.inbox.Enqueue(r.Context(), userID, r.PathValue("provider"),
		inbox.EntityType(req.EntityType), bytes.TrimSpace(req.Payload), inbox.EnqueueOptions{
			ExternalID: req.ExternalID,
			Checksum:   req.Checksum,
			Source:     req.Source,
		})
	switch {
	case errors.Is(err, inbox.ErrInvalidEntityType), errors.Is(err, inbox.ErrInvalidPayload):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		log.Printf("User %s: failed to enqueue inbox item: %v", userID, err)
		http.Error(w, "Failed to enqueue item", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, EnqueueInboxResponse{ItemID: itemID})
}
