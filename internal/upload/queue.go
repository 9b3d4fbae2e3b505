// Package upload sends batches of files into a box one at a time and
// tracks the progress of every file.
package upload

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sceneboard/internal/api"
	"github.com/sceneboard/internal/config"
	"github.com/sceneboard/internal/models"
	"github.com/sceneboard/internal/quota"
)

// Error is a sentinel error of the upload queue.
type Error string

func (e Error) Error() string { return string(e) }

const ErrCancelled = Error("Upload cancelled")

// Status is the lifecycle of one queued file.
type Status string

const (
	StatusPending   Status = "pending"
	StatusUploading Status = "uploading"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// File is one file of a batch. Closing Body is the caller's job.
type File struct {
	Name string
	Body io.ReadSeeker
}

// Item is the visible progress of one file.
type Item struct {
	ID       string
	BoxID    int64
	Name     string
	Status   Status
	Progress int
	Error    string
	Asset    *models.Asset
	DoneAt   time.Time
}

// Summary is the outcome of one batch.
type Summary struct {
	Completed int
	Failed    int
	Items     []Item
}

// Uploader sends one file, normally the API client.
type Uploader interface {
	Upload(ctx context.Context, boxID int64, filename string, file io.ReadSeeker, progress api.ProgressFunc) (*models.Asset, error)
}

// Sink receives finished uploads, normally the collection store.
type Sink interface {
	AddAsset(asset models.Asset)
	RefreshBox(ctx context.Context, id int64) error
}

// Queue uploads batches one file at a time.
type Queue struct {
	api        Uploader
	sink       Sink
	log        logrus.FieldLogger
	pruneAfter time.Duration
	now        func() time.Time

	mu      sync.Mutex
	items   []Item
	subs    map[int]func([]Item)
	nextSub int
}

// New creates an empty queue. A nil logger discards output.
func New(client Uploader, sink Sink, cfg config.UploadConfig, logger logrus.FieldLogger) *Queue {
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	return &Queue{
		api:        client,
		sink:       sink,
		log:        logger,
		pruneAfter: cfg.PruneAfter,
		now:        time.Now,
		subs:       make(map[int]func([]Item)),
	}
}

// Items returns a copy of the tracked items, oldest first.
func (q *Queue) Items() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Item(nil), q.items...)
}

// Subscribe calls fn with the item list after every change until the
// returned func is called.
func (q *Queue) Subscribe(fn func([]Item)) (unsubscribe func()) {
	q.mu.Lock()
	id := q.nextSub
	q.nextSub++
	q.subs[id] = fn
	q.mu.Unlock()

	return func() {
		q.mu.Lock()
		delete(q.subs, id)
		q.mu.Unlock()
	}
}

// Run uploads files into boxID, which already holds existing assets. The
// whole batch is refused when it does not fit the quota; otherwise files go
// up strictly in order and a failed file does not stop the rest. The
// returned error is only the quota refusal.
func (q *Queue) Run(ctx context.Context, boxID int64, existing int, files []File, limits *models.Quota) (Summary, error) {
	if err := quota.CheckAssets(limits, existing, len(files)); err != nil {
		return Summary{}, err
	}

	ids := make([]string, len(files))
	q.update(func(items []Item) []Item {
		for i, f := range files {
			ids[i] = uuid.NewString()
			items = append(items, Item{ID: ids[i], BoxID: boxID, Name: f.Name, Status: StatusPending})
		}
		return items
	})

	var summary Summary
	for i, f := range files {
		item := q.uploadOne(ctx, ids[i], boxID, f)
		summary.Items = append(summary.Items, item)
		if item.Status == StatusCompleted {
			summary.Completed++
		} else {
			summary.Failed++
		}
	}

	if summary.Completed > 0 && q.sink != nil {
		if err := q.sink.RefreshBox(ctx, boxID); err != nil {
			q.log.WithError(err).WithField("box_id", boxID).Warn("refresh box after upload")
		}
	}

	q.log.WithFields(logrus.Fields{
		"box_id":    boxID,
		"completed": summary.Completed,
		"failed":    summary.Failed,
	}).Info("upload batch finished")
	return summary, nil
}

func (q *Queue) uploadOne(ctx context.Context, id string, boxID int64, f File) Item {
	if ctx.Err() != nil {
		return q.finish(id, nil, ErrCancelled)
	}

	q.set(id, func(it *Item) { it.Status = StatusUploading })
	asset, err := q.api.Upload(ctx, boxID, f.Name, f.Body, func(percent int) {
		q.set(id, func(it *Item) { it.Progress = percent })
	})
	if err != nil {
		q.log.WithError(err).WithFields(logrus.Fields{
			"box_id": boxID,
			"file":   f.Name,
		}).Warn("upload failed")
		return q.finish(id, nil, err)
	}

	if q.sink != nil {
		q.sink.AddAsset(*asset)
	}
	return q.finish(id, asset, nil)
}

func (q *Queue) finish(id string, asset *models.Asset, err error) Item {
	var out Item
	q.set(id, func(it *Item) {
		it.DoneAt = q.now()
		if err != nil {
			it.Status = StatusError
			it.Error = api.Message(err, "Upload failed")
		} else {
			it.Status = StatusCompleted
			it.Progress = 100
			it.Asset = asset
		}
		out = *it
	})
	return out
}

// Prune drops completed items finished at least the configured delay ago.
// Failed items stay until Clear.
func (q *Queue) Prune() {
	cutoff := q.now().Add(-q.pruneAfter)
	q.update(func(items []Item) []Item {
		out := items[:0:0]
		for _, it := range items {
			if it.Status == StatusCompleted && !it.DoneAt.After(cutoff) {
				continue
			}
			out = append(out, it)
		}
		return out
	})
}

// Clear forgets every finished item.
func (q *Queue) Clear() {
	q.update(func(items []Item) []Item {
		out := items[:0:0]
		for _, it := range items {
			if it.Status == StatusPending || it.Status == StatusUploading {
				out = append(out, it)
			}
		}
		return out
	})
}

func (q *Queue) set(id string, fn func(it *Item)) {
	q.update(func(items []Item) []Item {
		out := append([]Item(nil), items...)
		for i := range out {
			if out[i].ID == id {
				fn(&out[i])
			}
		}
		return out
	})
}

func (q *Queue) update(fn func([]Item) []Item) {
	q.mu.Lock()
	q.items = fn(q.items)
	next := append([]Item(nil), q.items...)
	subs := make([]func([]Item), 0, len(q.subs))
	for _, sub := range q.subs {
		subs = append(subs, sub)
	}
	q.mu.Unlock()

	for _, sub := range subs {
		sub(next)
	}
}
