package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/tracksync/internal/domain"
	"github.com/persistorai/tracksync/internal/models"
)

// JournalRecorder persists one journal entry.
type JournalRecorder interface {
	Record(ctx context.Context, e *models.JournalEntry) error
}

// JournalWorker buffers sync journal entries and writes them via a single
// worker goroutine, so sync batches never wait on journal writes.
type JournalWorker struct {
	recorder JournalRecorder
	log      *logrus.Logger
	jobs     chan *models.JournalEntry
}

var _ domain.Journal = (*JournalWorker)(nil)

// NewJournalWorker creates a JournalWorker with the given queue capacity.
func NewJournalWorker(recorder JournalRecorder, log *logrus.Logger, queueSize int) *JournalWorker {
	if queueSize <= 0 {
		queueSize = 1000
	}

	return &JournalWorker{
		recorder: recorder,
		log:      log,
		jobs:     make(chan *models.JournalEntry, queueSize),
	}
}

// Enqueue adds an entry. Non-blocking; drops the entry if the queue is full.
func (w *JournalWorker) Enqueue(entry *models.JournalEntry) {
	select {
	case w.jobs <- entry:
	default:
		w.log.WithField("action", entry.Action).Warn("journal queue full, dropping entry")
	}
}

// Run processes entries until the context is cancelled, then drains remaining entries.
func (w *JournalWorker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return
		case entry := <-w.jobs:
			w.process(entry)
		}
	}
}

func (w *JournalWorker) drain() {
	for {
		select {
		case entry := <-w.jobs:
			w.process(entry)
		default:
			return
		}
	}
}

func (w *JournalWorker) process(entry *models.JournalEntry) {
	if err := w.recorder.Record(context.Background(), entry); err != nil {
		w.log.WithError(err).WithField("action", entry.Action).Warn("journal record failed")
	}
}
