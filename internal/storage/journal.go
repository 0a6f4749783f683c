package storage

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/neway-security/clocking-monitor/internal/diagnostics"
)

const (
	defaultJournalBuffer = 256
	journalBatch         = 64
	journalRetention     = 5000
	journalPruneEvery    = 10 * time.Minute
)

// Journal is a diagnostics.Sink that writes entries to the repository on its
// own goroutine. Report never blocks; entries are dropped while the buffer
// is full.
type Journal struct {
	repo    *Repository
	entries chan diagnostics.Entry
	logger  *slog.Logger
	dropped atomic.Int64
}

func NewJournal(repo *Repository, buffer int, logger *slog.Logger) *Journal {
	if buffer <= 0 {
		buffer = defaultJournalBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{repo: repo, entries: make(chan diagnostics.Entry, buffer), logger: logger}
}

func (j *Journal) Report(e diagnostics.Entry) {
	select {
	case j.entries <- e:
	default:
		j.dropped.Add(1)
	}
}

// Dropped returns how many entries were discarded on a full buffer.
func (j *Journal) Dropped() int64 {
	return j.dropped.Load()
}

// Recent reads the newest entries back.
func (j *Journal) Recent(ctx context.Context, limit int) ([]diagnostics.Entry, error) {
	return j.repo.RecentDiagnostics(ctx, limit)
}

// Run writes buffered entries until ctx is cancelled, then flushes what is
// left.
func (j *Journal) Run(ctx context.Context) error {
	prune := time.NewTicker(journalPruneEvery)
	defer prune.Stop()
	// Writes outlive cancellation so an entry taken off the buffer is not lost.
	writeCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			j.flush(writeCtx)
			return nil
		case first := <-j.entries:
			batch := []diagnostics.Entry{first}
			batch = j.drain(batch)
			if err := j.repo.InsertDiagnostics(writeCtx, batch); err != nil {
				j.logger.Warn("diagnostics write failed", "entries", len(batch), "err", err)
			}
		case <-prune.C:
			if removed, err := j.repo.PruneDiagnostics(writeCtx, journalRetention); err != nil {
				j.logger.Warn("diagnostics prune failed", "err", err)
			} else if removed > 0 {
				j.logger.Debug("pruned diagnostics", "rows", removed)
			}
		}
	}
}

func (j *Journal) drain(batch []diagnostics.Entry) []diagnostics.Entry {
	for len(batch) < journalBatch {
		select {
		case e := <-j.entries:
			batch = append(batch, e)
		default:
			return batch
		}
	}
	return batch
}

func (j *Journal) flush(ctx context.Context) {
	for {
		batch := j.drain(nil)
		if len(batch) == 0 {
			return
		}
		if err := j.repo.InsertDiagnostics(ctx, batch); err != nil {
			j.logger.Warn("diagnostics flush failed", "entries", len(batch), "err", err)
			return
		}
	}
}
