package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/alanyoungcy/nftstore/internal/domain"
)

const (
	jsonlContentType = "application/x-ndjson"

	// DefaultBatchSize bounds how many events one archive object holds.
	DefaultBatchSize = 5_000

	archiveLockKey = "archive:events"
	archiveLockTTL = 10 * time.Minute
)

var _ domain.Archiver = (*EventArchiver)(nil)

// EventArchiver exports store events older than a cutoff to JSONL objects and
// removes them from the event store once the upload succeeded.
type EventArchiver struct {
	writer    domain.BlobWriter
	reader    domain.BlobReader
	events    domain.EventStore
	audit     domain.AuditStore
	locks     domain.LockManager
	batchSize int
	logger    *slog.Logger
}

// NewArchiver creates an EventArchiver. The reader, audit and locks are
// optional.
func NewArchiver(writer domain.BlobWriter, events domain.EventStore, logger *slog.Logger) *EventArchiver {
	return &EventArchiver{
		writer:    writer,
		events:    events,
		batchSize: DefaultBatchSize,
		logger:    logger.With(slog.String("component", "archiver")),
	}
}

// WithReader lets a rerun skip the upload of a batch that an earlier run
// already stored but failed to delete.
func (a *EventArchiver) WithReader(reader domain.BlobReader) *EventArchiver {
	a.reader = reader
	return a
}

// WithAudit records each uploaded object in the audit log.
func (a *EventArchiver) WithAudit(audit domain.AuditStore) *EventArchiver {
	a.audit = audit
	return a
}

// WithLock serialises archive runs across processes.
func (a *EventArchiver) WithLock(locks domain.LockManager) *EventArchiver {
	a.locks = locks
	return a
}

// WithBatchSize overrides DefaultBatchSize.
func (a *EventArchiver) WithBatchSize(n int) *EventArchiver {
	if n > 0 {
		a.batchSize = n
	}
	return a
}

// ArchiveEvents moves every event created before the cutoff to object storage
// in batches and returns how many were archived. A run that finds the archive
// lock held by another process archives nothing and returns no error.
func (a *EventArchiver) ArchiveEvents(ctx context.Context, before time.Time) (int64, error) {
	if a.locks != nil {
		release, err := a.locks.Acquire(ctx, archiveLockKey, archiveLockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				a.logger.InfoContext(ctx, "archive already running elsewhere")
				return 0, nil
			}
			return 0, fmt.Errorf("s3blob: archive events lock: %w", err)
		}
		defer release()
	}

	var total int64
	for {
		n, more, err := a.archiveBatch(ctx, before)
		total += n
		if err != nil {
			return total, err
		}
		if !more {
			break
		}
	}
	if total > 0 {
		a.logger.InfoContext(ctx, "events archived",
			slog.Int64("count", total),
			slog.String("before", before.UTC().Format(time.RFC3339)),
		)
	}
	return total, nil
}

// archiveBatch uploads one batch and deletes it from the store. more reports
// whether further events may remain before the cutoff.
func (a *EventArchiver) archiveBatch(ctx context.Context, before time.Time) (int64, bool, error) {
	events, err := a.events.ListBefore(ctx, before, a.batchSize)
	if err != nil {
		return 0, false, fmt.Errorf("s3blob: archive events query: %w", err)
	}
	if len(events) == 0 {
		return 0, false, nil
	}

	cutoff := before
	more := len(events) == a.batchSize
	if more {
		// Deleting is by timestamp, so stop the batch short of the last
		// timestamp; events sharing it go into the next batch.
		last := events[len(events)-1].CreatedAt
		i := len(events)
		for i > 0 && events[i-1].CreatedAt.Equal(last) {
			i--
		}
		if i == 0 {
			return 0, false, fmt.Errorf("s3blob: archive events: more than %d events share timestamp %s", a.batchSize, last.Format(time.RFC3339Nano))
		}
		events = events[:i]
		cutoff = last
	}

	buf, err := marshalJSONL(events)
	if err != nil {
		return 0, false, fmt.Errorf("s3blob: archive events marshal: %w", err)
	}

	path := archivePath(events[0])
	stored, err := a.alreadyStored(ctx, path, events)
	if err != nil {
		return 0, false, err
	}
	switch {
	case stored:
		a.logger.InfoContext(ctx, "batch already archived", slog.String("path", path))
	case int64(len(buf)) > minPartSize:
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	default:
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), jsonlContentType)
	}
	if err != nil {
		return 0, false, fmt.Errorf("s3blob: archive events upload: %w", err)
	}

	count := int64(len(events))
	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.events", map[string]any{
			"path":   path,
			"count":  count,
			"before": cutoff.UTC().Format(time.RFC3339Nano),
		}); err != nil {
			a.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
		}
	}

	deleted, err := a.events.DeleteBefore(ctx, cutoff)
	if err != nil {
		return count, false, fmt.Errorf("s3blob: archive events delete: %w", err)
	}
	if deleted != count {
		a.logger.WarnContext(ctx, "deleted count differs from archived count",
			slog.Int64("archived", count),
			slog.Int64("deleted", deleted),
		)
	}
	return count, more, nil
}

// alreadyStored reports whether the object at path holds every event of the
// batch.
func (a *EventArchiver) alreadyStored(ctx context.Context, path string, events []domain.Event) (bool, error) {
	if a.reader == nil {
		return false, nil
	}
	ok, err := a.reader.Exists(ctx, path)
	if err != nil {
		return false, fmt.Errorf("s3blob: archive events check: %w", err)
	}
	if !ok {
		return false, nil
	}

	body, err := a.reader.Get(ctx, path)
	if err != nil {
		return false, fmt.Errorf("s3blob: archive events check: %w", err)
	}
	defer body.Close()

	ids := make(map[string]bool, len(events))
	dec := json.NewDecoder(body)
	for {
		var rec struct {
			ID string `json:"id"`
		}
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			// unreadable object; overwrite it
			return false, nil
		}
		ids[rec.ID] = true
	}
	for _, e := range events {
		if !ids[e.ID] {
			return false, nil
		}
	}
	return true, nil
}

// archivePath partitions objects by the month of their first event:
//
//	archive/events/2026-10/<first-event-id>.jsonl
func archivePath(first domain.Event) string {
	return fmt.Sprintf("archive/events/%s/%s.jsonl", first.CreatedAt.UTC().Format("2006-01"), first.ID)
}

// marshalJSONL encodes records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
