package workers

import (
	"context"
	"fmt"
	"log"
	"path"
	"time"

	"iacollector/fetch"
	"iacollector/models"
	"iacollector/storage"
)

// Uploader pushes one local file to the mirror bucket.
type Uploader interface {
	Key(ev *models.FileEvent) string
	UploadFile(ctx context.Context, key, localPath string) error
}

// MirrorWorker drains the journal's fetched-file queue into the mirror
// bucket. Events that fail three times stop being retried.
type MirrorWorker struct {
	journal   *storage.Journal
	uploader  Uploader
	destRoot  string
	triggerCh chan struct{}
	logFunc   LogFunc
}

func NewMirrorWorker(journal *storage.Journal, uploader Uploader, destRoot string) *MirrorWorker {
	return &MirrorWorker{
		journal:   journal,
		uploader:  uploader,
		destRoot:  destRoot,
		triggerCh: make(chan struct{}, 1),
		logFunc:   NoOpLogger,
	}
}

func (w *MirrorWorker) SetLogger(fn LogFunc) {
	w.logFunc = fn
}

// Trigger causes the worker to run immediately
func (w *MirrorWorker) Trigger() {
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
}

// Run starts the mirror loop. Call in a goroutine.
func (w *MirrorWorker) Run(ctx context.Context, batchSize int, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Mirror worker stopping")
			return
		case <-ticker.C:
			w.ProcessBatch(ctx, batchSize)
		case <-w.triggerCh:
			log.Println("Mirror worker triggered manually")
			w.ProcessBatch(ctx, batchSize)
		}
	}
}

// ProcessBatch uploads up to batchSize pending files and records the
// outcome of each. Upload failures bump the event's attempt counter;
// the pending query stops returning events after the third failure.
func (w *MirrorWorker) ProcessBatch(ctx context.Context, batchSize int) {
	events, err := w.journal.PendingMirrorEvents(batchSize)
	if err != nil {
		log.Printf("Mirror worker: error fetching pending files: %v", err)
		return
	}
	if len(events) == 0 {
		return
	}

	log.Printf("Mirror worker: mirroring %d files", len(events))

	mirrored, failed := 0, 0
	for i := range events {
		if ctx.Err() != nil {
			return
		}
		ev := &events[i]

		localPath := fetch.LocalPath(w.destRoot, models.CatalogCity{Folder: ev.City}, ev.Date, models.PathKind(ev.PathKind), models.FileKind(ev.File))
		key := w.uploader.Key(ev)

		if err := w.uploader.UploadFile(ctx, key, localPath); err != nil {
			log.Printf("Mirror worker: failed to upload %s: %v", key, err)
			w.logFunc(models.LogLevelWarn, "mirror", fmt.Sprintf("Upload failed for %s: %v", key, err))
			if jerr := w.journal.BumpMirrorAttempts(ev.ID, err.Error()); jerr != nil {
				log.Printf("Mirror worker: failed to record attempt for event %d: %v", ev.ID, jerr)
			}
			failed++
			continue
		}

		if err := w.journal.MarkMirrored(ev.ID); err != nil {
			log.Printf("Mirror worker: failed to mark event %d mirrored: %v", ev.ID, err)
			failed++
			continue
		}

		mirrored++
		log.Printf("Mirror worker: uploaded %s (%d bytes)", key, ev.Bytes)
	}

	log.Printf("Mirror worker: batch complete, mirrored %d, failed %d", mirrored, failed)
	w.logFunc(models.LogLevelInfo, "mirror", fmt.Sprintf("Mirrored %d files, %d failed", mirrored, failed))
}

// NoOpUploader is used when no mirror bucket is configured.
type NoOpUploader struct{}

func NewNoOpUploader() *NoOpUploader {
	return &NoOpUploader{}
}

func (u *NoOpUploader) Key(ev *models.FileEvent) string {
	return path.Join(ev.City, ev.Date, ev.PathKind, ev.File)
}

func (u *NoOpUploader) UploadFile(ctx context.Context, key, localPath string) error {
	return nil
}
