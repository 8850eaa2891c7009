package workers

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"iacollector/models"
	"iacollector/storage"
)

type fakeUploader struct {
	mu      sync.Mutex
	uploads []upload
	err     error
	done    chan struct{}
}

type upload struct {
	key       string
	localPath string
}

func (u *fakeUploader) Key(ev *models.FileEvent) string {
	return "mirror/" + ev.City + "/" + ev.Date + "/" + ev.PathKind + "/" + ev.File
}

func (u *fakeUploader) UploadFile(ctx context.Context, key, localPath string) error {
	if u.err != nil {
		return u.err
	}
	u.mu.Lock()
	u.uploads = append(u.uploads, upload{key: key, localPath: localPath})
	u.mu.Unlock()
	if u.done != nil {
		select {
		case u.done <- struct{}{}:
		default:
		}
	}
	return nil
}

func testJournal(t *testing.T) *storage.Journal {
	t.Helper()
	j, err := storage.NewJournal(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("NewJournal: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func recordFetched(t *testing.T, j *storage.Journal, city, date string) {
	t.Helper()
	ev := &models.FileEvent{
		City:     city,
		Date:     date,
		PathKind: string(models.PathData),
		File:     string(models.FileListingsArchive),
		Action:   models.FileFetched,
		Bytes:    2048,
		SHA256:   "abc123",
	}
	if err := j.RecordFileEvent(ev); err != nil {
		t.Fatalf("RecordFileEvent: %v", err)
	}
}

func TestMirrorWorkerUploadsPending(t *testing.T) {
	j := testJournal(t)
	recordFetched(t, j, "berlin", "2025-06-10")

	up := &fakeUploader{}
	w := NewMirrorWorker(j, up, "/data/ia")
	w.ProcessBatch(context.Background(), 10)

	if len(up.uploads) != 1 {
		t.Fatalf("uploads = %d, want 1", len(up.uploads))
	}
	wantKey := "mirror/berlin/2025-06-10/data/listings.csv.gz"
	if up.uploads[0].key != wantKey {
		t.Errorf("key = %q, want %q", up.uploads[0].key, wantKey)
	}
	wantPath := filepath.Join("/data/ia", "berlin", "2025-06-10", "data", "listings.csv.gz")
	if up.uploads[0].localPath != wantPath {
		t.Errorf("localPath = %q, want %q", up.uploads[0].localPath, wantPath)
	}

	pending, err := j.PendingMirrorEvents(10)
	if err != nil {
		t.Fatalf("PendingMirrorEvents: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending after upload = %d, want 0", len(pending))
	}
}

func TestMirrorWorkerRetriesThenGivesUp(t *testing.T) {
	j := testJournal(t)
	recordFetched(t, j, "berlin", "2025-06-10")

	up := &fakeUploader{err: errors.New("bucket unreachable")}
	w := NewMirrorWorker(j, up, "/data/ia")

	for i := 0; i < 3; i++ {
		pending, err := j.PendingMirrorEvents(10)
		if err != nil {
			t.Fatalf("PendingMirrorEvents: %v", err)
		}
		if len(pending) != 1 {
			t.Fatalf("attempt %d: pending = %d, want 1", i, len(pending))
		}
		w.ProcessBatch(context.Background(), 10)
	}

	pending, err := j.PendingMirrorEvents(10)
	if err != nil {
		t.Fatalf("PendingMirrorEvents: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending after three failures = %d, want 0", len(pending))
	}

	up.err = nil
	w.ProcessBatch(context.Background(), 10)
	if len(up.uploads) != 0 {
		t.Errorf("uploads after give-up = %d, want 0", len(up.uploads))
	}
}

func TestMirrorWorkerSkipsNonFetched(t *testing.T) {
	j := testJournal(t)
	ev := &models.FileEvent{
		City:     "berlin",
		Date:     "2025-06-10",
		PathKind: string(models.PathData),
		File:     string(models.FileReviewsArchive),
		Action:   models.FileSkipped,
	}
	if err := j.RecordFileEvent(ev); err != nil {
		t.Fatalf("RecordFileEvent: %v", err)
	}

	up := &fakeUploader{}
	w := NewMirrorWorker(j, up, "/data/ia")
	w.ProcessBatch(context.Background(), 10)

	if len(up.uploads) != 0 {
		t.Errorf("uploads = %d, want 0 for skipped files", len(up.uploads))
	}
}

func TestMirrorWorkerTrigger(t *testing.T) {
	j := testJournal(t)
	recordFetched(t, j, "berlin", "2025-06-10")

	up := &fakeUploader{done: make(chan struct{}, 1)}
	w := NewMirrorWorker(j, up, "/data/ia")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx, 10, time.Hour)

	w.Trigger()

	select {
	case <-up.done:
	case <-time.After(5 * time.Second):
		t.Fatal("trigger did not start a batch")
	}
}

func TestNoOpUploader(t *testing.T) {
	u := NewNoOpUploader()
	ev := &models.FileEvent{City: "berlin", Date: "2025-06-10", PathKind: "data", File: "listings.csv.gz"}
	if got := u.Key(ev); got != "berlin/2025-06-10/data/listings.csv.gz" {
		t.Errorf("Key = %q", got)
	}
	if err := u.UploadFile(context.Background(), "k", "/nope"); err != nil {
		t.Errorf("UploadFile = %v, want nil", err)
	}
}
