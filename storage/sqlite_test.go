package storage

import (
	"path/filepath"
	"testing"
	"time"

	"iacollector/models"
)

func testJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := NewJournal(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestJournalRunLifecycle(t *testing.T) {
	j := testJournal(t)

	run := &models.CollectRun{
		RunUUID:         "7b8a6c1e-0000-0000-0000-000000000000",
		Mode:            "run",
		StartedAt:       time.Now(),
		Status:          models.RunStatusRunning,
		CitiesRequested: 2,
	}
	id, err := j.CreateRun(run)
	if err != nil {
		t.Fatalf("create run: %v", err)
	}
	if id == 0 {
		t.Fatal("run id should be assigned")
	}
	run.ID = id

	finished := time.Now()
	run.FinishedAt = &finished
	run.Status = models.RunStatusCompleted
	run.CitiesCompleted = 2
	run.FilesFetched = 14
	run.RowsLoaded = 9000
	if err := j.UpdateRun(run); err != nil {
		t.Fatalf("update run: %v", err)
	}

	runs, err := j.GetRecentRuns(5)
	if err != nil {
		t.Fatalf("recent runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	got := runs[0]
	if got.Status != models.RunStatusCompleted {
		t.Errorf("status = %s", got.Status)
	}
	if got.FinishedAt == nil {
		t.Error("finished_at should round-trip")
	}
	if got.CitiesCompleted != 2 || got.FilesFetched != 14 || got.RowsLoaded != 9000 {
		t.Errorf("counters = %+v", got)
	}
	if got.RunUUID != run.RunUUID {
		t.Errorf("run_uuid = %s", got.RunUUID)
	}
}

func TestJournalMirrorQueue(t *testing.T) {
	j := testJournal(t)

	runID := int64(1)
	fetched := &models.FileEvent{
		RunID:    &runID,
		City:     "amsterdam",
		Date:     "2024-06-10",
		PathKind: "data",
		File:     "listings.csv.gz",
		Action:   models.FileFetched,
		Bytes:    2048,
		SHA256:   "ab12",
	}
	skipped := &models.FileEvent{
		RunID:    &runID,
		City:     "amsterdam",
		Date:     "2024-06-10",
		PathKind: "data",
		File:     "reviews.csv.gz",
		Action:   models.FileSkipped,
	}
	if err := j.RecordFileEvent(fetched); err != nil {
		t.Fatal(err)
	}
	if err := j.RecordFileEvent(skipped); err != nil {
		t.Fatal(err)
	}

	pending, err := j.PendingMirrorEvents(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Fatalf("only fetched files are mirrored, got %d pending", len(pending))
	}
	ev := pending[0]
	if ev.File != "listings.csv.gz" || ev.SHA256 != "ab12" || ev.Bytes != 2048 {
		t.Fatalf("pending event = %+v", ev)
	}
	if ev.RunID == nil || *ev.RunID != runID {
		t.Fatalf("run id = %v", ev.RunID)
	}

	if err := j.MarkMirrored(ev.ID); err != nil {
		t.Fatal(err)
	}
	pending, err = j.PendingMirrorEvents(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Fatalf("mirrored file should leave the queue, got %d", len(pending))
	}
}

func TestJournalMirrorAttemptsCap(t *testing.T) {
	j := testJournal(t)

	ev := &models.FileEvent{
		City:     "berlin",
		Date:     "2024-05-18",
		PathKind: "visualisations",
		File:     "neighbourhoods.geojson",
		Action:   models.FileFetched,
	}
	if err := j.RecordFileEvent(ev); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		pending, err := j.PendingMirrorEvents(10)
		if err != nil {
			t.Fatal(err)
		}
		if len(pending) != 1 {
			t.Fatalf("attempt %d: expected event in queue, got %d", i, len(pending))
		}
		if err := j.BumpMirrorAttempts(pending[0].ID, "upload timeout"); err != nil {
			t.Fatal(err)
		}
	}

	pending, err := j.PendingMirrorEvents(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Fatalf("event should drop out after 3 attempts, got %d", len(pending))
	}
}

func TestJournalCommands(t *testing.T) {
	j := testJournal(t)

	if err := j.EnqueueCommand(models.CmdFetchCity, &models.CommandParams{City: "amsterdam", Paths: "data"}); err != nil {
		t.Fatal(err)
	}

	cmds, err := j.GetPendingCommands()
	if err != nil {
		t.Fatal(err)
	}
	if len(cmds) != 1 {
		t.Fatalf("expected 1 pending command, got %d", len(cmds))
	}
	if cmds[0].Command != models.CmdFetchCity {
		t.Fatalf("command = %s", cmds[0].Command)
	}

	params, err := j.ParseCommandParams(&cmds[0])
	if err != nil {
		t.Fatal(err)
	}
	if params.City != "amsterdam" || params.Paths != "data" {
		t.Fatalf("params = %+v", params)
	}

	if err := j.MarkCommandProcessed(cmds[0].ID); err != nil {
		t.Fatal(err)
	}
	cmds, err = j.GetPendingCommands()
	if err != nil {
		t.Fatal(err)
	}
	if len(cmds) != 0 {
		t.Fatalf("processed command should leave the queue, got %d", len(cmds))
	}
}

func TestJournalLogsAndReset(t *testing.T) {
	j := testJournal(t)

	runID := int64(7)
	if err := j.Log(&runID, models.LogLevelInfo, "pipeline", "city completed"); err != nil {
		t.Fatal(err)
	}
	if err := j.Log(nil, models.LogLevelError, "mirror", "upload failed"); err != nil {
		t.Fatal(err)
	}

	logs, err := j.GetRecentLogs(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 2 {
		t.Fatalf("expected 2 logs, got %d", len(logs))
	}

	if err := j.Reset(); err != nil {
		t.Fatal(err)
	}
	logs, err = j.GetRecentLogs(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 0 {
		t.Fatalf("reset should clear logs, got %d", len(logs))
	}
}
