package scheduler

import (
	"context"
	"path/filepath"
	"testing"

	"iacollector/config"
	"iacollector/models"
	"iacollector/services"
	"iacollector/storage"
)

type fakeTrigger struct {
	count int
}

func (f *fakeTrigger) Trigger() { f.count++ }

func testScheduler(t *testing.T, cfg *config.Config) (*Scheduler, *services.Pipeline) {
	t.Helper()
	j, err := storage.NewJournal(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("NewJournal: %v", err)
	}
	t.Cleanup(func() { j.Close() })

	p := services.NewPipeline(cfg, nil, nil, nil, j)
	return New(cfg, p, j), p
}

func TestHandleCommandMirrorNow(t *testing.T) {
	s, _ := testScheduler(t, &config.Config{})
	trig := &fakeTrigger{}
	s.SetMirrorWorker(trig)

	if err := s.handleCommand(&models.Command{Command: models.CmdMirrorNow}); err != nil {
		t.Fatalf("handleCommand: %v", err)
	}
	if trig.count != 1 {
		t.Errorf("trigger count = %d, want 1", trig.count)
	}

	// No worker registered is not an error.
	s.mirrorWorker = nil
	if err := s.handleCommand(&models.Command{Command: models.CmdMirrorNow}); err != nil {
		t.Errorf("handleCommand without worker: %v", err)
	}
}

func TestHandleCommandPauseResume(t *testing.T) {
	s, p := testScheduler(t, &config.Config{})

	if err := s.handleCommand(&models.Command{Command: models.CmdPause}); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if !p.IsPaused() {
		t.Error("pipeline not paused after pause command")
	}

	if err := s.handleCommand(&models.Command{Command: models.CmdResume}); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if p.IsPaused() {
		t.Error("pipeline still paused after resume command")
	}
}

func TestStartRejectsInvalidCron(t *testing.T) {
	cfg := &config.Config{Scheduler: config.SchedulerConfig{Cron: "not a cron"}}
	s, _ := testScheduler(t, cfg)
	defer s.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.Start(ctx); err == nil {
		t.Fatal("Start accepted an invalid cron expression")
	}
}
