package catalog_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"browserfetch/internal/catalog"
	"browserfetch/internal/download"
	"browserfetch/internal/events"
	"browserfetch/internal/testsupport"
)

func ratio(v float64) *float64 { return &v }

func TestBrowserLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenCatalog(t, cfg)
	ctx := context.Background()

	installDir := filepath.Join(cfg.Paths.InstallDir, "chrome", "linux64-120")
	testsupport.WriteFile(t, filepath.Join(installDir, "chrome"), 128)

	b := catalog.Browser{
		ID:             "b1",
		BrowserType:    "chrome",
		Version:        "120",
		Platform:       "linux64",
		InstallPath:    installDir,
		ExecutablePath: filepath.Join(installDir, "chrome"),
		FileSize:       128,
	}
	if err := store.SaveBrowser(ctx, b); err != nil {
		t.Fatalf("SaveBrowser: %v", err)
	}
	got, err := store.GetBrowser(ctx, "b1")
	if err != nil {
		t.Fatalf("GetBrowser: %v", err)
	}
	if got.InstallPath != installDir || got.FileSize != 128 || got.DownloadDate.IsZero() {
		t.Fatalf("unexpected browser %+v", got)
	}

	// Reinstalling the same target replaces the old record.
	b.ID = "b2"
	if err := store.SaveBrowser(ctx, b); err != nil {
		t.Fatalf("SaveBrowser replace: %v", err)
	}
	list, err := store.ListBrowsers(ctx)
	if err != nil {
		t.Fatalf("ListBrowsers: %v", err)
	}
	if len(list) != 1 || list[0].ID != "b2" {
		t.Fatalf("expected only b2, got %+v", list)
	}
	if _, err := store.FindBrowser(ctx, "chrome", "120", "linux64"); err != nil {
		t.Fatalf("FindBrowser: %v", err)
	}

	if _, err := store.DeleteBrowser(ctx, "b2", true); err != nil {
		t.Fatalf("DeleteBrowser: %v", err)
	}
	if _, err := os.Stat(installDir); !os.IsNotExist(err) {
		t.Fatalf("install directory should be removed, stat err = %v", err)
	}
	if _, err := store.GetBrowser(ctx, "b2"); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.DeleteBrowser(ctx, "b2", false); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestTaskRecordsIgnoreStaleStatus(t *testing.T) {
	store := testsupport.MustOpenCatalog(t, testsupport.NewConfig(t))
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := store.ApplyStatus(ctx, events.Status{TaskID: "t1", Status: "downloading", Progress: ratio(0), Timestamp: base.Add(time.Second)}); err != nil {
		t.Fatalf("ApplyStatus: %v", err)
	}
	// The initial snapshot arrives late; target columns land, status does not regress.
	if err := store.RecordTask(ctx, catalog.TaskRecord{
		ID: "t1", BrowserType: "firefox", Version: "121.0", Platform: "linux64",
		Status: "pending", CreatedAt: base, UpdatedAt: base,
	}); err != nil {
		t.Fatalf("RecordTask: %v", err)
	}
	if err := store.ApplyStatus(ctx, events.Status{TaskID: "t1", Status: "pending", Timestamp: base}); err != nil {
		t.Fatalf("ApplyStatus stale: %v", err)
	}
	if err := store.ApplyProgress(ctx, events.Progress{TaskID: "t1", Progress: 0.5, DownloadedBytes: 50, TotalBytes: 100}); err != nil {
		t.Fatalf("ApplyProgress: %v", err)
	}

	rec, err := store.GetTaskRecord(ctx, "t1")
	if err != nil {
		t.Fatalf("GetTaskRecord: %v", err)
	}
	if rec.Status != "downloading" || rec.BrowserType != "firefox" || rec.Version != "121.0" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.Progress != 0.5 || rec.DownloadedBytes != 50 || rec.TotalBytes != 100 {
		t.Fatalf("progress not applied: %+v", rec)
	}
	if !rec.CreatedAt.Equal(base) {
		t.Fatalf("created_at = %v, want %v", rec.CreatedAt, base)
	}

	if err := store.ApplyStatus(ctx, events.Status{
		TaskID: "t1", Status: "completed", Progress: ratio(1), InstallPath: "/opt/ff", RetryCount: 1,
		Timestamp: base.Add(time.Minute),
	}); err != nil {
		t.Fatalf("ApplyStatus completed: %v", err)
	}
	rec, _ = store.GetTaskRecord(ctx, "t1")
	if rec.Status != "completed" || rec.InstallPath != "/opt/ff" || rec.RetryCount != 1 || rec.Progress != 1 {
		t.Fatalf("unexpected completed record %+v", rec)
	}
	// Progress after completion is ignored.
	_ = store.ApplyProgress(ctx, events.Progress{TaskID: "t1", Progress: 0.1})
	rec, _ = store.GetTaskRecord(ctx, "t1")
	if rec.Progress != 1 {
		t.Fatalf("progress regressed to %v", rec.Progress)
	}

	pruned, err := store.PruneTaskRecords(ctx, base.Add(time.Hour))
	if err != nil || pruned != 1 {
		t.Fatalf("PruneTaskRecords = %d, %v", pruned, err)
	}
}

func TestCompletionSinkLinksTask(t *testing.T) {
	store := testsupport.MustOpenCatalog(t, testsupport.NewConfig(t))
	ctx := context.Background()
	if err := store.RecordTask(ctx, catalog.TaskRecord{ID: "t2", BrowserType: "chromedriver", Version: "120", Platform: "linux64", Status: "downloading"}); err != nil {
		t.Fatal(err)
	}

	sink := catalog.NewCompletionSink(store)
	err := sink.NotifyCompleted(ctx, download.CompletedTask{
		TaskID:         "t2",
		BrowserID:      "b9",
		Target:         download.Target{Browser: download.ChromeDriver, Version: "120", Platform: "linux64"},
		Version:        "120.0.6099.109",
		InstallPath:    "/opt/chromedriver",
		ExecutablePath: "/opt/chromedriver/chromedriver",
		FileSize:       4096,
		CompletedAt:    time.Now(),
	})
	if err != nil {
		t.Fatalf("NotifyCompleted: %v", err)
	}
	b, err := store.GetBrowser(ctx, "b9")
	if err != nil {
		t.Fatalf("GetBrowser: %v", err)
	}
	if b.Version != "120.0.6099.109" || b.BrowserType != "chromedriver" {
		t.Fatalf("unexpected browser %+v", b)
	}
	rec, _ := store.GetTaskRecord(ctx, "t2")
	if rec.BrowserID != "b9" {
		t.Fatalf("task not linked: %+v", rec)
	}

	// Deleting the browser keeps the task history.
	if _, err := store.DeleteBrowser(ctx, "b9", false); err != nil {
		t.Fatal(err)
	}
	rec, err = store.GetTaskRecord(ctx, "t2")
	if err != nil || rec.BrowserID != "" {
		t.Fatalf("expected unlinked task record, got %+v, %v", rec, err)
	}
}

func TestTaskRecorderWritesInOrder(t *testing.T) {
	store := testsupport.MustOpenCatalog(t, testsupport.NewConfig(t))
	recorder := catalog.NewTaskRecorder(store, nil)
	defer recorder.Close()
	ctx := context.Background()
	base := time.Now()

	recorder.PublishStatus(events.Status{TaskID: "t3", Status: "pending", Progress: ratio(0), Timestamp: base})
	recorder.PublishStatus(events.Status{TaskID: "t3", Status: "downloading", Progress: ratio(0), Timestamp: base.Add(time.Millisecond)})
	for _, p := range []float64{0.01, 0.02, 0.35, 0.36} {
		recorder.PublishProgress(events.Progress{TaskID: "t3", Progress: p, DownloadedBytes: int64(p * 100), TotalBytes: 100, Status: "downloading"})
	}
	if err := recorder.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	rec, err := store.GetTaskRecord(ctx, "t3")
	if err != nil {
		t.Fatalf("GetTaskRecord: %v", err)
	}
	if rec.Status != "downloading" || rec.Progress != 0.35 {
		t.Fatalf("expected sampled progress 0.35, got %+v", rec)
	}

	recorder.Forget("t3")
	if err := recorder.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetTaskRecord(ctx, "t3"); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("expected record removed, got %v", err)
	}
}

func TestSettingsAndHealth(t *testing.T) {
	store := testsupport.MustOpenCatalog(t, testsupport.NewConfig(t))
	ctx := context.Background()

	if _, ok, err := store.GetConfig(ctx, "default_platform"); err != nil || ok {
		t.Fatalf("expected unset key, got ok=%v err=%v", ok, err)
	}
	if err := store.SetConfig(ctx, "default_platform", "linux64"); err != nil {
		t.Fatal(err)
	}
	if err := store.SetConfig(ctx, "default_platform", "mac_arm"); err != nil {
		t.Fatal(err)
	}
	if v, ok, err := store.GetConfig(ctx, "default_platform"); err != nil || !ok || v != "mac_arm" {
		t.Fatalf("GetConfig = %q, %v, %v", v, ok, err)
	}

	if err := store.SaveBrowser(ctx, catalog.Browser{ID: "x", BrowserType: "firefox", Version: "1", Platform: "linux", FileSize: 10}); err != nil {
		t.Fatal(err)
	}
	if err := store.RecordTask(ctx, catalog.TaskRecord{ID: "t", Status: "failed"}); err != nil {
		t.Fatal(err)
	}
	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Browsers != 1 || stats.InstalledBytes != 10 || stats.Tasks["failed"] != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if !health.DatabaseExists || health.SchemaVersion != 1 || health.IntegrityCheck != "ok" {
		t.Fatalf("unexpected health %+v", health)
	}
}

func TestReopenKeepsData(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
	store, err := catalog.Open(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.SetConfig(context.Background(), "k", "v"); err != nil {
		t.Fatal(err)
	}
	store.Close()

	reopened, err := catalog.Open(cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if v, ok, _ := reopened.GetConfig(context.Background(), "k"); !ok || v != "v" {
		t.Fatalf("value lost across reopen: %q", v)
	}
}
