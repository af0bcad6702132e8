package reaper

import (
	"context"
	"testing"
	"time"

	"chatrelay/pkg/config"
	"chatrelay/pkg/models"
	"chatrelay/pkg/store"
	"chatrelay/pkg/threads"
)

type fakeThreads struct {
	threads  map[string][]models.Thread
	messages map[string][]models.Message
	deleted  []string
}

var _ threads.API = (*fakeThreads)(nil)

func (f *fakeThreads) List(ctx context.Context, owner string) ([]models.Thread, error) {
	return f.threads[owner], nil
}

func (f *fakeThreads) Create(ctx context.Context, owner, name string) (*models.Thread, error) {
	return nil, nil
}

func (f *fakeThreads) Messages(ctx context.Context, threadID string) ([]models.Message, error) {
	return f.messages[threadID], nil
}

func (f *fakeThreads) Delete(ctx context.Context, threadID string) error {
	f.deleted = append(f.deleted, threadID)
	return nil
}

func TestRunOnceDeletesOnlyOldEmptyThreads(t *testing.T) {
	if err := store.Open(t.TempDir()); err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.SaveIdentity(models.IdentityRecord{ID: "alice"}); err != nil {
		t.Fatalf("save identity: %v", err)
	}

	now := time.Now().UTC().UnixNano()
	old := now - (48 * time.Hour).Nanoseconds()
	api := &fakeThreads{
		threads: map[string][]models.Thread{
			"alice": {
				{ID: "old-empty", UpdatedTS: old},
				{ID: "old-used", UpdatedTS: old},
				{ID: "fresh-empty", UpdatedTS: now},
			},
		},
		messages: map[string][]models.Message{
			"old-used": {{Role: models.RoleUser, Content: "hi"}},
		},
	}

	if err := RunOnce(context.Background(), 24*time.Hour, api); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(api.deleted) != 1 || api.deleted[0] != "old-empty" {
		t.Fatalf("deleted %v, want only old-empty", api.deleted)
	}
}

func TestStartDisabledIsNoop(t *testing.T) {
	cancel, err := Start(context.Background(), config.ReaperConfig{}, &fakeThreads{})
	if err != nil {
		t.Fatalf("disabled start failed: %v", err)
	}
	cancel()
}

func TestStartRejectsInvalidCron(t *testing.T) {
	cfg := config.ReaperConfig{Enabled: true, Cron: "not a cron"}
	if _, err := Start(context.Background(), cfg, &fakeThreads{}); err == nil {
		t.Fatal("expected invalid cron error")
	}
}
