package threads

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"chatrelay/pkg/models"
)

type scriptedAPI struct {
	threads []models.Thread
	listErr error
	next    int
}

func (s *scriptedAPI) List(ctx context.Context, owner string) ([]models.Thread, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return append([]models.Thread(nil), s.threads...), nil
}

func (s *scriptedAPI) Create(ctx context.Context, owner, name string) (*models.Thread, error) {
	s.next++
	return &models.Thread{ID: fmt.Sprintf("new%d", s.next), Name: name, Owner: owner, UpdatedTS: 1000}, nil
}

func (s *scriptedAPI) Messages(ctx context.Context, threadID string) ([]models.Message, error) {
	return nil, nil
}

func (s *scriptedAPI) Delete(ctx context.Context, threadID string) error { return nil }

func TestListSortsByRecencyDescending(t *testing.T) {
	api := &scriptedAPI{threads: []models.Thread{
		{ID: "t1", UpdatedTS: 10},
		{ID: "t3", UpdatedTS: 30},
		{ID: "t2", UpdatedTS: 20},
	}}
	s := NewSynchronizer(api)

	got, err := s.List(context.Background(), "alice")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	want := []string{"t3", "t2", "t1"}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d = %s, want %s (full: %+v)", i, got[i].ID, id, got)
		}
	}
}

func TestListKeepsStoreOrderForEqualTimestamps(t *testing.T) {
	api := &scriptedAPI{threads: []models.Thread{
		{ID: "a", UpdatedTS: 50},
		{ID: "b", UpdatedTS: 50},
		{ID: "c", UpdatedTS: 50},
	}}
	s := NewSynchronizer(api)

	got, err := s.List(context.Background(), "alice")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	for i, id := range []string{"a", "b", "c"} {
		if got[i].ID != id {
			t.Fatalf("equal timestamps must keep store order, got %+v", got)
		}
	}
}

func TestCreateInsertsAtHead(t *testing.T) {
	api := &scriptedAPI{threads: []models.Thread{
		{ID: "t1", UpdatedTS: 10},
		{ID: "t2", UpdatedTS: 20},
	}}
	s := NewSynchronizer(api)
	if _, err := s.List(context.Background(), "alice"); err != nil {
		t.Fatalf("list failed: %v", err)
	}

	th, err := s.Create(context.Background(), "alice")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if th.Name != models.DefaultThreadName {
		t.Fatalf("name = %q, want %q", th.Name, models.DefaultThreadName)
	}
	cached := s.Cached("alice")
	if len(cached) != 3 || cached[0].ID != th.ID {
		t.Fatalf("created thread not at head: %+v", cached)
	}
}

func TestListFailureKeepsLastKnownGood(t *testing.T) {
	api := &scriptedAPI{threads: []models.Thread{{ID: "t1", UpdatedTS: 10}}}
	s := NewSynchronizer(api)
	if _, err := s.List(context.Background(), "alice"); err != nil {
		t.Fatalf("list failed: %v", err)
	}

	api.listErr = errors.New("store down")
	if _, err := s.List(context.Background(), "alice"); err == nil {
		t.Fatal("expected list error")
	}
	if cached := s.Cached("alice"); len(cached) != 1 || cached[0].ID != "t1" {
		t.Fatalf("cache lost on failure: %+v", cached)
	}
}

func TestForgetDropsThread(t *testing.T) {
	api := &scriptedAPI{threads: []models.Thread{
		{ID: "t1", UpdatedTS: 10},
		{ID: "t2", UpdatedTS: 20},
	}}
	s := NewSynchronizer(api)
	if _, err := s.List(context.Background(), "alice"); err != nil {
		t.Fatalf("list failed: %v", err)
	}

	s.Forget("alice", "t2")
	if cached := s.Cached("alice"); len(cached) != 1 || cached[0].ID != "t1" {
		t.Fatalf("forget did not drop t2: %+v", cached)
	}
}
