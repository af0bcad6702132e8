package threads

import (
	"context"
	"sort"
	"sync"

	"chatrelay/pkg/logger"
	"chatrelay/pkg/models"
)

// Synchronizer keeps a per-owner thread collection consistent with the
// store, ordered most-recently-active first. The ordering is a hard
// contract: it drives sidebar presentation and "most recent thread"
// semantics. On any store failure the local collection keeps its
// last-known-good state.
type Synchronizer struct {
	mu    sync.Mutex
	api   API
	lists map[string][]models.Thread
}

func NewSynchronizer(api API) *Synchronizer {
	return &Synchronizer{api: api, lists: make(map[string][]models.Thread)}
}

// List fetches the owner's threads and returns them sorted descending by
// updated timestamp. Equal timestamps keep the store's original order.
func (s *Synchronizer) List(ctx context.Context, owner string) ([]models.Thread, error) {
	ths, err := s.api.List(ctx, owner)
	if err != nil {
		logger.Warn("thread_list_failed", "owner", owner, "error", err)
		return nil, err
	}
	sort.SliceStable(ths, func(i, j int) bool {
		return ths[i].UpdatedTS > ths[j].UpdatedTS
	})
	s.mu.Lock()
	s.lists[owner] = append([]models.Thread(nil), ths...)
	s.mu.Unlock()
	return ths, nil
}

// Create requests a new thread with the default display name and inserts
// it at the head of the local list; it is by definition the most recent,
// so the rest is not re-sorted. The descriptor is returned synchronously
// so the caller can adopt its id before any message round-trip completes.
func (s *Synchronizer) Create(ctx context.Context, owner string) (*models.Thread, error) {
	th, err := s.api.Create(ctx, owner, models.DefaultThreadName)
	if err != nil {
		logger.Warn("thread_create_failed", "owner", owner, "error", err)
		return nil, err
	}
	s.mu.Lock()
	s.lists[owner] = append([]models.Thread{*th}, s.lists[owner]...)
	s.mu.Unlock()
	logger.Info("thread_created", "owner", owner, "thread", th.ID)
	return th, nil
}

// Forget drops a thread from the local collection after a delete.
func (s *Synchronizer) Forget(owner, threadID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.lists[owner]
	for i, th := range list {
		if th.ID == threadID {
			s.lists[owner] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// Cached returns the last-known-good collection for owner.
func (s *Synchronizer) Cached(owner string) []models.Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Thread(nil), s.lists[owner]...)
}
