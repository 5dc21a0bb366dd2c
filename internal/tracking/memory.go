package tracking

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-memory Store with the same uniqueness rules as
// the SQLite implementation. It backs tests and keeps the router and
// interpreter decoupled from the database.
type MemoryStore struct {
	mu       sync.Mutex
	byThread map[string]*WatchedThread
	byIssue  map[string]*WatchedThread
	comments map[string]struct{}
}

// NewMemoryStore creates an empty in-memory correlation store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byThread: make(map[string]*WatchedThread),
		byIssue:  make(map[string]*WatchedThread),
		comments: make(map[string]struct{}),
	}
}

func issueKey(repository string, issueNumber int) string {
	return fmt.Sprintf("%s#%d", repository, issueNumber)
}

func commentKey(threadID string, commentID int64) string {
	return fmt.Sprintf("%s#%d", threadID, commentID)
}

func (s *MemoryStore) AddWatchedThread(_ context.Context, threadID, repository string, issueNumber int) error {
	if err := validateWatch(threadID, repository, issueNumber); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byThread[threadID]; ok {
		return ErrAlreadyWatched
	}
	if _, ok := s.byIssue[issueKey(repository, issueNumber)]; ok {
		return ErrAlreadyWatched
	}

	wt := &WatchedThread{ThreadID: threadID, Repository: repository, IssueNumber: issueNumber}
	s.byThread[threadID] = wt
	s.byIssue[issueKey(repository, issueNumber)] = wt
	return nil
}

func (s *MemoryStore) ThreadForIssue(_ context.Context, repository string, issueNumber int) (*WatchedThread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wt, ok := s.byIssue[issueKey(repository, issueNumber)]
	if !ok {
		return nil, nil
	}
	copied := *wt
	return &copied, nil
}

func (s *MemoryStore) IssueForThread(_ context.Context, threadID string) (*WatchedThread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wt, ok := s.byThread[threadID]
	if !ok {
		return nil, nil
	}
	copied := *wt
	return &copied, nil
}

func (s *MemoryStore) TrackComment(_ context.Context, threadID string, commentID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.comments[commentKey(threadID, commentID)] = struct{}{}
	return nil
}

func (s *MemoryStore) DidWePostComment(_ context.Context, threadID string, commentID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.comments[commentKey(threadID, commentID)]
	return ok, nil
}

// Close is a no-op; present to satisfy Store.
func (s *MemoryStore) Close() error {
	return nil
}
