// Package tracking persists the correlation between chat threads and
// tracker issues, plus the log of comments this service posted itself
// (consulted for echo suppression). It is the only shared mutable
// state in the service; everything else goes through its interface.
package tracking

import (
	"context"
	"errors"
	"fmt"
)

// ErrAlreadyWatched reports an insert that violated the bijection
// between threads and issues. Under concurrent webhook delivery this
// is the normal "someone else tracked it first" outcome, not a fault.
var ErrAlreadyWatched = errors.New("thread or issue is already watched")

// WatchedThread correlates one chat thread with one tracker issue.
// Records are never updated after creation.
type WatchedThread struct {
	ThreadID    string
	Repository  string // "org/repo"
	IssueNumber int
}

// Store is the correlation store interface. Lookup misses return
// (nil, nil): an untracked thread or issue is a normal branch.
type Store interface {
	// AddWatchedThread inserts a correlation record. Returns
	// ErrAlreadyWatched if the thread or the (repository, issue)
	// pair is already tracked.
	AddWatchedThread(ctx context.Context, threadID, repository string, issueNumber int) error

	// ThreadForIssue resolves the thread watching an issue.
	ThreadForIssue(ctx context.Context, repository string, issueNumber int) (*WatchedThread, error)

	// IssueForThread resolves the issue a thread is watching. This is
	// the dispatch discriminator for inbound chat messages.
	IssueForThread(ctx context.Context, threadID string) (*WatchedThread, error)

	// TrackComment records a tracker comment this service created on
	// behalf of a chat message, so its webhook echo can be discarded.
	TrackComment(ctx context.Context, threadID string, commentID int64) error

	// DidWePostComment reports whether a comment id was recorded by
	// TrackComment for the given thread.
	DidWePostComment(ctx context.Context, threadID string, commentID int64) (bool, error)

	Close() error
}

func validateWatch(threadID, repository string, issueNumber int) error {
	if threadID == "" || repository == "" || issueNumber <= 0 {
		return fmt.Errorf("invalid watch record: thread=%q repo=%q issue=%d",
			threadID, repository, issueNumber)
	}
	return nil
}
