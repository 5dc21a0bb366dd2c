package tracking

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// schema is applied to every pooled connection. The UNIQUE constraints
// are the authority for the thread↔issue bijection: two racing inserts
// for the same issue resolve here, not in application code.
const schema = `
CREATE TABLE IF NOT EXISTS watched_threads (
	thread_id    TEXT NOT NULL UNIQUE,
	repository   TEXT NOT NULL,
	issue_number INTEGER NOT NULL,
	UNIQUE (repository, issue_number)
);
CREATE TABLE IF NOT EXISTS posted_comments (
	thread_id  TEXT NOT NULL,
	comment_id INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS posted_comments_lookup
	ON posted_comments (thread_id, comment_id);
`

// SQLiteStore is the durable Store implementation. It owns a fixed
// connection pool injected at construction; connections are never
// opened ad hoc.
type SQLiteStore struct {
	pool *sqlitex.Pool
}

// OpenSQLite opens (creating if needed) the correlation database at
// path. Use ":memory:" with PoolSize 1 for tests.
func OpenSQLite(path string, poolSize int) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("tracking: database path is required")
	}
	if poolSize <= 0 {
		poolSize = 4
	}

	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize: poolSize,
		PrepareConn: func(conn *sqlite.Conn) error {
			// WAL keeps concurrent webhook handlers from tripping over
			// each other; losing writers then fail on the UNIQUE
			// constraint instead of on the write lock.
			err := sqlitex.ExecuteTransient(conn, "PRAGMA journal_mode = WAL;", &sqlitex.ExecOptions{
				ResultFunc: func(*sqlite.Stmt) error { return nil },
			})
			if err != nil {
				return err
			}
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("tracking: opening %s: %w", path, err)
	}

	log.Info().Str("path", path).Int("pool_size", poolSize).Msg("correlation store opened")
	return &SQLiteStore{pool: pool}, nil
}

// Close closes the pool, blocking until borrowed connections return.
func (s *SQLiteStore) Close() error {
	return s.pool.Close()
}

func (s *SQLiteStore) AddWatchedThread(ctx context.Context, threadID, repository string, issueNumber int) error {
	if err := validateWatch(threadID, repository, issueNumber); err != nil {
		return err
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("tracking: add watched thread: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT INTO watched_threads (thread_id, repository, issue_number) VALUES (?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{threadID, repository, issueNumber},
		})
	if err != nil {
		if isConstraintViolation(err) {
			return ErrAlreadyWatched
		}
		return fmt.Errorf("tracking: add watched thread: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ThreadForIssue(ctx context.Context, repository string, issueNumber int) (*WatchedThread, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("tracking: thread for issue: %w", err)
	}
	defer s.pool.Put(conn)

	var found *WatchedThread
	err = sqlitex.Execute(conn,
		`SELECT thread_id FROM watched_threads WHERE repository = ? AND issue_number = ?`,
		&sqlitex.ExecOptions{
			Args: []any{repository, issueNumber},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = &WatchedThread{
					ThreadID:    stmt.ColumnText(0),
					Repository:  repository,
					IssueNumber: issueNumber,
				}
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("tracking: thread for issue: %w", err)
	}
	return found, nil
}

func (s *SQLiteStore) IssueForThread(ctx context.Context, threadID string) (*WatchedThread, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("tracking: issue for thread: %w", err)
	}
	defer s.pool.Put(conn)

	var found *WatchedThread
	err = sqlitex.Execute(conn,
		`SELECT repository, issue_number FROM watched_threads WHERE thread_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{threadID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = &WatchedThread{
					ThreadID:    threadID,
					Repository:  stmt.ColumnText(0),
					IssueNumber: stmt.ColumnInt(1),
				}
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("tracking: issue for thread: %w", err)
	}
	return found, nil
}

func (s *SQLiteStore) TrackComment(ctx context.Context, threadID string, commentID int64) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("tracking: track comment: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT INTO posted_comments (thread_id, comment_id) VALUES (?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{threadID, commentID},
		})
	if err != nil {
		return fmt.Errorf("tracking: track comment: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DidWePostComment(ctx context.Context, threadID string, commentID int64) (bool, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return false, fmt.Errorf("tracking: did we post comment: %w", err)
	}
	defer s.pool.Put(conn)

	found := false
	err = sqlitex.Execute(conn,
		`SELECT 1 FROM posted_comments WHERE thread_id = ? AND comment_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{threadID, commentID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				return nil
			},
		})
	if err != nil {
		return false, fmt.Errorf("tracking: did we post comment: %w", err)
	}
	return found, nil
}

func isConstraintViolation(err error) bool {
	switch sqlite.ErrCode(err) {
	case sqlite.ResultConstraintUnique, sqlite.ResultConstraintPrimaryKey:
		return true
	}
	return false
}
