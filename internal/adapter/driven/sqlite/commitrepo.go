package sqlite

import (
	"context"
	"fmt"

	"github.com/ericfisherdev/devpulse/internal/domain/model"
	"github.com/ericfisherdev/devpulse/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CommitStore = (*CommitRepo)(nil)

// CommitRepo is the SQLite implementation of the CommitStore port interface.
type CommitRepo struct {
	db *DB
}

// NewCommitRepo creates a new CommitRepo backed by the given DB.
func NewCommitRepo(db *DB) *CommitRepo {
	return &CommitRepo{db: db}
}

// Upsert inserts or updates a commit keyed by hash.
func (r *CommitRepo) Upsert(ctx context.Context, c model.Commit) error {
	const query = `
		INSERT INTO commits (
			repository_id, hash, message, author_id, authored_at, url,
			changes_added, changes_edited, changes_deleted
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(hash) DO UPDATE SET
			message = excluded.message,
			author_id = excluded.author_id,
			authored_at = excluded.authored_at,
			url = excluded.url,
			changes_added = excluded.changes_added,
			changes_edited = excluded.changes_edited,
			changes_deleted = excluded.changes_deleted
	`

	_, err := r.db.Writer.ExecContext(ctx, query,
		c.RepositoryID, c.Hash, c.Message, nullInt64(c.AuthorID), formatTime(c.AuthoredAt), c.URL,
		c.ChangesAdded, c.ChangesEdited, c.ChangesDeleted,
	)
	if err != nil {
		return fmt.Errorf("upsert commit %s: %w", c.Hash, err)
	}

	return nil
}

// CountByRepository returns the number of commits stored for a repository.
func (r *CommitRepo) CountByRepository(ctx context.Context, repoID int64) (int, error) {
	const query = `SELECT COUNT(*) FROM commits WHERE repository_id = ?`

	var n int
	if err := r.db.Reader.QueryRowContext(ctx, query, repoID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count commits of repository %d: %w", repoID, err)
	}
	return n, nil
}
