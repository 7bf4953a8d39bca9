package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ericfisherdev/devpulse/internal/domain/model"
	"github.com/ericfisherdev/devpulse/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ReviewStore = (*ReviewRepo)(nil)

// ReviewRepo is the SQLite implementation of the ReviewStore port interface.
type ReviewRepo struct {
	db *DB
}

// NewReviewRepo creates a new ReviewRepo backed by the given DB.
func NewReviewRepo(db *DB) *ReviewRepo {
	return &ReviewRepo{db: db}
}

// UpsertReview inserts or updates a review by its external ID.
func (r *ReviewRepo) UpsertReview(ctx context.Context, review model.Review) error {
	const query = `
		INSERT INTO reviews (external_id, pull_request_id, reviewer_id, vote, state, is_required, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(external_id) DO UPDATE SET
			reviewer_id = excluded.reviewer_id,
			vote = excluded.vote,
			state = excluded.state,
			is_required = excluded.is_required,
			submitted_at = excluded.submitted_at
	`

	_, err := r.db.Writer.ExecContext(ctx, query,
		review.ExternalID, review.PullRequestID, nullInt64(review.ReviewerID), review.Vote,
		string(review.State), boolToInt(review.IsRequired), formatNullTime(review.SubmittedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert review %s: %w", review.ExternalID, err)
	}

	return nil
}

// UpsertComment inserts or updates a comment by its external ID.
func (r *ReviewRepo) UpsertComment(ctx context.Context, comment model.Comment) error {
	const query = `
		INSERT INTO comments (
			external_id, pull_request_id, author_id, thread_id, content, comment_type,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(external_id) DO UPDATE SET
			author_id = excluded.author_id,
			content = excluded.content,
			comment_type = excluded.comment_type,
			updated_at = excluded.updated_at
	`

	updatedAt := comment.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = comment.CreatedAt
	}

	_, err := r.db.Writer.ExecContext(ctx, query,
		comment.ExternalID, comment.PullRequestID, nullInt64(comment.AuthorID), comment.ThreadID,
		comment.Content, comment.CommentType, formatTime(comment.CreatedAt), formatTime(updatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert comment %s: %w", comment.ExternalID, err)
	}

	return nil
}

// GetReviewsByPR returns all reviews of a pull request.
func (r *ReviewRepo) GetReviewsByPR(ctx context.Context, prID int64) ([]model.Review, error) {
	const query = `
		SELECT id, external_id, pull_request_id, reviewer_id, vote, state, is_required, submitted_at
		FROM reviews
		WHERE pull_request_id = ?
		ORDER BY id
	`

	rows, err := r.db.Reader.QueryContext(ctx, query, prID)
	if err != nil {
		return nil, fmt.Errorf("query reviews for PR %d: %w", prID, err)
	}
	defer rows.Close()

	reviews := []model.Review{}
	for rows.Next() {
		var rv model.Review
		var reviewer sql.NullInt64
		var state string
		var isRequired int
		var submittedAt sql.NullString

		if err := rows.Scan(&rv.ID, &rv.ExternalID, &rv.PullRequestID, &reviewer, &rv.Vote, &state, &isRequired, &submittedAt); err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}

		rv.ReviewerID = int64Ptr(reviewer)
		rv.State = model.ReviewState(state)
		rv.IsRequired = isRequired != 0
		if rv.SubmittedAt, err = parseNullTime(submittedAt); err != nil {
			return nil, fmt.Errorf("parse submitted_at: %w", err)
		}

		reviews = append(reviews, rv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reviews: %w", err)
	}

	return reviews, nil
}

// GetCommentsByPR returns all comments of a pull request ordered by creation time.
func (r *ReviewRepo) GetCommentsByPR(ctx context.Context, prID int64) ([]model.Comment, error) {
	const query = `
		SELECT id, external_id, pull_request_id, author_id, thread_id, content, comment_type, created_at, updated_at
		FROM comments
		WHERE pull_request_id = ?
		ORDER BY created_at, id
	`

	rows, err := r.db.Reader.QueryContext(ctx, query, prID)
	if err != nil {
		return nil, fmt.Errorf("query comments for PR %d: %w", prID, err)
	}
	defer rows.Close()

	comments := []model.Comment{}
	for rows.Next() {
		var c model.Comment
		var author sql.NullInt64
		var createdAt, updatedAt string

		if err := rows.Scan(&c.ID, &c.ExternalID, &c.PullRequestID, &author, &c.ThreadID, &c.Content, &c.CommentType, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}

		c.AuthorID = int64Ptr(author)
		if c.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, fmt.Errorf("parse updated_at: %w", err)
		}

		comments = append(comments, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}

	return comments, nil
}
