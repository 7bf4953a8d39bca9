package driven

import (
	"context"

	"github.com/ericfisherdev/devpulse/internal/domain/model"
)

// ReviewStore defines the driven port for persisting reviews and comments.
// Both upserts are keyed by ExternalID.
type ReviewStore interface {
	UpsertReview(ctx context.Context, review model.Review) error
	UpsertComment(ctx context.Context, comment model.Comment) error
	GetReviewsByPR(ctx context.Context, prID int64) ([]model.Review, error)
	GetCommentsByPR(ctx context.Context, prID int64) ([]model.Comment, error)
}
