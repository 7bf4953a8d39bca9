package driven

import (
	"context"

	"github.com/ericfisherdev/devpulse/internal/domain/model"
)

// KPIStore defines the driven port for aggregate analytics queries. Every
// method applies the full filter, including the developer population
// restrictions (team, role, stack, developer).
type KPIStore interface {
	Summary(ctx context.Context, f model.KPIFilter) (model.KPISummary, error)
	PullRequestStatusCounts(ctx context.Context, f model.KPIFilter) (map[model.PRStatus]int, error)
	CycleTimeByWeek(ctx context.Context, f model.KPIFilter) ([]model.CycleTimePoint, error)
	DeveloperActivity(ctx context.Context, f model.KPIFilter) ([]model.DeveloperActivity, error)

	// DimensionActivity groups the filtered developer population by kind.
	// Rows for developers without an assignment have a nil DimensionID and an
	// empty Name.
	DimensionActivity(ctx context.Context, kind model.DimensionKind, f model.KPIFilter) ([]model.DimensionActivity, error)

	ReviewStateCounts(ctx context.Context, f model.KPIFilter) (map[model.ReviewState]int, error)
	CodeChangesByWeek(ctx context.Context, f model.KPIFilter) ([]model.CodeChangePoint, error)
}
