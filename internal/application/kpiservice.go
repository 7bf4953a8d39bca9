package application

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"

	"github.com/ericfisherdev/devpulse/internal/domain/model"
	"github.com/ericfisherdev/devpulse/internal/domain/port/driven"
	"github.com/ericfisherdev/devpulse/internal/metrics"
)

const (
	// DefaultKPICacheTTL is how long KPI results are served from cache.
	DefaultKPICacheTTL = 5 * time.Minute

	unassignedLabel = "Unassigned"
)

// KPIService shapes aggregate queries into chart-ready results. Most results
// are cached for a fixed TTL and are never invalidated early, so charts may
// lag a finished sync by up to one TTL.
type KPIService struct {
	kpiStore       driven.KPIStore
	dimensionStore driven.DimensionStore
	cache          driven.Cache
	ttl            time.Duration
}

// NewKPIService creates a KPIService. A zero ttl uses DefaultKPICacheTTL.
func NewKPIService(kpiStore driven.KPIStore, dimensionStore driven.DimensionStore, cache driven.Cache, ttl time.Duration) *KPIService {
	if ttl <= 0 {
		ttl = DefaultKPICacheTTL
	}
	return &KPIService{
		kpiStore:       kpiStore,
		dimensionStore: dimensionStore,
		cache:          cache,
		ttl:            ttl,
	}
}

// KPICacheKey returns the cache key of a method and filter: the method name
// plus a hash of the whole filter payload.
func KPICacheKey(method string, f model.KPIFilter) string {
	payload, _ := json.Marshal(f)
	sum := sha256.Sum256(payload)
	return "kpi:" + method + ":" + hex.EncodeToString(sum[:])
}

// cached serves method from cache, computing and storing it on a miss. Cache
// errors are logged and never fail the request.
func cached[T any](ctx context.Context, s *KPIService, method string, f model.KPIFilter, compute func() (T, error)) (T, error) {
	key := KPICacheKey(method, f)

	var hit T
	found, err := s.cache.Get(ctx, key, &hit)
	if err != nil {
		slog.Warn("kpi cache read failed", "method", method, "error", err)
	}
	metrics.RecordKPICache(method, found && err == nil)
	if found && err == nil {
		return hit, nil
	}

	result, err := compute()
	if err != nil {
		var zero T
		return zero, err
	}

	if err := s.cache.Set(ctx, key, result, s.ttl); err != nil {
		slog.Warn("kpi cache write failed", "method", method, "error", err)
	}
	return result, nil
}

// Summary returns the headline totals.
func (s *KPIService) Summary(ctx context.Context, f model.KPIFilter) (model.KPISummary, error) {
	return cached(ctx, s, "summary", f, func() (model.KPISummary, error) {
		summary, err := s.kpiStore.Summary(ctx, f)
		if err != nil {
			return model.KPISummary{}, fmt.Errorf("kpi summary: %w", err)
		}
		return summary, nil
	})
}

// PullRequestStatus returns the pull request count of every status,
// including statuses with no pull requests.
func (s *KPIService) PullRequestStatus(ctx context.Context, f model.KPIFilter) ([]model.LabelCount, error) {
	return cached(ctx, s, "pull_request_status", f, func() ([]model.LabelCount, error) {
		counts, err := s.kpiStore.PullRequestStatusCounts(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("kpi pull request status: %w", err)
		}

		result := make([]model.LabelCount, 0, len(model.AllPRStatuses))
		for _, status := range model.AllPRStatuses {
			result = append(result, model.LabelCount{Label: string(status), Count: counts[status]})
		}
		return result, nil
	})
}

// CycleTimeTrend returns the average cycle time per ISO week.
func (s *KPIService) CycleTimeTrend(ctx context.Context, f model.KPIFilter) ([]model.CycleTimePoint, error) {
	return cached(ctx, s, "cycle_time", f, func() ([]model.CycleTimePoint, error) {
		points, err := s.kpiStore.CycleTimeByWeek(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("kpi cycle time: %w", err)
		}
		if points == nil {
			points = []model.CycleTimePoint{}
		}
		return points, nil
	})
}

// DeveloperActivity returns per-developer contribution counts with the
// team, role and stack names resolved.
func (s *KPIService) DeveloperActivity(ctx context.Context, f model.KPIFilter) ([]model.DeveloperActivity, error) {
	rows, err := s.kpiStore.DeveloperActivity(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("kpi developer activity: %w", err)
	}

	names := make(map[model.DimensionKind]map[int64]string, 3)
	for _, kind := range []model.DimensionKind{model.DimensionTeam, model.DimensionRole, model.DimensionStack} {
		dims, err := s.dimensionStore.List(ctx, kind)
		if err != nil {
			return nil, fmt.Errorf("list %ss: %w", kind, err)
		}
		byID := make(map[int64]string, len(dims))
		for _, d := range dims {
			byID[d.ID] = d.Name
		}
		names[kind] = byID
	}

	resolve := func(kind model.DimensionKind, id *int64) string {
		if id == nil {
			return unassignedLabel
		}
		if name, ok := names[kind][*id]; ok {
			return name
		}
		return unassignedLabel
	}

	for i := range rows {
		rows[i].Team = resolve(model.DimensionTeam, rows[i].TeamID)
		rows[i].Role = resolve(model.DimensionRole, rows[i].RoleID)
		rows[i].Stack = resolve(model.DimensionStack, rows[i].StackID)
	}

	if rows == nil {
		rows = []model.DeveloperActivity{}
	}
	return rows, nil
}

// DimensionActivity returns activity grouped by team, role or stack.
// Developers without an assignment are grouped under "Unassigned".
func (s *KPIService) DimensionActivity(ctx context.Context, kind model.DimensionKind, f model.KPIFilter) ([]model.DimensionActivity, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("dimension %q: %w", kind, ErrValidation)
	}

	return cached(ctx, s, "dimension_"+string(kind), f, func() ([]model.DimensionActivity, error) {
		rows, err := s.kpiStore.DimensionActivity(ctx, kind, f)
		if err != nil {
			return nil, fmt.Errorf("kpi %s activity: %w", kind, err)
		}

		for i := range rows {
			if rows[i].DimensionID == nil || rows[i].Name == "" {
				rows[i].Name = unassignedLabel
			}
		}
		if rows == nil {
			rows = []model.DimensionActivity{}
		}
		return rows, nil
	})
}

// ReviewVotes returns the review count of every review state.
func (s *KPIService) ReviewVotes(ctx context.Context, f model.KPIFilter) ([]model.LabelCount, error) {
	return cached(ctx, s, "review_votes", f, func() ([]model.LabelCount, error) {
		counts, err := s.kpiStore.ReviewStateCounts(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("kpi review votes: %w", err)
		}

		result := make([]model.LabelCount, 0, len(model.AllReviewStates))
		for _, state := range model.AllReviewStates {
			result = append(result, model.LabelCount{Label: string(state), Count: counts[state]})
		}
		return result, nil
	})
}

// CodeChangeTrend returns lines added and deleted per ISO week.
func (s *KPIService) CodeChangeTrend(ctx context.Context, f model.KPIFilter) ([]model.CodeChangePoint, error) {
	return cached(ctx, s, "code_changes", f, func() ([]model.CodeChangePoint, error) {
		points, err := s.kpiStore.CodeChangesByWeek(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("kpi code changes: %w", err)
		}
		if points == nil {
			points = []model.CodeChangePoint{}
		}
		return points, nil
	})
}
