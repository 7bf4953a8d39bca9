package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ericfisherdev/devpulse/internal/domain/model"
	"github.com/ericfisherdev/devpulse/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.KPIStore = (*KPIRepo)(nil)

// isoWeek renders a timestamp column as an ISO-8601 week label, e.g. 2024-W07.
func isoWeek(col string) string {
	return `strftime('%G-W%V', ` + col + `)`
}

// KPIRepo is the SQLite implementation of the KPIStore port interface.
// All queries run against the reader pool.
type KPIRepo struct {
	db *DB
}

// NewKPIRepo creates a new KPIRepo backed by the given DB.
func NewKPIRepo(db *DB) *KPIRepo {
	return &KPIRepo{db: db}
}

// conds accumulates AND-ed WHERE conditions with their positional arguments.
type conds struct {
	parts []string
	args  []any
}

func (c *conds) add(cond string, args ...any) {
	c.parts = append(c.parts, cond)
	c.args = append(c.args, args...)
}

func (c *conds) merge(other conds) {
	c.parts = append(c.parts, other.parts...)
	c.args = append(c.args, other.args...)
}

// and renders the conditions joined by AND, or "1 = 1" when empty.
func (c conds) and() string {
	if len(c.parts) == 0 {
		return "1 = 1"
	}
	return strings.Join(c.parts, " AND ")
}

// window restricts a time column and a repository column to the filter.
func window(f model.KPIFilter, timeCol, repoCol string) conds {
	var c conds
	if f.From != nil {
		c.add(timeCol+" >= ?", formatTime(*f.From))
	}
	if f.To != nil {
		c.add(timeCol+" <= ?", formatTime(*f.To))
	}
	if f.RepositoryID != nil {
		c.add(repoCol+" = ?", *f.RepositoryID)
	}
	return c
}

// hasPopulation reports whether the filter restricts the developer population.
func hasPopulation(f model.KPIFilter) bool {
	return f.DeveloperID != nil || f.TeamID != nil || f.RoleID != nil || f.StackID != nil
}

// populationOn restricts a developers-table alias to the filtered population.
func populationOn(f model.KPIFilter, alias string) conds {
	var c conds
	if f.DeveloperID != nil {
		c.add(alias+".id = ?", *f.DeveloperID)
	}
	if f.TeamID != nil {
		c.add(alias+".team_id = ?", *f.TeamID)
	}
	if f.RoleID != nil {
		c.add(alias+".role_id = ?", *f.RoleID)
	}
	if f.StackID != nil {
		c.add(alias+".stack_id = ?", *f.StackID)
	}
	return c
}

// population restricts a developer foreign key column to the filtered
// population. Rows without an author are only kept when no restriction applies.
func population(f model.KPIFilter, col string) conds {
	var c conds
	if !hasPopulation(f) {
		return c
	}
	inner := populationOn(f, "pd")
	c.add(col+" IN (SELECT pd.id FROM developers pd WHERE "+inner.and()+")", inner.args...)
	return c
}

func prConds(f model.KPIFilter) conds {
	c := window(f, "pr.created_at", "pr.repository_id")
	c.merge(population(f, "pr.created_by_id"))
	return c
}

func commitConds(f model.KPIFilter) conds {
	c := window(f, "c.authored_at", "c.repository_id")
	c.merge(population(f, "c.author_id"))
	return c
}

func reviewConds(f model.KPIFilter) conds {
	c := window(f, "pr.created_at", "pr.repository_id")
	c.merge(population(f, "rv.reviewer_id"))
	return c
}

func commentConds(f model.KPIFilter) conds {
	c := window(f, "cm.created_at", "pr.repository_id")
	c.merge(population(f, "cm.author_id"))
	return c
}

// Summary returns headline totals for the filter.
func (r *KPIRepo) Summary(ctx context.Context, f model.KPIFilter) (model.KPISummary, error) {
	var s model.KPISummary
	var avg sql.NullFloat64

	pc := prConds(f)
	prQuery := `
		SELECT COUNT(*),
			COALESCE(SUM(pr.status = 'active'), 0),
			COALESCE(SUM(pr.status = 'completed'), 0),
			COALESCE(SUM(pr.status = 'closed'), 0),
			AVG(pr.cycle_time_days)
		FROM pull_requests pr
		WHERE ` + pc.and()
	err := r.db.Reader.QueryRowContext(ctx, prQuery, pc.args...).Scan(
		&s.TotalPullRequests, &s.ActivePullRequests, &s.CompletedPullRequests, &s.ClosedPullRequests, &avg,
	)
	if err != nil {
		return model.KPISummary{}, fmt.Errorf("summarize pull requests: %w", err)
	}
	s.AvgCycleTimeDays = float64Ptr(avg)

	cc := commitConds(f)
	if err := r.count(ctx, &s.TotalCommits, `SELECT COUNT(*) FROM commits c WHERE `+cc.and(), cc.args); err != nil {
		return model.KPISummary{}, fmt.Errorf("count commits: %w", err)
	}

	rc := reviewConds(f)
	reviewQuery := `SELECT COUNT(*) FROM reviews rv JOIN pull_requests pr ON pr.id = rv.pull_request_id WHERE ` + rc.and()
	if err := r.count(ctx, &s.TotalReviews, reviewQuery, rc.args); err != nil {
		return model.KPISummary{}, fmt.Errorf("count reviews: %w", err)
	}

	mc := commentConds(f)
	commentQuery := `SELECT COUNT(*) FROM comments cm JOIN pull_requests pr ON pr.id = cm.pull_request_id WHERE ` + mc.and()
	if err := r.count(ctx, &s.TotalComments, commentQuery, mc.args); err != nil {
		return model.KPISummary{}, fmt.Errorf("count comments: %w", err)
	}

	activeQuery := `
		SELECT COUNT(*) FROM (
			SELECT pr.created_by_id AS dev FROM pull_requests pr
			WHERE pr.created_by_id IS NOT NULL AND ` + pc.and() + `
			UNION
			SELECT c.author_id FROM commits c
			WHERE c.author_id IS NOT NULL AND ` + cc.and() + `
		)`
	args := append(append([]any{}, pc.args...), cc.args...)
	if err := r.count(ctx, &s.ActiveDevelopers, activeQuery, args); err != nil {
		return model.KPISummary{}, fmt.Errorf("count active developers: %w", err)
	}

	return s, nil
}

func (r *KPIRepo) count(ctx context.Context, dest *int, query string, args []any) error {
	return r.db.Reader.QueryRowContext(ctx, query, args...).Scan(dest)
}

// PullRequestStatusCounts returns the number of pull requests per status.
// Statuses without pull requests are absent from the map.
func (r *KPIRepo) PullRequestStatusCounts(ctx context.Context, f model.KPIFilter) (map[model.PRStatus]int, error) {
	c := prConds(f)
	query := `SELECT pr.status, COUNT(*) FROM pull_requests pr WHERE ` + c.and() + ` GROUP BY pr.status`

	counts := make(map[model.PRStatus]int)
	err := r.groupCounts(ctx, query, c.args, func(label string, n int) {
		counts[model.PRStatus(label)] = n
	})
	if err != nil {
		return nil, fmt.Errorf("count pull requests by status: %w", err)
	}
	return counts, nil
}

// ReviewStateCounts returns the number of reviews per state.
func (r *KPIRepo) ReviewStateCounts(ctx context.Context, f model.KPIFilter) (map[model.ReviewState]int, error) {
	c := reviewConds(f)
	query := `
		SELECT rv.state, COUNT(*)
		FROM reviews rv JOIN pull_requests pr ON pr.id = rv.pull_request_id
		WHERE ` + c.and() + `
		GROUP BY rv.state`

	counts := make(map[model.ReviewState]int)
	err := r.groupCounts(ctx, query, c.args, func(label string, n int) {
		counts[model.ReviewState(label)] = n
	})
	if err != nil {
		return nil, fmt.Errorf("count reviews by state: %w", err)
	}
	return counts, nil
}

func (r *KPIRepo) groupCounts(ctx context.Context, query string, args []any, fn func(string, int)) error {
	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var label string
		var n int
		if err := rows.Scan(&label, &n); err != nil {
			return err
		}
		fn(label, n)
	}
	return rows.Err()
}

// CycleTimeByWeek averages the cycle time of completed pull requests per
// ISO week of completion.
func (r *KPIRepo) CycleTimeByWeek(ctx context.Context, f model.KPIFilter) ([]model.CycleTimePoint, error) {
	c := window(f, "pr.closed_at", "pr.repository_id")
	c.merge(population(f, "pr.created_by_id"))
	c.add("pr.status = ?", string(model.PRStatusCompleted))
	c.add("pr.cycle_time_days IS NOT NULL")

	week := isoWeek("pr.closed_at")
	query := `
		SELECT ` + week + ` AS period, ROUND(AVG(pr.cycle_time_days), 2), COUNT(*)
		FROM pull_requests pr
		WHERE ` + c.and() + `
		GROUP BY period
		ORDER BY period`

	rows, err := r.db.Reader.QueryContext(ctx, query, c.args...)
	if err != nil {
		return nil, fmt.Errorf("query cycle time trend: %w", err)
	}
	defer rows.Close()

	points := []model.CycleTimePoint{}
	for rows.Next() {
		var p model.CycleTimePoint
		if err := rows.Scan(&p.Period, &p.AvgCycleTimeDays, &p.Completed); err != nil {
			return nil, fmt.Errorf("scan cycle time point: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cycle time trend: %w", err)
	}

	return points, nil
}

// CodeChangesByWeek sums pull request line counts per ISO week of creation.
func (r *KPIRepo) CodeChangesByWeek(ctx context.Context, f model.KPIFilter) ([]model.CodeChangePoint, error) {
	c := prConds(f)

	week := isoWeek("pr.created_at")
	query := `
		SELECT ` + week + ` AS period, COALESCE(SUM(pr.lines_added), 0), COALESCE(SUM(pr.lines_deleted), 0)
		FROM pull_requests pr
		WHERE ` + c.and() + `
		GROUP BY period
		ORDER BY period`

	rows, err := r.db.Reader.QueryContext(ctx, query, c.args...)
	if err != nil {
		return nil, fmt.Errorf("query code change trend: %w", err)
	}
	defer rows.Close()

	points := []model.CodeChangePoint{}
	for rows.Next() {
		var p model.CodeChangePoint
		if err := rows.Scan(&p.Period, &p.LinesAdded, &p.LinesDeleted); err != nil {
			return nil, fmt.Errorf("scan code change point: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate code change trend: %w", err)
	}

	return points, nil
}

// DeveloperActivity returns per-developer contribution counts for every
// developer in the filtered population with at least one contribution in
// the window. Dimension names are left for the caller to resolve.
func (r *KPIRepo) DeveloperActivity(ctx context.Context, f model.KPIFilter) ([]model.DeveloperActivity, error) {
	prW := window(f, "pr.created_at", "pr.repository_id")
	commitW := window(f, "c.authored_at", "c.repository_id")
	reviewW := window(f, "pr.created_at", "pr.repository_id")
	commentW := window(f, "cm.created_at", "pr.repository_id")
	pop := populationOn(f, "d")

	query := `
		SELECT * FROM (
			SELECT d.id, d.display_name, d.team_id, d.role_id, d.stack_id,
				(SELECT COUNT(*) FROM pull_requests pr WHERE pr.created_by_id = d.id AND ` + prW.and() + `) AS prs,
				(SELECT COUNT(*) FROM commits c WHERE c.author_id = d.id AND ` + commitW.and() + `) AS commits,
				(SELECT COUNT(*) FROM reviews rv JOIN pull_requests pr ON pr.id = rv.pull_request_id
					WHERE rv.reviewer_id = d.id AND ` + reviewW.and() + `) AS reviews,
				(SELECT COUNT(*) FROM comments cm JOIN pull_requests pr ON pr.id = cm.pull_request_id
					WHERE cm.author_id = d.id AND ` + commentW.and() + `) AS comments,
				(SELECT COALESCE(SUM(pr.lines_added), 0) FROM pull_requests pr WHERE pr.created_by_id = d.id AND ` + prW.and() + `) AS added,
				(SELECT COALESCE(SUM(pr.lines_deleted), 0) FROM pull_requests pr WHERE pr.created_by_id = d.id AND ` + prW.and() + `) AS deleted
			FROM developers d
			WHERE ` + pop.and() + `
		)
		WHERE prs + commits + reviews + comments > 0
		ORDER BY prs DESC, commits DESC, display_name`

	var args []any
	args = append(args, prW.args...)
	args = append(args, commitW.args...)
	args = append(args, reviewW.args...)
	args = append(args, commentW.args...)
	args = append(args, prW.args...)
	args = append(args, prW.args...)
	args = append(args, pop.args...)

	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query developer activity: %w", err)
	}
	defer rows.Close()

	out := []model.DeveloperActivity{}
	for rows.Next() {
		var a model.DeveloperActivity
		var team, role, stack sql.NullInt64
		err := rows.Scan(
			&a.DeveloperID, &a.Name, &team, &role, &stack,
			&a.PullRequests, &a.Commits, &a.Reviews, &a.Comments, &a.LinesAdded, &a.LinesDeleted,
		)
		if err != nil {
			return nil, fmt.Errorf("scan developer activity: %w", err)
		}
		a.TeamID = int64Ptr(team)
		a.RoleID = int64Ptr(role)
		a.StackID = int64Ptr(stack)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate developer activity: %w", err)
	}

	return out, nil
}

// DimensionActivity groups the filtered developer population by team, role
// or stack. The unassigned group has a nil DimensionID and an empty Name.
func (r *KPIRepo) DimensionActivity(ctx context.Context, kind model.DimensionKind, f model.KPIFilter) ([]model.DimensionActivity, error) {
	table, err := dimensionTable(kind)
	if err != nil {
		return nil, err
	}
	col := "d." + string(kind) + "_id"

	prW := window(f, "pr.created_at", "pr.repository_id")
	pop := populationOn(f, "d")

	query := `
		SELECT ` + col + `, COALESCE(dim.name, ''), COUNT(DISTINCT d.id), COUNT(pr.id), ROUND(AVG(pr.cycle_time_days), 2)
		FROM developers d
		LEFT JOIN ` + table + ` dim ON dim.id = ` + col + `
		LEFT JOIN pull_requests pr ON pr.created_by_id = d.id AND ` + prW.and() + `
		WHERE ` + pop.and() + `
		GROUP BY ` + col + `, dim.name
		ORDER BY dim.name IS NULL, dim.name`

	args := append(append([]any{}, prW.args...), pop.args...)

	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s activity: %w", kind, err)
	}
	defer rows.Close()

	out := []model.DimensionActivity{}
	for rows.Next() {
		var a model.DimensionActivity
		var id sql.NullInt64
		var avg sql.NullFloat64
		if err := rows.Scan(&id, &a.Name, &a.Developers, &a.PullRequests, &avg); err != nil {
			return nil, fmt.Errorf("scan %s activity: %w", kind, err)
		}
		a.DimensionID = int64Ptr(id)
		a.AvgCycleTimeDays = float64Ptr(avg)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s activity: %w", kind, err)
	}

	return out, nil
}
