package model

import "time"

// KPIFilter narrows every KPI query. Nil fields are not applied.
type KPIFilter struct {
	From         *time.Time `json:"from,omitempty"`
	To           *time.Time `json:"to,omitempty"`
	RepositoryID *int64     `json:"repository_id,omitempty"`
	DeveloperID  *int64     `json:"developer_id,omitempty"`
	TeamID       *int64     `json:"team_id,omitempty"`
	RoleID       *int64     `json:"role_id,omitempty"`
	StackID      *int64     `json:"stack_id,omitempty"`
}

// KPISummary holds headline totals.
type KPISummary struct {
	TotalPullRequests     int      `json:"total_pull_requests"`
	ActivePullRequests    int      `json:"active_pull_requests"`
	CompletedPullRequests int      `json:"completed_pull_requests"`
	ClosedPullRequests    int      `json:"closed_pull_requests"`
	AvgCycleTimeDays      *float64 `json:"avg_cycle_time_days"`
	TotalCommits          int      `json:"total_commits"`
	TotalReviews          int      `json:"total_reviews"`
	TotalComments         int      `json:"total_comments"`
	ActiveDevelopers      int      `json:"active_developers"`
}

// LabelCount is one bar or slice in a categorical chart.
type LabelCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// CycleTimePoint is one period of the cycle time trend.
type CycleTimePoint struct {
	Period           string  `json:"period"`
	AvgCycleTimeDays float64 `json:"avg_cycle_time_days"`
	Completed        int     `json:"completed"`
}

// CodeChangePoint is one period of the code churn trend.
type CodeChangePoint struct {
	Period       string `json:"period"`
	LinesAdded   int    `json:"lines_added"`
	LinesDeleted int    `json:"lines_deleted"`
}

// DeveloperActivity aggregates one developer's contributions.
type DeveloperActivity struct {
	DeveloperID  int64  `json:"developer_id"`
	Name         string `json:"name"`
	TeamID       *int64 `json:"-"`
	RoleID       *int64 `json:"-"`
	StackID      *int64 `json:"-"`
	Team         string `json:"team"`
	Role         string `json:"role"`
	Stack        string `json:"stack"`
	PullRequests int    `json:"pull_requests"`
	Commits      int    `json:"commits"`
	Reviews      int    `json:"reviews"`
	Comments     int    `json:"comments"`
	LinesAdded   int    `json:"lines_added"`
	LinesDeleted int    `json:"lines_deleted"`
}

// DimensionActivity aggregates activity for one team, role or stack.
type DimensionActivity struct {
	DimensionID      *int64   `json:"dimension_id"`
	Name             string   `json:"name"`
	Developers       int      `json:"developers"`
	PullRequests     int      `json:"pull_requests"`
	AvgCycleTimeDays *float64 `json:"avg_cycle_time_days"`
}
