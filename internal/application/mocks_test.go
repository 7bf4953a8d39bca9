package application_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/ericfisherdev/devpulse/internal/domain/model"
	"github.com/ericfisherdev/devpulse/internal/domain/port/driven"
)

// --- Remote client ---

type mockGitClient struct {
	validate    func(ctx context.Context) error
	listPRs     func(ctx context.Context, q driven.PageQuery) ([]model.PullRequest, error)
	getPR       func(number int) (model.PullRequest, error)
	listCommits func(ctx context.Context, q driven.PageQuery) ([]model.Commit, error)
	reviews     func(number int) ([]model.Review, error)
	comments    func(number int) ([]model.Comment, error)
	files       func(number int) ([]model.FileChange, error)

	mu        sync.Mutex
	prQueries []driven.PageQuery
}

func (m *mockGitClient) ValidateConnection(ctx context.Context) error {
	if m.validate == nil {
		return nil
	}
	return m.validate(ctx)
}

func (m *mockGitClient) ListProjects(_ context.Context) ([]model.RemoteProject, error) {
	return []model.RemoteProject{{ID: "p1", Name: "Platform"}}, nil
}

func (m *mockGitClient) ListRepositories(_ context.Context, project string) ([]model.RemoteRepository, error) {
	return []model.RemoteRepository{{ID: "r1", Name: "api", Project: project}}, nil
}

func (m *mockGitClient) ListPullRequests(ctx context.Context, _ driven.RepoRef, q driven.PageQuery) ([]model.PullRequest, error) {
	m.mu.Lock()
	m.prQueries = append(m.prQueries, q)
	m.mu.Unlock()

	if m.listPRs == nil {
		return nil, nil
	}
	return m.listPRs(ctx, q)
}

func (m *mockGitClient) GetPullRequest(_ context.Context, _ driven.RepoRef, number int) (model.PullRequest, error) {
	if m.getPR == nil {
		return model.PullRequest{}, fmt.Errorf("pull request %d: %w", number, driven.ErrNotFound)
	}
	return m.getPR(number)
}

func (m *mockGitClient) queries() []driven.PageQuery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]driven.PageQuery(nil), m.prQueries...)
}

func (m *mockGitClient) ListPullRequestReviews(_ context.Context, _ driven.RepoRef, number int) ([]model.Review, error) {
	if m.reviews == nil {
		return nil, nil
	}
	return m.reviews(number)
}

func (m *mockGitClient) ListPullRequestComments(_ context.Context, _ driven.RepoRef, number int) ([]model.Comment, error) {
	if m.comments == nil {
		return nil, nil
	}
	return m.comments(number)
}

func (m *mockGitClient) ListPullRequestFileChanges(_ context.Context, _ driven.RepoRef, number int) ([]model.FileChange, error) {
	if m.files == nil {
		return nil, nil
	}
	return m.files(number)
}

func (m *mockGitClient) ListCommits(ctx context.Context, _ driven.RepoRef, q driven.PageQuery) ([]model.Commit, error) {
	if m.listCommits == nil {
		return nil, nil
	}
	return m.listCommits(ctx, q)
}

// staticClients hands out the same client for every repository.
type staticClients struct {
	client driven.GitClient
	err    error
}

func (s staticClients) ForRepository(_ context.Context, _ model.Repository) (driven.GitClient, error) {
	return s.client, s.err
}

// --- Repositories and jobs ---

type mockRepoStore struct {
	mu    sync.Mutex
	repos map[int64]model.Repository
}

func newMockRepoStore(repos ...model.Repository) *mockRepoStore {
	m := &mockRepoStore{repos: make(map[int64]model.Repository)}
	for _, r := range repos {
		m.repos[r.ID] = r
	}
	return m
}

func (m *mockRepoStore) Create(_ context.Context, repo model.Repository) (model.Repository, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	repo.ID = int64(len(m.repos) + 1)
	m.repos[repo.ID] = repo
	return repo, nil
}

func (m *mockRepoStore) Update(_ context.Context, repo model.Repository) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.repos[repo.ID]; !ok {
		return driven.ErrRepoNotFound
	}
	m.repos[repo.ID] = repo
	return nil
}

func (m *mockRepoStore) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.repos, id)
	return nil
}

func (m *mockRepoStore) GetByID(_ context.Context, id int64) (*model.Repository, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.repos[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *mockRepoStore) ListAll(_ context.Context) ([]model.Repository, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Repository, 0, len(m.repos))
	for _, r := range m.repos {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockRepoStore) UpdateLastSyncAt(_ context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.repos[id]
	r.LastSyncAt = &at
	m.repos[id] = r
	return nil
}

func (m *mockRepoStore) lastSyncAt(id int64) *time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.repos[id].LastSyncAt
}

type mockJobStore struct {
	mu   sync.Mutex
	jobs []model.SyncJob
}

func (m *mockJobStore) Create(_ context.Context, repoID int64, syncType model.SyncType) (model.SyncJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job := model.SyncJob{
		ID:           int64(len(m.jobs) + 1),
		RepositoryID: repoID,
		Status:       model.SyncStatusPending,
		SyncType:     syncType,
		CreatedAt:    time.Now().UTC(),
	}
	m.jobs = append(m.jobs, job)
	return job, nil
}

// transition applies fn to a non-terminal job and reports whether it did.
func (m *mockJobStore) transition(id int64, fn func(j *model.SyncJob)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.jobs {
		if m.jobs[i].ID == id && !m.jobs[i].Status.IsTerminal() {
			fn(&m.jobs[i])
			return true
		}
	}
	return false
}

func (m *mockJobStore) MarkRunning(_ context.Context, id int64, startedAt time.Time) (bool, error) {
	return m.transition(id, func(j *model.SyncJob) {
		j.Status = model.SyncStatusRunning
		j.StartedAt = &startedAt
	}), nil
}

func (m *mockJobStore) Complete(_ context.Context, id int64, r model.SyncResult, at time.Time) (bool, error) {
	return m.transition(id, func(j *model.SyncJob) {
		j.Status = model.SyncStatusCompleted
		j.CompletedAt = &at
		j.PullRequestsSynced = r.PullRequests
		j.CommitsSynced = r.Commits
		j.ReviewsSynced = r.Reviews
		j.CommentsSynced = r.Comments
		j.ItemsFailed = r.Failed
	}), nil
}

func (m *mockJobStore) Fail(_ context.Context, id int64, message string, at time.Time) (bool, error) {
	return m.transition(id, func(j *model.SyncJob) {
		j.Status = model.SyncStatusFailed
		j.ErrorMessage = message
		j.CompletedAt = &at
	}), nil
}

func (m *mockJobStore) failWhere(match func(model.SyncJob) bool, message string, at time.Time) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for i := range m.jobs {
		if match(m.jobs[i]) && !m.jobs[i].Status.IsTerminal() {
			m.jobs[i].Status = model.SyncStatusFailed
			m.jobs[i].ErrorMessage = message
			m.jobs[i].CompletedAt = &at
			n++
		}
	}
	return n
}

func (m *mockJobStore) FailActiveForRepository(_ context.Context, repoID int64, message string, at time.Time) (int64, error) {
	return m.failWhere(func(j model.SyncJob) bool { return j.RepositoryID == repoID }, message, at), nil
}

func (m *mockJobStore) FailAllActive(_ context.Context, message string, at time.Time) (int64, error) {
	return m.failWhere(func(model.SyncJob) bool { return true }, message, at), nil
}

func (m *mockJobStore) GetByID(_ context.Context, id int64) (*model.SyncJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.ID == id {
			return &j, nil
		}
	}
	return nil, nil
}

func (m *mockJobStore) LatestForRepository(_ context.Context, repoID int64) (*model.SyncJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.jobs) - 1; i >= 0; i-- {
		if m.jobs[i].RepositoryID == repoID {
			j := m.jobs[i]
			return &j, nil
		}
	}
	return nil, nil
}

func (m *mockJobStore) ListByRepository(_ context.Context, repoID int64, page model.Page) ([]model.SyncJob, int, error) {
	return m.list(func(j model.SyncJob) bool { return j.RepositoryID == repoID }, page), m.count(func(j model.SyncJob) bool { return j.RepositoryID == repoID }), nil
}

func (m *mockJobStore) List(_ context.Context, status model.SyncStatus, page model.Page) ([]model.SyncJob, int, error) {
	match := func(j model.SyncJob) bool { return status == "" || j.Status == status }
	return m.list(match, page), m.count(match), nil
}

func (m *mockJobStore) list(match func(model.SyncJob) bool, page model.Page) []model.SyncJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []model.SyncJob
	for i := len(m.jobs) - 1; i >= 0; i-- {
		if match(m.jobs[i]) {
			all = append(all, m.jobs[i])
		}
	}
	start := min(page.Offset(), len(all))
	end := min(start+page.Size, len(all))
	return all[start:end]
}

func (m *mockJobStore) count(match func(model.SyncJob) bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, j := range m.jobs {
		if match(j) {
			n++
		}
	}
	return n
}

func (m *mockJobStore) all() []model.SyncJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.SyncJob(nil), m.jobs...)
}

// --- Lock and cache ---

type mockLocker struct {
	mu     sync.Mutex
	leases map[string]string
	seq    int
}

func newMockLocker() *mockLocker {
	return &mockLocker{leases: make(map[string]string)}
}

func (m *mockLocker) Acquire(_ context.Context, key string, _ time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, held := m.leases[key]; held {
		return "", driven.ErrLockHeld
	}
	m.seq++
	lease := "lease-" + strconv.Itoa(m.seq)
	m.leases[key] = lease
	return lease, nil
}

func (m *mockLocker) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.leases, key)
	return nil
}

func (m *mockLocker) ReleaseIfHeld(_ context.Context, key, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.leases[key] != token {
		return false, nil
	}
	delete(m.leases, key)
	return true, nil
}

func (m *mockLocker) IsHeld(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, held := m.leases[key]
	return held, nil
}

type mockCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	getErr  error
}

func newMockCache() *mockCache {
	return &mockCache{entries: make(map[string][]byte)}
}

func (m *mockCache) Get(_ context.Context, key string, dest any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return false, m.getErr
	}
	data, ok := m.entries[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(data, dest)
}

func (m *mockCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = data
	return nil
}

// --- Mirrored data ---

type mockPRStore struct {
	mu        sync.Mutex
	byExtID   map[string]model.PullRequest
	fileStats map[int64]model.FileStats
	failOn    map[string]bool
}

func newMockPRStore() *mockPRStore {
	return &mockPRStore{
		byExtID:   make(map[string]model.PullRequest),
		fileStats: make(map[int64]model.FileStats),
		failOn:    make(map[string]bool),
	}
}

func (m *mockPRStore) Upsert(_ context.Context, pr model.PullRequest) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn[pr.ExternalID] {
		return 0, errors.New("disk full")
	}
	if existing, ok := m.byExtID[pr.ExternalID]; ok {
		pr.ID = existing.ID
	} else {
		pr.ID = int64(len(m.byExtID) + 1)
	}
	m.byExtID[pr.ExternalID] = pr
	return pr.ID, nil
}

func (m *mockPRStore) UpdateFileStats(_ context.Context, prID int64, stats model.FileStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fileStats[prID] = stats
	return nil
}

func (m *mockPRStore) GetByID(_ context.Context, id int64) (*model.PullRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, pr := range m.byExtID {
		if pr.ID == id {
			return &pr, nil
		}
	}
	return nil, nil
}

func (m *mockPRStore) ListByRepository(_ context.Context, _ int64, _ model.Page) ([]model.PullRequest, int, error) {
	return nil, 0, nil
}

func (m *mockPRStore) CountByRepository(_ context.Context, _ int64) (int, error) {
	return m.count(), nil
}

func (m *mockPRStore) ListActiveNumbers(_ context.Context, repoID int64) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	numbers := []int{}
	for _, pr := range m.byExtID {
		if pr.RepositoryID == repoID && pr.Status == model.PRStatusActive {
			numbers = append(numbers, pr.Number)
		}
	}
	sort.Ints(numbers)
	return numbers, nil
}

func (m *mockPRStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byExtID)
}

func (m *mockPRStore) get(externalID string) model.PullRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byExtID[externalID]
}

type mockCommitStore struct {
	mu     sync.Mutex
	byHash map[string]model.Commit
}

func newMockCommitStore() *mockCommitStore {
	return &mockCommitStore{byHash: make(map[string]model.Commit)}
}

func (m *mockCommitStore) Upsert(_ context.Context, c model.Commit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byHash[c.Hash] = c
	return nil
}

func (m *mockCommitStore) CountByRepository(_ context.Context, _ int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byHash), nil
}

type mockReviewStore struct {
	mu       sync.Mutex
	reviews  map[string]model.Review
	comments map[string]model.Comment
}

func newMockReviewStore() *mockReviewStore {
	return &mockReviewStore{reviews: make(map[string]model.Review), comments: make(map[string]model.Comment)}
}

func (m *mockReviewStore) UpsertReview(_ context.Context, r model.Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reviews[r.ExternalID] = r
	return nil
}

func (m *mockReviewStore) UpsertComment(_ context.Context, c model.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.comments[c.ExternalID] = c
	return nil
}

func (m *mockReviewStore) GetReviewsByPR(_ context.Context, _ int64) ([]model.Review, error) {
	return nil, nil
}

func (m *mockReviewStore) GetCommentsByPR(_ context.Context, _ int64) ([]model.Comment, error) {
	return nil, nil
}

func (m *mockReviewStore) counts() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reviews), len(m.comments)
}

// --- People and classification ---

type mockDeveloperStore struct {
	mu   sync.Mutex
	devs []model.Developer
}

func (m *mockDeveloperStore) FindOrCreate(_ context.Context, identity model.RemoteIdentity) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := identity.Key()
	for _, d := range m.devs {
		if d.Login == key {
			return d.ID, nil
		}
	}
	d := model.Developer{ID: int64(len(m.devs) + 1), Login: key, DisplayName: identity.DisplayName, Email: identity.Email, RemoteID: identity.RemoteID}
	m.devs = append(m.devs, d)
	return d.ID, nil
}

func (m *mockDeveloperStore) Create(_ context.Context, dev model.Developer) (model.Developer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dev.ID = int64(len(m.devs) + 1)
	m.devs = append(m.devs, dev)
	return dev, nil
}

func (m *mockDeveloperStore) Update(_ context.Context, _ model.Developer) error { return nil }
func (m *mockDeveloperStore) Delete(_ context.Context, _ int64) error { return nil }

func (m *mockDeveloperStore) GetByID(_ context.Context, id int64) (*model.Developer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.devs {
		if d.ID == id {
			return &d, nil
		}
	}
	return nil, nil
}

func (m *mockDeveloperStore) List(_ context.Context, _ model.DeveloperFilter) ([]model.Developer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Developer(nil), m.devs...), nil
}

func (m *mockDeveloperStore) FindByEmailOrRemoteID(_ context.Context, email, remoteID string) (*model.Developer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.devs {
		if (email != "" && strings.EqualFold(d.Email, email)) || (remoteID != "" && d.RemoteID == remoteID) {
			return &d, nil
		}
	}
	return nil, nil
}

func (m *mockDeveloperStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.devs)
}

type mockDimensionStore struct {
	dims map[model.DimensionKind][]model.Dimension
}

func (m *mockDimensionStore) Create(_ context.Context, d model.Dimension) (model.Dimension, error) {
	return d, nil
}
func (m *mockDimensionStore) Update(_ context.Context, _ model.Dimension) error { return nil }
func (m *mockDimensionStore) Delete(_ context.Context, _ model.DimensionKind, _ int64) error {
	return nil
}
func (m *mockDimensionStore) Get(_ context.Context, _ model.DimensionKind, _ int64) (*model.Dimension, error) {
	return nil, nil
}
func (m *mockDimensionStore) List(_ context.Context, kind model.DimensionKind) ([]model.Dimension, error) {
	return m.dims[kind], nil
}

type mockKPIStore struct {
	mu    sync.Mutex
	calls map[string]int

	summary     model.KPISummary
	prStatus    map[model.PRStatus]int
	reviewState map[model.ReviewState]int
	developers  []model.DeveloperActivity
	dimensions  []model.DimensionActivity
	err         error
}

func (m *mockKPIStore) record(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[name]++
}

func (m *mockKPIStore) callCount(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[name]
}

func (m *mockKPIStore) Summary(_ context.Context, _ model.KPIFilter) (model.KPISummary, error) {
	m.record("summary")
	return m.summary, m.err
}

func (m *mockKPIStore) PullRequestStatusCounts(_ context.Context, _ model.KPIFilter) (map[model.PRStatus]int, error) {
	m.record("status")
	return m.prStatus, m.err
}

func (m *mockKPIStore) CycleTimeByWeek(_ context.Context, _ model.KPIFilter) ([]model.CycleTimePoint, error) {
	m.record("cycle")
	return nil, m.err
}

func (m *mockKPIStore) DeveloperActivity(_ context.Context, _ model.KPIFilter) ([]model.DeveloperActivity, error) {
	m.record("developers")
	return m.developers, m.err
}

func (m *mockKPIStore) DimensionActivity(_ context.Context, _ model.DimensionKind, _ model.KPIFilter) ([]model.DimensionActivity, error) {
	m.record("dimension")
	return m.dimensions, m.err
}

func (m *mockKPIStore) ReviewStateCounts(_ context.Context, _ model.KPIFilter) (map[model.ReviewState]int, error) {
	m.record("reviews")
	return m.reviewState, m.err
}

func (m *mockKPIStore) CodeChangesByWeek(_ context.Context, _ model.KPIFilter) ([]model.CodeChangePoint, error) {
	m.record("code")
	return nil, m.err
}

// --- Accounts ---

type mockUserStore struct {
	mu      sync.Mutex
	users   map[int64]model.User
	touched map[int64]time.Time
}

func newMockUserStore(users ...model.User) *mockUserStore {
	m := &mockUserStore{users: make(map[int64]model.User), touched: make(map[int64]time.Time)}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *mockUserStore) Create(_ context.Context, u model.User) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return model.User{}, driven.ErrAlreadyExists
		}
	}
	u.ID = int64(len(m.users) + 1)
	m.users[u.ID] = u
	return u, nil
}

func (m *mockUserStore) Update(_ context.Context, u model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; !ok {
		return driven.ErrNotFound
	}
	m.users[u.ID] = u
	return nil
}

func (m *mockUserStore) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return driven.ErrNotFound
	}
	delete(m.users, id)
	return nil
}

func (m *mockUserStore) GetByID(_ context.Context, id int64) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (m *mockUserStore) find(match func(model.User) bool) *model.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if match(u) {
			return &u
		}
	}
	return nil
}

func (m *mockUserStore) GetByEmail(_ context.Context, email string) (*model.User, error) {
	return m.find(func(u model.User) bool { return strings.EqualFold(u.Email, email) }), nil
}

func (m *mockUserStore) GetByAzureObjectID(_ context.Context, objectID string) (*model.User, error) {
	if objectID == "" {
		return nil, nil
	}
	return m.find(func(u model.User) bool { return u.AzureObjectID == objectID }), nil
}

func (m *mockUserStore) List(_ context.Context) ([]model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	return out, nil
}

func (m *mockUserStore) TouchLastLogin(_ context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touched[id] = at
	return nil
}

type mockRoleStore struct {
	roles []model.AccessRole
}

func newMockRoleStore() *mockRoleStore {
	return &mockRoleStore{roles: []model.AccessRole{
		{ID: 1, Name: "admin", Permissions: model.AllPermissions},
		{ID: 2, Name: "manager", Permissions: []model.Permission{model.PermKPIsRead, model.PermSyncWrite}},
		{ID: 3, Name: "viewer", Permissions: []model.Permission{model.PermKPIsRead, model.PermSyncRead}},
	}}
}

func (m *mockRoleStore) Create(_ context.Context, role model.AccessRole) (model.AccessRole, error) {
	for _, r := range m.roles {
		if r.Name == role.Name {
			return model.AccessRole{}, driven.ErrAlreadyExists
		}
	}
	role.ID = int64(len(m.roles) + 1)
	m.roles = append(m.roles, role)
	return role, nil
}

func (m *mockRoleStore) Update(_ context.Context, role model.AccessRole) error {
	for i := range m.roles {
		if m.roles[i].ID == role.ID {
			m.roles[i] = role
			return nil
		}
	}
	return driven.ErrNotFound
}

func (m *mockRoleStore) Delete(_ context.Context, id int64) error {
	for i := range m.roles {
		if m.roles[i].ID == id {
			m.roles = append(m.roles[:i], m.roles[i+1:]...)
			return nil
		}
	}
	return driven.ErrNotFound
}

func (m *mockRoleStore) GetByID(_ context.Context, id int64) (*model.AccessRole, error) {
	for _, r := range m.roles {
		if r.ID == id {
			return &r, nil
		}
	}
	return nil, nil
}

func (m *mockRoleStore) GetByName(_ context.Context, name string) (*model.AccessRole, error) {
	for _, r := range m.roles {
		if r.Name == name {
			return &r, nil
		}
	}
	return nil, nil
}

func (m *mockRoleStore) List(_ context.Context) ([]model.AccessRole, error) {
	return m.roles, nil
}

type mockTokenStore struct {
	mu     sync.Mutex
	tokens map[string]model.AuthToken
}

func newMockTokenStore() *mockTokenStore {
	return &mockTokenStore{tokens: make(map[string]model.AuthToken)}
}

func (m *mockTokenStore) Create(_ context.Context, t model.AuthToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[t.ID] = t
	return nil
}

func (m *mockTokenStore) Get(_ context.Context, id string) (*model.AuthToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (m *mockTokenStore) Revoke(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tokens[id]; ok {
		t.Revoked = true
		m.tokens[id] = t
	}
	return nil
}

func (m *mockTokenStore) RevokeAllForUser(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, t := range m.tokens {
		if t.UserID == userID {
			t.Revoked = true
			m.tokens[id] = t
		}
	}
	return nil
}

func (m *mockTokenStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, t := range m.tokens {
		if !t.RefreshExpiresAt.After(now) {
			delete(m.tokens, id)
			n++
		}
	}
	return n, nil
}

func (m *mockTokenStore) activeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tokens {
		if !t.Revoked {
			n++
		}
	}
	return n
}

type mockIdentityProvider struct {
	profile *model.ExternalIdentity
	err     error
}

func (m *mockIdentityProvider) Profile(_ context.Context, _ string) (*model.ExternalIdentity, error) {
	return m.profile, m.err
}

// --- Configuration ---

type mockConfigStore struct {
	mu     sync.Mutex
	values map[string]string
}

func newMockConfigStore(values map[string]string) *mockConfigStore {
	if values == nil {
		values = make(map[string]string)
	}
	return &mockConfigStore{values: values}
}

func (m *mockConfigStore) Set(_ context.Context, key, plaintext string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = plaintext
	return nil
}

func (m *mockConfigStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key], nil
}

func (m *mockConfigStore) List(_ context.Context) ([]model.ConfigEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.ConfigEntry, 0, len(m.values))
	for k, v := range m.values {
		out = append(out, model.ConfigEntry{Key: k, Value: v})
	}
	return out, nil
}

func (m *mockConfigStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}
