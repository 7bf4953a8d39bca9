package azuredevops

import (
	"strings"
	"time"

	"github.com/ericfisherdev/devpulse/internal/domain/model"
)

// pageSize is the $top used for paginated listings.
const pageSize = 100

// listResponse is the envelope Azure DevOps wraps collections in.
type listResponse[T any] struct {
	Count int `json:"count"`
	Value []T `json:"value"`
}

type project struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type repository struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	DefaultBranch string `json:"defaultBranch"`
	WebURL        string `json:"webUrl"`
	Project       struct {
		Name string `json:"name"`
	} `json:"project"`
}

type identityRef struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	UniqueName  string `json:"uniqueName"`
}

func (i identityRef) toRemote() model.RemoteIdentity {
	login := strings.ToLower(strings.TrimSpace(i.UniqueName))
	var email string
	if strings.Contains(login, "@") {
		email = login
	}
	return model.RemoteIdentity{
		RemoteID:    i.ID,
		Login:       login,
		DisplayName: i.DisplayName,
		Email:       email,
	}
}

type reviewer struct {
	identityRef
	Vote       int  `json:"vote"`
	IsRequired bool `json:"isRequired"`
}

type pullRequest struct {
	PullRequestID int          `json:"pullRequestId"`
	Title         string       `json:"title"`
	Description   string       `json:"description"`
	Status        string       `json:"status"`
	IsDraft       bool         `json:"isDraft"`
	SourceRefName string       `json:"sourceRefName"`
	TargetRefName string       `json:"targetRefName"`
	CreatedBy     *identityRef `json:"createdBy"`
	CreationDate  time.Time    `json:"creationDate"`
	ClosedDate    *time.Time   `json:"closedDate"`
	Reviewers     []reviewer   `json:"reviewers"`
	Repository    struct {
		ID     string `json:"id"`
		WebURL string `json:"webUrl"`
	} `json:"repository"`
}

type commentThread struct {
	ID       int       `json:"id"`
	Comments []comment `json:"comments"`
}

type comment struct {
	ID              int          `json:"id"`
	Author          *identityRef `json:"author"`
	Content         string       `json:"content"`
	CommentType     string       `json:"commentType"`
	PublishedDate   time.Time    `json:"publishedDate"`
	LastUpdatedDate time.Time    `json:"lastUpdatedDate"`
	IsDeleted       bool         `json:"isDeleted"`
}

type commitRef struct {
	CommitID string `json:"commitId"`
}

type iteration struct {
	ID              int        `json:"id"`
	SourceRefCommit *commitRef `json:"sourceRefCommit"`
	TargetRefCommit *commitRef `json:"targetRefCommit"`
	CommonRefCommit *commitRef `json:"commonRefCommit"`
}

type iterationChanges struct {
	ChangeEntries []changeEntry `json:"changeEntries"`
	NextSkip      int           `json:"nextSkip"`
	NextTop       int           `json:"nextTop"`
}

type changeEntry struct {
	ChangeType   string `json:"changeType"`
	OriginalPath string `json:"originalPath"`
	Item         struct {
		Path          string `json:"path"`
		GitObjectType string `json:"gitObjectType"`
		IsFolder      bool   `json:"isFolder"`
	} `json:"item"`
}

type fileDiffsRequest struct {
	BaseVersionCommit   string          `json:"baseVersionCommit"`
	TargetVersionCommit string          `json:"targetVersionCommit"`
	FileDiffParams      []fileDiffParam `json:"fileDiffParams"`
}

type fileDiffParam struct {
	Path         string `json:"path"`
	OriginalPath string `json:"originalPath,omitempty"`
}

type fileDiff struct {
	Path           string          `json:"path"`
	LineDiffBlocks []lineDiffBlock `json:"lineDiffBlocks"`
}

// Line diff block change types.
const (
	lineChangeAdd    = 1
	lineChangeDelete = 2
	lineChangeEdit   = 3
)

type lineDiffBlock struct {
	ChangeType         int `json:"changeType"`
	ModifiedLinesCount int `json:"modifiedLinesCount"`
	OriginalLinesCount int `json:"originalLinesCount"`
}

type gitCommit struct {
	CommitID string `json:"commitId"`
	Comment  string `json:"comment"`
	Author   struct {
		Name  string    `json:"name"`
		Email string    `json:"email"`
		Date  time.Time `json:"date"`
	} `json:"author"`
	ChangeCounts struct {
		Add    int `json:"Add"`
		Edit   int `json:"Edit"`
		Delete int `json:"Delete"`
	} `json:"changeCounts"`
	RemoteURL string `json:"remoteUrl"`
}

// mapStatus maps the Azure DevOps pull request status vocabulary onto the
// local enum. Anything outside it becomes PRStatusUnknown.
func mapStatus(s string) model.PRStatus {
	switch strings.ToLower(s) {
	case "active":
		return model.PRStatusActive
	case "completed":
		return model.PRStatusCompleted
	case "abandoned":
		return model.PRStatusClosed
	default:
		return model.PRStatusUnknown
	}
}

func trimRef(ref string) string {
	return strings.TrimPrefix(ref, "refs/heads/")
}
