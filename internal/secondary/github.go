package secondary

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"

	"github.com/deskhand/deskhand/internal/models"
)

// issuesService abstracts the go-github Issues methods we use, enabling
// test mocks.
type issuesService interface {
	Create(ctx context.Context, owner, repo string, issue *github.IssueRequest) (*github.Issue, *github.Response, error)
	CreateComment(ctx context.Context, owner, repo string, number int, comment *github.IssueComment) (*github.IssueComment, *github.Response, error)
	Edit(ctx context.Context, owner, repo string, number int, issue *github.IssueRequest) (*github.Issue, *github.Response, error)
}

// GitHub is a Sync mirroring tickets as issues in a GitHub repository.
// Issue references are the issue number as a decimal string.
type GitHub struct {
	issues issuesService
	owner  string
	repo   string
	labels []string
}

// GitHubOptions configures a GitHub Sync.
type GitHubOptions struct {
	Token  string   // personal access token or app installation token
	Owner  string   // repository owner
	Repo   string   // repository name
	Labels []string // labels applied to mirrored issues; optional
}

// NewGitHub creates a GitHub Sync.
func NewGitHub(ctx context.Context, opts GitHubOptions) (*GitHub, error) {
	if opts.Token == "" {
		return nil, errors.New("secondary: github token is required")
	}
	if opts.Owner == "" || opts.Repo == "" {
		return nil, errors.New("secondary: github owner and repo are required")
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token})
	client := github.NewClient(oauth2.NewClient(ctx, ts))
	return &GitHub{
		issues: client.Issues,
		owner:  opts.Owner,
		repo:   opts.Repo,
		labels: opts.Labels,
	}, nil
}

// CreateIssue implements Sync.
func (g *GitHub) CreateIssue(ctx context.Context, primaryNumber, summary, description string) (string, error) {
	req := &github.IssueRequest{
		Title: github.String(TitlePrefix(primaryNumber, summary)),
		Body:  github.String(description),
	}
	if len(g.labels) > 0 {
		req.Labels = &g.labels
	}
	issue, _, err := g.issues.Create(ctx, g.owner, g.repo, req)
	if err != nil {
		return "", fmt.Errorf("secondary: create github issue for %s: %w", primaryNumber, err)
	}
	return strconv.Itoa(issue.GetNumber()), nil
}

// Propagate implements Sync. Status changes become issue comments, and a
// terminal status additionally closes the issue.
func (g *GitHub) Propagate(ctx context.Context, ref, primaryNumber string, status models.Status) error {
	number, err := strconv.Atoi(ref)
	if err != nil {
		return fmt.Errorf("secondary: bad github issue ref %q for %s", ref, primaryNumber)
	}

	comment := &github.IssueComment{
		Body: github.String(fmt.Sprintf("%s is now **%s**.", primaryNumber, status.Name())),
	}
	if _, _, err := g.issues.CreateComment(ctx, g.owner, g.repo, number, comment); err != nil {
		return fmt.Errorf("secondary: comment on issue #%d: %w", number, err)
	}

	if status.Terminal() {
		req := &github.IssueRequest{State: github.String("closed")}
		if _, _, err := g.issues.Edit(ctx, g.owner, g.repo, number, req); err != nil {
			return fmt.Errorf("secondary: close issue #%d: %w", number, err)
		}
	}
	return nil
}
