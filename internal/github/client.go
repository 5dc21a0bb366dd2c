// Package github is the tracker client: issue creation and comment
// posting against the GitHub API, authenticated per repository with
// either a configured token or a GitHub App installation token.
package github

import (
	"context"
	"fmt"

	gogithub "github.com/google/go-github/v66/github"

	"github.com/braidchat/octocat/internal/config"
)

// Issue is the transient result of issue creation; the number feeds a
// new watched-thread record, the URL feeds the announcement message.
type Issue struct {
	URL    string
	Number int
}

// Tracker is the outbound tracker contract the router and interpreter
// depend on.
type Tracker interface {
	CreateIssue(ctx context.Context, repo config.RepoConfig, title, body string) (*Issue, error)

	// PostComment returns the id of the created comment so the caller
	// can record it for echo suppression.
	PostComment(ctx context.Context, repo config.RepoConfig, issueNumber int, body string) (int64, error)
}

// Client implements Tracker on go-github.
type Client struct {
	appAuth *AppAuth // nil when all repos use per-repo tokens

	// newAPIClient is swapped in tests to point at a test server.
	newAPIClient func(token string) *gogithub.Client
}

// NewClient creates a tracker client. appAuth may be nil; repos
// without a configured token then fail at call time.
func NewClient(appAuth *AppAuth) *Client {
	return &Client{
		appAuth: appAuth,
		newAPIClient: func(token string) *gogithub.Client {
			return gogithub.NewClient(nil).WithAuthToken(token)
		},
	}
}

// apiClient resolves the credential for a repository and builds an
// authenticated API client. Configured per-repo tokens win over App
// auth.
func (c *Client) apiClient(ctx context.Context, repo config.RepoConfig) (*gogithub.Client, error) {
	if repo.Token != "" {
		return c.newAPIClient(repo.Token), nil
	}
	if c.appAuth == nil {
		return nil, fmt.Errorf("no credentials for %s", repo.FullName())
	}
	token, err := c.appAuth.Token(ctx, repo.FullName())
	if err != nil {
		return nil, fmt.Errorf("app auth for %s: %w", repo.FullName(), err)
	}
	return c.newAPIClient(token), nil
}

func (c *Client) CreateIssue(ctx context.Context, repo config.RepoConfig, title, body string) (*Issue, error) {
	api, err := c.apiClient(ctx, repo)
	if err != nil {
		return nil, err
	}

	created, _, err := api.Issues.Create(ctx, repo.Org, repo.Repo, &gogithub.IssueRequest{
		Title: gogithub.String(title),
		Body:  gogithub.String(body),
	})
	if err != nil {
		return nil, fmt.Errorf("create issue in %s: %w", repo.FullName(), err)
	}

	return &Issue{
		URL:    created.GetHTMLURL(),
		Number: created.GetNumber(),
	}, nil
}

func (c *Client) PostComment(ctx context.Context, repo config.RepoConfig, issueNumber int, body string) (int64, error) {
	api, err := c.apiClient(ctx, repo)
	if err != nil {
		return 0, err
	}

	comment, _, err := api.Issues.CreateComment(ctx, repo.Org, repo.Repo, issueNumber, &gogithub.IssueComment{
		Body: gogithub.String(body),
	})
	if err != nil {
		return 0, fmt.Errorf("comment on %s#%d: %w", repo.FullName(), issueNumber, err)
	}

	return comment.GetID(), nil
}
