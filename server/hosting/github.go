package hosting

import (
	"context"
	"net/http"
	"net/url"
	"path"

	"github.com/google/go-github/v54/github"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"

	"github.com/mattermost/mattermost-plugin-mergegate/server/gate"
)

const perPage = 100

// EnterpriseURLs points the client at a GitHub Enterprise installation. Empty values mean github.com.
type EnterpriseURLs struct {
	BaseURL   string
	UploadURL string
}

// NewGitHubClient builds a go-github client authenticated with a static bot token.
func NewGitHubClient(token string, enterprise EnterpriseURLs) (*github.Client, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(context.Background(), ts)

	return getGitHubClient(tc, enterprise)
}

func getGitHubClient(authenticatedClient *http.Client, enterprise EnterpriseURLs) (*github.Client, error) {
	if enterprise.BaseURL == "" || enterprise.UploadURL == "" {
		return github.NewClient(authenticatedClient), nil
	}

	baseURL, err := url.Parse(enterprise.BaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "invalid enterprise base URL")
	}
	baseURL.Path = path.Join(baseURL.Path, "api", "v3")

	uploadURL, err := url.Parse(enterprise.UploadURL)
	if err != nil {
		return nil, errors.Wrap(err, "invalid enterprise upload URL")
	}
	uploadURL.Path = path.Join(uploadURL.Path, "api", "v3")

	return github.NewEnterpriseClient(baseURL.String(), uploadURL.String(), authenticatedClient)
}

// Client implements gate.Client on top of the GitHub REST API.
type Client struct {
	gh *github.Client
}

var _ gate.Client = (*Client)(nil)

func NewClient(gh *github.Client) *Client {
	return &Client{gh: gh}
}

func (c *Client) GetPullRequest(ctx context.Context, project gate.Project, number int) (*gate.PullRequest, error) {
	pr, _, err := c.gh.PullRequests.Get(ctx, project.Owner, project.Repo, number)
	if err != nil {
		return nil, convertError(project, err)
	}

	return toPullRequest(pr), nil
}

func (c *Client) GetCommits(ctx context.Context, project gate.Project, number int) ([]gate.Commit, error) {
	var commits []gate.Commit

	opts := &github.ListOptions{PerPage: perPage}
	for {
		page, resp, err := c.gh.PullRequests.ListCommits(ctx, project.Owner, project.Repo, number, opts)
		if err != nil {
			return nil, convertError(project, err)
		}

		for _, commit := range page {
			commits = append(commits, gate.Commit{
				SHA:         commit.GetSHA(),
				CommittedAt: commit.GetCommit().GetCommitter().GetDate().Time,
			})
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return commits, nil
}

func (c *Client) GetComments(ctx context.Context, project gate.Project, number int) ([]gate.Comment, error) {
	var comments []gate.Comment

	opts := &github.IssueListCommentsOptions{ListOptions: github.ListOptions{PerPage: perPage}}
	for {
		page, resp, err := c.gh.Issues.ListComments(ctx, project.Owner, project.Repo, number, opts)
		if err != nil {
			return nil, convertError(project, err)
		}

		for _, comment := range page {
			comments = append(comments, gate.Comment{
				Author:    comment.GetUser().GetLogin(),
				Body:      comment.GetBody(),
				CreatedAt: comment.GetCreatedAt().Time,
			})
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return comments, nil
}

func (c *Client) GetCombinedStatus(ctx context.Context, project gate.Project, sha string) ([]gate.Status, error) {
	var statuses []gate.Status

	opts := &github.ListOptions{PerPage: perPage}
	for {
		combined, resp, err := c.gh.Repositories.GetCombinedStatus(ctx, project.Owner, project.Repo, sha, opts)
		if err != nil {
			return nil, convertError(project, err)
		}

		for _, s := range combined.Statuses {
			statuses = append(statuses, gate.Status{
				State:       s.GetState(),
				Description: s.GetDescription(),
				TargetURL:   s.GetTargetURL(),
			})
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return statuses, nil
}

func (c *Client) ListPullRequests(ctx context.Context, project gate.Project) ([]*gate.PullRequest, error) {
	var prs []*gate.PullRequest

	opts := &github.PullRequestListOptions{State: "open", ListOptions: github.ListOptions{PerPage: perPage}}
	for {
		page, resp, err := c.gh.PullRequests.List(ctx, project.Owner, project.Repo, opts)
		if err != nil {
			return nil, convertError(project, err)
		}

		for _, pr := range page {
			prs = append(prs, toPullRequest(pr))
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return prs, nil
}

func (c *Client) PostComment(ctx context.Context, project gate.Project, number int, text string) error {
	_, _, err := c.gh.Issues.CreateComment(ctx, project.Owner, project.Repo, number, &github.IssueComment{Body: github.String(text)})
	if err != nil {
		return convertError(project, err)
	}
	return nil
}

func (c *Client) MergePullRequest(ctx context.Context, project gate.Project, number int, message string) error {
	_, _, err := c.gh.PullRequests.Merge(ctx, project.Owner, project.Repo, number, message, &github.PullRequestOptions{})
	if err != nil {
		return convertMergeError(project, err)
	}
	return nil
}

func (c *Client) AddLabel(ctx context.Context, project gate.Project, number int, label string) error {
	_, _, err := c.gh.Issues.AddLabelsToIssue(ctx, project.Owner, project.Repo, number, []string{label})
	if err != nil {
		return convertError(project, err)
	}
	return nil
}

func (c *Client) CurrentBotIdentity(ctx context.Context) (string, error) {
	user, _, err := c.gh.Users.Get(ctx, "")
	if err != nil {
		return "", errors.Wrap(err, "failed to get authenticated user")
	}
	return user.GetLogin(), nil
}

func toPullRequest(pr *github.PullRequest) *gate.PullRequest {
	return &gate.PullRequest{
		Number:         pr.GetNumber(),
		Author:         pr.GetUser().GetLogin(),
		MergeableState: gate.MergeableState(pr.GetMergeableState()),
		HeadSHA:        pr.GetHead().GetSHA(),
		Title:          pr.GetTitle(),
		Body:           pr.GetBody(),
		URL:            pr.GetHTMLURL(),
	}
}

// convertError maps GitHub API failures onto the gate error types.
func convertError(project gate.Project, err error) error {
	var (
		rateLimitErr      *github.RateLimitError
		abuseRateLimitErr *github.AbuseRateLimitError
		errResp           *github.ErrorResponse
	)

	switch {
	case errors.As(err, &rateLimitErr), errors.As(err, &abuseRateLimitErr):
		return errors.Wrap(&gate.RateLimitError{Project: project}, err.Error())
	case errors.As(err, &errResp) && errResp.Response != nil:
		switch errResp.Response.StatusCode {
		case http.StatusUnauthorized:
			return errors.Wrap(&gate.AuthError{Project: project}, err.Error())
		case http.StatusNotFound:
			return errors.Wrap(&gate.NotFoundError{Project: project}, err.Error())
		case http.StatusTooManyRequests:
			return errors.Wrap(&gate.RateLimitError{Project: project}, err.Error())
		}
	}

	return errors.Wrapf(err, "request to %s failed", project)
}

// convertMergeError additionally maps GitHub's refusal to merge (405 not mergeable, 409 head
// moved) onto NotMergeableError.
func convertMergeError(project gate.Project, err error) error {
	var errResp *github.ErrorResponse
	if errors.As(err, &errResp) && errResp.Response != nil {
		switch errResp.Response.StatusCode {
		case http.StatusMethodNotAllowed, http.StatusConflict:
			return &gate.NotMergeableError{Reason: errResp.Message}
		}
	}

	return convertError(project, err)
}
