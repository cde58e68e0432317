package plugin

import (
	"context"
	"crypto/hmac"
	"crypto/sha1" // #nosec G505
	"encoding/hex"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-github/v54/github"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mattermost/mattermost/server/public/plugin/plugintest"
	"github.com/mattermost/mattermost/server/public/pluginapi"

	"github.com/mattermost/mattermost-plugin-mergegate/server/gate"
)

const (
	MockUserID        = "mockUserID"
	MockUsername      = "alice"
	MockChannelID     = "mockChannelID"
	MockBotID         = "mockBotID"
	MockBotLogin      = "mergegate-bot"
	MockWebhookSecret = "mockWebhookSecret" // #nosec G101
	MockGitHubToken   = "mockGitHubToken"   // #nosec G101
	MockOwner         = "acme"
	MockRepo          = "widgets"
	MockHeadSHA       = "0123abcd"
	MockPRNumber      = 7
	MockPRAuthor      = "bob"
)

var mockProject = gate.Project{Owner: MockOwner, Repo: MockRepo}

var mockLastCommitDate = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeGateClient serves canned pull request data and records every write.
type fakeGateClient struct {
	pr       *gate.PullRequest
	commits  []gate.Commit
	comments []gate.Comment
	statuses []gate.Status
	open     []*gate.PullRequest
	bot      string

	mergeErr error

	posted []string
	merged []string
	labels []string
}

func newFakeGateClient() *fakeGateClient {
	return &fakeGateClient{
		pr: &gate.PullRequest{
			Number:         MockPRNumber,
			Author:         MockPRAuthor,
			MergeableState: gate.MergeableStateClean,
			HeadSHA:        MockHeadSHA,
			Title:          "Add sprockets",
			Body:           "Adds sprockets to the widget.",
			URL:            "https://github.com/acme/widgets/pull/7",
		},
		commits: []gate.Commit{{SHA: MockHeadSHA, CommittedAt: mockLastCommitDate}},
		bot:     MockBotLogin,
	}
}

func (f *fakeGateClient) withComment(author, body string, minutesAfterCommit int) *fakeGateClient {
	f.comments = append(f.comments, gate.Comment{
		Author:    author,
		Body:      body,
		CreatedAt: mockLastCommitDate.Add(time.Duration(minutesAfterCommit) * time.Minute),
	})
	return f
}

func (f *fakeGateClient) GetPullRequest(_ context.Context, _ gate.Project, _ int) (*gate.PullRequest, error) {
	return f.pr, nil
}

func (f *fakeGateClient) GetCommits(_ context.Context, _ gate.Project, _ int) ([]gate.Commit, error) {
	return f.commits, nil
}

func (f *fakeGateClient) GetComments(_ context.Context, _ gate.Project, _ int) ([]gate.Comment, error) {
	return f.comments, nil
}

func (f *fakeGateClient) GetCombinedStatus(_ context.Context, _ gate.Project, _ string) ([]gate.Status, error) {
	return f.statuses, nil
}

func (f *fakeGateClient) ListPullRequests(_ context.Context, _ gate.Project) ([]*gate.PullRequest, error) {
	return f.open, nil
}

func (f *fakeGateClient) PostComment(_ context.Context, _ gate.Project, _ int, text string) error {
	f.posted = append(f.posted, text)
	return nil
}

func (f *fakeGateClient) MergePullRequest(_ context.Context, _ gate.Project, _ int, message string) error {
	if f.mergeErr != nil {
		return f.mergeErr
	}
	f.merged = append(f.merged, message)
	return nil
}

func (f *fakeGateClient) AddLabel(_ context.Context, _ gate.Project, _ int, label string) error {
	f.labels = append(f.labels, label)
	return nil
}

func (f *fakeGateClient) CurrentBotIdentity(_ context.Context) (string, error) {
	return f.bot, nil
}

func validConfiguration() *Configuration {
	return &Configuration{
		GitHubToken:      MockGitHubToken,
		WebhookSecret:    MockWebhookSecret,
		PlusOnesRequired: 1,
	}
}

// getPluginTest returns an activated plugin that talks to the given fake instead of GitHub.
func getPluginTest(api *plugintest.API, client gate.Client) *Plugin {
	p := NewPlugin()
	p.setConfiguration(validConfiguration())
	p.newGateClient = func(*Configuration) (gate.Client, error) {
		return client, nil
	}
	p.SetAPI(api)
	p.client = pluginapi.NewClient(p.API, p.Driver)
	p.BotUserID = MockBotID
	p.initializeAPI()

	return p
}

// allowLogs accepts log calls of any shape on the mocked API.
func allowLogs(api *plugintest.API) {
	for _, level := range []string{"LogDebug", "LogInfo", "LogWarn", "LogError"} {
		args := []interface{}{mock.AnythingOfType("string")}
		for i := 0; i <= 16; i++ {
			api.On(level, args...).Maybe()
			args = append(args, mock.Anything)
		}
	}
}

func generateSignature(secret, body []byte) string {
	h := hmac.New(sha1.New, secret)
	h.Write(body)
	return "sha1=" + hex.EncodeToString(h.Sum(nil))
}

func mockRepository() *github.Repository {
	return &github.Repository{
		Name:     github.String(MockRepo),
		FullName: github.String(MockOwner + "/" + MockRepo),
		Owner:    &github.User{Login: github.String(MockOwner)},
	}
}

func GetMockPingEvent() *github.PingEvent {
	return &github.PingEvent{
		Zen:    github.String("Keep it logically awesome."),
		HookID: github.Int64(123456),
	}
}

func GetMockIssueCommentEvent(action, body, sender string) *github.IssueCommentEvent {
	return &github.IssueCommentEvent{
		Action: github.String(action),
		Repo:   mockRepository(),
		Issue: &github.Issue{
			Number: github.Int(MockPRNumber),
			PullRequestLinks: &github.PullRequestLinks{
				URL: github.String("https://api.github.com/repos/acme/widgets/pulls/7"),
			},
		},
		Comment: &github.IssueComment{Body: github.String(body)},
		Sender:  &github.User{Login: github.String(sender)},
	}
}

func GetMockStatusEvent(state, sha string) *github.StatusEvent {
	return &github.StatusEvent{
		State: github.String(state),
		SHA:   github.String(sha),
		Repo:  mockRepository(),
	}
}

func GetMockPullRequestEvent(action string) *github.PullRequestEvent {
	return &github.PullRequestEvent{
		Action: github.String(action),
		Number: github.Int(MockPRNumber),
		Repo:   mockRepository(),
	}
}

func mustMarshal(t *testing.T, v interface{}) []byte {
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}
