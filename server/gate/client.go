package gate

import "context"

// Client is the bot's view of the code hosting system.
type Client interface {
	GetPullRequest(ctx context.Context, project Project, number int) (*PullRequest, error)
	GetCommits(ctx context.Context, project Project, number int) ([]Commit, error)
	GetComments(ctx context.Context, project Project, number int) ([]Comment, error)
	GetCombinedStatus(ctx context.Context, project Project, sha string) ([]Status, error)
	ListPullRequests(ctx context.Context, project Project) ([]*PullRequest, error)

	PostComment(ctx context.Context, project Project, number int, text string) error
	MergePullRequest(ctx context.Context, project Project, number int, message string) error
	AddLabel(ctx context.Context, project Project, number int, label string) error

	CurrentBotIdentity(ctx context.Context) (string, error)
}

// Logger is the subset of the plugin API log service used by the Evaluator.
type Logger interface {
	Debug(message string, keyValuePairs ...interface{})
	Info(message string, keyValuePairs ...interface{})
	Warn(message string, keyValuePairs ...interface{})
	Error(message string, keyValuePairs ...interface{})
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
