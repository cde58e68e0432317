package gate

import (
	"context"
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testProject = Project{Owner: "acme", Repo: "widgets"}

type postedComment struct {
	Number int
	Text   string
}

type fakeClient struct {
	pr       *PullRequest
	prs      []*PullRequest
	commits  []Commit
	comments []Comment
	statuses []Status
	bot      string

	readErr    error
	commentErr error
	mergeErr   error

	posted  []postedComment
	merged  []string
	labels  []string
	actions []ActionKind
}

func newFakeClient(state MergeableState, comments ...Comment) *fakeClient {
	pr := testPR(state)
	return &fakeClient{
		pr:       pr,
		prs:      []*PullRequest{pr},
		commits:  []Commit{{SHA: "old", CommittedAt: at(-60)}, {SHA: pr.HeadSHA, CommittedAt: lastCommit}},
		comments: comments,
		statuses: []Status{{State: "success", Description: "Build passed", TargetURL: "https://ci.example.com/1"}},
		bot:      "bot",
	}
}

func (c *fakeClient) GetPullRequest(_ context.Context, _ Project, _ int) (*PullRequest, error) {
	return c.pr, c.readErr
}

func (c *fakeClient) GetCommits(_ context.Context, _ Project, _ int) ([]Commit, error) {
	return c.commits, nil
}

func (c *fakeClient) GetComments(_ context.Context, _ Project, _ int) ([]Comment, error) {
	return c.comments, nil
}

func (c *fakeClient) GetCombinedStatus(_ context.Context, _ Project, _ string) ([]Status, error) {
	return c.statuses, nil
}

func (c *fakeClient) ListPullRequests(_ context.Context, _ Project) ([]*PullRequest, error) {
	return c.prs, c.readErr
}

func (c *fakeClient) PostComment(_ context.Context, _ Project, number int, text string) error {
	c.actions = append(c.actions, ActionPostComment)
	if c.commentErr != nil {
		return c.commentErr
	}
	c.posted = append(c.posted, postedComment{Number: number, Text: text})
	return nil
}

func (c *fakeClient) MergePullRequest(_ context.Context, _ Project, _ int, message string) error {
	c.actions = append(c.actions, ActionMergePR)
	if c.mergeErr != nil {
		return c.mergeErr
	}
	c.merged = append(c.merged, message)
	return nil
}

func (c *fakeClient) AddLabel(_ context.Context, _ Project, _ int, label string) error {
	c.actions = append(c.actions, ActionAddLabel)
	c.labels = append(c.labels, label)
	return nil
}

func (c *fakeClient) CurrentBotIdentity(_ context.Context) (string, error) {
	return c.bot, nil
}

func TestMaybeMerge(t *testing.T) {
	t.Run("merges with rendered commit message", func(t *testing.T) {
		client := newFakeClient(MergeableStateClean,
			Comment{Author: "alice", Body: ":+1:", CreatedAt: at(1)},
			Comment{Author: "author", Body: "!merge", CreatedAt: at(2)},
		)
		var notified Outcome
		e := NewEvaluator(client, Settings{PlusOnesRequired: 1}, nil)
		e.OnDecision = func(_ Project, _ *PullRequest, outcome Outcome) { notified = outcome }

		decision, err := e.MaybeMerge(context.Background(), testProject, 7, true, "")
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, decision.Status)
		assert.Equal(t, "merging 7 acme/widgets", decision.Message)
		require.Len(t, client.merged, 1)
		assert.Contains(t, client.merged[0], "Reviewers: alice\nDeployer: author\n")
		assert.Contains(t, client.merged[0], "Tests: success, Build passed, https://ci.example.com/1\n")
		assert.Empty(t, client.labels)
		assert.IsType(t, Merge{}, notified)
	})

	t.Run("incident labels before merging", func(t *testing.T) {
		client := newFakeClient(MergeableStateDirty,
			Comment{Author: "carol", Body: "jira.example.com/browse/INCIDENT-123", CreatedAt: at(1)},
			Comment{Author: "alice", Body: "!merge", CreatedAt: at(2)},
		)
		e := NewEvaluator(client, Settings{PlusOnesRequired: 2}, nil)

		decision, err := e.MaybeMerge(context.Background(), testProject, 7, false, "")
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, decision.Status)
		assert.Equal(t, []string{IncidentLabel}, client.labels)
		assert.Equal(t, []ActionKind{ActionAddLabel, ActionMergePR}, client.actions)
	})

	t.Run("not mergeable is reported as a comment", func(t *testing.T) {
		client := newFakeClient(MergeableStateClean,
			Comment{Author: "alice", Body: "+1 !merge", CreatedAt: at(1)},
		)
		client.mergeErr = errors.Wrap(&NotMergeableError{Reason: "Base branch was modified"}, "merge failed")
		e := NewEvaluator(client, Settings{}, nil)
		var notified Outcome
		e.OnDecision = func(_ Project, _ *PullRequest, outcome Outcome) { notified = outcome }

		decision, err := e.MaybeMerge(context.Background(), testProject, 7, true, "")
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, decision.Status)
		require.Len(t, client.posted, 1)
		assert.Equal(t, "Pull request not mergeable: Base branch was modified", client.posted[0].Text)
		assert.Nil(t, notified)
	})

	t.Run("failed merge is not announced", func(t *testing.T) {
		client := newFakeClient(MergeableStateClean,
			Comment{Author: "alice", Body: "+1 !merge", CreatedAt: at(1)},
		)
		client.mergeErr = &AuthError{Project: testProject}
		e := NewEvaluator(client, Settings{}, nil)
		var notified Outcome
		e.OnDecision = func(_ Project, _ *PullRequest, outcome Outcome) { notified = outcome }

		decision, err := e.MaybeMerge(context.Background(), testProject, 7, true, "")
		require.NoError(t, err)

		assert.Equal(t, http.StatusUnauthorized, decision.Status)
		assert.Empty(t, client.posted)
		assert.Nil(t, notified)
	})

	t.Run("blocked posts the veto comment", func(t *testing.T) {
		client := newFakeClient(MergeableStateClean,
			Comment{Author: "alice", Body: "+1 !merge", CreatedAt: at(1)},
			Comment{Author: "bob", Body: "-2", CreatedAt: at(2)},
		)
		e := NewEvaluator(client, Settings{}, nil)
		var notified Outcome
		e.OnDecision = func(_ Project, _ *PullRequest, outcome Outcome) { notified = outcome }

		decision, err := e.MaybeMerge(context.Background(), testProject, 7, true, "")
		require.NoError(t, err)

		assert.Equal(t, "Commented:\n"+blockedMessage, decision.Message)
		assert.Empty(t, client.merged)
		assert.IsType(t, Blocked{}, notified)
	})

	t.Run("blocked comment failure is not announced", func(t *testing.T) {
		client := newFakeClient(MergeableStateClean,
			Comment{Author: "alice", Body: "+1 !merge", CreatedAt: at(1)},
			Comment{Author: "bob", Body: "-2", CreatedAt: at(2)},
		)
		client.commentErr = &NotFoundError{Project: testProject}
		e := NewEvaluator(client, Settings{}, nil)
		var notified Outcome
		e.OnDecision = func(_ Project, _ *PullRequest, outcome Outcome) { notified = outcome }

		decision, err := e.MaybeMerge(context.Background(), testProject, 7, true, "")
		require.NoError(t, err)

		assert.Equal(t, http.StatusNotFound, decision.Status)
		assert.Nil(t, notified)
	})

	t.Run("status poll on unclean state is silent", func(t *testing.T) {
		client := newFakeClient(MergeableStateUnstable,
			Comment{Author: "alice", Body: "+1 !merge", CreatedAt: at(1)},
		)
		e := NewEvaluator(client, Settings{}, nil)

		decision, err := e.MaybeMerge(context.Background(), testProject, 7, false, "")
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, decision.Status)
		assert.Empty(t, client.actions)
	})

	t.Run("read failure fails the evaluation", func(t *testing.T) {
		client := newFakeClient(MergeableStateClean)
		client.readErr = errors.New("connection refused")
		e := NewEvaluator(client, Settings{}, nil)

		_, err := e.MaybeMerge(context.Background(), testProject, 7, true, "")
		assert.Error(t, err)
		assert.Empty(t, client.actions)
	})

	t.Run("no commits fails the evaluation", func(t *testing.T) {
		client := newFakeClient(MergeableStateClean)
		client.commits = nil
		e := NewEvaluator(client, Settings{}, nil)

		_, err := e.MaybeMerge(context.Background(), testProject, 7, true, "")
		assert.Error(t, err)
	})
}

func TestWriteFailures(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"unauthorized", &AuthError{Project: testProject}, http.StatusUnauthorized, "Authorization to acme/widgets failed, please verify your access token"},
		{"not found", &NotFoundError{Project: testProject}, http.StatusNotFound, "GitHub returned 404, this could be an issue with your access token"},
		{"rate limited", errors.Wrap(&RateLimitError{Project: testProject}, "post"), http.StatusTooManyRequests, "Account for acme/widgets has been temporarily locked down due to too many failed login attempts"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "boom"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := newFakeClient(MergeableStateClean,
				Comment{Author: "alice", Body: "-1", CreatedAt: at(1)},
				Comment{Author: "author", Body: "!merge", CreatedAt: at(2)},
			)
			client.commentErr = tc.err
			e := NewEvaluator(client, Settings{}, nil)

			decision, err := e.MaybeMerge(context.Background(), testProject, 7, true, "")
			require.NoError(t, err)

			assert.Equal(t, tc.status, decision.Status)
			assert.Equal(t, tc.message, decision.Message)
		})
	}
}

func TestHandleComment(t *testing.T) {
	tests := []struct {
		name    string
		event   CommentEvent
		message string
	}{
		{"edited comment", CommentEvent{Action: "edited", Number: 7, Body: "!merge", Sender: "alice"}, "not a new comment, skipping"},
		{"own comment", CommentEvent{Action: "created", Number: 7, Body: "!merge", Sender: "bot"}, "Skipping own comment"},
		{"not a merge comment", CommentEvent{Action: "created", Number: 7, Body: "+1", Sender: "alice"}, "Not a merge comment"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := newFakeClient(MergeableStateClean)
			e := NewEvaluator(client, Settings{}, nil)

			decision, err := e.HandleComment(context.Background(), testProject, tc.event)
			require.NoError(t, err)
			assert.Equal(t, tc.message, decision.Message)
			assert.Empty(t, client.actions)
		})
	}

	t.Run("merge comment on unclean pull request posts a reminder", func(t *testing.T) {
		client := newFakeClient(MergeableStateDirty)
		e := NewEvaluator(client, Settings{}, nil)

		decision, err := e.HandleComment(context.Background(), testProject, CommentEvent{Action: "created", Number: 7, Body: ":shipit:", Sender: "alice"})
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, decision.Status)
		require.Len(t, client.posted, 1)
		assert.Contains(t, client.posted[0].Text, "Current state: dirty")
		assert.Contains(t, client.posted[0].Text, notCleanReminder)
	})
}

func TestHandleStatus(t *testing.T) {
	t.Run("non success state is ignored", func(t *testing.T) {
		client := newFakeClient(MergeableStateClean)
		e := NewEvaluator(client, Settings{}, nil)

		decision, err := e.HandleStatus(context.Background(), testProject, StatusEvent{State: "pending", SHA: "abc123"})
		require.NoError(t, err)
		assert.Equal(t, "Merge state not clean", decision.Message)
	})

	t.Run("unknown sha", func(t *testing.T) {
		client := newFakeClient(MergeableStateClean)
		e := NewEvaluator(client, Settings{}, nil)

		decision, err := e.HandleStatus(context.Background(), testProject, StatusEvent{State: "success", SHA: "fff"})
		require.NoError(t, err)
		assert.Equal(t, "Found no pull requests matching fff", decision.Message)
	})

	t.Run("green build merges the approved pull request", func(t *testing.T) {
		client := newFakeClient(MergeableStateClean,
			Comment{Author: "alice", Body: "LGTM :shipit:", CreatedAt: at(1)},
		)
		e := NewEvaluator(client, Settings{}, nil)

		decision, err := e.HandleStatus(context.Background(), testProject, StatusEvent{State: "success", SHA: "abc123"})
		require.NoError(t, err)
		assert.Equal(t, "merging 7 acme/widgets", decision.Message)
		assert.Len(t, client.merged, 1)
	})
}

func TestHandlePullRequest(t *testing.T) {
	t.Run("instructions disabled", func(t *testing.T) {
		client := newFakeClient(MergeableStateClean)
		e := NewEvaluator(client, Settings{}, nil)

		decision, err := e.HandlePullRequest(context.Background(), testProject, PullRequestEvent{Action: "opened", Number: 7})
		require.NoError(t, err)
		assert.Equal(t, "Not posting instructions", decision.Message)
		assert.Empty(t, client.posted)
	})

	t.Run("posts instructions on open", func(t *testing.T) {
		client := newFakeClient(MergeableStateClean)
		e := NewEvaluator(client, Settings{PostInstructions: true, Instructions: "Say +1"}, nil)

		decision, err := e.HandlePullRequest(context.Background(), testProject, PullRequestEvent{Action: "opened", Number: 7})
		require.NoError(t, err)
		assert.Equal(t, "Commented:\nSay +1", decision.Message)
		assert.Equal(t, []postedComment{{Number: 7, Text: "Say +1"}}, client.posted)
	})

	t.Run("other actions are ignored", func(t *testing.T) {
		client := newFakeClient(MergeableStateClean)
		e := NewEvaluator(client, Settings{PostInstructions: true}, nil)

		decision, err := e.HandlePullRequest(context.Background(), testProject, PullRequestEvent{Action: "closed", Number: 7})
		require.NoError(t, err)
		assert.Equal(t, "Not posting instructions", decision.Message)
	})
}
