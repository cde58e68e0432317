package gate

import (
	"context"
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

const (
	actionCreated = "created"
	actionOpened  = "opened"
	stateSuccess  = "success"
)

// CommentEvent is a new or edited comment on a pull request.
type CommentEvent struct {
	Action string
	Number int
	Body   string
	Sender string
}

// StatusEvent is a CI status change on a commit.
type StatusEvent struct {
	State string
	SHA   string
}

// PullRequestEvent is a pull request lifecycle change.
type PullRequestEvent struct {
	Action string
	Number int
}

// Evaluator runs the merge gate for a single repository event. It keeps no state between calls.
type Evaluator struct {
	client   Client
	settings Settings
	log      Logger

	// OnDecision, if set, is called once a Merge has gone through or a Blocked comment has been posted.
	OnDecision func(project Project, pr *PullRequest, outcome Outcome)
}

func NewEvaluator(client Client, settings Settings, log Logger) *Evaluator {
	if log == nil {
		log = nopLogger{}
	}

	return &Evaluator{
		client:   client,
		settings: settings,
		log:      log,
	}
}

// HandleComment evaluates a pull request after a merge comment was posted.
func (e *Evaluator) HandleComment(ctx context.Context, project Project, event CommentEvent) (Decision, error) {
	if event.Action != actionCreated {
		return ok("not a new comment, skipping"), nil
	}

	bot, err := e.client.CurrentBotIdentity(ctx)
	if err != nil {
		return Decision{}, errors.Wrap(err, "failed to get bot identity")
	}

	if event.Sender == bot {
		return ok("Skipping own comment"), nil
	}

	if !IsMergeTrigger(event.Body) {
		return ok("Not a merge comment"), nil
	}

	return e.MaybeMerge(ctx, project, event.Number, true, event.Sender)
}

// HandleStatus merges the open pull request whose head turned green, if any.
func (e *Evaluator) HandleStatus(ctx context.Context, project Project, event StatusEvent) (Decision, error) {
	if event.State != stateSuccess {
		return ok("Merge state not clean"), nil
	}

	prs, err := e.client.ListPullRequests(ctx, project)
	if err != nil {
		return Decision{}, errors.Wrapf(err, "failed to list pull requests of %s", project)
	}

	for _, pr := range prs {
		if pr.HeadSHA == event.SHA {
			return e.MaybeMerge(ctx, project, pr.Number, false, "")
		}
	}

	return ok(fmt.Sprintf("Found no pull requests matching %s", event.SHA)), nil
}

// HandlePullRequest posts the merge instructions on newly opened pull requests.
func (e *Evaluator) HandlePullRequest(ctx context.Context, project Project, event PullRequestEvent) (Decision, error) {
	if event.Action != actionOpened || !e.settings.PostInstructions {
		return ok("Not posting instructions"), nil
	}

	return e.postComment(ctx, project, event.Number, e.settings.InstructionsText()), nil
}

// Evaluate reads the pull request and decides, without performing any write.
func (e *Evaluator) Evaluate(ctx context.Context, project Project, number int, mergeCommand bool, merger string) (*PullRequest, Outcome, error) {
	pr, err := e.client.GetPullRequest(ctx, project, number)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to get pull request %s#%d", project, number)
	}

	commits, err := e.client.GetCommits(ctx, project, number)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to get commits of %s#%d", project, number)
	}
	if len(commits) == 0 {
		return nil, nil, errors.Wrapf(errNoCommits, "%s#%d", project, number)
	}

	comments, err := e.client.GetComments(ctx, project, number)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to get comments of %s#%d", project, number)
	}

	bot, err := e.client.CurrentBotIdentity(ctx)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to get bot identity")
	}

	outcome, tally := Decide(Input{
		PullRequest:  pr,
		LastCommit:   commits[len(commits)-1],
		Comments:     comments,
		Settings:     e.settings,
		BotIdentity:  bot,
		Merger:       merger,
		MergeCommand: mergeCommand,
	})

	e.log.Debug("Merge gate decided",
		"project", project.String(),
		"number", number,
		"outcome", fmt.Sprintf("%T", outcome),
		"net_score", tally.NetScore(),
		"incident", tally.Incident,
	)

	return pr, outcome, nil
}

// MaybeMerge decides whether the pull request can be merged and carries out the decision.
// Read failures are returned as errors. Write failures are reported through the Decision.
func (e *Evaluator) MaybeMerge(ctx context.Context, project Project, number int, mergeCommand bool, merger string) (Decision, error) {
	pr, outcome, err := e.Evaluate(ctx, project, number, mergeCommand, merger)
	if err != nil {
		return Decision{}, err
	}

	if merge, isMerge := outcome.(Merge); isMerge {
		statuses, err := e.client.GetCombinedStatus(ctx, project, pr.HeadSHA)
		if err != nil {
			return Decision{}, errors.Wrapf(err, "failed to get combined status of %s", pr.HeadSHA)
		}

		merge.Message, err = RenderCommitMessage(pr, merge, statuses)
		if err != nil {
			return Decision{}, err
		}
		outcome = merge
	}

	decision, err := Render(outcome)
	if err != nil {
		return Decision{}, err
	}

	result, done := e.execute(ctx, project, number, decision)

	switch outcome.(type) {
	case Merge, Blocked:
		if done && e.OnDecision != nil {
			e.OnDecision(project, pr, outcome)
		}
	}

	return result, nil
}

// execute performs the decision's actions. The boolean reports whether the final action, the
// merge or the comment, went through as rendered.
func (e *Evaluator) execute(ctx context.Context, project Project, number int, decision Decision) (Decision, bool) {
	for _, action := range decision.Actions {
		switch action.Kind {
		case ActionPostComment:
			result := e.postComment(ctx, project, number, action.Text)
			return result, result.Status == http.StatusOK

		case ActionAddLabel:
			if err := e.client.AddLabel(ctx, project, number, action.Text); err != nil {
				e.log.Warn("Failed to add label", "project", project.String(), "number", number, "label", action.Text, "error", err.Error())
			}

		case ActionMergePR:
			err := e.client.MergePullRequest(ctx, project, number, action.Text)
			var notMergeable *NotMergeableError
			if errors.As(err, &notMergeable) {
				return e.postComment(ctx, project, number, fmt.Sprintf("Pull request not mergeable: %s", notMergeable.Reason)), false
			}
			if err != nil {
				return writeFailure(project, err), false
			}
			return ok(fmt.Sprintf("merging %d %s", number, project)), true
		}
	}

	return decision, true
}

func (e *Evaluator) postComment(ctx context.Context, project Project, number int, text string) Decision {
	if err := e.client.PostComment(ctx, project, number, text); err != nil {
		e.log.Warn("Failed to post comment", "project", project.String(), "number", number, "error", err.Error())
		return writeFailure(project, err)
	}

	return ok("Commented:\n" + text)
}

// writeFailure converts a hosting error from the write path into a status and message.
func writeFailure(project Project, err error) Decision {
	var (
		authErr      *AuthError
		notFoundErr  *NotFoundError
		rateLimitErr *RateLimitError
	)

	switch {
	case errors.As(err, &notFoundErr):
		return Decision{Status: http.StatusNotFound, Message: "GitHub returned 404, this could be an issue with your access token"}
	case errors.As(err, &authErr):
		return Decision{Status: http.StatusUnauthorized, Message: fmt.Sprintf("Authorization to %s failed, please verify your access token", project)}
	case errors.As(err, &rateLimitErr):
		return Decision{Status: http.StatusTooManyRequests, Message: fmt.Sprintf("Account for %s has been temporarily locked down due to too many failed login attempts", project)}
	}

	return Decision{Status: http.StatusInternalServerError, Message: err.Error()}
}

func ok(message string) Decision {
	return Decision{Status: http.StatusOK, Message: message}
}
