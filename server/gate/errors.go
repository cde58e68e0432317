package gate

import (
	"fmt"

	"github.com/pkg/errors"
)

// AuthError is returned by a Client when the hosting system rejects the bot's credentials.
type AuthError struct {
	Project Project
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authorization to %s failed", e.Project)
}

// NotFoundError is returned by a Client when the requested resource is not visible to the bot.
type NotFoundError struct {
	Project Project
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("resource in %s not found", e.Project)
}

// RateLimitError is returned by a Client when the bot account is throttled or locked.
type RateLimitError struct {
	Project Project
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited on %s", e.Project)
}

// NotMergeableError is returned by MergePullRequest when the hosting system refuses the merge.
type NotMergeableError struct {
	Reason string
}

func (e *NotMergeableError) Error() string {
	return e.Reason
}

var errNoCommits = errors.New("pull request has no commits")
