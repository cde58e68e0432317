package gate

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// MergeableState is GitHub's computed CI/conflict status for a pull request.
type MergeableState string

const (
	MergeableStateClean    MergeableState = "clean"
	MergeableStateUnstable MergeableState = "unstable"
	MergeableStateDirty    MergeableState = "dirty"
	MergeableStateUnknown  MergeableState = "unknown"
	MergeableStateBlocked  MergeableState = "blocked"
	MergeableStateBehind   MergeableState = "behind"
	MergeableStateHasHooks MergeableState = "has_hooks"
	MergeableStateDraft    MergeableState = "draft"
)

// Project identifies a repository on the hosting system.
type Project struct {
	Owner string
	Repo  string
}

// ParseProject parses an "owner/repo" identifier.
func ParseProject(s string) (Project, error) {
	parts := strings.Split(strings.Trim(strings.TrimSpace(s), "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Project{}, errors.Errorf("invalid project %q, expected owner/repo", s)
	}

	return Project{Owner: parts[0], Repo: parts[1]}, nil
}

func (p Project) String() string {
	return p.Owner + "/" + p.Repo
}

type PullRequest struct {
	Number         int
	Author         string
	MergeableState MergeableState
	HeadSHA        string
	Title          string
	Body           string
	URL            string
}

type Commit struct {
	SHA         string
	CommittedAt time.Time
}

type Comment struct {
	Author    string
	Body      string
	CreatedAt time.Time
}

// Status is a single CI context of a commit's combined status.
type Status struct {
	State       string
	Description string
	TargetURL   string
}

// Settings are the merge rules configured for the bot.
type Settings struct {
	PlusOnesRequired int
	PostInstructions bool
	Instructions     string
}

const DefaultPlusOnesRequired = 1

// Required returns the approval threshold, falling back to the default for unset values.
func (s Settings) Required() int {
	if s.PlusOnesRequired < 1 {
		return DefaultPlusOnesRequired
	}
	return s.PlusOnesRequired
}

// InstructionsText is the comment posted on newly opened pull requests.
func (s Settings) InstructionsText() string {
	if strings.TrimSpace(s.Instructions) != "" {
		return s.Instructions
	}

	return fmt.Sprintf("To merge at least %d person other than the submitter needs to write a comment containing only _+1_ or :+1:. "+
		"Then write _!merge_ or :shipit: to trigger merging.", s.Required())
}
