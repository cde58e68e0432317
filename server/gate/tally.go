package gate

import (
	"sort"
	"time"
)

const blockedReason = "a block vote is present"

// Tally is the result of folding the comments posted after the last commit.
type Tally struct {
	// Votes maps an actor to +1 or -1. The last approve/reject signal of an actor wins.
	Votes map[string]int
	// Order lists the actors in the order they first voted.
	Order []string

	Merger   string
	Incident bool
	Blocked  string
}

// NetScore is the sum of all votes.
func (t Tally) NetScore() int {
	score := 0
	for _, v := range t.Votes {
		score += v
	}
	return score
}

// Reviewers returns the voting actors in first-vote order.
func (t Tally) Reviewers() []string {
	reviewers := make([]string, len(t.Order))
	copy(reviewers, t.Order)
	return reviewers
}

func (t Tally) withVote(actor string, vote int) Tally {
	votes := make(map[string]int, len(t.Votes)+1)
	for k, v := range t.Votes {
		votes[k] = v
	}

	order := t.Order
	if _, ok := votes[actor]; !ok {
		order = append(append([]string{}, t.Order...), actor)
	}
	votes[actor] = vote

	t.Votes = votes
	t.Order = order
	return t
}

// TallyInput carries everything the fold needs besides the comments.
type TallyInput struct {
	Author         string
	LastCommitDate time.Time
	Merger         string
	BotIdentity    string
}

// TallyVotes folds the comments posted strictly after the last commit into a Tally. A block vote
// stops the fold immediately.
func TallyVotes(in TallyInput, comments []Comment) Tally {
	tally := Tally{Votes: map[string]int{}, Merger: in.Merger}

	for _, comment := range recentComments(comments, in.LastCommitDate) {
		tally = step(in, tally, comment)
		if tally.Blocked != "" {
			break
		}
	}

	return tally
}

func step(in TallyInput, tally Tally, comment Comment) Tally {
	signals := Classify(comment, in.BotIdentity)
	if len(signals) == 0 {
		return tally
	}

	if signals.Has(SignalBlock) {
		tally.Blocked = blockedReason
		return tally
	}

	if signals.Has(SignalIncidentOverride) {
		tally.Incident = true
	}

	isAuthor := comment.Author == in.Author

	if signals.Has(SignalMergeTrigger) {
		if tally.Merger == "" {
			tally.Merger = comment.Author
		}
		if !isAuthor {
			tally = tally.withVote(comment.Author, 1)
		}
	}

	if isAuthor {
		return tally
	}

	if signals.Has(SignalApprove) {
		tally = tally.withVote(comment.Author, 1)
	}

	if signals.Has(SignalReject) {
		tally = tally.withVote(comment.Author, -1)
	}

	return tally
}

// recentComments keeps comments created after since, ordered by creation time. Comments with equal
// timestamps keep their relative order.
func recentComments(comments []Comment, since time.Time) []Comment {
	recent := make([]Comment, 0, len(comments))
	for _, c := range comments {
		if c.CreatedAt.After(since) {
			recent = append(recent, c)
		}
	}

	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].CreatedAt.Before(recent[j].CreatedAt)
	})

	return recent
}
