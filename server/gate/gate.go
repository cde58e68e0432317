package gate

// Outcome is the terminal state reached by Decide.
type Outcome interface {
	outcome()
}

// Merge means the pull request should be merged. Message is filled in by the Evaluator once the
// combined status has been read.
type Merge struct {
	Merger    string
	Reviewers []string
	NetScore  int
	Incident  bool
	Message   string
}

type Blocked struct {
	Reason string
}

type InsufficientApproval struct {
	Required int
	Have     int
}

// NotClean means CI or the merge state prevents merging. MergeCommand is set when a human asked
// for the merge, in which case the author gets a reminder instead of silence.
type NotClean struct {
	State        MergeableState
	Incident     bool
	MergeCommand bool
}

type NoMergeSignal struct{}

func (Merge) outcome()                {}
func (Blocked) outcome()              {}
func (InsufficientApproval) outcome() {}
func (NotClean) outcome()             {}
func (NoMergeSignal) outcome()        {}

// Input is everything Decide looks at.
type Input struct {
	PullRequest  *PullRequest
	LastCommit   Commit
	Comments     []Comment
	Settings     Settings
	BotIdentity  string
	Merger       string
	MergeCommand bool
}

// Decide runs the merge gate. The checks are ordered by priority: a block vote beats everything,
// an unclean merge state beats everything but an incident, and an incident waives the approval
// threshold but never a block.
func Decide(in Input) (Outcome, Tally) {
	tally := TallyVotes(TallyInput{
		Author:         in.PullRequest.Author,
		LastCommitDate: in.LastCommit.CommittedAt,
		Merger:         in.Merger,
		BotIdentity:    in.BotIdentity,
	}, in.Comments)

	if tally.Blocked != "" {
		return Blocked{Reason: tally.Blocked}, tally
	}

	if in.PullRequest.MergeableState != MergeableStateClean && !tally.Incident {
		return NotClean{
			State:        in.PullRequest.MergeableState,
			MergeCommand: in.MergeCommand,
		}, tally
	}

	if tally.Merger == "" {
		return NoMergeSignal{}, tally
	}

	required := in.Settings.Required()
	if score := tally.NetScore(); score < required && !tally.Incident {
		return InsufficientApproval{Required: required, Have: score}, tally
	}

	return Merge{
		Merger:    tally.Merger,
		Reviewers: tally.Reviewers(),
		NetScore:  tally.NetScore(),
		Incident:  tally.Incident,
	}, tally
}
