package gate

import (
	"bytes"
	"fmt"
	"net/http"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/pkg/errors"
)

const (
	IncidentLabel = "incident"

	blockedMessage   = "Commit cannot be merged so long as a -2 comment appears in the PR."
	noMergeMessage   = "No merge comment found"
	notCleanReminder = "I will try to merge this for you when the builds turn green\n" +
		"If your build fails or becomes stuck for some reason, just say 'rebuild'\n" +
		"If you have an incident and want to skip the tests or the peer review, please post the link to the jira ticket."
)

// ActionKind names the side effect an Action asks for.
type ActionKind string

const (
	ActionPostComment ActionKind = "post_comment"
	ActionMergePR     ActionKind = "merge_pr"
	ActionAddLabel    ActionKind = "add_label"
)

// Action is a single write to perform against the hosting system.
type Action struct {
	Kind ActionKind
	// Text is the comment body, the merge commit message or the label name depending on Kind.
	Text string
}

func PostComment(text string) Action { return Action{Kind: ActionPostComment, Text: text} }
func MergePR(message string) Action  { return Action{Kind: ActionMergePR, Text: message} }
func AddLabel(name string) Action    { return Action{Kind: ActionAddLabel, Text: name} }

// Decision is what the bot reports for an evaluation and the side effects it requests.
type Decision struct {
	Status  int
	Message string
	Actions []Action
}

var masterTemplate *template.Template

func init() {
	funcMap := sprig.TxtFuncMap()

	masterTemplate = template.Must(template.New("master").Funcs(funcMap).Parse(""))

	template.Must(masterTemplate.New("status").Parse(
		`{{.State}}, {{.Description}}, {{.TargetURL}}`,
	))

	template.Must(masterTemplate.New("commitMessage").Parse(`Title: {{.PullRequest.Title}}
Opened by: {{.PullRequest.Author}}
Reviewers: {{.Reviewers | join ", "}}
Deployer: {{.Merger}}
URL: {{.PullRequest.URL}}
Tests: {{range $i, $s := .Statuses}}{{if $i}}
 {{end}}{{template "status" $s}}{{end}}

{{.PullRequest.Body}}
`))

	template.Must(masterTemplate.New("notClean").Parse(
		`Merge state is not clean. Current state: {{.State}}
`))

	template.Must(masterTemplate.New("insufficientApproval").Parse(
		`Not enough plus ones. {{.Required}} required, and only have {{.Have}}`,
	))
}

func renderTemplate(name string, data interface{}) (string, error) {
	var output bytes.Buffer
	if err := masterTemplate.ExecuteTemplate(&output, name, data); err != nil {
		return "", errors.Wrapf(err, "failed to execute template named %s", name)
	}
	return output.String(), nil
}

type commitMessageData struct {
	PullRequest *PullRequest
	Reviewers   []string
	Merger      string
	Statuses    []Status
}

// RenderCommitMessage builds the merge commit body. The pull request body is appended verbatim.
func RenderCommitMessage(pr *PullRequest, merge Merge, statuses []Status) (string, error) {
	return renderTemplate("commitMessage", commitMessageData{
		PullRequest: pr,
		Reviewers:   merge.Reviewers,
		Merger:      merge.Merger,
		Statuses:    statuses,
	})
}

// Render maps an outcome to the status, message and side effects of the evaluation.
func Render(outcome Outcome) (Decision, error) {
	switch o := outcome.(type) {
	case Blocked:
		return comment(blockedMessage), nil

	case NotClean:
		msg, err := renderTemplate("notClean", o)
		if err != nil {
			return Decision{}, err
		}
		if o.MergeCommand {
			return comment(msg + notCleanReminder), nil
		}
		return Decision{Status: http.StatusOK, Message: msg}, nil

	case NoMergeSignal:
		return Decision{Status: http.StatusOK, Message: noMergeMessage}, nil

	case InsufficientApproval:
		msg, err := renderTemplate("insufficientApproval", o)
		if err != nil {
			return Decision{}, err
		}
		return comment(msg), nil

	case Merge:
		var actions []Action
		if o.Incident {
			actions = append(actions, AddLabel(IncidentLabel))
		}
		actions = append(actions, MergePR(o.Message))
		return Decision{Status: http.StatusOK, Actions: actions}, nil
	}

	return Decision{}, errors.Errorf("unknown outcome %T", outcome)
}

// comment requests a single comment. The message is filled in once the comment is posted.
func comment(text string) Decision {
	return Decision{Status: http.StatusOK, Message: fmt.Sprintf("Commented:\n%s", text), Actions: []Action{PostComment(text)}}
}
