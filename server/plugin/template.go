package plugin

import (
	"bytes"
	"html"
	"regexp"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/microcosm-cc/bluemonday"
	"github.com/pkg/errors"
)

const mdCommentRegexPattern string = `(<!--[\S\s]+?-->)`

var mdCommentRegex = regexp.MustCompile(mdCommentRegexPattern)
var masterTemplate *template.Template

func init() {
	var funcMap = sprig.TxtFuncMap()

	// Trim away markdown comments in the text
	funcMap["removeComments"] = func(body string) string {
		if len(strings.TrimSpace(body)) == 0 {
			return ""
		}
		return mdCommentRegex.ReplaceAllString(body, "")
	}

	// Quote the body
	funcMap["quote"] = func(body string) string {
		return ">" + strings.ReplaceAll(body, "\n", "\n>")
	}

	funcMap["sanitizeDescription"] = sanitizeDescription

	masterTemplate = template.Must(template.New("master").Funcs(funcMap).Parse(""))

	// The pullRequest links to the corresponding pull request, anchored at the repo.
	template.Must(masterTemplate.New("pullRequest").Parse(
		`[{{.Project}}#{{.PullRequest.Number}}]({{.PullRequest.URL}}) - {{.PullRequest.Title}}`,
	))

	template.Must(masterTemplate.New("mergedNotification").Parse(`
{{- template "pullRequest" .}}
{{if .Outcome.Incident}}#incident {{end}}#merged by {{.Outcome.Merger}}
{{- if .Outcome.Reviewers}}
Reviewers: {{.Outcome.Reviewers | join ", "}}
{{- end}}
{{- $body := .PullRequest.Body | removeComments | sanitizeDescription}}
{{- if $body}}

{{$body | quote}}
{{- end}}
`))

	template.Must(masterTemplate.New("blockedNotification").Parse(`
{{- template "pullRequest" .}}
#blocked: {{.Outcome.Reason}}
`))

	template.Must(masterTemplate.New("decisionText").Parse(`
{{- template "pullRequest" .}}
**{{.Decision.Outcome}}**: {{.Decision.Summary}}
{{- if .Decision.Reviewers}}
Reviewers: {{.Decision.Reviewers | join ", "}}
{{- end}}
{{- if .Decision.Merger}}
Merger: {{.Decision.Merger}}
{{- end}}
`))

	template.Must(masterTemplate.New("helpText").Parse("" +
		"* `/mergegate merge owner/repo number` - Merge a pull request once it has enough approvals and its builds are green. You are recorded as the deployer.\n" +
		"* `/mergegate status owner/repo number` - Show what the merge gate would decide for a pull request, without acting on it.\n" +
		"* `/mergegate help` - Display Slash Command help text\n" +
		"\n" +
		"Pull requests need at least {{.PlusOnesRequired}} approval(s) from people other than the author. " +
		"Approve with `+1`, `LGTM` or :+1:, reject with `-1` or :-1:, and block with `-2` or :poop:. " +
		"Comment `!merge` or :shipit: to merge.\n",
	))
}

func renderTemplate(name string, data interface{}) (string, error) {
	var output bytes.Buffer
	err := masterTemplate.ExecuteTemplate(&output, name, data)
	if err != nil {
		return "", errors.Wrapf(err, "Could not execute template named %s", name)
	}

	return output.String(), nil
}

func sanitizeDescription(description string) string {
	if strings.Contains(description, "<details>") {
		var policy = bluemonday.StrictPolicy()
		policy.SkipElementsContent("details")
		description = html.UnescapeString(policy.Sanitize(description))
	}
	return strings.TrimSpace(description)
}
