package plugin

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/mattermost/mattermost/server/public/plugin"

	"github.com/mattermost/mattermost-plugin-mergegate/server/gate"
)

const commandTrigger = "mergegate"

type CommandHandleFunc func(c *plugin.Context, args *model.CommandArgs, parameters []string) string

func (p *Plugin) getCommand() *model.Command {
	return &model.Command{
		Trigger:          commandTrigger,
		AutoComplete:     true,
		AutoCompleteDesc: "Available commands: merge, status, help",
		AutoCompleteHint: "[command]",
		AutocompleteData: getAutocompleteData(),
	}
}

func getAutocompleteData() *model.AutocompleteData {
	mergegate := model.NewAutocompleteData(commandTrigger, "[command]", "Available commands: merge, status, help")

	merge := model.NewAutocompleteData("merge", "[owner/repo] [number]", "Merge a pull request once it is approved and its builds are green")
	merge.AddTextArgument("Owner/repo of the pull request", "[owner/repo]", "")
	merge.AddTextArgument("Pull request number", "[number]", `/^\d+$/`)
	mergegate.AddCommand(merge)

	status := model.NewAutocompleteData("status", "[owner/repo] [number]", "Show what the merge gate would decide for a pull request")
	status.AddTextArgument("Owner/repo of the pull request", "[owner/repo]", "")
	status.AddTextArgument("Pull request number", "[number]", `/^\d+$/`)
	mergegate.AddCommand(status)

	help := model.NewAutocompleteData("help", "", "Display Slash Command help text")
	mergegate.AddCommand(help)

	return mergegate
}

func (p *Plugin) postCommandResponse(args *model.CommandArgs, text string) {
	post := &model.Post{
		UserId:    p.BotUserID,
		ChannelId: args.ChannelId,
		RootId:    args.RootId,
		Message:   text,
	}
	_ = p.API.SendEphemeralPost(args.UserId, post)
}

// ExecuteCommand executes a given command and returns a command response.
func (p *Plugin) ExecuteCommand(c *plugin.Context, args *model.CommandArgs) (*model.CommandResponse, *model.AppError) {
	cmd, action, parameters := parseCommand(args.Command)

	if cmd != "/"+commandTrigger {
		return &model.CommandResponse{}, nil
	}

	handler, ok := p.CommandHandlers[action]
	if !ok {
		p.postCommandResponse(args, fmt.Sprintf("Unknown action `%v`. Use `/%s help` to see the available commands.", action, commandTrigger))
		return &model.CommandResponse{}, nil
	}

	if action != "help" && action != "" {
		if err := p.getConfiguration().IsValid(); err != nil {
			p.postCommandResponse(args, "Please contact your system administrator to correctly configure the Merge Gate plugin.")
			return &model.CommandResponse{}, nil
		}
	}

	if response := handler(c, args, parameters); response != "" {
		p.postCommandResponse(args, response)
	}

	return &model.CommandResponse{}, nil
}

// parsePullRequestParameters reads the owner/repo and number arguments shared by merge and status.
func (p *Plugin) parsePullRequestParameters(action string, parameters []string) (gate.Project, int, string) {
	usage := fmt.Sprintf("Please specify a repository and a pull request number: `/%s %s owner/repo number`", commandTrigger, action)
	if len(parameters) != 2 {
		return gate.Project{}, 0, usage
	}

	project, err := gate.ParseProject(parameters[0])
	if err != nil {
		return gate.Project{}, 0, usage
	}

	number, err := strconv.Atoi(strings.TrimPrefix(parameters[1], "#"))
	if err != nil || number <= 0 {
		return gate.Project{}, 0, usage
	}

	if !p.getConfiguration().IsManaged(project) {
		return gate.Project{}, 0, fmt.Sprintf("%s is not managed by the merge gate.", project)
	}

	return project, number, ""
}

func (p *Plugin) handleMerge(_ *plugin.Context, args *model.CommandArgs, parameters []string) string {
	project, number, problem := p.parsePullRequestParameters("merge", parameters)
	if problem != "" {
		return problem
	}

	user, err := p.client.User.Get(args.UserId)
	if err != nil {
		p.client.Log.Warn("Failed to get user", "user_id", args.UserId, "error", err.Error())
		return "Encountered an error looking up your user."
	}

	config := p.getConfiguration()
	if !config.CanMerge(user) {
		return "You are not allowed to merge pull requests. Ask your system administrator to add you to the merge gate's allowed users."
	}

	evaluator, err := p.newEvaluator(config)
	if err != nil {
		p.client.Log.Warn("Failed to create evaluator", "error", err.Error())
		return "Failed to connect to GitHub."
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	decision, err := evaluator.MaybeMerge(ctx, project, number, true, user.Username)
	if err != nil {
		p.client.Log.Warn("Failed to merge pull request", "project", project.String(), "number", number, "error", err.Error())
		return fmt.Sprintf("Failed to evaluate %s#%d.", project, number)
	}

	return decision.Message
}

func (p *Plugin) handleStatus(_ *plugin.Context, _ *model.CommandArgs, parameters []string) string {
	project, number, problem := p.parsePullRequestParameters("status", parameters)
	if problem != "" {
		return problem
	}

	config := p.getConfiguration()
	evaluator, err := p.newEvaluator(config)
	if err != nil {
		p.client.Log.Warn("Failed to create evaluator", "error", err.Error())
		return "Failed to connect to GitHub."
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	pr, outcome, err := evaluator.Evaluate(ctx, project, number, false, "")
	if err != nil {
		p.client.Log.Warn("Failed to evaluate pull request", "project", project.String(), "number", number, "error", err.Error())
		return fmt.Sprintf("Failed to evaluate %s#%d.", project, number)
	}

	message, err := renderTemplate("decisionText", map[string]interface{}{
		"Project":     project,
		"PullRequest": pr,
		"Decision":    describeOutcome(outcome),
	})
	if err != nil {
		p.client.Log.Warn("Failed to render decision", "error", err.Error())
		return "Encountered an error rendering the decision."
	}

	return message
}

func (p *Plugin) handleHelp(_ *plugin.Context, _ *model.CommandArgs, _ []string) string {
	message, err := renderTemplate("helpText", p.getConfiguration())
	if err != nil {
		p.client.Log.Warn("Failed to render help template", "error", err.Error())
		return "Encountered an error posting help text."
	}

	return "###### Mattermost Merge Gate Plugin - Slash Command Help\n" + message
}

// parseCommand parses the entire command input string and retrieves the command, action and parameters
func parseCommand(input string) (command, action string, parameters []string) {
	split := make([]string, 0)
	current := ""
	inQuotes := false

	for _, char := range input {
		if unicode.IsSpace(char) {
			// keep whitespaces that are inside double qoutes
			if inQuotes {
				current += " "
				continue
			}

			// ignore successive whitespaces that are outside of double quotes
			if len(current) == 0 && !inQuotes {
				continue
			}

			// append the current word to the list & move on to the next word/expression
			split = append(split, current)
			current = ""
			continue
		}

		// append the current character to the current word
		current += string(char)

		if char == '"' {
			inQuotes = !inQuotes
		}
	}

	// append the last word/expression to the list
	if len(current) > 0 {
		split = append(split, current)
	}

	if len(split) == 0 {
		return "", "", nil
	}

	command = split[0]

	if len(split) > 1 {
		action = split[1]
	}

	if len(split) > 2 {
		parameters = split[2:]
	}

	return command, action, parameters
}
