package plugin

import (
	"github.com/mattermost/mattermost/server/public/model"

	"github.com/mattermost/mattermost-plugin-mergegate/server/gate"
)

type notificationData struct {
	Project     gate.Project
	PullRequest *gate.PullRequest
	Outcome     gate.Outcome
}

// notifyDecision posts merges and blocks to the configured notification channel.
func (p *Plugin) notifyDecision(project gate.Project, pr *gate.PullRequest, outcome gate.Outcome) {
	channelID := p.getConfiguration().NotificationChannelID
	if channelID == "" || pr == nil {
		return
	}

	var templateName string
	switch outcome.(type) {
	case gate.Merge:
		templateName = "mergedNotification"
	case gate.Blocked:
		templateName = "blockedNotification"
	default:
		return
	}

	message, err := renderTemplate(templateName, notificationData{
		Project:     project,
		PullRequest: pr,
		Outcome:     outcome,
	})
	if err != nil {
		p.client.Log.Warn("Failed to render notification", "template", templateName, "error", err.Error())
		return
	}

	post := &model.Post{
		UserId:    p.BotUserID,
		ChannelId: channelID,
		Message:   message,
		Props: model.StringInterface{
			"mergegate_project": project.String(),
			"mergegate_number":  pr.Number,
		},
	}
	if err := p.client.Post.CreatePost(post); err != nil {
		p.client.Log.Warn("Error posting merge gate notification", "channel_id", channelID, "error", err.Error())
	}
}
