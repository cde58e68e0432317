package plugin

import (
	"context"
	"path"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/mattermost/mattermost/server/public/plugin"
)

type SupportPacket struct {
	Version string `yaml:"version"`

	IsConfigured           bool   `yaml:"is_configured"`
	GitHubTokenSuffix      string `yaml:"github_token_suffix"`
	BotLogin               string `yaml:"bot_login"`
	UsesEnterprise         bool   `yaml:"uses_enterprise"`
	ManagedRepositoryCount int    `yaml:"managed_repository_count"`
	PlusOnesRequired       int    `yaml:"plus_ones_required"`
	PostInstructions       bool   `yaml:"post_instructions"`
	NotificationsEnabled   bool   `yaml:"notifications_enabled"`
}

func (p *Plugin) GenerateSupportData(_ *plugin.Context) ([]*model.FileData, error) {
	var result *multierror.Error

	config := p.getConfiguration()

	diagnostics := SupportPacket{
		Version:                Manifest.Version,
		IsConfigured:           config.IsValid() == nil,
		GitHubTokenSuffix:      lastN(config.GitHubToken, 4),
		UsesEnterprise:         config.EnterpriseBaseURL != "",
		ManagedRepositoryCount: len(config.managedRepositories()),
		PlusOnesRequired:       config.PlusOnesRequired,
		PostInstructions:       config.PostInstructions,
		NotificationsEnabled:   config.NotificationChannelID != "",
	}

	if err := config.IsValid(); err != nil {
		result = multierror.Append(result, errors.Wrap(err, "Plugin configuration is invalid"))
	} else {
		botLogin, err := p.getBotLogin(config)
		if err != nil {
			result = multierror.Append(result, errors.Wrap(err, "Failed to get the GitHub bot identity for Support Packet"))
		}
		diagnostics.BotLogin = botLogin
	}

	b, err := yaml.Marshal(diagnostics)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to marshal diagnostics")
	}

	return []*model.FileData{{
		Filename: path.Join(Manifest.Id, "diagnostics.yaml"),
		Body:     b,
	}}, result.ErrorOrNil()
}

func (p *Plugin) getBotLogin(config *Configuration) (string, error) {
	client, err := p.newGateClient(config)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	return client.CurrentBotIdentity(ctx)
}
