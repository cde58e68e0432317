package plugin

import (
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/mattermost/mattermost/server/public/plugin"
	"github.com/mattermost/mattermost/server/public/pluginapi"

	root "github.com/mattermost/mattermost-plugin-mergegate"
	"github.com/mattermost/mattermost-plugin-mergegate/server/gate"
	"github.com/mattermost/mattermost-plugin-mergegate/server/hosting"
)

const requestTimeout = 30 * time.Second

var (
	Manifest model.Manifest = root.Manifest
)

type Plugin struct {
	plugin.MattermostPlugin
	client *pluginapi.Client

	// configurationLock synchronizes access to the configuration.
	configurationLock sync.RWMutex

	// configuration is the active plugin configuration. Consult getConfiguration and
	// setConfiguration for usage.
	configuration *Configuration

	router *mux.Router

	BotUserID string

	CommandHandlers map[string]CommandHandleFunc

	// newGateClient builds the hosting client used for a single evaluation.
	newGateClient func(config *Configuration) (gate.Client, error)
}

// NewPlugin returns an instance of a Plugin.
func NewPlugin() *Plugin {
	p := &Plugin{
		newGateClient: newGitHubGateClient,
	}

	p.CommandHandlers = map[string]CommandHandleFunc{
		"merge":  p.handleMerge,
		"status": p.handleStatus,
		"help":   p.handleHelp,
		"":       p.handleHelp,
	}

	return p
}

func newGitHubGateClient(config *Configuration) (gate.Client, error) {
	gh, err := hosting.NewGitHubClient(config.GitHubToken, config.enterpriseURLs())
	if err != nil {
		return nil, errors.Wrap(err, "failed to create GitHub client")
	}

	return hosting.NewClient(gh), nil
}

// newEvaluator builds a merge gate evaluator from the current configuration. Evaluators are
// never shared between requests.
func (p *Plugin) newEvaluator(config *Configuration) (*gate.Evaluator, error) {
	client, err := p.newGateClient(config)
	if err != nil {
		return nil, err
	}

	evaluator := gate.NewEvaluator(client, config.Settings(), &p.client.Log)
	evaluator.OnDecision = p.notifyDecision
	return evaluator, nil
}

func (p *Plugin) OnActivate() error {
	p.client = pluginapi.NewClient(p.API, p.Driver)

	err := p.setDefaultConfiguration()
	if err != nil {
		return errors.Wrap(err, "failed to set default configuration")
	}

	p.initializeAPI()

	botID, err := p.client.Bot.EnsureBot(&model.Bot{
		OwnerId:     Manifest.Id,
		Username:    "mergegate",
		DisplayName: "Merge Gate",
		Description: "Created by the Merge Gate plugin.",
	})
	if err != nil {
		return errors.Wrap(err, "failed to ensure merge gate bot")
	}
	p.BotUserID = botID

	return nil
}
