package plugin

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"reflect"
	"strings"

	"github.com/pkg/errors"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/mattermost/mattermost/server/public/pluginapi"

	"github.com/mattermost/mattermost-plugin-mergegate/server/gate"
	"github.com/mattermost/mattermost-plugin-mergegate/server/hosting"
)

// Configuration captures the plugin's external configuration as exposed in the Mattermost server
// configuration, as well as values computed from the configuration. Any public fields will be
// deserialized from the Mattermost server configuration in OnConfigurationChange.
//
// Access to the configuration is synchronized by guarding a pointer to it and cloning the entire
// struct whenever it changes.
type Configuration struct {
	GitHubToken               string `json:"githubtoken"`
	WebhookSecret             string `json:"webhooksecret"`
	EnterpriseBaseURL         string `json:"enterprisebaseurl"`
	EnterpriseUploadURL       string `json:"enterpriseuploadurl"`
	Repositories              string `json:"repositories"`
	PlusOnesRequired          int    `json:"plusonesrequired"`
	PostInstructions          bool   `json:"postinstructions"`
	Instructions              string `json:"instructions"`
	NotificationChannelID     string `json:"notificationchannelid"`
	MergeAllowedUsers         string `json:"mergeallowedusers"`
	EnableWebhookEventLogging bool   `json:"enablewebhookeventlogging"`
}

func (c *Configuration) ToMap() (map[string]interface{}, error) {
	var out map[string]interface{}
	data, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	err = json.Unmarshal(data, &out)
	if err != nil {
		return nil, err
	}

	return out, nil
}

func (c *Configuration) setDefaults() (bool, error) {
	changed := false

	if c.WebhookSecret == "" {
		secret, err := generateSecret()
		if err != nil {
			return false, err
		}

		c.WebhookSecret = secret
		changed = true
	}

	if c.PlusOnesRequired < 1 {
		c.PlusOnesRequired = gate.DefaultPlusOnesRequired
		changed = true
	}

	return changed, nil
}

func (c *Configuration) sanitize() {
	c.EnterpriseBaseURL = strings.TrimRight(c.EnterpriseBaseURL, "/")
	c.EnterpriseUploadURL = strings.TrimRight(c.EnterpriseUploadURL, "/")

	c.GitHubToken = strings.TrimSpace(c.GitHubToken)
	c.Repositories = strings.TrimSpace(c.Repositories)
	c.NotificationChannelID = strings.TrimSpace(c.NotificationChannelID)
	c.MergeAllowedUsers = strings.TrimSpace(c.MergeAllowedUsers)
}

// Settings returns the merge rules handed to the merge gate.
func (c *Configuration) Settings() gate.Settings {
	return gate.Settings{
		PlusOnesRequired: c.PlusOnesRequired,
		PostInstructions: c.PostInstructions,
		Instructions:     c.Instructions,
	}
}

func (c *Configuration) enterpriseURLs() hosting.EnterpriseURLs {
	return hosting.EnterpriseURLs{
		BaseURL:   c.EnterpriseBaseURL,
		UploadURL: c.EnterpriseUploadURL,
	}
}

// managedRepositories parses the comma separated allow list. An empty list allows every repository.
func (c *Configuration) managedRepositories() map[string]bool {
	repos := map[string]bool{}
	for _, r := range strings.Split(c.Repositories, ",") {
		r = strings.ToLower(strings.TrimSpace(r))
		if r != "" {
			repos[r] = true
		}
	}
	return repos
}

// IsManaged reports whether the bot acts on the given repository.
func (c *Configuration) IsManaged(project gate.Project) bool {
	repos := c.managedRepositories()
	if len(repos) == 0 {
		return true
	}

	return repos[strings.ToLower(project.String())] || repos[strings.ToLower(project.Owner)]
}

// CanMerge reports whether a Mattermost user may merge from the slash command. System admins
// always can, anyone else has to be listed in MergeAllowedUsers.
func (c *Configuration) CanMerge(user *model.User) bool {
	if user.IsSystemAdmin() {
		return true
	}

	for _, username := range strings.Split(c.MergeAllowedUsers, ",") {
		username = strings.TrimPrefix(strings.TrimSpace(username), "@")
		if username != "" && strings.EqualFold(username, user.Username) {
			return true
		}
	}

	return false
}

// Clone shallow copies the configuration.
func (c *Configuration) Clone() *Configuration {
	var clone = *c
	return &clone
}

// IsValid checks if all needed fields are set.
func (c *Configuration) IsValid() error {
	if c.GitHubToken == "" {
		return errors.New("must have a github token")
	}

	if c.WebhookSecret == "" {
		return errors.New("must have a webhook secret")
	}

	if (c.EnterpriseBaseURL == "") != (c.EnterpriseUploadURL == "") {
		return errors.New("enterprise base and upload URLs must be set together")
	}

	if c.EnterpriseBaseURL != "" {
		if err := isValidURL(c.EnterpriseBaseURL); err != nil {
			return errors.Wrap(err, "invalid enterprise base URL")
		}
		if err := isValidURL(c.EnterpriseUploadURL); err != nil {
			return errors.Wrap(err, "invalid enterprise upload URL")
		}
	}

	for repo := range c.managedRepositories() {
		if strings.Contains(repo, "/") {
			if _, err := gate.ParseProject(repo); err != nil {
				return errors.Wrap(err, "invalid repositories setting")
			}
		}
	}

	return nil
}

// getConfiguration retrieves the active configuration under lock, making it safe to use
// concurrently. The active configuration may change underneath the client of this method, but
// the struct returned by this API call is considered immutable.
func (p *Plugin) getConfiguration() *Configuration {
	p.configurationLock.RLock()
	defer p.configurationLock.RUnlock()

	if p.configuration == nil {
		return &Configuration{}
	}

	return p.configuration
}

// setConfiguration replaces the active configuration under lock.
//
// Do not call setConfiguration while holding the configurationLock, as sync.Mutex is not
// reentrant.
//
// This method panics if setConfiguration is called with the existing configuration. This almost
// certainly means that the configuration was modified without being cloned and may result in
// an unsafe access.
func (p *Plugin) setConfiguration(configuration *Configuration) {
	p.configurationLock.Lock()
	defer p.configurationLock.Unlock()

	if configuration != nil && p.configuration == configuration {
		// Ignore assignment if the configuration struct is empty. Go will optimize the
		// allocation for same to point at the same memory address, breaking the check
		// above.
		if reflect.ValueOf(*configuration).NumField() == 0 {
			return
		}

		panic("setConfiguration called with the existing configuration")
	}

	p.configuration = configuration
}

// OnConfigurationChange is invoked when configuration changes may have been made.
func (p *Plugin) OnConfigurationChange() error {
	if p.client == nil {
		p.client = pluginapi.NewClient(p.API, p.Driver)
	}

	var configuration = new(Configuration)

	// Load the public configuration fields from the Mattermost server configuration.
	err := p.client.Configuration.LoadPluginConfiguration(configuration)
	if err != nil {
		return errors.Wrap(err, "failed to load plugin configuration")
	}

	configuration.sanitize()

	p.setConfiguration(configuration)

	err = p.client.SlashCommand.Register(p.getCommand())
	if err != nil {
		return errors.Wrap(err, "failed to register command")
	}

	return nil
}

func (p *Plugin) setDefaultConfiguration() error {
	config := p.getConfiguration().Clone()

	changed, err := config.setDefaults()
	if err != nil {
		return err
	}

	if changed {
		configMap, err := config.ToMap()
		if err != nil {
			return err
		}

		appErr := p.API.SavePluginConfig(configMap)
		if appErr != nil {
			return appErr
		}
	}

	return nil
}

func generateSecret() (string, error) {
	b := make([]byte, 256)
	_, err := rand.Read(b)
	if err != nil {
		return "", err
	}
	s := base64.RawStdEncoding.EncodeToString(b)

	s = s[:32]

	return s, nil
}
