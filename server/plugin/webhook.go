package plugin

import (
	"context"
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // GitHub webhooks are signed using sha1 https://developer.github.com/webhooks/.
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/google/go-github/v54/github"

	"github.com/mattermost/mattermost-plugin-mergegate/server/gate"
)

type eventHandler func(ctx context.Context, evaluator *gate.Evaluator, project gate.Project) (gate.Decision, error)

func verifyWebhookSignature(secret []byte, signature string, body []byte) (bool, error) {
	const signaturePrefix = "sha1="
	const signatureLength = 45

	if len(signature) != signatureLength || !strings.HasPrefix(signature, signaturePrefix) {
		return false, nil
	}

	actual := make([]byte, 20)
	_, err := hex.Decode(actual, []byte(signature[5:]))
	if err != nil {
		return false, err
	}

	sb, err := signBody(secret, body)
	if err != nil {
		return false, err
	}

	return hmac.Equal(sb, actual), nil
}

func signBody(secret, body []byte) ([]byte, error) {
	computed := hmac.New(sha1.New, secret)
	_, err := computed.Write(body)
	if err != nil {
		return nil, err
	}

	return computed.Sum(nil), nil
}

func projectFromRepo(repo *github.Repository) gate.Project {
	return gate.Project{Owner: repo.GetOwner().GetLogin(), Repo: repo.GetName()}
}

func (p *Plugin) handleWebhook(w http.ResponseWriter, r *http.Request) {
	config := p.getConfiguration()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Bad request body", http.StatusBadRequest)
		return
	}

	signature := r.Header.Get("X-Hub-Signature")
	valid, err := verifyWebhookSignature([]byte(config.WebhookSecret), signature, body)
	if err != nil {
		p.client.Log.Warn("Failed to verify webhook signature", "error", err.Error())
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	if !valid {
		http.Error(w, "Not authorized", http.StatusUnauthorized)
		return
	}

	event, err := github.ParseWebHook(github.WebHookType(r), body)
	if err != nil {
		p.client.Log.Debug("GitHub webhook content type should be set to \"application/json\"", "error", err.Error())
		http.Error(w, "wrong mime-type. should be \"application/json\"", http.StatusBadRequest)
		return
	}

	if config.EnableWebhookEventLogging {
		bodyByte, err := json.Marshal(event)
		if err != nil {
			p.client.Log.Warn("Error while Marshal Webhook Request", "error", err.Error())
			http.Error(w, "Error while Marshal Webhook Request", http.StatusBadRequest)
			return
		}
		p.client.Log.Debug("Webhook Event Log", "event", string(bodyByte))
	}

	var repo *github.Repository
	var handler eventHandler

	switch event := event.(type) {
	case *github.PingEvent:
		writeText(w, http.StatusOK, "pong")
		return
	case *github.IssueCommentEvent:
		if !event.GetIssue().IsPullRequest() {
			writeText(w, http.StatusOK, "not a pull request comment, skipping")
			return
		}
		repo = event.GetRepo()
		handler = func(ctx context.Context, evaluator *gate.Evaluator, project gate.Project) (gate.Decision, error) {
			return evaluator.HandleComment(ctx, project, gate.CommentEvent{
				Action: event.GetAction(),
				Number: event.GetIssue().GetNumber(),
				Body:   event.GetComment().GetBody(),
				Sender: event.GetSender().GetLogin(),
			})
		}
	case *github.StatusEvent:
		repo = event.GetRepo()
		handler = func(ctx context.Context, evaluator *gate.Evaluator, project gate.Project) (gate.Decision, error) {
			return evaluator.HandleStatus(ctx, project, gate.StatusEvent{
				State: event.GetState(),
				SHA:   event.GetSHA(),
			})
		}
	case *github.PullRequestEvent:
		repo = event.GetRepo()
		handler = func(ctx context.Context, evaluator *gate.Evaluator, project gate.Project) (gate.Decision, error) {
			return evaluator.HandlePullRequest(ctx, project, gate.PullRequestEvent{
				Action: event.GetAction(),
				Number: event.GetNumber(),
			})
		}
	}

	if handler == nil {
		writeText(w, http.StatusOK, "Unhandled event type "+github.WebHookType(r))
		return
	}

	project := projectFromRepo(repo)
	if !config.IsManaged(project) {
		writeText(w, http.StatusOK, "Repository "+project.String()+" is not managed, skipping")
		return
	}

	evaluator, err := p.newEvaluator(config)
	if err != nil {
		p.client.Log.Warn("Failed to create evaluator", "error", err.Error())
		http.Error(w, "Failed to connect to GitHub", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	decision, err := handler(ctx, evaluator, project)
	if err != nil {
		p.client.Log.Warn("Failed to handle webhook event", "project", project.String(), "event", github.WebHookType(r), "error", err.Error())
		http.Error(w, "Failed to handle event", http.StatusInternalServerError)
		return
	}

	p.client.Log.Debug("Handled webhook event", "project", project.String(), "event", github.WebHookType(r), "status", decision.Status, "message", decision.Message)
	writeText(w, decision.Status, decision.Message)
}

func writeText(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(message))
}
