package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/mattermost/mattermost/server/public/plugin"

	"github.com/mattermost/mattermost-plugin-mergegate/server/gate"
)

const (
	headerMattermostUserID = "Mattermost-User-ID"

	ownerQueryParam  = "owner"
	repoQueryParam   = "repo"
	numberQueryParam = "number"
)

// APIErrorResponse is the JSON body of a failed API call.
type APIErrorResponse struct {
	ID         string `json:"id"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code"`
}

func (e *APIErrorResponse) Error() string {
	return e.Message
}

// DecisionResponse describes what the merge gate would do for a pull request.
type DecisionResponse struct {
	Outcome   string   `json:"outcome"`
	Summary   string   `json:"summary"`
	Reviewers []string `json:"reviewers,omitempty"`
	Merger    string   `json:"merger,omitempty"`
}

func (p *Plugin) writeJSON(w http.ResponseWriter, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		p.client.Log.Warn("Failed to marshal JSON response", "error", err.Error())
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if _, err = w.Write(b); err != nil {
		p.client.Log.Warn("Failed to write JSON response", "error", err.Error())
	}
}

func (p *Plugin) writeAPIError(w http.ResponseWriter, apiErr *APIErrorResponse) {
	b, err := json.Marshal(apiErr)
	if err != nil {
		p.client.Log.Warn("Failed to marshal API error", "error", err.Error())
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(apiErr.StatusCode)

	if _, err = w.Write(b); err != nil {
		p.client.Log.Warn("Failed to write JSON response", "error", err.Error())
	}
}

func (p *Plugin) initializeAPI() {
	p.router = mux.NewRouter()
	p.router.Use(p.withRecovery)

	apiRouter := p.router.PathPrefix("/api/v1").Subrouter()
	apiRouter.Use(p.checkConfigured)

	p.router.HandleFunc("/webhook", p.handleWebhook).Methods(http.MethodPost)

	apiRouter.HandleFunc("/decision", p.checkAuth(p.getDecision)).Methods(http.MethodGet)
}

func (p *Plugin) withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if x := recover(); x != nil {
				p.client.Log.Error("Recovered from a panic",
					"url", r.URL.String(),
					"error", x,
					"stack", string(debug.Stack()))
			}
		}()

		next.ServeHTTP(w, r)
	})
}

func (p *Plugin) checkConfigured(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		config := p.getConfiguration()

		if err := config.IsValid(); err != nil {
			http.Error(w, "This plugin is not configured.", http.StatusNotImplemented)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (p *Plugin) checkAuth(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(headerMattermostUserID)
		if userID == "" {
			p.writeAPIError(w, &APIErrorResponse{ID: "", Message: "Not authorized.", StatusCode: http.StatusUnauthorized})
			return
		}

		handler(w, r)
	}
}

// ServeHTTP routes plugin HTTP requests.
func (p *Plugin) ServeHTTP(c *plugin.Context, w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	p.router.ServeHTTP(w, r)
}

func (p *Plugin) getDecision(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	project := gate.Project{Owner: query.Get(ownerQueryParam), Repo: query.Get(repoQueryParam)}
	number, err := strconv.Atoi(query.Get(numberQueryParam))
	if err != nil || project.Owner == "" || project.Repo == "" || number <= 0 {
		p.writeAPIError(w, &APIErrorResponse{ID: "", Message: "Please provide a valid owner, repo and number.", StatusCode: http.StatusBadRequest})
		return
	}

	config := p.getConfiguration()
	if !config.IsManaged(project) {
		p.writeAPIError(w, &APIErrorResponse{ID: "", Message: fmt.Sprintf("%s is not managed by this bot.", project), StatusCode: http.StatusForbidden})
		return
	}

	evaluator, err := p.newEvaluator(config)
	if err != nil {
		p.client.Log.Warn("Failed to create evaluator", "error", err.Error())
		p.writeAPIError(w, &APIErrorResponse{ID: "", Message: "Failed to connect to GitHub.", StatusCode: http.StatusInternalServerError})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	_, outcome, err := evaluator.Evaluate(ctx, project, number, false, "")
	if err != nil {
		p.client.Log.Warn("Failed to evaluate pull request", "project", project.String(), "number", number, "error", err.Error())
		p.writeAPIError(w, &APIErrorResponse{ID: "", Message: "Failed to evaluate pull request.", StatusCode: http.StatusInternalServerError})
		return
	}

	p.writeJSON(w, describeOutcome(outcome))
}

func describeOutcome(outcome gate.Outcome) DecisionResponse {
	switch o := outcome.(type) {
	case gate.Merge:
		summary := fmt.Sprintf("Ready to merge with a score of %d.", o.NetScore)
		if o.Incident {
			summary = "Ready to merge as an incident."
		}
		return DecisionResponse{Outcome: "merge", Summary: summary, Reviewers: o.Reviewers, Merger: o.Merger}
	case gate.Blocked:
		return DecisionResponse{Outcome: "blocked", Summary: fmt.Sprintf("Blocked: %s.", o.Reason)}
	case gate.InsufficientApproval:
		return DecisionResponse{Outcome: "insufficient_approval", Summary: fmt.Sprintf("%d approvals required, have %d.", o.Required, o.Have)}
	case gate.NotClean:
		return DecisionResponse{Outcome: "not_clean", Summary: fmt.Sprintf("Merge state is %s.", o.State)}
	case gate.NoMergeSignal:
		return DecisionResponse{Outcome: "no_merge_signal", Summary: "Nobody asked to merge yet."}
	}

	return DecisionResponse{Outcome: "unknown"}
}
