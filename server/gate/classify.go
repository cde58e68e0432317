package gate

import (
	"regexp"
	"strings"
)

// Signal is a single interpretation of a comment body.
type Signal int

const (
	SignalMergeTrigger Signal = iota
	SignalApprove
	SignalReject
	SignalBlock
	SignalIncidentOverride
)

func (s Signal) String() string {
	switch s {
	case SignalMergeTrigger:
		return "merge_trigger"
	case SignalApprove:
		return "approve"
	case SignalReject:
		return "reject"
	case SignalBlock:
		return "block"
	case SignalIncidentOverride:
		return "incident_override"
	}
	return "unknown"
}

// Signals is the set of signals found in one comment.
type Signals map[Signal]bool

func (s Signals) Has(signal Signal) bool {
	return s[signal]
}

var (
	mergeTokens   = []string{":shipit:", ":ship:", "\U0001F6A2", "!merge"}
	approveTokens = []string{":+1:", ":thumbsup:", "\U0001F44D"}
	rejectTokens  = []string{":-1:", ":thumbsdown:", "\U0001F44E"}

	approvePrefixes = []string{"+1", "LGTM"}
	rejectPrefixes  = []string{"-1"}
	blockPrefixes   = []string{":poop:", ":hankey:", "\U0001F4A9", "-2"}

	incidentRegex = regexp.MustCompile(`(?i:jira).*INCIDENT`)
)

func containsAny(body string, tokens []string) bool {
	for _, token := range tokens {
		if strings.Contains(body, token) {
			return true
		}
	}
	return false
}

func hasAnyPrefix(body string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(body, prefix) {
			return true
		}
	}
	return false
}

// IsMergeTrigger reports whether the body asks the bot to merge.
func IsMergeTrigger(body string) bool {
	return containsAny(body, mergeTokens)
}

func IsApprove(body string) bool {
	return containsAny(body, approveTokens) || hasAnyPrefix(body, approvePrefixes)
}

func IsReject(body string) bool {
	return containsAny(body, rejectTokens) || hasAnyPrefix(body, rejectPrefixes)
}

// IsBlock reports a hard veto. Only the start of the body is considered.
func IsBlock(body string) bool {
	return hasAnyPrefix(body, blockPrefixes)
}

// IsIncidentOverride reports whether the body references an incident ticket.
func IsIncidentOverride(body string) bool {
	return incidentRegex.MatchString(body)
}

var matchers = []struct {
	signal Signal
	match  func(string) bool
}{
	{SignalMergeTrigger, IsMergeTrigger},
	{SignalApprove, IsApprove},
	{SignalReject, IsReject},
	{SignalBlock, IsBlock},
	{SignalIncidentOverride, IsIncidentOverride},
}

// Classify returns every signal present in the comment. Comments written by the bot itself carry
// no signals.
func Classify(comment Comment, botIdentity string) Signals {
	signals := Signals{}
	if botIdentity != "" && comment.Author == botIdentity {
		return signals
	}

	for _, m := range matchers {
		if m.match(comment.Body) {
			signals[m.signal] = true
		}
	}

	return signals
}
