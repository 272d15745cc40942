// Package linking implements the account-linking state machine: given a
// signed-in user it decides whether another sign-in is needed, refreshes
// and uses both providers' tokens, persists fresh profile snapshots and
// publishes the role connection metadata.
package linking

import (
	"errors"
	"fmt"

	"github.com/osucord/linkedroles/internal/provider"
)

// OutcomeKind classifies what the linking attempt decided
type OutcomeKind int

// The possible linking outcomes
const (
	// OutcomeNeedSignIn means the user must authorize the provider named
	// in Outcome.Provider before linking can proceed.
	OutcomeNeedSignIn OutcomeKind = iota
	// OutcomeDone means both accounts are linked and the role connection
	// was published.
	OutcomeDone
	// OutcomeRetry means tokens were force-refreshed after a rejection
	// and the attempt should be repeated exactly once.
	OutcomeRetry
	// OutcomeFailed means the attempt cannot proceed; Message explains
	// why in user-facing terms.
	OutcomeFailed
)

// Outcome is the result of one linking attempt.
type Outcome struct {
	Kind     OutcomeKind
	Provider string
	Message  string
}

func needSignIn(providerID string) Outcome {
	return Outcome{Kind: OutcomeNeedSignIn, Provider: providerID}
}

func failed(message string) Outcome {
	return Outcome{Kind: OutcomeFailed, Message: message}
}

// displayName renders a provider id for user-facing messages
func displayName(providerID string) string {
	switch providerID {
	case provider.Osu:
		return "osu!"
	case provider.Discord:
		return "Discord"
	default:
		return providerID
	}
}

// resolve maps the error of a linking attempt onto an outcome. retry
// reports whether this attempt already followed a forced token refresh;
// a second rejection then means the provider itself is misbehaving, not
// our tokens.
func resolve(err error, retry bool) Outcome {
	if err == nil {
		return Outcome{Kind: OutcomeDone}
	}

	var unlinked *provider.UnlinkedError
	if errors.As(err, &unlinked) {
		// The provider revoked the grant and the user record is gone; a
		// fresh sign-in is the only way back, but this attempt is over.
		return failed(fmt.Sprintf("your %s account was unlinked, please sign in again", displayName(unlinked.Provider)))
	}

	var unauthorized *provider.UnauthorizedError
	if errors.As(err, &unauthorized) {
		if retry {
			return failed(fmt.Sprintf("%s appears to be down, please try again later", displayName(unauthorized.Provider)))
		}
		return Outcome{Kind: OutcomeRetry, Provider: unauthorized.Provider}
	}

	var rejection *provider.RejectionError
	if errors.As(err, &rejection) {
		return failed(fmt.Sprintf("your %s %s", displayName(rejection.Provider), rejection.Reason))
	}

	// Protocol errors are shown as-is, status and body included.
	var protocol *provider.ProtocolError
	if errors.As(err, &protocol) {
		return failed(fmt.Sprintf("%s responded with status %d: %s", displayName(protocol.Provider), protocol.Status, protocol.Body))
	}

	return failed("something went wrong, please try again later")
}
