// Package approval holds the registration decision table applied by administrators.
package approval

import (
	"errors"
	"fmt"
	"strings"

	uniondomain "union-registry/backend/internal/union/domain"
)

var (
	ErrUnknownAction     = errors.New("action must be approve or reject")
	ErrInvalidTransition = errors.New("registration status does not allow this decision")
)

// Action is an administrative decision on a union registration.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

// ParseAction returns the action named by s, case-insensitively.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionApprove, ActionReject:
		return a, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
}

type transitionKey struct {
	from   uniondomain.RegistrationStatus
	action Action
}

// transitions lists every allowed decision. Same-state decisions and returns to pending are absent.
var transitions = map[transitionKey]uniondomain.RegistrationStatus{
	{uniondomain.StatusPending, ActionApprove}:  uniondomain.StatusApproved,
	{uniondomain.StatusPending, ActionReject}:   uniondomain.StatusRejected,
	{uniondomain.StatusRejected, ActionApprove}: uniondomain.StatusApproved,
	{uniondomain.StatusApproved, ActionReject}:  uniondomain.StatusRejected,
}

// Next returns the status a union in from moves to under a.
func Next(from uniondomain.RegistrationStatus, a Action) (uniondomain.RegistrationStatus, error) {
	to, ok := transitions[transitionKey{from, a}]
	if !ok {
		return "", fmt.Errorf("%w: %s from %s", ErrInvalidTransition, a, from)
	}
	return to, nil
}
