// Package status defines the closed certification status vocabulary and the
// transition rules between statuses.
package status

import (
	"errors"
	"strings"
)

// Status represents a customer's position in the certification pipeline.
type Status string

const (
	StatusNew                Status = "NEW"
	StatusNotified           Status = "NOTIFIED"
	StatusSubmitted          Status = "SUBMITTED"
	StatusCertified          Status = "CERTIFIED"
	StatusAborted            Status = "ABORTED"
	StatusCertifiedElsewhere Status = "CERTIFIED_ELSEWHERE"
)

var ErrUnknownStatus = errors.New("unknown_status")

// all lists every member of the vocabulary in pipeline order. Target sets
// returned by AllowedTargets follow this order.
var all = []Status{
	StatusNew,
	StatusNotified,
	StatusSubmitted,
	StatusCertified,
	StatusAborted,
	StatusCertifiedElsewhere,
}

// transitions is the single source of truth for legal moves. It is built once
// and never mutated. Self-transitions are rejected before the table is
// consulted, so no status lists itself.
var transitions = map[Status]map[Status]struct{}{
	StatusNew:                targetSet(StatusNotified, StatusAborted, StatusCertifiedElsewhere),
	StatusNotified:           targetSet(StatusSubmitted, StatusAborted, StatusCertifiedElsewhere),
	StatusSubmitted:          targetSet(StatusCertified, StatusAborted, StatusCertifiedElsewhere),
	StatusAborted:            targetSet(StatusNew, StatusCertifiedElsewhere),
	StatusCertified:          targetSet(),
	StatusCertifiedElsewhere: targetSet(StatusNotified, StatusSubmitted, StatusCertified, StatusAborted),
}

func targetSet(targets ...Status) map[Status]struct{} {
	set := make(map[Status]struct{}, len(targets))
	for _, target := range targets {
		set[target] = struct{}{}
	}
	return set
}

// All returns every status in the vocabulary.
func All() []Status {
	out := make([]Status, len(all))
	copy(out, all)
	return out
}

// Parse validates a raw value against the closed vocabulary.
func Parse(value string) (Status, error) {
	candidate := Status(strings.ToUpper(strings.TrimSpace(value)))
	if !IsValid(candidate) {
		return "", ErrUnknownStatus
	}
	return candidate, nil
}

// IsValid reports whether the value belongs to the vocabulary.
func IsValid(value Status) bool {
	_, ok := transitions[value]
	return ok
}

// IsAllowed reports whether from -> to is a legal transition. Unknown values
// and self-transitions are never allowed.
func IsAllowed(from, to Status) bool {
	if from == to {
		return false
	}
	targets, ok := transitions[from]
	if !ok {
		return false
	}
	_, ok = targets[to]
	return ok
}

// AllowedTargets returns the legal target set for a status, in vocabulary
// order. The result is empty for terminal or unknown statuses.
func AllowedTargets(from Status) []Status {
	targets, ok := transitions[from]
	if !ok || len(targets) == 0 {
		return nil
	}
	out := make([]Status, 0, len(targets))
	for _, candidate := range all {
		if _, ok := targets[candidate]; ok {
			out = append(out, candidate)
		}
	}
	return out
}
