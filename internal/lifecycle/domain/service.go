// Package domain defines the status lifecycle operations and their error
// taxonomy.
package domain

import (
	"context"
	"errors"
	"fmt"

	customerdomain "github.com/smallbiznis/certify/internal/customer/domain"
	historydomain "github.com/smallbiznis/certify/internal/history/domain"
	"github.com/smallbiznis/certify/internal/status"
)

type TransitionRequest struct {
	CustomerID   string
	TargetStatus string
	Reason       string
	Actor        string
}

// TransitionResult reports the customer after the call. Applied is false when
// the customer already held the target status and nothing was written.
type TransitionResult struct {
	Customer customerdomain.Customer            `json:"customer"`
	Applied  bool                               `json:"applied"`
	History  *historydomain.StatusHistoryRecord `json:"history,omitempty"`
}

type AllowedTargetsRequest struct {
	Status string
}

type AllowedTargetsResponse struct {
	Status  status.Status   `json:"status"`
	Targets []status.Status `json:"targets"`
}

type Service interface {
	// Transition moves one customer to a new status, appending history and
	// bumping certification aggregates atomically. Requesting the current
	// status is a successful no-op.
	Transition(ctx context.Context, req TransitionRequest) (TransitionResult, error)
	AllowedTargets(ctx context.Context, req AllowedTargetsRequest) (AllowedTargetsResponse, error)
}

var (
	ErrNotFound               = errors.New("customer_not_found")
	ErrConcurrentModification = errors.New("concurrent_modification")
	ErrInvalidID              = errors.New("invalid_customer_id")
	ErrInvalidReason          = errors.New("invalid_reason")
)

// RuleViolationError rejects a transition the table does not allow. Allowed
// lists the targets that would have been legal from the current status.
type RuleViolationError struct {
	From    status.Status   `json:"from"`
	To      status.Status   `json:"to"`
	Allowed []status.Status `json:"allowed"`
}

func (e *RuleViolationError) Error() string {
	return fmt.Sprintf("transition %s -> %s is not allowed", e.From, e.To)
}
