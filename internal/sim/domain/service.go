package domain

import (
	"context"
	"errors"
	"fmt"
)

// Operation names a lifecycle command.
type Operation string

const (
	OperationActivate   Operation = "activate"
	OperationDeactivate Operation = "deactivate"
	OperationBlock      Operation = "block"
	OperationUnblock    Operation = "unblock"
)

type CreateRequest struct {
	ICCID            string `json:"iccid"`
	IMSI             string `json:"imsi"`
	MSISDN           string `json:"msisdn"`
	APN              string `json:"apn"`
	RatePlanID       string `json:"ratePlanId"`
	DataLimitBytes   *int64 `json:"dataLimitBytes"`
	BillingAccountID string `json:"billingAccountId"`
	CustomerID       string `json:"customerId"`
	Activate         bool   `json:"activate"`
}

// TransitionRequest carries the optional caller metadata every lifecycle
// command accepts. Reason is mandatory for block and validated against the
// closed enum there.
type TransitionRequest struct {
	SimID         string `json:"-"`
	Reason        string `json:"reason"`
	Notes         string `json:"notes"`
	CorrelationID string `json:"correlationId"`
}

// TransitionResult reports the applied transition. Changed is false only for
// the soft already-blocked outcome, which is acknowledged rather than failed.
type TransitionResult struct {
	SIM     *SIM
	Changed bool
	Note    string
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*SIM, error)
	Get(ctx context.Context, simID string) (*SIM, error)
	GetByICCID(ctx context.Context, iccid string) (*SIM, error)
	Activate(ctx context.Context, req TransitionRequest) (*TransitionResult, error)
	Deactivate(ctx context.Context, req TransitionRequest) (*TransitionResult, error)
	Block(ctx context.Context, req TransitionRequest) (*TransitionResult, error)
	Unblock(ctx context.Context, req TransitionRequest) (*TransitionResult, error)
}

var (
	ErrSimNotFound    = errors.New("sim_not_found")
	ErrDuplicateICCID = errors.New("duplicate_iccid")
)

// InvalidTransitionError reports an illegal lifecycle move, carrying the
// current and attempted states for diagnostics.
type InvalidTransitionError struct {
	Operation Operation
	Current   Status
	Attempted Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid_state_transition: %s from %s to %s", e.Operation, e.Current, e.Attempted)
}

// TargetStatus returns the state an operation moves a SIM into. Unblock has
// no static target; it restores the preserved pre-block state.
func (o Operation) TargetStatus() Status {
	switch o {
	case OperationActivate:
		return StatusActive
	case OperationDeactivate:
		return StatusInactive
	case OperationBlock:
		return StatusBlocked
	default:
		return ""
	}
}
