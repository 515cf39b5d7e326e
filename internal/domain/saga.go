package domain

import "time"

// Saga step status constants.
const (
	SagaStepCompleted   = "completed"
	SagaStepFailed      = "failed"
	SagaStepCompensated = "compensated"
)

// Saga step names, one per remote call.
const (
	SagaStepGetCart     = "get_cart"
	SagaStepCreateOrder = "create_order"
	SagaStepGetOrder    = "get_order"
	SagaStepCreateSale  = "create_sale"
	SagaStepDeleteCart  = "delete_cart"
	SagaStepDeleteOrder = "delete_order"
	SagaStepDeleteSale  = "delete_sale"
)

// SagaStep records the result of one remote call made during a checkout.
type SagaStep struct {
	Name       string    `json:"name"`
	Status     string    `json:"status"`
	Target     string    `json:"target,omitempty"`
	Error      string    `json:"error,omitempty"`
	ExecutedAt time.Time `json:"executed_at"`
}

// CompletedStep records a successful call. target names the affected record
// (order id, item no or document no) and may be empty.
func CompletedStep(name, target string) SagaStep {
	return SagaStep{Name: name, Status: SagaStepCompleted, Target: target, ExecutedAt: time.Now().UTC()}
}

// FailedStep records a failed call.
func FailedStep(name, target string, err error) SagaStep {
	s := SagaStep{Name: name, Status: SagaStepFailed, Target: target, ExecutedAt: time.Now().UTC()}
	if err != nil {
		s.Error = err.Error()
	}
	return s
}

// CompensatedStep records a successful undo call.
func CompensatedStep(name, target string) SagaStep {
	return SagaStep{Name: name, Status: SagaStepCompensated, Target: target, ExecutedAt: time.Now().UTC()}
}
