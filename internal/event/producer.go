package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/checkout-saga/internal/domain"
	pkgkafka "github.com/utafrali/checkout-saga/pkg/kafka"
	"github.com/utafrali/checkout-saga/pkg/logger"
)

// Kafka topic constants for checkout outcome events.
const (
	TopicCheckoutCompleted = "ecommerce.checkout.completed"
	TopicCheckoutFailed    = "ecommerce.checkout.failed"
)

// AggregateTypeCheckout is the aggregate type of every checkout event.
const AggregateTypeCheckout = "checkout"

// SourceCheckoutService identifies events originating from this service.
const SourceCheckoutService = "checkout-service"

// CheckoutCompletedData is the payload for a checkout.completed event.
type CheckoutCompletedData struct {
	ID              string   `json:"id"`
	Username        string   `json:"username"`
	OrderID         int64    `json:"order_id"`
	OrderDocumentNo string   `json:"order_document_no"`
	TotalPrice      int64    `json:"total_price"`
	SaleDocumentNos []string `json:"sale_document_nos"`
}

// CheckoutFailedData is the payload for a checkout.failed event.
type CheckoutFailedData struct {
	ID                    string             `json:"id"`
	Username              string             `json:"username"`
	Outcome               domain.OutcomeKind `json:"outcome"`
	Cause                 domain.OutcomeKind `json:"cause"`
	OrderID               int64              `json:"order_id,omitempty"`
	FailedItemNo          string             `json:"failed_item_no,omitempty"`
	Compensated           bool               `json:"compensated"`
	CompensationCompleted bool               `json:"compensation_completed"`
	FailureReason         string             `json:"failure_reason,omitempty"`
}

// Producer publishes checkout outcome events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer for the checkout service.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishOutcome publishes checkout.completed for a successful saga and
// checkout.failed for anything else. Events are keyed by username.
func (p *Producer) PublishOutcome(ctx context.Context, r *domain.CheckoutResult) error {
	topic, data := outcomeEvent(r)

	event, err := pkgkafka.NewEvent(topic, r.Username, AggregateTypeCheckout, SourceCheckoutService, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	event.WithMetadata("checkout_id", r.ID.String())
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return err
	}

	p.logger.DebugContext(ctx, "checkout outcome published",
		slog.String("topic", topic),
		slog.String("checkout_id", r.ID.String()),
		slog.String("outcome", string(r.Kind)),
	)
	return nil
}

func outcomeEvent(r *domain.CheckoutResult) (string, any) {
	if r.Succeeded() {
		saleDocs := r.SaleDocumentNos
		if saleDocs == nil {
			saleDocs = []string{}
		}
		return TopicCheckoutCompleted, CheckoutCompletedData{
			ID:              r.ID.String(),
			Username:        r.Username,
			OrderID:         r.OrderID,
			OrderDocumentNo: r.OrderDocumentNo,
			TotalPrice:      r.TotalPrice,
			SaleDocumentNos: saleDocs,
		}
	}

	data := CheckoutFailedData{
		ID:            r.ID.String(),
		Username:      r.Username,
		Outcome:       r.Kind,
		Cause:         r.Cause(),
		OrderID:       r.OrderID,
		FailedItemNo:  r.FailedItemNo,
		FailureReason: r.Error(),
	}
	if r.Compensation != nil {
		data.Compensated = true
		data.CompensationCompleted = r.Compensation.Complete()
	}
	return TopicCheckoutFailed, data
}
