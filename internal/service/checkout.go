package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/utafrali/checkout-saga/internal/domain"
	"github.com/utafrali/checkout-saga/internal/lock"
	"github.com/utafrali/checkout-saga/internal/repository"
	apperrors "github.com/utafrali/checkout-saga/pkg/errors"
	"github.com/utafrali/checkout-saga/pkg/httpclient"
	"github.com/utafrali/checkout-saga/pkg/logger"
	"github.com/utafrali/checkout-saga/pkg/pagination"
	"github.com/utafrali/checkout-saga/pkg/tracing"
	"github.com/utafrali/checkout-saga/pkg/validator"
)

const (
	tracerName = "github.com/utafrali/checkout-saga/internal/service"

	defaultUndoTimeout = 30 * time.Second
)

var (
	errCartNotFound   = errors.New("cart not found or empty")
	errCartNotDeleted = errors.New("basket service did not delete the cart")
	errAttemptsAbsent = apperrors.ServiceUnavailable("checkout attempt log is not configured")
)

// Policy switches behaviour that differs from a plain best-effort saga.
type Policy struct {
	// CompensateOnCleanupFailure undoes the order and every sale when the
	// basket service refuses to delete the cart after all debits succeeded.
	// When false the order and debits stay in place and the checkout still
	// reports failure. A delete call that errors always compensates.
	CompensateOnCleanupFailure bool

	// SerializePerUser runs each checkout inside a per-username lock.
	SerializePerUser bool

	// CompensationTimeout bounds the undo pass, which runs detached from the
	// caller's cancellation.
	CompensationTimeout time.Duration
}

// StepTimeouts holds per-call timeouts for each downstream service.
// A zero value means no per-step timeout (inherits the parent context timeout).
type StepTimeouts struct {
	Basket    time.Duration
	Order     time.Duration
	Inventory time.Duration
}

// Deps are the collaborators of the checkout service. Locker, Attempts and
// Events are optional.
type Deps struct {
	Basket    BasketClient
	Orders    OrderClient
	Inventory InventoryClient
	Locker    lock.Locker
	Attempts  repository.AttemptRepository
	Events    EventPublisher
}

// CheckoutService orchestrates the checkout saga: read the cart, create the
// order, debit stock item by item and clear the cart, compensating when a
// debit fails.
type CheckoutService struct {
	basket    BasketClient
	orders    OrderClient
	inventory InventoryClient
	locker    lock.Locker
	attempts  repository.AttemptRepository
	events    EventPublisher
	logger    *slog.Logger
	policy    Policy
	timeouts  StepTimeouts
	tracer    trace.Tracer
}

// NewCheckoutService creates a new checkout service.
func NewCheckoutService(deps Deps, policy Policy, timeouts StepTimeouts, logger *slog.Logger) *CheckoutService {
	if deps.Locker == nil {
		deps.Locker = lock.Noop{}
	}
	if policy.CompensationTimeout <= 0 {
		policy.CompensationTimeout = defaultUndoTimeout
	}
	return &CheckoutService{
		basket:    deps.Basket,
		orders:    deps.Orders,
		inventory: deps.Inventory,
		locker:    deps.Locker,
		attempts:  deps.Attempts,
		events:    deps.Events,
		logger:    logger,
		policy:    policy,
		timeouts:  timeouts,
		tracer:    tracing.Tracer(tracerName),
	}
}

// CheckoutOrder runs the saga and reports only whether it committed.
func (s *CheckoutService) CheckoutOrder(ctx context.Context, username string, req *domain.CheckoutRequest) bool {
	return s.Checkout(ctx, username, req).Succeeded()
}

// Checkout runs the saga for username and returns its tagged outcome. It
// never returns nil.
//
// Outcomes that compensate (delete the order, then every sale already made):
// inventory_debit_failed, order_lookup_failed (the order was created but could
// not be read back, so it is deleted with no sales) and cart_deletion_failed
// when the delete call itself errors, or when the basket service refuses and
// CompensateOnCleanupFailure is set. Any of these becomes
// compensation_incomplete if an undo call fails. No step or undo call is
// retried.
func (s *CheckoutService) Checkout(ctx context.Context, username string, req *domain.CheckoutRequest) *domain.CheckoutResult {
	start := time.Now()
	res := &domain.CheckoutResult{ID: uuid.New(), Username: username}

	ctx, span := s.tracer.Start(ctx, "checkout.saga", trace.WithAttributes(
		attribute.String("checkout.id", res.ID.String()),
		attribute.String("checkout.username", username),
	))
	defer func() {
		span.SetAttributes(attribute.String("checkout.outcome", string(res.Kind)))
		tracing.EndSpan(span, res.Err)
	}()

	ctx = logger.WithUsername(ctx, username)
	log := logger.WithContext(ctx, s.logger).With(slog.String("checkout_id", res.ID.String()))

	if err := validateCheckout(username, req); err != nil {
		res.Kind = domain.OutcomeInvalidRequest
		res.Err = err
		s.finish(ctx, log, res, start, false)
		return res
	}

	if s.policy.SerializePerUser {
		release, err := s.locker.Acquire(ctx, username)
		if err != nil {
			res.Kind = domain.OutcomeLockUnavailable
			if errors.Is(err, lock.ErrLocked) {
				res.Kind = domain.OutcomeCheckoutInProgress
			}
			res.Err = err
			s.finish(ctx, log, res, start, false)
			return res
		}
		defer s.release(ctx, log, release)
	}

	s.run(ctx, log, res, req)
	s.finish(ctx, log, res, start, true)
	return res
}

func validateCheckout(username string, req *domain.CheckoutRequest) error {
	if err := validator.Var("username", username, "username"); err != nil {
		return err
	}
	if req == nil {
		return apperrors.InvalidInput("checkout request is required")
	}
	return validator.Validate(req)
}

// run drives the forward steps. It fills res and never returns an error: every
// failure is expressed as res.Kind.
func (s *CheckoutService) run(ctx context.Context, log *slog.Logger, res *domain.CheckoutResult, req *domain.CheckoutRequest) {
	var cart *domain.Cart
	err := s.forward(ctx, res, domain.SagaStepGetCart, res.Username, s.timeouts.Basket, func(ctx context.Context) error {
		var err error
		cart, err = s.basket.GetCart(ctx, res.Username)
		if err == nil && cart.IsEmpty() {
			err = errCartNotFound
		}
		return err
	})
	if err != nil {
		// Any failure reading the cart counts as an absent cart.
		res.Kind = domain.OutcomeCartNotFound
		res.Err = err
		return
	}

	res.TotalPrice = cart.TotalPrice()
	if req.TotalPrice != res.TotalPrice {
		log.WarnContext(ctx, "client total differs from cart total, using cart total",
			slog.Int64("client_total", req.TotalPrice),
			slog.Int64("cart_total", res.TotalPrice),
		)
	}

	input := domain.NewCreateOrderInput(res.Username, req, cart)
	var orderID int64
	err = s.forward(ctx, res, domain.SagaStepCreateOrder, "", s.timeouts.Order, func(ctx context.Context) error {
		var err error
		orderID, err = s.orders.CreateOrder(ctx, input)
		if err == nil && orderID <= 0 {
			err = fmt.Errorf("order service returned invalid order id %d", orderID)
		}
		return err
	})
	if err != nil {
		res.Kind = domain.OutcomeOrderCreationFailed
		res.Err = err
		return
	}
	res.OrderID = orderID
	log = log.With(slog.Int64("order_id", orderID))
	log.InfoContext(ctx, "order created", slog.Int64("total_price", res.TotalPrice))

	var order *domain.Order
	err = s.forward(ctx, res, domain.SagaStepGetOrder, strconv.FormatInt(orderID, 10), s.timeouts.Order, func(ctx context.Context) error {
		var err error
		order, err = s.orders.GetOrder(ctx, orderID)
		return err
	})
	if err != nil {
		res.Err = err
		log.ErrorContext(ctx, "order lookup failed after creation", slog.String("error", err.Error()))
		s.compensate(ctx, log, res, domain.OutcomeOrderLookupFailed)
		return
	}
	res.OrderDocumentNo = order.DocumentNo
	log = log.With(slog.String("order_document_no", order.DocumentNo))

	// Sequential and in cart order, so the sales to undo are always a prefix.
	for _, item := range cart.Items {
		var docNo string
		err = s.forward(ctx, res, domain.SagaStepCreateSale, item.ItemNo, s.timeouts.Inventory, func(ctx context.Context) error {
			var err error
			docNo, err = s.inventory.CreateSale(ctx, item.ItemNo, item.Quantity, order.DocumentNo)
			return err
		})
		if err != nil {
			res.FailedItemNo = item.ItemNo
			res.Err = err
			log.ErrorContext(ctx, "inventory debit failed",
				slog.String("item_no", item.ItemNo),
				slog.Int("quantity", item.Quantity),
				slog.String("error", err.Error()),
			)
			s.compensate(ctx, log, res, domain.OutcomeInventoryDebitFailed)
			return
		}
		res.SaleDocumentNos = append(res.SaleDocumentNos, docNo)
		log.DebugContext(ctx, "inventory debited",
			slog.String("item_no", item.ItemNo),
			slog.String("document_no", docNo),
		)
	}

	var deleted bool
	callErr := s.forward(ctx, res, domain.SagaStepDeleteCart, res.Username, s.timeouts.Basket, func(ctx context.Context) error {
		var err error
		deleted, err = s.basket.DeleteCart(ctx, res.Username)
		if err == nil && !deleted {
			err = errCartNotDeleted
		}
		return err
	})
	if callErr != nil {
		// A failed call always compensates. A refusal from the basket service
		// compensates only under CompensateOnCleanupFailure.
		undo := !errors.Is(callErr, errCartNotDeleted) || s.policy.CompensateOnCleanupFailure
		res.Err = callErr
		log.ErrorContext(ctx, "cart deletion failed after order and inventory committed",
			slog.String("error", callErr.Error()),
			slog.Bool("compensate", undo),
		)
		if undo {
			s.compensate(ctx, log, res, domain.OutcomeCartDeletionFailed)
			return
		}
		res.Kind = domain.OutcomeCartDeletionFailed
		return
	}

	res.Kind = domain.OutcomeSuccess
}

// compensate deletes the order and then exactly the sales recorded in res.
// Undo calls are made once each; failures are logged and reported, never
// retried.
func (s *CheckoutService) compensate(ctx context.Context, log *slog.Logger, res *domain.CheckoutResult, reason domain.OutcomeKind) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.policy.CompensationTimeout)
	defer cancel()

	report := &domain.CompensationReport{Reason: reason, DeletedSaleDocumentNos: []string{}}
	log.WarnContext(ctx, "compensating checkout",
		slog.String("reason", string(reason)),
		slog.Int("sales", len(res.SaleDocumentNos)),
	)

	orderTarget := strconv.FormatInt(res.OrderID, 10)
	err := s.undo(ctx, res, domain.SagaStepDeleteOrder, orderTarget, s.timeouts.Order, func(ctx context.Context) error {
		return s.orders.DeleteOrder(ctx, res.OrderID)
	})
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("delete order %d: %v", res.OrderID, err))
		log.ErrorContext(ctx, "failed to delete order during compensation", slog.String("error", err.Error()))
	} else {
		report.OrderDeleted = true
	}

	for _, docNo := range res.SaleDocumentNos {
		err := s.undo(ctx, res, domain.SagaStepDeleteSale, docNo, s.timeouts.Inventory, func(ctx context.Context) error {
			return s.inventory.DeleteSaleByDocumentNo(ctx, docNo)
		})
		if err != nil {
			report.FailedSaleDocumentNos = append(report.FailedSaleDocumentNos, docNo)
			report.Errors = append(report.Errors, fmt.Sprintf("delete sale %s: %v", docNo, err))
			log.ErrorContext(ctx, "failed to delete inventory sale during compensation",
				slog.String("document_no", docNo),
				slog.String("error", err.Error()),
			)
			continue
		}
		report.DeletedSaleDocumentNos = append(report.DeletedSaleDocumentNos, docNo)
	}

	res.Compensation = report
	res.Kind = reason
	result := "complete"
	if !report.Complete() {
		res.Kind = domain.OutcomeCompensationIncomplete
		result = "incomplete"
	}
	sagaCompensations.WithLabelValues(string(reason), result).Inc()
}

func (s *CheckoutService) forward(ctx context.Context, res *domain.CheckoutResult, name, target string, timeout time.Duration, fn func(context.Context) error) error {
	return s.call(ctx, res, name, target, timeout, false, fn)
}

func (s *CheckoutService) undo(ctx context.Context, res *domain.CheckoutResult, name, target string, timeout time.Duration, fn func(context.Context) error) error {
	return s.call(ctx, res, name, target, timeout, true, fn)
}

// call runs one remote step under its own span and timeout, with HTTP retries
// disabled, and appends it to the result's step trace.
func (s *CheckoutService) call(ctx context.Context, res *domain.CheckoutResult, name, target string, timeout time.Duration, undo bool, fn func(context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, "checkout."+name, trace.WithAttributes(
		attribute.String("saga.step", name),
		attribute.String("saga.target", target),
		attribute.Bool("saga.compensation", undo),
	))

	// Each step is attempted once; a failure goes straight to compensation.
	ctx = httpclient.WithoutRetry(ctx)
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	err := fn(ctx)
	tracing.EndSpan(span, err)

	var step domain.SagaStep
	switch {
	case err != nil:
		step = domain.FailedStep(name, target, err)
	case undo:
		step = domain.CompensatedStep(name, target)
	default:
		step = domain.CompletedStep(name, target)
	}
	sagaStepDuration.WithLabelValues(name, step.Status).Observe(time.Since(start).Seconds())
	res.Steps = append(res.Steps, step)
	return err
}

// finish records metrics and the final log line. When persist is set the
// attempt is stored and the outcome event published; neither can change res.
func (s *CheckoutService) finish(ctx context.Context, log *slog.Logger, res *domain.CheckoutResult, start time.Time, persist bool) {
	elapsed := time.Since(start)
	sagaOutcomes.WithLabelValues(string(res.Kind)).Inc()
	sagaDuration.WithLabelValues(string(res.Kind)).Observe(elapsed.Seconds())

	attrs := []any{
		slog.String("outcome", string(res.Kind)),
		slog.Duration("duration", elapsed),
	}
	if res.Succeeded() {
		log.InfoContext(ctx, "checkout completed", attrs...)
	} else {
		attrs = append(attrs,
			slog.String("cause", string(res.Cause())),
			slog.String("error", res.Error()),
		)
		if res.FailedItemNo != "" {
			attrs = append(attrs, slog.String("failed_item_no", res.FailedItemNo))
		}
		log.WarnContext(ctx, "checkout failed", attrs...)
	}

	if !persist {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.policy.CompensationTimeout)
	defer cancel()

	if s.attempts != nil {
		if err := s.attempts.Create(ctx, domain.NewCheckoutAttempt(res)); err != nil {
			log.ErrorContext(ctx, "failed to record checkout attempt", slog.String("error", err.Error()))
		}
	}
	if s.events != nil {
		if err := s.events.PublishOutcome(ctx, res); err != nil {
			log.ErrorContext(ctx, "failed to publish checkout outcome", slog.String("error", err.Error()))
		}
	}
}

func (s *CheckoutService) release(ctx context.Context, log *slog.Logger, release lock.ReleaseFunc) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.policy.CompensationTimeout)
	defer cancel()
	if err := release(ctx); err != nil {
		log.WarnContext(ctx, "failed to release checkout lock", slog.String("error", err.Error()))
	}
}

// GetAttempt returns a recorded checkout attempt.
func (s *CheckoutService) GetAttempt(ctx context.Context, id uuid.UUID) (*domain.CheckoutAttempt, error) {
	if s.attempts == nil {
		return nil, errAttemptsAbsent
	}
	return s.attempts.GetByID(ctx, id)
}

// ListAttempts returns one page of username's attempts, newest first.
func (s *CheckoutService) ListAttempts(ctx context.Context, username string, page pagination.Params) (pagination.Result[domain.CheckoutAttempt], error) {
	var empty pagination.Result[domain.CheckoutAttempt]
	if s.attempts == nil {
		return empty, errAttemptsAbsent
	}
	if err := validator.Var("username", username, "username"); err != nil {
		return empty, err
	}
	if err := page.Validate(); err != nil {
		return empty, err
	}

	attempts, total, err := s.attempts.ListByUsername(ctx, username, page)
	if err != nil {
		return empty, err
	}
	return pagination.NewResult(attempts, total, page), nil
}
