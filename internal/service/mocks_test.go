package service

import (
	"context"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/utafrali/checkout-saga/internal/domain"
	"github.com/utafrali/checkout-saga/internal/lock"
	"github.com/utafrali/checkout-saga/pkg/pagination"
)

// --- Mock Basket Client ---

type mockBasket struct {
	mock.Mock
}

func (m *mockBasket) GetCart(ctx context.Context, username string) (*domain.Cart, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Cart), args.Error(1)
}

func (m *mockBasket) DeleteCart(ctx context.Context, username string) (bool, error) {
	args := m.Called(ctx, username)
	return args.Bool(0), args.Error(1)
}

// --- Mock Order Client ---

type mockOrders struct {
	mock.Mock
}

func (m *mockOrders) CreateOrder(ctx context.Context, in *domain.CreateOrderInput) (int64, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockOrders) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func (m *mockOrders) DeleteOrder(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// --- Mock Inventory Client ---

type mockInventory struct {
	mock.Mock
}

func (m *mockInventory) CreateSale(ctx context.Context, itemNo string, quantity int, externalDocumentNo string) (string, error) {
	args := m.Called(ctx, itemNo, quantity, externalDocumentNo)
	return args.String(0), args.Error(1)
}

func (m *mockInventory) DeleteSaleByDocumentNo(ctx context.Context, documentNo string) error {
	args := m.Called(ctx, documentNo)
	return args.Error(0)
}

// calledItems returns the item numbers passed to CreateSale, in call order.
func (m *mockInventory) calledItems() []string {
	var items []string
	for _, c := range m.Calls {
		if c.Method == "CreateSale" {
			items = append(items, c.Arguments.String(1))
		}
	}
	return items
}

// deletedDocs returns the document numbers passed to DeleteSaleByDocumentNo.
func (m *mockInventory) deletedDocs() []string {
	var docs []string
	for _, c := range m.Calls {
		if c.Method == "DeleteSaleByDocumentNo" {
			docs = append(docs, c.Arguments.String(1))
		}
	}
	return docs
}

// --- Mock Attempt Repository ---

type mockAttempts struct {
	mock.Mock
}

func (m *mockAttempts) Create(ctx context.Context, attempt *domain.CheckoutAttempt) error {
	args := m.Called(ctx, attempt)
	return args.Error(0)
}

func (m *mockAttempts) GetByID(ctx context.Context, id uuid.UUID) (*domain.CheckoutAttempt, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CheckoutAttempt), args.Error(1)
}

func (m *mockAttempts) ListByUsername(ctx context.Context, username string, page pagination.Params) ([]domain.CheckoutAttempt, int, error) {
	args := m.Called(ctx, username, page)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]domain.CheckoutAttempt), args.Int(1), args.Error(2)
}

// --- Mock Event Publisher ---

type mockEvents struct {
	mock.Mock
}

func (m *mockEvents) PublishOutcome(ctx context.Context, r *domain.CheckoutResult) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

// --- Fake Locker ---

type fakeLocker struct {
	err      error
	acquired int
	released int
}

func (f *fakeLocker) Acquire(context.Context, string) (lock.ReleaseFunc, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.acquired++
	return func(context.Context) error {
		f.released++
		return nil
	}, nil
}

// --- Test Helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fixture struct {
	basket    *mockBasket
	orders    *mockOrders
	inventory *mockInventory
	attempts  *mockAttempts
	events    *mockEvents
	locker    *fakeLocker
}

func newFixture() *fixture {
	return &fixture{
		basket:    &mockBasket{},
		orders:    &mockOrders{},
		inventory: &mockInventory{},
		attempts:  &mockAttempts{},
		events:    &mockEvents{},
		locker:    &fakeLocker{},
	}
}

func (f *fixture) service(policy Policy) *CheckoutService {
	return NewCheckoutService(Deps{
		Basket:    f.basket,
		Orders:    f.orders,
		Inventory: f.inventory,
		Locker:    f.locker,
		Attempts:  f.attempts,
		Events:    f.events,
	}, policy, StepTimeouts{}, newTestLogger())
}

// expectRecorded accepts the attempt and event written after a saga.
func (f *fixture) expectRecorded() {
	f.attempts.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.events.On("PublishOutcome", mock.Anything, mock.Anything).Return(nil)
}

func validRequest() *domain.CheckoutRequest {
	return &domain.CheckoutRequest{
		TotalPrice: 25,
		FirstName:  "Alice",
		LastName:   "Liddell",
		Email:      "alice@example.com",
	}
}

func twoItemCart() *domain.Cart {
	return &domain.Cart{
		Username: "alice",
		Items: []domain.CartItem{
			{ItemNo: "A", ItemName: "Apple", Quantity: 2, ItemPrice: 10},
			{ItemNo: "B", ItemName: "Banana", Quantity: 1, ItemPrice: 5},
		},
	}
}

func cartOf(n int) *domain.Cart {
	cart := &domain.Cart{Username: "alice"}
	for i := 1; i <= n; i++ {
		cart.Items = append(cart.Items, domain.CartItem{
			ItemNo:    string(rune('A' + i - 1)),
			Quantity:  i,
			ItemPrice: 100,
		})
	}
	return cart
}

func stepNames(steps []domain.SagaStep) []string {
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.Name + ":" + s.Status
	}
	return names
}
