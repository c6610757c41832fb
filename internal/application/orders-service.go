package application

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/RaikyD/btc-content-shop/internal/clock"
	"github.com/RaikyD/btc-content-shop/internal/domain"
	"github.com/RaikyD/btc-content-shop/internal/logger"
	"github.com/RaikyD/btc-content-shop/internal/payment"
	"github.com/RaikyD/btc-content-shop/internal/pricing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	DefaultPaymentDeadline = 30 * time.Minute
	// sweepBatch is the page size of ExpireStale.
	sweepBatch = 200
)

type OrderRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	CreateOrder(ctx context.Context, o *domain.Order) error
	GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	ListCustomerOrders(ctx context.Context, customerID int64, limit int) ([]domain.Order, error)
	ListStaleAwaiting(ctx context.Context, cutoff time.Time, limit int) ([]domain.Order, error)
	ExpireIfAwaiting(ctx context.Context, id uuid.UUID, cutoff, now time.Time) (bool, error)
	MarkPaid(ctx context.Context, id uuid.UUID, status domain.OrderStatus, contentID *int64, observed decimal.Decimal, at time.Time) error
	MarkRefunded(ctx context.Context, id uuid.UUID, at time.Time) error
}

type ContentAllocator interface {
	Allocate(ctx context.Context, locationID int64) (*domain.ContentUnit, error)
}

type ProductLookup interface {
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	GetLocation(ctx context.Context, id int64) (*domain.Location, error)
}

type Quoter interface {
	Quote(ctx context.Context, fiat decimal.Decimal) (pricing.Quote, error)
}

type Verifier interface {
	Verify(ctx context.Context, address string, expected decimal.Decimal) payment.Verification
}

type Notifier interface {
	NotifyCustomer(ctx context.Context, customerID int64, orderID uuid.UUID, text string) error
	NotifyOperator(ctx context.Context, operatorID int64, text string) error
}

type Outcome string

const (
	OutcomePaid          Outcome = "paid"
	OutcomeNotPaid       Outcome = "not_paid"
	OutcomePoolExhausted Outcome = "pool_exhausted"
	OutcomeExpired       Outcome = "expired"
	OutcomeNoOp          Outcome = "no_op"
)

type CheckResult struct {
	Outcome     Outcome             `json:"outcome"`
	Order       domain.Order        `json:"order"`
	Observed    decimal.Decimal     `json:"observed"`
	Content     *domain.ContentUnit `json:"content,omitempty"`
	MinutesLeft int                 `json:"minutes_left"`

	// LedgerUnavailable marks a not_paid result where the ledger could not be read.
	LedgerUnavailable bool `json:"ledger_unavailable,omitempty"`
}

type CreateOrderInput struct {
	CustomerID int64
	ProductID  int64
	LocationID int64
}

type CreateOrderResult struct {
	Order     domain.Order `json:"order"`
	Address   string       `json:"address"`
	PayBefore time.Time    `json:"pay_before"`
}

// Dependencies groups the collaborators of OrdersService.
type Dependencies struct {
	Orders   OrderRepository
	Content  ContentAllocator
	Catalog  ProductLookup
	Quoter   Quoter
	Verifier Verifier
	Notifier Notifier
	Clock    clock.Clock
}

type Option func(*OrdersService)

func WithPaymentDeadline(d time.Duration) Option {
	return func(s *OrdersService) {
		if d > 0 {
			s.deadline = d
		}
	}
}

func WithReceivingAddress(addr string) Option {
	return func(s *OrdersService) { s.address = addr }
}

func WithOperators(ids ...int64) Option {
	return func(s *OrdersService) { s.operators = slices.Clone(ids) }
}

// OrdersService drives orders through awaiting_payment to one of the final states.
type OrdersService struct {
	orders    OrderRepository
	content   ContentAllocator
	catalog   ProductLookup
	quoter    Quoter
	verifier  Verifier
	notifier  Notifier
	clock     clock.Clock
	deadline  time.Duration
	address   string
	operators []int64
}

func NewOrdersService(deps Dependencies, opts ...Option) *OrdersService {
	s := &OrdersService{
		orders:   deps.Orders,
		content:  deps.Content,
		catalog:  deps.Catalog,
		quoter:   deps.Quoter,
		verifier: deps.Verifier,
		notifier: deps.Notifier,
		clock:    deps.Clock,
		deadline: DefaultPaymentDeadline,
	}
	if s.clock == nil {
		s.clock = clock.NewSystem()
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *OrdersService) PaymentDeadline() time.Duration { return s.deadline }

func (s *OrdersService) IsOperator(id int64) bool {
	return slices.Contains(s.operators, id)
}

// CreateOrder prices the product at the current rate and freezes the quote into a new
// awaiting_payment order.
func (s *OrdersService) CreateOrder(ctx context.Context, in CreateOrderInput) (CreateOrderResult, error) {
	if in.CustomerID <= 0 || in.ProductID <= 0 || in.LocationID <= 0 {
		return CreateOrderResult{}, domain.ErrInvalidID
	}

	product, err := s.catalog.GetProduct(ctx, in.ProductID)
	if err != nil {
		return CreateOrderResult{}, err
	}
	if _, err := s.catalog.GetLocation(ctx, in.LocationID); err != nil {
		return CreateOrderResult{}, err
	}

	quote, err := s.quoter.Quote(ctx, product.PriceFiat)
	if err != nil {
		return CreateOrderResult{}, err
	}

	now := s.clock.Now()
	order := domain.Order{
		ID:                 uuid.New(),
		CustomerID:         in.CustomerID,
		ProductID:          product.ID,
		LocationID:         in.LocationID,
		PriceFiat:          product.PriceFiat,
		ExpectedAmount:     quote.Amount,
		DisambiguationUnit: quote.Unit,
		Rate:               quote.Rate,
		Status:             domain.OrderStatusCreated,
		ObservedAmount:     decimal.Zero,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := order.Transition(domain.OrderStatusAwaitingPayment, now); err != nil {
		return CreateOrderResult{}, err
	}
	if err := s.orders.CreateOrder(ctx, &order); err != nil {
		return CreateOrderResult{}, err
	}

	logger.Info("order created",
		"order_id", order.ID,
		"customer_id", order.CustomerID,
		"expected", order.ExpectedAmount.StringFixed(pricing.BTCDecimals),
		"unit", order.DisambiguationUnit,
	)
	return CreateOrderResult{
		Order:     order,
		Address:   s.address,
		PayBefore: order.Deadline(s.deadline),
	}, nil
}

// CheckPayment verifies the order against the ledger and, when paid, allocates content
// and closes the order. Repeated calls on a closed order return OutcomeNoOp.
func (s *OrdersService) CheckPayment(ctx context.Context, orderID uuid.UUID) (CheckResult, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return CheckResult{}, err
	}
	if order.Status != domain.OrderStatusAwaitingPayment {
		return CheckResult{Outcome: OutcomeNoOp, Order: *order, Observed: order.ObservedAmount}, nil
	}

	now := s.clock.Now()
	if now.After(order.Deadline(s.deadline)) {
		return s.expire(ctx, order, now)
	}

	// The ledger call may be slow; no row is locked while it runs.
	v := s.verifier.Verify(ctx, s.address, order.ExpectedAmount)
	if !v.Paid {
		return CheckResult{
			Outcome:           OutcomeNotPaid,
			Order:             *order,
			Observed:          v.Observed,
			MinutesLeft:       minutesLeft(order.Deadline(s.deadline), now),
			LedgerUnavailable: v.Unavailable,
		}, nil
	}

	var res CheckResult
	err = s.orders.WithTx(ctx, func(txCtx context.Context) error {
		cur, err := s.orders.GetOrderForUpdate(txCtx, orderID)
		if err != nil {
			return err
		}
		if cur.Status != domain.OrderStatusAwaitingPayment {
			res = CheckResult{Outcome: OutcomeNoOp, Order: *cur, Observed: cur.ObservedAmount}
			return nil
		}

		// The deadline may have passed while the ledger was being read.
		paidAt := s.clock.Now()
		if paidAt.After(cur.Deadline(s.deadline)) {
			done, err := s.orders.ExpireIfAwaiting(txCtx, cur.ID, paidAt.Add(-s.deadline), paidAt)
			if err != nil {
				return err
			}
			if !done {
				return fmt.Errorf("expire locked order: %w", domain.ErrInvalidTransition)
			}
			if err := cur.Transition(domain.OrderStatusExpired, paidAt); err != nil {
				return err
			}
			res = CheckResult{Outcome: OutcomeExpired, Order: *cur, Observed: cur.ObservedAmount}
			return nil
		}

		unit, err := s.content.Allocate(txCtx, cur.LocationID)
		if err != nil {
			return err
		}

		next, outcome := domain.OrderStatusPaidUnfulfilled, OutcomePoolExhausted
		var contentID *int64
		if unit != nil {
			next, outcome = domain.OrderStatusFulfilled, OutcomePaid
			contentID = &unit.ID
		}
		if err := cur.Transition(next, paidAt); err != nil {
			return err
		}
		if err := s.orders.MarkPaid(txCtx, cur.ID, next, contentID, v.Observed, paidAt); err != nil {
			return err
		}

		cur.AllocatedContentID = contentID
		cur.ObservedAmount = v.Observed
		cur.PaidAt = &paidAt
		res = CheckResult{Outcome: outcome, Order: *cur, Observed: v.Observed, Content: unit}
		return nil
	})
	if err != nil {
		return CheckResult{}, fmt.Errorf("fulfil order %s: %w", orderID, err)
	}

	switch res.Outcome {
	case OutcomePaid:
		logger.Info("order fulfilled", "order_id", orderID, "content_id", res.Content.ID)
		s.notifyCustomer(ctx, res.Order, fmt.Sprintf(
			"Payment confirmed! Received %s BTC.\n\nYour content:\n%s",
			v.Observed.StringFixed(pricing.BTCDecimals), res.Content.Payload))
		s.notifyOperators(ctx, operatorSummary("New order", res.Order, res.Content))
	case OutcomePoolExhausted:
		logger.Warn("order paid but location pool is empty", "order_id", orderID, "location_id", res.Order.LocationID)
		s.notifyCustomer(ctx, res.Order,
			"Sorry, this location has run out of content. Your payment was received and a refund is pending.")
		s.notifyOperators(ctx, operatorSummary("Refund required: location pool exhausted", res.Order, nil))
	case OutcomeExpired:
		logger.Info("order expired during payment check", "order_id", orderID, "observed", v.Observed)
		s.notifyExpired(ctx, res.Order)
	}
	return res, nil
}

func (s *OrdersService) GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return s.orders.GetOrder(ctx, id)
}

func (s *OrdersService) ListCustomerOrders(ctx context.Context, customerID int64, limit int) ([]domain.Order, error) {
	if customerID <= 0 {
		return nil, domain.ErrInvalidID
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.orders.ListCustomerOrders(ctx, customerID, limit)
}

// MarkRefunded records that an operator returned the payment of a paid_unfulfilled order.
func (s *OrdersService) MarkRefunded(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	if err := s.orders.MarkRefunded(ctx, orderID, s.clock.Now()); err != nil {
		return nil, err
	}
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	logger.Info("order refunded", "order_id", orderID)
	s.notifyCustomer(ctx, *order, "Your payment has been refunded.")
	return order, nil
}

// ExpireStale expires every awaiting_payment order past its deadline, page by page. A
// failure on one order is logged and does not stop the others.
func (s *OrdersService) ExpireStale(ctx context.Context) (int, error) {
	now := s.clock.Now()
	cutoff := now.Add(-s.deadline)

	expired := 0
	for {
		stale, err := s.orders.ListStaleAwaiting(ctx, cutoff, sweepBatch)
		if err != nil {
			return expired, err
		}

		page := 0
		for i := range stale {
			if ctx.Err() != nil {
				return expired, ctx.Err()
			}
			if s.expireOne(ctx, &stale[i], now) {
				page++
			}
		}
		expired += page

		// A short page is the last one. A page with no progress would be listed again.
		if len(stale) < sweepBatch || page == 0 {
			return expired, nil
		}
	}
}

func (s *OrdersService) expireOne(ctx context.Context, order *domain.Order, now time.Time) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("expire order panicked", "order_id", order.ID, "panic", r)
			ok = false
		}
	}()

	res, err := s.expire(ctx, order, now)
	if err != nil {
		logger.Error("expire order failed", "order_id", order.ID, "err", err)
		return false
	}
	return res.Outcome == OutcomeExpired
}

func (s *OrdersService) expire(ctx context.Context, order *domain.Order, now time.Time) (CheckResult, error) {
	done, err := s.orders.ExpireIfAwaiting(ctx, order.ID, now.Add(-s.deadline), now)
	if err != nil {
		return CheckResult{}, err
	}
	if !done {
		// Someone else closed it first.
		cur, err := s.orders.GetOrder(ctx, order.ID)
		if err != nil {
			return CheckResult{}, err
		}
		return CheckResult{Outcome: OutcomeNoOp, Order: *cur, Observed: cur.ObservedAmount}, nil
	}

	expired := *order
	if err := expired.Transition(domain.OrderStatusExpired, now); err != nil {
		return CheckResult{}, err
	}
	logger.Info("order expired", "order_id", order.ID, "customer_id", order.CustomerID)
	s.notifyExpired(ctx, expired)
	return CheckResult{Outcome: OutcomeExpired, Order: expired, Observed: order.ObservedAmount}, nil
}

func (s *OrdersService) notifyExpired(ctx context.Context, order domain.Order) {
	s.notifyCustomer(ctx, order, fmt.Sprintf(
		"Order %s expired: no payment of %s BTC arrived within %d minutes.",
		order.ID, order.ExpectedAmount.StringFixed(pricing.BTCDecimals), int(s.deadline.Minutes())))
}

func (s *OrdersService) notifyCustomer(ctx context.Context, order domain.Order, text string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyCustomer(ctx, order.CustomerID, order.ID, text); err != nil {
		logger.Warn("customer notification failed", "order_id", order.ID, "err", err)
	}
}

func (s *OrdersService) notifyOperators(ctx context.Context, text string) {
	if s.notifier == nil {
		return
	}
	var errs []error
	for _, id := range s.operators {
		if err := s.notifier.NotifyOperator(ctx, id, text); err != nil {
			errs = append(errs, fmt.Errorf("operator %d: %w", id, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		logger.Warn("operator notification failed", "err", err)
	}
}

func operatorSummary(title string, o domain.Order, unit *domain.ContentUnit) string {
	text := fmt.Sprintf("%s\nOrder: %s\nCustomer: %d\nProduct: %d\nLocation: %d\nAmount: %s BTC",
		title, o.ID, o.CustomerID, o.ProductID, o.LocationID, o.ObservedAmount.StringFixed(pricing.BTCDecimals))
	if unit != nil {
		text += "\nContent: " + unit.Payload
	}
	return text
}

func minutesLeft(deadline, now time.Time) int {
	left := deadline.Sub(now)
	if left <= 0 {
		return 0
	}
	return int(left / time.Minute)
}
