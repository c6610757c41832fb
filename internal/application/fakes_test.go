package application

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/RaikyD/btc-content-shop/internal/domain"
	"github.com/RaikyD/btc-content-shop/internal/payment"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// fakeOrderRepo keeps orders in memory. GetOrderForUpdate inside WithTx holds a per-order
// lock until the transaction ends, like a row lock.
type fakeOrderRepo struct {
	mu       sync.Mutex
	orders   map[uuid.UUID]domain.Order
	rowLocks map[uuid.UUID]*sync.Mutex
}

type fakeTx struct {
	held []*sync.Mutex
}

type fakeTxKey struct{}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{
		orders:   map[uuid.UUID]domain.Order{},
		rowLocks: map[uuid.UUID]*sync.Mutex{},
	}
}

func (r *fakeOrderRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(fakeTxKey{}).(*fakeTx); ok {
		return fn(ctx)
	}

	tx := &fakeTx{}
	defer func() {
		for i := len(tx.held) - 1; i >= 0; i-- {
			tx.held[i].Unlock()
		}
	}()

	r.mu.Lock()
	snapshot := maps.Clone(r.orders)
	r.mu.Unlock()

	if err := fn(context.WithValue(ctx, fakeTxKey{}, tx)); err != nil {
		r.mu.Lock()
		r.orders = snapshot
		r.mu.Unlock()
		return err
	}
	return nil
}

func (r *fakeOrderRepo) CreateOrder(_ context.Context, o *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[o.ID] = *o
	return nil
}

func (r *fakeOrderRepo) GetOrder(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return &o, nil
}

func (r *fakeOrderRepo) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	if tx, ok := ctx.Value(fakeTxKey{}).(*fakeTx); ok {
		r.mu.Lock()
		lock, ok := r.rowLocks[id]
		if !ok {
			lock = &sync.Mutex{}
			r.rowLocks[id] = lock
		}
		r.mu.Unlock()

		if !slices.Contains(tx.held, lock) {
			lock.Lock()
			tx.held = append(tx.held, lock)
		}
	}
	return r.GetOrder(ctx, id)
}

func (r *fakeOrderRepo) ListCustomerOrders(_ context.Context, customerID int64, limit int) ([]domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Order
	for _, o := range r.orders {
		if o.CustomerID == customerID {
			out = append(out, o)
		}
	}
	slices.SortFunc(out, func(a, b domain.Order) int { return b.CreatedAt.Compare(a.CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeOrderRepo) ListStaleAwaiting(_ context.Context, cutoff time.Time, limit int) ([]domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Order
	for _, o := range r.orders {
		if o.Status == domain.OrderStatusAwaitingPayment && o.CreatedAt.Before(cutoff) {
			out = append(out, o)
		}
	}
	slices.SortFunc(out, func(a, b domain.Order) int { return a.CreatedAt.Compare(b.CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeOrderRepo) ExpireIfAwaiting(_ context.Context, id uuid.UUID, cutoff, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok || o.Status != domain.OrderStatusAwaitingPayment || !o.CreatedAt.Before(cutoff) {
		return false, nil
	}
	o.Status = domain.OrderStatusExpired
	o.UpdatedAt = now
	r.orders[id] = o
	return true, nil
}

func (r *fakeOrderRepo) MarkPaid(_ context.Context, id uuid.UUID, status domain.OrderStatus, contentID *int64, observed decimal.Decimal, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok || o.Status != domain.OrderStatusAwaitingPayment {
		return domain.ErrInvalidTransition
	}
	o.Status = status
	o.AllocatedContentID = contentID
	o.ObservedAmount = observed
	o.PaidAt = &at
	o.UpdatedAt = at
	r.orders[id] = o
	return nil
}

func (r *fakeOrderRepo) MarkRefunded(_ context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok || o.Status != domain.OrderStatusPaidUnfulfilled {
		return domain.ErrInvalidTransition
	}
	o.Status = domain.OrderStatusRefunded
	o.UpdatedAt = at
	r.orders[id] = o
	return nil
}

func (r *fakeOrderRepo) status(id uuid.UUID) domain.OrderStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.orders[id].Status
}

type fakeContent struct {
	mu        sync.Mutex
	pools     map[int64][]domain.ContentUnit
	allocated []int64
}

func newFakeContent(locationID int64, payloads ...string) *fakeContent {
	c := &fakeContent{pools: map[int64][]domain.ContentUnit{}}
	for i, p := range payloads {
		c.pools[locationID] = append(c.pools[locationID], domain.ContentUnit{
			ID:         int64(i + 1),
			LocationID: locationID,
			Payload:    p,
		})
	}
	return c
}

func (c *fakeContent) Allocate(_ context.Context, locationID int64) (*domain.ContentUnit, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pool := c.pools[locationID]
	if len(pool) == 0 {
		return nil, nil
	}
	u := pool[0]
	c.pools[locationID] = pool[1:]
	u.IsUsed = true
	c.allocated = append(c.allocated, u.ID)
	return &u, nil
}

type fakeCatalog struct {
	products  map[int64]domain.Product
	locations map[int64]domain.Location
}

func (c fakeCatalog) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	p, ok := c.products[id]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	return &p, nil
}

func (c fakeCatalog) GetLocation(_ context.Context, id int64) (*domain.Location, error) {
	l, ok := c.locations[id]
	if !ok {
		return nil, domain.ErrLocationNotFound
	}
	return &l, nil
}

type fakeRate struct {
	mu   sync.Mutex
	rate decimal.Decimal
}

func (f *fakeRate) Rate(context.Context) decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rate
}

func (f *fakeRate) set(r decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rate = r
}

// fakeVerifier reports paid when its balance covers the expected amount.
type fakeVerifier struct {
	mu          sync.Mutex
	balance     decimal.Decimal
	unavailable bool
	expected    []decimal.Decimal
	before      func()
}

func (v *fakeVerifier) Verify(_ context.Context, _ string, expected decimal.Decimal) payment.Verification {
	if v.before != nil {
		v.before()
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.expected = append(v.expected, expected)
	if v.unavailable {
		return payment.Verification{Observed: decimal.Zero, Unavailable: true}
	}
	return payment.Verification{Paid: v.balance.GreaterThanOrEqual(expected), Observed: v.balance}
}

func (v *fakeVerifier) calls() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.expected)
}

type sentMessage struct {
	customerID int64
	operatorID int64
	orderID    uuid.UUID
	text       string
}

type fakeNotifier struct {
	mu            sync.Mutex
	customer      []sentMessage
	operator      []sentMessage
	failCustomer  bool
	failOperator  bool
	panicCustomer int
}

func (n *fakeNotifier) NotifyCustomer(_ context.Context, customerID int64, orderID uuid.UUID, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.customer = append(n.customer, sentMessage{customerID: customerID, orderID: orderID, text: text})
	if n.panicCustomer > 0 {
		n.panicCustomer--
		panic("notifier crashed")
	}
	if n.failCustomer {
		return errors.New("chat unreachable")
	}
	return nil
}

func (n *fakeNotifier) NotifyOperator(_ context.Context, operatorID int64, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.operator = append(n.operator, sentMessage{operatorID: operatorID, text: text})
	if n.failOperator {
		return errors.New("chat unreachable")
	}
	return nil
}
