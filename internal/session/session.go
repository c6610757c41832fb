package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RaikyD/btc-content-shop/internal/application"
	"github.com/RaikyD/btc-content-shop/internal/clock"
	"github.com/RaikyD/btc-content-shop/internal/domain"
	"github.com/google/uuid"
)

// Step is the input a session is waiting for.
type Step string

const (
	StepCategory Step = "category"
	StepProduct  Step = "product"
	StepLocation Step = "location"
	StepPayment  Step = "payment"
)

// Session is the purchase conversation of one customer.
type Session struct {
	CustomerID int64      `json:"customer_id"`
	Step       Step       `json:"step"`
	CategoryID int64      `json:"category_id,omitempty"`
	ProductID  int64      `json:"product_id,omitempty"`
	LocationID int64      `json:"location_id,omitempty"`
	OrderID    *uuid.UUID `json:"order_id,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

type Store interface {
	// Get returns domain.ErrSessionNotFound when the customer has no live session.
	Get(ctx context.Context, customerID int64) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, customerID int64) error
}

type Catalog interface {
	GetCategory(ctx context.Context, id int64) (*domain.Category, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	GetLocation(ctx context.Context, id int64) (*domain.Location, error)
}

type OrderCreator interface {
	CreateOrder(ctx context.Context, in application.CreateOrderInput) (application.CreateOrderResult, error)
}

// Selection is one customer choice.
type Selection struct {
	Step Step  `json:"step" validate:"required,oneof=category product location"`
	ID   int64 `json:"id" validate:"required,gt=0"`
}

type SelectResult struct {
	Session *Session                       `json:"session"`
	Order   *application.CreateOrderResult `json:"order,omitempty"`
}

// OutOfOrderError carries the step the session expected.
type OutOfOrderError struct {
	Expected Step
	Got      Step
}

func (e *OutOfOrderError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s", domain.ErrSessionOutOfOrder, e.Expected, e.Got)
}

func (e *OutOfOrderError) Unwrap() error { return domain.ErrSessionOutOfOrder }

// Flow walks a customer through category, product and location. Choosing the location
// creates the order and parks the session at the payment step.
type Flow struct {
	store   Store
	catalog Catalog
	orders  OrderCreator
	clock   clock.Clock
}

func NewFlow(store Store, catalog Catalog, orders OrderCreator, clk clock.Clock) *Flow {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Flow{store: store, catalog: catalog, orders: orders, clock: clk}
}

// Current returns the live session, starting a fresh one when none exists.
func (f *Flow) Current(ctx context.Context, customerID int64) (*Session, error) {
	if customerID <= 0 {
		return nil, domain.ErrInvalidID
	}
	s, err := f.store.Get(ctx, customerID)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, domain.ErrSessionNotFound) {
		return nil, err
	}

	s = &Session{CustomerID: customerID, Step: StepCategory, UpdatedAt: f.clock.Now()}
	if err := f.store.Save(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Select applies one choice. Input for any step other than the awaited one returns an
// *OutOfOrderError and leaves the session unchanged. A category choice after the order
// was placed starts a new purchase.
func (f *Flow) Select(ctx context.Context, customerID int64, sel Selection) (SelectResult, error) {
	s, err := f.Current(ctx, customerID)
	if err != nil {
		return SelectResult{}, err
	}
	if s.Step == StepPayment && sel.Step == StepCategory {
		s = &Session{CustomerID: customerID, Step: StepCategory}
	}
	if sel.Step != s.Step {
		return SelectResult{Session: s}, &OutOfOrderError{Expected: s.Step, Got: sel.Step}
	}

	var res SelectResult
	switch s.Step {
	case StepCategory:
		if _, err := f.catalog.GetCategory(ctx, sel.ID); err != nil {
			return SelectResult{Session: s}, err
		}
		s.CategoryID = sel.ID
		s.Step = StepProduct

	case StepProduct:
		p, err := f.catalog.GetProduct(ctx, sel.ID)
		if err != nil {
			return SelectResult{Session: s}, err
		}
		if p.CategoryID != s.CategoryID {
			return SelectResult{Session: s}, domain.ErrProductNotFound
		}
		s.ProductID = sel.ID
		s.Step = StepLocation

	case StepLocation:
		if _, err := f.catalog.GetLocation(ctx, sel.ID); err != nil {
			return SelectResult{Session: s}, err
		}
		created, err := f.orders.CreateOrder(ctx, application.CreateOrderInput{
			CustomerID: customerID,
			ProductID:  s.ProductID,
			LocationID: sel.ID,
		})
		if err != nil {
			return SelectResult{Session: s}, err
		}
		s.LocationID = sel.ID
		s.OrderID = &created.Order.ID
		s.Step = StepPayment
		res.Order = &created

	default:
		return SelectResult{Session: s}, &OutOfOrderError{Expected: s.Step, Got: sel.Step}
	}

	s.UpdatedAt = f.clock.Now()
	if err := f.store.Save(ctx, s); err != nil {
		return SelectResult{}, err
	}
	res.Session = s
	return res, nil
}

// Reset drops the session so the next input starts from the category step.
func (f *Flow) Reset(ctx context.Context, customerID int64) error {
	if customerID <= 0 {
		return domain.ErrInvalidID
	}
	return f.store.Delete(ctx, customerID)
}
