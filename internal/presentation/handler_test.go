package presentation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/RaikyD/btc-content-shop/internal/application"
	"github.com/RaikyD/btc-content-shop/internal/domain"
	"github.com/RaikyD/btc-content-shop/internal/session"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubOrders struct {
	created  []application.CreateOrderInput
	check    application.CheckResult
	checkErr error
	orders   map[uuid.UUID]domain.Order
	refunded []uuid.UUID
}

func (s *stubOrders) CreateOrder(_ context.Context, in application.CreateOrderInput) (application.CreateOrderResult, error) {
	s.created = append(s.created, in)
	if in.ProductID == 404 {
		return application.CreateOrderResult{}, domain.ErrProductNotFound
	}
	return application.CreateOrderResult{
		Order: domain.Order{
			ID:                 uuid.New(),
			CustomerID:         in.CustomerID,
			ExpectedAmount:     decimal.RequireFromString("0.00100103"),
			DisambiguationUnit: 137,
			Status:             domain.OrderStatusAwaitingPayment,
		},
		Address:   "bc1qshop",
		PayBefore: time.Date(2025, 1, 1, 12, 30, 0, 0, time.UTC),
	}, nil
}

func (s *stubOrders) CheckPayment(_ context.Context, id uuid.UUID) (application.CheckResult, error) {
	if s.checkErr != nil {
		return application.CheckResult{}, s.checkErr
	}
	res := s.check
	res.Order.ID = id
	return res, nil
}

func (s *stubOrders) GetOrder(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return &o, nil
}

func (s *stubOrders) ListCustomerOrders(context.Context, int64, int) ([]domain.Order, error) {
	return nil, nil
}

func (s *stubOrders) MarkRefunded(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	if o.Status != domain.OrderStatusPaidUnfulfilled {
		return nil, domain.ErrInvalidTransition
	}
	o.Status = domain.OrderStatusRefunded
	s.refunded = append(s.refunded, id)
	return &o, nil
}

func (s *stubOrders) IsOperator(id int64) bool { return id == 1 }

type stubCatalog struct {
	added []string
}

func (s *stubCatalog) ListCategories(context.Context) ([]domain.Category, error) {
	return []domain.Category{{ID: 1, Name: "Guides", IsActive: true}}, nil
}

func (s *stubCatalog) ListProducts(_ context.Context, categoryID int64) ([]domain.Product, error) {
	if categoryID != 1 {
		return nil, domain.ErrCategoryNotFound
	}
	return nil, nil
}

func (s *stubCatalog) ListLocations(context.Context) ([]domain.Location, error) {
	return []domain.Location{{ID: 20, Name: "North", IsActive: true}}, nil
}

func (s *stubCatalog) AddCategory(_ context.Context, name string) (domain.Category, error) {
	return domain.Category{ID: 2, Name: name, IsActive: true}, nil
}

func (s *stubCatalog) AddProduct(_ context.Context, categoryID int64, name, description string, price decimal.Decimal) (domain.Product, error) {
	return domain.Product{ID: 3, CategoryID: categoryID, Name: name, Description: description, PriceFiat: price, IsActive: true}, nil
}

func (s *stubCatalog) AddLocation(_ context.Context, name string) (domain.Location, error) {
	return domain.Location{ID: 4, Name: name, IsActive: true}, nil
}

func (s *stubCatalog) AddContent(_ context.Context, _ int64, payloads []string) (int, error) {
	s.added = append(s.added, payloads...)
	return len(payloads), nil
}

func (s *stubCatalog) CountAvailable(context.Context, int64) (int, error) {
	return len(s.added), nil
}

type stubRates struct{}

func (stubRates) Snapshot(context.Context) domain.RateSnapshot {
	return domain.RateSnapshot{Rate: decimal.NewFromInt(3_000_000), Currency: "RUB", Fallback: true}
}

type stubFlow struct {
	step session.Step
}

func (f *stubFlow) Current(_ context.Context, customerID int64) (*session.Session, error) {
	return &session.Session{CustomerID: customerID, Step: f.step}, nil
}

func (f *stubFlow) Select(_ context.Context, customerID int64, sel session.Selection) (session.SelectResult, error) {
	s := &session.Session{CustomerID: customerID, Step: f.step}
	if sel.Step != f.step {
		return session.SelectResult{Session: s}, &session.OutOfOrderError{Expected: f.step, Got: sel.Step}
	}
	s.Step = session.StepProduct
	return session.SelectResult{Session: s}, nil
}

func (f *stubFlow) Reset(context.Context, int64) error { return nil }

func newTestServer(t *testing.T, orders *stubOrders, catalog *stubCatalog) *httptest.Server {
	t.Helper()
	v := NewValidator()
	srv := httptest.NewServer(NewRouter(Handlers{
		Orders:   NewOrdersHandler(orders, v),
		Catalog:  NewCatalogHandler(catalog, stubRates{}, v, orders.IsOperator),
		Sessions: NewSessionsHandler(&stubFlow{step: session.StepCategory}, v),
	}))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestOrdersHandler_CreateOrder(t *testing.T) {
	t.Parallel()
	orders := &stubOrders{}
	srv := newTestServer(t, orders, &stubCatalog{})

	resp, body := do(t, http.MethodPost, srv.URL+"/orders", `{"customer_id":5,"product_id":10,"location_id":20}`, nil)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "bc1qshop", body["address"])
	assert.Contains(t, body["message"], "0.00100103 BTC")
	assert.Contains(t, body["message"], "137 satoshi")
	require.Len(t, orders.created, 1)

	resp, body = do(t, http.MethodPost, srv.URL+"/orders", `{"customer_id":5,"product_id":0,"location_id":20}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation_failed", body["error"])

	resp, body = do(t, http.MethodPost, srv.URL+"/orders", `{"customer_id":5,"product_id":1,"location_id":20,"extra":1}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_request_body", body["error"])

	resp, _ = do(t, http.MethodPost, srv.URL+"/orders", `{"customer_id":5,"product_id":404,"location_id":20}`, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestOrdersHandler_CheckPayment(t *testing.T) {
	t.Parallel()

	t.Run("not paid carries time left", func(t *testing.T) {
		orders := &stubOrders{check: application.CheckResult{
			Outcome:     application.OutcomeNotPaid,
			Order:       domain.Order{ExpectedAmount: decimal.RequireFromString("0.00100103")},
			Observed:    decimal.RequireFromString("0.0005"),
			MinutesLeft: 12,
		}}
		srv := newTestServer(t, orders, &stubCatalog{})

		resp, body := do(t, http.MethodPost, srv.URL+"/orders/"+uuid.NewString()+"/check", "", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "not_paid", body["outcome"])
		assert.EqualValues(t, 12, body["minutes_left"])
		assert.Contains(t, body["message"], "12 minutes")
	})

	t.Run("unreachable ledger asks to retry", func(t *testing.T) {
		orders := &stubOrders{check: application.CheckResult{
			Outcome:           application.OutcomeNotPaid,
			Order:             domain.Order{ExpectedAmount: decimal.RequireFromString("0.00100103")},
			Observed:          decimal.Zero,
			MinutesLeft:       25,
			LedgerUnavailable: true,
		}}
		srv := newTestServer(t, orders, &stubCatalog{})

		resp, body := do(t, http.MethodPost, srv.URL+"/orders/"+uuid.NewString()+"/check", "", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "not_paid", body["outcome"])
		assert.Equal(t, true, body["ledger_unavailable"])
		assert.Contains(t, body["message"], "try again")
		assert.NotContains(t, body["message"], "Payment not found")
	})

	t.Run("pool exhausted is still 200", func(t *testing.T) {
		orders := &stubOrders{check: application.CheckResult{Outcome: application.OutcomePoolExhausted}}
		srv := newTestServer(t, orders, &stubCatalog{})

		resp, body := do(t, http.MethodPost, srv.URL+"/orders/"+uuid.NewString()+"/check", "", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, body["message"], "refund")
	})

	t.Run("bad id and internal errors", func(t *testing.T) {
		orders := &stubOrders{checkErr: assert.AnError}
		srv := newTestServer(t, orders, &stubCatalog{})

		resp, _ := do(t, http.MethodPost, srv.URL+"/orders/not-a-uuid/check", "", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		resp, body := do(t, http.MethodPost, srv.URL+"/orders/"+uuid.NewString()+"/check", "", nil)
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		assert.Equal(t, "internal error, try again later", body["error"])
	})
}

func TestOrdersHandler_Refund(t *testing.T) {
	t.Parallel()
	paid := uuid.New()
	done := uuid.New()
	orders := &stubOrders{orders: map[uuid.UUID]domain.Order{
		paid: {ID: paid, Status: domain.OrderStatusPaidUnfulfilled},
		done: {ID: done, Status: domain.OrderStatusFulfilled},
	}}
	srv := newTestServer(t, orders, &stubCatalog{})

	resp, _ := do(t, http.MethodPost, srv.URL+"/orders/"+paid.String()+"/refund", "", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, srv.URL+"/orders/"+paid.String()+"/refund", "", map[string]string{"X-Operator-ID": "99"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body := do(t, http.MethodPost, srv.URL+"/orders/"+paid.String()+"/refund", "", map[string]string{"X-Operator-ID": "1"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "refunded", body["status"])

	resp, _ = do(t, http.MethodPost, srv.URL+"/orders/"+done.String()+"/refund", "", map[string]string{"X-Operator-ID": "1"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, srv.URL+"/orders/"+uuid.NewString(), "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCatalogHandler(t *testing.T) {
	t.Parallel()
	catalog := &stubCatalog{}
	srv := newTestServer(t, &stubOrders{}, catalog)

	resp, body := do(t, http.MethodGet, srv.URL+"/rate", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "3000000", body["rate"])
	assert.Equal(t, true, body["fallback"])

	resp, _ = do(t, http.MethodGet, srv.URL+"/catalog/categories/7/products", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	req, err := http.Get(srv.URL + "/catalog/categories/1/products")
	require.NoError(t, err)
	var products []domain.Product
	require.NoError(t, json.NewDecoder(req.Body).Decode(&products))
	_ = req.Body.Close()
	assert.NotNil(t, products)
	assert.Empty(t, products)

	op := map[string]string{"X-Operator-ID": "1"}
	resp, _ = do(t, http.MethodPost, srv.URL+"/admin/products", `{"category_id":1,"name":"Guide","price_fiat":"0"}`, op)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = do(t, http.MethodPost, srv.URL+"/admin/products", `{"category_id":1,"name":"Guide","price_fiat":"2999"}`, op)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "2999", body["price_fiat"])

	resp, body = do(t, http.MethodPost, srv.URL+"/admin/locations/4/content", `{"payloads":["a","b"]}`, op)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.EqualValues(t, 2, body["added"])

	resp, _ = do(t, http.MethodPost, srv.URL+"/admin/categories", `{"name":"New"}`, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestSessionsHandler(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, &stubOrders{}, &stubCatalog{})

	resp, body := do(t, http.MethodGet, srv.URL+"/sessions/77", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "category", body["step"])

	resp, body = do(t, http.MethodPost, srv.URL+"/sessions/77/select", `{"step":"location","id":20}`, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "category", body["expected"])

	resp, body = do(t, http.MethodPost, srv.URL+"/sessions/77/select", `{"step":"category","id":1}`, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	sess, ok := body["session"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "product", sess["step"])

	resp, _ = do(t, http.MethodPost, srv.URL+"/sessions/77/select", `{"step":"payment","id":1}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodDelete, srv.URL+"/sessions/77", "", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, srv.URL+"/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
