package presentation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/RaikyD/btc-content-shop/internal/application"
	"github.com/RaikyD/btc-content-shop/internal/domain"
	"github.com/RaikyD/btc-content-shop/internal/logger"
	"github.com/RaikyD/btc-content-shop/internal/presentation/helpers"
	"github.com/RaikyD/btc-content-shop/internal/pricing"
	"github.com/go-chi/chi/v5"
	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type OrdersService interface {
	CreateOrder(ctx context.Context, in application.CreateOrderInput) (application.CreateOrderResult, error)
	CheckPayment(ctx context.Context, orderID uuid.UUID) (application.CheckResult, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	ListCustomerOrders(ctx context.Context, customerID int64, limit int) ([]domain.Order, error)
	MarkRefunded(ctx context.Context, orderID uuid.UUID) (*domain.Order, error)
	IsOperator(id int64) bool
}

type OrdersHandler struct {
	svc      OrdersService
	validate *validatorv10.Validate
}

func NewOrdersHandler(svc OrdersService, v *validatorv10.Validate) *OrdersHandler {
	return &OrdersHandler{svc: svc, validate: v}
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/orders", h.CreateOrder)
	r.Get("/orders/{id}", h.GetOrder)
	r.Post("/orders/{id}/check", h.CheckPayment)
	r.Get("/customers/{id}/orders", h.ListCustomerOrders)
	r.With(RequireOperator(h.svc.IsOperator)).Post("/orders/{id}/refund", h.MarkRefunded)
}

type createOrderResponse struct {
	application.CreateOrderResult
	Message string `json:"message"`
}

func (h *OrdersHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := helpers.BindAndValidate(w, r, &req, h.validate); err != nil {
		return
	}

	res, err := h.svc.CreateOrder(r.Context(), application.CreateOrderInput{
		CustomerID: req.CustomerID,
		ProductID:  req.ProductID,
		LocationID: req.LocationID,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	helpers.WriteJSON(w, http.StatusCreated, createOrderResponse{
		CreateOrderResult: res,
		Message:           paymentInstructions(res),
	})
}

func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	ord, err := h.svc.GetOrder(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, ord)
}

type checkResponse struct {
	application.CheckResult
	Message string `json:"message"`
}

func (h *OrdersHandler) CheckPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	res, err := h.svc.CheckPayment(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, checkResponse{CheckResult: res, Message: checkMessage(res)})
}

func (h *OrdersHandler) ListCustomerOrders(w http.ResponseWriter, r *http.Request) {
	customerID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		helpers.HttpError(w, http.StatusBadRequest, "invalid customer id")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	orders, err := h.svc.ListCustomerOrders(r.Context(), customerID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	helpers.WriteJSON(w, http.StatusOK, orders)
}

func (h *OrdersHandler) MarkRefunded(w http.ResponseWriter, r *http.Request) {
	id, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	ord, err := h.svc.MarkRefunded(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	logger.Info("refund recorded", "order_id", id, "operator_id", operatorFrom(r.Context()))
	helpers.WriteJSON(w, http.StatusOK, ord)
}

type operatorKey struct{}

// RequireOperator admits requests whose X-Operator-ID header names a configured operator.
func RequireOperator(isOperator func(int64) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := strconv.ParseInt(strings.TrimSpace(r.Header.Get("X-Operator-ID")), 10, 64)
			if err != nil || !isOperator(id) {
				helpers.HttpError(w, http.StatusForbidden, domain.ErrNotOperator.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), operatorKey{}, id)))
		})
	}
}

func operatorFrom(ctx context.Context) int64 {
	id, _ := ctx.Value(operatorKey{}).(int64)
	return id
}

func orderIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		helpers.HttpError(w, http.StatusBadRequest, domain.ErrInvalidID.Error())
		return uuid.Nil, false
	}
	return id, true
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrProductNotFound),
		errors.Is(err, domain.ErrLocationNotFound),
		errors.Is(err, domain.ErrCategoryNotFound),
		errors.Is(err, domain.ErrSessionNotFound):
		helpers.HttpError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidID), errors.Is(err, domain.ErrInvalidAmount):
		helpers.HttpError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrSessionOutOfOrder):
		helpers.HttpError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrNotOperator):
		helpers.HttpError(w, http.StatusForbidden, err.Error())
	default:
		logger.Error("request failed", "err", err)
		helpers.HttpError(w, http.StatusInternalServerError, "internal error, try again later")
	}
}

func paymentInstructions(res application.CreateOrderResult) string {
	return fmt.Sprintf(
		"Please send %s BTC to %s before %s. Payment identifier: %d satoshi. Then request a payment check.",
		res.Order.ExpectedAmount.StringFixed(pricing.BTCDecimals),
		res.Address,
		res.PayBefore.Format(time.RFC3339),
		res.Order.DisambiguationUnit,
	)
}

func checkMessage(res application.CheckResult) string {
	switch res.Outcome {
	case application.OutcomePaid:
		return fmt.Sprintf("Payment confirmed! Received %s BTC.", res.Observed.StringFixed(pricing.BTCDecimals))
	case application.OutcomeNotPaid:
		if res.LedgerUnavailable {
			return fmt.Sprintf("Could not reach the payment network. Please try again in a minute. Time left to pay: %d minutes.",
				res.MinutesLeft)
		}
		return fmt.Sprintf("Payment not found. Expected %s BTC, received %s BTC. Time left to pay: %d minutes.",
			res.Order.ExpectedAmount.StringFixed(pricing.BTCDecimals),
			res.Observed.StringFixed(pricing.BTCDecimals),
			res.MinutesLeft,
		)
	case application.OutcomePoolExhausted:
		return "Payment received, but this location has run out of content. A refund is pending."
	case application.OutcomeExpired:
		return "The payment window has closed and the order expired."
	default:
		return fmt.Sprintf("Order is already %s.", res.Order.Status)
	}
}
