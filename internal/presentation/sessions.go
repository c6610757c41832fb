package presentation

import (
	"context"
	"errors"
	"net/http"

	"github.com/RaikyD/btc-content-shop/internal/presentation/helpers"
	"github.com/RaikyD/btc-content-shop/internal/session"
	"github.com/go-chi/chi/v5"
	validatorv10 "github.com/go-playground/validator/v10"
)

type SessionFlow interface {
	Current(ctx context.Context, customerID int64) (*session.Session, error)
	Select(ctx context.Context, customerID int64, sel session.Selection) (session.SelectResult, error)
	Reset(ctx context.Context, customerID int64) error
}

type SessionsHandler struct {
	flow     SessionFlow
	validate *validatorv10.Validate
}

func NewSessionsHandler(flow SessionFlow, v *validatorv10.Validate) *SessionsHandler {
	return &SessionsHandler{flow: flow, validate: v}
}

func (h *SessionsHandler) Register(r chi.Router) {
	r.Get("/sessions/{id}", h.Get)
	r.Post("/sessions/{id}/select", h.Select)
	r.Delete("/sessions/{id}", h.Reset)
}

func (h *SessionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	customerID, ok := int64Param(w, r)
	if !ok {
		return
	}
	s, err := h.flow.Current(r.Context(), customerID)
	if err != nil {
		writeError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, s)
}

// Select answers an out-of-order choice with 409 and the step the session is waiting for.
func (h *SessionsHandler) Select(w http.ResponseWriter, r *http.Request) {
	customerID, ok := int64Param(w, r)
	if !ok {
		return
	}
	var sel session.Selection
	if err := helpers.BindAndValidate(w, r, &sel, h.validate); err != nil {
		return
	}

	res, err := h.flow.Select(r.Context(), customerID, sel)
	if err != nil {
		var ooo *session.OutOfOrderError
		if errors.As(err, &ooo) {
			helpers.WriteJSON(w, http.StatusConflict, map[string]any{
				"error":    err.Error(),
				"expected": ooo.Expected,
				"session":  res.Session,
			})
			return
		}
		writeError(w, err)
		return
	}

	status := http.StatusOK
	if res.Order != nil {
		status = http.StatusCreated
	}
	helpers.WriteJSON(w, status, res)
}

func (h *SessionsHandler) Reset(w http.ResponseWriter, r *http.Request) {
	customerID, ok := int64Param(w, r)
	if !ok {
		return
	}
	if err := h.flow.Reset(r.Context(), customerID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
