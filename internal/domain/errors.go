package domain

import "errors"

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrProductNotFound   = errors.New("product not found")
	ErrLocationNotFound  = errors.New("location not found")
	ErrCategoryNotFound  = errors.New("category not found")
	ErrInvalidID         = errors.New("invalid id")
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrInvalidTransition = errors.New("invalid order status transition")
	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionOutOfOrder = errors.New("unexpected session step")
	ErrNotOperator       = errors.New("operator access required")
)
