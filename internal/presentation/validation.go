package presentation

import (
	"reflect"

	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

type createOrderRequest struct {
	CustomerID int64 `json:"customer_id" validate:"required,gt=0"`
	ProductID  int64 `json:"product_id" validate:"required,gt=0"`
	LocationID int64 `json:"location_id" validate:"required,gt=0"`
}

type addCategoryRequest struct {
	Name string `json:"name" validate:"required,max=128"`
}

type addProductRequest struct {
	CategoryID  int64           `json:"category_id" validate:"required,gt=0"`
	Name        string          `json:"name" validate:"required,max=128"`
	Description string          `json:"description" validate:"max=2048"`
	PriceFiat   decimal.Decimal `json:"price_fiat" validate:"gt=0"`
}

type addLocationRequest struct {
	Name string `json:"name" validate:"required,max=128"`
}

type addContentRequest struct {
	Payloads []string `json:"payloads" validate:"required,min=1,max=1000,dive,required,max=4096"`
}

// NewValidator returns a validator that compares decimal fields by value.
func NewValidator() *validatorv10.Validate {
	v := validatorv10.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return v
}
