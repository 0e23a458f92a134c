package types

import (
	"errors"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

type HealthResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type CreateCheckoutRequest struct {
	OrderID uint64 `json:"order_id"`
}

type CheckoutURLResponse struct {
	URL string `json:"url"`
}

func NewCreateCheckoutRequestFromContext(ctx echo.Context) (*CreateCheckoutRequest, error) {
	var body CreateCheckoutRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}
	return &body, nil
}

func (r *CreateCheckoutRequest) Validate() error {
	if r.OrderID == 0 {
		return errors.New("order_id is required")
	}
	return nil
}

// ConfirmCheckoutRequest carries the signed redirect parameters the hosted
// checkout page appends when it sends the customer back.
type ConfirmCheckoutRequest struct {
	OrderID   uint64
	HmacAlg   string
	HmacInput string
	HmacKeyID string
	HmacValue string
}

func NewConfirmCheckoutRequestFromContext(ctx echo.Context) (*ConfirmCheckoutRequest, error) {
	idRaw := strings.TrimSpace(ctx.QueryParam("id"))
	if idRaw == "" {
		idRaw = strings.TrimSpace(ctx.QueryParam("checkout_id"))
	}
	orderID, err := strconv.ParseUint(idRaw, 10, 64)
	if err != nil {
		return nil, errors.New("invalid order id")
	}

	return &ConfirmCheckoutRequest{
		OrderID:   orderID,
		HmacAlg:   strings.TrimSpace(ctx.QueryParam("hmac_alg")),
		HmacInput: strings.TrimSpace(ctx.QueryParam("hmac_input")),
		HmacKeyID: strings.TrimSpace(ctx.QueryParam("hmac_keyId")),
		HmacValue: strings.TrimSpace(ctx.QueryParam("hmac_value")),
	}, nil
}

func (r *ConfirmCheckoutRequest) Validate() error {
	if r.OrderID == 0 {
		return errors.New("invalid order id")
	}
	if r.HmacAlg == "" {
		return errors.New("hmac_alg is required")
	}
	if r.HmacInput == "" {
		return errors.New("hmac_input is required")
	}
	if r.HmacKeyID == "" {
		return errors.New("hmac_keyId is required")
	}
	if r.HmacValue == "" {
		return errors.New("hmac_value is required")
	}
	return nil
}
