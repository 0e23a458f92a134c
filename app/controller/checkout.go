package controller

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-reconciler/app/factory"
	"github.com/vibast-solutions/ms-go-reconciler/app/gateway"
	"github.com/vibast-solutions/ms-go-reconciler/app/service"
	"github.com/vibast-solutions/ms-go-reconciler/app/types"
)

type CheckoutController struct {
	checkoutService *service.CheckoutService
	logger          logrus.FieldLogger
}

func NewCheckoutController(checkoutService *service.CheckoutService) *CheckoutController {
	return &CheckoutController{
		checkoutService: checkoutService,
		logger:          factory.NewModuleLogger("checkout-controller"),
	}
}

func (c *CheckoutController) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, &types.HealthResponse{Status: "ok"})
}

func (c *CheckoutController) CreateCheckout(ctx echo.Context) error {
	req, err := types.NewCreateCheckoutRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	checkout, err := c.checkoutService.CreateCheckout(ctx.Request().Context(), req.OrderID)
	if err != nil {
		if errors.Is(err, service.ErrOrderNotFound) {
			return c.writeError(ctx, http.StatusNotFound, "order not found")
		}
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Create checkout failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusCreated, &types.CheckoutURLResponse{URL: checkout.URL})
}

func (c *CheckoutController) CompleteCheckout(ctx echo.Context) error {
	req, err := types.NewConfirmCheckoutRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	err = c.checkoutService.ConfirmCheckoutReturn(ctx.Request().Context(), req.OrderID, &gateway.ValidateCheckoutInput{
		HmacAlg:   req.HmacAlg,
		HmacInput: req.HmacInput,
		HmacKeyID: req.HmacKeyID,
		HmacValue: req.HmacValue,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrCheckoutRejected):
			return c.writeError(ctx, http.StatusBadRequest, "checkout validation rejected")
		case errors.Is(err, service.ErrOrderNotFound):
			return c.writeError(ctx, http.StatusNotFound, "order not found")
		default:
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Complete checkout failed")
			return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	return ctx.JSON(http.StatusOK, &types.MessageResponse{Message: "Checkout confirmed"})
}

func (c *CheckoutController) writeError(ctx echo.Context, statusCode int, message string) error {
	return ctx.JSON(statusCode, &types.ErrorResponse{Error: message})
}
