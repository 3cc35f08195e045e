package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Sung-star/storefront-checkout/internal/checkout"
	"github.com/Sung-star/storefront-checkout/internal/logger"
)

// checkoutResponse is a checkout view with an optional error code.
type checkoutResponse struct {
	*checkout.View
	Error   string            `json:"error,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
	OrderID string            `json:"order_id,omitempty"`
}

func (h *handler) startCheckout(c *gin.Context) {
	v, err := h.checkout.Start(c.Request.Context(), h.session(c))
	h.respondCheckout(c, v, err)
}

func (h *handler) getCheckout(c *gin.Context) {
	v, err := h.checkout.Get(c.Request.Context(), h.session(c))
	h.respondCheckout(c, v, err)
}

func (h *handler) updateCheckout(c *gin.Context) {
	var p checkout.Patch
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request_body", "msg": err.Error()})
		return
	}
	v, err := h.checkout.Update(c.Request.Context(), h.session(c), p)
	h.respondCheckout(c, v, err)
}

func (h *handler) nextStep(c *gin.Context) {
	v, err := h.checkout.Next(c.Request.Context(), h.session(c))
	h.respondCheckout(c, v, err)
}

func (h *handler) previousStep(c *gin.Context) {
	v, err := h.checkout.Back(c.Request.Context(), h.session(c))
	h.respondCheckout(c, v, err)
}

func (h *handler) placeOrder(c *gin.Context) {
	v, err := h.checkout.PlaceOrder(c.Request.Context(), h.session(c))
	h.respondCheckout(c, v, err)
}

func (h *handler) discardCheckout(c *gin.Context) {
	if err := h.checkout.Discard(c.Request.Context(), sessionID(c)); err != nil {
		logger.FromGin(h.log, c).Error("discard checkout failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "discard_failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) respondCheckout(c *gin.Context, v *checkout.View, err error) {
	if h.unauthorized(c, err) {
		return
	}

	var (
		ve *checkout.ValidationError
		se *checkout.SubmitError
	)
	switch {
	case err == nil:
		if v.Redirect != "" {
			c.Header("Location", v.Redirect)
			c.JSON(http.StatusSeeOther, checkoutResponse{View: v})
			return
		}
		c.JSON(http.StatusOK, checkoutResponse{View: v})
	case errors.As(err, &ve):
		c.JSON(http.StatusUnprocessableEntity, checkoutResponse{View: v, Error: "validation_failed", Fields: ve.Fields})
	case errors.As(err, &se):
		code := "order_submission_failed"
		if se.Stage == checkout.StageCreatePaymentLink {
			code = "payment_link_failed"
		}
		c.JSON(http.StatusBadGateway, checkoutResponse{View: v, Error: code, OrderID: se.OrderID})
	case errors.Is(err, checkout.ErrSubmitInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": "submit_in_progress"})
	case errors.Is(err, checkout.ErrInvalidTransition):
		c.JSON(http.StatusConflict, checkoutResponse{View: v, Error: "invalid_transition"})
	case errors.Is(err, checkout.ErrStockAdjusted):
		c.JSON(http.StatusConflict, checkoutResponse{View: v, Error: "stock_adjusted"})
	default:
		logger.FromGin(h.log, c).Error("checkout operation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}
