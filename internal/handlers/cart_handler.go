package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Sung-star/storefront-checkout/internal/backend"
	"github.com/Sung-star/storefront-checkout/internal/cart"
	"github.com/Sung-star/storefront-checkout/internal/logger"
	"github.com/Sung-star/storefront-checkout/internal/validation"
)

type cartResponse struct {
	Lines     []cart.Line `json:"lines"`
	Total     int64       `json:"total"`
	ItemCount int         `json:"itemCount"`
}

func newCartResponse(c cart.Cart) cartResponse {
	lines := c.Lines
	if lines == nil {
		lines = []cart.Line{}
	}
	return cartResponse{Lines: lines, Total: c.Total(), ItemCount: c.ItemCount()}
}

type addItemRequest struct {
	ProductID string `json:"product_id" validate:"notblank"`
}

type updateItemRequest struct {
	Quantity *int `json:"quantity" validate:"required"`
}

func (h *handler) getCart(c *gin.Context) {
	c.JSON(http.StatusOK, newCartResponse(h.carts.Get(c.Request.Context(), sessionID(c))))
}

func (h *handler) clearCart(c *gin.Context) {
	c.JSON(http.StatusOK, newCartResponse(h.carts.ClearCart(c.Request.Context(), sessionID(c))))
}

func (h *handler) addItem(c *gin.Context) {
	var req addItemRequest
	if err := validation.BindAndValidate(c, &req, h.validate); err != nil {
		return
	}

	ctx := c.Request.Context()
	p, err := h.products.GetProduct(ctx, req.ProductID)
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "product_not_found"})
			return
		}
		logger.FromGin(h.log, c).Warn("product lookup failed", zap.String("product_id", req.ProductID), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "backend_unavailable"})
		return
	}
	product, err := p.CartProduct()
	if err != nil {
		logger.FromGin(h.log, c).Warn("unreadable product", zap.String("product_id", req.ProductID), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "invalid_product"})
		return
	}
	if !product.InStock() {
		c.JSON(http.StatusConflict, gin.H{"error": "out_of_stock"})
		return
	}

	c.JSON(http.StatusOK, newCartResponse(h.carts.AddToCart(ctx, sessionID(c), product)))
}

func (h *handler) hasItem(c *gin.Context) {
	id := c.Param("product_id")
	c.JSON(http.StatusOK, gin.H{
		"productId": id,
		"inCart":    h.carts.IsInCart(c.Request.Context(), sessionID(c), id),
	})
}

func (h *handler) updateItem(c *gin.Context) {
	var req updateItemRequest
	if err := validation.BindAndValidate(c, &req, h.validate); err != nil {
		return
	}
	updated := h.carts.UpdateQuantity(c.Request.Context(), sessionID(c), c.Param("product_id"), *req.Quantity)
	c.JSON(http.StatusOK, newCartResponse(updated))
}

func (h *handler) removeItem(c *gin.Context) {
	updated := h.carts.RemoveFromCart(c.Request.Context(), sessionID(c), c.Param("product_id"))
	c.JSON(http.StatusOK, newCartResponse(updated))
}
