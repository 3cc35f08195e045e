// Package handlers exposes the cart, checkout, payment return and session
// operations over gin.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Sung-star/storefront-checkout/internal/backend"
	"github.com/Sung-star/storefront-checkout/internal/cart"
	"github.com/Sung-star/storefront-checkout/internal/checkout"
	"github.com/Sung-star/storefront-checkout/internal/logger"
	"github.com/Sung-star/storefront-checkout/internal/payment"
	"github.com/Sung-star/storefront-checkout/internal/session"
	"github.com/Sung-star/storefront-checkout/internal/validation"
)

// LoginPath is where the client is sent after a backend 401.
const LoginPath = "/login"

// ProductSource looks up catalog products.
type ProductSource interface {
	GetProduct(ctx context.Context, id string) (*backend.Product, error)
}

// HandlerConfig groups dependencies for the routes.
type HandlerConfig struct {
	Sessions   *session.Manager
	Carts      *cart.Service
	Checkout   *checkout.Service
	Products   ProductSource
	Reconciler *payment.Reconciler
	Log        *zap.Logger

	SessionTTL     time.Duration
	SecureCookies  bool
	RateLimitRPS   float64 // <= 0 disables rate limiting
	RateLimitBurst int
}

type handler struct {
	sessions   *session.Manager
	carts      *cart.Service
	checkout   *checkout.Service
	products   ProductSource
	reconciler *payment.Reconciler
	validate   *validatorv10.Validate
	log        *zap.Logger
}

// RegisterRoutes registers the storefront routes on r.
func RegisterRoutes(r gin.IRouter, cfg HandlerConfig) {
	h := &handler{
		sessions:   cfg.Sessions,
		carts:      cfg.Carts,
		checkout:   cfg.Checkout,
		products:   cfg.Products,
		reconciler: cfg.Reconciler,
		validate:   validation.New(),
		log:        logger.OrNop(cfg.Log),
	}

	g := r.Group("/")
	g.Use(SessionMiddleware(cfg.SessionTTL, cfg.SecureCookies))
	if cfg.RateLimitRPS > 0 {
		g.Use(NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, 10*time.Minute).Middleware())
	}

	g.GET("/cart", h.getCart)
	g.DELETE("/cart", h.clearCart)
	g.POST("/cart/items", h.addItem)
	g.GET("/cart/items/:product_id", h.hasItem)
	g.PATCH("/cart/items/:product_id", h.updateItem)
	g.DELETE("/cart/items/:product_id", h.removeItem)

	g.POST("/checkout", h.startCheckout)
	g.GET("/checkout", h.getCheckout)
	g.PATCH("/checkout", h.updateCheckout)
	g.POST("/checkout/next", h.nextStep)
	g.POST("/checkout/back", h.previousStep)
	g.POST("/checkout/place", h.placeOrder)
	g.DELETE("/checkout", h.discardCheckout)

	g.GET("/payment/return", h.paymentReturn)

	g.GET("/session", h.getSession)
	g.POST("/session/login", h.login)
	g.POST("/session/logout", h.logout)
}

func (h *handler) session(c *gin.Context) session.Session {
	return h.sessions.Load(c.Request.Context(), sessionID(c))
}

// unauthorized clears stored credentials and answers 401 when err is a
// backend 401. It reports whether it responded.
func (h *handler) unauthorized(c *gin.Context, err error) bool {
	if !errors.Is(err, backend.ErrUnauthorized) {
		return false
	}
	_ = h.sessions.CheckUnauthorized(c.Request.Context(), sessionID(c), err)
	c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "redirect": LoginPath})
	return true
}
