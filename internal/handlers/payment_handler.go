package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *handler) paymentReturn(c *gin.Context) {
	out, err := h.reconciler.Reconcile(c.Request.Context(), h.session(c), c.Request.URL.Query())
	if err != nil && h.unauthorized(c, err) {
		return
	}
	c.JSON(http.StatusOK, out)
}
