package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-outfit-pipeline/internal/cart"
	"github.com/imrishuroy/go-outfit-pipeline/internal/checkout"
	"github.com/imrishuroy/go-outfit-pipeline/internal/logger"
	"github.com/imrishuroy/go-outfit-pipeline/internal/orders"
	"github.com/imrishuroy/go-outfit-pipeline/internal/validation"
)

// RegisterOrdersRoutes registers POST /checkout and GET /orders/:id.
func RegisterOrdersRoutes(r *gin.Engine, cfg HandlerConfig) {
	v := validation.New()
	log := logger.OrNop(cfg.Log)

	r.POST("/checkout", func(c *gin.Context) {
		var req validation.CheckoutRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			// BindAndValidate already wrote a 400
			return
		}

		idempKey := c.GetHeader(headerIdempotencyKey)
		if idempKey == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing_idempotency_key"})
			return
		}

		in := checkout.Request{
			IdempotencyKey: idempKey,
			CorrelationID:  c.GetHeader(headerRequestID),
			CartID:         req.CartID,
			Payment:        orders.Payment{Provider: req.Payment.Provider, Token: req.Payment.Token},
			Shipping: orders.Shipping{
				Name:       req.Shipping.Name,
				Address1:   req.Shipping.Address1,
				City:       req.Shipping.City,
				Region:     req.Shipping.Region,
				PostalCode: req.Shipping.PostalCode,
				Country:    req.Shipping.Country,
			},
			ExpectedTotal: req.ExpectedTotal,
		}
		if req.Contact != nil {
			in.Contact = orders.Contact{Email: req.Contact.Email, Phone: req.Contact.Phone}
		}

		res, err := cfg.Checkout.Checkout(c.Request.Context(), in)
		if err != nil {
			writeCheckoutError(c, log, err)
			return
		}
		switch res.State {
		case checkout.StateCreated, checkout.StateReplayed:
			c.Header("Location", fmt.Sprintf("/orders/%s", res.OrderID))
			c.Data(res.StatusCode, "application/json", res.Body)
		case checkout.StateInProgress:
			c.JSON(http.StatusAccepted, gin.H{"message": "request already in progress", "orderId": res.OrderID})
		case checkout.StatePreviousFailed:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "previous_attempt_failed", "orderId": res.OrderID})
		}
	})

	r.GET("/orders/:id", func(c *gin.Context) {
		o, err := cfg.Orders.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			internalError(c, log, "order_lookup_failed", err)
			return
		}
		if o == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "order_not_found"})
			return
		}
		c.JSON(http.StatusOK, o)
	})
}

func writeCheckoutError(c *gin.Context, log *logger.Logger, err error) {
	switch {
	case errors.Is(err, checkout.ErrMissingKey):
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_idempotency_key"})
	case errors.Is(err, checkout.ErrCartNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "cart_not_found", "detail": err.Error()})
	case errors.Is(err, checkout.ErrEmptyCart):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "empty_cart"})
	case errors.Is(err, checkout.ErrTotalMismatch):
		c.JSON(http.StatusConflict, gin.H{"error": "total_mismatch", "detail": err.Error()})
	case errors.Is(err, cart.ErrUnknownItem):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "unknown_item", "detail": err.Error()})
	case errors.Is(err, checkout.ErrEnqueue):
		internalError(c, log, "enqueue_failed", err)
	default:
		internalError(c, log, "checkout_failed", err)
	}
}
