package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/imrishuroy/go-outfit-pipeline/internal/cart"
	"github.com/imrishuroy/go-outfit-pipeline/internal/idempotency"
	"github.com/imrishuroy/go-outfit-pipeline/internal/logger"
	"github.com/imrishuroy/go-outfit-pipeline/internal/validation"
)

// RegisterCartRoutes registers the cart routes. POST /carts honors an
// optional Idempotency-Key header.
func RegisterCartRoutes(r *gin.Engine, cfg HandlerConfig) {
	v := validation.New()
	log := logger.OrNop(cfg.Log)

	r.POST("/carts", func(c *gin.Context) {
		ctx := c.Request.Context()
		var req validation.CreateCartRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}

		in := cart.NewCart{
			Selection: cart.Selection{OutfitID: req.Selection.OutfitID, ItemIDs: req.Selection.ItemIDs},
			Currency:  req.Currency,
		}
		if req.User != nil {
			in.UserID = req.User.UserID
		}

		key := c.GetHeader(headerIdempotencyKey)
		if key == "" || cfg.Idempotency == nil {
			created, err := cfg.Carts.Create(ctx, in)
			if err != nil {
				writeCartError(c, log, err)
				return
			}
			c.Header("Location", "/carts/"+created.CartID)
			c.JSON(http.StatusCreated, created)
			return
		}

		scoped := idempotency.ScopedKey(idempotency.ScopeCart, key)
		in.CartID = uuid.NewString()
		claimed, err := cfg.Idempotency.CreateIfNotExists(ctx, scoped, in.CartID)
		if err != nil {
			internalError(c, log, "idempotency_check_failed", err)
			return
		}
		if !claimed {
			rec, err := cfg.Idempotency.Get(ctx, scoped)
			if err != nil {
				internalError(c, log, "idempotency_check_failed", err)
				return
			}
			if rec == nil {
				internalError(c, log, "idempotency_record_missing", fmt.Errorf("key %s", scoped))
				return
			}
			writeRecord(c, rec, "cartId")
			return
		}

		created, err := cfg.Carts.Create(ctx, in)
		if err != nil {
			if markErr := cfg.Idempotency.MarkFailed(ctx, scoped, err.Error()); markErr != nil {
				log.Warn("mark idempotency failed", "cart_id", in.CartID, "error", markErr)
			}
			writeCartError(c, log, err)
			return
		}
		body, err := json.Marshal(created)
		if err != nil {
			internalError(c, log, "encode_failed", err)
			return
		}
		if err := cfg.Idempotency.MarkDone(ctx, scoped, string(body), http.StatusCreated); err != nil {
			log.Warn("mark idempotency done failed", "cart_id", created.CartID, "error", err)
		}
		c.Header("Location", "/carts/"+created.CartID)
		c.Data(http.StatusCreated, "application/json", body)
	})

	r.GET("/carts/:id", func(c *gin.Context) {
		got, err := cfg.Carts.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeCartError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, got)
	})

	r.POST("/carts/:id/items", func(c *gin.Context) {
		var req validation.AddItemRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}
		qty := req.Quantity
		if qty == 0 {
			qty = 1
		}
		updated, err := cfg.Carts.AddItem(c.Request.Context(), c.Param("id"), req.ItemID, qty)
		if err != nil {
			writeCartError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, updated)
	})

	r.DELETE("/carts/:id/items/:itemId", func(c *gin.Context) {
		updated, err := cfg.Carts.RemoveItem(c.Request.Context(), c.Param("id"), c.Param("itemId"))
		if err != nil {
			writeCartError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, updated)
	})
}

func writeCartError(c *gin.Context, log *logger.Logger, err error) {
	switch {
	case errors.Is(err, cart.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "cart_not_found"})
	case errors.Is(err, cart.ErrUnknownItem):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "unknown_item", "detail": err.Error()})
	case errors.Is(err, cart.ErrCurrencyMismatch):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "currency_mismatch", "detail": err.Error()})
	case errors.Is(err, cart.ErrEmptySelection), errors.Is(err, cart.ErrInvalidQuantity):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_cart_request", "detail": err.Error()})
	case errors.Is(err, cart.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "cart_conflict", "detail": err.Error()})
	default:
		log.Error("cart request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cart_store_failed", "detail": err.Error()})
	}
}
