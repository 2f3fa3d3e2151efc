package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	aggDomain "github.com/davicafu/eventlab/internal/aggregate/domain"
	"github.com/davicafu/eventlab/internal/order/application"
	"github.com/davicafu/eventlab/internal/order/domain"
	outboxDomain "github.com/davicafu/eventlab/internal/outbox/domain"
)

// OrderHandler encapsula los endpoints HTTP relacionados con Order
type OrderHandler struct {
	service *application.OrderService
	outbox  outboxDomain.Store
}

// NewOrderHandler crea un nuevo OrderHandler
func NewOrderHandler(service *application.OrderService, outbox outboxDomain.Store) *OrderHandler {
	return &OrderHandler{service: service, outbox: outbox}
}

// ---------------- Handlers ----------------

// CreateOrder endpoint POST /orders
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req struct {
		CustomerID string `json:"customer_id" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := h.service.CreateOrder(c.Request.Context(), req.CustomerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, order)
}

// GetOrder endpoint GET /orders/:id
func (h *OrderHandler) GetOrder(c *gin.Context) {
	id := c.Param("id")

	order, err := h.service.GetOrder(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, aggDomain.ErrAggregateNotFound) || errors.Is(err, domain.ErrOrderDeleted) {
			c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, order)
}

// AddItem endpoint POST /orders/:id/items
func (h *OrderHandler) AddItem(c *gin.Context) {
	id := c.Param("id")

	var req struct {
		SKU        string `json:"sku" binding:"required"`
		Quantity   int    `json:"quantity" binding:"required,gt=0"`
		PriceCents int64  `json:"price_cents" binding:"required,gt=0"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := h.service.AddItem(c.Request.Context(), id, domain.OrderItem{
		SKU:        req.SKU,
		Quantity:   req.Quantity,
		PriceCents: req.PriceCents,
	})
	if err != nil {
		switch {
		case errors.Is(err, aggDomain.ErrAggregateNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		case errors.Is(err, domain.ErrOrderDeleted):
			c.JSON(http.StatusGone, gin.H{"error": "order is deleted"})
		case errors.Is(err, domain.ErrInvalidItem):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, order)
}

// DeleteOrder endpoint DELETE /orders/:id
func (h *OrderHandler) DeleteOrder(c *gin.Context) {
	id := c.Param("id")

	if err := h.service.DeleteOrder(c.Request.Context(), id); err != nil {
		if errors.Is(err, aggDomain.ErrAggregateNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Status(http.StatusNoContent)
}

// GetDeadLetters endpoint GET /admin/outbox/dead-letters
func (h *OrderHandler) GetDeadLetters(c *gin.Context) {
	limit := 50
	if limitStr := c.Query("limit"); limitStr != "" {
		if v, err := strconv.Atoi(limitStr); err == nil && v > 0 {
			limit = v
		}
	}

	msgs, err := h.outbox.GetDeadLetters(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"dead_letters": msgs, "count": len(msgs)})
}
