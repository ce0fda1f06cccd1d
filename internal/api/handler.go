package api

import (
	"net/http"
	"strconv"
	"time"

	"seckill-service/internal/models"
	"seckill-service/internal/service"
	"seckill-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	gate       *service.AdmissionGate
	inventory  *service.InventoryEngine
	orders     *service.OrderService
	reconciler *service.ReconciliationEngine
}

// NewHandler creates a new HTTP handler
func NewHandler(gate *service.AdmissionGate, inventory *service.InventoryEngine, orders *service.OrderService, reconciler *service.ReconciliationEngine) *Handler {
	return &Handler{
		gate:       gate,
		inventory:  inventory,
		orders:     orders,
		reconciler: reconciler,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/purchase", h.purchase)
		v1.GET("/orders/:id", h.getOrder)
		v1.GET("/orders/:id/status", h.getOrderStatus)
		v1.GET("/stock/:sku", h.getStock)
		v1.PUT("/orders/:id/status", h.updateOrderStatus)

		admin := v1.Group("/admin")
		{
			admin.POST("/warmup", h.warmupStock)
			admin.POST("/reconcile", h.reconcile)
		}
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// PurchaseRequest is the body of a purchase attempt.
type PurchaseRequest struct {
	UserID   string `json:"user_id" binding:"required"`
	SKUID    string `json:"sku_id" binding:"required"`
	Quantity int    `json:"quantity"`
}

// purchase runs the admission gate and, if admitted, the stock deduction.
func (h *Handler) purchase(c *gin.Context) {
	var req PurchaseRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}
	if req.Quantity <= 0 {
		req.Quantity = 1
	}

	acquire := h.gate.TryAcquireToken(c.Request.Context(), req.UserID, req.SKUID)
	if acquire.Code != models.CodeSuccess {
		c.JSON(acquire.Code, acquire)
		return
	}

	result, err := h.inventory.DeductStock(c.Request.Context(), req.SKUID, req.UserID, req.Quantity)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Purchase failed",
			"details": err.Error(),
		})
		return
	}
	c.JSON(result.Code, result)
}

// getOrder handles get order by order_id
func (h *Handler) getOrder(c *gin.Context) {
	orderID := c.Param("id")

	order, err := h.orders.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to load order",
			"details": err.Error(),
		})
		return
	}
	if order == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Order not found",
		})
		return
	}

	c.JSON(http.StatusOK, order)
}

// getOrderStatus answers from the status cache only; a miss is a plain
// not-found result, never an error.
func (h *Handler) getOrderStatus(c *gin.Context) {
	result := h.gate.QueryStatus(c.Request.Context(), c.Param("id"))
	c.JSON(http.StatusOK, result)
}

// UpdateStatusRequest is the body of a status transition.
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// updateOrderStatus moves an order through its lifecycle.
func (h *Handler) updateOrderStatus(c *gin.Context) {
	var req UpdateStatusRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	ok, err := h.orders.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to update order status",
			"details": err.Error(),
		})
		return
	}
	if !ok {
		c.JSON(http.StatusConflict, gin.H{
			"error": "Transition not allowed",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order_id": c.Param("id"),
		"status":   req.Status,
	})
}

// getStock returns the cached stock counters for a SKU.
func (h *Handler) getStock(c *gin.Context) {
	snapshot, err := h.inventory.GetStock(c.Request.Context(), c.Param("sku"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to read stock",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// WarmupRequest is the body of a stock warmup call.
type WarmupRequest struct {
	SKUID      string `json:"sku_id" binding:"required"`
	TotalStock int64  `json:"total_stock"`
}

// warmupStock initializes a SKU's cache counters before a sale opens.
func (h *Handler) warmupStock(c *gin.Context) {
	var req WarmupRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if err := h.inventory.WarmupStock(c.Request.Context(), req.SKUID, req.TotalStock); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to warm up stock",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sku_id":      req.SKUID,
		"total_stock": req.TotalStock,
	})
}

// reconcile runs a full reconciliation pass on demand.
func (h *Handler) reconcile(c *gin.Context) {
	report, err := h.reconciler.ExecuteManualReconciliation(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Reconciliation failed",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, report)
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
