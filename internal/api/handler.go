// Package api exposes the HTTP surface: booking and availability endpoints,
// direct payments, the gateway webhook, and operational probes.
package api

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"booking-service/internal/apperr"
	"booking-service/internal/models"
	"booking-service/internal/service"
	"booking-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Handler wires the services into gin routes.
type Handler struct {
	bookings     *service.BookingOrchestrator
	availability *service.AvailabilityService
	payments     *service.PaymentService
	reconciler   *service.PaymentReconciler
	ready        func() error
	logger       *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	bookings *service.BookingOrchestrator,
	availability *service.AvailabilityService,
	payments *service.PaymentService,
	reconciler *service.PaymentReconciler,
	ready func() error,
) *Handler {
	return &Handler{
		bookings:     bookings,
		availability: availability,
		payments:     payments,
		reconciler:   reconciler,
		ready:        ready,
		logger:       util.GetLogger(),
	}
}

// SetupRouter configures all routes
func (h *Handler) SetupRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(metricsMiddleware())

	router.GET("/health", h.health)
	router.GET("/ready", h.readiness)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		// The webhook authenticates with its signature, not a user header.
		v1.POST("/payments/webhook", h.handleWebhook)

		authed := v1.Group("", identityMiddleware())
		{
			authed.POST("/bookings", h.createBooking)
			authed.GET("/bookings/:id", h.getBooking)
			authed.GET("/users/:id/bookings", h.listBookings)

			authed.POST("/boats/:id/availability", h.createWindow)
			authed.GET("/boats/:id/availability", h.listWindows)
			authed.DELETE("/availability/:id", h.deleteWindow)

			authed.POST("/payments/direct", h.createDirectPayment)
			authed.GET("/payments/transaction/:id", h.getPayment)
			authed.GET("/payments/history", h.paymentHistory)
		}
	}

	return router
}

// identityMiddleware reads the authenticated user id set by the edge proxy.
func identityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := strconv.ParseInt(c.GetHeader("X-User-ID"), 10, 64)
		if err != nil || userID <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid X-User-ID header"})
			return
		}
		c.Set("user_id", userID)
		c.Next()
	}
}

func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		util.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		util.HTTPRequestDuration.WithLabelValues(c.Request.Method, path, status).
			Observe(time.Since(start).Seconds())
	}
}

func userID(c *gin.Context) int64 {
	return c.GetInt64("user_id")
}

// respondError maps the error taxonomy onto HTTP statuses.
func (h *Handler) respondError(c *gin.Context, err error) {
	var status int
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindValidation:
		status = http.StatusBadRequest
	case apperr.KindConflict:
		status = http.StatusConflict
	case apperr.KindGatewayDeclined:
		status = http.StatusPaymentRequired
	case apperr.KindGatewayUnavailable:
		status = http.StatusBadGateway
	default:
		h.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (h *Handler) createBooking(c *gin.Context) {
	var req service.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	req.UserID = userID(c)
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	resp, err := h.bookings.CreateBooking(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) getBooking(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid booking id"})
		return
	}

	detail, err := h.bookings.GetBooking(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *Handler) listBookings(c *gin.Context) {
	renterID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	status := c.Query("status")
	if status != "" {
		switch status {
		case models.BookingStatusPending, models.BookingStatusConfirmed, models.BookingStatusCancelled:
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status filter"})
			return
		}
	}

	bookings, err := h.bookings.ListBookings(c.Request.Context(), renterID, status)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": bookings})
}

func (h *Handler) createWindow(c *gin.Context) {
	boatID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid boat id"})
		return
	}

	var req service.CreateWindowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	req.BoatID = boatID
	req.OwnerID = userID(c)

	window, err := h.availability.CreateWindow(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, window)
}

func (h *Handler) listWindows(c *gin.Context) {
	boatID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid boat id"})
		return
	}

	windows, err := h.availability.ListWindows(c.Request.Context(), boatID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"windows": windows})
}

func (h *Handler) deleteWindow(c *gin.Context) {
	windowID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid window id"})
		return
	}

	if err := h.availability.DeleteWindow(c.Request.Context(), windowID, userID(c)); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleWebhook reads the raw body before any parsing so the signature is
// verified over exactly the bytes the gateway signed.
func (h *Handler) handleWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read request body"})
		return
	}

	err = h.reconciler.HandleNotification(c.Request.Context(), payload, c.GetHeader("X-Signature"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "received"})
}

func (h *Handler) createDirectPayment(c *gin.Context) {
	var req service.DirectPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	req.UserID = userID(c)

	payment, err := h.payments.CreateDirectPayment(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, payment)
}

func (h *Handler) getPayment(c *gin.Context) {
	payment, err := h.payments.GetByTransactionID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}

func (h *Handler) paymentHistory(c *gin.Context) {
	payments, err := h.payments.ListHistory(c.Request.Context(), userID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": payments})
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) readiness(c *gin.Context) {
	if err := h.ready(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
