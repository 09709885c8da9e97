package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"booking-service/internal/apperr"
	"booking-service/internal/gateway"
	"booking-service/internal/models"
	"booking-service/internal/store"
	"booking-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var cardExpiryPattern = regexp.MustCompile(`^(0[1-9]|1[0-2])/[0-9]{2,4}$`)

// PaymentService handles direct payments (charges not attached to any
// booking) and payment lookups. Booking-attached payments go through the
// orchestrator instead.
type PaymentService struct {
	payments       PaymentStore
	charger        Charger
	maxAmountCents int64
	logger         *zap.Logger
}

// NewPaymentService creates a new payment service
func NewPaymentService(payments PaymentStore, charger Charger, maxAmountCents int64) *PaymentService {
	return &PaymentService{
		payments:       payments,
		charger:        charger,
		maxAmountCents: maxAmountCents,
		logger:         util.GetLogger(),
	}
}

// DirectPaymentRequest describes a standalone charge.
type DirectPaymentRequest struct {
	UserID      int64            `json:"-"`
	AmountCents int64            `json:"amount_cents" binding:"required"`
	Method      string           `json:"method" binding:"required"`
	Description string           `json:"description"`
	Email       string           `json:"email" binding:"required"`
	Card        *models.CardData `json:"card,omitempty"`
}

// CreateDirectPayment charges the gateway and records the payment with no
// booking attached. Delayed methods (PIX, BOLETO) come back pending and are
// settled later by the webhook reconciler.
func (s *PaymentService) CreateDirectPayment(ctx context.Context, req *DirectPaymentRequest) (*models.Payment, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.CreateDirectPayment")
	defer span.End()

	if err := s.validateDirect(req); err != nil {
		return nil, err
	}

	util.PaymentAttemptsTotal.Inc()
	result, err := s.charger.Charge(ctx, &gateway.ChargeRequest{
		ReferenceID:   fmt.Sprintf("direct-%d-%s", req.UserID, uuid.New().String()[:8]),
		AmountCents:   req.AmountCents,
		Method:        req.Method,
		Description:   req.Description,
		CustomerEmail: req.Email,
		Card:          req.Card,
	})
	if err != nil {
		util.PaymentFailedTotal.WithLabelValues("gateway_error").Inc()
		if errors.Is(err, gateway.ErrUnavailable) {
			return nil, apperr.GatewayUnavailable("payment gateway unavailable", err)
		}
		return nil, apperr.Wrap(apperr.KindGatewayDeclined, "payment rejected", err)
	}

	payment := &models.Payment{
		UserID:         req.UserID,
		TransactionID:  result.TransactionID,
		AmountCents:    req.AmountCents,
		Method:         req.Method,
		Status:         result.Status,
		GatewayMessage: result.Message,
	}

	if err := s.payments.CreatePayment(ctx, payment); err != nil {
		return nil, fmt.Errorf("failed to persist payment: %w", err)
	}

	if result.Status.IsSuccessful() {
		util.PaymentConfirmedTotal.Inc()
	} else if result.Status.IsTerminal() {
		util.PaymentFailedTotal.WithLabelValues("declined").Inc()
	}

	s.logger.Info("Direct payment created",
		zap.String("transaction_id", payment.TransactionID),
		zap.String("status", string(payment.Status)),
		zap.Int64("amount_cents", payment.AmountCents))
	return payment, nil
}

func (s *PaymentService) validateDirect(req *DirectPaymentRequest) error {
	if req.AmountCents <= 0 {
		return apperr.Validation("amount must be positive")
	}
	if s.maxAmountCents > 0 && req.AmountCents > s.maxAmountCents {
		return apperr.Validation("amount exceeds the allowed maximum")
	}
	if !models.ValidPaymentMethod(req.Method) {
		return apperr.Validation("unsupported payment method")
	}
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		return apperr.Validation("a valid email is required")
	}
	if req.Method == models.PaymentMethodCreditCard {
		return validateCard(req.Card)
	}
	return nil
}

// validateCard checks sandbox card details for CREDIT_CARD charges. Shared
// with the booking orchestrator.
func validateCard(card *models.CardData) error {
	if card == nil {
		return apperr.Validation("card details are required for credit card payments")
	}
	digits := strings.ReplaceAll(strings.ReplaceAll(card.Number, " ", ""), "-", "")
	if len(digits) < 13 {
		return apperr.Validation("invalid card number")
	}
	for _, c := range digits {
		if c < '0' || c > '9' {
			return apperr.Validation("invalid card number")
		}
	}
	if strings.TrimSpace(card.HolderName) == "" {
		return apperr.Validation("card holder name is required")
	}
	if !cardExpiryPattern.MatchString(card.ExpirationDate) {
		return apperr.Validation("invalid card expiration date")
	}
	if len(card.CVV) < 3 {
		return apperr.Validation("invalid card security code")
	}
	return nil
}

// GetByTransactionID looks up a payment by its gateway transaction id.
func (s *PaymentService) GetByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error) {
	payment, err := s.payments.GetPaymentByTransactionID(ctx, transactionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("payment not found")
		}
		return nil, err
	}
	return payment, nil
}

// ListHistory returns a user's payments, newest first.
func (s *PaymentService) ListHistory(ctx context.Context, userID int64) ([]models.Payment, error) {
	return s.payments.ListPaymentsByUser(ctx, userID)
}
