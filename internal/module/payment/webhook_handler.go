package payment

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"
)

// WebhookHandler receives payment provider events.
type WebhookHandler struct {
	service       *Service
	webhookSecret string
	logger        *zap.Logger
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(service *Service, webhookSecret string, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		service:       service,
		webhookSecret: webhookSecret,
		logger:        logger,
	}
}

// RegisterRoutes registers the webhook routes.
func (h *WebhookHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/payment", h.HandlePaymentWebhook)
}

// HandlePaymentWebhook handles incoming Stripe webhook events. The signature
// is verified against the raw body before anything is parsed.
func (h *WebhookHandler) HandlePaymentWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.logger.Error("failed to read webhook body", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	event, err := webhook.ConstructEvent(payload, c.GetHeader("Stripe-Signature"), h.webhookSecret)
	if err != nil {
		h.logger.Warn("invalid webhook signature", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		return
	}

	ctx := c.Request.Context()

	switch event.Type {
	case "payment_intent.succeeded":
		settlement, parseErr := parsePaymentIntentEvent(&event)
		if parseErr != nil {
			h.logger.Error("failed to parse payment event",
				zap.String("event_id", event.ID),
				zap.Error(parseErr),
			)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event"})
			return
		}

		result, settleErr := h.service.HandleSucceeded(ctx, settlement)
		if settleErr != nil && result == "" {
			// Transient settlement failure. Signal the provider to redeliver.
			h.logger.Error("settlement failed",
				zap.String("event_id", event.ID),
				zap.Error(settleErr),
			)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "settlement failed"})
			return
		}
		if settleErr != nil {
			h.logger.Warn("payment event rejected",
				zap.String("event_id", event.ID),
				zap.Error(settleErr),
			)
		}
		c.JSON(http.StatusOK, gin.H{"status": string(result)})

	case "payment_intent.payment_failed":
		settlement, parseErr := parsePaymentIntentEvent(&event)
		if parseErr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event"})
			return
		}
		if err := h.service.HandleFailed(ctx, settlement, failureReason(&event)); err != nil {
			h.logger.Error("failed to record failed payment",
				zap.String("event_id", event.ID),
				zap.Error(err),
			)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "recorded"})

	default:
		h.logger.Debug("unhandled webhook event type", zap.String("type", string(event.Type)))
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
	}
}

func parsePaymentIntentEvent(event *stripe.Event) (SettlementEvent, error) {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return SettlementEvent{}, err
	}
	return SettlementEvent{
		ExternalPaymentID: intent.ID,
		AccountID:         intent.Metadata["account_id"],
		AmountUsdCents:    intent.Amount,
	}, nil
}

func failureReason(event *stripe.Event) string {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return "unknown"
	}
	if intent.LastPaymentError != nil && intent.LastPaymentError.Msg != "" {
		return intent.LastPaymentError.Msg
	}
	return "payment failed"
}
