package payment

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/searchgate/server/internal/module/auth"
	"github.com/searchgate/server/internal/module/pricing"
	apperrors "github.com/searchgate/server/internal/shared/errors"
	"github.com/searchgate/server/internal/shared/response"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
	"go.uber.org/zap"
)

// CheckoutRequest is the body for starting a credit purchase.
type CheckoutRequest struct {
	AmountUsdCents int64 `json:"amount_usd_cents" binding:"required"`
}

// CheckoutResponse returns the client secret the frontend needs to confirm
// the payment, together with the credit quote for the amount.
type CheckoutResponse struct {
	PaymentIntentID string `json:"payment_intent_id"`
	ClientSecret    string `json:"client_secret"`
	AmountUsdCents  int64  `json:"amount_usd_cents"`
	Credits         int64  `json:"credits"`
	DiscountPercent int    `json:"discount_percent"`
}

// Handler exposes checkout and purchase history endpoints.
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new payment handler.
func NewHandler(service *Service, stripeAPIKey string, logger *zap.Logger) *Handler {
	stripe.Key = stripeAPIKey
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes registers authenticated payment routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/credits/checkout", h.Checkout)
	r.GET("/credits/purchases", h.ListPurchases)
}

// Checkout creates a payment intent for a credit purchase. The account ID
// travels in the intent metadata so the webhook can settle it later.
func (h *Handler) Checkout(c *gin.Context) {
	accountID := auth.AccountID(c)

	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.HandleAppError(c, apperrors.BadRequest("invalid request body"))
		return
	}

	quote, err := pricing.Calculate(req.AmountUsdCents)
	if err != nil {
		response.HandleAppError(c, apperrors.BadRequest("amount outside allowed purchase range"))
		return
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.AmountUsdCents),
		Currency: stripe.String(string(stripe.CurrencyUSD)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Metadata: map[string]string{
			"account_id": accountID,
		},
	}

	intent, err := paymentintent.New(params)
	if err != nil {
		h.logger.Error("failed to create payment intent",
			zap.String("account_id", accountID),
			zap.Error(err),
		)
		response.HandleAppError(c, apperrors.Internal("failed to start checkout", err))
		return
	}

	c.JSON(http.StatusOK, CheckoutResponse{
		PaymentIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
		AmountUsdCents:  req.AmountUsdCents,
		Credits:         quote.Credits,
		DiscountPercent: quote.DiscountPercent,
	})
}

// ListPurchases returns the account's recent purchases.
func (h *Handler) ListPurchases(c *gin.Context) {
	purchases, err := h.service.ListPurchases(c.Request.Context(), auth.AccountID(c), 50)
	if err != nil {
		response.HandleAppError(c, apperrors.Internal("failed to list purchases", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"purchases": purchases})
}
