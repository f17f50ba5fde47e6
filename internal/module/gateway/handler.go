package gateway

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/searchgate/server/internal/module/auth"
	"github.com/searchgate/server/internal/module/ledger"
	"github.com/searchgate/server/internal/module/pricing"
	"github.com/searchgate/server/internal/module/usage"
	apperrors "github.com/searchgate/server/internal/shared/errors"
	"github.com/searchgate/server/internal/shared/response"
	"go.uber.org/zap"
)

// Handler exposes the metered search API.
type Handler struct {
	service *Service
	ledger  *ledger.Service
	usage   *usage.Recorder
	logger  *zap.Logger
}

// NewHandler creates a new gateway handler.
func NewHandler(service *Service, ledgerService *ledger.Service, recorder *usage.Recorder, logger *zap.Logger) *Handler {
	return &Handler{
		service: service,
		ledger:  ledgerService,
		usage:   recorder,
		logger:  logger,
	}
}

// RegisterRoutes registers authenticated gateway routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/search", h.Search)
	r.GET("/credits/balance", h.Balance)
	r.GET("/usage", h.Usage)
}

// RegisterPublicRoutes registers routes that need no credentials.
func (h *Handler) RegisterPublicRoutes(r *gin.RouterGroup) {
	r.GET("/pricing", h.Pricing)
}

// Search runs one metered search.
func (h *Handler) Search(c *gin.Context) {
	var body SearchRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.HandleAppError(c, apperrors.BadRequest("invalid request body"))
		return
	}

	req, err := body.Validate()
	if err != nil {
		response.HandleAppError(c, err)
		return
	}

	outcome, err := h.service.Search(c.Request.Context(), auth.AccountID(c), req)
	if err != nil {
		response.HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, SearchResponseBody{
		Results: outcome.Response.Results,
		Meta: SearchMeta{
			NumberOfResults: outcome.Response.NumberOfResults,
			ResponseTimeMs:  outcome.ResponseTimeMs,
			InstanceUsed:    outcome.Response.InstanceUsed,
			EnginesUsed:     outcome.Response.EnginesUsed,
			Credits: CreditsMeta{
				UsedForRequest: outcome.CreditsCharged,
				BalanceAfter:   outcome.BalanceAfter,
			},
		},
	})
}

// Pricing returns the purchase tiers and per-engine costs.
func (h *Handler) Pricing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"tiers":                  pricing.Tiers(),
		"engine_costs":           pricing.EngineCosts(),
		"supported_engines":      pricing.SupportedEngines(),
		"min_purchase_usd_cents": pricing.MinPurchaseUsdCents,
		"max_purchase_usd_cents": pricing.MaxPurchaseUsdCents,
	})
}

// Balance returns the account's credit balance.
func (h *Handler) Balance(c *gin.Context) {
	balance, err := h.ledger.Balance(c.Request.Context(), auth.AccountID(c))
	if err != nil {
		if errors.Is(err, ledger.ErrBalanceNotFound) {
			c.JSON(http.StatusOK, gin.H{
				"balance":         0,
				"total_purchased": 0,
				"total_used":      0,
			})
			return
		}
		response.HandleAppError(c, apperrors.Internal("failed to load balance", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"balance":          balance.Balance,
		"total_purchased":  balance.TotalPurchased,
		"total_used":       balance.TotalUsed,
		"last_purchase_at": balance.LastPurchaseAt,
	})
}

// Usage returns recent usage records and aggregate stats for the account.
func (h *Handler) Usage(c *gin.Context) {
	accountID := auth.AccountID(c)
	ctx := c.Request.Context()

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	records, err := h.usage.ListRecent(ctx, accountID, limit)
	if err != nil {
		response.HandleAppError(c, apperrors.Internal("failed to load usage", err))
		return
	}

	end := time.Now()
	start := end.AddDate(0, 0, -30)
	stats, err := h.usage.Stats(ctx, accountID, start, end)
	if err != nil {
		h.logger.Warn("failed to load usage stats",
			zap.String("account_id", accountID),
			zap.Error(err),
		)
		stats = &usage.Stats{}
	}

	c.JSON(http.StatusOK, gin.H{
		"records": records,
		"stats":   stats,
	})
}
