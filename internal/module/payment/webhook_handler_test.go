package payment

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/searchgate/server/internal/module/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testWebhookSecret = "whsec_test_secret"

func newWebhookRouter(t *testing.T, service *Service) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	handler := NewWebhookHandler(service, testWebhookSecret, zap.NewNop())
	handler.RegisterRoutes(router.Group("/webhooks"))
	return router
}

func succeededPayload() []byte {
	return []byte(fmt.Sprintf(
		`{"id":"evt_1","api_version":%q,"type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","amount":1000,"metadata":{"account_id":"acct-1"}}}}`,
		stripe.APIVersion,
	))
}

func deliver(router *gin.Engine, payload []byte, secret string) *httptest.ResponseRecorder {
	ts := time.Now()
	sig := webhook.ComputeSignature(ts, payload, secret)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(sig)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestWebhookAcknowledgesSettledPayment(t *testing.T) {
	service, ledgerService, _ := newTestService(t, allowAllAccounts{})
	router := newWebhookRouter(t, service)

	rec := deliver(router, succeededPayload(), testWebhookSecret)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), string(SettlementApplied))

	balance, err := ledgerService.Balance(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Equal(t, int64(12500), balance.Balance)
}

func TestWebhookFailsDeliveryOnLedgerOutage(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	// The ledger table is missing, so the top-up cannot complete even
	// though the purchase row is written.
	require.NoError(t, db.AutoMigrate(&CreditPurchase{}))

	ledgerService := ledger.NewService(ledger.NewRepository(db), zap.NewNop())
	service := NewService(NewRepository(db), ledgerService, allowAllAccounts{}, nil, zap.NewNop())
	router := newWebhookRouter(t, service)

	rec := deliver(router, succeededPayload(), testWebhookSecret)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var purchase CreditPurchase
	require.NoError(t, db.Where("external_payment_id = ?", "pi_1").First(&purchase).Error)
	assert.Equal(t, PurchaseStatusPending, purchase.Status)

	// Redelivery after the ledger recovers completes the settlement.
	require.NoError(t, db.AutoMigrate(&ledger.CreditBalance{}))
	rec = deliver(router, succeededPayload(), testWebhookSecret)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), string(SettlementApplied))
}

func TestWebhookAcknowledgesRejectedPayment(t *testing.T) {
	service, _, db := newTestService(t, allowAllAccounts{})
	router := newWebhookRouter(t, service)

	// $1.00 is below the purchase minimum. A rejection is final, so the
	// delivery is acknowledged to stop redelivery.
	payload := []byte(fmt.Sprintf(
		`{"id":"evt_1","api_version":%q,"type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","amount":100,"metadata":{"account_id":"acct-1"}}}}`,
		stripe.APIVersion,
	))
	rec := deliver(router, payload, testWebhookSecret)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), string(SettlementRejected))

	var count int64
	require.NoError(t, db.Model(&CreditPurchase{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	service, _, _ := newTestService(t, allowAllAccounts{})
	router := newWebhookRouter(t, service)

	rec := deliver(router, succeededPayload(), "whsec_wrong_secret")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
