package http_api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-coin/payportal/internal/blockchain"
	"github.com/core-coin/payportal/internal/models"
	"github.com/core-coin/payportal/internal/portal"
	"github.com/core-coin/payportal/internal/repository"
	"github.com/core-coin/payportal/pkg/logger"
)

const apiKey = "test-key"

type testServer struct {
	server   *HTTPServer
	registry *blockchain.Registry
}

func newTestServer(t *testing.T, cfg Config) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	registry, err := blockchain.NewRegistry([]models.ChainConfig{
		{ChainID: 1, Name: "Ethereum", RPCURL: models.MockRPCURL, Symbol: "ETH"},
	}, nil, nil, logger.NewNop())
	require.NoError(t, err)
	p := portal.NewPortal(repository.NewMemoryStorage(), registry, nil, nil, portal.Config{BaseURL: "http://localhost"}, logger.NewNop())

	return &testServer{server: NewHTTPServer(p, cfg, logger.NewNop()), registry: registry}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(w, req)
	return w
}

func (ts *testServer) createLink(t *testing.T, input models.CreatePaymentLinkInput) *models.PaymentLink {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/api/links", input, map[string]string{APIKeyHeader: apiKey})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var link models.PaymentLink
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &link))
	return &link
}

func articleLink() models.CreatePaymentLinkInput {
	return models.CreatePaymentLinkInput{
		TargetURL:        "https://example.com/article",
		Price:            models.Price{Amount: "0.01", TokenSymbol: "ETH", ChainID: 1},
		RecipientAddress: "0x742d35Cc6634C0532925a3b844Bc454e4438f44e",
	}
}

func TestPaymentFlow(t *testing.T) {
	ts := newTestServer(t, Config{APIKey: apiKey})
	link := ts.createLink(t, articleLink())

	w := ts.do(t, http.MethodGet, "/pay/"+link.ID, nil, nil)
	require.Equal(t, http.StatusPaymentRequired, w.Code)
	var offer models.Protocol402Body
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &offer))
	assert.Equal(t, models.Protocol402, offer.Protocol)
	assert.Equal(t, "0.01", offer.Payment.Amount)
	assert.Equal(t, "http://localhost/pay/"+link.ID+"/confirm", offer.Callbacks.Confirm)

	w = ts.do(t, http.MethodGet, "/pay/"+link.ID+"/status", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"unpaid"`)

	mock, ok := ts.registry.Mock(1)
	require.True(t, ok)
	mock.MarkPending("0xabc")
	w = ts.do(t, http.MethodPost, "/pay/"+link.ID+"/confirm", models.ConfirmPaymentInput{TxHash: "0xabc"}, nil)
	assert.Equal(t, http.StatusAccepted, w.Code)

	mock.MarkConfirmed("0xabc")
	w = ts.do(t, http.MethodPost, "/pay/"+link.ID+"/confirm", models.ConfirmPaymentInput{TxHash: "0xabc"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var res models.ConfirmPaymentResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, models.ConfirmConfirmed, res.Status)

	w = ts.do(t, http.MethodGet, "/pay/"+link.ID, nil, nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://example.com/article", w.Header().Get("Location"))

	w = ts.do(t, http.MethodGet, "/api/payments?linkId="+link.ID, nil, map[string]string{APIKeyHeader: apiKey})
	require.Equal(t, http.StatusOK, w.Code)
	var payments struct {
		Payments []models.Payment `json:"payments"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payments))
	assert.Len(t, payments.Payments, 1)
}

func TestConfirm_Errors(t *testing.T) {
	ts := newTestServer(t, Config{APIKey: apiKey})
	link := ts.createLink(t, articleLink())

	w := ts.do(t, http.MethodPost, "/pay/"+link.ID+"/confirm", map[string]string{}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPost, "/pay/missing/confirm", models.ConfirmPaymentInput{TxHash: "0x1"}, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), string(models.ReasonLinkNotFound))

	mock, _ := ts.registry.Mock(1)
	mock.MarkUnderpaid("0xlow", "0.001")
	w = ts.do(t, http.MethodPost, "/pay/"+link.ID+"/confirm", models.ConfirmPaymentInput{TxHash: "0xlow"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), string(models.ReasonPaymentUnderpaid))

	w = ts.do(t, http.MethodPost, "/api/links/"+link.ID+"/disable", nil, map[string]string{APIKeyHeader: apiKey})
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodPost, "/pay/"+link.ID+"/confirm", models.ConfirmPaymentInput{TxHash: "0x2"}, nil)
	require.Equal(t, http.StatusForbidden, w.Code)
	var body models.Protocol403Body
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, models.Protocol403, body.Protocol)
	assert.Equal(t, models.ReasonLinkDisabled, body.ReasonCode)
	assert.Equal(t, link.ID, body.PaymentLinkID)

	w = ts.do(t, http.MethodGet, "/pay/"+link.ID, nil, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.do(t, http.MethodGet, "/pay/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSubscriptionRoutes(t *testing.T) {
	ts := newTestServer(t, Config{APIKey: apiKey})
	input := articleLink()
	input.Subscription = &models.SubscriptionConfig{Interval: models.IntervalMonthly, TrialDays: 7}
	link := ts.createLink(t, input)
	subscriber := "0x00000000000000000000000000000000000000aa"

	w := ts.do(t, http.MethodGet, "/pay/"+link.ID+"?subscriber="+subscriber, nil, nil)
	assert.Equal(t, http.StatusPaymentRequired, w.Code)

	w = ts.do(t, http.MethodPost, "/pay/"+link.ID+"/subscribe", SubscribeRequest{SubscriberAddress: subscriber}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var sub models.Subscription
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sub))

	w = ts.do(t, http.MethodGet, "/pay/"+link.ID, nil, map[string]string{SubscriberHeader: subscriber})
	assert.Equal(t, http.StatusFound, w.Code)

	w = ts.do(t, http.MethodGet, "/pay/"+link.ID+"/subscription?subscriber="+subscriber, nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	admin := map[string]string{APIKeyHeader: apiKey}
	w = ts.do(t, http.MethodPost, "/api/subscriptions/"+sub.ID+"/pause", nil, admin)
	assert.Equal(t, http.StatusOK, w.Code)
	w = ts.do(t, http.MethodPost, "/api/subscriptions/"+sub.ID+"/pause", nil, admin)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = ts.do(t, http.MethodPost, "/api/subscriptions/"+sub.ID+"/resume", nil, admin)
	assert.Equal(t, http.StatusOK, w.Code)
	w = ts.do(t, http.MethodPost, "/api/subscriptions/"+sub.ID+"/cancel?immediate=true", nil, admin)
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/pay/"+link.ID+"?subscriber="+subscriber, nil, nil)
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), string(models.ReasonSubscriptionCancelled))

	w = ts.do(t, http.MethodGet, "/api/subscriptions/"+sub.ID, nil, admin)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"cancelled"`)
}

func TestAdminAuth(t *testing.T) {
	ts := newTestServer(t, Config{APIKey: apiKey})
	w := ts.do(t, http.MethodGet, "/api/links", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = ts.do(t, http.MethodGet, "/api/links", nil, map[string]string{APIKeyHeader: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = ts.do(t, http.MethodGet, "/api/links", nil, map[string]string{APIKeyHeader: apiKey})
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodPost, "/api/links", map[string]string{"targetUrl": "not a url"}, map[string]string{APIKeyHeader: apiKey})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	disabled := newTestServer(t, Config{})
	w = disabled.do(t, http.MethodGet, "/api/links", nil, map[string]string{APIKeyHeader: ""})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestServerInfoCORSAndMetrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("payportal_events_total 1\n"))
	})
	ts := newTestServer(t, Config{CORS: true, MetricsHandler: metrics, Version: "1.0.0", BasePath: "checkout"})

	w := ts.do(t, http.MethodGet, "/", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"basePath":"/checkout"`)
	assert.Contains(t, w.Body.String(), `"chainId":1`)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	w = ts.do(t, http.MethodOptions, "/checkout/abc", nil, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = ts.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "payportal_events_total")
}
