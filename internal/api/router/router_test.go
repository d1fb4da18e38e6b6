package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"goloja/internal/api/product"
	"goloja/internal/api/router"
	"goloja/internal/api/sale"
	"goloja/internal/api/stock"
	"goloja/internal/api/user"
	"goloja/internal/api/webhook"
	"goloja/internal/domain"
	"goloja/internal/pkg/cache"
	"goloja/internal/pkg/chatwoot"
	"goloja/internal/pkg/logger"
	"goloja/internal/pkg/payment"
	"goloja/internal/pkg/token"
	"goloja/internal/repository/memrepo"
	"goloja/internal/repository/productrepo"
	"goloja/internal/service/inventoryservice"
	"goloja/internal/service/productservice"
	"goloja/internal/service/saleservice"
	"goloja/internal/service/settlementservice"
	"goloja/internal/service/userservice"
)

// countingCache é um cache.Client em memória que só implementa contadores de verdade.
type countingCache struct {
	mu     sync.Mutex
	counts map[string]int64
}

func newCountingCache() *countingCache {
	return &countingCache{counts: map[string]int64{}}
}

func (c *countingCache) Get(ctx context.Context, key string) (string, error) {
	return "", cache.ErrCacheMiss
}

func (c *countingCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return nil
}

func (c *countingCache) Delete(ctx context.Context, key string) error { return nil }

func (c *countingCache) Incr(ctx context.Context, key string, expiration time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[key]++
	return c.counts[key], nil
}

type app struct {
	handler http.Handler
	store   *memrepo.Store
	admin   string
	seller  string
}

func newApp(t *testing.T, opts ...func(*router.Deps)) app {
	t.Helper()
	ctx := context.Background()
	log := logger.NewLogger("error")
	store := memrepo.NewStore()

	gateways, err := payment.NewConfig(payment.NameMock, "https://loja.example.com", payment.NewMock(log))
	require.NoError(t, err)

	products := productrepo.NewProductRepository(store, nil, time.Minute, log)
	ledger := inventoryservice.NewLedger(log)
	saleSvc := saleservice.NewService(store, ledger, gateways, products, "VND", log)

	tokenSvc := token.NewService("segredo-de-teste", time.Hour)
	userSvc := userservice.NewService(store, tokenSvc, log)
	_, err = userSvc.EnsureAdmin(ctx, "admin@loja.com", "admin123")
	require.NoError(t, err)
	_, err = userSvc.Register(ctx, domain.UserRegistration{Email: "vendedor@loja.com", Password: "vende123"})
	require.NoError(t, err)

	deps := router.Deps{
		Product:  product.NewHandler(productservice.NewService(store, products, ledger, log), log),
		Stock:    stock.NewHandler(inventoryservice.NewService(store, ledger, products, log), log),
		Sale:     sale.NewHandler(saleSvc, log),
		Webhook:  webhook.NewHandler(settlementservice.NewService(store, saleSvc, gateways, log), chatwoot.NewSource(), log),
		User:     user.NewHandler(userSvc, log),
		TokenSvc: tokenSvc,
		Logger:   log,
	}
	for _, opt := range opts {
		opt(&deps)
	}

	a := app{handler: router.NewRouter(deps), store: store}
	a.admin = a.login(t, "admin@loja.com", "admin123")
	a.seller = a.login(t, "vendedor@loja.com", "vende123")
	return a
}

func (a app) do(t *testing.T, method, path, bearer string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, req)
	return rr
}

func (a app) login(t *testing.T, email, password string) string {
	t.Helper()
	rr := a.do(t, http.MethodPost, "/v1/login", "", map[string]string{"email": email, "password": password})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var out map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.NotEmpty(t, out["token"])
	return out["token"]
}

func (a app) createProduct(t *testing.T, sku string, loja int) domain.Product {
	t.Helper()
	rr := a.do(t, http.MethodPost, "/v1/products", a.admin, map[string]interface{}{
		"sku": sku, "name": "Camiseta " + sku, "price": "49.90", "min_stock": 1, "initial_stock": loja,
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var p domain.Product
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &p))
	return p
}

func TestPing(t *testing.T) {
	a := newApp(t)
	rr := a.do(t, http.MethodGet, "/ping", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "pong", rr.Body.String())
}

func TestProtectedRoutes(t *testing.T) {
	a := newApp(t)

	rr := a.do(t, http.MethodGet, "/v1/products", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = a.do(t, http.MethodPost, "/v1/products", a.seller, map[string]interface{}{"sku": "X", "name": "X", "price": "1"})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = a.do(t, http.MethodGet, "/v1/products", a.seller, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestCheckoutFlow(t *testing.T) {
	a := newApp(t)
	p := a.createProduct(t, "CAM-01", 5)
	assert.Equal(t, 5, p.StockLoja)

	t.Run("Venda em dinheiro baixa o estoque da LOJA", func(t *testing.T) {
		rr := a.do(t, http.MethodPost, "/v1/sales", a.seller, map[string]interface{}{
			"payment_method": "CASH",
			"items":          []map[string]interface{}{{"product_id": p.ID, "quantity": 2}},
		})
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

		var s domain.Sale
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &s))
		assert.Equal(t, domain.SaleStatusPaid, s.Status)
		assert.Equal(t, "99.8", s.Total.String())

		rr = a.do(t, http.MethodGet, "/v1/products/"+p.ID+"/stock", a.seller, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		var st stock.StockResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &st))
		assert.Equal(t, 3, st.Loja)
		assert.Equal(t, 3, st.Total)
	})

	t.Run("Estoque insuficiente responde 409", func(t *testing.T) {
		rr := a.do(t, http.MethodPost, "/v1/sales", a.seller, map[string]interface{}{
			"payment_method": "CASH",
			"items":          []map[string]interface{}{{"product_id": p.ID, "quantity": 10}},
		})
		require.Equal(t, http.StatusConflict, rr.Code)

		var body domain.ErrorResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, "INSUFFICIENT_STOCK", body.Category)
		assert.Contains(t, body.Message, "disponível 3, solicitado 10")
	})
}

func TestPixSettlementByWebhook(t *testing.T) {
	a := newApp(t)
	p := a.createProduct(t, "CAM-02", 4)

	rr := a.do(t, http.MethodPost, "/v1/sales", a.seller, map[string]interface{}{
		"payment_method": "PIX_GATEWAY",
		"items":          []map[string]interface{}{{"product_id": p.ID, "quantity": 1}},
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var s domain.Sale
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &s))
	require.Equal(t, domain.SaleStatusPending, s.Status)
	require.NotEmpty(t, s.PixCode)

	rr = a.do(t, http.MethodPost, "/v1/webhooks/payments/mock", "", map[string]string{
		"id":                 s.PaymentReference,
		"status":             "approved",
		"external_reference": s.ID,
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = a.do(t, http.MethodGet, "/v1/sales/"+s.ID, a.seller, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var got domain.Sale
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, domain.SaleStatusPaid, got.Status)
}

func TestWebhooksAreNeverRateLimited(t *testing.T) {
	a := newApp(t, func(d *router.Deps) {
		d.Cache = newCountingCache()
		d.RateLimit = 3
		d.RateLimitPeriod = time.Minute
	})

	for i := 0; i < 5; i++ {
		rr := a.do(t, http.MethodPost, "/v1/webhooks/payments/mock", "", map[string]string{
			"id": "pay-x", "status": "approved", "external_reference": "inexistente",
		})
		assert.Equal(t, http.StatusOK, rr.Code, "webhook %d", i+1)
	}
	rr := a.do(t, http.MethodPost, "/v1/webhooks/chatwoot", "", map[string]string{"event": "conversation_created"})
	assert.Equal(t, http.StatusOK, rr.Code)

	assert.Len(t, a.store.WebhookLogs(), 6, "toda notificação fica auditada")
}

func TestLoginIsRateLimited(t *testing.T) {
	a := newApp(t, func(d *router.Deps) {
		d.Cache = newCountingCache()
		d.RateLimit = 3
		d.RateLimitPeriod = time.Minute
	})

	// newApp já consumiu duas tentativas (admin e vendedor).
	rr := a.do(t, http.MethodPost, "/v1/login", "", map[string]string{"email": "admin@loja.com", "password": "admin123"})
	assert.Equal(t, http.StatusOK, rr.Code)
	rr = a.do(t, http.MethodPost, "/v1/login", "", map[string]string{"email": "admin@loja.com", "password": "admin123"})
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
}

func TestSpansAreNamedByRoutePattern(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	a := newApp(t, func(d *router.Deps) { d.TracerProvider = tp })
	p := a.createProduct(t, "CAM-03", 1)

	lastSpan := func() sdktrace.ReadOnlySpan {
		ended := recorder.Ended()
		require.NotEmpty(t, ended)
		return ended[len(ended)-1]
	}

	a.do(t, http.MethodGet, "/v1/products/"+p.ID, a.seller, nil)
	assert.Equal(t, "GET /v1/products/{id}", lastSpan().Name())

	a.do(t, http.MethodGet, "/v1/sales/"+p.ID, a.seller, nil)
	assert.Equal(t, "GET /v1/sales/{id}", lastSpan().Name())

	a.do(t, http.MethodGet, "/nao-existe/"+p.ID, "", nil)
	assert.Equal(t, "HTTP GET", lastSpan().Name())
}
