package router

import (
	"net/http"
	"time"

	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	_ "goloja/docs"
	"goloja/internal/api/product"
	"goloja/internal/api/sale"
	"goloja/internal/api/stock"
	"goloja/internal/api/user"
	"goloja/internal/api/webhook"
	"goloja/internal/domain"
	"goloja/internal/pkg/cache"
	"goloja/internal/pkg/logger"
	"goloja/internal/pkg/middleware"
)

// Deps reúne os handlers e a infraestrutura que o roteador precisa.
type Deps struct {
	Product *product.Handler
	Stock   *stock.Handler
	Sale    *sale.Handler
	Webhook *webhook.Handler
	User    *user.Handler

	TokenSvc middleware.TokenService
	// Cache pode ser nil: o rate limit fica desligado.
	Cache           cache.Client
	RateLimit       int
	RateLimitPeriod time.Duration
	Logger          logger.Logger
	// TracerProvider nil usa o provedor global do otel.
	TracerProvider trace.TracerProvider
}

// NewRouter configura e retorna o roteador HTTP principal, instrumentado com OpenTelemetry.
func NewRouter(d Deps) http.Handler {
	mux := http.NewServeMux()

	auth := middleware.NewAuthMiddleware(d.TokenSvc)
	admin := middleware.PermissionMiddleware(domain.RoleAdmin)
	staff := middleware.PermissionMiddleware(domain.RoleAdmin, domain.RoleSeller)
	limited := func(scope string, h http.HandlerFunc) http.Handler {
		return middleware.RateLimiter(d.Cache, scope, d.RateLimit, d.RateLimitPeriod, d.Logger)(h)
	}
	asAdmin := func(h http.HandlerFunc) http.HandlerFunc { return auth(admin(h)) }
	asStaff := func(h http.HandlerFunc) http.HandlerFunc { return auth(staff(h)) }

	// Health check e documentação
	mux.HandleFunc("GET /ping", PingHandler)
	mux.Handle("GET /swagger/", httpSwagger.WrapHandler)

	// Usuários
	mux.Handle("POST /v1/register", limited("login", d.User.RegisterUserHandler))
	mux.Handle("POST /v1/login", limited("login", d.User.LoginUserHandler))

	// Produtos
	mux.HandleFunc("POST /v1/products", asAdmin(d.Product.CreateProductHandler))
	mux.HandleFunc("GET /v1/products", asStaff(d.Product.ListProductsHandler))
	mux.HandleFunc("GET /v1/products/{id}", asStaff(d.Product.GetProductByIDHandler))

	// Estoque por localização
	mux.HandleFunc("GET /v1/products/{id}/stock", asStaff(d.Stock.GetStockHandler))
	mux.HandleFunc("GET /v1/products/{id}/movements", asStaff(d.Stock.GetMovementsHandler))
	mux.HandleFunc("POST /v1/products/{id}/stock/add", asStaff(d.Stock.AddStockHandler))
	mux.HandleFunc("POST /v1/products/{id}/stock/remove", asStaff(d.Stock.RemoveStockHandler))
	mux.HandleFunc("POST /v1/products/{id}/stock/loss", asStaff(d.Stock.RegisterLossHandler))
	mux.HandleFunc("POST /v1/products/{id}/stock/adjust", asStaff(d.Stock.AdjustStockHandler))
	mux.HandleFunc("POST /v1/products/{id}/stock/transfer", asStaff(d.Stock.TransferStockHandler))

	// Vendas
	mux.HandleFunc("POST /v1/sales", asStaff(d.Sale.CreateSaleHandler))
	mux.HandleFunc("GET /v1/sales", asStaff(d.Sale.ListSalesHandler))
	mux.HandleFunc("GET /v1/sales/{id}", asStaff(d.Sale.GetSaleHandler))
	mux.HandleFunc("POST /v1/sales/{id}/cancel", asStaff(d.Sale.CancelSaleHandler))
	mux.HandleFunc("POST /v1/sales/{id}/refund", asAdmin(d.Sale.RefundSaleHandler))
	mux.HandleFunc("DELETE /v1/sales/{id}", asAdmin(d.Sale.DeleteSaleHandler))

	// Webhooks: sem JWT e sem rate limit, toda notificação precisa chegar à auditoria.
	mux.HandleFunc("POST /v1/webhooks/payments/{gateway}", d.Webhook.PaymentWebhookHandler)
	mux.HandleFunc("POST /v1/webhooks/chatwoot", d.Webhook.CRMWebhookHandler)

	opts := []otelhttp.Option{
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return "HTTP " + r.Method
		}),
	}
	if d.TracerProvider != nil {
		opts = append(opts, otelhttp.WithTracerProvider(d.TracerProvider))
	}
	return otelhttp.NewHandler(routeSpan(mux), "goloja.http", opts...)
}

// routeSpan renomeia o span do otelhttp com o padrão da rota (ex: "GET /v1/sales/{id}").
// O padrão só é conhecido depois que o ServeMux escolhe o handler.
func routeSpan(mux *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, pattern := mux.Handler(r); pattern != "" {
			span := trace.SpanFromContext(r.Context())
			span.SetName(pattern)
			span.SetAttributes(attribute.String("http.route", pattern))
		}
		mux.ServeHTTP(w, r)
	})
}

// PingHandler é uma função utilitária para o health check.
func PingHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("pong"))
}
