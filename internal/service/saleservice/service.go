// Package saleservice implementa o agregado de venda: checkout, máquina de estados e
// estorno de estoque pelo ledger.
package saleservice

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"goloja/internal/domain"
	apperror "goloja/internal/errors"
	"goloja/internal/pkg/logger"
	"goloja/internal/pkg/payment"
	"goloja/internal/service/inventoryservice"
)

const (
	instrumentationName = "goloja/saleservice"
	defaultListLimit    = 20
	maxListLimit        = 100
	// DefaultSaleNumberPrefix é usado quando SALE_NUMBER_PREFIX não está definido.
	DefaultSaleNumberPrefix = "VND"
)

// Store define o que o serviço de vendas espera da camada de persistência.
type Store interface {
	domain.TxBeginner
	FindSale(ctx context.Context, id string) (domain.Sale, error)
	ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, int, error)
}

// Service coordena vendas, estoque e gateway de pagamento.
type Service struct {
	store    Store
	ledger   *inventoryservice.Ledger
	gateways *payment.Config
	cache    inventoryservice.ProductCache
	prefix   string
	logger   logger.Logger
	now      func() time.Time

	tracer        trace.Tracer
	salesCreated  metric.Int64Counter
	stockReversed metric.Int64Counter
}

// NewService cria o serviço. gateways e cache podem ser nil (sem PIX_GATEWAY / sem cache).
func NewService(store Store, ledger *inventoryservice.Ledger, gateways *payment.Config, cache inventoryservice.ProductCache, prefix string, log logger.Logger) *Service {
	if prefix == "" {
		prefix = DefaultSaleNumberPrefix
	}
	meter := otel.Meter(instrumentationName)
	// Erros de criação de instrumento só ocorrem com nomes inválidos; o no-op é retornado mesmo assim.
	salesCreated, _ := meter.Int64Counter("goloja.sales.created", metric.WithDescription("Vendas criadas no checkout"))
	stockReversed, _ := meter.Int64Counter("goloja.sales.stock_reversed", metric.WithDescription("Unidades devolvidas ao estoque por estorno de venda"))

	return &Service{
		store:         store,
		ledger:        ledger,
		gateways:      gateways,
		cache:         cache,
		prefix:        prefix,
		logger:        log,
		now:           func() time.Time { return time.Now().UTC() },
		tracer:        otel.Tracer(instrumentationName),
		salesCreated:  salesCreated,
		stockReversed: stockReversed,
	}
}

// GetSale busca uma venda com seus itens.
func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	if _, err := uuid.Parse(id); err != nil {
		return domain.Sale{}, apperror.NewValidationError("O ID da venda deve ser um UUID válido.")
	}
	sale, err := s.store.FindSale(ctx, id)
	if err != nil {
		return domain.Sale{}, translate(err, "Falha interna ao buscar venda.")
	}
	return sale, nil
}

// ListSales lista vendas, da mais recente para a mais antiga.
func (s *Service) ListSales(ctx context.Context, filter domain.SaleFilter) (domain.SalePage, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return domain.SalePage{}, apperror.NewValidationError("Status de venda inválido.")
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}

	items, total, err := s.store.ListSales(ctx, filter)
	if err != nil {
		s.logger.Error("Falha ao listar vendas.", err)
		return domain.SalePage{}, translate(err, "Falha interna ao listar vendas.")
	}
	if items == nil {
		items = []domain.Sale{}
	}
	return domain.SalePage{Items: items, Page: filter.Page, Limit: filter.Limit, Total: total}, nil
}

// invalidate remove do cache os produtos tocados pela operação, depois do commit.
func (s *Service) invalidate(ctx context.Context, productIDs ...string) {
	if s.cache == nil {
		return
	}
	seen := make(map[string]struct{}, len(productIDs))
	for _, id := range productIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		s.cache.Invalidate(ctx, id)
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// translate mantém erros de domínio e embrulha o resto como InternalError.
func translate(err error, msg string) error {
	if apperror.IsAppError(err) {
		return err
	}
	return apperror.NewInternalError(msg, err)
}
