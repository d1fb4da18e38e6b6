package inventoryservice

import (
	"context"
	"fmt"

	"goloja/internal/domain"
	apperror "goloja/internal/errors"
	"goloja/internal/pkg/logger"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// Store define o que o serviço de estoque espera da camada de persistência.
type Store interface {
	domain.TxBeginner
	FindProduct(ctx context.Context, id string) (domain.Product, error)
	ListMovements(ctx context.Context, productID string, page, limit int) ([]domain.StockMovement, int, error)
}

// ProductCache é notificado quando os contadores de um produto mudam.
type ProductCache interface {
	Invalidate(ctx context.Context, productID string)
}

// Service implementa as operações de inventário por localização.
type Service struct {
	store  Store
	ledger *Ledger
	cache  ProductCache
	logger logger.Logger
}

// NewService cria e retorna uma nova instância do Serviço de Estoque. cache pode ser nil.
func NewService(store Store, ledger *Ledger, cache ProductCache, log logger.Logger) *Service {
	return &Service{store: store, ledger: ledger, cache: cache, logger: log}
}

// AddStock lança uma ENTRY na localização (LOJA quando não informada).
func (s *Service) AddStock(ctx context.Context, req domain.StockOperationRequest) (domain.StockCounters, error) {
	return s.singleLocation(ctx, domain.MovementEntry, req, 1)
}

// RemoveStock lança uma EXIT; falha com InsufficientStock sem alterar nada.
func (s *Service) RemoveStock(ctx context.Context, req domain.StockOperationRequest) (domain.StockCounters, error) {
	return s.singleLocation(ctx, domain.MovementExit, req, -1)
}

// RegisterLoss lança uma LOSS (avaria, furto, vencimento).
func (s *Service) RegisterLoss(ctx context.Context, req domain.StockOperationRequest) (domain.StockCounters, error) {
	return s.singleLocation(ctx, domain.MovementLoss, req, -1)
}

// AdjustStock aplica um ajuste de inventário com sinal em uma localização.
func (s *Service) AdjustStock(ctx context.Context, req domain.StockAdjustmentRequest) (domain.StockCounters, error) {
	s.logger.Debug("Iniciando ajuste de estoque no serviço.", map[string]interface{}{
		"product_id": req.ProductID,
		"location":   req.Location,
		"delta":      req.Delta,
	})

	if req.Delta == 0 {
		return domain.StockCounters{}, apperror.NewValidationError("O ajuste de estoque (delta) não pode ser zero.")
	}
	loc, err := domain.ParseLocationOrDefault(req.Location)
	if err != nil {
		return domain.StockCounters{}, err
	}

	return s.apply(ctx, domain.StockMovementInput{
		ProductID: req.ProductID,
		Type:      domain.MovementAdjustment,
		Quantity:  req.Delta,
		Reason:    req.Reason,
		UserID:    req.UserID,
		Location:  loc,
	})
}

// ConsumeForSale baixa estoque de uma venda em sua própria transação.
// O checkout usa Ledger.ConsumeForSale para compor vários itens numa transação só.
func (s *Service) ConsumeForSale(ctx context.Context, productID string, quantity int, loc domain.Location, saleID, userID string) (domain.StockCounters, error) {
	if quantity <= 0 {
		return domain.StockCounters{}, apperror.NewValidationError("A quantidade deve ser maior que zero.")
	}
	return s.apply(ctx, domain.StockMovementInput{
		ProductID: productID,
		Type:      domain.MovementSale,
		Quantity:  -quantity,
		Reason:    fmt.Sprintf("Venda %s", saleID),
		Reference: saleID,
		UserID:    userID,
		Location:  loc,
	})
}

// GetStock retorna os contadores atuais do produto.
func (s *Service) GetStock(ctx context.Context, productID string) (domain.StockCounters, error) {
	p, err := s.store.FindProduct(ctx, productID)
	if err != nil {
		return domain.StockCounters{}, translate(err, "Falha interna ao consultar estoque.")
	}
	return p.Counters(), nil
}

// GetHistory retorna o histórico paginado do produto, do mais recente para o mais antigo.
func (s *Service) GetHistory(ctx context.Context, productID string, page, limit int) (domain.MovementPage, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	if _, err := s.store.FindProduct(ctx, productID); err != nil {
		return domain.MovementPage{}, translate(err, "Falha interna ao consultar histórico.")
	}

	items, total, err := s.store.ListMovements(ctx, productID, page, limit)
	if err != nil {
		s.logger.Error("Falha ao listar histórico de estoque.", err)
		return domain.MovementPage{}, translate(err, "Falha interna ao consultar histórico.")
	}
	if items == nil {
		items = []domain.StockMovement{}
	}
	return domain.MovementPage{Items: items, Page: page, Limit: limit, Total: total}, nil
}

func (s *Service) singleLocation(ctx context.Context, typ domain.MovementType, req domain.StockOperationRequest, sign int) (domain.StockCounters, error) {
	if req.Quantity <= 0 {
		return domain.StockCounters{}, apperror.NewValidationError("A quantidade deve ser maior que zero.")
	}
	loc, err := domain.ParseLocationOrDefault(req.Location)
	if err != nil {
		return domain.StockCounters{}, err
	}
	return s.apply(ctx, domain.StockMovementInput{
		ProductID: req.ProductID,
		Type:      typ,
		Quantity:  sign * req.Quantity,
		Reason:    req.Reason,
		UserID:    req.UserID,
		Location:  loc,
	})
}

// apply executa um único movimento em sua própria transação.
func (s *Service) apply(ctx context.Context, in domain.StockMovementInput) (domain.StockCounters, error) {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		s.logger.Error("Falha ao iniciar transação de estoque.", err)
		return domain.StockCounters{}, translate(err, "Falha interna ao movimentar estoque.")
	}
	defer tx.Rollback()

	product, mv, err := s.ledger.Append(ctx, tx, in)
	if err != nil {
		return domain.StockCounters{}, translate(err, "Falha interna ao movimentar estoque.")
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("Falha ao commitar movimento de estoque.", err)
		return domain.StockCounters{}, apperror.NewDBError("Falha ao commitar transação", err)
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx, product.ID)
	}

	s.logger.Info("Estoque movimentado com sucesso.", map[string]interface{}{
		"product_id":    product.ID,
		"movement_id":   mv.ID,
		"type":          mv.Type,
		"quantity":      mv.Quantity,
		"stock_loja":    product.StockLoja,
		"stock_armazem": product.StockArmazem,
		"stock":         product.Stock,
	})
	return product.Counters(), nil
}

// translate mantém erros de domínio e embrulha o resto como InternalError.
func translate(err error, msg string) error {
	if apperror.IsAppError(err) {
		return err
	}
	return apperror.NewInternalError(msg, err)
}
