package productservice

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"goloja/internal/domain"
	apperror "goloja/internal/errors"
	"goloja/internal/pkg/logger"
	"goloja/internal/service/inventoryservice"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// Store define o contrato que este Serviço espera da camada de Persistência.
type Store interface {
	domain.TxBeginner
	ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, int, error)
}

// ProductReader lê produtos individuais (com cache-aside na implementação de produção).
type ProductReader interface {
	FindByID(ctx context.Context, id string) (domain.Product, error)
}

// Service implementa o cadastro de produtos.
type Service struct {
	store  Store
	reader ProductReader
	ledger *inventoryservice.Ledger
	logger logger.Logger
}

// NewService cria e retorna uma nova instância do Serviço de Produto.
func NewService(store Store, reader ProductReader, ledger *inventoryservice.Ledger, log logger.Logger) *Service {
	return &Service{store: store, reader: reader, ledger: ledger, logger: log}
}

// CreateProduct cadastra o produto com contadores zerados e lança o estoque inicial
// como ENTRY na mesma transação.
func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreation) (domain.Product, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.SKU = strings.TrimSpace(req.SKU)

	// 1. Validação de Regras de Negócio
	if req.Name == "" || req.SKU == "" {
		return domain.Product{}, apperror.NewValidationError("Nome e SKU são obrigatórios para o produto.")
	}
	if req.Price.IsNegative() {
		return domain.Product{}, apperror.NewValidationError("O preço do produto não pode ser negativo.")
	}
	if req.Cost.Valid && req.Cost.Decimal.IsNegative() {
		return domain.Product{}, apperror.NewValidationError("O custo do produto não pode ser negativo.")
	}
	if req.MinStock < 0 || req.InitialStock < 0 {
		return domain.Product{}, apperror.NewValidationError("Estoque mínimo e estoque inicial não podem ser negativos.")
	}
	loc, err := domain.ParseLocationOrDefault(req.InitialLocation)
	if err != nil {
		return domain.Product{}, err
	}

	now := time.Now().UTC()
	product := domain.Product{
		ID:          uuid.New().String(),
		SKU:         req.SKU,
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Cost:        req.Cost,
		MinStock:    req.MinStock,
		Version:     1,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	// 2. Persistência + estoque inicial pelo ledger
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return domain.Product{}, apperror.NewDBError("Falha ao iniciar transação", err)
	}
	defer tx.Rollback()

	if err := tx.InsertProduct(ctx, product); err != nil {
		if apperror.IsAppError(err) {
			return domain.Product{}, err
		}
		return domain.Product{}, apperror.NewDBError("Falha ao salvar produto", err)
	}

	if req.InitialStock > 0 {
		product, _, err = s.ledger.Append(ctx, tx, domain.StockMovementInput{
			ProductID: product.ID,
			Type:      domain.MovementEntry,
			Quantity:  req.InitialStock,
			Reason:    "Estoque inicial",
			UserID:    req.UserID,
			Location:  loc,
		})
		if err != nil {
			return domain.Product{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("Falha ao commitar criação de produto.", err)
		return domain.Product{}, apperror.NewDBError("Falha ao commitar transação", err)
	}

	s.logger.Info("Produto criado com sucesso.", map[string]interface{}{
		"product_id": product.ID,
		"sku":        product.SKU,
		"stock":      product.Stock,
		"location":   loc,
	})
	return product, nil
}

// GetProductByID busca o produto pelo ID.
func (s *Service) GetProductByID(ctx context.Context, id string) (domain.Product, error) {
	if _, err := uuid.Parse(id); err != nil {
		return domain.Product{}, apperror.NewValidationError("O ID do produto deve ser um UUID válido.")
	}

	product, err := s.reader.FindByID(ctx, id)
	if err != nil {
		if apperror.IsAppError(err) {
			return domain.Product{}, err
		}
		return domain.Product{}, apperror.NewInternalError("Falha interna ao buscar produto.", err)
	}
	return product, nil
}

// ListProducts lista produtos ativos, opcionalmente apenas os com estoque baixo.
func (s *Service) ListProducts(ctx context.Context, filter domain.ProductFilter) (domain.ProductPage, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}

	items, total, err := s.store.ListProducts(ctx, filter)
	if err != nil {
		s.logger.Error("Falha ao listar produtos.", err)
		return domain.ProductPage{}, apperror.NewInternalError("Falha interna ao listar produtos.", err)
	}
	if items == nil {
		items = []domain.Product{}
	}
	return domain.ProductPage{Items: items, Page: filter.Page, Limit: filter.Limit, Total: total}, nil
}
