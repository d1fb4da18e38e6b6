package productservice_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goloja/internal/domain"
	apperror "goloja/internal/errors"
	"goloja/internal/pkg/logger"
	"goloja/internal/repository/memrepo"
	"goloja/internal/repository/productrepo"
	"goloja/internal/service/inventoryservice"
	"goloja/internal/service/productservice"
)

func newTestService() (*productservice.Service, *memrepo.Store) {
	log := logger.NewLogger("error")
	store := memrepo.NewStore()
	reader := productrepo.NewProductRepository(store, nil, 0, log)
	return productservice.NewService(store, reader, inventoryservice.NewLedger(log), log), store
}

func TestCreateProduct_SeedsInitialStockThroughLedger(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	product, err := svc.CreateProduct(ctx, domain.ProductCreation{
		SKU: "CAM-001", Name: "Camiseta", Price: decimal.RequireFromString("59.90"),
		InitialStock: 10, InitialLocation: "ARMAZEM",
	})

	require.NoError(t, err)
	assert.Equal(t, 0, product.StockLoja)
	assert.Equal(t, 10, product.StockArmazem)
	assert.Equal(t, 10, product.Stock)

	movements, total, err := store.ListMovements(ctx, product.ID, 1, 10)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, domain.MovementEntry, movements[0].Type)
	assert.Equal(t, 10, movements[0].Quantity)
	assert.Equal(t, domain.LocationArmazem, movements[0].Location)
}

func TestCreateProduct_DefaultsToLoja(t *testing.T) {
	svc, _ := newTestService()

	product, err := svc.CreateProduct(context.Background(), domain.ProductCreation{
		SKU: "CAN-001", Name: "Caneca", Price: decimal.NewFromInt(30), InitialStock: 3,
	})

	require.NoError(t, err)
	assert.Equal(t, 3, product.StockLoja)
}

func TestCreateProduct_WithoutInitialStockWritesNoMovement(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	product, err := svc.CreateProduct(ctx, domain.ProductCreation{SKU: "X-1", Name: "Boné", Price: decimal.NewFromInt(25)})

	require.NoError(t, err)
	_, total, err := store.ListMovements(ctx, product.ID, 1, 10)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Equal(t, 1, product.Version)
}

func TestCreateProduct_Validation(t *testing.T) {
	svc, _ := newTestService()

	tests := []struct {
		name string
		req  domain.ProductCreation
		want string
	}{
		{"sem nome", domain.ProductCreation{SKU: "A"}, "VALIDATION_ERROR"},
		{"preço negativo", domain.ProductCreation{SKU: "A", Name: "A", Price: decimal.NewFromInt(-1)}, "VALIDATION_ERROR"},
		{"estoque inicial negativo", domain.ProductCreation{SKU: "A", Name: "A", InitialStock: -2}, "VALIDATION_ERROR"},
		{"localização inválida", domain.ProductCreation{SKU: "A", Name: "A", InitialLocation: "DEPOSITO"}, "INVALID_LOCATION"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateProduct(context.Background(), tt.req)
			require.Error(t, err)
			_, category, _ := apperror.MapToHTTPStatus(err)
			assert.Equal(t, tt.want, category)
		})
	}
}

func TestCreateProduct_DuplicateSKU(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	req := domain.ProductCreation{SKU: "DUP", Name: "Produto", Price: decimal.NewFromInt(1)}

	_, err := svc.CreateProduct(ctx, req)
	require.NoError(t, err)
	_, err = svc.CreateProduct(ctx, req)

	var conflict *apperror.ConflictError
	assert.ErrorAs(t, err, &conflict)
}

func TestGetProductByID(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	created, err := svc.CreateProduct(ctx, domain.ProductCreation{SKU: "G-1", Name: "Garrafa", Price: decimal.NewFromInt(40)})
	require.NoError(t, err)

	t.Run("encontrado", func(t *testing.T) {
		product, err := svc.GetProductByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "Garrafa", product.Name)
		assert.True(t, product.Price.Equal(decimal.NewFromInt(40)))
	})

	t.Run("id inválido", func(t *testing.T) {
		_, err := svc.GetProductByID(ctx, "nao-e-uuid")
		var validation *apperror.ValidationError
		assert.ErrorAs(t, err, &validation)
	})

	t.Run("inexistente", func(t *testing.T) {
		_, err := svc.GetProductByID(ctx, uuid.NewString())
		_, category, _ := apperror.MapToHTTPStatus(err)
		assert.Equal(t, "PRODUCT_NOT_FOUND", category)
	})
}

func TestListProducts_LowStockOnly(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	_, err := svc.CreateProduct(ctx, domain.ProductCreation{SKU: "L-1", Name: "Lápis", MinStock: 5, InitialStock: 2})
	require.NoError(t, err)
	_, err = svc.CreateProduct(ctx, domain.ProductCreation{SKU: "C-1", Name: "Caderno", MinStock: 5, InitialStock: 50})
	require.NoError(t, err)

	page, err := svc.ListProducts(ctx, domain.ProductFilter{LowStockOnly: true})

	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Lápis", page.Items[0].Name)
	assert.Equal(t, 20, page.Limit)
}
