package productrepo_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"goloja/internal/domain"
	"goloja/internal/pkg/cache"
	"goloja/internal/pkg/logger"
	"goloja/internal/repository/productrepo"
)

type MockFinder struct {
	mock.Mock
}

func (m *MockFinder) FindProduct(ctx context.Context, id string) (domain.Product, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.Product), args.Error(1)
}

type MockCache struct {
	mock.Mock
}

func (m *MockCache) Get(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *MockCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	args := m.Called(ctx, key, value, expiration)
	return args.Error(0)
}

func (m *MockCache) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockCache) Incr(ctx context.Context, key string, expiration time.Duration) (int64, error) {
	args := m.Called(ctx, key, expiration)
	return args.Get(0).(int64), args.Error(1)
}

func TestFindByID_CacheHit(t *testing.T) {
	finder := new(MockFinder)
	c := new(MockCache)
	repo := productrepo.NewProductRepository(finder, c, time.Minute, logger.NewLogger("error"))

	cached := domain.Product{ID: "p1", Name: "Caneca", Price: decimal.NewFromInt(30), StockLoja: 4, Stock: 4}
	raw, err := json.Marshal(cached)
	require.NoError(t, err)
	c.On("Get", mock.Anything, "product:p1").Return(string(raw), nil)

	product, err := repo.FindByID(context.Background(), "p1")

	require.NoError(t, err)
	assert.Equal(t, "Caneca", product.Name)
	assert.Equal(t, 4, product.StockLoja)
	finder.AssertNotCalled(t, "FindProduct", mock.Anything, mock.Anything)
}

func TestFindByID_CacheMissPopulatesCache(t *testing.T) {
	finder := new(MockFinder)
	c := new(MockCache)
	repo := productrepo.NewProductRepository(finder, c, time.Minute, logger.NewLogger("error"))

	c.On("Get", mock.Anything, "product:p1").Return("", cache.ErrCacheMiss)
	finder.On("FindProduct", mock.Anything, "p1").Return(domain.Product{ID: "p1", Name: "Caneca"}, nil)
	c.On("Set", mock.Anything, "product:p1", mock.Anything, time.Minute).Return(nil)

	product, err := repo.FindByID(context.Background(), "p1")

	require.NoError(t, err)
	assert.Equal(t, "p1", product.ID)
	finder.AssertExpectations(t)
	c.AssertExpectations(t)
}

func TestFindByID_CacheDownFallsBackToStore(t *testing.T) {
	finder := new(MockFinder)
	c := new(MockCache)
	repo := productrepo.NewProductRepository(finder, c, time.Minute, logger.NewLogger("error"))

	c.On("Get", mock.Anything, "product:p1").Return("", errors.New("connection refused"))
	c.On("Set", mock.Anything, "product:p1", mock.Anything, time.Minute).Return(errors.New("connection refused"))
	finder.On("FindProduct", mock.Anything, "p1").Return(domain.Product{ID: "p1"}, nil)

	_, err := repo.FindByID(context.Background(), "p1")

	assert.NoError(t, err)
}

func TestInvalidate_DeletesKey(t *testing.T) {
	c := new(MockCache)
	repo := productrepo.NewProductRepository(new(MockFinder), c, time.Minute, logger.NewLogger("error"))
	c.On("Delete", mock.Anything, "product:p1").Return(nil).Once()

	repo.Invalidate(context.Background(), "p1")

	c.AssertExpectations(t)
}

func TestNilCache_PassThrough(t *testing.T) {
	finder := new(MockFinder)
	repo := productrepo.NewProductRepository(finder, nil, time.Minute, logger.NewLogger("error"))
	finder.On("FindProduct", mock.Anything, "p1").Return(domain.Product{ID: "p1"}, nil)

	_, err := repo.FindByID(context.Background(), "p1")
	repo.Invalidate(context.Background(), "p1")

	assert.NoError(t, err)
}
