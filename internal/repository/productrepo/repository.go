package productrepo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"goloja/internal/domain"
	"goloja/internal/pkg/cache"
	"goloja/internal/pkg/logger"
)

// Define a chave de cache para produtos.
const productCacheKey = "product:%s"

// ProductFinder é a fonte de verdade dos produtos (PostgreSQL ou memória).
type ProductFinder interface {
	FindProduct(ctx context.Context, id string) (domain.Product, error)
}

// ProductRepository adiciona a estratégia Cache-Aside (Redis) sobre a fonte de verdade.
// Cache nil desliga o cache.
type ProductRepository struct {
	Finder ProductFinder
	Cache  cache.Client
	TTL    time.Duration
	logger logger.Logger
}

// NewProductRepository cria e retorna uma nova instância do Repositório.
func NewProductRepository(finder ProductFinder, cacheClient cache.Client, ttl time.Duration, log logger.Logger) *ProductRepository {
	return &ProductRepository{
		Finder: finder,
		Cache:  cacheClient,
		TTL:    ttl,
		logger: log,
	}
}

// FindByID busca um produto pelo ID, utilizando a estratégia Cache-Aside.
func (r *ProductRepository) FindByID(ctx context.Context, id string) (domain.Product, error) {
	key := fmt.Sprintf(productCacheKey, id)

	// --- 1. Estratégia Cache-Aside (READ) ---
	if r.Cache != nil {
		cachedData, err := r.Cache.Get(ctx, key)
		if err == nil {
			var product domain.Product
			if json.Unmarshal([]byte(cachedData), &product) == nil {
				r.logger.Debug("Produto servido pelo cache.", map[string]interface{}{"product_id": id})
				return product, nil
			}
			// Se a desserialização falhar, segue para a fonte de verdade.
		} else if err != cache.ErrCacheMiss {
			r.logger.Warn("Falha ao ler do cache Redis.", map[string]interface{}{"product_id": id, "error": err.Error()})
		}
	}

	// --- 2. Busca na fonte de verdade ---
	product, err := r.Finder.FindProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	// --- 3. Estratégia Cache-Aside (WRITE) ---
	if r.Cache != nil {
		productJSON, marshalErr := json.Marshal(product)
		if marshalErr == nil {
			if setErr := r.Cache.Set(ctx, key, productJSON, r.TTL); setErr != nil {
				r.logger.Warn("Falha ao gravar produto no cache.", map[string]interface{}{"product_id": id, "error": setErr.Error()})
			}
		}
	}

	return product, nil
}

// Invalidate remove o produto do cache depois de uma mudança de estoque ou cadastro.
func (r *ProductRepository) Invalidate(ctx context.Context, productID string) {
	if r.Cache == nil {
		return
	}
	if err := r.Cache.Delete(ctx, fmt.Sprintf(productCacheKey, productID)); err != nil {
		r.logger.Warn("Falha ao invalidar produto no cache.", map[string]interface{}{"product_id": productID, "error": err.Error()})
	}
}
