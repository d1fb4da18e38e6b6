package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product representa o item do catálogo com seus contadores de estoque.
// Os contadores só mudam através do ledger (Tx.ApplyStockMovement).
type Product struct {
	ID           string              `json:"id"`
	SKU          string              `json:"sku"`
	Name         string              `json:"name"`
	Description  string              `json:"description"`
	Price        decimal.Decimal     `json:"price"`
	Cost         decimal.NullDecimal `json:"cost"`
	MinStock     int                 `json:"min_stock"`
	StockLoja    int                 `json:"stock_loja"`
	StockArmazem int                 `json:"stock_armazem"`
	Stock        int                 `json:"stock"`
	Version      int                 `json:"version"` // Para Controle de Concorrência Otimista (OCC)
	IsActive     bool                `json:"is_active"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// Counters retorna os contadores atuais do produto.
func (p Product) Counters() StockCounters {
	return NewStockCounters(p.StockLoja, p.StockArmazem)
}

// WithCounters devolve uma cópia do produto com os contadores informados.
func (p Product) WithCounters(c StockCounters) Product {
	p.StockLoja = c.Loja
	p.StockArmazem = c.Armazem
	p.Stock = c.Loja + c.Armazem
	return p
}

// LowStock indica estoque total no mínimo configurado ou abaixo dele.
func (p Product) LowStock() bool {
	return p.Stock <= p.MinStock
}

// ProductCreation é o payload de criação de produto.
// O estoque inicial é lançado como ENTRY em InitialLocation (padrão LOJA).
type ProductCreation struct {
	SKU             string              `json:"sku"`
	Name            string              `json:"name"`
	Description     string              `json:"description"`
	Price           decimal.Decimal     `json:"price"`
	Cost            decimal.NullDecimal `json:"cost"`
	MinStock        int                 `json:"min_stock"`
	InitialStock    int                 `json:"initial_stock"`
	InitialLocation string              `json:"initial_location,omitempty"`
	UserID          string              `json:"-"`
}

// ProductFilter filtra a listagem de produtos.
type ProductFilter struct {
	Name         string
	LowStockOnly bool
	Page         int
	Limit        int
}

// ProductPage é uma página de produtos.
type ProductPage struct {
	Items []Product `json:"items"`
	Page  int       `json:"page"`
	Limit int       `json:"limit"`
	Total int       `json:"total"`
}
