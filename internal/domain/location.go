package domain

import (
	"fmt"
	"strings"

	apperror "goloja/internal/errors"
)

// Location é uma das duas partições físicas de estoque.
type Location string

const (
	LocationLoja    Location = "LOJA"
	LocationArmazem Location = "ARMAZEM"
)

// DefaultLocation é assumida pelos pontos de entrada legados que não informam a localização.
const DefaultLocation = LocationLoja

// Valid informa se a localização pertence ao enum.
func (l Location) Valid() bool {
	return l == LocationLoja || l == LocationArmazem
}

// ParseLocation normaliza e valida uma localização vinda da API.
func ParseLocation(raw string) (Location, error) {
	loc := Location(strings.ToUpper(strings.TrimSpace(raw)))
	if !loc.Valid() {
		return "", apperror.NewInvalidLocationError(fmt.Sprintf("'%s' não é LOJA nem ARMAZEM", raw))
	}
	return loc, nil
}

// ParseLocationOrDefault aplica DefaultLocation quando raw é vazio.
func ParseLocationOrDefault(raw string) (Location, error) {
	if strings.TrimSpace(raw) == "" {
		return DefaultLocation, nil
	}
	return ParseLocation(raw)
}

// StockCounters são os contadores derivados de um produto. Total é sempre Loja + Armazem.
type StockCounters struct {
	Loja    int `json:"stock_loja"`
	Armazem int `json:"stock_armazem"`
	Total   int `json:"stock"`
}

// NewStockCounters monta os contadores já com o total calculado.
func NewStockCounters(loja, armazem int) StockCounters {
	return StockCounters{Loja: loja, Armazem: armazem, Total: loja + armazem}
}

// At retorna o contador da localização.
func (c StockCounters) At(loc Location) int {
	if loc == LocationArmazem {
		return c.Armazem
	}
	return c.Loja
}

func (c StockCounters) with(loc Location, value int) StockCounters {
	if loc == LocationArmazem {
		return NewStockCounters(c.Loja, value)
	}
	return NewStockCounters(value, c.Armazem)
}

// Apply calcula os próximos contadores para um movimento já validado.
// Nenhuma localização pode ficar negativa.
func (c StockCounters) Apply(productID string, in StockMovementInput) (StockCounters, error) {
	if in.Type == MovementTransfer {
		available := c.At(in.FromLocation)
		if available < in.Quantity {
			return c, apperror.NewInsufficientStockError(productID, string(in.FromLocation), available, in.Quantity)
		}
		next := c.with(in.FromLocation, available-in.Quantity)
		return next.with(in.ToLocation, next.At(in.ToLocation)+in.Quantity), nil
	}

	current := c.At(in.Location)
	if current+in.Quantity < 0 {
		return c, apperror.NewInsufficientStockError(productID, string(in.Location), current, -in.Quantity)
	}
	return c.with(in.Location, current+in.Quantity), nil
}
